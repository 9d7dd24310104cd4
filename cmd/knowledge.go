package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fitcoach/fitcoach/internal/knowledge"
)

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Manage the coaching knowledge base",
}

var knowledgeAddCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Ingest a document or a directory of documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a)

		ctx := cmd.Context()
		path := args[0]
		info, err := os.Stat(path)
		if err != nil {
			return err
		}

		if !info.IsDir() {
			n, err := a.Pipeline.IngestFile(ctx, path, nil)
			if err != nil {
				return err
			}
			fmt.Printf("Ingested %s: %d chunks.\n", path, n)
			return nil
		}

		result, err := a.Pipeline.IngestDir(ctx, path, nil)
		if err != nil {
			return err
		}
		fmt.Printf("Ingested %d of %d files (%d skipped, %d failed), %d chunks in %s.\n",
			result.Succeeded, len(result.Files), result.Skipped, result.Failed,
			result.ChunksAdded, result.Duration.Round(time.Millisecond))
		for _, f := range result.Files {
			if f.Err != nil {
				fmt.Fprintf(os.Stderr, "  %s: %v\n", f.Path, f.Err)
			}
		}
		if result.Failed > 0 {
			return fmt.Errorf("%d files failed", result.Failed)
		}
		return nil
	},
}

var knowledgeSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a)

		topK, _ := cmd.Flags().GetInt("top-k")
		query := strings.Join(args, " ")

		results, err := a.Knowledge.Search(cmd.Context(), query, knowledge.WithTopK(topK))
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No matching passages.")
			return nil
		}
		for i, r := range results {
			fmt.Printf("%d. [%.0f%%] %s\n%s\n\n", i+1, r.Similarity*100, r.Chunk.Source, r.Chunk.Text)
		}
		return nil
	},
}

var knowledgeStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a)

		stats, err := a.Pipeline.Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Collection:      %s\n", stats.Collection)
		fmt.Printf("Documents:       %d\n", stats.TotalDocuments)
		fmt.Printf("Chunks:          %d\n", stats.TotalChunks)
		fmt.Printf("Embedding model: %s\n", stats.EmbeddingModel)
		return nil
	},
}

var knowledgeClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every chunk from the knowledge base",
	RunE: func(cmd *cobra.Command, _ []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			fmt.Print("This removes all ingested knowledge. Continue? [y/N] ")
			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			if strings.TrimSpace(strings.ToLower(answer)) != "y" {
				fmt.Println("Aborted.")
				return nil
			}
		}

		a, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a)

		if err := a.Pipeline.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Knowledge base cleared.")
		return nil
	},
}

func init() {
	knowledgeSearchCmd.Flags().Int("top-k", knowledge.DefaultTopK, "number of passages to return")
	knowledgeClearCmd.Flags().Bool("force", false, "skip the confirmation prompt")
	knowledgeCmd.AddCommand(knowledgeAddCmd)
	knowledgeCmd.AddCommand(knowledgeSearchCmd)
	knowledgeCmd.AddCommand(knowledgeStatsCmd)
	knowledgeCmd.AddCommand(knowledgeClearCmd)
	rootCmd.AddCommand(knowledgeCmd)
}
