package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fitcoach/fitcoach/internal/rag"
)

var (
	chatConversationID string
	chatNoRAG          bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive coaching session",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatConversationID, "conversation", "c", "", "continue an existing conversation by id")
	chatCmd.Flags().BoolVar(&chatNoRAG, "no-rag", false, "answer without the knowledge base")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	a, err := setupApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp(a)

	ctx := cmd.Context()

	var convID uuid.UUID
	if chatConversationID != "" {
		convID, err = uuid.Parse(chatConversationID)
		if err != nil {
			return fmt.Errorf("invalid conversation id %q: %w", chatConversationID, err)
		}
		if _, err := a.Conversations.Get(ctx, convID); err != nil {
			return err
		}
		history, err := a.Conversations.History(ctx, convID)
		if err != nil {
			return err
		}
		fmt.Printf("Resuming conversation with %d messages.\n\n", len(history))
	} else {
		conv, err := a.Conversations.Create(ctx, "")
		if err != nil {
			return err
		}
		convID = conv.ID
		fmt.Printf("Started conversation %s\n\n", convID)
	}

	mode := "with knowledge base"
	if chatNoRAG || !a.Config.RAG.Enabled {
		mode = "model only"
	}
	fmt.Printf("fitcoach interactive chat (%s). Type 'exit' to quit.\n\n", mode)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		var opts []rag.AnswerOption
		if chatNoRAG {
			opts = append(opts, rag.WithoutRetrieval())
		}

		reply, err := a.RAG.Answer(ctx, convID, input, opts...)
		if err != nil {
			if errors.Is(err, rag.ErrGeneration) {
				fmt.Fprintf(os.Stderr, "the model could not answer: %v\n", err)
				continue
			}
			return err
		}

		fmt.Printf("\ncoach> %s\n", reply.Text)
		if reply.Degraded {
			fmt.Println("(knowledge base unavailable, answered from the model alone)")
		}
		printSources(reply)
		fmt.Println()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Printf("\nConversation saved as %s\n", convID)
	return nil
}

func printSources(reply rag.Reply) {
	if len(reply.Sources) == 0 {
		return
	}
	fmt.Println("\nsources:")
	for i, src := range reply.Sources {
		fmt.Printf("  %d. %s (%.0f%%) %s\n", i+1, src.Name, src.Similarity*100, src.Snippet)
	}
}
