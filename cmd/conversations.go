package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "Manage stored conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent conversations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a)

		limit, _ := cmd.Flags().GetInt("limit")
		convs, err := a.Conversations.List(cmd.Context(), limit, 0)
		if err != nil {
			return err
		}
		if len(convs) == 0 {
			fmt.Println("No conversations yet.")
			return nil
		}
		for _, c := range convs {
			fmt.Printf("%s  %-40s  %3d messages  %s\n",
				c.ID, c.Title, c.MessageCount, c.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the full transcript of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid conversation id %q: %w", args[0], err)
		}

		a, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a)

		ctx := cmd.Context()
		conv, err := a.Conversations.Get(ctx, id)
		if err != nil {
			return err
		}
		messages, err := a.Conversations.History(ctx, id)
		if err != nil {
			return err
		}

		fmt.Printf("%s (%s, %d messages)\n\n", conv.Title, conv.ID, conv.MessageCount)
		for _, m := range messages {
			fmt.Printf("[%s] %s\n", m.Role, m.Content)
			for _, src := range m.Sources {
				fmt.Printf("    source: %s (%.0f%%)\n", src.Name, src.Similarity*100)
			}
			fmt.Println()
		}
		return nil
	},
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation and its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid conversation id %q: %w", args[0], err)
		}

		a, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a)

		deleted, err := a.Conversations.Delete(cmd.Context(), id)
		if err != nil {
			return err
		}
		if !deleted {
			fmt.Printf("Conversation %s not found.\n", id)
			return nil
		}
		fmt.Printf("Deleted conversation %s.\n", id)
		return nil
	},
}

func init() {
	conversationsListCmd.Flags().Int("limit", 20, "maximum number of conversations to list")
	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)
	rootCmd.AddCommand(conversationsCmd)
}
