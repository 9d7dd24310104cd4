package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check database and model server connectivity",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a)

		ctx := cmd.Context()
		healthy := true

		if err := a.DBPool.Ping(ctx); err != nil {
			fmt.Printf("database:        unreachable (%v)\n", err)
			healthy = false
		} else {
			fmt.Println("database:        ok")
		}

		status := a.Backend.Health(ctx)
		fmt.Printf("model server:    %s\n", readiness(status.Reachable))
		fmt.Printf("llm model:       %s\n", readiness(status.LLMReady))
		fmt.Printf("embedding model: %s\n", readiness(status.EmbedderReady))
		if status.Detail != "" {
			fmt.Printf("detail:          %s\n", status.Detail)
		}
		if !status.Healthy() {
			healthy = false
		}

		if !healthy {
			return fmt.Errorf("one or more components are not ready")
		}
		fmt.Println("\nAll components ready.")
		return nil
	},
}

func readiness(ok bool) string {
	if ok {
		return "ok"
	}
	return "not ready"
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
