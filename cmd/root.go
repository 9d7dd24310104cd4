// Package cmd implements the fitcoach command line interface.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/fitcoach/fitcoach/internal/app"
	"github.com/fitcoach/fitcoach/internal/config"
	"github.com/fitcoach/fitcoach/internal/log"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "fitcoach",
	Short: "fitcoach - AI fitness coach with a local knowledge base",
	Long: `fitcoach answers training and nutrition questions with a local LLM,
grounding its advice in your own knowledge base through retrieval.

Running fitcoach without a subcommand starts an interactive chat.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// newLogger builds the CLI logger honoring --verbose.
func newLogger() log.Logger {
	cfg := log.Config{}
	if verbose {
		cfg.Level = slog.LevelDebug
	}
	return log.New(cfg)
}

// setupApp loads configuration and wires the application for a command.
// The caller owns the returned App and must Close it.
func setupApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	a, err := app.Setup(cmd.Context(), cfg, newLogger())
	if err != nil {
		return nil, fmt.Errorf("initializing application: %w", err)
	}
	return a, nil
}

func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
	}
}
