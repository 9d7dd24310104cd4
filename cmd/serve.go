package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fitcoach/fitcoach/internal/api"
)

const (
	serverReadTimeout     = 15 * time.Second
	serverWriteTimeout    = 120 * time.Second
	serverIdleTimeout     = 60 * time.Second
	serverShutdownTimeout = 10 * time.Second
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a)

		srv, err := api.NewServer(api.ServerConfig{
			Logger:        a.Logger,
			Conversations: a.Conversations,
			RAG:           a.RAG,
			Knowledge:     a.Pipeline,
			Health:        a.Backend,
			DB:            a.DBPool,
			CORSOrigins:   a.Config.CORSOrigins,
		})
		if err != nil {
			return err
		}

		addr := serveAddr
		if addr == "" {
			addr = a.Config.ListenAddr
		}

		httpSrv := &http.Server{
			Addr:         addr,
			Handler:      srv.Handler(),
			ReadTimeout:  serverReadTimeout,
			WriteTimeout: serverWriteTimeout,
			IdleTimeout:  serverIdleTimeout,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			a.Logger.Info("http server listening", "addr", addr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return fmt.Errorf("http server: %w", err)
		case <-ctx.Done():
		}

		a.Logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides configuration)")
	rootCmd.AddCommand(serveCmd)
}
