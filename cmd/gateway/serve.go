package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

var serveListenAddr string

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}

			addr := ":" + cfg.HTTPPort
			if cmd.Flags().Changed("listen-addr") {
				addr = serveListenAddr
			}
			// No WriteTimeout: streamed completions can run for minutes
			server := &http.Server{
				Addr:              addr,
				Handler:           a.handler,
				ReadHeaderTimeout: 10 * time.Second,
				IdleTimeout:       120 * time.Second,
			}

			a.start(ctx)

			serveErr := make(chan error, 1)
			go func() {
				a.logger.Info("Gateway listening", "addr", addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case <-ctx.Done():
			case err := <-serveErr:
				if err != nil {
					a.logger.Error("Server error", "error", err)
				}
			}

			a.logger.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("Server forced to shutdown", "error", err)
			}
			if err := a.close(shutdownCtx); err != nil {
				return err
			}
			a.logger.Info("Gateway exited")
			return nil
		},
	}
	serveCmd.Flags().StringVar(&serveListenAddr, "listen-addr", "", "Override the listen address (e.g. 127.0.0.1:8080)")
	rootCmd.AddCommand(serveCmd)
}
