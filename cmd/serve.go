package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatali-fataliyev/finance_analytics/logging"
	"github.com/spf13/cobra"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			app, err := bootstrap(cfg)
			if err != nil {
				return err
			}
			defer app.close()

			logging.Logger.Info("application starting...")

			srv := &http.Server{
				Addr:           ":" + app.cfg.AppPort,
				Handler:        app.api.Routes(),
				ReadTimeout:    10 * time.Second,
				WriteTimeout:   10 * time.Second,
				IdleTimeout:    60 * time.Second,
				MaxHeaderBytes: 1 << 16, // 64KB
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go func() {
				<-ctx.Done()
				logging.Logger.Info("shutdown signal received")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logging.Logger.Errorf("server shutdown error: %v", err)
				}
			}()

			logging.Logger.Infof("starting server on port: %s", app.cfg.AppPort)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Logger.Errorf("failed to start server: %v", err)
				return err
			}
			logging.Logger.Info("server stopped gracefully")
			return nil
		},
	}
}
