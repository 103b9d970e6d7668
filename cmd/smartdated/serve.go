package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/cyp0633/smartdate/internal/config"
	"github.com/cyp0633/smartdate/internal/scheduler"
	"github.com/cyp0633/smartdate/server"
	"github.com/cyp0633/smartdate/server/auth"
	authmemory "github.com/cyp0633/smartdate/server/auth/memory"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the scheduled apply job",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address (overrides the config file)")
}

// newAuthenticator builds the Basic Auth user store, or returns nil when auth is disabled.
func newAuthenticator(c *config.Config, logger *slog.Logger) (auth.Authenticator, error) {
	if c.BasicAuth == nil {
		return nil, nil
	}

	store := authmemory.New(authmemory.WithLogger(logger))
	if err := store.AddUser(authmemory.User{
		Username: c.BasicAuth.Username,
		Password: c.BasicAuth.Password,
	}); err != nil {
		return nil, err
	}
	for _, v := range c.Viewers {
		if err := store.AddUser(authmemory.User{
			Username: v.Username,
			Password: v.Password,
			ReadOnly: true,
		}); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Listen = listen
	}

	a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	authenticator, err := newAuthenticator(cfg, a.logger)
	if err != nil {
		return fmt.Errorf("basic auth: %w", err)
	}

	srv := server.New(a.svc, server.Config{
		Authenticator: authenticator,
		Logger:        a.logger,
	})
	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var sched *scheduler.Scheduler
	if cfg.ApplyCron != "" {
		sched, err = scheduler.New(cfg.ApplyCron, a.svc.ApplyAll, a.logger)
		if err != nil {
			return err
		}
		sched.Start()
		a.logger.Info("apply job scheduled", "schedule", cfg.ApplyCron)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", cfg.Listen, "storage", cfg.Storage.Driver, "auth", authenticator != nil)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		a.logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			a.logger.Warn("apply job did not stop in time", "error", err)
		}
	}
	return httpServer.Shutdown(shutdownCtx)
}
