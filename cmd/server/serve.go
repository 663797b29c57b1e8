package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/invest-engine/api"
	"github.com/warp/invest-engine/maturity"
)

func serveCmd(configPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled maturity sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides http.addr)")
	return cmd
}

func runServe(ctx context.Context, configPath, addr string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg
	if addr != "" {
		cfg.HTTP.Addr = addr
	}

	scheduler := maturity.NewScheduler(a.sweeper, cfg.Sweep.Schedule, a.logger)
	if cfg.Sweep.Enabled {
		if err := scheduler.Start(); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	handler := api.NewHandler(a.ledger, a.store, scheduler, a.logger)
	handler.OpeningBalance = a.openingBalance
	router := api.NewRouter(handler, api.RouterOptions{AllowedOrigins: cfg.HTTP.AllowedOrigins})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("store", cfg.Store.Driver),
			zap.String("events", cfg.Events.Driver),
			zap.Bool("sweep_enabled", cfg.Sweep.Enabled),
			zap.String("sweep_schedule", cfg.Sweep.Schedule))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}
