package appbootstrap

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"skote-admin/api"
	"skote-admin/config"
	"skote-admin/core/bootstrap"
	"skote-admin/core/store"
	"skote-admin/core/utils"
)

const shutdownTimeout = 10 * time.Second

// Run opens the database, seeds roles and the default admin, starts the
// background workers and serves HTTP until SIGINT or SIGTERM.
func Run(cfg *config.AppConfig, logger *utils.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	if err := store.ApplyMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	rc, err := composeRuntime(cfg, db, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rc.notifier.Close(); err != nil {
			logger.Errorf("close notifier: %v", err)
		}
	}()
	if err := bootstrap.EnsureRoles(ctx, rc.roles, cfg); err != nil {
		return fmt.Errorf("seed roles: %w", err)
	}
	if err := bootstrap.EnsureDefaultAdmin(ctx, rc.users, rc.roles, cfg, logger); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	for _, w := range rc.workers {
		if err := w.StartWithContext(ctx); err != nil {
			return fmt.Errorf("start worker: %w", err)
		}
	}
	srv := api.NewServer(cfg, rc.serverDeps, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown requested")
	case err = <-errCh:
		if err != nil {
			logger.Errorf("server stopped: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Errorf("http shutdown: %v", shutdownErr)
	}
	for _, w := range rc.workers {
		if stopErr := w.StopWithContext(shutdownCtx); stopErr != nil {
			logger.Errorf("stop worker: %v", stopErr)
		}
	}
	return err
}
