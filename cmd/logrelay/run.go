package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/setevik/logrelay/internal/config"
	"github.com/setevik/logrelay/internal/daemon"
	"github.com/setevik/logrelay/internal/store"
)

func newRunCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the relay in the foreground (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDaemon(cmd)
		},
	}
}

func (c *cli) runDaemon(cmd *cobra.Command) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config:\n%w", err)
	}

	slog.Info("logrelay starting", "version", version, "files", len(cfg.Files), "backend", cfg.Notify.Backend)

	lock, err := daemon.Lock(lockPath(cfg))
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("failed to release lock", "error", err)
		}
	}()

	db, err := store.Open(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("opening delivery history: %w", err)
	}
	defer db.Close()
	slog.Info("delivery history opened", "path", cfg.DBPath())

	if cfg.DB.Retention.Duration > 0 {
		purged, err := db.Purge(cfg.DB.Retention.Duration)
		if err != nil {
			slog.Warn("failed to purge old deliveries", "error", err)
		} else if purged > 0 {
			slog.Info("purged old deliveries", "count", purged, "retention", cfg.DB.Retention.Duration)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, err := daemon.NewSink(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", cfg.Notify.Backend, err)
	}

	d, err := daemon.New(cfg, sink, daemon.WithHistory(db))
	if err != nil {
		return err
	}
	return d.Run(ctx)
}

func lockPath(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.DBPath()), "logrelay.lock")
}
