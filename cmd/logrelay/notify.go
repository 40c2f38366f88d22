package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/setevik/logrelay/internal/config"
	"github.com/setevik/logrelay/internal/daemon"
	"github.com/setevik/logrelay/internal/record"
	"github.com/setevik/logrelay/internal/reporter"
	"github.com/setevik/logrelay/internal/router"
)

const sendTimeout = 30 * time.Second

func newTestNotifyCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test message to the status destination",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			setupLogging(cfg.Log)

			host, _ := os.Hostname()
			if err := sendStatus(cmd.Context(), cfg, reporter.TestMessage(host, time.Now())); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent successfully.")
			return nil
		},
	}
}

// sendStatus delivers text to the configured status destination and reports
// a send failure as an error.
func sendStatus(ctx context.Context, cfg *config.Config, text string) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	sink, err := daemon.NewSink(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", cfg.Notify.Backend, err)
	}
	return sendStatusVia(ctx, sink, cfg, text)
}

func sendStatusVia(ctx context.Context, sink router.Sink, cfg *config.Config, text string) error {
	dests := make(map[string]router.Destination)
	if cfg.Status != nil {
		dests[record.Status] = router.Destination(*cfg.Status)
	}

	var sendErr error
	r, err := router.New(sink, dests, router.WithRecorder(func(d router.Delivery) { sendErr = d.Err }))
	if err != nil {
		return err
	}
	if !r.Routed(record.Status) {
		return errors.New("no status destination configured")
	}

	r.Status(ctx, text)
	if sendErr != nil {
		return fmt.Errorf("sending status message: %w", sendErr)
	}
	return nil
}
