package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/setevik/logrelay/internal/config"
	"github.com/setevik/logrelay/internal/format"
	"github.com/setevik/logrelay/internal/store"
)

func newStatusCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show tracked files, routes and delivery totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			setupLogging(quietLog)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Backend:      %s\n", cfg.Notify.Backend)
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(out, "Config:       INVALID\n%s\n", indent(err.Error()))
			} else {
				fmt.Fprintln(out, "Config:       ok")
			}

			tracked, err := cfg.Tracked()
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderTracked(tracked, time.Now()))
			fmt.Fprintln(out, renderRoutes(cfg))

			return printHistoryTotals(out, cfg.DBPath())
		},
	}
}

func renderTracked(tracked []config.TrackedFile, now time.Time) string {
	rows := make([][]string, 0, len(tracked))
	for _, tf := range tracked {
		period := "-"
		if tf.Period != nil {
			period = format.Hours(*tf.Period) + "h"
		}
		size, updated := "missing", "-"
		if info, err := os.Stat(tf.Path); err == nil {
			size = format.Bytes(info.Size())
			updated = format.Duration(now.Sub(info.ModTime())) + " ago"
		}
		rows = append(rows, []string{tf.Path, period, tf.Channel, strings.Join(tf.Tags, ","), size, updated})
	}
	return renderTable(
		[]string{"File", "Period", "Channel", "Tags", "Size", "Modified"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignRight},
	)
}

func renderRoutes(cfg *config.Config) string {
	routes := cfg.Routes()
	var rows [][]string
	for _, cat := range []string{"status", "DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"} {
		r, ok := routes[cat]
		if !ok {
			rows = append(rows, []string{cat, "(dropped)", ""})
			continue
		}
		rows = append(rows, []string{cat, r.Channel, strings.Join(r.Tags, ",")})
	}
	return renderTable([]string{"Category", "Channel", "Tags"}, rows, nil)
}

func printHistoryTotals(out io.Writer, dbPath string) error {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Fprintf(out, "History:      no database at %s\n", dbPath)
		return nil
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening delivery history: %w", err)
	}
	defer db.Close()

	totals, err := db.TotalsSince(time.Now().Add(-24 * time.Hour))
	if err != nil {
		return err
	}
	count, err := db.Count()
	if err != nil {
		return fmt.Errorf("counting deliveries: %w", err)
	}

	fmt.Fprintf(out, "Sent (24h):   %d delivered, %d failed\n", totals.Delivered, totals.Failed)
	if totals.Last.IsZero() {
		fmt.Fprintln(out, "Last send:    none")
	} else {
		fmt.Fprintf(out, "Last send:    %s ago\n", format.Duration(time.Since(totals.Last)))
	}
	fmt.Fprintf(out, "DB entries:   %d total\n", count)
	fmt.Fprintf(out, "DB path:      %s\n", dbPath)
	return nil
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}
