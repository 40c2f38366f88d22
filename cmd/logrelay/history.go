package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/setevik/logrelay/internal/store"
)

func newHistoryCommand(c *cli) *cobra.Command {
	var (
		last     string
		kind     string
		category string
		file     string
		failed   bool
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent deliveries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			setupLogging(quietLog)

			window, err := parseDuration(last)
			if err != nil {
				return fmt.Errorf("invalid --last value %q: %w", last, err)
			}

			db, err := store.Open(cfg.DBPath())
			if err != nil {
				return fmt.Errorf("opening delivery history: %w", err)
			}
			defer db.Close()

			entries, err := db.Query(store.QueryFilter{
				Since:    time.Now().Add(-window),
				Kind:     kind,
				Category: strings.ToUpper(category),
				Source:   file,
				Failed:   failed,
				Limit:    limit,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No deliveries found.")
				return nil
			}
			fmt.Fprintln(out, renderEntries(entries))
			fmt.Fprintf(out, "Total: %d deliver%s\n", len(entries), pluralY(len(entries)))
			return nil
		},
	}

	cmd.Flags().StringVar(&last, "last", "24h", "Time window (e.g. 24h, 7d)")
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by kind (record, stale, status)")
	cmd.Flags().StringVar(&category, "category", "", "Filter by category (e.g. ERROR)")
	cmd.Flags().StringVar(&file, "file", "", "Filter by source file path")
	cmd.Flags().BoolVar(&failed, "failed", false, "Only show failed deliveries")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of deliveries to show")
	return cmd
}

func renderEntries(entries []*store.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		result := "sent"
		if !e.Delivered {
			result = "failed: " + truncate(e.Error, 30)
		}
		rows = append(rows, []string{
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			e.Kind,
			e.Category,
			e.Channel,
			e.Source,
			result,
			truncate(e.Text, 60),
		})
	}
	return renderTable(
		[]string{"Time", "Kind", "Category", "Channel", "File", "Result", "Message"},
		rows,
		nil,
	)
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
