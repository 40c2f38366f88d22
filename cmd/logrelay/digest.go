package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/setevik/logrelay/internal/reporter"
	"github.com/setevik/logrelay/internal/store"
)

func newDigestCommand(c *cli) *cobra.Command {
	var (
		last string
		send bool
	)

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Summarize deliveries over a time window",
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

			until := time.Now()
			since := until.Add(-window)

			entries, err := db.Query(store.QueryFilter{Since: since, Until: until})
			if err != nil {
				return err
			}

			host, _ := os.Hostname()
			body := reporter.FormatDigest(reporter.BuildDigest(host, entries, since, until))

			if !send {
				fmt.Fprint(cmd.OutOrStdout(), body)
				return nil
			}

			text := reporter.FormatDigestTitle(since, until) + "\n```\n" + body + "```"
			if err := sendStatus(cmd.Context(), cfg, text); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Digest sent successfully.")
			return nil
		},
	}

	cmd.Flags().StringVar(&last, "last", "7d", "Time window for the digest")
	cmd.Flags().BoolVar(&send, "send", false, "Send the digest to the status destination instead of printing it")
	return cmd
}
