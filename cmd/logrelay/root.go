package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/setevik/logrelay/internal/config"
)

// cli holds state shared by every subcommand.
type cli struct {
	configPath string
	cfg        *config.Config
}

func (c *cli) config() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	c.cfg = cfg
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:           "logrelay",
		Short:         "Relay log records to chat channels and alert on stale files",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDaemon(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Configuration file path (default "+config.DefaultPath()+")")

	rootCmd.AddCommand(newRunCommand(c))
	rootCmd.AddCommand(newHistoryCommand(c))
	rootCmd.AddCommand(newDigestCommand(c))
	rootCmd.AddCommand(newStatusCommand(c))
	rootCmd.AddCommand(newTestNotifyCommand(c))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "logrelay", version)
		},
	}
}
