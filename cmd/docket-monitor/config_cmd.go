package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/renderinc/docket-monitor/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}
	cmd.AddCommand(configInitCmd())
	cmd.AddCommand(configCheckCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a config file with default values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ExpandPath(config.DefaultConfigPath)
			if len(args) == 1 {
				path = args[0]
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Write(path, config.Default()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Configuration is valid.")
			fmt.Fprintf(out, "  database:   %s\n", cfg.Storage.DBPath())
			fmt.Fprintf(out, "  index:      %s\n", cfg.Storage.IndexPath())
			fmt.Fprintf(out, "  budget:     $%s/quarter, limit $%s\n",
				cfg.Budget.QuarterlyBudget.StringFixed(2), cfg.Budget.Rates().Limit().StringFixed(2))
			if err := cfg.ValidatePaidSource(); err != nil {
				fmt.Fprintf(out, "  paid source: not configured (%v)\n", err)
			} else {
				fmt.Fprintf(out, "  paid source: %s\n", cfg.Pacer.ScraperURL)
			}
			return nil
		},
	}
}
