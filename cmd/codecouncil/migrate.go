package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Strob0t/CodeCouncil/internal/adapter/postgres"
	"github.com/Strob0t/CodeCouncil/internal/config"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the session store schema",
	}

	dsn := func() (string, error) {
		cfg, err := config.LoadFrom(*configPath)
		if err != nil {
			return "", fmt.Errorf("config: %w", err)
		}
		if cfg.Postgres.DSN == "" {
			return "", errors.New("DATABASE_URL is not set; the in-memory store needs no migrations")
		}
		return cfg.Postgres.DSN, nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				d, err := dsn()
				if err != nil {
					return err
				}
				if err := postgres.RunMigrations(cmd.Context(), d); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back the given number of migrations (default 1)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n < 1 {
						return fmt.Errorf("invalid steps %q", args[0])
					}
					steps = n
				}
				d, err := dsn()
				if err != nil {
					return err
				}
				if err := postgres.RollbackMigrations(cmd.Context(), d, steps); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				d, err := dsn()
				if err != nil {
					return err
				}
				v, err := postgres.MigrationVersion(cmd.Context(), d)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			},
		},
	)
	return cmd
}
