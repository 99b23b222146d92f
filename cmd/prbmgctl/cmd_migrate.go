package main

import (
	"fmt"

	"github.com/Manonp59/prbmg/internal/store"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var flags struct {
		databaseURL string
		dir         string
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.databaseURL == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}
			if err := store.RunMigrations(flags.databaseURL, flags.dir); err != nil {
				return err
			}
			version, dirty, err := store.MigrationVersion(flags.databaseURL, flags.dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.databaseURL, "database-url", envOr("DATABASE_URL", ""), "Postgres connection URL")
	f.StringVar(&flags.dir, "dir", envOr("DATABASE_MIGRATIONS_DIR", "migrations"), "Migrations directory")
	return cmd
}
