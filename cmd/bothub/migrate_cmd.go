package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/iota-uz/bothub/migrations"
	"github.com/iota-uz/bothub/pkg/configuration"
)

type migrateFunc func(ctx context.Context, db *sql.DB, logger goose.Logger) error

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.AddCommand(
		migrateSubCmd("up", "Apply all pending migrations", migrations.Up),
		migrateSubCmd("down", "Roll back the latest migration", migrations.Down),
		migrateSubCmd("status", "Print the migration status", migrations.Status),
	)
	return cmd
}

func migrateSubCmd(use, short string, run migrateFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf := configuration.Use()
			defer conf.Unload()
			if conf.Database.Driver != "postgres" {
				return fmt.Errorf("migrations need DB_DRIVER=postgres, got %q", conf.Database.Driver)
			}
			db, err := sql.Open("pgx", conf.Database.Opts)
			if err != nil {
				return fmt.Errorf("db open failed: %w", err)
			}
			defer db.Close()
			return run(cmd.Context(), db, conf.Logger())
		},
	}
}
