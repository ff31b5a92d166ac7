// Package migrations embeds the goose SQL migrations of the bothub schema.
package migrations

import (
	"context"
	"database/sql"
	"embed"

	"github.com/go-faster/errors"
	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var FS embed.FS

const dialect = "postgres"

func setup(logger goose.Logger) error {
	goose.SetBaseFS(FS)
	if logger != nil {
		goose.SetLogger(logger)
	}
	return goose.SetDialect(dialect)
}

// Up applies every pending migration.
func Up(ctx context.Context, db *sql.DB, logger goose.Logger) error {
	if err := setup(logger); err != nil {
		return err
	}
	return errors.Wrap(goose.UpContext(ctx, db, "."), "migrate up")
}

// Down rolls back the most recent migration.
func Down(ctx context.Context, db *sql.DB, logger goose.Logger) error {
	if err := setup(logger); err != nil {
		return err
	}
	return errors.Wrap(goose.DownContext(ctx, db, "."), "migrate down")
}

func Status(ctx context.Context, db *sql.DB, logger goose.Logger) error {
	if err := setup(logger); err != nil {
		return err
	}
	return errors.Wrap(goose.StatusContext(ctx, db, "."), "migrate status")
}
