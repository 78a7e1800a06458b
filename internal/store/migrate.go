package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/safar/dealership/internal/database"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Up, Down:
		return Direction(s), nil
	}
	return "", fmt.Errorf("direction must be %q or %q, got %q", Up, Down, s)
}

// Migrate applies (or reverts) every embedded migration not yet recorded in
// schema_migrations. Each file runs in its own transaction together with its
// bookkeeping row. It returns how many files ran.
func Migrate(ctx context.Context, db *sql.DB, dir Direction, log zerolog.Logger) (int, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	names, err := migrationNames(dir)
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, name := range names {
		version := strings.TrimSuffix(name, "."+string(dir)+".sql")

		var applied bool
		err := db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
			version).Scan(&applied)
		if err != nil {
			return ran, fmt.Errorf("check migration %s: %w", version, err)
		}
		if applied == (dir == Up) {
			continue
		}

		content, err := migrationFiles.ReadFile("migrations/" + name)
		if err != nil {
			return ran, fmt.Errorf("read migration file %s: %w", name, err)
		}

		log.Info().Str("file", name).Msg("running migration")
		err = database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(content)); err != nil {
				return err
			}
			if dir == Up {
				_, err = tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version)
			} else {
				_, err = tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = $1", version)
			}
			return err
		})
		if err != nil {
			return ran, fmt.Errorf("execute migration %s: %w", name, err)
		}
		ran++
	}

	return ran, nil
}

func migrationNames(dir Direction) ([]string, error) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migration directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), "."+string(dir)+".sql") {
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)
	if dir == Down {
		for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
			names[i], names[j] = names[j], names[i]
		}
	}
	return names, nil
}
