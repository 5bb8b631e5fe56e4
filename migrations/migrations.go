// Package migrations embeds the SQL schema of the outreach store.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

//go:embed *.up.sql
var files embed.FS

// Names lists the up migrations in the order they are applied.
func Names() ([]string, error) {
	names, err := fs.Glob(files, "*.up.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Up applies every migration in a single transaction. The statements are
// idempotent, so running Up twice is harmless.
func Up(ctx context.Context, db *sqlx.DB) ([]string, error) {
	names, err := Names()
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback()

	for _, name := range names {
		body, err := files.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			return nil, fmt.Errorf("migration %s: %w", strings.TrimSuffix(name, ".up.sql"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit migration: %w", err)
	}
	return names, nil
}
