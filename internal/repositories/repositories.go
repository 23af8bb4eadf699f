// Package repositories wires the local SQLite cache: it opens the database,
// applies embedded migrations and constructs the per-table repositories.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/binlift/binlift/internal/migrations"
	"github.com/binlift/binlift/internal/repositories/attachments"
	"github.com/binlift/binlift/internal/repositories/drafts"
	"github.com/binlift/binlift/internal/repositories/syncstatus"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// Repositories bundles the local-store repositories sharing one database.
type Repositories struct {
	Drafts      drafts.Repository
	Attachments attachments.Repository
	SyncStatus  syncstatus.Repository
	DB          *sql.DB
}

// RunMigrations applies the embedded goose migrations to the cache.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens (creating if necessary) the cache at dsn, migrates it
// and returns ready-to-use repositories.
func InitDatabase(ctx context.Context, dsn string, policy syncstatus.Policy) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repositories{
		Drafts:      drafts.NewSQLiteRepository(db),
		Attachments: attachments.NewSQLiteRepository(db),
		SyncStatus:  syncstatus.NewSQLiteRepository(db, policy),
		DB:          db,
	}, nil
}
