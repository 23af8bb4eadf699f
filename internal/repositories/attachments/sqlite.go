package attachments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/binlift/binlift/internal/common"
	"github.com/binlift/binlift/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Put upserts the source URI for a temp reference.
func (r *SQLiteRepository) Put(ctx context.Context, tempRef, sourceURI string) error {
	query := `INSERT INTO pending_attachments (temp_ref, source_uri, created_at)
			VALUES (?, ?, ?)
			ON CONFLICT(temp_ref) DO UPDATE SET source_uri = excluded.source_uri`
	_, err := r.db.ExecContext(ctx, query, tempRef, sourceURI, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert pending attachment: %w", err)
	}
	return nil
}

// Get returns the staged source URI for a temp reference.
func (r *SQLiteRepository) Get(ctx context.Context, tempRef string) (string, error) {
	query := `SELECT source_uri FROM pending_attachments WHERE temp_ref=?`
	row := r.db.QueryRowContext(ctx, query, tempRef)

	var uri string
	if err := row.Scan(&uri); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrNotFound
		}
		return "", fmt.Errorf("query row scan failed: %w", err)
	}
	return uri, nil
}

// Clear removes the entry for a resolved attachment.
func (r *SQLiteRepository) Clear(ctx context.Context, tempRef string) error {
	query := `DELETE FROM pending_attachments WHERE temp_ref=?`
	if _, err := r.db.ExecContext(ctx, query, tempRef); err != nil {
		return fmt.Errorf("failed to clear pending attachment: %w", err)
	}
	return nil
}
