package drafts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/binlift/binlift/internal/common"
	"github.com/binlift/binlift/internal/dbx"
	"github.com/binlift/binlift/internal/models"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Insert persists a new draft. Drafts are always created Unsynced.
func (r *SQLiteRepository) Insert(ctx context.Context, d *models.DraftRecord) error {
	query := `INSERT INTO drafts (id, owner_id, kind, weight_kg, value_cents, description, attachment_ref, created_at, synced)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`
	_, err := r.db.ExecContext(ctx, query,
		d.ID, d.OwnerID, string(d.Kind), d.WeightKg, d.ValueCents, d.Description, d.AttachmentRef, d.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert draft: %w", err)
	}
	return nil
}

// Update rewrites the mutable payload fields of an existing draft.
// The sync flag is managed separately via MarkSynced/MarkManySynced.
func (r *SQLiteRepository) Update(ctx context.Context, d *models.DraftRecord) error {
	query := `UPDATE drafts SET kind=?, weight_kg=?, value_cents=?, description=?, attachment_ref=? WHERE id=?`
	res, err := r.db.ExecContext(ctx, query,
		string(d.Kind), d.WeightKg, d.ValueCents, d.Description, d.AttachmentRef, d.ID)
	if err != nil {
		return fmt.Errorf("failed to update draft: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrNotFound
	}
	return nil
}

// GetByID returns a single draft.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.DraftRecord, error) {
	query := `SELECT id, owner_id, kind, weight_kg, value_cents, description, attachment_ref, created_at, synced
			FROM drafts WHERE id=?`
	row := r.db.QueryRowContext(ctx, query, id)

	d, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return d, nil
}

// GetUnsynced returns the owner's drafts still awaiting a round-trip,
// oldest first so retries keep a stable order.
func (r *SQLiteRepository) GetUnsynced(ctx context.Context, ownerID string) ([]models.DraftRecord, error) {
	query := `SELECT id, owner_id, kind, weight_kg, value_cents, description, attachment_ref, created_at, synced
			FROM drafts WHERE owner_id=? AND synced=0 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select unsynced drafts: %w", err)
	}
	defer rows.Close()

	var result []models.DraftRecord
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkSynced flips one draft to Synced. It expects exactly one row affected.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	query := `UPDATE drafts SET synced=1 WHERE id=?`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark draft synced: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrNotFound
	}
	return nil
}

// MarkManySynced flips a batch of drafts to Synced in a single statement,
// so a crash mid-pass can never leave a half-marked batch.
func (r *SQLiteRepository) MarkManySynced(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	query := fmt.Sprintf(`UPDATE drafts SET synced=1 WHERE id IN (%s)`, placeholders)

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	_, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark drafts synced: %w", err)
	}
	return nil
}

// DeleteSyncedBefore evicts Synced drafts older than the cutoff and returns
// the number of evicted rows. Unsynced drafts are never touched.
func (r *SQLiteRepository) DeleteSyncedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM drafts WHERE synced=1 AND created_at < ?`
	res, err := r.db.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to evict synced drafts: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDraft(row rowScanner) (*models.DraftRecord, error) {
	d := &models.DraftRecord{}
	var kind string
	var synced int
	if err := row.Scan(&d.ID, &d.OwnerID, &kind, &d.WeightKg, &d.ValueCents,
		&d.Description, &d.AttachmentRef, &d.CreatedAt, &synced); err != nil {
		return nil, err
	}
	d.Kind = models.Kind(kind)
	if synced != 0 {
		d.SyncState = models.Synced
	}
	return d, nil
}
