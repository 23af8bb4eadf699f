package syncstatus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/binlift/binlift/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db     dbx.DBTX
	policy Policy
}

// NewSQLiteRepository returns a repository enforcing the given policy.
func NewSQLiteRepository(db dbx.DBTX, policy Policy) *SQLiteRepository {
	return &SQLiteRepository{db: db, policy: policy}
}

// Allowed reports whether the identifier is clear to attempt at now.
func (r *SQLiteRepository) Allowed(ctx context.Context, identifier string, now time.Time) (bool, error) {
	query := `SELECT locked_until FROM sync_status WHERE identifier=?`
	row := r.db.QueryRowContext(ctx, query, identifier)

	var lockedUntil sql.NullTime
	if err := row.Scan(&lockedUntil); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return true, nil
		}
		return false, fmt.Errorf("query row scan failed: %w", err)
	}
	if lockedUntil.Valid && now.Before(lockedUntil.Time) {
		return false, nil
	}
	return true, nil
}

// RecordFailure bumps the counter and arms the lockout once the threshold
// is crossed. Each failure past the threshold doubles the window, capped
// at the policy maximum.
func (r *SQLiteRepository) RecordFailure(ctx context.Context, identifier string, now time.Time) error {
	query := `INSERT INTO sync_status (identifier, failures) VALUES (?, 1)
			ON CONFLICT(identifier) DO UPDATE SET failures = failures + 1
			RETURNING failures`
	row := r.db.QueryRowContext(ctx, query, identifier)

	var failures int
	if err := row.Scan(&failures); err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}

	if failures < r.policy.Threshold {
		return nil
	}

	lockout := r.policy.BaseLockout
	for i := r.policy.Threshold; i < failures; i++ {
		lockout *= 2
		if lockout >= r.policy.MaxLockout {
			lockout = r.policy.MaxLockout
			break
		}
	}
	if lockout > r.policy.MaxLockout {
		lockout = r.policy.MaxLockout
	}

	update := `UPDATE sync_status SET locked_until=? WHERE identifier=?`
	if _, err := r.db.ExecContext(ctx, update, now.Add(lockout).UTC(), identifier); err != nil {
		return fmt.Errorf("failed to arm lockout: %w", err)
	}
	return nil
}

// Reset clears the identifier's bookkeeping.
func (r *SQLiteRepository) Reset(ctx context.Context, identifier string) error {
	query := `DELETE FROM sync_status WHERE identifier=?`
	if _, err := r.db.ExecContext(ctx, query, identifier); err != nil {
		return fmt.Errorf("failed to reset sync status: %w", err)
	}
	return nil
}
