package drafts

import (
	"context"
	"time"

	"github.com/binlift/binlift/internal/models"
)

// Repository describes local-store operations for waste-item drafts.
// Implementations are typically backed by a local SQLite database.
type Repository interface {
	// Insert persists a freshly created draft (always Unsynced).
	Insert(ctx context.Context, d *models.DraftRecord) error

	// Update rewrites a draft's mutable fields by id. Used by the engine
	// to persist attachment resolution.
	Update(ctx context.Context, d *models.DraftRecord) error

	// GetByID returns a draft by its identifier.
	GetByID(ctx context.Context, id string) (*models.DraftRecord, error)

	// GetUnsynced returns all drafts for the owner that have not completed
	// a round-trip to the remote store.
	GetUnsynced(ctx context.Context, ownerID string) ([]models.DraftRecord, error)

	// MarkSynced flips a single draft to Synced.
	MarkSynced(ctx context.Context, id string) error

	// MarkManySynced flips a batch of drafts to Synced in one transaction.
	MarkManySynced(ctx context.Context, ids []string) error

	// DeleteSyncedBefore evicts Synced drafts created before the cutoff.
	// Unsynced drafts are never evicted.
	DeleteSyncedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
