// Package remote abstracts the server-side document store holding the
// per-owner collections of waste items.
package remote

import (
	"context"

	"github.com/binlift/binlift/internal/models"
)

// Store is the remote document store as seen by the sync engine: an opaque
// keyed map per owner plus a merge write.
type Store interface {
	// GetOwnerCollection returns the owner's current item set keyed by id.
	GetOwnerCollection(ctx context.Context, ownerID string) (map[string]models.RemoteRecord, error)

	// UpsertOwnerItems applies a batch of local items to the owner's
	// collection in one transaction: per-item last-local-write-wins by id,
	// ids not in the batch are never touched. Two devices merging
	// concurrently interleave without clobbering each other's additions.
	UpsertOwnerItems(ctx context.Context, ownerID string, items []models.RemoteRecord) error
}
