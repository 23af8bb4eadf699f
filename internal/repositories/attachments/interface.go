package attachments

import "context"

// Repository is the pending-attachment cache: it maps the temporary
// reference embedded in a draft's pending sentinel to the original source
// URI staged on disk. Entries live until the upload succeeds and the
// owning draft is rewritten, then they are cleared.
type Repository interface {
	// Put stores (or replaces) the source URI for a temp reference.
	Put(ctx context.Context, tempRef, sourceURI string) error

	// Get returns the source URI for a temp reference, or
	// common.ErrNotFound when the reference is unknown.
	Get(ctx context.Context, tempRef string) (string, error)

	// Clear removes a resolved entry. Clearing an unknown reference is
	// not an error.
	Clear(ctx context.Context, tempRef string) error
}
