// Package blob uploads draft attachments to an S3-compatible object store
// and returns the stable URL recorded on the draft.
package blob

import "context"

// Uploader transfers a locally staged attachment and returns its final URL.
type Uploader interface {
	// Upload reads the staged file at sourceURI, transfers it under the
	// given folder prefix and returns the resulting object URL. Failures
	// wrap common.ErrUploadFailure.
	Upload(ctx context.Context, sourceURI, folder string) (string, error)
}
