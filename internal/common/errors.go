// Package common defines shared sentinel errors used across the sync core.
// Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// ErrOffline marks an operation that was skipped because the device
	// has no connectivity. It is a flow-control signal, not a failure.
	ErrOffline = errors.New("offline")

	// Sync failure taxonomy. Each maps to one leg of a record's round-trip.
	ErrUploadFailure = errors.New("attachment upload failed")
	ErrRemoteWrite   = errors.New("remote write failed")
	ErrLocalWrite    = errors.New("local write failed")
)
