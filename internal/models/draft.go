// Package models defines the data model shared by the local cache, the
// remote store and the sync engine.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SyncState tracks whether a draft has completed a round-trip to the
// remote store. The transition Unsynced -> Synced happens exactly once,
// and never in the other direction.
type SyncState int

const (
	Unsynced SyncState = iota
	Synced
)

// PendingPrefix marks an AttachmentRef whose upload has not completed yet.
// The remainder of the ref is the temporary local reference used to look
// up the staged source in the pending-attachment cache.
const PendingPrefix = "pending:"

// Kind classifies a waste-item draft.
type Kind string

const (
	KindPaper   Kind = "paper"
	KindPlastic Kind = "plastic"
	KindGlass   Kind = "glass"
	KindMetal   Kind = "metal"
	KindEwaste  Kind = "ewaste"
)

// DraftRecord is a locally-created waste item awaiting synchronization.
// It is owned by the local store until synced; the sync engine mutates
// only AttachmentRef and SyncState.
type DraftRecord struct {
	ID            string
	OwnerID       string
	Kind          Kind
	WeightKg      float64
	ValueCents    int64
	Description   string
	AttachmentRef string
	CreatedAt     time.Time
	SyncState     SyncState
}

// NewDraft builds an Unsynced draft with a fresh id. attachmentRef may be
// a final URL, a pending sentinel built with PendingRef, or empty for
// drafts without a photo.
func NewDraft(ownerID string, kind Kind, weightKg float64, valueCents int64, description, attachmentRef string) *DraftRecord {
	return &DraftRecord{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		Kind:          kind,
		WeightKg:      weightKg,
		ValueCents:    valueCents,
		Description:   description,
		AttachmentRef: attachmentRef,
		CreatedAt:     time.Now().UTC(),
		SyncState:     Unsynced,
	}
}

// PendingRef builds the sentinel ref for a staged, not-yet-uploaded
// attachment.
func PendingRef(tempRef string) string {
	return PendingPrefix + tempRef
}

// HasPendingAttachment reports whether the draft still carries the
// pending sentinel.
func (d *DraftRecord) HasPendingAttachment() bool {
	return strings.HasPrefix(d.AttachmentRef, PendingPrefix)
}

// PendingTempRef extracts the temporary reference from a pending sentinel.
// The second return value is false when the ref is not a sentinel.
func (d *DraftRecord) PendingTempRef() (string, bool) {
	if !d.HasPendingAttachment() {
		return "", false
	}
	return strings.TrimPrefix(d.AttachmentRef, PendingPrefix), true
}

// RemoteRecord is the server-side projection of a draft, keyed by ID
// within an owner's collection.
type RemoteRecord struct {
	ID            string
	OwnerID       string
	Kind          Kind
	WeightKg      float64
	ValueCents    int64
	Description   string
	AttachmentRef string
	CreatedAt     time.Time
}

// ToRemote converts a draft to its remote projection.
func (d *DraftRecord) ToRemote() RemoteRecord {
	return RemoteRecord{
		ID:            d.ID,
		OwnerID:       d.OwnerID,
		Kind:          d.Kind,
		WeightKg:      d.WeightKg,
		ValueCents:    d.ValueCents,
		Description:   d.Description,
		AttachmentRef: d.AttachmentRef,
		CreatedAt:     d.CreatedAt,
	}
}
