// Package sync implements the reconciliation engine between the local
// draft cache and the remote store. A pass runs in two phases: attachment
// repair, then push. Record failures are isolated; a record left behind is
// retried on the next pass.
package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/binlift/binlift/internal/blob"
	"github.com/binlift/binlift/internal/common"
	"github.com/binlift/binlift/internal/logging"
	"github.com/binlift/binlift/internal/models"
	"github.com/binlift/binlift/internal/remote"
	"github.com/binlift/binlift/internal/repositories/attachments"
	"github.com/binlift/binlift/internal/repositories/drafts"
	"github.com/binlift/binlift/internal/repositories/syncstatus"
)

// Reachability is the slice of the connectivity monitor the engine needs.
type Reachability interface {
	IsOnline() bool
}

// Config holds the engine's collaborators. A struct because seven
// dependencies is too many for positional parameters.
type Config struct {
	Drafts      drafts.Repository
	Attachments attachments.Repository
	Status      syncstatus.Repository
	Remote      remote.Store
	Uploader    blob.Uploader
	Net         Reachability
	Logger      logging.Logger

	// AttachmentFolder is the object-store prefix for repaired uploads.
	AttachmentFolder string

	// Now is a clock override for tests; defaults to time.Now.
	Now func() time.Time
}

// Engine reconciles unsynced drafts with the remote store.
type Engine struct {
	cfg Config
	log logging.Logger
	now func() time.Time

	mu       stdsync.Mutex
	inFlight map[string]struct{}
}

// NewEngine validates collaborators and builds an engine.
func NewEngine(cfg Config) (*Engine, error) {
	switch {
	case cfg.Drafts == nil:
		return nil, errors.New("sync: nil drafts repository")
	case cfg.Attachments == nil:
		return nil, errors.New("sync: nil attachment cache")
	case cfg.Status == nil:
		return nil, errors.New("sync: nil status store")
	case cfg.Remote == nil:
		return nil, errors.New("sync: nil remote store")
	case cfg.Uploader == nil:
		return nil, errors.New("sync: nil uploader")
	case cfg.Net == nil:
		return nil, errors.New("sync: nil reachability source")
	case cfg.Logger == nil:
		return nil, errors.New("sync: nil logger")
	}
	if cfg.AttachmentFolder == "" {
		cfg.AttachmentFolder = "attachments"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		cfg:      cfg,
		log:      cfg.Logger,
		now:      cfg.Now,
		inFlight: make(map[string]struct{}),
	}, nil
}

// IsOnline answers the point-in-time connectivity question without blocking.
func (e *Engine) IsOnline() bool {
	return e.cfg.Net.IsOnline()
}

// SyncAll runs one reconciliation pass for the owner. Offline passes are
// skipped, overlapping passes for the same owner are coalesced, and
// per-record failures are reported, not returned: the error is non-nil
// only when the pass could not start at all.
func (e *Engine) SyncAll(ctx context.Context, ownerID string) (*SyncReport, error) {
	report := &SyncReport{Owner: ownerID}

	if !e.IsOnline() {
		e.log.Debug(ctx, "sync skipped, offline", "owner", ownerID)
		report.Skipped = true
		return report, nil
	}

	if !e.acquire(ownerID) {
		e.log.Debug(ctx, "sync coalesced, pass in flight", "owner", ownerID)
		report.Coalesced = true
		return report, nil
	}
	defer e.release(ownerID)

	started := e.now()
	defer func() { report.Duration = e.now().Sub(started) }()

	records, err := e.cfg.Drafts.GetUnsynced(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("loading unsynced drafts: %w", err)
	}
	if len(records) == 0 {
		return report, nil
	}

	gated := e.gate(ctx, records, report)

	e.repairAttachments(ctx, records, gated, report)
	e.push(ctx, ownerID, records, gated, report)

	e.log.Info(ctx, "sync pass finished",
		"owner", ownerID,
		"synced", report.Synced,
		"repaired", report.Repaired,
		"held", report.Held,
		"failed", len(report.Failures),
		"duration", report.Duration,
	)
	return report, nil
}

// EvictSynced applies the cache-cleanup policy: Synced drafts older than
// the retention window are dropped from the local cache.
func (e *Engine) EvictSynced(ctx context.Context, retention time.Duration) (int64, error) {
	return e.cfg.Drafts.DeleteSyncedBefore(ctx, e.now().Add(-retention))
}

func (e *Engine) acquire(ownerID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.inFlight[ownerID]; ok {
		return false
	}
	e.inFlight[ownerID] = struct{}{}
	return true
}

func (e *Engine) release(ownerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, ownerID)
}

// gate consults the lockout store once per pass. Suppressed records are
// counted as held and excluded from both phases so a chronically failing
// record cannot hot-loop on every reachability event.
func (e *Engine) gate(ctx context.Context, records []models.DraftRecord, report *SyncReport) map[string]bool {
	gated := make(map[string]bool)
	now := e.now()
	for _, rec := range records {
		allowed, err := e.cfg.Status.Allowed(ctx, rec.ID, now)
		if err != nil {
			e.log.Warn(ctx, "lockout check failed, allowing attempt", "id", rec.ID, "error", err)
			continue
		}
		if !allowed {
			gated[rec.ID] = true
			report.Held++
			e.log.Debug(ctx, "record locked out, holding", "id", rec.ID)
		}
	}
	return gated
}

// repairAttachments resolves pending sentinels in place. Each record is
// handled independently; a failed upload leaves the sentinel intact.
func (e *Engine) repairAttachments(ctx context.Context, records []models.DraftRecord, gated map[string]bool, report *SyncReport) {
	for i := range records {
		rec := &records[i]
		if gated[rec.ID] {
			continue
		}
		tempRef, ok := rec.PendingTempRef()
		if !ok {
			continue
		}

		sourceURI, err := e.cfg.Attachments.Get(ctx, tempRef)
		if errors.Is(err, common.ErrNotFound) {
			// Nothing staged to upload; the record is held back until the
			// owning flow re-stages the attachment.
			e.log.Warn(ctx, "no cached source for pending attachment", "id", rec.ID, "ref", tempRef)
			continue
		}
		if err != nil {
			report.Failures = append(report.Failures, RecordFailure{ID: rec.ID, Stage: "local-read", Err: err})
			continue
		}

		url, err := e.cfg.Uploader.Upload(ctx, sourceURI, e.cfg.AttachmentFolder)
		if err != nil {
			report.Failures = append(report.Failures, RecordFailure{ID: rec.ID, Stage: "upload", Err: err})
			e.recordFailure(ctx, rec.ID)
			continue
		}

		rec.AttachmentRef = url
		if err := e.cfg.Drafts.Update(ctx, rec); err != nil {
			// The blob is uploaded but the ref was not persisted. The
			// sentinel survives, so the next pass re-uploads: wasted work,
			// not corruption.
			report.Failures = append(report.Failures, RecordFailure{
				ID: rec.ID, Stage: "local-write",
				Err: fmt.Errorf("%w: %v", common.ErrLocalWrite, err),
			})
			rec.AttachmentRef = models.PendingRef(tempRef)
			e.recordFailure(ctx, rec.ID)
			continue
		}

		if err := e.cfg.Attachments.Clear(ctx, tempRef); err != nil {
			e.log.Warn(ctx, "failed to clear pending attachment", "ref", tempRef, "error", err)
		}

		report.Repaired++
		e.resetStatus(ctx, rec.ID)
	}
}

// push merges resolved records into the remote collection and marks them
// Synced. Records still carrying the pending sentinel are held back: the
// sentinel is meaningless outside this device and must never surface
// remotely.
func (e *Engine) push(ctx context.Context, ownerID string, records []models.DraftRecord, gated map[string]bool, report *SyncReport) {
	var pushable []models.DraftRecord
	for _, rec := range records {
		if gated[rec.ID] || e.failedThisPass(report, rec.ID) {
			continue
		}
		if rec.HasPendingAttachment() {
			report.Held++
			e.log.Debug(ctx, "holding record with unresolved attachment", "id", rec.ID)
			continue
		}
		pushable = append(pushable, rec)
	}
	if len(pushable) == 0 {
		return
	}

	remoteSet, err := e.cfg.Remote.GetOwnerCollection(ctx, ownerID)
	if err != nil {
		e.failPush(ctx, pushable, report, fmt.Errorf("%w: %v", common.ErrRemoteWrite, err))
		return
	}

	items := make([]models.RemoteRecord, 0, len(pushable))
	for _, rec := range pushable {
		if _, exists := remoteSet[rec.ID]; exists {
			report.Replaced++
		} else {
			report.Added++
		}
		items = append(items, rec.ToRemote())
	}

	if err := e.cfg.Remote.UpsertOwnerItems(ctx, ownerID, items); err != nil {
		report.Added, report.Replaced = 0, 0
		e.failPush(ctx, pushable, report, fmt.Errorf("%w: %v", common.ErrRemoteWrite, err))
		return
	}

	ids := make([]string, len(pushable))
	for i, rec := range pushable {
		ids[i] = rec.ID
	}
	if err := e.cfg.Drafts.MarkManySynced(ctx, ids); err != nil {
		// The remote write committed; re-pushing next pass is an
		// idempotent merge, so only the local flag is at stake.
		for _, id := range ids {
			report.Failures = append(report.Failures, RecordFailure{
				ID: id, Stage: "local-write",
				Err: fmt.Errorf("%w: %v", common.ErrLocalWrite, err),
			})
		}
		return
	}

	report.Synced += len(ids)
	for _, id := range ids {
		e.resetStatus(ctx, id)
	}
}

func (e *Engine) failPush(ctx context.Context, records []models.DraftRecord, report *SyncReport, err error) {
	for _, rec := range records {
		report.Failures = append(report.Failures, RecordFailure{ID: rec.ID, Stage: "remote-write", Err: err})
		e.recordFailure(ctx, rec.ID)
	}
}

func (e *Engine) failedThisPass(report *SyncReport, id string) bool {
	for _, f := range report.Failures {
		if f.ID == id {
			return true
		}
	}
	return false
}

func (e *Engine) recordFailure(ctx context.Context, id string) {
	if err := e.cfg.Status.RecordFailure(ctx, id, e.now()); err != nil {
		e.log.Warn(ctx, "failed to record sync failure", "id", id, "error", err)
	}
}

func (e *Engine) resetStatus(ctx context.Context, id string) {
	if err := e.cfg.Status.Reset(ctx, id); err != nil {
		e.log.Warn(ctx, "failed to reset sync status", "id", id, "error", err)
	}
}
