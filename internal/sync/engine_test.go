package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	stdsync "sync"
	"testing"
	"time"

	"github.com/binlift/binlift/internal/common"
	"github.com/binlift/binlift/internal/logging"
	"github.com/binlift/binlift/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeNet struct{ online bool }

func (f *fakeNet) IsOnline() bool { return f.online }

type fakeDrafts struct {
	mu          stdsync.Mutex
	recs        map[string]*models.DraftRecord
	unsyncedErr error
	updateErr   error
	markErr     error
}

func newFakeDrafts() *fakeDrafts {
	return &fakeDrafts{recs: make(map[string]*models.DraftRecord)}
}

func (f *fakeDrafts) add(d *models.DraftRecord) {
	cp := *d
	f.recs[d.ID] = &cp
}

func (f *fakeDrafts) Insert(ctx context.Context, d *models.DraftRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.add(d)
	return nil
}

func (f *fakeDrafts) Update(ctx context.Context, d *models.DraftRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.recs[d.ID]; !ok {
		return common.ErrNotFound
	}
	f.add(d)
	return nil
}

func (f *fakeDrafts) GetByID(ctx context.Context, id string) (*models.DraftRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.recs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDrafts) GetUnsynced(ctx context.Context, ownerID string) ([]models.DraftRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unsyncedErr != nil {
		return nil, f.unsyncedErr
	}
	var out []models.DraftRecord
	for _, d := range f.recs {
		if d.OwnerID == ownerID && d.SyncState == models.Unsynced {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeDrafts) MarkSynced(ctx context.Context, id string) error {
	return f.MarkManySynced(ctx, []string{id})
}

func (f *fakeDrafts) MarkManySynced(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	for _, id := range ids {
		if d, ok := f.recs[id]; ok {
			d.SyncState = models.Synced
		}
	}
	return nil
}

func (f *fakeDrafts) DeleteSyncedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, d := range f.recs {
		if d.SyncState == models.Synced && d.CreatedAt.Before(cutoff) {
			delete(f.recs, id)
			n++
		}
	}
	return n, nil
}

type fakePending struct {
	mu     stdsync.Mutex
	refs   map[string]string
	getErr error
}

func newFakePending() *fakePending { return &fakePending{refs: make(map[string]string)} }

func (f *fakePending) Put(ctx context.Context, tempRef, sourceURI string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs[tempRef] = sourceURI
	return nil
}

func (f *fakePending) Get(ctx context.Context, tempRef string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", f.getErr
	}
	uri, ok := f.refs[tempRef]
	if !ok {
		return "", common.ErrNotFound
	}
	return uri, nil
}

func (f *fakePending) Clear(ctx context.Context, tempRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refs, tempRef)
	return nil
}

func (f *fakePending) contains(tempRef string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.refs[tempRef]
	return ok
}

type fakeStatus struct {
	mu       stdsync.Mutex
	blocked  map[string]bool
	failures map[string]int
	resets   map[string]int
}

func newFakeStatus() *fakeStatus {
	return &fakeStatus{
		blocked:  make(map[string]bool),
		failures: make(map[string]int),
		resets:   make(map[string]int),
	}
}

func (f *fakeStatus) Allowed(ctx context.Context, id string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.blocked[id], nil
}

func (f *fakeStatus) RecordFailure(ctx context.Context, id string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[id]++
	return nil
}

func (f *fakeStatus) Reset(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets[id]++
	return nil
}

type fakeRemote struct {
	mu          stdsync.Mutex
	collections map[string]map[string]models.RemoteRecord
	getCalls    int
	upsertCalls int
	upsertErr   error
	getErr      error

	// when set, GetOwnerCollection signals entered and waits for unblock
	entered chan struct{}
	unblock chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{collections: make(map[string]map[string]models.RemoteRecord)}
}

func (f *fakeRemote) seed(owner string, items ...models.RemoteRecord) {
	set := make(map[string]models.RemoteRecord)
	for _, it := range items {
		set[it.ID] = it
	}
	f.collections[owner] = set
}

func (f *fakeRemote) GetOwnerCollection(ctx context.Context, owner string) (map[string]models.RemoteRecord, error) {
	f.mu.Lock()
	f.getCalls++
	entered, unblock := f.entered, f.unblock
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
		<-unblock
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	out := make(map[string]models.RemoteRecord)
	for id, it := range f.collections[owner] {
		out[id] = it
	}
	return out, nil
}

func (f *fakeRemote) UpsertOwnerItems(ctx context.Context, owner string, items []models.RemoteRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	set, ok := f.collections[owner]
	if !ok {
		set = make(map[string]models.RemoteRecord)
		f.collections[owner] = set
	}
	for _, it := range items {
		set[it.ID] = it
	}
	return nil
}

type fakeUploader struct {
	mu      stdsync.Mutex
	url     string
	err     error
	calls   int
	sources []string
}

func (f *fakeUploader) Upload(ctx context.Context, sourceURI, folder string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.sources = append(f.sources, sourceURI)
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

// --- harness ---

type harness struct {
	drafts   *fakeDrafts
	pending  *fakePending
	status   *fakeStatus
	remote   *fakeRemote
	uploader *fakeUploader
	net      *fakeNet
	engine   *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		drafts:   newFakeDrafts(),
		pending:  newFakePending(),
		status:   newFakeStatus(),
		remote:   newFakeRemote(),
		uploader: &fakeUploader{url: "https://cdn.example.org/img/resolved.jpg"},
		net:      &fakeNet{online: true},
	}
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	e, err := NewEngine(Config{
		Drafts:      h.drafts,
		Attachments: h.pending,
		Status:      h.status,
		Remote:      h.remote,
		Uploader:    h.uploader,
		Net:         h.net,
		Logger:      log,
	})
	require.NoError(t, err)
	h.engine = e
	return h
}

func draft(id, owner, ref string) *models.DraftRecord {
	return &models.DraftRecord{
		ID:            id,
		OwnerID:       owner,
		Kind:          models.KindPlastic,
		WeightKg:      1,
		ValueCents:    100,
		AttachmentRef: ref,
		CreatedAt:     time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		SyncState:     models.Unsynced,
	}
}

// --- tests ---

func TestSyncAll_OfflineIsSkippedNoop(t *testing.T) {
	h := newHarness(t)
	h.net.online = false
	h.drafts.add(draft("a", "h1", ""))

	rep, err := h.engine.SyncAll(context.Background(), "h1")
	require.NoError(t, err)
	assert.True(t, rep.Skipped)
	assert.Zero(t, h.remote.getCalls)
	assert.Zero(t, h.remote.upsertCalls)
	assert.Zero(t, h.uploader.calls)
}

func TestSyncAll_AttachmentRepairRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.drafts.add(draft("a", "h1", models.PendingRef("tmp1")))
	require.NoError(t, h.pending.Put(context.Background(), "tmp1", "file:///staged/tmp1.jpg"))

	rep, err := h.engine.SyncAll(context.Background(), "h1")
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Repaired)
	assert.Equal(t, 1, rep.Synced)
	assert.True(t, rep.Clean())

	got, err := h.drafts.GetByID(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.org/img/resolved.jpg", got.AttachmentRef)
	assert.Equal(t, models.Synced, got.SyncState)
	assert.False(t, h.pending.contains("tmp1"), "pending cache entry cleared after repair")
	assert.Equal(t, []string{"file:///staged/tmp1.jpg"}, h.uploader.sources)
}

func TestSyncAll_MergeCorrectness(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// local unsynced {a, b}; remote {a: old value, c}
	a := draft("a", "h1", "")
	a.Description = "new value"
	b := draft("b", "h1", "")
	b.Description = "new value"
	h.drafts.add(a)
	h.drafts.add(b)

	oldA := a.ToRemote()
	oldA.Description = "old value"
	c := draft("c", "h1", "").ToRemote()
	c.Description = "old value"
	h.remote.seed("h1", oldA, c)

	rep, err := h.engine.SyncAll(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Synced)
	assert.Equal(t, 1, rep.Added)
	assert.Equal(t, 1, rep.Replaced)

	set := h.remote.collections["h1"]
	require.Len(t, set, 3)
	assert.Equal(t, "new value", set["a"].Description, "local wins for matching id")
	assert.Equal(t, "new value", set["b"].Description, "pure addition")
	assert.Equal(t, "old value", set["c"].Description, "untouched remote item survives")
}

func TestSyncAll_SecondPassIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.drafts.add(draft("a", "h1", ""))

	rep1, err := h.engine.SyncAll(ctx, "h1")
	require.NoError(t, err)
	require.Equal(t, 1, rep1.Synced)
	before := h.remote.collections["h1"]["a"]

	rep2, err := h.engine.SyncAll(ctx, "h1")
	require.NoError(t, err)
	assert.Zero(t, rep2.Synced)
	assert.Equal(t, 1, h.remote.upsertCalls, "no second remote write")
	assert.Equal(t, before, h.remote.collections["h1"]["a"])

	// monotonic: still Synced, never flipped back
	got, err := h.drafts.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.Synced, got.SyncState)
}

func TestSyncAll_ScenarioPendingWithoutSourceIsHeld(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resolved := draft("a", "h1", "https://cdn.example.org/img/a.jpg")
	pending := draft("b", "h1", models.PendingRef("tmp9"))
	h.drafts.add(resolved)
	h.drafts.add(pending)
	// no cached source for tmp9

	rep, err := h.engine.SyncAll(ctx, "h1")
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Synced)
	assert.Equal(t, 1, rep.Held)
	assert.Zero(t, rep.Repaired)
	assert.True(t, rep.Clean())
	assert.Zero(t, h.uploader.calls)

	gotA, _ := h.drafts.GetByID(ctx, "a")
	assert.Equal(t, models.Synced, gotA.SyncState)

	gotB, _ := h.drafts.GetByID(ctx, "b")
	assert.Equal(t, models.Unsynced, gotB.SyncState)
	assert.True(t, gotB.HasPendingAttachment())

	// the sentinel never surfaces remotely
	_, exists := h.remote.collections["h1"]["b"]
	assert.False(t, exists)
}

func TestSyncAll_UploadFailureIsolated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.uploader.err = common.ErrUploadFailure
	h.drafts.add(draft("a", "h1", models.PendingRef("tmp1")))
	require.NoError(t, h.pending.Put(ctx, "tmp1", "file:///staged/tmp1.jpg"))
	h.drafts.add(draft("b", "h1", "")) // unaffected sibling

	rep, err := h.engine.SyncAll(ctx, "h1")
	require.NoError(t, err)

	require.Len(t, rep.Failures, 1)
	assert.Equal(t, "a", rep.Failures[0].ID)
	assert.Equal(t, "upload", rep.Failures[0].Stage)
	assert.ErrorIs(t, rep.Failures[0].Err, common.ErrUploadFailure)
	assert.Equal(t, 1, h.status.failures["a"])

	// sentinel intact, source still cached for the next pass
	gotA, _ := h.drafts.GetByID(ctx, "a")
	assert.True(t, gotA.HasPendingAttachment())
	assert.True(t, h.pending.contains("tmp1"))

	// the sibling still made it through
	assert.Equal(t, 1, rep.Synced)
	gotB, _ := h.drafts.GetByID(ctx, "b")
	assert.Equal(t, models.Synced, gotB.SyncState)
}

func TestSyncAll_RemoteWriteFailureLeavesRecordsUnsynced(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.remote.upsertErr = errors.New("connection reset")
	h.drafts.add(draft("a", "h1", ""))
	h.drafts.add(draft("b", "h1", ""))

	rep, err := h.engine.SyncAll(ctx, "h1")
	require.NoError(t, err, "record failures never fail the pass")

	assert.Zero(t, rep.Synced)
	require.Len(t, rep.Failures, 2)
	for _, f := range rep.Failures {
		assert.Equal(t, "remote-write", f.Stage)
		assert.ErrorIs(t, f.Err, common.ErrRemoteWrite)
	}
	assert.Equal(t, 1, h.status.failures["a"])
	assert.Equal(t, 1, h.status.failures["b"])

	got, _ := h.drafts.GetByID(ctx, "a")
	assert.Equal(t, models.Unsynced, got.SyncState)
}

func TestSyncAll_LockedOutRecordIsHeld(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.status.blocked["a"] = true
	h.drafts.add(draft("a", "h1", models.PendingRef("tmp1")))
	require.NoError(t, h.pending.Put(ctx, "tmp1", "file:///staged/tmp1.jpg"))
	h.drafts.add(draft("b", "h1", ""))

	rep, err := h.engine.SyncAll(ctx, "h1")
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Held)
	assert.Zero(t, h.uploader.calls, "locked-out record attempts nothing")
	assert.Equal(t, 1, rep.Synced)

	got, _ := h.drafts.GetByID(ctx, "a")
	assert.Equal(t, models.Unsynced, got.SyncState)
}

func TestSyncAll_SingleFlightCoalesces(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.drafts.add(draft("a", "h1", ""))
	h.remote.entered = make(chan struct{}, 1)
	h.remote.unblock = make(chan struct{})

	var first *SyncReport
	var firstErr error
	done := make(chan struct{})
	go func() {
		first, firstErr = h.engine.SyncAll(ctx, "h1")
		close(done)
	}()

	// wait until the first pass is inside the remote read
	<-h.remote.entered

	second, err := h.engine.SyncAll(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, second.Coalesced)
	assert.Zero(t, second.Synced)

	close(h.remote.unblock)
	<-done
	require.NoError(t, firstErr)
	assert.Equal(t, 1, first.Synced)
	assert.Equal(t, 1, h.remote.upsertCalls, "exactly one pass mutated the remote")

	// another owner is not affected by the single-flight key
	h.remote.entered = nil
	h.drafts.add(draft("z", "h2", ""))
	rep, err := h.engine.SyncAll(ctx, "h2")
	require.NoError(t, err)
	assert.False(t, rep.Coalesced)
}

func TestSyncAll_LocalReadFailureIsCatastrophic(t *testing.T) {
	h := newHarness(t)
	h.drafts.unsyncedErr = errors.New("disk i/o error")

	_, err := h.engine.SyncAll(context.Background(), "h1")
	assert.Error(t, err)
}

func TestSyncAll_LocalWriteFailureAfterRemoteCommit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.drafts.add(draft("a", "h1", ""))
	h.drafts.markErr = errors.New("database is locked")

	rep, err := h.engine.SyncAll(ctx, "h1")
	require.NoError(t, err)

	assert.Zero(t, rep.Synced)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, "local-write", rep.Failures[0].Stage)
	assert.ErrorIs(t, rep.Failures[0].Err, common.ErrLocalWrite)

	// the remote write did commit; resuming later re-merges idempotently
	_, exists := h.remote.collections["h1"]["a"]
	assert.True(t, exists)
}

func TestEvictSynced_DelegatesRetention(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	old := draft("a", "h1", "")
	old.CreatedAt = time.Now().UTC().Add(-72 * time.Hour)
	old.SyncState = models.Synced
	h.drafts.add(old)

	n, err := h.engine.EvictSynced(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNewEngine_ValidatesCollaborators(t *testing.T) {
	_, err := NewEngine(Config{})
	assert.Error(t, err)
}
