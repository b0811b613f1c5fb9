package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/tightlines/internal/client/client"
	"github.com/dmitrijs2005/tightlines/internal/client/models"
	"github.com/dmitrijs2005/tightlines/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/tightlines/internal/client/repositories/records"
	"github.com/dmitrijs2005/tightlines/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupRepos(t *testing.T) (records.Repository, metadata.Repository) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE records (
  local_id   TEXT PRIMARY KEY,
  server_id  TEXT NOT NULL DEFAULT '',
  owner_id   TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  payload    BLOB NOT NULL,
  status     TEXT NOT NULL
);
CREATE TABLE metadata (
  key   TEXT PRIMARY KEY,
  value BLOB NOT NULL
);
`)
	require.NoError(t, err)
	return records.NewSQLiteRepository(db), metadata.NewSQLiteRepository(db)
}

// fakeClient implements client.Client with scripted per-record outcomes.
type fakeClient struct {
	mu          sync.Mutex
	nextID      int
	failing     map[string]error // keyed by local id; nil entry means succeed
	failDefault error            // applies when no per-record entry exists
	calls       []string
	blocked     chan struct{} // when set, AddRecord waits until closed
	started     chan struct{} // signalled once per AddRecord entry
	cursor      string        // initial cursor handed to Subscribe
	onUpdate    func([]*models.TripRecord, string)
}

func newFakeClient() *fakeClient {
	return &fakeClient{failing: map[string]error{}}
}

func (f *fakeClient) Close() error                   { return nil }
func (f *fakeClient) Ping(ctx context.Context) error { return nil }

func (f *fakeClient) AddRecord(ctx context.Context, collection string, rec *models.TripRecord) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rec.LocalID)
	started := f.started
	blocked := f.blocked
	err, ok := f.failing[rec.LocalID]
	if !ok {
		err = f.failDefault
	}
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if blocked != nil {
		<-blocked
	}
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	f.nextID++
	id := fmt.Sprintf("srv-%d", f.nextID)
	f.mu.Unlock()
	return id, nil
}

func (f *fakeClient) QueryRecords(ctx context.Context, collection string, q client.Query) ([]*models.TripRecord, error) {
	return nil, nil
}

func (f *fakeClient) Subscribe(ctx context.Context, collection string, q client.Query, cursor string, onUpdate func([]*models.TripRecord, string)) (func(), error) {
	f.mu.Lock()
	f.cursor = cursor
	f.onUpdate = onUpdate
	f.mu.Unlock()
	return func() {}, nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newService(t *testing.T, fc *fakeClient, online bool) (TripService, records.Repository, metadata.Repository) {
	t.Helper()
	recRepo, metaRepo := setupRepos(t)
	svc := NewTripService(fc, recRepo, metaRepo, func() bool { return online }, logging.NewJSONLogger(io.Discard))
	t.Cleanup(svc.Close)
	return svc, recRepo, metaRepo
}

func TestAdd_OfflineNeverTouchesNetwork(t *testing.T) {
	fc := newFakeClient()
	svc, recRepo, _ := newService(t, fc, false)
	ctx := context.Background()

	rec, err := svc.Add(ctx, "u1", models.TripPayload{Species: "snapper", Quantity: 2})
	require.NoError(t, err)

	assert.Equal(t, models.StatusOffline, rec.Status)
	assert.Empty(t, rec.ServerID)
	assert.Zero(t, fc.callCount())

	all, err := recRepo.GetAllByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "snapper", all[0].Payload.Species)
	assert.Equal(t, models.StatusOffline, all[0].Status)
}

func TestAdd_OnlineSuccessGoesStraightToSynced(t *testing.T) {
	fc := newFakeClient()
	svc, recRepo, _ := newService(t, fc, true)
	ctx := context.Background()

	rec, err := svc.Add(ctx, "u1", models.TripPayload{Species: "trout"})
	require.NoError(t, err)

	assert.Equal(t, models.StatusSynced, rec.Status)
	assert.NotEmpty(t, rec.ServerID)

	got, err := recRepo.GetByLocalID(ctx, rec.LocalID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSynced, got.Status)
	assert.Equal(t, rec.ServerID, got.ServerID)
}

func TestAdd_OnlineRemoteFailureIsNotAnError(t *testing.T) {
	fc := newFakeClient()
	svc, recRepo, _ := newService(t, fc, true)
	ctx := context.Background()

	fc.mu.Lock()
	fc.failDefault = errors.New("store down")
	fc.mu.Unlock()

	rec, err := svc.Add(ctx, "u1", models.TripPayload{Species: "bass"})
	require.NoError(t, err) // remote failure never surfaces

	assert.Equal(t, models.StatusOffline, rec.Status)

	got, err := recRepo.GetByLocalID(ctx, rec.LocalID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOffline, got.Status)
}

func TestSync_PartialFailureLeavesPendingAndErrorStatus(t *testing.T) {
	fc := newFakeClient()
	svc, recRepo, metaRepo := newService(t, fc, true)
	ctx := context.Background()

	a := models.NewTripRecord("u1", models.TripPayload{Species: "snapper"}, models.StatusPending)
	b := models.NewTripRecord("u1", models.TripPayload{Species: "trout"}, models.StatusPending)
	require.NoError(t, recRepo.UpsertAll(ctx, []*models.TripRecord{a, b}))

	fc.mu.Lock()
	fc.failing[b.LocalID] = errors.New("validation failed")
	fc.mu.Unlock()

	require.NoError(t, svc.Sync(ctx, "u1"))

	gotA, err := recRepo.GetByLocalID(ctx, a.LocalID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSynced, gotA.Status)
	assert.NotEmpty(t, gotA.ServerID)

	gotB, err := recRepo.GetByLocalID(ctx, b.LocalID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, gotB.Status)
	assert.Empty(t, gotB.ServerID)

	assert.Equal(t, SweepError, svc.Status())

	// sweep result persisted for the badge
	raw, err := metaRepo.Get(ctx, lastSweepKey("u1"))
	require.NoError(t, err)
	var res sweepResult
	require.NoError(t, json.Unmarshal(raw, &res))
	assert.Equal(t, 1, res.Synced)
	assert.Equal(t, 1, res.Failed)
}

func TestSync_OfflineRecordRoundTrip(t *testing.T) {
	fc := newFakeClient()
	svc, recRepo, _ := newService(t, fc, true)
	ctx := context.Background()

	rec := models.NewTripRecord("u1", models.TripPayload{Species: "snapper", Quantity: 2}, models.StatusOffline)
	require.NoError(t, recRepo.Upsert(ctx, rec))

	require.NoError(t, svc.Sync(ctx, "u1"))
	assert.Equal(t, SweepIdle, svc.Status())

	all, err := recRepo.GetAllByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, 1) // exactly one record, no duplication
	assert.Equal(t, models.StatusSynced, all[0].Status)
	assert.NotEmpty(t, all[0].ServerID)
	assert.Equal(t, rec.LocalID, all[0].LocalID)
	assert.Equal(t, rec.Payload, all[0].Payload)
}

func TestSync_FailedOfflineRecordBecomesPending(t *testing.T) {
	fc := newFakeClient()
	svc, recRepo, _ := newService(t, fc, true)
	ctx := context.Background()

	rec := models.NewTripRecord("u1", models.TripPayload{Species: "cod"}, models.StatusOffline)
	require.NoError(t, recRepo.Upsert(ctx, rec))

	fc.mu.Lock()
	fc.failing[rec.LocalID] = errors.New("store down")
	fc.mu.Unlock()

	require.NoError(t, svc.Sync(ctx, "u1"))

	got, err := recRepo.GetByLocalID(ctx, rec.LocalID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)

	// a later sweep still picks it up and converges
	fc.mu.Lock()
	delete(fc.failing, rec.LocalID)
	fc.mu.Unlock()

	require.NoError(t, svc.Sync(ctx, "u1"))
	got, err = recRepo.GetByLocalID(ctx, rec.LocalID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSynced, got.Status)
	assert.Equal(t, SweepIdle, svc.Status())
}

func TestSync_OverlappingSweepsAreCollapsed(t *testing.T) {
	fc := newFakeClient()
	svc, recRepo, _ := newService(t, fc, true)
	ctx := context.Background()

	rec := models.NewTripRecord("u1", models.TripPayload{Species: "snapper"}, models.StatusPending)
	require.NoError(t, recRepo.Upsert(ctx, rec))

	fc.mu.Lock()
	fc.blocked = make(chan struct{})
	fc.started = make(chan struct{}, 4)
	fc.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = svc.Sync(ctx, "u1")
	}()

	// wait until the first sweep is mid-delivery
	select {
	case <-fc.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first sweep never started")
	}
	assert.Equal(t, SweepSyncing, svc.Status())

	// second invocation must return immediately without a second delivery
	require.NoError(t, svc.Sync(ctx, "u1"))
	assert.Equal(t, 1, fc.callCount())

	close(fc.blocked)
	wg.Wait()
	assert.Equal(t, SweepIdle, svc.Status())
}

func TestLoad_ReturnsMirrorAndMergesRemote(t *testing.T) {
	fc := newFakeClient()
	svc, recRepo, _ := newService(t, fc, true)
	ctx := context.Background()

	// one local record still awaiting delivery
	local := models.NewTripRecord("u1", models.TripPayload{Species: "snapper"}, models.StatusPending)
	require.NoError(t, recRepo.Upsert(ctx, local))

	snapshot, err := svc.Load(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, snapshot, 1)

	// remote update arrives: one foreign record plus the acknowledged copy
	// of the local one
	fc.mu.Lock()
	onUpdate := fc.onUpdate
	fc.mu.Unlock()
	require.NotNil(t, onUpdate, "Load while online must open a subscription")

	acked := *local
	acked.ServerID = "srv-9"
	acked.Status = models.StatusSynced
	foreign := &models.TripRecord{
		LocalID:   "srv-3",
		ServerID:  "srv-3",
		OwnerID:   "u1",
		CreatedAt: time.Unix(0, 500),
		Payload:   models.TripPayload{Species: "marlin"},
		Status:    models.StatusSynced,
	}
	onUpdate([]*models.TripRecord{&acked, foreign}, "c1")

	all, err := recRepo.GetAllByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, all, 2)

	byLocal := map[string]*models.TripRecord{}
	for _, r := range all {
		byLocal[r.LocalID] = r
	}
	// remote is authoritative for the acknowledged record
	assert.Equal(t, models.StatusSynced, byLocal[local.LocalID].Status)
	assert.Equal(t, "srv-9", byLocal[local.LocalID].ServerID)
	assert.Equal(t, models.StatusSynced, byLocal["srv-3"].Status)
}

func TestLoad_WatchCursorSurvivesRestart(t *testing.T) {
	fc := newFakeClient()
	recRepo, metaRepo := setupRepos(t)
	online := func() bool { return true }
	logger := logging.NewJSONLogger(io.Discard)
	ctx := context.Background()

	svc := NewTripService(fc, recRepo, metaRepo, online, logger)
	_, err := svc.Load(ctx, "u1")
	require.NoError(t, err)

	// first session starts from the beginning and advances the cursor
	fc.mu.Lock()
	assert.Equal(t, "", fc.cursor)
	onUpdate := fc.onUpdate
	fc.mu.Unlock()
	onUpdate(nil, "c7")
	svc.Close()

	raw, err := metaRepo.Get(ctx, watchCursorKey("u1"))
	require.NoError(t, err)
	assert.Equal(t, "c7", string(raw))

	// a new session over the same database resumes where it left off
	svc2 := NewTripService(fc, recRepo, metaRepo, online, logger)
	t.Cleanup(svc2.Close)
	_, err = svc2.Load(ctx, "u1")
	require.NoError(t, err)

	fc.mu.Lock()
	defer fc.mu.Unlock()
	assert.Equal(t, "c7", fc.cursor)
}

func TestLoad_RestoresSweepStatusAcrossRestart(t *testing.T) {
	fc := newFakeClient()
	recRepo, metaRepo := setupRepos(t)
	logger := logging.NewJSONLogger(io.Discard)
	ctx := context.Background()

	// previous session ended with a failed delivery
	b, err := json.Marshal(sweepResult{At: time.Now(), Synced: 2, Failed: 1})
	require.NoError(t, err)
	require.NoError(t, metaRepo.Set(ctx, lastSweepKey("u1"), b))

	svc := NewTripService(fc, recRepo, metaRepo, func() bool { return false }, logger)
	t.Cleanup(svc.Close)

	_, err = svc.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, SweepError, svc.Status())

	// a clean sweep clears the restored badge
	require.NoError(t, svc.Sync(ctx, "u1"))
	assert.Equal(t, SweepIdle, svc.Status())
}

func TestLoad_CleanLastSweepStaysIdle(t *testing.T) {
	fc := newFakeClient()
	recRepo, metaRepo := setupRepos(t)
	ctx := context.Background()

	b, err := json.Marshal(sweepResult{At: time.Now(), Synced: 3, Failed: 0})
	require.NoError(t, err)
	require.NoError(t, metaRepo.Set(ctx, lastSweepKey("u1"), b))

	svc := NewTripService(fc, recRepo, metaRepo, func() bool { return false }, logging.NewJSONLogger(io.Discard))
	t.Cleanup(svc.Close)

	_, err = svc.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, SweepIdle, svc.Status())
}

func TestLoad_OfflineSkipsSubscription(t *testing.T) {
	fc := newFakeClient()
	svc, _, _ := newService(t, fc, false)

	_, err := svc.Load(context.Background(), "u1")
	require.NoError(t, err)

	fc.mu.Lock()
	defer fc.mu.Unlock()
	assert.Nil(t, fc.onUpdate)
}
