// Package services orchestrates the trip-log synchronizer: local-first writes,
// remote delivery, and the sweep that drains unsynced records after
// connectivity returns.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/tightlines/internal/client/client"
	"github.com/dmitrijs2005/tightlines/internal/client/models"
	"github.com/dmitrijs2005/tightlines/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/tightlines/internal/client/repositories/records"
	"github.com/dmitrijs2005/tightlines/internal/logging"
	"github.com/sethvargo/go-retry"
)

// Collection is the remote store collection holding trip logs.
const Collection = "trips"

// SweepStatus is the aggregate indicator shown by the UI badge.
type SweepStatus string

const (
	SweepIdle    SweepStatus = "idle"
	SweepSyncing SweepStatus = "syncing"
	// SweepError means at least one record failed during the most recent
	// sweep and stays pending for the next trigger.
	SweepError SweepStatus = "error"
)

const (
	retryBase        = 200 * time.Millisecond
	retryMaxAttempts = 3
)

// TripService is the offline log synchronizer. Local durable writes always
// succeed from the caller's point of view; remote failures only ever move
// sync statuses, never surface as application errors.
type TripService interface {
	// Load returns the local mirror immediately and, when online, opens a
	// live remote subscription whose updates are merged into the mirror.
	Load(ctx context.Context, ownerID string) ([]*models.TripRecord, error)

	// Add authors a new record. The record is persisted locally before Add
	// returns, so a read-after-write is always consistent regardless of
	// network outcome.
	Add(ctx context.Context, ownerID string, payload models.TripPayload) (*models.TripRecord, error)

	// Sync sweeps every pending/offline record, attempting remote delivery
	// in turn. Overlapping invocations are collapsed into one sweep.
	Sync(ctx context.Context, ownerID string) error

	// Status reports the aggregate state of the most recent sweep.
	Status() SweepStatus

	// Counts returns the owner's record counts keyed by sync status.
	Counts(ctx context.Context, ownerID string) (map[models.SyncStatus]int, error)

	// Close tears down the remote subscription, if any.
	Close()
}

type tripService struct {
	client     client.Client
	recordRepo records.Repository
	metaRepo   metadata.Repository
	logger     logging.Logger
	online     func() bool

	mu          sync.Mutex
	status      SweepStatus
	restored    bool
	sweeping    bool
	unsubscribe func()
}

// NewTripService wires the synchronizer. online reports current connectivity
// (typically connectivity.Watcher.State().Online).
func NewTripService(c client.Client, recordRepo records.Repository, metaRepo metadata.Repository, online func() bool, logger logging.Logger) TripService {
	return &tripService{
		client:     c,
		recordRepo: recordRepo,
		metaRepo:   metaRepo,
		logger:     logger,
		online:     online,
		status:     SweepIdle,
	}
}

func (s *tripService) Load(ctx context.Context, ownerID string) ([]*models.TripRecord, error) {
	s.restoreStatus(ctx, ownerID)

	snapshot, err := s.recordRepo.GetAllByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("error reading local mirror: %w", err)
	}

	if s.online() {
		s.subscribe(ctx, ownerID)
	}

	return snapshot, nil
}

// restoreStatus seeds the sweep indicator from the persisted result of the
// previous session's last sweep, so an error badge survives a restart until
// the next sweep clears it. Runs once per process.
func (s *tripService) restoreStatus(ctx context.Context, ownerID string) {
	s.mu.Lock()
	if s.restored {
		s.mu.Unlock()
		return
	}
	s.restored = true
	s.mu.Unlock()

	raw, err := s.metaRepo.Get(ctx, lastSweepKey(ownerID))
	if err != nil {
		s.logger.Warn(ctx, "error reading last sweep result", "error", err.Error())
		return
	}
	if raw == nil {
		return
	}

	var res sweepResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return
	}
	if res.Failed == 0 {
		return
	}

	s.mu.Lock()
	if !s.sweeping && s.status == SweepIdle {
		s.status = SweepError
	}
	s.mu.Unlock()
}

// subscribe opens the remote watch once; later Load calls reuse it. The watch
// resumes from the persisted cursor and every delivered batch advances it.
func (s *tripService) subscribe(ctx context.Context, ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubscribe != nil {
		return
	}

	q := client.Query{OwnerID: ownerID, OrderBy: "created_at"}
	unsub, err := s.client.Subscribe(ctx, Collection, q, s.loadCursor(ctx, ownerID), func(remote []*models.TripRecord, cursor string) {
		ctx := context.Background()
		s.merge(ctx, ownerID, remote)
		s.saveCursor(ctx, ownerID, cursor)
	})
	if err != nil {
		// Best effort; the next Load while online tries again.
		s.logger.Warn(ctx, "remote subscription failed", "error", err.Error())
		return
	}
	s.unsubscribe = unsub
}

func watchCursorKey(ownerID string) string {
	return "sync:" + ownerID + ":watch_cursor"
}

func (s *tripService) loadCursor(ctx context.Context, ownerID string) string {
	b, err := s.metaRepo.Get(ctx, watchCursorKey(ownerID))
	if err != nil {
		s.logger.Warn(ctx, "error reading watch cursor", "error", err.Error())
		return ""
	}
	return string(b)
}

func (s *tripService) saveCursor(ctx context.Context, ownerID, cursor string) {
	if cursor == "" {
		return
	}
	if err := s.metaRepo.Set(ctx, watchCursorKey(ownerID), []byte(cursor)); err != nil {
		s.logger.Warn(ctx, "error persisting watch cursor", "error", err.Error())
	}
}

// merge folds a remote snapshot into the local mirror. Remote records are
// authoritative for anything they cover; local records still awaiting
// delivery have no remote counterpart and are left untouched.
func (s *tripService) merge(ctx context.Context, ownerID string, remote []*models.TripRecord) {
	if err := s.recordRepo.UpsertAll(ctx, remote); err != nil {
		s.logger.Error(ctx, "error merging remote records", "owner", ownerID, "error", err.Error())
		return
	}
	s.logger.Debug(ctx, "merged remote snapshot", "owner", ownerID, "records", len(remote))
}

func (s *tripService) Add(ctx context.Context, ownerID string, payload models.TripPayload) (*models.TripRecord, error) {
	rec := models.NewTripRecord(ownerID, payload, models.StatusOffline)

	// Durable local write first: the caller's read-after-write never depends
	// on the network.
	if err := s.recordRepo.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("error saving record: %w", err)
	}

	if !s.online() {
		return rec, nil
	}

	serverID, err := s.client.AddRecord(ctx, Collection, rec)
	if err != nil {
		// Stays offline; picked up by the next sweep.
		s.logger.Warn(ctx, "remote write failed, record queued", "local_id", rec.LocalID, "error", err.Error())
		return rec, nil
	}

	rec.ServerID = serverID
	rec.Status = models.StatusSynced
	if err := s.recordRepo.MarkSynced(ctx, rec.LocalID, serverID); err != nil {
		return nil, fmt.Errorf("error updating record status: %w", err)
	}

	return rec, nil
}

func (s *tripService) Sync(ctx context.Context, ownerID string) error {
	s.mu.Lock()
	if s.sweeping {
		s.mu.Unlock()
		s.logger.Debug(ctx, "sweep already in flight, skipping")
		return nil
	}
	s.sweeping = true
	s.status = SweepSyncing
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sweeping = false
		s.mu.Unlock()
	}()

	unsynced, err := s.recordRepo.GetUnsynced(ctx, ownerID)
	if err != nil {
		s.setStatus(SweepError)
		return fmt.Errorf("error reading unsynced records: %w", err)
	}

	var synced, failed int
	for _, rec := range unsynced {
		if err := s.deliver(ctx, rec); err != nil {
			failed++
			// A failed attempt moves offline records to pending so the badge
			// reflects that delivery has been tried.
			if rec.Status != models.StatusPending {
				rec.Status = models.StatusPending
				if uerr := s.recordRepo.Upsert(ctx, rec); uerr != nil {
					s.logger.Error(ctx, "error updating record status", "local_id", rec.LocalID, "error", uerr.Error())
				}
			}
			s.logger.Warn(ctx, "record delivery failed", "local_id", rec.LocalID, "error", err.Error())
			continue
		}
		synced++
	}

	if failed > 0 {
		s.setStatus(SweepError)
	} else {
		s.setStatus(SweepIdle)
	}

	s.recordSweepResult(ctx, ownerID, synced, failed)
	s.logger.Info(ctx, "sweep finished", "owner", ownerID, "synced", synced, "failed", failed)
	return nil
}

// deliver attempts one record's remote write with bounded backoff. Transient
// store unavailability is retried within the attempt; anything still failing
// is left for the next sweep.
func (s *tripService) deliver(ctx context.Context, rec *models.TripRecord) error {
	backoff := retry.WithMaxRetries(retryMaxAttempts-1, retry.NewExponential(retryBase))

	var serverID string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		id, err := s.client.AddRecord(ctx, Collection, rec)
		if err != nil {
			return retry.RetryableError(err)
		}
		serverID = id
		return nil
	})
	if err != nil {
		return err
	}

	return s.recordRepo.MarkSynced(ctx, rec.LocalID, serverID)
}

func (s *tripService) Status() SweepStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *tripService) setStatus(st SweepStatus) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func (s *tripService) Counts(ctx context.Context, ownerID string) (map[models.SyncStatus]int, error) {
	return s.recordRepo.CountByStatus(ctx, ownerID)
}

type sweepResult struct {
	At     time.Time `json:"at"`
	Synced int       `json:"synced"`
	Failed int       `json:"failed"`
}

func lastSweepKey(ownerID string) string {
	return "sync:" + ownerID + ":last_sweep"
}

func (s *tripService) recordSweepResult(ctx context.Context, ownerID string, synced, failed int) {
	b, err := json.Marshal(sweepResult{At: time.Now(), Synced: synced, Failed: failed})
	if err != nil {
		return
	}
	if err := s.metaRepo.Set(ctx, lastSweepKey(ownerID), b); err != nil {
		s.logger.Warn(ctx, "error persisting sweep result", "error", err.Error())
	}
}

func (s *tripService) Close() {
	s.mu.Lock()
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}
