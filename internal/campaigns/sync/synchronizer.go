// Package sync reconciles persisted campaign state with the queue manager's
// in-memory view. It restores campaigns after a crash, pushes live progress to
// storage on a timer, and detects and corrects drift.
package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"inbox_backend/internal/campaigns/queue"
	"inbox_backend/internal/campaigns/repository"
	"inbox_backend/platform/logger"
)

const (
	defaultSyncInterval   = 30 * time.Second
	defaultLockStaleAfter = 10 * time.Minute
)

// Inconsistency kinds.
const (
	KindRunningNotInMemory = "RUNNING_NOT_IN_MEMORY"
	KindStatusMismatch     = "STATUS_MISMATCH"
	KindStaleLock          = "STALE_LOCK"
)

// Inconsistency is one detected divergence between storage and memory. Each
// finding carries everything needed to correct it without another lookup.
type Inconsistency struct {
	Kind            string     `json:"kind"`
	CampaignID      uuid.UUID  `json:"campaignId"`
	Name            string     `json:"name"`
	PersistedStatus string     `json:"persistedStatus"`
	MemoryStatus    string     `json:"memoryStatus,omitempty"`
	LockAcquiredAt  *time.Time `json:"lockAcquiredAt,omitempty"`
}

// RestoredCampaign records one campaign demoted during crash recovery.
type RestoredCampaign struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	PreviousStatus string    `json:"previousStatus"`
	NewStatus      string    `json:"newStatus"`
}

// ActiveQueueProvider is the queue manager's read surface. Memory is
// authoritative for actively running campaigns.
type ActiveQueueProvider interface {
	ActiveQueues() []queue.ActiveQueue
	ActiveQueue(campaignID uuid.UUID) *queue.ActiveQueue
}

// Store is the storage surface the synchronizer needs. Every write is an
// overwrite or a null-out, so re-running a pass after partial failure is safe.
type Store interface {
	ListActiveOrLocked(ctx context.Context) ([]repository.Campaign, error)
	SaveSnapshot(ctx context.Context, id uuid.UUID, status string, currentIndex, sent, failed int) error
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
	ClearLock(ctx context.Context, id uuid.UUID) error
	PauseAndClearLock(ctx context.Context, id uuid.UUID) error
}

// Synchronizer keeps persisted campaign status consistent with the queue
// manager and recovers from process restarts.
type Synchronizer struct {
	store          Store
	queues         ActiveQueueProvider
	log            *logger.Logger
	interval       time.Duration
	lockStaleAfter time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a synchronizer. Non-positive durations fall back to the
// defaults (30s interval, 10m lock staleness).
func New(store Store, queues ActiveQueueProvider, log *logger.Logger, interval, lockStaleAfter time.Duration) *Synchronizer {
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	if lockStaleAfter <= 0 {
		lockStaleAfter = defaultLockStaleAfter
	}

	return &Synchronizer{
		store:          store,
		queues:         queues,
		log:            log,
		interval:       interval,
		lockStaleAfter: lockStaleAfter,
	}
}

// StartSync runs one pass immediately, then keeps a background ticker loop
// going until StopSync. Calling it while already running is a no-op.
func (s *Synchronizer) StartSync(ctx context.Context) {
	if s.cancel != nil {
		s.log.Warn("state sync already running, ignoring start")
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.SyncState(loopCtx)

	go s.loop(loopCtx)
	s.log.Info("state sync started", "interval", s.interval.String())
}

// StopSync halts the background loop and waits for it to exit. Calling it
// while not running is a no-op.
func (s *Synchronizer) StopSync() {
	if s.cancel == nil {
		s.log.Warn("state sync not running, ignoring stop")
		return
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	s.log.Info("state sync stopped")
}

func (s *Synchronizer) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SyncState(ctx)
		}
	}
}

// SyncState pushes every live queue's progress and status to storage. A
// failing campaign is logged and skipped; it never aborts the pass.
func (s *Synchronizer) SyncState(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, q := range s.queues.ActiveQueues() {
		q := q
		g.Go(func() error {
			err := s.store.SaveSnapshot(gctx, q.CampaignID, q.Status,
				q.Progress.CurrentIndex, q.Progress.Stats.Sent, q.Progress.Stats.Failed)
			if err != nil {
				s.log.Warn("failed to sync campaign state", "campaignId", q.CampaignID, "error", err)
			}
			return nil
		})
	}

	_ = g.Wait()
}

// RestoreRunningCampaigns demotes campaigns left mid-flight by a crash. A
// campaign qualifies when it is persisted as running, or when it holds a lock
// without having reached a terminal status. Each one is set to paused with its
// lock cleared. Run once at startup, before the queue manager accepts work.
func (s *Synchronizer) RestoreRunningCampaigns(ctx context.Context) ([]RestoredCampaign, error) {
	candidates, err := s.store.ListActiveOrLocked(ctx)
	if err != nil {
		return nil, err
	}

	var restored []RestoredCampaign
	for _, c := range candidates {
		if c.Status != repository.StatusRunning &&
			(c.ProcessingLock == nil || repository.IsTerminal(c.Status)) {
			continue
		}

		if err := s.store.PauseAndClearLock(ctx, c.ID); err != nil {
			s.log.Error("failed to restore campaign", "campaignId", c.ID, "error", err)
			continue
		}

		restored = append(restored, RestoredCampaign{
			ID:             c.ID,
			Name:           c.Name,
			PreviousStatus: c.Status,
			NewStatus:      repository.StatusPaused,
		})
		s.log.Info("restored interrupted campaign",
			"campaignId", c.ID, "name", c.Name, "previousStatus", c.Status)
	}

	return restored, nil
}

// DetectInconsistencies is a read-only diagnostic pass over storage and the
// queue manager's view.
func (s *Synchronizer) DetectInconsistencies(ctx context.Context) ([]Inconsistency, error) {
	campaigns, err := s.store.ListActiveOrLocked(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var findings []Inconsistency
	for _, c := range campaigns {
		active := s.queues.ActiveQueue(c.ID)

		if c.Status == repository.StatusRunning && active == nil {
			findings = append(findings, Inconsistency{
				Kind:            KindRunningNotInMemory,
				CampaignID:      c.ID,
				Name:            c.Name,
				PersistedStatus: c.Status,
			})
			s.log.ReconcilerDrift(KindRunningNotInMemory, c.ID.String(), "no live queue for running campaign")
		}

		if active != nil && active.Status != c.Status {
			findings = append(findings, Inconsistency{
				Kind:            KindStatusMismatch,
				CampaignID:      c.ID,
				Name:            c.Name,
				PersistedStatus: c.Status,
				MemoryStatus:    active.Status,
			})
			s.log.ReconcilerDrift(KindStatusMismatch, c.ID.String(),
				"persisted "+c.Status+" vs in-memory "+active.Status)
		}

		if c.ProcessingLock != nil && c.LockAcquiredAt != nil &&
			now.Sub(*c.LockAcquiredAt) > s.lockStaleAfter {
			findings = append(findings, Inconsistency{
				Kind:            KindStaleLock,
				CampaignID:      c.ID,
				Name:            c.Name,
				PersistedStatus: c.Status,
				LockAcquiredAt:  c.LockAcquiredAt,
			})
			s.log.ReconcilerDrift(KindStaleLock, c.ID.String(), "lock held since "+c.LockAcquiredAt.Format(time.RFC3339))
		}
	}

	return findings, nil
}

// AutoCorrect applies the suggested fix for each finding. Unknown kinds are
// logged and skipped; per-finding failures do not abort the rest. Returns the
// number of findings corrected.
func (s *Synchronizer) AutoCorrect(ctx context.Context, findings []Inconsistency) int {
	corrected := 0
	for _, f := range findings {
		var err error
		switch f.Kind {
		case KindRunningNotInMemory:
			err = s.store.SetStatus(ctx, f.CampaignID, repository.StatusPaused)
		case KindStatusMismatch:
			err = s.store.SetStatus(ctx, f.CampaignID, f.MemoryStatus)
		case KindStaleLock:
			err = s.store.ClearLock(ctx, f.CampaignID)
		default:
			s.log.Warn("unknown inconsistency kind, skipping", "kind", f.Kind, "campaignId", f.CampaignID)
			continue
		}

		if err != nil {
			s.log.Error("failed to correct inconsistency",
				"kind", f.Kind, "campaignId", f.CampaignID, "error", err)
			continue
		}
		corrected++
	}
	return corrected
}
