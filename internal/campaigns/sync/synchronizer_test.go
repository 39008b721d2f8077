package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"inbox_backend/internal/campaigns/queue"
	"inbox_backend/internal/campaigns/repository"
	"inbox_backend/platform/logger"
)

const (
	msgUnexpectedError  = "unexpected error: %v"
	fmtExpectedStatus   = "expected status %q, got %q"
	fmtExpectedFindings = "expected %d findings, got %d"
)

type fakeStore struct {
	mu        stdsync.Mutex
	campaigns map[uuid.UUID]*repository.Campaign

	failSnapshotFor map[uuid.UUID]error
	snapshotCalls   []uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		campaigns:       make(map[uuid.UUID]*repository.Campaign),
		failSnapshotFor: make(map[uuid.UUID]error),
	}
}

func (f *fakeStore) add(c repository.Campaign) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	f.campaigns[c.ID] = &c
	return c.ID
}

func (f *fakeStore) ListActiveOrLocked(context.Context) ([]repository.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Campaign
	for _, c := range f.campaigns {
		if c.Status == repository.StatusRunning || c.ProcessingLock != nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeStore) SaveSnapshot(_ context.Context, id uuid.UUID, status string, currentIndex, sent, failed int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failSnapshotFor[id]; err != nil {
		return err
	}
	f.snapshotCalls = append(f.snapshotCalls, id)
	c, ok := f.campaigns[id]
	if !ok {
		return errors.New("campaign not found")
	}
	c.Status = status
	c.CurrentIndex = currentIndex
	c.SentCount = sent
	c.FailedCount = failed
	return nil
}

func (f *fakeStore) SetStatus(_ context.Context, id uuid.UUID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return errors.New("campaign not found")
	}
	c.Status = status
	return nil
}

func (f *fakeStore) ClearLock(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return errors.New("campaign not found")
	}
	c.ProcessingLock = nil
	c.LockAcquiredAt = nil
	return nil
}

func (f *fakeStore) PauseAndClearLock(ctx context.Context, id uuid.UUID) error {
	if err := f.SetStatus(ctx, id, repository.StatusPaused); err != nil {
		return err
	}
	return f.ClearLock(ctx, id)
}

type fakeQueues struct {
	queues map[uuid.UUID]queue.ActiveQueue
}

func newFakeQueues() *fakeQueues {
	return &fakeQueues{queues: make(map[uuid.UUID]queue.ActiveQueue)}
}

func (f *fakeQueues) ActiveQueues() []queue.ActiveQueue {
	out := make([]queue.ActiveQueue, 0, len(f.queues))
	for _, q := range f.queues {
		out = append(out, q)
	}
	return out
}

func (f *fakeQueues) ActiveQueue(id uuid.UUID) *queue.ActiveQueue {
	q, ok := f.queues[id]
	if !ok {
		return nil
	}
	return &q
}

func newTestSynchronizer(store Store, queues ActiveQueueProvider) *Synchronizer {
	return New(store, queues, logger.New("test"), time.Minute, 10*time.Minute)
}

func lockedCampaign(status string, lockAge time.Duration) repository.Campaign {
	token := uuid.NewString()
	acquired := time.Now().Add(-lockAge)
	return repository.Campaign{
		Name:           "campaign",
		Status:         status,
		ProcessingLock: &token,
		LockAcquiredAt: &acquired,
	}
}

func TestRestoreRunningCampaignsDemotesAndClearsLocks(t *testing.T) {
	store := newFakeStore()
	runningID := store.add(lockedCampaign(repository.StatusRunning, time.Minute))
	lockedPausedID := store.add(lockedCampaign(repository.StatusPaused, time.Minute))
	completedID := store.add(lockedCampaign(repository.StatusCompleted, time.Minute))

	s := newTestSynchronizer(store, newFakeQueues())
	restored, err := s.RestoreRunningCampaigns(context.Background())
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}

	if len(restored) != 2 {
		t.Fatalf("expected 2 restored campaigns, got %d", len(restored))
	}
	for _, id := range []uuid.UUID{runningID, lockedPausedID} {
		c := store.campaigns[id]
		if c.Status != repository.StatusPaused {
			t.Fatalf(fmtExpectedStatus, repository.StatusPaused, c.Status)
		}
		if c.ProcessingLock != nil || c.LockAcquiredAt != nil {
			t.Fatal("expected lock fields to be cleared")
		}
	}

	// Terminal campaigns keep their status even when a lock lingers.
	if store.campaigns[completedID].Status != repository.StatusCompleted {
		t.Fatal("expected completed campaign to be left alone")
	}
}

func TestRestoreRunningCampaignsEmptyIsNoop(t *testing.T) {
	s := newTestSynchronizer(newFakeStore(), newFakeQueues())
	restored, err := s.RestoreRunningCampaigns(context.Background())
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if len(restored) != 0 {
		t.Fatalf("expected no restored campaigns, got %d", len(restored))
	}
}

func TestSyncStatePersistsQueueProgress(t *testing.T) {
	store := newFakeStore()
	queues := newFakeQueues()

	id := store.add(lockedCampaign(repository.StatusRunning, time.Minute))
	queues.queues[id] = queue.ActiveQueue{
		CampaignID: id,
		Status:     repository.StatusRunning,
		Progress:   queue.Progress{CurrentIndex: 7, Stats: queue.Stats{Sent: 5, Failed: 2}},
	}

	s := newTestSynchronizer(store, queues)
	s.SyncState(context.Background())

	c := store.campaigns[id]
	if c.CurrentIndex != 7 || c.SentCount != 5 || c.FailedCount != 2 {
		t.Fatalf("expected progress 7/5/2, got %d/%d/%d", c.CurrentIndex, c.SentCount, c.FailedCount)
	}
}

func TestSyncStateIsolatesFailingCampaign(t *testing.T) {
	store := newFakeStore()
	queues := newFakeQueues()

	badID := store.add(lockedCampaign(repository.StatusRunning, time.Minute))
	goodID := store.add(lockedCampaign(repository.StatusRunning, time.Minute))
	store.failSnapshotFor[badID] = errors.New("write failed")

	for _, id := range []uuid.UUID{badID, goodID} {
		queues.queues[id] = queue.ActiveQueue{
			CampaignID: id,
			Status:     repository.StatusRunning,
			Progress:   queue.Progress{CurrentIndex: 3, Stats: queue.Stats{Sent: 3}},
		}
	}

	s := newTestSynchronizer(store, queues)
	s.SyncState(context.Background())

	if store.campaigns[goodID].CurrentIndex != 3 {
		t.Fatal("expected the healthy campaign to be synced despite the failing one")
	}
}

func TestDetectInconsistenciesKinds(t *testing.T) {
	store := newFakeStore()
	queues := newFakeQueues()

	// Running in storage, nothing in memory, lock 20 minutes old: both
	// RUNNING_NOT_IN_MEMORY and STALE_LOCK.
	orphanID := store.add(lockedCampaign(repository.StatusRunning, 20*time.Minute))

	// Paused in storage but live in memory: STATUS_MISMATCH.
	mismatchID := store.add(lockedCampaign(repository.StatusPaused, time.Minute))
	queues.queues[mismatchID] = queue.ActiveQueue{
		CampaignID: mismatchID,
		Status:     repository.StatusRunning,
	}

	s := newTestSynchronizer(store, queues)
	findings, err := s.DetectInconsistencies(context.Background())
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if len(findings) != 3 {
		t.Fatalf(fmtExpectedFindings, 3, len(findings))
	}

	kinds := make(map[string]uuid.UUID)
	for _, f := range findings {
		kinds[f.Kind] = f.CampaignID
	}
	if kinds[KindRunningNotInMemory] != orphanID {
		t.Fatal("expected RUNNING_NOT_IN_MEMORY for the orphaned campaign")
	}
	if kinds[KindStaleLock] != orphanID {
		t.Fatal("expected STALE_LOCK for the orphaned campaign")
	}
	if kinds[KindStatusMismatch] != mismatchID {
		t.Fatal("expected STATUS_MISMATCH for the live campaign")
	}
}

func TestDetectCorrectDetectIsClean(t *testing.T) {
	store := newFakeStore()
	queues := newFakeQueues()
	store.add(lockedCampaign(repository.StatusRunning, 20*time.Minute))

	s := newTestSynchronizer(store, queues)
	ctx := context.Background()

	findings, err := s.DetectInconsistencies(ctx)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	if len(findings) != 2 {
		t.Fatalf(fmtExpectedFindings, 2, len(findings))
	}

	if corrected := s.AutoCorrect(ctx, findings); corrected != 2 {
		t.Fatalf("expected 2 corrections, got %d", corrected)
	}

	again, err := s.DetectInconsistencies(ctx)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	for _, f := range again {
		if f.Kind == KindStaleLock || f.Kind == KindRunningNotInMemory {
			t.Fatalf("expected no %s finding after correction", f.Kind)
		}
	}
}

func TestAutoCorrectConcreteStaleScenario(t *testing.T) {
	store := newFakeStore()
	id := store.add(lockedCampaign(repository.StatusRunning, 20*time.Minute))

	s := newTestSynchronizer(store, newFakeQueues())
	ctx := context.Background()

	findings, err := s.DetectInconsistencies(ctx)
	if err != nil {
		t.Fatalf(msgUnexpectedError, err)
	}
	s.AutoCorrect(ctx, findings)

	c := store.campaigns[id]
	if c.Status != repository.StatusPaused {
		t.Fatalf(fmtExpectedStatus, repository.StatusPaused, c.Status)
	}
	if c.ProcessingLock != nil {
		t.Fatal("expected lock to be cleared")
	}
}

func TestAutoCorrectSkipsUnknownKind(t *testing.T) {
	s := newTestSynchronizer(newFakeStore(), newFakeQueues())
	findings := []Inconsistency{{Kind: "SOMETHING_ELSE", CampaignID: uuid.New()}}
	if corrected := s.AutoCorrect(context.Background(), findings); corrected != 0 {
		t.Fatalf("expected 0 corrections for unknown kind, got %d", corrected)
	}
}

func TestAutoCorrectStatusMismatchUsesMemoryStatus(t *testing.T) {
	store := newFakeStore()
	id := store.add(lockedCampaign(repository.StatusPaused, time.Minute))

	s := newTestSynchronizer(store, newFakeQueues())
	corrected := s.AutoCorrect(context.Background(), []Inconsistency{{
		Kind:            KindStatusMismatch,
		CampaignID:      id,
		PersistedStatus: repository.StatusPaused,
		MemoryStatus:    repository.StatusRunning,
	}})
	if corrected != 1 {
		t.Fatalf("expected 1 correction, got %d", corrected)
	}
	if store.campaigns[id].Status != repository.StatusRunning {
		t.Fatalf(fmtExpectedStatus, repository.StatusRunning, store.campaigns[id].Status)
	}
}

func TestStartSyncStopSyncIdempotent(t *testing.T) {
	s := newTestSynchronizer(newFakeStore(), newFakeQueues())
	ctx := context.Background()

	s.StartSync(ctx)
	s.StartSync(ctx) // no-op
	s.StopSync()
	s.StopSync() // no-op
}

func TestStartSyncRunsImmediatePass(t *testing.T) {
	store := newFakeStore()
	queues := newFakeQueues()
	id := store.add(lockedCampaign(repository.StatusRunning, time.Minute))
	queues.queues[id] = queue.ActiveQueue{
		CampaignID: id,
		Status:     repository.StatusRunning,
		Progress:   queue.Progress{CurrentIndex: 1, Stats: queue.Stats{Sent: 1}},
	}

	s := newTestSynchronizer(store, queues)
	s.StartSync(context.Background())
	defer s.StopSync()

	if len(store.snapshotCalls) == 0 {
		t.Fatal("expected an immediate sync pass on start")
	}
}
