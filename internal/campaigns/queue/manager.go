// Package queue runs campaign sends in-process. Each running campaign owns a
// goroutine that walks its recipient list with a fixed inter-message delay.
// The manager's in-memory view is the source of truth for "is this campaign
// actually active right now"; the state synchronizer pushes it to storage.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"inbox_backend/internal/campaigns/repository"
	"inbox_backend/internal/events"
	"inbox_backend/platform/apperr"
	"inbox_backend/platform/logger"
)

// MessageSender delivers a single outbound message.
type MessageSender interface {
	SendMessage(ctx context.Context, phone string, message string) error
}

// Stats are the send counters of one campaign queue.
type Stats struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Progress is the live position of one campaign queue.
type Progress struct {
	CurrentIndex int   `json:"currentIndex"`
	Stats        Stats `json:"stats"`
}

// ActiveQueue is a snapshot of one live campaign queue.
type ActiveQueue struct {
	CampaignID uuid.UUID `json:"campaignId"`
	Status     string    `json:"status"`
	Progress   Progress  `json:"progress"`
}

type campaignQueue struct {
	campaignID uuid.UUID
	status     string
	progress   Progress
	cancel     context.CancelFunc
	done       chan struct{}
}

// Manager is the in-memory registry of running campaign queues.
type Manager struct {
	repo      repository.Repository
	sender    MessageSender
	eventBus  events.Bus
	log       *logger.Logger
	sendDelay time.Duration

	mu     sync.Mutex
	queues map[uuid.UUID]*campaignQueue
}

// NewManager creates a queue manager. sendDelay is the pause between
// consecutive sends of one campaign.
func NewManager(repo repository.Repository, sender MessageSender, eventBus events.Bus, log *logger.Logger, sendDelay time.Duration) *Manager {
	return &Manager{
		repo:      repo,
		sender:    sender,
		eventBus:  eventBus,
		log:       log,
		sendDelay: sendDelay,
		queues:    make(map[uuid.UUID]*campaignQueue),
	}
}

// Start claims the campaign's advisory lock, marks it running, and spawns its
// send loop. Starting a campaign that another process holds the lock for
// returns a conflict. Resuming a paused campaign goes through the same path
// and continues from the persisted current index.
func (m *Manager) Start(ctx context.Context, campaignID uuid.UUID) error {
	campaign, err := m.repo.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if repository.IsTerminal(campaign.Status) {
		return apperr.Conflict("campaign has already finished")
	}

	m.mu.Lock()
	if _, exists := m.queues[campaignID]; exists {
		m.mu.Unlock()
		return apperr.Conflict("campaign is already running")
	}
	m.mu.Unlock()

	won, err := m.repo.AcquireLock(ctx, campaignID, uuid.NewString())
	if err != nil {
		return err
	}
	if !won {
		return apperr.Conflict("campaign is locked by another processor")
	}

	if err := m.repo.SetStatus(ctx, campaignID, repository.StatusRunning); err != nil {
		if clearErr := m.repo.ClearLock(ctx, campaignID); clearErr != nil {
			m.log.Error("failed to release campaign lock", "campaignId", campaignID, "error", clearErr)
		}
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	q := &campaignQueue{
		campaignID: campaignID,
		status:     repository.StatusRunning,
		progress:   Progress{CurrentIndex: campaign.CurrentIndex, Stats: Stats{Sent: campaign.SentCount, Failed: campaign.FailedCount}},
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	m.mu.Lock()
	m.queues[campaignID] = q
	m.mu.Unlock()

	go m.run(runCtx, q, campaign)

	m.publishStatusChange(ctx, campaignID, campaign.Status, repository.StatusRunning, "started")
	return nil
}

func (m *Manager) run(ctx context.Context, q *campaignQueue, campaign repository.Campaign) {
	defer close(q.done)

	recipients, err := m.repo.ListRecipientsFrom(ctx, campaign.ID, campaign.CurrentIndex)
	if err != nil {
		m.log.Error("failed to load campaign recipients", "campaignId", campaign.ID, "error", err)
		m.finish(q, repository.StatusFailed, "recipient load failed")
		return
	}

	for _, rec := range recipients {
		select {
		case <-ctx.Done():
			return
		default:
		}

		outcome := repository.RecipientSent
		if err := m.sender.SendMessage(ctx, rec.Phone, campaign.MessageTemplate); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.log.Warn("campaign send failed", "campaignId", campaign.ID, "recipientId", rec.ID, "error", err)
			outcome = repository.RecipientFailed
		}
		if err := m.repo.MarkRecipient(ctx, rec.ID, outcome); err != nil {
			m.log.Warn("failed to mark campaign recipient", "recipientId", rec.ID, "error", err)
		}

		m.mu.Lock()
		q.progress.CurrentIndex = rec.Position + 1
		if outcome == repository.RecipientSent {
			q.progress.Stats.Sent++
		} else {
			q.progress.Stats.Failed++
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.sendDelay):
		}
	}

	m.finish(q, repository.StatusCompleted, "all recipients processed")
}

// finish persists a terminal status, clears the lock, and drops the queue.
// Progress is read from the queue itself rather than the registry, so a
// concurrent Pause winning the map delete cannot make this persist a
// zero-value snapshot.
func (m *Manager) finish(q *campaignQueue, status, reason string) {
	ctx := context.Background()
	campaignID := q.campaignID

	m.mu.Lock()
	progress := q.progress
	if cur, ok := m.queues[campaignID]; ok && cur == q {
		delete(m.queues, campaignID)
	}
	m.mu.Unlock()

	if err := m.repo.SaveSnapshot(ctx, campaignID, status, progress.CurrentIndex, progress.Stats.Sent, progress.Stats.Failed); err != nil {
		m.log.Error("failed to persist campaign outcome", "campaignId", campaignID, "error", err)
	}
	if err := m.repo.ClearLock(ctx, campaignID); err != nil {
		m.log.Error("failed to release campaign lock", "campaignId", campaignID, "error", err)
	}

	m.publishStatusChange(ctx, campaignID, repository.StatusRunning, status, reason)
}

// Pause stops a live queue, persists its progress as paused, and releases the
// lock. Pausing a campaign with no live queue is a not-found conflict.
func (m *Manager) Pause(ctx context.Context, campaignID uuid.UUID) error {
	m.mu.Lock()
	q, ok := m.queues[campaignID]
	if ok {
		delete(m.queues, campaignID)
	}
	m.mu.Unlock()
	if !ok {
		return apperr.Conflict("campaign is not running")
	}

	q.cancel()
	<-q.done

	m.mu.Lock()
	progress := q.progress
	m.mu.Unlock()

	if err := m.repo.SaveSnapshot(ctx, campaignID, repository.StatusPaused, progress.CurrentIndex, progress.Stats.Sent, progress.Stats.Failed); err != nil {
		return err
	}
	if err := m.repo.ClearLock(ctx, campaignID); err != nil {
		return err
	}

	m.publishStatusChange(ctx, campaignID, repository.StatusRunning, repository.StatusPaused, "paused")
	return nil
}

// Cancel terminates a campaign. Works both on live queues and on paused
// campaigns with no in-memory state.
func (m *Manager) Cancel(ctx context.Context, campaignID uuid.UUID) error {
	m.mu.Lock()
	q, ok := m.queues[campaignID]
	if ok {
		delete(m.queues, campaignID)
	}
	m.mu.Unlock()

	previous := repository.StatusPaused
	if ok {
		previous = repository.StatusRunning
		q.cancel()
		<-q.done

		m.mu.Lock()
		progress := q.progress
		m.mu.Unlock()

		if err := m.repo.SaveSnapshot(ctx, campaignID, repository.StatusCancelled, progress.CurrentIndex, progress.Stats.Sent, progress.Stats.Failed); err != nil {
			return err
		}
	} else {
		campaign, err := m.repo.GetByID(ctx, campaignID)
		if err != nil {
			return err
		}
		if repository.IsTerminal(campaign.Status) {
			return apperr.Conflict("campaign has already finished")
		}
		previous = campaign.Status
		if err := m.repo.SetStatus(ctx, campaignID, repository.StatusCancelled); err != nil {
			return err
		}
	}

	if err := m.repo.ClearLock(ctx, campaignID); err != nil {
		return err
	}

	m.publishStatusChange(ctx, campaignID, previous, repository.StatusCancelled, "cancelled")
	return nil
}

// ActiveQueues snapshots every live queue.
func (m *Manager) ActiveQueues() []ActiveQueue {
	m.mu.Lock()
	defer m.mu.Unlock()

	queues := make([]ActiveQueue, 0, len(m.queues))
	for _, q := range m.queues {
		queues = append(queues, ActiveQueue{CampaignID: q.campaignID, Status: q.status, Progress: q.progress})
	}
	return queues
}

// ActiveQueue snapshots one live queue, or nil when the campaign has none.
func (m *Manager) ActiveQueue(campaignID uuid.UUID) *ActiveQueue {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[campaignID]
	if !ok {
		return nil
	}
	return &ActiveQueue{CampaignID: q.campaignID, Status: q.status, Progress: q.progress}
}

// Shutdown stops every live queue without changing persisted status; crash
// recovery on the next start handles the rest.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	queues := make([]*campaignQueue, 0, len(m.queues))
	for _, q := range m.queues {
		queues = append(queues, q)
	}
	m.queues = make(map[uuid.UUID]*campaignQueue)
	m.mu.Unlock()

	for _, q := range queues {
		q.cancel()
		<-q.done
	}
}

func (m *Manager) publishStatusChange(ctx context.Context, campaignID uuid.UUID, previous, next, reason string) {
	if m.eventBus == nil {
		return
	}
	m.eventBus.Publish(ctx, events.CampaignStatusChanged{
		BaseEvent:      events.NewBaseEvent(),
		CampaignID:     campaignID,
		PreviousStatus: previous,
		NewStatus:      next,
		Reason:         reason,
	})
}
