package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"inbox_backend/internal/campaigns/queue"
	"inbox_backend/internal/campaigns/repository"
	"inbox_backend/internal/campaigns/transport"
	"inbox_backend/platform/apperr"
	"inbox_backend/platform/logger"
	"inbox_backend/platform/phone"
)

// StartScheduler enqueues a delayed campaign start. Nil when the process runs
// without a task queue.
type StartScheduler interface {
	ScheduleCampaignStart(ctx context.Context, campaignID uuid.UUID, at time.Time) error
}

// Service holds campaign business logic. Send execution lives in the queue
// manager; this service owns CRUD and lifecycle orchestration.
type Service struct {
	repo      repository.Repository
	queues    *queue.Manager
	scheduler StartScheduler
	log       *logger.Logger
}

// New creates a campaigns service.
func New(repo repository.Repository, queues *queue.Manager, scheduler StartScheduler, log *logger.Logger) *Service {
	return &Service{repo: repo, queues: queues, scheduler: scheduler, log: log}
}

// Create stores a campaign with its recipient list. A future ScheduledAt gets
// a delayed start task enqueued; without one the campaign stays a draft until
// started explicitly.
func (s *Service) Create(ctx context.Context, req transport.CreateCampaignRequest) (repository.Campaign, error) {
	status := repository.StatusDraft
	if req.ScheduledAt != nil {
		if req.ScheduledAt.Before(time.Now()) {
			return repository.Campaign{}, apperr.Validation("scheduledAt must be in the future")
		}
		if s.scheduler == nil {
			return repository.Campaign{}, apperr.Validation("scheduling is not available")
		}
		status = repository.StatusScheduled
	}

	campaign, err := s.repo.Create(ctx, repository.Campaign{
		ID:              uuid.New(),
		InboxID:         req.InboxID,
		Name:            req.Name,
		MessageTemplate: req.MessageTemplate,
		Status:          status,
		ScheduledAt:     req.ScheduledAt,
	})
	if err != nil {
		return repository.Campaign{}, err
	}

	recipients := make([]repository.Recipient, 0, len(req.Recipients))
	for i, in := range req.Recipients {
		recipients = append(recipients, repository.Recipient{
			ID:       uuid.New(),
			Phone:    phone.NormalizeE164(in.Phone),
			Name:     in.Name,
			Position: i,
		})
	}
	if err := s.repo.AddRecipients(ctx, campaign.ID, recipients); err != nil {
		return repository.Campaign{}, err
	}

	if campaign.Status == repository.StatusScheduled {
		if err := s.scheduler.ScheduleCampaignStart(ctx, campaign.ID, *req.ScheduledAt); err != nil {
			return repository.Campaign{}, err
		}
		s.log.Info("campaign scheduled", "campaignId", campaign.ID, "scheduledAt", req.ScheduledAt)
	}

	return campaign, nil
}

// GetByID returns a campaign with its live queue snapshot when the queue
// manager is running it.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (transport.CampaignResponse, error) {
	campaign, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return transport.CampaignResponse{}, err
	}
	return transport.CampaignResponse{
		Campaign: campaign,
		Queue:    s.queues.ActiveQueue(id),
	}, nil
}

// List returns all campaigns.
func (s *Service) List(ctx context.Context) ([]repository.Campaign, error) {
	return s.repo.List(ctx)
}

// Start begins (or resumes) sending a campaign.
func (s *Service) Start(ctx context.Context, id uuid.UUID) error {
	return s.queues.Start(ctx, id)
}

// Pause suspends a running campaign.
func (s *Service) Pause(ctx context.Context, id uuid.UUID) error {
	return s.queues.Pause(ctx, id)
}

// Cancel terminates a campaign permanently.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	return s.queues.Cancel(ctx, id)
}
