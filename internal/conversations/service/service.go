package service

import (
	"context"

	"github.com/google/uuid"

	"inbox_backend/internal/conversations/repository"
	"inbox_backend/internal/conversations/transport"
	"inbox_backend/internal/events"
	"inbox_backend/platform/apperr"
	"inbox_backend/platform/logger"
	"inbox_backend/platform/phone"
)

// Service holds conversation business logic.
type Service struct {
	repo     repository.Repository
	eventBus events.Bus
	log      *logger.Logger
}

// New creates a conversations service.
func New(repo repository.Repository, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, eventBus: eventBus, log: log}
}

// ReceiveInbound records an incoming message. An existing open conversation
// for the contact is reused; otherwise a new one is created. Whenever the
// conversation has no assigned agent the message is announced on the event
// bus so it can be routed, so a released conversation gets picked up again on
// the contact's next message.
func (s *Service) ReceiveInbound(ctx context.Context, req transport.InboundMessageRequest) (repository.Conversation, error) {
	normalized := phone.NormalizeE164(req.FromPhone)
	if normalized == "" {
		return repository.Conversation{}, apperr.Validation("missing sender phone number")
	}

	existing, err := s.repo.FindOpenByContact(ctx, req.InboxID, normalized)
	if err != nil {
		return repository.Conversation{}, err
	}
	if existing != nil {
		if err := s.repo.TouchLastMessage(ctx, existing.ID); err != nil {
			s.log.Warn("failed to touch conversation", "conversationId", existing.ID, "error", err)
		}
		if existing.AssignedAgentID == nil {
			s.publishReceived(ctx, *existing)
		}
		return *existing, nil
	}

	conv, err := s.repo.Create(ctx, req.InboxID, normalized, req.ContactName)
	if err != nil {
		return repository.Conversation{}, err
	}

	s.publishReceived(ctx, conv)
	return conv, nil
}

func (s *Service) publishReceived(ctx context.Context, conv repository.Conversation) {
	s.eventBus.Publish(ctx, events.ConversationReceived{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: conv.ID,
		InboxID:        conv.InboxID,
		ContactPhone:   conv.ContactPhone,
	})
}

// GetByID returns a single conversation.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (repository.Conversation, error) {
	return s.repo.GetByID(ctx, id)
}

// ListByInbox lists an inbox's conversations, optionally filtered by status.
func (s *Service) ListByInbox(ctx context.Context, inboxID uuid.UUID, status string) ([]repository.Conversation, error) {
	switch status {
	case "", repository.StatusOpen, repository.StatusResolved, repository.StatusArchived:
	default:
		return nil, apperr.Validation("unknown conversation status")
	}
	return s.repo.ListByInbox(ctx, inboxID, status)
}

// Resolve closes a conversation. Resolving an already-resolved conversation
// is a no-op.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID) error {
	return s.repo.SetStatus(ctx, id, repository.StatusResolved)
}

// Reopen puts a resolved conversation back in the open state. The assignment
// is untouched; the previously assigned agent keeps it.
func (s *Service) Reopen(ctx context.Context, id uuid.UUID) error {
	return s.repo.SetStatus(ctx, id, repository.StatusOpen)
}
