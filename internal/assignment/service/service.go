// Package service implements the conversation assignment coordinator:
// round-robin auto-assignment bounded by per-agent caps, conflict-safe
// pickup, and the explicit transfer/release/manual-assign operations.
package service

import (
	"context"

	"github.com/google/uuid"

	"inbox_backend/internal/assignment/repository"
	"inbox_backend/internal/audit"
	"inbox_backend/internal/events"
	"inbox_backend/platform/logger"
)

// AuditLog is the best-effort sink for assignment audit entries.
// Failures from it never affect a routing decision that already succeeded.
type AuditLog interface {
	Record(ctx context.Context, entry audit.Entry) error
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]audit.Entry, error)
}

// Service coordinates conversation-to-agent routing.
type Service struct {
	repo     repository.Repository
	auditLog AuditLog
	eventBus events.Bus
	log      *logger.Logger
}

// New creates a new assignment coordinator.
func New(repo repository.Repository, auditLog AuditLog, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, auditLog: auditLog, eventBus: eventBus, log: log}
}

// AvailableAgents returns active, online inbox members under the optional
// per-agent cap, in display-name order with open-conversation counts.
// An unknown inbox or an inbox with no eligible members yields an empty list.
func (s *Service) AvailableAgents(ctx context.Context, inboxID uuid.UUID, maxPerAgent *int) ([]repository.AgentLoad, error) {
	members, err := s.repo.ListMembers(ctx, inboxID, true)
	if err != nil {
		return nil, err
	}
	if maxPerAgent == nil {
		return members, nil
	}

	eligible := make([]repository.AgentLoad, 0, len(members))
	for _, m := range members {
		if m.OpenConversations < *maxPerAgent {
			eligible = append(eligible, m)
		}
	}
	return eligible, nil
}

// NextAvailableAgent computes the round-robin pick for an inbox without any
// persistent side effect. It returns nil when auto-assignment is disabled,
// the inbox is unknown, or no agent is available.
//
// Round-robin rule: the agent after the cursor (the inbox's last assigned
// agent) in list order, wrapping to the first. When the cursor agent is no
// longer in the available list, the pick falls back to the first agent.
func (s *Service) NextAvailableAgent(ctx context.Context, inboxID uuid.UUID) (*repository.AgentLoad, error) {
	settings, err := s.repo.GetInboxSettings(ctx, inboxID)
	if err != nil {
		return nil, err
	}
	if settings == nil || !settings.AutoAssignmentEnabled {
		return nil, nil
	}

	available, err := s.AvailableAgents(ctx, inboxID, settings.MaxConversationsPerAgent)
	if err != nil {
		return nil, err
	}
	if len(available) == 0 {
		return nil, nil
	}

	pick := nextAfterCursor(available, settings.LastAssignedAgentID)
	return &pick, nil
}

func nextAfterCursor(agents []repository.AgentLoad, cursor *uuid.UUID) repository.AgentLoad {
	if cursor == nil {
		return agents[0]
	}
	for i, a := range agents {
		if a.ID == *cursor {
			return agents[(i+1)%len(agents)]
		}
	}
	return agents[0]
}

// AutoAssign routes an unassigned conversation to the next available agent.
// Returns nil without mutation when no agent is available; that is the
// expected "stay in the pool" outcome, not an error. On success the
// conversation assignment and the cursor advance are applied as a unit, and
// an audit entry is written best-effort.
func (s *Service) AutoAssign(ctx context.Context, inboxID, conversationID uuid.UUID) (*repository.AgentLoad, error) {
	agent, err := s.NextAvailableAgent(ctx, inboxID)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, nil
	}

	if err := s.repo.AssignWithCursor(ctx, conversationID, inboxID, agent.ID); err != nil {
		return nil, err
	}

	s.logAudit(ctx, audit.Entry{
		ConversationID: conversationID,
		NewAgentID:     &agent.ID,
		Action:         audit.ActionAutoAssign,
	})
	s.publishAssigned(ctx, conversationID, inboxID, agent.ID, audit.ActionAutoAssign)

	return agent, nil
}

// Pickup conditionally assigns the conversation to the agent, succeeding only
// if it is still unassigned at write time. Returns false when another actor
// won the race; that is an expected outcome under load, not an error.
func (s *Service) Pickup(ctx context.Context, conversationID, agentID uuid.UUID) (bool, error) {
	won, err := s.repo.AssignIfUnassigned(ctx, conversationID, agentID)
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}

	s.logAudit(ctx, audit.Entry{
		ConversationID: conversationID,
		NewAgentID:     &agentID,
		Action:         audit.ActionPickup,
	})
	s.log.AssignmentEvent(audit.ActionPickup, conversationID.String(), agentID.String())

	return true, nil
}

// Transfer unconditionally reassigns the conversation to the target agent.
// An explicit transfer supersedes whoever currently holds the conversation,
// so no conditional write is needed. sourceAgentID is recorded for audit only
// and is not re-validated against the current holder.
func (s *Service) Transfer(ctx context.Context, conversationID, targetAgentID, sourceAgentID uuid.UUID) error {
	if err := s.repo.AssignConversation(ctx, conversationID, targetAgentID); err != nil {
		return err
	}

	s.logAudit(ctx, audit.Entry{
		ConversationID: conversationID,
		PriorAgentID:   &sourceAgentID,
		NewAgentID:     &targetAgentID,
		Action:         audit.ActionTransfer,
	})
	s.log.AssignmentEvent(audit.ActionTransfer, conversationID.String(), targetAgentID.String())

	return nil
}

// Release returns the conversation to the unassigned pool. It deliberately
// does not trigger a new auto-assignment; re-routing happens on the next
// inbound event or an explicit call.
func (s *Service) Release(ctx context.Context, conversationID, agentID uuid.UUID) error {
	if err := s.repo.UnassignConversation(ctx, conversationID); err != nil {
		return err
	}

	s.logAudit(ctx, audit.Entry{
		ConversationID: conversationID,
		PriorAgentID:   &agentID,
		Action:         audit.ActionRelease,
	})
	if s.eventBus != nil {
		s.eventBus.Publish(ctx, events.ConversationReleased{
			BaseEvent:      events.NewBaseEvent(),
			ConversationID: conversationID,
			AgentID:        agentID,
		})
	}

	return nil
}

// ManualAssign unconditionally assigns the conversation to the target agent.
// The audit entry's prior-agent field carries the assigner's ID to record who
// authorized the override.
func (s *Service) ManualAssign(ctx context.Context, conversationID, targetAgentID, assignerID uuid.UUID) error {
	if err := s.repo.AssignConversation(ctx, conversationID, targetAgentID); err != nil {
		return err
	}

	s.logAudit(ctx, audit.Entry{
		ConversationID: conversationID,
		PriorAgentID:   &assignerID,
		NewAgentID:     &targetAgentID,
		Action:         audit.ActionManualAssign,
	})
	s.log.AssignmentEvent(audit.ActionManualAssign, conversationID.String(), targetAgentID.String())

	return nil
}

// CheckAgentAccess reports whether the agent is a member of the
// conversation's inbox. Any lookup failure yields false, not an error.
func (s *Service) CheckAgentAccess(ctx context.Context, agentID, conversationID uuid.UUID) bool {
	inboxID, err := s.repo.GetConversationInbox(ctx, conversationID)
	if err != nil {
		return false
	}

	member, err := s.repo.IsInboxMember(ctx, inboxID, agentID)
	if err != nil {
		return false
	}
	return member
}

// TransferableAgents returns all active inbox members regardless of
// availability, optionally excluding one agent (typically the current
// holder), with open-conversation counts.
func (s *Service) TransferableAgents(ctx context.Context, inboxID uuid.UUID, excludeAgentID *uuid.UUID) ([]repository.AgentLoad, error) {
	members, err := s.repo.ListMembers(ctx, inboxID, false)
	if err != nil {
		return nil, err
	}
	if excludeAgentID == nil {
		return members, nil
	}

	out := make([]repository.AgentLoad, 0, len(members))
	for _, m := range members {
		if m.ID != *excludeAgentID {
			out = append(out, m)
		}
	}
	return out, nil
}

// History returns the audit trail of one conversation.
func (s *Service) History(ctx context.Context, conversationID uuid.UUID) ([]audit.Entry, error) {
	return s.auditLog.ListByConversation(ctx, conversationID)
}

// logAudit writes an audit entry best-effort. It never returns an error:
// failures are logged and swallowed so they cannot abort a routing decision
// that already succeeded.
func (s *Service) logAudit(ctx context.Context, entry audit.Entry) {
	if s.auditLog == nil {
		return
	}
	if err := s.auditLog.Record(ctx, entry); err != nil {
		s.log.Warn("assignment audit write failed",
			"conversationId", entry.ConversationID,
			"action", entry.Action,
			"error", err)
	}
}

func (s *Service) publishAssigned(ctx context.Context, conversationID, inboxID, agentID uuid.UUID, method string) {
	if s.eventBus == nil {
		return
	}
	s.eventBus.Publish(ctx, events.ConversationAssigned{
		BaseEvent:      events.NewBaseEvent(),
		ConversationID: conversationID,
		InboxID:        inboxID,
		AgentID:        agentID,
		Method:         method,
	})
}
