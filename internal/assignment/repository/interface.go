package repository

import (
	"context"

	"github.com/google/uuid"
)

// Agent availability values, mirrored from the agents module.
const (
	AvailabilityOnline  = "online"
	AvailabilityBusy    = "busy"
	AvailabilityOffline = "offline"
)

// AgentLoad is an inbox member annotated with its current open-conversation
// count, the unit the routing decisions operate on.
type AgentLoad struct {
	ID                uuid.UUID `json:"id"`
	DisplayName       string    `json:"displayName"`
	Availability      string    `json:"availability"`
	OpenConversations int       `json:"openConversations"`
}

// InboxSettings are the routing-relevant fields of an inbox.
// LastAssignedAgentID is the round-robin cursor.
type InboxSettings struct {
	ID                       uuid.UUID
	AutoAssignmentEnabled    bool
	MaxConversationsPerAgent *int
	LastAssignedAgentID      *uuid.UUID
}

// Repository is the consumer-driven storage contract of the assignment
// coordinator. It maps onto four primitives: conditional update, unconditional
// update, filtered read with per-agent counts, and plain lookups.
type Repository interface {
	// GetInboxSettings returns nil (not an error) for an unknown inbox.
	GetInboxSettings(ctx context.Context, inboxID uuid.UUID) (*InboxSettings, error)

	// ListMembers returns active inbox members in display-name order, each
	// with its open-conversation count. With onlineOnly, members whose
	// availability is not "online" are excluded.
	ListMembers(ctx context.Context, inboxID uuid.UUID, onlineOnly bool) ([]AgentLoad, error)

	// AssignConversation unconditionally sets the assigned agent.
	AssignConversation(ctx context.Context, conversationID, agentID uuid.UUID) error

	// AssignIfUnassigned sets the assigned agent only while the conversation
	// is unassigned, in a single atomic conditional write. Returns true when
	// this call performed the assignment.
	AssignIfUnassigned(ctx context.Context, conversationID, agentID uuid.UUID) (bool, error)

	// AssignWithCursor assigns the conversation and advances the inbox's
	// round-robin cursor as one unit.
	AssignWithCursor(ctx context.Context, conversationID, inboxID, agentID uuid.UUID) error

	// UnassignConversation returns the conversation to the unassigned pool.
	UnassignConversation(ctx context.Context, conversationID uuid.UUID) error

	// GetConversationInbox returns the owning inbox of a conversation.
	GetConversationInbox(ctx context.Context, conversationID uuid.UUID) (uuid.UUID, error)

	// IsInboxMember reports whether the agent belongs to the inbox.
	IsInboxMember(ctx context.Context, inboxID, agentID uuid.UUID) (bool, error)
}
