// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"inbox_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Conversation Domain Events
// =============================================================================

// ConversationReceived is published when an inbound message opens or touches
// an unassigned conversation. The assignment module consumes it to auto-route.
type ConversationReceived struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	InboxID        uuid.UUID `json:"inboxId"`
	ContactPhone   string    `json:"contactPhone"`
}

func (e ConversationReceived) EventName() string { return "conversations.received" }

// ConversationAssigned is published after a conversation gains an agent.
type ConversationAssigned struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	InboxID        uuid.UUID `json:"inboxId"`
	AgentID        uuid.UUID `json:"agentId"`
	Method         string    `json:"method"` // auto_assign, pickup, transfer, manual_assign
}

func (e ConversationAssigned) EventName() string { return "conversations.assigned" }

// ConversationReleased is published when a conversation returns to the
// unassigned pool. It deliberately does not trigger re-assignment.
type ConversationReleased struct {
	BaseEvent
	ConversationID uuid.UUID `json:"conversationId"`
	AgentID        uuid.UUID `json:"agentId"`
}

func (e ConversationReleased) EventName() string { return "conversations.released" }

// =============================================================================
// Campaign Domain Events
// =============================================================================

// CampaignStatusChanged is published when a campaign transitions state,
// whether by the queue manager or by reconciler correction.
type CampaignStatusChanged struct {
	BaseEvent
	CampaignID     uuid.UUID `json:"campaignId"`
	PreviousStatus string    `json:"previousStatus"`
	NewStatus      string    `json:"newStatus"`
	Reason         string    `json:"reason,omitempty"`
}

func (e CampaignStatusChanged) EventName() string { return "campaigns.status_changed" }
