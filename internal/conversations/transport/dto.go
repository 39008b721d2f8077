package transport

import (
	"github.com/google/uuid"

	"inbox_backend/internal/conversations/repository"
)

// InboundMessageRequest is the webhook payload for an incoming message.
type InboundMessageRequest struct {
	InboxID     uuid.UUID `json:"inboxId" validate:"required"`
	FromPhone   string    `json:"fromPhone" validate:"required"`
	ContactName string    `json:"contactName"`
	Body        string    `json:"body"`
}

// ConversationResponse mirrors a conversation row.
type ConversationResponse struct {
	Conversation repository.Conversation `json:"conversation"`
}

// ConversationListResponse wraps a list of conversations.
type ConversationListResponse struct {
	Conversations []repository.Conversation `json:"conversations"`
}
