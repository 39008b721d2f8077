// Package transport defines request and response DTOs for the assignment module.
package transport

import (
	"inbox_backend/internal/assignment/repository"
	"inbox_backend/internal/audit"
)

// TransferRequest reassigns a conversation to another agent.
type TransferRequest struct {
	TargetAgentID string `json:"targetAgentId" binding:"required" validate:"uuid"`
}

// ManualAssignRequest assigns a conversation on someone's behalf.
type ManualAssignRequest struct {
	TargetAgentID string `json:"targetAgentId" binding:"required" validate:"uuid"`
}

// PickupResponse reports the outcome of a pickup attempt.
type PickupResponse struct {
	ConversationID string `json:"conversationId"`
	AgentID        string `json:"agentId"`
	PickedUp       bool   `json:"pickedUp"`
}

// AssignmentResponse reports a completed assignment mutation.
type AssignmentResponse struct {
	ConversationID string  `json:"conversationId"`
	AgentID        *string `json:"agentId,omitempty"`
	Action         string  `json:"action"`
}

// AgentLoadListResponse wraps annotated agent lists.
type AgentLoadListResponse struct {
	Items []repository.AgentLoad `json:"items"`
	Total int                    `json:"total"`
}

// HistoryResponse wraps a conversation's audit trail.
type HistoryResponse struct {
	Items []audit.Entry `json:"items"`
	Total int           `json:"total"`
}
