// Package audit persists the append-only assignment audit trail.
// Rows are written once per assignment-affecting action and never
// updated or deleted here; retention is an operational concern.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Actions recorded in the audit trail.
const (
	ActionAutoAssign   = "auto_assign"
	ActionPickup       = "pickup"
	ActionTransfer     = "transfer"
	ActionRelease      = "release"
	ActionManualAssign = "manual_assign"
)

// Entry is one immutable assignment audit record.
// PriorAgentID carries the previous holder for transfer/release, nil for
// auto-assign/pickup, and the authorizing agent for manual_assign.
type Entry struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversationId"`
	PriorAgentID   *uuid.UUID `json:"priorAgentId,omitempty"`
	NewAgentID     *uuid.UUID `json:"newAgentId,omitempty"`
	Action         string     `json:"action"`
	CreatedAt      time.Time  `json:"createdAt"`
}
