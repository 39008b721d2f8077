package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"inbox_backend/internal/assignment/service"
	"inbox_backend/internal/assignment/transport"
	"inbox_backend/internal/audit"
	"inbox_backend/platform/httpkit"
	"inbox_backend/platform/validator"
)

// Handler handles HTTP requests for conversation assignment operations.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

const (
	msgInvalidRequest        = "invalid request"
	msgValidationFailed      = "validation failed"
	msgInvalidConversationID = "invalid conversation ID"
	msgInvalidInboxID        = "invalid inbox ID"
	msgNotInboxMember        = "agent is not a member of this inbox"
	msgAlreadyAssigned       = "conversation already assigned"
)

// New creates a new assignment handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// Pickup claims an unassigned conversation for the calling agent.
// POST /api/v1/conversations/:id/pickup
func (h *Handler) Pickup(c *gin.Context) {
	conversationID, identity := h.conversationAndIdentity(c)
	if identity == nil {
		return
	}

	if !h.svc.CheckAgentAccess(c.Request.Context(), identity.AgentID(), conversationID) {
		httpkit.Error(c, http.StatusForbidden, msgNotInboxMember, nil)
		return
	}

	won, err := h.svc.Pickup(c.Request.Context(), conversationID, identity.AgentID())
	if httpkit.HandleError(c, err) {
		return
	}
	if !won {
		httpkit.Error(c, http.StatusConflict, msgAlreadyAssigned, nil)
		return
	}

	httpkit.OK(c, transport.PickupResponse{
		ConversationID: conversationID.String(),
		AgentID:        identity.AgentID().String(),
		PickedUp:       true,
	})
}

// Transfer reassigns a conversation from the calling agent to a target agent.
// POST /api/v1/conversations/:id/transfer
func (h *Handler) Transfer(c *gin.Context) {
	conversationID, identity := h.conversationAndIdentity(c)
	if identity == nil {
		return
	}

	var req transport.TransferRequest
	targetID, ok := h.bindTarget(c, &req.TargetAgentID, &req)
	if !ok {
		return
	}

	if !h.svc.CheckAgentAccess(c.Request.Context(), targetID, conversationID) {
		httpkit.Error(c, http.StatusBadRequest, msgNotInboxMember, nil)
		return
	}

	err := h.svc.Transfer(c.Request.Context(), conversationID, targetID, identity.AgentID())
	if httpkit.HandleError(c, err) {
		return
	}

	agentID := targetID.String()
	httpkit.OK(c, transport.AssignmentResponse{
		ConversationID: conversationID.String(),
		AgentID:        &agentID,
		Action:         audit.ActionTransfer,
	})
}

// Release returns a conversation to the unassigned pool.
// POST /api/v1/conversations/:id/release
func (h *Handler) Release(c *gin.Context) {
	conversationID, identity := h.conversationAndIdentity(c)
	if identity == nil {
		return
	}

	err := h.svc.Release(c.Request.Context(), conversationID, identity.AgentID())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.AssignmentResponse{
		ConversationID: conversationID.String(),
		Action:         audit.ActionRelease,
	})
}

// ManualAssign assigns a conversation to a target agent on the caller's
// authority, regardless of the current holder.
// POST /api/v1/conversations/:id/assign
func (h *Handler) ManualAssign(c *gin.Context) {
	conversationID, identity := h.conversationAndIdentity(c)
	if identity == nil {
		return
	}

	var req transport.ManualAssignRequest
	targetID, ok := h.bindTarget(c, &req.TargetAgentID, &req)
	if !ok {
		return
	}

	if !h.svc.CheckAgentAccess(c.Request.Context(), targetID, conversationID) {
		httpkit.Error(c, http.StatusBadRequest, msgNotInboxMember, nil)
		return
	}

	err := h.svc.ManualAssign(c.Request.Context(), conversationID, targetID, identity.AgentID())
	if httpkit.HandleError(c, err) {
		return
	}

	agentID := targetID.String()
	httpkit.OK(c, transport.AssignmentResponse{
		ConversationID: conversationID.String(),
		AgentID:        &agentID,
		Action:         audit.ActionManualAssign,
	})
}

// TransferableAgents lists transfer candidates for an inbox, excluding the
// calling agent.
// GET /api/v1/inboxes/:id/transferable-agents
func (h *Handler) TransferableAgents(c *gin.Context) {
	inboxID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidInboxID, nil)
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	exclude := identity.AgentID()
	items, err := h.svc.TransferableAgents(c.Request.Context(), inboxID, &exclude)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.AgentLoadListResponse{Items: items, Total: len(items)})
}

// History returns the assignment audit trail of a conversation.
// GET /api/v1/conversations/:id/history
func (h *Handler) History(c *gin.Context) {
	conversationID, identity := h.conversationAndIdentity(c)
	if identity == nil {
		return
	}

	entries, err := h.svc.History(c.Request.Context(), conversationID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.HistoryResponse{Items: entries, Total: len(entries)})
}

func (h *Handler) conversationAndIdentity(c *gin.Context) (uuid.UUID, httpkit.Identity) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidConversationID, nil)
		return uuid.Nil, nil
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return uuid.Nil, nil
	}
	return conversationID, identity
}

func (h *Handler) bindTarget(c *gin.Context, rawTarget *string, req interface{}) (uuid.UUID, bool) {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return uuid.Nil, false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return uuid.Nil, false
	}

	targetID, err := uuid.Parse(*rawTarget)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return uuid.Nil, false
	}
	return targetID, true
}
