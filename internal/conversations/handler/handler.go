package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"inbox_backend/internal/conversations/service"
	"inbox_backend/internal/conversations/transport"
	"inbox_backend/platform/httpkit"
	"inbox_backend/platform/validator"
)

const (
	msgInvalidConversationID = "invalid conversation id"
	msgInvalidInboxID        = "invalid inbox id"
	msgInvalidRequest        = "invalid request"
	msgValidationFailed      = "validation failed"
)

// Handler exposes conversation endpoints.
type Handler struct {
	service  *service.Service
	validate *validator.Validator
}

// New creates a conversations handler.
func New(service *service.Service, validate *validator.Validator) *Handler {
	return &Handler{service: service, validate: validate}
}

// ReceiveInbound handles POST /webhooks/inbound. It is the public entry point
// for the messaging provider; callers are rate limited, not authenticated.
func (h *Handler) ReceiveInbound(c *gin.Context) {
	var req transport.InboundMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	conv, err := h.service.ReceiveInbound(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ConversationResponse{Conversation: conv})
}

// GetByID handles GET /conversations/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidConversationID, nil)
		return
	}

	conv, err := h.service.GetByID(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ConversationResponse{Conversation: conv})
}

// ListByInbox handles GET /inboxes/:id/conversations?status=open.
func (h *Handler) ListByInbox(c *gin.Context) {
	inboxID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidInboxID, nil)
		return
	}

	conversations, err := h.service.ListByInbox(c.Request.Context(), inboxID, c.Query("status"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ConversationListResponse{Conversations: conversations})
}

// Resolve handles POST /conversations/:id/resolve.
func (h *Handler) Resolve(c *gin.Context) {
	h.setStatus(c, h.service.Resolve)
}

// Reopen handles POST /conversations/:id/reopen.
func (h *Handler) Reopen(c *gin.Context) {
	h.setStatus(c, h.service.Reopen)
}

func (h *Handler) setStatus(c *gin.Context, op func(ctx context.Context, id uuid.UUID) error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidConversationID, nil)
		return
	}
	if err := op(c.Request.Context(), id); err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, gin.H{"status": "ok"})
}
