package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"inbox_backend/internal/campaigns/service"
	"inbox_backend/internal/campaigns/sync"
	"inbox_backend/internal/campaigns/transport"
	"inbox_backend/platform/httpkit"
	"inbox_backend/platform/validator"
)

const (
	msgInvalidCampaignID = "invalid campaign id"
	msgInvalidRequest    = "invalid request"
	msgValidationFailed  = "validation failed"
)

// Handler exposes campaign endpoints, including the admin reconciler surface.
type Handler struct {
	service      *service.Service
	synchronizer *sync.Synchronizer
	validate     *validator.Validator
}

// New creates a campaigns handler.
func New(service *service.Service, synchronizer *sync.Synchronizer, validate *validator.Validator) *Handler {
	return &Handler{service: service, synchronizer: synchronizer, validate: validate}
}

// Create handles POST /campaigns.
func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	campaign, err := h.service.Create(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.CampaignResponse{Campaign: campaign})
}

// List handles GET /campaigns.
func (h *Handler) List(c *gin.Context) {
	campaigns, err := h.service.List(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.CampaignListResponse{Campaigns: campaigns})
}

// GetByID handles GET /campaigns/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidCampaignID, nil)
		return
	}

	resp, err := h.service.GetByID(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// Start handles POST /campaigns/:id/start.
func (h *Handler) Start(c *gin.Context) {
	h.lifecycle(c, h.service.Start)
}

// Pause handles POST /campaigns/:id/pause.
func (h *Handler) Pause(c *gin.Context) {
	h.lifecycle(c, h.service.Pause)
}

// Resume handles POST /campaigns/:id/resume. Resuming goes through the same
// lock-acquire path as starting.
func (h *Handler) Resume(c *gin.Context) {
	h.lifecycle(c, h.service.Start)
}

// Cancel handles POST /campaigns/:id/cancel.
func (h *Handler) Cancel(c *gin.Context) {
	h.lifecycle(c, h.service.Cancel)
}

func (h *Handler) lifecycle(c *gin.Context, op func(ctx context.Context, id uuid.UUID) error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidCampaignID, nil)
		return
	}
	if err := op(c.Request.Context(), id); err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, gin.H{"status": "ok"})
}

// Inconsistencies handles GET /admin/campaigns/inconsistencies. With
// ?correct=true the findings are auto-corrected in the same call.
func (h *Handler) Inconsistencies(c *gin.Context) {
	findings, err := h.synchronizer.DetectInconsistencies(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}

	report := transport.InconsistencyReport{
		Inconsistencies: findings,
		Count:           len(findings),
	}
	if c.Query("correct") == "true" {
		report.Corrected = h.synchronizer.AutoCorrect(c.Request.Context(), findings)
	}
	httpkit.OK(c, report)
}
