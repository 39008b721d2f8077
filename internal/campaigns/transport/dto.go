package transport

import (
	"time"

	"github.com/google/uuid"

	"inbox_backend/internal/campaigns/queue"
	"inbox_backend/internal/campaigns/repository"
	"inbox_backend/internal/campaigns/sync"
)

// RecipientInput is one target in a campaign create request.
type RecipientInput struct {
	Phone string `json:"phone" validate:"required"`
	Name  string `json:"name"`
}

// CreateCampaignRequest creates a campaign with its recipient list.
type CreateCampaignRequest struct {
	InboxID         uuid.UUID        `json:"inboxId" validate:"required"`
	Name            string           `json:"name" validate:"required,min=2,max=200"`
	MessageTemplate string           `json:"messageTemplate" validate:"required"`
	ScheduledAt     *time.Time       `json:"scheduledAt"`
	Recipients      []RecipientInput `json:"recipients" validate:"required,min=1,dive"`
}

// CampaignResponse is a campaign row plus its live queue snapshot, when one
// exists.
type CampaignResponse struct {
	Campaign repository.Campaign `json:"campaign"`
	Queue    *queue.ActiveQueue  `json:"queue,omitempty"`
}

// CampaignListResponse wraps a list of campaigns.
type CampaignListResponse struct {
	Campaigns []repository.Campaign `json:"campaigns"`
}

// InconsistencyReport is the reconciler diagnostic response.
type InconsistencyReport struct {
	Inconsistencies []sync.Inconsistency `json:"inconsistencies"`
	Count           int                  `json:"count"`
	Corrected       int                  `json:"corrected,omitempty"`
}
