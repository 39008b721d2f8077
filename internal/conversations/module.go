// Package conversations owns the conversation lifecycle: inbound webhook
// intake, status transitions, and listing. Routing to agents lives in the
// assignment module and is triggered over the event bus.
package conversations

import (
	"inbox_backend/internal/conversations/handler"
	"inbox_backend/internal/conversations/repository"
	"inbox_backend/internal/conversations/service"
	"inbox_backend/internal/events"
	apphttp "inbox_backend/internal/http"
	"inbox_backend/platform/logger"
	"inbox_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the conversations bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates and initializes the conversations module.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, eventBus, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "conversations"
}

// Service returns the conversation service for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts conversation routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Public webhook, rate limited but unauthenticated.
	ctx.V1.POST("/webhooks/inbound", ctx.WebhookRateLimiter.RateLimit(), m.handler.ReceiveInbound)

	ctx.Protected.GET("/conversations/:id", m.handler.GetByID)
	ctx.Protected.GET("/inboxes/:id/conversations", m.handler.ListByInbox)
	ctx.Protected.POST("/conversations/:id/resolve", m.handler.Resolve)
	ctx.Protected.POST("/conversations/:id/reopen", m.handler.Reopen)
}
