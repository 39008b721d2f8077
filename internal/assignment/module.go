// Package assignment provides the conversation routing bounded context:
// round-robin auto-assignment, conflict-safe pickup, and the explicit
// transfer/release/manual-assign operations with their audit trail.
package assignment

import (
	"context"

	"inbox_backend/internal/assignment/handler"
	"inbox_backend/internal/assignment/repository"
	"inbox_backend/internal/assignment/service"
	"inbox_backend/internal/audit"
	"inbox_backend/internal/events"
	apphttp "inbox_backend/internal/http"
	"inbox_backend/platform/logger"
	"inbox_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the assignment bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	log     *logger.Logger
}

// NewModule creates and initializes the assignment module with all its dependencies.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	auditLog := audit.New(pool)
	svc := service.New(repo, auditLog, eventBus, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
		log:     log,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "assignment"
}

// Service returns the coordinator service for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts assignment routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.POST("/conversations/:id/pickup", m.handler.Pickup)
	ctx.Protected.POST("/conversations/:id/transfer", m.handler.Transfer)
	ctx.Protected.POST("/conversations/:id/release", m.handler.Release)
	ctx.Protected.POST("/conversations/:id/assign", m.handler.ManualAssign)
	ctx.Protected.GET("/conversations/:id/history", m.handler.History)
	ctx.Protected.GET("/inboxes/:id/transferable-agents", m.handler.TransferableAgents)
}

// RegisterHandlers subscribes to domain events that trigger auto-assignment.
func (m *Module) RegisterHandlers(bus *events.InMemoryBus) {
	bus.Subscribe(events.ConversationReceived{}.EventName(), m)
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.ConversationReceived:
		agent, err := m.service.AutoAssign(ctx, e.InboxID, e.ConversationID)
		if err != nil {
			return err
		}
		if agent == nil {
			m.log.Info("no agent available, conversation stays unassigned",
				"conversationId", e.ConversationID, "inboxId", e.InboxID)
		}
		return nil
	}
	return nil
}
