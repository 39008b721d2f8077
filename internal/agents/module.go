// Package agents provides the agent directory bounded context module.
// It owns availability state that the assignment module reads when routing.
package agents

import (
	"inbox_backend/internal/agents/handler"
	"inbox_backend/internal/agents/repository"
	"inbox_backend/internal/agents/service"
	apphttp "inbox_backend/internal/http"
	"inbox_backend/platform/logger"
	"inbox_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the agents bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    repository.Repository
}

// NewModule creates and initializes the agents module with all its dependencies.
func NewModule(pool *pgxpool.Pool, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "agents"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts agent directory routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/agents", m.handler.List)
	ctx.Protected.GET("/agents/:id", m.handler.GetByID)
	ctx.Protected.PATCH("/agents/:id/availability", m.handler.UpdateAvailability)
}
