// Package campaigns owns bulk-send campaigns: persistence, the in-process
// queue manager that executes sends, and the state synchronizer that keeps
// storage consistent with the queue manager across restarts.
package campaigns

import (
	"inbox_backend/internal/campaigns/handler"
	"inbox_backend/internal/campaigns/queue"
	"inbox_backend/internal/campaigns/repository"
	"inbox_backend/internal/campaigns/service"
	campaignsync "inbox_backend/internal/campaigns/sync"
	"inbox_backend/internal/events"
	apphttp "inbox_backend/internal/http"
	"inbox_backend/platform/config"
	"inbox_backend/platform/logger"
	"inbox_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the campaigns bounded context module implementing http.Module.
type Module struct {
	handler      *handler.Handler
	service      *service.Service
	queues       *queue.Manager
	synchronizer *campaignsync.Synchronizer
}

// Options carries campaign module construction dependencies beyond the usual
// pool/bus/validator/logger set.
type Options struct {
	Sender     queue.MessageSender
	Scheduler  service.StartScheduler
	Campaign   config.CampaignConfig
	Reconciler config.ReconcilerConfig
}

// NewModule creates and initializes the campaigns module.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, val *validator.Validator, log *logger.Logger, opts Options) *Module {
	repo := repository.New(pool)
	queues := queue.NewManager(repo, opts.Sender, eventBus, log, opts.Campaign.GetCampaignSendDelay())
	synchronizer := campaignsync.New(repo, queues, log,
		opts.Reconciler.GetSyncInterval(), opts.Reconciler.GetLockStaleAfter())
	svc := service.New(repo, queues, opts.Scheduler, log)
	h := handler.New(svc, synchronizer, val)

	return &Module{
		handler:      h,
		service:      svc,
		queues:       queues,
		synchronizer: synchronizer,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "campaigns"
}

// Service returns the campaign service for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// QueueManager returns the queue manager, used by the scheduler worker to
// start campaigns and by shutdown handling.
func (m *Module) QueueManager() *queue.Manager {
	return m.queues
}

// Synchronizer returns the state synchronizer for bootstrap wiring.
func (m *Module) Synchronizer() *campaignsync.Synchronizer {
	return m.synchronizer
}

// RegisterRoutes mounts campaign routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.POST("/campaigns", m.handler.Create)
	ctx.Protected.GET("/campaigns", m.handler.List)
	ctx.Protected.GET("/campaigns/:id", m.handler.GetByID)
	ctx.Protected.POST("/campaigns/:id/start", m.handler.Start)
	ctx.Protected.POST("/campaigns/:id/pause", m.handler.Pause)
	ctx.Protected.POST("/campaigns/:id/resume", m.handler.Resume)
	ctx.Protected.POST("/campaigns/:id/cancel", m.handler.Cancel)

	ctx.Admin.GET("/campaigns/inconsistencies", m.handler.Inconsistencies)
}
