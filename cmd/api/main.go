package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inbox_backend/internal/agents"
	"inbox_backend/internal/assignment"
	"inbox_backend/internal/campaigns"
	"inbox_backend/internal/conversations"
	"inbox_backend/internal/events"
	apphttp "inbox_backend/internal/http"
	"inbox_backend/internal/http/router"
	"inbox_backend/internal/scheduler"
	"inbox_backend/internal/whatsapp"
	"inbox_backend/platform/config"
	"inbox_backend/platform/db"
	"inbox_backend/platform/logger"
	"inbox_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	startScheduler, closeScheduler := initStartScheduler(cfg, log)
	if closeScheduler != nil {
		defer closeScheduler()
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	whatsappClient := whatsapp.NewClient(cfg, log)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	agentsModule := agents.NewModule(pool, val, log)
	conversationsModule := conversations.NewModule(pool, eventBus, val, log)
	assignmentModule := assignment.NewModule(pool, eventBus, val, log)
	assignmentModule.RegisterHandlers(eventBus)

	campaignOpts := campaigns.Options{
		Sender:     whatsappClient,
		Campaign:   cfg,
		Reconciler: cfg,
	}
	if startScheduler != nil {
		campaignOpts.Scheduler = startScheduler
	}
	campaignsModule := campaigns.NewModule(pool, eventBus, val, log, campaignOpts)

	// Crash recovery runs before the queue manager accepts any work, then the
	// periodic state sync takes over.
	synchronizer := campaignsModule.Synchronizer()
	restored, err := synchronizer.RestoreRunningCampaigns(ctx)
	if err != nil {
		log.Error("failed to restore interrupted campaigns", "error", err)
		panic("failed to restore interrupted campaigns: " + err.Error())
	}
	if len(restored) > 0 {
		log.Info("restored interrupted campaigns", "count", len(restored))
	}
	synchronizer.StartSync(ctx)
	defer synchronizer.StopSync()
	defer campaignsModule.QueueManager().Shutdown()

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			agentsModule,
			conversationsModule,
			assignmentModule,
			campaignsModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initStartScheduler(cfg config.SchedulerConfig, log *logger.Logger) (*scheduler.Client, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; scheduled campaign starts disabled")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
