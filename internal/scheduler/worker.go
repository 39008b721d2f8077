package scheduler

import (
	"context"
	"errors"
	"fmt"

	"inbox_backend/platform/apperr"
	"inbox_backend/platform/config"
	"inbox_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// CampaignStarter begins sending a campaign. Implemented by the campaign
// queue manager.
type CampaignStarter interface {
	Start(ctx context.Context, campaignID uuid.UUID) error
}

// Worker consumes scheduled tasks from Redis.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	campaigns CampaignStarter
	log       *logger.Logger
}

// NewWorker builds an asynq server wired to the campaign queue manager.
func NewWorker(cfg config.SchedulerConfig, campaigns CampaignStarter, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		campaigns: campaigns,
		log:       log,
	}

	mux.HandleFunc(TaskCampaignStart, w.handleCampaignStart)

	return w, nil
}

func (w *Worker) handleCampaignStart(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseCampaignStartPayload(task)
	if err != nil {
		return err
	}

	campaignID, err := uuid.Parse(payload.CampaignID)
	if err != nil {
		return err
	}

	if err := w.campaigns.Start(ctx, campaignID); err != nil {
		var appErr *apperr.Error
		// A deleted campaign or one already started elsewhere is done, not
		// worth retrying.
		if errors.As(err, &appErr) &&
			(appErr.Kind == apperr.KindNotFound || appErr.Kind == apperr.KindConflict) {
			w.log.Info("skipping scheduled campaign start",
				"campaignId", campaignID, "reason", appErr.Message)
			return nil
		}
		return err
	}

	w.log.Info("scheduled campaign started", "campaignId", campaignID)
	return nil
}

// Run serves tasks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
