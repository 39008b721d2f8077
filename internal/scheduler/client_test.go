package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type stubSchedulerConfig struct {
	redisURL string
	queue    string
}

func (s stubSchedulerConfig) GetRedisURL() string       { return s.redisURL }
func (s stubSchedulerConfig) GetRedisTLSInsecure() bool { return false }
func (s stubSchedulerConfig) GetAsynqQueueName() string { return s.queue }
func (s stubSchedulerConfig) GetAsynqConcurrency() int  { return 1 }

func TestNewClientRequiresRedisURL(t *testing.T) {
	if _, err := NewClient(stubSchedulerConfig{}); err == nil {
		t.Fatal("expected error for missing redis url")
	}
}

func TestScheduleCampaignStartEnqueues(t *testing.T) {
	srv := miniredis.RunT(t)

	client, err := NewClient(stubSchedulerConfig{redisURL: "redis://" + srv.Addr(), queue: "campaigns"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = client.Close() }()

	campaignID := uuid.New()
	runAt := time.Now().Add(time.Hour)
	if err := client.ScheduleCampaignStart(context.Background(), campaignID, runAt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, key := range srv.Keys() {
		if strings.Contains(key, "campaigns") {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("expected a scheduled task under the campaigns queue")
	}
}

func TestCampaignStartPayloadRoundTrip(t *testing.T) {
	campaignID := uuid.New()
	task, err := NewCampaignStartTask(CampaignStartPayload{CampaignID: campaignID.String()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Type() != TaskCampaignStart {
		t.Fatalf("expected task type %q, got %q", TaskCampaignStart, task.Type())
	}

	payload, err := ParseCampaignStartPayload(task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.CampaignID != campaignID.String() {
		t.Fatalf("expected campaign id %s, got %s", campaignID, payload.CampaignID)
	}
}

func TestParseCampaignStartPayloadRejectsGarbage(t *testing.T) {
	task := asynq.NewTask(TaskCampaignStart, []byte("not json"))
	if _, err := ParseCampaignStartPayload(task); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
