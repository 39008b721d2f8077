package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskCampaignStart = "campaigns.start"

type CampaignStartPayload struct {
	CampaignID string `json:"campaignId"`
}

func NewCampaignStartTask(payload CampaignStartPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCampaignStart, data), nil
}

func ParseCampaignStartPayload(task *asynq.Task) (CampaignStartPayload, error) {
	var payload CampaignStartPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return CampaignStartPayload{}, err
	}
	return payload, nil
}
