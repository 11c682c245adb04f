package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskAutomationRun = "automation.run"

const TaskMergeCleanup = "merge.cleanup"

type AutomationRunPayload struct {
	Trigger string `json:"trigger"`
}

type MergeCleanupPayload struct {
	TenantID        string   `json:"tenantId"`
	TargetContactID string   `json:"targetContactId"`
	SourceIDs       []string `json:"sourceContactIds"`
}

func NewAutomationRunTask(payload AutomationRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAutomationRun, data), nil
}

func ParseAutomationRunPayload(task *asynq.Task) (AutomationRunPayload, error) {
	var payload AutomationRunPayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AutomationRunPayload{}, err
	}
	return payload, nil
}

func NewMergeCleanupTask(payload MergeCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMergeCleanup, data), nil
}

func ParseMergeCleanupPayload(task *asynq.Task) (MergeCleanupPayload, error) {
	var payload MergeCleanupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return MergeCleanupPayload{}, err
	}
	return payload, nil
}
