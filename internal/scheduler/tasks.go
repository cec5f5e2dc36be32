package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskIngestServiceOrders = "serviceorders.ingest"

// IngestPayload points the worker at an archived upload.
type IngestPayload struct {
	JobID          string `json:"jobId"`
	SourceID       string `json:"sourceId"`
	FileName       string `json:"fileName"`
	ArchiveKey     string `json:"archiveKey"`
	Label          string `json:"label,omitempty"`
	UploadedBy     string `json:"uploadedBy"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

func NewIngestTask(payload IngestPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIngestServiceOrders, data), nil
}

func ParseIngestPayload(task *asynq.Task) (IngestPayload, error) {
	var payload IngestPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return IngestPayload{}, err
	}
	return payload, nil
}
