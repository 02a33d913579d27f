// Package queue defines the asynq task types and priority queues the sync
// engine's worker process consumes, mirroring the teacher's queue manager
// but reduced to the two tasks this domain dispatches: running a job's
// streams through the Sync Orchestrator, and cleaning up run history.
package queue

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// Task types.
const (
	TypeRunJob      = "sync:run_job"
	TypeCleanupRuns = "sync:cleanup_runs"
)

// Queue names, highest to lowest priority.
const (
	QueueCritical = "critical" // manually triggered runs, cancellations
	QueueDefault  = "default"  // scheduled runs
	QueueLow      = "low"      // history cleanup
)

// RunJobPayload is the asynq task payload for TypeRunJob: the scheduler has
// already created the SyncJob record, this task just tells a worker to
// execute it.
type RunJobPayload struct {
	JobID string `json:"job_id"`
}

// Manager wraps an asynq client with typed enqueue helpers.
type Manager struct {
	client *asynq.Client
}

// NewManager constructs a Manager.
func NewManager(client *asynq.Client) *Manager {
	return &Manager{client: client}
}

// Client returns the underlying asynq client for direct enqueueing.
func (m *Manager) Client() *asynq.Client {
	return m.client
}

// EnqueueRunJob enqueues a previously created job for execution.
func (m *Manager) EnqueueRunJob(jobID string) (*asynq.TaskInfo, error) {
	data, err := json.Marshal(RunJobPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}

	task := asynq.NewTask(TypeRunJob, data,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(0), // the scheduler itself retries via cron; a task retry would duplicate the run
		asynq.Timeout(time.Hour),
		asynq.Unique(10*time.Minute),
	)
	return m.client.Enqueue(task)
}

// EnqueueCleanupRuns enqueues a history-table cleanup task.
func (m *Manager) EnqueueCleanupRuns(olderThanDays int) (*asynq.TaskInfo, error) {
	data, _ := json.Marshal(map[string]int{"older_than_days": olderThanDays})
	task := asynq.NewTask(TypeCleanupRuns, data,
		asynq.Queue(QueueLow),
		asynq.MaxRetry(1),
		asynq.Timeout(5*time.Minute),
	)
	return m.client.Enqueue(task)
}
