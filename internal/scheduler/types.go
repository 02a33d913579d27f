// Package scheduler is the State & Scheduler subsystem: it accepts manual
// and cron-scheduled sync jobs, bounds how many run concurrently, and
// records full job history in the scheduled_runs table.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nodebyte/syncengine/internal/protocol"
)

// JobStatus is a SyncJob's lifecycle state.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// SyncJob is one manual or scheduled sync run, possibly covering several
// streams of the same source.
type SyncJob struct {
	ID               string
	SourceID         string
	SourceName       string
	ConnectorID      string
	Streams          []string
	SyncMode         protocol.SyncMode
	Status           JobStatus
	RecordsProcessed int
	StartedAt        time.Time
	CompletedAt      time.Time
	Duration         time.Duration
	Error            string
	Metadata         map[string]any

	cancel chan struct{}
}

// Schedule is a recurring cron-triggered sync.
type Schedule struct {
	ID             string
	SourceID       string
	SourceName     string
	ConnectorID    string
	Streams        []string
	SyncMode       protocol.SyncMode
	CronExpression string
	Enabled        bool
	RunCount       int
	NextRunAt      time.Time
	LastRunAt      time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time

	cronID cronEntryID
}

// cronEntryID is an opaque handle into the underlying cron.Cron; defined
// here so schedule.go doesn't need to import robfig/cron types into this
// file.
type cronEntryID int

// JobFilter narrows list_jobs. Zero value matches everything.
type JobFilter struct {
	SourceID string
	Status   JobStatus
}

// Stats is the shape returned by GetStats.
type Stats struct {
	Total              int
	Running            int
	Completed          int
	Failed             int
	TotalRecordsSynced int64
	ActiveSchedules    int
	TotalSchedules     int
	MaxConcurrentJobs  int
}

// Event names a callback hook fired on job transition.
type Event string

const (
	EventJobStart    Event = "on_job_start"
	EventJobComplete Event = "on_job_complete"
	EventJobFail     Event = "on_job_fail"
)

// Callback is invoked on a job lifecycle event. Callback errors are logged
// and isolated — they never affect the job outcome.
type Callback func(job *SyncJob) error

// ExecutorFunc runs one stream of a job and returns a per-stream outcome.
// RunJob defaults to the orchestrator's execute_full_sync when the caller
// doesn't supply one; tests and CLI tooling can substitute a stub.
type ExecutorFunc func(ctx context.Context, sourceID, connectorID, stream string, syncMode protocol.SyncMode) StreamOutcome

// StreamOutcome is one stream's contribution to a job's aggregate result.
type StreamOutcome struct {
	RunID         uuid.UUID
	RecordsSynced int
	Error         string
}

// ErrCapacityExceeded is returned by RunJob when max_concurrent_jobs running
// jobs are already in flight.
type capacityExceededError struct{}

func (capacityExceededError) Error() string { return "capacity_exceeded" }

// ErrCapacityExceeded is the sentinel error RunJob returns at the
// concurrency bound.
var ErrCapacityExceeded error = capacityExceededError{}
