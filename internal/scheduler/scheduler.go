package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/nodebyte/syncengine/internal/protocol"
)

// Scheduler is the State & Scheduler subsystem's job half: it holds the
// running-job semaphore, the in-memory job/schedule tables, and the cron
// engine that triggers scheduled runs. State persistence for per-stream
// cursors lives in the statestore package; this package owns SyncJob and
// Schedule records only.
type Scheduler struct {
	mu        sync.Mutex
	jobs      map[string]*SyncJob
	schedules map[string]*Schedule

	sem chan struct{} // capacity bound: buffered to max_concurrent_jobs

	cron        *cron.Cron
	asynqClient *asynq.Client

	defaultExecutor ExecutorFunc
	history         *HistoryStore
	metrics         *Metrics

	callbackMu sync.Mutex
	callbacks  map[Event][]Callback

	maxConcurrentJobs int
	logger            zerolog.Logger
}

// Config configures a new Scheduler.
type Config struct {
	MaxConcurrentJobs int
	Pool              *pgxpool.Pool // backs history persistence
	RedisOpt          asynq.RedisClientOpt
	DefaultExecutor   ExecutorFunc
	Logger            zerolog.Logger
}

// New constructs a Scheduler. Call Start to begin cron evaluation.
func New(cfg Config) *Scheduler {
	if cfg.MaxConcurrentJobs < 1 {
		cfg.MaxConcurrentJobs = 1
	}
	return &Scheduler{
		jobs:              make(map[string]*SyncJob),
		schedules:         make(map[string]*Schedule),
		sem:               make(chan struct{}, cfg.MaxConcurrentJobs),
		cron:              cron.New(cron.WithSeconds()),
		asynqClient:       asynq.NewClient(cfg.RedisOpt),
		defaultExecutor:   cfg.DefaultExecutor,
		history:           NewHistoryStore(cfg.Pool, cfg.Logger),
		metrics:           NoopMetrics(),
		callbacks:         make(map[Event][]Callback),
		maxConcurrentJobs: cfg.MaxConcurrentJobs,
		logger:            cfg.Logger,
	}
}

// SetMetrics installs an OpenTelemetry-backed Metrics instance. Called
// after construction once the caller has decided whether metrics export is
// enabled; GetStats works either way since Metrics is never read from.
func (s *Scheduler) SetMetrics(m *Metrics) {
	if m != nil {
		s.metrics = m
	}
}

// Start begins cron schedule evaluation.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Msg("scheduler started")
}

// Stop drains in-flight cron invocations and closes the asynq client.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.asynqClient.Close()
	s.logger.Info().Msg("scheduler stopped")
}

// RegisterCallback registers fn to be invoked on the named lifecycle event.
// Callback failures are logged and isolated: they cannot fail the job or
// suppress the error the job already carries.
func (s *Scheduler) RegisterCallback(event Event, fn Callback) {
	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()
	s.callbacks[event] = append(s.callbacks[event], fn)
}

func (s *Scheduler) fireCallbacks(event Event, job *SyncJob) {
	s.callbackMu.Lock()
	fns := append([]Callback(nil), s.callbacks[event]...)
	s.callbackMu.Unlock()

	for _, fn := range fns {
		if err := fn(job); err != nil {
			s.logger.Warn().Err(err).Str("event", string(event)).Str("job_id", job.ID).Msg("scheduler: callback failed")
		}
	}
}

// CreateJob registers a new pending SyncJob. It does not run it — call
// RunJob to execute.
func (s *Scheduler) CreateJob(sourceID, sourceName, connectorID string, streams []string, syncMode protocol.SyncMode) *SyncJob {
	job := &SyncJob{
		ID:          uuid.NewString(),
		SourceID:    sourceID,
		SourceName:  sourceName,
		ConnectorID: connectorID,
		Streams:     streams,
		SyncMode:    syncMode,
		Status:      JobPending,
		Metadata:    make(map[string]any),
		cancel:      make(chan struct{}),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	return job
}

// GetJob returns the job by id, or false if unknown.
func (s *Scheduler) GetJob(jobID string) (*SyncJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	return job, ok
}

// ListJobs returns jobs matching filter (zero value matches all), most
// recently created first is not guaranteed — callers needing order should
// sort on StartedAt/CreatedAt themselves.
func (s *Scheduler) ListJobs(filter JobFilter, limit int) []*SyncJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*SyncJob
	for _, job := range s.jobs {
		if filter.SourceID != "" && job.SourceID != filter.SourceID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		out = append(out, job)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// GetRunningJobs returns every job currently in the running state.
func (s *Scheduler) GetRunningJobs() []*SyncJob {
	return s.ListJobs(JobFilter{Status: JobRunning}, 0)
}

// CancelJob flips a pending or running job to cancelled. For a running
// job, the executing goroutine observes cancellation at its next
// suspension point and must not commit a cursor for the aborted run;
// already-written batches are not rolled back.
func (s *Scheduler) CancelJob(jobID string) bool {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok || (job.Status != JobPending && job.Status != JobRunning) {
		s.mu.Unlock()
		return false
	}
	wasRunning := job.Status == JobRunning
	job.Status = JobCancelled
	s.mu.Unlock()

	if wasRunning {
		close(job.cancel)
	}
	return true
}

// RunJob transitions job from pending to running, executes every
// configured stream (via executorFn, or the scheduler's default when nil),
// aggregates the results, and records the terminal transition to history.
// It blocks for the duration of the run; callers that want concurrent jobs
// call RunJob from their own goroutine per job — the semaphore here only
// bounds how many proceed past acquisition at once.
func (s *Scheduler) RunJob(ctx context.Context, jobID string, executorFn ExecutorFunc) (*SyncJob, error) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("scheduler: unknown job %s", jobID)
	}
	if job.Status != JobPending {
		s.mu.Unlock()
		return job, fmt.Errorf("scheduler: job %s is not pending (status=%s)", jobID, job.Status)
	}
	s.mu.Unlock()

	select {
	case s.sem <- struct{}{}:
	default:
		return job, ErrCapacityExceeded
	}
	defer func() { <-s.sem }()

	s.mu.Lock()
	job.Status = JobRunning
	job.StartedAt = time.Now().UTC()
	s.mu.Unlock()

	s.fireCallbacks(EventJobStart, job)

	if executorFn == nil {
		executorFn = s.defaultExecutor
	}

	runCtx, cancel := contextWithJobCancel(ctx, job.cancel)
	defer cancel()

	var totalRecords int
	var firstErr string
	for _, stream := range job.Streams {
		s.mu.Lock()
		cancelled := job.Status == JobCancelled
		s.mu.Unlock()
		if cancelled {
			break
		}

		outcome := executorFn(runCtx, job.SourceID, job.ConnectorID, stream, job.SyncMode)
		totalRecords += outcome.RecordsSynced
		if outcome.Error != "" && firstErr == "" {
			firstErr = outcome.Error
		}
	}

	s.mu.Lock()
	job.RecordsProcessed = totalRecords
	job.CompletedAt = time.Now().UTC()
	job.Duration = job.CompletedAt.Sub(job.StartedAt)
	if job.Status == JobCancelled {
		// cursor commit already skipped inside the executor function; only
		// the terminal bookkeeping happens here.
	} else if firstErr != "" {
		job.Status = JobFailed
		job.Error = firstErr
	} else {
		job.Status = JobCompleted
	}
	status := job.Status
	s.mu.Unlock()

	if err := s.history.Record(context.Background(), job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("scheduler: failed to persist job history")
	}

	switch status {
	case JobCompleted:
		s.fireCallbacks(EventJobComplete, job)
	case JobFailed:
		s.fireCallbacks(EventJobFail, job)
	}

	s.metrics.RecordJobOutcome(context.Background(), string(status), int64(totalRecords))

	return job, nil
}

func contextWithJobCancel(parent context.Context, cancelCh <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-cancelCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// GetHistory returns persisted scheduled_runs rows, optionally filtered by
// source name (see HistoryStore.List), most recent first.
func (s *Scheduler) GetHistory(ctx context.Context, sourceID string, limit int) ([]HistoryRecord, error) {
	return s.history.List(ctx, sourceID, limit)
}

// GetStats reports aggregate scheduler counters.
func (s *Scheduler) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{MaxConcurrentJobs: s.maxConcurrentJobs}
	for _, job := range s.jobs {
		stats.Total++
		switch job.Status {
		case JobRunning:
			stats.Running++
		case JobCompleted:
			stats.Completed++
			stats.TotalRecordsSynced += int64(job.RecordsProcessed)
		case JobFailed:
			stats.Failed++
		}
	}
	for _, sched := range s.schedules {
		stats.TotalSchedules++
		if sched.Enabled {
			stats.ActiveSchedules++
		}
	}

	s.metrics.ObserveStats(stats)
	return stats
}
