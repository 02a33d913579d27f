package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nodebyte/syncengine/internal/protocol"
)

func newTestScheduler(t *testing.T, maxConcurrent int, exec ExecutorFunc) *Scheduler {
	t.Helper()
	return New(Config{
		MaxConcurrentJobs: maxConcurrent,
		RedisOpt:          asynq.RedisClientOpt{Addr: "localhost:0"},
		DefaultExecutor:   exec,
	})
}

func TestRunJobCompletesAndAggregatesRecords(t *testing.T) {
	exec := func(ctx context.Context, sourceID, connectorID, stream string, mode protocol.SyncMode) StreamOutcome {
		return StreamOutcome{RecordsSynced: 10}
	}
	s := newTestScheduler(t, 2, exec)

	job := s.CreateJob("src1", "Source One", "conn1", []string{"users", "orders"}, protocol.SyncModeIncremental)
	result, err := s.RunJob(context.Background(), job.ID, nil)
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if result.Status != JobCompleted {
		t.Errorf("Status = %s, want %s", result.Status, JobCompleted)
	}
	if result.RecordsProcessed != 20 {
		t.Errorf("RecordsProcessed = %d, want 20", result.RecordsProcessed)
	}
}

func TestRunJobFailsWhenAStreamErrors(t *testing.T) {
	exec := func(ctx context.Context, sourceID, connectorID, stream string, mode protocol.SyncMode) StreamOutcome {
		if stream == "orders" {
			return StreamOutcome{Error: "boom"}
		}
		return StreamOutcome{RecordsSynced: 5}
	}
	s := newTestScheduler(t, 2, exec)

	job := s.CreateJob("src1", "Source One", "conn1", []string{"users", "orders"}, protocol.SyncModeIncremental)
	result, err := s.RunJob(context.Background(), job.ID, nil)
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if result.Status != JobFailed {
		t.Errorf("Status = %s, want %s", result.Status, JobFailed)
	}
	if result.Error != "boom" {
		t.Errorf("Error = %q, want %q", result.Error, "boom")
	}
}

func TestRunJobRejectsWhenNotPending(t *testing.T) {
	s := newTestScheduler(t, 1, func(ctx context.Context, sourceID, connectorID, stream string, mode protocol.SyncMode) StreamOutcome {
		return StreamOutcome{}
	})

	job := s.CreateJob("src1", "Source One", "conn1", []string{"users"}, protocol.SyncModeIncremental)
	if _, err := s.RunJob(context.Background(), job.ID, nil); err != nil {
		t.Fatalf("first RunJob: %v", err)
	}
	if _, err := s.RunJob(context.Background(), job.ID, nil); err == nil {
		t.Error("expected an error re-running a completed job")
	}
}

func TestRunJobReturnsCapacityExceeded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	exec := func(ctx context.Context, sourceID, connectorID, stream string, mode protocol.SyncMode) StreamOutcome {
		close(started)
		<-release
		return StreamOutcome{RecordsSynced: 1}
	}
	s := newTestScheduler(t, 1, exec)

	blocking := s.CreateJob("src1", "Source One", "conn1", []string{"users"}, protocol.SyncModeIncremental)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.RunJob(context.Background(), blocking.ID, nil)
	}()

	<-started

	second := s.CreateJob("src2", "Source Two", "conn1", []string{"orders"}, protocol.SyncModeIncremental)
	if _, err := s.RunJob(context.Background(), second.ID, nil); err != ErrCapacityExceeded {
		t.Errorf("expected ErrCapacityExceeded, got %v", err)
	}

	close(release)
	wg.Wait()
}

func TestCancelJobStopsRemainingStreams(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	var s *Scheduler
	exec := func(ctx context.Context, sourceID, connectorID, stream string, mode protocol.SyncMode) StreamOutcome {
		mu.Lock()
		seen = append(seen, stream)
		mu.Unlock()

		if stream == "users" {
			s.CancelJob(currentJobID)
			<-ctx.Done() // observe cancellation like a real connector blocked on I/O would
		}
		return StreamOutcome{RecordsSynced: 1}
	}
	s = newTestScheduler(t, 1, exec)

	job := s.CreateJob("src1", "Source One", "conn1", []string{"users", "orders", "products"}, protocol.SyncModeIncremental)
	currentJobID = job.ID

	result, err := s.RunJob(context.Background(), job.ID, nil)
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if result.Status != JobCancelled {
		t.Errorf("Status = %s, want %s", result.Status, JobCancelled)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != "users" {
		t.Errorf("seen = %v, want only [users] to have started before cancellation", seen)
	}
}

// currentJobID lets the exec closure above reach into CancelJob without
// plumbing the scheduler's own job id back through ExecutorFunc's
// signature, which intentionally carries no job identifier.
var currentJobID string

func TestGetStatsCountsByStatus(t *testing.T) {
	exec := func(ctx context.Context, sourceID, connectorID, stream string, mode protocol.SyncMode) StreamOutcome {
		return StreamOutcome{RecordsSynced: 3}
	}
	s := newTestScheduler(t, 2, exec)

	ok := s.CreateJob("src1", "", "conn1", []string{"a"}, protocol.SyncModeIncremental)
	s.RunJob(context.Background(), ok.ID, nil)

	failing := s.CreateJob("src1", "", "conn1", []string{"b"}, protocol.SyncModeIncremental)
	s.RunJob(context.Background(), failing.ID, func(ctx context.Context, sourceID, connectorID, stream string, mode protocol.SyncMode) StreamOutcome {
		return StreamOutcome{Error: "nope"}
	})

	stats := s.GetStats()
	if stats.Total != 2 {
		t.Errorf("Total = %d, want 2", stats.Total)
	}
	if stats.Completed != 1 {
		t.Errorf("Completed = %d, want 1", stats.Completed)
	}
	if stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", stats.Failed)
	}
	if stats.TotalRecordsSynced != 3 {
		t.Errorf("TotalRecordsSynced = %d, want 3", stats.TotalRecordsSynced)
	}
}

func TestRegisterCallbackFiresOnFailure(t *testing.T) {
	exec := func(ctx context.Context, sourceID, connectorID, stream string, mode protocol.SyncMode) StreamOutcome {
		return StreamOutcome{Error: "down"}
	}
	s := newTestScheduler(t, 1, exec)

	var gotErr string
	done := make(chan struct{})
	s.RegisterCallback(EventJobFail, func(job *SyncJob) error {
		gotErr = job.Error
		close(done)
		return nil
	})

	job := s.CreateJob("src1", "", "conn1", []string{"a"}, protocol.SyncModeIncremental)
	s.RunJob(context.Background(), job.ID, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for EventJobFail callback")
	}
	if gotErr != "down" {
		t.Errorf("callback saw Error = %q, want %q", gotErr, "down")
	}
}
