package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/nodebyte/syncengine/internal/protocol"
)

// cronParser accepts six-field cron expressions (with seconds) as well as
// the @every/@daily descriptor shorthand, matching the teacher's
// cron.New(cron.WithSeconds()) convention.
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CreateSchedule registers a recurring sync and starts evaluating its cron
// expression immediately. next_run_at is computed from the expression at
// creation time.
func (s *Scheduler) CreateSchedule(sourceID, sourceName, connectorID string, streams []string, syncMode protocol.SyncMode, cronExpression string) (*Schedule, error) {
	schedule := &Schedule{
		ID:             uuid.NewString(),
		SourceID:       sourceID,
		SourceName:     sourceName,
		ConnectorID:    connectorID,
		Streams:        streams,
		SyncMode:       syncMode,
		CronExpression: cronExpression,
		Enabled:        true,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	if err := s.armSchedule(schedule); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.schedules[schedule.ID] = schedule
	s.mu.Unlock()

	return schedule, nil
}

// armSchedule (re)registers a schedule's cron entry and recomputes
// next_run_at. Called on creation and update; RunScheduledSync recomputes
// next_run_at itself after every triggered run.
func (s *Scheduler) armSchedule(schedule *Schedule) error {
	sched, err := cronParser.Parse(schedule.CronExpression)
	if err != nil {
		return fmt.Errorf("scheduler: invalid cron expression %q: %w", schedule.CronExpression, err)
	}
	schedule.NextRunAt = sched.Next(time.Now().UTC())

	if schedule.cronID != 0 {
		s.cron.Remove(cron.EntryID(schedule.cronID))
		schedule.cronID = 0
	}
	if !schedule.Enabled {
		return nil
	}

	id, err := s.cron.AddFunc(schedule.CronExpression, func() {
		if _, err := s.RunScheduledSync(context.Background(), schedule.ID); err != nil {
			s.logger.Error().Err(err).Str("schedule_id", schedule.ID).Msg("scheduler: scheduled run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("scheduler: register cron entry: %w", err)
	}
	schedule.cronID = cronEntryID(id)
	return nil
}

// GetSchedule returns the schedule by id, or false if unknown.
func (s *Scheduler) GetSchedule(scheduleID string) (*Schedule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedule, ok := s.schedules[scheduleID]
	return schedule, ok
}

// createScheduleWithID is CreateSchedule with a caller-supplied id, used by
// the schedules.yaml watcher so a file entry's id is stable across reloads
// instead of minting a fresh uuid on every reconciliation.
func (s *Scheduler) createScheduleWithID(id, sourceID, sourceName, connectorID string, streams []string, syncMode protocol.SyncMode, cronExpression string, enabled bool) (*Schedule, error) {
	schedule := &Schedule{
		ID:             id,
		SourceID:       sourceID,
		SourceName:     sourceName,
		ConnectorID:    connectorID,
		Streams:        streams,
		SyncMode:       syncMode,
		CronExpression: cronExpression,
		Enabled:        enabled,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	if err := s.armSchedule(schedule); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.schedules[schedule.ID] = schedule
	s.mu.Unlock()

	return schedule, nil
}

// UpdateSchedule replaces a schedule's cron expression, streams, sync mode,
// or enabled flag and rearms its cron entry.
func (s *Scheduler) UpdateSchedule(scheduleID string, mutate func(*Schedule)) (*Schedule, error) {
	s.mu.Lock()
	schedule, ok := s.schedules[scheduleID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("scheduler: unknown schedule %s", scheduleID)
	}
	mutate(schedule)
	schedule.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()

	if err := s.armSchedule(schedule); err != nil {
		return nil, err
	}
	return schedule, nil
}

// DeleteSchedule removes a schedule and its cron entry.
func (s *Scheduler) DeleteSchedule(scheduleID string) bool {
	s.mu.Lock()
	schedule, ok := s.schedules[scheduleID]
	if ok {
		delete(s.schedules, scheduleID)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	if schedule.cronID != 0 {
		s.cron.Remove(cron.EntryID(schedule.cronID))
	}
	return true
}

// ListSchedules returns every registered schedule.
func (s *Scheduler) ListSchedules() []*Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		out = append(out, sched)
	}
	return out
}

// RunScheduledSync creates a fresh SyncJob tagged with the triggering
// schedule, runs it synchronously, increments run_count, and recomputes
// next_run_at.
func (s *Scheduler) RunScheduledSync(ctx context.Context, scheduleID string) (*SyncJob, error) {
	s.mu.Lock()
	schedule, ok := s.schedules[scheduleID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("scheduler: unknown schedule %s", scheduleID)
	}

	job := s.CreateJob(schedule.SourceID, schedule.SourceName, schedule.ConnectorID, schedule.Streams, schedule.SyncMode)
	job.Metadata["schedule_id"] = schedule.ID

	result, err := s.RunJob(ctx, job.ID, nil)

	s.mu.Lock()
	schedule.RunCount++
	schedule.LastRunAt = time.Now().UTC()
	if sched, parseErr := cronParser.Parse(schedule.CronExpression); parseErr == nil {
		schedule.NextRunAt = sched.Next(schedule.LastRunAt)
	}
	s.mu.Unlock()

	return result, err
}
