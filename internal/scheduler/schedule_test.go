package scheduler

import (
	"context"
	"testing"

	"github.com/nodebyte/syncengine/internal/protocol"
)

func TestCreateScheduleArmsNextRunAt(t *testing.T) {
	s := newTestScheduler(t, 1, func(ctx context.Context, sourceID, connectorID, stream string, mode protocol.SyncMode) StreamOutcome {
		return StreamOutcome{}
	})

	sched, err := s.CreateSchedule("src1", "Source One", "conn1", []string{"users"}, protocol.SyncModeIncremental, "0 */5 * * * *")
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	if sched.NextRunAt.IsZero() {
		t.Error("expected NextRunAt to be set")
	}
	if _, ok := s.GetSchedule(sched.ID); !ok {
		t.Error("expected schedule to be retrievable by id")
	}
}

func TestCreateScheduleRejectsInvalidCron(t *testing.T) {
	s := newTestScheduler(t, 1, nil)

	if _, err := s.CreateSchedule("src1", "", "conn1", []string{"users"}, protocol.SyncModeIncremental, "not a cron expression"); err == nil {
		t.Error("expected an error for an invalid cron expression")
	}
}

func TestUpdateScheduleRearmsCron(t *testing.T) {
	s := newTestScheduler(t, 1, nil)

	sched, err := s.CreateSchedule("src1", "", "conn1", []string{"users"}, protocol.SyncModeIncremental, "0 0 * * * *")
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	firstNextRun := sched.NextRunAt

	updated, err := s.UpdateSchedule(sched.ID, func(sc *Schedule) {
		sc.CronExpression = "30 * * * * *"
	})
	if err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}
	if updated.NextRunAt.Equal(firstNextRun) {
		t.Error("expected NextRunAt to change after rearming with a different cron expression")
	}
}

func TestUpdateScheduleDisablingSkipsCronEntry(t *testing.T) {
	s := newTestScheduler(t, 1, nil)

	sched, err := s.CreateSchedule("src1", "", "conn1", []string{"users"}, protocol.SyncModeIncremental, "0 0 * * * *")
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}

	disabled, err := s.UpdateSchedule(sched.ID, func(sc *Schedule) {
		sc.Enabled = false
	})
	if err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}
	if disabled.cronID != 0 {
		t.Error("expected cronID to be reset to 0 after disabling a schedule")
	}

	reenabled, err := s.UpdateSchedule(sched.ID, func(sc *Schedule) {
		sc.Enabled = true
	})
	if err != nil {
		t.Fatalf("re-enabling UpdateSchedule: %v", err)
	}
	if reenabled.cronID == 0 {
		t.Error("expected cronID to be set again after re-enabling a schedule")
	}
}

func TestDeleteScheduleRemovesIt(t *testing.T) {
	s := newTestScheduler(t, 1, nil)

	sched, _ := s.CreateSchedule("src1", "", "conn1", []string{"users"}, protocol.SyncModeIncremental, "0 0 * * * *")

	if !s.DeleteSchedule(sched.ID) {
		t.Fatal("expected DeleteSchedule to report success")
	}
	if _, ok := s.GetSchedule(sched.ID); ok {
		t.Error("expected schedule to be gone after deletion")
	}
	if s.DeleteSchedule(sched.ID) {
		t.Error("expected deleting an already-deleted schedule to report failure")
	}
}

func TestRunScheduledSyncIncrementsRunCount(t *testing.T) {
	s := newTestScheduler(t, 1, func(ctx context.Context, sourceID, connectorID, stream string, mode protocol.SyncMode) StreamOutcome {
		return StreamOutcome{RecordsSynced: 7}
	})

	sched, err := s.CreateSchedule("src1", "", "conn1", []string{"users"}, protocol.SyncModeIncremental, "0 0 * * * *")
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}

	job, err := s.RunScheduledSync(context.Background(), sched.ID)
	if err != nil {
		t.Fatalf("RunScheduledSync: %v", err)
	}
	if job.Metadata["schedule_id"] != sched.ID {
		t.Errorf("expected job metadata to tag schedule_id = %s", sched.ID)
	}

	updated, _ := s.GetSchedule(sched.ID)
	if updated.RunCount != 1 {
		t.Errorf("RunCount = %d, want 1", updated.RunCount)
	}
	if updated.LastRunAt.IsZero() {
		t.Error("expected LastRunAt to be set")
	}
}

func TestListSchedulesReturnsAll(t *testing.T) {
	s := newTestScheduler(t, 1, nil)

	s.CreateSchedule("src1", "", "conn1", []string{"a"}, protocol.SyncModeIncremental, "0 0 * * * *")
	s.CreateSchedule("src2", "", "conn1", []string{"b"}, protocol.SyncModeIncremental, "0 0 * * * *")

	if got := len(s.ListSchedules()); got != 2 {
		t.Errorf("ListSchedules returned %d entries, want 2", got)
	}
}
