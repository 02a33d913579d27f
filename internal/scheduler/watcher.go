package scheduler

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/nodebyte/syncengine/internal/protocol"
)

// fileSchedule is one entry of the operator-edited schedules.yaml,
// supplementing schedules created programmatically via CreateSchedule.
type fileSchedule struct {
	ID          string   `yaml:"id"`
	SourceID    string   `yaml:"source_id"`
	SourceName  string   `yaml:"source_name"`
	ConnectorID string   `yaml:"connector_id"`
	Streams     []string `yaml:"streams"`
	SyncMode    string   `yaml:"sync_mode"`
	Cron        string   `yaml:"cron"`
	Enabled     bool     `yaml:"enabled"`
}

type schedulesFile struct {
	Schedules []fileSchedule `yaml:"schedules"`
}

// ScheduleWatcher watches a schedules.yaml file and reconciles the
// scheduler's cron-backed schedules against it on every write, debouncing
// rapid successive writes the way a text editor's save produces them.
type ScheduleWatcher struct {
	path      string
	scheduler *Scheduler
	watcher   *fsnotify.Watcher
	logger    zerolog.Logger

	mu            sync.Mutex
	debounceTimer *time.Timer
	debouncePeriod time.Duration

	// fromFile tracks which live schedule IDs were created from this file,
	// so a schedule removed from schedules.yaml is deleted rather than left
	// orphaned, without touching schedules created via CreateSchedule.
	fromFile map[string]bool
}

// NewScheduleWatcher creates a watcher for path. Call Start to begin
// watching; the initial file contents are not loaded until the first
// Reload call.
func NewScheduleWatcher(path string, sched *Scheduler, logger zerolog.Logger) (*ScheduleWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("scheduler: create schedules.yaml watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("scheduler: watch schedules.yaml: %w", err)
	}

	return &ScheduleWatcher{
		path:           path,
		scheduler:      sched,
		watcher:        w,
		logger:         logger,
		debouncePeriod: 500 * time.Millisecond,
		fromFile:       make(map[string]bool),
	}, nil
}

// Start loads the current file contents and begins watching for changes.
func (w *ScheduleWatcher) Start() error {
	if err := w.Reload(); err != nil {
		return err
	}
	go w.watchLoop()
	return nil
}

func (w *ScheduleWatcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				w.scheduleReload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("scheduler: schedules.yaml watcher error")
		}
	}
}

func (w *ScheduleWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debouncePeriod, func() {
		if err := w.Reload(); err != nil {
			w.logger.Error().Err(err).Msg("scheduler: schedules.yaml reload failed")
		}
	})
}

// Reload reads the file, then reconciles it against the scheduler's live
// schedules: new entries are created, changed entries are updated in
// place (rearming their cron entry), and entries removed from the file are
// deleted — but only among schedules this watcher itself created.
func (w *ScheduleWatcher) Reload() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("scheduler: read schedules.yaml: %w", err)
	}

	var parsed schedulesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("scheduler: parse schedules.yaml: %w", err)
	}

	seen := make(map[string]bool, len(parsed.Schedules))
	for _, entry := range parsed.Schedules {
		if entry.ID == "" {
			w.logger.Warn().Msg("scheduler: schedules.yaml entry missing id, skipped")
			continue
		}
		seen[entry.ID] = true

		syncMode := protocol.SyncMode(entry.SyncMode)
		if syncMode == "" {
			syncMode = protocol.SyncModeIncremental
		}

		if existing, ok := w.scheduler.GetSchedule(entry.ID); ok {
			if _, err := w.scheduler.UpdateSchedule(existing.ID, func(s *Schedule) {
				s.SourceID = entry.SourceID
				s.SourceName = entry.SourceName
				s.ConnectorID = entry.ConnectorID
				s.Streams = entry.Streams
				s.SyncMode = syncMode
				s.CronExpression = entry.Cron
				s.Enabled = entry.Enabled
			}); err != nil {
				w.logger.Error().Err(err).Str("schedule_id", entry.ID).Msg("scheduler: update from schedules.yaml failed")
				continue
			}
		} else {
			created, err := w.scheduler.createScheduleWithID(entry.ID, entry.SourceID, entry.SourceName, entry.ConnectorID, entry.Streams, syncMode, entry.Cron, entry.Enabled)
			if err != nil {
				w.logger.Error().Err(err).Str("schedule_id", entry.ID).Msg("scheduler: create from schedules.yaml failed")
				continue
			}
			_ = created
		}
		w.fromFile[entry.ID] = true
	}

	for id := range w.fromFile {
		if !seen[id] {
			w.scheduler.DeleteSchedule(id)
			delete(w.fromFile, id)
		}
	}

	w.logger.Info().Str("path", w.path).Int("schedules", len(seen)).Msg("scheduler: schedules.yaml reloaded")
	return nil
}

// Stop stops watching the file.
func (w *ScheduleWatcher) Stop() error {
	return w.watcher.Close()
}
