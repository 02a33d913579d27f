package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics exports scheduler job statistics as OpenTelemetry instruments.
// It supplements GetStats's plain return value with an observability feed
// an operator can point a collector at; the scheduler itself never reads
// these instruments back.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	meter    metric.Meter

	jobOutcomes    metric.Int64Counter
	recordsSynced  metric.Int64Counter
	runningGauge   metric.Int64ObservableGauge
	scheduleGauge  metric.Int64ObservableGauge
	currentRunning atomic.Int64
	currentSched   atomic.Int64
}

// NewStdoutMetrics builds a Metrics instance that periodically exports to
// stdout — no external collector required, matching the default export
// path of the teacher's observability dependency.
func NewStdoutMetrics(serviceName string) (*Metrics, error) {
	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("scheduler: create stdout metrics exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)))
	meter := provider.Meter(serviceName)

	m := &Metrics{provider: provider, meter: meter}
	if err := m.registerInstruments(); err != nil {
		return nil, err
	}
	return m, nil
}

// NoopMetrics returns a Metrics instance backed by a no-op provider — the
// scheduler's default until a caller opts into export via SetMetrics.
func NoopMetrics() *Metrics {
	provider := sdkmetric.NewMeterProvider()
	return &Metrics{provider: provider, meter: provider.Meter("syncengine-scheduler")}
}

func (m *Metrics) registerInstruments() error {
	var err error

	m.jobOutcomes, err = m.meter.Int64Counter(
		"syncengine.scheduler.job_outcomes",
		metric.WithDescription("Count of completed sync jobs by terminal status"),
	)
	if err != nil {
		return fmt.Errorf("scheduler: create job outcome counter: %w", err)
	}

	m.recordsSynced, err = m.meter.Int64Counter(
		"syncengine.scheduler.records_synced",
		metric.WithDescription("Total records synced across all jobs"),
	)
	if err != nil {
		return fmt.Errorf("scheduler: create records synced counter: %w", err)
	}

	m.runningGauge, err = m.meter.Int64ObservableGauge(
		"syncengine.scheduler.running_jobs",
		metric.WithDescription("Jobs currently in the running state"),
	)
	if err != nil {
		return fmt.Errorf("scheduler: create running jobs gauge: %w", err)
	}

	m.scheduleGauge, err = m.meter.Int64ObservableGauge(
		"syncengine.scheduler.active_schedules",
		metric.WithDescription("Enabled cron schedules"),
	)
	if err != nil {
		return fmt.Errorf("scheduler: create active schedules gauge: %w", err)
	}

	_, err = m.meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		o.ObserveInt64(m.runningGauge, m.currentRunning.Load())
		o.ObserveInt64(m.scheduleGauge, m.currentSched.Load())
		return nil
	}, m.runningGauge, m.scheduleGauge)
	if err != nil {
		return fmt.Errorf("scheduler: register stats callback: %w", err)
	}

	return nil
}

// RecordJobOutcome increments the outcome counter for a job's terminal
// status and adds its record count to the running total.
func (m *Metrics) RecordJobOutcome(ctx context.Context, status string, recordsSynced int64) {
	if m.jobOutcomes == nil {
		return
	}
	m.jobOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	if m.recordsSynced != nil {
		m.recordsSynced.Add(ctx, recordsSynced)
	}
}

// ObserveStats updates the values the running/schedule gauges report on
// their next collection.
func (m *Metrics) ObserveStats(stats Stats) {
	m.currentRunning.Store(int64(stats.Running))
	m.currentSched.Store(int64(stats.ActiveSchedules))
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
