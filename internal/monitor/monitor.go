// Package monitor re-runs the diagnostics sweep on a cron schedule and
// keeps the gate's verdict fresh while the daemon is running.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/lantern/officedesk/internal/preflight"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Sweeper runs a diagnostics sweep and returns the report.
type Sweeper interface {
	Run(ctx context.Context) preflight.Report
}

// Config holds the dependencies for the monitor.
type Config struct {
	Sweeper  Sweeper
	Gate     *preflight.Gate
	Schedule string        // cron expression; must be non-empty
	Logger   *slog.Logger
	Interval time.Duration // tick interval; defaults to 1 minute if zero
	OnReport func(preflight.Report)
}

// Monitor periodically checks whether the schedule is due and re-runs
// the diagnostics sweep when it is.
type Monitor struct {
	sweeper  Sweeper
	gate     *preflight.Gate
	schedule cronlib.Schedule
	logger   *slog.Logger
	interval time.Duration
	onReport func(preflight.Report)

	mu      sync.Mutex
	nextRun time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Monitor. It returns an error if the cron expression
// does not parse.
func New(cfg Config) (*Monitor, error) {
	sched, err := cronParser.Parse(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cfg.Schedule, err)
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 1 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		sweeper:  cfg.Sweeper,
		gate:     cfg.Gate,
		schedule: sched,
		logger:   logger,
		interval: interval,
		onReport: cfg.OnReport,
		nextRun:  sched.Next(time.Now()),
	}, nil
}

// NextRun reports when the next scheduled sweep is due.
func (m *Monitor) NextRun() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextRun
}

// Start begins the monitor loop. It runs in a background goroutine
// and respects the provided context for shutdown.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.loop(ctx)
	m.logger.Info("diagnostics monitor started", "interval", m.interval, "next_run", m.NextRun())
}

// Stop cancels the monitor loop and waits for it to exit.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.logger.Info("diagnostics monitor stopped")
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx, time.Now())
		}
	}
}

// tick fires a sweep when the schedule is due and advances nextRun.
func (m *Monitor) tick(ctx context.Context, now time.Time) {
	m.mu.Lock()
	due := !now.Before(m.nextRun)
	if due {
		m.nextRun = m.schedule.Next(now)
	}
	m.mu.Unlock()

	if !due {
		return
	}

	report := m.sweeper.Run(ctx)
	m.gate.Record(report)
	m.logger.Info("scheduled diagnostics sweep completed",
		"status", report.Status,
		"next_run", m.NextRun(),
	)
	if m.onReport != nil {
		m.onReport(report)
	}
}

// NextRunTime parses the cron expression and returns the next run time after the given time.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return sched.Next(after), nil
}
