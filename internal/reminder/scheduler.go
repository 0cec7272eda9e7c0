// Package reminder runs the background scan that dispatches due reminders.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"remindcal/internal/models"
	"remindcal/internal/notify"
	"remindcal/internal/store"

	"github.com/robfig/cron/v3"
)

const (
	DefaultInterval    = time.Minute
	DefaultGrace       = 5 * time.Second
	DefaultSendTimeout = 10 * time.Second

	// flagAttempts bounds how often a sent-flag write is retried after a concurrent edit.
	flagAttempts = 3
	// flagTimeout bounds the sent-flag write, which runs detached from the cycle context.
	flagTimeout = 5 * time.Second
)

// Config tunes the scheduler. Zero fields fall back to the defaults.
type Config struct {
	Interval    time.Duration
	Grace       time.Duration
	SendTimeout time.Duration
	Location    *time.Location
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Grace <= 0 {
		c.Grace = DefaultGrace
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

// CycleReport summarizes one scan.
type CycleReport struct {
	Scanned   int // events read from the store
	Due       int // events whose reminder was due
	Sent      int // reminders accepted by the sink
	Failed    int // sink failures and sent-flag writes that failed
	Skipped   int // due events without an owner
	Conflicts int // sent-flag writes that raced a concurrent edit
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock used to decide whether a reminder is due.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler periodically scans every owner's events and dispatches due reminders.
// It is either stopped or running; Start and Stop move between the two.
type Scheduler struct {
	logger *slog.Logger
	events store.EventStore
	sink   notify.Sink
	cfg    Config
	now    func() time.Time

	mu        sync.Mutex
	cron      *cron.Cron
	cancel    context.CancelFunc
	firstDone chan struct{}
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(logger *slog.Logger, events store.EventStore, sink notify.Sink, cfg Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		logger: logger,
		events: events,
		sink:   sink,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Running reports whether the scheduler has been started and not stopped.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// Start runs a cycle immediately and then one per interval. Cycles never overlap.
// Calling Start on a running scheduler does nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		s.logger.Warn("Reminder scheduler already running.")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	id := c.Schedule(cron.Every(s.cfg.Interval), cron.FuncJob(func() { s.runScheduled(ctx) }))
	first := c.Entry(id).WrappedJob

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		first.Run()
	}()
	c.Start()

	s.cron = c
	s.cancel = cancel
	s.firstDone = firstDone
	s.logger.Info("Reminder scheduler started.", "interval", s.cfg.Interval)
}

// Stop stops scheduling new cycles and waits up to the grace period for an in-flight
// cycle to finish before cancelling it. Stopping a stopped scheduler does nothing.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel, firstDone := s.cron, s.cancel, s.firstDone
	s.cron, s.cancel, s.firstDone = nil, nil, nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	jobsDone := c.Stop()
	idle := make(chan struct{})
	go func() {
		<-jobsDone.Done()
		<-firstDone
		close(idle)
	}()

	grace := time.NewTimer(s.cfg.Grace)
	defer grace.Stop()

	select {
	case <-idle:
	case <-grace.C:
		s.logger.Warn("Reminder cycle did not finish within grace period, cancelling.", "grace", s.cfg.Grace)
	case <-ctx.Done():
	}
	cancel()

	select {
	case <-idle:
	case <-ctx.Done():
		return fmt.Errorf("stop reminder scheduler: %w", ctx.Err())
	}
	s.logger.Info("Reminder scheduler stopped.")
	return nil
}

func (s *Scheduler) runScheduled(ctx context.Context) {
	report, err := s.RunCycle(ctx)
	if err != nil {
		s.logger.Error("Reminder cycle failed.", "error", err)
		return
	}
	if report.Due > 0 {
		s.logger.Info("Reminder cycle finished.",
			"scanned", report.Scanned, "due", report.Due, "sent", report.Sent,
			"failed", report.Failed, "skipped", report.Skipped, "conflicts", report.Conflicts)
	}
}

// RunCycle performs a single scan. One event's failure never aborts the cycle;
// an error is returned only when the scan itself fails or ctx is cancelled.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleReport, error) {
	var report CycleReport
	now := s.now()

	events, err := s.events.FindAllGlobal(ctx)
	if err != nil {
		return report, fmt.Errorf("scan events: %w", err)
	}
	report.Scanned = len(events)

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !ev.ReminderDue(now) {
			continue
		}
		report.Due++

		if ev.OwnerID == 0 {
			report.Skipped++
			s.logger.Warn("Skipping reminder for event without owner.", "eventID", ev.ID)
			continue
		}

		if err := s.dispatch(ctx, ev); err != nil {
			report.Failed++
			s.logger.Error("Failed to send reminder.", "eventID", ev.ID, "ownerID", ev.OwnerID, "error", err)
			continue
		}
		report.Sent++

		conflicts, err := s.markSent(ctx, ev)
		report.Conflicts += conflicts
		if err != nil {
			report.Failed++
			s.logger.Error("Failed to mark reminder as sent.", "eventID", ev.ID, "ownerID", ev.OwnerID, "error", err)
		}
	}
	return report, nil
}

func (s *Scheduler) dispatch(ctx context.Context, ev models.Event) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()
	return s.sink.Notify(sendCtx, ev.OwnerID, Render(ev, s.cfg.Location))
}

// markSent persists the sent flag conditionally on the version that was read. When a
// concurrent edit wins, the event is re-read: if the edit kept the reminder time the flag
// is written on the fresh version, otherwise the edit re-armed the reminder and the flag
// stays unset.
//
// The write is detached from ctx cancellation: a delivered reminder is flagged even when
// Stop cancels the cycle.
func (s *Scheduler) markSent(ctx context.Context, ev models.Event) (int, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flagTimeout)
	defer cancel()

	sentFor := ev.ReminderTime
	conflicts := 0
	for attempt := 1; attempt <= flagAttempts; attempt++ {
		ev.ReminderSent = true
		_, err := s.events.Update(ctx, ev)
		switch {
		case err == nil:
			return conflicts, nil
		case errors.Is(err, models.ErrNotFound):
			s.logger.Debug("Event deleted before reminder was marked sent.", "eventID", ev.ID)
			return conflicts, nil
		case !errors.Is(err, models.ErrConflict):
			return conflicts, err
		}
		conflicts++

		fresh, found, ferr := s.events.FindByID(ctx, ev.ID, ev.OwnerID)
		if ferr != nil {
			return conflicts, ferr
		}
		if !found {
			return conflicts, nil
		}
		if fresh.ReminderSent || !models.SameReminderTime(fresh.ReminderTime, sentFor) {
			s.logger.Info("Event edited while reminder was sent, leaving flag to the new state.",
				"eventID", ev.ID, "ownerID", ev.OwnerID)
			return conflicts, nil
		}
		ev = fresh
	}
	return conflicts, fmt.Errorf("mark reminder sent for %s: %w", ev.ID, models.ErrConflict)
}
