// Package scheduler drives recurring generation, the daily reset and due
// scheduled jobs on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/chorequest/internal/backup"
	"github.com/dukerupert/chorequest/internal/generator"
	"github.com/dukerupert/chorequest/internal/jobs"
	"github.com/dukerupert/chorequest/internal/reset"
)

const (
	tickLockKey   = "tick"
	resetTTL      = 25 * time.Hour
	backupTimeout = 10 * time.Minute
)

// Backuper snapshots the database after each daily reset.
type Backuper interface {
	Run(ctx context.Context, now time.Time) (*backup.Result, error)
}

type Scheduler struct {
	mu       sync.RWMutex
	gen      *generator.Generator
	reset    *reset.Job
	jobs     *jobs.Service
	backup   Backuper
	locker   Locker
	loc      *time.Location
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time

	lastReset string
	cancel    context.CancelFunc
	done      chan struct{}
}

type Options struct {
	Interval time.Duration
	Timeout  time.Duration
	Location *time.Location
}

// New creates a scheduler. The first daily reset happens on the first tick
// after the next local midnight.
func New(gen *generator.Generator, r *reset.Job, js *jobs.Service, locker Locker, opts Options, logger *slog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 60 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if locker == nil {
		locker = NewMemoryLocker()
	}
	s := &Scheduler{
		gen:      gen,
		reset:    r,
		jobs:     js,
		locker:   locker,
		loc:      opts.Location,
		interval: opts.Interval,
		timeout:  opts.Timeout,
		logger:   logger,
		now:      time.Now,
	}
	s.lastReset = s.dayKey(s.now())
	return s
}

func (s *Scheduler) dayKey(t time.Time) string {
	return t.In(s.loc).Format("2006-01-02")
}

// EnableBackup takes a snapshot after every successful daily reset.
func (s *Scheduler) EnableBackup(b Backuper) {
	s.mu.Lock()
	s.backup = b
	s.mu.Unlock()
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("scheduler started", "interval", s.interval)
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Tick(ctx); err != nil {
					s.logger.Error("scheduler tick failed", "error", err)
				}
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	s.logger.Info("scheduler stopped")
}

// TickResult summarises one tick.
type TickResult struct {
	Skipped   bool           `json:"skipped"`
	Generated int            `json:"generated"`
	Reset     *reset.Report  `json:"reset,omitempty"`
	Backup    *backup.Result `json:"backup,omitempty"`
	JobsRun   int            `json:"jobs_run"`
	JobsFail  int            `json:"jobs_failed"`
}

// Tick runs one pass. A pass already running anywhere that shares the
// locker makes this one a no-op.
func (s *Scheduler) Tick(ctx context.Context) error {
	_, err := s.RunTick(ctx)
	return err
}

func (s *Scheduler) RunTick(ctx context.Context) (*TickResult, error) {
	ok, err := s.locker.TryLock(ctx, tickLockKey, s.timeout)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Debug("scheduler tick skipped, already running")
		return &TickResult{Skipped: true}, nil
	}
	defer func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx), tickLockKey); err != nil {
			s.logger.Warn("release tick lock", "error", err)
		}
	}()

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now()
	res := &TickResult{}
	var errs []error

	created, err := s.gen.Run(ctx, "", now)
	if err != nil {
		errs = append(errs, fmt.Errorf("generate: %w", err))
	}
	res.Generated = len(created)

	rep, err := s.dailyReset(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("daily reset: %w", err))
	}
	res.Reset = rep
	s.mu.RLock()
	b := s.backup
	s.mu.RUnlock()
	if rep != nil && err == nil && b != nil {
		bctx, bcancel := context.WithTimeout(parent, backupTimeout)
		res.Backup, err = b.Run(bctx, now)
		bcancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("backup: %w", err))
		}
	}

	res.JobsRun, res.JobsFail, err = s.jobs.RunDue(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("due jobs: %w", err))
	}

	return res, errors.Join(errs...)
}

// dailyReset runs the reset at most once per local calendar day. The
// per-day lock is released on failure so a later tick can retry.
func (s *Scheduler) dailyReset(ctx context.Context, now time.Time) (*reset.Report, error) {
	day := s.dayKey(now)
	s.mu.RLock()
	done := s.lastReset == day
	s.mu.RUnlock()
	if done {
		return nil, nil
	}

	key := "reset:" + day
	ok, err := s.locker.TryLock(ctx, key, resetTTL)
	if err != nil {
		return nil, err
	}
	if ok {
		rep, err := s.reset.Run(ctx, "", now)
		if err != nil {
			if uerr := s.locker.Unlock(context.WithoutCancel(ctx), key); uerr != nil {
				s.logger.Warn("release reset lock", "error", uerr)
			}
			return rep, err
		}
		s.markReset(day)
		return rep, nil
	}
	s.markReset(day)
	return nil, nil
}

func (s *Scheduler) markReset(day string) {
	s.mu.Lock()
	s.lastReset = day
	s.mu.Unlock()
}
