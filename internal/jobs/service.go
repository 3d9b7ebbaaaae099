// Package jobs manages user-owned scheduled jobs and executes them.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/generator"
	"github.com/dukerupert/chorequest/internal/ledger"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/reset"
	"github.com/dukerupert/chorequest/internal/store"
)

type Service struct {
	jobs   *store.JobStore
	reset  *reset.Job
	gen    *generator.Generator
	ledger *ledger.Ledger
	logger *slog.Logger
	now    func() time.Time
}

func NewService(jobs *store.JobStore, r *reset.Job, gen *generator.Generator, l *ledger.Ledger, logger *slog.Logger) *Service {
	return &Service{jobs: jobs, reset: r, gen: gen, ledger: l, logger: logger, now: time.Now}
}

// NextRun returns when a job of the given frequency runs after now.
func NextRun(freq model.JobFrequency, now time.Time) time.Time {
	switch freq {
	case model.FreqMinutely:
		return now.Add(time.Minute)
	case model.FreqHourly:
		return now.Add(time.Hour)
	default:
		return now.AddDate(0, 0, 1)
	}
}

func validFrequency(f model.JobFrequency) bool {
	switch f {
	case model.FreqMinutely, model.FreqHourly, model.FreqDaily:
		return true
	}
	return false
}

func requireParent(actor auth.AuthContext) error {
	if !actor.IsParent() {
		return apperr.New(apperr.KindForbidden, "only parents can manage jobs")
	}
	return nil
}

// Create stores a stopped job owned by the actor. The job type is not
// checked here; an unrecognised type fails when the job executes.
func (s *Service) Create(ctx context.Context, actor auth.AuthContext, j *model.ScheduledJob) (*model.ScheduledJob, error) {
	if err := requireParent(actor); err != nil {
		return nil, err
	}
	j.Name = strings.TrimSpace(j.Name)
	if j.Name == "" {
		return nil, apperr.InvalidInput("name is required")
	}
	if j.JobType == "" {
		return nil, apperr.InvalidInput("job_type is required")
	}
	if j.Frequency == "" {
		j.Frequency = model.FreqDaily
	}
	if !validFrequency(j.Frequency) {
		return nil, apperr.Newf(apperr.KindInvalidInput, "unknown frequency %q", j.Frequency)
	}
	j.UserID = actor.UserID
	j.FamilyID = actor.FamilyID
	return s.jobs.Create(ctx, j, s.now())
}

func (s *Service) List(ctx context.Context, actor auth.AuthContext) ([]model.ScheduledJob, error) {
	return s.jobs.ListByUser(ctx, actor.UserID)
}

// Get returns a job owned by the actor.
func (s *Service) Get(ctx context.Context, actor auth.AuthContext, id int64) (*model.ScheduledJob, error) {
	j, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if j == nil || j.UserID != actor.UserID {
		return nil, apperr.NotFound("job")
	}
	return j, nil
}

// Start marks the job running and due immediately.
func (s *Service) Start(ctx context.Context, actor auth.AuthContext, id int64) (*model.ScheduledJob, error) {
	j, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.jobs.SetStatus(ctx, j.ID, model.JobRunning, &now, now); err != nil {
		return nil, err
	}
	s.logger.Info("job started", "job_id", j.ID, "job_type", j.JobType)
	return s.jobs.GetByID(ctx, j.ID)
}

func (s *Service) Stop(ctx context.Context, actor auth.AuthContext, id int64) (*model.ScheduledJob, error) {
	j, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.jobs.SetStatus(ctx, j.ID, model.JobStopped, nil, s.now()); err != nil {
		return nil, err
	}
	s.logger.Info("job stopped", "job_id", j.ID)
	return s.jobs.GetByID(ctx, j.ID)
}

func (s *Service) Delete(ctx context.Context, actor auth.AuthContext, id int64) error {
	j, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	return s.jobs.Delete(ctx, j.ID)
}

// RunNow executes the job once regardless of its schedule and returns the
// updated statistics alongside the execution error, if any.
func (s *Service) RunNow(ctx context.Context, actor auth.AuthContext, id int64) (*model.ScheduledJob, error) {
	j, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	runErr := s.Execute(ctx, j)
	updated, err := s.jobs.GetByID(ctx, j.ID)
	if err != nil {
		return nil, err
	}
	return updated, runErr
}

// Execute runs the job and records the outcome in its statistics. The
// execution error is returned after it has been recorded.
func (s *Service) Execute(ctx context.Context, j *model.ScheduledJob) error {
	now := s.now()
	runErr := s.dispatch(ctx, j, now)

	next := NextRun(j.Frequency, now)
	if err := s.jobs.RecordRun(ctx, j.ID, runErr, &next, now); err != nil {
		return err
	}
	if runErr != nil {
		s.logger.Error("job failed", "job_id", j.ID, "job_type", j.JobType, "error", runErr)
		return fmt.Errorf("job %d: %w", j.ID, runErr)
	}
	s.logger.Debug("job succeeded", "job_id", j.ID, "job_type", j.JobType)
	return nil
}

func (s *Service) dispatch(ctx context.Context, j *model.ScheduledJob, now time.Time) error {
	switch j.JobType {
	case model.JobDailyReset:
		_, err := s.reset.Run(ctx, j.FamilyID, now)
		return err
	case model.JobRecurringTasks:
		_, err := s.gen.Run(ctx, j.FamilyID, now)
		return err
	case model.JobInterest:
		_, err := s.ledger.AccrueAll(ctx, j.FamilyID, now)
		return err
	default:
		return apperr.Newf(apperr.KindUnimplemented, "unknown job type %q", j.JobType)
	}
}

// RunDue executes every running job whose next run time has passed. A
// failing job does not stop the others; the count of failures is returned.
func (s *Service) RunDue(ctx context.Context) (ran, failed int, err error) {
	due, err := s.jobs.ListDue(ctx, s.now())
	if err != nil {
		return 0, 0, err
	}
	for i := range due {
		ran++
		if err := s.Execute(ctx, &due[i]); err != nil {
			failed++
		}
	}
	return ran, failed, nil
}
