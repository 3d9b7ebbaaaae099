package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/chorequest/internal/model"
)

type JobStore struct {
	db *sql.DB
}

func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

const jobCols = `id, user_id, family_id, name, job_type, frequency, status, run_count, success_count, error_count,
	last_error, last_run_at, next_run_at, created_at, updated_at`

func scanJob(sc scanner) (*model.ScheduledJob, error) {
	var j model.ScheduledJob
	var lastRun, nextRun sql.NullTime
	err := sc.Scan(&j.ID, &j.UserID, &j.FamilyID, &j.Name, &j.JobType, &j.Frequency, &j.Status,
		&j.RunCount, &j.SuccessCount, &j.ErrorCount, &j.LastError, &lastRun, &nextRun, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.LastRunAt = timePtr(lastRun)
	j.NextRunAt = timePtr(nextRun)
	return &j, nil
}

func (s *JobStore) Create(ctx context.Context, j *model.ScheduledJob, now time.Time) (*model.ScheduledJob, error) {
	now = now.UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_jobs (user_id, family_id, name, job_type, frequency, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 'stopped', ?, ?)`,
		j.UserID, j.FamilyID, j.Name, string(j.JobType), string(j.Frequency), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *JobStore) GetByID(ctx context.Context, id int64) (*model.ScheduledJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobCols+` FROM scheduled_jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *JobStore) ListByUser(ctx context.Context, userID int64) ([]model.ScheduledJob, error) {
	return s.list(ctx, "list jobs", `SELECT `+jobCols+` FROM scheduled_jobs WHERE user_id = ? ORDER BY id`, userID)
}

// ListDue returns running jobs whose next run time has arrived.
func (s *JobStore) ListDue(ctx context.Context, now time.Time) ([]model.ScheduledJob, error) {
	return s.list(ctx, "list due jobs",
		`SELECT `+jobCols+` FROM scheduled_jobs
		 WHERE status = 'running' AND next_run_at IS NOT NULL AND next_run_at <= ?
		 ORDER BY next_run_at, id`,
		now.UTC(),
	)
}

func (s *JobStore) list(ctx context.Context, op, query string, args ...any) ([]model.ScheduledJob, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var jobs []model.ScheduledJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// SetStatus changes the job status and next run time.
func (s *JobStore) SetStatus(ctx context.Context, id int64, status model.JobStatus, nextRun *time.Time, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET status = ?, next_run_at = ?, updated_at = ? WHERE id = ?`,
		string(status), nullTime(nextRun), now.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set job status: %w", err)
	}
	return nil
}

// RecordRun updates the run statistics after one execution. A nil runErr
// counts as a success; otherwise the error is stored and the job is
// flagged with status error.
func (s *JobStore) RecordRun(ctx context.Context, id int64, runErr error, nextRun *time.Time, now time.Time) error {
	now = now.UTC()
	var err error
	if runErr == nil {
		_, err = s.db.ExecContext(ctx,
			`UPDATE scheduled_jobs SET run_count = run_count + 1, success_count = success_count + 1,
				last_run_at = ?, next_run_at = CASE WHEN status = 'running' THEN ? ELSE next_run_at END, updated_at = ?
			 WHERE id = ?`,
			now, nullTime(nextRun), now, id,
		)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE scheduled_jobs SET run_count = run_count + 1, error_count = error_count + 1, last_error = ?,
				status = 'error', last_run_at = ?, next_run_at = NULL, updated_at = ?
			 WHERE id = ?`,
			runErr.Error(), now, now, id,
		)
	}
	if err != nil {
		return fmt.Errorf("record job run: %w", err)
	}
	return nil
}

func (s *JobStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}
