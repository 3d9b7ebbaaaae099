package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/chorequest/internal/model"
)

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

const taskCols = `id, family_id, parent_id, child_id, name, description, icon, points, category, task_type, status,
	require_photo, photo_url, note, rejection_reason, recurrence, recurrence_day, recurrence_days, auto_publish_time,
	deadline, expiry_policy, streak_count, is_recurring, is_template, original_task_id,
	submitted_at, approved_at, completed_at, created_at, updated_at`

func scanTask(sc scanner) (*model.Task, error) {
	var t model.Task
	var recurrenceDay, originalID sql.NullInt64
	var recurrenceDays string
	var deadline, submittedAt, approvedAt, completedAt sql.NullTime
	err := sc.Scan(
		&t.ID, &t.FamilyID, &t.ParentID, &t.ChildID, &t.Name, &t.Description, &t.Icon, &t.Points, &t.Category,
		&t.TaskType, &t.Status, &t.RequirePhoto, &t.PhotoURL, &t.Note, &t.RejectionReason,
		&t.Recurrence, &recurrenceDay, &recurrenceDays, &t.AutoPublishTime,
		&deadline, &t.ExpiryPolicy, &t.StreakCount, &t.IsRecurring, &t.IsTemplate, &originalID,
		&submittedAt, &approvedAt, &completedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if recurrenceDay.Valid {
		d := int(recurrenceDay.Int64)
		t.RecurrenceDay = &d
	}
	t.RecurrenceDays = parseDays(recurrenceDays)
	t.Deadline = timePtr(deadline)
	t.OriginalTaskID = int64Ptr(originalID)
	t.SubmittedAt = timePtr(submittedAt)
	t.ApprovedAt = timePtr(approvedAt)
	t.CompletedAt = timePtr(completedAt)
	return &t, nil
}

func parseDays(s string) []int {
	if s == "" {
		return nil
	}
	var days []int
	for _, part := range strings.Split(s, ",") {
		d, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		days = append(days, d)
	}
	return days
}

func formatDays(days []int) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

func recurrenceDayArg(d *int) any {
	if d == nil {
		return nil
	}
	return *d
}

func (s *TaskStore) insert(ctx context.Context, t *model.Task, generationKey any) (sql.Result, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.Status == "" {
		t.Status = model.TaskPending
	}
	if t.TaskType == "" {
		t.TaskType = model.TaskRegular
	}
	if t.Recurrence == "" {
		t.Recurrence = model.RecurNone
	}
	if t.ExpiryPolicy == "" {
		t.ExpiryPolicy = model.ExpiryKeep
	}
	return s.db.ExecContext(ctx,
		`INSERT INTO tasks (family_id, parent_id, child_id, name, description, icon, points, category, task_type, status,
			require_photo, recurrence, recurrence_day, recurrence_days, auto_publish_time, deadline, expiry_policy,
			is_recurring, is_template, original_task_id, generation_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(generation_key) DO NOTHING`,
		t.FamilyID, t.ParentID, t.ChildID, t.Name, t.Description, t.Icon, t.Points, t.Category,
		string(t.TaskType), string(t.Status), boolInt(t.RequirePhoto),
		string(t.Recurrence), recurrenceDayArg(t.RecurrenceDay), formatDays(t.RecurrenceDays), t.AutoPublishTime,
		nullTime(t.Deadline), string(t.ExpiryPolicy), boolInt(t.IsRecurring), boolInt(t.IsTemplate),
		nullInt64(t.OriginalTaskID), generationKey, t.CreatedAt.UTC(), t.CreatedAt.UTC(),
	)
}

func (s *TaskStore) Create(ctx context.Context, t *model.Task) (*model.Task, error) {
	result, err := s.insert(ctx, t, nil)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// CreateInstance inserts a generated instance keyed by generationKey. It
// returns nil when an instance with the same key already exists.
func (s *TaskStore) CreateInstance(ctx context.Context, t *model.Task, generationKey string) (*model.Task, error) {
	result, err := s.insert(ctx, t, generationKey)
	if err != nil {
		return nil, fmt.Errorf("insert instance: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *TaskStore) GetByID(ctx context.Context, id int64) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

type TaskFilter struct {
	FamilyID  string
	ChildID   int64
	Status    model.TaskStatus
	Templates bool
}

func (s *TaskStore) List(ctx context.Context, f TaskFilter) ([]model.Task, error) {
	query := `SELECT ` + taskCols + ` FROM tasks WHERE family_id = ? AND is_template = ?`
	args := []any{f.FamilyID, boolInt(f.Templates)}
	if f.ChildID != 0 {
		query += ` AND child_id = ?`
		args = append(args, f.ChildID)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	return s.query(ctx, "list tasks", query, args...)
}

func (s *TaskStore) query(ctx context.Context, op, query string, args ...any) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// Update writes the parent-editable fields.
func (s *TaskStore) Update(ctx context.Context, t *model.Task, now time.Time) (*model.Task, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET child_id = ?, name = ?, description = ?, icon = ?, points = ?, category = ?, task_type = ?,
			require_photo = ?, recurrence = ?, recurrence_day = ?, recurrence_days = ?, auto_publish_time = ?,
			deadline = ?, expiry_policy = ?, is_recurring = ?, updated_at = ?
		 WHERE id = ?`,
		t.ChildID, t.Name, t.Description, t.Icon, t.Points, t.Category, string(t.TaskType),
		boolInt(t.RequirePhoto), string(t.Recurrence), recurrenceDayArg(t.RecurrenceDay), formatDays(t.RecurrenceDays),
		t.AutoPublishTime, nullTime(t.Deadline), string(t.ExpiryPolicy), boolInt(t.IsRecurring), now.UTC(), t.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return s.GetByID(ctx, t.ID)
}

func (s *TaskStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func (s *TaskStore) transition(ctx context.Context, op, query string, args ...any) (bool, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// Submit moves a pending or rejected task to submitted. It reports false
// when the task was in any other state.
func (s *TaskStore) Submit(ctx context.Context, id int64, photoURL, note string, now time.Time) (bool, error) {
	now = now.UTC()
	return s.transition(ctx, "submit task",
		`UPDATE tasks SET status = 'submitted', photo_url = ?, note = ?, rejection_reason = '', submitted_at = ?, updated_at = ?
		 WHERE id = ? AND is_template = 0 AND status IN ('pending', 'rejected')`,
		photoURL, note, now, now, id,
	)
}

// Approve moves a submitted task to approved. Only one caller can win.
func (s *TaskStore) Approve(ctx context.Context, id int64, now time.Time) (bool, error) {
	now = now.UTC()
	return s.transition(ctx, "approve task",
		`UPDATE tasks SET status = 'approved', approved_at = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND is_template = 0 AND status = 'submitted'`,
		now, now, now, id,
	)
}

func (s *TaskStore) Reject(ctx context.Context, id int64, reason string, now time.Time) (bool, error) {
	now = now.UTC()
	return s.transition(ctx, "reject task",
		`UPDATE tasks SET status = 'rejected', rejection_reason = ?, updated_at = ?
		 WHERE id = ? AND is_template = 0 AND status = 'submitted'`,
		reason, now, id,
	)
}

// ReopenApproval returns an approved task to submitted when its points could
// not be credited, so the approval can be retried.
func (s *TaskStore) ReopenApproval(ctx context.Context, id int64, now time.Time) (bool, error) {
	return s.transition(ctx, "reopen approval",
		`UPDATE tasks SET status = 'submitted', approved_at = NULL, completed_at = NULL, updated_at = ?
		 WHERE id = ? AND is_template = 0 AND status = 'approved'`,
		now.UTC(), id,
	)
}

// ListRecurringTemplates returns every template that spawns instances.
// An empty family lists templates across all families.
func (s *TaskStore) ListRecurringTemplates(ctx context.Context, familyID string) ([]model.Task, error) {
	return s.query(ctx, "list recurring templates",
		`SELECT `+taskCols+` FROM tasks
		 WHERE is_template = 1 AND is_recurring = 1 AND recurrence != 'none' AND (? = '' OR family_id = ?)
		 ORDER BY id`,
		familyID, familyID,
	)
}

// InstanceExists reports whether the template already produced an instance
// at or after windowStart.
func (s *TaskStore) InstanceExists(ctx context.Context, templateID int64, windowStart time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM tasks WHERE original_task_id = ? AND created_at >= ?)`,
		templateID, windowStart.UTC(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check instance: %w", err)
	}
	return exists, nil
}

// ExpiryResult counts what ApplyExpiry changed.
type ExpiryResult struct {
	Expired    int64
	RolledOver int64
}

// ApplyExpiry applies each open task's expiry policy to tasks created before
// dayStart. auto_close tasks expire, rollover tasks restart today and keep
// tasks are left alone.
func (s *TaskStore) ApplyExpiry(ctx context.Context, familyID string, dayStart, now time.Time) (ExpiryResult, error) {
	var res ExpiryResult
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now = now.UTC()
	result, err := tx.ExecContext(ctx,
		`UPDATE tasks SET status = 'expired', updated_at = ?
		 WHERE is_template = 0 AND status IN ('pending', 'submitted') AND expiry_policy = 'auto_close'
		   AND created_at < ? AND (? = '' OR family_id = ?)`,
		now, dayStart.UTC(), familyID, familyID,
	)
	if err != nil {
		return res, fmt.Errorf("expire tasks: %w", err)
	}
	if res.Expired, err = result.RowsAffected(); err != nil {
		return res, fmt.Errorf("rows affected: %w", err)
	}

	result, err = tx.ExecContext(ctx,
		`UPDATE tasks SET status = 'pending', photo_url = '', note = '', rejection_reason = '', submitted_at = NULL,
			created_at = ?, updated_at = ?
		 WHERE is_template = 0 AND status IN ('pending', 'submitted') AND expiry_policy = 'rollover'
		   AND created_at < ? AND (? = '' OR family_id = ?)`,
		now, now, dayStart.UTC(), familyID, familyID,
	)
	if err != nil {
		return res, fmt.Errorf("roll over tasks: %w", err)
	}
	if res.RolledOver, err = result.RowsAffected(); err != nil {
		return res, fmt.Errorf("rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit expiry: %w", err)
	}
	return res, nil
}

// ResetRegular bumps the streak of regular tasks approved before dayStart
// and returns every approved or rejected regular task to pending.
// Templates and generated instances are not touched.
func (s *TaskStore) ResetRegular(ctx context.Context, familyID string, dayStart, now time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const scope = `task_type = 'regular' AND is_template = 0 AND original_task_id IS NULL AND (? = '' OR family_id = ?)`
	now = now.UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE tasks SET streak_count = streak_count + 1
		 WHERE status = 'approved' AND approved_at < ? AND `+scope,
		dayStart.UTC(), familyID, familyID,
	); err != nil {
		return 0, fmt.Errorf("bump streaks: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE tasks SET status = 'pending', photo_url = '', note = '', rejection_reason = '',
			submitted_at = NULL, approved_at = NULL, completed_at = NULL, updated_at = ?
		 WHERE status IN ('approved', 'rejected') AND `+scope,
		now, familyID, familyID,
	)
	if err != nil {
		return 0, fmt.Errorf("reset regular tasks: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit reset: %w", err)
	}
	return n, nil
}

// ExpireOverdueSpecial expires open special tasks whose deadline has passed.
func (s *TaskStore) ExpireOverdueSpecial(ctx context.Context, familyID string, now time.Time) (int64, error) {
	now = now.UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = 'expired', updated_at = ?
		 WHERE task_type = 'special' AND is_template = 0 AND status IN ('pending', 'submitted')
		   AND deadline IS NOT NULL AND deadline < ? AND (? = '' OR family_id = ?)`,
		now, now, familyID, familyID,
	)
	if err != nil {
		return 0, fmt.Errorf("expire special tasks: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// MaxStreakByChild returns the longest regular-task streak held by each child.
func (s *TaskStore) MaxStreakByChild(ctx context.Context, familyID string) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT child_id, MAX(streak_count) FROM tasks
		 WHERE task_type = 'regular' AND is_template = 0 AND (? = '' OR family_id = ?)
		 GROUP BY child_id`,
		familyID, familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("max streak by child: %w", err)
	}
	defer rows.Close()

	streaks := make(map[int64]int)
	for rows.Next() {
		var childID int64
		var streak int
		if err := rows.Scan(&childID, &streak); err != nil {
			return nil, fmt.Errorf("scan streak: %w", err)
		}
		streaks[childID] = streak
	}
	return streaks, rows.Err()
}
