package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/gamification"
	"github.com/dukerupert/chorequest/internal/ledger"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/recurrence"
	"github.com/dukerupert/chorequest/internal/store"
)

// Events receives task changes for live updates and notifications.
type Events interface {
	TaskChanged(ctx context.Context, t *model.Task, action string)
}

type Service struct {
	tasks  *store.TaskStore
	users  *store.UserStore
	ledger *ledger.Ledger
	game   *gamification.Engine
	events Events
	logger *slog.Logger
	now    func() time.Time
}

func NewService(tasks *store.TaskStore, users *store.UserStore, l *ledger.Ledger, game *gamification.Engine, events Events, logger *slog.Logger) *Service {
	return &Service{tasks: tasks, users: users, ledger: l, game: game, events: events, logger: logger, now: time.Now}
}

func (s *Service) emit(ctx context.Context, t *model.Task, action string) {
	if s.events != nil {
		s.events.TaskChanged(ctx, t, action)
	}
}

// Get returns a task visible to the actor. Children see only their own.
func (s *Service) Get(ctx context.Context, actor auth.AuthContext, id int64) (*model.Task, error) {
	t, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil || t.FamilyID != actor.FamilyID {
		return nil, apperr.NotFound("task")
	}
	if !actor.IsParent() && t.ChildID != actor.UserID {
		return nil, apperr.NotFound("task")
	}
	return t, nil
}

func (s *Service) List(ctx context.Context, actor auth.AuthContext, f store.TaskFilter) ([]model.Task, error) {
	f.FamilyID = actor.FamilyID
	if !actor.IsParent() {
		f.ChildID = actor.UserID
		f.Templates = false
	}
	return s.tasks.List(ctx, f)
}

func (s *Service) checkChild(ctx context.Context, actor auth.AuthContext, childID int64) error {
	child, err := s.users.GetByID(ctx, childID)
	if err != nil {
		return err
	}
	if child == nil || child.FamilyID != actor.FamilyID || child.Role != model.RoleChild {
		return apperr.InvalidInput("child not found in this family")
	}
	return nil
}

// Create adds a task or, when t.IsTemplate is set, a recurring template.
func (s *Service) Create(ctx context.Context, actor auth.AuthContext, t *model.Task) (*model.Task, error) {
	if !actor.IsParent() {
		return nil, apperr.New(apperr.KindForbidden, "only parents can create tasks")
	}
	if err := s.checkChild(ctx, actor, t.ChildID); err != nil {
		return nil, err
	}
	t.FamilyID = actor.FamilyID
	t.ParentID = actor.UserID
	t.Status = model.TaskPending
	t.CreatedAt = s.now()
	if t.IsTemplate {
		t.IsRecurring = true
		if _, err := recurrence.FromTask(t); err != nil {
			return nil, apperr.InvalidInput(err.Error())
		}
	} else {
		t.Recurrence = model.RecurNone
		t.IsRecurring = false
	}

	created, err := s.tasks.Create(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	if !created.IsTemplate {
		s.emit(ctx, created, "created")
	}
	return created, nil
}

// Update rewrites the editable fields of a task or template.
func (s *Service) Update(ctx context.Context, actor auth.AuthContext, t *model.Task) (*model.Task, error) {
	if !actor.IsParent() {
		return nil, apperr.New(apperr.KindForbidden, "only parents can edit tasks")
	}
	existing, err := s.Get(ctx, actor, t.ID)
	if err != nil {
		return nil, err
	}
	if err := s.checkChild(ctx, actor, t.ChildID); err != nil {
		return nil, err
	}
	if existing.IsTemplate {
		t.IsTemplate = true
		t.IsRecurring = true
		if _, err := recurrence.FromTask(t); err != nil {
			return nil, apperr.InvalidInput(err.Error())
		}
	} else {
		t.Recurrence = model.RecurNone
		t.IsRecurring = false
	}

	updated, err := s.tasks.Update(ctx, t, s.now())
	if err != nil {
		return nil, err
	}
	if !updated.IsTemplate {
		s.emit(ctx, updated, "updated")
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.AuthContext, id int64) error {
	if !actor.IsParent() {
		return apperr.New(apperr.KindForbidden, "only parents can delete tasks")
	}
	t, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.tasks.Delete(ctx, id); err != nil {
		return err
	}
	if !t.IsTemplate {
		s.emit(ctx, t, "deleted")
	}
	return nil
}

// Submit records the child's completion evidence.
func (s *Service) Submit(ctx context.Context, actor auth.AuthContext, id int64, photoURL, note string) (*model.Task, error) {
	t, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if t.ChildID != actor.UserID {
		return nil, apperr.New(apperr.KindForbidden, "only the assigned child can submit this task")
	}
	if t.IsTemplate {
		return nil, apperr.InvalidInput("templates cannot be submitted")
	}
	if t.RequirePhoto && photoURL == "" {
		return nil, apperr.InvalidInput("this task requires a photo")
	}
	if !CanTransition(t.Status, model.TaskSubmitted) {
		return nil, apperr.Newf(apperr.KindConflict, "cannot submit a %s task", t.Status)
	}

	ok, err := s.tasks.Submit(ctx, id, photoURL, note, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflict("task changed state, reload and try again")
	}
	updated, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, updated, "submitted")
	return updated, nil
}

// Approval is the outcome of approving a task.
type Approval struct {
	Task        *model.Task         `json:"task"`
	Transaction *model.Transaction  `json:"transaction"`
	Award       *gamification.Award `json:"award,omitempty"`
}

// Approve accepts a submitted task, credits its points to the child and
// advances the child's progress. The status change is conditional so the
// points are credited at most once. When the credit fails the task goes
// back to submitted. A progress failure is logged and does not undo the
// credit.
func (s *Service) Approve(ctx context.Context, actor auth.AuthContext, id int64) (*Approval, error) {
	if !actor.IsParent() {
		return nil, apperr.New(apperr.KindForbidden, "only parents can approve tasks")
	}
	t, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if t.Status != model.TaskSubmitted {
		return nil, apperr.Newf(apperr.KindConflict, "cannot approve a %s task", t.Status)
	}

	now := s.now()
	ok, err := s.tasks.Approve(ctx, id, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflict("task was already decided")
	}

	result := &Approval{}
	if t.Points > 0 {
		// Deposits repay outstanding credit before raising coins.
		tx, err := s.ledger.Deposit(ctx, t.ChildID, t.Points, "task approved: "+t.Name)
		if err != nil {
			if _, rerr := s.tasks.ReopenApproval(ctx, id, s.now()); rerr != nil {
				s.logger.Error("task approved but points not credited", "task_id", id, "child_id", t.ChildID, "points", t.Points, "error", err, "reopen_error", rerr)
			}
			return nil, fmt.Errorf("credit points: %w", err)
		}
		result.Transaction = tx
	}

	award, err := s.game.AwardTaskCompletion(ctx, t.ChildID, t.Points, now)
	if err != nil {
		s.logger.Error("gamification update failed", "task_id", id, "child_id", t.ChildID, "error", err)
	} else {
		result.Award = award
	}

	if result.Task, err = s.tasks.GetByID(ctx, id); err != nil {
		return nil, err
	}
	s.emit(ctx, result.Task, "approved")
	return result, nil
}

// Reject sends a submitted task back to the child with an optional reason.
func (s *Service) Reject(ctx context.Context, actor auth.AuthContext, id int64, reason string) (*model.Task, error) {
	if !actor.IsParent() {
		return nil, apperr.New(apperr.KindForbidden, "only parents can reject tasks")
	}
	t, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if t.Status != model.TaskSubmitted {
		return nil, apperr.Newf(apperr.KindConflict, "cannot reject a %s task", t.Status)
	}
	ok, err := s.tasks.Reject(ctx, id, reason, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflict("task was already decided")
	}
	updated, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, updated, "rejected")
	return updated, nil
}
