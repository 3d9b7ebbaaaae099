// Package generator materializes task instances from recurring templates.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/recurrence"
	"github.com/dukerupert/chorequest/internal/store"
)

// Notifier is told about every created instance.
type Notifier interface {
	TaskCreated(ctx context.Context, t *model.Task)
}

type Generator struct {
	tasks    *store.TaskStore
	notifier Notifier
	loc      *time.Location
	logger   *slog.Logger
}

// New returns a Generator that judges rules and windows on loc's calendar.
func New(tasks *store.TaskStore, notifier Notifier, loc *time.Location, logger *slog.Logger) *Generator {
	if loc == nil {
		loc = time.Local
	}
	return &Generator{tasks: tasks, notifier: notifier, loc: loc, logger: logger}
}

// Run creates the due instances of every recurring template in familyID
// (all families when empty) and returns them. A template with a broken
// rule is logged and skipped. Each template yields at most one instance per
// window.
func (g *Generator) Run(ctx context.Context, familyID string, now time.Time) ([]model.Task, error) {
	now = now.In(g.loc)
	templates, err := g.tasks.ListRecurringTemplates(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	var created []model.Task
	for i := range templates {
		tmpl := &templates[i]
		rule, err := recurrence.FromTask(tmpl)
		if err != nil {
			g.logger.Warn("skipping template with invalid rule", "template_id", tmpl.ID, "error", err)
			continue
		}
		inst, err := g.generate(ctx, tmpl, rule, now)
		if err != nil {
			return created, fmt.Errorf("generate from template %d: %w", tmpl.ID, err)
		}
		if inst == nil {
			continue
		}
		created = append(created, *inst)
		if g.notifier != nil {
			g.notifier.TaskCreated(ctx, inst)
		}
	}

	if len(created) > 0 {
		g.logger.Info("recurring tasks generated", "family_id", familyID, "count", len(created))
	}
	return created, nil
}

func (g *Generator) generate(ctx context.Context, tmpl *model.Task, rule recurrence.Rule, now time.Time) (*model.Task, error) {
	if !rule.ShouldCreate(now) {
		return nil, nil
	}
	windowStart, windowKey := rule.Window(now)
	exists, err := g.tasks.InstanceExists(ctx, tmpl.ID, windowStart)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}

	deadline := rule.Deadline(now)
	inst := &model.Task{
		FamilyID:       tmpl.FamilyID,
		ParentID:       tmpl.ParentID,
		ChildID:        tmpl.ChildID,
		Name:           tmpl.Name,
		Description:    tmpl.Description,
		Icon:           tmpl.Icon,
		Points:         tmpl.Points,
		Category:       tmpl.Category,
		TaskType:       tmpl.TaskType,
		Status:         model.TaskPending,
		RequirePhoto:   tmpl.RequirePhoto,
		Recurrence:     model.RecurNone,
		Deadline:       &deadline,
		ExpiryPolicy:   tmpl.ExpiryPolicy,
		OriginalTaskID: &tmpl.ID,
		CreatedAt:      now,
	}
	// The existence check covers the common path; the generation key stops
	// concurrent runs from both inserting.
	key := fmt.Sprintf("%d:%s", tmpl.ID, windowKey)
	return g.tasks.CreateInstance(ctx, inst, key)
}
