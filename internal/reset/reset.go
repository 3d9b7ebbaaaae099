// Package reset runs the daily task rollover.
package reset

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/chorequest/internal/gamification"
	"github.com/dukerupert/chorequest/internal/generator"
	"github.com/dukerupert/chorequest/internal/recurrence"
	"github.com/dukerupert/chorequest/internal/store"
)

type Job struct {
	tasks  *store.TaskStore
	gen    *generator.Generator
	game   *gamification.Engine
	loc    *time.Location
	logger *slog.Logger
}

func New(tasks *store.TaskStore, gen *generator.Generator, game *gamification.Engine, loc *time.Location, logger *slog.Logger) *Job {
	if loc == nil {
		loc = time.Local
	}
	return &Job{tasks: tasks, gen: gen, game: game, loc: loc, logger: logger}
}

// Report counts what each step changed.
type Report struct {
	Expired        int64 `json:"expired"`
	RolledOver     int64 `json:"rolled_over"`
	Reset          int64 `json:"reset"`
	SpecialExpired int64 `json:"special_expired"`
	Generated      int   `json:"generated"`
	StreakMedals   int   `json:"streak_medals"`
}

// Run executes the five reset steps in order for familyID, or for every
// family when it is empty. Steps are not atomic together: the first
// failing step stops the run and the effects of earlier steps remain.
func (j *Job) Run(ctx context.Context, familyID string, now time.Time) (*Report, error) {
	now = now.In(j.loc)
	dayStart := recurrence.StartOfDay(now)
	rep := &Report{}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"apply expiry policies", func() error {
			res, err := j.tasks.ApplyExpiry(ctx, familyID, dayStart, now)
			rep.Expired, rep.RolledOver = res.Expired, res.RolledOver
			return err
		}},
		{"reset regular tasks", func() error {
			n, err := j.tasks.ResetRegular(ctx, familyID, dayStart, now)
			rep.Reset = n
			return err
		}},
		{"expire special tasks", func() error {
			n, err := j.tasks.ExpireOverdueSpecial(ctx, familyID, now)
			rep.SpecialExpired = n
			return err
		}},
		{"generate recurring tasks", func() error {
			created, err := j.gen.Run(ctx, familyID, now)
			rep.Generated = len(created)
			return err
		}},
		{"award streak medals", func() error {
			n, err := j.sweepStreakMedals(ctx, familyID, now)
			rep.StreakMedals = n
			return err
		}},
	}

	for _, step := range steps {
		if err := step.fn(); err != nil {
			j.logger.Error("daily reset step failed", "step", step.name, "family_id", familyID, "error", err)
			return rep, fmt.Errorf("%s: %w", step.name, err)
		}
	}

	j.logger.Info("daily reset complete",
		"family_id", familyID,
		"expired", rep.Expired,
		"rolled_over", rep.RolledOver,
		"reset", rep.Reset,
		"special_expired", rep.SpecialExpired,
		"generated", rep.Generated,
		"streak_medals", rep.StreakMedals,
	)
	return rep, nil
}

func (j *Job) sweepStreakMedals(ctx context.Context, familyID string, now time.Time) (int, error) {
	streaks, err := j.tasks.MaxStreakByChild(ctx, familyID)
	if err != nil {
		return 0, err
	}
	awarded := 0
	for childID, streak := range streaks {
		earned, err := j.game.AwardStreakMedals(ctx, childID, streak, now)
		if err != nil {
			return awarded, fmt.Errorf("child %d: %w", childID, err)
		}
		awarded += len(earned)
	}
	return awarded, nil
}
