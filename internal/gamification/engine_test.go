package gamification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/database"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/store"
)

var day = time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC)

func setupEngine(t *testing.T) (*Engine, *store.AvatarStore, int64) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	u, err := store.NewUserStore(db).Create(context.Background(), store.NewUser{
		Username: "sam", PasswordHash: "x", Role: model.RoleChild, FamilyID: "fam-1",
	}, day)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	avatars := store.NewAvatarStore(db)
	return New(avatars, time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil))), avatars, u.ID
}

func TestFirstCompletion(t *testing.T) {
	e, _, id := setupEngine(t)

	award, err := e.AwardTaskCompletion(context.Background(), id, 20, day)
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	a := award.Avatar
	if a.ConsecutiveDays != 1 || a.TotalTasksCompleted != 1 || a.LastTaskDate != "2026-03-10" {
		t.Errorf("avatar = %+v", a)
	}
	// 20 task XP plus the first_task medal's 10.
	if a.TotalXP != 30 || a.CurrentXP != 30 || award.XPGained != 30 {
		t.Errorf("xp total=%d current=%d gained=%d, want 30", a.TotalXP, a.CurrentXP, award.XPGained)
	}
	if len(award.Medals) != 1 || award.Medals[0].ID != "first_task" {
		t.Errorf("medals = %+v, want first_task", award.Medals)
	}
}

func TestMedalXPTriggersLevelUp(t *testing.T) {
	e, _, id := setupEngine(t)

	// 95 task XP alone stays at level 1; the first_task medal pushes it over.
	award, err := e.AwardTaskCompletion(context.Background(), id, 95, day)
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	a := award.Avatar
	if a.Level != 2 || a.CurrentXP != 5 {
		t.Errorf("level=%d current_xp=%d, want 2 and 5", a.Level, a.CurrentXP)
	}
	if a.Stage != model.StageHatchling {
		t.Errorf("stage = %q, want hatchling", a.Stage)
	}
	if len(award.NewSkins) != 1 || award.NewSkins[0] != "spotted" {
		t.Errorf("new skins = %v, want [spotted]", award.NewSkins)
	}
	if len(award.NewAccessories) != 1 || award.NewAccessories[0] != "cap" {
		t.Errorf("new accessories = %v, want [cap]", award.NewAccessories)
	}
}

func TestStreakAcrossDays(t *testing.T) {
	e, _, id := setupEngine(t)
	ctx := context.Background()

	e.AwardTaskCompletion(ctx, id, 1, day)
	e.AwardTaskCompletion(ctx, id, 1, day.Add(time.Hour))
	award, _ := e.AwardTaskCompletion(ctx, id, 1, day.Add(24*time.Hour))
	if award.Avatar.ConsecutiveDays != 2 {
		t.Errorf("consecutive = %d, want 2", award.Avatar.ConsecutiveDays)
	}
	if award.Avatar.TotalTasksCompleted != 3 {
		t.Errorf("total = %d, want 3", award.Avatar.TotalTasksCompleted)
	}

	award, _ = e.AwardTaskCompletion(ctx, id, 1, day.Add(4*24*time.Hour))
	if award.Avatar.ConsecutiveDays != 1 || award.Avatar.MaxConsecutiveDays != 2 {
		t.Errorf("after gap consecutive=%d max=%d, want 1 and 2",
			award.Avatar.ConsecutiveDays, award.Avatar.MaxConsecutiveDays)
	}
}

func TestMedalsAwardedOnce(t *testing.T) {
	e, avatars, id := setupEngine(t)
	ctx := context.Background()

	e.AwardTaskCompletion(ctx, id, 1, day)
	award, err := e.AwardTaskCompletion(ctx, id, 1, day.Add(time.Hour))
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if len(award.Medals) != 0 {
		t.Errorf("second completion awarded %v", award.Medals)
	}
	medals, _ := avatars.ListUserMedals(ctx, id)
	if len(medals) != 1 {
		t.Errorf("medals = %d, want 1", len(medals))
	}
}

func TestAwardStreakMedals(t *testing.T) {
	e, avatars, id := setupEngine(t)
	ctx := context.Background()

	earned, err := e.AwardStreakMedals(ctx, id, 6, day)
	if err != nil || len(earned) != 0 {
		t.Fatalf("streak 6 earned %v, %v", earned, err)
	}

	earned, err = e.AwardStreakMedals(ctx, id, 31, day)
	if err != nil {
		t.Fatalf("award streak medals: %v", err)
	}
	if len(earned) != 2 {
		t.Fatalf("earned = %v, want streak_7 and streak_30", earned)
	}

	// streak_7 (30) and streak_30 (100) lift the avatar past the 100 XP mark.
	a, _ := avatars.Get(ctx, id)
	if a.TotalXP != 130 || a.Level != 2 || a.CurrentXP != 30 {
		t.Errorf("avatar level=%d current=%d total=%d, want 2/30/130", a.Level, a.CurrentXP, a.TotalXP)
	}

	again, _ := e.AwardStreakMedals(ctx, id, 31, day)
	if len(again) != 0 {
		t.Errorf("re-run earned %v, want none", again)
	}
}

func TestEquipSkin(t *testing.T) {
	e, _, id := setupEngine(t)
	ctx := context.Background()

	if _, err := e.EquipSkin(ctx, id, "golden", day); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("equip locked skin: err = %v", err)
	}
	a, err := e.EquipSkin(ctx, id, "default", day)
	if err != nil {
		t.Fatalf("equip default: %v", err)
	}
	if a.CurrentSkin != "default" {
		t.Errorf("current skin = %q", a.CurrentSkin)
	}
}
