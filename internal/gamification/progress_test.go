package gamification

import (
	"testing"
	"time"

	"github.com/dukerupert/chorequest/internal/model"
)

var threeLevels = []model.AvatarLevel{
	{Level: 1, XPRequired: 0},
	{Level: 2, XPRequired: 100},
	{Level: 3, XPRequired: 300},
}

func TestStageForLevel(t *testing.T) {
	tests := []struct {
		level int
		want  model.Stage
	}{
		{1, model.StageEgg},
		{2, model.StageHatchling},
		{3, model.StageExplorer},
		{4, model.StageExplorer},
		{5, model.StageAdventurer},
		{6, model.StageAdventurer},
		{7, model.StageHero},
		{9, model.StageHero},
		{10, model.StageLegend},
		{14, model.StageLegend},
	}
	for _, tt := range tests {
		if got := StageForLevel(tt.level); got != tt.want {
			t.Errorf("StageForLevel(%d) = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestApplyXP(t *testing.T) {
	tests := []struct {
		name      string
		xp        int
		wantLevel int
		wantXP    int
	}{
		{"below first threshold", 40, 1, 40},
		{"one level", 150, 2, 50},
		{"exactly two levels", 300, 3, 0},
		{"capped at max level", 1000, 3, 700},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAvatar(1)
			ApplyXP(a, tt.xp, threeLevels)
			if a.Level != tt.wantLevel || a.CurrentXP != tt.wantXP {
				t.Errorf("level=%d xp=%d, want level=%d xp=%d", a.Level, a.CurrentXP, tt.wantLevel, tt.wantXP)
			}
			if a.TotalXP != tt.xp {
				t.Errorf("total_xp = %d, want %d", a.TotalXP, tt.xp)
			}
		})
	}
}

func TestApplyXPSetsStage(t *testing.T) {
	a := newAvatar(1)
	gained := ApplyXP(a, 150, threeLevels)
	if gained != 1 {
		t.Errorf("levels gained = %d, want 1", gained)
	}
	if a.Stage != model.StageHatchling {
		t.Errorf("stage = %q, want hatchling", a.Stage)
	}
}

func TestUpdateStreak(t *testing.T) {
	now := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		last     string
		streak   int
		want     int
		wantLast string
	}{
		{"first ever", "", 0, 1, "2026-03-10"},
		{"yesterday", "2026-03-09", 4, 5, "2026-03-10"},
		{"same day", "2026-03-10", 4, 4, "2026-03-10"},
		{"gap", "2026-03-07", 9, 1, "2026-03-10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &model.UserAvatar{LastTaskDate: tt.last, ConsecutiveDays: tt.streak, MaxConsecutiveDays: tt.streak}
			UpdateStreak(a, now)
			if a.ConsecutiveDays != tt.want {
				t.Errorf("consecutive = %d, want %d", a.ConsecutiveDays, tt.want)
			}
			if a.LastTaskDate != tt.wantLast {
				t.Errorf("last_task_date = %q, want %q", a.LastTaskDate, tt.wantLast)
			}
			if a.MaxConsecutiveDays < a.ConsecutiveDays {
				t.Errorf("max %d below current %d", a.MaxConsecutiveDays, a.ConsecutiveDays)
			}
		})
	}
}

func TestUpdateStreakUsesCalendarDays(t *testing.T) {
	// Two minutes apart across midnight is still consecutive.
	a := &model.UserAvatar{}
	UpdateStreak(a, time.Date(2026, 3, 9, 23, 59, 0, 0, time.UTC))
	UpdateStreak(a, time.Date(2026, 3, 10, 0, 1, 0, 0, time.UTC))
	if a.ConsecutiveDays != 2 {
		t.Errorf("consecutive = %d, want 2", a.ConsecutiveDays)
	}
}

func TestStreakBonus(t *testing.T) {
	tests := []struct{ streak, want int }{
		{1, 0}, {6, 0}, {7, 5}, {20, 5}, {21, 15}, {100, 15},
	}
	for _, tt := range tests {
		if got := StreakBonus(tt.streak); got != tt.want {
			t.Errorf("StreakBonus(%d) = %d, want %d", tt.streak, got, tt.want)
		}
	}
}

func TestUnlockCosmeticsIsIdempotent(t *testing.T) {
	skins := []model.AvatarSkin{{ID: "default", UnlockLevel: 1}, {ID: "spotted", UnlockLevel: 2}, {ID: "golden", UnlockLevel: 5}}
	accessories := []model.AvatarAccessory{{ID: "cap", UnlockLevel: 2}}

	a := newAvatar(1)
	a.Level = 2
	a.UnlockedSkins = []string{"default", "golden"} // kept even though above level
	newSkins, newAcc := UnlockCosmetics(a, skins, accessories)
	if len(newSkins) != 1 || newSkins[0] != "spotted" || len(newAcc) != 1 {
		t.Errorf("new = %v %v", newSkins, newAcc)
	}
	if len(a.UnlockedSkins) != 3 {
		t.Errorf("unlocked = %v, want previous plus spotted", a.UnlockedSkins)
	}

	newSkins, newAcc = UnlockCosmetics(a, skins, accessories)
	if len(newSkins) != 0 || len(newAcc) != 0 {
		t.Errorf("second pass unlocked %v %v, want nothing", newSkins, newAcc)
	}
}

func TestMedalEarned(t *testing.T) {
	a := &model.UserAvatar{TotalTasksCompleted: 10, MaxConsecutiveDays: 3}
	tests := []struct {
		medal model.MedalDefinition
		want  bool
	}{
		{model.MedalDefinition{RequirementType: model.MedalTotal, Requirement: 10}, true},
		{model.MedalDefinition{RequirementType: model.MedalTotal, Requirement: 11}, false},
		{model.MedalDefinition{RequirementType: model.MedalConsecutive, Requirement: 3}, true},
		{model.MedalDefinition{RequirementType: model.MedalConsecutive, Requirement: 7}, false},
		{model.MedalDefinition{RequirementType: model.MedalStreak, Requirement: 1}, false},
	}
	for _, tt := range tests {
		if got := MedalEarned(tt.medal, a); got != tt.want {
			t.Errorf("MedalEarned(%s %d) = %v, want %v", tt.medal.RequirementType, tt.medal.Requirement, got, tt.want)
		}
	}
}
