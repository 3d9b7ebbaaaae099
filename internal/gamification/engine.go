// Package gamification tracks avatar progress: streaks, XP, levels,
// cosmetic unlocks and medals.
package gamification

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/store"
)

// streakMedalThresholds are the day counts the daily sweep checks.
var streakMedalThresholds = []int{7, 30, 90, 365}

type Engine struct {
	avatars *store.AvatarStore
	loc     *time.Location
	logger  *slog.Logger
}

func New(avatars *store.AvatarStore, loc *time.Location, logger *slog.Logger) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{avatars: avatars, loc: loc, logger: logger}
}

// Award describes what one completion changed.
type Award struct {
	Avatar         *model.UserAvatar       `json:"avatar"`
	XPGained       int                     `json:"xp_gained"`
	LevelsGained   int                     `json:"levels_gained"`
	NewSkins       []string                `json:"new_skins,omitempty"`
	NewAccessories []string                `json:"new_accessories,omitempty"`
	Medals         []model.MedalDefinition `json:"medals,omitempty"`
}

type catalogue struct {
	levels      []model.AvatarLevel
	skins       []model.AvatarSkin
	accessories []model.AvatarAccessory
}

func (e *Engine) loadCatalogue(ctx context.Context) (*catalogue, error) {
	levels, err := e.avatars.Levels(ctx)
	if err != nil {
		return nil, err
	}
	skins, err := e.avatars.Skins(ctx)
	if err != nil {
		return nil, err
	}
	accessories, err := e.avatars.Accessories(ctx)
	if err != nil {
		return nil, err
	}
	return &catalogue{levels: levels, skins: skins, accessories: accessories}, nil
}

// Avatar returns the user's avatar, creating the level 1 default on first use.
func (e *Engine) Avatar(ctx context.Context, userID int64, now time.Time) (*model.UserAvatar, error) {
	a, err := e.avatars.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if a != nil {
		return a, nil
	}
	a = newAvatar(userID)
	if err := e.avatars.Save(ctx, a, now); err != nil {
		return nil, err
	}
	return a, nil
}

// AwardTaskCompletion credits one approved task worth taskPoints.
func (e *Engine) AwardTaskCompletion(ctx context.Context, userID int64, taskPoints int, now time.Time) (*Award, error) {
	now = now.In(e.loc)
	a, err := e.Avatar(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("load avatar: %w", err)
	}
	cat, err := e.loadCatalogue(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalogue: %w", err)
	}

	UpdateStreak(a, now)
	a.TotalTasksCompleted++

	award := &Award{Avatar: a, XPGained: taskPoints + StreakBonus(a.ConsecutiveDays)}
	award.LevelsGained = ApplyXP(a, award.XPGained, cat.levels)

	medals, err := e.avatars.ActiveMedals(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("load medals: %w", err)
	}
	earned, err := e.grantMedals(ctx, a, medals, func(m model.MedalDefinition) bool { return MedalEarned(m, a) }, now)
	if err != nil {
		return nil, err
	}
	award.Medals = earned
	for _, m := range earned {
		award.XPGained += m.XPReward
		award.LevelsGained += ApplyXP(a, m.XPReward, cat.levels)
	}

	award.NewSkins, award.NewAccessories = UnlockCosmetics(a, cat.skins, cat.accessories)

	if err := e.avatars.Save(ctx, a, now); err != nil {
		return nil, fmt.Errorf("save avatar: %w", err)
	}

	if award.LevelsGained > 0 {
		e.logger.Info("avatar leveled up", "user_id", userID, "level", a.Level, "stage", a.Stage)
	}
	return award, nil
}

// grantMedals inserts every medal passing ok that the user does not hold
// yet and returns the ones actually inserted.
func (e *Engine) grantMedals(ctx context.Context, a *model.UserAvatar, medals []model.MedalDefinition, ok func(model.MedalDefinition) bool, now time.Time) ([]model.MedalDefinition, error) {
	held, err := e.avatars.ListUserMedals(ctx, a.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user medals: %w", err)
	}
	heldIDs := make(map[string]bool, len(held))
	for _, m := range held {
		heldIDs[m.MedalID] = true
	}

	var earned []model.MedalDefinition
	for _, m := range medals {
		if heldIDs[m.ID] || !ok(m) {
			continue
		}
		inserted, err := e.avatars.AwardMedal(ctx, a.UserID, m.ID, now)
		if err != nil {
			return earned, err
		}
		if inserted {
			earned = append(earned, m)
		}
	}
	return earned, nil
}

// AwardStreakMedals grants the streak medals a child qualifies for with
// their longest task streak. Medal XP counts toward levels.
func (e *Engine) AwardStreakMedals(ctx context.Context, userID int64, maxStreak int, now time.Time) ([]model.MedalDefinition, error) {
	if maxStreak < streakMedalThresholds[0] {
		return nil, nil
	}
	medals, err := e.avatars.ActiveMedals(ctx, model.MedalStreak)
	if err != nil {
		return nil, fmt.Errorf("load streak medals: %w", err)
	}
	a, err := e.Avatar(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("load avatar: %w", err)
	}

	earned, err := e.grantMedals(ctx, a, medals, func(m model.MedalDefinition) bool {
		return slices.Contains(streakMedalThresholds, m.Requirement) && maxStreak >= m.Requirement
	}, now)
	if err != nil || len(earned) == 0 {
		return earned, err
	}

	cat, err := e.loadCatalogue(ctx)
	if err != nil {
		return earned, fmt.Errorf("load catalogue: %w", err)
	}
	for _, m := range earned {
		ApplyXP(a, m.XPReward, cat.levels)
	}
	UnlockCosmetics(a, cat.skins, cat.accessories)
	if err := e.avatars.Save(ctx, a, now); err != nil {
		return earned, fmt.Errorf("save avatar: %w", err)
	}
	return earned, nil
}

// EquipSkin switches the current skin to one the user has unlocked.
func (e *Engine) EquipSkin(ctx context.Context, userID int64, skinID string, now time.Time) (*model.UserAvatar, error) {
	a, err := e.Avatar(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(a.UnlockedSkins, skinID) {
		return nil, apperr.Newf(apperr.KindForbidden, "skin %q is locked", skinID)
	}
	a.CurrentSkin = skinID
	if err := e.avatars.Save(ctx, a, now); err != nil {
		return nil, err
	}
	return a, nil
}

// MedalBoard is the medal catalogue alongside what the user has earned.
type MedalBoard struct {
	Catalogue []model.MedalDefinition `json:"catalogue"`
	Earned    []model.UserMedal       `json:"earned"`
}

func (e *Engine) Medals(ctx context.Context, userID int64) (*MedalBoard, error) {
	cat, err := e.avatars.ActiveMedals(ctx, "")
	if err != nil {
		return nil, err
	}
	earned, err := e.avatars.ListUserMedals(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &MedalBoard{Catalogue: cat, Earned: earned}, nil
}
