package gamification

import (
	"slices"
	"time"

	"github.com/dukerupert/chorequest/internal/model"
)

const dateLayout = "2006-01-02"

// StageForLevel maps a level to its avatar stage.
func StageForLevel(level int) model.Stage {
	switch {
	case level >= 10:
		return model.StageLegend
	case level >= 7:
		return model.StageHero
	case level >= 5:
		return model.StageAdventurer
	case level >= 3:
		return model.StageExplorer
	case level >= 2:
		return model.StageHatchling
	default:
		return model.StageEgg
	}
}

// UpdateStreak advances the consecutive-day streak for a completion on
// now's calendar day. Same-day completions leave it unchanged and a gap of
// more than one day restarts it at 1.
func UpdateStreak(a *model.UserAvatar, now time.Time) {
	today := now.Format(dateLayout)
	yesterday := now.AddDate(0, 0, -1).Format(dateLayout)

	switch a.LastTaskDate {
	case today:
	case yesterday:
		a.ConsecutiveDays++
	default:
		a.ConsecutiveDays = 1
	}
	a.MaxConsecutiveDays = max(a.MaxConsecutiveDays, a.ConsecutiveDays)
	a.LastTaskDate = today
}

// StreakBonus is the extra XP for holding a streak: +5 from 7 days and a
// further +10 from 21 days.
func StreakBonus(streak int) int {
	bonus := 0
	if streak >= 7 {
		bonus += 5
	}
	if streak >= 21 {
		bonus += 10
	}
	return bonus
}

// ApplyXP adds xp and resolves level-ups against levels, which must be
// ordered by level. CurrentXP stays relative to the start of the current
// level. It returns the number of levels gained.
func ApplyXP(a *model.UserAvatar, xp int, levels []model.AvatarLevel) int {
	a.CurrentXP += xp
	a.TotalXP += xp

	thresholds := make(map[int]int, len(levels))
	for _, l := range levels {
		thresholds[l.Level] = l.XPRequired
	}

	gained := 0
	for {
		cur, ok := thresholds[a.Level]
		if !ok {
			break
		}
		next, ok := thresholds[a.Level+1]
		if !ok {
			break
		}
		delta := next - cur
		if a.CurrentXP < delta {
			break
		}
		a.CurrentXP -= delta
		a.Level++
		gained++
	}
	a.Stage = StageForLevel(a.Level)
	return gained
}

// UnlockCosmetics sets the unlocked sets to the union of what was already
// unlocked and everything available at the avatar's level. It returns the
// newly added ids.
func UnlockCosmetics(a *model.UserAvatar, skins []model.AvatarSkin, accessories []model.AvatarAccessory) (newSkins, newAccessories []string) {
	if !slices.Contains(a.UnlockedSkins, model.DefaultSkin) {
		a.UnlockedSkins = append(a.UnlockedSkins, model.DefaultSkin)
	}
	for _, s := range skins {
		if s.UnlockLevel <= a.Level && !slices.Contains(a.UnlockedSkins, s.ID) {
			a.UnlockedSkins = append(a.UnlockedSkins, s.ID)
			newSkins = append(newSkins, s.ID)
		}
	}
	for _, ac := range accessories {
		if ac.UnlockLevel <= a.Level && !slices.Contains(a.UnlockedAccessories, ac.ID) {
			a.UnlockedAccessories = append(a.UnlockedAccessories, ac.ID)
			newAccessories = append(newAccessories, ac.ID)
		}
	}
	return newSkins, newAccessories
}

// MedalEarned reports whether the avatar meets a total or consecutive
// medal requirement. Streak medals are judged by the daily sweep.
func MedalEarned(m model.MedalDefinition, a *model.UserAvatar) bool {
	switch m.RequirementType {
	case model.MedalTotal:
		return a.TotalTasksCompleted >= m.Requirement
	case model.MedalConsecutive:
		return a.MaxConsecutiveDays >= m.Requirement
	default:
		return false
	}
}

func newAvatar(userID int64) *model.UserAvatar {
	return &model.UserAvatar{
		UserID:              userID,
		Level:               1,
		Stage:               model.StageEgg,
		CurrentSkin:         model.DefaultSkin,
		UnlockedSkins:       []string{model.DefaultSkin},
		UnlockedAccessories: []string{},
	}
}
