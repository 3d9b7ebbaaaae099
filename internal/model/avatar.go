package model

import "time"

type Stage string

const (
	StageEgg        Stage = "egg"
	StageHatchling  Stage = "hatchling"
	StageExplorer   Stage = "explorer"
	StageAdventurer Stage = "adventurer"
	StageHero       Stage = "hero"
	StageLegend     Stage = "legend"
)

// DefaultSkin is unlocked for every new avatar.
const DefaultSkin = "default"

type UserAvatar struct {
	UserID              int64     `json:"user_id"`
	Level               int       `json:"level"`
	CurrentXP           int       `json:"current_xp"`
	TotalXP             int       `json:"total_xp"`
	Stage               Stage     `json:"stage"`
	CurrentSkin         string    `json:"current_skin"`
	UnlockedSkins       []string  `json:"unlocked_skins"`
	UnlockedAccessories []string  `json:"unlocked_accessories"`
	ConsecutiveDays     int       `json:"consecutive_days"`
	MaxConsecutiveDays  int       `json:"max_consecutive_days"`
	LastTaskDate        string    `json:"last_task_date"` // YYYY-MM-DD, empty before the first task
	TotalTasksCompleted int       `json:"total_tasks_completed"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type AvatarLevel struct {
	Level      int    `json:"level"`
	XPRequired int    `json:"xp_required"`
	Title      string `json:"title"`
}

type AvatarSkin struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	UnlockLevel int    `json:"unlock_level"`
}

type AvatarAccessory struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slot        string `json:"slot"`
	UnlockLevel int    `json:"unlock_level"`
}

type MedalRequirement string

const (
	MedalTotal       MedalRequirement = "total"
	MedalConsecutive MedalRequirement = "consecutive"
	MedalStreak      MedalRequirement = "streak"
)

type MedalDefinition struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	Icon            string           `json:"icon"`
	RequirementType MedalRequirement `json:"requirement_type"`
	Requirement     int              `json:"requirement"`
	XPReward        int              `json:"xp_reward"`
	Active          bool             `json:"active"`
}

type UserMedal struct {
	UserID   int64     `json:"user_id"`
	MedalID  string    `json:"medal_id"`
	EarnedAt time.Time `json:"earned_at"`
}
