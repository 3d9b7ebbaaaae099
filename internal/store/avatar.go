package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/chorequest/internal/model"
)

type AvatarStore struct {
	db *sql.DB
}

func NewAvatarStore(db *sql.DB) *AvatarStore {
	return &AvatarStore{db: db}
}

const avatarCols = `user_id, level, current_xp, total_xp, stage, current_skin, unlocked_skins, unlocked_accessories,
	consecutive_days, max_consecutive_days, last_task_date, total_tasks_completed, created_at, updated_at`

func scanAvatar(sc scanner) (*model.UserAvatar, error) {
	var a model.UserAvatar
	var skins, accessories string
	err := sc.Scan(&a.UserID, &a.Level, &a.CurrentXP, &a.TotalXP, &a.Stage, &a.CurrentSkin, &skins, &accessories,
		&a.ConsecutiveDays, &a.MaxConsecutiveDays, &a.LastTaskDate, &a.TotalTasksCompleted, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(skins), &a.UnlockedSkins); err != nil {
		return nil, fmt.Errorf("decode unlocked skins: %w", err)
	}
	if err := json.Unmarshal([]byte(accessories), &a.UnlockedAccessories); err != nil {
		return nil, fmt.Errorf("decode unlocked accessories: %w", err)
	}
	return &a, nil
}

func (s *AvatarStore) Get(ctx context.Context, userID int64) (*model.UserAvatar, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+avatarCols+` FROM user_avatars WHERE user_id = ?`, userID)
	a, err := scanAvatar(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get avatar: %w", err)
	}
	return a, nil
}

func encodeSet(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Save upserts the avatar row.
func (s *AvatarStore) Save(ctx context.Context, a *model.UserAvatar, now time.Time) error {
	skins, err := encodeSet(a.UnlockedSkins)
	if err != nil {
		return fmt.Errorf("encode unlocked skins: %w", err)
	}
	accessories, err := encodeSet(a.UnlockedAccessories)
	if err != nil {
		return fmt.Errorf("encode unlocked accessories: %w", err)
	}
	now = now.UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_avatars (user_id, level, current_xp, total_xp, stage, current_skin, unlocked_skins,
			unlocked_accessories, consecutive_days, max_consecutive_days, last_task_date, total_tasks_completed,
			created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			level = excluded.level, current_xp = excluded.current_xp, total_xp = excluded.total_xp,
			stage = excluded.stage, current_skin = excluded.current_skin, unlocked_skins = excluded.unlocked_skins,
			unlocked_accessories = excluded.unlocked_accessories, consecutive_days = excluded.consecutive_days,
			max_consecutive_days = excluded.max_consecutive_days, last_task_date = excluded.last_task_date,
			total_tasks_completed = excluded.total_tasks_completed, updated_at = excluded.updated_at`,
		a.UserID, a.Level, a.CurrentXP, a.TotalXP, string(a.Stage), a.CurrentSkin, skins, accessories,
		a.ConsecutiveDays, a.MaxConsecutiveDays, a.LastTaskDate, a.TotalTasksCompleted, now, now,
	)
	if err != nil {
		return fmt.Errorf("save avatar: %w", err)
	}
	return nil
}

// Levels returns the level table ordered by level.
func (s *AvatarStore) Levels(ctx context.Context) ([]model.AvatarLevel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT level, xp_required, title FROM avatar_levels ORDER BY level`)
	if err != nil {
		return nil, fmt.Errorf("list levels: %w", err)
	}
	defer rows.Close()

	var levels []model.AvatarLevel
	for rows.Next() {
		var l model.AvatarLevel
		if err := rows.Scan(&l.Level, &l.XPRequired, &l.Title); err != nil {
			return nil, fmt.Errorf("scan level: %w", err)
		}
		levels = append(levels, l)
	}
	return levels, rows.Err()
}

func (s *AvatarStore) Skins(ctx context.Context) ([]model.AvatarSkin, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, unlock_level FROM avatar_skins ORDER BY unlock_level, id`)
	if err != nil {
		return nil, fmt.Errorf("list skins: %w", err)
	}
	defer rows.Close()

	var skins []model.AvatarSkin
	for rows.Next() {
		var sk model.AvatarSkin
		if err := rows.Scan(&sk.ID, &sk.Name, &sk.UnlockLevel); err != nil {
			return nil, fmt.Errorf("scan skin: %w", err)
		}
		skins = append(skins, sk)
	}
	return skins, rows.Err()
}

func (s *AvatarStore) Accessories(ctx context.Context) ([]model.AvatarAccessory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, slot, unlock_level FROM avatar_accessories ORDER BY unlock_level, id`)
	if err != nil {
		return nil, fmt.Errorf("list accessories: %w", err)
	}
	defer rows.Close()

	var accessories []model.AvatarAccessory
	for rows.Next() {
		var ac model.AvatarAccessory
		if err := rows.Scan(&ac.ID, &ac.Name, &ac.Slot, &ac.UnlockLevel); err != nil {
			return nil, fmt.Errorf("scan accessory: %w", err)
		}
		accessories = append(accessories, ac)
	}
	return accessories, rows.Err()
}

// ActiveMedals returns the medal catalogue, optionally filtered by
// requirement type.
func (s *AvatarStore) ActiveMedals(ctx context.Context, reqType model.MedalRequirement) ([]model.MedalDefinition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, icon, requirement_type, requirement, xp_reward, active
		 FROM medal_definitions WHERE active = 1 AND (? = '' OR requirement_type = ?)
		 ORDER BY requirement_type, requirement`,
		string(reqType), string(reqType),
	)
	if err != nil {
		return nil, fmt.Errorf("list medals: %w", err)
	}
	defer rows.Close()

	var medals []model.MedalDefinition
	for rows.Next() {
		var m model.MedalDefinition
		if err := rows.Scan(&m.ID, &m.Name, &m.Description, &m.Icon, &m.RequirementType, &m.Requirement, &m.XPReward, &m.Active); err != nil {
			return nil, fmt.Errorf("scan medal: %w", err)
		}
		medals = append(medals, m)
	}
	return medals, rows.Err()
}

func (s *AvatarStore) ListUserMedals(ctx context.Context, userID int64) ([]model.UserMedal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, medal_id, earned_at FROM user_medals WHERE user_id = ? ORDER BY earned_at, medal_id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list user medals: %w", err)
	}
	defer rows.Close()

	var medals []model.UserMedal
	for rows.Next() {
		var m model.UserMedal
		if err := rows.Scan(&m.UserID, &m.MedalID, &m.EarnedAt); err != nil {
			return nil, fmt.Errorf("scan user medal: %w", err)
		}
		medals = append(medals, m)
	}
	return medals, rows.Err()
}

// AwardMedal records the medal once. It reports false when the user
// already held it.
func (s *AvatarStore) AwardMedal(ctx context.Context, userID int64, medalID string, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_medals (user_id, medal_id, earned_at) VALUES (?, ?, ?)`,
		userID, medalID, now.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("award medal: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
