package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/chorequest/internal/model"
)

type RewardStore struct {
	db *sql.DB
}

func NewRewardStore(db *sql.DB) *RewardStore {
	return &RewardStore{db: db}
}

func scanReward(sc scanner) (*model.Reward, error) {
	var r model.Reward
	err := sc.Scan(&r.ID, &r.FamilyID, &r.Name, &r.Description, &r.Cost, &r.Stock, &r.Active, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const rewardCols = `id, family_id, name, description, cost, stock, active, created_at, updated_at`

func (s *RewardStore) Create(ctx context.Context, r *model.Reward, now time.Time) (*model.Reward, error) {
	now = now.UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO rewards (family_id, name, description, cost, stock, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.FamilyID, r.Name, r.Description, r.Cost, r.Stock, boolInt(r.Active), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert reward: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *RewardStore) GetByID(ctx context.Context, id int64) (*model.Reward, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+rewardCols+` FROM rewards WHERE id = ?`, id)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return r, nil
}

func (s *RewardStore) List(ctx context.Context, familyID string, activeOnly bool) ([]model.Reward, error) {
	query := `SELECT ` + rewardCols + ` FROM rewards WHERE family_id = ?`
	if activeOnly {
		query += ` AND active = 1`
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY cost ASC, name ASC`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	var rewards []model.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

func (s *RewardStore) Update(ctx context.Context, r *model.Reward, now time.Time) (*model.Reward, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE rewards SET name = ?, description = ?, cost = ?, stock = ?, active = ?, updated_at = ? WHERE id = ?`,
		r.Name, r.Description, r.Cost, r.Stock, boolInt(r.Active), now.UTC(), r.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update reward: %w", err)
	}
	return s.GetByID(ctx, r.ID)
}

func (s *RewardStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rewards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reward: %w", err)
	}
	return nil
}

// TakeStock claims one unit of an active reward. Unlimited stock is left
// unchanged. It reports false when the reward is inactive or sold out.
func (s *RewardStore) TakeStock(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE rewards SET stock = CASE WHEN stock = -1 THEN -1 ELSE stock - 1 END
		 WHERE id = ? AND active = 1 AND (stock = -1 OR stock > 0)`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("take stock: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// ReturnStock gives back a unit claimed by TakeStock.
func (s *RewardStore) ReturnStock(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE rewards SET stock = stock + 1 WHERE id = ? AND stock != -1`, id,
	)
	if err != nil {
		return fmt.Errorf("return stock: %w", err)
	}
	return nil
}
