package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/chorequest/internal/model"
)

type OrderStore struct {
	db *sql.DB
}

func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

func scanOrder(sc scanner) (*model.Order, error) {
	var o model.Order
	var rewardID sql.NullInt64
	err := sc.Scan(&o.ID, &o.FamilyID, &rewardID, &o.ChildID, &o.RewardName, &o.Cost, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.RewardID = int64Ptr(rewardID)
	return &o, nil
}

const orderCols = `id, family_id, reward_id, child_id, reward_name, cost, status, created_at, updated_at`

func (s *OrderStore) Create(ctx context.Context, o *model.Order, now time.Time) (*model.Order, error) {
	now = now.UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (family_id, reward_id, child_id, reward_name, cost, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 'pending', ?, ?)`,
		o.FamilyID, nullInt64(o.RewardID), o.ChildID, o.RewardName, o.Cost, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *OrderStore) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// List returns a family's orders, optionally limited to one child.
func (s *OrderStore) List(ctx context.Context, familyID string, childID int64) ([]model.Order, error) {
	query := `SELECT ` + orderCols + ` FROM orders WHERE family_id = ?`
	args := []any{familyID}
	if childID != 0 {
		query += ` AND child_id = ?`
		args = append(args, childID)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// Transition moves a pending order to status. It reports false when the
// order was no longer pending.
func (s *OrderStore) Transition(ctx context.Context, id int64, status model.OrderStatus, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = 'pending'`,
		string(status), now.UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("transition order: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
