package model

import "time"

// UnlimitedStock marks a reward that never runs out.
const UnlimitedStock = -1

type Reward struct {
	ID          int64     `json:"id"`
	FamilyID    string    `json:"family_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Cost        int       `json:"cost"`
	Stock       int       `json:"stock"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r *Reward) InStock() bool {
	return r.Stock == UnlimitedStock || r.Stock > 0
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderVerified  OrderStatus = "verified"
	OrderCancelled OrderStatus = "cancelled"
)

type Order struct {
	ID         int64       `json:"id"`
	FamilyID   string      `json:"family_id"`
	RewardID   *int64      `json:"reward_id"`
	ChildID    int64       `json:"child_id"`
	RewardName string      `json:"reward_name"`
	Cost       int         `json:"cost"`
	Status     OrderStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}
