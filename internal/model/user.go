package model

import "time"

type Role string

const (
	RoleParent Role = "parent"
	RoleChild  Role = "child"
)

func (r Role) Valid() bool {
	return r == RoleParent || r == RoleChild
}

type User struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	FamilyID    string    `json:"family_id"`
	ParentID    *int64    `json:"parent_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UserWithPoints is a user joined with their account balances.
type UserWithPoints struct {
	User
	TotalPoints     int `json:"total_points"`
	AvailablePoints int `json:"available_points"`
	Stars           int `json:"stars"`
}
