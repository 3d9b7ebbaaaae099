package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(sc scanner) (*model.User, error) {
	var u model.User
	var parentID sql.NullInt64
	err := sc.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Role, &u.FamilyID, &parentID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.ParentID = int64Ptr(parentID)
	return &u, nil
}

const userCols = `id, username, display_name, role, family_id, parent_id, created_at, updated_at`

// NewUser is the input for Create.
type NewUser struct {
	Username     string
	PasswordHash string
	DisplayName  string
	Role         model.Role
	FamilyID     string
	ParentID     *int64
	InterestRate float64
}

// Create inserts the user together with an empty account so every user
// has a ledger from the start.
func (s *UserStore) Create(ctx context.Context, nu NewUser, now time.Time) (*model.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now = now.UTC()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, display_name, role, family_id, parent_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nu.Username, nu.PasswordHash, nu.DisplayName, string(nu.Role), nu.FamilyID, nullInt64(nu.ParentID), now, now,
	)
	if isUniqueViolation(err) {
		return nil, apperr.Newf(apperr.KindConflict, "username %q is taken", nu.Username)
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (user_id, interest_rate, last_interest_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, nu.InterestRate, now, now, now,
	); err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit user: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetCredentials returns the user and its bcrypt hash for login.
func (s *UserStore) GetCredentials(ctx context.Context, username string) (*model.User, string, error) {
	var u model.User
	var parentID sql.NullInt64
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT `+userCols+`, password_hash FROM users WHERE username = ?`, username,
	).Scan(&u.ID, &u.Username, &u.DisplayName, &u.Role, &u.FamilyID, &parentID, &u.CreatedAt, &u.UpdatedAt, &hash)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("get credentials: %w", err)
	}
	u.ParentID = int64Ptr(parentID)
	return &u, hash, nil
}

const userWithPointsQuery = `SELECT u.id, u.username, u.display_name, u.role, u.family_id, u.parent_id, u.created_at, u.updated_at,
	COALESCE(a.total_earned, 0), COALESCE(a.coins, 0), COALESCE(a.stars, 0)
	FROM users u LEFT JOIN accounts a ON a.user_id = u.id`

func scanUserWithPoints(sc scanner) (*model.UserWithPoints, error) {
	var u model.UserWithPoints
	var parentID sql.NullInt64
	err := sc.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Role, &u.FamilyID, &parentID, &u.CreatedAt, &u.UpdatedAt,
		&u.TotalPoints, &u.AvailablePoints, &u.Stars)
	if err != nil {
		return nil, err
	}
	u.ParentID = int64Ptr(parentID)
	return &u, nil
}

func (s *UserStore) GetWithPoints(ctx context.Context, id int64) (*model.UserWithPoints, error) {
	row := s.db.QueryRowContext(ctx, userWithPointsQuery+` WHERE u.id = ?`, id)
	u, err := scanUserWithPoints(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user with points: %w", err)
	}
	return u, nil
}

// ListChildren returns the children of a family. An empty family lists
// children across all families.
func (s *UserStore) ListChildren(ctx context.Context, familyID string) ([]model.UserWithPoints, error) {
	rows, err := s.db.QueryContext(ctx,
		userWithPointsQuery+` WHERE u.role = 'child' AND (? = '' OR u.family_id = ?) ORDER BY u.display_name, u.id`,
		familyID, familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	var users []model.UserWithPoints
	for rows.Next() {
		u, err := scanUserWithPoints(rows)
		if err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// ListParentIDs returns the ids of every parent in a family.
func (s *UserStore) ListParentIDs(ctx context.Context, familyID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM users WHERE role = 'parent' AND family_id = ?`, familyID)
	if err != nil {
		return nil, fmt.Errorf("list parent ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan parent id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
