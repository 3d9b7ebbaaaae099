package store

import (
	"context"
	"errors"
	"testing"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/model"
)

func TestUserCreateWithAccount(t *testing.T) {
	db := setupTestDB(t)
	parentID, childID := seedFamily(t, db)
	ctx := context.Background()
	us := NewUserStore(db)

	child, err := us.GetByID(ctx, childID)
	if err != nil {
		t.Fatalf("get child: %v", err)
	}
	if child.Role != model.RoleChild {
		t.Errorf("role = %q, want child", child.Role)
	}
	if child.ParentID == nil || *child.ParentID != parentID {
		t.Errorf("parent_id = %v, want %d", child.ParentID, parentID)
	}

	acct, err := NewAccountStore(db).Get(ctx, childID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if acct == nil {
		t.Fatal("expected account to be created with the user")
	}
	if acct.InterestRate != 0.01 {
		t.Errorf("interest_rate = %v, want 0.01", acct.InterestRate)
	}
}

func TestUserCreateDuplicateUsername(t *testing.T) {
	db := setupTestDB(t)
	seedFamily(t, db)

	_, err := NewUserStore(db).Create(context.Background(), NewUser{
		Username: "sam", PasswordHash: "x", Role: model.RoleChild, FamilyID: "fam-2",
	}, testNow)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestUserGetByIDNotFound(t *testing.T) {
	db := setupTestDB(t)

	u, err := NewUserStore(db).GetByID(context.Background(), 999)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if u != nil {
		t.Error("expected nil for nonexistent user")
	}
}

func TestUserGetCredentials(t *testing.T) {
	db := setupTestDB(t)
	seedFamily(t, db)

	u, hash, err := NewUserStore(db).GetCredentials(context.Background(), "mom")
	if err != nil {
		t.Fatalf("get credentials: %v", err)
	}
	if u == nil || u.Username != "mom" {
		t.Fatalf("user = %+v, want mom", u)
	}
	if hash != "x" {
		t.Errorf("hash = %q, want x", hash)
	}
}

func TestListChildrenWithPoints(t *testing.T) {
	db := setupTestDB(t)
	_, childID := seedFamily(t, db)
	ctx := context.Background()

	if _, err := db.Exec(`UPDATE accounts SET coins = 40, total_earned = 90 WHERE user_id = ?`, childID); err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	children, err := NewUserStore(db).ListChildren(ctx, "fam-1")
	if err != nil {
		t.Fatalf("list children: %v", err)
	}
	if len(children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(children))
	}
	if children[0].AvailablePoints != 40 || children[0].TotalPoints != 90 {
		t.Errorf("points = %d/%d, want 40/90", children[0].AvailablePoints, children[0].TotalPoints)
	}

	other, err := NewUserStore(db).ListChildren(ctx, "fam-2")
	if err != nil {
		t.Fatalf("list children: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no children in another family, got %d", len(other))
	}
}
