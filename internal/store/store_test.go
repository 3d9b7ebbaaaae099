package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dukerupert/chorequest/internal/database"
	"github.com/dukerupert/chorequest/internal/model"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedFamily creates a parent and one child in family "fam-1".
func seedFamily(t *testing.T, db *sql.DB) (parentID, childID int64) {
	t.Helper()
	us := NewUserStore(db)
	ctx := context.Background()

	parent, err := us.Create(ctx, NewUser{
		Username: "mom", PasswordHash: "x", DisplayName: "Mom",
		Role: model.RoleParent, FamilyID: "fam-1", InterestRate: 0.01,
	}, testNow)
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	child, err := us.Create(ctx, NewUser{
		Username: "sam", PasswordHash: "x", DisplayName: "Sam",
		Role: model.RoleChild, FamilyID: "fam-1", ParentID: &parent.ID, InterestRate: 0.01,
	}, testNow)
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	return parent.ID, child.ID
}
