package notify

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/chorequest/internal/database"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/push"
	"github.com/dukerupert/chorequest/internal/store"
	"github.com/dukerupert/chorequest/internal/websocket"
)

type delivery struct {
	users   []int64
	payload push.Payload
}

type fakePusher struct {
	mu   sync.Mutex
	sent []delivery
}

func (f *fakePusher) NotifyUsers(_ context.Context, userIDs []int64, p push.Payload) {
	f.mu.Lock()
	f.sent = append(f.sent, delivery{users: userIDs, payload: p})
	f.mu.Unlock()
}

func setup(t *testing.T) (*Notifier, *fakePusher, int64, int64) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	us := store.NewUserStore(db)
	parent, err := us.Create(ctx, store.NewUser{Username: "mom", PasswordHash: "x", Role: model.RoleParent, FamilyID: "fam-1"}, now)
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	child, err := us.Create(ctx, store.NewUser{Username: "sam", PasswordHash: "x", Role: model.RoleChild, FamilyID: "fam-1"}, now)
	if err != nil {
		t.Fatalf("create child: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fp := &fakePusher{}
	return New(websocket.NewHub(logger), fp, us, logger), fp, parent.ID, child.ID
}

func TestTaskSubmittedNotifiesParents(t *testing.T) {
	n, fp, parentID, childID := setup(t)
	n.TaskChanged(context.Background(), &model.Task{ID: 3, FamilyID: "fam-1", ChildID: childID, Name: "Feed cat", Status: model.TaskSubmitted}, "submitted")
	n.Wait()

	if len(fp.sent) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(fp.sent))
	}
	if !slices.Equal(fp.sent[0].users, []int64{parentID}) {
		t.Errorf("recipients = %v, want parent %d", fp.sent[0].users, parentID)
	}
	if fp.sent[0].payload.Title != "Task submitted" {
		t.Errorf("payload = %+v", fp.sent[0].payload)
	}
}

func TestTaskDecisionNotifiesChild(t *testing.T) {
	n, fp, _, childID := setup(t)
	ctx := context.Background()
	n.TaskChanged(ctx, &model.Task{ID: 3, FamilyID: "fam-1", ChildID: childID, Name: "Feed cat", Points: 5}, "approved")
	n.TaskChanged(ctx, &model.Task{ID: 4, FamilyID: "fam-1", ChildID: childID, Name: "Dishes", RejectionReason: "still greasy"}, "rejected")
	n.Wait()

	if len(fp.sent) != 2 {
		t.Fatalf("deliveries = %d, want 2", len(fp.sent))
	}
	for _, d := range fp.sent {
		if !slices.Equal(d.users, []int64{childID}) {
			t.Errorf("recipients = %v, want child", d.users)
		}
	}
}

func TestSilentActions(t *testing.T) {
	n, fp, _, childID := setup(t)
	ctx := context.Background()
	n.TaskChanged(ctx, &model.Task{ID: 3, FamilyID: "fam-1", ChildID: childID}, "updated")
	n.TaskChanged(ctx, &model.Task{ID: 3, FamilyID: "fam-1", ChildID: childID}, "deleted")
	n.Wait()

	if len(fp.sent) != 0 {
		t.Errorf("deliveries = %d, want none for edits", len(fp.sent))
	}
}

func TestOrderLifecycle(t *testing.T) {
	n, fp, parentID, childID := setup(t)
	ctx := context.Background()
	o := &model.Order{ID: 8, FamilyID: "fam-1", ChildID: childID, RewardName: "Ice cream", Cost: 20}

	n.OrderChanged(ctx, o, "created")
	n.Wait()
	n.OrderChanged(ctx, o, "cancelled")
	n.Wait()

	if len(fp.sent) != 2 {
		t.Fatalf("deliveries = %d, want 2", len(fp.sent))
	}
	if !slices.Equal(fp.sent[0].users, []int64{parentID}) {
		t.Errorf("created recipients = %v, want parent", fp.sent[0].users)
	}
	if !slices.Equal(fp.sent[1].users, []int64{childID}) {
		t.Errorf("cancelled recipients = %v, want child", fp.sent[1].users)
	}
}

func TestNoPusher(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	n := New(websocket.NewHub(logger), nil, nil, logger)
	n.TaskCreated(context.Background(), &model.Task{ID: 1, FamilyID: "fam-1", ChildID: 2})
	n.OrderChanged(context.Background(), &model.Order{ID: 1, FamilyID: "fam-1"}, "created")
	n.Wait()
}
