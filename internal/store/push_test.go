package store

import (
	"context"
	"testing"

	"github.com/dukerupert/chorequest/internal/model"
)

func TestPushSubscriptionUpsert(t *testing.T) {
	db := setupTestDB(t)
	parentID, _ := seedFamily(t, db)
	ctx := context.Background()
	ps := NewPushStore(db)

	sub := &model.PushSubscription{
		UserID: parentID, FamilyID: "fam-1", Endpoint: "https://push.example.com/1",
		P256dhKey: "p1", AuthKey: "a1", DeviceName: "phone",
	}
	first, err := ps.CreateSubscription(ctx, sub, testNow)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	sub.P256dhKey = "p2"
	second, err := ps.CreateSubscription(ctx, sub, testNow)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if second.ID != first.ID || second.P256dhKey != "p2" {
		t.Errorf("upsert = %+v, want same id with new key", second)
	}

	subs, _ := ps.ListByUser(ctx, parentID)
	if len(subs) != 1 {
		t.Fatalf("expected 1 subscription, got %d", len(subs))
	}

	if err := ps.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
		t.Fatalf("delete: %v", err)
	}
	subs, _ = ps.ListByUser(ctx, parentID)
	if len(subs) != 0 {
		t.Errorf("expected no subscriptions after delete, got %d", len(subs))
	}
}
