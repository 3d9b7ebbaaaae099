// Package notify fans task and order changes out to live clients and push
// subscribers.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/push"
	"github.com/dukerupert/chorequest/internal/store"
	"github.com/dukerupert/chorequest/internal/websocket"
)

type Pusher interface {
	NotifyUsers(ctx context.Context, userIDs []int64, payload push.Payload)
}

// Notifier broadcasts every change to the family's websocket clients and
// pushes the ones that need someone's attention. Push delivery runs in the
// background; Wait blocks until it drains.
type Notifier struct {
	hub    *websocket.Hub
	push   Pusher
	users  *store.UserStore
	logger *slog.Logger
	wg     sync.WaitGroup
}

func New(hub *websocket.Hub, p Pusher, users *store.UserStore, logger *slog.Logger) *Notifier {
	return &Notifier{hub: hub, push: p, users: users, logger: logger}
}

func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) TaskChanged(ctx context.Context, t *model.Task, action string) {
	n.hub.Broadcast(t.FamilyID, websocket.NewMessage("task", action, t.ID, map[string]any{
		"child_id": t.ChildID,
		"status":   t.Status,
	}))

	url := fmt.Sprintf("/tasks/%d", t.ID)
	switch action {
	case "created":
		n.pushTo(ctx, []int64{t.ChildID}, push.Payload{Title: "New task", Body: t.Name, URL: url, Tag: "task-new"})
	case "submitted":
		n.pushToParents(ctx, t.FamilyID, push.Payload{Title: "Task submitted", Body: t.Name + " is waiting for review", URL: url, Tag: fmt.Sprintf("task-%d", t.ID)})
	case "approved":
		n.pushTo(ctx, []int64{t.ChildID}, push.Payload{Title: "Task approved", Body: fmt.Sprintf("%s: +%d points", t.Name, t.Points), URL: url, Tag: fmt.Sprintf("task-%d", t.ID)})
	case "rejected":
		body := t.Name
		if t.RejectionReason != "" {
			body += ": " + t.RejectionReason
		}
		n.pushTo(ctx, []int64{t.ChildID}, push.Payload{Title: "Task needs another try", Body: body, URL: url, Tag: fmt.Sprintf("task-%d", t.ID)})
	}
}

// TaskCreated reports a task generated from a recurring template.
func (n *Notifier) TaskCreated(ctx context.Context, t *model.Task) {
	n.TaskChanged(ctx, t, "created")
}

func (n *Notifier) OrderChanged(ctx context.Context, o *model.Order, action string) {
	n.hub.Broadcast(o.FamilyID, websocket.NewMessage("order", action, o.ID, map[string]any{
		"child_id": o.ChildID,
		"status":   o.Status,
	}))

	url := "/orders"
	switch action {
	case "created":
		n.pushToParents(ctx, o.FamilyID, push.Payload{Title: "Reward redeemed", Body: o.RewardName + " is waiting for you", URL: url, Tag: fmt.Sprintf("order-%d", o.ID)})
	case "verified":
		n.pushTo(ctx, []int64{o.ChildID}, push.Payload{Title: "Reward delivered", Body: o.RewardName, URL: url, Tag: fmt.Sprintf("order-%d", o.ID)})
	case "cancelled":
		n.pushTo(ctx, []int64{o.ChildID}, push.Payload{Title: "Order cancelled", Body: fmt.Sprintf("%s: %d points refunded", o.RewardName, o.Cost), URL: url, Tag: fmt.Sprintf("order-%d", o.ID)})
	}
}

func (n *Notifier) pushToParents(ctx context.Context, familyID string, p push.Payload) {
	if n.push == nil {
		return
	}
	ids, err := n.users.ListParentIDs(ctx, familyID)
	if err != nil {
		n.logger.Error("list parents for push", "family_id", familyID, "error", err)
		return
	}
	n.pushTo(ctx, ids, p)
}

func (n *Notifier) pushTo(ctx context.Context, userIDs []int64, p push.Payload) {
	if n.push == nil || len(userIDs) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.push.NotifyUsers(ctx, userIDs, p)
	}()
}
