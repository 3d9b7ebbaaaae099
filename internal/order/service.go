// Package order handles reward redemption. Points are debited when the
// order is placed and refunded if it is cancelled.
package order

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/ledger"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/store"
)

// Events receives order changes for live updates and notifications.
type Events interface {
	OrderChanged(ctx context.Context, o *model.Order, action string)
}

type Service struct {
	orders  *store.OrderStore
	rewards *store.RewardStore
	ledger  *ledger.Ledger
	events  Events
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(orders *store.OrderStore, rewards *store.RewardStore, l *ledger.Ledger, events Events, logger *slog.Logger) *Service {
	return &Service{orders: orders, rewards: rewards, ledger: l, events: events, logger: logger, now: time.Now}
}

func (s *Service) emit(ctx context.Context, o *model.Order, action string) {
	if s.events != nil {
		s.events.OrderChanged(ctx, o, action)
	}
}

// Create redeems a reward for the child. Stock is claimed first and given
// back if the debit fails, so a failed order leaves no trace.
func (s *Service) Create(ctx context.Context, actor auth.AuthContext, rewardID int64) (*model.Order, error) {
	if actor.IsParent() {
		return nil, apperr.New(apperr.KindForbidden, "only children can redeem rewards")
	}
	r, err := s.rewards.GetByID(ctx, rewardID)
	if err != nil {
		return nil, err
	}
	if r == nil || r.FamilyID != actor.FamilyID || !r.Active {
		return nil, apperr.NotFound("reward")
	}

	ok, err := s.rewards.TakeStock(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflict("reward is out of stock")
	}

	if r.Cost > 0 {
		if _, err := s.ledger.Spend(ctx, actor.UserID, r.Cost, "reward: "+r.Name); err != nil {
			s.returnStock(ctx, r.ID)
			return nil, err
		}
	}

	o, err := s.orders.Create(ctx, &model.Order{
		FamilyID:   actor.FamilyID,
		RewardID:   &r.ID,
		ChildID:    actor.UserID,
		RewardName: r.Name,
		Cost:       r.Cost,
	}, s.now())
	if err != nil {
		s.returnStock(ctx, r.ID)
		if r.Cost > 0 {
			if _, rerr := s.ledger.Refund(ctx, actor.UserID, r.Cost, "refund: "+r.Name); rerr != nil {
				s.logger.Error("refund after failed order", "child_id", actor.UserID, "reward_id", r.ID, "error", rerr)
			}
		}
		return nil, fmt.Errorf("create order: %w", err)
	}
	s.emit(ctx, o, "created")
	return o, nil
}

func (s *Service) returnStock(ctx context.Context, rewardID int64) {
	if err := s.rewards.ReturnStock(ctx, rewardID); err != nil {
		s.logger.Error("return reward stock", "reward_id", rewardID, "error", err)
	}
}

func (s *Service) get(ctx context.Context, actor auth.AuthContext, id int64) (*model.Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil || o.FamilyID != actor.FamilyID {
		return nil, apperr.NotFound("order")
	}
	if !actor.IsParent() && o.ChildID != actor.UserID {
		return nil, apperr.NotFound("order")
	}
	return o, nil
}

// List returns the family's orders; children only see their own.
func (s *Service) List(ctx context.Context, actor auth.AuthContext) ([]model.Order, error) {
	var childID int64
	if !actor.IsParent() {
		childID = actor.UserID
	}
	return s.orders.List(ctx, actor.FamilyID, childID)
}

// Verify marks a pending order as handed over.
func (s *Service) Verify(ctx context.Context, actor auth.AuthContext, id int64) (*model.Order, error) {
	if !actor.IsParent() {
		return nil, apperr.New(apperr.KindForbidden, "only parents can verify orders")
	}
	if _, err := s.get(ctx, actor, id); err != nil {
		return nil, err
	}
	ok, err := s.orders.Transition(ctx, id, model.OrderVerified, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflict("order is no longer pending")
	}
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, o, "verified")
	return o, nil
}

// Cancel refunds a pending order. Parents may cancel any family order and
// children their own.
func (s *Service) Cancel(ctx context.Context, actor auth.AuthContext, id int64) (*model.Order, error) {
	if _, err := s.get(ctx, actor, id); err != nil {
		return nil, err
	}
	ok, err := s.orders.Transition(ctx, id, model.OrderCancelled, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflict("order is no longer pending")
	}
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if o.Cost > 0 {
		if _, err := s.ledger.Refund(ctx, o.ChildID, o.Cost, "refund: "+o.RewardName); err != nil {
			s.logger.Error("order cancelled but refund failed", "order_id", id, "child_id", o.ChildID, "error", err)
			return nil, fmt.Errorf("refund order: %w", err)
		}
	}
	if o.RewardID != nil {
		s.returnStock(ctx, *o.RewardID)
	}
	s.emit(ctx, o, "cancelled")
	return o, nil
}
