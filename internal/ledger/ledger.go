// Package ledger owns every balance mutation on an account. Each mutation
// updates the account and appends exactly one transaction row carrying the
// resulting balance.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/store"
)

type Ledger struct {
	accounts *store.AccountStore
	logger   *slog.Logger
	now      func() time.Time
}

func New(accounts *store.AccountStore, logger *slog.Logger) *Ledger {
	return &Ledger{accounts: accounts, logger: logger, now: time.Now}
}

// Deposit credits amount to the account. Outstanding credit is repaid
// first and the remainder lands in coins. Lifetime earnings always grow by
// the full amount.
func (l *Ledger) Deposit(ctx context.Context, userID int64, amount int, description string) (*model.Transaction, error) {
	if amount <= 0 {
		return nil, apperr.InvalidInput("amount must be positive")
	}
	_, tx, err := l.accounts.Mutate(ctx, userID, l.now(), func(a *model.Account) (*model.Transaction, error) {
		applyDeposit(a, amount)
		a.TotalEarned += amount
		return &model.Transaction{Type: model.TxDeposit, Amount: amount, Description: description}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("deposit: %w", err)
	}
	return tx, nil
}

// Refund returns amount from a cancelled purchase. It does not count as
// earnings.
func (l *Ledger) Refund(ctx context.Context, userID int64, amount int, description string) (*model.Transaction, error) {
	if amount <= 0 {
		return nil, apperr.InvalidInput("amount must be positive")
	}
	_, tx, err := l.accounts.Mutate(ctx, userID, l.now(), func(a *model.Account) (*model.Transaction, error) {
		applyDeposit(a, amount)
		return &model.Transaction{Type: model.TxRefund, Amount: amount, Description: description}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("refund: %w", err)
	}
	return tx, nil
}

func applyDeposit(a *model.Account, amount int) {
	repay := min(a.CreditUsed, amount)
	a.CreditUsed -= repay
	a.Coins += amount - repay
}

// Spend debits amount. When coins fall short the shortfall is drawn from
// the credit allowance, leaving coins at zero and logging a credit row for
// the negative shortfall. Without enough credit nothing is written.
func (l *Ledger) Spend(ctx context.Context, userID int64, amount int, description string) (*model.Transaction, error) {
	if amount <= 0 {
		return nil, apperr.InvalidInput("amount must be positive")
	}
	_, tx, err := l.accounts.Mutate(ctx, userID, l.now(), func(a *model.Account) (*model.Transaction, error) {
		return applySpend(a, amount, description)
	})
	if err != nil {
		return nil, fmt.Errorf("spend: %w", err)
	}
	return tx, nil
}

func applySpend(a *model.Account, amount int, description string) (*model.Transaction, error) {
	if a.Coins >= amount {
		a.Coins -= amount
		return &model.Transaction{Type: model.TxSpend, Amount: -amount, Description: description}, nil
	}
	shortfall := amount - a.Coins
	if a.AvailableCredit() < shortfall {
		return nil, apperr.Newf(apperr.KindInsufficientFunds,
			"insufficient funds: balance %d, available credit %d, need %d", a.Coins, a.AvailableCredit(), amount)
	}
	a.Coins = 0
	a.CreditUsed += shortfall
	return &model.Transaction{Type: model.TxCredit, Amount: -shortfall, Description: description}, nil
}

// RewardStars adds stars to the account.
func (l *Ledger) RewardStars(ctx context.Context, userID int64, amount int, description string) (*model.Transaction, error) {
	if amount <= 0 {
		return nil, apperr.InvalidInput("amount must be positive")
	}
	_, tx, err := l.accounts.Mutate(ctx, userID, l.now(), func(a *model.Account) (*model.Transaction, error) {
		a.Stars += amount
		return &model.Transaction{Type: model.TxStars, Amount: amount, Description: description}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("reward stars: %w", err)
	}
	return tx, nil
}

// CalculateInterest compounds daily interest over the whole days elapsed
// since the last calculation. It returns nil when nothing accrued, which
// includes interest that rounds down to zero.
func (l *Ledger) CalculateInterest(ctx context.Context, userID int64, now time.Time) (*model.Transaction, error) {
	_, tx, err := l.accounts.Mutate(ctx, userID, now, func(a *model.Account) (*model.Transaction, error) {
		interest := Interest(a.Coins, a.InterestRate, a.LastInterestAt, now)
		if interest <= 0 {
			return nil, nil
		}
		a.Coins += interest
		a.LastInterestAt = now
		return &model.Transaction{Type: model.TxInterest, Amount: interest, Description: "daily interest"}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("calculate interest: %w", err)
	}
	if tx != nil {
		l.logger.Debug("interest credited", "user_id", userID, "amount", tx.Amount)
	}
	return tx, nil
}

// Interest returns floor(coins*(1+rate)^days - coins) for the whole days
// between last and now.
func Interest(coins int, rate float64, last, now time.Time) int {
	days := int(now.Sub(last) / (24 * time.Hour))
	if days <= 0 || coins <= 0 {
		return 0
	}
	grown := float64(coins) * math.Pow(1+rate, float64(days))
	return int(math.Floor(grown - float64(coins)))
}

// AdjustCredit replaces the credit limit. It appends no transaction.
func (l *Ledger) AdjustCredit(ctx context.Context, childID int64, newLimit int) error {
	if newLimit < 0 {
		return apperr.InvalidInput("credit limit cannot be negative")
	}
	if err := l.accounts.SetCreditLimit(ctx, childID, newLimit, l.now()); err != nil {
		return fmt.Errorf("adjust credit: %w", err)
	}
	return nil
}

func (l *Ledger) Account(ctx context.Context, userID int64) (*model.Account, error) {
	a, err := l.accounts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, apperr.NotFound("account")
	}
	return a, nil
}

func (l *Ledger) History(ctx context.Context, userID int64, limit int) ([]model.Transaction, error) {
	return l.accounts.ListTransactions(ctx, userID, limit)
}

// AccrueAll runs CalculateInterest for every account with a positive
// balance in the family. An empty family covers all accounts. The first
// failure stops the sweep.
func (l *Ledger) AccrueAll(ctx context.Context, familyID string, now time.Time) (int, error) {
	ids, err := l.accounts.ListAccruing(ctx, familyID)
	if err != nil {
		return 0, err
	}
	credited := 0
	for _, id := range ids {
		tx, err := l.CalculateInterest(ctx, id, now)
		if err != nil {
			return credited, err
		}
		if tx != nil {
			credited++
		}
	}
	return credited, nil
}
