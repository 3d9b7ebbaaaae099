package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/model"
)

type AccountStore struct {
	db *sql.DB
}

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

const accountCols = `user_id, coins, total_earned, stars, credit_used, credit_limit, interest_rate, last_interest_at, created_at, updated_at`

func scanAccount(sc scanner) (*model.Account, error) {
	var a model.Account
	err := sc.Scan(&a.UserID, &a.Coins, &a.TotalEarned, &a.Stars, &a.CreditUsed, &a.CreditLimit,
		&a.InterestRate, &a.LastInterestAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *AccountStore) Get(ctx context.Context, userID int64) (*model.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE user_id = ?`, userID)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// MutateFunc changes the account in place and returns the ledger row to
// append, or nil to leave the account untouched.
type MutateFunc func(a *model.Account) (*model.Transaction, error)

// Mutate reads the account, applies fn, writes the balances back and appends
// the returned transaction, all inside one SQL transaction. A nil transaction
// from fn rolls everything back and returns (account, nil, nil).
func (s *AccountStore) Mutate(ctx context.Context, userID int64, now time.Time, fn MutateFunc) (*model.Account, *model.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE user_id = ?`, userID)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil, apperr.NotFound("account")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get account: %w", err)
	}

	t, err := fn(a)
	if err != nil {
		return nil, nil, err
	}
	if t == nil {
		return a, nil, nil
	}

	now = now.UTC()
	a.UpdatedAt = now
	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET coins = ?, total_earned = ?, stars = ?, credit_used = ?, last_interest_at = ?, updated_at = ?
		 WHERE user_id = ?`,
		a.Coins, a.TotalEarned, a.Stars, a.CreditUsed, a.LastInterestAt.UTC(), now, userID,
	); err != nil {
		return nil, nil, fmt.Errorf("update account: %w", err)
	}

	t.UserID = userID
	t.Balance = a.Coins
	t.Stars = a.Stars
	t.CreatedAt = now
	result, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (user_id, type, amount, balance, stars, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, string(t.Type), t.Amount, t.Balance, t.Stars, t.Description, t.CreatedAt,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("insert transaction: %w", err)
	}
	if t.ID, err = result.LastInsertId(); err != nil {
		return nil, nil, fmt.Errorf("last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit account: %w", err)
	}
	return a, t, nil
}

// SetCreditLimit changes the overdraft allowance. It appends no transaction.
func (s *AccountStore) SetCreditLimit(ctx context.Context, userID int64, limit int, now time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET credit_limit = ?, updated_at = ? WHERE user_id = ?`,
		limit, now.UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("set credit limit: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("account")
	}
	return nil
}

// ListAccruing returns the user ids of accounts holding a positive balance.
func (s *AccountStore) ListAccruing(ctx context.Context, familyID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.user_id FROM accounts a JOIN users u ON u.id = a.user_id
		 WHERE a.coins > 0 AND (? = '' OR u.family_id = ?) ORDER BY a.user_id`,
		familyID, familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list accruing accounts: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *AccountStore) ListTransactions(ctx context.Context, userID int64, limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, type, amount, balance, stars, description, created_at
		 FROM transactions WHERE user_id = ? ORDER BY id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var t model.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Balance, &t.Stars, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
