package model

import "time"

type Account struct {
	UserID         int64     `json:"user_id"`
	Coins          int       `json:"coins"`
	TotalEarned    int       `json:"total_earned"`
	Stars          int       `json:"stars"`
	CreditUsed     int       `json:"credit_used"`
	CreditLimit    int       `json:"credit_limit"`
	InterestRate   float64   `json:"interest_rate"`
	LastInterestAt time.Time `json:"last_interest_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// AvailableCredit is the overdraft still open to the account holder.
func (a *Account) AvailableCredit() int {
	if a.CreditLimit <= a.CreditUsed {
		return 0
	}
	return a.CreditLimit - a.CreditUsed
}

type TransactionType string

const (
	TxDeposit  TransactionType = "deposit"
	TxSpend    TransactionType = "spend"
	TxCredit   TransactionType = "credit"
	TxRefund   TransactionType = "refund"
	TxInterest TransactionType = "interest"
	TxStars    TransactionType = "stars"
)

// Transaction is an append-only ledger row carrying the post-mutation balances.
type Transaction struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	Type        TransactionType `json:"type"`
	Amount      int             `json:"amount"`
	Balance     int             `json:"balance"`
	Stars       int             `json:"stars"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}
