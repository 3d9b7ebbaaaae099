package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/ledger"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type AccountHandler struct {
	users  *store.UserStore
	ledger *ledger.Ledger
	logger *slog.Logger
}

func NewAccountHandler(users *store.UserStore, l *ledger.Ledger, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{users: users, ledger: l, logger: logger}
}

// Get handles GET /api/account for the caller's own account.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	acct, err := h.ledger.Account(r.Context(), actor(r).UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, acct)
}

// Transactions handles GET /api/account/transactions?limit=N, newest first.
func (h *AccountHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, h.logger, apperr.InvalidInput("limit must be a positive integer"))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	txs, err := h.ledger.History(r.Context(), actor(r).UserID, limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	writeData(w, http.StatusOK, txs)
}

// Interest handles POST /api/account/interest. The transaction is null when
// nothing accrued.
func (h *AccountHandler) Interest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := actor(r).UserID
	tx, err := h.ledger.CalculateInterest(ctx, userID, time.Now())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	acct, err := h.ledger.Account(ctx, userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"transaction": tx, "account": acct})
}

type amountRequest struct {
	Amount      int    `json:"amount"`
	Description string `json:"description"`
}

func (req *amountRequest) Validate() error {
	if req.Amount <= 0 {
		return apperr.InvalidInput("amount must be positive")
	}
	req.Description = strings.TrimSpace(req.Description)
	return nil
}

// Deposit handles POST /api/accounts/{id}/deposit.
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.credit(w, r, "parent deposit", h.ledger.Deposit)
}

// Stars handles POST /api/accounts/{id}/stars.
func (h *AccountHandler) Stars(w http.ResponseWriter, r *http.Request) {
	h.credit(w, r, "bonus stars", h.ledger.RewardStars)
}

type creditFunc func(ctx context.Context, userID int64, amount int, description string) (*model.Transaction, error)

func (h *AccountHandler) credit(w http.ResponseWriter, r *http.Request, fallback string, fn creditFunc) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req amountRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	ctx := r.Context()
	if _, err := familyChild(ctx, h.users, actor(r), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.Description == "" {
		req.Description = fallback
	}

	tx, err := fn(ctx, id, req.Amount, req.Description)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	acct, err := h.ledger.Account(ctx, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"transaction": tx, "account": acct})
}
