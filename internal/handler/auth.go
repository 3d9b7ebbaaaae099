package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/ledger"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/store"
)

type AuthHandler struct {
	users        *store.UserStore
	ledger       *ledger.Ledger
	tokens       *auth.Tokens
	interestRate float64
	logger       *slog.Logger
}

func NewAuthHandler(users *store.UserStore, l *ledger.Ledger, tokens *auth.Tokens, interestRate float64, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{users: users, ledger: l, tokens: tokens, interestRate: interestRate, logger: logger}
}

type credentialsRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func (req *credentialsRequest) Validate() error {
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if n := utf8.RuneCountInString(req.Username); n < 3 || n > 32 {
		return apperr.InvalidInput("username must be 3 to 32 characters")
	}
	if len(req.Password) < 6 {
		return apperr.InvalidInput("password must be at least 6 characters")
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}
	return nil
}

type tokenResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, r *http.Request, status int, u *model.User) {
	token, expires, err := h.tokens.Issue(u)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, status, tokenResponse{Token: token, ExpiresAt: expires, User: u})
}

// Register handles POST /api/auth/register. The new parent starts a family.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	u, err := h.users.Create(r.Context(), store.NewUser{
		Username:     req.Username,
		PasswordHash: hash,
		DisplayName:  req.DisplayName,
		Role:         model.RoleParent,
		FamilyID:     uuid.NewString(),
		InterestRate: h.interestRate,
	}, time.Now())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Info("family registered", "user_id", u.ID, "family_id", u.FamilyID)
	h.respondWithToken(w, r, http.StatusCreated, u)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(r, &req); err != nil {
		writeMessage(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	u, hash, err := h.users.GetCredentials(r.Context(), req.Username)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if u == nil || !auth.CheckPassword(hash, req.Password) {
		writeMessage(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	h.respondWithToken(w, r, http.StatusOK, u)
}

// Me handles GET /api/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetWithPoints(r.Context(), actor(r).UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if u == nil {
		writeError(w, r, h.logger, apperr.NotFound("user"))
		return
	}
	writeData(w, http.StatusOK, u)
}

// CreateChild handles POST /api/children.
func (h *AuthHandler) CreateChild(w http.ResponseWriter, r *http.Request) {
	ac := actor(r)
	var req credentialsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	parentID := ac.UserID
	u, err := h.users.Create(r.Context(), store.NewUser{
		Username:     req.Username,
		PasswordHash: hash,
		DisplayName:  req.DisplayName,
		Role:         model.RoleChild,
		FamilyID:     ac.FamilyID,
		ParentID:     &parentID,
		InterestRate: h.interestRate,
	}, time.Now())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, u)
}

// ListChildren handles GET /api/children.
func (h *AuthHandler) ListChildren(w http.ResponseWriter, r *http.Request) {
	children, err := h.users.ListChildren(r.Context(), actor(r).FamilyID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if children == nil {
		children = []model.UserWithPoints{}
	}
	writeData(w, http.StatusOK, children)
}

type creditRequest struct {
	CreditLimit int `json:"credit_limit"`
}

func (req *creditRequest) Validate() error {
	if req.CreditLimit < 0 {
		return apperr.InvalidInput("credit_limit cannot be negative")
	}
	return nil
}

// AdjustCredit handles PUT /api/children/{id}/credit.
func (h *AuthHandler) AdjustCredit(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req creditRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if _, err := familyChild(r.Context(), h.users, actor(r), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.ledger.AdjustCredit(r.Context(), id, req.CreditLimit); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	acct, err := h.ledger.Account(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, acct)
}

// familyChild loads a child of the actor's family or reports it missing.
func familyChild(ctx context.Context, users *store.UserStore, ac auth.AuthContext, id int64) (*model.User, error) {
	u, err := users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil || u.FamilyID != ac.FamilyID || u.Role != model.RoleChild {
		return nil, apperr.NotFound("child")
	}
	return u, nil
}
