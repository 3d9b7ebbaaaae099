package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/store"
	"github.com/dukerupert/chorequest/internal/websocket"
)

type RewardHandler struct {
	rewards *store.RewardStore
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewRewardHandler(rs *store.RewardStore, hub *websocket.Hub, logger *slog.Logger) *RewardHandler {
	return &RewardHandler{rewards: rs, hub: hub, logger: logger}
}

func (h *RewardHandler) broadcast(familyID, action string, id int64) {
	if h.hub != nil {
		h.hub.Broadcast(familyID, websocket.NewMessage("reward", action, id, nil))
	}
}

type rewardRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Cost        int    `json:"cost"`
	Stock       *int   `json:"stock"`
	Active      *bool  `json:"active"`
}

func (req *rewardRequest) Validate() error {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return apperr.InvalidInput("name is required")
	}
	if req.Cost < 0 {
		return apperr.InvalidInput("cost must be >= 0")
	}
	if req.Stock != nil && *req.Stock < model.UnlimitedStock {
		return apperr.InvalidInput("stock must be -1 (unlimited) or >= 0")
	}
	return nil
}

func (req *rewardRequest) apply(r *model.Reward) {
	r.Name = req.Name
	r.Description = req.Description
	r.Cost = req.Cost
	if req.Stock != nil {
		r.Stock = *req.Stock
	}
	if req.Active != nil {
		r.Active = *req.Active
	}
}

// get loads a reward of the actor's family.
func (h *RewardHandler) get(r *http.Request, ac auth.AuthContext) (*model.Reward, error) {
	id, err := parseIDParam(r)
	if err != nil {
		return nil, err
	}
	reward, err := h.rewards.GetByID(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if reward == nil || reward.FamilyID != ac.FamilyID {
		return nil, apperr.NotFound("reward")
	}
	return reward, nil
}

// List handles GET /api/rewards. Children only see active rewards.
func (h *RewardHandler) List(w http.ResponseWriter, r *http.Request) {
	ac := actor(r)
	rewards, err := h.rewards.List(r.Context(), ac.FamilyID, !ac.IsParent())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if rewards == nil {
		rewards = []model.Reward{}
	}
	writeData(w, http.StatusOK, rewards)
}

func (h *RewardHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac := actor(r)
	var req rewardRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	reward := &model.Reward{FamilyID: ac.FamilyID, Stock: model.UnlimitedStock, Active: true}
	req.apply(reward)
	created, err := h.rewards.Create(r.Context(), reward, time.Now())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast(ac.FamilyID, "created", created.ID)
	writeData(w, http.StatusCreated, created)
}

func (h *RewardHandler) Update(w http.ResponseWriter, r *http.Request) {
	ac := actor(r)
	reward, err := h.get(r, ac)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req rewardRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	req.apply(reward)
	updated, err := h.rewards.Update(r.Context(), reward, time.Now())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast(ac.FamilyID, "updated", updated.ID)
	writeData(w, http.StatusOK, updated)
}

func (h *RewardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ac := actor(r)
	reward, err := h.get(r, ac)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.rewards.Delete(r.Context(), reward.ID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.broadcast(ac.FamilyID, "deleted", reward.ID)
	writeData(w, http.StatusOK, map[string]int64{"id": reward.ID})
}
