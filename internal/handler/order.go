package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/order"
)

type OrderHandler struct {
	orders *order.Service
	logger *slog.Logger
}

func NewOrderHandler(orders *order.Service, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

type orderRequest struct {
	RewardID int64 `json:"reward_id"`
}

func (req *orderRequest) Validate() error {
	if req.RewardID <= 0 {
		return apperr.InvalidInput("reward_id is required")
	}
	return nil
}

func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context(), actor(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	writeData(w, http.StatusOK, orders)
}

// Create handles POST /api/orders. A child without enough points gets 402.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	o, err := h.orders.Create(r.Context(), actor(r), req.RewardID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, o)
}

func (h *OrderHandler) Verify(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	o, err := h.orders.Verify(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, o)
}

func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	o, err := h.orders.Cancel(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, o)
}
