package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/push"
)

type PushHandler struct {
	push   *push.Service
	logger *slog.Logger
}

func NewPushHandler(ps *push.Service, logger *slog.Logger) *PushHandler {
	return &PushHandler{push: ps, logger: logger}
}

// subscribeRequest mirrors the browser's PushSubscription.toJSON().
type subscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
	DeviceName string `json:"device_name"`
}

func (req *subscribeRequest) Validate() error {
	req.Endpoint = strings.TrimSpace(req.Endpoint)
	if req.Endpoint == "" {
		return apperr.InvalidInput("endpoint is required")
	}
	return nil
}

func (h *PushHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	if !h.push.Enabled() {
		writeError(w, r, h.logger, apperr.New(apperr.KindUnimplemented, "push notifications are not configured"))
		return
	}
	writeData(w, http.StatusOK, map[string]string{"public_key": h.push.VAPIDPublicKey()})
}

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	if !h.push.Enabled() {
		writeError(w, r, h.logger, apperr.New(apperr.KindUnimplemented, "push notifications are not configured"))
		return
	}
	var req subscribeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	sub, err := h.push.Subscribe(r.Context(), actor(r), &model.PushSubscription{
		Endpoint:   req.Endpoint,
		P256dhKey:  req.Keys.P256dh,
		AuthKey:    req.Keys.Auth,
		DeviceName: req.DeviceName,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, sub)
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.push.Unsubscribe(r.Context(), req.Endpoint); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"endpoint": req.Endpoint})
}
