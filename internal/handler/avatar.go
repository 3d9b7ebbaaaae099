package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/gamification"
)

type AvatarHandler struct {
	game   *gamification.Engine
	logger *slog.Logger
}

func NewAvatarHandler(game *gamification.Engine, logger *slog.Logger) *AvatarHandler {
	return &AvatarHandler{game: game, logger: logger}
}

func (h *AvatarHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.game.Avatar(r.Context(), actor(r).UserID, time.Now())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, a)
}

type skinRequest struct {
	SkinID string `json:"skin_id"`
}

func (req *skinRequest) Validate() error {
	req.SkinID = strings.TrimSpace(req.SkinID)
	if req.SkinID == "" {
		return apperr.InvalidInput("skin_id is required")
	}
	return nil
}

// EquipSkin handles PUT /api/avatar/skin. Locked skins are 403.
func (h *AvatarHandler) EquipSkin(w http.ResponseWriter, r *http.Request) {
	var req skinRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	a, err := h.game.EquipSkin(r.Context(), actor(r).UserID, req.SkinID, time.Now())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, a)
}

func (h *AvatarHandler) Medals(w http.ResponseWriter, r *http.Request) {
	board, err := h.game.Medals(r.Context(), actor(r).UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, board)
}
