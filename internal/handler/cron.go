package handler

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/scheduler"
)

// CronSecretHeader carries the shared secret for externally triggered ticks.
const CronSecretHeader = "X-Cron-Secret"

type ticker interface {
	RunTick(ctx context.Context) (*scheduler.TickResult, error)
}

// CronHandler lets an external cron drive the scheduler when the in-process
// loop is disabled.
type CronHandler struct {
	sched  ticker
	secret string
	logger *slog.Logger
}

func NewCronHandler(sched ticker, secret string, logger *slog.Logger) *CronHandler {
	return &CronHandler{sched: sched, secret: secret, logger: logger}
}

// Tick handles POST /api/cron/tick.
func (h *CronHandler) Tick(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		writeError(w, r, h.logger, apperr.New(apperr.KindUnimplemented, "cron endpoint is not configured"))
		return
	}
	got := r.Header.Get(CronSecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		writeError(w, r, h.logger, apperr.New(apperr.KindUnauthorized, "invalid cron secret"))
		return
	}

	res, err := h.sched.RunTick(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, res)
}
