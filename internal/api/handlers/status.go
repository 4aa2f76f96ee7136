package handlers

import (
	"net/http"

	"github.com/zhaoqi/breadth/internal/contracts"
	"github.com/zhaoqi/breadth/pkg/logger"
)

// StatusHandler exposes the update watermarks.
type StatusHandler struct {
	status contracts.StatusStore
	logger *logger.Logger
}

func NewStatusHandler(status contracts.StatusStore, log *logger.Logger) *StatusHandler {
	return &StatusHandler{status: status, logger: log}
}

// GetStatus returns the incremental and full-update watermarks.
// GET /api/v1/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body := make(map[string]interface{}, 2)
	for _, key := range []string{contracts.KeyLastUpdate, contracts.KeyLastFullUpdate} {
		v, ok, err := h.status.Get(ctx, key)
		if err != nil {
			h.logger.WithError(err).Error("status query failed")
			writeError(w, http.StatusInternalServerError, "query failed")
			return
		}
		if ok {
			body[key] = v
		} else {
			body[key] = nil
		}
	}

	writeJSON(w, http.StatusOK, body)
}
