package api

import (
	"net/http"

	"github.com/newshound/newshound/internal/log"
)

type statsHandler struct {
	stats  Stats
	logger log.Logger
}

func (h *statsHandler) get(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, stats, h.logger)
}
