package api

import (
	"context"
	"net/http"
	"time"

	"github.com/newshound/newshound/internal/log"
)

// health is the liveness probe.
func health(logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	}
}

// readiness reports whether storage is reachable. With no Pinger wired
// it only confirms the process is serving.
func readiness(db Pinger, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"}, logger)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			logger.Warn("readiness check failed", "error", err)
			WriteError(w, http.StatusServiceUnavailable, "storage_unavailable", "database not reachable", logger)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"}, logger)
	}
}
