package httpapi

import (
	"net/http"
	"time"

	"beaver_gateway/internal/utils"
)

// handleHealth reports service and database health.
func (d *Dependencies) handleHealth(w http.ResponseWriter, r *http.Request) {
	if d.Health != nil {
		if err := d.Health.Health(r.Context()); err != nil {
			utils.RespondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "unhealthy",
				"database": err.Error(),
			})
			return
		}
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUptime reports how long the gateway has been running.
func (d *Dependencies) handleUptime(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(d.StartedAt)

	utils.RespondWithJSON(w, http.StatusOK, map[string]any{
		"started_at":     d.StartedAt.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(uptime.Seconds()),
		"uptime":         uptime.Truncate(time.Second).String(),
	})
}
