package api

import (
	"net/http"

	"github.com/fitcoach/fitcoach/internal/backend"
	"github.com/fitcoach/fitcoach/internal/log"
)

type healthHandler struct {
	backend HealthChecker
	db      Pinger
	logger  log.Logger
}

type healthResponse struct {
	Status   string         `json:"status"`
	Database bool           `json:"database_connected"`
	Model    backend.Status `json:"model"`
}

// check reports overall service health: 200 when everything is ready, 503
// with the same body shape otherwise.
func (h *healthHandler) check(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{}

	if h.db != nil {
		resp.Database = h.db.Ping(r.Context()) == nil
	}
	if h.backend != nil {
		resp.Model = h.backend.Health(r.Context())
	}

	status := http.StatusOK
	resp.Status = "ok"
	if !resp.Database || !resp.Model.Healthy() {
		status = http.StatusServiceUnavailable
		resp.Status = "degraded"
	}
	writeJSON(w, status, resp, h.logger)
}
