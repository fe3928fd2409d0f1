package handlers

import (
	"encoding/json"
	"net/http"

	"resolvarr/services/debrid"
	"resolvarr/services/sources"
)

// HealthHandler answers liveness probes with basic wiring info.
type HealthHandler struct {
	aggregator *sources.Aggregator
}

// NewHealthHandler builds the health handler.
func NewHealthHandler(aggregator *sources.Aggregator) *HealthHandler {
	return &HealthHandler{aggregator: aggregator}
}

type healthResponse struct {
	Status    string   `json:"status"`
	Sources   int      `json:"sources"`
	Providers []string `json:"providers"`
}

// ServeHealth handles GET /api/health.
func (h *HealthHandler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:    "ok",
		Sources:   h.aggregator.SourceCount(),
		Providers: debrid.RegisteredProviders(),
	})
}
