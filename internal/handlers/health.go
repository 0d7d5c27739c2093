package handlers

import (
	"context"
	"net/http"
	"time"
)

// Check probes one dependency
type Check func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]Check
}

func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{checks: checks}
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

func (h *HealthHandler) run(ctx context.Context) healthResponse {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	response := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Services:  make(map[string]string, len(h.checks)),
	}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			response.Services[name] = "unhealthy"
			response.Status = "degraded"
			continue
		}
		response.Services[name] = "healthy"
	}
	return response
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := h.run(r.Context())
	status := http.StatusOK
	if response.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

// Ready reports whether the service can accept traffic
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.run(r.Context()).Status != "healthy" {
		http.Error(w, "Service not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
