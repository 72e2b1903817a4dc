package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/wgroenewold/stream/pkg/metrics"
)

// ListTaxonomy returns every registered context with its actions.
// GET /api/v1/taxonomy
func (h *Handlers) ListTaxonomy(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if h.taxonomy == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, h.taxonomy.Contexts())
}

// ServiceMetricsResponse lists the metrics of every reporting service.
type ServiceMetricsResponse struct {
	Services map[string]*metrics.ServiceMetrics `json:"services"`
}

// GetServiceMetrics returns counters from Redis, for one service when
// ?service= is given.
// GET /api/v1/metrics
func (h *Handlers) GetServiceMetrics(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if h.metrics == nil {
		http.Error(w, "Metrics are not enabled", http.StatusServiceUnavailable)
		return
	}
	ctx := r.Context()

	if name := r.URL.Query().Get("service"); name != "" {
		m, err := h.metrics.GetServiceMetrics(ctx, name)
		if err != nil {
			slog.Warn("Failed to get service metrics", "service", name, "error", err)
			m = &metrics.ServiceMetrics{ServiceName: name, Status: "offline"}
		}
		writeJSON(w, http.StatusOK, m)
		return
	}

	names, err := h.metrics.ServiceNames(ctx)
	if err != nil {
		slog.Error("Failed to list services", "error", err)
		http.Error(w, "Failed to retrieve service metrics", http.StatusInternalServerError)
		return
	}
	resp := ServiceMetricsResponse{Services: make(map[string]*metrics.ServiceMetrics, len(names))}
	for _, name := range names {
		m, err := h.metrics.GetServiceMetrics(ctx, name)
		if err != nil {
			// key expired between listing and reading
			continue
		}
		resp.Services[name] = m
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health reports OK when the database answers a ping.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			slog.Warn("Health check failed", "error", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
