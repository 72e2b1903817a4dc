// Package handlers implements the HTTP API for records, alert rules, the
// taxonomy and service metrics.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// Deps are the handler dependencies. Engine, Records and Rules are required;
// the rest may be nil.
type Deps struct {
	Engine   EventLogger
	Records  RecordReader
	Rules    RuleRepository
	Versions VersionBumper
	Taxonomy TaxonomySource
	Metrics  MetricsReader
	Health   HealthChecker
}

// Handlers wraps the dependencies of every endpoint.
type Handlers struct {
	engine   EventLogger
	records  RecordReader
	rules    RuleRepository
	versions VersionBumper
	taxonomy TaxonomySource
	metrics  MetricsReader
	health   HealthChecker
}

// NewHandlers creates handlers from deps.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{
		engine:   deps.Engine,
		records:  deps.Records,
		rules:    deps.Rules,
		versions: deps.Versions,
		taxonomy: deps.Taxonomy,
		metrics:  deps.Metrics,
		health:   deps.Health,
	}
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// requireID parses a positive integer query parameter.
func requireID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		http.Error(w, name+" query parameter is required", http.StatusBadRequest)
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, name+" must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
