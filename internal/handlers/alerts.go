package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/wgroenewold/stream/internal/alert"
)

// RuleResponse adds the display title to a stored rule.
type RuleResponse struct {
	*alert.Rule
	Heading string `json:"title"`
}

func newRuleResponse(rule *alert.Rule) RuleResponse {
	return RuleResponse{Rule: rule, Heading: rule.Title()}
}

// CreateAlert creates a rule from whitelisted form keys.
// POST /api/v1/alerts
func (h *Handlers) CreateAlert(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var form map[string]any
	if !decodeJSON(w, r, &form) {
		return
	}

	rule := &alert.Rule{}
	rule.Populate(form)
	if !h.saveRule(r.Context(), w, rule) {
		return
	}
	writeJSON(w, http.StatusCreated, newRuleResponse(rule))
}

// UpdateAlert applies form keys to an existing rule.
// PUT /api/v1/alerts/update?alert_id=
func (h *Handlers) UpdateAlert(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPut) {
		return
	}
	id, ok := requireID(w, r, "alert_id")
	if !ok {
		return
	}

	var form map[string]any
	if !decodeJSON(w, r, &form) {
		return
	}

	ctx := r.Context()
	rule, err := h.rules.Get(ctx, id)
	if handleRuleError(w, err, id) {
		return
	}

	rule.Populate(form)
	if !h.saveRule(ctx, w, rule) {
		return
	}
	writeJSON(w, http.StatusOK, newRuleResponse(rule))
}

// GetAlert returns one rule.
// GET /api/v1/alerts?alert_id=
func (h *Handlers) GetAlert(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	id, ok := requireID(w, r, "alert_id")
	if !ok {
		return
	}

	rule, err := h.rules.Get(r.Context(), id)
	if handleRuleError(w, err, id) {
		return
	}
	writeJSON(w, http.StatusOK, newRuleResponse(rule))
}

// ListAlerts returns every rule.
// GET /api/v1/alerts
func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	rules, err := h.rules.Load(r.Context())
	if err != nil {
		slog.Error("Failed to list alerts", "error", err)
		http.Error(w, "Failed to list alerts", http.StatusInternalServerError)
		return
	}

	out := make([]RuleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, newRuleResponse(rule))
	}
	writeJSON(w, http.StatusOK, out)
}

// DeleteAlert removes a rule.
// DELETE /api/v1/alerts/delete?alert_id=
func (h *Handlers) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodDelete) {
		return
	}
	id, ok := requireID(w, r, "alert_id")
	if !ok {
		return
	}

	ctx := r.Context()
	if handleRuleError(w, h.rules.Delete(ctx, id), id) {
		return
	}
	h.bumpVersion(ctx, id)
	w.WriteHeader(http.StatusNoContent)
}

// saveRule saves and bumps the rule-set version. It writes the error
// response and returns false on failure.
func (h *Handlers) saveRule(ctx context.Context, w http.ResponseWriter, rule *alert.Rule) bool {
	saved, err := h.rules.Save(ctx, rule)

	var verr *alert.ValidationError
	var merr *alert.MetaWriteError
	switch {
	case errors.As(err, &verr):
		http.Error(w, verr.Error(), http.StatusBadRequest)
		return false
	case errors.As(err, &merr):
		// the row exists, so the rule set still changed
		h.bumpVersion(ctx, rule.ID)
		slog.Error("Alert saved with incomplete meta", "alert_id", rule.ID, "keys", merr.Keys, "error", merr.Err)
		http.Error(w, "Alert saved but some settings could not be stored", http.StatusInternalServerError)
		return false
	case err != nil:
		slog.Error("Failed to save alert", "alert_id", rule.ID, "error", err)
		http.Error(w, "Failed to save alert", http.StatusInternalServerError)
		return false
	case !saved:
		http.Error(w, "Alert could not be stored", http.StatusInternalServerError)
		return false
	}

	h.bumpVersion(ctx, rule.ID)
	return true
}

func (h *Handlers) bumpVersion(ctx context.Context, alertID int64) {
	if h.versions == nil {
		return
	}
	version, err := h.versions.Bump(ctx)
	if err != nil {
		// running engines keep the previous rule set until the next bump
		slog.Error("Failed to bump rule version", "alert_id", alertID, "error", err)
		return
	}
	slog.Info("Rule version bumped", "alert_id", alertID, "version", version)
}

// handleRuleError writes the response for a repository error. Returns true
// if err was non-nil.
func handleRuleError(w http.ResponseWriter, err error, id int64) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, alert.ErrNotFound) {
		http.Error(w, "Alert not found", http.StatusNotFound)
		return true
	}
	slog.Error("Alert store error", "alert_id", id, "error", err)
	http.Error(w, "Failed to access alert", http.StatusInternalServerError)
	return true
}
