package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wgroenewold/stream/internal/database"
	"github.com/wgroenewold/stream/internal/dispatch"
	"github.com/wgroenewold/stream/internal/events"
	"github.com/wgroenewold/stream/internal/record"
)

// RecordResponse is the JSON form of a stored record.
type RecordResponse struct {
	ID        int64             `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Actor     string            `json:"actor"`
	Context   string            `json:"context"`
	Action    string            `json:"action"`
	ObjectID  string            `json:"object_id,omitempty"`
	Summary   string            `json:"summary,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Metadata  map[string]string `json:"metadata"`
}

func newRecordResponse(rec *record.Record) RecordResponse {
	return RecordResponse{
		ID:        rec.ID,
		Timestamp: rec.Timestamp,
		Actor:     rec.Actor,
		Context:   rec.Context,
		Action:    rec.Action,
		ObjectID:  rec.ObjectID,
		Summary:   rec.Summary,
		IP:        rec.IP,
		Metadata:  rec.Metadata,
	}
}

// LogRecordResponse is returned by CreateRecord.
type LogRecordResponse struct {
	Record        RecordResponse   `json:"record"`
	MatchedAlerts []int64          `json:"matched_alerts"`
	KnownTaxonomy bool             `json:"known_taxonomy"`
	Report        *dispatch.Report `json:"report,omitempty"`
}

// CreateRecord logs one raw event.
// POST /api/v1/records
func (h *Handlers) CreateRecord(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var fields map[string]any
	if !decodeJSON(w, r, &fields) {
		return
	}
	raw := *events.RawEventFromFields(fields)

	result, err := h.engine.Log(r.Context(), raw)
	if err != nil {
		if errors.Is(err, record.ErrMissingContext) || errors.Is(err, record.ErrMissingAction) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Failed to log record", "context", raw.Context, "action", raw.Action, "error", err)
		http.Error(w, "Failed to log record", http.StatusInternalServerError)
		return
	}

	matched := make([]int64, 0, len(result.Matched))
	for _, rule := range result.Matched {
		matched = append(matched, rule.ID)
	}
	writeJSON(w, http.StatusCreated, LogRecordResponse{
		Record:        newRecordResponse(result.Record),
		MatchedAlerts: matched,
		KnownTaxonomy: result.KnownTaxonomy,
		Report:        result.Report,
	})
}

// GetRecord returns one record.
// GET /api/v1/records?record_id=
func (h *Handlers) GetRecord(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	id, ok := requireID(w, r, "record_id")
	if !ok {
		return
	}

	rec, err := h.records.GetRecord(r.Context(), id)
	if errors.Is(err, database.ErrRecordNotFound) {
		http.Error(w, "Record not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Failed to get record", "record_id", id, "error", err)
		http.Error(w, "Failed to get record", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, newRecordResponse(rec))
}

// ListRecords returns the newest records, filtered by context (comma list),
// action and actor.
// GET /api/v1/records
func (h *Handlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	q := r.URL.Query()
	query := database.RecordQuery{
		Action: q.Get("action"),
		Actor:  q.Get("actor"),
	}
	for _, c := range strings.Split(q.Get("context"), ",") {
		if c = strings.TrimSpace(c); c != "" {
			query.Contexts = append(query.Contexts, c)
		}
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		query.Limit = n
	}

	recs, err := h.records.ListRecords(r.Context(), query)
	if err != nil {
		slog.Error("Failed to list records", "error", err)
		http.Error(w, "Failed to list records", http.StatusInternalServerError)
		return
	}

	out := make([]RecordResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, newRecordResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}
