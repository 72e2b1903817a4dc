// Package router wires the HTTP API routes and middleware.
package router

import (
	"net/http"
	"time"

	"github.com/wgroenewold/stream/internal/handlers"
)

// Router wraps the HTTP mux.
type Router struct {
	mux      *http.ServeMux
	handlers *handlers.Handlers
	metrics  handlers.MetricsRecorder
}

// NewRouter creates a router with every route registered. A nil recorder
// disables request metrics.
func NewRouter(h *handlers.Handlers, m handlers.MetricsRecorder) *Router {
	if m == nil {
		m = handlers.NoOpMetrics{}
	}
	r := &Router{
		mux:      http.NewServeMux(),
		handlers: h,
		metrics:  m,
	}
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	r.mux.HandleFunc("/api/v1/records", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodPost:
			r.handlers.CreateRecord(w, req)
		case http.MethodGet:
			if req.URL.Query().Get("record_id") != "" {
				r.handlers.GetRecord(w, req)
			} else {
				r.handlers.ListRecords(w, req)
			}
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	r.mux.HandleFunc("/api/v1/alerts", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodPost:
			r.handlers.CreateAlert(w, req)
		case http.MethodGet:
			if req.URL.Query().Get("alert_id") != "" {
				r.handlers.GetAlert(w, req)
			} else {
				r.handlers.ListAlerts(w, req)
			}
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	r.mux.HandleFunc("/api/v1/alerts/update", r.handlers.UpdateAlert)
	r.mux.HandleFunc("/api/v1/alerts/delete", r.handlers.DeleteAlert)
	r.mux.HandleFunc("/api/v1/taxonomy", r.handlers.ListTaxonomy)
	r.mux.HandleFunc("/api/v1/metrics", r.handlers.GetServiceMetrics)
	r.mux.HandleFunc("/health", r.handlers.Health)
}

// Handler returns the mux wrapped in metrics and CORS middleware.
func (r *Router) Handler() http.Handler {
	return corsMiddleware(metricsMiddleware(r.metrics)(r.mux))
}

// NewServer creates an HTTP server for the router.
func NewServer(port string, h *handlers.Handlers, m handlers.MetricsRecorder) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      NewRouter(h, m).Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
