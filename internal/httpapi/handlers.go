// Package httpapi serves the coordinator's operational HTTP surface:
// health, status, Prometheus-style metrics, and the admin reset endpoint.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cardtable/coordinator/internal/coordinator"
	"cardtable/coordinator/internal/logging"
)

// StatsProvider exposes the coordinator counters surfaced over HTTP.
type StatsProvider interface {
	Snapshot() coordinator.Stats
}

// Resetter triggers the operator reset of all coordinator state.
type Resetter interface {
	Reset()
}

// RateLimiter gates how frequently the admin endpoint may be invoked.
type RateLimiter interface {
	Allow(key string) bool
}

// Options configures the HandlerSet.
type Options struct {
	Logger      *logging.Logger
	Stats       StatsProvider
	Resetter    Resetter
	AdminToken  string
	RateLimiter RateLimiter
	TimeSource  func() time.Time
}

// HandlerSet bundles the coordinator's operational handlers.
type HandlerSet struct {
	logger      *logging.Logger
	stats       StatsProvider
	resetter    Resetter
	adminToken  string
	rateLimiter RateLimiter
	now         func() time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	return &HandlerSet{
		logger:      logger,
		stats:       opts.Stats,
		resetter:    opts.Resetter,
		adminToken:  strings.TrimSpace(opts.AdminToken),
		rateLimiter: opts.RateLimiter,
		now:         now,
	}
}

// Register attaches all handlers to the provided mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/livez", h.LivenessHandler())
	mux.HandleFunc("/statusz", h.StatusHandler())
	mux.HandleFunc("/metrics", h.MetricsHandler())
	mux.HandleFunc("/admin/reset", h.AdminResetHandler())
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// StatusHandler reports session and client counts with process uptime.
func (h *HandlerSet) StatusHandler() http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Sessions      int     `json:"sessions"`
		Clients       int     `json:"clients"`
		Broadcasts    int64   `json:"broadcasts"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		resp := response{Status: "ok"}
		if h.stats != nil {
			snapshot := h.stats.Snapshot()
			resp.UptimeSeconds = snapshot.Uptime.Seconds()
			resp.Sessions = snapshot.Sessions
			resp.Clients = snapshot.Clients
			resp.Broadcasts = snapshot.Broadcasts
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// MetricsHandler emits Prometheus compatible text metrics.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var snapshot coordinator.Stats
		if h.stats != nil {
			snapshot = h.stats.Snapshot()
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprintf(w, "# HELP coordinator_uptime_seconds Coordinator uptime in seconds.\n")
		fmt.Fprintf(w, "# TYPE coordinator_uptime_seconds gauge\n")
		fmt.Fprintf(w, "coordinator_uptime_seconds %.0f\n", snapshot.Uptime.Seconds())

		fmt.Fprintf(w, "# HELP coordinator_sessions Active game sessions.\n")
		fmt.Fprintf(w, "# TYPE coordinator_sessions gauge\n")
		fmt.Fprintf(w, "coordinator_sessions %d\n", snapshot.Sessions)

		fmt.Fprintf(w, "# HELP coordinator_clients Current connected WebSocket clients.\n")
		fmt.Fprintf(w, "# TYPE coordinator_clients gauge\n")
		fmt.Fprintf(w, "coordinator_clients %d\n", snapshot.Clients)

		fmt.Fprintf(w, "# HELP coordinator_broadcasts_total Total state broadcasts delivered.\n")
		fmt.Fprintf(w, "# TYPE coordinator_broadcasts_total counter\n")
		fmt.Fprintf(w, "coordinator_broadcasts_total %d\n", snapshot.Broadcasts)
	}
}

// AdminResetHandler authorises and triggers a full coordinator reset.
func (h *HandlerSet) AdminResetHandler() http.HandlerFunc {
	type response struct {
		Status string `json:"status"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := h.logger.With(
			logging.String("handler", "admin_reset"),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.adminToken == "" {
			reqLogger.Warn("reset denied: admin auth disabled")
			http.Error(w, "admin authentication not configured", http.StatusForbidden)
			return
		}
		if !h.authorise(r) {
			reqLogger.Warn("reset denied: unauthorized request")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if h.rateLimiter != nil && !h.rateLimiter.Allow(r.RemoteAddr) {
			reqLogger.Warn("reset denied: rate limit exceeded")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if h.resetter == nil {
			reqLogger.Warn("reset denied: no resetter configured")
			http.Error(w, "reset is unavailable", http.StatusServiceUnavailable)
			return
		}
		h.resetter.Reset()
		reqLogger.Info("coordinator reset triggered")
		writeJSON(w, http.StatusAccepted, response{Status: "accepted"})
	}
}

func (h *HandlerSet) authorise(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	var token string
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		token = strings.TrimSpace(header[7:])
	} else if header != "" {
		token = header
	}
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
