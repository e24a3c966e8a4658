package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cardtable/coordinator/internal/coordinator"
	"cardtable/coordinator/internal/logging"
)

type stubStats struct {
	stats coordinator.Stats
}

func (s *stubStats) Snapshot() coordinator.Stats { return s.stats }

type stubResetter struct {
	calls int
}

func (s *stubResetter) Reset() { s.calls++ }

type stubLimiter struct {
	remaining int
}

func (s *stubLimiter) Allow(string) bool {
	if s.remaining <= 0 {
		return false
	}
	s.remaining--
	return true
}

func TestLivenessHandlerReturnsJSON(t *testing.T) {
	fixed := time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), TimeSource: func() time.Time { return fixed }})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)

	handlers.LivenessHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var payload struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "alive" {
		t.Fatalf("unexpected status %q", payload.Status)
	}
	if payload.Timestamp != fixed.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected timestamp %q", payload.Timestamp)
	}
}

func TestStatusHandlerReportsCounts(t *testing.T) {
	stats := &stubStats{stats: coordinator.Stats{
		Uptime:     90 * time.Second,
		Sessions:   2,
		Clients:    5,
		Broadcasts: 17,
	}}
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Stats: stats})

	rr := httptest.NewRecorder()
	handlers.StatusHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/statusz", nil))

	var payload struct {
		Status        string  `json:"status"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Sessions      int     `json:"sessions"`
		Clients       int     `json:"clients"`
		Broadcasts    int64   `json:"broadcasts"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Sessions != 2 || payload.Clients != 5 || payload.Broadcasts != 17 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.UptimeSeconds != 90 {
		t.Fatalf("unexpected uptime %f", payload.UptimeSeconds)
	}
}

func TestMetricsHandlerEmitsGauges(t *testing.T) {
	stats := &stubStats{stats: coordinator.Stats{Sessions: 3, Clients: 7, Broadcasts: 21}}
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Stats: stats})

	rr := httptest.NewRecorder()
	handlers.MetricsHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rr.Body.String()
	for _, line := range []string{
		"coordinator_sessions 3",
		"coordinator_clients 7",
		"coordinator_broadcasts_total 21",
	} {
		if !strings.Contains(body, line) {
			t.Fatalf("metrics output missing %q:\n%s", line, body)
		}
	}
}

func TestAdminResetRequiresToken(t *testing.T) {
	resetter := &stubResetter{}
	handlers := NewHandlerSet(Options{
		Logger:      logging.NewTestLogger(),
		Resetter:    resetter,
		AdminToken:  "secret",
		RateLimiter: &stubLimiter{remaining: 5},
	})
	handler := handlers.AdminResetHandler()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/reset", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	if resetter.calls != 0 {
		t.Fatal("reset must not run unauthorized")
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/admin/reset", nil)
	req.Header.Set("Authorization", "Bearer secret")
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202 with token, got %d", rr.Code)
	}
	if resetter.calls != 1 {
		t.Fatalf("expected one reset call, got %d", resetter.calls)
	}
}

func TestAdminResetRejectsWrongMethodAndRate(t *testing.T) {
	resetter := &stubResetter{}
	handlers := NewHandlerSet(Options{
		Logger:      logging.NewTestLogger(),
		Resetter:    resetter,
		AdminToken:  "secret",
		RateLimiter: &stubLimiter{remaining: 1},
	})
	handler := handlers.AdminResetHandler()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/reset", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", rr.Code)
	}

	authed := func() *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/admin/reset", nil)
		req.Header.Set("X-Admin-Token", "secret")
		handler.ServeHTTP(rr, req)
		return rr
	}
	if rr := authed(); rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	if rr := authed(); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the budget is spent, got %d", rr.Code)
	}
}

func TestAdminResetDisabledWithoutToken(t *testing.T) {
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Resetter: &stubResetter{}})
	rr := httptest.NewRecorder()
	handlers.AdminResetHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/reset", nil))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 when auth is not configured, got %d", rr.Code)
	}
}
