package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"zoom-transcript-service/internal/observability/metrics"
)

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Endpoints(t *testing.T) {
	// make sure the default metrics are registered before scraping
	metrics.DefaultMetrics.RecordSessionStart()

	s := NewServer(":0", nil)

	tests := []struct {
		path     string
		contains string
	}{
		{"/healthz", "ok"},
		{"/readyz", "ready"},
		{"/metrics", "meeting_transcript_session_starts_total"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(s.Handler(), tt.path)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("expected body to contain %q", tt.contains)
			}
		})
	}
}

func TestServer_ReadinessFollowsProbe(t *testing.T) {
	var ready atomic.Bool
	s := NewServer(":0", ready.Load)

	if rec := get(s.Handler(), "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 before ready, got %d", rec.Code)
	}
	ready.Store(true)
	if rec := get(s.Handler(), "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("expected 200 once ready, got %d", rec.Code)
	}
}
