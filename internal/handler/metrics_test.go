package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stowbox/stowbox/internal/metrics"
)

func TestMetricsHandler(t *testing.T) {
	recorder := metrics.NewInMemory()
	recorder.IncUpload(metrics.OutcomeCommitted)
	recorder.IncUpload(metrics.OutcomeCommitted)
	recorder.IncUpload(metrics.OutcomeCompensated)
	recorder.IncRateLimited("ip")
	recorder.AddBytesStored(2048)

	rec := httptest.NewRecorder()
	NewMetricsHandler(recorder).Metrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, line := range []string{
		`stowbox_uploads_total{outcome="committed"} 2`,
		`stowbox_uploads_total{outcome="compensated"} 1`,
		`stowbox_rate_limited_total{scope="ip"} 1`,
		`stowbox_bytes_stored 2048`,
	} {
		if !strings.Contains(body, line+"\n") {
			t.Errorf("missing line %q in:\n%s", line, body)
		}
	}
}

func TestMetricsHandler_NoRecorder(t *testing.T) {
	rec := httptest.NewRecorder()
	NewMetricsHandler(nil).Metrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}
}
