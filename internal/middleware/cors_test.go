package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	tests := []struct {
		name           string
		allowedOrigins []string
		requestOrigin  string
		method         string
		wantStatus     int
		wantHeader     string
	}{
		{"no origins configured", nil, "https://app.stowbox.io", http.MethodGet, http.StatusOK, ""},
		{"exact origin", []string{"https://app.stowbox.io"}, "https://app.stowbox.io", http.MethodGet, http.StatusOK, "https://app.stowbox.io"},
		{"case insensitive", []string{"HTTPS://APP.STOWBOX.IO"}, "https://app.stowbox.io", http.MethodGet, http.StatusOK, "https://app.stowbox.io"},
		{"disallowed preflight", []string{"https://app.stowbox.io"}, "https://evil.example", http.MethodOptions, http.StatusForbidden, ""},
		{"allowed preflight", []string{"https://app.stowbox.io"}, "https://app.stowbox.io", http.MethodOptions, http.StatusNoContent, "https://app.stowbox.io"},
		{"wildcard subdomain", []string{"*.stowbox.io"}, "https://beta.stowbox.io", http.MethodGet, http.StatusOK, "https://beta.stowbox.io"},
		{"wildcard rejects lookalike", []string{"*.stowbox.io"}, "https://evilstowbox.io", http.MethodGet, http.StatusOK, ""},
		{"wildcard rejects apex", []string{"*.stowbox.io"}, "https://stowbox.io", http.MethodGet, http.StatusOK, ""},
		{"no origin header", []string{"https://app.stowbox.io"}, "", http.MethodGet, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultCORSConfig()
			cfg.AllowedOrigins = tt.allowedOrigins

			handler := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/api/v1/files", nil)
			if tt.requestOrigin != "" {
				req.Header.Set("Origin", tt.requestOrigin)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantHeader {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantHeader)
			}
		})
	}
}

func TestCORS_PreflightAllowsCookies(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://app.stowbox.io"}

	handler := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("preflight reached the handler")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/files", nil)
	req.Header.Set("Origin", "https://app.stowbox.io")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Access-Control-Allow-Credentials = %q, want true", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got == "" {
		t.Error("Access-Control-Allow-Methods not set on preflight")
	}
	if got := rec.Header().Get("Access-Control-Max-Age"); got != "600" {
		t.Errorf("Access-Control-Max-Age = %q, want 600", got)
	}
}
