package health

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandlers(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantCode int
		wantBody string
	}{
		{"healthy", HealthzHandler(Fixed(true, "")), http.StatusOK, "ok\n"},
		{"nil probe is healthy", HealthzHandler(nil), http.StatusOK, "ok\n"},
		{"ready", ReadyzHandler(Fixed(true, "")), http.StatusOK, "ready\n"},
		{"unhealthy hides reason", HealthzHandler(Fixed(false, "dsn=postgres://secret")), http.StatusServiceUnavailable, "unavailable\n"},
		{"not ready", ReadyzHandler(Fixed(false, "draining")), http.StatusServiceUnavailable, "unavailable\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/ready", http.NoBody))
			if rec.Code != tt.wantCode || rec.Body.String() != tt.wantBody {
				t.Fatalf("got %d %q, want %d %q", rec.Code, rec.Body.String(), tt.wantCode, tt.wantBody)
			}
			if rec.Header().Get("Cache-Control") != "no-store" {
				t.Fatal("probe responses must not be cached")
			}
		})
	}
}
