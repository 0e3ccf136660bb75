package httpmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestIDContext(t *testing.T) {
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("empty context = %q", got)
	}
	ctx := WithRequestID(context.Background(), "req-1")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("round trip = %q", got)
	}
	if WithRequestID(ctx, "") != ctx {
		t.Fatal("empty id must not replace context")
	}
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		inbound   string
		propagate bool
	}{
		{"generates when missing", "X-Request-Id", "", false},
		{"propagates existing", "X-Request-Id", "edge-abc-123", true},
		{"custom header", "X-Correlation-Id", "corr-1", true},
		{"rejects control characters", "X-Request-Id", "abc\x01def", false},
		{"rejects spaces", "X-Request-Id", "abc def", false},
		{"rejects oversized", "X-Request-Id", strings.Repeat("a", maxRequestIDLen+1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RequestID(tt.header)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			if tt.inbound != "" {
				req.Header.Set(tt.header, tt.inbound)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if tt.propagate && seen != tt.inbound {
				t.Fatalf("id = %q, want %q", seen, tt.inbound)
			}
			if !tt.propagate && (seen == tt.inbound || len(seen) != 32) {
				t.Fatalf("id = %q, want a fresh 32-char hex id", seen)
			}
			if rec.Header().Get(tt.header) != seen {
				t.Fatalf("response header = %q, context = %q", rec.Header().Get(tt.header), seen)
			}
		})
	}
}

func TestRequestID_DefaultHeaderAndUnique(t *testing.T) {
	h := RequestID("")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	ids := map[string]bool{}
	for range 50 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
		ids[rec.Header().Get("X-Request-Id")] = true
	}
	if len(ids) != 50 {
		t.Fatalf("unique ids = %d, want 50", len(ids))
	}
}
