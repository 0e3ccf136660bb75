package httpmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

// validSpanContext returns a context with a valid (non-recording) span context for testing.
func validSpanContext() context.Context {
	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestTraceResponseHeaders(t *testing.T) {
	tests := []struct {
		name              string
		ctx               context.Context
		traceHdr, spanHdr string
		wantTrace         string
		wantSpan          string
	}{
		{"valid span", validSpanContext(), "X-Trace-Id", "X-Span-Id", "0102030405060708090a0b0c0d0e0f10", "0102030405060708"},
		{"default names", validSpanContext(), "", "", "0102030405060708090a0b0c0d0e0f10", "0102030405060708"},
		{"no span", context.Background(), "X-Trace-Id", "X-Span-Id", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := TraceResponseHeaders(tt.traceHdr, tt.spanHdr)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				called = true
			}))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody).WithContext(tt.ctx))

			if !called {
				t.Fatal("handler not called")
			}
			if got := rec.Header().Get("X-Trace-Id"); got != tt.wantTrace {
				t.Fatalf("trace header = %q, want %q", got, tt.wantTrace)
			}
			if got := rec.Header().Get("X-Span-Id"); got != tt.wantSpan {
				t.Fatalf("span header = %q, want %q", got, tt.wantSpan)
			}
		})
	}
}
