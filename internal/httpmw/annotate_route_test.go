package httpmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// newRecordingSpan creates a context with a real recording span for testing.
func newRecordingSpan(t *testing.T, name string) (context.Context, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { tp.Shutdown(context.Background()) })

	ctx, _ := tp.Tracer("test").Start(context.Background(), name)
	return ctx, sr
}

func routeAttr(s sdktrace.ReadOnlySpan) string {
	for _, kv := range s.Attributes() {
		if kv.Key == attribute.Key("http.route") {
			return kv.Value.AsString()
		}
	}
	return ""
}

func TestAnnotateHTTPRoute(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		register string
		want     string
	}{
		{"chi pattern", "/sites/alice/blog/about", "/sites/{owner}/{site}/*", "/sites/{owner}/{site}/*"},
		{"no route", "/nowhere", "", "unmatched"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, sr := newRecordingSpan(t, "initial")

			var h http.Handler = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
			if tt.register != "" {
				r := chi.NewRouter()
				r.Use(AnnotateHTTPRoute)
				r.Get(tt.register, func(http.ResponseWriter, *http.Request) {})
				h = r
			} else {
				h = AnnotateHTTPRoute(h)
			}
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, http.NoBody).WithContext(ctx))
			trace.SpanFromContext(ctx).End()

			spans := sr.Ended()
			if len(spans) != 1 {
				t.Fatalf("ended spans = %d", len(spans))
			}
			if got := routeAttr(spans[0]); got != tt.want {
				t.Fatalf("http.route = %q, want %q", got, tt.want)
			}
			if got := spans[0].Name(); got != "GET "+tt.want {
				t.Fatalf("span name = %q", got)
			}
		})
	}
}

func TestAnnotateHTTPRoute_NoSpan(t *testing.T) {
	called := false
	AnnotateHTTPRoute(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if !called {
		t.Fatal("handler not called")
	}
}
