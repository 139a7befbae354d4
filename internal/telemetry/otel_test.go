package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracerRequiresEndpoint(t *testing.T) {
	if _, err := InitTracer(context.Background(), Config{ServiceName: ServiceName}); err == nil {
		t.Error("InitTracer() without an endpoint should fail")
	}
}

func TestInitTracer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tp, err := InitTracer(ctx, Config{
		ServiceVersion: "test",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
	})
	if err != nil {
		t.Fatalf("InitTracer() error = %v", err)
	}
	if err := Shutdown(ctx, tp); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestShutdownNilProvider(t *testing.T) {
	if err := Shutdown(context.Background(), nil); err != nil {
		t.Errorf("Shutdown() with nil provider should not error, got: %v", err)
	}
}

func TestNewSampler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ratio float64
		want  string
	}{
		{0, "AlwaysOnSampler"},
		{1, "AlwaysOnSampler"},
		{0.25, "ParentBased"},
	}
	for _, tt := range tests {
		if got := newSampler(tt.ratio).Description(); !strings.HasPrefix(got, tt.want) {
			t.Errorf("newSampler(%v) = %q, want prefix %q", tt.ratio, got, tt.want)
		}
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	r := mux.NewRouter()
	r.Use(Middleware(ServiceName, tp))
	ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
	r.HandleFunc("/api/v1/submit", ok).Methods(http.MethodPost)
	r.HandleFunc("/healthz", ok).Methods(http.MethodGet)

	const parentTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"

	req := httptest.NewRequest(http.MethodPost, "/api/v1/submit", nil)
	req.Header.Set("traceparent", "00-"+parentTraceID+"-00f067aa0ba902b7-01")
	r.ServeHTTP(httptest.NewRecorder(), req)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("Expected exactly one span (health probes are not traced), got %d", len(spans))
	}
	if got := spans[0].SpanContext.TraceID().String(); got != parentTraceID {
		t.Errorf("span trace id = %s, want the incoming %s", got, parentTraceID)
	}
	if !strings.Contains(spans[0].Name, "/api/v1/submit") {
		t.Errorf("span name = %q, want the route template", spans[0].Name)
	}
}

func TestIsProbe(t *testing.T) {
	t.Parallel()

	for path, want := range map[string]bool{
		"/healthz":        true,
		"/version":        true,
		"/api/v1/session": false,
		"/healthzfoo":     false,
	} {
		if got := isProbe(path); got != want {
			t.Errorf("isProbe(%q) = %v, want %v", path, got, want)
		}
	}
}
