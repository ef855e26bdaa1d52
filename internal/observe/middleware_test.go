package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// middlewareFixture serves a small overlay-like mux through Middleware.
type middlewareFixture struct {
	handler http.Handler
	reader  *sdkmetric.ManualReader
	spans   *tracetest.InMemoryExporter
}

func newMiddlewareFixture(t *testing.T) *middlewareFixture {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/keywords", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Correlation", CorrelationID(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusSwitchingProtocols)
	})
	return &middlewareFixture{handler: Middleware(m)(mux), reader: reader, spans: exp}
}

func (f *middlewareFixture) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *middlewareFixture) durationPoints(t *testing.T) []metricdata.HistogramDataPoint[float64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := f.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "livenote.http.request.duration")
	if met == nil {
		return nil
	}
	return met.Data.(metricdata.Histogram[float64]).DataPoints
}

func TestMiddleware_CorrelationID(t *testing.T) {
	f := newMiddlewareFixture(t)

	tests := []struct {
		name        string
		traceparent string
		want        string
	}{
		{name: "new trace"},
		{
			name:        "continues caller trace",
			traceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
			want:        "4bf92f3577b34da6a3ce929d0e0e4736",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/keywords", nil)
			if tt.traceparent != "" {
				req.Header.Set("traceparent", tt.traceparent)
			}
			rec := f.serve(req)

			got := rec.Header().Get("X-Correlation-ID")
			if len(got) != 32 {
				t.Fatalf("X-Correlation-ID = %q, want 32 hex chars", got)
			}
			if tt.want != "" && got != tt.want {
				t.Errorf("X-Correlation-ID = %q, want %q", got, tt.want)
			}
			if seen := rec.Header().Get("X-Seen-Correlation"); seen != got {
				t.Errorf("handler saw correlation %q, response has %q", seen, got)
			}
		})
	}
}

func TestMiddleware_RecordsRoutePattern(t *testing.T) {
	f := newMiddlewareFixture(t)
	f.serve(httptest.NewRequest("GET", "/api/keywords?k=5", nil))
	f.serve(httptest.NewRequest("GET", "/no/such/page", nil))

	points := f.durationPoints(t)
	routes := make(map[string]uint64)
	for _, dp := range points {
		route, _ := dp.Attributes.Value(attribute.Key("route"))
		routes[route.AsString()] += dp.Count
	}
	if routes["GET /api/keywords"] != 1 {
		t.Errorf("samples for GET /api/keywords = %d, want 1 (routes %v)", routes["GET /api/keywords"], routes)
	}
	if routes[unmatchedRoute] != 1 {
		t.Errorf("samples for unmatched = %d, want 1 (routes %v)", routes[unmatchedRoute], routes)
	}

	spans := f.spans.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	if spans[0].Name != "HTTP GET /api/keywords" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "HTTP GET /api/keywords")
	}
	var status int64
	for _, a := range spans[1].Attributes {
		if a.Key == "http.response.status_code" {
			status = a.Value.AsInt64()
		}
	}
	if status != http.StatusNotFound {
		t.Errorf("unmatched span status attribute = %d, want 404", status)
	}
}

func TestMiddleware_SkipsLatencyForWebSocket(t *testing.T) {
	f := newMiddlewareFixture(t)
	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Upgrade", "websocket")
	f.serve(req)

	if points := f.durationPoints(t); len(points) != 0 {
		t.Errorf("recorded %d latency samples for a websocket, want 0", len(points))
	}
	if spans := f.spans.GetSpans(); len(spans) != 1 {
		t.Errorf("recorded %d spans, want 1", len(spans))
	}
}

func TestMiddleware_ExposesUnwrap(t *testing.T) {
	m, err := NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	var unwrapped bool
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		unwrapped = ok && u.Unwrap() != nil
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/ws", nil))
	if !unwrapped {
		t.Error("middleware writer does not expose Unwrap")
	}
}
