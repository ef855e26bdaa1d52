// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics, distributed tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] and served by
// [Telemetry.Handler] on the overlay's /metrics endpoint. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to
// avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/livenote"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// ASRDuration tracks the latency of one window transcription.
	ASRDuration metric.Float64Histogram

	// InfoDuration tracks the latency of a full keyword-info aggregation.
	InfoDuration metric.Float64Histogram

	// ToolExecutionDuration tracks MCP tool execution latency.
	ToolExecutionDuration metric.Float64Histogram

	// --- Pipeline counters ---

	// Windows counts audio windows. Attribute "result": transcribed|silent|empty.
	Windows metric.Int64Counter

	// Fragments counts merger outcomes. Attribute "result":
	// appended|merged|rejected.
	Fragments metric.Int64Counter

	// NewKeywords counts first-seen keywords.
	NewKeywords metric.Int64Counter

	// InfoStale counts info results discarded because a newer click
	// superseded them.
	InfoStale metric.Int64Counter

	// NewsCache counts news cache lookups. Attribute "result": hit|miss.
	NewsCache metric.Int64Counter

	// ToolCalls counts MCP tool invocations. Attributes "tool", "status".
	ToolCalls metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Attributes
	// "name", "to".
	BreakerTransitions metric.Int64Counter

	// --- Error counters ---

	// ASRErrors counts failed transcriptions. Attribute "provider".
	ASRErrors metric.Int64Counter

	// InfoSourceErrors counts failed lookups. Attribute "source".
	InfoSourceErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions is 1 while a transcription session is recording.
	ActiveSessions metric.Int64UpDownCounter

	// OverlayClients tracks connected overlay WebSocket clients.
	OverlayClients metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Attributes
	// "method", "path".
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries in seconds. Local
// whisper inference on a 3 s window lands between 0.1 and 5 s; remote
// lookups can take up to the 10 s timeout.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histogram := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}
	if met.ASRDuration, err = histogram("livenote.asr.duration", "Latency of one window transcription."); err != nil {
		return nil, err
	}
	if met.InfoDuration, err = histogram("livenote.info.duration", "Latency of a keyword-info aggregation."); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = histogram("livenote.tool_execution.duration", "Latency of MCP tool execution."); err != nil {
		return nil, err
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.Windows, "livenote.windows", "Audio windows by result."},
		{&met.Fragments, "livenote.fragments", "Transcript fragments by merger result."},
		{&met.NewKeywords, "livenote.keywords.new", "First-seen keywords."},
		{&met.InfoStale, "livenote.info.stale", "Info results discarded after a newer click."},
		{&met.NewsCache, "livenote.info.news_cache", "News cache lookups by result."},
		{&met.ToolCalls, "livenote.tool.calls", "MCP tool invocations by tool and status."},
		{&met.BreakerTransitions, "livenote.breaker.transitions", "Circuit breaker state changes by name and target state."},
		{&met.ASRErrors, "livenote.asr.errors", "Failed transcriptions by provider."},
		{&met.InfoSourceErrors, "livenote.info.source.errors", "Failed info lookups by source."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("livenote.active_sessions",
		metric.WithDescription("Number of recording sessions."),
	); err != nil {
		return nil, err
	}
	if met.OverlayClients, err = m.Int64UpDownCounter("livenote.overlay.clients",
		metric.WithDescription("Number of connected overlay clients."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("livenote.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

func (m *Metrics) add(ctx context.Context, c metric.Int64Counter, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordWindow counts one audio window.
func (m *Metrics) RecordWindow(ctx context.Context, result string) {
	m.add(ctx, m.Windows, Attr("result", result))
}

// RecordFragment counts one merger outcome.
func (m *Metrics) RecordFragment(ctx context.Context, result string) {
	m.add(ctx, m.Fragments, Attr("result", result))
}

// RecordASRError counts a failed transcription.
func (m *Metrics) RecordASRError(ctx context.Context, provider string) {
	m.add(ctx, m.ASRErrors, Attr("provider", provider))
}

// RecordSourceError counts a failed info lookup.
func (m *Metrics) RecordSourceError(ctx context.Context, source string) {
	m.add(ctx, m.InfoSourceErrors, Attr("source", source))
}

// RecordNewsCache counts a news cache hit or miss.
func (m *Metrics) RecordNewsCache(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.add(ctx, m.NewsCache, Attr("result", result))
}

// RecordToolCall counts one MCP tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.add(ctx, m.ToolCalls, Attr("tool", tool), Attr("status", status))
}

// RecordBreakerTransition counts a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, name, to string) {
	m.add(ctx, m.BreakerTransitions, Attr("name", name), Attr("to", to))
}
