// Package observe holds the OpenTelemetry instruments of the voice chat
// service and the Prometheus bridge that exposes them on /metrics.
//
// Tests should build their own [Metrics] with [NewMetrics] over a manual
// reader instead of touching the global provider.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/xpanvictor/voxchat"

// Stage names used as the "stage" attribute and in provider metrics.
const (
	StageListen   = "listen"
	StageSTT      = "stt"
	StageLLM      = "llm"
	StageTTS      = "tts"
	StagePlayback = "playback"
)

// Metrics holds every instrument. The OTel types synchronise themselves.
type Metrics struct {
	// StageDuration tracks the latency of one cycle stage. Attribute: stage.
	StageDuration metric.Float64Histogram

	// CycleDuration tracks a whole cycle from listen to idle.
	CycleDuration metric.Float64Histogram

	// CycleOutcomes counts finished cycles. Attributes: status, kind.
	CycleOutcomes metric.Int64Counter

	// ProviderRequests counts collaborator calls. Attributes: provider, kind, status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed collaborator calls. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// ActiveEndpoints tracks connected browser endpoints.
	ActiveEndpoints metric.Int64UpDownCounter

	// ScratchFilesRemoved counts artifacts deleted by sweeps.
	ScratchFilesRemoved metric.Int64Counter

	// HTTPRequestDuration tracks request latency. Attributes: method, path, status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets in seconds, sized for hosted speech and model calls.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("voxchat.stage.duration",
		metric.WithDescription("Latency of a conversation cycle stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CycleDuration, err = m.Float64Histogram("voxchat.cycle.duration",
		metric.WithDescription("Latency of a full conversation cycle."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CycleOutcomes, err = m.Int64Counter("voxchat.cycle.outcomes",
		metric.WithDescription("Finished conversation cycles by status and error kind."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("voxchat.provider.requests",
		metric.WithDescription("Collaborator requests by provider, kind and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("voxchat.provider.errors",
		metric.WithDescription("Collaborator errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.ActiveEndpoints, err = m.Int64UpDownCounter("voxchat.active_endpoints",
		metric.WithDescription("Connected browser endpoints."),
	); err != nil {
		return nil, err
	}
	if met.ScratchFilesRemoved, err = m.Int64Counter("voxchat.scratch.removed",
		metric.WithDescription("Scratch artifacts deleted by sweeps."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxchat.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
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

// DefaultMetrics is built lazily over the global meter provider.
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

// Discard returns instruments backed by the no-op provider.
func Discard() *Metrics {
	met, err := NewMetrics(noopProvider())
	if err != nil {
		panic("observe: noop metrics: " + err.Error())
	}
	return met
}

func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	m.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordCycle records the cycle duration and outcome. kind is empty on success.
func (m *Metrics) RecordCycle(ctx context.Context, d time.Duration, status, kind string) {
	m.CycleDuration.Record(ctx, d.Seconds())
	m.CycleOutcomes.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("status", status),
			attribute.String("kind", kind),
		),
	)
}

func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
