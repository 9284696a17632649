// Package obsv exposes the gateway's otel/metric instruments: packets
// framed, chunks queued, chunks dropped by backpressure, and
// encoder-ready latency. Instruments are bound against the global
// MeterProvider, which is a no-op until a real exporter (e.g. an
// otel/sdk/metric PeriodicReader) is installed via Init, so recording
// is always safe.
package obsv

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "avgateway"

// Metrics bundles the instruments the session pipeline records against.
// All fields are safe to use before Init is called; they report
// through the no-op global MeterProvider until a real one is set.
type Metrics struct {
	mu sync.Mutex

	packetsFramed       metric.Int64Counter
	chunksQueued        metric.Int64Counter
	chunksDropped       metric.Int64Counter
	encoderReadyLatency metric.Float64Histogram
}

var global = newMetrics()

func newMetrics() *Metrics {
	m := &Metrics{}
	m.bind()
	return m
}

// bind (re)creates every instrument against the current global
// MeterProvider. Called once at package init against the no-op default,
// and again by Init once the caller has installed a real provider.
func (m *Metrics) bind() {
	meter := otel.GetMeterProvider().Meter(meterName)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.packetsFramed, _ = meter.Int64Counter("avgateway_packets_framed_total",
		metric.WithDescription("Framed data-channel packets, inbound and outbound"))
	m.chunksQueued, _ = meter.Int64Counter("avgateway_chunks_queued_total",
		metric.WithDescription("Chunks accepted into a FrameQueue"))
	m.chunksDropped, _ = meter.Int64Counter("avgateway_chunks_dropped_total",
		metric.WithDescription("Chunks evicted by FrameQueue backpressure"))
	m.encoderReadyLatency, _ = meter.Float64Histogram("avgateway_encoder_ready_latency_seconds",
		metric.WithDescription("Time from encoder spawn to the readiness marker"),
		metric.WithUnit("s"))
}

// Init rebinds the package-level instruments against provider, for
// callers that wire up a real otel/sdk/metric exporter at startup.
func Init(provider metric.MeterProvider) {
	otel.SetMeterProvider(provider)
	global.bind()
}

// PacketFramed records one packet crossing the framing codec in the
// given direction ("in" or "out").
func PacketFramed(ctx context.Context, direction string) {
	global.mu.Lock()
	c := global.packetsFramed
	global.mu.Unlock()
	if c != nil {
		c.Add(ctx, 1, metric.WithAttributes(attribute.String("direction", direction)))
	}
}

// ChunkQueued records one chunk accepted into a FrameQueue.
func ChunkQueued(ctx context.Context) {
	global.mu.Lock()
	c := global.chunksQueued
	global.mu.Unlock()
	if c != nil {
		c.Add(ctx, 1)
	}
}

// ChunkDropped records one chunk evicted by FrameQueue backpressure.
func ChunkDropped(ctx context.Context) {
	global.mu.Lock()
	c := global.chunksDropped
	global.mu.Unlock()
	if c != nil {
		c.Add(ctx, 1)
	}
}

// EncoderReadyLatency records the seconds elapsed between encoder spawn
// and the readiness marker appearing on stderr.
func EncoderReadyLatency(ctx context.Context, processor string, seconds float64) {
	global.mu.Lock()
	h := global.encoderReadyLatency
	global.mu.Unlock()
	if h != nil {
		h.Record(ctx, seconds, metric.WithAttributes(attribute.String("processor", processor)))
	}
}
