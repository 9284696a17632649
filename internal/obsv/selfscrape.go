package obsv

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
)

// SelfScrape is the exporter-free metrics backend: a ManualReader-backed
// MeterProvider whose current values can be read back on demand, e.g.
// from a debug HTTP endpoint, without requiring an OTLP collector.
type SelfScrape struct {
	reader *sdkmetric.ManualReader
}

// EnableSelfScrape installs a real SDK MeterProvider behind the package
// instruments and returns a handle for collecting their current values.
func EnableSelfScrape() *SelfScrape {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(resource.NewSchemaless(attribute.String("service.name", "avgateway"))),
	)
	Init(provider)
	return &SelfScrape{reader: reader}
}

// WriteTo collects the current metric state and renders one line per
// data point: name{attrs} value. Counters render their sum; histograms
// render _count and _sum lines.
func (s *SelfScrape) WriteTo(ctx context.Context, w io.Writer) error {
	var rm metricdata.ResourceMetrics
	if err := s.reader.Collect(ctx, &rm); err != nil {
		return err
	}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					fmt.Fprintf(w, "%s%s %d\n", m.Name, renderAttrs(dp.Attributes), dp.Value)
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					fmt.Fprintf(w, "%s_count%s %d\n", m.Name, renderAttrs(dp.Attributes), dp.Count)
					fmt.Fprintf(w, "%s_sum%s %g\n", m.Name, renderAttrs(dp.Attributes), dp.Sum)
				}
			}
		}
	}
	return nil
}

func renderAttrs(set attribute.Set) string {
	if set.Len() == 0 {
		return ""
	}
	out := "{"
	for i, kv := range set.ToSlice() {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%s=%q", string(kv.Key), kv.Value.Emit())
	}
	return out + "}"
}
