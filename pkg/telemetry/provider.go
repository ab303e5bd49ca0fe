package telemetry

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const meterName = "github.com/shuldan/eventbus"

// Provider owns an in-process meter provider whose readings are pulled on
// demand with Report.
type Provider struct {
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
	counter  *Counter
}

func NewProvider() (*Provider, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	counter, err := NewCounter(provider.Meter(meterName))
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}

	return &Provider{
		reader:   reader,
		provider: provider,
		counter:  counter,
	}, nil
}

func (p *Provider) Counter() *Counter {
	return p.counter
}

// Report writes one sorted line per data point collected so far.
func (p *Provider) Report(ctx context.Context, w io.Writer) error {
	var rm metricdata.ResourceMetrics
	if err := p.reader.Collect(ctx, &rm); err != nil {
		return err
	}

	var lines []string
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					lines = append(lines, formatPoint(m.Name, dp.Attributes, fmt.Sprintf("value=%d", dp.Value)))
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					lines = append(lines, formatPoint(m.Name, dp.Attributes, fmt.Sprintf("count=%d sum=%.6f", dp.Count, dp.Sum)))
				}
			}
		}
	}
	sort.Strings(lines)

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func formatPoint(name string, attrs attribute.Set, reading string) string {
	parts := []string{name}
	for _, kv := range attrs.ToSlice() {
		parts = append(parts, string(kv.Key)+"="+kv.Value.Emit())
	}
	parts = append(parts, reading)
	return strings.Join(parts, " ")
}

func (p *Provider) Shutdown(ctx context.Context) error {
	return p.provider.Shutdown(ctx)
}
