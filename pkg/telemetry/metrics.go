package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/shuldan/eventbus/pkg/eventbus"
)

const (
	MetricProcessed = "eventbus.events.processed"
	MetricErrors    = "eventbus.handler.errors"
	MetricDuration  = "eventbus.processing.duration"
)

// Counter records dispatch metrics through OpenTelemetry instruments.
type Counter struct {
	processed metric.Int64Counter
	errors    metric.Int64Counter
	duration  metric.Float64Histogram
}

var _ eventbus.Counter = (*Counter)(nil)

func NewCounter(meter metric.Meter) (*Counter, error) {
	processed, err := meter.Int64Counter(MetricProcessed,
		metric.WithDescription("Number of inbound events by outcome"),
	)
	if err != nil {
		return nil, err
	}

	errs, err := meter.Int64Counter(MetricErrors,
		metric.WithDescription("Number of failed handler invocations"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(MetricDuration,
		metric.WithDescription("Time spent dispatching an event to its handlers"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Counter{
		processed: processed,
		errors:    errs,
		duration:  duration,
	}, nil
}

func (c *Counter) IncProcessed(event string, status eventbus.ProcessedStatus) {
	c.processed.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("status", string(status)),
	))
}

func (c *Counter) IncError(event, handler string) {
	c.errors.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("handler", handler),
	))
}

func (c *Counter) ObserveProcessingTime(event string, d time.Duration) {
	c.duration.Record(context.Background(), d.Seconds(), metric.WithAttributes(
		attribute.String("event", event),
	))
}
