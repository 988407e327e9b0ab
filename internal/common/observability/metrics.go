// Package observability publishes OpenTelemetry metrics through the
// Prometheus exporter, so they share the /metrics endpoint with the
// client_golang collectors.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Observability struct {
	meterProvider  *metric.MeterProvider
	meter          otelmetric.Meter
	eventCounter   otelmetric.Int64Counter
	eventDuration  otelmetric.Float64Histogram
	recipientCount otelmetric.Int64Histogram
}

// New installs a global meter provider backed by the Prometheus exporter.
func New(serviceName string) (*Observability, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	o, err := newWithProvider(provider, serviceName)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}
	return o, nil
}

func newWithProvider(provider *metric.MeterProvider, serviceName string) (*Observability, error) {
	meter := provider.Meter(serviceName)

	eventCounter, err := meter.Int64Counter(
		"notifier.events",
		otelmetric.WithDescription("Trigger events handled by the notifier"),
	)
	if err != nil {
		return nil, err
	}

	eventDuration, err := meter.Float64Histogram(
		"notifier.event.duration",
		otelmetric.WithDescription("Time from event receipt to dispatch completion"),
		otelmetric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	recipientCount, err := meter.Int64Histogram(
		"notifier.event.recipients",
		otelmetric.WithDescription("Resolved recipients per event"),
	)
	if err != nil {
		return nil, err
	}

	return &Observability{
		meterProvider:  provider,
		meter:          meter,
		eventCounter:   eventCounter,
		eventDuration:  eventDuration,
		recipientCount: recipientCount,
	}, nil
}

func (o *Observability) RecordEventProcessed(ctx context.Context, eventType, result string) {
	if o == nil || o.eventCounter == nil {
		return
	}
	o.eventCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("result", result),
	))
}

func (o *Observability) RecordEventDuration(ctx context.Context, eventType string, duration time.Duration) {
	if o == nil || o.eventDuration == nil {
		return
	}
	o.eventDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

func (o *Observability) RecordRecipients(ctx context.Context, eventType string, n int) {
	if o == nil || o.recipientCount == nil {
		return
	}
	o.recipientCount.Record(ctx, int64(n), otelmetric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

func (o *Observability) Shutdown() {
	if o == nil || o.meterProvider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = o.meterProvider.Shutdown(ctx)
}
