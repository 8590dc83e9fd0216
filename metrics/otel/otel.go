// Package otel exports repository metrics through an OpenTelemetry
// MeterProvider.
package otel

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/IvanBrykalov/resrepo/repository"
)

// DefaultMeterName is used when no WithMeterName option is given.
const DefaultMeterName = "github.com/IvanBrykalov/resrepo"

// Collector implements repository.Metrics on top of OTel instruments.
// Entry count and weight are exported as observable gauges reading the
// last reported values.
type Collector struct {
	hits      metric.Int64Counter
	misses    metric.Int64Counter
	loads     metric.Float64Histogram
	disposals metric.Int64Counter

	entries atomic.Int64
	weight  atomic.Uint64 // math.Float64bits
}

// Options configures a Collector.
type Options struct {
	// MeterName is the name of the OpenTelemetry meter.
	// Default: DefaultMeterName
	MeterName string
}

// Option mutates Options.
type Option func(*Options)

// WithMeterName overrides the meter name.
func WithMeterName(name string) Option {
	return func(o *Options) { o.MeterName = name }
}

// New creates the instruments on provider's meter.
func New(provider metric.MeterProvider, opts ...Option) (*Collector, error) {
	if provider == nil {
		return nil, errors.New("meter provider cannot be nil")
	}
	options := Options{MeterName: DefaultMeterName}
	for _, opt := range opts {
		opt(&options)
	}
	meter := provider.Meter(options.MeterName)

	c := &Collector{}
	var err error
	if c.hits, err = meter.Int64Counter(
		"resrepo_hits_total",
		metric.WithDescription("Get calls served by a stored resource"),
	); err != nil {
		return nil, err
	}
	if c.misses, err = meter.Int64Counter(
		"resrepo_misses_total",
		metric.WithDescription("Get calls that fetched or waited for a fetch"),
	); err != nil {
		return nil, err
	}
	if c.loads, err = meter.Float64Histogram(
		"resrepo_load_duration_seconds",
		metric.WithDescription("Provider call latency by outcome"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if c.disposals, err = meter.Int64Counter(
		"resrepo_disposals_total",
		metric.WithDescription("Disposed resources by reason"),
	); err != nil {
		return nil, err
	}
	if _, err = meter.Int64ObservableGauge(
		"resrepo_size_entries",
		metric.WithDescription("Number of stored resources"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(c.entries.Load())
			return nil
		}),
	); err != nil {
		return nil, err
	}
	if _, err = meter.Float64ObservableGauge(
		"resrepo_size_weight",
		metric.WithDescription("Total weight of stored resources"),
		metric.WithFloat64Callback(func(_ context.Context, o metric.Float64Observer) error {
			o.Observe(math.Float64frombits(c.weight.Load()))
			return nil
		}),
	); err != nil {
		return nil, err
	}
	return c, nil
}

// Hit increments the hit counter.
func (c *Collector) Hit() { c.hits.Add(context.Background(), 1) }

// Miss increments the miss counter.
func (c *Collector) Miss() { c.misses.Add(context.Background(), 1) }

// Load records a provider call duration with an outcome attribute.
func (c *Collector) Load(o repository.LoadOutcome, d time.Duration) {
	c.loads.Record(context.Background(), d.Seconds(),
		metric.WithAttributes(attribute.String("outcome", o.String())))
}

// Evict counts a disposal with a reason attribute.
func (c *Collector) Evict(r repository.EvictReason) {
	c.disposals.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("reason", r.String())))
}

// Size remembers the values reported by the observable gauges.
func (c *Collector) Size(entries int, weight float64) {
	c.entries.Store(int64(entries))
	c.weight.Store(math.Float64bits(weight))
}

var _ repository.Metrics = (*Collector)(nil)
