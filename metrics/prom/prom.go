// Package prom exports repository metrics to Prometheus.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/resrepo/repository"
)

// Adapter implements repository.Metrics on Prometheus collectors.
type Adapter struct {
	hits       prometheus.Counter
	misses     prometheus.Counter
	loads      *prometheus.HistogramVec
	evicts     *prometheus.CounterVec
	sizeEnt    prometheus.Gauge
	sizeWeight prometheus.Gauge
}

// DefaultLoadBuckets covers fast index lookups up to slow archive downloads.
var DefaultLoadBuckets = []float64{.001, .005, .025, .1, .25, 1, 2.5, 10, 30, 120}

// New registers the repository collectors on reg (nil means
// prometheus.DefaultRegisterer) under ns_sub_*, with constLabels on every
// series. It panics if the names are already registered.
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels}
	}

	load := opts("load_duration_seconds", "Provider call latency by outcome")
	a := &Adapter{
		hits:   prometheus.NewCounter(prometheus.CounterOpts(opts("hits_total", "Get calls served by a stored resource"))),
		misses: prometheus.NewCounter(prometheus.CounterOpts(opts("misses_total", "Get calls that fetched or waited for a fetch"))),
		loads: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   load.Namespace,
			Subsystem:   load.Subsystem,
			Name:        load.Name,
			Help:        load.Help,
			ConstLabels: load.ConstLabels,
			Buckets:     DefaultLoadBuckets,
		}, []string{"outcome"}),
		evicts:     prometheus.NewCounterVec(prometheus.CounterOpts(opts("disposals_total", "Disposed resources by reason")), []string{"reason"}),
		sizeEnt:    prometheus.NewGauge(prometheus.GaugeOpts(opts("size_entries", "Number of stored resources"))),
		sizeWeight: prometheus.NewGauge(prometheus.GaugeOpts(opts("size_weight", "Total weight of stored resources"))),
	}
	reg.MustRegister(a.hits, a.misses, a.loads, a.evicts, a.sizeEnt, a.sizeWeight)
	return a
}

func (a *Adapter) Hit() { a.hits.Inc() }
func (a *Adapter) Miss() { a.misses.Inc() }

// Load observes a provider call duration labelled by outcome.
func (a *Adapter) Load(o repository.LoadOutcome, d time.Duration) {
	a.loads.WithLabelValues(o.String()).Observe(d.Seconds())
}

// Evict counts one disposal under its reason.
func (a *Adapter) Evict(r repository.EvictReason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

// Size sets the entry count and weight gauges.
func (a *Adapter) Size(entries int, weight float64) {
	a.sizeEnt.Set(float64(entries))
	a.sizeWeight.Set(weight)
}

var _ repository.Metrics = (*Adapter)(nil)
