// Package metrics provides a shared prometheus registry with per-component
// namespacing.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "acquirer"

var (
	registryOnce sync.Once
	registry     *prometheus.Registry
)

// GetRegistry returns the process-wide registry, creating it on first use.
func GetRegistry() *prometheus.Registry {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
	})
	return registry
}

// ComponentRegistry registers collectors under acquirer_<subsystem>_.
type ComponentRegistry struct {
	subsystem string
}

// NewComponentRegistry creates a registry view for one component.
func NewComponentRegistry(subsystem string) *ComponentRegistry {
	return &ComponentRegistry{subsystem: subsystem}
}

func (c *ComponentRegistry) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	opts.Namespace = namespace
	opts.Subsystem = c.subsystem
	m := prometheus.NewCounter(opts)
	GetRegistry().MustRegister(m)
	return m
}

func (c *ComponentRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	opts.Namespace = namespace
	opts.Subsystem = c.subsystem
	m := prometheus.NewCounterVec(opts, labels)
	GetRegistry().MustRegister(m)
	return m
}

func (c *ComponentRegistry) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	opts.Namespace = namespace
	opts.Subsystem = c.subsystem
	m := prometheus.NewGauge(opts)
	GetRegistry().MustRegister(m)
	return m
}

func (c *ComponentRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	opts.Namespace = namespace
	opts.Subsystem = c.subsystem
	m := prometheus.NewGaugeVec(opts, labels)
	GetRegistry().MustRegister(m)
	return m
}

func (c *ComponentRegistry) NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	opts.Namespace = namespace
	opts.Subsystem = c.subsystem
	m := prometheus.NewHistogram(opts)
	GetRegistry().MustRegister(m)
	return m
}
