package control

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/colosseo-ops/acquirer/metrics"
)

var (
	pollAttempts       *prometheus.CounterVec
	availabilityEvents *prometheus.CounterVec
	acquisitionsTotal  *prometheus.CounterVec
	transitionsTotal   *prometheus.CounterVec
	streamsActive      prometheus.Gauge
)

func init() {
	reg := metrics.NewComponentRegistry("control")

	pollAttempts = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "poll_attempts_total",
		Help: "Availability poll attempts by target",
	}, []string{"target"})

	availabilityEvents = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "availability_events_total",
		Help: "Availability detection events by target and status",
	}, []string{"target", "status"})

	acquisitionsTotal = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "acquisitions_total",
		Help: "Acquisition attempts by outcome",
	}, []string{"outcome"})

	transitionsTotal = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "transitions_total",
		Help: "Lifecycle transitions by outcome",
	}, []string{"outcome"})

	streamsActive = reg.NewGauge(prometheus.GaugeOpts{
		Name: "streams_active",
		Help: "Currently open streamed responses",
	})
}
