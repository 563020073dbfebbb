package main

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "goesrecover_vulture"
)

var (
	// metricErrorTotal counts unexpected errors encountered by the vulture itself
	metricErrorTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "error_total",
			Help:      "goesrecover vulture errors",
		},
	)

	// metricReady reflects the outcome of the last readiness probe
	metricReady = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ready",
			Help:      "1 when the last readiness probe succeeded",
		},
	)

	// metricReadyLatency is the duration of the last readiness probe
	metricReadyLatency = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ready_latency_seconds",
			Help:      "duration of the last readiness probe",
		},
	)

	metricValidationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_total",
			Help:      "total number of validation probes sent by the vulture",
		},
	)

	metricValidationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_error_total",
			Help:      "total number of issues with validation probes",
		},
		[]string{"error"},
	)
)

func init() {
	prometheus.MustRegister(metricErrorTotal)
	prometheus.MustRegister(metricReady)
	prometheus.MustRegister(metricReadyLatency)
	prometheus.MustRegister(metricValidationsTotal)
	prometheus.MustRegister(metricValidationErrors)
}
