package runner

import "github.com/prometheus/client_golang/prometheus"

// Metric label values for engine launches.
const (
	launchStarted = "started"
	launchError   = "error"
)

var (
	processDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "routedesk_engine_process_seconds",
			Help:    "Duration from engine process start to exit, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	activeProcesses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "routedesk_engine_active_processes",
			Help: "Number of currently running engine processes.",
		},
	)

	launchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routedesk_engine_launches_total",
			Help: "Total number of engine launch attempts by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(processDuration)
	prometheus.MustRegister(activeProcesses)
	prometheus.MustRegister(launchesTotal)

	launchesTotal.WithLabelValues(launchStarted)
	launchesTotal.WithLabelValues(launchError)
}
