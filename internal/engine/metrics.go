package engine

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/routedesk/internal/model"
)

// Rejection reasons for the submissions counter.
const (
	rejectBusy    = "busy"
	rejectInvalid = "invalid"
	rejectClosed  = "closed"
)

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routedesk_jobs_total",
			Help: "Total number of finished jobs by variant and status.",
		},
		[]string{"variant", "status"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "routedesk_job_duration_seconds",
			Help:    "Duration from admission to outcome, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	submissionsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routedesk_submissions_rejected_total",
			Help: "Total number of rejected submissions by reason.",
		},
		[]string{"reason"},
	)

	activeJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "routedesk_active_jobs",
			Help: "Number of jobs between admission and outcome.",
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "routedesk_publisher_queue_depth",
			Help: "Number of events waiting for the dispatch goroutine.",
		},
	)
)

func init() {
	prometheus.MustRegister(jobsTotal)
	prometheus.MustRegister(jobDuration)
	prometheus.MustRegister(submissionsRejected)
	prometheus.MustRegister(activeJobs)
	prometheus.MustRegister(queueDepth)

	terminal := []string{model.StatusSucceeded, model.StatusFailed, model.StatusCancelled}
	for _, v := range model.Variants() {
		for _, s := range terminal {
			jobsTotal.WithLabelValues(strconv.Itoa(int(v)), s)
		}
	}
	for _, s := range terminal {
		jobDuration.WithLabelValues(s)
	}
	for _, r := range []string{rejectBusy, rejectInvalid, rejectClosed} {
		submissionsRejected.WithLabelValues(r)
	}
}
