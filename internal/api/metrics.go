package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const unmatched = "unmatched"

// Reasons a job submission is turned away at the API.
const (
	rejectBadRequest = "bad_request"
	rejectInvalid    = "invalid"
	rejectBusy       = "busy"
	rejectClosed     = "closed"
)

// Where an outcome sent on a job feed came from.
const (
	outcomeLive     = "live"
	outcomeReplayed = "replayed"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routedesk_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "routedesk_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	jobRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routedesk_http_job_rejections_total",
			Help: "Job submissions answered with an error status, by reason.",
		},
		[]string{"reason"},
	)

	eventStreamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "routedesk_http_event_streams_active",
			Help: "Number of open job event streams.",
		},
	)

	streamOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routedesk_http_stream_outcomes_total",
			Help: "Outcomes sent on job event streams, by whether they were live or replayed from the job record.",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(jobRejectionsTotal)
	prometheus.MustRegister(eventStreamsActive)
	prometheus.MustRegister(streamOutcomesTotal)

	for _, r := range []string{rejectBadRequest, rejectInvalid, rejectBusy, rejectClosed} {
		jobRejectionsTotal.WithLabelValues(r)
	}
	for _, src := range []string{outcomeLive, outcomeReplayed} {
		streamOutcomesTotal.WithLabelValues(src)
	}
}

// metricsMiddleware records request count and duration for every HTTP request,
// labelled by chi route pattern. Event streams count their whole lifetime.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start).Seconds()
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		path := routePattern(r)
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern extracts the matched chi route pattern, falling back to "unmatched".
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unmatched
}

// metricsHandler returns the Prometheus metrics handler.
func metricsHandler() http.Handler {
	return promhttp.Handler()
}
