package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peerprep",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"service", "method", "route", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "peerprep",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"service", "method", "route", "status"})

	httpInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "peerprep",
		Name:      "http_in_flight_requests",
		Help:      "Current number of in-flight HTTP requests",
	}, []string{"service"})
)

// proctoring counters
var (
	ViolationsLogged = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peerprep",
		Subsystem: "proctoring",
		Name:      "violations_logged_total",
		Help:      "Violations appended to the ledger",
	}, []string{"type", "action", "source"})

	Recommendations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peerprep",
		Subsystem: "proctoring",
		Name:      "recommendations_total",
		Help:      "Enforcement recommendations returned to clients",
	}, []string{"recommendation"})

	IdentityChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peerprep",
		Subsystem: "proctoring",
		Name:      "identity_checks_total",
		Help:      "Face verification outcomes",
	}, []string{"outcome"})

	IncidentsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "peerprep",
		Subsystem: "proctoring",
		Name:      "object_incidents_total",
		Help:      "Banned-object incidents recorded against sessions",
	})

	EvidenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "peerprep",
		Subsystem: "proctoring",
		Name:      "evidence_failures_total",
		Help:      "Evidence images that could not be stored",
	})

	DetectorLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "peerprep",
		Subsystem: "proctoring",
		Name:      "detector_request_duration_seconds",
		Help:      "Latency of object-detection calls",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"outcome"})

	SessionsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peerprep",
		Subsystem: "interview",
		Name:      "sessions_finalized_total",
		Help:      "Sessions whose final score was written",
	}, []string{"trigger"})
)

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("interview metrics: underlying ResponseWriter does not support hijacking")
}

// Middleware records request metrics labelled by the matched chi route pattern,
// so ids in the path do not explode label cardinality.
func Middleware(service string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			httpInFlight.WithLabelValues(service).Inc()
			defer httpInFlight.WithLabelValues(service).Dec()

			next.ServeHTTP(rec, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}

			labels := prometheus.Labels{
				"service": service,
				"method":  r.Method,
				"route":   route,
				"status":  strconv.Itoa(rec.status),
			}
			httpRequests.With(labels).Inc()
			httpLatency.With(labels).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler exposes the default Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
