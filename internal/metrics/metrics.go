// Package metrics provides Prometheus metrics for the attendance service.
// All methods are safe to call on a nil *Collectors, which records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "attendance"

// Collectors holds every metric the service exports, registered on a private registry.
type Collectors struct {
	registry *prometheus.Registry

	recognitions     *prometheus.CounterVec
	matchDistance    prometheus.Histogram
	presenceWrites   *prometheus.CounterVec
	absenceWrites    prometheus.Counter
	sweepRuns        *prometheus.CounterVec
	sweepDuration    prometheus.Histogram
	reportsBuilt     *prometheus.CounterVec
	enrollments      *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpRequestTimes *prometheus.HistogramVec
}

// New creates collectors on a fresh registry with Go and process collectors.
func New() *Collectors {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	auto := promauto.With(reg)

	return &Collectors{
		registry: reg,
		recognitions: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognitions_total",
			Help:      "Recognition requests by outcome and window state",
		}, []string{"outcome", "window"}),
		matchDistance: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_distance",
			Help:      "Best cosine distance per recognition request",
			Buckets:   []float64{0.05, 0.1, 0.15, 0.2, 0.25, 0.3, 0.35, 0.4, 0.5, 0.75, 1, 2},
		}),
		presenceWrites: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_writes_total",
			Help:      "PRESENT check-and-insert attempts by result",
		}, []string{"result"}),
		absenceWrites: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "absence_writes_total",
			Help:      "ABSENT events written by sweeps",
		}),
		sweepRuns: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Absence sweeps by trigger and status",
		}, []string{"trigger", "status"}),
		sweepDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of absence sweeps",
			Buckets:   prometheus.DefBuckets,
		}),
		reportsBuilt: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_built_total",
			Help:      "Reports built by kind",
		}, []string{"kind"}),
		enrollments: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrollments_total",
			Help:      "Enrollment attempts by result",
		}, []string{"result"}),
		httpRequests: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code",
		}, []string{"route", "method", "status_code"}),
		httpRequestTimes: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// Registry exposes the underlying registry (tests, extra collectors).
func (c *Collectors) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collectors) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveRecognition records one recognition outcome and its best distance.
func (c *Collectors) ObserveRecognition(outcome, window string, distance float64, hasDistance bool) {
	if c == nil {
		return
	}
	c.recognitions.WithLabelValues(outcome, window).Inc()
	if hasDistance {
		c.matchDistance.Observe(distance)
	}
}

// ObservePresenceWrite records a PRESENT write attempt: created, exists or error.
func (c *Collectors) ObservePresenceWrite(result string) {
	if c == nil {
		return
	}
	c.presenceWrites.WithLabelValues(result).Inc()
}

// ObserveSweep records a finished sweep.
func (c *Collectors) ObserveSweep(trigger string, marked int, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.sweepRuns.WithLabelValues(trigger, status).Inc()
	c.absenceWrites.Add(float64(marked))
	c.sweepDuration.Observe(elapsed.Seconds())
}

// ObserveReport records a built report of the given kind (month, day).
func (c *Collectors) ObserveReport(kind string) {
	if c == nil {
		return
	}
	c.reportsBuilt.WithLabelValues(kind).Inc()
}

// ObserveEnrollment records an enrollment attempt result.
func (c *Collectors) ObserveEnrollment(result string) {
	if c == nil {
		return
	}
	c.enrollments.WithLabelValues(result).Inc()
}

// ObserveHTTP records a served request.
func (c *Collectors) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.httpRequestTimes.WithLabelValues(route, method).Observe(elapsed.Seconds())
}
