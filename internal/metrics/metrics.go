// Package metrics provides Prometheus metric collection for Pergamon.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the metrics interface consumed by the service and handler
// layers. A nil-safe no-op implementation backs disabled deployments.
type Recorder interface {
	RecordLoanGranted()
	RecordLoanRenewed()
	RecordLoanReturned()
	RecordReservationCreated()
	RecordReservationFinished(status string)
	RecordTokenRejected(reason string)
	RecordHTTPRequest(method, route string, statusCode int, duration time.Duration)
}

// Collector implements Recorder on a Prometheus registry.
type Collector struct {
	loansGranted         prometheus.Counter
	loansRenewed         prometheus.Counter
	loansReturned        prometheus.Counter
	reservationsCreated  prometheus.Counter
	reservationsFinished *prometheus.CounterVec
	tokensRejected       *prometheus.CounterVec
	httpRequests         *prometheus.CounterVec
	httpDuration         *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics with the
// given registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loansGranted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pergamon_loans_granted_total",
			Help: "Total number of loans granted.",
		}),
		loansRenewed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pergamon_loans_renewed_total",
			Help: "Total number of loan renewals applied.",
		}),
		loansReturned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pergamon_loans_returned_total",
			Help: "Total number of loans returned.",
		}),
		reservationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pergamon_reservations_created_total",
			Help: "Total number of reservations created.",
		}),
		reservationsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pergamon_reservations_finished_total",
			Help: "Total number of reservations leaving the active state, by terminal status.",
		}, []string{"status"}),
		tokensRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pergamon_tokens_rejected_total",
			Help: "Total number of bearer tokens rejected during verification, by reason.",
		}, []string{"reason"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pergamon_http_requests_total",
			Help: "Total number of HTTP requests, by method, route, and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pergamon_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.loansGranted,
		c.loansRenewed,
		c.loansReturned,
		c.reservationsCreated,
		c.reservationsFinished,
		c.tokensRejected,
		c.httpRequests,
		c.httpDuration,
	)

	return c
}

// RecordLoanGranted counts a granted loan.
func (c *Collector) RecordLoanGranted() { c.loansGranted.Inc() }

// RecordLoanRenewed counts an applied renewal.
func (c *Collector) RecordLoanRenewed() { c.loansRenewed.Inc() }

// RecordLoanReturned counts a returned loan.
func (c *Collector) RecordLoanReturned() { c.loansReturned.Inc() }

// RecordReservationCreated counts a created reservation.
func (c *Collector) RecordReservationCreated() { c.reservationsCreated.Inc() }

// RecordReservationFinished counts a reservation leaving the active state.
func (c *Collector) RecordReservationFinished(status string) {
	c.reservationsFinished.WithLabelValues(status).Inc()
}

// RecordTokenRejected counts a rejected bearer token.
func (c *Collector) RecordTokenRejected(reason string) {
	c.tokensRejected.WithLabelValues(reason).Inc()
}

// RecordHTTPRequest counts a completed HTTP request and its latency.
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	code := statusClass(statusCode)
	c.httpRequests.WithLabelValues(method, route, code).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// statusClass collapses a status code into its class label ("2xx" etc.)
// to keep cardinality down.
func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// Noop implements Recorder without recording anything.
type Noop struct{}

func (Noop) RecordLoanGranted()                          {}
func (Noop) RecordLoanRenewed()                          {}
func (Noop) RecordLoanReturned()                         {}
func (Noop) RecordReservationCreated()                   {}
func (Noop) RecordReservationFinished(string)            {}
func (Noop) RecordTokenRejected(string)                  {}
func (Noop) RecordHTTPRequest(string, string, int, time.Duration) {}

// Ensure both implementations satisfy Recorder.
var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Noop{}
)
