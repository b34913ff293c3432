// Package metrics defines the prometheus collectors of the server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	transitions       *prometheus.CounterVec
	schedulerRuns     *prometheus.CounterVec
	schedulerOffers   *prometheus.CounterVec
	schedulerDuration prometheus.Histogram
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "inspection_transitions_total",
			Help: "Lifecycle transitions attempted, by entity, transition and outcome",
		}, []string{"entity", "transition", "outcome"}),
		schedulerRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "inspection_followup_runs_total",
			Help: "Follow-up scheduler runs by result",
		}, []string{"result"}),
		schedulerOffers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "inspection_followup_offers_total",
			Help: "Offers handled by the follow-up scheduler, by action",
		}, []string{"action"}),
		schedulerDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "inspection_followup_run_duration_seconds",
			Help:    "Duration of follow-up scheduler runs",
			Buckets: prometheus.DefBuckets,
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "inspection_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inspection_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) Transition(entity, transition, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(entity, transition, outcome).Inc()
}

func (m *Metrics) SchedulerRun(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.schedulerRuns.WithLabelValues(result).Inc()
	m.schedulerDuration.Observe(d.Seconds())
}

func (m *Metrics) SchedulerOffer(action string) {
	if m == nil {
		return
	}
	m.schedulerOffers.WithLabelValues(action).Inc()
}

func (m *Metrics) HTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the collectors of g in the prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
