package services

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the client-side Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	requests   *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	chatRounds *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "termslens",
			Name:      "analysis_requests_total",
			Help:      "Requests sent to the analysis service by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "termslens",
			Name:      "analysis_request_duration_seconds",
			Help:      "Latency of analysis service requests.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"endpoint"}),
		chatRounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "termslens",
			Name:      "chat_rounds_total",
			Help:      "Chat panel submissions by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.durations, m.chatRounds)
	}
	return m
}

func (m *Metrics) observeRequest(endpoint string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(endpoint, requestOutcome(err)).Inc()
	m.durations.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// ChatRound counts one chat panel round. outcome is "success", "error",
// "busy" or "blank".
func (m *Metrics) ChatRound(outcome string) {
	if m == nil {
		return
	}
	m.chatRounds.WithLabelValues(outcome).Inc()
}

func requestOutcome(err error) string {
	if err == nil {
		return "success"
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return "http_error"
	}
	return "error"
}
