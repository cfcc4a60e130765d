// Package metrics is the process-wide metrics registry (§5 "ambient
// concerns"). The teacher carries no metrics dependency; this is sourced
// from marmos91/dittofs's pkg/metrics/prometheus package in the
// retrieval pack, which wires per-subsystem prometheus.CounterVec/
// HistogramVec/GaugeVec families through promauto.With(a registry) and
// returns a nil metrics struct (safe to call methods on) when metrics
// are disabled, rather than threading an "enabled" bool through every
// call site.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the metrics sink; each Agent creates one at construction
// and holds it. A nil *Recorder is valid and records
// nothing, mirroring dittofs's "nil metrics struct, zero overhead" idiom.
type Recorder struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retries         *prometheus.CounterVec
	dispatchErrors  *prometheus.CounterVec
	activeSessions  prometheus.Gauge
}

// NewRecorder registers a fresh set of collectors against reg and returns
// a Recorder backed by them. Passing a nil reg uses
// prometheus.DefaultRegisterer.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Recorder{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocbcorex_requests_total",
				Help: "Total number of key-value operations dispatched, by opcode and outcome.",
			},
			[]string{"opcode", "outcome"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "gocbcorex_request_duration_seconds",
				Help: "Duration of key-value operations from dispatch to final response.",
				Buckets: []float64{
					0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5,
				},
			},
			[]string{"opcode"},
		),
		retries: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocbcorex_retries_total",
				Help: "Total number of operation retries, by retry reason.",
			},
			[]string{"reason"},
		),
		dispatchErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocbcorex_dispatch_errors_total",
				Help: "Total number of operations that ultimately failed, by error kind.",
			},
			[]string{"error"},
		),
		activeSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "gocbcorex_active_sessions",
				Help: "Current number of live KV sessions across all nodes.",
			},
		),
	}
}

// ObserveRequest records one completed operation's outcome and latency.
func (r *Recorder) ObserveRequest(opcode string, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(opcode, outcome).Inc()
	r.requestDuration.WithLabelValues(opcode).Observe(d.Seconds())
}

// ObserveRetry records one retry attempt for the given reason.
func (r *Recorder) ObserveRetry(reason string) {
	if r == nil {
		return
	}
	r.retries.WithLabelValues(reason).Inc()
}

// ObserveDispatchError records one final (non-retried) failure.
func (r *Recorder) ObserveDispatchError(errKind string) {
	if r == nil {
		return
	}
	r.dispatchErrors.WithLabelValues(errKind).Inc()
}

// SetActiveSessions reports the current live session count.
func (r *Recorder) SetActiveSessions(n int) {
	if r == nil {
		return
	}
	r.activeSessions.Set(float64(n))
}
