// Package telemetry exposes the monitor's own operational metrics in
// Prometheus format.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eyenet/eyenet-monitor/internal/logger"
)

var (
	collectionRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eyenet_collection_runs_total",
		Help: "Sampler executions by sampler name and outcome.",
	}, []string{"sampler", "outcome"})

	collectionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eyenet_collection_duration_seconds",
		Help:    "Time spent in one sampler execution.",
		Buckets: prometheus.DefBuckets,
	}, []string{"sampler"})

	alertsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eyenet_alerts_total",
		Help: "Alerts recorded by level.",
	}, []string{"level"})

	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eyenet_notifications_total",
		Help: "Notification delivery attempts by channel and status.",
	}, []string{"channel", "status"})

	batchFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eyenet_batch_flushes_total",
		Help: "Batch flush attempts by outcome.",
	}, []string{"outcome"})

	batchQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eyenet_batch_queue_depth",
		Help: "Notification requests currently waiting in batch buckets.",
	})

	historyPoints = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eyenet_history_points",
		Help: "Data points currently held across in-memory history series.",
	})
)

// RecordCollection notes one sampler run.
func RecordCollection(sampler string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	collectionRuns.WithLabelValues(sampler, outcome).Inc()
	collectionDuration.WithLabelValues(sampler).Observe(d.Seconds())
}

// RecordAlert notes one recorded alert.
func RecordAlert(level string) {
	alertsRaised.WithLabelValues(level).Inc()
}

// RecordNotification notes one delivery attempt.
func RecordNotification(channel, status string) {
	notifications.WithLabelValues(channel, status).Inc()
}

// RecordBatchFlush notes a flush attempt outcome: success, retry, dropped.
func RecordBatchFlush(outcome string) {
	batchFlushes.WithLabelValues(outcome).Inc()
}

// SetBatchQueueDepth updates the pending-request gauge.
func SetBatchQueueDepth(n int) {
	batchQueueDepth.Set(float64(n))
}

// SetHistoryPoints updates the in-memory history gauge.
func SetHistoryPoints(n int) {
	historyPoints.Set(float64(n))
}

// Server serves /metrics for Prometheus scrapes.
type Server struct {
	srv *http.Server
}

// NewServer creates a metrics endpoint on the given listen address.
func NewServer(listen string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		srv: &http.Server{
			Addr:         listen,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		logger.Info("telemetry endpoint listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("telemetry server failed", "error", err)
		}
	}()
}

// Shutdown stops the endpoint gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
