// Package metrics exposes Prometheus instrumentation for notification
// dispatch, conversation flows and the scheduler.
//
// Label cardinality stays bounded: job kinds and flow names are fixed sets
// and results are "ok" or "error". User ids never appear as labels.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultOK    = "ok"
	ResultError = "error"
)

var (
	notificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remindino_notifications_total",
			Help: "Scheduled notifications by job kind and delivery result.",
		},
		[]string{"kind", "result"},
	)

	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remindino_dispatch_duration_seconds",
			Help:    "Time spent handling a fired job.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	flowsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remindino_flows_completed_total",
			Help: "Conversation flows that reached their final step.",
		},
		[]string{"flow"},
	)

	armedJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "remindino_armed_jobs",
			Help: "Jobs currently armed in the scheduler.",
		},
	)
)

func init() {
	prometheus.MustRegister(notificationsSent, dispatchDuration, flowsCompleted, armedJobs)
}

// ObserveDispatch records one fired job of kind that took d and ended with err.
func ObserveDispatch(kind string, d time.Duration, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	notificationsSent.WithLabelValues(kind, result).Inc()
	dispatchDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// FlowCompleted counts a finished conversation flow.
func FlowCompleted(flow string) {
	flowsCompleted.WithLabelValues(flow).Inc()
}

// SetArmedJobs reports the size of the armed-job table.
func SetArmedJobs(n int) {
	armedJobs.Set(float64(n))
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, log *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Metrics endpoint listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("Metrics endpoint shutdown failed", "error", err)
		}
		log.Info("Metrics endpoint stopped")
		return nil
	}
}
