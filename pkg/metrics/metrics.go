// Package metrics exports portkeeper's Prometheus instruments.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Polls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portkeeper_discovery_polls_total",
		Help: "Discovery polls by outcome (changed, unchanged, error)",
	}, []string{"outcome"})

	PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "portkeeper_discovery_poll_duration_seconds",
		Help:    "Duration of one discovery poll",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
	})

	Servers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "portkeeper_servers",
		Help: "Rows in the presentation list by state",
	}, []string{"state"})

	Terminations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portkeeper_terminations_total",
		Help: "Termination requests by final stage and result",
	}, []string{"stage", "result"})

	Starts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portkeeper_starts_total",
		Help: "Server start requests by result",
	}, []string{"result"})

	CatalogSaveErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portkeeper_catalog_save_errors_total",
		Help: "Catalog saves that failed and were absorbed",
	})
)

// ObservePoll records one poll.
func ObservePoll(d time.Duration, changed bool, err error) {
	PollDuration.Observe(d.Seconds())
	switch {
	case err != nil:
		Polls.WithLabelValues("error").Inc()
	case changed:
		Polls.WithLabelValues("changed").Inc()
	default:
		Polls.WithLabelValues("unchanged").Inc()
	}
}

// SetServers updates the row gauges.
func SetServers(running, total int) {
	Servers.WithLabelValues("running").Set(float64(running))
	Servers.WithLabelValues("stopped").Set(float64(total - running))
}

// ObserveTermination records the outcome of one escalation.
func ObserveTermination(stage string, ok bool) {
	result := "failed"
	if ok {
		result = "ok"
	}
	Terminations.WithLabelValues(stage, result).Inc()
}

// ObserveStart records the outcome of one start request.
func ObserveStart(err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	Starts.WithLabelValues(result).Inc()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ServeListener(ctx, ln)
}

// ServeListener exposes /metrics on ln until ctx is done.
func ServeListener(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
