// Package metrics exposes the pipeline's ambient Prometheus surface:
// every long-running process carries a /metrics endpoint alongside its
// structured logs.
package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetingpipe_jobs_processed_total",
		Help: "Jobs processed by a phase worker, by queue and outcome.",
	}, []string{"queue", "outcome"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "meetingpipe_queue_depth",
		Help: "Current job count per queue and state.",
	}, []string{"queue", "state"})

	PhaseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meetingpipe_phase_transitions_total",
		Help: "Successful phase transitions recorded by the orchestrator.",
	}, []string{"from", "to"})

	DiscoveryInserts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meetingpipe_discovery_inserts_total",
		Help: "Meetings newly inserted by a discovery run.",
	})
)

// Serve starts a minimal /metrics listener and blocks until ctx is
// cancelled, then shuts down gracefully. Intended to run in its own
// goroutine from each long-lived process's main.
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
