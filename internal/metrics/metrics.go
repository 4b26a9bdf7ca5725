// Package metrics instruments validation runs with Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rendis/flowcheck/pkg/schema"
)

// Recorder owns a registry and the validation collectors registered on it.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry
	runs     *prometheus.CounterVec
	issues   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	nodes    prometheus.Histogram
}

// NewRecorder creates a Recorder with a fresh registry that also carries the
// Go runtime and process collectors.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowcheck_validations_total",
				Help: "Validation runs by entry point and outcome",
			},
			[]string{"entry", "valid"},
		),
		issues: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowcheck_issues_total",
				Help: "Validation issues by severity and category",
			},
			[]string{"severity", "category"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowcheck_validation_duration_seconds",
				Help:    "Validation run latency by entry point",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"entry"},
		),
		nodes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowcheck_workflow_nodes",
			Help:    "Node count of validated workflows",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 250},
		}),
	}
}

// Registry returns the registry the collectors live on.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveRun records one finished validation run.
func (r *Recorder) ObserveRun(entry string, res *schema.ValidationResult, d time.Duration) {
	if r == nil || res == nil {
		return
	}
	r.runs.WithLabelValues(entry, strconv.FormatBool(res.Valid)).Inc()
	r.duration.WithLabelValues(entry).Observe(d.Seconds())
	if res.Statistics.TotalNodes > 0 {
		r.nodes.Observe(float64(res.Statistics.TotalNodes))
	}
	for _, group := range [][]schema.ValidationIssue{res.Errors, res.Warnings, res.Info} {
		for _, is := range group {
			r.issues.WithLabelValues(string(is.Severity), string(is.Category)).Inc()
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
