// Package metrics records step outcomes as Prometheus metrics.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/systemstart/stackctl/pkg/engine"
)

// Recorder implements engine.Recorder on its own registry, so a single
// invocation can export exactly what it ran.
type Recorder struct {
	registry *prometheus.Registry

	stepsTotal   *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	lastRun      *prometheus.GaugeVec
}

// New returns a Recorder with its metrics registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		stepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stackctl",
				Subsystem: "step",
				Name:      "results_total",
				Help:      "Total number of step results by status",
			},
			[]string{"stack", "step", "status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "stackctl",
				Subsystem: "step",
				Name:      "duration_seconds",
				Help:      "Duration of executed steps in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10), // 500ms to ~4min
			},
			[]string{"stack", "step"},
		),
		lastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "stackctl",
				Subsystem: "stack",
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time of the last step result per stack",
			},
			[]string{"stack"},
		),
	}
	r.registry.MustRegister(r.stepsTotal, r.stepDuration, r.lastRun)
	return r
}

// RecordStep implements engine.Recorder. Steps that never started have no
// duration and only count towards the total.
func (r *Recorder) RecordStep(stack string, res engine.StepResult) {
	r.stepsTotal.WithLabelValues(stack, string(res.ID), string(res.Status)).Inc()
	if !res.Started.IsZero() && !res.Finished.IsZero() {
		r.stepDuration.WithLabelValues(stack, string(res.ID)).Observe(res.Duration().Seconds())
		r.lastRun.WithLabelValues(stack).Set(float64(res.Finished.Unix()))
	}
}

// Registry returns the registry holding the metrics.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// WriteTextfile writes the metrics in the text exposition format, for the
// node exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}

var _ engine.Recorder = (*Recorder)(nil)
