package engine

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultWorkers bounds how many steps run at once when WithWorkers is not
// given.
const DefaultWorkers = 4

// Recorder receives every terminal step result.
type Recorder interface {
	RecordStep(pipeline string, result StepResult)
}

// Option configures a Pipeline or Teardown.
type Option func(*options)

type options struct {
	name     string
	runID    string
	workers  int
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
}

func newOptions(opts []Option) options {
	o := options{
		name:    "pipeline",
		workers: DefaultWorkers,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers < 1 {
		o.workers = 1
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

func (o options) runIDOrNew() string {
	if o.runID != "" {
		return o.runID
	}
	return uuid.NewString()
}

// WithName sets the pipeline name used in logs, reports and metrics.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithRunID fixes the run ID stamped into markers. A random one is used
// otherwise.
func WithRunID(id string) Option {
	return func(o *options) {
		o.runID = id
	}
}

// WithWorkers bounds the number of steps executing concurrently.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithLogger sets the logger. slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithRecorder registers a Recorder for step results.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}
