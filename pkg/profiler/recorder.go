package profiler

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/perch-profiler/perch/internal/config"
	"github.com/perch-profiler/perch/internal/speedscope"
	"github.com/perch-profiler/perch/internal/stack"
	"github.com/perch-profiler/perch/pkg/version"
)

// Recorder accumulates traces into a weighted profile and serializes it on
// demand. The sampling loop guarantees Increment is never called after Write.
type Recorder interface {
	// Increment folds one trace's frame sequence into the running profile.
	Increment(t *stack.Trace) error
	// Write produces the final serialized artifact.
	Write(w io.Writer) error
}

// speedscopeRecorder adapts the speedscope aggregator to the Recorder
// contract.
type speedscopeRecorder struct {
	stats *speedscope.Stats
}

func (r *speedscopeRecorder) Increment(t *stack.Trace) error {
	return r.stats.Record(t)
}

func (r *speedscopeRecorder) Write(w io.Writer) error {
	return r.stats.Write(w)
}

// newRecorder selects a Recorder implementation for the configured output
// format. Recognized formats without an implementation fail with
// ErrUnsupportedFormat before any sampling resource exists. Declared as a
// variable so tests can substitute instrumented recorders.
var newRecorder = func(cfg config.Sampling, logger zerolog.Logger) (Recorder, error) {
	switch cfg.Format {
	case config.FormatSpeedscope:
		return &speedscopeRecorder{stats: speedscope.New(version.Exporter(), logger)}, nil
	case config.FormatFlamegraph, config.FormatRaw, config.FormatChrometrace:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, cfg.Format)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, cfg.Format)
	}
}
