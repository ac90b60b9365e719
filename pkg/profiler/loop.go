package profiler

import (
	"bytes"
	"fmt"
	"time"

	perrors "github.com/perch-profiler/perch/internal/errors"
	"github.com/perch-profiler/perch/internal/source"
	"github.com/perch-profiler/perch/internal/stack"
)

const (
	// lateThreshold is how far behind schedule a sample must be before the
	// loop warns about it.
	lateThreshold = time.Second
	// lateLogInterval rate-limits the lag warning to one per window no
	// matter how many consecutive samples are late.
	lateLogInterval = time.Second
)

// run is the sampling loop. It consumes the source until the stop signal or
// source exhaustion, folds surviving traces into the recorder, and serializes
// the result exactly once on the way out. Any recorder failure aborts the
// loop with no partial artifact.
func (s *Session) run(src source.Source, rec Recorder) ([]byte, error) {
	defer perrors.DeferClose(s.logger, src, "failed to close sample source")

	var sampleCount, errorCount uint64
	var lastLateWarn time.Time

	// Visible to Start's handshake before the first receive below.
	s.ready.Store(true)

	for sample := range src.Samples() {
		if sample.Late > lateThreshold {
			if now := time.Now(); now.Sub(lastLateWarn) > lateLogInterval {
				lastLateWarn = now
				s.logger.Warn().
					Dur("late", sample.Late).
					Msg("Sampling is falling behind, results may be inaccurate. Try reducing the sampling rate")
			}
		}

		if !s.running.Load() {
			break
		}

		for i := range sample.Traces {
			trace := &sample.Traces[i]

			if !(s.cfg.IncludeIdle || trace.Active) {
				continue
			}
			if s.cfg.LockOnly && !trace.HoldsLock {
				continue
			}

			if s.cfg.IncludeThreadIDs {
				trace.Frames = append(trace.Frames, stack.ThreadFrame(trace))
			}

			// Ancestry frames go nearest parent first, oldest last.
			for info := trace.Process; info != nil; info = info.Parent {
				trace.Frames = append(trace.Frames, info.Frame())
			}

			sampleCount++
			if err := rec.Increment(trace); err != nil {
				return nil, fmt.Errorf("failed to record trace: %w", err)
			}
		}

		for pid, err := range sample.Errors {
			s.logger.Warn().Err(err).Int32("source_pid", pid).Msg("Failed to get stack trace")
			errorCount++
		}
	}

	var buf bytes.Buffer
	if err := rec.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize profile: %w", err)
	}

	s.logger.Info().
		Uint64("samples", sampleCount).
		Uint64("errors", errorCount).
		Msg("Collected samples")

	return buf.Bytes(), nil
}
