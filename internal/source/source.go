// Package source produces streams of stack samples from a target process.
//
// A Source paces a Snapshotter at a fixed interval and reports how far each
// sample fell behind its intended schedule, so the consumer can surface
// scheduling lag without owning the clock itself.
package source

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/perch-profiler/perch/internal/stack"
)

// Source is a stream of samples from one target process. The channel is
// closed when the source terminates, either because it was bounded, the
// target went away, or Close was called.
type Source interface {
	Samples() <-chan stack.Sample
	Close() error
}

// Snapshotter captures one round of per-thread traces from the target. It is
// the pluggable capture mechanism behind a Source.
//
// The errs map carries per-process capture errors that should be counted but
// do not end sampling. A non-nil err is terminal: the source stops emitting.
type Snapshotter interface {
	Snapshot() (traces []stack.Trace, errs map[int32]error, err error)
}

// Timed drives a Snapshotter on a fixed cadence.
type Timed struct {
	snap     Snapshotter
	interval time.Duration
	deadline time.Time
	out      chan stack.Sample
	cancel   context.CancelFunc
	done     chan struct{}
	logger   zerolog.Logger
}

// NewTimed starts a source emitting one sample per interval. A non-zero
// duration bounds the stream; the channel closes once it elapses.
func NewTimed(snap Snapshotter, interval, duration time.Duration, logger zerolog.Logger) *Timed {
	ctx, cancel := context.WithCancel(context.Background())

	t := &Timed{
		snap:     snap,
		interval: interval,
		out:      make(chan stack.Sample),
		cancel:   cancel,
		done:     make(chan struct{}),
		logger:   logger.With().Str("component", "sample_source").Logger(),
	}
	if duration > 0 {
		t.deadline = time.Now().Add(duration)
	}

	go t.run(ctx)
	return t
}

// Samples returns the sample stream.
func (t *Timed) Samples() <-chan stack.Sample {
	return t.out
}

// Close stops the source and waits for its pacing goroutine to exit. Safe to
// call more than once.
func (t *Timed) Close() error {
	t.cancel()
	<-t.done
	return nil
}

// run paces snapshots. Each tick targets the previous target plus one
// interval, so a slow consumer shows up as lag on subsequent samples instead
// of silently stretching the cadence.
func (t *Timed) run(ctx context.Context) {
	defer close(t.done)
	defer close(t.out)

	target := time.Now().Add(t.interval)
	timer := time.NewTimer(t.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		now := time.Now()
		if !t.deadline.IsZero() && now.After(t.deadline) {
			t.logger.Debug().Msg("Bounded sampling duration elapsed")
			return
		}

		var late time.Duration
		if behind := now.Sub(target); behind > 0 {
			late = behind
		}

		traces, errs, err := t.snap.Snapshot()
		if err != nil {
			t.logger.Debug().Err(err).Msg("Snapshotter terminated, closing sample stream")
			return
		}

		sample := stack.Sample{
			Traces: traces,
			Late:   late,
			Errors: errs,
		}

		select {
		case t.out <- sample:
		case <-ctx.Done():
			return
		}

		// Re-arm against the schedule, not against now, so lost time is
		// observable as lag rather than absorbed.
		target = target.Add(t.interval)
		delay := time.Until(target)
		if delay < 0 {
			delay = 0
		}
		timer.Reset(delay)
	}
}
