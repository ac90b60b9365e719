// Package profiler exposes the embedding surface of perch: a blocking Start
// that attaches to a target process and only returns once background sampling
// has actually begun, and a blocking Stop that terminates the session and
// returns the serialized weighted profile exactly once.
package profiler

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/perch-profiler/perch/internal/config"
	"github.com/perch-profiler/perch/internal/logging"
	"github.com/perch-profiler/perch/internal/source"
)

// Sampling re-exports the session configuration so embedders don't import
// internal packages.
type Sampling = config.Sampling

// Output format names accepted by Sampling.Format. Only FormatSpeedscope is
// implemented.
const (
	FormatSpeedscope  = config.FormatSpeedscope
	FormatFlamegraph  = config.FormatFlamegraph
	FormatRaw         = config.FormatRaw
	FormatChrometrace = config.FormatChrometrace
)

// DefaultSampling returns the default session configuration.
func DefaultSampling() Sampling {
	return config.Default()
}

// newSource is the constructor for the sample source. Tests substitute it to
// feed synthetic samples.
var newSource = func(pid int32, cfg config.Sampling, logger zerolog.Logger) (source.Source, error) {
	return source.Attach(pid, cfg, logger)
}

// joinHandle carries the sampling goroutine's result to whichever caller
// joins it. Exactly one caller may join: the handle is moved out of the
// session on the first Stop.
type joinHandle struct {
	done     chan struct{}
	artifact []byte
	err      error
}

// Session is one profiling attempt against one target process. Create it
// with Start; terminate it with Stop or Close.
type Session struct {
	id       string
	pid      int32
	cfg      config.Sampling
	interval time.Duration
	logger   zerolog.Logger

	// ready flips false->true exactly once, set by the sampling goroutine
	// strictly before it consumes its first sample.
	ready atomic.Bool
	// running flips true->false exactly once, cleared by Stop. The loop
	// checks it once per sample.
	running atomic.Bool
	// handle owns the sampling goroutine. Swapped to nil by the first Stop
	// so a second Stop observably fails instead of joining twice.
	handle atomic.Pointer[joinHandle]
}

// StartDefault is Start with a logger the library configures itself. The
// level is taken from the PERCH_LOG environment variable when set, for
// embedders that don't carry their own zerolog setup.
func StartDefault(pid int32, cfg Sampling) (*Session, error) {
	logCfg := logging.DefaultConfig()
	if level := os.Getenv("PERCH_LOG"); level != "" {
		logCfg.Level = level
	}
	return Start(pid, cfg, logging.NewWithComponent(logCfg, "profiler"))
}

// Start attaches to the target process and begins sampling in a background
// goroutine. It blocks, polling at the sample interval, until the goroutine
// reports it has started consuming samples: attaching has observable latency
// and a caller that proceeded immediately would silently lose early samples.
//
// Configuration problems (ErrUnsupportedFormat, invalid rate) and attach
// failures are reported before any goroutine is spawned.
func Start(pid int32, cfg Sampling, logger zerolog.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sampling config: %w", err)
	}

	rec, err := newRecorder(cfg, logger)
	if err != nil {
		return nil, err
	}

	src, err := newSource(pid, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to attach to pid %d: %w", pid, err)
	}

	s := &Session{
		id:       uuid.New().String(),
		pid:      pid,
		cfg:      cfg,
		interval: cfg.Interval(),
	}
	s.logger = logger.With().
		Str("component", "profiler").
		Str("session_id", s.id).
		Int32("pid", pid).
		Logger()
	s.running.Store(true)

	h := &joinHandle{done: make(chan struct{})}
	s.handle.Store(h)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				h.err = fmt.Errorf("%w: %v", ErrJoinFailure, r)
			}
			close(h.done)
		}()
		h.artifact, h.err = s.run(src, rec)
	}()

	// Readiness handshake: don't return until the loop is consuming samples.
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for !s.ready.Load() {
		select {
		case <-h.done:
			if s.ready.Load() {
				// A bounded source can drain entirely between polls; the
				// session is already complete and Stop will collect it.
				break
			}
			// The loop died before it started sampling.
			s.handle.Store(nil)
			if h.err != nil {
				return nil, h.err
			}
			return nil, fmt.Errorf("%w: exited before sampling began", ErrJoinFailure)
		case <-ticker.C:
		}
	}

	s.logger.Info().
		Int("rate", cfg.Rate).
		Str("format", string(cfg.Format)).
		Msg("Profiling session started")

	return s, nil
}

// Stop signals the sampling loop to terminate, waits for it, and returns the
// serialized profile. The loop checks the stop signal once per sample, so a
// Stop issued mid-interval takes effect when the next sample arrives.
//
// Stop consumes the session: a second call always fails with
// ErrNoActiveSession, and the first call's result is unaffected.
func (s *Session) Stop() ([]byte, error) {
	s.running.Store(false)

	h := s.handle.Swap(nil)
	if h == nil {
		return nil, ErrNoActiveSession
	}

	<-h.done
	if h.err != nil {
		return nil, h.err
	}

	s.logger.Info().Int("bytes", len(h.artifact)).Msg("Profiling session stopped")
	return h.artifact, nil
}

// Close performs a best-effort Stop for sessions discarded without one,
// dropping the artifact and any error. Safe to call after Stop.
func (s *Session) Close() error {
	if _, err := s.Stop(); err != nil && !errors.Is(err, ErrNoActiveSession) {
		s.logger.Warn().Err(err).Msg("Discarding error from implicit session stop")
	}
	return nil
}

// ID returns the session's identifier, used to correlate its log output.
func (s *Session) ID() string {
	return s.id
}

// Pid returns the target process id.
func (s *Session) Pid() int32 {
	return s.pid
}
