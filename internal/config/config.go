// Package config provides sampling configuration loading and validation.
package config

import (
	"fmt"
	"time"
)

// Format identifies an output encoding for the aggregated profile.
type Format string

// Recognized output formats. Only FormatSpeedscope is implemented; the others
// are recognized so a request for them fails with a precise error instead of
// an unknown-format one.
const (
	FormatSpeedscope  Format = "speedscope"
	FormatFlamegraph  Format = "flamegraph"
	FormatRaw         Format = "raw"
	FormatChrometrace Format = "chrometrace"
)

// DefaultRate is the default sampling rate in samples per second.
const DefaultRate = 100

// Sampling configures one profiling session. See LoadFile for the YAML shape.
type Sampling struct {
	// Rate is the sampling rate in samples per second. Must be positive.
	Rate int
	// Format selects the output encoding for the serialized profile.
	Format Format
	// IncludeIdle keeps traces from idle threads instead of dropping them.
	IncludeIdle bool
	// LockOnly restricts aggregation to traces whose thread held the target
	// runtime's global interpreter lock at capture time.
	LockOnly bool
	// IncludeThreadIDs appends a synthetic thread-identity frame to every
	// surviving trace.
	IncludeThreadIDs bool
	// IncludeProcessInfo annotates traces with the target's process ancestry
	// as synthetic frames.
	IncludeProcessInfo bool
	// Duration bounds how long the sample source emits. Zero means unlimited;
	// a bounded source terminates on its own and the session drains normally.
	Duration time.Duration
}

// Default returns a sampling configuration with the default rate and the
// speedscope output format.
func Default() Sampling {
	return Sampling{
		Rate:   DefaultRate,
		Format: FormatSpeedscope,
	}
}

// Validate checks the configuration for values no session can run with.
func (s Sampling) Validate() error {
	if s.Rate <= 0 {
		return fmt.Errorf("sampling rate must be positive, got %d", s.Rate)
	}
	// Rates above 1e9 truncate to a zero interval, which no timer accepts.
	if s.Interval() <= 0 {
		return fmt.Errorf("sampling rate %d yields a non-positive interval", s.Rate)
	}
	if s.Format == "" {
		return fmt.Errorf("an output format is required")
	}
	if s.Duration < 0 {
		return fmt.Errorf("duration must not be negative, got %s", s.Duration)
	}
	return nil
}

// Interval returns the wall-clock spacing between samples at the configured
// rate.
func (s Sampling) Interval() time.Duration {
	return time.Second / time.Duration(s.Rate)
}
