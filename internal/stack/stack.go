// Package stack defines the sample, trace, and frame types flowing from a
// sample source into the profile recorder.
package stack

import (
	"fmt"
	"time"
)

// Frame is one call-stack level within a trace.
type Frame struct {
	// Name is the display name of the function or annotation.
	Name string
	// Filename is the path to the source file. Empty for synthetic frames.
	Filename string
	// Module is the module or binary the frame belongs to, when known.
	Module string
	// ShortFilename is a shortened form of Filename for display, when known.
	ShortFilename string
	// Line is the line number within Filename. Zero for synthetic frames.
	Line int
	// IsEntry marks frames that enter a new logical scope (thread or process
	// boundaries, top-level entry points).
	IsEntry bool
	// IsShimEntry marks frames manufactured by the sampling loop rather than
	// captured from the target, so renderers can distinguish them from code.
	IsShimEntry bool
}

// ProcessInfo describes one process in the target's ancestry chain.
type ProcessInfo struct {
	Pid     int32
	Cmdline string
	Parent  *ProcessInfo
}

// Frame renders the process descriptor as a synthetic shim frame.
func (p *ProcessInfo) Frame() Frame {
	return Frame{
		Name:        fmt.Sprintf("process %d:%q", p.Pid, p.Cmdline),
		IsEntry:     true,
		IsShimEntry: true,
	}
}

// Trace is one thread's captured call stack at one sampling instant.
// Frames are ordered innermost first.
type Trace struct {
	Frames []Frame
	// Active reports whether the thread was runnable (rather than idle or
	// blocked) when captured.
	Active bool
	// HoldsLock reports whether the thread held the target runtime's global
	// interpreter lock when captured.
	HoldsLock bool
	// ThreadID is the OS thread identifier.
	ThreadID uint64
	// ThreadName is the thread's name, when the source could resolve one.
	ThreadName string
	// Process links the trace to the target's process ancestry, when the
	// source was configured to collect it.
	Process *ProcessInfo
}

// FormatThreadID renders the OS thread id the way downstream tooling expects.
func (t *Trace) FormatThreadID() string {
	return fmt.Sprintf("0x%x", t.ThreadID)
}

// ThreadFrame builds the synthetic thread-identity frame appended when
// thread-id annotation is enabled.
func ThreadFrame(t *Trace) Frame {
	name := fmt.Sprintf("thread (%s)", t.FormatThreadID())
	if t.ThreadName != "" {
		name = fmt.Sprintf("thread (%s): %s", t.FormatThreadID(), t.ThreadName)
	}
	return Frame{
		Name:        name,
		IsEntry:     true,
		IsShimEntry: true,
	}
}

// Sample is one emission from a sample source: every thread's trace captured
// at one scheduling tick.
type Sample struct {
	Traces []Trace
	// Late is how far behind the intended schedule this sample was taken.
	// Zero when the source kept pace.
	Late time.Duration
	// Errors maps a source process id to the error that prevented its traces
	// from being captured this tick.
	Errors map[int32]error
}
