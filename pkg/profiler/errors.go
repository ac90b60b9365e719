package profiler

import "errors"

var (
	// ErrUnsupportedFormat is returned by Start when the configuration
	// requests an output encoding this library does not implement. It is
	// raised before any sampling resource is created.
	ErrUnsupportedFormat = errors.New("unsupported output format")

	// ErrNoActiveSession is returned by Stop when the session's background
	// goroutine has already been consumed by a prior Stop.
	ErrNoActiveSession = errors.New("no active profiling session")

	// ErrJoinFailure is returned by Stop when the background goroutine
	// terminated abnormally instead of returning a result.
	ErrJoinFailure = errors.New("profiling goroutine terminated abnormally")
)
