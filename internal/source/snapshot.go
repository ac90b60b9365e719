package source

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/unix"

	"github.com/perch-profiler/perch/internal/config"
	"github.com/perch-profiler/perch/internal/privilege"
	"github.com/perch-profiler/perch/internal/stack"
	"github.com/perch-profiler/perch/internal/sys/proc"
)

// maxAncestryDepth caps how far up the process tree ancestry annotation walks.
const maxAncestryDepth = 16

// Attach probes the target process, builds its ancestry chain when requested,
// and returns a paced source over the default procfs snapshotter.
//
// The procfs snapshotter observes thread liveness and kernel wait channels
// only; it does not unwind interpreter stacks, and it cannot observe
// interpreter-lock ownership, so traces it produces never set HoldsLock.
// Embedders with a real unwinder supply their own Snapshotter via NewTimed.
func Attach(pid int32, cfg config.Sampling, logger zerolog.Logger) (*Timed, error) {
	if err := probe(pid); err != nil {
		return nil, err
	}

	var ancestry *stack.ProcessInfo
	if cfg.IncludeProcessInfo {
		ancestry = ancestryChain(pid)
	}

	binary := ""
	if path, err := proc.GetBinaryPath(int(pid)); err == nil {
		binary = filepath.Base(path)
	}

	logger.Debug().
		Int32("pid", pid).
		Str("binary", binary).
		Dur("interval", cfg.Interval()).
		Msg("Attached to target process")

	snap := &procfsSnapshotter{
		pid:      pid,
		binary:   binary,
		ancestry: ancestry,
	}
	return NewTimed(snap, cfg.Interval(), cfg.Duration, logger), nil
}

// probe checks that the target exists and is signalable by this user.
func probe(pid int32) error {
	if err := unix.Kill(int(pid), 0); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("no process with pid %d", pid)
		}
		if errors.Is(err, unix.EPERM) {
			if !privilege.IsElevated() {
				return fmt.Errorf("permission denied attaching to pid %d, try again as root", pid)
			}
			return fmt.Errorf("permission denied attaching to pid %d", pid)
		}
		return fmt.Errorf("failed to probe pid %d: %w", pid, err)
	}

	if exists, err := process.PidExists(pid); err == nil && !exists {
		return fmt.Errorf("no process with pid %d", pid)
	}

	return nil
}

// ancestryChain walks the parent chain of the target, immediate parent first.
// Any lookup failure truncates the chain rather than failing the attach;
// ancestry is annotation, not correctness.
func ancestryChain(pid int32) *stack.ProcessInfo {
	var head, tail *stack.ProcessInfo

	cur := pid
	for depth := 0; depth < maxAncestryDepth; depth++ {
		p, err := process.NewProcess(cur)
		if err != nil {
			break
		}
		ppid, err := p.Ppid()
		if err != nil || ppid <= 1 {
			break
		}

		parent, err := process.NewProcess(ppid)
		if err != nil {
			break
		}
		cmdline, err := parent.Cmdline()
		if err != nil {
			cmdline = ""
		}

		node := &stack.ProcessInfo{Pid: ppid, Cmdline: cmdline}
		if head == nil {
			head = node
		} else {
			tail.Parent = node
		}
		tail = node
		cur = ppid
	}

	return head
}

// procfsSnapshotter captures one trace per OS thread of the target from the
// /proc filesystem: liveness from the scheduler state, the thread name from
// comm, and a single kernel wait-channel frame for blocked threads.
type procfsSnapshotter struct {
	pid      int32
	binary   string
	ancestry *stack.ProcessInfo
}

func (s *procfsSnapshotter) Snapshot() ([]stack.Trace, map[int32]error, error) {
	tids, err := proc.ListThreads(int(s.pid))
	if err != nil {
		// The target is gone; end the stream.
		return nil, nil, fmt.Errorf("target process %d is not readable: %w", s.pid, err)
	}

	traces := make([]stack.Trace, 0, len(tids))
	var errs map[int32]error

	for _, tid := range tids {
		info, err := proc.StatThread(int(s.pid), tid)
		if err != nil {
			// The thread exited between listing and reading. Count it
			// against the target pid and keep sampling the rest.
			if errs == nil {
				errs = make(map[int32]error)
			}
			errs[s.pid] = err
			continue
		}

		frame := stack.Frame{Name: "running", Module: s.binary}
		if wchan := proc.WaitChannel(int(s.pid), tid); wchan != "" {
			frame = stack.Frame{Name: wchan, Module: "kernel"}
		}

		traces = append(traces, stack.Trace{
			Frames:     []stack.Frame{frame},
			Active:     info.Running(),
			ThreadID:   uint64(tid),
			ThreadName: info.Comm,
			Process:    s.ancestry,
		})
	}

	return traces, errs, nil
}
