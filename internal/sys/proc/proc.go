// Package proc provides utilities for thread discovery on Linux systems.
// It parses the /proc filesystem to enumerate and describe the threads of a
// target process.
package proc

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ThreadInfo describes one thread of a process as reported by
// /proc/[pid]/task/[tid]/stat.
type ThreadInfo struct {
	TID int
	// Comm is the thread name (the comm field, parens stripped).
	Comm string
	// State is the single-character scheduler state (R, S, D, Z, T, I, ...).
	State byte
}

// Running reports whether the thread was runnable when sampled.
func (t ThreadInfo) Running() bool {
	return t.State == 'R'
}

// ListThreads returns the thread ids of the given process, sorted ascending.
func ListThreads(pid int) ([]int, error) {
	entries, err := os.ReadDir(fmt.Sprintf("/proc/%d/task", pid))
	if err != nil {
		return nil, fmt.Errorf("failed to read task dir for pid %d: %w", pid, err)
	}

	var tids []int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		tid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue // Not a numeric directory.
		}
		tids = append(tids, tid)
	}
	sort.Ints(tids)

	return tids, nil
}

// StatThread reads the name and scheduler state of one thread.
func StatThread(pid, tid int) (ThreadInfo, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/task/%d/stat", pid, tid))
	if err != nil {
		return ThreadInfo{}, fmt.Errorf("failed to read stat for tid %d: %w", tid, err)
	}

	return parseStat(tid, string(data))
}

// parseStat parses a /proc stat line. The comm field is enclosed in parens
// and may itself contain spaces or parens, so fields are split after the
// last closing paren.
func parseStat(tid int, line string) (ThreadInfo, error) {
	open := strings.IndexByte(line, '(')
	close := strings.LastIndexByte(line, ')')
	if open < 0 || close < 0 || close < open || close+2 >= len(line) {
		return ThreadInfo{}, fmt.Errorf("malformed stat line for tid %d", tid)
	}

	rest := strings.Fields(line[close+1:])
	if len(rest) == 0 || len(rest[0]) != 1 {
		return ThreadInfo{}, fmt.Errorf("missing state field for tid %d", tid)
	}

	return ThreadInfo{
		TID:   tid,
		Comm:  line[open+1 : close],
		State: rest[0][0],
	}, nil
}

// WaitChannel returns the kernel symbol the thread is blocked in, or an
// empty string if the thread is running or the kernel hides the field.
func WaitChannel(pid, tid int) string {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/task/%d/wchan", pid, tid))
	if err != nil {
		return ""
	}

	wchan := strings.TrimSpace(string(data))
	if wchan == "0" || wchan == "-" {
		return ""
	}
	return wchan
}

// GetBinaryPath returns the path to the executable for the given PID.
func GetBinaryPath(pid int) (string, error) {
	return os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))
}
