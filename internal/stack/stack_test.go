package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatThreadID(t *testing.T) {
	tr := &Trace{ThreadID: 0xdeadbeef}
	assert.Equal(t, "0xdeadbeef", tr.FormatThreadID())
}

func TestThreadFrame(t *testing.T) {
	t.Run("with name", func(t *testing.T) {
		tr := &Trace{ThreadID: 0x2a, ThreadName: "MainThread"}
		f := ThreadFrame(tr)

		assert.Equal(t, "thread (0x2a): MainThread", f.Name)
		assert.True(t, f.IsEntry)
		assert.True(t, f.IsShimEntry)
		assert.Empty(t, f.Filename)
		assert.Zero(t, f.Line)
	})

	t.Run("without name", func(t *testing.T) {
		tr := &Trace{ThreadID: 0x2a}
		f := ThreadFrame(tr)

		assert.Equal(t, "thread (0x2a)", f.Name)
		assert.True(t, f.IsShimEntry)
	})
}

func TestProcessInfoFrame(t *testing.T) {
	p := &ProcessInfo{Pid: 321, Cmdline: "gunicorn --workers 4"}
	f := p.Frame()

	assert.Equal(t, `process 321:"gunicorn --workers 4"`, f.Name)
	assert.True(t, f.IsEntry)
	assert.True(t, f.IsShimEntry)
	assert.Empty(t, f.Filename)
}

func TestProcessInfoChain(t *testing.T) {
	grand := &ProcessInfo{Pid: 1, Cmdline: "init"}
	parent := &ProcessInfo{Pid: 10, Cmdline: "shell", Parent: grand}

	var pids []int32
	for node := parent; node != nil; node = node.Parent {
		pids = append(pids, node.Pid)
	}
	assert.Equal(t, []int32{10, 1}, pids)
}
