// Package speedscope accumulates stack traces into a weighted profile and
// serializes it in the speedscope file format
// (https://www.speedscope.app/file-format-schema.json).
//
// Traces are folded as they arrive: each unique frame sequence of a thread
// becomes one sample whose weight counts how often it was observed. Output is
// deterministic: frames and stacks in first-seen order, thread profiles
// sorted by thread id.
package speedscope

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"

	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"

	"github.com/perch-profiler/perch/internal/safe"
	"github.com/perch-profiler/perch/internal/stack"
)

const schemaURL = "https://www.speedscope.app/file-format-schema.json"

// frameKey identifies a frame for deduplication in the shared frame table.
type frameKey struct {
	name string
	file string
	line int
}

// jsonFrame is one entry of the shared frame table.
type jsonFrame struct {
	Name string `json:"name"`
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
}

// jsonProfile is one per-thread sampled profile.
type jsonProfile struct {
	Type       string  `json:"type"`
	Name       string  `json:"name"`
	Unit       string  `json:"unit"`
	StartValue int64   `json:"startValue"`
	EndValue   int64   `json:"endValue"`
	Samples    [][]int `json:"samples"`
	Weights    []int64 `json:"weights"`
}

type jsonShared struct {
	Frames []jsonFrame `json:"frames"`
}

type jsonFile struct {
	Schema   string        `json:"$schema"`
	Shared   jsonShared    `json:"shared"`
	Profiles []jsonProfile `json:"profiles"`
	Exporter string        `json:"exporter,omitempty"`
}

// threadProfile folds one thread's stacks into weighted samples.
type threadProfile struct {
	threadID uint64
	name     string
	stacks   [][]int
	weights  []uint64
	// index buckets positions by stack hash. A bucket almost always holds
	// one entry; the sequence comparison guards against hash collisions.
	index map[uint64][]int
}

// Stats is the running weighted profile. It is not safe for concurrent use;
// the sampling loop feeds it from a single goroutine.
type Stats struct {
	exporter string
	logger   zerolog.Logger

	frames     []jsonFrame
	frameIndex map[frameKey]int

	threads     map[uint64]*threadProfile
	threadOrder []uint64
}

// New returns an empty weighted profile. The exporter string is embedded in
// the serialized output.
func New(exporter string, logger zerolog.Logger) *Stats {
	return &Stats{
		exporter:   exporter,
		logger:     logger.With().Str("component", "speedscope").Logger(),
		frameIndex: make(map[frameKey]int),
		threads:    make(map[uint64]*threadProfile),
	}
}

// Record folds one trace into the profile. The trace's frames are ordered
// innermost first; speedscope wants them root first, so the sequence is
// reversed on the way in.
func (s *Stats) Record(t *stack.Trace) error {
	if len(t.Frames) == 0 {
		return fmt.Errorf("cannot record a trace with no frames")
	}

	indices := make([]int, 0, len(t.Frames))
	for i := len(t.Frames) - 1; i >= 0; i-- {
		indices = append(indices, s.frameIdx(&t.Frames[i]))
	}

	tp := s.threads[t.ThreadID]
	if tp == nil {
		tp = &threadProfile{
			threadID: t.ThreadID,
			name:     profileName(t),
			index:    make(map[uint64][]int),
		}
		s.threads[t.ThreadID] = tp
		s.threadOrder = append(s.threadOrder, t.ThreadID)
	}

	hash := stackHash(indices)
	for _, pos := range tp.index[hash] {
		if slices.Equal(tp.stacks[pos], indices) {
			tp.weights[pos]++
			return nil
		}
	}
	tp.index[hash] = append(tp.index[hash], len(tp.stacks))
	tp.stacks = append(tp.stacks, indices)
	tp.weights = append(tp.weights, 1)

	return nil
}

// Write serializes the accumulated profile. Record must not be called after
// Write.
func (s *Stats) Write(w io.Writer) error {
	order := make([]uint64, len(s.threadOrder))
	copy(order, s.threadOrder)
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	profiles := make([]jsonProfile, 0, len(order))
	for _, tid := range order {
		tp := s.threads[tid]

		weights := make([]int64, len(tp.weights))
		var end int64
		for i, w := range tp.weights {
			v, clamped := safe.Uint64ToInt64(w)
			if clamped {
				s.logger.Warn().
					Uint64("thread_id", tid).
					Uint64("weight", w).
					Msg("Sample weight exceeded int64 range, clamped")
			}
			weights[i] = v
			end += v
		}

		profiles = append(profiles, jsonProfile{
			Type:       "sampled",
			Name:       tp.name,
			Unit:       "none",
			StartValue: 0,
			EndValue:   end,
			Samples:    tp.stacks,
			Weights:    weights,
		})
	}

	file := jsonFile{
		Schema:   schemaURL,
		Shared:   jsonShared{Frames: s.frames},
		Profiles: profiles,
		Exporter: s.exporter,
	}

	if err := json.NewEncoder(w).Encode(&file); err != nil {
		return fmt.Errorf("failed to encode speedscope profile: %w", err)
	}
	return nil
}

// frameIdx returns the shared-table index for a frame, interning it on first
// sight.
func (s *Stats) frameIdx(f *stack.Frame) int {
	key := frameKey{name: f.Name, file: f.Filename, line: f.Line}
	if idx, ok := s.frameIndex[key]; ok {
		return idx
	}

	idx := len(s.frames)
	s.frames = append(s.frames, jsonFrame{
		Name: f.Name,
		File: f.Filename,
		Line: f.Line,
	})
	s.frameIndex[key] = idx
	return idx
}

// stackHash hashes a frame-index sequence for sample deduplication.
func stackHash(indices []int) uint64 {
	buf := make([]byte, 8*len(indices))
	for i, idx := range indices {
		binary.LittleEndian.PutUint64(buf[8*i:], uint64(idx))
	}
	return xxh3.Hash(buf)
}

func profileName(t *stack.Trace) string {
	if t.ThreadName != "" {
		return fmt.Sprintf("thread (%s): %s", t.FormatThreadID(), t.ThreadName)
	}
	return fmt.Sprintf("thread (%s)", t.FormatThreadID())
}
