// Package sample holds the Sample Store: container samples and keyframe
// indices per source, pure data and read-only once a source has loaded.
// Grounded on the flag/PTS/DTS/Size sample record shape of
// pkg/video/customformat, generalized from a single recording's sample list
// to the engine's multi-source composition model.
package sample

import (
	"fmt"
	"sync"

	"videoengine/internal/engineerr"
)

// Sample is one encoded chunk belonging to a Source.
type Sample struct {
	CTS       int64  // composition timestamp, in Timescale ticks
	Timescale uint32 // ticks per second
	Duration  int64  // in Timescale ticks
	IsSync    bool
	Data      []byte
}

// Micros converts the sample's CTS to engine-standard microseconds.
func (s Sample) Micros() int64 {
	return CTSMicros(s.CTS, s.Timescale)
}

// CTSMicros converts a composition timestamp in timescale ticks to
// microseconds: µs = cts * 1_000_000 / timescale.
func CTSMicros(cts int64, timescale uint32) int64 {
	if timescale == 0 {
		return 0
	}
	return cts * 1_000_000 / int64(timescale)
}

// Source is an immutable, loaded media source: its samples, keyframe index
// and codec geometry. Owned by the Composition Model once added.
type Source struct {
	ID               string
	Samples          []Sample
	KeyframeIndex    []int // sorted, sample indices where Samples[i].IsSync
	Width            int
	Height           int
	CodecID          string
	CodecDescription []byte // AVCC/HVCC/VPCC record or AudioSpecificConfig
	DurationMicros   int64
	HasAudio         bool
}

// Validate checks the invariants a loaded source must hold:
// samples sorted ascending by CTS, and a non-empty keyframe index whose
// entries are genuinely sync samples.
func (s *Source) Validate() error {
	for i := 1; i < len(s.Samples); i++ {
		if s.Samples[i].CTS < s.Samples[i-1].CTS {
			return engineerr.Newf(engineerr.ClassInvariant, "load_source",
				fmt.Sprintf("samples not sorted ascending by cts at index %d", i))
		}
	}

	if len(s.Samples) > 0 && len(s.KeyframeIndex) == 0 {
		return engineerr.Newf(engineerr.ClassInvariant, "load_source",
			"keyframe index empty for non-empty source")
	}

	for _, idx := range s.KeyframeIndex {
		if idx < 0 || idx >= len(s.Samples) || !s.Samples[idx].IsSync {
			return fmt.Errorf("load_source: %w: index %d", engineerr.ErrKeyframeCorrupt, idx)
		}
	}

	return nil
}

// Store holds every loaded Source, keyed by ID. Writes only happen on
// load/remove; reads (by the Playback Coordinator, Sprite Pipeline and
// Export Pipeline, each with its own decoder) are concurrent and frequent,
// so a RWMutex guards the map rather than the (immutable) Source values.
type Store struct {
	mu      sync.RWMutex
	sources map[string]*Source
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{sources: map[string]*Source{}}
}

// Add registers src, replacing any existing source with the same ID.
func (st *Store) Add(src *Source) error {
	if err := src.Validate(); err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sources[src.ID] = src
	return nil
}

// Remove deletes a source by ID. Callers (the Composition Model) are
// responsible for refusing removal while a clip still references it
// (engineerr.ErrSourceInUse).
func (st *Store) Remove(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sources, id)
}

// Get returns the source with the given ID, or engineerr.ErrNotFound.
func (st *Store) Get(id string) (*Source, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	src, ok := st.sources[id]
	if !ok {
		return nil, fmt.Errorf("sample store: %w: %s", engineerr.ErrNotFound, id)
	}
	return src, nil
}
