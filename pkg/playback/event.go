// Package playback implements the Playback Coordinator: a mutex-guarded
// state machine, with seeks run on a background goroutine, that drives a
// decoder against a Source's samples and presents frames on a tick-by-tick
// basis.
package playback

// Event is the tagged union of everything the coordinator emits. Hosts
// receive events in the order the coordinator observed them.
type Event interface{ isEvent() }

// Ready reports a freshly loaded source's duration and frame dimensions.
type Ready struct {
	DurationMicros int64
	Width, Height  int
}

// SourceReady reports that a video/audio pair for a source is decodable.
type SourceReady struct{ SourceID string }

// TimeUpdate reports the current presentation time.
type TimeUpdate struct{ Micros int64 }

// PlaybackState reports a playing/paused transition.
type PlaybackState struct{ Playing bool }

// FirstFrame carries the first decoded frame after a load, so a host can
// paint something before playback starts.
type FirstFrame struct {
	Frame         Frame
	Width, Height int
}

// Error reports a decode, seek, or configuration failure.
type Error struct {
	Message     string
	Recoverable bool
}

func (Ready) isEvent()         {}
func (SourceReady) isEvent()   {}
func (TimeUpdate) isEvent()    {}
func (PlaybackState) isEvent() {}
func (FirstFrame) isEvent()    {}
func (Error) isEvent()         {}
