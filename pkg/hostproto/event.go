package hostproto

// Event is the tagged union of everything the engine emits toward a host
// It folds together the Playback Coordinator's, Sprite
// Pipeline's, and Export Pipeline's own Event unions into one wire-level
// union, the way a real UI worker boundary would serialize them onto a
// single channel.
type Event interface{ isEvent() }

// Ready reports a freshly loaded source's duration and frame dimensions.
type Ready struct {
	SourceID       string
	DurationMicros int64
	Width, Height  int
}

// SourceReady reports that a source's video/audio pair is decodable.
type SourceReady struct{ SourceID string }

// TimeUpdate reports the current playback presentation time.
type TimeUpdate struct{ Micros int64 }

// PlaybackState reports a playing/paused transition.
type PlaybackState struct{ Playing bool }

// FirstFrame carries frame dimensions for the first decoded frame after a
// load (the frame bytes themselves are delivered out-of-band by whatever
// transport can carry a binary payload; this event is the wire signal).
type FirstFrame struct {
	Width, Height int
}

// SheetReady reports a finished sprite sheet for a source.
type SheetReady struct {
	SourceID string
	SheetID  string
}

// Progress reports export progress.
type Progress struct {
	Current, Total int
	Percent        float64
}

// Complete reports a finished export, with the encoded byte size (the
// bytes themselves travel out-of-band, same as FirstFrame).
type Complete struct{ Size int }

// Cancelled reports that an in-flight export was cancelled.
type Cancelled struct{}

// Error reports a decode, seek, generation, export, or protocol failure.
type Error struct {
	Message     string
	Recoverable bool
}

func (Ready) isEvent()         {}
func (SourceReady) isEvent()   {}
func (TimeUpdate) isEvent()    {}
func (PlaybackState) isEvent() {}
func (FirstFrame) isEvent()    {}
func (SheetReady) isEvent()    {}
func (Progress) isEvent()      {}
func (Complete) isEvent()      {}
func (Cancelled) isEvent()     {}
func (Error) isEvent()         {}
