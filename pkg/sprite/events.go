package sprite

// Event is the tagged union the Sprite Pipeline emits.
type Event interface{ isSpriteEvent() }

// SheetReady reports a sheet that has either filled completely or was
// flushed at the end of a generation run.
type SheetReady struct {
	SourceID string
	Sheet    *Sheet
}

// Error reports a decode or configuration failure. Recoverable errors
// (per-target decode failures) let generation continue after a decoder
// reset; non-recoverable ones stop the run.
type Error struct {
	SourceID    string
	Message     string
	Recoverable bool
}

// Stuck reports the watchdog has not seen progress for its configured
// stall interval (the 15s watchdog).
type Stuck struct{ SourceID string }

func (SheetReady) isSpriteEvent() {}
func (Error) isSpriteEvent()      {}
func (Stuck) isSpriteEvent()      {}
