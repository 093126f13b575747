// Package hostproto implements the Host Protocol: a tagged
// command/event boundary between a host (UI, CLI, or a remote caller over
// websocket) and the engine. Grounded on pkg/web/routes.go's Logs websocket
// handler and pkg/log.Logger's subscribe/fan-out shape, generalized from a
// one-way log feed to a bidirectional command/event protocol.
package hostproto

import "videoengine/pkg/sample"

// Command is the tagged union of everything a host may send.
type Command interface{ isCommand() }

// InitCanvas attaches a presentation surface; pure wiring on this engine's
// side (there is no GPU surface in a headless daemon): Server forwards it to
// Coordinator.InitCanvas, which only records it; playback commands do not
// depend on it.
type InitCanvas struct{}

// LoadSource registers a decoded Source under SourceID and performs the
// Playback Coordinator's implicit initial seek to 0.
type LoadSource struct {
	SourceID string
	Source   *sample.Source
}

// RemoveSource drops a previously loaded source.
type RemoveSource struct{ SourceID string }

// SetActiveClips signals that the host's active track set changed. It
// carries only track IDs, not a composition snapshot, and Server does not
// change the composition's track/clip layout on it.
type SetActiveClips struct {
	TrackIDs []string
}

// Seek requests a coordinator seek to the given timeline position.
type Seek struct{ Micros int64 }

// Play resumes playback.
type Play struct{}

// Pause suspends playback.
type Pause struct{}

// SetTrim updates the Playback Coordinator's trim bounds (not a clip's).
type SetTrim struct{ InMicros, OutMicros int64 }

// SetMasterVolume carries a master gain for the playback/export mix. Server
// takes no action on it; clip volumes are left unchanged.
type SetMasterVolume struct{ Volume float64 }

// GetSamplesForSprites requests sprite sheet generation for a visible
// timeline window: the progressive loading entry point.
type GetSamplesForSprites struct {
	SourceID             string
	StartMicros, EndMicros int64
}

// StartExport begins an Export Pipeline run.
type StartExport struct {
	InMicros, OutMicros *int64
	Width, Height       int
	FrameRate           float64
	VideoBitrate        int
	AudioBitrate        int
	IncludeAudio        bool
}

// CancelExport cancels the in-flight export, if any.
type CancelExport struct{}

func (InitCanvas) isCommand()            {}
func (LoadSource) isCommand()            {}
func (RemoveSource) isCommand()          {}
func (SetActiveClips) isCommand()        {}
func (Seek) isCommand()                  {}
func (Play) isCommand()                  {}
func (Pause) isCommand()                 {}
func (SetTrim) isCommand()               {}
func (SetMasterVolume) isCommand()       {}
func (GetSamplesForSprites) isCommand()  {}
func (StartExport) isCommand()           {}
func (CancelExport) isCommand()          {}
