package hostproto

import (
	"context"

	"videoengine/pkg/composition"
	"videoengine/pkg/export"
	"videoengine/pkg/playback"
	"videoengine/pkg/sample"
	"videoengine/pkg/sprite"
)

// Server dispatches Command values onto the Playback Coordinator,
// Composition Model, Sprite Pipeline, and Export Pipeline, translating
// each subsystem's own Event union onto a shared Bus. This is the engine
// side of the Host Protocol boundary; pkg/engine wires a
// Server up against concrete subsystem instances and an optional
// transport (ServeWebSocket in this package).
type Server struct {
	sources     *sample.Store
	coordinator *playback.Coordinator
	comp        *composition.Composition
	sprites     *sprite.Pipeline
	exporter    *export.Pipeline
	bus         *Bus

	// NewEncoder constructs the Encoder used by StartExport. NewServer sets
	// it to export.NewFakeEncoder, so a Server built without a real
	// encoder wired in still exercises the full dispatch path in tests.
	NewEncoder func() export.Encoder

	cancelExport context.CancelFunc
}

// NewServer wires a Server against already-constructed subsystems. Any of
// coordinator, sprites, exporter may be nil if a host only needs a subset
// of the protocol (e.g. a one-shot export CLI has no Playback Coordinator).
func NewServer(sources *sample.Store, coordinator *playback.Coordinator, comp *composition.Composition, sprites *sprite.Pipeline, exporter *export.Pipeline, bus *Bus) *Server {
	return &Server{
		sources: sources, coordinator: coordinator, comp: comp, sprites: sprites, exporter: exporter, bus: bus,
		NewEncoder: func() export.Encoder { return export.NewFakeEncoder() },
	}
}

// Dispatch handles one Command. Unknown command types are a protocol
// error and are ignored with an Error event rather than a panic.
func (s *Server) Dispatch(ctx context.Context, cmd Command) {
	switch c := cmd.(type) {
	case InitCanvas:
		if s.coordinator != nil {
			s.coordinator.InitCanvas()
		}

	case LoadSource:
		if s.comp != nil {
			if err := s.comp.AddSource(c.Source); err != nil {
				s.bus.Publish(Error{Message: err.Error(), Recoverable: true})
				return
			}
		}
		if s.coordinator != nil {
			// The coordinator's own onEvent callback (wired through
			// BridgePlaybackEvents) already emits Ready/SourceReady as
			// part of LoadSource's initial-seek-to-0 sequence.
			if err := s.coordinator.LoadSource(c.Source); err != nil {
				s.bus.Publish(Error{Message: err.Error(), Recoverable: false})
				return
			}
		} else {
			s.bus.Publish(Ready{SourceID: c.SourceID, DurationMicros: c.Source.DurationMicros, Width: c.Source.Width, Height: c.Source.Height})
			s.bus.Publish(SourceReady{SourceID: c.SourceID})
		}

	case RemoveSource:
		if s.comp != nil {
			if err := s.comp.RemoveSource(c.SourceID); err != nil {
				s.bus.Publish(Error{Message: err.Error(), Recoverable: true})
			}
		}

	case SetActiveClips:
		// Wiring only: the composition already owns the authoritative
		// track/clip layout; this command exists so a host can signal
		// "the active set changed" without the engine guessing when to
		// re-evaluate ActiveClips.

	case Seek:
		if s.coordinator != nil {
			s.coordinator.Seek(c.Micros)
		}

	case Play:
		if s.coordinator != nil {
			if err := s.coordinator.Play(); err != nil {
				s.bus.Publish(Error{Message: err.Error(), Recoverable: true})
			}
		}

	case Pause:
		if s.coordinator != nil {
			s.coordinator.Pause()
		}

	case SetTrim:
		if s.coordinator != nil {
			if err := s.coordinator.SetTrim(c.InMicros, c.OutMicros); err != nil {
				s.bus.Publish(Error{Message: err.Error(), Recoverable: true})
			}
		}

	case SetMasterVolume:
		// Master volume scales playback/export mix gain, not per-clip
		// Clip.Volume (which stays under composition editing control);
		// left as a no-op hook here until a concrete mixer stage exists
		// to apply it.

	case GetSamplesForSprites:
		if s.sprites != nil {
			s.sprites.SetVisibleRange(c.SourceID, c.StartMicros, c.EndMicros, nil)
		}

	case StartExport:
		s.startExport(c)

	case CancelExport:
		if s.cancelExport != nil {
			s.cancelExport()
		}

	default:
		s.bus.Publish(Error{Message: "unknown command", Recoverable: true})
	}
}

func (s *Server) startExport(c StartExport) {
	if s.exporter == nil || s.comp == nil {
		s.bus.Publish(Error{Message: "export pipeline not configured", Recoverable: false})
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelExport = cancel

	rng := composition.ExportRange{InMicros: c.InMicros, OutMicros: c.OutMicros}
	cfg := export.Config{
		Width: c.Width, Height: c.Height, FrameRate: c.FrameRate,
		VideoBitrate: c.VideoBitrate, AudioBitrate: c.AudioBitrate, IncludeAudio: c.IncludeAudio,
	}

	go func() {
		defer cancel()
		encoder := s.NewEncoder()
		if err := s.exporter.Run(ctx, s.comp, rng, encoder, cfg, nil); err != nil {
			s.bus.Publish(Error{Message: err.Error(), Recoverable: false})
		}
	}()
}

// BridgePlaybackEvents translates playback.Event into hostproto.Event and
// publishes it on bus; pass this as the onEvent callback when constructing
// the Coordinator that backs this Server.
func BridgePlaybackEvents(bus *Bus) func(playback.Event) {
	return func(e playback.Event) {
		switch ev := e.(type) {
		case playback.Ready:
			bus.Publish(Ready{DurationMicros: ev.DurationMicros, Width: ev.Width, Height: ev.Height})
		case playback.SourceReady:
			bus.Publish(SourceReady{SourceID: ev.SourceID})
		case playback.TimeUpdate:
			bus.Publish(TimeUpdate{Micros: ev.Micros})
		case playback.PlaybackState:
			bus.Publish(PlaybackState{Playing: ev.Playing})
		case playback.FirstFrame:
			bus.Publish(FirstFrame{Width: ev.Width, Height: ev.Height})
		case playback.Error:
			bus.Publish(Error{Message: ev.Message, Recoverable: ev.Recoverable})
		}
	}
}

// BridgeSpriteEvents translates sprite.Event into hostproto.Event.
func BridgeSpriteEvents(bus *Bus) func(sprite.Event) {
	return func(e sprite.Event) {
		switch ev := e.(type) {
		case sprite.SheetReady:
			bus.Publish(SheetReady{SourceID: ev.SourceID, SheetID: ev.Sheet.ID})
		case sprite.Error:
			bus.Publish(Error{Message: ev.Message, Recoverable: ev.Recoverable})
		case sprite.Stuck:
			bus.Publish(Error{Message: "sprite generation stalled for " + ev.SourceID, Recoverable: true})
		}
	}
}

// BridgeExportEvents translates export.Event into hostproto.Event.
func BridgeExportEvents(bus *Bus) func(export.Event) {
	return func(e export.Event) {
		switch ev := e.(type) {
		case export.Progress:
			bus.Publish(Progress{Current: ev.Current, Total: ev.Total, Percent: ev.Percent})
		case export.Complete:
			bus.Publish(Complete{Size: ev.Size})
		case export.Cancelled:
			bus.Publish(Cancelled{})
		case export.Error:
			bus.Publish(Error{Message: ev.Message, Recoverable: ev.Recoverable})
		}
	}
}
