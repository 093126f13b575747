package export

import (
	"context"
	"fmt"

	"videoengine/internal/engineerr"
	"videoengine/pkg/composition"
	"videoengine/pkg/playback"
	"videoengine/pkg/sample"
)

// progressEveryNFrames controls how often Progress events fire during a
// run ("emit Progress every N frames").
const progressEveryNFrames = 10

// sourceState is the per-source decoder position cache: it avoids reseeking to a keyframe for every output frame
// by remembering the last decoded sample index and frame, advancing
// forward when source time increases monotonically.
type sourceState struct {
	decoder         playback.Decoder
	lastSampleIndex int
	lastFrame       playback.Frame
}

// Pipeline is the Export Pipeline: a frame-accurate walk
// over a composition range that composites active clips per frame and
// drives an Encoder. It shares the Sample Store and Keyframe Locator with
// the Playback Coordinator and Sprite Pipeline, but owns one decoder per
// source for the duration of a run.
type Pipeline struct {
	sources    *sample.Store
	newDecoder func() playback.Decoder
	onEvent    func(Event)

	// SubtitleRasterizer renders active cues into an RGBA surface. Real
	// glyph rasterization is UI rendering and out of scope here, so the
	// default produces a transparent surface; a host that owns a
	// text-shaping library can plug one in here.
	SubtitleRasterizer func(cues []composition.SubtitleCue, width, height int) []byte
}

// NewPipeline builds a Pipeline. newDecoder constructs a fresh decoder
// instance per source touched during a run.
func NewPipeline(sources *sample.Store, newDecoder func() playback.Decoder, onEvent func(Event)) *Pipeline {
	if onEvent == nil {
		onEvent = func(Event) {}
	}
	return &Pipeline{sources: sources, newDecoder: newDecoder, onEvent: onEvent, SubtitleRasterizer: rasterizeCues}
}

// Run walks [in, out) of comp at outCfg.FrameRate, compositing each frame
// and feeding encoder. ctx governs cooperative cancellation: checked once
// per frame and inside each clip's forward-decode loop.
func (p *Pipeline) Run(ctx context.Context, comp *composition.Composition, rng composition.ExportRange, encoder Encoder, outCfg Config, overlays []Overlay) error {
	inMicros, outMicros, err := rng.Resolve(comp.DurationMicros())
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if outCfg.FrameRate <= 0 {
		return engineerr.Newf(engineerr.ClassInvariant, "export", "frame rate must be positive")
	}
	frameDurationMicros := int64(1_000_000 / outCfg.FrameRate)
	// total is derived from the frame<->time conversion
	// (frame = floor(µs * fps / 1e6)), not from stepping t by the
	// already-truncated frameDurationMicros while t < outMicros: that walk
	// would silently admit one extra frame at the range's tail (e.g. 30fps
	// truncates frame_duration_µs to 33_333, and 30*33_333 still undercuts a
	// full second, so a 31st frame would start at 999_990).
	total := int(float64(outMicros-inMicros) * outCfg.FrameRate / 1_000_000)
	if total <= 0 {
		total = 1
	}

	if err := encoder.Configure(outCfg); err != nil {
		fatal := engineerr.New(engineerr.ClassFatal, "export", err)
		p.onEvent(Error{Message: fatal.Error(), Recoverable: false})
		return fatal
	}

	compositor := NewCompositor(outCfg.Width, outCfg.Height)
	states := map[string]*sourceState{}
	defer func() {
		for _, st := range states {
			st.lastFrame.Release()
			st.decoder.Close()
		}
	}()

	for k := 0; k < total; k++ {
		t := inMicros + int64(k)*frameDurationMicros

		select {
		case <-ctx.Done():
			p.onEvent(Cancelled{})
			return nil
		default:
		}

		active := comp.ActiveClips(t)
		var layers []Layer
		var audioChunks [][]byte
		var audioVolumes []float64

		for _, ac := range active {
			switch ac.Track.Kind {
			case composition.KindVideo:
				frame, err := p.decodeAt(ctx, states, ac.Clip, t)
				if err != nil {
					if !engineerr.Recoverable(err) {
						p.onEvent(Error{Message: err.Error(), Recoverable: false})
						return err
					}
					p.onEvent(Error{Message: err.Error(), Recoverable: true})
					continue
				}
				layers = append(layers, Layer{RGBA: frame.Data, Opacity: ac.Clip.Opacity})
			case composition.KindAudio:
				if !outCfg.IncludeAudio {
					continue
				}
				frame, err := p.decodeAt(ctx, states, ac.Clip, t)
				if err != nil {
					p.onEvent(Error{Message: err.Error(), Recoverable: true})
					continue
				}
				audioChunks = append(audioChunks, frame.Data)
				audioVolumes = append(audioVolumes, ac.Clip.Volume)
			}
		}

		cues := comp.ActiveCues(t)
		subtitle := p.SubtitleRasterizer(cues, outCfg.Width, outCfg.Height)

		output := compositor.Composite(layers, overlays, subtitle)
		if err := encoder.WriteFrame(output, t-inMicros); err != nil {
			wrapped := engineerr.New(engineerr.ClassFatal, "export", err)
			p.onEvent(Error{Message: wrapped.Error(), Recoverable: false})
			return wrapped
		}

		if outCfg.IncludeAudio && len(audioChunks) > 0 {
			mixed := MixVolumeScaled(audioChunks, audioVolumes)
			if err := encoder.WriteAudio(mixed, t-inMicros); err != nil {
				p.onEvent(Error{Message: err.Error(), Recoverable: true})
			}
		}

		current := k + 1
		if current%progressEveryNFrames == 0 || current == total {
			p.onEvent(Progress{Current: current, Total: total, Percent: 100 * float64(current) / float64(total)})
		}
	}

	blob, err := encoder.Finalize()
	if err != nil {
		wrapped := engineerr.New(engineerr.ClassFatal, "export", err)
		p.onEvent(Error{Message: wrapped.Error(), Recoverable: false})
		return wrapped
	}
	p.onEvent(Complete{Bytes: blob, Size: len(blob)})
	return nil
}

// decodeAt returns the decoded frame for clip at timeline time t, advancing
// its source's decoder forward from the cached position or reseeking via the Keyframe Locator when source time moves backward or no
// cached position exists yet.
func (p *Pipeline) decodeAt(ctx context.Context, states map[string]*sourceState, clip *composition.Clip, t int64) (playback.Frame, error) {
	src, err := p.sources.Get(clip.SourceID)
	if err != nil {
		return playback.Frame{}, engineerr.New(engineerr.ClassInvariant, "export_decode", err)
	}

	sourceT := clip.TimelineToSource(t)
	targetIdx := sampleIndexAtOrBefore(src, sourceT)

	st, ok := states[clip.SourceID]
	if !ok {
		st = &sourceState{decoder: p.newDecoder(), lastSampleIndex: -1}
		if err := st.decoder.Configure(src.CodecDescription); err != nil {
			return playback.Frame{}, engineerr.New(engineerr.ClassFatal, "export_decode", err)
		}
		states[clip.SourceID] = st
	}

	if targetIdx == st.lastSampleIndex && st.lastFrame.Data != nil {
		return st.lastFrame, nil
	}

	startIdx := st.lastSampleIndex + 1
	if targetIdx < st.lastSampleIndex || st.lastSampleIndex < 0 {
		kfIdx := sample.LocateKeyframe(src, targetIdx)
		if kfIdx < 0 || !src.Samples[kfIdx].IsSync {
			return playback.Frame{}, engineerr.New(engineerr.ClassInvariant, "export_decode", engineerr.ErrKeyframeCorrupt)
		}
		if err := st.decoder.Flush(); err != nil {
			return playback.Frame{}, engineerr.New(engineerr.ClassTransient, "export_decode", err)
		}
		startIdx = kfIdx
	}

	var last playback.Frame
	for i := startIdx; i <= targetIdx; i++ {
		select {
		case <-ctx.Done():
			return playback.Frame{}, engineerr.Newf(engineerr.ClassTransient, "export_decode", "cancelled")
		default:
		}
		s := src.Samples[i]
		frame, err := st.decoder.Decode(s.Data, s.Micros(), 0)
		if err != nil {
			return playback.Frame{}, engineerr.New(engineerr.ClassTransient, "export_decode", err)
		}
		if i < targetIdx {
			frame.Release()
			continue
		}
		last = frame
	}

	st.lastFrame.Release()
	st.lastFrame = last
	st.lastSampleIndex = targetIdx
	return last, nil
}

// sampleIndexAtOrBefore returns the index of the last sample whose time is
// <= targetMicros, or 0 if none qualify. Export must never render a frame
// sourced from later than the requested composition time (e.g. a 24fps
// output walking a 30fps source lands between samples on most frames), so
// this picks the nearest preceding sample rather than the nearest
// following one.
func sampleIndexAtOrBefore(src *sample.Source, targetMicros int64) int {
	lo, hi := 0, len(src.Samples)-1
	best := 0
	for lo <= hi {
		mid := (lo + hi) / 2
		if src.Samples[mid].Micros() <= targetMicros {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return best
}

// rasterizeCues is the default SubtitleRasterizer: a transparent surface,
// since real glyph rasterization is UI rendering and out of scope here.
func rasterizeCues(cues []composition.SubtitleCue, width, height int) []byte {
	if len(cues) == 0 {
		return nil
	}
	return make([]byte, width*height*4) // fully transparent: no Non-goal-violating glyph rendering here
}
