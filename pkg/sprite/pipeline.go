package sprite

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"videoengine/internal/config"
	"videoengine/internal/engineerr"
	"videoengine/internal/watchdog"
	"videoengine/pkg/playback"
	"videoengine/pkg/sample"
)

// visiblePadMicros is the progressive-loading pad added on either
// side of a visible range before generation is enqueued.
const visiblePadMicros = 2_000_000

// Pipeline is the Sprite Pipeline: it shares the Sample Store and
// Keyframe Locator with the Playback Coordinator but drives its own
// decoder instance in a sibling worker context. One Pipeline
// serves one source at a time per call, but tracks generated ranges and a
// partially-filled sheet per source across calls.
type Pipeline struct {
	sources         *sample.Store
	decoder         playback.Decoder
	cache           *Cache
	geometry        config.SheetGeometry
	intervalMicros  int64
	onEvent         func(Event)
	watchdogFactory func(sourceID string) *watchdog.Watchdog

	mu         sync.Mutex
	generation uint64
	ranges     map[string]*GeneratedRanges
	partial    map[string]*Sheet
}

// NewPipeline builds a Pipeline. geometry and cache are typically selected
// from internal/config.Config for the host's device tier. intervalMicros
// is the spacing between generated thumbnails; a natural default is one
// thumbnail per second.
func NewPipeline(sources *sample.Store, decoder playback.Decoder, cache *Cache, geometry config.SheetGeometry, intervalMicros int64, onEvent func(Event)) *Pipeline {
	if onEvent == nil {
		onEvent = func(Event) {}
	}
	if intervalMicros <= 0 {
		intervalMicros = 1_000_000
	}
	return &Pipeline{
		sources:        sources,
		decoder:        decoder,
		cache:          cache,
		geometry:       geometry,
		intervalMicros: intervalMicros,
		onEvent:        onEvent,
		ranges:         map[string]*GeneratedRanges{},
		partial:        map[string]*Sheet{},
	}
}

// WatchdogFor wires a stall watchdog per source that emits Stuck after
// stallSeconds without progress (15 for the 15s watchdog); ctx governs the
// poller's lifetime. Optional — callers that don't
// need stuck diagnostics can skip this.
func (p *Pipeline) WatchdogFor(ctx context.Context, sourceID string, stallSeconds int) *watchdog.Watchdog {
	w := watchdog.New(time.Duration(stallSeconds)*time.Second, func() {
		p.onEvent(Stuck{SourceID: sourceID})
	})
	go w.Start(ctx)
	return w
}

// CoveredRanges returns a snapshot of the timeline intervals already
// generated for sourceID.
func (p *Pipeline) CoveredRanges(sourceID string) []Range {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rangesFor(sourceID).Ranges()
}

// Covers reports whether [startMicros, endMicros) has already been fully
// generated for sourceID.
func (p *Pipeline) Covers(sourceID string, startMicros, endMicros int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rangesFor(sourceID).Covers(startMicros, endMicros)
}

func (p *Pipeline) rangesFor(sourceID string) *GeneratedRanges {
	r, ok := p.ranges[sourceID]
	if !ok {
		r = &GeneratedRanges{}
		p.ranges[sourceID] = r
	}
	return r
}

// SetVisibleRange enqueues generation for [start-2s, end+2s] (clamped to
// the source's duration) if that padded range isn't already fully
// generated, cancelling any in-flight run via the generation epoch so an
// earlier, now-superseded run's partial sheets are never emitted.
func (p *Pipeline) SetVisibleRange(sourceID string, startMicros, endMicros int64, watchdogTouch func()) {
	p.mu.Lock()
	p.generation++
	gen := p.generation

	src, err := p.sources.Get(sourceID)
	if err != nil {
		p.mu.Unlock()
		p.onEvent(Error{SourceID: sourceID, Message: err.Error(), Recoverable: true})
		return
	}

	lo := startMicros - visiblePadMicros
	if lo < 0 {
		lo = 0
	}
	hi := endMicros + visiblePadMicros
	if hi > src.DurationMicros {
		hi = src.DurationMicros
	}
	ranges := p.rangesFor(sourceID)
	if ranges.Covers(lo, hi) {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	go p.run(sourceID, lo, hi, p.intervalMicros, gen, watchdogTouch)
}

// Generate runs the tile generation algorithm synchronously for
// [startMicros, endMicros) at intervalMicros spacing (a non-positive value
// uses the Pipeline's own interval). It pins the epoch current when it
// starts, so a SetVisibleRange call made while it runs aborts it like any
// other run. Failures are reported through onEvent; the returned error is
// always nil.
func (p *Pipeline) Generate(sourceID string, startMicros, endMicros, intervalMicros int64) error {
	if intervalMicros <= 0 {
		intervalMicros = p.intervalMicros
	}
	p.mu.Lock()
	gen := p.generation
	p.mu.Unlock()
	p.run(sourceID, startMicros, endMicros, intervalMicros, gen, nil)
	return nil
}

func (p *Pipeline) currentGeneration() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

// run is the shared implementation behind SetVisibleRange and Generate.
// gen pins this call to the epoch current when it was enqueued; if a later
// SetVisibleRange bumps the epoch, run aborts without emitting any sheet
// it has not already flushed to the cache.
func (p *Pipeline) run(sourceID string, startMicros, endMicros, intervalMicros int64, gen uint64, touch func()) {
	src, err := p.sources.Get(sourceID)
	if err != nil {
		p.onEvent(Error{SourceID: sourceID, Message: err.Error(), Recoverable: true})
		return
	}

	// Step 1: compute the candidate timestamp list and drop anything the
	// generated-range tracker already covers.
	var targets []int64
	for t := startMicros; t < endMicros; t += intervalMicros {
		targets = append(targets, t)
	}

	p.mu.Lock()
	ranges := p.rangesFor(sourceID)
	targets = ranges.Uncovered(targets)
	sheet := p.partial[sourceID]
	if sheet == nil {
		sheet = p.newSheet()
	}
	p.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	for _, t := range targets {
		if gen != p.currentGeneration() {
			// Superseded by a newer SetVisibleRange call: keep whatever
			// sheet we've accumulated for the next run, but emit nothing
			// for the remainder of this aborted run.
			p.mu.Lock()
			p.partial[sourceID] = sheet
			p.mu.Unlock()
			return
		}

		frame, err := p.decodeNearest(src, t)
		if err != nil {
			class := engineerr.ClassOf(err)
			if class == engineerr.ClassFatal {
				p.onEvent(Error{SourceID: sourceID, Message: err.Error(), Recoverable: false})
				p.mu.Lock()
				p.partial[sourceID] = sheet
				p.mu.Unlock()
				return
			}
			// Recoverable: reset the decoder and continue with the next
			// target.
			_ = p.decoder.Flush()
			if rcErr := p.decoder.Configure(src.CodecDescription); rcErr != nil {
				p.onEvent(Error{SourceID: sourceID, Message: rcErr.Error(), Recoverable: false})
				p.mu.Lock()
				p.partial[sourceID] = sheet
				p.mu.Unlock()
				return
			}
			p.onEvent(Error{SourceID: sourceID, Message: err.Error(), Recoverable: true})
			continue
		}

		col, row := sheet.nextSlot()
		pasteTile(sheet, col, row, frame.Data)
		sheet.Sprites = append(sheet.Sprites, Metadata{TimestampMicros: t, Col: col, Row: row})
		sheet.SizeBytes += int64(sheet.TileWidth * sheet.TileHeight * 4)
		frame.Release()

		if touch != nil {
			touch()
		}

		if sheet.full() {
			p.emit(sourceID, sheet)
			sheet = p.newSheet()
		}
	}

	if len(sheet.Sprites) > 0 {
		p.emit(sourceID, sheet)
		sheet = p.newSheet()
	}

	p.mu.Lock()
	p.partial[sourceID] = sheet
	ranges.Add(startMicros, endMicros)
	p.mu.Unlock()
}

func (p *Pipeline) newSheet() *Sheet {
	w, h := p.geometry.Columns*p.geometry.TileWidth, p.geometry.Rows*p.geometry.TileHeight
	return &Sheet{
		ID:         uuid.NewString(),
		Bitmap:     make([]byte, w*h*4),
		Columns:    p.geometry.Columns,
		Rows:       p.geometry.Rows,
		TileWidth:  p.geometry.TileWidth,
		TileHeight: p.geometry.TileHeight,
	}
}

// pasteTile copies a hardware-resized thumbnail (already tileWidth x
// tileHeight RGBA8) into sheet's bitmap at grid position (col, row).
// Source data shorter than a full tile (e.g. a
// decoder stand-in that doesn't actually resize) is copied as far as it
// goes, leaving the remainder of the tile blank.
func pasteTile(sheet *Sheet, col, row int, rgba []byte) {
	sheetWidth := sheet.Columns * sheet.TileWidth
	tileRowBytes := sheet.TileWidth * 4
	for y := 0; y < sheet.TileHeight; y++ {
		srcStart := y * tileRowBytes
		if srcStart >= len(rgba) {
			break
		}
		srcEnd := srcStart + tileRowBytes
		if srcEnd > len(rgba) {
			srcEnd = len(rgba)
		}
		dstX := col * sheet.TileWidth
		dstY := row*sheet.TileHeight + y
		dstStart := (dstY*sheetWidth + dstX) * 4
		copy(sheet.Bitmap[dstStart:], rgba[srcStart:srcEnd])
	}
}

func (p *Pipeline) emit(sourceID string, sheet *Sheet) {
	p.cache.Put(sheet)
	p.onEvent(SheetReady{SourceID: sourceID, Sheet: sheet})
}

// decodeNearest locates the keyframe covering the sample nearest
// targetMicros, flushes the decoder (per-target flush), and decodes
// forward keeping only the frame matching the target time.
func (p *Pipeline) decodeNearest(src *sample.Source, targetMicros int64) (playback.Frame, error) {
	targetIdx := nearestSampleIndex(src, targetMicros)
	kfIdx := sample.LocateKeyframe(src, targetIdx)
	if kfIdx < 0 || !src.Samples[kfIdx].IsSync {
		return playback.Frame{}, engineerr.New(engineerr.ClassInvariant, "sprite_decode", engineerr.ErrKeyframeCorrupt)
	}

	if err := p.decoder.Flush(); err != nil {
		return playback.Frame{}, engineerr.New(engineerr.ClassTransient, "sprite_decode", err)
	}

	var last playback.Frame
	for i := kfIdx; i <= targetIdx; i++ {
		s := src.Samples[i]
		frame, err := p.decoder.Decode(s.Data, s.Micros(), 0)
		if err != nil {
			return playback.Frame{}, engineerr.New(engineerr.ClassTransient, "sprite_decode", err)
		}
		if i < targetIdx {
			frame.Release()
			continue
		}
		last = frame
	}
	return last, nil
}

// nearestSampleIndex returns the index of the sample whose timestamp is
// closest to targetMicros (nearest-frame sampling).
func nearestSampleIndex(src *sample.Source, targetMicros int64) int {
	lo, hi := 0, len(src.Samples)-1
	best := hi
	for lo <= hi {
		mid := (lo + hi) / 2
		if src.Samples[mid].Micros() >= targetMicros {
			best = mid
			hi = mid - 1
		} else {
			lo = mid + 1
		}
	}
	if best < 0 {
		best = 0
	}
	if best > 0 {
		prevDelta := targetMicros - src.Samples[best-1].Micros()
		curDelta := src.Samples[best].Micros() - targetMicros
		if prevDelta >= 0 && prevDelta < curDelta {
			return best - 1
		}
	}
	return best
}
