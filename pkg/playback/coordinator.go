package playback

import (
	"fmt"
	"sync"
	"time"

	"videoengine/internal/config"
	"videoengine/internal/engineerr"
	"videoengine/pkg/sample"
)

// Coordinator is the Playback Coordinator: it owns a
// decoder, a Source's sample list, and the frame queue, and presents
// frames on each call to Tick. Seeks run on their own goroutine so a
// burst of Seek calls coalesces into the latest target instead of
// each one running to completion before the next starts, grounded on
// pkg/video/path.go's single-owner-goroutine actor shape generalized to
// allow one background worker per coordinator instead of a request
// channel, since seeking here is the only operation that needs to run
// concurrently with new commands arriving.
type Coordinator struct {
	decoder Decoder
	clock   Clock
	onEvent func(Event)

	mu       sync.Mutex
	seekDone *sync.Cond // signaled whenever a seek run finishes; shares mu

	source                 *sample.Source
	trimInMicros           int64
	trimOutMicros          int64
	frameQueue             []Frame
	lastQueuedSampleIndex  int
	lastRenderedTimeMicros int64

	playing              bool
	seeking              bool
	pendingSeekMicros    *int64
	seekVersion          uint64
	awaitingFirstFrame   bool
	playbackMinTimestamp int64
	needsWallClockSync   bool
	playbackStartWall    time.Time
	playbackStartMicros  int64

	canvasAttached bool
}

// NewCoordinator builds a Coordinator driving decoder, using clock for
// wall-clock reads (inject a FakeClock in tests) and onEvent to observe
// emitted events in order.
func NewCoordinator(decoder Decoder, clock Clock, onEvent func(Event)) *Coordinator {
	if onEvent == nil {
		onEvent = func(Event) {}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	c := &Coordinator{decoder: decoder, clock: clock, onEvent: onEvent}
	c.seekDone = sync.NewCond(&c.mu)
	return c
}

// InitCanvas attaches a GPU surface. Pure wiring.
func (c *Coordinator) InitCanvas() {
	c.mu.Lock()
	c.canvasAttached = true
	c.mu.Unlock()
}

// LoadSource resets the coordinator against a new source, configures the
// decoder from its codec description, and issues an initial seek to 0 so
// the host's FirstFrame expectation is met.
func (c *Coordinator) LoadSource(src *sample.Source) error {
	if err := src.Validate(); err != nil {
		return engineerr.New(engineerr.ClassInvariant, "load_source", err)
	}

	c.mu.Lock()
	c.releaseQueueLocked()
	c.source = src
	c.trimInMicros = 0
	c.trimOutMicros = src.DurationMicros
	c.lastQueuedSampleIndex = 0
	c.lastRenderedTimeMicros = 0
	c.playing = false
	c.seeking = false
	c.pendingSeekMicros = nil
	c.seekVersion++
	c.awaitingFirstFrame = true
	c.mu.Unlock()

	if err := c.decoder.Configure(src.CodecDescription); err != nil {
		fatal := engineerr.New(engineerr.ClassFatal, "load_source", err)
		c.onEvent(Error{Message: fatal.Error(), Recoverable: false})
		return fatal
	}

	c.onEvent(Ready{DurationMicros: src.DurationMicros, Width: src.Width, Height: src.Height})
	c.onEvent(SourceReady{SourceID: src.ID})

	c.Seek(0)
	return nil
}

func (c *Coordinator) releaseQueueLocked() {
	for i := range c.frameQueue {
		c.frameQueue[i].Release()
	}
	c.frameQueue = nil
}

// Seek runs the seek algorithm. If a seek is already running, target is
// recorded as the pending seek and this call returns immediately without
// starting new decoder work.
func (c *Coordinator) Seek(targetMicros int64) {
	c.mu.Lock()
	if c.seeking {
		c.pendingSeekMicros = &targetMicros
		c.mu.Unlock()
		return
	}
	c.seeking = true
	c.mu.Unlock()

	go c.runSeek(targetMicros)
}

func (c *Coordinator) runSeek(targetMicros int64) {
	for {
		c.doSeek(targetMicros)

		c.mu.Lock()
		if c.pendingSeekMicros == nil {
			c.seeking = false
			c.mu.Unlock()
			c.seekDone.Broadcast()
			return
		}
		next := *c.pendingSeekMicros
		c.pendingSeekMicros = nil
		c.mu.Unlock()
		targetMicros = next
	}
}

// awaitSeekLocked blocks until no seek is in flight. Callers that need to
// read or mutate decoder state right after a seek (e.g. Play resuming from
// a seek to the trim-in point) must call this instead of assuming Seek's
// background goroutine has already finished, since Seek only enqueues work
// and returns immediately. Assumes c.mu is held; releases and reacquires it
// while waiting.
func (c *Coordinator) awaitSeekLocked() {
	for c.seeking {
		c.seekDone.Wait()
	}
}

func (c *Coordinator) doSeek(targetMicros int64) {
	c.mu.Lock()
	src := c.source
	if src == nil {
		c.mu.Unlock()
		return
	}
	if targetMicros < c.trimInMicros {
		targetMicros = c.trimInMicros
	}
	if targetMicros > c.trimOutMicros {
		targetMicros = c.trimOutMicros
	}

	targetIdx := sampleIndexAtOrAfter(src, targetMicros)
	kfIdx := sample.LocateKeyframe(src, targetIdx)
	if !src.Samples[kfIdx].IsSync {
		// Invariant violation: abort this seek without mutating state.
		c.mu.Unlock()
		c.onEvent(Error{Message: "seek: unreachable keyframe", Recoverable: true})
		return
	}

	c.releaseQueueLocked()
	c.seekVersion++
	version := c.seekVersion
	wasPlaying := c.playing
	c.mu.Unlock()

	if err := c.decoder.Flush(); err != nil {
		c.onEvent(Error{Message: fmt.Sprintf("seek: flush: %v", err), Recoverable: true})
	}

	// Feed keyframe..target: all but the last decoded frame are
	// immediately discarded; the last is rendered.
	var rendered Frame
	for i := kfIdx; i <= targetIdx; i++ {
		s := src.Samples[i]
		frame, err := c.decoder.Decode(s.Data, s.Micros(), version)
		if err != nil {
			c.onEvent(Error{Message: fmt.Sprintf("seek: decode: %v", err), Recoverable: true})
			continue
		}
		if i < targetIdx {
			frame.Release()
			continue
		}
		rendered = frame
	}

	c.mu.Lock()
	if version != c.seekVersion {
		// A newer seek already superseded this one; discard our result.
		c.mu.Unlock()
		rendered.Release()
		return
	}
	c.lastRenderedTimeMicros = rendered.TimestampMicros
	c.lastQueuedSampleIndex = targetIdx
	firstFrame := c.awaitingFirstFrame
	c.awaitingFirstFrame = false
	if wasPlaying {
		c.needsWallClockSync = true
		c.fillQueueLocked(version)
	}
	c.mu.Unlock()

	if firstFrame {
		c.onEvent(FirstFrame{Frame: rendered, Width: src.Width, Height: src.Height})
	}
	c.onEvent(TimeUpdate{Micros: rendered.TimestampMicros})
}

// sampleIndexAtOrAfter returns the index of the first sample whose
// presentation time is ≥ targetMicros, or the last index if none qualify.
func sampleIndexAtOrAfter(src *sample.Source, targetMicros int64) int {
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
	return best
}

// fillQueueLocked feeds the next window of samples into the frame queue
// without rendering them, continuing playback after a mid-playback seek.
// Assumes c.mu is held.
func (c *Coordinator) fillQueueLocked(version uint64) {
	src := c.source
	start := c.lastQueuedSampleIndex + 1
	end := start + config.MaxQueueSize
	if end > len(src.Samples) {
		end = len(src.Samples)
	}
	for i := start; i < end; i++ {
		s := src.Samples[i]
		c.mu.Unlock()
		frame, err := c.decoder.Decode(s.Data, s.Micros(), version)
		c.mu.Lock()
		if err != nil {
			c.onEvent(Error{Message: fmt.Sprintf("prime: decode: %v", err), Recoverable: true})
			continue
		}
		if version != c.seekVersion {
			frame.Release()
			return
		}
		c.frameQueue = append(c.frameQueue, frame)
		c.lastQueuedSampleIndex = i
	}
}

// topUpQueueLocked implements the presentation loop's refill budget: while
// the queue has room and samples remain, decode exactly
// one sample this tick, to smooth decode load across ticks rather than
// bursting a whole window. Assumes c.mu is held.
func (c *Coordinator) topUpQueueLocked(version uint64) {
	src := c.source
	if len(c.frameQueue) >= config.MaxQueueSize {
		return
	}
	i := c.lastQueuedSampleIndex + 1
	if i >= len(src.Samples) {
		return
	}
	s := src.Samples[i]
	c.mu.Unlock()
	frame, err := c.decoder.Decode(s.Data, s.Micros(), version)
	c.mu.Lock()
	if err != nil {
		c.onEvent(Error{Message: fmt.Sprintf("tick: decode: %v", err), Recoverable: true})
		return
	}
	if version != c.seekVersion {
		frame.Release()
		return
	}
	c.frameQueue = append(c.frameQueue, frame)
	c.lastQueuedSampleIndex = i
}

// Play starts (or resumes) playback.
func (c *Coordinator) Play() error {
	c.mu.Lock()
	src := c.source
	if src == nil {
		c.mu.Unlock()
		return engineerr.Newf(engineerr.ClassProtocol, "play", "no source loaded")
	}
	needsSeek := c.lastRenderedTimeMicros < c.trimInMicros ||
		c.lastRenderedTimeMicros > c.trimOutMicros-100_000
	c.mu.Unlock()

	if needsSeek {
		c.Seek(c.trimInMicros)
	}

	// Wait for any seek — the one just requested, or one already in
	// flight from a prior Seek call — to settle before touching the
	// decoder: doSeek's own Flush/Decode calls run with c.mu released,
	// so starting another Flush/Decode sequence here concurrently would
	// interleave two unsynchronized passes over the same decoder.
	c.mu.Lock()
	c.awaitSeekLocked()
	c.mu.Unlock()

	if err := c.decoder.Flush(); err != nil {
		return engineerr.New(engineerr.ClassTransient, "play", err)
	}

	c.mu.Lock()
	c.releaseQueueLocked()
	c.playing = true
	c.playbackMinTimestamp = c.lastRenderedTimeMicros + 1
	c.needsWallClockSync = true
	version := c.seekVersion
	startIdx := sampleIndexAtOrAfter(src, c.lastRenderedTimeMicros)
	c.lastQueuedSampleIndex = startIdx - 1
	c.fillQueueLocked(version)
	c.mu.Unlock()

	c.onEvent(PlaybackState{Playing: true})
	return nil
}

// Pause is idempotent and drain-safe: it awaits decoder.Flush() before
// clearing playing state.
func (c *Coordinator) Pause() {
	c.mu.Lock()
	if !c.playing {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := c.decoder.Flush(); err != nil {
		c.onEvent(Error{Message: fmt.Sprintf("pause: flush: %v", err), Recoverable: true})
	}

	c.mu.Lock()
	c.playing = false
	c.releaseQueueLocked()
	c.mu.Unlock()

	c.onEvent(PlaybackState{Playing: false})
}

// SetTrim updates trim bounds without auto-seeking.
func (c *Coordinator) SetTrim(inMicros, outMicros int64) error {
	if outMicros-inMicros < config.MinTrimDurationMicros {
		return engineerr.New(engineerr.ClassInvariant, "set_trim", engineerr.ErrInvalidTrim)
	}
	c.mu.Lock()
	c.trimInMicros = inMicros
	c.trimOutMicros = outMicros
	c.mu.Unlock()
	return nil
}

// Tick runs one iteration of the presentation loop. Hosts
// call it once per display refresh while playing.
func (c *Coordinator) Tick() {
	c.mu.Lock()
	if !c.playing || c.source == nil {
		c.mu.Unlock()
		return
	}
	if c.needsWallClockSync {
		idx := firstQueuedAtOrAfter(c.frameQueue, c.playbackMinTimestamp)
		if idx < 0 {
			c.mu.Unlock()
			return
		}
		c.playbackStartWall = c.clock.Now()
		c.playbackStartMicros = c.frameQueue[idx].TimestampMicros
		c.needsWallClockSync = false
	}

	targetMicros := c.playbackStartMicros + c.clock.Now().Sub(c.playbackStartWall).Microseconds()
	if targetMicros >= c.trimOutMicros {
		c.mu.Unlock()
		c.Pause()
		return
	}
	if c.seeking {
		c.mu.Unlock()
		return
	}

	version := c.seekVersion
	c.topUpQueueLocked(version)

	best := -1
	for i, f := range c.frameQueue {
		if f.TimestampMicros <= targetMicros {
			best = i
		} else {
			break
		}
	}
	var toRender *Frame
	if best >= 0 {
		for i := 0; i < best; i++ {
			c.frameQueue[i].Release()
		}
		rest := append([]Frame(nil), c.frameQueue[best+1:]...)
		bf := c.frameQueue[best]
		if targetMicros-bf.TimestampMicros > config.MaxFrameLagMicros {
			bf.Release()
		} else {
			toRender = &bf
		}
		c.frameQueue = rest
	}

	eof := c.lastQueuedSampleIndex >= len(c.source.Samples)-1 && len(c.frameQueue) == 0
	c.mu.Unlock()

	if toRender != nil {
		c.mu.Lock()
		c.lastRenderedTimeMicros = toRender.TimestampMicros
		c.mu.Unlock()
		c.onEvent(TimeUpdate{Micros: toRender.TimestampMicros})
	}
	if eof {
		c.Pause()
	}
}

func firstQueuedAtOrAfter(queue []Frame, minMicros int64) int {
	for i, f := range queue {
		if f.TimestampMicros >= minMicros {
			return i
		}
	}
	return -1
}

// Close releases decoder resources.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.releaseQueueLocked()
	c.mu.Unlock()
	c.decoder.Close()
}

// WaitIdle polls until no seek is in flight or timeout elapses, reporting
// which happened. Seeking runs on its own goroutine (so bursts of seeks
// coalesce), so tests observing its end state need a way to wait for it
// to settle.
func (c *Coordinator) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		c.mu.Lock()
		idle := !c.seeking
		c.mu.Unlock()
		if idle {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}
