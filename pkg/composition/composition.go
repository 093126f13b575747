// Package composition is the Composition Model: sources,
// tracks, clips, linked video/audio pairs, and the duration/collision/
// movement algebra over them. Grounded on pkg/monitor/monitor.go's Manager
// (a map-of-entities guarded by a single mutex, with each mutating method
// locking for its whole body), generalized from a map of independent
// monitors to a single composition's tracks and clips.
package composition

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"videoengine/internal/config"
	"videoengine/internal/engineerr"
	"videoengine/pkg/sample"
)

// TrackKind is the kind of media a Track carries.
type TrackKind string

// Track kinds.
const (
	KindVideo    TrackKind = "video"
	KindAudio    TrackKind = "audio"
	KindSubtitle TrackKind = "subtitle"
)

// Clip is one placement of a source (or, for subtitle tracks, a cue list)
// on a track's timeline.
type Clip struct {
	ID            string
	SourceID      string
	StartMicros   int64
	TrimInMicros  int64
	TrimOutMicros int64
	Opacity       float64 // [0,1]
	Volume        float64 // [0,1]
	LinkID        string  // empty if unlinked
}

// DurationMicros is trim_out - trim_in.
func (c Clip) DurationMicros() int64 { return c.TrimOutMicros - c.TrimInMicros }

// EndMicros is start + duration.
func (c Clip) EndMicros() int64 { return c.StartMicros + c.DurationMicros() }

// TimelineToSource maps a timeline time (µs) to the equivalent source time,
// timeline_to_source(t) = trim_in + (t - start).
func (c Clip) TimelineToSource(t int64) int64 {
	return c.TrimInMicros + (t - c.StartMicros)
}

// SubtitleCue is one subtitle entry belonging to a subtitle-track clip.
// The compositor composites "the active cues", but a subtitle track's
// clip SourceID indexes into Composition.cues instead of the
// sample.Store, since cues have no decodable media of their own.
type SubtitleCue struct {
	StartMicros int64
	EndMicros   int64
	Text        string
	Style       string
}

// Track is an ordered, kind-homogeneous sequence of clips.
type Track struct {
	ID     string
	Kind   TrackKind
	Label  string
	Clips  []*Clip // kept sorted by StartMicros
	Muted  bool
	Solo   bool
	Locked bool
}

func (t *Track) clipByID(id string) int {
	for i, c := range t.Clips {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (t *Track) sortClips() {
	sort.Slice(t.Clips, func(i, j int) bool { return t.Clips[i].StartMicros < t.Clips[j].StartMicros })
}

// overlaps reports whether a clip spanning [start, end) would overlap an
// existing clip on t, other than the clip identified by excludeID.
func (t *Track) overlaps(start, end int64, excludeID string) bool {
	for _, c := range t.Clips {
		if c.ID == excludeID {
			continue
		}
		if start < c.EndMicros() && c.StartMicros < end {
			return true
		}
	}
	return false
}

// Config is composition-wide render geometry and frame rate.
type Config struct {
	Width     int
	Height    int
	FrameRate float64
}

// Composition is the full editable timeline: sources, tracks, clips, links
// and subtitle cue lists. All operations are synchronous over in-memory
// structures, guarded by a single mutex, mirroring pkg/monitor's Manager idiom.
type Composition struct {
	RenderConfig Config

	mu         sync.Mutex
	sources    *sample.Store
	tracks     []*Track
	tracksByID map[string]*Track
	cues       map[string][]SubtitleCue // keyed by a clip's SourceID for subtitle tracks

	// onChanged is called (outside the lock) after every successful
	// mutation, collapsing each edit into a single CompositionChanged event.
	onChanged func()
}

// New returns an empty Composition backed by sources.
func New(cfg Config, sources *sample.Store, onChanged func()) *Composition {
	return &Composition{
		RenderConfig: cfg,
		sources:      sources,
		tracksByID:   map[string]*Track{},
		cues:         map[string][]SubtitleCue{},
		onChanged:    onChanged,
	}
}

func (c *Composition) notify() {
	if c.onChanged != nil {
		c.onChanged()
	}
}

// track returns the track with the given ID, assuming c.mu is held.
func (c *Composition) track(id string) (*Track, error) {
	t, ok := c.tracksByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: track %s", engineerr.ErrNotFound, id)
	}
	return t, nil
}

// findClip returns the track and clip for a clip ID, assuming c.mu is held.
func (c *Composition) findClip(id string) (*Track, *Clip, error) {
	for _, t := range c.tracks {
		if i := t.clipByID(id); i >= 0 {
			return t, t.Clips[i], nil
		}
	}
	return nil, nil, fmt.Errorf("%w: clip %s", engineerr.ErrNotFound, id)
}

// CreateTrack adds a new track of the given kind and returns it.
func (c *Composition) CreateTrack(kind TrackKind, label string) *Track {
	c.mu.Lock()
	t := &Track{ID: uuid.NewString(), Kind: kind, Label: label}
	c.tracks = append(c.tracks, t)
	c.tracksByID[t.ID] = t
	c.mu.Unlock()

	c.notify()
	return t
}

// RemoveTrack deletes a track and every clip on it.
func (c *Composition) RemoveTrack(id string) error {
	c.mu.Lock()
	if _, ok := c.tracksByID[id]; !ok {
		c.mu.Unlock()
		return fmt.Errorf("remove_track: %w: %s", engineerr.ErrNotFound, id)
	}
	delete(c.tracksByID, id)
	for i, t := range c.tracks {
		if t.ID == id {
			c.tracks = append(c.tracks[:i], c.tracks[i+1:]...)
			break
		}
	}
	c.mu.Unlock()

	c.notify()
	return nil
}

// AddSource registers src in the backing sample.Store.
func (c *Composition) AddSource(src *sample.Source) error {
	if err := c.sources.Add(src); err != nil {
		return fmt.Errorf("add_source: %w", err)
	}
	c.notify()
	return nil
}

// RemoveSource removes a source, failing with engineerr.ErrSourceInUse if
// any clip still references it.
func (c *Composition) RemoveSource(id string) error {
	c.mu.Lock()
	for _, t := range c.tracks {
		for _, clip := range t.Clips {
			if clip.SourceID == id {
				c.mu.Unlock()
				return fmt.Errorf("remove_source: %w: %s", engineerr.ErrSourceInUse, id)
			}
		}
	}
	c.mu.Unlock()

	c.sources.Remove(id)
	c.notify()
	return nil
}

// ClipConfig is the set of fields a caller supplies to AddClip.
type ClipConfig struct {
	SourceID      string
	StartMicros   int64
	TrimInMicros  int64
	TrimOutMicros int64
	Opacity       float64
	Volume        float64
}

func (cfg ClipConfig) validateTrim(sourceDuration int64) error {
	if cfg.TrimOutMicros <= cfg.TrimInMicros {
		return engineerr.ErrInvalidTrim
	}
	if cfg.TrimInMicros < 0 || cfg.TrimOutMicros > sourceDuration {
		return engineerr.ErrInvalidTrim
	}
	if cfg.TrimOutMicros-cfg.TrimInMicros < config.MinTrimDurationMicros {
		return engineerr.ErrInvalidTrim
	}
	if cfg.StartMicros < 0 {
		return engineerr.ErrInvalidTrim
	}
	return nil
}

// AddClip places a new clip on track, validating trim and (for video/
// subtitle tracks) non-overlap invariants.
func (c *Composition) AddClip(trackID string, cfg ClipConfig) (*Clip, error) {
	c.mu.Lock()

	t, err := c.track(trackID)
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("add_clip: %w", err)
	}

	src, err := c.sources.Get(cfg.SourceID)
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("add_clip: %w", err)
	}

	if err := cfg.validateTrim(src.DurationMicros); err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("add_clip: %w", err)
	}

	end := cfg.StartMicros + (cfg.TrimOutMicros - cfg.TrimInMicros)
	if t.Kind != KindAudio && t.overlaps(cfg.StartMicros, end, "") {
		c.mu.Unlock()
		return nil, fmt.Errorf("add_clip: %w", engineerr.ErrOverlap)
	}

	clip := &Clip{
		ID:            uuid.NewString(),
		SourceID:      cfg.SourceID,
		StartMicros:   cfg.StartMicros,
		TrimInMicros:  cfg.TrimInMicros,
		TrimOutMicros: cfg.TrimOutMicros,
		Opacity:       cfg.Opacity,
		Volume:        cfg.Volume,
	}
	t.Clips = append(t.Clips, clip)
	t.sortClips()

	c.mu.Unlock()
	c.notify()
	return clip, nil
}

// AddVideoClipWithAudio atomically creates two linked clips sharing a
// link_id: one on videoTrackID, one on the nearest compatible audio track
// (audioTrackID). Both use the same source, start, and trim bounds.
func (c *Composition) AddVideoClipWithAudio(videoTrackID, audioTrackID string, cfg ClipConfig) (video, audio *Clip, err error) {
	c.mu.Lock()

	vt, err := c.track(videoTrackID)
	if err != nil {
		c.mu.Unlock()
		return nil, nil, fmt.Errorf("add_video_clip_with_audio: %w", err)
	}
	at, err := c.track(audioTrackID)
	if err != nil {
		c.mu.Unlock()
		return nil, nil, fmt.Errorf("add_video_clip_with_audio: %w", err)
	}
	if vt.Kind != KindVideo || at.Kind != KindAudio {
		c.mu.Unlock()
		return nil, nil, fmt.Errorf("add_video_clip_with_audio: %w", engineerr.ErrTrackKindMismatch)
	}

	src, err := c.sources.Get(cfg.SourceID)
	if err != nil {
		c.mu.Unlock()
		return nil, nil, fmt.Errorf("add_video_clip_with_audio: %w", err)
	}
	if err := cfg.validateTrim(src.DurationMicros); err != nil {
		c.mu.Unlock()
		return nil, nil, fmt.Errorf("add_video_clip_with_audio: %w", err)
	}

	end := cfg.StartMicros + (cfg.TrimOutMicros - cfg.TrimInMicros)
	if vt.overlaps(cfg.StartMicros, end, "") {
		c.mu.Unlock()
		return nil, nil, fmt.Errorf("add_video_clip_with_audio: %w", engineerr.ErrOverlap)
	}

	linkID := uuid.NewString()
	video = &Clip{
		ID: uuid.NewString(), SourceID: cfg.SourceID, StartMicros: cfg.StartMicros,
		TrimInMicros: cfg.TrimInMicros, TrimOutMicros: cfg.TrimOutMicros,
		Opacity: cfg.Opacity, Volume: cfg.Volume, LinkID: linkID,
	}
	audio = &Clip{
		ID: uuid.NewString(), SourceID: cfg.SourceID, StartMicros: cfg.StartMicros,
		TrimInMicros: cfg.TrimInMicros, TrimOutMicros: cfg.TrimOutMicros,
		Opacity: 1, Volume: cfg.Volume, LinkID: linkID,
	}

	vt.Clips = append(vt.Clips, video)
	vt.sortClips()
	at.Clips = append(at.Clips, audio)
	at.sortClips()

	c.mu.Unlock()
	c.notify()
	return video, audio, nil
}

// moveClip validates and applies a move of clip to newStart on its own
// track, assuming the owning Composition's mu is held. A negative newStart
// is rejected with ErrInvalidTrim. Returns the previous start on success so
// the caller can roll back a linked move.
func (t *Track) moveClip(clip *Clip, newStart int64) (prevStart int64, err error) {
	if newStart < 0 {
		return 0, engineerr.ErrInvalidTrim
	}
	duration := clip.DurationMicros()
	if t.Kind != KindAudio && t.overlaps(newStart, newStart+duration, clip.ID) {
		return 0, engineerr.ErrOverlap
	}
	prevStart = clip.StartMicros
	clip.StartMicros = newStart
	t.sortClips()
	return prevStart, nil
}

// MoveClip moves a single clip to newStart, clamped to
// >= 0; on video/subtitle tracks it refuses to cross another clip.
func (c *Composition) MoveClip(id string, newStart int64) error {
	c.mu.Lock()
	t, clip, err := c.findClip(id)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("move_clip: %w", err)
	}
	if newStart < 0 {
		newStart = 0
	}
	if _, err := t.moveClip(clip, newStart); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("move_clip: %w", err)
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

// MoveClipWithLinked applies the same start delta to id and its linked
// peer. If either move would collide, both moves are rejected.
func (c *Composition) MoveClipWithLinked(id string, newStart int64) error {
	c.mu.Lock()

	t, clip, err := c.findClip(id)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("move_clip_with_linked: %w", err)
	}

	delta := newStart - clip.StartMicros
	if clip.LinkID == "" {
		if _, err := t.moveClip(clip, newStart); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("move_clip_with_linked: %w", err)
		}
		c.mu.Unlock()
		c.notify()
		return nil
	}

	peerTrack, peer, err := c.findLinkedPeer(clip.LinkID, id)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("move_clip_with_linked: %w", err)
	}

	prevClipStart, err := t.moveClip(clip, newStart)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("move_clip_with_linked: %w", err)
	}
	if _, err := peerTrack.moveClip(peer, peer.StartMicros+delta); err != nil {
		// Roll back the first move: both moves are rejected together.
		clip.StartMicros = prevClipStart
		t.sortClips()
		c.mu.Unlock()
		return fmt.Errorf("move_clip_with_linked: %w", err)
	}

	c.mu.Unlock()
	c.notify()
	return nil
}

// findLinkedPeer returns the other clip sharing linkID, excluding
// excludeID, assuming c.mu is held.
func (c *Composition) findLinkedPeer(linkID, excludeID string) (*Track, *Clip, error) {
	for _, t := range c.tracks {
		for _, clip := range t.Clips {
			if clip.LinkID == linkID && clip.ID != excludeID {
				return t, clip, nil
			}
		}
	}
	return nil, nil, fmt.Errorf("%w: link %s", engineerr.ErrNotFound, linkID)
}

// MoveClipToTrack moves a clip to a different track of matching kind,
// applying the same collision rule as MoveClip.
func (c *Composition) MoveClipToTrack(id, targetTrackID string, newStart int64) error {
	c.mu.Lock()

	srcTrack, clip, err := c.findClip(id)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("move_clip_to_track: %w", err)
	}
	target, err := c.track(targetTrackID)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("move_clip_to_track: %w", err)
	}
	if target.Kind != srcTrack.Kind {
		c.mu.Unlock()
		return fmt.Errorf("move_clip_to_track: %w", engineerr.ErrTrackKindMismatch)
	}
	if newStart < 0 {
		c.mu.Unlock()
		return fmt.Errorf("move_clip_to_track: %w", engineerr.ErrInvalidTrim)
	}

	duration := clip.DurationMicros()
	if target.Kind != KindAudio && target.overlaps(newStart, newStart+duration, clip.ID) {
		c.mu.Unlock()
		return fmt.Errorf("move_clip_to_track: %w", engineerr.ErrOverlap)
	}

	idx := srcTrack.clipByID(id)
	srcTrack.Clips = append(srcTrack.Clips[:idx], srcTrack.Clips[idx+1:]...)
	clip.StartMicros = newStart
	target.Clips = append(target.Clips, clip)
	target.sortClips()

	c.mu.Unlock()
	c.notify()
	return nil
}

// TrimStart updates a clip's trim_in, keeping the invariant
// 0 <= new_trim_in < trim_out <= source.duration, duration >=
// MIN_TRIM_DURATION. The linked peer's trim_in is shifted by the same
// delta.
func (c *Composition) TrimStart(id string, newTrimIn int64) error {
	return c.trim(id, "trim_start", func(clip *Clip, delta int64) (int64, int64) {
		return newTrimIn, clip.TrimOutMicros
	})
}

// TrimEnd updates a clip's trim_out, mirroring TrimStart.
func (c *Composition) TrimEnd(id string, newTrimOut int64) error {
	return c.trim(id, "trim_end", func(clip *Clip, delta int64) (int64, int64) {
		return clip.TrimInMicros, newTrimOut
	})
}

// trim is the shared implementation for TrimStart/TrimEnd: compute new
// bounds, validate, apply to clip and (mirrored) to its linked peer.
func (c *Composition) trim(id, op string, newBounds func(clip *Clip, delta int64) (trimIn, trimOut int64)) error {
	c.mu.Lock()

	_, clip, err := c.findClip(id)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", op, err)
	}

	src, err := c.sources.Get(clip.SourceID)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", op, err)
	}

	trimIn, trimOut := newBounds(clip, 0)
	if err := (ClipConfig{TrimInMicros: trimIn, TrimOutMicros: trimOut}).validateTrim(src.DurationMicros); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", op, err)
	}

	prevIn, prevOut := clip.TrimInMicros, clip.TrimOutMicros
	deltaIn := trimIn - prevIn
	deltaOut := trimOut - prevOut
	clip.TrimInMicros = trimIn
	clip.TrimOutMicros = trimOut

	if clip.LinkID != "" {
		_, peer, err := c.findLinkedPeer(clip.LinkID, id)
		if err == nil {
			peerSrc, err := c.sources.Get(peer.SourceID)
			if err == nil {
				peerIn := peer.TrimInMicros + deltaIn
				peerOut := peer.TrimOutMicros + deltaOut
				if err := (ClipConfig{TrimInMicros: peerIn, TrimOutMicros: peerOut}).validateTrim(peerSrc.DurationMicros); err == nil {
					peer.TrimInMicros = peerIn
					peer.TrimOutMicros = peerOut
				}
			}
		}
	}

	c.mu.Unlock()
	c.notify()
	return nil
}

// Unlink clears link_id on id and its peer.
func (c *Composition) Unlink(id string) error {
	c.mu.Lock()

	_, clip, err := c.findClip(id)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("unlink: %w", err)
	}
	if clip.LinkID == "" {
		c.mu.Unlock()
		return nil
	}

	_, peer, err := c.findLinkedPeer(clip.LinkID, id)
	if err == nil {
		peer.LinkID = ""
	}
	clip.LinkID = ""

	c.mu.Unlock()
	c.notify()
	return nil
}

// FindGap returns the start time of the first free interval of at least
// durationMicros on track, at or after afterMicros.
func (c *Composition) FindGap(trackID string, durationMicros, afterMicros int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.track(trackID)
	if err != nil {
		return 0, fmt.Errorf("find_gap: %w", err)
	}

	cursor := afterMicros
	if cursor < 0 {
		cursor = 0
	}
	for _, clip := range t.Clips {
		if clip.StartMicros >= cursor+durationMicros {
			break
		}
		if clip.EndMicros() > cursor {
			cursor = clip.EndMicros()
		}
	}
	return cursor, nil
}

// DurationMicros is the composition duration: max over all clips of
// end_µs.
func (c *Composition) DurationMicros() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var max int64
	for _, t := range c.tracks {
		for _, clip := range t.Clips {
			if end := clip.EndMicros(); end > max {
				max = end
			}
		}
	}
	return max
}

// ActiveClip is one clip active at a given timeline time, tagged with its
// owning track for z-ordering.
type ActiveClip struct {
	Track *Track
	Clip  *Clip
}

// ActiveClips returns the active clip set at timeline time t: for each
// track where muted=false (or, when any track is solo'd, for each solo'd
// track instead), the clip with start <= t < end. Ordered by
// track index for video z-ordering / audio-subtitle layering.
func (c *Composition) ActiveClips(t int64) []ActiveClip {
	c.mu.Lock()
	defer c.mu.Unlock()

	anySolo := false
	for _, tr := range c.tracks {
		if tr.Solo {
			anySolo = true
			break
		}
	}

	var out []ActiveClip
	for _, tr := range c.tracks {
		if anySolo && !tr.Solo {
			continue
		}
		if !anySolo && tr.Muted {
			continue
		}
		for _, clip := range tr.Clips {
			if clip.StartMicros <= t && t < clip.EndMicros() {
				out = append(out, ActiveClip{Track: tr, Clip: clip})
				break // tracks never overlap for video/subtitle; audio rarely needs more than one match per instant per clip set
			}
		}
	}
	return out
}

// ActiveCues returns the subtitle cues active at timeline time t, across
// every subtitle track's clips.
func (c *Composition) ActiveCues(t int64) []SubtitleCue {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []SubtitleCue
	for _, tr := range c.tracks {
		if tr.Kind != KindSubtitle || tr.Muted {
			continue
		}
		for _, clip := range tr.Clips {
			if t < clip.StartMicros || t >= clip.EndMicros() {
				continue
			}
			sourceT := clip.TimelineToSource(t)
			for _, cue := range c.cues[clip.SourceID] {
				if cue.StartMicros <= sourceT && sourceT < cue.EndMicros {
					out = append(out, cue)
				}
			}
		}
	}
	return out
}

// SetCues replaces the subtitle cue list referenced by sourceID.
func (c *Composition) SetCues(sourceID string, cues []SubtitleCue) {
	c.mu.Lock()
	c.cues[sourceID] = cues
	c.mu.Unlock()
	c.notify()
}

// Tracks returns a snapshot slice of the composition's tracks.
func (c *Composition) Tracks() []*Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Track, len(c.tracks))
	copy(out, c.tracks)
	return out
}
