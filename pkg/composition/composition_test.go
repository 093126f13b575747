package composition

import (
	"testing"

	"github.com/stretchr/testify/require"

	"videoengine/internal/engineerr"
	"videoengine/pkg/sample"
)

func newTestComposition(t *testing.T) (*Composition, *sample.Source) {
	t.Helper()
	store := sample.NewStore()
	src := &sample.Source{
		ID:             "src1",
		Samples:        []sample.Sample{{CTS: 0, Timescale: 1000, IsSync: true}},
		KeyframeIndex:  []int{0},
		DurationMicros: 10_000_000,
	}
	require.NoError(t, store.Add(src))

	changes := 0
	comp := New(Config{Width: 1920, Height: 1080, FrameRate: 30}, store, func() { changes++ })
	return comp, src
}

func TestAddClipRejectsOverlapOnVideoTrack(t *testing.T) {
	comp, _ := newTestComposition(t)
	track := comp.CreateTrack(KindVideo, "v1")

	_, err := comp.AddClip(track.ID, ClipConfig{SourceID: "src1", StartMicros: 0, TrimInMicros: 0, TrimOutMicros: 2_000_000})
	require.NoError(t, err)

	_, err = comp.AddClip(track.ID, ClipConfig{SourceID: "src1", StartMicros: 1_000_000, TrimInMicros: 0, TrimOutMicros: 2_000_000})
	require.ErrorIs(t, err, engineerr.ErrOverlap)
}

func TestAddClipAllowsOverlapOnAudioTrack(t *testing.T) {
	comp, _ := newTestComposition(t)
	track := comp.CreateTrack(KindAudio, "a1")

	_, err := comp.AddClip(track.ID, ClipConfig{SourceID: "src1", StartMicros: 0, TrimInMicros: 0, TrimOutMicros: 2_000_000})
	require.NoError(t, err)

	_, err = comp.AddClip(track.ID, ClipConfig{SourceID: "src1", StartMicros: 1_000_000, TrimInMicros: 0, TrimOutMicros: 2_000_000})
	require.NoError(t, err)
}

func TestAddClipRejectsInvalidTrim(t *testing.T) {
	comp, _ := newTestComposition(t)
	track := comp.CreateTrack(KindVideo, "v1")

	_, err := comp.AddClip(track.ID, ClipConfig{SourceID: "src1", StartMicros: 0, TrimInMicros: 0, TrimOutMicros: 50_000})
	require.ErrorIs(t, err, engineerr.ErrInvalidTrim)
}

func TestMoveClipRefusesCrossingOnVideoTrack(t *testing.T) {
	comp, _ := newTestComposition(t)
	track := comp.CreateTrack(KindVideo, "v1")

	a, err := comp.AddClip(track.ID, ClipConfig{SourceID: "src1", StartMicros: 0, TrimInMicros: 0, TrimOutMicros: 2_000_000})
	require.NoError(t, err)
	_, err = comp.AddClip(track.ID, ClipConfig{SourceID: "src1", StartMicros: 3_000_000, TrimInMicros: 0, TrimOutMicros: 2_000_000})
	require.NoError(t, err)

	err = comp.MoveClip(a.ID, 2_500_000)
	require.ErrorIs(t, err, engineerr.ErrOverlap)
}

func TestMoveClipWithLinkedRejectsBothOnCollision(t *testing.T) {
	comp, _ := newTestComposition(t)
	vt := comp.CreateTrack(KindVideo, "v1")
	at := comp.CreateTrack(KindAudio, "a1")

	video, audio, err := comp.AddVideoClipWithAudio(vt.ID, at.ID, ClipConfig{
		SourceID: "src1", StartMicros: 0, TrimInMicros: 0, TrimOutMicros: 2_000_000,
	})
	require.NoError(t, err)
	require.Equal(t, video.LinkID, audio.LinkID)
	require.NotEmpty(t, video.LinkID)

	// Put another audio clip at the audio peer's destination.
	_, err = comp.AddClip(at.ID, ClipConfig{SourceID: "src1", StartMicros: 5_000_000, TrimInMicros: 0, TrimOutMicros: 2_000_000})
	require.NoError(t, err)

	// Audio tracks allow overlap, so block via a video-track collision instead:
	// move the video clip onto territory occupied by a third video clip.
	_, err = comp.AddClip(vt.ID, ClipConfig{SourceID: "src1", StartMicros: 5_000_000, TrimInMicros: 0, TrimOutMicros: 2_000_000})
	require.NoError(t, err)

	beforeStart := video.StartMicros
	err = comp.MoveClipWithLinked(video.ID, 5_000_000)
	require.ErrorIs(t, err, engineerr.ErrOverlap)
	require.Equal(t, beforeStart, video.StartMicros, "rejected move must not mutate the clip")
}

func TestMoveClipWithLinkedAppliesSameDeltaToPeer(t *testing.T) {
	comp, _ := newTestComposition(t)
	vt := comp.CreateTrack(KindVideo, "v1")
	at := comp.CreateTrack(KindAudio, "a1")

	video, audio, err := comp.AddVideoClipWithAudio(vt.ID, at.ID, ClipConfig{
		SourceID: "src1", StartMicros: 1_000_000, TrimInMicros: 0, TrimOutMicros: 2_000_000,
	})
	require.NoError(t, err)

	require.NoError(t, comp.MoveClipWithLinked(video.ID, 2_000_000))
	require.Equal(t, int64(2_000_000), video.StartMicros)
	require.Equal(t, int64(2_000_000), audio.StartMicros)
}

func TestUnlinkClearsBothPeers(t *testing.T) {
	comp, _ := newTestComposition(t)
	vt := comp.CreateTrack(KindVideo, "v1")
	at := comp.CreateTrack(KindAudio, "a1")

	video, audio, err := comp.AddVideoClipWithAudio(vt.ID, at.ID, ClipConfig{
		SourceID: "src1", StartMicros: 0, TrimInMicros: 0, TrimOutMicros: 2_000_000,
	})
	require.NoError(t, err)

	require.NoError(t, comp.Unlink(video.ID))
	require.Empty(t, video.LinkID)
	require.Empty(t, audio.LinkID)
}

func TestTrimStartPropagatesToLinkedPeer(t *testing.T) {
	comp, _ := newTestComposition(t)
	vt := comp.CreateTrack(KindVideo, "v1")
	at := comp.CreateTrack(KindAudio, "a1")

	video, audio, err := comp.AddVideoClipWithAudio(vt.ID, at.ID, ClipConfig{
		SourceID: "src1", StartMicros: 0, TrimInMicros: 1_000_000, TrimOutMicros: 5_000_000,
	})
	require.NoError(t, err)

	require.NoError(t, comp.TrimStart(video.ID, 2_000_000))
	require.Equal(t, int64(2_000_000), video.TrimInMicros)
	require.Equal(t, int64(2_000_000), audio.TrimInMicros)
}

func TestFindGapReturnsFirstFreeInterval(t *testing.T) {
	comp, _ := newTestComposition(t)
	track := comp.CreateTrack(KindVideo, "v1")

	_, err := comp.AddClip(track.ID, ClipConfig{SourceID: "src1", StartMicros: 0, TrimInMicros: 0, TrimOutMicros: 2_000_000})
	require.NoError(t, err)

	gap, err := comp.FindGap(track.ID, 1_000_000, 0)
	require.NoError(t, err)
	require.Equal(t, int64(2_000_000), gap)
}

func TestRemoveSourceFailsWhileReferenced(t *testing.T) {
	comp, _ := newTestComposition(t)
	track := comp.CreateTrack(KindVideo, "v1")
	_, err := comp.AddClip(track.ID, ClipConfig{SourceID: "src1", StartMicros: 0, TrimInMicros: 0, TrimOutMicros: 2_000_000})
	require.NoError(t, err)

	err = comp.RemoveSource("src1")
	require.ErrorIs(t, err, engineerr.ErrSourceInUse)
}

func TestActiveClipsRespectsMuteAndSolo(t *testing.T) {
	comp, _ := newTestComposition(t)
	t1 := comp.CreateTrack(KindVideo, "v1")
	t2 := comp.CreateTrack(KindVideo, "v2")

	_, err := comp.AddClip(t1.ID, ClipConfig{SourceID: "src1", StartMicros: 0, TrimInMicros: 0, TrimOutMicros: 2_000_000})
	require.NoError(t, err)
	_, err = comp.AddClip(t2.ID, ClipConfig{SourceID: "src1", StartMicros: 0, TrimInMicros: 0, TrimOutMicros: 2_000_000})
	require.NoError(t, err)

	active := comp.ActiveClips(1_000_000)
	require.Len(t, active, 2)

	t2.Solo = true
	active = comp.ActiveClips(1_000_000)
	require.Len(t, active, 1)
	require.Equal(t, t2.ID, active[0].Track.ID)
}

func TestDurationMicrosIsMaxClipEnd(t *testing.T) {
	comp, _ := newTestComposition(t)
	track := comp.CreateTrack(KindVideo, "v1")
	_, err := comp.AddClip(track.ID, ClipConfig{SourceID: "src1", StartMicros: 3_000_000, TrimInMicros: 0, TrimOutMicros: 2_000_000})
	require.NoError(t, err)

	require.Equal(t, int64(5_000_000), comp.DurationMicros())
}
