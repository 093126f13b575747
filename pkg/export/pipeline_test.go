package export

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"videoengine/pkg/composition"
	"videoengine/pkg/playback"
	"videoengine/pkg/sample"
)

func newExportTestComposition(t *testing.T) (*composition.Composition, *sample.Store) {
	t.Helper()
	store := sample.NewStore()
	var samples []sample.Sample
	for i := 0; i < 60; i++ {
		samples = append(samples, sample.Sample{CTS: int64(i) * 33_333, Timescale: 1_000_000, IsSync: i == 0})
	}
	src := &sample.Source{
		ID: "src1", Samples: samples, KeyframeIndex: []int{0},
		DurationMicros: 2_000_000, Width: 4, Height: 4,
	}
	require.NoError(t, store.Add(src))

	comp := composition.New(composition.Config{Width: 4, Height: 4, FrameRate: 30}, store, nil)
	track := comp.CreateTrack(composition.KindVideo, "v1")
	_, err := comp.AddClip(track.ID, composition.ClipConfig{
		SourceID: "src1", StartMicros: 0, TrimInMicros: 0, TrimOutMicros: 1_000_000, Opacity: 1, Volume: 1,
	})
	require.NoError(t, err)
	return comp, store
}

func TestExportYieldsExactFrameCountAtExactTimestamps(t *testing.T) {
	comp, store := newExportTestComposition(t)
	p := NewPipeline(store, func() playback.Decoder { return playback.NewFakeDecoder() }, nil)
	encoder := NewFakeEncoder()

	err := p.Run(context.Background(), comp, composition.ExportRange{}, encoder, Config{
		Width: 4, Height: 4, FrameRate: 30,
	}, nil)
	require.NoError(t, err)

	frames := encoder.VideoFrames()
	require.Len(t, frames, 30)
	for k, f := range frames {
		require.Equal(t, int64(k)*33_333, f.TimestampMicros)
	}
	require.True(t, encoder.Finalized())
}

func TestExportPicksNearestPrecedingSampleAtMismatchedFrameRate(t *testing.T) {
	comp, store := newExportTestComposition(t)
	decoder := playback.NewFakeDecoder()
	p := NewPipeline(store, func() playback.Decoder { return decoder }, nil)
	encoder := NewFakeEncoder()

	// Source samples land every 33_333µs (30fps); output frames land every
	// 41_666µs (24fps), so most output frames fall strictly between two
	// source samples. The last output frame's source time is 958_318µs:
	// the sample at-or-before it is index 28 (933_324µs), the sample
	// at-or-after it is index 29 (966_657µs). Picking at-or-after would
	// decode one extra sample (30 total instead of 29) and would source
	// that last frame from later than the composition ever asked for.
	err := p.Run(context.Background(), comp, composition.ExportRange{}, encoder, Config{
		Width: 4, Height: 4, FrameRate: 24,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 29, decoder.DecodeCount())
}

func TestExportCancelledStopsWithoutFinalizing(t *testing.T) {
	comp, store := newExportTestComposition(t)
	p := NewPipeline(store, func() playback.Decoder { return playback.NewFakeDecoder() }, nil)
	encoder := NewFakeEncoder()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var events []Event
	p.onEvent = func(e Event) { events = append(events, e) }

	err := p.Run(ctx, comp, composition.ExportRange{}, encoder, Config{Width: 4, Height: 4, FrameRate: 30}, nil)
	require.NoError(t, err)
	require.False(t, encoder.Finalized())

	var cancelled bool
	for _, e := range events {
		if _, ok := e.(Cancelled); ok {
			cancelled = true
		}
	}
	require.True(t, cancelled)
}
