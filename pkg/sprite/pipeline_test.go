package sprite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"videoengine/internal/config"
	"videoengine/pkg/playback"
	"videoengine/pkg/sample"
)

func testSource(t *testing.T, store *sample.Store) *sample.Source {
	t.Helper()
	var samples []sample.Sample
	for i := 0; i < 100; i++ {
		samples = append(samples, sample.Sample{
			CTS: int64(i) * 100_000, Timescale: 1_000_000, IsSync: i%10 == 0,
		})
	}
	var keyframes []int
	for i, s := range samples {
		if s.IsSync {
			keyframes = append(keyframes, i)
		}
	}
	src := &sample.Source{
		ID: "src1", Samples: samples, KeyframeIndex: keyframes,
		DurationMicros: 10_000_000,
	}
	require.NoError(t, store.Add(src))
	return src
}

func TestPipelineGeneratesSheetsAndTracksRanges(t *testing.T) {
	store := sample.NewStore()
	testSource(t, store)
	decoder := playback.NewFakeDecoder()
	cache := NewCache(1 << 20)

	var events []Event
	p := NewPipeline(store, decoder, cache, config.SheetGeometry{TileWidth: 16, TileHeight: 9, Columns: 2, Rows: 2}, 1_000_000, func(e Event) {
		events = append(events, e)
	})

	err := p.Generate("src1", 0, 5_000_000, 1_000_000)
	require.NoError(t, err)

	var sheets int
	for _, e := range events {
		if _, ok := e.(SheetReady); ok {
			sheets++
		}
	}
	require.GreaterOrEqual(t, sheets, 1)
	require.True(t, p.Covers("src1", 0, 5_000_000))
}

func TestPipelineSkipsAlreadyGeneratedRanges(t *testing.T) {
	store := sample.NewStore()
	testSource(t, store)
	decoder := playback.NewFakeDecoder()
	cache := NewCache(1 << 20)
	p := NewPipeline(store, decoder, cache, config.SheetGeometry{TileWidth: 16, TileHeight: 9, Columns: 10, Rows: 10}, 1_000_000, nil)

	require.NoError(t, p.Generate("src1", 0, 2_000_000, 1_000_000))
	firstCount := decoder.DecodeCount()

	require.NoError(t, p.Generate("src1", 0, 2_000_000, 1_000_000))
	require.Equal(t, firstCount, decoder.DecodeCount())
}

func TestSetVisibleRangeCancelsSupersededRun(t *testing.T) {
	store := sample.NewStore()
	testSource(t, store)
	decoder := playback.NewFakeDecoder()
	decoder.Gate = make(chan struct{})
	cache := NewCache(1 << 20)

	p := NewPipeline(store, decoder, cache, config.SheetGeometry{TileWidth: 16, TileHeight: 9, Columns: 10, Rows: 10}, 1_000_000, nil)

	p.SetVisibleRange("src1", 0, 1_000_000, nil)
	time.Sleep(10 * time.Millisecond) // let the first run block on Gate
	p.SetVisibleRange("src1", 5_000_000, 6_000_000, nil)

	close(decoder.Gate)
	time.Sleep(50 * time.Millisecond)

	require.True(t, p.Covers("src1", 3_000_000, 8_000_000))
}
