package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"videoengine/pkg/sample"
)

func newTestSource(n int) *sample.Source {
	samples := make([]sample.Sample, n)
	var keyframes []int
	for i := 0; i < n; i++ {
		isSync := i%10 == 0
		samples[i] = sample.Sample{CTS: int64(i * 33_333), Timescale: 1_000_000, IsSync: isSync, Data: []byte{byte(i)}}
		if isSync {
			keyframes = append(keyframes, i)
		}
	}
	return &sample.Source{
		ID:             "src1",
		Samples:        samples,
		KeyframeIndex:  keyframes,
		Width:          1920,
		Height:         1080,
		DurationMicros: samples[n-1].Micros(),
	}
}

func newTestCoordinator(t *testing.T) (*Coordinator, *FakeDecoder, *FakeClock, *[]Event) {
	t.Helper()
	decoder := NewFakeDecoder()
	clock := NewFakeClock(time.Unix(0, 0))
	var events []Event
	coord := NewCoordinator(decoder, clock, func(e Event) { events = append(events, e) })
	return coord, decoder, clock, &events
}

func TestLoadSourceEmitsReadyAndRendersFirstFrame(t *testing.T) {
	coord, _, _, events := newTestCoordinator(t)
	src := newTestSource(90)

	require.NoError(t, coord.LoadSource(src))
	require.True(t, coord.WaitIdle(time.Second))

	require.IsType(t, Ready{}, (*events)[0])
	ready := (*events)[0].(Ready)
	require.Equal(t, src.DurationMicros, ready.DurationMicros)

	foundFirstFrame := false
	for _, e := range *events {
		if ff, ok := e.(FirstFrame); ok {
			require.Equal(t, src.Width, ff.Width)
			require.Equal(t, src.Height, ff.Height)
			require.Equal(t, int64(0), ff.Frame.TimestampMicros)
			foundFirstFrame = true
		}
	}
	require.True(t, foundFirstFrame, "expected a FirstFrame event from the initial load seek")

	foundTimeUpdate := false
	for _, e := range *events {
		if tu, ok := e.(TimeUpdate); ok {
			require.Equal(t, int64(0), tu.Micros)
			foundTimeUpdate = true
		}
	}
	require.True(t, foundTimeUpdate, "expected an initial TimeUpdate at position 0")
}

func TestSeekClampsToTrimBounds(t *testing.T) {
	coord, _, _, events := newTestCoordinator(t)
	src := newTestSource(300) // 10s @ 30fps
	require.NoError(t, coord.LoadSource(src))
	require.True(t, coord.WaitIdle(time.Second))
	require.NoError(t, coord.SetTrim(1_000_000, 5_000_000))

	*events = nil
	coord.Seek(9_000_000)
	require.True(t, coord.WaitIdle(time.Second))

	var last TimeUpdate
	for _, e := range *events {
		if tu, ok := e.(TimeUpdate); ok {
			last = tu
		}
	}
	require.InDelta(t, 5_000_000, last.Micros, 33_334)
}

func TestSeekCoalescesRapidCalls(t *testing.T) {
	coord, decoder, _, events := newTestCoordinator(t)
	src := newTestSource(300)
	decoder.Gate = make(chan struct{})

	// Unblock every Decode call so LoadSource's own initial seek completes.
	stopFeeder := make(chan struct{})
	defer close(stopFeeder)
	go func() {
		for {
			select {
			case decoder.Gate <- struct{}{}:
			case <-stopFeeder:
				return
			}
		}
	}()
	require.NoError(t, coord.LoadSource(src))
	require.True(t, coord.WaitIdle(time.Second))
	decoder.Gate = nil

	*events = nil

	// Re-gate decode so the first Seek's work stalls long enough for two
	// more Seek calls to arrive and coalesce into pendingSeekMicros.
	gate := make(chan struct{})
	decoder.Gate = gate

	coord.Seek(10_000_000 % src.DurationMicros)
	coord.Seek(1_000_000)
	coord.Seek(2_500_000)

	go func() {
		for i := 0; i < 2000; i++ {
			select {
			case gate <- struct{}{}:
			case <-time.After(time.Second):
				return
			}
		}
	}()

	require.True(t, coord.WaitIdle(2*time.Second))

	var lastTimeUpdate *TimeUpdate
	for _, e := range *events {
		if tu, ok := e.(TimeUpdate); ok {
			cp := tu
			lastTimeUpdate = &cp
		}
	}
	require.NotNil(t, lastTimeUpdate)
	require.InDelta(t, 2_500_000, lastTimeUpdate.Micros, 33_334)
}

func TestPauseIsIdempotentAndDrainSafe(t *testing.T) {
	coord, decoder, _, events := newTestCoordinator(t)
	src := newTestSource(90)
	require.NoError(t, coord.LoadSource(src))
	require.True(t, coord.WaitIdle(time.Second))

	require.NoError(t, coord.Play())
	coord.Pause()
	coord.Pause() // idempotent: must not double-flush or emit twice

	flushesAfterFirstPause := decoder.FlushCount()
	coord.Pause()
	require.Equal(t, flushesAfterFirstPause, decoder.FlushCount())

	playbackStates := 0
	for _, e := range *events {
		if ps, ok := e.(PlaybackState); ok && !ps.Playing {
			playbackStates++
		}
	}
	require.Equal(t, 1, playbackStates)
}

func TestPlayStartDriftWithinOneFrame(t *testing.T) {
	coord, _, clock, events := newTestCoordinator(t)
	src := newTestSource(300) // ~10s @ 30fps
	require.NoError(t, coord.LoadSource(src))
	require.True(t, coord.WaitIdle(time.Second))

	require.NoError(t, coord.Play())
	coord.Tick() // anchors wall clock to the first renderable frame

	// Drive the presentation loop at a steady ~60Hz refresh rate rather
	// than jumping the clock in one step: the refill budget decodes one
	// sample per tick, so ticks must keep pace with
	// the wall clock for the queue to hold the frame the target time needs.
	for i := 0; i < 70; i++ {
		clock.Advance(16_667 * time.Microsecond)
		coord.Tick()
	}

	var last TimeUpdate
	for _, e := range *events {
		if tu, ok := e.(TimeUpdate); ok {
			last = tu
		}
	}
	require.InDelta(t, 1_200_023, last.Micros, 33_334)
}

func TestSetTrimRejectsTooShortRange(t *testing.T) {
	coord, _, _, _ := newTestCoordinator(t)
	err := coord.SetTrim(0, 50_000)
	require.Error(t, err)
}

func TestFrameReleaseIsIdempotent(t *testing.T) {
	f := Frame{Data: []byte{1, 2, 3}}
	f.Release()
	f.Release()
	require.True(t, f.Released)
	require.Nil(t, f.Data)
}
