package composition

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"videoengine/pkg/sample"
)

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	comp, _ := newTestComposition(t)
	track := comp.CreateTrack(KindVideo, "v1")
	clip, err := comp.AddClip(track.ID, ClipConfig{SourceID: "src1", StartMicros: 0, TrimInMicros: 0, TrimOutMicros: 2_000_000})
	require.NoError(t, err)

	store, err := OpenStore(filepath.Join(t.TempDir(), "projects.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save("demo", comp))

	names, err := store.List()
	require.NoError(t, err)
	require.Equal(t, []string{"demo"}, names)

	loaded, _ := newTestComposition(t)
	dropped, err := store.Load("demo", loaded, loaded.sources)
	require.NoError(t, err)
	require.Empty(t, dropped)

	require.Len(t, loaded.Tracks(), 1)
	require.Len(t, loaded.Tracks()[0].Clips, 1)
	require.Equal(t, clip.SourceID, loaded.Tracks()[0].Clips[0].SourceID)
}

func TestStoreLoadDropsClipsWithMissingSource(t *testing.T) {
	comp, _ := newTestComposition(t)
	track := comp.CreateTrack(KindVideo, "v1")
	_, err := comp.AddClip(track.ID, ClipConfig{SourceID: "src1", StartMicros: 0, TrimInMicros: 0, TrimOutMicros: 2_000_000})
	require.NoError(t, err)

	store, err := OpenStore(filepath.Join(t.TempDir(), "projects.db"))
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Save("demo", comp))

	emptyStore := sample.NewStore()
	loaded := New(Config{Width: 1920, Height: 1080, FrameRate: 30}, emptyStore, func() {})
	dropped, err := store.Load("demo", loaded, emptyStore)
	require.NoError(t, err)
	require.Len(t, dropped, 1)
	require.Empty(t, loaded.Tracks()[0].Clips)
}

func TestStoreLoadUnknownProjectErrors(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "projects.db"))
	require.NoError(t, err)
	defer store.Close()

	comp, _ := newTestComposition(t)
	_, err = store.Load("missing", comp, comp.sources)
	require.Error(t, err)
}
