package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"videoengine/internal/config"
	"videoengine/pkg/composition"
	"videoengine/pkg/export"
	"videoengine/pkg/playback"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Load(filepath.Join(dir, "missing-config.yaml"))
	require.NoError(t, err)

	return Options{
		Config:            cfg,
		CompositionConfig: composition.Config{Width: 16, Height: 16, FrameRate: 30},
		ProjectDBPath:     filepath.Join(dir, "project.db"),
		NewDecoder:        func() playback.Decoder { return playback.NewFakeDecoder() },
		NewEncoder:        func() export.Encoder { return export.NewFakeEncoder() },
	}
}

func TestNewAssemblesEverySubsystem(t *testing.T) {
	e, err := New(testOptions(t))
	require.NoError(t, err)
	defer e.Close()

	require.NotNil(t, e.Sources)
	require.NotNil(t, e.Composition)
	require.NotNil(t, e.Coordinator)
	require.NotNil(t, e.Sprites)
	require.NotNil(t, e.Exporter)
	require.NotNil(t, e.ProjectDB)
	require.NotNil(t, e.Bus)
	require.NotNil(t, e.Server)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	e, err := New(testOptions(t))
	require.NoError(t, err)
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestNewRequiresDecoderFactory(t *testing.T) {
	opts := testOptions(t)
	opts.NewDecoder = nil
	_, err := New(opts)
	require.Error(t, err)
}

func TestRequireAuthIssuesSessionToken(t *testing.T) {
	opts := testOptions(t)
	opts.RequireAuth = true
	e, err := New(opts)
	require.NoError(t, err)
	defer e.Close()
	require.NotNil(t, e.session)
}

func TestProjectDBSaveLoadRoundTrips(t *testing.T) {
	e, err := New(testOptions(t))
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.ProjectDB.Save("demo", e.Composition))

	restored := composition.New(composition.Config{Width: 16, Height: 16, FrameRate: 30}, e.Sources, nil)
	_, err = e.ProjectDB.Load("demo", restored, e.Sources)
	require.NoError(t, err)
}

func TestServeHTTPRegistersHandler(t *testing.T) {
	e, err := New(testOptions(t))
	require.NoError(t, err)
	defer e.Close()

	mux := http.NewServeMux()
	e.ServeHTTP(mux, "/ws")

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	h, pattern := mux.Handler(req)
	require.NotNil(t, h)
	require.Equal(t, "/ws", pattern)
}
