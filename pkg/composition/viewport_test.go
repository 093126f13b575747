package composition

import (
	"testing"

	"github.com/stretchr/testify/require"

	"videoengine/internal/config"
)

func TestViewportZoomByClampsToMaxZoom(t *testing.T) {
	v := NewViewport(60_000_000)
	v = v.ZoomBy(config.MaxZoom * 2)
	require.Equal(t, config.MaxZoom, v.Zoom)
}

func TestViewportZoomByEnforcesMinVisibleDuration(t *testing.T) {
	v := NewViewport(60_000_000)
	v = v.ZoomBy(1000)
	require.GreaterOrEqual(t, v.EndMicros-v.StartMicros, int64(config.MinVisibleDurationMicros))
}

func TestViewportPanClampsLeftEdge(t *testing.T) {
	v := Viewport{StartMicros: 1_000_000, EndMicros: 3_000_000, Zoom: 1}
	v = v.Pan(-5_000_000)
	require.Equal(t, int64(0), v.StartMicros)
	require.Equal(t, int64(2_000_000), v.EndMicros)
}

func TestExportRangeResolveDefaultsToCompositionBounds(t *testing.T) {
	r := ExportRange{}
	in, out, err := r.Resolve(10_000_000)
	require.NoError(t, err)
	require.Equal(t, int64(0), in)
	require.Equal(t, int64(10_000_000), out)
}

func TestExportRangeResolveRejectsInverted(t *testing.T) {
	in, out := int64(5_000_000), int64(1_000_000)
	r := ExportRange{InMicros: &in, OutMicros: &out}
	_, _, err := r.Resolve(10_000_000)
	require.Error(t, err)
}
