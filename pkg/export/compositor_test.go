package export

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func solidRGBA(w, h int, r, g, b, a byte) []byte {
	out := make([]byte, w*h*4)
	for i := 0; i+3 < len(out); i += 4 {
		out[i], out[i+1], out[i+2], out[i+3] = r, g, b, a
	}
	return out
}

func TestCompositeSingleLayerIsCopy(t *testing.T) {
	c := NewCompositor(2, 2)
	base := solidRGBA(2, 2, 10, 20, 30, 255)
	out := c.Composite([]Layer{{RGBA: base, Opacity: 1}}, nil, nil)
	require.Equal(t, base, out)
}

func TestCompositeBlendsOpaqueOverlayOnTop(t *testing.T) {
	c := NewCompositor(1, 1)
	bottom := solidRGBA(1, 1, 0, 0, 0, 255)
	top := solidRGBA(1, 1, 255, 255, 255, 255)
	out := c.Composite([]Layer{{RGBA: bottom, Opacity: 1}, {RGBA: top, Opacity: 1}}, nil, nil)
	require.Equal(t, byte(255), out[0])
	require.Equal(t, byte(255), out[1])
	require.Equal(t, byte(255), out[2])
}

func TestCompositeHalfOpacityBlendsTowardBottomLayer(t *testing.T) {
	c := NewCompositor(1, 1)
	bottom := solidRGBA(1, 1, 0, 0, 0, 255)
	top := solidRGBA(1, 1, 200, 200, 200, 255)
	out := c.Composite([]Layer{{RGBA: bottom, Opacity: 1}, {RGBA: top, Opacity: 0.5}}, nil, nil)
	require.InDelta(t, 100, out[0], 2)
}

func TestCompositeOverlayPositionedByPercent(t *testing.T) {
	c := NewCompositor(4, 4)
	bottom := solidRGBA(4, 4, 0, 0, 0, 255)
	overlayBitmap := solidRGBA(2, 2, 255, 0, 0, 255)
	overlay := Overlay{RGBA: overlayBitmap, XPercent: 0.5, YPercent: 0.5, WidthPercent: 0.5, HeightPercent: 0.5, Opacity: 1}
	out := c.Composite([]Layer{{RGBA: bottom, Opacity: 1}}, []Overlay{overlay}, nil)

	// top-left corner stays untouched
	require.Equal(t, byte(0), out[0])
	// overlay region (pixel at 2,2) is red
	idx := (2*4 + 2) * 4
	require.Equal(t, byte(255), out[idx])
}
