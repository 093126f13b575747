package composition

import (
	"videoengine/internal/config"
	"videoengine/internal/engineerr"
)

// Viewport is the timeline window currently visible to the user: which
// affects sprite demand only. Zoom is a multiplier
// clamped to [1, config.MaxZoom]; panning/zooming never mutates the
// composition itself.
type Viewport struct {
	StartMicros int64
	EndMicros   int64
	Zoom        float64
}

// NewViewport returns a Viewport spanning the whole composition at 1x zoom.
func NewViewport(durationMicros int64) Viewport {
	return Viewport{StartMicros: 0, EndMicros: durationMicros, Zoom: 1}
}

// clampVisible enforces the MinVisibleDurationMicros floor: a
// viewport may never shrink to show less than one second of timeline.
func (v Viewport) clampVisible() Viewport {
	if v.EndMicros-v.StartMicros < config.MinVisibleDurationMicros {
		v.EndMicros = v.StartMicros + config.MinVisibleDurationMicros
	}
	return v
}

// ZoomBy multiplies the viewport's zoom by factor (e.g. config.ZoomStep per
// wheel notch), clamped to [1, config.MaxZoom], narrowing the visible range
// around its midpoint.
func (v Viewport) ZoomBy(factor float64) Viewport {
	newZoom := v.Zoom * factor
	if newZoom < 1 {
		newZoom = 1
	}
	if newZoom > config.MaxZoom {
		newZoom = config.MaxZoom
	}
	mid := (v.StartMicros + v.EndMicros) / 2
	span := v.EndMicros - v.StartMicros
	newSpan := int64(float64(span) * v.Zoom / newZoom)
	v.Zoom = newZoom
	v.StartMicros = mid - newSpan/2
	v.EndMicros = mid + newSpan/2
	if v.StartMicros < 0 {
		v.EndMicros -= v.StartMicros
		v.StartMicros = 0
	}
	return v.clampVisible()
}

// Pan shifts the visible window by deltaMicros, clamping the left edge to
// >= 0.
func (v Viewport) Pan(deltaMicros int64) Viewport {
	v.StartMicros += deltaMicros
	v.EndMicros += deltaMicros
	if v.StartMicros < 0 {
		v.EndMicros -= v.StartMicros
		v.StartMicros = 0
	}
	return v
}

// ExportRange is the subset [in, out] of the timeline selected for export;
// a nil field defaults to composition bounds.
type ExportRange struct {
	InMicros  *int64
	OutMicros *int64
}

// Resolve returns the concrete [in, out) bounds of r against a composition
// of the given duration, defaulting unset bounds to the composition's
// bounds. Returns an error if the resolved range is empty or inverted.
func (r ExportRange) Resolve(durationMicros int64) (inMicros, outMicros int64, err error) {
	inMicros = 0
	if r.InMicros != nil {
		inMicros = *r.InMicros
	}
	outMicros = durationMicros
	if r.OutMicros != nil {
		outMicros = *r.OutMicros
	}
	if inMicros >= outMicros {
		return 0, 0, engineerr.New(engineerr.ClassInvariant, "export_range", engineerr.ErrInvalidTrim)
	}
	return inMicros, outMicros, nil
}
