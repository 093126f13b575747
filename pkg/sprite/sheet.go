// Package sprite implements the Sprite (thumbnail) Pipeline: time-indexed
// frame grids generated progressively by visible range, with an LRU memory
// budget. Grounded on addons/thumbscale (device-tier adaptive thumbnail
// geometry) and addons/watchdog (stuck-progress detection), and shares the
// Sample Store and Keyframe Locator with the Playback Coordinator while
// driving its own decoder instance.
package sprite

// Metadata locates one generated thumbnail within its sheet.
type Metadata struct {
	TimestampMicros int64
	Col, Row        int
}

// Sheet is one generated thumbnail grid: a bitmap of Columns x Rows tiles,
// plus per-tile metadata. Bitmap is an opaque RGBA buffer the host paints
// (or, for the GPU resize step, feeds a decoded frame into); this package
// never interprets its bytes.
type Sheet struct {
	ID         string
	Bitmap     []byte
	Columns    int
	Rows       int
	TileWidth  int
	TileHeight int
	Sprites    []Metadata
	SizeBytes  int64
	lastAccess int64 // LRU clock tick, set by Cache
}

// full reports whether every tile of the sheet has been written.
func (s *Sheet) full() bool {
	return len(s.Sprites) >= s.Columns*s.Rows
}

// nextSlot returns the (col, row) the next generated tile should occupy.
func (s *Sheet) nextSlot() (col, row int) {
	n := len(s.Sprites)
	return n % s.Columns, n / s.Columns
}
