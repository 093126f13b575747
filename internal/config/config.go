// Package config is the engine-wide YAML configuration, grounded on
// pkg/storage/storage.go's ConfigGeneral: a typed struct loaded from disk at
// startup, overridable per deployment, with sane defaults filled in when a
// field or whole file is absent.
package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/shirou/gopsutil/v3/mem"
	"gopkg.in/yaml.v2"
)

// Tier classifies the host device so the sprite pipeline and export
// pipeline can scale their memory and quality footprint to it.
type Tier string

// Device tiers, ordered low to high.
const (
	TierLow  Tier = "low"
	TierMid  Tier = "mid"
	TierHigh Tier = "high"
)

// Tier thresholds, in bytes of total system memory. Below lowMemThreshold is
// TierLow, below highMemThreshold is TierMid, otherwise TierHigh.
const (
	lowMemThreshold  = 2 << 30 // 2 GiB
	highMemThreshold = 8 << 30 // 8 GiB
)

// Engine-wide constants that encode fixed algorithm behavior. Kept as named constants
// rather than config fields: these encode protocol/algorithm invariants
// (seek coalescing, frame-drop thresholds), not deployment tunables.
const (
	MaxQueueSize             = 8
	MaxFrameLagMicros        = 100_000
	MinTrimDurationMicros    = 100_000
	SeekThrottleMillis       = 50
	MinVisibleDurationMicros = 1_000_000
	MaxZoom                  = 10.0
	ZoomStep                 = 1.5
)

// SheetGeometry describes the sprite sheet layout for a device tier.
type SheetGeometry struct {
	TileWidth  int `yaml:"tileWidth"`
	TileHeight int `yaml:"tileHeight"`
	Columns    int `yaml:"columns"`
	Rows       int `yaml:"rows"`
}

// ExportPreset is one entry of the low/med/high export preset table, kept
// as config rather than hardcoded constants, following the ConfigGeneral
// pattern of keeping tunables out of code.
type ExportPreset struct {
	Scale        float64 `yaml:"scale"`
	VideoBitrate int     `yaml:"videoBitrate"` // bits/s
	AudioBitrate int     `yaml:"audioBitrate"` // bits/s
}

// CacheBudget is the sprite sheet LRU cache ceiling for a device tier, in
// bytes.
type CacheBudget int64

// Config is the engine's full runtime configuration.
type Config struct {
	// Tier overrides device-tier auto-detection when non-empty.
	Tier Tier `yaml:"tier"`

	SheetGeometry map[Tier]SheetGeometry `yaml:"sheetGeometry"`
	CacheBudget   map[Tier]CacheBudget   `yaml:"cacheBudget"`
	ExportPresets map[string]ExportPreset `yaml:"exportPresets"`

	WatchdogStallSeconds int `yaml:"watchdogStallSeconds"`
}

func defaults() Config {
	return Config{
		SheetGeometry: map[Tier]SheetGeometry{
			TierLow:  {TileWidth: 128, TileHeight: 72, Columns: 10, Rows: 10},
			TierMid:  {TileWidth: 160, TileHeight: 90, Columns: 10, Rows: 10},
			TierHigh: {TileWidth: 160, TileHeight: 90, Columns: 10, Rows: 10},
		},
		CacheBudget: map[Tier]CacheBudget{
			TierLow:  10 << 20,
			TierMid:  25 << 20,
			TierHigh: 50 << 20,
		},
		ExportPresets: map[string]ExportPreset{
			"low":  {Scale: 0.5, VideoBitrate: 2_000_000, AudioBitrate: 96_000},
			"med":  {Scale: 0.75, VideoBitrate: 5_000_000, AudioBitrate: 128_000},
			"high": {Scale: 1.0, VideoBitrate: 8_000_000, AudioBitrate: 192_000},
		},
		WatchdogStallSeconds: 15,
	}
}

// Load reads a YAML config from path, filling any field the file omits (or
// the whole file, if path does not exist) with defaults().
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// ResolveTier returns cfg.Tier if set, otherwise auto-detects it from total
// system memory via gopsutil.
func (c *Config) ResolveTier() Tier {
	if c.Tier != "" {
		return c.Tier
	}
	return detectTier()
}

var detectOnce struct {
	sync.Once
	tier Tier
}

func detectTier() Tier {
	detectOnce.Do(func() {
		vm, err := mem.VirtualMemory()
		if err != nil {
			detectOnce.tier = TierMid
			return
		}
		switch {
		case vm.Total < lowMemThreshold:
			detectOnce.tier = TierLow
		case vm.Total < highMemThreshold:
			detectOnce.tier = TierMid
		default:
			detectOnce.tier = TierHigh
		}
	})
	return detectOnce.tier
}

// Sheet returns the sprite sheet geometry for the resolved device tier.
func (c *Config) Sheet() SheetGeometry {
	return c.SheetGeometry[c.ResolveTier()]
}

// SpriteCacheBudget returns the sprite LRU cache ceiling for the resolved
// device tier, in bytes.
func (c *Config) SpriteCacheBudget() CacheBudget {
	return c.CacheBudget[c.ResolveTier()]
}

// Preset looks up an export preset by name ("low", "med", "high"), and
// reports whether it was found.
func (c *Config) Preset(name string) (ExportPreset, bool) {
	p, ok := c.ExportPresets[name]
	return p, ok
}
