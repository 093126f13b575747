package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, 15, cfg.WatchdogStallSeconds)

	preset, ok := cfg.Preset("med")
	require.True(t, ok)
	require.Equal(t, 0.75, preset.Scale)
	require.Equal(t, 5_000_000, preset.VideoBitrate)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Save(path, &Config{Tier: TierLow, WatchdogStallSeconds: 30}))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, TierLow, cfg.Tier)
	require.Equal(t, 30, cfg.WatchdogStallSeconds)
}

func TestResolveTierExplicitOverridesDetection(t *testing.T) {
	cfg := defaults()
	cfg.Tier = TierHigh
	require.Equal(t, TierHigh, cfg.ResolveTier())
}

func TestSheetGeometryByTier(t *testing.T) {
	cfg := defaults()
	cfg.Tier = TierLow
	require.Equal(t, 128, cfg.Sheet().TileWidth)

	cfg.Tier = TierHigh
	require.Equal(t, 160, cfg.Sheet().TileWidth)
}

func TestUnknownPresetNotFound(t *testing.T) {
	cfg := defaults()
	_, ok := cfg.Preset("ultra")
	require.False(t, ok)
}
