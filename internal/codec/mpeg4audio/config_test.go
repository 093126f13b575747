package mpeg4audio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigRoundTrip(t *testing.T) {
	in := Config{
		Type:         ObjectTypeAACLC,
		SampleRate:   44100,
		ChannelCount: 2,
	}

	encoded, err := in.Marshal()
	require.NoError(t, err)

	var out Config
	require.NoError(t, out.Unmarshal(encoded))
	require.Equal(t, in.Type, out.Type)
	require.Equal(t, in.SampleRate, out.SampleRate)
	require.Equal(t, in.ChannelCount, out.ChannelCount)
}

func TestConfigUnmarshalUnsupportedType(t *testing.T) {
	var c Config
	// type = 31 (reserved), rest zero
	err := c.Unmarshal([]byte{0xF8, 0x00})
	require.ErrorIs(t, err, ErrConfigDecodeTypeUnsupported)
}

func TestConfigMarshalInvalidChannelCount(t *testing.T) {
	c := Config{Type: ObjectTypeAACLC, SampleRate: 44100, ChannelCount: 12}
	_, err := c.Marshal()
	require.ErrorIs(t, err, ErrConfigEncodeChannelCountInvalid)
}

func TestConfigRoundTripNonTableSampleRate(t *testing.T) {
	in := Config{Type: ObjectTypeAACLC, SampleRate: 50000, ChannelCount: 1}

	encoded, err := in.Marshal()
	require.NoError(t, err)

	var out Config
	require.NoError(t, out.Unmarshal(encoded))
	require.Equal(t, 50000, out.SampleRate)
}
