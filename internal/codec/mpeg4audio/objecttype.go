// Package mpeg4audio parses the MPEG-4 Audio (AAC) AudioSpecificConfig
// carried in an MP4 esds box, the audio half of a Source's
// codec_description record. Adapted from
// gortsplib/pkg/mpeg4audio.
package mpeg4audio

// ObjectType is the audioObjectType field of an AudioSpecificConfig.
type ObjectType uint8

// Object types the engine's export/compositor pipeline needs to
// distinguish; everything else is rejected rather than silently
// mishandled.
const (
	ObjectTypeAACLC ObjectType = 2
	ObjectTypeSBR   ObjectType = 5
)

var sampleRates = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350,
}

var reverseSampleRates = func() map[int]int {
	m := make(map[int]int, len(sampleRates))
	for i, r := range sampleRates {
		m[r] = i
	}
	return m
}()
