package export

import "encoding/binary"

// MixVolumeScaled sums volume-scaled 16-bit PCM chunks into one chunk of
// the longest input's length, clamping on overflow. Audio mixing DSP
// beyond volume scaling is out of scope for this engine; this is the
// simplest mixer that honors each clip's Volume field without building a
// real DSP mixing graph.
func MixVolumeScaled(chunks [][]byte, volumes []float64) []byte {
	longest := 0
	for _, c := range chunks {
		if len(c) > longest {
			longest = len(c)
		}
	}
	out := make([]byte, longest)
	acc := make([]int32, longest/2)

	for i, chunk := range chunks {
		vol := 1.0
		if i < len(volumes) {
			vol = volumes[i]
		}
		for s := 0; s+1 < len(chunk); s += 2 {
			sample := int16(binary.LittleEndian.Uint16(chunk[s : s+2]))
			acc[s/2] += int32(float64(sample) * vol)
		}
	}

	for i, v := range acc {
		if v > 32767 {
			v = 32767
		}
		if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(int16(v)))
	}
	return out
}
