package sample

import "sort"

// LocateKeyframe implements the Keyframe Locator: given a
// source's sorted keyframe index and a target sample index, returns the
// greatest keyframe index value that is <= target, or the first keyframe if
// target precedes all of them. The result is validated against
// samples[i].IsSync; on mismatch (a corrupt index) it falls back to the
// first keyframe. Never returns an index whose sample is not a sync frame.
func LocateKeyframe(src *Source, targetSampleIndex int) int {
	idx := src.KeyframeIndex
	if len(idx) == 0 {
		return -1
	}

	// sort.Search finds the first index i for which idx[i] > target; the
	// keyframe we want is the one immediately before it.
	i := sort.Search(len(idx), func(i int) bool {
		return idx[i] > targetSampleIndex
	})

	var result int
	if i == 0 {
		result = idx[0]
	} else {
		result = idx[i-1]
	}

	if result < 0 || result >= len(src.Samples) || !src.Samples[result].IsSync {
		return idx[0]
	}
	return result
}
