// Package partition assigns sweep frames to dataset splits.
package partition

import (
	"fmt"
	"math"
	"math/rand"

	"dicomnerf/pkg/manifest"
)

// DefaultSeed keeps split assignment stable between runs.
const DefaultSeed int64 = 2000

// Labels returns total split labels, total-valCount of them train and
// valCount val, shuffled by a generator seeded with seed. The same inputs
// always produce the same sequence.
func Labels(total, valCount int, seed int64) ([]manifest.Split, error) {
	if total < 0 {
		return nil, fmt.Errorf("partition: negative frame count %d", total)
	}
	if valCount < 0 || valCount > total {
		return nil, fmt.Errorf("partition: val count %d out of range [0,%d]", valCount, total)
	}

	labels := make([]manifest.Split, total)
	for i := range labels {
		if i < total-valCount {
			labels[i] = manifest.Train
		} else {
			labels[i] = manifest.Val
		}
	}

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(labels), func(i, j int) {
		labels[i], labels[j] = labels[j], labels[i]
	})
	return labels, nil
}

// ValCount converts a val fraction into a frame count, rounding down.
func ValCount(total int, fraction float64) int {
	if fraction <= 0 {
		return 0
	}
	return int(math.Floor(float64(total) * fraction))
}

// Counts tallies labels per split.
func Counts(labels []manifest.Split) map[manifest.Split]int {
	c := make(map[manifest.Split]int, len(manifest.Splits))
	for _, l := range labels {
		c[l]++
	}
	return c
}
