package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicomnerf/pkg/manifest"
)

func TestLabelsAllTrainByDefault(t *testing.T) {
	labels, err := Labels(288, 0, DefaultSeed)
	require.NoError(t, err)
	require.Len(t, labels, 288)
	for _, l := range labels {
		assert.Equal(t, manifest.Train, l)
	}
}

func TestLabelsDeterministic(t *testing.T) {
	a, err := Labels(100, 30, DefaultSeed)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		b, err := Labels(100, 30, DefaultSeed)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestLabelsShuffled(t *testing.T) {
	a, err := Labels(100, 50, DefaultSeed)
	require.NoError(t, err)

	// an unshuffled sequence would end with a solid block of val
	allValTail := true
	for _, l := range a[50:] {
		if l != manifest.Val {
			allValTail = false
		}
	}
	assert.False(t, allValTail)

	b, err := Labels(100, 50, DefaultSeed+1)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestLabelsCounts(t *testing.T) {
	labels, err := Labels(40, 10, 7)
	require.NoError(t, err)
	c := Counts(labels)
	assert.Equal(t, 30, c[manifest.Train])
	assert.Equal(t, 10, c[manifest.Val])
	assert.Zero(t, c[manifest.Test])
}

func TestLabelsRejectsBadCounts(t *testing.T) {
	_, err := Labels(-1, 0, 1)
	assert.Error(t, err)
	_, err = Labels(10, 11, 1)
	assert.Error(t, err)
	_, err = Labels(10, -1, 1)
	assert.Error(t, err)
}

func TestValCount(t *testing.T) {
	assert.Equal(t, 0, ValCount(288, 0))
	assert.Equal(t, 28, ValCount(288, 0.1))
	assert.Equal(t, 144, ValCount(288, 0.5))
}
