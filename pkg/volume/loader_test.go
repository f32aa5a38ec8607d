package volume

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicomnerf/internal/models"
)

func grayImage(w, h int, value uint16) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray16(x, y, color.Gray16{Y: value})
		}
	}
	return img
}

func TestFromImagesNormalises(t *testing.T) {
	images := []image.Image{grayImage(3, 2, 100), grayImage(3, 2, 300), grayImage(3, 2, 500)}
	vol, err := FromImages(images, models.Spacing{X: 0.5, Y: 0.5, Z: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, vol.Width)
	assert.Equal(t, 2, vol.Height)
	assert.Equal(t, 3, vol.Depth)
	assert.Equal(t, 100.0, vol.RawMin)
	assert.Equal(t, 500.0, vol.RawMax)

	assert.Equal(t, 0.0, vol.At(0, 0, 0))
	assert.InDelta(t, 0.5, vol.At(2, 1, 1), 1e-12)
	assert.Equal(t, 1.0, vol.At(1, 1, 2))
	assert.InDelta(t, 300, vol.Raw(vol.At(0, 0, 1)), 1e-9)

	b := vol.Bounds()
	assert.Equal(t, [3]float64{1, 0.5, 4}, b.Max)
}

func TestFromImagesFlatStack(t *testing.T) {
	vol, err := FromImages([]image.Image{grayImage(2, 2, 7)}, models.Spacing{X: 1, Y: 1, Z: 1})
	require.NoError(t, err)
	for _, v := range vol.Data {
		assert.Equal(t, 0.0, v)
	}
}

func TestFromImagesRejectsMismatchedSlices(t *testing.T) {
	_, err := FromImages([]image.Image{grayImage(2, 2, 0), grayImage(3, 2, 0)}, models.Spacing{X: 1, Y: 1, Z: 1})
	assert.Error(t, err)

	_, err = FromImages(nil, models.Spacing{})
	assert.ErrorIs(t, err, ErrNoSlices)
}

func TestSortSlices(t *testing.T) {
	slices := []models.Slice{
		{InstanceNumber: 3, Filename: "a"},
		{InstanceNumber: 1, Filename: "c"},
		{InstanceNumber: 1, Filename: "b"},
	}
	SortSlices(slices)

	var names []string
	for _, s := range slices {
		names = append(names, s.Filename)
	}
	assert.Equal(t, []string{"b", "c", "a"}, names)
}

func TestFromSlicesUsesFirstSliceSpacing(t *testing.T) {
	slices := []models.Slice{
		{Image: grayImage(2, 2, 0), PixelSpacing: [2]float64{0.7, 0.8}, Thickness: 2.5},
		{Image: grayImage(2, 2, 10), PixelSpacing: [2]float64{0.7, 0.8}, Thickness: 2.5},
	}
	vol, err := FromSlices(slices)
	require.NoError(t, err)
	assert.Equal(t, models.Spacing{X: 0.8, Y: 0.7, Z: 2.5}, vol.VoxelSize)
}

func TestParseFloats(t *testing.T) {
	assert.Equal(t, []float64{0.5, 0.75}, parseFloats([]string{"0.5", " 0.75 "}))
	assert.Equal(t, []float64{0.5, 0.75}, parseFloats([]string{`0.5\0.75`}))
	assert.Equal(t, []float64{2}, parseFloats([]float64{2}))
	assert.Nil(t, parseFloats([]string{"abc"}))
	assert.Nil(t, parseFloats([]int{1}))
}

func TestLoadDirSkipsNonDICOM(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a dicom file"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	_, err := LoadDir(dir, nil)
	assert.ErrorIs(t, err, ErrNoSlices)
}

func TestLoadDirMissing(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)
}
