// Package volume reads a DICOM series into a voxel volume.
package volume

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"dicomnerf/internal/models"
)

// ErrNoSlices is returned when a directory holds no readable DICOM slices.
var ErrNoSlices = errors.New("no DICOM slices found")

// LoadDir parses every regular file in dir as DICOM, stacks the slices by
// instance number and returns the normalised volume. Files that are not
// DICOM are skipped.
func LoadDir(dir string, logger *zap.Logger) (*models.Volume, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dicom folder: %w", err)
	}

	var slices []models.Slice
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		s, err := ReadSlice(path)
		if err != nil {
			logger.Debug("skipping file", zap.String("path", path), zap.Error(err))
			continue
		}
		slices = append(slices, s)
	}
	if len(slices) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoSlices)
	}

	SortSlices(slices)

	vol, err := FromSlices(slices)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded volume",
		zap.String("dir", dir),
		zap.Int("width", vol.Width),
		zap.Int("height", vol.Height),
		zap.Int("depth", vol.Depth),
		zap.Float64("rawMin", vol.RawMin),
		zap.Float64("rawMax", vol.RawMax))
	return vol, nil
}

// ReadSlice parses one DICOM file and decodes its first frame.
func ReadSlice(path string) (models.Slice, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return models.Slice{}, err
	}

	s := models.Slice{
		Filename:     filepath.Base(path),
		PixelSpacing: [2]float64{1, 1},
		Thickness:    1,
	}

	if el, err := ds.FindElementByTag(tag.InstanceNumber); err == nil {
		if vals, ok := el.Value.GetValue().([]string); ok && len(vals) > 0 {
			if n, err := strconv.Atoi(strings.TrimSpace(vals[0])); err == nil {
				s.InstanceNumber = n
			}
		}
	}
	if el, err := ds.FindElementByTag(tag.PixelSpacing); err == nil {
		if vals := parseFloats(el.Value.GetValue()); len(vals) >= 2 {
			s.PixelSpacing = [2]float64{vals[0], vals[1]}
		}
	}
	if el, err := ds.FindElementByTag(tag.SliceThickness); err == nil {
		if vals := parseFloats(el.Value.GetValue()); len(vals) >= 1 && vals[0] > 0 {
			s.Thickness = vals[0]
		}
	}

	el, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return models.Slice{}, fmt.Errorf("no pixel data: %w", err)
	}
	info, ok := el.Value.GetValue().(dicom.PixelDataInfo)
	if !ok || len(info.Frames) == 0 {
		return models.Slice{}, errors.New("pixel data holds no frames")
	}
	img, err := info.Frames[0].GetImage()
	if err != nil {
		return models.Slice{}, fmt.Errorf("decode frame: %w", err)
	}
	s.Image = img

	if el, err := ds.FindElementByTag(tag.Rows); err == nil {
		if rows, ok := el.Value.GetValue().([]int); ok && len(rows) > 0 && rows[0] != s.Height() {
			return models.Slice{}, fmt.Errorf("rows %d disagree with frame height %d", rows[0], s.Height())
		}
	}
	if el, err := ds.FindElementByTag(tag.Columns); err == nil {
		if cols, ok := el.Value.GetValue().([]int); ok && len(cols) > 0 && cols[0] != s.Width() {
			return models.Slice{}, fmt.Errorf("columns %d disagree with frame width %d", cols[0], s.Width())
		}
	}

	return s, nil
}

// parseFloats reads decimal string values such as PixelSpacing.
func parseFloats(v any) []float64 {
	switch vals := v.(type) {
	case []float64:
		return vals
	case []string:
		var out []float64
		for _, s := range vals {
			// multi-valued DS may arrive as one backslash-joined string
			for _, part := range strings.Split(s, `\`) {
				f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
				if err != nil {
					return nil
				}
				out = append(out, f)
			}
		}
		return out
	}
	return nil
}

// SortSlices orders slices by instance number, then file name.
func SortSlices(slices []models.Slice) {
	sort.SliceStable(slices, func(i, j int) bool {
		if slices[i].InstanceNumber != slices[j].InstanceNumber {
			return slices[i].InstanceNumber < slices[j].InstanceNumber
		}
		return slices[i].Filename < slices[j].Filename
	})
}

// FromSlices stacks sorted slices into a volume. Spacing comes from the
// first slice.
func FromSlices(slices []models.Slice) (*models.Volume, error) {
	if len(slices) == 0 {
		return nil, ErrNoSlices
	}
	images := make([]image.Image, len(slices))
	for i, s := range slices {
		images[i] = s.Image
	}
	first := slices[0]
	return FromImages(images, models.Spacing{
		X: first.PixelSpacing[1],
		Y: first.PixelSpacing[0],
		Z: first.Thickness,
	})
}

// FromImages builds a volume from equally sized images, one per z index.
// Intensities are normalised to [0,1] against the stack's min and max; the
// raw range is kept on the volume.
func FromImages(images []image.Image, spacing models.Spacing) (*models.Volume, error) {
	if len(images) == 0 {
		return nil, ErrNoSlices
	}

	b := images[0].Bounds()
	width, height := b.Dx(), b.Dy()
	if width == 0 || height == 0 {
		return nil, errors.New("empty slice image")
	}

	vol := models.NewVolume(width, height, len(images), spacing)
	for z, img := range images {
		ib := img.Bounds()
		if ib.Dx() != width || ib.Dy() != height {
			return nil, fmt.Errorf("slice %d is %dx%d, want %dx%d", z, ib.Dx(), ib.Dy(), width, height)
		}
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				g := color.Gray16Model.Convert(img.At(ib.Min.X+x, ib.Min.Y+y)).(color.Gray16)
				vol.Data[vol.Index(x, y, z)] = float64(g.Y)
			}
		}
	}

	vol.RawMin = floats.Min(vol.Data)
	vol.RawMax = floats.Max(vol.Data)
	span := vol.RawMax - vol.RawMin
	if span == 0 {
		for i := range vol.Data {
			vol.Data[i] = 0
		}
		return vol, nil
	}
	floats.AddConst(-vol.RawMin, vol.Data)
	floats.Scale(1/span, vol.Data)
	return vol, nil
}
