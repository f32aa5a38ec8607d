package models

import (
	"image"
)

// Slice represents a single decoded DICOM slice with the metadata needed to
// stack it into a volume
type Slice struct {
	// Image is the decoded pixel data of the first frame
	Image image.Image

	// InstanceNumber orders the slice inside its series
	InstanceNumber int

	// Filename is the source file the slice was read from
	Filename string

	// PixelSpacing is the in-plane (row, column) spacing in mm
	PixelSpacing [2]float64

	// Thickness is the physical thickness of the slice in mm
	Thickness float64
}

// Width returns the number of columns of the slice image.
func (s Slice) Width() int {
	return s.Image.Bounds().Dx()
}

// Height returns the number of rows of the slice image.
func (s Slice) Height() int {
	return s.Image.Bounds().Dy()
}
