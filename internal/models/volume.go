package models

import "math"

// Spacing is the physical size of a voxel along each axis in mm
type Spacing struct {
	X, Y, Z float64
}

// Volume represents a stack of slices as a dense 3D scalar field
type Volume struct {
	// Data holds normalised intensities in [0,1], x fastest, then y, then z
	Data []float64

	// Width is the number of voxels along x
	Width int

	// Height is the number of voxels along y
	Height int

	// Depth is the number of slices along z
	Depth int

	// VoxelSize is the physical size of each voxel in mm
	VoxelSize Spacing

	// RawMin and RawMax are the stored intensities that map to 0 and 1
	RawMin float64
	RawMax float64
}

// Raw converts a normalised value back to the stored intensity scale.
func (v *Volume) Raw(n float64) float64 {
	return v.RawMin + n*(v.RawMax-v.RawMin)
}

// Bounds is an axis-aligned box in world coordinates.
type Bounds struct {
	Min, Max [3]float64
}

// Center returns the midpoint of the box.
func (b Bounds) Center() [3]float64 {
	return [3]float64{
		(b.Min[0] + b.Max[0]) / 2,
		(b.Min[1] + b.Max[1]) / 2,
		(b.Min[2] + b.Max[2]) / 2,
	}
}

// NewVolume allocates an empty volume of the given dimensions.
func NewVolume(width, height, depth int, spacing Spacing) *Volume {
	return &Volume{
		Data:      make([]float64, width*height*depth),
		Width:     width,
		Height:    height,
		Depth:     depth,
		VoxelSize: spacing,
	}
}

// Index returns the offset of voxel (x, y, z) in Data.
func (v *Volume) Index(x, y, z int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// At returns the voxel value, or 0 outside the grid.
func (v *Volume) At(x, y, z int) float64 {
	if x < 0 || y < 0 || z < 0 || x >= v.Width || y >= v.Height || z >= v.Depth {
		return 0
	}
	return v.Data[v.Index(x, y, z)]
}

// Bounds returns the world-space box covered by the voxel centres, with the
// first voxel at the origin.
func (v *Volume) Bounds() Bounds {
	return Bounds{
		Max: [3]float64{
			float64(v.Width-1) * v.VoxelSize.X,
			float64(v.Height-1) * v.VoxelSize.Y,
			float64(v.Depth-1) * v.VoxelSize.Z,
		},
	}
}

// Sample returns the trilinearly interpolated value at world position p.
// Positions outside the volume sample as 0.
func (v *Volume) Sample(p [3]float64) float64 {
	fx := p[0] / v.VoxelSize.X
	fy := p[1] / v.VoxelSize.Y
	fz := p[2] / v.VoxelSize.Z
	if fx < 0 || fy < 0 || fz < 0 ||
		fx > float64(v.Width-1) || fy > float64(v.Height-1) || fz > float64(v.Depth-1) {
		return 0
	}

	x0, y0, z0 := int(math.Floor(fx)), int(math.Floor(fy)), int(math.Floor(fz))
	tx, ty, tz := fx-float64(x0), fy-float64(y0), fz-float64(z0)

	c00 := lerp(v.At(x0, y0, z0), v.At(x0+1, y0, z0), tx)
	c10 := lerp(v.At(x0, y0+1, z0), v.At(x0+1, y0+1, z0), tx)
	c01 := lerp(v.At(x0, y0, z0+1), v.At(x0+1, y0, z0+1), tx)
	c11 := lerp(v.At(x0, y0+1, z0+1), v.At(x0+1, y0+1, z0+1), tx)

	return lerp(lerp(c00, c10, ty), lerp(c01, c11, ty), tz)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
