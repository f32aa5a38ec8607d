// Package sweep walks a camera over an azimuth/elevation grid around a
// volume, rendering one frame per grid point.
package sweep

import (
	"errors"
	"fmt"
	"math"
)

const (
	// MaxAzimuth is one full revolution.
	MaxAzimuth = 360.0

	// MaxElevation is the elevation range, centred on the horizontal plane.
	MaxElevation = 120.0
)

// ErrInvalidGrid is returned for steps that do not tile the sweep ranges.
var ErrInvalidGrid = errors.New("invalid sweep grid")

// Grid is the set of (azimuth, elevation) offsets visited by a sweep.
type Grid struct {
	AzimuthStep   float64
	ElevationStep float64
	MaxAzimuth    float64
	MaxElevation  float64

	Rows    int
	Columns int
}

// Point is one grid position.
type Point struct {
	Row    int
	Column int

	// Azimuth and Elevation are offsets from the base camera in degrees
	Azimuth   float64
	Elevation float64
}

// NewGrid validates the steps against the ranges. Each step must be
// positive and divide its range a whole number of times.
func NewGrid(azimuthStep, elevationStep, maxAzimuth, maxElevation float64) (Grid, error) {
	cols, err := steps("azimuth", azimuthStep, maxAzimuth)
	if err != nil {
		return Grid{}, err
	}
	rows, err := steps("elevation", elevationStep, maxElevation)
	if err != nil {
		return Grid{}, err
	}
	return Grid{
		AzimuthStep:   azimuthStep,
		ElevationStep: elevationStep,
		MaxAzimuth:    maxAzimuth,
		MaxElevation:  maxElevation,
		Rows:          rows,
		Columns:       cols,
	}, nil
}

// DefaultGrid returns the standard 360° by 120° grid for the given steps.
func DefaultGrid(azimuthStep, elevationStep float64) (Grid, error) {
	return NewGrid(azimuthStep, elevationStep, MaxAzimuth, MaxElevation)
}

func steps(name string, step, max float64) (int, error) {
	if step <= 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return 0, fmt.Errorf("%w: %s step must be positive, got %g", ErrInvalidGrid, name, step)
	}
	if max <= 0 {
		return 0, fmt.Errorf("%w: %s range must be positive, got %g", ErrInvalidGrid, name, max)
	}
	n := max / step
	rounded := math.Round(n)
	if rounded < 1 || math.Abs(n-rounded) > 1e-9 {
		return 0, fmt.Errorf("%w: %s step %g does not divide %g", ErrInvalidGrid, name, step, max)
	}
	return int(rounded), nil
}

// Size returns the number of grid points.
func (g Grid) Size() int {
	return g.Rows * g.Columns
}

// EquatorialRow is the middle elevation row. Its frames are the test
// candidates.
func (g Grid) EquatorialRow() int {
	return g.Rows / 2
}

// At returns the grid point at row, column. The camera advances before each
// render, so column 0 sits one azimuth step from the base camera.
func (g Grid) At(row, col int) Point {
	return Point{
		Row:       row,
		Column:    col,
		Azimuth:   float64(col+1) * g.AzimuthStep,
		Elevation: -g.MaxElevation/2 + float64(row)*g.ElevationStep,
	}
}

// Points lists every grid point in visitation order: elevation rows from
// the bottom up, each row a full azimuth revolution.
func (g Grid) Points() []Point {
	pts := make([]Point, 0, g.Size())
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Columns; col++ {
			pts = append(pts, g.At(row, col))
		}
	}
	return pts
}

// OutputDirName returns the dataset directory name for the grid,
// output_as<AZ>_es<EL>.
func (g Grid) OutputDirName() string {
	return fmt.Sprintf("output_as%s_es%s", formatStep(g.AzimuthStep), formatStep(g.ElevationStep))
}

func formatStep(v float64) string {
	return fmt.Sprintf("%g", v)
}
