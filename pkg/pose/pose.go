// Package pose converts camera matrices between the renderer's convention and
// the NeRF dataset convention.
//
// The renderer hands out a world-to-camera model-view matrix with +Z pointing
// out of the screen and -Z as the scene's up axis. NeRF (Blender) datasets
// expect a camera-to-world matrix in a Z-up world whose translation is in
// scene units rather than millimetres.
package pose

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultScale converts world millimetres into scene units.
const DefaultScale = 100.0

// Matrix is a 4×4 homogeneous transform, row-major.
type Matrix [4][4]float64

// basisChange maps renderer axes to dataset axes: x stays, y' = -z, z' = y.
var basisChange = Matrix{
	{1, 0, 0, 0},
	{0, 0, -1, 0},
	{0, 1, 0, 0},
	{0, 0, 0, 1},
}

// Identity returns the identity transform.
func Identity() Matrix {
	return Matrix{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// FromRows builds a Matrix from nested slices, as found in a manifest.
func FromRows(rows [][]float64) (Matrix, error) {
	var m Matrix
	if len(rows) != 4 {
		return m, fmt.Errorf("pose: expected 4 rows, got %d", len(rows))
	}
	for r, row := range rows {
		if len(row) != 4 {
			return m, fmt.Errorf("pose: row %d has %d columns, expected 4", r, len(row))
		}
		copy(m[r][:], row)
	}
	return m, nil
}

// Rows returns the matrix as nested slices for JSON encoding.
func (m Matrix) Rows() [][]float64 {
	rows := make([][]float64, 4)
	for r := range m {
		rows[r] = append([]float64(nil), m[r][:]...)
	}
	return rows
}

// Mul returns m × o.
func (m Matrix) Mul(o Matrix) Matrix {
	var out mat.Dense
	out.Mul(m.dense(), o.dense())
	return fromDense(&out)
}

// Inverse returns m⁻¹, or an error when m is singular.
func (m Matrix) Inverse() (Matrix, error) {
	var inv mat.Dense
	if err := inv.Inverse(m.dense()); err != nil {
		return Matrix{}, fmt.Errorf("pose: invert: %w", err)
	}
	return fromDense(&inv), nil
}

// Rotation returns the upper-left 3×3 block.
func (m Matrix) Rotation() [3][3]float64 {
	var r [3][3]float64
	for i := 0; i < 3; i++ {
		copy(r[i][:], m[i][:3])
	}
	return r
}

// Translation returns the first three entries of the last column.
func (m Matrix) Translation() [3]float64 {
	return [3]float64{m[0][3], m[1][3], m[2][3]}
}

// IsOrthonormal reports whether the rotation block satisfies RᵀR = I within tol.
func (m Matrix) IsOrthonormal(tol float64) bool {
	r := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r.Set(i, j, m[i][j])
		}
	}
	var rtr mat.Dense
	rtr.Mul(r.T(), r)
	return mat.EqualApprox(&rtr, eye3, tol)
}

// ApproxEqual reports whether every entry of m and o differs by at most tol.
func (m Matrix) ApproxEqual(o Matrix, tol float64) bool {
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if math.Abs(m[i][j]-o[i][j]) > tol {
				return false
			}
		}
	}
	return true
}

// ToTarget converts a renderer model-view matrix into a dataset
// camera-to-world pose. The translation is divided by scale; the bottom row
// stays [0 0 0 1].
func ToTarget(modelView Matrix, scale float64) (Matrix, error) {
	camToWorld, err := modelView.Inverse()
	if err != nil {
		return Matrix{}, err
	}
	p := basisChange.Mul(camToWorld)
	for i := 0; i < 3; i++ {
		p[i][3] /= scale
	}
	return p, nil
}

// FromTarget is the inverse of ToTarget.
func FromTarget(p Matrix, scale float64) (Matrix, error) {
	for i := 0; i < 3; i++ {
		p[i][3] *= scale
	}
	// basisChange is a rotation, so its inverse is its transpose
	camToWorld := basisChange.transpose().Mul(p)
	return camToWorld.Inverse()
}

var eye3 = mat.NewDiagDense(3, []float64{1, 1, 1})

func (m Matrix) transpose() Matrix {
	var t Matrix
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			t[j][i] = m[i][j]
		}
	}
	return t
}

func (m Matrix) dense() *mat.Dense {
	d := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			d.Set(i, j, m[i][j])
		}
	}
	return d
}

func fromDense(d *mat.Dense) Matrix {
	var m Matrix
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			m[i][j] = d.At(i, j)
		}
	}
	return m
}
