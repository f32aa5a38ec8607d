// Package camera models the virtual camera that orbits a volume.
//
// Camera is a value: Azimuth and Elevation return a new Camera instead of
// mutating the receiver, so a sweep can compute the pose of any grid point
// directly from the base camera.
package camera

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"dicomnerf/internal/models"
	"dicomnerf/pkg/pose"
)

// DefaultViewUp points along -Z, the head-to-feet axis of a DICOM stack.
var DefaultViewUp = r3.Vec{X: 0, Y: 0, Z: -1}

// Camera is a perspective camera looking at a focal point.
type Camera struct {
	Position   r3.Vec
	FocalPoint r3.Vec
	ViewUp     r3.Vec

	// ViewAngle is the vertical field of view in degrees
	ViewAngle float64

	// ClippingRange holds the near and far plane distances
	ClippingRange [2]float64
}

// FitVolume places the camera on the -Y side of the volume, looking at its
// centre, far enough away that the z extent fills the field of view.
func FitVolume(b models.Bounds, viewAngle float64) Camera {
	c := b.Center()
	maxX, maxY, maxZ := b.Max[0]+1, b.Max[1]+1, b.Max[2]+1
	maxDim := math.Max(maxX, math.Max(maxY, maxZ))

	offset := (maxZ/2)/math.Tan(deg2rad(viewAngle/2)) + maxX/2

	return Camera{
		Position:      r3.Vec{X: c[0], Y: c[1] - offset, Z: c[2]},
		FocalPoint:    r3.Vec{X: c[0], Y: c[1], Z: c[2]},
		ViewUp:        DefaultViewUp,
		ViewAngle:     viewAngle,
		ClippingRange: [2]float64{0.1, offset + maxDim},
	}
}

// Azimuth rotates the camera about the view-up vector centred at the focal
// point.
func (c Camera) Azimuth(degrees float64) Camera {
	c.Position = c.orbit(degrees, c.ViewUp)
	return c
}

// Elevation rotates the camera about the axis pointing to its left, centred
// at the focal point. The view-up vector is left unchanged.
func (c Camera) Elevation(degrees float64) Camera {
	right, _, _ := c.basis()
	c.Position = c.orbit(degrees, r3.Scale(-1, right))
	return c
}

// Orbit returns the camera after an elevation change followed by an azimuth
// change, the pose reached by a sweep at grid point (azimuth, elevation).
func (c Camera) Orbit(azimuth, elevation float64) Camera {
	return c.Elevation(elevation).Azimuth(azimuth)
}

// Distance returns the distance between the camera and its focal point.
func (c Camera) Distance() float64 {
	return r3.Norm(r3.Sub(c.Position, c.FocalPoint))
}

// ViewAngleRadians returns the field of view in radians, the value written
// to manifests as camera_angle_x.
func (c Camera) ViewAngleRadians() float64 {
	return deg2rad(c.ViewAngle)
}

// Basis returns the camera's right, up and backward unit vectors in world
// space.
func (c Camera) Basis() (right, up, back r3.Vec) {
	return c.basis()
}

// ModelView returns the world-to-camera matrix.
func (c Camera) ModelView() pose.Matrix {
	right, up, back := c.basis()
	rows := [3]r3.Vec{right, up, back}

	m := pose.Identity()
	for i, r := range rows {
		m[i][0], m[i][1], m[i][2] = r.X, r.Y, r.Z
		m[i][3] = -r3.Dot(r, c.Position)
	}
	return m
}

func (c Camera) basis() (right, up, back r3.Vec) {
	back = r3.Unit(r3.Sub(c.Position, c.FocalPoint))
	right = r3.Unit(r3.Cross(c.ViewUp, back))
	up = r3.Cross(back, right)
	return right, up, back
}

func (c Camera) orbit(degrees float64, axis r3.Vec) r3.Vec {
	rot := r3.NewRotation(deg2rad(degrees), r3.Unit(axis))
	return r3.Add(c.FocalPoint, rot.Rotate(r3.Sub(c.Position, c.FocalPoint)))
}

func deg2rad(d float64) float64 {
	return d * math.Pi / 180
}
