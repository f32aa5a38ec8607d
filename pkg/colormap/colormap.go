// Package colormap maps raw voxel intensities to colour and opacity.
package colormap

import "sort"

// Entry assigns colours to a set of intensity values. When Color holds one
// colour per Range value they pair up; otherwise every value gets Color[0].
type Entry struct {
	Range []float64
	Color [][3]float64
}

// Standard is a soft-tissue/bone colormap for CT intensities.
var Standard = []Entry{
	{Range: []float64{0}, Color: [][3]float64{{0, 0, 0}}},
	{Range: []float64{500, 1000}, Color: [][3]float64{{240.0 / 255, 184.0 / 255, 160.0 / 255}}},
	{Range: []float64{1150}, Color: [][3]float64{{1, 1, 240.0 / 255}}},
}

// DefaultOpacity hides air, keeps soft tissue faint and bone opaque.
var DefaultOpacity = Piecewise{{X: 0, Y: 0}, {X: 500, Y: 0.15}, {X: 800, Y: 1}}

// RGBPoint is one node of a colour transfer function.
type RGBPoint struct {
	X       float64
	R, G, B float64
}

// ToRGBPoints flattens colormap entries into transfer function nodes.
func ToRGBPoints(entries []Entry) []RGBPoint {
	var pts []RGBPoint
	for _, e := range entries {
		if len(e.Color) == 0 {
			continue
		}
		for i, x := range e.Range {
			c := e.Color[0]
			if len(e.Color) == len(e.Range) {
				c = e.Color[i]
			}
			pts = append(pts, RGBPoint{X: x, R: c[0], G: c[1], B: c[2]})
		}
	}
	return pts
}

// ColorFunc interpolates colours between RGB points.
type ColorFunc []RGBPoint

// NewColorFunc sorts the points by intensity.
func NewColorFunc(pts []RGBPoint) ColorFunc {
	f := append(ColorFunc(nil), pts...)
	sort.SliceStable(f, func(i, j int) bool { return f[i].X < f[j].X })
	return f
}

// Eval returns the colour at x, clamped to the end points.
func (f ColorFunc) Eval(x float64) [3]float64 {
	if len(f) == 0 {
		return [3]float64{x, x, x}
	}
	if x <= f[0].X {
		return [3]float64{f[0].R, f[0].G, f[0].B}
	}
	last := f[len(f)-1]
	if x >= last.X {
		return [3]float64{last.R, last.G, last.B}
	}
	i := sort.Search(len(f), func(i int) bool { return f[i].X > x })
	a, b := f[i-1], f[i]
	t := (x - a.X) / (b.X - a.X)
	return [3]float64{
		a.R + (b.R-a.R)*t,
		a.G + (b.G-a.G)*t,
		a.B + (b.B-a.B)*t,
	}
}

// Point is one node of a scalar piecewise-linear function.
type Point struct {
	X, Y float64
}

// Piecewise is a scalar transfer function with points sorted by X.
type Piecewise []Point

// Eval returns the value at x, clamped to the end points.
func (p Piecewise) Eval(x float64) float64 {
	if len(p) == 0 {
		return 1
	}
	if x <= p[0].X {
		return p[0].Y
	}
	if x >= p[len(p)-1].X {
		return p[len(p)-1].Y
	}
	i := sort.Search(len(p), func(i int) bool { return p[i].X > x })
	a, b := p[i-1], p[i]
	return a.Y + (b.Y-a.Y)*(x-a.X)/(b.X-a.X)
}

// Transfer combines colour and opacity.
type Transfer struct {
	Color   ColorFunc
	Opacity Piecewise
}

// DefaultTransfer returns the Standard colormap with DefaultOpacity.
func DefaultTransfer() Transfer {
	return Transfer{
		Color:   NewColorFunc(ToRGBPoints(Standard)),
		Opacity: DefaultOpacity,
	}
}
