package sweep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultGridSize(t *testing.T) {
	g, err := DefaultGrid(10, 15)
	require.NoError(t, err)
	assert.Equal(t, 36, g.Columns)
	assert.Equal(t, 8, g.Rows)
	assert.Equal(t, 288, g.Size())
	assert.Equal(t, 4, g.EquatorialRow())
	assert.Equal(t, "output_as10_es15", g.OutputDirName())
}

func TestGridPointsVisitEachPairOnce(t *testing.T) {
	for _, tc := range []struct{ az, el float64 }{{10, 15}, {30, 40}, {2, 12}, {360, 120}} {
		g, err := DefaultGrid(tc.az, tc.el)
		require.NoError(t, err)

		pts := g.Points()
		want := int(360/tc.az) * int(120/tc.el)
		require.Len(t, pts, want)

		seen := make(map[[2]float64]bool, len(pts))
		for _, p := range pts {
			key := [2]float64{p.Azimuth, p.Elevation}
			assert.Falsef(t, seen[key], "duplicate point %v", key)
			seen[key] = true
		}
	}
}

func TestGridPointOrder(t *testing.T) {
	g, err := DefaultGrid(10, 15)
	require.NoError(t, err)
	pts := g.Points()

	assert.Equal(t, Point{Row: 0, Column: 0, Azimuth: 10, Elevation: -60}, pts[0])
	assert.Equal(t, Point{Row: 0, Column: 35, Azimuth: 360, Elevation: -60}, pts[35])
	assert.Equal(t, Point{Row: 1, Column: 0, Azimuth: 10, Elevation: -45}, pts[36])
	assert.Equal(t, Point{Row: 7, Column: 35, Azimuth: 360, Elevation: 45}, pts[287])

	// the equatorial row is level with the focal point
	assert.Equal(t, 0.0, g.At(g.EquatorialRow(), 0).Elevation)
}

func TestNewGridRejectsMalformedSteps(t *testing.T) {
	for _, tc := range []struct {
		name   string
		az, el float64
	}{
		{"zero azimuth", 0, 15},
		{"negative elevation", 10, -15},
		{"azimuth not dividing", 7, 15},
		{"elevation not dividing", 10, 50},
		{"step larger than range", 10, 240},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DefaultGrid(tc.az, tc.el)
			assert.ErrorIs(t, err, ErrInvalidGrid)
		})
	}
}

func TestOutputDirNameFractionalStep(t *testing.T) {
	g, err := DefaultGrid(7.5, 15)
	require.NoError(t, err)
	assert.Equal(t, "output_as7.5_es15", g.OutputDirName())
}
