package centerline

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forestline/corridor/internal/geom"
	"github.com/forestline/corridor/internal/raster"
	"github.com/forestline/corridor/internal/testutil"
)

func rect(x0, y0, x1, y1 float64) orb.Polygon {
	return orb.Polygon{{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}}
}

func TestStatus_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "SUCCESS", StatusSuccess.String())
	assert.Equal(t, "NO_CORRIDOR_FOUND", StatusNoCorridorFound.String())
	assert.Equal(t, "DISCONNECTED", StatusDisconnected.String())
}

func TestFindCenterline_StraightCorridor(t *testing.T) {
	t.Parallel()

	poly := rect(0, 0, 30, 6)
	seed := orb.LineString{{1, 2}, {29, 4}}
	res := FindCenterline(poly, seed, DefaultOptions())

	require.Equal(t, StatusSuccess, res.Status)
	assert.False(t, res.Degraded)
	assert.Equal(t, seed[0], res.Line[0])
	assert.Equal(t, seed[1], res.Line[len(res.Line)-1])

	for _, p := range res.Line {
		assert.True(t, p[1] > 0 && p[1] < 6, "vertex %v left the corridor", p)
	}
	// halfway along, the line runs on the medial axis y = 3
	mid := geom.Interpolate(res.Line, geom.Length(res.Line)/2)
	assert.InDelta(t, 3.0, mid[1], 0.6)
}

func TestFindCenterline_EndpointsPreservedForBentCorridor(t *testing.T) {
	t.Parallel()

	l := orb.Polygon{{{0, 0}, {20, 0}, {20, 20}, {14, 20}, {14, 6}, {0, 6}, {0, 0}}}
	seed := orb.LineString{{1, 3}, {17, 19}}
	res := FindCenterline(l, seed, Options{CellSize: 0.5, SimplifyTolerance: 0.25})
	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, seed[0], res.Line[0])
	assert.Equal(t, seed[1], res.Line[len(res.Line)-1])
	assert.Greater(t, len(res.Line), 2, "bend must be kept")
	assert.Greater(t, geom.Length(res.Line), geom.Length(seed))
}

func TestFindCenterline_Disconnected(t *testing.T) {
	t.Parallel()

	// two blocks joined by a neck thinner than half a cell
	poly := orb.Polygon{{
		{0, 0}, {4, 0}, {4, 1.9}, {6, 1.9}, {6, 0}, {10, 0}, {10, 4},
		{6, 4}, {6, 2.1}, {4, 2.1}, {4, 4}, {0, 4}, {0, 0},
	}}
	seed := orb.LineString{{1, 1}, {9, 3}}
	res := FindCenterline(poly, seed, Options{CellSize: 1})
	assert.Equal(t, StatusDisconnected, res.Status)
	assert.Equal(t, seed, res.Line)
}

func TestFindCenterline_EmptyPolygon(t *testing.T) {
	t.Parallel()

	seed := orb.LineString{{0, 0}, {1, 1}}
	res := FindCenterline(nil, seed, DefaultOptions())
	assert.Equal(t, StatusNoCorridorFound, res.Status)
	assert.Equal(t, seed, res.Line)

	res = FindCenterline(rect(0, 0, 0, 5), seed, DefaultOptions())
	assert.Equal(t, StatusNoCorridorFound, res.Status)
}

func TestFindCenterline_DuplicateVerticesAreRepaired(t *testing.T) {
	t.Parallel()

	poly := orb.Polygon{{{0, 0}, {10, 0}, {10, 0}, {10, 4}, {0, 4}, {0, 0}}}
	res := FindCenterline(poly, orb.LineString{{0.5, 2}, {9.5, 2}}, DefaultOptions())
	assert.Equal(t, StatusSuccess, res.Status)
	assert.True(t, res.Degraded)
}

func TestFindCenterline_TinyCorridor(t *testing.T) {
	t.Parallel()

	// both endpoints snap to the same cell
	res := FindCenterline(rect(0, 0, 1, 1), orb.LineString{{0.2, 0.5}, {0.3, 0.5}}, Options{CellSize: 1})
	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, orb.LineString{{0.2, 0.5}, {0.3, 0.5}}, res.Line)
}

func TestFindCorridorPolygon(t *testing.T) {
	t.Parallel()

	m := raster.NewMask(20, 10, raster.NorthUp(0, 10, 1, 1))
	for c := 0; c < 20; c++ {
		for r := 4; r < 7; r++ {
			m.Set(r, c, true)
		}
	}
	m.Set(0, 0, true) // stray cell away from the line

	line := testutil.HorizontalLine(0.5, 19.5, 4.5)
	poly, err := FindCorridorPolygon(m, line)
	require.NoError(t, err)
	assert.InDelta(t, 60.0, geom.Area(poly), 1e-9)

	// no overlap: nearest polygon wins
	far := testutil.HorizontalLine(1.5, 2.5, 9.9)
	poly, err = FindCorridorPolygon(m, far)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, geom.Area(poly), 1e-9)

	_, err = FindCorridorPolygon(raster.NewMask(3, 3, raster.NorthUp(0, 3, 1, 1)), line)
	assert.True(t, errors.Is(err, ErrNoCorridor))
}

func TestPixelGrid_DistanceGrowsInward(t *testing.T) {
	t.Parallel()

	g := newPixelGrid(rect(0, 0, 10, 10), 1)
	require.NotNil(t, g)
	edge := g.nearestInside(orb.Point{0.5, 5.5})
	mid := g.nearestInside(orb.Point{5.5, 5.5})
	assert.Less(t, g.dist[edge], g.dist[mid])
	assert.False(t, math.IsInf(g.dist[mid], 1))
}
