package morph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forestline/corridor/internal/corridor"
	"github.com/forestline/corridor/internal/cost"
	"github.com/forestline/corridor/internal/raster"
	"github.com/forestline/corridor/internal/testutil"
)

func maskFrom(rows ...string) raster.Mask {
	m := raster.NewMask(len(rows[0]), len(rows), raster.NorthUp(0, float64(len(rows)), 1, 1))
	for r, row := range rows {
		for c, ch := range row {
			m.Set(r, c, ch == '#')
		}
	}
	return m
}

func TestShrinkPasses(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, ShrinkPasses(0, 0.5))
	assert.Equal(t, 2, ShrinkPasses(2, 1))
	assert.Equal(t, 2, ShrinkPasses(2, 2))
	assert.Equal(t, 4, ShrinkPasses(2, 0.5))
	assert.Equal(t, 6, ShrinkPasses(2, 0.3))
}

func TestOpen_RemovesSpur(t *testing.T) {
	t.Parallel()

	m := maskFrom(
		".......",
		".###...",
		".######",
		".###...",
		".......",
	)
	out := Open(m, 1)
	assert.Equal(t, 9, out.Count())
	assert.False(t, out.Get(2, 5))
	assert.True(t, out.Get(2, 2))
}

func TestOpen_ZeroPassesIsIdentity(t *testing.T) {
	t.Parallel()
	m := maskFrom("#.#", ".#.", "#.#")
	assert.Equal(t, m.Bits, Open(m, 0).Bits)
}

func TestErode_BorderReplicates(t *testing.T) {
	t.Parallel()

	// a band touching the window edge survives erosion along that edge
	m := maskFrom(
		"#####",
		"#####",
		"#####",
		".....",
	)
	out := Erode(m)
	assert.True(t, out.Get(0, 0))
	assert.True(t, out.Get(1, 4))
	assert.False(t, out.Get(2, 2))
}

func TestDilate(t *testing.T) {
	t.Parallel()
	m := maskFrom(".....", ".....", "..#..", ".....", ".....")
	assert.Equal(t, 9, Dilate(m).Count())
}

func TestRemoveSmallRegions(t *testing.T) {
	t.Parallel()

	m := maskFrom(
		"##....#",
		"##.....",
		".......",
		"....#..",
		".....#.",
	)
	out := RemoveSmallRegions(m, 2)
	assert.Equal(t, 6, out.Count()) // diagonal pair is one 8-connected region
	assert.False(t, out.Get(0, 6))
	assert.Equal(t, 7, m.Count(), "input must not be modified")
}

func TestClean_ExcludesCanopy(t *testing.T) {
	t.Parallel()

	chm := testutil.StripCHM(30, 20, 1, 8, 12)
	s, err := cost.Build(chm, cost.DefaultParams())
	require.NoError(t, err)
	c, err := corridor.Extract(s.Cost, raster.Cell{Row: 10, Col: 0}, raster.Cell{Row: 10, Col: 29}, 50)
	require.NoError(t, err)

	withCanopy, err := Clean(c, s.Canopy, 0, 1, Options{})
	require.NoError(t, err)
	for i, set := range withCanopy.Bits {
		if set {
			assert.Equal(t, 0.0, s.Canopy.Data[i])
		}
	}

	corridorOnly, err := Clean(c, nil, 0, 1, Options{})
	require.NoError(t, err)
	assert.Greater(t, corridorOnly.Count(), withCanopy.Count())
}

func TestClean_GridMismatch(t *testing.T) {
	t.Parallel()

	c, err := corridor.Extract(testutil.FlatCHM(5, 5, 1, 1), raster.Cell{Row: 2}, raster.Cell{Row: 2, Col: 4}, 1)
	require.NoError(t, err)
	_, err = Clean(c, testutil.FlatCHM(6, 5, 1, 0), 0, 1, DefaultOptions())
	assert.ErrorIs(t, err, raster.ErrGridMismatch)
}
