package network

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/forestline/corridor/internal/geom"
	"github.com/forestline/corridor/internal/monitoring"
	"github.com/forestline/corridor/internal/raster"
)

// DefaultTrimCellSize is the grid resolution used to partition footprints.
const DefaultTrimCellSize = 0.5

// RunCleanup removes overlaps between group footprints. All footprints are
// rasterized onto one grid; a cell covered by several groups goes to the
// group whose merged line is nearest to the cell centre (ties to the lower
// label). Each group's cells are polygonized back into one feature. Groups
// that end up with no cells are dropped.
func RunCleanup(footprints, lines []geom.Feature, cellSize float64) ([]geom.Feature, error) {
	if cellSize <= 0 {
		cellSize = DefaultTrimCellSize
	}
	bound, ok := footprintBound(footprints)
	if !ok {
		return nil, nil
	}
	width := int(math.Ceil((bound.Max[0] - bound.Min[0]) / cellSize))
	height := int(math.Ceil((bound.Max[1] - bound.Min[1]) / cellSize))
	width, height = max(width, 1), max(height, 1)
	grid := raster.NorthUp(bound.Min[0], bound.Max[1], cellSize, cellSize)

	groupLines := make(map[int]orb.MultiLineString)
	for _, f := range lines {
		parts, err := geom.Lines(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("trim: line OLnFID %d: %w", f.FID, err)
		}
		groupLines[f.Group] = append(groupLines[f.Group], parts...)
	}

	claims := make(map[int][]int)
	templates := make(map[int]geom.Feature)
	for _, f := range footprints {
		if geom.IsEmpty(f.Geometry) {
			continue
		}
		if _, seen := templates[f.Group]; !seen {
			templates[f.Group] = f
		}
		b := f.Geometry.Bound()
		c0 := clampInt(int(math.Floor((b.Min[0]-bound.Min[0])/cellSize)), 0, width)
		c1 := clampInt(int(math.Ceil((b.Max[0]-bound.Min[0])/cellSize)), 0, width)
		r0 := clampInt(int(math.Floor((bound.Max[1]-b.Max[1])/cellSize)), 0, height)
		r1 := clampInt(int(math.Ceil((bound.Max[1]-b.Min[1])/cellSize)), 0, height)
		if c1 <= c0 || r1 <= r0 {
			continue
		}
		local := raster.NewMask(c1-c0, r1-r0, grid.Offset(c0, r0))
		if err := raster.Rasterize(f.Geometry, local); err != nil {
			return nil, fmt.Errorf("trim: footprint group %d: %w", f.Group, err)
		}
		for r := 0; r < local.Height; r++ {
			for c := 0; c < local.Width; c++ {
				if !local.Get(r, c) {
					continue
				}
				idx := (r0+r)*width + c0 + c
				gs := claims[idx]
				if n := len(gs); n == 0 || gs[n-1] != f.Group {
					claims[idx] = append(gs, f.Group)
				}
			}
		}
	}

	cells := make(map[int][]int)
	contested := 0
	for idx, gs := range claims {
		owner := gs[0]
		if len(gs) > 1 {
			contested++
			owner = nearestGroup(grid, idx%width, idx/width, gs, groupLines)
		}
		cells[owner] = append(cells[owner], idx)
	}

	labels := make([]int, 0, len(cells))
	for g := range cells {
		labels = append(labels, g)
	}
	sort.Ints(labels)

	out := make([]geom.Feature, 0, len(labels))
	for _, g := range labels {
		polys := polygonizeCells(grid, width, cells[g])
		if len(polys) == 0 {
			continue
		}
		var shape orb.Geometry = orb.MultiPolygon(polys)
		if len(polys) == 1 {
			shape = polys[0]
		}
		f := templates[g].WithGeometry(shape)
		f.FID, f.Group, f.Seg = g, g, 0
		out = append(out, f)
	}
	monitoring.Diagf("trim: %d cells contested between groups, %d footprints kept", contested, len(out))
	return out, nil
}

func footprintBound(fs []geom.Feature) (orb.Bound, bool) {
	var b orb.Bound
	found := false
	for _, f := range fs {
		if geom.IsEmpty(f.Geometry) {
			continue
		}
		if !found {
			b, found = f.Geometry.Bound(), true
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	return b, found
}

func nearestGroup(grid raster.Transform, col, row int, groups []int, lines map[int]orb.MultiLineString) int {
	x, y := grid.Apply(float64(col)+0.5, float64(row)+0.5)
	p := orb.Point{x, y}
	sorted := append([]int(nil), groups...)
	sort.Ints(sorted)
	best, bestD := sorted[0], math.Inf(1)
	for _, g := range sorted {
		ls, ok := lines[g]
		if !ok || len(ls) == 0 {
			continue
		}
		if d := planar.DistanceFrom(ls, p); d < bestD {
			best, bestD = g, d
		}
	}
	return best
}

func polygonizeCells(grid raster.Transform, width int, idx []int) []orb.Polygon {
	c0, r0 := math.MaxInt, math.MaxInt
	c1, r1 := -1, -1
	for _, i := range idx {
		c, r := i%width, i/width
		c0, c1 = min(c0, c), max(c1, c)
		r0, r1 = min(r0, r), max(r1, r)
	}
	if c1 < 0 {
		return nil
	}
	m := raster.NewMask(c1-c0+1, r1-r0+1, grid.Offset(c0, r0))
	for _, i := range idx {
		m.Set(i/width-r0, i%width-c0, true)
	}
	return raster.Polygonize(m)
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
