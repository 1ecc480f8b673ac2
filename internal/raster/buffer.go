package raster

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/forestline/corridor/internal/geom"
)

// Buffer returns the region within distance of g, traced on a grid of the
// given cell size. Edges are stair-stepped at cell resolution.
func Buffer(g orb.Geometry, distance, cellSize float64) (orb.MultiPolygon, error) {
	if distance <= 0 || cellSize <= 0 {
		return nil, fmt.Errorf("raster: buffer distance %g and cell size %g must be positive", distance, cellSize)
	}
	b := g.Bound().Pad(distance + cellSize)
	w := int(math.Ceil((b.Max[0] - b.Min[0]) / cellSize))
	h := int(math.Ceil((b.Max[1] - b.Min[1]) / cellSize))
	if w <= 0 || h <= 0 {
		return nil, nil
	}
	t := NorthUp(b.Min[0], b.Max[1], cellSize, cellSize)

	seeds := NewMask(w, h, t)
	grid := &Raster{Width: w, Height: h, Transform: t}
	if err := markGeometry(grid, seeds, g, cellSize/4); err != nil {
		return nil, err
	}
	approx := DistanceTransform(seeds, cellSize, cellSize)

	out := NewMask(w, h, t)
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			d := approx[r*w+c]
			switch {
			case d <= distance-cellSize:
				out.Set(r, c, true)
			case d <= distance+cellSize:
				if distanceTo(g, grid.CellCenter(Cell{Row: r, Col: c})) <= distance {
					out.Set(r, c, true)
				}
			}
		}
	}
	return orb.MultiPolygon(Polygonize(out)), nil
}

// markGeometry sets the cells touched by the vertices and edges of g,
// sampling edges every step map units. Polygon interiors are filled.
func markGeometry(grid *Raster, m Mask, g orb.Geometry, step float64) error {
	mark := func(p orb.Point) {
		if c, ok := grid.CellOf(p); ok {
			m.Set(c.Row, c.Col, true)
		}
	}
	walk := func(pts []orb.Point) {
		for i, p := range pts {
			mark(p)
			if i == 0 {
				continue
			}
			q := pts[i-1]
			n := int(math.Ceil(math.Hypot(p[0]-q[0], p[1]-q[1]) / step))
			for k := 1; k < n; k++ {
				f := float64(k) / float64(n)
				mark(orb.Point{q[0] + f*(p[0]-q[0]), q[1] + f*(p[1]-q[1])})
			}
		}
	}
	switch g := g.(type) {
	case orb.Point:
		mark(g)
	case orb.LineString:
		walk(g)
	case orb.MultiLineString:
		for _, ls := range g {
			walk(ls)
		}
	case orb.Polygon:
		for _, r := range g {
			walk(r)
		}
		return Rasterize(g, m)
	case orb.MultiPolygon:
		for _, p := range g {
			for _, r := range p {
				walk(r)
			}
		}
		return Rasterize(g, m)
	default:
		return fmt.Errorf("%w: cannot buffer %T", geom.ErrUnsupportedGeometry, g)
	}
	return nil
}
