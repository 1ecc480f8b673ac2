package raster

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Window returns the sub-raster covering b, clamped to the grid.
func (r *Raster) Window(b orb.Bound) (*Raster, error) {
	c0, r0, c1, r1, ok := r.cellRange(b)
	if !ok {
		return nil, fmt.Errorf("%w: bound %v", ErrEmptyWindow, b)
	}
	out := New(c1-c0, r1-r0, r.Transform.Offset(c0, r0), r.CRS)
	out.Nodata = r.Nodata
	for row := r0; row < r1; row++ {
		src := r.Index(row, c0)
		dst := (row - r0) * out.Width
		copy(out.Data[dst:dst+out.Width], r.Data[src:src+out.Width])
		copy(out.Valid[dst:dst+out.Width], r.Valid[src:src+out.Width])
	}
	return out, nil
}

func (r *Raster) cellRange(b orb.Bound) (c0, r0, c1, r1 int, ok bool) {
	minC, minR := math.Inf(1), math.Inf(1)
	maxC, maxR := math.Inf(-1), math.Inf(-1)
	for _, p := range []orb.Point{b.Min, b.Max, {b.Min[0], b.Max[1]}, {b.Max[0], b.Min[1]}} {
		col, row, inv := r.Transform.Invert(p[0], p[1])
		if !inv {
			return 0, 0, 0, 0, false
		}
		minC, maxC = math.Min(minC, col), math.Max(maxC, col)
		minR, maxR = math.Min(minR, row), math.Max(maxR, row)
	}
	c0 = max(int(math.Floor(minC)), 0)
	r0 = max(int(math.Floor(minR)), 0)
	c1 = min(int(math.Ceil(maxC)), r.Width)
	r1 = min(int(math.Ceil(maxR)), r.Height)
	if c1 <= c0 || r1 <= r0 {
		return 0, 0, 0, 0, false
	}
	return c0, r0, c1, r1, true
}

// ClipToGeometry returns the window around g padded by buffer, with every
// cell whose centre is farther than buffer from g marked invalid.
func (r *Raster) ClipToGeometry(g orb.Geometry, buffer float64) (*Raster, error) {
	win, err := r.Window(g.Bound().Pad(buffer))
	if err != nil {
		return nil, err
	}
	for row := 0; row < win.Height; row++ {
		for col := 0; col < win.Width; col++ {
			i := win.Index(row, col)
			if !win.Valid[i] {
				continue
			}
			p := win.CellCenter(Cell{Row: row, Col: col})
			if distanceTo(g, p) > buffer {
				win.Data[i] = 0
				win.Valid[i] = false
			}
		}
	}
	return win, nil
}

func distanceTo(g orb.Geometry, p orb.Point) float64 {
	switch g := g.(type) {
	case orb.Point:
		return planar.Distance(g, p)
	case orb.Polygon:
		if planar.PolygonContains(g, p) {
			return 0
		}
		return planar.DistanceFrom(g, p)
	case orb.MultiPolygon:
		if planar.MultiPolygonContains(g, p) {
			return 0
		}
		return planar.DistanceFrom(g, p)
	default:
		return planar.DistanceFrom(g, p)
	}
}
