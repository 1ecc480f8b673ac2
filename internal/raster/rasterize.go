package raster

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/paulmach/orb"
	"golang.org/x/image/vector"

	"github.com/forestline/corridor/internal/geom"
)

// Rasterize sets every cell of m that is at least half covered by g. g must
// be a Polygon or MultiPolygon; other kinds return geom.ErrUnsupportedGeometry.
func Rasterize(g orb.Geometry, m Mask) error {
	var polys []orb.Polygon
	switch g := g.(type) {
	case orb.Polygon:
		polys = []orb.Polygon{g}
	case orb.MultiPolygon:
		polys = g
	default:
		return fmt.Errorf("%w: cannot rasterize %T", geom.ErrUnsupportedGeometry, g)
	}
	if m.Width == 0 || m.Height == 0 {
		return nil
	}

	z := vector.NewRasterizer(m.Width, m.Height)
	z.DrawOp = draw.Src
	drawn := false
	for _, poly := range polys {
		for i, ring := range poly {
			want := orb.CCW
			if i > 0 {
				want = orb.CW
			}
			if !addRing(z, m.Transform, ring, want) {
				return fmt.Errorf("raster: degenerate transform")
			}
			drawn = true
		}
	}
	if !drawn {
		return nil
	}

	dst := image.NewAlpha(image.Rect(0, 0, m.Width, m.Height))
	z.Draw(dst, dst.Bounds(), image.Opaque, image.Point{})
	for r := 0; r < m.Height; r++ {
		for c := 0; c < m.Width; c++ {
			if dst.AlphaAt(c, r).A >= 128 {
				m.Set(r, c, true)
			}
		}
	}
	return nil
}

// addRing draws one ring in pixel space with a fixed winding so that holes
// cancel their shell.
func addRing(z *vector.Rasterizer, t Transform, ring orb.Ring, want orb.Orientation) bool {
	if len(ring) < 3 {
		return true
	}
	r := ring
	if r.Orientation() != want {
		r = append(orb.Ring(nil), ring...)
		r.Reverse()
	}
	for i, p := range r {
		col, row, ok := t.Invert(p[0], p[1])
		if !ok {
			return false
		}
		if i == 0 {
			z.MoveTo(float32(col), float32(row))
		} else {
			z.LineTo(float32(col), float32(row))
		}
	}
	z.ClosePath()
	return true
}
