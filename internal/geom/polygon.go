package geom

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// RemoveHoles drops the interior rings of a Polygon or MultiPolygon.
func RemoveHoles(g orb.Geometry) (orb.Geometry, error) {
	switch g := g.(type) {
	case orb.Polygon:
		if len(g) == 0 {
			return g, nil
		}
		return orb.Polygon{g[0].Clone()}, nil
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, 0, len(g))
		for _, p := range g {
			if len(p) > 0 {
				out = append(out, orb.Polygon{p[0].Clone()})
			}
		}
		return out, nil
	case orb.Point, orb.LineString, orb.MultiLineString:
		return nil, fmt.Errorf("%w: %T has no holes", ErrUnsupportedGeometry, g)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedGeometry, g)
	}
}

// CleanRing drops consecutive duplicate vertices and closes the ring.
func CleanRing(r orb.Ring) orb.Ring {
	if len(r) == 0 {
		return r
	}
	out := orb.Ring(Clean(orb.LineString(r)))
	if !Near(out[0], out[len(out)-1]) {
		out = append(out, out[0])
	} else {
		out[len(out)-1] = out[0]
	}
	return out
}

// CleanPolygon cleans every ring of p. repaired is true when the input had
// duplicate vertices, an unclosed ring, or a self-intersecting shell.
func CleanPolygon(p orb.Polygon) (out orb.Polygon, repaired bool) {
	out = make(orb.Polygon, 0, len(p))
	for i, r := range p {
		c := CleanRing(r)
		if len(c) != len(r) {
			repaired = true
		}
		if len(c) < 4 {
			if i == 0 {
				return nil, true
			}
			repaired = true
			continue
		}
		if i == 0 && len(SelfIntersections(orb.LineString(c))) > 0 {
			repaired = true
		}
		out = append(out, c)
	}
	return out, repaired
}

// Area returns the planar area of a Polygon or MultiPolygon, 0 otherwise.
func Area(g orb.Geometry) float64 {
	switch g := g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return planar.Area(g)
	default:
		return 0
	}
}
