package geom

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ClipLine returns the pieces of ls that lie inside area, which must be a
// Polygon or MultiPolygon.
func ClipLine(ls orb.LineString, area orb.Geometry) ([]orb.LineString, error) {
	polys, err := Polygons(area)
	if err != nil {
		return nil, err
	}
	if len(ls) < 2 {
		return nil, nil
	}
	if !ls.Bound().Intersects(area.Bound()) {
		return nil, nil
	}

	cuts := []float64{0, Length(ls)}
	for _, poly := range polys {
		for _, ring := range poly {
			for _, p := range LineIntersections(ls, orb.LineString(ring)) {
				cuts = append(cuts, Project(ls, p))
			}
		}
	}
	sort.Float64s(cuts)

	inside := func(p orb.Point) bool {
		for _, poly := range polys {
			if planar.PolygonContains(poly, p) {
				return true
			}
		}
		return false
	}

	var pieces []orb.LineString
	var cur orb.LineString
	for i := 1; i < len(cuts); i++ {
		d0, d1 := cuts[i-1], cuts[i]
		if d1-d0 <= Tolerance {
			continue
		}
		if inside(Interpolate(ls, (d0+d1)/2)) {
			part := Substring(ls, d0, d1)
			if cur != nil && Near(cur[len(cur)-1], part[0]) {
				cur = append(cur, part[1:]...)
			} else {
				if cur != nil {
					pieces = append(pieces, cur)
				}
				cur = part
			}
			continue
		}
		if cur != nil {
			pieces = append(pieces, cur)
			cur = nil
		}
	}
	if cur != nil {
		pieces = append(pieces, cur)
	}
	return pieces, nil
}

// OverlapLength returns the length of ls inside area.
func OverlapLength(ls orb.LineString, area orb.Geometry) float64 {
	pieces, err := ClipLine(ls, area)
	if err != nil {
		return 0
	}
	total := 0.0
	for _, p := range pieces {
		total += Length(p)
	}
	return total
}

// Contains reports whether p lies inside a Polygon or MultiPolygon.
func Contains(area orb.Geometry, p orb.Point) (bool, error) {
	switch a := area.(type) {
	case orb.Polygon:
		return planar.PolygonContains(a, p), nil
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(a, p), nil
	case orb.Point, orb.LineString, orb.MultiLineString:
		return false, fmt.Errorf("%w: %T has no interior", ErrUnsupportedGeometry, area)
	default:
		return false, fmt.Errorf("%w: %T", ErrUnsupportedGeometry, area)
	}
}
