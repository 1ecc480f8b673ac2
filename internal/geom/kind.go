package geom

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

// ErrUnsupportedGeometry is returned for geometry kinds the tools do not handle.
var ErrUnsupportedGeometry = errors.New("unsupported geometry kind")

// Kind is the closed set of geometry variants handled by the tools.
type Kind int

const (
	KindPoint Kind = iota + 1
	KindLineString
	KindPolygon
	KindMultiLineString
	KindMultiPolygon
)

func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "POINT"
	case KindLineString:
		return "LINESTRING"
	case KindPolygon:
		return "POLYGON"
	case KindMultiLineString:
		return "MULTILINESTRING"
	case KindMultiPolygon:
		return "MULTIPOLYGON"
	default:
		return "GEOMETRY"
	}
}

// ParseKind is the inverse of Kind.String. Unknown names return 0.
func ParseKind(s string) Kind {
	for k := KindPoint; k <= KindMultiPolygon; k++ {
		if k.String() == s {
			return k
		}
	}
	return 0
}

// KindOf classifies g.
func KindOf(g orb.Geometry) (Kind, error) {
	switch g.(type) {
	case orb.Point:
		return KindPoint, nil
	case orb.LineString:
		return KindLineString, nil
	case orb.Polygon:
		return KindPolygon, nil
	case orb.MultiLineString:
		return KindMultiLineString, nil
	case orb.MultiPolygon:
		return KindMultiPolygon, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnsupportedGeometry, g)
	}
}

// Lines returns the line parts of a LineString or MultiLineString.
func Lines(g orb.Geometry) ([]orb.LineString, error) {
	switch g := g.(type) {
	case orb.LineString:
		return []orb.LineString{g}, nil
	case orb.MultiLineString:
		return []orb.LineString(g), nil
	case orb.Point, orb.Polygon, orb.MultiPolygon:
		return nil, fmt.Errorf("%w: expected lines, got %T", ErrUnsupportedGeometry, g)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedGeometry, g)
	}
}

// Polygons returns the polygon parts of a Polygon or MultiPolygon.
func Polygons(g orb.Geometry) ([]orb.Polygon, error) {
	switch g := g.(type) {
	case orb.Polygon:
		return []orb.Polygon{g}, nil
	case orb.MultiPolygon:
		return []orb.Polygon(g), nil
	case orb.Point, orb.LineString, orb.MultiLineString:
		return nil, fmt.Errorf("%w: expected polygons, got %T", ErrUnsupportedGeometry, g)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedGeometry, g)
	}
}

// IsEmpty reports whether g has no coordinates. Unsupported kinds are empty.
func IsEmpty(g orb.Geometry) bool {
	switch g := g.(type) {
	case orb.Point:
		return false
	case orb.LineString:
		return len(g) < 2
	case orb.Polygon:
		return len(g) == 0 || len(g[0]) < 4
	case orb.MultiLineString:
		for _, ls := range g {
			if len(ls) >= 2 {
				return false
			}
		}
		return true
	case orb.MultiPolygon:
		for _, p := range g {
			if len(p) > 0 && len(p[0]) >= 4 {
				return false
			}
		}
		return true
	default:
		return true
	}
}

