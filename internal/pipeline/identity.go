package pipeline

import (
	"github.com/paulmach/orb"

	"github.com/forestline/corridor/internal/geom"
)

// DefaultIdentityRatio is the share of a line's length a footprint must
// cover to belong to that line.
const DefaultIdentityRatio = 0.30

// IdentityPolygon returns the footprints that cover at least minRatio of
// the line length. Footprints the line only grazes belong to a neighbour.
func IdentityPolygon(line orb.Geometry, footprints []geom.Feature, minRatio float64) []geom.Feature {
	parts, err := geom.Lines(line)
	if err != nil {
		return nil
	}
	total := 0.0
	for _, ls := range parts {
		total += geom.Length(ls)
	}
	if total == 0 {
		return nil
	}

	lb := line.Bound()
	var out []geom.Feature
	for _, fp := range footprints {
		if fp.Geometry == nil || !fp.Geometry.Bound().Intersects(lb) {
			continue
		}
		inside := 0.0
		for _, ls := range parts {
			inside += geom.OverlapLength(ls, fp.Geometry)
		}
		if inside/total >= minRatio {
			out = append(out, fp)
		}
	}
	return out
}
