package geom

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
)

// ErrDegenerate is returned when a construction has no defined direction.
var ErrDegenerate = errors.New("degenerate geometry")

// PerpendicularLine returns a line of half-length offset through mid,
// perpendicular to the chord prev-next.
func PerpendicularLine(prev, mid, next orb.Point, offset float64) (orb.LineString, error) {
	dx, dy := next[0]-prev[0], next[1]-prev[1]
	l := math.Hypot(dx, dy)
	if l <= Tolerance {
		return nil, ErrDegenerate
	}
	nx, ny := -dy/l*offset, dx/l*offset
	return orb.LineString{{mid[0] - nx, mid[1] - ny}, {mid[0] + nx, mid[1] + ny}}, nil
}
