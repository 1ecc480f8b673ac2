package geom

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// SegmentIntersection returns the intersection of segments a1-a2 and b1-b2:
// nothing, one point, or the two ends of a collinear overlap.
func SegmentIntersection(a1, a2, b1, b2 orb.Point) []orb.Point {
	r := orb.Point{a2[0] - a1[0], a2[1] - a1[1]}
	s := orb.Point{b2[0] - b1[0], b2[1] - b1[1]}
	qp := orb.Point{b1[0] - a1[0], b1[1] - a1[1]}
	denom := cross(r, s)
	scale := math.Max(math.Hypot(r[0], r[1])*math.Hypot(s[0], s[1]), Tolerance)

	if math.Abs(denom)/scale < 1e-12 {
		if math.Abs(cross(qp, r)) > Tolerance*math.Max(math.Hypot(r[0], r[1]), 1) {
			return nil
		}
		return collinearOverlap(a1, a2, b1, b2)
	}
	t := cross(qp, s) / denom
	u := cross(qp, r) / denom
	const eps = 1e-12
	if t < -eps || t > 1+eps || u < -eps || u > 1+eps {
		return nil
	}
	t = math.Max(0, math.Min(1, t))
	return []orb.Point{{a1[0] + t*r[0], a1[1] + t*r[1]}}
}

func cross(a, b orb.Point) float64 { return a[0]*b[1] - a[1]*b[0] }

func collinearOverlap(a1, a2, b1, b2 orb.Point) []orb.Point {
	r := orb.Point{a2[0] - a1[0], a2[1] - a1[1]}
	rr := r[0]*r[0] + r[1]*r[1]
	if rr == 0 {
		if Near(a1, b1) || Near(a1, b2) {
			return []orb.Point{a1}
		}
		return nil
	}
	param := func(p orb.Point) float64 {
		return ((p[0]-a1[0])*r[0] + (p[1]-a1[1])*r[1]) / rr
	}
	t0, t1 := param(b1), param(b2)
	if t0 > t1 {
		t0, t1 = t1, t0
	}
	lo, hi := math.Max(0, t0), math.Min(1, t1)
	if lo > hi+1e-12 {
		return nil
	}
	p := orb.Point{a1[0] + lo*r[0], a1[1] + lo*r[1]}
	q := orb.Point{a1[0] + hi*r[0], a1[1] + hi*r[1]}
	if Near(p, q) {
		return []orb.Point{p}
	}
	return []orb.Point{p, q}
}

// LineIntersections returns the distinct points where a and b meet.
func LineIntersections(a, b orb.LineString) []orb.Point {
	if !a.Bound().Pad(Tolerance).Intersects(b.Bound()) {
		return nil
	}
	var pts []orb.Point
	for i := 1; i < len(a); i++ {
		sa := orb.LineString{a[i-1], a[i]}.Bound().Pad(Tolerance)
		for j := 1; j < len(b); j++ {
			if !sa.Intersects(orb.LineString{b[j-1], b[j]}.Bound()) {
				continue
			}
			pts = append(pts, SegmentIntersection(a[i-1], a[i], b[j-1], b[j])...)
		}
	}
	return DedupPoints(pts)
}

// SelfIntersections returns the points where non-adjacent segments of ls
// meet. A closed line touching its own start is not reported.
func SelfIntersections(ls orb.LineString) []orb.Point {
	var pts []orb.Point
	n := len(ls) - 1
	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 && Near(ls[0], ls[n]) {
				continue
			}
			pts = append(pts, SegmentIntersection(ls[i], ls[i+1], ls[j], ls[j+1])...)
		}
	}
	return DedupPoints(pts)
}

// DedupPoints removes points within Tolerance of an earlier point and
// returns the rest sorted by x then y.
func DedupPoints(pts []orb.Point) []orb.Point {
	if len(pts) < 2 {
		return pts
	}
	sorted := append([]orb.Point(nil), pts...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i][0] != sorted[j][0] {
			return sorted[i][0] < sorted[j][0]
		}
		return sorted[i][1] < sorted[j][1]
	})
	out := sorted[:0:0]
	for _, p := range sorted {
		dup := false
		for k := len(out) - 1; k >= 0 && p[0]-out[k][0] <= Tolerance; k-- {
			if Near(p, out[k]) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, p)
		}
	}
	return out
}
