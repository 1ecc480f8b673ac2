package geom

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Tolerance is the coordinate tolerance used for intersection
// deduplication, endpoint matching and length checks.
const Tolerance = 1e-9

// Length returns the planar length of ls.
func Length(ls orb.LineString) float64 {
	return planar.Length(ls)
}

// Clean drops consecutive duplicate vertices.
func Clean(ls orb.LineString) orb.LineString {
	if len(ls) == 0 {
		return nil
	}
	out := orb.LineString{ls[0]}
	for _, p := range ls[1:] {
		if !Near(p, out[len(out)-1]) {
			out = append(out, p)
		}
	}
	return out
}

// Near reports whether two points coincide within Tolerance.
func Near(a, b orb.Point) bool {
	return math.Abs(a[0]-b[0]) <= Tolerance && math.Abs(a[1]-b[1]) <= Tolerance
}

// Interpolate returns the point at distance d along ls, clamped to the ends.
func Interpolate(ls orb.LineString, d float64) orb.Point {
	if len(ls) == 0 {
		return orb.Point{}
	}
	if d <= 0 {
		return ls[0]
	}
	acc := 0.0
	for i := 1; i < len(ls); i++ {
		seg := planar.Distance(ls[i-1], ls[i])
		if acc+seg >= d && seg > 0 {
			f := (d - acc) / seg
			return lerp(ls[i-1], ls[i], f)
		}
		acc += seg
	}
	return ls[len(ls)-1]
}

func lerp(a, b orb.Point, f float64) orb.Point {
	return orb.Point{a[0] + f*(b[0]-a[0]), a[1] + f*(b[1]-a[1])}
}

// Project returns the distance along ls of the point on ls nearest to p.
func Project(ls orb.LineString, p orb.Point) float64 {
	best, bestD := 0.0, math.Inf(1)
	acc := 0.0
	for i := 1; i < len(ls); i++ {
		a, b := ls[i-1], ls[i]
		seg := planar.Distance(a, b)
		t := 0.0
		if seg > 0 {
			t = ((p[0]-a[0])*(b[0]-a[0]) + (p[1]-a[1])*(b[1]-a[1])) / (seg * seg)
			t = math.Max(0, math.Min(1, t))
		}
		q := lerp(a, b, t)
		if d := planar.DistanceSquared(p, q); d < bestD {
			bestD = d
			best = acc + t*seg
		}
		acc += seg
	}
	return best
}

// Substring returns the part of ls between distances d0 and d1.
func Substring(ls orb.LineString, d0, d1 float64) orb.LineString {
	if d1 < d0 {
		d0, d1 = d1, d0
	}
	total := Length(ls)
	d0 = math.Max(0, d0)
	d1 = math.Min(total, d1)
	out := orb.LineString{Interpolate(ls, d0)}
	acc := 0.0
	for i := 1; i < len(ls); i++ {
		acc += planar.Distance(ls[i-1], ls[i])
		if acc > d0+Tolerance && acc < d1-Tolerance {
			out = append(out, ls[i])
		}
	}
	end := Interpolate(ls, d1)
	if !Near(end, out[len(out)-1]) || len(out) == 1 {
		out = append(out, end)
	}
	return out
}

// Segmentize inserts vertices so that no segment is longer than maxLen.
func Segmentize(ls orb.LineString, maxLen float64) orb.LineString {
	if maxLen <= 0 || len(ls) < 2 {
		return ls.Clone()
	}
	out := orb.LineString{ls[0]}
	for i := 1; i < len(ls); i++ {
		seg := planar.Distance(ls[i-1], ls[i])
		n := int(math.Ceil(seg / maxLen))
		for k := 1; k < n; k++ {
			out = append(out, lerp(ls[i-1], ls[i], float64(k)/float64(n)))
		}
		out = append(out, ls[i])
	}
	return out
}

// Reversed returns a reversed copy of ls.
func Reversed(ls orb.LineString) orb.LineString {
	out := ls.Clone()
	out.Reverse()
	return out
}

// Endpoints returns the first and last vertex of ls.
func Endpoints(ls orb.LineString) (orb.Point, orb.Point) {
	return ls[0], ls[len(ls)-1]
}

// Direction returns the unit vector leaving the start (or the end) of ls
// along the line. ok is false for degenerate lines.
func Direction(ls orb.LineString, fromStart bool) (orb.Point, bool) {
	if len(ls) < 2 {
		return orb.Point{}, false
	}
	pts := ls
	if !fromStart {
		pts = Reversed(ls)
	}
	a := pts[0]
	for _, b := range pts[1:] {
		d := planar.Distance(a, b)
		if d > Tolerance {
			return orb.Point{(b[0] - a[0]) / d, (b[1] - a[1]) / d}, true
		}
	}
	return orb.Point{}, false
}
