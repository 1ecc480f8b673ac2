package network

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"

	"github.com/forestline/corridor/internal/geom"
	"github.com/forestline/corridor/internal/monitoring"
)

// DefaultMinSegmentLength is the shortest piece a split may produce.
const DefaultMinSegmentLength = 1e-6

// LineSplitter splits lines at their mutual intersections.
type LineSplitter struct {
	Lines            []geom.Feature
	MinSegmentLength float64

	SplitLines         []geom.Feature
	IntersectionPoints []geom.Feature
	InvalidSplits      []geom.Feature
}

// NewLineSplitter prepares a splitter over line features. Multipart features
// are split into one line per part first.
func NewLineSplitter(features []geom.Feature) *LineSplitter {
	return &LineSplitter{Lines: features, MinSegmentLength: DefaultMinSegmentLength}
}

type splitLine struct {
	feature geom.Feature
	line    orb.LineString
	bound   orb.Bound
}

// Process computes intersection points and splits every line at the ones in
// its interior. extraPoints, typically the intersections found on another
// network, are added as split candidates for the lines they lie on.
func (s *LineSplitter) Process(extraPoints []orb.Point) error {
	minLen := s.MinSegmentLength
	if minLen <= 0 {
		minLen = DefaultMinSegmentLength
	}

	var lines []splitLine
	for _, f := range s.Lines {
		parts, err := geom.Lines(f.Geometry)
		if err != nil {
			return fmt.Errorf("split OLnFID %d: %w", f.FID, err)
		}
		for _, ls := range parts {
			ls = geom.Clean(ls)
			if len(ls) < 2 {
				continue
			}
			lines = append(lines, splitLine{feature: f, line: ls, bound: ls.Bound()})
		}
	}

	// Sweep over x so only lines with overlapping extents are compared.
	order := make([]int, len(lines))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return lines[order[a]].bound.Min[0] < lines[order[b]].bound.Min[0] })

	cuts := make([][]orb.Point, len(lines))
	var all []orb.Point
	for oi, i := range order {
		bi := lines[i].bound.Pad(geom.Tolerance)
		for _, j := range order[oi+1:] {
			if lines[j].bound.Min[0] > bi.Max[0] {
				break
			}
			if !bi.Intersects(lines[j].bound) {
				continue
			}
			pts := geom.LineIntersections(lines[i].line, lines[j].line)
			cuts[i] = append(cuts[i], pts...)
			cuts[j] = append(cuts[j], pts...)
			all = append(all, pts...)
		}
	}
	for _, p := range extraPoints {
		for i := range lines {
			if !lines[i].bound.Pad(geom.Tolerance).Contains(p) {
				continue
			}
			q := geom.Interpolate(lines[i].line, geom.Project(lines[i].line, p))
			if math.Hypot(q[0]-p[0], q[1]-p[1]) <= geom.Tolerance {
				cuts[i] = append(cuts[i], p)
			}
		}
	}

	s.IntersectionPoints = s.IntersectionPoints[:0]
	for k, p := range geom.DedupPoints(all) {
		s.IntersectionPoints = append(s.IntersectionPoints, geom.Feature{Geometry: p, FID: k})
	}

	s.SplitLines = s.SplitLines[:0]
	s.InvalidSplits = s.InvalidSplits[:0]
	segs := make(map[int]int)
	for i, l := range lines {
		pieces, invalid := splitAt(l.line, cuts[i], minLen)
		for _, p := range invalid {
			s.InvalidSplits = append(s.InvalidSplits, geom.Feature{Geometry: p, FID: l.feature.FID, Group: l.feature.Group})
		}
		for _, piece := range pieces {
			f := l.feature.WithGeometry(piece)
			f.Seg = segs[f.FID]
			segs[f.FID]++
			s.SplitLines = append(s.SplitLines, f)
		}
	}
	monitoring.Diagf("split: %d lines -> %d pieces, %d intersections, %d invalid splits",
		len(lines), len(s.SplitLines), len(s.IntersectionPoints), len(s.InvalidSplits))
	return nil
}

// splitAt cuts ls at the interior points of cuts. A cut that would leave a
// piece shorter than minLen is dropped and reported as invalid.
func splitAt(ls orb.LineString, cuts []orb.Point, minLen float64) (pieces []orb.LineString, invalid []orb.Point) {
	total := geom.Length(ls)
	var ds []float64
	for _, p := range cuts {
		d := geom.Project(ls, p)
		if d > geom.Tolerance && d < total-geom.Tolerance {
			ds = append(ds, d)
		}
	}
	sort.Float64s(ds)

	var accepted []float64
	prev := 0.0
	for i, d := range ds {
		if i > 0 && d-ds[i-1] <= geom.Tolerance {
			continue
		}
		if d-prev < minLen {
			invalid = append(invalid, geom.Interpolate(ls, d))
			continue
		}
		accepted = append(accepted, d)
		prev = d
	}
	if n := len(accepted); n > 0 && total-accepted[n-1] < minLen {
		invalid = append(invalid, geom.Interpolate(ls, accepted[n-1]))
		accepted = accepted[:n-1]
	}

	start := 0.0
	for _, d := range accepted {
		pieces = append(pieces, geom.Substring(ls, start, d))
		start = d
	}
	if len(accepted) == 0 {
		return []orb.LineString{ls.Clone()}, invalid
	}
	pieces = append(pieces, geom.Substring(ls, start, total))
	return pieces, invalid
}

// IntersectionCoords returns the intersection points as plain coordinates,
// the form Process accepts as extra split points.
func (s *LineSplitter) IntersectionCoords() []orb.Point {
	out := make([]orb.Point, 0, len(s.IntersectionPoints))
	for _, f := range s.IntersectionPoints {
		if p, ok := f.Geometry.(orb.Point); ok {
			out = append(out, p)
		}
	}
	return out
}
