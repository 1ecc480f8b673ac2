package network

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"

	"github.com/forestline/corridor/internal/geom"
	"github.com/forestline/corridor/internal/monitoring"
)

// DefaultAngleThreshold is the largest turning angle, in degrees, at which
// two lines meeting at a vertex are still considered one corridor.
const DefaultAngleThreshold = 30.0

// GroupingOptions configures LineGrouping.
type GroupingOptions struct {
	// UseAngle pairs lines at a shared vertex by smallest turning angle.
	// When false every line touching the vertex joins one group.
	UseAngle bool
	// AngleThreshold in degrees; zero means DefaultAngleThreshold.
	AngleThreshold float64
	// SnapTolerance is the distance within which endpoints are one vertex.
	SnapTolerance float64
}

// DefaultGroupingOptions returns angle-based grouping at 30 degrees.
func DefaultGroupingOptions() GroupingOptions {
	return GroupingOptions{UseAngle: true, AngleThreshold: DefaultAngleThreshold, SnapTolerance: geom.Tolerance}
}

func (o GroupingOptions) threshold() float64 {
	if o.AngleThreshold <= 0 {
		return DefaultAngleThreshold
	}
	return o.AngleThreshold
}

// Group is a set of features judged to be one corridor.
type Group struct {
	Label   int
	Members []int // indices into LineGrouping.Lines
}

// LineGrouping assigns BT_GROUP labels to line features.
type LineGrouping struct {
	Lines []geom.Feature
	opts  GroupingOptions

	parent []int
	groups []Group
}

// NewLineGrouping copies features so grouping never mutates the caller's slice.
func NewLineGrouping(features []geom.Feature, opts GroupingOptions) *LineGrouping {
	lines := make([]geom.Feature, len(features))
	for i, f := range features {
		lines[i] = f.Clone()
	}
	if opts.SnapTolerance <= 0 {
		opts.SnapTolerance = geom.Tolerance
	}
	return &LineGrouping{Lines: lines, opts: opts}
}

type lineEnd struct {
	line int
	pt   orb.Point
	dir  orb.Point // unit vector pointing into the line
	ok   bool
}

func (lg *LineGrouping) find(i int) int {
	for lg.parent[i] != i {
		lg.parent[i] = lg.parent[lg.parent[i]]
		i = lg.parent[i]
	}
	return i
}

func (lg *LineGrouping) union(a, b int) {
	ra, rb := lg.find(a), lg.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		lg.parent[rb] = ra
	} else {
		lg.parent[ra] = rb
	}
}

// RunGrouping computes groups and writes the BT_GROUP label into every line.
func (lg *LineGrouping) RunGrouping() error {
	lg.parent = make([]int, len(lg.Lines))
	for i := range lg.parent {
		lg.parent[i] = i
	}

	var ends []lineEnd
	for i, f := range lg.Lines {
		parts, err := geom.Lines(f.Geometry)
		if err != nil {
			return fmt.Errorf("group OLnFID %d: %w", f.FID, err)
		}
		for _, ls := range parts {
			if len(ls) < 2 {
				continue
			}
			a, b := geom.Endpoints(ls)
			da, oka := geom.Direction(ls, true)
			db, okb := geom.Direction(ls, false)
			ends = append(ends, lineEnd{i, a, da, oka}, lineEnd{i, b, db, okb})
		}
	}

	pts := make([]orb.Point, len(ends))
	for i, e := range ends {
		pts[i] = e.pt
	}
	labels := geom.ClusterPoints(pts, lg.opts.SnapTolerance)
	vertices := make(map[int][]int)
	var order []int
	for i, l := range labels {
		if _, seen := vertices[l]; !seen {
			order = append(order, l)
		}
		vertices[l] = append(vertices[l], i)
	}

	for _, v := range order {
		members := vertices[v]
		if lg.opts.UseAngle {
			lg.pairByAngle(ends, members)
			continue
		}
		for _, m := range members[1:] {
			lg.union(ends[members[0]].line, ends[m].line)
		}
	}

	lg.label()
	return nil
}

// pairByAngle joins line ends at one vertex greedily: the straightest
// continuation first, each end used at most once.
func (lg *LineGrouping) pairByAngle(ends []lineEnd, members []int) {
	type candidate struct {
		a, b  int
		angle float64
	}
	limit := lg.opts.threshold()
	var cands []candidate
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			ea, eb := ends[members[i]], ends[members[j]]
			if ea.line == eb.line || !ea.ok || !eb.ok {
				continue
			}
			angle := TurningAngle(ea.dir, eb.dir)
			if angle <= limit {
				cands = append(cands, candidate{members[i], members[j], angle})
			}
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].angle < cands[j].angle })
	taken := make(map[int]bool)
	for _, c := range cands {
		if taken[c.a] || taken[c.b] {
			continue
		}
		taken[c.a], taken[c.b] = true, true
		lg.union(ends[c.a].line, ends[c.b].line)
		monitoring.Tracef("group: join OLnFID %d and %d at %.1f deg", lg.Lines[ends[c.a].line].FID, lg.Lines[ends[c.b].line].FID, c.angle)
	}
}

// TurningAngle returns the deflection in degrees between two lines leaving
// a shared vertex along unit directions a and b. Lines continuing straight
// through the vertex deflect by 0, a hairpin by 180.
func TurningAngle(a, b orb.Point) float64 {
	c := -(a[0]*b[0] + a[1]*b[1])
	c = math.Max(-1, math.Min(1, c))
	return math.Acos(c) * 180 / math.Pi
}

func (lg *LineGrouping) label() {
	byRoot := make(map[int][]int)
	var roots []int
	for i := range lg.Lines {
		r := lg.find(i)
		if _, ok := byRoot[r]; !ok {
			roots = append(roots, r)
		}
		byRoot[r] = append(byRoot[r], i)
	}
	lg.groups = lg.groups[:0]
	for _, r := range roots {
		members := byRoot[r]
		label := lg.Lines[members[0]].FID
		for _, m := range members[1:] {
			if fid := lg.Lines[m].FID; fid < label {
				label = fid
			}
		}
		for _, m := range members {
			lg.Lines[m].Group = label
		}
		lg.groups = append(lg.groups, Group{Label: label, Members: members})
	}
	sort.SliceStable(lg.groups, func(i, j int) bool { return lg.groups[i].Label < lg.groups[j].Label })
	monitoring.Diagf("group: %d lines in %d groups", len(lg.Lines), len(lg.groups))
}

// Groups returns the groups found by RunGrouping, ordered by label.
func (lg *LineGrouping) Groups() []Group {
	return lg.groups
}

// RunLineMerge merges the lines of each group. Every resulting chain is one
// feature with OLnFID and BT_GROUP set to the group label and OLnSEG
// numbering the chains of that group.
func (lg *LineGrouping) RunLineMerge() ([]geom.Feature, error) {
	if lg.parent == nil {
		if err := lg.RunGrouping(); err != nil {
			return nil, err
		}
	}
	var out []geom.Feature
	for _, g := range lg.groups {
		var parts orb.MultiLineString
		for _, m := range g.Members {
			ls, err := geom.Lines(lg.Lines[m].Geometry)
			if err != nil {
				return nil, err
			}
			parts = append(parts, ls...)
		}
		merged, err := CustomLineMerge(parts)
		if err != nil {
			return nil, err
		}
		chains, _ := geom.Lines(merged)
		template := lg.Lines[g.Members[0]]
		for k, ls := range chains {
			if len(ls) < 2 {
				continue
			}
			f := template.WithGeometry(ls)
			f.FID, f.Group, f.Seg = g.Label, g.Label, k
			out = append(out, f)
		}
	}
	return out, nil
}
