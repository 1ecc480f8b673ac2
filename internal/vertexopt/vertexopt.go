// Package vertexopt moves line endpoints that meet at a junction to the
// least-cost position nearby, so lines digitized slightly off a corridor
// junction end where the corridor actually is.
package vertexopt

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/forestline/corridor/internal/corridor"
	"github.com/forestline/corridor/internal/cost"
	"github.com/forestline/corridor/internal/crs"
	"github.com/forestline/corridor/internal/execute"
	"github.com/forestline/corridor/internal/failure"
	"github.com/forestline/corridor/internal/geom"
	"github.com/forestline/corridor/internal/monitoring"
	"github.com/forestline/corridor/internal/raster"
)

// Defaults for Options.
const (
	DefaultSearchDistance = 3.0
	DefaultLineRadius     = 35.0
)

var (
	// ErrNoAnchor is returned when no member line yields an anchor on a
	// valid raster cell.
	ErrNoAnchor = errors.New("no anchor on valid cells")
	// ErrNoCandidate is returned when no cell near the vertex is reachable
	// from every anchor.
	ErrNoCandidate = errors.New("no reachable candidate cell")
)

// Options configures vertex optimization.
type Options struct {
	SearchDistance float64 // endpoints closer than this form one vertex group
	LineRadius     float64 // anchor distance along each member line
	Cost           cost.Params
	Mode           execute.Mode
	Workers        int
}

// DefaultOptions returns the standard settings.
func DefaultOptions() Options {
	return Options{
		SearchDistance: DefaultSearchDistance,
		LineRadius:     DefaultLineRadius,
		Cost:           cost.DefaultParams(),
		Mode:           execute.ModeSequential,
	}
}

// Member is one line end in a vertex group.
type Member struct {
	Line    int // index into VertexGrouping.Lines
	Part    int // part index for multipart lines
	AtStart bool
}

// VertexGroup is a cluster of nearby line ends snapped to one position.
type VertexGroup struct {
	ID        int
	Centroid  orb.Point
	Members   []Member
	Optimized orb.Point
	Solved    bool
}

// VertexGrouping finds vertex groups among line endpoints and optimizes them
// against a CHM.
type VertexGrouping struct {
	Lines  []geom.Feature
	CHM    *raster.Raster
	Opts   Options
	Groups []VertexGroup
}

// NewVertexGrouping copies lines so optimization never touches the caller's
// geometry.
func NewVertexGrouping(lines []geom.Feature, chm *raster.Raster, opts Options) *VertexGrouping {
	own := make([]geom.Feature, len(lines))
	for i, f := range lines {
		own[i] = f.Clone()
	}
	return &VertexGrouping{Lines: own, CHM: chm, Opts: opts}
}

func (vg *VertexGrouping) part(m Member) orb.LineString {
	parts, _ := geom.Lines(vg.Lines[m.Line].Geometry)
	return parts[m.Part]
}

// CreateAllVertexGroups clusters all line endpoints within SearchDistance.
func (vg *VertexGrouping) CreateAllVertexGroups() error {
	var (
		pts     []orb.Point
		members []Member
	)
	for i, f := range vg.Lines {
		parts, err := geom.Lines(f.Geometry)
		if err != nil {
			return fmt.Errorf("%w: OLnFID %d: %w", failure.ErrInput, f.FID, err)
		}
		for p, ls := range parts {
			if len(ls) < 2 {
				continue
			}
			a, b := geom.Endpoints(ls)
			pts = append(pts, a, b)
			members = append(members, Member{i, p, true}, Member{i, p, false})
		}
	}

	labels := geom.ClusterPoints(pts, vg.Opts.SearchDistance)
	// A part whose two ends share a group would collapse to a point, so it
	// keeps its geometry and joins no group.
	short := 0
	for i := 0; i < len(labels); i += 2 {
		if labels[i] == labels[i+1] {
			labels[i], labels[i+1] = -1, -1
			short++
		}
	}
	dense := make(map[int]int)
	vg.Groups = nil
	for i, l := range labels {
		if l < 0 {
			continue
		}
		id, ok := dense[l]
		if !ok {
			id = len(vg.Groups)
			dense[l] = id
			vg.Groups = append(vg.Groups, VertexGroup{ID: id})
		}
		g := &vg.Groups[id]
		g.Members = append(g.Members, members[i])
		g.Centroid[0] += pts[i][0]
		g.Centroid[1] += pts[i][1]
	}
	for i := range vg.Groups {
		k := float64(len(vg.Groups[i].Members))
		vg.Groups[i].Centroid[0] /= k
		vg.Groups[i].Centroid[1] /= k
	}
	if short > 0 {
		monitoring.Diagf("vertex: %d parts shorter than the search distance left unchanged", short)
	}
	monitoring.Diagf("vertex: %d endpoints in %d groups", len(pts), len(vg.Groups))
	return nil
}

type solved struct {
	id int
	pt orb.Point
}

// Compute solves every vertex group independently. Groups that cannot be
// solved keep their original endpoints.
func (vg *VertexGrouping) Compute(ctx context.Context) error {
	ids := make([]int, len(vg.Groups))
	for i := range ids {
		ids[i] = i
	}
	results, err := execute.Run(ctx, func(_ context.Context, id int) (solved, error) {
		pt, err := vg.solve(vg.Groups[id])
		if err != nil {
			return solved{}, fmt.Errorf("vertex group %d at %v: %w", id, vg.Groups[id].Centroid, err)
		}
		return solved{id, pt}, nil
	}, ids, execute.Options[solved]{Mode: vg.Opts.Mode, Workers: vg.Opts.Workers, Label: "vertex optimization"})
	if err != nil {
		return err
	}
	for _, r := range results {
		vg.Groups[r.id].Optimized = r.pt
		vg.Groups[r.id].Solved = true
	}
	monitoring.Opsf("vertex: %d of %d groups optimized", len(results), len(vg.Groups))
	return nil
}

// anchors returns the point LineRadius along each member line away from
// the group. A line shorter than LineRadius is anchored at its midpoint so
// the anchor never sits on the junction at its far end.
func (vg *VertexGrouping) anchors(g VertexGroup) []orb.Point {
	out := make([]orb.Point, 0, len(g.Members))
	for _, m := range g.Members {
		ls := vg.part(m)
		length := geom.Length(ls)
		d := vg.Opts.LineRadius
		if d >= length {
			d = length / 2
		}
		if !m.AtStart {
			d = length - d
		}
		out = append(out, geom.Interpolate(ls, d))
	}
	return out
}

func (vg *VertexGrouping) solve(g VertexGroup) (orb.Point, error) {
	anchors := vg.anchors(g)
	b := orb.Bound{Min: g.Centroid, Max: g.Centroid}
	for _, a := range anchors {
		b = b.Extend(a)
	}
	cw, ch := vg.CHM.CellSize()
	radius := math.Min(vg.Opts.SearchDistance, vg.Opts.LineRadius)
	b = b.Pad(math.Max(radius, 2*math.Max(cw, ch)))

	window, err := vg.CHM.Window(b)
	if err != nil {
		return orb.Point{}, failure.Skip(failure.SkipNodataWindow, err)
	}
	surface, err := cost.Build(window, vg.Opts.Cost)
	if err != nil {
		return orb.Point{}, failure.Skip(failure.SkipNodataWindow, err)
	}
	costs := surface.Cost

	total := make([]float64, len(costs.Data))
	used := 0
	for _, a := range anchors {
		cell, ok := costs.CellOf(a)
		if !ok || !costs.Valid[costs.Index(cell.Row, cell.Col)] {
			continue
		}
		dist := corridor.CostDistance(costs, []raster.Cell{cell})
		for i, d := range dist {
			total[i] += d
		}
		used++
	}
	if used == 0 {
		return orb.Point{}, failure.Skip(failure.SkipNodataWindow, ErrNoAnchor)
	}

	best, bestCost := -1, math.Inf(1)
	for row := 0; row < costs.Height; row++ {
		for col := 0; col < costs.Width; col++ {
			i := costs.Index(row, col)
			if !costs.Valid[i] || math.IsInf(total[i], 1) {
				continue
			}
			c := costs.CellCenter(raster.Cell{Row: row, Col: col})
			if math.Hypot(c[0]-g.Centroid[0], c[1]-g.Centroid[1]) > radius {
				continue
			}
			if total[i] < bestCost {
				best, bestCost = i, total[i]
			}
		}
	}
	if best < 0 {
		return orb.Point{}, failure.Skip(failure.SkipDisconnected, ErrNoCandidate)
	}
	pt := costs.CellCenter(raster.Cell{Row: best / costs.Width, Col: best % costs.Width})
	monitoring.Tracef("vertex group %d: %v -> %v (cost %.3f, %d anchors)", g.ID, g.Centroid, pt, bestCost, used)
	return pt, nil
}

// UpdateAllLines moves every member endpoint of a solved group to the
// optimized position. Vertex counts are unchanged.
func (vg *VertexGrouping) UpdateAllLines() {
	moved := 0
	for _, g := range vg.Groups {
		if !g.Solved {
			continue
		}
		for _, m := range g.Members {
			ls := vg.part(m)
			if m.AtStart {
				ls[0] = g.Optimized
			} else {
				ls[len(ls)-1] = g.Optimized
			}
			moved++
		}
	}
	monitoring.Diagf("vertex: moved %d endpoints", moved)
}

// Optimize runs the whole vertex optimization. The line and raster spatial
// references must match; otherwise an input error is returned before any
// work is done.
func Optimize(ctx context.Context, lines geom.Collection, chm *raster.Raster, opts Options) ([]geom.Feature, error) {
	if err := crs.Check(lines.CRS, chm.CRS); err != nil {
		return nil, err
	}
	vg := NewVertexGrouping(lines.Features, chm, opts)
	if err := vg.CreateAllVertexGroups(); err != nil {
		return nil, err
	}
	if err := vg.Compute(ctx); err != nil {
		return nil, err
	}
	vg.UpdateAllLines()
	return vg.Lines, nil
}
