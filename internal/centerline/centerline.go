package centerline

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/forestline/corridor/internal/geom"
	"github.com/forestline/corridor/internal/monitoring"
	"github.com/forestline/corridor/internal/raster"
)

// ErrNoCorridor is returned when a mask contains no corridor polygon.
var ErrNoCorridor = errors.New("no corridor polygon")

// Status reports how a centerline was obtained.
type Status int

const (
	StatusSuccess Status = iota
	StatusNoCorridorFound
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusNoCorridorFound:
		return "NO_CORRIDOR_FOUND"
	case StatusDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Defaults for Options.
const (
	DefaultCellSize          = 0.5
	DefaultSimplifyTolerance = 0.5
)

// Options tunes FindCenterline.
type Options struct {
	CellSize          float64 // rasterization resolution, map units
	SimplifyTolerance float64 // Douglas-Peucker tolerance; zero disables
}

// DefaultOptions returns the standard centerline options.
func DefaultOptions() Options {
	return Options{CellSize: DefaultCellSize, SimplifyTolerance: DefaultSimplifyTolerance}
}

// Result is the outcome of FindCenterline. When Status is not
// StatusSuccess, Line is the seed line unchanged.
type Result struct {
	Line     orb.LineString
	Status   Status
	Degraded bool // the polygon needed repair (duplicate vertices, self-intersection)
}

// FindCorridorPolygon polygonizes a corridor mask and returns the polygon
// that overlaps the seed line the most, or the nearest one when none does.
func FindCorridorPolygon(m raster.Mask, line orb.LineString) (orb.Polygon, error) {
	polys := raster.Polygonize(m)
	if len(polys) == 0 {
		return nil, ErrNoCorridor
	}
	best, bestOverlap := -1, 0.0
	for i, p := range polys {
		if o := geom.OverlapLength(line, p); o > bestOverlap {
			best, bestOverlap = i, o
		}
	}
	if best >= 0 {
		return polys[best], nil
	}

	mid := geom.Interpolate(line, geom.Length(line)/2)
	bestDist := math.Inf(1)
	for i, p := range polys {
		d := planar.DistanceFrom(p, mid)
		if planar.PolygonContains(p, mid) {
			d = 0
		}
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return polys[best], nil
}

// FindCenterline returns the centerline of poly between the endpoints of line.
func FindCenterline(poly orb.Polygon, line orb.LineString, opts Options) Result {
	fallback := Result{Line: line, Status: StatusNoCorridorFound}
	if len(line) < 2 {
		return fallback
	}
	if opts.CellSize <= 0 {
		opts.CellSize = DefaultCellSize
	}

	clean, repaired := geom.CleanPolygon(poly)
	fallback.Degraded = repaired
	if len(clean) == 0 || geom.Area(clean) <= 0 {
		return fallback
	}

	g := newPixelGrid(clean, opts.CellSize)
	if g == nil {
		return fallback
	}
	start, end := geom.Endpoints(line)
	src, dst := g.nearestInside(start), g.nearestInside(end)

	var cells []int
	if src == dst {
		cells = []int{src}
	} else {
		cells = g.shortestPath(src, dst)
		if cells == nil {
			monitoring.Diagf("centerline: corridor polygon is disconnected between line endpoints")
			return Result{Line: line, Status: StatusDisconnected, Degraded: repaired}
		}
	}

	out := make(orb.LineString, 0, len(cells)+2)
	out = append(out, start)
	if len(cells) > 2 {
		for _, c := range cells[1 : len(cells)-1] {
			out = append(out, g.center(c))
		}
	}
	out = append(out, end)
	out = geom.Clean(out)
	if len(out) < 2 {
		out = orb.LineString{start, end}
	}
	if opts.SimplifyTolerance > 0 && len(out) > 2 {
		if s, ok := simplify.DouglasPeucker(opts.SimplifyTolerance).Simplify(out.Clone()).(orb.LineString); ok && len(s) >= 2 {
			out = s
		}
	}
	return Result{Line: out, Status: StatusSuccess, Degraded: repaired}
}

// pixelGrid is a rasterized corridor polygon with per-cell edge distance.
type pixelGrid struct {
	mask raster.Mask
	dist []float64
	grid *raster.Raster
	size float64
}

func newPixelGrid(poly orb.Polygon, cellSize float64) *pixelGrid {
	b := poly.Bound().Pad(cellSize)
	w := int(math.Ceil((b.Max[0] - b.Min[0]) / cellSize))
	h := int(math.Ceil((b.Max[1] - b.Min[1]) / cellSize))
	if w <= 0 || h <= 0 {
		return nil
	}
	t := raster.NorthUp(b.Min[0], b.Max[1], cellSize, cellSize)
	m := raster.NewMask(w, h, t)
	if err := raster.Rasterize(poly, m); err != nil || m.Count() == 0 {
		return nil
	}
	outside := raster.NewMask(w, h, t)
	for i, set := range m.Bits {
		outside.Bits[i] = !set
	}
	return &pixelGrid{
		mask: m,
		dist: raster.DistanceTransform(outside, cellSize, cellSize),
		grid: &raster.Raster{Width: w, Height: h, Transform: t},
		size: cellSize,
	}
}

func (g *pixelGrid) center(i int) orb.Point {
	return g.grid.CellCenter(raster.Cell{Row: i / g.mask.Width, Col: i % g.mask.Width})
}

func (g *pixelGrid) nearestInside(p orb.Point) int {
	best, bestD := -1, math.Inf(1)
	for i, set := range g.mask.Bits {
		if !set {
			continue
		}
		if d := planar.DistanceSquared(p, g.center(i)); d < bestD {
			best, bestD = i, d
		}
	}
	return best
}

// shortestPath runs Dijkstra over the interior cells. Cells far from the
// edge are cheaper, which pulls the path towards the medial axis.
func (g *pixelGrid) shortestPath(src, dst int) []int {
	w := g.mask.Width
	cellWeight := func(i int) float64 { return 1 / (1 + g.dist[i]) }

	gr := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	for i, set := range g.mask.Bits {
		if !set {
			continue
		}
		if gr.Node(int64(i)) == nil {
			gr.AddNode(simple.Node(i))
		}
		r, c := i/w, i%w
		for _, nb := range [][2]int{{0, 1}, {1, -1}, {1, 0}, {1, 1}} {
			rr, cc := r+nb[0], c+nb[1]
			if !g.mask.Get(rr, cc) {
				continue
			}
			j := rr*w + cc
			step := g.size
			if nb[0] != 0 && nb[1] != 0 {
				step *= math.Sqrt2
			}
			weight := step * (cellWeight(i) + cellWeight(j)) / 2
			gr.SetWeightedEdge(gr.NewWeightedEdge(simple.Node(i), simple.Node(j), weight))
		}
	}

	shortest := path.DijkstraFrom(simple.Node(src), gr)
	nodes, cost := shortest.To(int64(dst))
	if len(nodes) == 0 || math.IsInf(cost, 1) {
		return nil
	}
	out := make([]int, len(nodes))
	for k, n := range nodes {
		out[k] = int(n.ID())
	}
	return out
}
