package raster

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// latticeEdge is one side of a set cell on the cell-corner lattice. Edges
// are directed so the set region lies to the right of travel in row-down
// lattice coordinates.
type latticeEdge struct {
	fromX, fromY int
	toX, toY     int
}

type latticeRing struct {
	pts  [][2]int
	area int // twice the signed area, positive for outer boundaries
}

// Polygonize traces the 4-connected regions of m into polygons with holes,
// in map coordinates. Shells are counter-clockwise and holes clockwise.
func Polygonize(m Mask) []orb.Polygon {
	edges, outgoing := boundaryEdges(m)
	if len(edges) == 0 {
		return nil
	}
	rings := traceRings(edges, outgoing, m.Width+1)

	var shells, holes []latticeRing
	for _, r := range rings {
		if r.area > 0 {
			shells = append(shells, r)
		} else if r.area < 0 {
			holes = append(holes, r)
		}
	}

	shellRings := make([]orb.Ring, len(shells))
	for i, s := range shells {
		shellRings[i] = latticeToRing(s.pts)
	}
	polyHoles := make([][]latticeRing, len(shells))
	for _, h := range holes {
		probe := orb.Point{
			float64(h.pts[0][0]+h.pts[1][0]) / 2,
			float64(h.pts[0][1]+h.pts[1][1]) / 2,
		}
		best, bestArea := -1, math.MaxInt
		for i, s := range shells {
			if s.area < bestArea && planar.RingContains(shellRings[i], probe) {
				best, bestArea = i, s.area
			}
		}
		if best >= 0 {
			polyHoles[best] = append(polyHoles[best], h)
		}
	}

	out := make([]orb.Polygon, 0, len(shells))
	for i, s := range shells {
		poly := orb.Polygon{toWorldRing(m.Transform, s.pts, orb.CCW)}
		for _, h := range polyHoles[i] {
			poly = append(poly, toWorldRing(m.Transform, h.pts, orb.CW))
		}
		out = append(out, poly)
	}
	return out
}

func boundaryEdges(m Mask) ([]latticeEdge, map[int][]int) {
	var edges []latticeEdge
	outgoing := make(map[int][]int)
	stride := m.Width + 1
	add := func(e latticeEdge) {
		outgoing[e.fromY*stride+e.fromX] = append(outgoing[e.fromY*stride+e.fromX], len(edges))
		edges = append(edges, e)
	}
	for r := 0; r < m.Height; r++ {
		for c := 0; c < m.Width; c++ {
			if !m.Get(r, c) {
				continue
			}
			if !m.Get(r-1, c) {
				add(latticeEdge{c, r, c + 1, r})
			}
			if !m.Get(r, c+1) {
				add(latticeEdge{c + 1, r, c + 1, r + 1})
			}
			if !m.Get(r+1, c) {
				add(latticeEdge{c + 1, r + 1, c, r + 1})
			}
			if !m.Get(r, c-1) {
				add(latticeEdge{c, r + 1, c, r})
			}
		}
	}
	return edges, outgoing
}

// traceRings links edges into closed rings. Where two boundaries touch at a
// corner the walk turns right, which keeps diagonal neighbours apart.
func traceRings(edges []latticeEdge, outgoing map[int][]int, stride int) []latticeRing {
	used := make([]bool, len(edges))
	var rings []latticeRing
	for start := range edges {
		if used[start] {
			continue
		}
		var pts [][2]int
		e := start
		for {
			used[e] = true
			pts = append(pts, [2]int{edges[e].fromX, edges[e].fromY})
			next := nextEdge(edges, outgoing[edges[e].toY*stride+edges[e].toX], e, start, used)
			if next < 0 || next == start {
				break
			}
			e = next
		}
		pts = dropCollinear(pts)
		if len(pts) < 3 {
			continue
		}
		rings = append(rings, latticeRing{pts: pts, area: shoelace(pts)})
	}
	return rings
}

func nextEdge(edges []latticeEdge, candidates []int, cur, start int, used []bool) int {
	dx := edges[cur].toX - edges[cur].fromX
	dy := edges[cur].toY - edges[cur].fromY
	best, bestRank := -1, 4
	for _, c := range candidates {
		if used[c] && c != start {
			continue
		}
		ndx := edges[c].toX - edges[c].fromX
		ndy := edges[c].toY - edges[c].fromY
		var rank int
		switch {
		case ndx == -dy && ndy == dx:
			rank = 0 // right turn
		case ndx == dx && ndy == dy:
			rank = 1
		case ndx == dy && ndy == -dx:
			rank = 2
		default:
			rank = 3
		}
		if rank < bestRank {
			best, bestRank = c, rank
		}
	}
	return best
}

func dropCollinear(pts [][2]int) [][2]int {
	n := len(pts)
	if n < 3 {
		return pts
	}
	out := make([][2]int, 0, n)
	for i := 0; i < n; i++ {
		prev := pts[(i+n-1)%n]
		cur := pts[i]
		next := pts[(i+1)%n]
		cross := (cur[0]-prev[0])*(next[1]-cur[1]) - (cur[1]-prev[1])*(next[0]-cur[0])
		if cross != 0 {
			out = append(out, cur)
		}
	}
	return out
}

func shoelace(pts [][2]int) int {
	a := 0
	for i := range pts {
		j := (i + 1) % len(pts)
		a += pts[i][0]*pts[j][1] - pts[j][0]*pts[i][1]
	}
	return a
}

func latticeToRing(pts [][2]int) orb.Ring {
	ring := make(orb.Ring, 0, len(pts)+1)
	for _, p := range pts {
		ring = append(ring, orb.Point{float64(p[0]), float64(p[1])})
	}
	return append(ring, ring[0])
}

func toWorldRing(t Transform, pts [][2]int, want orb.Orientation) orb.Ring {
	ring := make(orb.Ring, 0, len(pts)+1)
	for _, p := range pts {
		x, y := t.Apply(float64(p[0]), float64(p[1]))
		ring = append(ring, orb.Point{x, y})
	}
	ring = append(ring, ring[0])
	if ring.Orientation() != want {
		ring.Reverse()
	}
	return ring
}
