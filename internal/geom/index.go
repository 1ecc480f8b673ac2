package geom

import (
	"math"

	"github.com/paulmach/orb"
)

// SpatialIndex is a regular-grid point index for fixed-radius queries.
// The cell size should be close to the query radius.
type SpatialIndex struct {
	CellSize float64
	Grid     map[int64][]int // cell ID → point indices
	points   []orb.Point
}

// NewSpatialIndex creates an empty index with the given cell size.
func NewSpatialIndex(cellSize float64) *SpatialIndex {
	if cellSize <= 0 {
		cellSize = 1
	}
	return &SpatialIndex{CellSize: cellSize, Grid: make(map[int64][]int)}
}

// Build indexes points. Query results are indices into this slice.
func (si *SpatialIndex) Build(points []orb.Point) {
	si.points = points
	si.Grid = make(map[int64][]int, len(points))
	for i, p := range points {
		id := cellID(si.cellCoords(p))
		si.Grid[id] = append(si.Grid[id], i)
	}
}

func (si *SpatialIndex) cellCoords(p orb.Point) (int64, int64) {
	return int64(math.Floor(p[0] / si.CellSize)), int64(math.Floor(p[1] / si.CellSize))
}

// cellID pairs signed cell coordinates into one key: zigzag encoding to
// non-negative integers, then Szudzik's pairing function.
func cellID(cx, cy int64) int64 {
	a, b := zigzag(cx), zigzag(cy)
	if a >= b {
		return a*a + a + b
	}
	return a + b*b
}

func zigzag(v int64) int64 {
	if v >= 0 {
		return 2 * v
	}
	return -2*v - 1
}

// Within returns the indices of all indexed points within eps of p.
func (si *SpatialIndex) Within(p orb.Point, eps float64) []int {
	var out []int
	eps2 := eps * eps
	reach := int64(math.Ceil(eps / si.CellSize))
	cx, cy := si.cellCoords(p)
	for dx := -reach; dx <= reach; dx++ {
		for dy := -reach; dy <= reach; dy++ {
			for _, idx := range si.Grid[cellID(cx+dx, cy+dy)] {
				q := si.points[idx]
				ddx, ddy := q[0]-p[0], q[1]-p[1]
				if ddx*ddx+ddy*ddy <= eps2 {
					out = append(out, idx)
				}
			}
		}
	}
	return out
}

// ClusterPoints labels points so that any two within eps of each other share
// a label (single-linkage). Labels start at 0 and follow first appearance.
func ClusterPoints(points []orb.Point, eps float64) []int {
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = -1
	}
	si := NewSpatialIndex(eps)
	si.Build(points)

	next := 0
	for i := range points {
		if labels[i] >= 0 {
			continue
		}
		labels[i] = next
		queue := []int{i}
		for j := 0; j < len(queue); j++ {
			for _, n := range si.Within(points[queue[j]], eps) {
				if labels[n] < 0 {
					labels[n] = next
					queue = append(queue, n)
				}
			}
		}
		next++
	}
	return labels
}
