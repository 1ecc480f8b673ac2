package corridor

import (
	"container/heap"
	"math"

	"github.com/forestline/corridor/internal/raster"
)

var neighbours = [8][2]int{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

// CostDistance returns the accumulated cost from the nearest source to
// every cell. Moving between neighbours costs the mean of their costs times
// the step length. Invalid cells are impassable and unreachable cells are
// +Inf. Sources on invalid cells are ignored.
func CostDistance(cost *raster.Raster, sources []raster.Cell) []float64 {
	n := cost.Width * cost.Height
	dist := make([]float64, n)
	for i := range dist {
		dist[i] = math.Inf(1)
	}
	cw, ch := cost.CellSize()
	diag := math.Hypot(cw, ch)

	pq := &cellQueue{}
	for _, s := range sources {
		if !cost.InBounds(s.Row, s.Col) {
			continue
		}
		i := cost.Index(s.Row, s.Col)
		if !cost.Valid[i] || dist[i] == 0 {
			continue
		}
		dist[i] = 0
		heap.Push(pq, queued{idx: i, dist: 0})
	}

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(queued)
		if cur.dist > dist[cur.idx] {
			continue
		}
		row, col := cur.idx/cost.Width, cur.idx%cost.Width
		here := cost.Data[cur.idx]
		for _, nb := range neighbours {
			r, c := row+nb[0], col+nb[1]
			if !cost.InBounds(r, c) {
				continue
			}
			j := cost.Index(r, c)
			if !cost.Valid[j] {
				continue
			}
			step := diag
			switch {
			case nb[0] == 0:
				step = cw
			case nb[1] == 0:
				step = ch
			}
			d := cur.dist + (here+cost.Data[j])/2*step
			if d < dist[j] {
				dist[j] = d
				heap.Push(pq, queued{idx: j, dist: d})
			}
		}
	}
	return dist
}

type queued struct {
	idx  int
	dist float64
}

type cellQueue []queued

func (q cellQueue) Len() int { return len(q) }
func (q cellQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].idx < q[j].idx
}
func (q cellQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *cellQueue) Push(x interface{}) { *q = append(*q, x.(queued)) }
func (q *cellQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
