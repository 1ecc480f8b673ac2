package raster

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Kernel is a set of cell offsets relative to a focal cell.
type Kernel []Cell

// CircleKernel returns the offsets whose centres lie within radius map units
// of the focal cell, given the cell sizes. The radius is at least one cell.
func CircleKernel(cellWidth, cellHeight, radius float64) Kernel {
	rc := max(int(math.Ceil(radius/cellWidth)), 1)
	rr := max(int(math.Ceil(radius/cellHeight)), 1)
	limit := math.Max(radius, math.Max(cellWidth, cellHeight))
	var k Kernel
	for dr := -rr; dr <= rr; dr++ {
		for dc := -rc; dc <= rc; dc++ {
			if math.Hypot(float64(dc)*cellWidth, float64(dr)*cellHeight) <= limit+1e-9 {
				k = append(k, Cell{Row: dr, Col: dc})
			}
		}
	}
	return k
}

// FocalMeanStd computes the mean and population standard deviation of the
// valid cells under the kernel for every valid cell of r. Invalid cells stay
// invalid in both outputs.
func FocalMeanStd(r *Raster, k Kernel) (mean, std *Raster) {
	mean, std = NewLike(r), NewLike(r)
	buf := make([]float64, 0, len(k))
	for row := 0; row < r.Height; row++ {
		for col := 0; col < r.Width; col++ {
			if !r.Valid[r.Index(row, col)] {
				continue
			}
			buf = buf[:0]
			for _, off := range k {
				if v, ok := r.At(row+off.Row, col+off.Col); ok {
					buf = append(buf, v)
				}
			}
			m, s := stat.PopMeanStdDev(buf, nil)
			mean.Set(row, col, m)
			std.Set(row, col, s)
		}
	}
	return mean, std
}
