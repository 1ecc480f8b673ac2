// Package morph cleans a thresholded corridor into a binary footprint mask:
// canopy exclusion, a morphological opening, and removal of small regions.
package morph

import (
	"fmt"
	"math"

	"github.com/forestline/corridor/internal/corridor"
	"github.com/forestline/corridor/internal/failure"
	"github.com/forestline/corridor/internal/monitoring"
	"github.com/forestline/corridor/internal/raster"
)

// DefaultMinRegionArea is the smallest region, in map units squared, kept
// by Clean.
const DefaultMinRegionArea = 1.0

// Options tunes Clean.
type Options struct {
	// MinRegionArea drops 8-connected regions smaller than this area.
	// Zero keeps every region.
	MinRegionArea float64
}

// DefaultOptions returns the standard cleaning options.
func DefaultOptions() Options {
	return Options{MinRegionArea: DefaultMinRegionArea}
}

// ShrinkPasses converts the shrink parameter to a number of erosion passes.
// Sub-metre rasters express it in map units.
func ShrinkPasses(expShrinkCells int, cellSize float64) int {
	if expShrinkCells <= 0 {
		return 0
	}
	if cellSize > 0 && cellSize < 1 {
		return int(math.Floor(float64(expShrinkCells) / cellSize))
	}
	return expShrinkCells
}

// Clean binarizes the corridor, removes canopy cells when canopy is not nil,
// applies an opening of ShrinkPasses(expShrinkCells, cellSize) passes and
// drops small regions.
func Clean(c *corridor.Corridor, canopy *raster.Raster, expShrinkCells int, cellSize float64, opts Options) (raster.Mask, error) {
	m := c.Mask()
	if canopy != nil {
		if err := raster.CheckSameGrid(c.Cost, canopy); err != nil {
			return raster.Mask{}, fmt.Errorf("%w: %w", failure.ErrComputation, err)
		}
		for i := range m.Bits {
			if canopy.Valid[i] && canopy.Data[i] == 1 {
				m.Bits[i] = false
			}
		}
	}

	passes := ShrinkPasses(expShrinkCells, cellSize)
	m = Open(m, passes)

	if opts.MinRegionArea > 0 {
		cw, ch := c.Cost.CellSize()
		minCells := int(math.Ceil(opts.MinRegionArea / (cw * ch)))
		m = RemoveSmallRegions(m, minCells)
	}
	monitoring.Tracef("morph: %d passes, %d cells kept", passes, m.Count())
	return m, nil
}

// Open applies n erosions followed by n dilations with a 3x3 element.
func Open(m raster.Mask, n int) raster.Mask {
	out := m
	for i := 0; i < n; i++ {
		out = Erode(out)
	}
	for i := 0; i < n; i++ {
		out = Dilate(out)
	}
	return out
}

// Erode clears every cell with an unset 8-neighbour. Cells beyond the
// border take the value of the nearest edge cell.
func Erode(m raster.Mask) raster.Mask {
	return apply(m, false)
}

// Dilate sets every cell with a set 8-neighbour.
func Dilate(m raster.Mask) raster.Mask {
	return apply(m, true)
}

func apply(m raster.Mask, dilate bool) raster.Mask {
	out := raster.NewMask(m.Width, m.Height, m.Transform)
	for r := 0; r < m.Height; r++ {
		for c := 0; c < m.Width; c++ {
			v := !dilate
			for dr := -1; dr <= 1 && v != dilate; dr++ {
				for dc := -1; dc <= 1; dc++ {
					rr := clamp(r+dr, m.Height)
					cc := clamp(c+dc, m.Width)
					if m.Get(rr, cc) == dilate {
						v = dilate
						break
					}
				}
			}
			out.Set(r, c, v)
		}
	}
	return out
}

func clamp(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}

// RemoveSmallRegions clears 8-connected regions with fewer than minCells cells.
func RemoveSmallRegions(m raster.Mask, minCells int) raster.Mask {
	out := m.Clone()
	if minCells <= 1 {
		return out
	}
	seen := make([]bool, len(m.Bits))
	var region, stack []int
	for start, set := range m.Bits {
		if !set || seen[start] {
			continue
		}
		region = region[:0]
		stack = append(stack[:0], start)
		seen[start] = true
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			region = append(region, i)
			r, c := i/m.Width, i%m.Width
			for dr := -1; dr <= 1; dr++ {
				for dc := -1; dc <= 1; dc++ {
					rr, cc := r+dr, c+dc
					if !m.Get(rr, cc) {
						continue
					}
					j := rr*m.Width + cc
					if !seen[j] {
						seen[j] = true
						stack = append(stack, j)
					}
				}
			}
		}
		if len(region) < minCells {
			for _, i := range region {
				out.Bits[i] = false
			}
		}
	}
	return out
}
