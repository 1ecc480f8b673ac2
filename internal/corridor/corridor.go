package corridor

import (
	"errors"
	"fmt"
	"math"

	"github.com/forestline/corridor/internal/failure"
	"github.com/forestline/corridor/internal/monitoring"
	"github.com/forestline/corridor/internal/raster"
)

// DefaultThreshold replaces negative or non-finite corridor thresholds.
const DefaultThreshold = 3.0

var (
	// ErrEndpointNodata is returned when a line endpoint falls outside the
	// window or on an invalid cell.
	ErrEndpointNodata = errors.New("line endpoint on nodata")
	// ErrUnreachable is returned when the destination cannot be reached.
	ErrUnreachable = errors.New("destination unreachable from source")
)

// Corridor is the normalized corridor cost surface of one line.
type Corridor struct {
	// Cost holds source+destination accumulated cost minus its minimum.
	// Cells not reachable from both ends are invalid.
	Cost      *raster.Raster
	Min       float64
	Threshold float64
}

// Mask returns the cells whose corridor cost is within the threshold.
func (c *Corridor) Mask() raster.Mask {
	return c.MaskAt(c.Threshold)
}

// MaskAt returns the cells whose corridor cost is within t.
func (c *Corridor) MaskAt(t float64) raster.Mask {
	m := raster.MaskLike(c.Cost)
	for i, v := range c.Cost.Data {
		m.Bits[i] = c.Cost.Valid[i] && v <= t
	}
	return m
}

// EffectiveThreshold returns t, or DefaultThreshold when t is negative or
// not finite.
func EffectiveThreshold(t float64) float64 {
	if t < 0 || math.IsNaN(t) || math.IsInf(t, 0) {
		monitoring.Opsf("corridor threshold %g is invalid, using %.1f", t, DefaultThreshold)
		return DefaultThreshold
	}
	return t
}

// Extract computes the corridor between src and dst.
func Extract(cost *raster.Raster, src, dst raster.Cell, threshold float64) (*Corridor, error) {
	for _, c := range []raster.Cell{src, dst} {
		if _, ok := cost.At(c.Row, c.Col); !ok {
			return nil, fmt.Errorf("%w: %w: cell (%d,%d)", failure.ErrComputation, ErrEndpointNodata, c.Row, c.Col)
		}
	}
	threshold = EffectiveThreshold(threshold)

	fromSrc := CostDistance(cost, []raster.Cell{src})
	if math.IsInf(fromSrc[cost.Index(dst.Row, dst.Col)], 1) {
		return nil, fmt.Errorf("%w: %w", failure.ErrComputation, ErrUnreachable)
	}
	fromDst := CostDistance(cost, []raster.Cell{dst})

	out := raster.NewLike(cost)
	lo := math.Inf(1)
	for i := range out.Data {
		s := fromSrc[i] + fromDst[i]
		if math.IsInf(s, 1) {
			continue
		}
		out.Data[i] = s
		out.Valid[i] = true
		lo = math.Min(lo, s)
	}
	for i := range out.Data {
		if out.Valid[i] {
			out.Data[i] -= lo
		}
	}
	monitoring.Tracef("corridor: min accumulated cost %.3f, threshold %.2f", lo, threshold)
	return &Corridor{Cost: out, Min: lo, Threshold: threshold}, nil
}
