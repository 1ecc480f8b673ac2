// Package cost turns a canopy height model into a per-cell traversal cost.
//
// Open ground far from canopy is cheap; canopy cells and cells hemmed in by
// canopy are expensive. The surface feeds the corridor sweeps.
package cost

import (
	"errors"
	"fmt"
	"math"

	"github.com/forestline/corridor/internal/failure"
	"github.com/forestline/corridor/internal/monitoring"
	"github.com/forestline/corridor/internal/raster"
)

// ErrAllNodata is returned when the clipped CHM has no valid cell.
var ErrAllNodata = errors.New("clipped raster has no valid cells")

// Defaults for Params.
const (
	DefaultCanopyHeightThreshold = 2.5
	DefaultTreeRadius            = 2.5
	DefaultMaxLineDist           = 2.5
	DefaultAvoidance             = 0.4
	DefaultExponent              = 1.5
)

// Params controls the cost surface.
type Params struct {
	CanopyHeightThreshold float64 // heights at or above this are canopy
	TreeRadius            float64 // focal kernel radius, map units
	MaxLineDist           float64 // distance from canopy where smoothing cost reaches zero
	Avoidance             float64 // weight of the smoothing term, 0..1
	Exponent              float64
}

// DefaultParams returns the standard cost parameters.
func DefaultParams() Params {
	return Params{
		CanopyHeightThreshold: DefaultCanopyHeightThreshold,
		TreeRadius:            DefaultTreeRadius,
		MaxLineDist:           DefaultMaxLineDist,
		Avoidance:             DefaultAvoidance,
		Exponent:              DefaultExponent,
	}
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	if p.TreeRadius <= 0 {
		return fmt.Errorf("tree radius must be positive, got %g", p.TreeRadius)
	}
	if p.MaxLineDist <= 0 {
		return fmt.Errorf("max line distance must be positive, got %g", p.MaxLineDist)
	}
	if p.Avoidance < 0 || p.Avoidance > 1 {
		return fmt.Errorf("canopy avoidance must be within [0, 1], got %g", p.Avoidance)
	}
	if p.Exponent < 0 {
		return fmt.Errorf("cost exponent must be non-negative, got %g", p.Exponent)
	}
	return nil
}

// Surface is the output of Build. Both rasters share the CHM grid.
type Surface struct {
	Cost   *raster.Raster
	Canopy *raster.Raster // 1 canopy, 0 open
}

// Max returns the largest cost any cell can take, e^Exponent.
func (p Params) Max() float64 {
	return math.Pow(math.E, p.Exponent)
}

// Build derives the cost and canopy rasters from a clipped CHM.
func Build(chm *raster.Raster, p Params) (*Surface, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", failure.ErrInput, err)
	}
	if chm.ValidCount() == 0 {
		return nil, fmt.Errorf("%w: %w", failure.ErrComputation, ErrAllNodata)
	}
	cw, ch := chm.CellSize()

	canopy := CanopyMask(chm, p.CanopyHeightThreshold)
	mean, std := raster.FocalMeanStd(canopy, raster.CircleKernel(cw, ch, p.TreeRadius))
	smooth := Smoothness(canopy, p.MaxLineDist)

	out := raster.NewLike(chm)
	for i := range chm.Data {
		if !chm.Valid[i] {
			continue
		}
		m, s := mean.Data[i], std.Data[i]
		var blend float64
		if canopy.Data[i] == 1 {
			blend = 1
		} else {
			b := 0.0
			if m+s > 0 {
				b = (1 + (m-s)/(m+s)) / 2
			}
			blend = b*(1-p.Avoidance) + smooth[i]*p.Avoidance
		}
		out.Data[i] = math.Pow(math.Exp(blend), p.Exponent)
		out.Valid[i] = true
	}
	monitoring.Tracef("cost surface %dx%d: %d valid cells", out.Width, out.Height, out.ValidCount())
	return &Surface{Cost: out, Canopy: canopy}, nil
}

// CanopyMask classifies each valid cell as canopy (1) or open (0).
func CanopyMask(chm *raster.Raster, threshold float64) *raster.Raster {
	out := raster.NewLike(chm)
	for i, v := range chm.Data {
		if !chm.Valid[i] {
			continue
		}
		out.Valid[i] = true
		if v >= threshold {
			out.Data[i] = 1
		}
	}
	return out
}

// Smoothness returns (maxDist - d)/maxDist clipped at zero, where d is the
// distance from each cell to the nearest canopy cell. With no canopy in the
// raster every cell is 0.
func Smoothness(canopy *raster.Raster, maxDist float64) []float64 {
	m := raster.MaskLike(canopy)
	for i, v := range canopy.Data {
		m.Bits[i] = canopy.Valid[i] && v == 1
	}
	cw, ch := canopy.CellSize()
	dist := raster.DistanceTransform(m, cw, ch)
	out := make([]float64, len(dist))
	for i, d := range dist {
		out[i] = math.Max(0, maxDist-d) / maxDist
	}
	return out
}
