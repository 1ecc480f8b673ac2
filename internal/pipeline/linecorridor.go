package pipeline

import (
	"errors"
	"math"

	"github.com/paulmach/orb"

	"github.com/forestline/corridor/internal/corridor"
	"github.com/forestline/corridor/internal/cost"
	"github.com/forestline/corridor/internal/diag"
	"github.com/forestline/corridor/internal/failure"
	"github.com/forestline/corridor/internal/geom"
	"github.com/forestline/corridor/internal/raster"
)

// lineCorridor is the per-line raster state shared by the centerline and
// footprint tools.
type lineCorridor struct {
	window   *raster.Raster // CHM clipped around the line
	surface  *cost.Surface
	corridor *corridor.Corridor
}

// corridorParams configures buildCorridor.
type corridorParams struct {
	radius    float64 // clip distance around the line
	cost      cost.Params
	threshold float64 // already resolved by corridor.EffectiveThreshold
	debug     *diag.Dumper
}

// buildCorridor clips the CHM around line, builds its cost surface and
// extracts the corridor between the line endpoints. Conditions that only
// affect this line are returned as skips.
func buildCorridor(chm *raster.Raster, f geom.Feature, line orb.LineString, p corridorParams) (*lineCorridor, error) {
	line = geom.Clean(line)
	if len(line) < 2 || geom.Length(line) == 0 {
		return nil, failure.Skip(failure.SkipEmptyGeometry, nil)
	}

	win, err := chm.ClipToGeometry(line, p.radius)
	if err != nil {
		if errors.Is(err, raster.ErrEmptyWindow) {
			return nil, failure.Skip(failure.SkipNodataWindow, err)
		}
		return nil, err
	}
	surface, err := cost.Build(win, p.cost)
	if err != nil {
		if errors.Is(err, cost.ErrAllNodata) {
			return nil, failure.Skip(failure.SkipNodataWindow, err)
		}
		return nil, err
	}
	p.debug.Raster("cost", f.FID, f.Seg, surface.Cost)

	start, end := geom.Endpoints(line)
	src, ok := win.CellOf(start)
	if !ok {
		return nil, failure.Skip(failure.SkipNodataWindow, corridor.ErrEndpointNodata)
	}
	dst, ok := win.CellOf(end)
	if !ok {
		return nil, failure.Skip(failure.SkipNodataWindow, corridor.ErrEndpointNodata)
	}

	c, err := corridor.Extract(surface.Cost, src, dst, p.threshold)
	switch {
	case errors.Is(err, corridor.ErrEndpointNodata):
		return nil, failure.Skip(failure.SkipNodataWindow, err)
	case errors.Is(err, corridor.ErrUnreachable):
		return nil, failure.Skip(failure.SkipNoCorridor, err)
	case err != nil:
		return nil, err
	}
	p.debug.Raster("corridor", f.FID, f.Seg, c.Cost)
	return &lineCorridor{window: win, surface: surface, corridor: c}, nil
}

// cellSize is the smaller cell dimension of r.
func cellSize(r *raster.Raster) float64 {
	w, h := r.CellSize()
	return math.Min(w, h)
}

// singleLine returns the feature geometry as one line string. Multipart
// features are expected to have been split by prepareLines.
func singleLine(f geom.Feature) (orb.LineString, error) {
	parts, err := geom.Lines(f.Geometry)
	if err != nil {
		return nil, failure.Skip(failure.SkipEmptyGeometry, err)
	}
	if len(parts) != 1 {
		return nil, failure.Skip(failure.SkipDegenerate, failure.Inputf("OLnFID %d has %d parts", f.FID, len(parts)))
	}
	return parts[0], nil
}
