package pipeline

import (
	"context"
	"errors"

	"github.com/paulmach/orb"

	"github.com/forestline/corridor/internal/centerline"
	"github.com/forestline/corridor/internal/config"
	"github.com/forestline/corridor/internal/execute"
	"github.com/forestline/corridor/internal/failure"
	"github.com/forestline/corridor/internal/geom"
	"github.com/forestline/corridor/internal/monitoring"
	"github.com/forestline/corridor/internal/morph"
	"github.com/forestline/corridor/internal/raster"
	"github.com/forestline/corridor/internal/security"
)

// FootprintInput names the files of the absolute footprint tool.
type FootprintInput struct {
	Lines       string
	LinesLayer  string
	CHM         string
	Output      string
	OutputLayer string // defaults to LayerFootprint
}

type footprintResult struct {
	footprint  geom.Feature
	corridor   *geom.Feature
	centerline geom.Feature
	width      float64
}

// FootprintAbsolute derives the footprint of every line from its corridor:
// the corridor cells below the threshold that are not canopy, opened by
// exp_shrink_cells and stripped of small regions, polygonized.
func FootprintAbsolute(ctx context.Context, in FootprintInput, cfg *config.ToolConfig, env Env) error {
	s := env.begin("footprint-abs", in.Lines, in.Output, cfg)
	return s.finish(runFootprintAbsolute(ctx, s, in, cfg))
}

func runFootprintAbsolute(ctx context.Context, s *session, in FootprintInput, cfg *config.ToolConfig) error {
	if err := security.ValidateOutputPath(in.Output, in.Lines, in.CHM); err != nil {
		return err
	}
	costP, err := costParams(cfg)
	if err != nil {
		return err
	}
	lines, err := readLines(in.Lines, in.LinesLayer)
	if err != nil {
		return err
	}
	chm, err := readCHM(in.CHM, lines.CRS)
	if err != nil {
		return err
	}
	// whole lines: segments would break the footprint at every cut
	items, err := prepareLines(lines.Features, 0, 0)
	if err != nil {
		return err
	}

	cp := corridorParams{
		radius:    cfg.GetMaxLineWidth(),
		cost:      costP,
		threshold: corridorThreshold(cfg),
		debug:     s.env.Debug,
	}
	cell := cellSize(chm)
	copts := centerlineOptions(cfg, cell)
	mopts := morphOptions(cfg)
	shrink := cfg.GetExpShrinkCells()

	work := func(_ context.Context, f geom.Feature) (footprintResult, error) {
		line, err := singleLine(f)
		if err != nil {
			return footprintResult{}, err
		}
		lc, err := buildCorridor(chm, f, line, cp)
		if err != nil {
			return footprintResult{}, err
		}
		mask, err := morph.Clean(lc.corridor, lc.surface.Canopy, shrink, cell, mopts)
		if err != nil {
			return footprintResult{}, err
		}
		s.env.Debug.Mask("footprint", f.FID, f.Seg, mask)
		return footprintForLine(f, line, lc, mask, copts)
	}
	describe := func(r footprintResult) lineOutcome {
		return lineOutcome{width: r.width}
	}
	results, err := execute.Run(ctx, tracked(s, work, describe), items, execute.Options[footprintResult]{
		Mode:    s.env.Mode,
		Workers: s.env.Workers,
		Label:   "footprint-abs",
	})
	if err != nil {
		return err
	}
	if len(results) == 0 {
		monitoring.Opsf("No footprints generated. Output file not written.")
		return errNoResults("footprints")
	}

	footprints := geom.Collection{CRS: lines.CRS}
	corridors := geom.Collection{CRS: lines.CRS}
	centerlines := geom.Collection{CRS: lines.CRS}
	for _, r := range results {
		footprints.Features = append(footprints.Features, r.footprint)
		centerlines.Features = append(centerlines.Features, r.centerline)
		if r.corridor != nil {
			corridors.Features = append(corridors.Features, *r.corridor)
		}
	}
	for _, c := range []geom.Collection{footprints, corridors, centerlines} {
		geom.SortFeatures(c.Features)
	}

	layer := in.OutputLayer
	if layer == "" {
		layer = LayerFootprint
	}
	return writeLayers(in.Output,
		outputLayer{name: layer, kind: geom.KindMultiPolygon, data: footprints},
		outputLayer{name: LayerCorridorPolygon, kind: geom.KindPolygon, data: corridors},
		outputLayer{name: LayerCenterline, kind: geom.KindLineString, data: centerlines},
	)
}

// footprintForLine polygonizes the cleaned mask and reconstructs the
// corridor centerline alongside it.
func footprintForLine(f geom.Feature, line orb.LineString, lc *lineCorridor, mask raster.Mask, copts centerline.Options) (footprintResult, error) {
	polys := raster.Polygonize(mask)
	if len(polys) == 0 {
		return footprintResult{}, failure.Skip(failure.SkipNoCorridor, errors.New("footprint mask is empty"))
	}
	shape := orb.MultiPolygon(polys)
	r := footprintResult{footprint: f.WithGeometry(shape)}
	if l := geom.Length(line); l > 0 {
		r.width = geom.Area(shape) / l
	}

	res := centerline.Result{Line: line, Status: centerline.StatusNoCorridorFound}
	poly, err := centerline.FindCorridorPolygon(lc.corridor.Mask(), line)
	switch {
	case err == nil:
		cf := f.WithGeometry(poly)
		r.corridor = &cf
		res = centerline.FindCenterline(poly, line, copts)
	case !errors.Is(err, centerline.ErrNoCorridor):
		return footprintResult{}, err
	}
	r.centerline = withStatus(f, res.Line, res.Status, res.Degraded)
	return r, nil
}
