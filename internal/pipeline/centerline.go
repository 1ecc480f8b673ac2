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
	"github.com/forestline/corridor/internal/raster"
	"github.com/forestline/corridor/internal/security"
)

// CenterlineInput names the files of the centerline tool.
type CenterlineInput struct {
	Lines       string
	LinesLayer  string
	CHM         string
	Output      string
	OutputLayer string // defaults to LayerCenterline
}

type centerlineResult struct {
	line     geom.Feature
	corridor *geom.Feature
	status   centerline.Status
}

// Centerline moves every seed line onto the centerline of its least-cost
// corridor. Lines without a corridor keep their seed geometry; the status
// attribute records which case applied.
func Centerline(ctx context.Context, in CenterlineInput, cfg *config.ToolConfig, env Env) error {
	s := env.begin("centerline", in.Lines, in.Output, cfg)
	return s.finish(runCenterline(ctx, s, in, cfg))
}

func runCenterline(ctx context.Context, s *session, in CenterlineInput, cfg *config.ToolConfig) error {
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
	items, err := prepareLines(lines.Features, cfg.GetSegmentLength(), cfg.GetMergeThreshold())
	if err != nil {
		return err
	}

	cp := corridorParams{
		radius:    cfg.GetLineRadius(),
		cost:      costP,
		threshold: corridorThreshold(cfg),
		debug:     s.env.Debug,
	}
	copts := centerlineOptions(cfg, cellSize(chm))

	work := func(_ context.Context, f geom.Feature) (centerlineResult, error) {
		return centerlineForLine(chm, f, cp, copts)
	}
	describe := func(r centerlineResult) lineOutcome {
		return lineOutcome{status: r.status.String()}
	}
	results, err := execute.Run(ctx, tracked(s, work, describe), items, execute.Options[centerlineResult]{
		Mode:    s.env.Mode,
		Workers: s.env.Workers,
		Label:   "centerline",
	})
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return errNoResults("centerlines")
	}

	out := geom.Collection{CRS: lines.CRS}
	polys := geom.Collection{CRS: lines.CRS}
	for _, r := range results {
		out.Features = append(out.Features, r.line)
		if r.corridor != nil {
			polys.Features = append(polys.Features, *r.corridor)
		}
	}
	geom.SortFeatures(out.Features)
	geom.SortFeatures(polys.Features)

	layer := in.OutputLayer
	if layer == "" {
		layer = LayerCenterline
	}
	return writeLayers(in.Output,
		outputLayer{name: layer, kind: geom.KindLineString, data: out},
		outputLayer{name: LayerCorridorPolygon, kind: geom.KindPolygon, data: polys},
	)
}

func centerlineForLine(chm *raster.Raster, f geom.Feature, cp corridorParams, copts centerline.Options) (centerlineResult, error) {
	line, err := singleLine(f)
	if err != nil {
		return centerlineResult{}, err
	}
	fallback := func() (centerlineResult, error) {
		return centerlineResult{line: withStatus(f, line, centerline.StatusNoCorridorFound, false), status: centerline.StatusNoCorridorFound}, nil
	}

	lc, err := buildCorridor(chm, f, line, cp)
	if err != nil {
		if failure.ReasonOf(err) == failure.SkipNoCorridor {
			return fallback()
		}
		return centerlineResult{}, err
	}
	poly, err := centerline.FindCorridorPolygon(lc.corridor.Mask(), line)
	if errors.Is(err, centerline.ErrNoCorridor) {
		return fallback()
	}
	if err != nil {
		return centerlineResult{}, err
	}

	res := centerline.FindCenterline(poly, line, copts)
	cf := f.WithGeometry(poly)
	return centerlineResult{
		line:     withStatus(f, res.Line, res.Status, res.Degraded),
		corridor: &cf,
		status:   res.Status,
	}, nil
}

func withStatus(f geom.Feature, ls orb.LineString, st centerline.Status, degraded bool) geom.Feature {
	out := f.WithGeometry(ls)
	out.SetProp(FieldStatus, st.String())
	if degraded {
		out.SetProp(FieldDegraded, 1)
	}
	return out
}
