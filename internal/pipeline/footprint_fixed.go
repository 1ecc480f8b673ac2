package pipeline

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
	"gonum.org/v1/gonum/stat"

	"github.com/forestline/corridor/internal/config"
	"github.com/forestline/corridor/internal/execute"
	"github.com/forestline/corridor/internal/failure"
	"github.com/forestline/corridor/internal/geom"
	"github.com/forestline/corridor/internal/monitoring"
	"github.com/forestline/corridor/internal/network"
	"github.com/forestline/corridor/internal/raster"
	"github.com/forestline/corridor/internal/security"
	"github.com/forestline/corridor/internal/vectorio"
)

// Fixed-width footprint constants.
const (
	DefaultFixedWidth = 5.0
	widthSimplify     = 0.1
	maxWidthQuantile  = 90.0
	maxWidthFactor    = 1.2
)

// FixedInput names the files of the fixed-width footprint tool. The
// optional least_cost_path layer is read from the Lines file.
type FixedInput struct {
	Lines           string
	LinesLayer      string
	Footprints      string
	FootprintsLayer string
	Output          string
}

type fixedResult struct {
	line         geom.Feature // simplified line carrying the widths
	perp         orb.MultiLineString
	perpOriginal orb.MultiLineString
	avg, max     float64
}

// FootprintFixed buffers every reconciled line by a width sampled from the
// existing footprints: perpendiculars at each vertex are clipped to the
// line's footprints, and a percentile of the clipped lengths is the width.
func FootprintFixed(ctx context.Context, in FixedInput, cfg *config.ToolConfig, env Env) error {
	s := env.begin("footprint-fixed", in.Lines, in.Output, cfg)
	return s.finish(runFootprintFixed(ctx, s, in, cfg))
}

func runFootprintFixed(ctx context.Context, s *session, in FixedInput, cfg *config.ToolConfig) error {
	if err := security.ValidateOutputPath(in.Output, in.Lines, in.Footprints); err != nil {
		return err
	}
	lines, err := readLines(in.Lines, in.LinesLayer)
	if err != nil {
		return err
	}
	var leastCost []geom.Feature
	if vectorio.HasLayer(in.Lines, LayerLeastCostPath) {
		lc, err := readLines(in.Lines, LayerLeastCostPath)
		if err != nil {
			return err
		}
		leastCost = lc.Features
	} else {
		monitoring.Diagf("footprint-fixed: no %s layer in %s, skipping least-cost paths", LayerLeastCostPath, in.Lines)
	}

	footprints, err := readFootprints(in.Footprints, in.FootprintsLayer)
	if err != nil {
		return err
	}

	mergeGroup := cfg.GetMergeGroup()
	if !mergeGroup {
		if err := mergeGeometries(lines.Features); err != nil {
			return err
		}
		if err := mergeGeometries(leastCost); err != nil {
			return err
		}
	}

	merged, extra, err := reconcileLines(lines.Features, leastCost, mergeGroup, cfg.GetAngleThresholdDeg())
	if err != nil {
		return err
	}
	for i := range extra {
		extra[i].data.CRS = lines.CRS
	}
	monitoring.Diagf("footprint-fixed: %d reconciled lines, %d footprints", len(merged), len(footprints))

	offset := cfg.GetPerpOffset()
	percentile := cfg.GetWidthPercentile()
	useMax := cfg.GetUseMaxWidth()
	work := func(_ context.Context, f geom.Feature) (fixedResult, error) {
		return fixedWidthForLine(f, lineFootprints(f, footprints), offset, percentile)
	}
	describe := func(r fixedResult) lineOutcome {
		if useMax {
			return lineOutcome{width: r.max * maxWidthFactor}
		}
		return lineOutcome{width: r.avg}
	}
	results, err := execute.Run(ctx, tracked(s, work, describe), merged, execute.Options[fixedResult]{
		Mode:    s.env.Mode,
		Workers: s.env.Workers,
		Label:   "footprint-fixed",
	})
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return errNoResults("fixed-width footprints")
	}
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i].line, results[j].line
		if a.FID != b.FID {
			return a.FID < b.FID
		}
		return a.Seg < b.Seg
	})

	if !mergeGroup {
		applyGroupMax(results)
	}
	fillMissingWidths(results)

	cell := cfg.GetTrimCellSize()
	untrimmed, simplified, err := bufferLines(results, useMax, cell)
	if err != nil {
		return err
	}

	layers := append(extra,
		outputLayer{name: LayerMergedLinesOriginal, kind: geom.KindMultiLineString, data: geom.Collection{Features: merged, CRS: lines.CRS}},
		outputLayer{name: LayerUntrimmedFootprint, kind: geom.KindMultiPolygon, data: geom.Collection{Features: untrimmed, CRS: lines.CRS}},
	)
	if cfg.GetTrimOutput() {
		clean, err := network.RunCleanup(untrimmed, simplified, cell)
		if err != nil {
			return err
		}
		layers = append(layers, outputLayer{name: LayerCleanFootprint, kind: geom.KindMultiPolygon, data: geom.Collection{Features: clean, CRS: lines.CRS}})
	} else {
		monitoring.Diagf("footprint-fixed: trimming disabled")
	}
	if err := writeLayers(in.Output, layers...); err != nil {
		return err
	}

	perp := geom.Collection{CRS: lines.CRS}
	perpOriginal := geom.Collection{CRS: lines.CRS}
	for _, r := range results {
		perp.Features = append(perp.Features, r.line.WithGeometry(r.perp))
		perpOriginal.Features = append(perpOriginal.Features, r.line.WithGeometry(r.perpOriginal))
	}
	aux := AuxPath(in.Output)
	return writeLayers(aux,
		outputLayer{name: LayerPerpLines, kind: geom.KindMultiLineString, data: perp},
		outputLayer{name: LayerPerpLinesOriginal, kind: geom.KindMultiLineString, data: perpOriginal},
		outputLayer{name: LayerCenterlineSimplified, kind: geom.KindMultiLineString, data: geom.Collection{Features: simplified, CRS: lines.CRS}},
		outputLayer{name: LayerFootprintNoHoles, kind: geom.KindMultiPolygon, data: geom.Collection{Features: footprints, CRS: lines.CRS}},
	)
}

// readFootprints reads the footprint polygons and removes their holes.
func readFootprints(path, layer string) ([]geom.Feature, error) {
	c, err := vectorio.Read(path, layer)
	if err != nil {
		return nil, fmt.Errorf("read footprints %s: %w", path, err)
	}
	out := make([]geom.Feature, 0, len(c.Features))
	for _, f := range c.Features {
		if f.Geometry == nil || geom.IsEmpty(f.Geometry) {
			continue
		}
		g, err := geom.RemoveHoles(f.Geometry)
		if err != nil {
			monitoring.Opsf("footprints: dropping feature %d: %v", f.FID, err)
			continue
		}
		out = append(out, f.WithGeometry(g))
	}
	if len(out) == 0 {
		return nil, failure.Inputf("%s has no footprint polygons", path)
	}
	return out, nil
}

func mergeGeometries(fs []geom.Feature) error {
	for i := range fs {
		g, err := network.CustomLineMerge(fs[i].Geometry)
		if err != nil {
			return fmt.Errorf("merge OLnFID %d: %w", fs[i].FID, err)
		}
		fs[i].Geometry = g
	}
	return nil
}

// reconcileLines runs the line network reconciler. In split mode the split
// results, and the least-cost paths split at the same intersections, are
// returned as extra output layers. Split lines are regrouped only when
// least-cost paths are given; otherwise widths are measured on the group
// lines merged before the split.
func reconcileLines(lines, leastCost []geom.Feature, mergeGroup bool, angle float64) ([]geom.Feature, []outputLayer, error) {
	opts := network.ReconcileOptions{MergeGroup: mergeGroup, SkipRegroup: len(leastCost) == 0, AngleThreshold: angle}
	r := network.NewReconciler(lines, opts)
	if mergeGroup {
		if err := r.Run(); err != nil {
			return nil, nil, err
		}
		return r.Merged, nil, nil
	}

	if err := r.MergeMultipart(); err != nil {
		return nil, nil, err
	}
	if err := r.Group(); err != nil {
		return nil, nil, err
	}
	if err := r.SplitAtIntersections(nil); err != nil {
		return nil, nil, err
	}
	sp := r.Splitter
	extra := []outputLayer{
		{name: LayerSplitCenterline, kind: geom.KindLineString, data: geom.Collection{Features: sp.SplitLines}},
		{name: LayerInterPoints, kind: geom.KindPoint, data: geom.Collection{Features: sp.IntersectionPoints}},
		{name: LayerInvalidSplits, kind: geom.KindPoint, data: geom.Collection{Features: sp.InvalidSplits}},
	}

	if len(leastCost) > 0 {
		lr := network.NewReconciler(leastCost, opts)
		if err := lr.MergeMultipart(); err != nil {
			return nil, nil, err
		}
		if err := lr.Group(); err != nil {
			return nil, nil, err
		}
		if err := lr.SplitAtIntersections(sp.IntersectionCoords()); err != nil {
			return nil, nil, err
		}
		extra = append(extra, outputLayer{name: LayerSplitLeastCost, kind: geom.KindLineString, data: geom.Collection{Features: lr.Splitter.SplitLines}})
	}

	if err := r.Finish(); err != nil {
		return nil, nil, err
	}
	return r.Merged, extra, nil
}

// lineFootprints picks the footprints a line is measured against: those of
// its own group when any carry it, otherwise those the line runs through.
func lineFootprints(line geom.Feature, footprints []geom.Feature) []orb.Geometry {
	lb := line.Geometry.Bound()
	var near, sameGroup []geom.Feature
	for _, fp := range footprints {
		if !fp.Geometry.Bound().Intersects(lb) {
			continue
		}
		near = append(near, fp)
		if fp.Group != 0 && fp.Group == line.Group {
			sameGroup = append(sameGroup, fp)
		}
	}
	chosen := sameGroup
	if len(chosen) == 0 {
		chosen = IdentityPolygon(line.Geometry, near, DefaultIdentityRatio)
	}
	if len(chosen) == 0 {
		chosen = near
	}
	out := make([]orb.Geometry, len(chosen))
	for i, fp := range chosen {
		out[i] = fp.Geometry
	}
	return out
}

// fixedWidthForLine samples the width of one line.
func fixedWidthForLine(f geom.Feature, polys []orb.Geometry, offset, percentile float64) (fixedResult, error) {
	parts, err := geom.Lines(f.Geometry)
	if err != nil || len(parts) == 0 {
		return fixedResult{}, failure.Skip(failure.SkipEmptyGeometry, err)
	}

	simp := simplify.DouglasPeucker(widthSimplify)
	var simplified orb.MultiLineString
	for _, ls := range parts {
		sl, ok := simp.Simplify(ls.Clone()).(orb.LineString)
		if !ok || len(sl) < 2 {
			sl = ls
		}
		simplified = append(simplified, sl)
	}

	var r fixedResult
	var widths []float64
	// perpendiculars come from vertex triples within one part only
	for pi, pts := range simplified {
		for i := 1; i+1 < len(pts); i++ {
			perp, err := geom.PerpendicularLine(pts[i-1], pts[i], pts[i+1], offset)
			if err != nil {
				monitoring.Tracef("footprint-fixed: OLnFID %d part %d vertex %d: %v", f.FID, pi, i, err)
				continue
			}
			r.perpOriginal = append(r.perpOriginal, perp)

			w := 0.0
			for _, poly := range polys {
				pieces, err := geom.ClipLine(perp, poly)
				if err != nil {
					return fixedResult{}, err
				}
				for _, p := range pieces {
					r.perp = append(r.perp, p)
					w = math.Max(w, geom.Length(p))
				}
			}
			if w > geom.Tolerance {
				widths = append(widths, w)
			}
		}
	}

	r.avg, r.max = widthStats(widths, percentile)

	var g orb.Geometry = simplified
	if len(simplified) == 1 {
		g = simplified[0]
	}
	r.line = f.WithGeometry(g)
	r.line.SetProp(FieldAvgWidth, r.avg)
	r.line.SetProp(FieldMaxWidth, r.max)
	monitoring.Tracef("footprint-fixed: OLnFID %d: %d widths, avg %.2f max %.2f", f.FID, len(widths), r.avg, r.max)
	return r, nil
}

// widthStats returns the percentile width and the 90th percentile width,
// or DefaultFixedWidth for both when nothing was measured.
func widthStats(widths []float64, percentile float64) (avg, wide float64) {
	if len(widths) == 0 {
		return DefaultFixedWidth, DefaultFixedWidth
	}
	sorted := append([]float64(nil), widths...)
	sort.Float64s(sorted)
	avg = stat.Quantile(percentile/100, stat.LinInterp, sorted, nil)
	wide = stat.Quantile(maxWidthQuantile/100, stat.LinInterp, sorted, nil)
	return avg, wide
}

// applyGroupMax gives every line the largest widths found in its group.
func applyGroupMax(results []fixedResult) {
	type pair struct{ avg, max float64 }
	groups := make(map[int]pair)
	for _, r := range results {
		g := groups[r.line.Group]
		groups[r.line.Group] = pair{math.Max(g.avg, r.avg), math.Max(g.max, r.max)}
	}
	for i := range results {
		g := groups[results[i].line.Group]
		results[i].avg, results[i].max = g.avg, g.max
	}
}

// fillMissingWidths replaces NaN or zero widths with the mean width.
func fillMissingWidths(results []fixedResult) {
	var avgs, maxes []float64
	for _, r := range results {
		if !math.IsNaN(r.avg) {
			avgs = append(avgs, r.avg)
		}
		if !math.IsNaN(r.max) {
			maxes = append(maxes, r.max)
		}
	}
	meanAvg, meanMax := DefaultFixedWidth, DefaultFixedWidth
	if len(avgs) > 0 {
		meanAvg = stat.Mean(avgs, nil)
	}
	if len(maxes) > 0 {
		meanMax = stat.Mean(maxes, nil)
	}
	for i := range results {
		if math.IsNaN(results[i].avg) || results[i].avg == 0 {
			results[i].avg = meanAvg
		}
		if math.IsNaN(results[i].max) || results[i].max == 0 {
			results[i].max = meanMax
		}
		results[i].line.SetProp(FieldAvgWidth, results[i].avg)
		results[i].line.SetProp(FieldMaxWidth, results[i].max)
	}
}

// bufferLines builds the untrimmed footprint of every line: half the
// percentile width, or half of 1.2 times the 90th percentile width.
func bufferLines(results []fixedResult, useMax bool, cell float64) (footprints, lines []geom.Feature, err error) {
	if useMax {
		monitoring.Diagf("footprint-fixed: buffering by 90th percentile width + 20%%")
	} else {
		monitoring.Diagf("footprint-fixed: buffering by percentile width")
	}
	for _, r := range results {
		width := r.avg
		if useMax {
			width = r.max * maxWidthFactor
		}
		shape, err := raster.Buffer(r.line.Geometry, width/2, cell)
		if err != nil {
			return nil, nil, fmt.Errorf("buffer OLnFID %d: %w", r.line.FID, err)
		}
		if len(shape) == 0 {
			monitoring.Opsf("footprint-fixed: OLnFID %d buffer is empty", r.line.FID)
			continue
		}
		footprints = append(footprints, r.line.WithGeometry(shape))
		lines = append(lines, r.line)
	}
	return footprints, lines, nil
}
