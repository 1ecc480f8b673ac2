package pipeline

import (
	"context"

	"github.com/forestline/corridor/internal/config"
	"github.com/forestline/corridor/internal/geom"
	"github.com/forestline/corridor/internal/monitoring"
	"github.com/forestline/corridor/internal/network"
	"github.com/forestline/corridor/internal/runstore"
	"github.com/forestline/corridor/internal/security"
)

// CheckSeedInput names the files of the seed line check.
type CheckSeedInput struct {
	Lines       string
	LinesLayer  string
	Output      string
	OutputLayer string // defaults to LayerCheckedLines
}

// CheckSeedLine cleans a seed line network: multipart lines are merged or
// exploded, lines are split where they cross, and every line is labelled
// with its BT_GROUP.
func CheckSeedLine(ctx context.Context, in CheckSeedInput, cfg *config.ToolConfig, env Env) error {
	s := env.begin("check-seed-line", in.Lines, in.Output, cfg)
	return s.finish(runCheckSeedLine(ctx, s, in, cfg))
}

func runCheckSeedLine(ctx context.Context, s *session, in CheckSeedInput, cfg *config.ToolConfig) error {
	if err := security.ValidateOutputPath(in.Output, in.Lines); err != nil {
		return err
	}
	lines, err := readLines(in.Lines, in.LinesLayer)
	if err != nil {
		return err
	}
	merged, err := network.QCMergeMultiLineString(lines.Features)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	split, err := network.QCSplitLinesAtIntersections(merged)
	if err != nil {
		return err
	}

	opts := network.DefaultGroupingOptions()
	opts.UseAngle = cfg.GetUseAngleGrouping()
	opts.AngleThreshold = cfg.GetAngleThresholdDeg()
	lg := network.NewLineGrouping(split, opts)
	if err := lg.RunGrouping(); err != nil {
		return err
	}
	monitoring.Diagf("check-seed-line: %d input lines, %d after split, %d groups", len(lines.Features), len(lg.Lines), len(lg.Groups()))

	for _, f := range lg.Lines {
		s.ledger.add(runstore.LineResult{FID: f.FID, Seg: f.Seg, Status: runstore.LineSucceeded})
	}

	layer := in.OutputLayer
	if layer == "" {
		layer = LayerCheckedLines
	}
	if err := writeLayers(in.Output, outputLayer{name: layer, kind: geom.KindLineString, data: geom.Collection{Features: lg.Lines, CRS: lines.CRS}}); err != nil {
		return err
	}
	monitoring.Opsf("Output saved to file: %s, layer: %s", in.Output, layer)
	return nil
}
