package pipeline

import (
	"context"
	"fmt"

	"github.com/forestline/corridor/internal/config"
	"github.com/forestline/corridor/internal/geom"
	"github.com/forestline/corridor/internal/rasterio"
	"github.com/forestline/corridor/internal/runstore"
	"github.com/forestline/corridor/internal/security"
	"github.com/forestline/corridor/internal/vectorio"
	"github.com/forestline/corridor/internal/vertexopt"
)

// VertexInput names the files of the vertex optimization tool.
type VertexInput struct {
	Lines       string
	LinesLayer  string
	CHM         string
	Output      string
	OutputLayer string // defaults to LayerOptimizedLines
	// LineRadius overrides the anchor distance; nil uses
	// vertexopt.DefaultLineRadius.
	LineRadius *float64
}

// VertexOptimization moves line endpoints meeting at a junction onto the
// least-cost position nearby. Lines and CHM must share a spatial reference;
// on mismatch nothing is computed or written.
func VertexOptimization(ctx context.Context, in VertexInput, cfg *config.ToolConfig, env Env) error {
	s := env.begin("vertex-optimization", in.Lines, in.Output, cfg)
	return s.finish(runVertexOptimization(ctx, s, in, cfg))
}

func runVertexOptimization(ctx context.Context, s *session, in VertexInput, cfg *config.ToolConfig) error {
	if err := security.ValidateOutputPath(in.Output, in.Lines, in.CHM); err != nil {
		return err
	}
	costP, err := costParams(cfg)
	if err != nil {
		return err
	}
	lines, err := vectorio.Read(in.Lines, in.LinesLayer)
	if err != nil {
		return fmt.Errorf("read lines %s: %w", in.Lines, err)
	}
	chm, err := rasterio.Read(in.CHM)
	if err != nil {
		return fmt.Errorf("read CHM %s: %w", in.CHM, err)
	}

	opts := vertexopt.DefaultOptions()
	opts.SearchDistance = cfg.GetSearchDistance()
	if in.LineRadius != nil {
		opts.LineRadius = *in.LineRadius
	}
	opts.Cost = costP
	opts.Mode = s.env.Mode
	opts.Workers = s.env.Workers

	out, err := vertexopt.Optimize(ctx, lines, chm, opts)
	if err != nil {
		return err
	}
	for _, f := range out {
		s.ledger.add(runstore.LineResult{FID: f.FID, Seg: f.Seg, Status: runstore.LineSucceeded})
	}

	layer := in.OutputLayer
	if layer == "" {
		layer = LayerOptimizedLines
	}
	return writeLayers(in.Output, outputLayer{name: layer, kind: geom.KindMultiLineString, data: geom.Collection{Features: out, CRS: lines.CRS}})
}
