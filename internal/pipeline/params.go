package pipeline

import (
	"github.com/forestline/corridor/internal/centerline"
	"github.com/forestline/corridor/internal/config"
	"github.com/forestline/corridor/internal/corridor"
	"github.com/forestline/corridor/internal/cost"
	"github.com/forestline/corridor/internal/failure"
	"github.com/forestline/corridor/internal/morph"
)

func costParams(cfg *config.ToolConfig) (cost.Params, error) {
	p := cost.Params{
		CanopyHeightThreshold: cfg.GetCanopyHeightThreshold(),
		TreeRadius:            cfg.GetTreeRadius(),
		MaxLineDist:           cfg.GetMaxLineDist(),
		Avoidance:             cfg.GetCanopyAvoidance(),
		Exponent:              cfg.GetCostExponent(),
	}
	if err := p.Validate(); err != nil {
		return cost.Params{}, failure.Inputf("cost parameters: %v", err)
	}
	return p, nil
}

// corridorThreshold resolves the configured threshold once per run so the
// fallback is logged once rather than per line.
func corridorThreshold(cfg *config.ToolConfig) float64 {
	return corridor.EffectiveThreshold(cfg.GetCorridorThreshold())
}

func centerlineOptions(cfg *config.ToolConfig, cell float64) centerline.Options {
	opts := centerline.DefaultOptions()
	if cell > 0 {
		opts.CellSize = cell
	}
	opts.SimplifyTolerance = cfg.GetSimplifyTolerance()
	return opts
}

func morphOptions(cfg *config.ToolConfig) morph.Options {
	opts := morph.DefaultOptions()
	opts.MinRegionArea = cfg.GetMinRegionArea()
	return opts
}
