package pipeline

import (
	"path/filepath"
	"strings"
)

// Output layers.
const (
	LayerCenterline           = "centerline"
	LayerCorridorPolygon      = "corridor_polygon"
	LayerFootprint            = "footprint"
	LayerMergedLinesOriginal  = "merged_lines_original"
	LayerSplitCenterline      = "split_centerline"
	LayerSplitLeastCost       = "split_leastcost"
	LayerInterPoints          = "inter_points"
	LayerInvalidSplits        = "invalid_splits"
	LayerUntrimmedFootprint   = "untrimmed_footprint"
	LayerCleanFootprint       = "clean_footprint"
	LayerCenterlineSimplified = "centerline_simplified"
	LayerPerpLines            = "perp_lines"
	LayerPerpLinesOriginal    = "perp_lines_original"
	LayerFootprintNoHoles     = "footprint_no_holes"
	LayerCheckedLines         = "checked_lines"
	LayerOptimizedLines       = "optimized_lines"
)

// LayerLeastCostPath is the optional input layer of least-cost paths read
// next to the seed lines by the fixed-width footprint tool.
const LayerLeastCostPath = "least_cost_path"

// Attributes written by the tools.
const (
	FieldStatus   = "status"
	FieldDegraded = "degraded"
	FieldAvgWidth = "avg_width"
	FieldMaxWidth = "max_width"
)

// AuxPath is the GeoPackage that holds the auxiliary layers of out.
func AuxPath(out string) string {
	ext := filepath.Ext(out)
	return strings.TrimSuffix(out, ext) + "_aux.gpkg"
}
