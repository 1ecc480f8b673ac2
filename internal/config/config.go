package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/forestline/corridor/internal/execute"
)

// ToolConfig holds the tunable parameters of every corridor tool. Fields are
// pointers so a partial file leaves the rest at their defaults; the Get*
// methods supply those defaults.
type ToolConfig struct {
	// Cost surface
	CanopyHeightThreshold *float64 `json:"canopy_height_threshold,omitempty"`
	TreeRadius            *float64 `json:"tree_radius,omitempty"`
	MaxLineDist           *float64 `json:"max_line_dist,omitempty"`
	CanopyAvoidance       *float64 `json:"canopy_avoidance,omitempty"`
	CostExponent          *float64 `json:"cost_exponent,omitempty"`

	// Corridor and morphology
	CorridorThreshold *float64 `json:"corridor_threshold,omitempty"`
	ExpShrinkCells    *int     `json:"exp_shrink_cells,omitempty"`
	MaxLineWidth      *float64 `json:"max_line_width,omitempty"`
	MinRegionArea     *float64 `json:"min_region_area,omitempty"`

	// Centerline
	LineRadius        *float64 `json:"line_radius,omitempty"`
	SimplifyTolerance *float64 `json:"simplify_tolerance,omitempty"`
	SegmentLength     *float64 `json:"segment_length,omitempty"` // zero processes whole lines
	MergeThreshold    *float64 `json:"merge_threshold,omitempty"`

	// Line network and vertices
	SearchDistance    *float64 `json:"search_distance,omitempty"`
	AngleThresholdDeg *float64 `json:"angle_threshold_deg,omitempty"`
	UseAngleGrouping  *bool    `json:"use_angle_grouping,omitempty"`
	MergeGroup        *bool    `json:"merge_group,omitempty"`

	// Fixed-width footprint
	NSamples        *int     `json:"n_samples,omitempty"`
	PerpOffset      *float64 `json:"perp_offset,omitempty"`
	WidthPercentile *float64 `json:"width_percentile,omitempty"`
	UseMaxWidth     *bool    `json:"use_max_width,omitempty"`
	TrimOutput      *bool    `json:"trim_output,omitempty"`
	TrimCellSize    *float64 `json:"trim_cell_size,omitempty"`

	// Execution
	ParallelMode *string `json:"parallel_mode,omitempty"` // sequential, multiprocessing or concurrent
	Processes    *int    `json:"processes,omitempty"`     // below 1 uses every CPU
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyToolConfig returns a ToolConfig with all fields set to nil.
func EmptyToolConfig() *ToolConfig {
	return &ToolConfig{}
}

// DefaultToolConfig returns a ToolConfig with every field set to its
// default.
func DefaultToolConfig() *ToolConfig {
	e := EmptyToolConfig()
	return &ToolConfig{
		CanopyHeightThreshold: ptrFloat64(e.GetCanopyHeightThreshold()),
		TreeRadius:            ptrFloat64(e.GetTreeRadius()),
		MaxLineDist:           ptrFloat64(e.GetMaxLineDist()),
		CanopyAvoidance:       ptrFloat64(e.GetCanopyAvoidance()),
		CostExponent:          ptrFloat64(e.GetCostExponent()),
		CorridorThreshold:     ptrFloat64(e.GetCorridorThreshold()),
		ExpShrinkCells:        ptrInt(e.GetExpShrinkCells()),
		MaxLineWidth:          ptrFloat64(e.GetMaxLineWidth()),
		MinRegionArea:         ptrFloat64(e.GetMinRegionArea()),
		LineRadius:            ptrFloat64(e.GetLineRadius()),
		SimplifyTolerance:     ptrFloat64(e.GetSimplifyTolerance()),
		SegmentLength:         ptrFloat64(e.GetSegmentLength()),
		MergeThreshold:        ptrFloat64(e.GetMergeThreshold()),
		SearchDistance:        ptrFloat64(e.GetSearchDistance()),
		AngleThresholdDeg:     ptrFloat64(e.GetAngleThresholdDeg()),
		UseAngleGrouping:      ptrBool(e.GetUseAngleGrouping()),
		MergeGroup:            ptrBool(e.GetMergeGroup()),
		NSamples:              ptrInt(e.GetNSamples()),
		PerpOffset:            ptrFloat64(e.GetPerpOffset()),
		WidthPercentile:       ptrFloat64(e.GetWidthPercentile()),
		UseMaxWidth:           ptrBool(e.GetUseMaxWidth()),
		TrimOutput:            ptrBool(e.GetTrimOutput()),
		TrimCellSize:          ptrFloat64(e.GetTrimCellSize()),
		ParallelMode:          ptrString(e.GetParallelMode().String()),
		Processes:             ptrInt(e.GetProcesses()),
	}
}

// LoadToolConfig loads a ToolConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadToolConfig(path string) (*ToolConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyToolConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ParseParallelMode maps a mode name to an execution mode.
func ParseParallelMode(s string) (execute.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sequential":
		return execute.ModeSequential, nil
	case "multiprocessing", "":
		return execute.ModeMultiprocessing, nil
	case "concurrent":
		return execute.ModeConcurrent, nil
	default:
		return 0, fmt.Errorf("unknown parallel_mode %q (want sequential, multiprocessing or concurrent)", s)
	}
}

// Validate checks that the configuration values are valid.
func (c *ToolConfig) Validate() error {
	positive := []struct {
		name string
		v    *float64
	}{
		{"tree_radius", c.TreeRadius},
		{"max_line_dist", c.MaxLineDist},
		{"max_line_width", c.MaxLineWidth},
		{"line_radius", c.LineRadius},
		{"search_distance", c.SearchDistance},
		{"perp_offset", c.PerpOffset},
		{"trim_cell_size", c.TrimCellSize},
	}
	for _, p := range positive {
		if p.v != nil && *p.v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", p.name, *p.v)
		}
	}

	nonNegative := []struct {
		name string
		v    *float64
	}{
		{"canopy_height_threshold", c.CanopyHeightThreshold},
		{"cost_exponent", c.CostExponent},
		{"min_region_area", c.MinRegionArea},
		{"simplify_tolerance", c.SimplifyTolerance},
		{"segment_length", c.SegmentLength},
		{"merge_threshold", c.MergeThreshold},
	}
	for _, p := range nonNegative {
		if p.v != nil && *p.v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", p.name, *p.v)
		}
	}

	if c.CanopyAvoidance != nil {
		if *c.CanopyAvoidance < 0 || *c.CanopyAvoidance > 1 {
			return fmt.Errorf("canopy_avoidance must be between 0 and 1, got %f", *c.CanopyAvoidance)
		}
	}
	if c.AngleThresholdDeg != nil {
		if *c.AngleThresholdDeg < 0 || *c.AngleThresholdDeg > 180 {
			return fmt.Errorf("angle_threshold_deg must be between 0 and 180, got %f", *c.AngleThresholdDeg)
		}
	}
	if c.WidthPercentile != nil {
		if *c.WidthPercentile < 0 || *c.WidthPercentile > 100 {
			return fmt.Errorf("width_percentile must be between 0 and 100, got %f", *c.WidthPercentile)
		}
	}
	if c.ExpShrinkCells != nil && *c.ExpShrinkCells < 0 {
		return fmt.Errorf("exp_shrink_cells must be non-negative, got %d", *c.ExpShrinkCells)
	}
	if c.NSamples != nil && *c.NSamples < 1 {
		return fmt.Errorf("n_samples must be at least 1, got %d", *c.NSamples)
	}
	// corridor_threshold is not validated: a negative value falls back to
	// the default at run time.

	if c.ParallelMode != nil {
		if _, err := ParseParallelMode(*c.ParallelMode); err != nil {
			return err
		}
	}

	return nil
}

// GetCanopyHeightThreshold returns the canopy_height_threshold value or the default.
func (c *ToolConfig) GetCanopyHeightThreshold() float64 {
	if c.CanopyHeightThreshold == nil {
		return 2.5 // default
	}
	return *c.CanopyHeightThreshold
}

// GetTreeRadius returns the tree_radius value or the default.
func (c *ToolConfig) GetTreeRadius() float64 {
	if c.TreeRadius == nil {
		return 2.5 // default
	}
	return *c.TreeRadius
}

// GetMaxLineDist returns the max_line_dist value or the default.
func (c *ToolConfig) GetMaxLineDist() float64 {
	if c.MaxLineDist == nil {
		return 2.5 // default
	}
	return *c.MaxLineDist
}

// GetCanopyAvoidance returns the canopy_avoidance value or the default.
func (c *ToolConfig) GetCanopyAvoidance() float64 {
	if c.CanopyAvoidance == nil {
		return 0.4 // default
	}
	return *c.CanopyAvoidance
}

// GetCostExponent returns the cost_exponent value or the default.
func (c *ToolConfig) GetCostExponent() float64 {
	if c.CostExponent == nil {
		return 1.5 // default
	}
	return *c.CostExponent
}

// GetCorridorThreshold returns the corridor_threshold value or the default.
func (c *ToolConfig) GetCorridorThreshold() float64 {
	if c.CorridorThreshold == nil {
		return 3.0 // default
	}
	return *c.CorridorThreshold
}

// GetExpShrinkCells returns the exp_shrink_cells value or the default.
func (c *ToolConfig) GetExpShrinkCells() int {
	if c.ExpShrinkCells == nil {
		return 0 // default
	}
	return *c.ExpShrinkCells
}

// GetMaxLineWidth returns the max_line_width value or the default.
func (c *ToolConfig) GetMaxLineWidth() float64 {
	if c.MaxLineWidth == nil {
		return 32.0 // default
	}
	return *c.MaxLineWidth
}

// GetMinRegionArea returns the min_region_area value or the default.
func (c *ToolConfig) GetMinRegionArea() float64 {
	if c.MinRegionArea == nil {
		return 1.0 // default
	}
	return *c.MinRegionArea
}

// GetLineRadius returns the line_radius value or the default.
func (c *ToolConfig) GetLineRadius() float64 {
	if c.LineRadius == nil {
		return 15.0 // default
	}
	return *c.LineRadius
}

// GetSimplifyTolerance returns the simplify_tolerance value or the default.
func (c *ToolConfig) GetSimplifyTolerance() float64 {
	if c.SimplifyTolerance == nil {
		return 0.5 // default
	}
	return *c.SimplifyTolerance
}

// GetSegmentLength returns the segment_length value or the default.
func (c *ToolConfig) GetSegmentLength() float64 {
	if c.SegmentLength == nil {
		return 0 // default
	}
	return *c.SegmentLength
}

// GetMergeThreshold returns the merge_threshold value or the default.
func (c *ToolConfig) GetMergeThreshold() float64 {
	if c.MergeThreshold == nil {
		return 0.5 // default
	}
	return *c.MergeThreshold
}

// GetSearchDistance returns the search_distance value or the default.
func (c *ToolConfig) GetSearchDistance() float64 {
	if c.SearchDistance == nil {
		return 3.0 // default
	}
	return *c.SearchDistance
}

// GetAngleThresholdDeg returns the angle_threshold_deg value or the default.
func (c *ToolConfig) GetAngleThresholdDeg() float64 {
	if c.AngleThresholdDeg == nil {
		return 30.0 // default
	}
	return *c.AngleThresholdDeg
}

// GetUseAngleGrouping returns the use_angle_grouping value or the default.
func (c *ToolConfig) GetUseAngleGrouping() bool {
	if c.UseAngleGrouping == nil {
		return true // default
	}
	return *c.UseAngleGrouping
}

// GetMergeGroup returns the merge_group value or the default.
func (c *ToolConfig) GetMergeGroup() bool {
	if c.MergeGroup == nil {
		return true // default
	}
	return *c.MergeGroup
}

// GetNSamples returns the n_samples value or the default.
func (c *ToolConfig) GetNSamples() int {
	if c.NSamples == nil {
		return 15 // default
	}
	return *c.NSamples
}

// GetPerpOffset returns the perp_offset value or the default.
func (c *ToolConfig) GetPerpOffset() float64 {
	if c.PerpOffset == nil {
		return 30.0 // default
	}
	return *c.PerpOffset
}

// GetWidthPercentile returns the width_percentile value or the default.
func (c *ToolConfig) GetWidthPercentile() float64 {
	if c.WidthPercentile == nil {
		return 75.0 // default
	}
	return *c.WidthPercentile
}

// GetUseMaxWidth returns the use_max_width value or the default.
func (c *ToolConfig) GetUseMaxWidth() bool {
	if c.UseMaxWidth == nil {
		return false // default
	}
	return *c.UseMaxWidth
}

// GetTrimOutput returns the trim_output value or the default.
func (c *ToolConfig) GetTrimOutput() bool {
	if c.TrimOutput == nil {
		return true // default
	}
	return *c.TrimOutput
}

// GetTrimCellSize returns the trim_cell_size value or the default.
func (c *ToolConfig) GetTrimCellSize() float64 {
	if c.TrimCellSize == nil {
		return 0.5 // default
	}
	return *c.TrimCellSize
}

// GetParallelMode returns the parsed parallel_mode or the default.
func (c *ToolConfig) GetParallelMode() execute.Mode {
	if c.ParallelMode == nil {
		return execute.ModeMultiprocessing // default
	}
	m, err := ParseParallelMode(*c.ParallelMode)
	if err != nil {
		return execute.ModeMultiprocessing // default on parse error
	}
	return m
}

// GetProcesses returns the processes value or the default.
func (c *ToolConfig) GetProcesses() int {
	if c.Processes == nil {
		return -1 // default: every CPU
	}
	return *c.Processes
}
