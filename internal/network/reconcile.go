package network

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/forestline/corridor/internal/geom"
	"github.com/forestline/corridor/internal/monitoring"
)

// State is the stage a Reconciler has reached.
type State int

const (
	StateRaw State = iota
	StateMergedMultipart
	StateGrouped
	StateSplitAtIntersections
	StateReconciled
)

func (s State) String() string {
	switch s {
	case StateRaw:
		return "raw"
	case StateMergedMultipart:
		return "merged_multipart"
	case StateGrouped:
		return "grouped"
	case StateSplitAtIntersections:
		return "split_at_intersections"
	case StateReconciled:
		return "reconciled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrState is returned when a step runs out of order.
var ErrState = errors.New("reconciler step out of order")

// ReconcileOptions selects the reconciliation flow.
type ReconcileOptions struct {
	// MergeGroup merges each angle group into one line and stops there.
	// When false, lines are grouped by shared vertices, merged, split at
	// their intersections, then regrouped by angle.
	MergeGroup bool

	// SkipRegroup keeps the group lines merged before the split as the
	// result of a split run instead of regrouping the split lines.
	SkipRegroup bool

	AngleThreshold   float64
	MinSegmentLength float64
}

// Reconciler walks a line set through Raw, MergedMultipart, Grouped,
// SplitAtIntersections and Reconciled.
type Reconciler struct {
	Options ReconcileOptions
	State   State

	// Lines is the working set after the last completed step.
	Lines []geom.Feature
	// Merged holds one record per merged group line once grouping ran.
	Merged []geom.Feature
	// Splitter is set once lines were split at intersections.
	Splitter *LineSplitter
}

// NewReconciler starts a reconciler in StateRaw.
func NewReconciler(features []geom.Feature, opts ReconcileOptions) *Reconciler {
	return &Reconciler{Options: opts, State: StateRaw, Lines: features}
}

func (r *Reconciler) require(want State, step string) error {
	if r.State != want {
		return fmt.Errorf("%w: %s needs state %s, have %s", ErrState, step, want, r.State)
	}
	return nil
}

// MergeMultipart turns every multipart line into single-part records.
func (r *Reconciler) MergeMultipart() error {
	if err := r.require(StateRaw, "merge multipart"); err != nil {
		return err
	}
	merged, err := MergeMultipart(r.Lines)
	if err != nil {
		return err
	}
	r.Lines = merged
	r.State = StateMergedMultipart
	return nil
}

// Group labels lines and merges each group. In merge-group mode grouping is
// by angle; otherwise every line at a shared vertex joins.
func (r *Reconciler) Group() error {
	if err := r.require(StateMergedMultipart, "group"); err != nil {
		return err
	}
	merged, grouped, err := r.groupAndMerge(r.Lines, r.Options.MergeGroup)
	if err != nil {
		return err
	}
	r.Lines, r.Merged = grouped, merged
	r.State = StateGrouped
	return nil
}

func (r *Reconciler) groupAndMerge(lines []geom.Feature, useAngle bool) (merged, grouped []geom.Feature, err error) {
	opts := DefaultGroupingOptions()
	opts.UseAngle = useAngle
	if r.Options.AngleThreshold > 0 {
		opts.AngleThreshold = r.Options.AngleThreshold
	}
	lg := NewLineGrouping(lines, opts)
	if err := lg.RunGrouping(); err != nil {
		return nil, nil, err
	}
	merged, err = lg.RunLineMerge()
	if err != nil {
		return nil, nil, err
	}
	return merged, lg.Lines, nil
}

// SplitAtIntersections splits the merged group lines where they cross and
// at extraPoints.
func (r *Reconciler) SplitAtIntersections(extraPoints []orb.Point) error {
	if err := r.require(StateGrouped, "split"); err != nil {
		return err
	}
	s := NewLineSplitter(r.Merged)
	if r.Options.MinSegmentLength > 0 {
		s.MinSegmentLength = r.Options.MinSegmentLength
	}
	if err := s.Process(extraPoints); err != nil {
		return err
	}
	r.Splitter = s
	r.Lines = s.SplitLines
	r.State = StateSplitAtIntersections
	return nil
}

// Finish regroups split lines by angle (when a split ran and SkipRegroup
// is unset) and marks the set reconciled.
func (r *Reconciler) Finish() error {
	switch r.State {
	case StateGrouped:
	case StateSplitAtIntersections:
		if r.Options.SkipRegroup {
			break
		}
		merged, grouped, err := r.groupAndMerge(r.Lines, true)
		if err != nil {
			return err
		}
		r.Lines, r.Merged = grouped, merged
	default:
		return fmt.Errorf("%w: finish in state %s", ErrState, r.State)
	}
	r.State = StateReconciled
	return nil
}

// Run executes the whole flow for the configured mode.
func (r *Reconciler) Run() error {
	if err := r.MergeMultipart(); err != nil {
		return err
	}
	if err := r.Group(); err != nil {
		return err
	}
	if !r.Options.MergeGroup {
		if err := r.SplitAtIntersections(nil); err != nil {
			return err
		}
	}
	if err := r.Finish(); err != nil {
		return err
	}
	monitoring.Diagf("reconcile: %d lines, %d merged group lines", len(r.Lines), len(r.Merged))
	return nil
}

// QCMergeMultiLineString merges multipart lines where possible and splits
// the rest into single lines. Features without line geometry are dropped.
func QCMergeMultiLineString(features []geom.Feature) ([]geom.Feature, error) {
	lines := make([]geom.Feature, 0, len(features))
	for _, f := range features {
		switch f.Geometry.(type) {
		case orb.LineString, orb.MultiLineString:
			lines = append(lines, f)
		default:
			monitoring.Opsf("qc: dropping OLnFID %d with %T geometry", f.FID, f.Geometry)
		}
	}
	return MergeMultipart(lines)
}

// QCSplitLinesAtIntersections splits every line where it meets another.
func QCSplitLinesAtIntersections(features []geom.Feature) ([]geom.Feature, error) {
	s := NewLineSplitter(features)
	if err := s.Process(nil); err != nil {
		return nil, err
	}
	return s.SplitLines, nil
}
