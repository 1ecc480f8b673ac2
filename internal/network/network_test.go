package network

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forestline/corridor/internal/geom"
	"github.com/forestline/corridor/internal/testutil"
)

// ----------------------------------------------------------------------------
// Merge
// ----------------------------------------------------------------------------

func TestCustomLineMerge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   orb.Geometry
		want orb.Geometry
	}{
		{
			name: "two parts join",
			in:   orb.MultiLineString{{{0, 0}, {1, 0}}, {{1, 0}, {2, 0}}},
			want: orb.LineString{{0, 0}, {1, 0}, {2, 0}},
		},
		{
			name: "reversed part is flipped",
			in:   orb.MultiLineString{{{0, 0}, {1, 0}}, {{2, 0}, {1, 0}}},
			want: orb.LineString{{0, 0}, {1, 0}, {2, 0}},
		},
		{
			name: "disjoint parts stay apart",
			in:   orb.MultiLineString{{{0, 0}, {1, 0}}, {{5, 0}, {6, 0}}},
			want: orb.MultiLineString{{{0, 0}, {1, 0}}, {{5, 0}, {6, 0}}},
		},
		{
			name: "junction is not merged through",
			in:   orb.MultiLineString{{{0, 0}, {1, 0}}, {{1, 0}, {2, 0}}, {{1, 0}, {1, 1}}},
			want: orb.MultiLineString{{{0, 0}, {1, 0}}, {{1, 0}, {2, 0}}, {{1, 0}, {1, 1}}},
		},
		{
			name: "single line unchanged",
			in:   orb.LineString{{0, 0}, {3, 4}},
			want: orb.LineString{{0, 0}, {3, 4}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := CustomLineMerge(tt.in)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("CustomLineMerge() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCustomLineMerge_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []orb.Geometry{
		orb.MultiLineString{{{0, 0}, {1, 0}}, {{1, 0}, {2, 0}}, {{1, 0}, {1, 1}}, {{1, 1}, {3, 3}}},
		orb.MultiLineString{{{0, 0}, {1, 0}}, {{1, 0}, {1, 1}}, {{1, 1}, {0, 0}}},
		orb.LineString{{0, 0}, {1, 1}, {2, 0}},
	}
	for _, in := range inputs {
		once, err := CustomLineMerge(in)
		require.NoError(t, err)
		twice, err := CustomLineMerge(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	}
}

func TestCustomLineMerge_ClosedLoop(t *testing.T) {
	t.Parallel()

	got, err := CustomLineMerge(orb.MultiLineString{{{0, 0}, {1, 0}}, {{1, 0}, {1, 1}}, {{1, 1}, {0, 0}}})
	require.NoError(t, err)
	ls, ok := got.(orb.LineString)
	require.True(t, ok, "loop should merge into one line, got %T", got)
	assert.Len(t, ls, 4)
	assert.Equal(t, ls[0], ls[len(ls)-1])
}

func TestCustomLineMerge_Unsupported(t *testing.T) {
	t.Parallel()
	_, err := CustomLineMerge(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}})
	assert.True(t, errors.Is(err, geom.ErrUnsupportedGeometry))
}

func TestMergeMultipart_NeverDropsGeometry(t *testing.T) {
	t.Parallel()

	f := testutil.LineFeature(4, orb.MultiLineString{{{0, 0}, {1, 0}}, {{1, 0}, {2, 0}}, {{1, 0}, {1, 1}}})
	f.SetProp("name", "cutline")
	single := testutil.LineFeature(5, orb.LineString{{0, 5}, {4, 5}})

	out, err := MergeMultipart([]geom.Feature{f, single})
	require.NoError(t, err)
	require.Len(t, out, 4)

	total := 0.0
	for _, o := range out[:3] {
		assert.Equal(t, 4, o.FID)
		assert.Equal(t, "cutline", o.Props["name"])
		total += geom.Length(o.Geometry.(orb.LineString))
	}
	assert.InDelta(t, 3.0, total, 1e-9)
	assert.Equal(t, 5, out[3].FID)
}

// ----------------------------------------------------------------------------
// Grouping
// ----------------------------------------------------------------------------

func junctionLines() []geom.Feature {
	return []geom.Feature{
		testutil.LineFeature(5, orb.LineString{{0, 0}, {10, 0}}),
		testutil.LineFeature(3, orb.LineString{{10, 0}, {20, 0.5}}),
		testutil.LineFeature(7, orb.LineString{{10, 0}, {10, 10}}),
	}
}

func groupsByFID(lines []geom.Feature) map[int]int {
	out := make(map[int]int, len(lines))
	for _, f := range lines {
		out[f.FID] = f.Group
	}
	return out
}

func TestLineGrouping_AngleMode(t *testing.T) {
	t.Parallel()

	lg := NewLineGrouping(junctionLines(), DefaultGroupingOptions())
	require.NoError(t, lg.RunGrouping())

	assert.Equal(t, map[int]int{5: 3, 3: 3, 7: 7}, groupsByFID(lg.Lines))
	require.Len(t, lg.Groups(), 2)
	assert.Equal(t, 3, lg.Groups()[0].Label)
}

func TestLineGrouping_SharedVertexMode(t *testing.T) {
	t.Parallel()

	lg := NewLineGrouping(junctionLines(), GroupingOptions{})
	require.NoError(t, lg.RunGrouping())
	assert.Equal(t, map[int]int{5: 3, 3: 3, 7: 3}, groupsByFID(lg.Lines))
}

func TestLineGrouping_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := junctionLines()
	lg := NewLineGrouping(in, DefaultGroupingOptions())
	require.NoError(t, lg.RunGrouping())
	for _, f := range in {
		assert.Zero(t, f.Group)
	}
}

func TestLineGrouping_Symmetric(t *testing.T) {
	t.Parallel()

	fwd := junctionLines()
	rev := []geom.Feature{fwd[2], fwd[1], fwd[0]}

	a := NewLineGrouping(fwd, DefaultGroupingOptions())
	b := NewLineGrouping(rev, DefaultGroupingOptions())
	require.NoError(t, a.RunGrouping())
	require.NoError(t, b.RunGrouping())
	assert.Equal(t, groupsByFID(a.Lines), groupsByFID(b.Lines))
}

func TestLineGrouping_CrossingPairsStraightThrough(t *testing.T) {
	t.Parallel()

	lines := []geom.Feature{
		testutil.LineFeature(1, orb.LineString{{-10, 0}, {0, 0}}),
		testutil.LineFeature(2, orb.LineString{{0, 0}, {0, 10}}),
		testutil.LineFeature(3, orb.LineString{{0, 0}, {10, 0}}),
		testutil.LineFeature(4, orb.LineString{{0, -10}, {0, 0}}),
	}
	lg := NewLineGrouping(lines, DefaultGroupingOptions())
	require.NoError(t, lg.RunGrouping())
	assert.Equal(t, map[int]int{1: 1, 3: 1, 2: 2, 4: 2}, groupsByFID(lg.Lines))
}

func TestLineGrouping_GreedyTakesStraightestContinuation(t *testing.T) {
	t.Parallel()

	lines := []geom.Feature{
		testutil.LineFeature(1, orb.LineString{{-10, 0}, {0, 0}}),
		// 10 degrees up
		testutil.LineFeature(2, orb.LineString{{0, 0}, {9.848, 1.736}}),
		// 20 degrees down
		testutil.LineFeature(3, orb.LineString{{0, 0}, {9.397, -3.420}}),
	}
	lg := NewLineGrouping(lines, DefaultGroupingOptions())
	require.NoError(t, lg.RunGrouping())
	assert.Equal(t, map[int]int{1: 1, 2: 1, 3: 3}, groupsByFID(lg.Lines))
}

func TestTurningAngle(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 0.0, TurningAngle(orb.Point{-1, 0}, orb.Point{1, 0}), 1e-9)
	assert.InDelta(t, 90.0, TurningAngle(orb.Point{-1, 0}, orb.Point{0, 1}), 1e-9)
	assert.InDelta(t, 180.0, TurningAngle(orb.Point{1, 0}, orb.Point{1, 0}), 1e-9)
}

func TestLineGrouping_RunLineMerge(t *testing.T) {
	t.Parallel()

	lg := NewLineGrouping(junctionLines(), DefaultGroupingOptions())
	merged, err := lg.RunLineMerge()
	require.NoError(t, err)
	require.Len(t, merged, 2)

	assert.Equal(t, 3, merged[0].FID)
	assert.Equal(t, 3, merged[0].Group)
	ls := merged[0].Geometry.(orb.LineString)
	assert.Len(t, ls, 3)
	assert.InDelta(t, 10+geom.Length(orb.LineString{{10, 0}, {20, 0.5}}), geom.Length(ls), 1e-9)

	assert.Equal(t, 7, merged[1].FID)
}

// ----------------------------------------------------------------------------
// Splitting
// ----------------------------------------------------------------------------

func TestLineSplitter_Cross(t *testing.T) {
	t.Parallel()

	s := NewLineSplitter([]geom.Feature{
		testutil.LineFeature(1, testutil.HorizontalLine(0, 10, 0)),
		testutil.LineFeature(2, orb.LineString{{5, -5}, {5, 5}}),
	})
	require.NoError(t, s.Process(nil))

	require.Len(t, s.IntersectionPoints, 1)
	assert.Equal(t, orb.Point{5, 0}, s.IntersectionPoints[0].Geometry)
	assert.Empty(t, s.InvalidSplits)
	require.Len(t, s.SplitLines, 4)

	lengths := map[int]float64{}
	for _, f := range s.SplitLines {
		lengths[f.FID] += geom.Length(f.Geometry.(orb.LineString))
	}
	assert.InDelta(t, 10.0, lengths[1], 1e-9)
	assert.InDelta(t, 10.0, lengths[2], 1e-9)
	assert.Equal(t, 0, s.SplitLines[0].Seg)
	assert.Equal(t, 1, s.SplitLines[1].Seg)
}

func TestLineSplitter_ShortPieceIsInvalidSplit(t *testing.T) {
	t.Parallel()

	s := NewLineSplitter([]geom.Feature{
		testutil.LineFeature(1, testutil.HorizontalLine(0, 10, 0)),
		testutil.LineFeature(2, orb.LineString{{1e-7, -5}, {1e-7, 5}}),
	})
	require.NoError(t, s.Process(nil))

	require.Len(t, s.InvalidSplits, 1)
	assert.Equal(t, 1, s.InvalidSplits[0].FID)

	var h []geom.Feature
	for _, f := range s.SplitLines {
		if f.FID == 1 {
			h = append(h, f)
		}
	}
	require.Len(t, h, 1, "short piece must stay attached")
	assert.InDelta(t, 10.0, geom.Length(h[0].Geometry.(orb.LineString)), 1e-9)
}

func TestLineSplitter_TouchingEndsAreNotSplit(t *testing.T) {
	t.Parallel()

	s := NewLineSplitter([]geom.Feature{
		testutil.LineFeature(1, testutil.HorizontalLine(0, 10, 0)),
		testutil.LineFeature(2, orb.LineString{{10, 0}, {10, 10}}),
	})
	require.NoError(t, s.Process(nil))
	assert.Len(t, s.SplitLines, 2)
	assert.Len(t, s.IntersectionPoints, 1)
}

func TestLineSplitter_ExtraPoints(t *testing.T) {
	t.Parallel()

	s := NewLineSplitter([]geom.Feature{testutil.LineFeature(1, testutil.HorizontalLine(0, 10, 0))})
	require.NoError(t, s.Process([]orb.Point{{4, 0}, {4, 1}}))
	require.Len(t, s.SplitLines, 2)
	assert.InDelta(t, 4.0, geom.Length(s.SplitLines[0].Geometry.(orb.LineString)), 1e-9)
	assert.InDelta(t, 6.0, geom.Length(s.SplitLines[1].Geometry.(orb.LineString)), 1e-9)
	assert.Empty(t, s.IntersectionPoints)
}

func TestLineSplitter_LengthPreserved(t *testing.T) {
	t.Parallel()

	zig := orb.LineString{{0, 0}, {4, 4}, {8, 0}, {12, 4}, {16, 0}}
	cross := []geom.Feature{
		testutil.LineFeature(1, zig),
		testutil.LineFeature(2, testutil.HorizontalLine(-1, 17, 2)),
		testutil.LineFeature(3, orb.LineString{{6, -1}, {6, 5}}),
	}
	s := NewLineSplitter(cross)
	require.NoError(t, s.Process(nil))

	sum := map[int]float64{}
	for _, f := range s.SplitLines {
		sum[f.FID] += geom.Length(f.Geometry.(orb.LineString))
	}
	for _, f := range cross {
		assert.InDelta(t, geom.Length(f.Geometry.(orb.LineString)), sum[f.FID], 1e-9, "OLnFID %d", f.FID)
	}
}

// ----------------------------------------------------------------------------
// Cutting
// ----------------------------------------------------------------------------

func pieceLengths(ps []orb.LineString) []float64 {
	out := make([]float64, len(ps))
	for i, p := range ps {
		out[i] = geom.Length(p)
	}
	return out
}

func TestCutLineByLength(t *testing.T) {
	t.Parallel()

	ten := testutil.HorizontalLine(0, 10, 0)
	approx := cmp.Comparer(func(a, b float64) bool { return a-b < 1e-9 && b-a < 1e-9 })

	tests := []struct {
		name      string
		length    float64
		threshold float64
		want      []float64
	}{
		{"trailing piece merged", 3, 1, []float64{3, 3, 4}},
		{"trailing piece kept", 3, 0.5, []float64{3, 3, 3, 1}},
		{"exact multiple", 5, 1, []float64{5, 5}},
		{"shorter than length", 20, 1, []float64{10}},
		{"non-positive length", 0, 1, []float64{10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := pieceLengths(CutLineByLength(ten, tt.length, tt.threshold))
			if diff := cmp.Diff(tt.want, got, approx); diff != "" {
				t.Errorf("lengths mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCutLineByLength_PiecesJoinUp(t *testing.T) {
	t.Parallel()

	ls := orb.LineString{{0, 0}, {3, 0}, {3, 7}}
	pieces := CutLineByLength(ls, 4, 0.5)
	require.Len(t, pieces, 3)
	for i := 1; i < len(pieces); i++ {
		assert.Equal(t, pieces[i-1][len(pieces[i-1])-1], pieces[i][0])
	}
	testutil.AssertPointNear(t, orb.Point{3, 1}, pieces[0][len(pieces[0])-1], 1e-9)
}

func TestSplitIntoSegments_RunningSegPerFID(t *testing.T) {
	t.Parallel()

	in := []geom.Feature{
		testutil.LineFeature(1, testutil.HorizontalLine(0, 10, 0)),
		testutil.LineFeature(1, testutil.HorizontalLine(0, 2, 5)),
		testutil.LineFeature(2, testutil.HorizontalLine(0, 4, 9)),
	}
	out, err := SplitIntoSegments(in, 3, 0.5)
	require.NoError(t, err)

	var segs1, segs2 []int
	for _, f := range out {
		if f.FID == 1 {
			segs1 = append(segs1, f.Seg)
		} else {
			segs2 = append(segs2, f.Seg)
		}
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, segs1)
	assert.Equal(t, []int{0, 1}, segs2)
}

// ----------------------------------------------------------------------------
// Cleanup
// ----------------------------------------------------------------------------

func rect(x0, y0, x1, y1 float64) orb.Polygon {
	return orb.Polygon{{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}}
}

func TestRunCleanup_SplitsOverlapByNearestLine(t *testing.T) {
	t.Parallel()

	footprints := []geom.Feature{
		{Geometry: rect(0, 0, 10, 4), FID: 1, Group: 1},
		{Geometry: rect(0, 3, 10, 8), FID: 2, Group: 2},
	}
	lines := []geom.Feature{
		{Geometry: testutil.HorizontalLine(0, 10, 2), FID: 1, Group: 1},
		{Geometry: testutil.HorizontalLine(0, 10, 6), FID: 2, Group: 2},
	}
	out, err := RunCleanup(footprints, lines, 0.5)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, 1, out[0].Group)
	assert.InDelta(t, 40.0, geom.Area(out[0].Geometry), 1e-6)
	assert.Equal(t, 2, out[1].Group)
	assert.InDelta(t, 40.0, geom.Area(out[1].Geometry), 1e-6)

	for _, f := range out {
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			t.Errorf("group %d: got %T, want polygonal output", f.Group, f.Geometry)
		}
	}
}

func TestRunCleanup_Empty(t *testing.T) {
	t.Parallel()
	out, err := RunCleanup(nil, nil, 0.5)
	require.NoError(t, err)
	assert.Empty(t, out)
}

// ----------------------------------------------------------------------------
// Reconciler
// ----------------------------------------------------------------------------

func TestReconciler_MergeGroupMode(t *testing.T) {
	t.Parallel()

	r := NewReconciler(junctionLines(), ReconcileOptions{MergeGroup: true})
	require.NoError(t, r.Run())
	assert.Equal(t, StateReconciled, r.State)
	assert.Nil(t, r.Splitter)
	assert.Len(t, r.Merged, 2)
}

func TestReconciler_SplitMode(t *testing.T) {
	t.Parallel()

	r := NewReconciler([]geom.Feature{
		testutil.LineFeature(1, testutil.HorizontalLine(0, 10, 0)),
		testutil.LineFeature(2, orb.LineString{{5, -5}, {5, 5}}),
	}, ReconcileOptions{})
	require.NoError(t, r.Run())

	assert.Equal(t, StateReconciled, r.State)
	require.NotNil(t, r.Splitter)
	assert.Len(t, r.Splitter.IntersectionPoints, 1)
	require.Len(t, r.Lines, 4)
	assert.Equal(t, map[int]int{1: 1, 2: 2}, groupsByFID(r.Lines))
	assert.Len(t, r.Merged, 2)
}

func TestReconciler_SplitModeSkipRegroup(t *testing.T) {
	t.Parallel()

	regrouped := NewReconciler(junctionLines(), ReconcileOptions{})
	require.NoError(t, regrouped.Run())
	assert.Len(t, regrouped.Merged, 2, "split lines regrouped by angle")

	r := NewReconciler(junctionLines(), ReconcileOptions{SkipRegroup: true})
	require.NoError(t, r.Run())
	assert.Equal(t, StateReconciled, r.State)
	require.NotNil(t, r.Splitter)
	assert.Equal(t, r.Splitter.SplitLines, r.Lines)
	require.Len(t, r.Merged, 1, "shared-vertex group merged before the split")
	assert.InDelta(t, 20+math.Hypot(10, 0.5), planar.Length(r.Merged[0].Geometry), 1e-9)
}

func TestReconciler_OutOfOrder(t *testing.T) {
	t.Parallel()

	r := NewReconciler(junctionLines(), ReconcileOptions{})
	err := r.Group()
	assert.True(t, errors.Is(err, ErrState))
	assert.Equal(t, StateRaw, r.State)
}

func TestState_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "raw", StateRaw.String())
	assert.Equal(t, "split_at_intersections", StateSplitAtIntersections.String())
	assert.Equal(t, "State(9)", State(9).String())
}

// ----------------------------------------------------------------------------
// QC
// ----------------------------------------------------------------------------

func TestQCMergeMultiLineString_DropsNonLines(t *testing.T) {
	t.Parallel()

	out, err := QCMergeMultiLineString([]geom.Feature{
		testutil.LineFeature(1, orb.MultiLineString{{{0, 0}, {1, 0}}, {{1, 0}, {2, 0}}}),
		{Geometry: orb.Point{1, 1}, FID: 2},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, orb.LineString{{0, 0}, {1, 0}, {2, 0}}, out[0].Geometry)
}

func TestQCSplitLinesAtIntersections(t *testing.T) {
	t.Parallel()

	out, err := QCSplitLinesAtIntersections([]geom.Feature{
		testutil.LineFeature(1, testutil.HorizontalLine(0, 10, 0)),
		testutil.LineFeature(2, orb.LineString{{5, -5}, {5, 5}}),
	})
	require.NoError(t, err)
	assert.Len(t, out, 4)
}
