package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forestline/corridor/internal/runstore"
)

func sampleLines() []runstore.LineResult {
	return []runstore.LineResult{
		{FID: 1, Status: runstore.LineSucceeded, Width: 4},
		{FID: 2, Status: runstore.LineSucceeded, Width: 6},
		{FID: 3, Status: runstore.LineSucceeded, Width: 8},
		{FID: 4, Status: runstore.LineSkipped, Reason: "no_corridor"},
		{FID: 5, Status: runstore.LineSkipped, Reason: "no_corridor"},
	}
}

func TestStatusCounts(t *testing.T) {
	t.Parallel()

	keys, vals := statusCounts(sampleLines())
	assert.Equal(t, []string{"SKIPPED (no_corridor)", "SUCCESS"}, keys)
	assert.Equal(t, []int{2, 3}, vals)
}

func TestWidthHistogram(t *testing.T) {
	t.Parallel()

	labels, counts := widthHistogram(sampleLines(), 2)
	require.Len(t, labels, 2)
	assert.Equal(t, []string{"5.00", "7.00"}, labels)
	assert.Equal(t, []float64{1, 2}, counts)

	var total float64
	for _, c := range counts {
		total += c
	}
	assert.Equal(t, 3.0, total, "skipped lines carry no width")
}

func TestWidthHistogram_Degenerate(t *testing.T) {
	t.Parallel()

	labels, counts := widthHistogram(nil, 10)
	assert.Nil(t, labels)
	assert.Nil(t, counts)

	labels, counts = widthHistogram([]runstore.LineResult{{Width: 3}, {Width: 3}}, 10)
	assert.Equal(t, []string{"3.00"}, labels)
	assert.Equal(t, []float64{2}, counts)
}

func TestRender(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := Render(&buf, Summary{
		Tool:    "footprint-fixed",
		RunID:   "abc",
		Started: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
		Elapsed: 2 * time.Second,
		Lines:   sampleLines(),
	})
	require.NoError(t, err)
	html := buf.String()
	assert.True(t, strings.Contains(html, "footprint-fixed: line status"))
	assert.True(t, strings.Contains(html, "footprint-fixed: footprint width"))
	assert.True(t, strings.Contains(html, "<title>footprint-fixed run report</title>"))
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "report.html")
	require.NoError(t, WriteFile(path, Summary{Tool: "centerline"}))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
