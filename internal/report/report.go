// Package report renders a static HTML summary of one tool run with
// go-echarts: per-status line counts and a histogram of footprint widths.
package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/forestline/corridor/internal/runstore"
)

// DefaultBins is the number of width histogram bins.
const DefaultBins = 20

// Summary is what a report shows.
type Summary struct {
	Tool    string
	RunID   string
	Started time.Time
	Elapsed time.Duration
	Lines   []runstore.LineResult
	Bins    int
}

// statusCounts groups lines by status, with skipped lines split by reason.
func statusCounts(lines []runstore.LineResult) ([]string, []int) {
	counts := make(map[string]int)
	for _, l := range lines {
		key := l.Status
		if l.Reason != "" {
			key = l.Status + " (" + l.Reason + ")"
		}
		counts[key]++
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vals := make([]int, len(keys))
	for i, k := range keys {
		vals[i] = counts[k]
	}
	return keys, vals
}

// widthHistogram bins the positive widths into n equal bins. The returned
// labels are bin centres.
func widthHistogram(lines []runstore.LineResult, n int) ([]string, []float64) {
	var widths []float64
	for _, l := range lines {
		if l.Width > 0 {
			widths = append(widths, l.Width)
		}
	}
	if len(widths) == 0 {
		return nil, nil
	}
	if n < 1 {
		n = DefaultBins
	}
	sort.Float64s(widths)
	lo, hi := widths[0], widths[len(widths)-1]
	if hi == lo {
		return []string{fmt.Sprintf("%.2f", lo)}, []float64{float64(len(widths))}
	}
	dividers := make([]float64, n+1)
	floats.Span(dividers, lo, hi)
	// stat.Histogram requires the last divider to exceed every value.
	dividers[n] = hi + (hi-lo)*1e-9
	counts := stat.Histogram(nil, dividers, widths, nil)

	labels := make([]string, n)
	for i := range labels {
		labels[i] = fmt.Sprintf("%.2f", (dividers[i]+dividers[i+1])/2)
	}
	return labels, counts
}

// Render writes the report page to w.
func Render(w io.Writer, s Summary) error {
	subtitle := fmt.Sprintf("run=%s lines=%d elapsed=%v", s.RunID, len(s.Lines), s.Elapsed.Round(time.Millisecond))
	if !s.Started.IsZero() {
		subtitle += " started=" + s.Started.Format(time.RFC3339)
	}

	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("%s run report", s.Tool)

	keys, vals := statusCounts(s.Lines)
	statusData := make([]opts.BarData, len(vals))
	for i, v := range vals {
		statusData[i] = opts.BarData{Value: v}
	}
	status := charts.NewBar()
	status.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: s.Tool + ": line status", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	status.SetXAxis(keys).
		AddSeries("lines", statusData,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	page.AddCharts(status)

	if labels, counts := widthHistogram(s.Lines, s.Bins); len(labels) > 0 {
		histData := make([]opts.BarData, len(counts))
		for i, c := range counts {
			histData[i] = opts.BarData{Value: c}
		}
		hist := charts.NewBar()
		hist.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
			charts.WithTitleOpts(opts.Title{Title: s.Tool + ": footprint width"}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
			charts.WithXAxisOpts(opts.XAxis{Name: "width (m)", NameLocation: "middle", NameGap: 25}),
			charts.WithYAxisOpts(opts.YAxis{Name: "lines"}),
		)
		hist.SetXAxis(labels).AddSeries("width", histData)
		page.AddCharts(hist)
	}

	return page.Render(w)
}

// WriteFile renders the report to path, creating parent directories.
func WriteFile(path string, s Summary) error {
	var buf bytes.Buffer
	if err := Render(&buf, s); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
