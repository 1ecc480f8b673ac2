// Package diag writes debug heatmaps of intermediate rasters.
package diag

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/forestline/corridor/internal/crs"
	"github.com/forestline/corridor/internal/monitoring"
	"github.com/forestline/corridor/internal/raster"
	"github.com/forestline/corridor/internal/security"
)

// ErrEmptyRaster is returned when a raster has no valid cells to draw.
var ErrEmptyRaster = errors.New("raster has no valid cells")

const paletteSize = 255

// rasterGrid adapts a raster to plotter.GridXYZ. Grid rows run south to
// north so Y increases with the row index. Rotated rasters are drawn in
// pixel space.
type rasterGrid struct {
	r      *raster.Raster
	pixels bool
}

func newRasterGrid(r *raster.Raster) rasterGrid {
	t := r.Transform
	return rasterGrid{r: r, pixels: t.Rx != 0 || t.Ry != 0 || t.Dy >= 0}
}

func (g rasterGrid) Dims() (c, r int) { return g.r.Width, g.r.Height }

func (g rasterGrid) Z(c, r int) float64 {
	v, ok := g.r.At(g.r.Height-1-r, c)
	if !ok {
		return math.NaN()
	}
	return v
}

func (g rasterGrid) X(c int) float64 {
	if g.pixels {
		return float64(c)
	}
	x, _ := g.r.Transform.Apply(float64(c)+0.5, 0)
	return x
}

func (g rasterGrid) Y(r int) float64 {
	if g.pixels {
		return float64(r)
	}
	_, y := g.r.Transform.Apply(0, float64(g.r.Height-1-r)+0.5)
	return y
}

// SaveHeatmap renders r to a PNG at path. Invalid cells are transparent.
func SaveHeatmap(path, title string, r *raster.Raster) error {
	lo, hi, ok := r.MinMax()
	if !ok {
		return fmt.Errorf("%s: %w", title, ErrEmptyRaster)
	}
	if hi == lo {
		hi = lo + 1
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	hm := plotter.NewHeatMap(newRasterGrid(r), moreland.Kindlmann().Palette(paletteSize))
	hm.Min, hm.Max = lo, hi
	hm.NaN = color.Transparent
	hm.Rasterized = true
	p.Add(hm)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 8*vg.Inch, path)
}

// Dumper writes per-line debug rasters into a directory. A nil Dumper
// writes nothing.
type Dumper struct {
	Dir string
}

// NewDumper returns nil for an empty directory.
func NewDumper(dir string) *Dumper {
	if dir == "" {
		return nil
	}
	return &Dumper{Dir: dir}
}

// Path is the file a raster kind for one line segment is written to.
func (d *Dumper) Path(kind string, fid, seg int) string {
	return filepath.Join(d.Dir, fmt.Sprintf("%s_%d_%d.png", security.SanitizeFilename(kind), fid, seg))
}

// Raster writes one debug heatmap. Failures are logged, not returned, so
// debug output never fails a line.
func (d *Dumper) Raster(kind string, fid, seg int, r *raster.Raster) {
	if d == nil || r == nil {
		return
	}
	path := d.Path(kind, fid, seg)
	if err := security.ValidatePathWithinDirectory(path, d.Dir); err != nil {
		monitoring.Opsf("debug raster %s: %v", path, err)
		return
	}
	title := fmt.Sprintf("%s line %d/%d", kind, fid, seg)
	if err := SaveHeatmap(path, title, r); err != nil {
		monitoring.Opsf("debug raster %s: %v", path, err)
		return
	}
	monitoring.Tracef("debug raster written to %s", path)
}

// Mask writes a binary mask as a 0/1 heatmap.
func (d *Dumper) Mask(kind string, fid, seg int, m raster.Mask) {
	if d == nil {
		return
	}
	d.Raster(kind, fid, seg, m.ToRaster(crs.CRS{}))
}
