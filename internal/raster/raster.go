package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/floats"

	"github.com/forestline/corridor/internal/crs"
)

var (
	// ErrEmptyWindow is returned when a clip window does not overlap the raster.
	ErrEmptyWindow = errors.New("clip window does not overlap raster")
	// ErrGridMismatch is returned when rasters combined in one operation do
	// not share a grid.
	ErrGridMismatch = errors.New("rasters do not share a grid")
)

// Transform is an affine pixel-to-map transform in GDAL order:
//
//	x = X0 + col*Dx + row*Rx
//	y = Y0 + col*Ry + row*Dy
//
// (col, row) = (0, 0) is the outer corner of the first cell.
type Transform struct {
	X0, Dx, Rx float64
	Y0, Ry, Dy float64
}

// NorthUp returns the transform of an unrotated grid whose top-left corner
// is (x0, y0).
func NorthUp(x0, y0, cellWidth, cellHeight float64) Transform {
	return Transform{X0: x0, Dx: cellWidth, Y0: y0, Dy: -cellHeight}
}

// Apply maps fractional pixel coordinates to map coordinates.
func (t Transform) Apply(col, row float64) (x, y float64) {
	return t.X0 + col*t.Dx + row*t.Rx, t.Y0 + col*t.Ry + row*t.Dy
}

// Invert maps map coordinates to fractional pixel coordinates. ok is false
// for a degenerate transform.
func (t Transform) Invert(x, y float64) (col, row float64, ok bool) {
	det := t.Dx*t.Dy - t.Rx*t.Ry
	if det == 0 {
		return 0, 0, false
	}
	dx, dy := x-t.X0, y-t.Y0
	col = (dx*t.Dy - dy*t.Rx) / det
	row = (dy*t.Dx - dx*t.Ry) / det
	return col, row, true
}

// CellSize returns the ground size of one cell along columns and rows.
func (t Transform) CellSize() (w, h float64) {
	return math.Hypot(t.Dx, t.Ry), math.Hypot(t.Rx, t.Dy)
}

// Offset returns the transform of a window whose first cell is (col, row).
func (t Transform) Offset(col, row int) Transform {
	out := t
	out.X0, out.Y0 = t.Apply(float64(col), float64(row))
	return out
}

// Cell addresses one raster cell.
type Cell struct {
	Row, Col int
}

// Raster is a single-band float grid with an explicit validity grid.
type Raster struct {
	Width, Height int
	Data          []float64
	Valid         []bool
	Transform     Transform
	Nodata        float64
	CRS           crs.CRS
}

// New allocates a raster with every cell invalid.
func New(width, height int, t Transform, ref crs.CRS) *Raster {
	return &Raster{
		Width:     width,
		Height:    height,
		Data:      make([]float64, width*height),
		Valid:     make([]bool, width*height),
		Transform: t,
		Nodata:    math.NaN(),
		CRS:       ref,
	}
}

// NewLike allocates an all-invalid raster on the same grid as r.
func NewLike(r *Raster) *Raster {
	out := New(r.Width, r.Height, r.Transform, r.CRS)
	out.Nodata = r.Nodata
	return out
}

// FromValues builds a raster from row-major values, treating NaN and
// nodata as invalid.
func FromValues(width, height int, values []float64, t Transform, nodata float64) (*Raster, error) {
	if len(values) != width*height {
		return nil, fmt.Errorf("raster: %d values for %dx%d grid", len(values), width, height)
	}
	r := New(width, height, t, crs.CRS{})
	r.Nodata = nodata
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v == nodata {
			continue
		}
		r.Data[i] = v
		r.Valid[i] = true
	}
	return r, nil
}

// Index returns the row-major offset of (row, col).
func (r *Raster) Index(row, col int) int { return row*r.Width + col }

// InBounds reports whether (row, col) lies inside the grid.
func (r *Raster) InBounds(row, col int) bool {
	return row >= 0 && col >= 0 && row < r.Height && col < r.Width
}

// At returns the value at (row, col) and whether it is valid.
func (r *Raster) At(row, col int) (float64, bool) {
	if !r.InBounds(row, col) {
		return 0, false
	}
	i := r.Index(row, col)
	return r.Data[i], r.Valid[i]
}

// Set stores a valid value.
func (r *Raster) Set(row, col int, v float64) {
	i := r.Index(row, col)
	r.Data[i] = v
	r.Valid[i] = true
}

// Invalidate marks a cell as nodata.
func (r *Raster) Invalidate(row, col int) {
	i := r.Index(row, col)
	r.Data[i] = 0
	r.Valid[i] = false
}

// CellSize returns the ground size of one cell.
func (r *Raster) CellSize() (w, h float64) { return r.Transform.CellSize() }

// CellCenter returns the map coordinate of a cell centre.
func (r *Raster) CellCenter(c Cell) orb.Point {
	x, y := r.Transform.Apply(float64(c.Col)+0.5, float64(c.Row)+0.5)
	return orb.Point{x, y}
}

// CellOf returns the cell containing p. ok is false outside the grid.
func (r *Raster) CellOf(p orb.Point) (Cell, bool) {
	col, row, ok := r.Transform.Invert(p[0], p[1])
	if !ok {
		return Cell{}, false
	}
	c := Cell{Row: int(math.Floor(row)), Col: int(math.Floor(col))}
	// points on the far edge belong to the last cell
	if c.Col == r.Width && col-float64(r.Width) < 1e-9 {
		c.Col--
	}
	if c.Row == r.Height && row-float64(r.Height) < 1e-9 {
		c.Row--
	}
	return c, r.InBounds(c.Row, c.Col)
}

// Bound returns the map extent of the grid.
func (r *Raster) Bound() orb.Bound {
	return gridBound(r.Transform, r.Width, r.Height)
}

func gridBound(t Transform, width, height int) orb.Bound {
	b := orb.Bound{Min: orb.Point{math.Inf(1), math.Inf(1)}, Max: orb.Point{math.Inf(-1), math.Inf(-1)}}
	for _, c := range [][2]float64{{0, 0}, {float64(width), 0}, {0, float64(height)}, {float64(width), float64(height)}} {
		x, y := t.Apply(c[0], c[1])
		b = b.Extend(orb.Point{x, y})
	}
	return b
}

// ValidCount returns the number of valid cells.
func (r *Raster) ValidCount() int {
	n := 0
	for _, v := range r.Valid {
		if v {
			n++
		}
	}
	return n
}

// ValidValues returns the valid samples in row-major order.
func (r *Raster) ValidValues() []float64 {
	out := make([]float64, 0, len(r.Data))
	for i, v := range r.Data {
		if r.Valid[i] {
			out = append(out, v)
		}
	}
	return out
}

// MinMax returns the range of the valid samples. ok is false when no cell
// is valid.
func (r *Raster) MinMax() (lo, hi float64, ok bool) {
	vals := r.ValidValues()
	if len(vals) == 0 {
		return 0, 0, false
	}
	return floats.Min(vals), floats.Max(vals), true
}

// SameGrid reports whether a and b share dimensions and transform.
func SameGrid(a, b *Raster) bool {
	return a.Width == b.Width && a.Height == b.Height && a.Transform == b.Transform
}

// CheckSameGrid returns ErrGridMismatch unless a and b share a grid.
func CheckSameGrid(a, b *Raster) error {
	if !SameGrid(a, b) {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrGridMismatch, a.Width, a.Height, b.Width, b.Height)
	}
	return nil
}

// Mask is a binary grid sharing geometry with a raster.
type Mask struct {
	Width, Height int
	Bits          []bool
	Transform     Transform
}

// NewMask allocates an empty mask.
func NewMask(width, height int, t Transform) Mask {
	return Mask{Width: width, Height: height, Bits: make([]bool, width*height), Transform: t}
}

// MaskLike allocates an empty mask on the grid of r.
func MaskLike(r *Raster) Mask {
	return NewMask(r.Width, r.Height, r.Transform)
}

// Get reports whether (row, col) is set. Cells outside the grid are unset.
func (m Mask) Get(row, col int) bool {
	if row < 0 || col < 0 || row >= m.Height || col >= m.Width {
		return false
	}
	return m.Bits[row*m.Width+col]
}

// Set sets or clears (row, col).
func (m Mask) Set(row, col int, v bool) {
	m.Bits[row*m.Width+col] = v
}

// Count returns the number of set cells.
func (m Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

// Clone returns an independent copy.
func (m Mask) Clone() Mask {
	out := m
	out.Bits = append([]bool(nil), m.Bits...)
	return out
}

// ToRaster converts the mask to a 0/1 raster with every cell valid.
func (m Mask) ToRaster(ref crs.CRS) *Raster {
	r := New(m.Width, m.Height, m.Transform, ref)
	for i, b := range m.Bits {
		r.Valid[i] = true
		if b {
			r.Data[i] = 1
		}
	}
	return r
}
