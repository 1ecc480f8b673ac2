package rasterio

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/forestline/corridor/internal/failure"
	"github.com/forestline/corridor/internal/raster"
)

// readASCII parses an ESRI ASCII grid. Both corner and centre registration
// are accepted.
func readASCII(path string) (*raster.Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1<<20), 64<<20)
	sc.Split(bufio.ScanWords)

	header := make(map[string]float64)
	var first string
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		if _, err := strconv.ParseFloat(key, 64); err == nil {
			first = key
			break
		}
		if !sc.Scan() {
			break
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: header %s: %v", failure.ErrInput, path, key, err)
		}
		header[key] = v
	}

	cols, rows := int(header["ncols"]), int(header["nrows"])
	if cols <= 0 || rows <= 0 {
		return nil, fmt.Errorf("%w: %s: missing ncols/nrows", failure.ErrInput, path)
	}
	dx, dy := header["cellsize"], header["cellsize"]
	if v, ok := header["dx"]; ok {
		dx = v
	}
	if v, ok := header["dy"]; ok {
		dy = v
	}
	if dx <= 0 || dy <= 0 {
		return nil, fmt.Errorf("%w: %s: cell size must be positive", failure.ErrInput, path)
	}
	x0, okx := header["xllcorner"]
	y0, oky := header["yllcorner"]
	if v, ok := header["xllcenter"]; ok && !okx {
		x0, okx = v-dx/2, true
	}
	if v, ok := header["yllcenter"]; ok && !oky {
		y0, oky = v-dy/2, true
	}
	if !okx || !oky {
		return nil, fmt.Errorf("%w: %s: missing lower-left origin", failure.ErrInput, path)
	}
	nodata, hasNodata := header["nodata_value"]
	if !hasNodata {
		nodata = DefaultNodata
	}

	values := make([]float64, 0, rows*cols)
	parse := func(s string) error {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("%w: %s: cell %d: %v", failure.ErrInput, path, len(values), err)
		}
		values = append(values, v)
		return nil
	}
	if first != "" {
		if err := parse(first); err != nil {
			return nil, err
		}
	}
	for sc.Scan() && len(values) < rows*cols {
		if err := parse(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(values) != rows*cols {
		return nil, fmt.Errorf("%w: %s: %d values, want %d", failure.ErrInput, path, len(values), rows*cols)
	}
	t := raster.NorthUp(x0, y0+float64(rows)*dy, dx, dy)
	return raster.FromValues(cols, rows, values, t, nodata)
}

func writeASCII(path string, r *raster.Raster) error {
	t := r.Transform
	if t.Rx != 0 || t.Ry != 0 || t.Dy >= 0 {
		return fmt.Errorf("%w: ascii grids must be north-up", failure.ErrInput)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	nodata := nodataOf(r)

	dx, dy := t.Dx, -t.Dy
	fmt.Fprintf(w, "ncols %d\nnrows %d\n", r.Width, r.Height)
	fmt.Fprintf(w, "xllcorner %s\nyllcorner %s\n", fmtFloat(t.X0), fmtFloat(t.Y0-float64(r.Height)*dy))
	if math.Abs(dx-dy) < 1e-12 {
		fmt.Fprintf(w, "cellsize %s\n", fmtFloat(dx))
	} else {
		fmt.Fprintf(w, "dx %s\ndy %s\n", fmtFloat(dx), fmtFloat(dy))
	}
	fmt.Fprintf(w, "NODATA_value %s\n", fmtFloat(nodata))
	for row := 0; row < r.Height; row++ {
		for col := 0; col < r.Width; col++ {
			if col > 0 {
				w.WriteByte(' ')
			}
			v, ok := r.At(row, col)
			if !ok {
				v = nodata
			}
			w.WriteString(fmtFloat(v))
		}
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
