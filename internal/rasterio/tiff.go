package rasterio

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/image/tiff"

	"github.com/forestline/corridor/internal/crs"
	"github.com/forestline/corridor/internal/failure"
	"github.com/forestline/corridor/internal/raster"
)

// sampleScale maps integer TIFF samples to heights:
//
//	height = Offset + sample*Scale
//
// A sample equal to Nodata is invalid.
type sampleScale struct {
	Scale  float64 `json:"scale"`
	Offset float64 `json:"offset"`
	Nodata *int    `json:"nodata,omitempty"`
}

func auxPath(path string) string { return path + ".aux.json" }

func readTIFF(path string) (*raster.Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := tiff.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", failure.ErrInput, path, err)
	}
	t, err := readWorldFile(sidecar(path, ".tfw"))
	if err != nil {
		return nil, err
	}
	sc, err := readScale(path)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	out := raster.New(b.Dx(), b.Dy(), t, crs.CRS{})
	if sc.Nodata != nil {
		out.Nodata = sc.Offset + float64(*sc.Nodata)*sc.Scale
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			raw := int(sampleAt(img, x, y))
			if sc.Nodata != nil && raw == *sc.Nodata {
				continue
			}
			out.Set(y-b.Min.Y, x-b.Min.X, sc.Offset+float64(raw)*sc.Scale)
		}
	}
	return out, nil
}

func sampleAt(img image.Image, x, y int) uint16 {
	switch m := img.(type) {
	case *image.Gray16:
		return m.Gray16At(x, y).Y
	case *image.Gray:
		return uint16(m.GrayAt(x, y).Y)
	default:
		return color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y
	}
}

func readScale(path string) (sampleScale, error) {
	data, err := os.ReadFile(auxPath(path))
	if errors.Is(err, os.ErrNotExist) {
		return sampleScale{Scale: 1}, nil
	}
	if err != nil {
		return sampleScale{}, err
	}
	var sc sampleScale
	if err := json.Unmarshal(data, &sc); err != nil {
		return sampleScale{}, fmt.Errorf("%w: parse %s: %v", failure.ErrInput, auxPath(path), err)
	}
	if sc.Scale == 0 {
		sc.Scale = 1
	}
	return sc, nil
}

// writeTIFF quantizes valid cells into 1..65535 and reserves 0 for nodata.
func writeTIFF(path string, r *raster.Raster) error {
	sc := sampleScale{Scale: 1}
	zero := 0
	sc.Nodata = &zero
	if lo, hi, ok := r.MinMax(); ok {
		sc.Scale = (hi - lo) / (math.MaxUint16 - 1)
		if sc.Scale == 0 {
			sc.Scale = 1
		}
		sc.Offset = lo - sc.Scale
	}

	img := image.NewGray16(image.Rect(0, 0, r.Width, r.Height))
	for row := 0; row < r.Height; row++ {
		for col := 0; col < r.Width; col++ {
			v, ok := r.At(row, col)
			if !ok {
				continue
			}
			raw := math.Round((v - sc.Offset) / sc.Scale)
			raw = math.Max(1, math.Min(math.MaxUint16, raw))
			img.SetGray16(col, row, color.Gray16{Y: uint16(raw)})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(auxPath(path), data, 0o644); err != nil {
		return err
	}
	return writeWorldFile(sidecar(path, ".tfw"), r.Transform)
}

// ---------------------------------------------------------------------------
// world files
// ---------------------------------------------------------------------------

// A world file holds six lines: Dx, Ry, Rx, Dy and the map position of the
// centre of the top-left cell.
func readWorldFile(path string) (raster.Transform, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return raster.Transform{}, fmt.Errorf("%w: missing world file %s", failure.ErrInput, path)
	}
	if err != nil {
		return raster.Transform{}, err
	}
	fields := strings.Fields(string(data))
	if len(fields) < 6 {
		return raster.Transform{}, fmt.Errorf("%w: world file %s has %d values, want 6", failure.ErrInput, path, len(fields))
	}
	var v [6]float64
	for i := range v {
		if v[i], err = strconv.ParseFloat(fields[i], 64); err != nil {
			return raster.Transform{}, fmt.Errorf("%w: world file %s: %v", failure.ErrInput, path, err)
		}
	}
	t := raster.Transform{Dx: v[0], Ry: v[1], Rx: v[2], Dy: v[3]}
	t.X0 = v[4] - t.Dx/2 - t.Rx/2
	t.Y0 = v[5] - t.Ry/2 - t.Dy/2
	return t, nil
}

func writeWorldFile(path string, t raster.Transform) error {
	cx, cy := t.Apply(0.5, 0.5)
	lines := []float64{t.Dx, t.Ry, t.Rx, t.Dy, cx, cy}
	var sb strings.Builder
	for _, v := range lines {
		sb.WriteString(fmtFloat(v))
		sb.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}
