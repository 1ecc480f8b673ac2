package rasterio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forestline/corridor/internal/crs"
	"github.com/forestline/corridor/internal/failure"
	"github.com/forestline/corridor/internal/raster"
)

func sampleCHM() *raster.Raster {
	r := raster.New(4, 3, raster.NorthUp(500, 1030, 1, 1), crs.FromEPSG(3400))
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			r.Set(row, col, float64(row*4+col)*0.75)
		}
	}
	r.Invalidate(1, 2)
	return r
}

func assertSameCHM(t *testing.T, want, got *raster.Raster, tol float64) {
	t.Helper()
	require.Equal(t, want.Width, got.Width)
	require.Equal(t, want.Height, got.Height)
	assert.InDelta(t, want.Transform.X0, got.Transform.X0, 1e-9)
	assert.InDelta(t, want.Transform.Y0, got.Transform.Y0, 1e-9)
	assert.InDelta(t, want.Transform.Dx, got.Transform.Dx, 1e-9)
	assert.InDelta(t, want.Transform.Dy, got.Transform.Dy, 1e-9)
	for row := 0; row < want.Height; row++ {
		for col := 0; col < want.Width; col++ {
			wv, wok := want.At(row, col)
			gv, gok := got.At(row, col)
			require.Equal(t, wok, gok, "validity at (%d,%d)", row, col)
			if wok {
				assert.InDelta(t, wv, gv, tol, "value at (%d,%d)", row, col)
			}
		}
	}
}

func TestASCII_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "chm.asc")
	in := sampleCHM()
	require.NoError(t, Write(path, in))

	out, err := Read(path)
	require.NoError(t, err)
	assertSameCHM(t, in, out, 1e-12)
	assert.Equal(t, crs.FromEPSG(3400), out.CRS)
}

func TestASCII_CenterRegistration(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "c.asc")
	body := "NCOLS 2\nNROWS 2\nXLLCENTER 10.5\nYLLCENTER 20.5\nCELLSIZE 1\n1 2\n3 -1\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	r, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 10.0, r.Transform.X0)
	assert.Equal(t, 22.0, r.Transform.Y0)
	v, ok := r.At(1, 1)
	assert.True(t, ok, "no NODATA_value header leaves -1 valid")
	assert.Equal(t, -1.0, v)
	assert.True(t, r.CRS.IsZero())
}

func TestASCII_Malformed(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"missing size":   "xllcorner 0\nyllcorner 0\ncellsize 1\n1\n",
		"short data":     "ncols 2\nnrows 2\nxllcorner 0\nyllcorner 0\ncellsize 1\n1 2 3\n",
		"bad value":      "ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\nabc\n",
		"missing origin": "ncols 1\nnrows 1\ncellsize 1\n1\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "bad.asc")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := Read(path)
			assert.True(t, errors.Is(err, failure.ErrInput), "got %v", err)
		})
	}
}

func TestTIFF_RoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "chm.tif")
	in := sampleCHM()
	require.NoError(t, Write(path, in))

	for _, side := range []string{"chm.tfw", "chm.prj", "chm.tif.aux.json"} {
		_, err := os.Stat(filepath.Join(dir, side))
		require.NoError(t, err, side)
	}

	out, err := Read(path)
	require.NoError(t, err)
	lo, hi, _ := in.MinMax()
	assertSameCHM(t, in, out, (hi-lo)/65534)
	assert.Equal(t, crs.FromEPSG(3400), out.CRS)
}

func TestTIFF_MissingWorldFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "chm.tif")
	require.NoError(t, Write(path, sampleCHM()))
	require.NoError(t, os.Remove(filepath.Join(dir, "chm.tfw")))

	_, err := Read(path)
	assert.True(t, errors.Is(err, failure.ErrInput))
}

func TestWorldFile_Rotation(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "r.tfw")
	want := raster.Transform{X0: 100, Dx: 2, Rx: 0.5, Y0: 200, Ry: 0.25, Dy: -2}
	require.NoError(t, writeWorldFile(path, want))
	got, err := readWorldFile(path)
	require.NoError(t, err)
	assert.InDelta(t, want.X0, got.X0, 1e-12)
	assert.InDelta(t, want.Y0, got.Y0, 1e-12)
	assert.Equal(t, want.Rx, got.Rx)
	assert.Equal(t, want.Ry, got.Ry)
}

func TestUnsupportedFormat(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	err := Write(filepath.Join(dir, "x.png"), sampleCHM())
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	path := filepath.Join(dir, "x.img")
	require.NoError(t, os.WriteFile(path, []byte{0}, 0o644))
	_, err = Read(path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Read(filepath.Join(dir, "none.asc"))
	assert.True(t, errors.Is(err, failure.ErrInput))
}

func TestReadCRS_WKTSidecar(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "chm.asc")
	r := sampleCHM()
	r.CRS = crs.CRS{}
	require.NoError(t, Write(path, r))
	_, err := os.Stat(filepath.Join(dir, "chm.prj"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "no sidecar without a CRS")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "chm.prj"), []byte("EPSG:2956"), 0o644))
	got, err := ReadCRS(path)
	require.NoError(t, err)
	assert.Equal(t, 2956, got.EPSG)
}
