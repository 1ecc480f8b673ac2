// Package rasterio reads and writes single-band rasters.
//
// Two containers are supported: ESRI ASCII grids (.asc) and grayscale TIFF
// (.tif, .tiff) georeferenced by a world file (.tfw). TIFF samples are
// integers; a <file>.aux.json sidecar holds the scale, offset and nodata
// sample used to map them to heights. Either format takes its spatial
// reference from a .prj sidecar holding WKT or an EPSG reference.
package rasterio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/forestline/corridor/internal/crs"
	"github.com/forestline/corridor/internal/failure"
	"github.com/forestline/corridor/internal/raster"
)

// DefaultNodata is written for invalid cells when the raster carries a NaN
// nodata value.
const DefaultNodata = -9999.0

// ErrUnsupportedFormat is returned for unknown raster extensions.
var ErrUnsupportedFormat = errors.New("unsupported raster format")

// Read loads a raster and its spatial reference.
func Read(path string) (*raster.Raster, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", failure.ErrInput, err)
	}
	var (
		r   *raster.Raster
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".asc":
		r, err = readASCII(path)
	case ".tif", ".tiff":
		r, err = readTIFF(path)
	default:
		return nil, fmt.Errorf("%w: %w %q", failure.ErrInput, ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if r.CRS, err = readPRJ(path); err != nil {
		return nil, err
	}
	return r, nil
}

// Write stores r at path and writes its sidecars.
func Write(path string, r *raster.Raster) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".asc":
		err = writeASCII(path, r)
	case ".tif", ".tiff":
		err = writeTIFF(path, r)
	default:
		return fmt.Errorf("%w: %w %q", failure.ErrInput, ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return err
	}
	return writePRJ(path, r.CRS)
}

// ReadCRS returns only the spatial reference of a raster.
func ReadCRS(path string) (crs.CRS, error) {
	return readPRJ(path)
}

func sidecar(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

func readPRJ(path string) (crs.CRS, error) {
	data, err := os.ReadFile(sidecar(path, ".prj"))
	if errors.Is(err, os.ErrNotExist) {
		return crs.CRS{}, nil
	}
	if err != nil {
		return crs.CRS{}, err
	}
	return crs.ParseName(string(data))
}

func writePRJ(path string, c crs.CRS) error {
	if c.IsZero() {
		return nil
	}
	text := c.WKT
	if text == "" {
		text = c.String()
	}
	return os.WriteFile(sidecar(path, ".prj"), []byte(text), 0o644)
}

func nodataOf(r *raster.Raster) float64 {
	if math.IsNaN(r.Nodata) {
		return DefaultNodata
	}
	return r.Nodata
}
