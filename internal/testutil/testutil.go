// Package testutil provides shared test fixtures: synthetic canopy height
// models, seed lines and assertion helpers.
package testutil

import (
	"testing"

	"github.com/paulmach/orb"

	"github.com/forestline/corridor/internal/crs"
	"github.com/forestline/corridor/internal/geom"
	"github.com/forestline/corridor/internal/raster"
)

// Heights used by the synthetic CHMs.
const (
	CanopyHeight = 12.0
	OpenHeight   = 0.3
)

// CRS is the spatial reference used by every fixture.
func CRS() crs.CRS { return crs.FromEPSG(3400) }

// FlatCHM returns a width x height CHM of constant height with its top-left
// corner at (0, height*cell).
func FlatCHM(width, height int, cell, value float64) *raster.Raster {
	r := raster.New(width, height, raster.NorthUp(0, float64(height)*cell, cell, cell), CRS())
	r.Nodata = -9999
	for i := range r.Data {
		r.Data[i] = value
		r.Valid[i] = true
	}
	return r
}

// StripCHM returns a canopy-covered CHM crossed by an open horizontal strip
// spanning rows [openFrom, openTo).
func StripCHM(width, height int, cell float64, openFrom, openTo int) *raster.Raster {
	r := FlatCHM(width, height, cell, CanopyHeight)
	for row := openFrom; row < openTo; row++ {
		for col := 0; col < width; col++ {
			r.Set(row, col, OpenHeight)
		}
	}
	return r
}

// RowY returns the map y coordinate of the centre of a CHM row.
func RowY(r *raster.Raster, row int) float64 {
	return r.CellCenter(raster.Cell{Row: row}).Y()
}

// HorizontalLine returns a straight line at y from x0 to x1.
func HorizontalLine(x0, x1, y float64) orb.LineString {
	return orb.LineString{{x0, y}, {x1, y}}
}

// LineFeature wraps a geometry in a feature with the given FID.
func LineFeature(fid int, g orb.Geometry) geom.Feature {
	return geom.Feature{Geometry: g, FID: fid}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertPointNear fails the test if got is farther than tol from want.
func AssertPointNear(t *testing.T, want, got orb.Point, tol float64) {
	t.Helper()
	dx, dy := want[0]-got[0], want[1]-got[1]
	if dx*dx+dy*dy > tol*tol {
		t.Errorf("point = %v, want %v (tol %g)", got, want, tol)
	}
}
