// Package raster is the in-memory grid model shared by the corridor tools.
//
// A Raster stores float64 samples with an explicit validity grid: nodata is
// never encoded as a magic value inside the core, only at I/O boundaries.
// The package also carries the raster side of the geometry kernel: windowed
// clipping, focal statistics, the Euclidean distance transform, and
// conversion between binary masks and polygons.
package raster
