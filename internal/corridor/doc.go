// Package corridor extracts least-cost corridors from a cost raster.
//
// Two accumulated-cost sweeps are run over an 8-connected grid, one from
// each end of a seed line. Their sum minus its minimum is the corridor cost:
// zero along the least-cost path and rising away from it. Thresholding that
// surface yields the corridor.
package corridor
