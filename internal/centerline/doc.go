// Package centerline reconstructs a single centerline through a corridor
// polygon.
//
// The polygon is rasterized, every interior cell is weighted by its distance
// to the polygon edge, and the cheapest 8-connected path between the cells
// nearest the seed line's endpoints is taken as the centerline. The path is
// simplified and its ends are pinned to the seed endpoints.
package centerline
