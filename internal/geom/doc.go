// Package geom is the vector side of the geometry kernel.
//
// Geometries are github.com/paulmach/orb values restricted to the closed set
// described by Kind. Functions that branch on geometry type switch over every
// Kind and return ErrUnsupportedGeometry for anything else, so a new kind
// cannot slip through a pipeline stage unnoticed.
//
// Feature carries a geometry together with the identifiers the line tools
// keep stable across merge and split: OLnFID (source line), OLnSEG (segment
// within the source line) and BT_GROUP (line group).
package geom
