// Package network reconciles seed and centre lines into a consistent line
// network before footprints are computed.
//
// Responsibilities:
//   - merge multipart lines into degree-2 chains (CustomLineMerge)
//   - group lines that continue one another through shared vertices
//     (LineGrouping), labelling each group with its smallest OLnFID
//   - split lines at mutual intersections (LineSplitter)
//   - cut lines into fixed-length segments (CutLineByLength)
//   - partition overlapping footprints between groups (RunCleanup)
//
// The Reconciler drives these steps in order and records the state reached.
// Dependency rule: network may import geom, raster, failure and monitoring;
// it never reads or writes files.
package network
