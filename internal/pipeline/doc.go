// Package pipeline wires the corridor stages into the command-line tools:
// centerline, absolute canopy footprint, fixed-width footprint, seed line
// check and vertex optimization.
//
// Every tool reads its inputs once, fans per-line work out through
// internal/execute, and writes all output layers once the batch is back.
// Per-line outcomes are collected into a ledger that feeds the optional run
// store and HTML report.
package pipeline
