package network

import (
	"github.com/paulmach/orb"

	"github.com/forestline/corridor/internal/geom"
)

// DefaultMergeThreshold is the length below which a trailing piece is
// merged into the piece before it.
const DefaultMergeThreshold = 0.5

// CutLineByLength cuts ls into pieces of the given length. A final piece no
// longer than mergeThreshold is merged into the previous one, so a 10 unit
// line cut at 3 with threshold 1 yields 3, 3 and 4.
func CutLineByLength(ls orb.LineString, length, mergeThreshold float64) []orb.LineString {
	ls = geom.Clean(ls)
	if len(ls) < 2 {
		return nil
	}
	total := geom.Length(ls)
	if length <= 0 || total <= length+geom.Tolerance {
		return []orb.LineString{ls}
	}

	var starts []float64
	for d := 0.0; d < total-geom.Tolerance; d += length {
		starts = append(starts, d)
	}
	if n := len(starts); n > 1 && total-starts[n-1] <= mergeThreshold+geom.Tolerance {
		starts = starts[:n-1]
	}

	pieces := make([]orb.LineString, 0, len(starts))
	for i, d := range starts {
		end := total
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		pieces = append(pieces, geom.Substring(ls, d, end))
	}
	return pieces
}

// SplitIntoSegments cuts every line feature into pieces of the given length.
// OLnSEG numbers the pieces of each OLnFID in order across all its features.
func SplitIntoSegments(features []geom.Feature, length, mergeThreshold float64) ([]geom.Feature, error) {
	var out []geom.Feature
	segs := make(map[int]int)
	for _, f := range features {
		parts, err := geom.Lines(f.Geometry)
		if err != nil {
			return nil, err
		}
		for _, ls := range parts {
			for _, piece := range CutLineByLength(ls, length, mergeThreshold) {
				nf := f.WithGeometry(piece)
				nf.Seg = segs[f.FID]
				segs[f.FID]++
				out = append(out, nf)
			}
		}
	}
	return out, nil
}
