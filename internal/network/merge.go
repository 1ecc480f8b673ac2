package network

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/forestline/corridor/internal/geom"
)

// CustomLineMerge joins the parts of a line geometry that meet end to end at
// vertices touched by exactly two part ends. One resulting chain is returned
// as a LineString, several as a MultiLineString.
func CustomLineMerge(g orb.Geometry) (orb.Geometry, error) {
	parts, err := geom.Lines(g)
	if err != nil {
		return nil, err
	}
	chains := mergeChains(parts)
	switch len(chains) {
	case 0:
		return orb.LineString{}, nil
	case 1:
		return chains[0], nil
	default:
		return orb.MultiLineString(chains), nil
	}
}

// mergeChains links line parts through degree-2 nodes. Chains start at nodes
// of any other degree; what is left over afterwards are closed loops.
func mergeChains(parts []orb.LineString) []orb.LineString {
	var lines []orb.LineString
	for _, p := range parts {
		if c := geom.Clean(p); len(c) >= 2 {
			lines = append(lines, c)
		}
	}
	if len(lines) == 0 {
		return nil
	}

	ends := make([]orb.Point, 0, 2*len(lines))
	for _, ls := range lines {
		a, b := geom.Endpoints(ls)
		ends = append(ends, a, b)
	}
	node := geom.ClusterPoints(ends, geom.Tolerance)
	degree := make(map[int]int)
	incident := make(map[int][]int)
	for i, n := range node {
		degree[n]++
		incident[n] = append(incident[n], i/2)
	}

	used := make([]bool, len(lines))
	var chains []orb.LineString

	walk := func(start int, reverse bool) {
		used[start] = true
		chain := lines[start].Clone()
		endNode := node[2*start+1]
		if reverse {
			chain.Reverse()
			endNode = node[2*start]
		}
		for degree[endNode] == 2 {
			next := -1
			for _, j := range incident[endNode] {
				if !used[j] {
					next = j
					break
				}
			}
			if next < 0 {
				break
			}
			used[next] = true
			seg := lines[next]
			if node[2*next] == endNode {
				endNode = node[2*next+1]
			} else {
				seg = geom.Reversed(seg)
				endNode = node[2*next]
			}
			chain = append(chain, seg[1:]...)
		}
		chains = append(chains, chain)
	}

	for i := range lines {
		if used[i] {
			continue
		}
		switch {
		case degree[node[2*i]] != 2:
			walk(i, false)
		case degree[node[2*i+1]] != 2:
			walk(i, true)
		}
	}
	for i := range lines {
		if !used[i] {
			walk(i, false)
		}
	}
	return chains
}

// MergeMultipart merges each feature's parts and emits one feature per
// resulting line. Attributes are copied to every emitted piece.
func MergeMultipart(features []geom.Feature) ([]geom.Feature, error) {
	out := make([]geom.Feature, 0, len(features))
	for _, f := range features {
		if f.Geometry == nil {
			continue
		}
		merged, err := CustomLineMerge(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("merge OLnFID %d: %w", f.FID, err)
		}
		switch m := merged.(type) {
		case orb.LineString:
			if len(m) >= 2 {
				out = append(out, f.WithGeometry(m))
			}
		case orb.MultiLineString:
			for _, ls := range m {
				out = append(out, f.WithGeometry(ls))
			}
		}
	}
	return out, nil
}
