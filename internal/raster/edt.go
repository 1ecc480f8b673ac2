package raster

import "math"

// DistanceTransform returns, for every cell, the Euclidean distance in map
// units from its centre to the nearest set cell of m. Cell sizes may differ
// along rows and columns. Every cell is +Inf when m is empty.
//
// Exact separable transform (Felzenszwalb & Huttenlocher) on squared
// distances: one pass down each column, then one along each row.
func DistanceTransform(m Mask, cellWidth, cellHeight float64) []float64 {
	n := m.Width * m.Height
	sq := make([]float64, n)
	for i, b := range m.Bits {
		if b {
			sq[i] = 0
		} else {
			sq[i] = math.Inf(1)
		}
	}

	longest := max(m.Width, m.Height)
	f := make([]float64, longest)
	d := make([]float64, longest)
	v := make([]int, longest)
	z := make([]float64, longest+1)

	for col := 0; col < m.Width; col++ {
		for row := 0; row < m.Height; row++ {
			f[row] = sq[row*m.Width+col]
		}
		lowerEnvelope(f[:m.Height], d[:m.Height], cellHeight, v, z)
		for row := 0; row < m.Height; row++ {
			sq[row*m.Width+col] = d[row]
		}
	}
	for row := 0; row < m.Height; row++ {
		base := row * m.Width
		copy(f[:m.Width], sq[base:base+m.Width])
		lowerEnvelope(f[:m.Width], d[:m.Width], cellWidth, v, z)
		copy(sq[base:base+m.Width], d[:m.Width])
	}

	for i, s := range sq {
		sq[i] = math.Sqrt(s)
	}
	return sq
}

// lowerEnvelope computes d[q] = min_p ((q-p)*spacing)^2 + f[p] over the
// finite entries of f.
func lowerEnvelope(f, d []float64, spacing float64, v []int, z []float64) {
	k := -1
	for q := range f {
		if math.IsInf(f[q], 1) {
			continue
		}
		xq := float64(q) * spacing
		if k < 0 {
			k = 0
			v[0] = q
			z[0] = math.Inf(-1)
			z[1] = math.Inf(1)
			continue
		}
		var s float64
		for {
			xv := float64(v[k]) * spacing
			s = ((f[q] + xq*xq) - (f[v[k]] + xv*xv)) / (2 * (xq - xv))
			// z[0] is -Inf, so this stops at k == 0 at the latest
			if s > z[k] {
				break
			}
			k--
		}
		k++
		v[k] = q
		z[k] = s
		z[k+1] = math.Inf(1)
	}
	if k < 0 {
		for q := range d {
			d[q] = math.Inf(1)
		}
		return
	}
	j := 0
	for q := range d {
		xq := float64(q) * spacing
		for z[j+1] < xq {
			j++
		}
		xv := float64(v[j]) * spacing
		d[q] = (xq-xv)*(xq-xv) + f[v[j]]
	}
}
