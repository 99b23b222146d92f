package embedding

import "math"

// meanPool averages the hidden states of the positions whose mask is 1.
// hidden is [seqLen*dim] for a single sequence.
func meanPool(hidden []float32, mask []int64, dim int) []float32 {
	out := make([]float32, dim)
	var n float32
	for pos, m := range mask {
		if m != 1 {
			continue
		}
		n++
		row := hidden[pos*dim : (pos+1)*dim]
		for d, v := range row {
			out[d] += v
		}
	}
	if n == 0 {
		return out
	}
	for d := range out {
		out[d] /= n
	}
	return out
}

// l2Normalize scales v to unit length in place. A zero vector is left as is.
func l2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}
