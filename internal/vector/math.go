package vector

import "math"

// Cosine returns the cosine similarity of two vectors, 0 for mismatched or
// zero-magnitude inputs.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func Magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Centroid averages vectors of equal dimension, skipping empty ones.
func Centroid(vectors [][]float32) []float32 {
	var out []float32
	n := 0
	for _, v := range vectors {
		if len(v) == 0 {
			continue
		}
		if out == nil {
			out = make([]float32, len(v))
		}
		if len(v) != len(out) {
			continue
		}
		for i, x := range v {
			out[i] += x
		}
		n++
	}
	if n == 0 {
		return nil
	}
	inv := float32(1) / float32(n)
	for i := range out {
		out[i] *= inv
	}
	return out
}

// MeanPairwiseCosine is the coherence measure: the average similarity over
// all unordered vector pairs. A single vector is perfectly coherent.
func MeanPairwiseCosine(vectors [][]float32) float64 {
	usable := make([][]float32, 0, len(vectors))
	for _, v := range vectors {
		if len(v) > 0 {
			usable = append(usable, v)
		}
	}
	if len(usable) <= 1 {
		return 1
	}
	var sum float64
	pairs := 0
	for i := 0; i < len(usable); i++ {
		for j := i + 1; j < len(usable); j++ {
			sum += Cosine(usable[i], usable[j])
			pairs++
		}
	}
	return sum / float64(pairs)
}
