package vector

import "math"

// Dot returns the dot product of two vectors. Accumulation happens in
// float64 to keep long sums stable. Mismatched lengths return 0; length
// consistency is enforced at the write/query boundary, not here.
func Dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Magnitude returns the L2 norm of a vector.
func Magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity dot(a,b) / (|a|*|b|).
// If either vector has zero magnitude the similarity is 0, never NaN.
func Cosine(a, b []float32) float64 {
	return CosineWithMagnitudes(a, Magnitude(a), b, Magnitude(b))
}

// CosineWithMagnitudes computes cosine similarity with precomputed norms,
// so hot paths can reuse the stored record magnitude and the query norm.
// The result is clamped to [-1, 1]; float32 accumulation noise can push
// sim(a, a) marginally past 1.
func CosineWithMagnitudes(a []float32, magA float64, b []float32, magB float64) float64 {
	if magA == 0 || magB == 0 {
		return 0
	}
	return math.Max(-1, math.Min(1, Dot(a, b)/(magA*magB)))
}

// Normalize returns a unit-length copy of v. A zero vector is returned
// unchanged (no direction to normalize to).
func Normalize(v []float32) []float32 {
	mag := Magnitude(v)
	if mag == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / mag)
	}
	return out
}

// Mean returns the component-wise mean of the given vectors.
// Returns nil for an empty input.
func Mean(vs [][]float32) []float32 {
	if len(vs) == 0 {
		return nil
	}
	dim := len(vs[0])
	acc := make([]float64, dim)
	for _, v := range vs {
		for i, x := range v {
			acc[i] += float64(x)
		}
	}
	out := make([]float32, dim)
	n := float64(len(vs))
	for i, s := range acc {
		out[i] = float32(s / n)
	}
	return out
}
