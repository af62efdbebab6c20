package tensor

import "math"

// Add adds src to dst element-wise.
func Add(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// Scale multiplies every element of x by s.
func Scale(x []float32, s float32) {
	for i := range x {
		x[i] *= s
	}
}

// Dot computes the dot product of a and b.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// LayerNorm normalizes src to zero mean and unit variance, then applies
// gain g and bias b. dst and src may alias.
func LayerNorm(dst, src, g, b []float32, eps float32) {
	n := float32(len(src))
	var mean float32
	for _, v := range src {
		mean += v
	}
	mean /= n
	var variance float32
	for _, v := range src {
		d := v - mean
		variance += d * d
	}
	variance /= n
	inv := float32(1 / math.Sqrt(float64(variance+eps)))
	for i, v := range src {
		dst[i] = (v-mean)*inv*g[i] + b[i]
	}
}
