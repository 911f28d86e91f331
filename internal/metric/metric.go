// Package metric implements the two scoring kernels: cosine distance
// and squared Euclidean distance. Both return an ascending "badness"
// score (smaller is better) so the k-NN engine stays metric-agnostic.
package metric

import (
	"math"

	"vectorindex/internal/apierr"
)

// Name identifies a metric by its wire-protocol string.
type Name string

const (
	Cosine    Name = "cosine"
	Euclidean Name = "euclidean"
)

// Parse resolves a wire metric name, defaulting to Cosine for "".
func Parse(s string) (Name, error) {
	switch Name(s) {
	case "", Cosine:
		return Cosine, nil
	case Euclidean:
		return Euclidean, nil
	default:
		return "", apierr.New(apierr.BadRequest, "unknown metric: "+s)
	}
}

// Kernel scores a query vector q (with precomputed norm qNorm, used
// only by Cosine) against a stored vector v (with precomputed norm
// vNorm). Both accumulate straight-line in index order, never via a
// tree reduction, so results are reproducible across runs.
type Kernel func(q, v []float32, qNorm, vNorm float32) float32

// KernelFor returns the scoring function for a metric name.
func KernelFor(m Name) Kernel {
	if m == Euclidean {
		return SquaredEuclidean
	}
	return CosineScore
}

// CosineScore computes 1 - (q.v)/(||q||*||v||). A zero norm on either
// side makes the pair maximally dissimilar (score 1.0) rather than NaN.
func CosineScore(q, v []float32, qNorm, vNorm float32) float32 {
	if qNorm == 0 || vNorm == 0 {
		return 1.0
	}
	var dot float64
	for i := range q {
		dot += float64(q[i]) * float64(v[i])
	}
	cos := dot / (float64(qNorm) * float64(vNorm))
	// Clamp for float error so the result stays within the documented
	// [0, 2] range even when cos drifts a hair past +/-1.
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return float32(1 - cos)
}

// SquaredEuclidean computes sum((q_i - v_i)^2). No square root: it is
// monotone in Euclidean distance, so ranking is unaffected, and callers
// that need true distance take the root at the final reporting step.
func SquaredEuclidean(q, v []float32, qNorm, vNorm float32) float32 {
	var sum float64
	for i := range q {
		d := float64(q[i]) - float64(v[i])
		sum += d * d
	}
	return float32(sum)
}

// VectorNorm computes the Euclidean norm of v, used to precompute a
// query vector's norm once per search.
func VectorNorm(v []float32) float32 {
	var sumSquares float64
	for _, c := range v {
		sumSquares += float64(c) * float64(c)
	}
	return float32(math.Sqrt(sumSquares))
}
