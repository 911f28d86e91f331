package metric

import (
	"math"
	"testing"
)

func TestCosineScore(t *testing.T) {
	testCases := []struct {
		name     string
		q        []float32
		v        []float32
		expected float32
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 0.0},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 1.0},
		{"opposite", []float32{1, 0, 0}, []float32{-1, 0, 0}, 2.0},
		{"45 degrees", []float32{1, 1, 0}, []float32{1, 0, 0}, 0.29289323},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 1, 1}, 1.0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			qNorm := VectorNorm(tc.q)
			vNorm := VectorNorm(tc.v)
			got := CosineScore(tc.q, tc.v, qNorm, vNorm)
			if diff := math.Abs(float64(got - tc.expected)); diff > 1e-4 {
				t.Errorf("CosineScore(%v, %v) = %f, want %f", tc.q, tc.v, got, tc.expected)
			}
			if got < 0 || got > 2 {
				t.Errorf("CosineScore(%v, %v) = %f out of [0,2]", tc.q, tc.v, got)
			}
		})
	}
}

func TestSquaredEuclidean(t *testing.T) {
	testCases := []struct {
		name     string
		q        []float32
		v        []float32
		expected float32
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 0.0},
		{"unit distance", []float32{0, 0, 0}, []float32{1, 0, 0}, 1.0},
		{"3-4-5 triangle", []float32{1, 1, 0}, []float32{4, 5, 0}, 25.0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := SquaredEuclidean(tc.q, tc.v, 0, 0)
			if diff := math.Abs(float64(got - tc.expected)); diff > 1e-4 {
				t.Errorf("SquaredEuclidean(%v, %v) = %f, want %f", tc.q, tc.v, got, tc.expected)
			}
		})
	}
}

func TestParse(t *testing.T) {
	if m, err := Parse(""); err != nil || m != Cosine {
		t.Errorf("Parse(\"\") = %v, %v; want Cosine, nil", m, err)
	}
	if m, err := Parse("euclidean"); err != nil || m != Euclidean {
		t.Errorf("Parse(euclidean) = %v, %v; want Euclidean, nil", m, err)
	}
	if _, err := Parse("manhattan"); err == nil {
		t.Error("Parse(manhattan) should fail: only cosine and euclidean are supported")
	}
}

func TestKernelForDefaultsToCosine(t *testing.T) {
	q := []float32{1, 0}
	v := []float32{1, 0}
	k := KernelFor(Name("bogus"))
	if got := k(q, v, VectorNorm(q), VectorNorm(v)); got != 0 {
		t.Errorf("KernelFor(bogus) should fall back to cosine, got score %f", got)
	}
}
