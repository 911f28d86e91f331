// Package vectormodel holds the stored unit (Record) and the
// dimension-homogeneous container that owns records (Collection).
package vectormodel

import (
	"math"
	"reflect"

	"vectorindex/internal/apierr"
)

// Record is the stored unit: an id, its vector, a precomputed Euclidean
// norm, and an optional metadata bag. Norm is an invariant established
// once at ingress, never recomputed on the read path.
type Record struct {
	ID       string
	Vector   []float32
	Norm     float32
	Metadata map[string]interface{}
}

// NewRecord validates id and vector, computes Norm, and copies both the
// vector and metadata so the caller's slices/maps can't alias stored
// state. Dimension is checked by the caller (Collection.Insert), since
// only the collection knows its own fixed dimension.
func NewRecord(id string, vector []float32, metadata map[string]interface{}) (*Record, error) {
	if id == "" {
		return nil, apierr.New(apierr.InvalidID, "id must not be empty")
	}
	for _, c := range vector {
		if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
			return nil, apierr.New(apierr.NonFiniteComponent, "vector component must be finite")
		}
	}
	v := make([]float32, len(vector))
	copy(v, vector)

	var meta map[string]interface{}
	if metadata != nil {
		meta = make(map[string]interface{}, len(metadata))
		for k, val := range metadata {
			meta[k] = val
		}
	}

	return &Record{
		ID:       id,
		Vector:   v,
		Norm:     computeNorm(v),
		Metadata: meta,
	}, nil
}

func computeNorm(v []float32) float32 {
	var sumSquares float64
	for _, c := range v {
		sumSquares += float64(c) * float64(c)
	}
	return float32(math.Sqrt(sumSquares))
}

// MatchesFilter reports whether the record passes an exact-equality
// metadata filter: every key in filter must be present in the record's
// metadata and compare equal. An empty/nil filter always passes.
func (r *Record) MatchesFilter(filter map[string]interface{}) bool {
	for k, want := range filter {
		got, ok := r.Metadata[k]
		if !ok || !equalValue(got, want) {
			return false
		}
	}
	return true
}

// equalValue compares JSON-like scalar/slice/map values for exact
// equality. Numbers are compared as float64 since JSON decoding
// (encoding/json) always produces float64 for numeric literals.
func equalValue(a, b interface{}) bool {
	af, aok := toFloat64(a)
	bf, bok := toFloat64(b)
	if aok && bok {
		return af == bf
	}
	return reflect.DeepEqual(a, b)
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
