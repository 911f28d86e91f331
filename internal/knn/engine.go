// Package knn implements the parallel brute-force k-nearest-neighbor
// engine: chunked data-parallel scoring with bounded per-worker top-k
// heaps, merged into a single ascending-ordered result. The worker
// fan-out is a bounded goroutine pool over fixed-size chunks, not a
// goroutine per record.
package knn

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"vectorindex/internal/apierr"
	"vectorindex/internal/metric"
	"vectorindex/internal/vectormodel"
)

// Result is one ranked hit.
type Result struct {
	ID       string
	Score    float32
	Metadata map[string]interface{}
}

// Search scores every record in records against query under the given
// metric, keeping only records that pass filter, and returns up to k
// results sorted ascending by (score, id).
//
// Algorithm: partition records into chunks sized to GOMAXPROCS, score
// each chunk on its own goroutine into a bounded max-heap of size k
// (never larger), then merge all per-chunk heaps and take the final
// top k. Filtering happens before scoring so filtered-out records never
// pay for a dot product.
func Search(ctx context.Context, records []*vectormodel.Record, query []float32, k int, m metric.Name, filter map[string]interface{}) ([]Result, error) {
	if k < 1 {
		return nil, apierr.New(apierr.InvalidK, "k must be >= 1")
	}
	if len(records) == 0 {
		return nil, nil
	}
	if len(query) != dimensionOf(records) {
		return nil, apierr.New(apierr.DimensionMismatch, "query vector length does not match collection dimension")
	}

	kernel := metric.KernelFor(m)
	qNorm := metric.VectorNorm(query)

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers > len(records) {
		numWorkers = len(records)
	}
	chunkSize := (len(records) + numWorkers - 1) / numWorkers

	localHeaps := make([]*topKHeap, numWorkers)
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if start >= len(records) {
			localHeaps[w] = newTopKHeap(k)
			continue
		}
		if end > len(records) {
			end = len(records)
		}
		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			h := newTopKHeap(k)
			for i := start; i < end; i++ {
				if i%256 == 0 {
					select {
					case <-ctx.Done():
						localHeaps[w] = h
						return
					default:
					}
				}
				rec := records[i]
				if !rec.MatchesFilter(filter) {
					continue
				}
				score := kernel(query, rec.Vector, qNorm, rec.Norm)
				h.offer(scoredID{id: rec.ID, score: score})
			}
			localHeaps[w] = h
		}(w, start, end)
	}
	wg.Wait()

	select {
	case <-ctx.Done():
		return nil, apierr.New(apierr.Cancelled, "search cancelled")
	default:
	}

	merged := newTopKHeap(k)
	for _, h := range localHeaps {
		for _, cand := range h.drain() {
			merged.offer(cand)
		}
	}
	ordered := merged.drain()

	byID := make(map[string]*vectormodel.Record, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	results := make([]Result, len(ordered))
	for i, cand := range ordered {
		results[i] = Result{ID: cand.id, Score: cand.score, Metadata: byID[cand.id].Metadata}
	}
	// ordered is already ascending (score, id); sort.SliceIsSorted-grade
	// guarantee re-asserted defensively since merge order across heaps
	// does not itself guarantee cross-heap ordering beyond offer().
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score < results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	return results, nil
}

func dimensionOf(records []*vectormodel.Record) int {
	if len(records) == 0 {
		return 0
	}
	return len(records[0].Vector)
}
