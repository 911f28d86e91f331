package vectormodel

import (
	"regexp"
	"sync"

	"vectorindex/internal/apierr"
)

var collectionNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateCollectionName reports whether name satisfies the registry's
// naming invariant.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return apierr.New(apierr.InvalidCollectionName, "collection name must match ^[A-Za-z0-9_-]{1,64}$")
	}
	return nil
}

// Collection holds a fixed dimension and a map id->record; its record
// count is derived from the map on demand (Len). It owns its records exclusively; callers reach records only
// through Collection's methods. The second-level RWMutex here is the
// per-collection half of the registry's two-level locking discipline:
// many concurrent readers (Get/Len/IterSnapshot/k-NN scoring), one
// writer at a time (Insert/Delete), readers never blocked by scoring.
type Collection struct {
	Name      string
	Dimension int
	CreatedAt int64

	mu      sync.RWMutex
	records map[string]*Record
}

// NewCollection constructs an empty collection. dimension must already
// be validated by the caller (the registry).
func NewCollection(name string, dimension int, createdAt int64) *Collection {
	return &Collection{
		Name:      name,
		Dimension: dimension,
		CreatedAt: createdAt,
		records:   make(map[string]*Record),
	}
}

// Insert validates rec against the collection's dimension and stores
// it, replacing any existing record with the same id (upsert
// semantics). The write lease is held only for the map mutation itself.
func (c *Collection) Insert(rec *Record) error {
	if len(rec.Vector) != c.Dimension {
		return apierr.New(apierr.DimensionMismatch, "vector length does not match collection dimension")
	}
	c.mu.Lock()
	c.records[rec.ID] = rec
	c.mu.Unlock()
	return nil
}

// Delete removes id, reporting whether it was present.
func (c *Collection) Delete(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.records[id]; !ok {
		return false
	}
	delete(c.records, id)
	return true
}

// Get returns a copy-free pointer to the stored record (never mutated
// in place after Insert, so sharing the pointer with readers is safe).
func (c *Collection) Get(id string) (*Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[id]
	return rec, ok
}

// Len returns the live record count.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// IterSnapshot returns a consistent read-only view: a slice copy of the
// current record pointers, taken under a single read lease so the k-NN
// engine can scan it without holding the lock for the duration of
// scoring (records themselves are never mutated after Insert, so
// sharing pointers past the lease is safe).
func (c *Collection) IterSnapshot() []*Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Record, 0, len(c.records))
	for _, rec := range c.records {
		out = append(out, rec)
	}
	return out
}
