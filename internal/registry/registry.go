// Package registry implements the process-wide mapping from collection
// name to collection state: a reader-writer discipline at the registry
// level, with each collection guarding its own record map one level
// down.
package registry

import (
	"sort"
	"sync"

	"vectorindex/internal/apierr"
	"vectorindex/internal/vectormodel"
)

// Summary is the list/stats-friendly view of a collection.
type Summary struct {
	Name       string
	Dimension  int
	NumVectors int
	CreatedAt  int64
}

// DefaultCollection is the reserved name of the collection auto-created
// at startup if absent.
const DefaultCollection = "default"

// Registry maps collection name to collection state.
type Registry struct {
	mu          sync.RWMutex
	collections map[string]*vectormodel.Collection
	now         func() int64
}

// New builds an empty registry. now supplies the clock used to stamp
// CreatedAt (injectable so tests and recovery can control it).
func New(now func() int64) *Registry {
	return &Registry{
		collections: make(map[string]*vectormodel.Collection),
		now:         now,
	}
}

// Create adds a new collection, rejecting a bad name, a non-positive
// dimension, or a name already in use.
func (r *Registry) Create(name string, dimension int) (*vectormodel.Collection, error) {
	if err := vectormodel.ValidateCollectionName(name); err != nil {
		return nil, err
	}
	if dimension < 1 {
		return nil, apierr.New(apierr.InvalidDimension, "dimension must be >= 1")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.collections[name]; exists {
		return nil, apierr.New(apierr.CollectionAlreadyExists, "collection already exists: "+name)
	}
	col := vectormodel.NewCollection(name, dimension, r.now())
	r.collections[name] = col
	return col, nil
}

// Restore inserts a fully-formed collection loaded from a snapshot
// during recovery, bypassing Create's validation and "already exists"
// check; a collection of the same name is replaced.
func (r *Registry) Restore(col *vectormodel.Collection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collections[col.Name] = col
}

// Drop removes a collection, or reports CollectionNotFound.
func (r *Registry) Drop(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.collections[name]; !ok {
		return apierr.New(apierr.CollectionNotFound, "collection not found: "+name)
	}
	delete(r.collections, name)
	return nil
}

// List returns a summary of every collection, sorted by name for
// deterministic output.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Summary, 0, len(r.collections))
	for _, col := range r.collections {
		out = append(out, Summary{
			Name:       col.Name,
			Dimension:  col.Dimension,
			NumVectors: col.Len(),
			CreatedAt:  col.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Stats returns a single collection's summary.
func (r *Registry) Stats(name string) (Summary, error) {
	col, err := r.get(name)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Name: col.Name, Dimension: col.Dimension, NumVectors: col.Len(), CreatedAt: col.CreatedAt}, nil
}

// WithCollection takes a registry read lease (to locate the collection
// pointer, not to hold for the duration of fn), then runs fn against
// it. Concurrency within fn is the collection's own responsibility.
func (r *Registry) WithCollection(name string, fn func(*vectormodel.Collection) error) error {
	col, err := r.get(name)
	if err != nil {
		return err
	}
	return fn(col)
}

// Snapshot returns every collection pointer, for the persistence
// component to serialize under a consistent read lease of the whole
// registry.
func (r *Registry) Snapshot() []*vectormodel.Collection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*vectormodel.Collection, 0, len(r.collections))
	for _, col := range r.collections {
		out = append(out, col)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Clear drops every collection. Used by the /clear wire operation.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collections = make(map[string]*vectormodel.Collection)
}

func (r *Registry) get(name string) (*vectormodel.Collection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	col, ok := r.collections[name]
	if !ok {
		return nil, apierr.New(apierr.CollectionNotFound, "collection not found: "+name)
	}
	return col, nil
}
