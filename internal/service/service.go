// Package service implements the façade: the narrow set of operations
// the HTTP layer calls. It validates inputs, coordinates the registry
// and persistence components, and returns typed apierr.Error values on
// failure.
package service

import (
	"context"
	"sync"
	"time"

	"vectorindex/internal/apierr"
	"vectorindex/internal/knn"
	"vectorindex/internal/logging"
	"vectorindex/internal/metric"
	"vectorindex/internal/persistence"
	"vectorindex/internal/registry"
	"vectorindex/internal/vectormodel"
)

// Clock supplies the current time as seconds since epoch; injectable
// for deterministic tests.
type Clock func() int64

func defaultClock() int64 { return time.Now().Unix() }

// Config controls where persistence lives and how it fsyncs.
type Config struct {
	SnapshotPath string
	WALPath      string
	FsyncMode    persistence.FsyncMode
}

// Service is the façade. reg and wal are swapped together under mu
// whenever LoadSnapshot replaces in-memory state wholesale; everyday
// reads/writes only need an RLock to fetch the current pair, since
// Registry and WAL each have their own internal synchronization.
type Service struct {
	mu     sync.RWMutex
	reg    *registry.Registry
	wal    *persistence.WAL
	cfg    Config
	clock  Clock
	logger logging.Logger
}

// Open recovers state from cfg's snapshot/WAL paths (or starts empty if
// neither exists), ensures the reserved default collection exists, and
// returns a ready Service. ctx bounds the WAL replay.
func Open(ctx context.Context, cfg Config, defaultDimension int, logger logging.Logger, clock Clock) (*Service, error) {
	if clock == nil {
		clock = defaultClock
	}
	reg, nextSeq, err := persistence.Recover(ctx, cfg.SnapshotPath, cfg.WALPath, clock)
	if err != nil {
		return nil, err
	}
	wal, err := persistence.OpenWAL(cfg.WALPath, cfg.FsyncMode, nextSeq-1)
	if err != nil {
		return nil, err
	}

	svc := &Service{reg: reg, wal: wal, cfg: cfg, clock: clock, logger: logger}

	if _, err := svc.reg.Stats(registry.DefaultCollection); apierr.Is(err, apierr.CollectionNotFound) {
		if _, err := svc.CreateCollection(registry.DefaultCollection, defaultDimension); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

func (s *Service) current() (*registry.Registry, *persistence.WAL) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reg, s.wal
}

// Created is the result of CreateCollection.
type Created struct{ Dimension int }

func (s *Service) CreateCollection(name string, dimension int) (Created, error) {
	reg, wal := s.current()
	if _, err := reg.Create(name, dimension); err != nil {
		return Created{}, err
	}
	if _, err := wal.Append(persistence.RecCreate, persistence.EncodeCreateBody(name, dimension)); err != nil {
		return Created{}, err
	}
	return Created{Dimension: dimension}, nil
}

func (s *Service) DropCollection(name string) error {
	reg, wal := s.current()
	if err := reg.Drop(name); err != nil {
		return err
	}
	if _, err := wal.Append(persistence.RecDrop, persistence.EncodeDropBody(name)); err != nil {
		return err
	}
	return nil
}

func (s *Service) ListCollections() []registry.Summary {
	reg, _ := s.current()
	return reg.List()
}

func (s *Service) Stats(name string) (registry.Summary, error) {
	reg, _ := s.current()
	return reg.Stats(name)
}

// Upserted is the result of a successful Upsert.
type Upserted struct{}

func (s *Service) Upsert(collection, id string, vector []float32, metadata map[string]interface{}) (Upserted, error) {
	reg, wal := s.current()
	rec, err := vectormodel.NewRecord(id, vector, metadata)
	if err != nil {
		return Upserted{}, err
	}
	if err := reg.WithCollection(collection, func(col *vectormodel.Collection) error {
		return col.Insert(rec)
	}); err != nil {
		return Upserted{}, err
	}
	body, err := persistence.EncodeUpsertBody(collection, rec)
	if err != nil {
		return Upserted{}, err
	}
	if _, err := wal.Append(persistence.RecUpsert, body); err != nil {
		return Upserted{}, err
	}
	return Upserted{}, nil
}

// BulkFailure reports one item's failure within BulkUpsert.
type BulkFailure struct {
	ID     string
	Reason string
}

// BulkItem is one record to upsert in a batch call.
type BulkItem struct {
	ID       string
	Vector   []float32
	Metadata map[string]interface{}
}

// BulkUpsert applies each item independently, collecting per-item
// failures instead of aborting the batch on the first error — the
// shape the wire response {inserted, failed:[{id,reason}]} implies.
func (s *Service) BulkUpsert(collection string, items []BulkItem) (inserted int, failed []BulkFailure) {
	for _, item := range items {
		if _, err := s.Upsert(collection, item.ID, item.Vector, item.Metadata); err != nil {
			reason := err.Error()
			if se, ok := err.(*apierr.Error); ok {
				reason = string(se.Kind)
			}
			failed = append(failed, BulkFailure{ID: item.ID, Reason: reason})
			continue
		}
		inserted++
	}
	return inserted, failed
}

func (s *Service) Delete(collection, id string) error {
	reg, wal := s.current()
	var found bool
	err := reg.WithCollection(collection, func(col *vectormodel.Collection) error {
		found = col.Delete(id)
		return nil
	})
	if err != nil {
		return err
	}
	if !found {
		return apierr.New(apierr.RecordNotFound, "record not found: "+id)
	}
	if _, err := wal.Append(persistence.RecDelete, persistence.EncodeDeleteBody(collection, id)); err != nil {
		return err
	}
	return nil
}

func (s *Service) Get(collection, id string) (*vectormodel.Record, error) {
	reg, _ := s.current()
	var rec *vectormodel.Record
	err := reg.WithCollection(collection, func(col *vectormodel.Collection) error {
		r, ok := col.Get(id)
		if !ok {
			return apierr.New(apierr.RecordNotFound, "record not found: "+id)
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// SearchParams bundles a query request.
type SearchParams struct {
	Collection string
	Query      []float32
	K          int
	Metric     string
	Filter     map[string]interface{}
}

func (s *Service) Search(ctx context.Context, p SearchParams) ([]knn.Result, error) {
	reg, _ := s.current()
	m, err := metric.Parse(p.Metric)
	if err != nil {
		return nil, err
	}
	if p.K < 1 {
		return nil, apierr.New(apierr.InvalidK, "top_k must be >= 1")
	}
	var results []knn.Result
	err = reg.WithCollection(p.Collection, func(col *vectormodel.Collection) error {
		if len(p.Query) != col.Dimension {
			return apierr.New(apierr.DimensionMismatch, "query vector length does not match collection dimension")
		}
		records := col.IterSnapshot()
		res, err := knn.Search(ctx, records, p.Query, p.K, m, p.Filter)
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// SaveSnapshot builds a consistent snapshot of every collection,
// writes it atomically, then truncates the WAL to frames after the
// saved sequence.
func (s *Service) SaveSnapshot() (uint64, error) {
	reg, wal := s.current()
	seq := wal.LastSequence()
	// A write landing between these two lines may be reflected in
	// collections but not covered by seq; that's safe because replaying
	// its WAL frame again on recovery is idempotent (upsert/delete are
	// identity-keyed), matching the replay guarantee in the wire
	// contract's error-handling section.
	collections := reg.Snapshot()
	if err := persistence.WriteSnapshot(s.cfg.SnapshotPath, seq, collections); err != nil {
		return 0, err
	}
	if err := wal.TruncateThrough(seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// LoadSnapshot discards in-memory state and reloads it from the
// on-disk snapshot plus WAL, exactly as startup recovery does. ctx
// bounds the WAL replay.
func (s *Service) LoadSnapshot(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.wal.Close(); err != nil {
		return 0, apierr.New(apierr.IOFailure, err.Error())
	}
	reg, nextSeq, err := persistence.Recover(ctx, s.cfg.SnapshotPath, s.cfg.WALPath, s.clock)
	if err != nil {
		// The old WAL handle is already closed; reopen it at the prior
		// sequence so the service stays usable after a failed reload.
		if wal, reopenErr := persistence.OpenWAL(s.cfg.WALPath, s.cfg.FsyncMode, s.wal.LastSequence()); reopenErr == nil {
			s.wal = wal
		}
		return 0, err
	}
	wal, err := persistence.OpenWAL(s.cfg.WALPath, s.cfg.FsyncMode, nextSeq-1)
	if err != nil {
		return 0, err
	}
	s.reg = reg
	s.wal = wal
	return nextSeq - 1, nil
}

// Clear drops every collection without touching the on-disk WAL or
// snapshot. It exists for the /clear development/test convenience
// endpoint, not as part of the crash-consistency contract.
func (s *Service) Clear() {
	reg, _ := s.current()
	reg.Clear()
}
