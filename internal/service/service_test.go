package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vectorindex/internal/apierr"
	"vectorindex/internal/logging"
	"vectorindex/internal/persistence"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		SnapshotPath: filepath.Join(dir, "snapshot.bin"),
		WALPath:      filepath.Join(dir, "wal.log"),
		FsyncMode:    persistence.PerOpFsync,
	}
	seq := int64(0)
	svc, err := Open(context.Background(), cfg, 3, logging.NullLogger{}, func() int64 { seq++; return seq })
	require.NoError(t, err)
	return svc
}

func TestOpenCreatesDefaultCollection(t *testing.T) {
	svc := newTestService(t)
	stats, err := svc.Stats("default")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Dimension)
	assert.Equal(t, 0, stats.NumVectors)
}

func TestCreateUpsertGetDelete(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.CreateCollection("docs", 2)
	require.NoError(t, err)

	_, err = svc.Upsert("docs", "a", []float32{1, 2}, map[string]interface{}{"tag": "x"})
	require.NoError(t, err)

	rec, err := svc.Get("docs", "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, rec.Vector)
	assert.Equal(t, "x", rec.Metadata["tag"])

	require.NoError(t, svc.Delete("docs", "a"))
	_, err = svc.Get("docs", "a")
	assert.True(t, apierr.Is(err, apierr.RecordNotFound))
}

func TestUpsertRejectsDimensionMismatchWithoutStateChange(t *testing.T) {
	svc := newTestService(t)
	svc.CreateCollection("docs", 3)
	_, err := svc.Upsert("docs", "a", []float32{1, 2, 3, 4}, nil)
	assert.True(t, apierr.Is(err, apierr.DimensionMismatch))
	stats, _ := svc.Stats("docs")
	assert.Equal(t, 0, stats.NumVectors)
}

func TestCreateCollectionRejectsDuplicate(t *testing.T) {
	svc := newTestService(t)
	svc.CreateCollection("docs", 3)
	_, err := svc.CreateCollection("docs", 3)
	assert.True(t, apierr.Is(err, apierr.CollectionAlreadyExists))
}

func TestBulkUpsertCollectsPerItemFailures(t *testing.T) {
	svc := newTestService(t)
	svc.CreateCollection("docs", 2)
	items := []BulkItem{
		{ID: "a", Vector: []float32{1, 2}},
		{ID: "b", Vector: []float32{1, 2, 3}}, // wrong dimension
		{ID: "", Vector: []float32{1, 2}},     // invalid id
	}
	inserted, failed := svc.BulkUpsert("docs", items)
	assert.Equal(t, 1, inserted)
	require.Len(t, failed, 2)
	assert.Equal(t, "b", failed[0].ID)
	assert.Equal(t, string(apierr.DimensionMismatch), failed[0].Reason)
}

func TestSearchRanksByAscendingScore(t *testing.T) {
	svc := newTestService(t)
	svc.CreateCollection("docs", 2)
	svc.Upsert("docs", "a", []float32{1, 0}, nil)
	svc.Upsert("docs", "b", []float32{0, 1}, nil)

	results, err := svc.Search(context.Background(), SearchParams{
		Collection: "docs",
		Query:      []float32{1, 0},
		K:          2,
		Metric:     "cosine",
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)
}

func TestSearchUnknownCollection(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Search(context.Background(), SearchParams{Collection: "nope", Query: []float32{1}, K: 1, Metric: "cosine"})
	assert.True(t, apierr.Is(err, apierr.CollectionNotFound))
}

func TestSaveAndLoadSnapshotRoundTrip(t *testing.T) {
	svc := newTestService(t)
	svc.CreateCollection("docs", 2)
	svc.Upsert("docs", "a", []float32{1, 2}, map[string]interface{}{"tag": "x"})

	seq, err := svc.SaveSnapshot()
	require.NoError(t, err)
	assert.True(t, seq > 0)

	svc.Upsert("docs", "b", []float32{3, 4}, nil)

	// Load replays the snapshot plus the WAL frames after it, exactly as
	// startup recovery does, so the post-snapshot upsert of b survives.
	restoredSeq, err := svc.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seq+1, restoredSeq)

	stats, err := svc.Stats("docs")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.NumVectors)

	rec, err := svc.Get("docs", "a")
	require.NoError(t, err)
	assert.Equal(t, "x", rec.Metadata["tag"])

	_, err = svc.Get("docs", "b")
	require.NoError(t, err)
}

func TestCrashRecoveryReplaysWALWithoutSnapshot(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		SnapshotPath: filepath.Join(dir, "snapshot.bin"),
		WALPath:      filepath.Join(dir, "wal.log"),
		FsyncMode:    persistence.PerOpFsync,
	}
	svc1, err := Open(context.Background(), cfg, 2, logging.NullLogger{}, func() int64 { return 1 })
	require.NoError(t, err)
	svc1.CreateCollection("docs", 2)
	for i := 0; i < 10; i++ {
		_, err := svc1.Upsert("docs", string(rune('a'+i)), []float32{float32(i), 0}, nil)
		require.NoError(t, err)
	}

	svc2, err := Open(context.Background(), cfg, 2, logging.NullLogger{}, func() int64 { return 1 })
	require.NoError(t, err)
	stats, err := svc2.Stats("docs")
	require.NoError(t, err)
	assert.Equal(t, 10, stats.NumVectors)
}

func TestClearDropsAllCollections(t *testing.T) {
	svc := newTestService(t)
	svc.CreateCollection("docs", 2)
	svc.Clear()
	assert.Empty(t, svc.ListCollections())
}
