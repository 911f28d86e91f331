package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"vectorindex/internal/apierr"
	"vectorindex/internal/vectormodel"
)

func newRecord(t *testing.T, id string, vector []float32, meta map[string]interface{}) *vectormodel.Record {
	t.Helper()
	rec, err := vectormodel.NewRecord(id, vector, meta)
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	return rec
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.bin")

	col := vectormodel.NewCollection("docs", 2, 42)
	col.Insert(newRecord(t, "a", []float32{1, 2}, map[string]interface{}{"tag": "x"}))
	col.Insert(newRecord(t, "b", []float32{3, 4}, nil))

	if err := WriteSnapshot(path, 7, []*vectormodel.Collection{col}); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	seq, collections, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if seq != 7 {
		t.Errorf("sequence = %d, want 7", seq)
	}
	if len(collections) != 1 || collections[0].Name != "docs" || collections[0].Dimension != 2 {
		t.Fatalf("collections = %+v", collections)
	}
	rec, ok := collections[0].Get("a")
	if !ok || rec.Vector[0] != 1 || rec.Vector[1] != 2 || rec.Metadata["tag"] != "x" {
		t.Errorf("record a = %+v", rec)
	}
	if collections[0].Len() != 2 {
		t.Errorf("Len() = %d, want 2", collections[0].Len())
	}
}

func TestReadSnapshotMissingFile(t *testing.T) {
	_, _, err := ReadSnapshot(filepath.Join(t.TempDir(), "nope.bin"))
	if err == nil || !os.IsNotExist(err) {
		t.Errorf("ReadSnapshot on missing file = %v, want os.IsNotExist", err)
	}
}

func TestReadSnapshotRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.bin")
	os.WriteFile(path, []byte("not a snapshot at all, long enough to pass the length check"), 0o644)
	_, _, err := ReadSnapshot(path)
	if err == nil {
		t.Error("ReadSnapshot on garbage file should fail")
	}
}

func TestWALAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	wal, err := OpenWAL(path, PerOpFsync, 0)
	if err != nil {
		t.Fatalf("OpenWAL: %v", err)
	}
	rec := newRecord(t, "a", []float32{1, 2}, nil)
	body, err := EncodeUpsertBody("docs", rec)
	if err != nil {
		t.Fatalf("EncodeUpsertBody: %v", err)
	}
	seq1, err := wal.Append(RecUpsert, body)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if seq1 != 1 {
		t.Errorf("first appended sequence = %d, want 1", seq1)
	}
	seq2, err := wal.Append(RecDelete, EncodeDeleteBody("docs", "a"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if seq2 != 2 {
		t.Errorf("second appended sequence = %d, want 2", seq2)
	}
	if err := wal.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	frames, err := ReadFrames(path)
	if err != nil {
		t.Fatalf("ReadFrames: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("len(frames) = %d, want 2", len(frames))
	}
	if frames[0].Type != RecUpsert || frames[0].Sequence != 1 {
		t.Errorf("frame[0] = %+v", frames[0])
	}
	if frames[1].Type != RecDelete || frames[1].Sequence != 2 {
		t.Errorf("frame[1] = %+v", frames[1])
	}
}

func TestWALReplayStopsAtCorruptTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	wal, err := OpenWAL(path, PerOpFsync, 0)
	if err != nil {
		t.Fatalf("OpenWAL: %v", err)
	}
	rec := newRecord(t, "a", []float32{1}, nil)
	body, _ := EncodeUpsertBody("docs", rec)
	wal.Append(RecUpsert, body)
	wal.Close()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	// Simulate a crash mid-append: a length prefix with no frame body
	// following it.
	f.Write([]byte{0xFF, 0xFF, 0xFF, 0x7F})
	f.Close()

	frames, err := ReadFrames(path)
	if err != nil {
		t.Fatalf("ReadFrames should not error on a partial tail: %v", err)
	}
	if len(frames) != 1 {
		t.Errorf("len(frames) = %d, want 1 (partial tail discarded)", len(frames))
	}
}

func TestTruncateThrough(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	wal, _ := OpenWAL(path, PerOpFsync, 0)
	bodyA, _ := EncodeUpsertBody("docs", newRecord(t, "a", []float32{1}, nil))
	seqA, _ := wal.Append(RecUpsert, bodyA)

	if err := wal.TruncateThrough(seqA); err != nil {
		t.Fatalf("TruncateThrough: %v", err)
	}
	wal.Close()

	frames, err := ReadFrames(path)
	if err != nil {
		t.Fatalf("ReadFrames: %v", err)
	}
	if len(frames) != 0 {
		t.Errorf("len(frames) after truncate = %d, want 0", len(frames))
	}
}

// TestTruncateThroughPreservesLaterFrames guards against truncating the
// whole file: a frame appended after the snapshot's recorded sequence
// (e.g. a concurrent Upsert that lands between Service.SaveSnapshot's
// wal.LastSequence() read and its registry snapshot) must survive a
// TruncateThrough call for that earlier sequence.
func TestTruncateThroughPreservesLaterFrames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	wal, _ := OpenWAL(path, PerOpFsync, 0)
	bodyA, _ := EncodeUpsertBody("docs", newRecord(t, "a", []float32{1}, nil))
	seqA, _ := wal.Append(RecUpsert, bodyA)
	bodyB, _ := EncodeUpsertBody("docs", newRecord(t, "b", []float32{2}, nil))
	seqB, _ := wal.Append(RecUpsert, bodyB)

	if err := wal.TruncateThrough(seqA); err != nil {
		t.Fatalf("TruncateThrough: %v", err)
	}
	wal.Close()

	frames, err := ReadFrames(path)
	if err != nil {
		t.Fatalf("ReadFrames: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("len(frames) after truncate = %d, want 1 (frame sequenced after `through` must survive)", len(frames))
	}
	if frames[0].Sequence != seqB {
		t.Errorf("surviving frame sequence = %d, want %d", frames[0].Sequence, seqB)
	}
	collection, rec, err := DecodeUpsertBody(frames[0].Body)
	if err != nil {
		t.Fatalf("DecodeUpsertBody: %v", err)
	}
	if collection != "docs" || rec.ID != "b" {
		t.Errorf("surviving frame decodes to collection=%s id=%s, want docs/b", collection, rec.ID)
	}
}

func TestRecoverFromSnapshotAndWAL(t *testing.T) {
	dir := t.TempDir()
	snapPath := filepath.Join(dir, "snapshot.bin")
	walPath := filepath.Join(dir, "wal.log")

	col := vectormodel.NewCollection("docs", 2, 10)
	col.Insert(newRecord(t, "a", []float32{1, 1}, nil))
	if err := WriteSnapshot(snapPath, 3, []*vectormodel.Collection{col}); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	wal, err := OpenWAL(walPath, PerOpFsync, 3)
	if err != nil {
		t.Fatalf("OpenWAL: %v", err)
	}
	body, _ := EncodeUpsertBody("docs", newRecord(t, "b", []float32{2, 2}, nil))
	wal.Append(RecUpsert, body)
	wal.Close()

	reg, nextSeq, err := Recover(context.Background(), snapPath, walPath, func() int64 { return 0 })
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if nextSeq != 5 {
		t.Errorf("nextSeq = %d, want 5", nextSeq)
	}
	if err := reg.WithCollection("docs", func(c *vectormodel.Collection) error {
		if c.Len() != 2 {
			t.Errorf("recovered collection has %d records, want 2", c.Len())
		}
		return nil
	}); err != nil {
		t.Fatalf("WithCollection: %v", err)
	}
}

func TestRecoverCancelledDuringReplay(t *testing.T) {
	dir := t.TempDir()
	walPath := filepath.Join(dir, "wal.log")

	wal, _ := OpenWAL(walPath, PerOpFsync, 0)
	wal.Append(RecCreate, EncodeCreateBody("docs", 1))
	body, _ := EncodeUpsertBody("docs", newRecord(t, "a", []float32{1}, nil))
	wal.Append(RecUpsert, body)
	wal.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Recover(ctx, filepath.Join(dir, "snapshot.bin"), walPath, func() int64 { return 0 })
	if !apierr.Is(err, apierr.Cancelled) {
		t.Errorf("Recover with cancelled context = %v, want Cancelled", err)
	}
}

func TestRecoverIgnoresWALFramesAlreadyInSnapshot(t *testing.T) {
	dir := t.TempDir()
	snapPath := filepath.Join(dir, "snapshot.bin")
	walPath := filepath.Join(dir, "wal.log")

	col := vectormodel.NewCollection("docs", 1, 10)
	col.Insert(newRecord(t, "a", []float32{1}, nil))
	if err := WriteSnapshot(snapPath, 5, []*vectormodel.Collection{col}); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	wal, _ := OpenWAL(walPath, PerOpFsync, 0)
	body, _ := EncodeUpsertBody("docs", newRecord(t, "a", []float32{1}, nil))
	for i := 0; i < 5; i++ {
		wal.Append(RecUpsert, body)
	}
	wal.Close()

	reg, nextSeq, err := Recover(context.Background(), snapPath, walPath, func() int64 { return 0 })
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if nextSeq != 6 {
		t.Errorf("nextSeq = %d, want 6", nextSeq)
	}
	reg.WithCollection("docs", func(c *vectormodel.Collection) error {
		if c.Len() != 1 {
			t.Errorf("collection has %d records, want 1 (all WAL frames covered by snapshot)", c.Len())
		}
		return nil
	})
}
