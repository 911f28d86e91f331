package persistence

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"hash/crc64"
	"io"
	"os"
	"sync"
	"time"

	"vectorindex/internal/apierr"
	"vectorindex/internal/vectormodel"
)

// RecordType tags a WAL frame's body encoding.
type RecordType uint8

const (
	RecCreate RecordType = 1
	RecDrop   RecordType = 2
	RecUpsert RecordType = 3
	RecDelete RecordType = 4
)

// Frame is one decoded WAL entry.
type Frame struct {
	Type     RecordType
	Sequence uint64
	Body     []byte
}

// FsyncMode selects the durability/throughput tradeoff for WAL writes.
type FsyncMode struct {
	PerOp    bool
	Interval time.Duration
}

// PerOpFsync is the default: fsync after every appended frame.
var PerOpFsync = FsyncMode{PerOp: true}

// IntervalFsync batches fsyncs to at most once per d.
func IntervalFsync(d time.Duration) FsyncMode {
	return FsyncMode{Interval: d}
}

// WAL is the append-only log file. A single mutex serializes appends
// (and snapshot-triggered truncation) so the file offset, the sequence
// counter, and the batched-fsync clock all move together; it never
// blocks collection readers or k-NN scoring, which is the one
// must-not-block path the resource model names.
type WAL struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	w        *bufio.Writer
	mode     FsyncMode
	lastSync time.Time
	seq      uint64
}

// OpenWAL opens (creating if absent) the WAL file for appending, and
// seeds the sequence counter from startSeq, the last sequence already
// issued (one less than the recovery-computed next sequence); the first
// Append is assigned startSeq+1.
func OpenWAL(path string, mode FsyncMode, startSeq uint64) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, apierr.New(apierr.IOFailure, "open WAL: "+err.Error())
	}
	return &WAL{path: path, file: f, w: bufio.NewWriter(f), mode: mode, seq: startSeq}, nil
}

// NextSequence returns the sequence that will be assigned to the next
// appended frame, without consuming it.
func (wal *WAL) NextSequence() uint64 {
	wal.mu.Lock()
	defer wal.mu.Unlock()
	return wal.seq + 1
}

// LastSequence returns the sequence of the most recently appended
// frame (0 if none yet).
func (wal *WAL) LastSequence() uint64 {
	wal.mu.Lock()
	defer wal.mu.Unlock()
	return wal.seq
}

// encodeFrame builds the on-wire bytes for one frame (length prefix,
// type+sequence+body, CRC-64 trailer) shared by Append (streaming one
// frame to the writer) and TruncateThrough (rewriting a batch of
// surviving frames).
func encodeFrame(typ RecordType, seq uint64, body []byte) []byte {
	frameBody := make([]byte, 0, 9+len(body))
	frameBody = append(frameBody, byte(typ))
	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], seq)
	frameBody = append(frameBody, seqBuf[:]...)
	frameBody = append(frameBody, body...)
	checksum := crc64.Checksum(frameBody, crcTable)

	out := make([]byte, 0, 4+len(frameBody)+8)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(frameBody)))
	out = append(out, lenBuf[:]...)
	out = append(out, frameBody...)
	var crcBuf [8]byte
	binary.LittleEndian.PutUint64(crcBuf[:], checksum)
	out = append(out, crcBuf[:]...)
	return out
}

// parseFrames decodes every well-formed frame readable from r, in
// order, stopping cleanly at the first length/CRC validation failure
// (the partial tail a crash mid-append or mid-truncate leaves behind).
func parseFrames(r *bufio.Reader) []Frame {
	var frames []Frame
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			break
		}
		length := binary.LittleEndian.Uint32(lenBuf[:])
		// A frame body is at least the type byte plus the sequence.
		if length < 9 {
			break
		}
		frameBody := make([]byte, length)
		if _, err := io.ReadFull(r, frameBody); err != nil {
			break
		}
		var crcBuf [8]byte
		if _, err := io.ReadFull(r, crcBuf[:]); err != nil {
			break
		}
		wantCRC := binary.LittleEndian.Uint64(crcBuf[:])
		if crc64.Checksum(frameBody, crcTable) != wantCRC {
			break
		}
		typ := RecordType(frameBody[0])
		seq := binary.LittleEndian.Uint64(frameBody[1:9])
		body := frameBody[9:]
		frames = append(frames, Frame{Type: typ, Sequence: seq, Body: body})
	}
	return frames
}

// Append frames typ/body, assigns it the next sequence number, writes
// it, and fsyncs per wal.mode before returning. Returns the assigned
// sequence.
func (wal *WAL) Append(typ RecordType, body []byte) (uint64, error) {
	wal.mu.Lock()
	defer wal.mu.Unlock()
	seq := wal.seq + 1

	if _, err := wal.w.Write(encodeFrame(typ, seq, body)); err != nil {
		return 0, apierr.New(apierr.IOFailure, "write WAL frame: "+err.Error())
	}

	shouldSync := wal.mode.PerOp || time.Since(wal.lastSync) >= wal.mode.Interval
	if shouldSync {
		if err := wal.w.Flush(); err != nil {
			return 0, apierr.New(apierr.IOFailure, "flush WAL: "+err.Error())
		}
		if err := wal.file.Sync(); err != nil {
			return 0, apierr.New(apierr.IOFailure, "fsync WAL: "+err.Error())
		}
		wal.lastSync = time.Now()
	}
	wal.seq = seq
	return seq, nil
}

// TruncateThrough drops every frame with sequence <= through, called
// after a successful snapshot write. Frames with a higher sequence
// must survive: the registry snapshot and the WAL's sequence counter
// are captured as two separate steps (see Service.SaveSnapshot), so a
// write that lands in between can be fsynced to the WAL but absent
// from the snapshot body. Truncating blindly to empty would lose that
// write for good, so this rereads every frame currently on disk and
// rewrites only the ones sequence > through still needs.
func (wal *WAL) TruncateThrough(through uint64) error {
	wal.mu.Lock()
	defer wal.mu.Unlock()
	if err := wal.w.Flush(); err != nil {
		return apierr.New(apierr.IOFailure, "flush WAL before truncate: "+err.Error())
	}
	if _, err := wal.file.Seek(0, io.SeekStart); err != nil {
		return apierr.New(apierr.IOFailure, "seek WAL to read for truncate: "+err.Error())
	}
	frames := parseFrames(bufio.NewReader(wal.file))

	var kept bytes.Buffer
	for _, fr := range frames {
		if fr.Sequence <= through {
			continue
		}
		kept.Write(encodeFrame(fr.Type, fr.Sequence, fr.Body))
	}

	if err := wal.file.Truncate(0); err != nil {
		return apierr.New(apierr.IOFailure, "truncate WAL: "+err.Error())
	}
	if _, err := wal.file.Seek(0, io.SeekStart); err != nil {
		return apierr.New(apierr.IOFailure, "seek WAL after truncate: "+err.Error())
	}
	if _, err := wal.file.Write(kept.Bytes()); err != nil {
		return apierr.New(apierr.IOFailure, "rewrite surviving WAL frames: "+err.Error())
	}
	if err := wal.file.Sync(); err != nil {
		return apierr.New(apierr.IOFailure, "fsync WAL after truncate: "+err.Error())
	}
	wal.w = bufio.NewWriter(wal.file)
	return nil
}

// Close flushes and closes the underlying file.
func (wal *WAL) Close() error {
	wal.mu.Lock()
	defer wal.mu.Unlock()
	if err := wal.w.Flush(); err != nil {
		return err
	}
	return wal.file.Close()
}

// ReadFrames replays every frame in path in order, stopping cleanly
// (no error) at the first frame that fails length/CRC validation —
// the partial tail a crash mid-append leaves behind.
func ReadFrames(path string) ([]Frame, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apierr.New(apierr.IOFailure, "open WAL for replay: "+err.Error())
	}
	defer f.Close()

	return parseFrames(bufio.NewReader(f)), nil
}

// Encoders for each WAL body shape. Kept alongside the frame machinery
// since they're the only producers/consumers of RecordType bodies.

func EncodeCreateBody(name string, dimension int) []byte {
	var buf bytes.Buffer
	writeString(&buf, name)
	writeU32(&buf, uint32(dimension))
	return buf.Bytes()
}

func DecodeCreateBody(body []byte) (name string, dimension int, err error) {
	r := bytes.NewReader(body)
	name, err = readString(r)
	if err != nil {
		return "", 0, err
	}
	dim, err := readU32(r)
	if err != nil {
		return "", 0, err
	}
	return name, int(dim), nil
}

func EncodeDropBody(name string) []byte {
	var buf bytes.Buffer
	writeString(&buf, name)
	return buf.Bytes()
}

func DecodeDropBody(body []byte) (string, error) {
	return readString(bytes.NewReader(body))
}

func EncodeUpsertBody(collection string, rec *vectormodel.Record) ([]byte, error) {
	var buf bytes.Buffer
	writeString(&buf, collection)
	if err := encodeRecord(&buf, rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeUpsertBody(body []byte) (collection string, rec *vectormodel.Record, err error) {
	r := bytes.NewReader(body)
	collection, err = readString(r)
	if err != nil {
		return "", nil, err
	}
	rec, err = decodeRecord(r)
	if err != nil {
		return "", nil, err
	}
	return collection, rec, nil
}

func EncodeDeleteBody(collection, id string) []byte {
	var buf bytes.Buffer
	writeString(&buf, collection)
	writeString(&buf, id)
	return buf.Bytes()
}

func DecodeDeleteBody(body []byte) (collection, id string, err error) {
	r := bytes.NewReader(body)
	collection, err = readString(r)
	if err != nil {
		return "", "", err
	}
	id, err = readString(r)
	if err != nil {
		return "", "", err
	}
	return collection, id, nil
}
