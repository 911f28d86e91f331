package persistence

import (
	"bytes"
	"encoding/binary"
	"hash/crc64"
	"os"
	"path/filepath"

	"vectorindex/internal/apierr"
	"vectorindex/internal/vectormodel"
)

var crcTable = crc64.MakeTable(crc64.ISO)

var snapshotMagic = [4]byte{'V', 'I', 'D', 'X'}

const snapshotFormatVersion uint16 = 1

// WriteSnapshot serializes every collection plus the WAL sequence it
// includes to path, via a temp-file-then-atomic-rename sequence so a
// crash mid-write never corrupts the previously committed snapshot:
// write to path+".tmp", fsync the file, rename over path, then fsync
// the containing directory so the rename itself survives a crash.
func WriteSnapshot(path string, sequence uint64, collections []*vectormodel.Collection) error {
	body, err := encodeSnapshotBody(collections)
	if err != nil {
		return err
	}
	checksum := crc64.Checksum(body, crcTable)

	var out bytes.Buffer
	out.Write(snapshotMagic[:])
	var verBuf [2]byte
	binary.LittleEndian.PutUint16(verBuf[:], snapshotFormatVersion)
	out.Write(verBuf[:])
	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], sequence)
	out.Write(seqBuf[:])
	out.Write(body)
	var crcBuf [8]byte
	binary.LittleEndian.PutUint64(crcBuf[:], checksum)
	out.Write(crcBuf[:])

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return apierr.New(apierr.IOFailure, "open snapshot temp file: "+err.Error())
	}
	if _, err := f.Write(out.Bytes()); err != nil {
		f.Close()
		return apierr.New(apierr.IOFailure, "write snapshot temp file: "+err.Error())
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return apierr.New(apierr.IOFailure, "fsync snapshot temp file: "+err.Error())
	}
	if err := f.Close(); err != nil {
		return apierr.New(apierr.IOFailure, "close snapshot temp file: "+err.Error())
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return apierr.New(apierr.IOFailure, "rename snapshot into place: "+err.Error())
	}
	if dir, err := os.Open(filepath.Dir(path)); err == nil {
		dir.Sync()
		dir.Close()
	}
	return nil
}

func encodeSnapshotBody(collections []*vectormodel.Collection) ([]byte, error) {
	var buf bytes.Buffer
	writeU32(&buf, uint32(len(collections)))
	for _, col := range collections {
		writeString(&buf, col.Name)
		writeU32(&buf, uint32(col.Dimension))
		writeI64(&buf, col.CreatedAt)
		records := col.IterSnapshot()
		writeU32(&buf, uint32(len(records)))
		for _, rec := range records {
			if err := encodeRecord(&buf, rec); err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}

// ReadSnapshot loads and validates a snapshot file, returning the WAL
// sequence it includes and the reconstructed collections. A missing
// file is reported via os.IsNotExist on the returned error; a present
// but malformed file reports CORRUPT_SNAPSHOT.
func ReadSnapshot(path string) (uint64, []*vectormodel.Collection, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, err
	}
	if len(raw) < 4+2+8+8 {
		return 0, nil, apierr.New(apierr.CorruptSnapshot, "snapshot file too short")
	}
	if !bytes.Equal(raw[:4], snapshotMagic[:]) {
		return 0, nil, apierr.New(apierr.CorruptSnapshot, "bad snapshot magic")
	}
	version := binary.LittleEndian.Uint16(raw[4:6])
	if version != snapshotFormatVersion {
		return 0, nil, apierr.New(apierr.CorruptSnapshot, "unsupported snapshot format version")
	}
	sequence := binary.LittleEndian.Uint64(raw[6:14])
	body := raw[14 : len(raw)-8]
	wantCRC := binary.LittleEndian.Uint64(raw[len(raw)-8:])
	if crc64.Checksum(body, crcTable) != wantCRC {
		return 0, nil, apierr.New(apierr.CorruptSnapshot, "snapshot checksum mismatch")
	}

	r := bytes.NewReader(body)
	colCount, err := readU32(r)
	if err != nil {
		return 0, nil, apierr.New(apierr.CorruptSnapshot, "truncated snapshot body")
	}
	collections := make([]*vectormodel.Collection, 0, colCount)
	for i := uint32(0); i < colCount; i++ {
		col, err := decodeCollection(r)
		if err != nil {
			return 0, nil, apierr.New(apierr.CorruptSnapshot, "truncated collection in snapshot")
		}
		collections = append(collections, col)
	}
	return sequence, collections, nil
}

func decodeCollection(r *bytes.Reader) (*vectormodel.Collection, error) {
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	dim, err := readU32(r)
	if err != nil {
		return nil, err
	}
	createdAt, err := readI64(r)
	if err != nil {
		return nil, err
	}
	recCount, err := readU32(r)
	if err != nil {
		return nil, err
	}
	col := vectormodel.NewCollection(name, int(dim), createdAt)
	for i := uint32(0); i < recCount; i++ {
		rec, err := decodeRecord(r)
		if err != nil {
			return nil, err
		}
		if err := col.Insert(rec); err != nil {
			return nil, err
		}
	}
	return col, nil
}
