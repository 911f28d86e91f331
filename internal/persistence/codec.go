// Package persistence implements the two on-disk artifacts that make
// the registry crash-safe: a whole-state snapshot and an append-only
// write-ahead log. Binary framing is length-prefixed fields,
// little-endian, with a checksum trailer, the same technique as
// the vector serialization this module generalizes from, upgraded
// from a CRC-32 per-record trailer to CRC-64 for the whole frame.
package persistence

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"

	"vectorindex/internal/apierr"
	"vectorindex/internal/vectormodel"
)

func writeString(buf *bytes.Buffer, s string) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf.Write(lenBuf[:])
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := readFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	b := make([]byte, n)
	if _, err := readFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := r.Read(b[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, errShortRead
		}
	}
	return total, nil
}

var errShortRead = apierr.New(apierr.CorruptSnapshot, "unexpected end of record")

func writeFloat32(buf *bytes.Buffer, f float32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
	buf.Write(b[:])
}

func readFloat32(r *bytes.Reader) (float32, error) {
	var b [4]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b[:])), nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func writeI64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func readI64(r *bytes.Reader) (int64, error) {
	var b [8]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// encodeRecord appends {id length, id, vector length, vector floats,
// norm, metadata length, metadata json} to buf.
func encodeRecord(buf *bytes.Buffer, rec *vectormodel.Record) error {
	writeString(buf, rec.ID)
	writeU32(buf, uint32(len(rec.Vector)))
	for _, c := range rec.Vector {
		writeFloat32(buf, c)
	}
	writeFloat32(buf, rec.Norm)
	if rec.Metadata == nil {
		writeU32(buf, 0)
		return nil
	}
	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return apierr.New(apierr.BadRequest, "metadata is not JSON-serializable")
	}
	writeU32(buf, uint32(len(metaJSON)))
	buf.Write(metaJSON)
	return nil
}

func decodeRecord(r *bytes.Reader) (*vectormodel.Record, error) {
	id, err := readString(r)
	if err != nil {
		return nil, err
	}
	vlen, err := readU32(r)
	if err != nil {
		return nil, err
	}
	vec := make([]float32, vlen)
	for i := range vec {
		vec[i], err = readFloat32(r)
		if err != nil {
			return nil, err
		}
	}
	norm, err := readFloat32(r)
	if err != nil {
		return nil, err
	}
	metaLen, err := readU32(r)
	if err != nil {
		return nil, err
	}
	var meta map[string]interface{}
	if metaLen > 0 {
		metaBytes := make([]byte, metaLen)
		if _, err := readFull(r, metaBytes); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(metaBytes, &meta); err != nil {
			return nil, apierr.New(apierr.CorruptSnapshot, "metadata is not valid JSON")
		}
	}
	return &vectormodel.Record{ID: id, Vector: vec, Norm: norm, Metadata: meta}, nil
}
