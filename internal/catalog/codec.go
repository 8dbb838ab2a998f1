package catalog

import (
	"encoding/binary"
	"fmt"
	"math"
)

// writeString appends a length-prefixed UTF-8 string.
func writeString(buf []byte, s string) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, s...)
	return buf
}

// readString reads a length-prefixed UTF-8 string starting at off, returning
// the string and the offset just past it.
func readString(b []byte, off int) (string, int, error) {
	if off+4 > len(b) {
		return "", 0, fmt.Errorf("catalog: truncated string length")
	}
	n := int(binary.LittleEndian.Uint32(b[off : off+4]))
	off += 4
	if off+n > len(b) {
		return "", 0, fmt.Errorf("catalog: truncated string body")
	}
	return string(b[off : off+n]), off + n, nil
}

func writeBytes(buf []byte, p []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(p)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, p...)
	return buf
}

func readBytes(b []byte, off int) ([]byte, int, error) {
	if off+4 > len(b) {
		return nil, 0, fmt.Errorf("catalog: truncated blob length")
	}
	n := int(binary.LittleEndian.Uint32(b[off : off+4]))
	off += 4
	if off+n > len(b) {
		return nil, 0, fmt.Errorf("catalog: truncated blob body")
	}
	out := make([]byte, n)
	copy(out, b[off:off+n])
	return out, off + n, nil
}

// Encode serializes a Collection record.
func (c Collection) Encode() []byte {
	buf := make([]byte, 0, 4+len(c.Name)+8+8)
	buf = writeString(buf, c.Name)
	buf = append(buf, c.NameHash[:]...)
	var countBuf [8]byte
	binary.LittleEndian.PutUint64(countBuf[:], c.DocumentCount)
	buf = append(buf, countBuf[:]...)
	return buf
}

// DecodeCollection parses the bytes produced by Collection.Encode.
func DecodeCollection(b []byte) (Collection, error) {
	var c Collection
	name, off, err := readString(b, 0)
	if err != nil {
		return c, err
	}
	c.Name = name
	if off+16 > len(b) {
		return c, fmt.Errorf("catalog: truncated collection record")
	}
	copy(c.NameHash[:], b[off:off+8])
	c.DocumentCount = binary.LittleEndian.Uint64(b[off+8 : off+16])
	return c, nil
}

// Encode serializes an IndexHeader record.
func (h IndexHeader) Encode() []byte {
	buf := make([]byte, 0, 128)
	buf = writeString(buf, h.CollectionName)
	buf = writeString(buf, h.FieldName)
	buf = append(buf, h.CollectionHash[:]...)
	buf = append(buf, h.FieldHash[:]...)
	buf = append(buf, h.IndexHash[:]...)
	buf = writeString(buf, h.DistanceMetric)

	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], uint64(h.Dimension))
	buf = append(buf, u64[:]...)
	binary.LittleEndian.PutUint64(u64[:], uint64(h.K))
	buf = append(buf, u64[:]...)
	binary.LittleEndian.PutUint64(u64[:], math.Float64bits(h.M))
	buf = append(buf, u64[:]...)
	binary.LittleEndian.PutUint64(u64[:], math.Float64bits(h.ReverseSize))
	buf = append(buf, u64[:]...)

	if h.EntryPoint != nil {
		buf = append(buf, 1)
		buf = append(buf, h.EntryPoint[:]...)
	} else {
		buf = append(buf, 0)
		buf = append(buf, make([]byte, 8)...)
	}

	binary.LittleEndian.PutUint64(u64[:], uint64(h.LayerCount))
	buf = append(buf, u64[:]...)
	binary.LittleEndian.PutUint64(u64[:], h.ElementCount)
	buf = append(buf, u64[:]...)
	return buf
}

// DecodeIndexHeader parses the bytes produced by IndexHeader.Encode.
func DecodeIndexHeader(b []byte) (IndexHeader, error) {
	var h IndexHeader
	var off int
	var err error

	h.CollectionName, off, err = readString(b, 0)
	if err != nil {
		return h, err
	}
	h.FieldName, off, err = readString(b, off)
	if err != nil {
		return h, err
	}
	if off+16 > len(b) {
		return h, fmt.Errorf("catalog: truncated index header hashes")
	}
	copy(h.CollectionHash[:], b[off:off+8])
	copy(h.FieldHash[:], b[off+8:off+16])
	off += 16
	if off+16 > len(b) {
		return h, fmt.Errorf("catalog: truncated index header indexhash")
	}
	copy(h.IndexHash[:], b[off:off+16])
	off += 16

	h.DistanceMetric, off, err = readString(b, off)
	if err != nil {
		return h, err
	}

	if off+40 > len(b) {
		return h, fmt.Errorf("catalog: truncated index header tail")
	}
	h.Dimension = int(binary.LittleEndian.Uint64(b[off : off+8]))
	off += 8
	h.K = int(binary.LittleEndian.Uint64(b[off : off+8]))
	off += 8
	h.M = math.Float64frombits(binary.LittleEndian.Uint64(b[off : off+8]))
	off += 8
	h.ReverseSize = math.Float64frombits(binary.LittleEndian.Uint64(b[off : off+8]))
	off += 8

	hasEntry := b[off]
	off++
	if off+8 > len(b) {
		return h, fmt.Errorf("catalog: truncated entry point")
	}
	if hasEntry == 1 {
		var ep [8]byte
		copy(ep[:], b[off:off+8])
		h.EntryPoint = &ep
	}
	off += 8

	if off+16 > len(b) {
		return h, fmt.Errorf("catalog: truncated index header counters")
	}
	h.LayerCount = int(binary.LittleEndian.Uint64(b[off : off+8]))
	h.ElementCount = binary.LittleEndian.Uint64(b[off+8 : off+16])
	return h, nil
}

// Encode serializes a Document record: length-prefixed user id, 8-byte id
// hash, then the original JSON text wrapped in a length-prefixed blob.
func (d Document) Encode() []byte {
	buf := make([]byte, 0, 16+len(d.IDUser)+len(d.Data))
	buf = writeString(buf, d.IDUser)
	buf = append(buf, d.IDHash[:]...)
	buf = writeBytes(buf, d.Data)
	return buf
}

// DecodeDocument parses the bytes produced by Document.Encode.
func DecodeDocument(b []byte) (Document, error) {
	var d Document
	idUser, off, err := readString(b, 0)
	if err != nil {
		return d, err
	}
	d.IDUser = idUser
	if off+8 > len(b) {
		return d, fmt.Errorf("catalog: truncated document id hash")
	}
	copy(d.IDHash[:], b[off:off+8])
	off += 8
	data, off, err := readBytes(b, off)
	if err != nil {
		return d, err
	}
	d.Data = data
	_ = off
	return d, nil
}

// EncodeVector serializes a dense float64 vector.
func EncodeVector(v []float64) []byte {
	buf := make([]byte, 4+len(v)*8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(v)))
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[4+i*8:4+i*8+8], math.Float64bits(x))
	}
	return buf
}

// DecodeVector parses the bytes produced by EncodeVector.
func DecodeVector(b []byte) ([]float64, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("catalog: truncated vector length")
	}
	n := int(binary.LittleEndian.Uint32(b[0:4]))
	want := 4 + n*8
	if len(b) != want {
		return nil, fmt.Errorf("catalog: expected %d bytes, got %d", want, len(b))
	}
	v := make([]float64, n)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[4+i*8 : 4+i*8+8]))
	}
	return v, nil
}
