// Package buffer provides the small binary encode/decode helpers
// chunkcodec builds its section/structure-start wire format
// on top of: big-endian fixed-width fields, varint-prefixed strings
// and byte blobs.
package buffer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Writer accumulates an encoded payload.
type Writer struct {
	bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

func (w *Writer) WriteUint64(v uint64) { _ = binary.Write(w, binary.BigEndian, v) }
func (w *Writer) WriteInt64(v int64)   { _ = binary.Write(w, binary.BigEndian, v) }
func (w *Writer) WriteUint32(v uint32) { _ = binary.Write(w, binary.BigEndian, v) }
func (w *Writer) WriteInt32(v int32)   { _ = binary.Write(w, binary.BigEndian, v) }
func (w *Writer) WriteInt16(v int16)   { _ = binary.Write(w, binary.BigEndian, v) }
func (w *Writer) WriteUint16(v uint16) { _ = binary.Write(w, binary.BigEndian, v) }

func (w *Writer) WriteUint8(v uint8) { _ = w.WriteByte(v) }

func (w *Writer) WriteBool(v bool) {
	if v {
		_ = w.WriteByte(1)
	} else {
		_ = w.WriteByte(0)
	}
}

// WriteVarUint writes v as an unsigned LEB128 varint, the prefix used
// for every length-prefixed field below (palette sizes, string
// lengths, byte-blob lengths are never negative).
func (w *Writer) WriteVarUint(v uint64) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	_, _ = w.Write(buf[:n])
}

func (w *Writer) WriteString(s string) {
	w.WriteVarUint(uint64(len(s)))
	_, _ = w.Write([]byte(s))
}

func (w *Writer) WriteBytes(b []byte) {
	w.WriteVarUint(uint64(len(b)))
	_, _ = w.Write(b)
}

// Reader decodes a payload written by Writer. It wraps an io.Reader
// rather than a byte slice so chunkcodec can read directly off a
// decompressing reader without buffering the whole payload first.
type Reader struct {
	r   io.Reader
	br  io.ByteReader
	max int // guard against corrupt length prefixes, 0 means default
}

const defaultMaxField = 64 << 20 // 64MiB

// NewReader wraps r for typed reads.
func NewReader(r io.Reader) *Reader {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio1(r)
	}
	return &Reader{r: r, br: br}
}

// bufio1 minimally adapts an io.Reader to io.ByteReader one byte at a
// time, for readers (like a bytes.Reader wrapper) that don't already
// implement it.
type byteReader struct{ r io.Reader }

func bufio1(r io.Reader) io.ByteReader { return &byteReader{r: r} }

func (b *byteReader) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(b.r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	var v uint64
	err := binary.Read(r.r, binary.BigEndian, &v)
	return v, err
}

func (r *Reader) ReadInt64() (int64, error) {
	var v int64
	err := binary.Read(r.r, binary.BigEndian, &v)
	return v, err
}

func (r *Reader) ReadUint32() (uint32, error) {
	var v uint32
	err := binary.Read(r.r, binary.BigEndian, &v)
	return v, err
}

func (r *Reader) ReadInt32() (int32, error) {
	var v int32
	err := binary.Read(r.r, binary.BigEndian, &v)
	return v, err
}

func (r *Reader) ReadInt16() (int16, error) {
	var v int16
	err := binary.Read(r.r, binary.BigEndian, &v)
	return v, err
}

func (r *Reader) ReadUint16() (uint16, error) {
	var v uint16
	err := binary.Read(r.r, binary.BigEndian, &v)
	return v, err
}

func (r *Reader) ReadUint8() (uint8, error) { return r.br.ReadByte() }

func (r *Reader) ReadBool() (bool, error) {
	b, err := r.br.ReadByte()
	return b != 0, err
}

func (r *Reader) ReadVarUint() (uint64, error) {
	return binary.ReadUvarint(r.br)
}

func (r *Reader) maxField() int {
	if r.max > 0 {
		return r.max
	}
	return defaultMaxField
}

func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadVarUint()
	if err != nil {
		return "", err
	}
	if n > uint64(r.maxField()) {
		return "", fmt.Errorf("buffer: string length %d exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadVarUint()
	if err != nil {
		return nil, err
	}
	if n > uint64(r.maxField()) {
		return nil, fmt.Errorf("buffer: byte slice length %d exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (r *Reader) ReadN(n int) ([]byte, error) {
	buf := make([]byte, n)
	_, err := io.ReadFull(r.r, buf)
	return buf, err
}
