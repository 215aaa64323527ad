// Copyright 2023 Google LLC. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cursor provides bounds-checked little-endian access to untrusted
// byte slices.
//
// A Reader records the first out-of-bounds access and turns every later read
// into a no-op returning zero, so callers can decode a whole structure and
// check Err once at the end.
package cursor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrShort is returned when a read or a sub-slice would run past the end of
// the underlying buffer.
var ErrShort = errors.New("read past end of buffer")

// Reader decodes fixed-width little-endian values from a byte slice.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader returns a Reader positioned at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int { return r.off }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// Err returns the first error encountered, if any.
func (r *Reader) Err() error { return r.err }

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > r.Remaining() {
		r.err = fmt.Errorf("%w: want %d bytes at offset %d, have %d", ErrShort, n, r.off, r.Remaining())
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

// Skip advances over n bytes.
func (r *Reader) Skip(n int) {
	r.take(n)
}

// U8 reads a single byte.
func (r *Reader) U8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// U16 reads a little-endian uint16.
func (r *Reader) U16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// U32 reads a little-endian uint32.
func (r *Reader) U32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// U64 reads a little-endian uint64.
func (r *Reader) U64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// Bytes reads n bytes. The returned slice aliases the underlying buffer.
func (r *Reader) Bytes(n int) []byte {
	return r.take(n)
}

// Slice returns buf[off:off+size], failing if the region does not lie wholly
// inside buf. Arithmetic wraparound is treated as out of bounds.
func Slice(buf []byte, off, size uint64) ([]byte, error) {
	end, err := Inside(uint64(len(buf)), off, size)
	if err != nil {
		return nil, err
	}
	return buf[off:end], nil
}

// Inside checks that [off, off+size) fits within a parent of parentSize bytes
// and returns off+size.
func Inside(parentSize, off, size uint64) (uint64, error) {
	if off > parentSize {
		return 0, fmt.Errorf("%w: offset %d beyond size %d", ErrShort, off, parentSize)
	}
	if math.MaxUint64-off < size {
		return 0, fmt.Errorf("%w: offset %d + size %d wraps", ErrShort, off, size)
	}
	if off+size > parentSize {
		return 0, fmt.Errorf("%w: region %d+%d exceeds size %d", ErrShort, off, size, parentSize)
	}
	return off + size, nil
}

// Writer appends fixed-width little-endian values to a growing buffer.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with capacity for n bytes.
func NewWriter(n int) *Writer {
	return &Writer{buf: make([]byte, 0, n)}
}

// U8 appends a byte.
func (w *Writer) U8(v uint8) { w.buf = append(w.buf, v) }

// U16 appends a little-endian uint16.
func (w *Writer) U16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }

// U32 appends a little-endian uint32.
func (w *Writer) U32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

// U64 appends a little-endian uint64.
func (w *Writer) U64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

// Bytes appends b verbatim.
func (w *Writer) Bytes(b []byte) { w.buf = append(w.buf, b...) }

// Pad appends zero bytes until the buffer is n bytes long.
func (w *Writer) Pad(n int) {
	for len(w.buf) < n {
		w.buf = append(w.buf, 0)
	}
}

// Len returns the number of bytes written.
func (w *Writer) Len() int { return len(w.buf) }

// Buf returns the written bytes.
func (w *Writer) Buf() []byte { return w.buf }
