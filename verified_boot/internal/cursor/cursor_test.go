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

package cursor

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReader(t *testing.T) {
	w := NewWriter(16)
	w.U8(0x01)
	w.U16(0x0302)
	w.U32(0x07060504)
	w.U64(0x0f0e0d0c0b0a0908)
	w.Bytes([]byte("x"))

	r := NewReader(w.Buf())
	if got, want := r.U8(), uint8(0x01); got != want {
		t.Errorf("U8: got %x, want %x", got, want)
	}
	if got, want := r.U16(), uint16(0x0302); got != want {
		t.Errorf("U16: got %x, want %x", got, want)
	}
	if got, want := r.U32(), uint32(0x07060504); got != want {
		t.Errorf("U32: got %x, want %x", got, want)
	}
	if got, want := r.U64(), uint64(0x0f0e0d0c0b0a0908); got != want {
		t.Errorf("U64: got %x, want %x", got, want)
	}
	if diff := cmp.Diff(r.Bytes(1), []byte("x")); diff != "" {
		t.Errorf("Bytes: diff (-got +want):\n%s", diff)
	}
	if err := r.Err(); err != nil {
		t.Fatalf("Err(): %v", err)
	}

	// Past the end: zero value and sticky error.
	if got := r.U32(); got != 0 {
		t.Errorf("U32 past end: got %d, want 0", got)
	}
	if err := r.Err(); !errors.Is(err, ErrShort) {
		t.Errorf("Err(): got %v, want ErrShort", err)
	}
	if got := r.U8(); got != 0 {
		t.Errorf("U8 after error: got %d, want 0", got)
	}
}

func TestSlice(t *testing.T) {
	buf := make([]byte, 100)
	for _, test := range []struct {
		desc      string
		off, size uint64
		wantErr   bool
	}{
		{desc: "whole", off: 0, size: 100},
		{desc: "empty at end", off: 100, size: 0},
		{desc: "tail", off: 90, size: 10},
		{desc: "one over", off: 90, size: 11, wantErr: true},
		{desc: "offset past end", off: 101, size: 0, wantErr: true},
		{desc: "wraparound", off: 10, size: math.MaxUint64 - 5, wantErr: true},
	} {
		t.Run(test.desc, func(t *testing.T) {
			got, err := Slice(buf, test.off, test.size)
			if gotErr := err != nil; gotErr != test.wantErr {
				t.Fatalf("Slice(%d, %d): got err %v, want err %t", test.off, test.size, err, test.wantErr)
			}
			if err == nil && uint64(len(got)) != test.size {
				t.Errorf("got len %d, want %d", len(got), test.size)
			}
		})
	}
}

func TestPad(t *testing.T) {
	w := NewWriter(0)
	w.U16(0xffff)
	w.Pad(8)
	if diff := cmp.Diff(w.Buf(), []byte{0xff, 0xff, 0, 0, 0, 0, 0, 0}); diff != "" {
		t.Errorf("diff (-got +want):\n%s", diff)
	}
}
