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

package gbb

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/golang/glog"
)

// ErrNotFound is returned by Find when the image holds no valid block, and
// ErrAmbiguous when it holds more than one.
var (
	ErrNotFound  = errors.New("no GBB found")
	ErrAmbiguous = errors.New("multiple GBB headers found")
)

// Find searches image for exactly one valid block, starting at every
// SearchStride-aligned offset. It returns the offset of the block.
func Find(image []byte) (int, *Header, error) {
	var (
		found  *Header
		offset int
		count  int
	)
	sig := []byte(Signature)
	for i := 0; i+len(sig) <= len(image); i += SearchStride {
		if !bytes.Equal(image[i:i+len(sig)], sig) {
			continue
		}
		h, err := Parse(image[i:])
		if err != nil {
			glog.V(2).Infof("Ignoring GBB candidate at %#x: %v", i, err)
			continue
		}
		if count == 0 {
			found, offset = h, i
		}
		count++
	}
	switch count {
	case 0:
		return 0, nil, ErrNotFound
	case 1:
		return offset, found, nil
	default:
		return 0, nil, fmt.Errorf("%w: %d candidates", ErrAmbiguous, count)
	}
}

// Create lays out an empty block whose regions have the given sizes, in the
// order HWID, root key, bitmap FV, recovery key.
func Create(sizes [4]uint32) []byte {
	h := &Header{
		MajorVersion: MajorVersion,
		MinorVersion: MinorVersion,
		HeaderSize:   HeaderSize,
	}
	off := uint32(HeaderSize)
	for i, s := range sizes {
		h.Regions[i] = Region{Offset: off, Size: s}
		off += s
	}
	buf := make([]byte, off)
	copy(buf, h.Marshal())
	return buf
}

// SetFlags rewrites the flags of the block at the start of buf.
func SetFlags(buf []byte, flags Flags) error {
	h, err := Parse(buf)
	if err != nil {
		return err
	}
	h.Flags = flags
	copy(buf, h.Marshal())
	return nil
}

// SetHWID stores a NUL-terminated hardware ID and, for blocks which carry
// one, refreshes its digest.
func SetHWID(buf []byte, hwid string) error {
	h, err := Parse(buf)
	if err != nil {
		return err
	}
	reg := h.Regions[RegionHWID]
	if uint64(len(hwid))+1 > uint64(reg.Size) {
		return fmt.Errorf("hwid %q does not fit in %d bytes", hwid, reg.Size)
	}
	fill(buf[reg.Offset:reg.Offset+reg.Size], []byte(hwid))
	if h.HasDigest() {
		h.digest = sha256.Sum256([]byte(hwid))
		copy(buf, h.Marshal())
	}
	return nil
}

// SetRegion replaces the contents of a region, zero filling any remainder.
func SetRegion(buf []byte, id RegionID, data []byte) error {
	if id == RegionHWID {
		return SetHWID(buf, string(data))
	}
	h, err := Parse(buf)
	if err != nil {
		return err
	}
	reg := h.Regions[id]
	if uint64(len(data)) > uint64(reg.Size) {
		return fmt.Errorf("%v: %d bytes do not fit in %d", id, len(data), reg.Size)
	}
	fill(buf[reg.Offset:reg.Offset+reg.Size], data)
	return nil
}

func fill(dst, src []byte) {
	n := copy(dst, src)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}
