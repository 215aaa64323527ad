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

// Package gbb reads and edits the read-only trust anchor block: the root and
// recovery keys, the hardware ID and the policy flags.
package gbb

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/crypto"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/cursor"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/vblock"
)

const (
	// Signature starts every block.
	Signature = "$GBB"
	// MajorVersion must match exactly.
	MajorVersion = 1
	// MinorVersion is the newest layout this package writes.
	MinorVersion = 2
	// HeaderSize is the size of the packed header.
	HeaderSize = 128
	// DigestSize is the size of the HWID digest present from minor version 2.
	DigestSize = 32
	// SearchStride is the alignment at which Find looks for a header.
	SearchStride = 4

	minorWithDigest = 2
)

// ErrInvalid is wrapped by every structural rejection of a block.
var ErrInvalid = errors.New("invalid GBB")

// Flags are the policy bits carried in the header.
type Flags uint32

const (
	FlagDevScreenShortDelay Flags = 1 << iota
	FlagLoadOptionROMs
	FlagEnableAlternateOS
	FlagForceDevSwitchOn
	FlagForceDevBootUSB
	FlagDisableFWRollbackCheck
	FlagEnterTriggersToNorm
	FlagForceDevBootLegacy
	FlagFAFTKeyOverride
	FlagDisableECSoftwareSync
	FlagDefaultDevBootLegacy
	FlagDisablePDSoftwareSync
	FlagDisableLidShutdown
)

// Has reports whether all bits of x are set.
func (f Flags) Has(x Flags) bool { return f&x == x }

// Region is an (offset, size) pair relative to the start of the block.
type Region struct {
	Offset uint32
	Size   uint32
}

// RegionID names one of the four regions.
type RegionID int

const (
	RegionHWID RegionID = iota
	RegionRootKey
	RegionBitmapFV
	RegionRecoveryKey
)

func (r RegionID) String() string {
	switch r {
	case RegionHWID:
		return "hwid"
	case RegionRootKey:
		return "rootkey"
	case RegionBitmapFV:
		return "bmpfv"
	case RegionRecoveryKey:
		return "recoverykey"
	}
	return fmt.Sprintf("RegionID(%d)", int(r))
}

// Header is a parsed block header.
type Header struct {
	MajorVersion uint16
	MinorVersion uint16
	HeaderSize   uint32
	Flags        Flags
	Regions      [4]Region

	digest [DigestSize]byte
}

// Region returns the location of the given region.
func (h *Header) Region(id RegionID) Region { return h.Regions[id] }

// HasDigest reports whether the block carries an HWID digest.
func (h *Header) HasDigest() bool { return h.MinorVersion >= minorWithDigest }

// HWIDDigest returns the stored HWID digest, or all zeroes for blocks older
// than minor version 2.
func (h *Header) HWIDDigest() [DigestSize]byte {
	if !h.HasDigest() {
		return [DigestSize]byte{}
	}
	return h.digest
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %w: %s", ErrInvalid, vblock.ErrStructural, fmt.Sprintf(format, args...))
}

// Parse decodes and validates the header at the start of buf. Every region
// must lie after the header and inside buf.
func Parse(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, invalid("need %d bytes, have %d", HeaderSize, len(buf))
	}
	r := cursor.NewReader(buf)
	if sig := r.Bytes(len(Signature)); !bytes.Equal(sig, []byte(Signature)) {
		return nil, invalid("bad signature %q", sig)
	}
	h := &Header{
		MajorVersion: r.U16(),
		MinorVersion: r.U16(),
		HeaderSize:   r.U32(),
		Flags:        Flags(r.U32()),
	}
	for i := range h.Regions {
		h.Regions[i] = Region{Offset: r.U32(), Size: r.U32()}
	}
	if h.MinorVersion >= minorWithDigest {
		copy(h.digest[:], r.Bytes(DigestSize))
	}
	if err := r.Err(); err != nil {
		return nil, invalid("%v", err)
	}
	if h.MajorVersion != MajorVersion {
		return nil, invalid("major version %d, want %d", h.MajorVersion, MajorVersion)
	}
	if h.HeaderSize < HeaderSize || uint64(h.HeaderSize) > uint64(len(buf)) {
		return nil, invalid("header size %d out of range [%d, %d]", h.HeaderSize, HeaderSize, len(buf))
	}
	for i, reg := range h.Regions {
		if reg.Offset < h.HeaderSize {
			return nil, invalid("%v offset %d inside header", RegionID(i), reg.Offset)
		}
		if _, err := cursor.Inside(uint64(len(buf)), uint64(reg.Offset), uint64(reg.Size)); err != nil {
			return nil, invalid("%v: %v", RegionID(i), err)
		}
	}
	return h, nil
}

// Marshal encodes the header into HeaderSize bytes.
func (h *Header) Marshal() []byte {
	w := cursor.NewWriter(HeaderSize)
	w.Bytes([]byte(Signature))
	w.U16(h.MajorVersion)
	w.U16(h.MinorVersion)
	w.U32(h.HeaderSize)
	w.U32(uint32(h.Flags))
	for _, reg := range h.Regions {
		w.U32(reg.Offset)
		w.U32(reg.Size)
	}
	if h.HasDigest() {
		w.Bytes(h.digest[:])
	}
	w.Pad(HeaderSize)
	return w.Buf()
}

// ReadRootKey returns the packed root key.
func (h *Header) ReadRootKey(buf []byte) ([]byte, error) {
	return h.readKey(buf, RegionRootKey)
}

// ReadRecoveryKey returns the packed recovery key.
func (h *Header) ReadRecoveryKey(buf []byte) ([]byte, error) {
	return h.readKey(buf, RegionRecoveryKey)
}

// readKey sizes the key from its own packed header. Test keys declare no
// data at all, and are clamped to the bare packed header.
func (h *Header) readKey(buf []byte, id RegionID) ([]byte, error) {
	reg := h.Regions[id]
	hdr, err := cursor.Slice(buf, uint64(reg.Offset), crypto.PackedKeyHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v header: %v", vblock.ErrStructural, id, err)
	}
	kh, err := crypto.ReadPackedKeyHeader(hdr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v: %v", vblock.ErrStructural, id, err)
	}
	size, err := cursor.Inside(^uint64(0), kh.KeyOffset, kh.KeySize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v size: %v", vblock.ErrStructural, id, err)
	}
	if size < crypto.PackedKeyHeaderSize {
		size = crypto.PackedKeyHeaderSize
	}
	if reg.Size != 0 && size > uint64(reg.Size) {
		return nil, fmt.Errorf("%w: %v is %d bytes, region holds %d", vblock.ErrStructural, id, size, reg.Size)
	}
	key, err := cursor.Slice(buf, uint64(reg.Offset), size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v: %v", vblock.ErrStructural, id, err)
	}
	return key, nil
}

// RootKey reads and decodes the root key.
func (h *Header) RootKey(buf []byte) (*crypto.PublicKey, error) {
	b, err := h.ReadRootKey(buf)
	if err != nil {
		return nil, err
	}
	return crypto.ParsePackedKey(b)
}

// RecoveryKey reads and decodes the recovery key.
func (h *Header) RecoveryKey(buf []byte) (*crypto.PublicKey, error) {
	b, err := h.ReadRecoveryKey(buf)
	if err != nil {
		return nil, err
	}
	return crypto.ParsePackedKey(b)
}

// ReadHWID returns the NUL-terminated hardware ID. It fails only if the
// declared region is larger than maxLen. A zero-sized region yields "".
func (h *Header) ReadHWID(buf []byte, maxLen int) (string, error) {
	reg := h.Regions[RegionHWID]
	if reg.Size == 0 {
		return "", nil
	}
	if int64(reg.Size) > int64(maxLen) {
		return "", fmt.Errorf("%w: hwid region is %d bytes, capacity %d", vblock.ErrResource, reg.Size, maxLen)
	}
	b, err := cursor.Slice(buf, uint64(reg.Offset), uint64(reg.Size))
	if err != nil {
		return "", fmt.Errorf("%w: hwid: %v", vblock.ErrStructural, err)
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b), nil
}

// BitmapFV returns the bitmap region, or nil if the block has none.
func (h *Header) BitmapFV(buf []byte) ([]byte, error) {
	reg := h.Regions[RegionBitmapFV]
	if reg.Size == 0 {
		return nil, nil
	}
	return cursor.Slice(buf, uint64(reg.Offset), uint64(reg.Size))
}
