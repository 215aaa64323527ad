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

// Package secdata holds the anti-rollback floors and developer-mode policy
// kept in tamper-resistant storage.
//
// Floors only move forward: an attempt to store a lower CombinedVersion is
// ignored. Once locked, a space cannot be written again until the next boot.
package secdata

import (
	"errors"
	"fmt"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/crc8"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/cursor"
)

const (
	// FirmwareSize is the encoded size of the firmware space.
	FirmwareSize = 10
	// KernelSize is the encoded size of the kernel space.
	KernelSize = 13
	// FWMPSize is the encoded size of the management parameters space.
	FWMPSize = 40

	firmwareStructVersion = 2
	kernelStructVersion   = 2
	fwmpStructVersion     = 0x10

	// KernelUID marks a kernel space, "GRWL".
	KernelUID = 0x4752574c

	// DevKeyHashSize is the size of the developer key hash in the FWMP.
	DevKeyHashSize = 32
)

// ErrCorrupt is returned when a stored space fails validation.
var ErrCorrupt = errors.New("secure storage space is corrupt")

// FirmwareFlags are the flag bits of the firmware space.
type FirmwareFlags uint8

const (
	// FlagLastBootDeveloper records that the previous boot was in developer
	// mode. A change forces the owner to be cleared.
	FlagLastBootDeveloper FirmwareFlags = 0x01
	// FlagVirtualDevMode is the virtual developer switch.
	FlagVirtualDevMode FirmwareFlags = 0x02
)

// Firmware is the firmware space.
type Firmware struct {
	Flags    FirmwareFlags
	Versions uint32
}

// Kernel is the kernel space.
type Kernel struct {
	Versions uint32
}

// FWMPFlags are the flag bits of the management parameters.
type FWMPFlags uint32

const (
	FWMPDevDisableBoot        FWMPFlags = 1 << 0
	FWMPDevDisableRecovery    FWMPFlags = 1 << 1
	FWMPDevEnableUSB          FWMPFlags = 1 << 2
	FWMPDevEnableLegacy       FWMPFlags = 1 << 3
	FWMPDevEnableOfficialOnly FWMPFlags = 1 << 4
	FWMPDevUseKeyHash         FWMPFlags = 1 << 5
	FWMPDevDisableCCD         FWMPFlags = 1 << 6
)

// FWMP holds the firmware management parameters set by the device owner.
type FWMP struct {
	Flags      FWMPFlags
	DevKeyHash [DevKeyHashSize]byte
}

// Has reports whether all bits of x are set. A nil FWMP has no flags.
func (f *FWMP) Has(x FWMPFlags) bool {
	return f != nil && f.Flags&x == x
}

// KeyHash returns the developer key hash, or nil when none is required.
func (f *FWMP) KeyHash() []byte {
	if !f.Has(FWMPDevUseKeyHash) {
		return nil
	}
	h := f.DevKeyHash
	return h[:]
}

// Marshal encodes the space.
func (f *Firmware) Marshal() []byte {
	w := cursor.NewWriter(FirmwareSize)
	w.U8(firmwareStructVersion)
	w.U8(uint8(f.Flags))
	w.U32(f.Versions)
	w.Pad(FirmwareSize)
	b := w.Buf()
	b[FirmwareSize-1] = crc8.Checksum(b[:FirmwareSize-1])
	return b
}

// ParseFirmware decodes and validates a firmware space.
func ParseFirmware(b []byte) (*Firmware, error) {
	if err := checkCRC(b, FirmwareSize, firmwareStructVersion); err != nil {
		return nil, fmt.Errorf("firmware space: %w", err)
	}
	r := cursor.NewReader(b)
	r.Skip(1)
	f := &Firmware{Flags: FirmwareFlags(r.U8()), Versions: r.U32()}
	return f, r.Err()
}

// Marshal encodes the space.
func (k *Kernel) Marshal() []byte {
	w := cursor.NewWriter(KernelSize)
	w.U8(kernelStructVersion)
	w.U32(KernelUID)
	w.U32(k.Versions)
	w.Pad(KernelSize)
	b := w.Buf()
	b[KernelSize-1] = crc8.Checksum(b[:KernelSize-1])
	return b
}

// ParseKernel decodes and validates a kernel space.
func ParseKernel(b []byte) (*Kernel, error) {
	if err := checkCRC(b, KernelSize, kernelStructVersion); err != nil {
		return nil, fmt.Errorf("kernel space: %w", err)
	}
	r := cursor.NewReader(b)
	r.Skip(1)
	if uid := r.U32(); uid != KernelUID {
		return nil, fmt.Errorf("%w: kernel space uid %#x", ErrCorrupt, uid)
	}
	k := &Kernel{Versions: r.U32()}
	return k, r.Err()
}

func checkCRC(b []byte, size int, version uint8) error {
	if len(b) < size {
		return fmt.Errorf("%w: %d bytes, want %d", ErrCorrupt, len(b), size)
	}
	if b[0] != version {
		return fmt.Errorf("%w: struct version %d, want %d", ErrCorrupt, b[0], version)
	}
	if got, want := b[size-1], crc8.Checksum(b[:size-1]); got != want {
		return fmt.Errorf("%w: crc %#02x, want %#02x", ErrCorrupt, got, want)
	}
	return nil
}

// Marshal encodes the FWMP. The CRC covers everything after the CRC byte.
func (f *FWMP) Marshal() []byte {
	w := cursor.NewWriter(FWMPSize)
	w.U8(0)
	w.U8(FWMPSize)
	w.U8(fwmpStructVersion)
	w.U8(0)
	w.U32(uint32(f.Flags))
	w.Bytes(f.DevKeyHash[:])
	b := w.Buf()
	b[0] = crc8.Checksum(b[2:])
	return b
}

// ParseFWMP decodes and validates the FWMP.
func ParseFWMP(b []byte) (*FWMP, error) {
	if len(b) < 2 {
		return nil, fmt.Errorf("%w: fwmp is %d bytes", ErrCorrupt, len(b))
	}
	size := int(b[1])
	if size < FWMPSize || size > len(b) {
		return nil, fmt.Errorf("%w: fwmp struct size %d", ErrCorrupt, size)
	}
	if got, want := b[0], crc8.Checksum(b[2:size]); got != want {
		return nil, fmt.Errorf("%w: fwmp crc %#02x, want %#02x", ErrCorrupt, got, want)
	}
	if major := b[2] >> 4; major != fwmpStructVersion>>4 {
		return nil, fmt.Errorf("%w: fwmp major version %d", ErrCorrupt, major)
	}
	r := cursor.NewReader(b[4:size])
	f := &FWMP{Flags: FWMPFlags(r.U32())}
	copy(f.DevKeyHash[:], r.Bytes(DevKeyHashSize))
	return f, r.Err()
}
