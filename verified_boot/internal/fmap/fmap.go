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

// Package fmap locates and decodes the flash region map embedded in a
// firmware image.
package fmap

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/cursor"
)

const (
	// Signature starts every map.
	Signature = "__FMAP__"
	// VersionMajor must match exactly.
	VersionMajor = 1

	nameLen    = 32
	headerSize = 8 + 1 + 1 + 8 + 4 + nameLen + 2
	areaSize   = 4 + 4 + nameLen + 2
)

// Well-known region names.
const (
	AreaGBB      = "GBB"
	AreaVBlockA  = "VBLOCK_A"
	AreaVBlockB  = "VBLOCK_B"
	AreaFWMainA  = "FW_MAIN_A"
	AreaFWMainB  = "FW_MAIN_B"
	AreaRWShared = "RW_SHARED"
)

// ErrNotFound is returned when no valid map is present.
var ErrNotFound = errors.New("no FMAP found")

// Area is one named region.
type Area struct {
	Offset uint32
	Size   uint32
	Name   string
	Flags  uint16
}

// FMap is a decoded region map.
type FMap struct {
	VersionMajor uint8
	VersionMinor uint8
	Base         uint64
	Size         uint32
	Name         string
	Areas        []Area
}

// Parse decodes the map at the start of buf.
func Parse(buf []byte) (*FMap, error) {
	r := cursor.NewReader(buf)
	if sig := r.Bytes(len(Signature)); !bytes.Equal(sig, []byte(Signature)) {
		return nil, fmt.Errorf("bad FMAP signature %q", sig)
	}
	m := &FMap{
		VersionMajor: r.U8(),
		VersionMinor: r.U8(),
		Base:         r.U64(),
		Size:         r.U32(),
		Name:         cstring(r.Bytes(nameLen)),
	}
	n := int(r.U16())
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("FMAP header: %w", err)
	}
	if m.VersionMajor != VersionMajor {
		return nil, fmt.Errorf("FMAP version %d.%d unsupported", m.VersionMajor, m.VersionMinor)
	}
	if r.Remaining() < n*areaSize {
		return nil, fmt.Errorf("FMAP declares %d areas, only room for %d", n, r.Remaining()/areaSize)
	}
	for i := 0; i < n; i++ {
		m.Areas = append(m.Areas, Area{
			Offset: r.U32(),
			Size:   r.U32(),
			Name:   cstring(r.Bytes(nameLen)),
			Flags:  r.U16(),
		})
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("FMAP areas: %w", err)
	}
	return m, nil
}

// Find scans image for the first offset holding a valid map.
func Find(image []byte) (int, *FMap, error) {
	sig := []byte(Signature)
	for off := 0; off < len(image); {
		i := bytes.Index(image[off:], sig)
		if i < 0 {
			break
		}
		off += i
		if m, err := Parse(image[off:]); err == nil {
			return off, m, nil
		}
		off++
	}
	return 0, nil, ErrNotFound
}

// Area returns the region with the given name.
func (m *FMap) Area(name string) (Area, bool) {
	for _, a := range m.Areas {
		if a.Name == name {
			return a, true
		}
	}
	return Area{}, false
}

// Extract returns the bytes of the named region of image.
func (m *FMap) Extract(image []byte, name string) ([]byte, error) {
	a, ok := m.Area(name)
	if !ok {
		return nil, fmt.Errorf("no FMAP area %q", name)
	}
	b, err := cursor.Slice(image, uint64(a.Offset), uint64(a.Size))
	if err != nil {
		return nil, fmt.Errorf("area %q: %w", name, err)
	}
	return b, nil
}

// Marshal encodes the map.
func (m *FMap) Marshal() []byte {
	w := cursor.NewWriter(headerSize + len(m.Areas)*areaSize)
	w.Bytes([]byte(Signature))
	w.U8(m.VersionMajor)
	w.U8(m.VersionMinor)
	w.U64(m.Base)
	w.U32(m.Size)
	w.Bytes(fixed(m.Name))
	w.U16(uint16(len(m.Areas)))
	for _, a := range m.Areas {
		w.U32(a.Offset)
		w.U32(a.Size)
		w.Bytes(fixed(a.Name))
		w.U16(a.Flags)
	}
	return w.Buf()
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func fixed(s string) []byte {
	b := make([]byte, nameLen)
	copy(b[:nameLen-1], s)
	return b
}
