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

// Package flashimage splits a full flash image into the regions read by
// firmware selection.
package flashimage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/fmap"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/session"
)

var (
	vblockAreas = [2]string{fmap.AreaVBlockA, fmap.AreaVBlockB}
	bodyAreas   = [2]string{fmap.AreaFWMainA, fmap.AreaFWMainB}
)

// Image is a parsed flash image.
type Image struct {
	Map *fmap.FMap
	// MapOffset is where the FMAP was found.
	MapOffset int
	GBB       []byte
	VBlocks   [2][]byte

	bodies [2][]byte
}

// Parse locates the FMAP in data and extracts the trust anchor block and both
// firmware slots. The returned regions alias data.
func Parse(data []byte) (*Image, error) {
	off, m, err := fmap.Find(data)
	if err != nil {
		return nil, fmt.Errorf("failed to find FMAP: %w", err)
	}
	img := &Image{Map: m, MapOffset: off}
	if img.GBB, err = m.Extract(data, fmap.AreaGBB); err != nil {
		return nil, err
	}
	for i := range img.VBlocks {
		if img.VBlocks[i], err = m.Extract(data, vblockAreas[i]); err != nil {
			return nil, err
		}
		if img.bodies[i], err = m.Extract(data, bodyAreas[i]); err != nil {
			return nil, err
		}
	}
	return img, nil
}

// Body implements fwselect.BodySource.
func (i *Image) Body(_ context.Context, slot session.Slot) (io.Reader, error) {
	if slot != session.SlotA && slot != session.SlotB {
		return nil, fmt.Errorf("no body for slot %v", slot)
	}
	return bytes.NewReader(i.bodies[slot]), nil
}

// Assemble lays the regions out one after another behind an FMAP describing
// them.
func Assemble(gbb []byte, vblocks, bodies [2][]byte) []byte {
	regions := []struct {
		name string
		data []byte
	}{
		{fmap.AreaGBB, gbb},
		{vblockAreas[0], vblocks[0]},
		{vblockAreas[1], vblocks[1]},
		{bodyAreas[0], bodies[0]},
		{bodyAreas[1], bodies[1]},
	}
	m := &fmap.FMap{VersionMajor: fmap.VersionMajor, Name: "FLASH"}
	// The map itself goes first; its size depends only on the area count.
	for _, r := range regions {
		m.Areas = append(m.Areas, fmap.Area{Name: r.name})
	}
	off := uint32(len(m.Marshal()))
	for i, r := range regions {
		m.Areas[i].Offset = off
		m.Areas[i].Size = uint32(len(r.data))
		off += uint32(len(r.data))
	}
	m.Size = off
	out := make([]byte, 0, off)
	out = append(out, m.Marshal()...)
	for _, r := range regions {
		out = append(out, r.data...)
	}
	return out
}
