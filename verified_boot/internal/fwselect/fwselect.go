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

// Package fwselect picks and authenticates one of the two read-write
// firmware slots, and maintains the firmware anti-rollback floor.
package fwselect

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/crypto"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/gbb"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/nvstorage"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/session"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/vblock"
	"github.com/golang/glog"
)

// DefaultChunkSize is how much of a body is hashed per read.
const DefaultChunkSize = 64 * 1024

// BodySource supplies the body of a firmware slot.
type BodySource interface {
	// Body returns a reader over the body of slot. The reader is consumed
	// until the size declared by the preamble has been hashed.
	Body(ctx context.Context, slot session.Slot) (io.Reader, error)
}

// FloorStore persists the firmware floor.
type FloorStore interface {
	AdvanceFirmwareFloor(v uint32) (uint32, error)
}

// Params are the inputs to Select.
type Params struct {
	GBB     *gbb.Header
	RootKey *crypto.PublicKey
	NV      *nvstorage.Context
	// VBlocks holds the key block and preamble of slots A and B.
	VBlocks [2][]byte
	Bodies  BodySource
	// SupportsRONormal is set if the caller can run the read-only code path
	// when a slot asks for it.
	SupportsRONormal bool
	Floors           FloorStore
}

// Result describes the chosen slot.
type Result struct {
	Slot            session.Slot
	CombinedVersion uint32
	Preamble        *vblock.FirmwarePreamble
	DataKey         *crypto.PublicKey
}

// Selector chooses a firmware slot.
type Selector struct {
	// ChunkSize overrides DefaultChunkSize when non-zero.
	ChunkSize int
}

type slotResult struct {
	header   bool
	version  uint32
	preamble *vblock.FirmwarePreamble
	dataKey  *crypto.PublicKey
}

// Select verifies the slots in priority order and returns the first which is
// fully valid. On success the kernel subkey of the chosen slot is published
// into st and the firmware floor may advance. If neither slot is usable it
// returns session.ErrNoCandidate and leaves a diagnostic recovery reason in
// st.Recovery.
func (s *Selector) Select(ctx context.Context, st *session.State, p Params) (Result, error) {
	order := []session.Slot{session.SlotA, session.SlotB}
	if tries := p.NV.Get(nvstorage.TryBCount); tries > 0 {
		p.NV.Set(nvstorage.TryBCount, tries-1)
		st.Set(session.FlagFWBTried, true)
		order = []session.Slot{session.SlotB, session.SlotA}
	}
	noRollback := p.GBB != nil && p.GBB.Flags.Has(gbb.FlagDisableFWRollbackCheck)
	floor := st.FirmwareFloor

	res := Result{Slot: session.SlotNone}
	lowest := ^uint32(0)
	for _, slot := range order {
		sr, check := s.checkHeader(st, p, slot, floor, noRollback)
		st.FirmwareChecks[slot] = check
		if !sr.header {
			glog.V(1).Infof("Firmware slot %v rejected: %v", slot, check)
			continue
		}
		if sr.version < lowest {
			lowest = sr.version
		}
		if res.Slot != session.SlotNone {
			// Only needed for the floor.
			continue
		}

		if sr.preamble.UsesRONormal() {
			if !p.SupportsRONormal {
				glog.V(1).Infof("Firmware slot %v wants the RO normal path, which is unsupported", slot)
				st.FirmwareChecks[slot] = session.CheckNoRONormal
				continue
			}
			st.Set(session.FlagUsedROCodePath, true)
		} else {
			check, err := s.verifyBody(ctx, p, slot, sr)
			st.FirmwareChecks[slot] = check
			if err != nil {
				glog.V(1).Infof("Firmware slot %v body rejected: %v", slot, err)
				continue
			}
		}
		st.FirmwareChecks[slot] = session.CheckValid
		res = Result{Slot: slot, CombinedVersion: sr.version, Preamble: sr.preamble, DataKey: sr.dataKey}
		glog.Infof("Firmware slot %v is valid, version %#08x", slot, sr.version)
		if sr.version == floor {
			break
		}
	}

	if res.Slot == session.SlotNone {
		st.Recovery = st.FirmwareRecoveryReason()
		return res, fmt.Errorf("%w: A=%v B=%v", session.ErrNoCandidate, st.FirmwareChecks[session.SlotA], st.FirmwareChecks[session.SlotB])
	}

	subkey, err := res.Preamble.ParseKernelSubkey()
	if err != nil {
		// The subkey lies inside the verified preamble, so this is a
		// structural fault in a signed block.
		return Result{Slot: session.SlotNone}, fmt.Errorf("slot %v: %w", res.Slot, err)
	}
	st.KernelSubkey = subkey
	st.FirmwareSlot = res.Slot

	if lowest != ^uint32(0) && lowest > st.FirmwareFloor && !noRollback {
		stored := lowest
		if p.Floors != nil {
			if stored, err = p.Floors.AdvanceFirmwareFloor(lowest); err != nil {
				return res, fmt.Errorf("failed to advance firmware floor: %w", err)
			}
		}
		st.FirmwareFloor = stored
	}
	return res, nil
}

// checkHeader runs every check up to and including preamble verification.
func (s *Selector) checkHeader(st *session.State, p Params, slot session.Slot, floor uint32, noRollback bool) (slotResult, session.FirmwareCheck) {
	var sr slotResult
	vb := p.VBlocks[slot]
	dev := st.Mode == session.ModeDeveloper
	rec := st.Mode == session.ModeRecovery

	kb, err := vblock.ParseKeyBlock(vb)
	if err != nil {
		glog.V(2).Infof("slot %v: %v", slot, err)
		return sr, session.CheckVerifyKeyBlock
	}
	if !kb.DevFlagOK(dev) {
		return sr, session.CheckDevMismatch
	}
	if !kb.RecFlagOK(rec) {
		return sr, session.CheckRecMismatch
	}
	if err := kb.VerifySignature(p.RootKey); err != nil {
		glog.V(2).Infof("slot %v: %v", slot, err)
		return sr, session.CheckVerifyKeyBlock
	}

	keyVersion := kb.DataKey.Version
	if keyVersion > vblock.MaxVersion {
		return sr, session.CheckKeyRollback
	}
	if !noRollback && uint32(keyVersion) < floor>>16 {
		return sr, session.CheckKeyRollback
	}

	dataKey, err := kb.ParseDataKey()
	if err != nil {
		glog.V(2).Infof("slot %v: %v", slot, err)
		return sr, session.CheckDataKeyParse
	}
	pre, err := vblock.ParseFirmwarePreamble(vb[kb.Size:], dataKey)
	if err != nil {
		glog.V(2).Infof("slot %v: %v", slot, err)
		return sr, session.CheckVerifyPreamble
	}

	version := vblock.CombinedVersion(keyVersion, pre.FirmwareVersion)
	if !noRollback && version < floor {
		glog.V(2).Infof("slot %v: version %#08x below floor %#08x", slot, version, floor)
		return sr, session.CheckFWRollback
	}
	return slotResult{header: true, version: version, preamble: pre, dataKey: dataKey}, session.CheckHeaderValid
}

var errWrongSize = errors.New("body size mismatch")

// verifyBody streams the body through the hash of the data key's algorithm.
func (s *Selector) verifyBody(ctx context.Context, p Params, slot session.Slot, sr slotResult) (session.FirmwareCheck, error) {
	if p.Bodies == nil {
		return session.CheckGetFWBody, errors.New("no body source")
	}
	r, err := p.Bodies.Body(ctx, slot)
	if err != nil {
		return session.CheckGetFWBody, err
	}
	chunk := s.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	want := sr.preamble.BodySize()
	h := crypto.NewHash(sr.dataKey.Algorithm)
	buf := make([]byte, chunk)
	var got uint64
	for got < want {
		n := uint64(chunk)
		if rem := want - got; rem < n {
			n = rem
		}
		m, err := io.ReadFull(r, buf[:n])
		h.Write(buf[:m])
		got += uint64(m)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return session.CheckGetFWBody, fmt.Errorf("reading body: %w", err)
		}
	}
	if got != want {
		return session.CheckHashWrongSize, fmt.Errorf("%w: hashed %d bytes, preamble declares %d", errWrongSize, got, want)
	}
	if err := sr.preamble.VerifyBodyDigest(sr.dataKey, h.Sum(nil)); err != nil {
		return session.CheckVerifyBody, err
	}
	return session.CheckValid, nil
}
