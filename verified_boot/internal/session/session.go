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

// Package session holds the state shared by the stages of a single boot
// attempt, and the diagnostics they leave behind.
package session

import (
	"errors"
	"fmt"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/crypto"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/nvstorage"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/ringbuf"
)

// Errors which end a boot attempt. Each maps to a recovery reason.
var (
	ErrNoCandidate        = errors.New("no valid firmware slot")
	ErrNoKernelFound      = errors.New("no kernel partitions found")
	ErrInvalidKernelFound = errors.New("no valid kernel found")
	ErrNoDiskFound        = errors.New("no disk found")
	ErrShutdownRequested  = errors.New("shutdown requested")
)

// Capacity of the kernel diagnostics.
const (
	MaxKernelCalls    = 4
	MaxKernelPartsPer = 16
)

// Mode is the boot-mode policy of an attempt.
type Mode int

const (
	ModeNormal Mode = iota
	ModeDeveloper
	ModeRecovery
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeDeveloper:
		return "developer"
	case ModeRecovery:
		return "recovery"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Flags describe the attempt.
type Flags uint32

const (
	FlagFWBTried Flags = 1 << iota
	FlagDevSwitchOn
	FlagRecSwitchOn
	FlagRecSwitchVirtual
	FlagWriteProtect
	FlagHonorVirtDevSwitch
	FlagECSoftwareSync
	FlagECSlowUpdate
	FlagUsedROCodePath
	FlagKernelKeyVerified
	FlagNoFailBoot
	FlagBootRecSwitchPhysical
)

// Slot identifies a firmware slot.
type Slot int

const (
	SlotNone Slot = -1
	SlotA    Slot = 0
	SlotB    Slot = 1
)

func (s Slot) String() string {
	switch s {
	case SlotA:
		return "A"
	case SlotB:
		return "B"
	}
	return "none"
}

// FirmwareCheck is how far a firmware slot got through verification.
type FirmwareCheck uint8

const (
	CheckNotDone FirmwareCheck = iota
	CheckDevMismatch
	CheckRecMismatch
	CheckVerifyKeyBlock
	CheckKeyRollback
	CheckDataKeyParse
	CheckVerifyPreamble
	CheckFWRollback
	CheckHeaderValid
	CheckGetFWBody
	CheckHashWrongSize
	CheckVerifyBody
	CheckValid
	CheckNoRONormal
)

var firmwareCheckNames = [...]string{
	"not_done", "dev_mismatch", "rec_mismatch", "verify_keyblock", "key_rollback",
	"data_key_parse", "verify_preamble", "fw_rollback", "header_valid", "get_fw_body",
	"hash_wrong_size", "verify_body", "valid", "no_ro_normal",
}

func (c FirmwareCheck) String() string {
	if int(c) < len(firmwareCheckNames) {
		return firmwareCheckNames[c]
	}
	return fmt.Sprintf("FirmwareCheck(%d)", int(c))
}

// PartitionCheck is how far a kernel partition got through verification.
type PartitionCheck uint8

const (
	PartCheckNotDone PartitionCheck = iota
	PartCheckTooSmall
	PartCheckReadStart
	PartCheckKeyBlockSig
	PartCheckKeyBlockHash
	PartCheckSelfSigned
	PartCheckDevMismatch
	PartCheckRecMismatch
	PartCheckKeyRollback
	PartCheckDevKeyHash
	PartCheckDataKeyParse
	PartCheckVerifyPreamble
	PartCheckKernelRollback
	PartCheckPreambleValid
	PartCheckBodyOffset
	PartCheckBodyExceedsMem
	PartCheckBodyExceedsPart
	PartCheckReadData
	PartCheckVerifyData
	PartCheckKernelGood
)

var partitionCheckNames = [...]string{
	"not_done", "too_small", "read_start", "keyblock_sig", "keyblock_hash", "self_signed",
	"dev_mismatch", "rec_mismatch", "key_rollback", "dev_key_hash", "data_key_parse",
	"verify_preamble", "kernel_rollback", "preamble_valid", "body_offset",
	"body_exceeds_mem", "body_exceeds_part", "read_data", "verify_data", "kernel_good",
}

func (c PartitionCheck) String() string {
	if int(c) < len(partitionCheckNames) {
		return partitionCheckNames[c]
	}
	return fmt.Sprintf("PartitionCheck(%d)", int(c))
}

// PartitionFlags record properties of a kernel partition.
type PartitionFlags uint8

const (
	PartKeyBlockValid PartitionFlags = 1 << iota
	PartKeyBlockSelfSigned
)

// Partition is the diagnostic record of one kernel partition.
type Partition struct {
	Index           int
	Start           uint64
	Size            uint64
	CombinedVersion uint32
	Check           PartitionCheck
	Flags           PartitionFlags
}

// CallResult is the outcome of one kernel load call.
type CallResult uint8

const (
	CallNotDone CallResult = iota
	CallInvalidParams
	CallNoPartitions
	CallInvalidPartitions
	CallGoodPartition
	CallTableError
)

func (c CallResult) String() string {
	switch c {
	case CallNotDone:
		return "not_done"
	case CallInvalidParams:
		return "invalid_params"
	case CallNoPartitions:
		return "no_partitions"
	case CallInvalidPartitions:
		return "invalid_partitions"
	case CallGoodPartition:
		return "good_partition"
	case CallTableError:
		return "table_error"
	}
	return fmt.Sprintf("CallResult(%d)", int(c))
}

// KernelCall is the diagnostic record of one kernel load over one disk.
type KernelCall struct {
	Disk         string
	Mode         Mode
	BytesPerLBA  uint64
	LBACount     uint64
	Result       CallResult
	Chosen       int
	TestedParts  int
	Partitions   *ringbuf.Buffer[Partition]
	FloorAtStart uint32
}

// AddPartition appends a partition record and returns it for filling in.
func (c *KernelCall) AddPartition(p Partition) *Partition {
	c.TestedParts++
	return c.Partitions.Push(p)
}

// State is everything the stages of one attempt share.
type State struct {
	Mode  Mode
	Flags Flags

	Recovery nvstorage.RecoveryReason

	FirmwareSlot   Slot
	FirmwareChecks [2]FirmwareCheck

	// FirmwareFloorStart and KernelFloorStart are the floors read at the
	// start of the attempt; FirmwareFloor and KernelFloor are the floors it
	// wants to store.
	FirmwareFloorStart uint32
	FirmwareFloor      uint32
	KernelFloorStart   uint32
	KernelFloor        uint32

	// KernelSubkey is published by firmware selection for kernel selection.
	KernelSubkey *crypto.PublicKey

	KernelCalls *ringbuf.Buffer[KernelCall]
}

// New returns the state for a fresh attempt.
func New() *State {
	return &State{
		FirmwareSlot: SlotNone,
		KernelCalls:  ringbuf.New[KernelCall](MaxKernelCalls),
	}
}

// Has reports whether all of f are set.
func (s *State) Has(f Flags) bool { return s.Flags&f == f }

// Set sets or clears f.
func (s *State) Set(f Flags, on bool) {
	if on {
		s.Flags |= f
	} else {
		s.Flags &^= f
	}
}

// NewKernelCall starts a diagnostic record for a kernel load.
func (s *State) NewKernelCall(disk string, bytesPerLBA, lbaCount uint64) *KernelCall {
	return s.KernelCalls.Push(KernelCall{
		Disk:         disk,
		Mode:         s.Mode,
		BytesPerLBA:  bytesPerLBA,
		LBACount:     lbaCount,
		Chosen:       -1,
		Partitions:   ringbuf.New[Partition](MaxKernelPartsPer),
		FloorAtStart: s.KernelFloor,
	})
}

// FirmwareRecoveryReason reports how far the better of the two slots got.
func (s *State) FirmwareRecoveryReason() nvstorage.RecoveryReason {
	best := s.FirmwareChecks[0]
	if s.FirmwareChecks[1] > best {
		best = s.FirmwareChecks[1]
	}
	r := int(nvstorage.RecoveryROInvalidRWCheckMin) + int(best)
	if r > int(nvstorage.RecoveryROInvalidRWCheckMax) {
		return nvstorage.RecoveryROInvalidRWCheckMax
	}
	return nvstorage.RecoveryReason(r)
}
