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

package api

const (
	// HTTPStatus is the path of the URL which returns the system Status as
	// JSON.
	HTTPStatus = "/crossystem/v0/status"
	// HTTPNVField is the path of the URL of one NV field, by name. GET
	// returns its decimal value, PUT stores a new one.
	HTTPNVField = "/crossystem/v0/nv/%s"
	// HTTPLastBoot is the path of the URL which returns the signed boot
	// measurement.
	HTTPLastBoot = "/crossystem/v0/lastboot"
	// HTTPBootLogCheckpoint is the path of the URL which returns the latest
	// signed checkpoint of the boot log.
	HTTPBootLogCheckpoint = "/crossystem/v0/bootlog/checkpoint"
	// HTTPBootLogEntry is the path of the URL which returns one boot log
	// entry, by index, as a BootLogEntry. The tree size to prove inclusion against is
	// passed as the "size" query parameter and defaults to the log size.
	HTTPBootLogEntry = "/crossystem/v0/bootlog/entry/%s"
)

// Status is the system state reported by crossystem.
type Status struct {
	// NV holds every field of the NV record by name.
	NV map[string]uint32 `json:"nv"`
	// FirmwareFloor and KernelFloor are the anti-rollback floors.
	FirmwareFloor uint32 `json:"firmware_floor"`
	KernelFloor   uint32 `json:"kernel_floor"`
	FirmwareFlags uint8  `json:"firmware_flags"`
	// LastBoot is the signed measurement of the most recent boot, if any.
	LastBoot string `json:"last_boot,omitempty"`
	// BootLogSize and BootLogRoot describe the boot log tree.
	BootLogSize uint64 `json:"boot_log_size"`
	BootLogRoot []byte `json:"boot_log_root,omitempty"`
}

// BootLogEntry is one boot record with its inclusion proof.
type BootLogEntry struct {
	Index  uint64   `json:"index"`
	Size   uint64   `json:"size"`
	Record []byte   `json:"record"`
	Proof  [][]byte `json:"proof"`
}

// BootSummary is printed by the boot emulator after one attempt.
type BootSummary struct {
	Disposition string `json:"disposition"`
	Mode        string `json:"mode"`
	Firmware    string `json:"firmware,omitempty"`
	Disk        string `json:"disk,omitempty"`
	Partition   int    `json:"partition,omitempty"`
	Legacy      bool   `json:"legacy,omitempty"`
	Recovery    string `json:"recovery,omitempty"`
	ECOutcome   string `json:"ec_outcome,omitempty"`
	Error       string `json:"error,omitempty"`
	// Screens lists what the display showed, in order.
	Screens []string `json:"screens,omitempty"`
	// BootLogSize is the size of the boot log after this attempt's record
	// was added.
	BootLogSize uint64 `json:"boot_log_size,omitempty"`
}
