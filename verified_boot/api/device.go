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

// Package api contains the file formats shared by the verified boot tools and
// devices.
package api

// DeviceConfig is the manifest of a dummy device directory. Paths are
// relative to that directory.
type DeviceConfig struct {
	// Image is the full flash image, laid out by an FMAP.
	Image string `json:"image"`
	// Hardware holds the switch and capability settings.
	Hardware Hardware `json:"hardware"`
	// Disks are the candidate boot disks.
	Disks []DiskConfig `json:"disks"`
	// EC is the state file of the embedded controller. Empty means the
	// device has no EC.
	EC string `json:"ec,omitempty"`
	// Keys are pressed, in order, at the given times after power on.
	Keys []KeyPress `json:"keys,omitempty"`
	// ShutdownAfterMillis, if non-zero, closes the lid at that time.
	ShutdownAfterMillis int64 `json:"shutdown_after_ms,omitempty"`
	// RecoveryButton is the sequence of states the recovery button reports
	// when polled. It reads as released once the sequence runs out.
	RecoveryButton []bool `json:"recovery_button,omitempty"`
	// LegacyBootloader is set if an alternate bootloader is installed.
	LegacyBootloader bool `json:"legacy_bootloader,omitempty"`
	// KernelBufferSize bounds the kernel body. Zero means unbounded.
	KernelBufferSize uint64 `json:"kernel_buffer_size,omitempty"`
}

// Hardware mirrors the platform inputs read at power on.
type Hardware struct {
	DevSwitch          bool `json:"dev_switch,omitempty"`
	RecSwitch          bool `json:"rec_switch,omitempty"`
	RecSwitchVirtual   bool `json:"rec_switch_virtual,omitempty"`
	WriteProtect       bool `json:"write_protect,omitempty"`
	HonorVirtDevSwitch bool `json:"honor_virt_dev_switch,omitempty"`
	ECSoftwareSync     bool `json:"ec_software_sync,omitempty"`
	ECSlowUpdate       bool `json:"ec_slow_update,omitempty"`
	SupportsRONormal   bool `json:"supports_ro_normal,omitempty"`
	AllowUSBOnRecToDev bool `json:"allow_usb_on_rec_to_dev,omitempty"`
	PreviousBootFailed bool `json:"previous_boot_failed,omitempty"`
}

// DiskConfig describes one disk image and its partition map.
type DiskConfig struct {
	Name string `json:"name"`
	// Image holds the raw disk contents.
	Image string `json:"image"`
	// Partitions is a JSON PartitionMap file.
	Partitions string `json:"partitions"`
	Removable  bool   `json:"removable,omitempty"`
	// BytesPerLBA defaults to 512.
	BytesPerLBA uint64 `json:"bytes_per_lba,omitempty"`
}

// PartitionMap is the kernel partition table of a disk image.
type PartitionMap struct {
	Partitions []Partition `json:"partitions"`
}

// Partition is one kernel entry with its boot attributes.
type Partition struct {
	// Index is the 1-based partition number.
	Index      int    `json:"index"`
	StartLBA   uint64 `json:"start_lba"`
	SizeLBA    uint64 `json:"size_lba"`
	Priority   int    `json:"priority"`
	Tries      int    `json:"tries"`
	Successful bool   `json:"successful"`
}

// KeyPress is a scripted key.
type KeyPress struct {
	AtMillis int64 `json:"at_ms"`
	// Key is one of the names understood by the dummy keyboard, such as
	// "ctrl+d" or "enter".
	Key string `json:"key"`
	// Untrusted marks a key typed on an external keyboard.
	Untrusted bool `json:"untrusted,omitempty"`
}

// ECState is the persisted state of the dummy embedded controller.
type ECState struct {
	RunningRW bool `json:"running_rw"`
	// RO and RW are the images flashed into the EC.
	RO []byte `json:"ro"`
	RW []byte `json:"rw"`
	// ExpectedRO and ExpectedRW are the images the main firmware carries.
	ExpectedRO []byte `json:"expected_ro"`
	ExpectedRW []byte `json:"expected_rw"`
	// ROProtected must be cleared to update RO; the EC then asks for a
	// reboot to RO.
	ROProtected  bool `json:"ro_protected"`
	RWProtected  bool `json:"rw_protected"`
	JumpDisabled bool `json:"jump_disabled"`
	VbootDone    bool `json:"vboot_done"`
	BatteryCut   bool `json:"battery_cut"`
}
