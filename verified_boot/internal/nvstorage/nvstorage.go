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

// Package nvstorage holds the small checksummed record of boot decisions
// which survives across boots: recovery requests, developer-boot policy and
// one-shot requests.
package nvstorage

import (
	"fmt"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/crc8"
	"github.com/golang/glog"
)

// BlockSize is the size of the record, including the trailing CRC.
const BlockSize = 16

const (
	offHeader      = 0
	offBoot        = 1
	offRecovery    = 2
	offLocalize    = 3
	offDev         = 4
	offTPM         = 5
	offRecoverySub = 6
	offMisc        = 8
	offKernel      = 11
	offCRC         = 15

	headerSignature     = 0x40
	headerSignatureMask = 0xc0
)

// Field names one value in the record.
type Field int

const (
	FirmwareSettingsReset Field = iota
	KernelSettingsReset
	TryBCount
	BackupRequest
	OpromNeeded
	DisableDevRequest
	DebugResetMode
	RecoveryRequest
	LocalizationIndex
	DevBootUSB
	DevBootSignedOnly
	DevBootLegacy
	DevBootFastboot
	DevDefaultBoot
	ClearOwnerRequest
	ClearOwnerDone
	TPMRebooted
	RecoverySubcode
	TryROSync
	BatteryCutoffRequest
	KernelField
	numFields
)

var fieldNames = [numFields]string{
	"fw_settings_reset", "kernel_settings_reset", "try_b_count", "backup_nvram_request",
	"oprom_needed", "disable_dev_request", "debug_reset_mode", "recovery_request",
	"loc_idx", "dev_boot_usb", "dev_boot_signed_only", "dev_boot_legacy",
	"dev_boot_fastboot_full_cap", "dev_default_boot", "clear_tpm_owner_request",
	"clear_tpm_owner_done", "tpm_rebooted", "recovery_subcode", "try_ro_sync",
	"battery_cutoff_request", "kernel",
}

func (f Field) String() string {
	if f < 0 || f >= numFields {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fieldNames[f]
}

// FieldByName looks a field up by its String form.
func FieldByName(name string) (Field, bool) {
	for i, n := range fieldNames {
		if n == name {
			return Field(i), true
		}
	}
	return 0, false
}

// Fields returns every field in declaration order.
func Fields() []Field {
	out := make([]Field, numFields)
	for i := range out {
		out[i] = Field(i)
	}
	return out
}

type location struct {
	off   int
	mask  byte
	shift uint
}

var layout = map[Field]location{
	FirmwareSettingsReset: {offHeader, 0x20, 5},
	KernelSettingsReset:   {offHeader, 0x10, 4},
	TryBCount:             {offBoot, 0x0f, 0},
	BackupRequest:         {offBoot, 0x10, 4},
	OpromNeeded:           {offBoot, 0x20, 5},
	DisableDevRequest:     {offBoot, 0x40, 6},
	DebugResetMode:        {offBoot, 0x80, 7},
	RecoveryRequest:       {offRecovery, 0xff, 0},
	LocalizationIndex:     {offLocalize, 0xff, 0},
	DevBootUSB:            {offDev, 0x01, 0},
	DevBootSignedOnly:     {offDev, 0x02, 1},
	DevBootLegacy:         {offDev, 0x04, 2},
	DevBootFastboot:       {offDev, 0x08, 3},
	DevDefaultBoot:        {offDev, 0x30, 4},
	ClearOwnerRequest:     {offTPM, 0x01, 0},
	ClearOwnerDone:        {offTPM, 0x02, 1},
	TPMRebooted:           {offTPM, 0x04, 2},
	RecoverySubcode:       {offRecoverySub, 0xff, 0},
	TryROSync:             {offMisc, 0x04, 2},
	BatteryCutoffRequest:  {offMisc, 0x08, 3},
}

// Values of DevDefaultBoot.
const (
	DefaultBootDisk   = 0
	DefaultBootUSB    = 1
	DefaultBootLegacy = 2
)

// Context is an in-memory copy of the record.
type Context struct {
	raw     [BlockSize]byte
	changed bool
	reset   bool
}

// New returns a context holding the default record. The settings-reset bits
// are set, and the context is marked changed so that it will be written.
func New() *Context {
	c := &Context{}
	c.setDefaults()
	return c
}

func (c *Context) setDefaults() {
	c.raw = [BlockSize]byte{}
	c.raw[offHeader] = headerSignature | 0x20 | 0x10
	c.changed = true
}

// Load decodes raw. An invalid signature, a bad CRC or a short buffer
// yields the default record; Reset then reports true.
func Load(raw []byte) *Context {
	c := &Context{}
	if len(raw) < BlockSize {
		glog.Warningf("NV record is %d bytes, want %d; resetting", len(raw), BlockSize)
		c.setDefaults()
		c.reset = true
		return c
	}
	copy(c.raw[:], raw)
	if c.raw[offHeader]&headerSignatureMask != headerSignature || crc8.Checksum(c.raw[:offCRC]) != c.raw[offCRC] {
		glog.Warningf("NV record failed validation; resetting")
		c.setDefaults()
		c.reset = true
	}
	return c
}

// Valid reports whether raw holds a well-formed record.
func Valid(raw []byte) bool {
	return len(raw) >= BlockSize &&
		raw[offHeader]&headerSignatureMask == headerSignature &&
		crc8.Checksum(raw[:offCRC]) == raw[offCRC]
}

// Reset reports whether Load discarded an invalid record.
func (c *Context) Reset() bool { return c.reset }

// Changed reports whether the record differs from what was loaded or last
// committed.
func (c *Context) Changed() bool { return c.changed }

// Get returns the value of f.
func (c *Context) Get(f Field) uint32 {
	if f == KernelField {
		return uint32(c.raw[offKernel]) | uint32(c.raw[offKernel+1])<<8 |
			uint32(c.raw[offKernel+2])<<16 | uint32(c.raw[offKernel+3])<<24
	}
	l, ok := layout[f]
	if !ok {
		return 0
	}
	return uint32((c.raw[l.off] & l.mask) >> l.shift)
}

// GetBool reports whether f is non-zero.
func (c *Context) GetBool(f Field) bool { return c.Get(f) != 0 }

// Set stores v into f, truncating it to the width of the field. Values out of
// range for a field are clamped as the record defines: a try-B count above 15
// saturates and an unknown default-boot target selects the disk.
func (c *Context) Set(f Field, v uint32) {
	if f == KernelField {
		var b [4]byte
		for i := range b {
			b[i] = byte(v >> (8 * i))
		}
		c.setBytes(offKernel, b[:])
		return
	}
	l, ok := layout[f]
	if !ok {
		glog.Errorf("NV Set(%v): unknown field", f)
		return
	}
	max := uint32(l.mask >> l.shift)
	switch {
	case f == TryBCount && v > max:
		v = max
	case f == DevDefaultBoot && v > DefaultBootLegacy:
		v = DefaultBootDisk
	case v > max:
		v = max
	}
	b := c.raw[l.off]&^l.mask | byte(v<<l.shift)&l.mask
	c.setBytes(l.off, []byte{b})
}

// SetBool stores 1 or 0 into f.
func (c *Context) SetBool(f Field, v bool) {
	if v {
		c.Set(f, 1)
	} else {
		c.Set(f, 0)
	}
}

func (c *Context) setBytes(off int, b []byte) {
	for i, v := range b {
		if c.raw[off+i] != v {
			c.raw[off+i] = v
			c.changed = true
		}
	}
}

// Bytes returns the encoded record with a fresh CRC.
func (c *Context) Bytes() []byte {
	c.raw[offCRC] = crc8.Checksum(c.raw[:offCRC])
	out := c.raw
	return out[:]
}

// Snapshot returns every field and its value.
func (c *Context) Snapshot() map[string]uint32 {
	out := make(map[string]uint32, numFields)
	for _, f := range Fields() {
		out[f.String()] = c.Get(f)
	}
	return out
}

// backupFields are the fields worth restoring after the record is lost.
var backupFields = []Field{
	KernelField,
	LocalizationIndex,
	DevBootUSB,
	DevBootLegacy,
	DevBootSignedOnly,
	DevBootFastboot,
	DevDefaultBoot,
}

// Backup returns a record carrying only the curated backup fields.
func (c *Context) Backup() []byte {
	b := New()
	for _, f := range backupFields {
		b.Set(f, c.Get(f))
	}
	return b.Bytes()
}

// RestoreFrom copies the curated fields out of a backup record.
func (c *Context) RestoreFrom(backup []byte) error {
	if !Valid(backup) {
		return fmt.Errorf("backup NV record is invalid")
	}
	b := Load(backup)
	for _, f := range backupFields {
		c.Set(f, b.Get(f))
	}
	return nil
}
