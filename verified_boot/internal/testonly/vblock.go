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

package testonly

import (
	"bytes"
	"testing"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/crypto"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/vblock"
)

// Key block flag sets commonly used in tests.
const (
	FirmwareFlags       = vblock.FlagDeveloper0 | vblock.FlagDeveloper1 | vblock.FlagRecovery0
	NormalKernelFlags   = vblock.FlagDeveloper0 | vblock.FlagDeveloper1 | vblock.FlagRecovery0
	RecoveryKernelFlags = vblock.FlagDeveloper0 | vblock.FlagDeveloper1 | vblock.FlagRecovery1
	AllFlags            = vblock.FlagDeveloper0 | vblock.FlagDeveloper1 | vblock.FlagRecovery0 | vblock.FlagRecovery1
)

// FirmwareOpts describes one firmware slot.
type FirmwareOpts struct {
	KeyVersion      uint64
	FirmwareVersion uint64
	// KeyBlockFlags defaults to FirmwareFlags.
	KeyBlockFlags uint64
	PreambleFlags uint32
	// Body defaults to a short fixed pattern.
	Body []byte
	// Signer signs the key block and defaults to RootKey.
	Signer *Key
	// KernelSubkeyVersion is published in the preamble.
	KernelSubkeyVersion uint64
}

// BuildFirmware returns the vblock (key block followed by preamble) and the
// body for a firmware slot.
func BuildFirmware(t testing.TB, o FirmwareOpts) (vb, body []byte) {
	t.Helper()
	if o.KeyBlockFlags == 0 {
		o.KeyBlockFlags = FirmwareFlags
	}
	body = o.Body
	if body == nil {
		body = bytes.Repeat([]byte("firmware"), 512)
	}
	signer := RootKey()
	if o.Signer != nil {
		signer = *o.Signer
	}
	data := FirmwareDataKey()
	kb, err := vblock.BuildKeyBlock(data.Packed(t, o.KeyVersion), o.KeyBlockFlags, signer.Priv, signer.Alg)
	if err != nil {
		t.Fatalf("BuildKeyBlock(): %v", err)
	}
	bodySig, err := crypto.Sign(data.Priv, data.Alg, body)
	if err != nil {
		t.Fatalf("Sign(): %v", err)
	}
	pre, err := vblock.BuildFirmwarePreamble(vblock.FirmwarePreambleParams{
		FirmwareVersion: o.FirmwareVersion,
		KernelSubkey:    KernelSubkey().Packed(t, o.KernelSubkeyVersion),
		BodySignature:   bodySig,
		BodySize:        uint64(len(body)),
		Flags:           o.PreambleFlags,
		MinorVersion:    1,
	}, data.Priv, data.Alg)
	if err != nil {
		t.Fatalf("BuildFirmwarePreamble(): %v", err)
	}
	return append(kb, pre...), body
}

// KernelOpts describes one kernel partition.
type KernelOpts struct {
	KeyVersion    uint64
	KernelVersion uint64
	// KeyBlockFlags defaults to NormalKernelFlags.
	KeyBlockFlags uint64
	// Signer signs the key block and defaults to KernelSubkey.
	Signer *Key
	// SelfSigned leaves the key block signature empty so that only its
	// checksum verifies.
	SelfSigned bool
	// Body defaults to a short fixed pattern.
	Body []byte
}

// Kernel load addresses written into every test preamble.
const (
	BodyLoadAddress   = 0x100000
	BootloaderAddress = 0x100000 + 0x400
	BootloaderSize    = 0x200
)

// BuildKernelPartition returns the contents of a kernel partition: key block,
// preamble, then the body.
func BuildKernelPartition(t testing.TB, o KernelOpts) []byte {
	t.Helper()
	if o.KeyBlockFlags == 0 {
		o.KeyBlockFlags = NormalKernelFlags
	}
	body := o.Body
	if body == nil {
		body = bytes.Repeat([]byte("kernel.."), 1024)
	}
	signer := KernelSubkey()
	if o.Signer != nil {
		signer = *o.Signer
	}
	data := KernelDataKey()
	priv := signer.Priv
	if o.SelfSigned {
		priv = nil
	}
	kb, err := vblock.BuildKeyBlock(data.Packed(t, o.KeyVersion), o.KeyBlockFlags, priv, signer.Alg)
	if err != nil {
		t.Fatalf("BuildKeyBlock(): %v", err)
	}
	bodySig, err := crypto.Sign(data.Priv, data.Alg, body)
	if err != nil {
		t.Fatalf("Sign(): %v", err)
	}
	pre, err := vblock.BuildKernelPreamble(vblock.KernelPreambleParams{
		KernelVersion:     o.KernelVersion,
		BodyLoadAddress:   BodyLoadAddress,
		BootloaderAddress: BootloaderAddress,
		BootloaderSize:    BootloaderSize,
		BodySignature:     bodySig,
		BodySize:          uint64(len(body)),
	}, data.Priv, data.Alg)
	if err != nil {
		t.Fatalf("BuildKernelPreamble(): %v", err)
	}
	out := append(kb, pre...)
	return append(out, body...)
}
