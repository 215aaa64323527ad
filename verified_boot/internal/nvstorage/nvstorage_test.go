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

package nvstorage_test

import (
	"context"
	"testing"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/nvstorage"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/persistence"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/persistence/inmemory"
	"github.com/google/go-cmp/cmp"
)

func TestDefaults(t *testing.T) {
	c := nvstorage.New()
	if !c.Changed() {
		t.Error("Changed(): got false, want true")
	}
	for _, f := range []nvstorage.Field{nvstorage.FirmwareSettingsReset, nvstorage.KernelSettingsReset} {
		if got := c.Get(f); got != 1 {
			t.Errorf("Get(%v): got %d, want 1", f, got)
		}
	}
	if !nvstorage.Valid(c.Bytes()) {
		t.Error("Valid(New().Bytes()): got false")
	}
}

func TestLoadInvalid(t *testing.T) {
	good := nvstorage.New()
	good.Set(nvstorage.RecoveryRequest, 0x42)
	raw := good.Bytes()

	for _, test := range []struct {
		desc      string
		raw       []byte
		wantReset bool
	}{
		{desc: "good", raw: raw},
		{desc: "short", raw: raw[:15], wantReset: true},
		{desc: "nil", wantReset: true},
		{
			desc: "bad crc",
			raw: func() []byte {
				b := append([]byte{}, raw...)
				b[15] ^= 1
				return b
			}(),
			wantReset: true,
		}, {
			desc: "bad signature",
			raw: func() []byte {
				b := append([]byte{}, raw...)
				b[0] = 0x80
				return b
			}(),
			wantReset: true,
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			c := nvstorage.Load(test.raw)
			if got := c.Reset(); got != test.wantReset {
				t.Fatalf("Reset(): got %v, want %v", got, test.wantReset)
			}
			wantRec := uint32(0x42)
			if test.wantReset {
				wantRec = 0
				if got := c.Get(nvstorage.KernelSettingsReset); got != 1 {
					t.Errorf("KernelSettingsReset: got %d, want 1", got)
				}
			}
			if got := c.Get(nvstorage.RecoveryRequest); got != wantRec {
				t.Errorf("RecoveryRequest: got %#x, want %#x", got, wantRec)
			}
		})
	}
}

func TestSetGet(t *testing.T) {
	for _, test := range []struct {
		field nvstorage.Field
		set   uint32
		want  uint32
	}{
		{field: nvstorage.TryBCount, set: 3, want: 3},
		{field: nvstorage.TryBCount, set: 99, want: 15},
		{field: nvstorage.DevDefaultBoot, set: nvstorage.DefaultBootLegacy, want: nvstorage.DefaultBootLegacy},
		{field: nvstorage.DevDefaultBoot, set: 3, want: nvstorage.DefaultBootDisk},
		{field: nvstorage.DevBootUSB, set: 1, want: 1},
		{field: nvstorage.BatteryCutoffRequest, set: 7, want: 1},
		{field: nvstorage.RecoverySubcode, set: 0xab, want: 0xab},
		{field: nvstorage.KernelField, set: 0xdeadbeef, want: 0xdeadbeef},
	} {
		t.Run(test.field.String(), func(t *testing.T) {
			c := nvstorage.Load(nvstorage.New().Bytes())
			c.Set(test.field, test.set)
			if got := c.Get(test.field); got != test.want {
				t.Errorf("Get(): got %#x, want %#x", got, test.want)
			}
			// Neighbouring fields are untouched.
			for _, f := range nvstorage.Fields() {
				if f == test.field || f == nvstorage.FirmwareSettingsReset || f == nvstorage.KernelSettingsReset {
					continue
				}
				if got := c.Get(f); got != 0 {
					t.Errorf("Get(%v): got %#x, want 0", f, got)
				}
			}
			if !nvstorage.Valid(c.Bytes()) {
				t.Error("record no longer valid")
			}
		})
	}
}

func TestChangedOnlyOnDifference(t *testing.T) {
	c := nvstorage.Load(nvstorage.New().Bytes())
	if c.Changed() {
		t.Fatal("Changed() after Load: got true")
	}
	c.Set(nvstorage.DevBootUSB, 0)
	if c.Changed() {
		t.Error("Changed() after no-op Set: got true")
	}
	c.SetBool(nvstorage.DevBootUSB, true)
	if !c.Changed() {
		t.Error("Changed() after Set: got false")
	}
}

func TestFieldByName(t *testing.T) {
	for _, f := range nvstorage.Fields() {
		got, ok := nvstorage.FieldByName(f.String())
		if !ok || got != f {
			t.Errorf("FieldByName(%q): got (%v, %v)", f.String(), got, ok)
		}
	}
	if _, ok := nvstorage.FieldByName("nope"); ok {
		t.Error("FieldByName(nope): got ok")
	}
}

func TestCommitAndBackupRestore(t *testing.T) {
	ctx := context.Background()
	p := inmemory.NewPersistence()
	if err := p.Init(); err != nil {
		t.Fatalf("Init(): %v", err)
	}
	nv := nvstorage.NewSpaceBackend(p, persistence.SpaceNVRAM)
	backup := nvstorage.NewSpaceBackend(p, persistence.SpaceNVRAMBackup)

	c, err := nvstorage.Open(ctx, nv)
	if err != nil {
		t.Fatalf("Open(): %v", err)
	}
	if !c.Reset() {
		t.Error("Open(empty): want Reset")
	}
	if ok, err := c.RestoreBackup(ctx, backup); ok || err != nil {
		t.Errorf("RestoreBackup(none): got (%v, %v), want (false, nil)", ok, err)
	}
	c.Set(nvstorage.KernelField, 0x1234)
	c.Set(nvstorage.LocalizationIndex, 3)
	c.SetBool(nvstorage.DevBootUSB, true)
	c.Set(nvstorage.DevDefaultBoot, nvstorage.DefaultBootUSB)
	c.Set(nvstorage.TryBCount, 2)
	c.RequestRecovery(nvstorage.RecoveryRWNoOS)
	if err := c.SaveBackup(ctx, backup); err != nil {
		t.Fatalf("SaveBackup(): %v", err)
	}
	if err := c.Commit(ctx, nv); err != nil {
		t.Fatalf("Commit(): %v", err)
	}
	if c.Changed() {
		t.Error("Changed() after Commit: got true")
	}

	// Corrupt the primary copy.
	raw, err := nv.Read(ctx)
	if err != nil {
		t.Fatalf("Read(): %v", err)
	}
	raw[2] ^= 0xff
	if err := nv.Write(ctx, raw); err != nil {
		t.Fatalf("Write(): %v", err)
	}

	c, err = nvstorage.Open(ctx, nv)
	if err != nil {
		t.Fatalf("Open(): %v", err)
	}
	if !c.Reset() {
		t.Fatal("Open(corrupt): want Reset")
	}
	if ok, err := c.RestoreBackup(ctx, backup); !ok || err != nil {
		t.Fatalf("RestoreBackup(): got (%v, %v), want (true, nil)", ok, err)
	}
	got := c.Snapshot()
	want := nvstorage.New().Snapshot()
	want["kernel"] = 0x1234
	want["loc_idx"] = 3
	want["dev_boot_usb"] = 1
	want["dev_default_boot"] = nvstorage.DefaultBootUSB
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("restored record diff (-got +want):\n%s", diff)
	}
}

func TestRestoreFromInvalid(t *testing.T) {
	c := nvstorage.New()
	if err := c.RestoreFrom(make([]byte, nvstorage.BlockSize)); err == nil {
		t.Error("RestoreFrom(zeroes): want error")
	}
}

func TestRecoveryReasonString(t *testing.T) {
	for _, test := range []struct {
		r    nvstorage.RecoveryReason
		want string
	}{
		{r: nvstorage.RecoveryRWNoOS, want: "rw_no_os"},
		{r: nvstorage.RecoveryROInvalidRWCheckMin + 5, want: "ro_invalid_rw_check_5"},
		{r: 0x30, want: "RecoveryReason(0x30)"},
	} {
		if got := test.r.String(); got != test.want {
			t.Errorf("%#x.String(): got %q, want %q", uint8(test.r), got, test.want)
		}
	}
}
