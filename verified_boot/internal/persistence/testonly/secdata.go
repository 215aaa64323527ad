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
	"errors"
	"testing"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/secdata"
	"github.com/google/go-cmp/cmp"
)

func newStore(t *testing.T, f Factory) (*secdata.Store, func() error) {
	t.Helper()
	p, close := f()
	if err := p.Init(); err != nil {
		t.Fatalf("Init(): %v", err)
	}
	return secdata.NewStore(p), close
}

// TestFloorNeverRegresses checks that both floors only ever move forward.
func TestFloorNeverRegresses(t *testing.T, f Factory) {
	s, close := newStore(t, f)
	defer close()

	for _, test := range []struct {
		desc    string
		advance func(uint32) (uint32, error)
		read    func() (uint32, error)
	}{
		{
			desc:    "firmware",
			advance: s.AdvanceFirmwareFloor,
			read: func() (uint32, error) {
				fw, err := s.Firmware()
				if err != nil {
					return 0, err
				}
				return fw.Versions, nil
			},
		}, {
			desc:    "kernel",
			advance: s.AdvanceKernelFloor,
			read: func() (uint32, error) {
				k, err := s.Kernel()
				if err != nil {
					return 0, err
				}
				return k.Versions, nil
			},
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			if got, err := test.read(); err != nil || got != 0 {
				t.Fatalf("initial floor: got (%#x, %v), want (0, nil)", got, err)
			}
			var want uint32
			for _, v := range []uint32{0x00010005, 0x00010003, 0x00020001, 0x00010009, 0x00020001} {
				if v > want {
					want = v
				}
				got, err := test.advance(v)
				if err != nil {
					t.Fatalf("advance(%#x): %v", v, err)
				}
				if got != want {
					t.Errorf("advance(%#x): got floor %#x, want %#x", v, got, want)
				}
				if got, err := test.read(); err != nil || got != want {
					t.Errorf("read after advance(%#x): got (%#x, %v), want %#x", v, got, err, want)
				}
			}
		})
	}
}

// TestLock checks that locked spaces refuse writes but can still be read.
func TestLock(t *testing.T, f Factory) {
	s, close := newStore(t, f)
	defer close()

	if _, err := s.AdvanceKernelFloor(7); err != nil {
		t.Fatalf("AdvanceKernelFloor(): %v", err)
	}
	s.LockKernel()
	if _, err := s.AdvanceKernelFloor(9); !errors.Is(err, secdata.ErrLocked) {
		t.Errorf("AdvanceKernelFloor() after lock: got %v, want ErrLocked", err)
	}
	if k, err := s.Kernel(); err != nil || k.Versions != 7 {
		t.Errorf("Kernel(): got (%+v, %v), want floor 7", k, err)
	}
	// The firmware space is unaffected.
	if _, err := s.AdvanceFirmwareFloor(3); err != nil {
		t.Errorf("AdvanceFirmwareFloor(): %v", err)
	}
}

// TestFlagsAndFWMP checks the firmware flags and the management parameters.
func TestFlagsAndFWMP(t *testing.T, f Factory) {
	s, close := newStore(t, f)
	defer close()

	if fwmp, err := s.FWMP(); err != nil || fwmp != nil {
		t.Fatalf("FWMP(): got (%+v, %v), want (nil, nil)", fwmp, err)
	}
	want := &secdata.FWMP{Flags: secdata.FWMPDevEnableUSB | secdata.FWMPDevUseKeyHash}
	want.DevKeyHash[0] = 0xaa
	if err := s.SetFWMP(want); err != nil {
		t.Fatalf("SetFWMP(): %v", err)
	}
	got, err := s.FWMP()
	if err != nil {
		t.Fatalf("FWMP(): %v", err)
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("FWMP() diff (-got +want):\n%s", diff)
	}

	if _, err := s.AdvanceFirmwareFloor(0x00010001); err != nil {
		t.Fatalf("AdvanceFirmwareFloor(): %v", err)
	}
	flags := secdata.FlagLastBootDeveloper | secdata.FlagVirtualDevMode
	if err := s.SetFirmwareFlags(flags); err != nil {
		t.Fatalf("SetFirmwareFlags(): %v", err)
	}
	fw, err := s.Firmware()
	if err != nil {
		t.Fatalf("Firmware(): %v", err)
	}
	if diff := cmp.Diff(fw, &secdata.Firmware{Flags: flags, Versions: 0x00010001}); diff != "" {
		t.Errorf("Firmware() diff (-got +want):\n%s", diff)
	}
}
