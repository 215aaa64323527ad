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

package kernelselect_test

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/kernelselect"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/nvstorage"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/secdata"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/session"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/testonly"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/vblock"
	"github.com/google/go-cmp/cmp"
)

func kernel(t *testing.T, o testonly.KernelOpts) []byte {
	t.Helper()
	return testonly.BuildKernelPartition(t, o)
}

func untrusted(t *testing.T, v uint64) []byte {
	k := testonly.UntrustedKey()
	return kernel(t, testonly.KernelOpts{KernelVersion: v, Signer: &k})
}

func newState(t *testing.T, mode session.Mode, floor uint32) *session.State {
	st := session.New()
	st.Mode = mode
	st.KernelFloor = floor
	st.KernelFloorStart = floor
	if mode != session.ModeRecovery {
		st.KernelSubkey = testonly.KernelSubkey().Public(t, 1)
	}
	return st
}

func dataKeyHash(t *testing.T) [32]byte {
	t.Helper()
	kb, err := vblock.ParseKeyBlock(kernel(t, testonly.KernelOpts{}))
	if err != nil {
		t.Fatalf("ParseKeyBlock(): %v", err)
	}
	return sha256.Sum256(kb.DataKeyData())
}

func TestLoad(t *testing.T) {
	recKey := testonly.RecoveryKey()
	for _, test := range []struct {
		desc       string
		mode       session.Mode
		floor      uint32
		parts      func(t *testing.T) [][]byte
		signedOnly bool
		fwmp       func(t *testing.T) *secdata.FWMP
		noFailBoot bool
		bufferSize uint64

		wantErr      error
		wantChosen   int
		wantFloor    uint32
		wantValid    bool
		wantChecks   []session.PartitionCheck
		wantMarks    map[int]kernelselect.Mark
		wantRecovery nvstorage.RecoveryReason
	}{
		{
			desc:  "bad signature, rollback, then good",
			mode:  session.ModeNormal,
			floor: 7,
			parts: func(t *testing.T) [][]byte {
				return [][]byte{
					untrusted(t, 10),
					kernel(t, testonly.KernelOpts{KernelVersion: 5}),
					kernel(t, testonly.KernelOpts{KernelVersion: 9}),
				}
			},
			wantChosen: 3,
			wantFloor:  9,
			wantValid:  true,
			wantChecks: []session.PartitionCheck{session.PartCheckSelfSigned, session.PartCheckKernelRollback, session.PartCheckKernelGood},
			wantMarks:  map[int]kernelselect.Mark{1: kernelselect.MarkBad, 2: kernelselect.MarkBad, 3: kernelselect.MarkTried},
		}, {
			desc:  "version equal to floor stops the scan",
			mode:  session.ModeNormal,
			floor: 7,
			parts: func(t *testing.T) [][]byte {
				return [][]byte{
					kernel(t, testonly.KernelOpts{KernelVersion: 7}),
					kernel(t, testonly.KernelOpts{KernelVersion: 8}),
				}
			},
			wantChosen: 1,
			wantFloor:  7,
			wantValid:  true,
			wantChecks: []session.PartitionCheck{session.PartCheckKernelGood},
			wantMarks:  map[int]kernelselect.Mark{1: kernelselect.MarkTried},
		}, {
			desc:  "later header holds the floor down",
			mode:  session.ModeNormal,
			floor: 7,
			parts: func(t *testing.T) [][]byte {
				return [][]byte{
					kernel(t, testonly.KernelOpts{KernelVersion: 9}),
					kernel(t, testonly.KernelOpts{KernelVersion: 8}),
				}
			},
			wantChosen: 1,
			wantFloor:  8,
			wantValid:  true,
			wantChecks: []session.PartitionCheck{session.PartCheckKernelGood, session.PartCheckPreambleValid},
			wantMarks:  map[int]kernelselect.Mark{1: kernelselect.MarkTried},
		}, {
			desc:       "no fail boot leaves the entry unmarked",
			mode:       session.ModeNormal,
			parts:      func(t *testing.T) [][]byte { return [][]byte{kernel(t, testonly.KernelOpts{KernelVersion: 3})} },
			noFailBoot: true,
			wantChosen: 1,
			wantFloor:  3,
			wantValid:  true,
			wantChecks: []session.PartitionCheck{session.PartCheckKernelGood},
			wantMarks:  map[int]kernelselect.Mark{},
		}, {
			desc:         "nothing usable",
			mode:         session.ModeNormal,
			floor:        7,
			parts:        func(t *testing.T) [][]byte { return [][]byte{untrusted(t, 9)} },
			wantErr:      session.ErrInvalidKernelFound,
			wantFloor:    7,
			wantChecks:   []session.PartitionCheck{session.PartCheckSelfSigned},
			wantMarks:    map[int]kernelselect.Mark{1: kernelselect.MarkBad},
			wantRecovery: nvstorage.RecoveryRWInvalidOS,
		}, {
			desc:         "no partitions",
			mode:         session.ModeNormal,
			floor:        7,
			parts:        func(t *testing.T) [][]byte { return nil },
			wantErr:      session.ErrNoKernelFound,
			wantFloor:    7,
			wantMarks:    map[int]kernelselect.Mark{},
			wantRecovery: nvstorage.RecoveryRWNoOS,
		}, {
			desc:  "key version rollback",
			mode:  session.ModeNormal,
			floor: 0x20000,
			parts: func(t *testing.T) [][]byte {
				return [][]byte{kernel(t, testonly.KernelOpts{KeyVersion: 1, KernelVersion: 9})}
			},
			wantErr:      session.ErrInvalidKernelFound,
			wantFloor:    0x20000,
			wantChecks:   []session.PartitionCheck{session.PartCheckKeyRollback},
			wantMarks:    map[int]kernelselect.Mark{1: kernelselect.MarkBad},
			wantRecovery: nvstorage.RecoveryRWInvalidOS,
		}, {
			desc: "recovery key block in normal mode",
			mode: session.ModeNormal,
			parts: func(t *testing.T) [][]byte {
				return [][]byte{kernel(t, testonly.KernelOpts{KeyBlockFlags: testonly.RecoveryKernelFlags})}
			},
			wantErr:      session.ErrInvalidKernelFound,
			wantChecks:   []session.PartitionCheck{session.PartCheckRecMismatch},
			wantMarks:    map[int]kernelselect.Mark{1: kernelselect.MarkBad},
			wantRecovery: nvstorage.RecoveryRWInvalidOS,
		}, {
			desc: "tampered body",
			mode: session.ModeNormal,
			parts: func(t *testing.T) [][]byte {
				p := kernel(t, testonly.KernelOpts{KernelVersion: 1})
				p[len(p)-1] ^= 0xff
				return [][]byte{p}
			},
			wantErr:      session.ErrInvalidKernelFound,
			wantChecks:   []session.PartitionCheck{session.PartCheckVerifyData},
			wantMarks:    map[int]kernelselect.Mark{1: kernelselect.MarkBad},
			wantRecovery: nvstorage.RecoveryRWInvalidOS,
		}, {
			desc:         "body larger than the buffer",
			mode:         session.ModeNormal,
			parts:        func(t *testing.T) [][]byte { return [][]byte{kernel(t, testonly.KernelOpts{KernelVersion: 1})} },
			bufferSize:   100,
			wantErr:      session.ErrInvalidKernelFound,
			wantChecks:   []session.PartitionCheck{session.PartCheckBodyExceedsMem},
			wantMarks:    map[int]kernelselect.Mark{1: kernelselect.MarkBad},
			wantRecovery: nvstorage.RecoveryRWInvalidOS,
		}, {
			desc:  "recovery uses the recovery key and ignores the floor",
			mode:  session.ModeRecovery,
			floor: 100,
			parts: func(t *testing.T) [][]byte {
				return [][]byte{
					kernel(t, testonly.KernelOpts{KernelVersion: 1, KeyBlockFlags: testonly.RecoveryKernelFlags, Signer: &recKey}),
					kernel(t, testonly.KernelOpts{KernelVersion: 2, KeyBlockFlags: testonly.RecoveryKernelFlags, Signer: &recKey}),
				}
			},
			wantChosen: 1,
			wantFloor:  100,
			wantValid:  true,
			wantChecks: []session.PartitionCheck{session.PartCheckKernelGood},
			wantMarks:  map[int]kernelselect.Mark{1: kernelselect.MarkTried},
		}, {
			desc:  "developer accepts self-signed and stops",
			mode:  session.ModeDeveloper,
			floor: 7,
			parts: func(t *testing.T) [][]byte {
				return [][]byte{
					kernel(t, testonly.KernelOpts{KernelVersion: 8, SelfSigned: true}),
					kernel(t, testonly.KernelOpts{KernelVersion: 9}),
				}
			},
			wantChosen: 1,
			wantFloor:  7,
			wantChecks: []session.PartitionCheck{session.PartCheckKernelGood},
			wantMarks:  map[int]kernelselect.Mark{1: kernelselect.MarkTried},
		}, {
			desc:         "developer with signed only",
			mode:         session.ModeDeveloper,
			parts:        func(t *testing.T) [][]byte { return [][]byte{kernel(t, testonly.KernelOpts{SelfSigned: true})} },
			signedOnly:   true,
			wantErr:      session.ErrInvalidKernelFound,
			wantChecks:   []session.PartitionCheck{session.PartCheckSelfSigned},
			wantMarks:    map[int]kernelselect.Mark{1: kernelselect.MarkBad},
			wantRecovery: nvstorage.RecoveryRWInvalidOS,
		}, {
			desc:  "developer with official only policy",
			mode:  session.ModeDeveloper,
			parts: func(t *testing.T) [][]byte { return [][]byte{kernel(t, testonly.KernelOpts{SelfSigned: true})} },
			fwmp: func(t *testing.T) *secdata.FWMP {
				return &secdata.FWMP{Flags: secdata.FWMPDevEnableOfficialOnly}
			},
			wantErr:      session.ErrInvalidKernelFound,
			wantChecks:   []session.PartitionCheck{session.PartCheckSelfSigned},
			wantMarks:    map[int]kernelselect.Mark{1: kernelselect.MarkBad},
			wantRecovery: nvstorage.RecoveryRWInvalidOS,
		}, {
			desc: "developer with a corrupt self-signed block",
			mode: session.ModeDeveloper,
			parts: func(t *testing.T) [][]byte {
				p := kernel(t, testonly.KernelOpts{SelfSigned: true})
				// Data key material, covered by the checksum.
				p[vblock.KeyBlockHeaderSize+10] ^= 0x01
				return [][]byte{p}
			},
			wantErr:      session.ErrInvalidKernelFound,
			wantChecks:   []session.PartitionCheck{session.PartCheckKeyBlockHash},
			wantMarks:    map[int]kernelselect.Mark{1: kernelselect.MarkBad},
			wantRecovery: nvstorage.RecoveryRWInvalidOS,
		}, {
			desc:  "developer key hash mismatch",
			mode:  session.ModeDeveloper,
			parts: func(t *testing.T) [][]byte { return [][]byte{kernel(t, testonly.KernelOpts{SelfSigned: true})} },
			fwmp: func(t *testing.T) *secdata.FWMP {
				return &secdata.FWMP{Flags: secdata.FWMPDevUseKeyHash}
			},
			wantErr:      session.ErrInvalidKernelFound,
			wantChecks:   []session.PartitionCheck{session.PartCheckDevKeyHash},
			wantMarks:    map[int]kernelselect.Mark{1: kernelselect.MarkBad},
			wantRecovery: nvstorage.RecoveryRWInvalidOS,
		}, {
			desc:  "developer key hash match",
			mode:  session.ModeDeveloper,
			parts: func(t *testing.T) [][]byte { return [][]byte{kernel(t, testonly.KernelOpts{SelfSigned: true})} },
			fwmp: func(t *testing.T) *secdata.FWMP {
				return &secdata.FWMP{Flags: secdata.FWMPDevUseKeyHash, DevKeyHash: dataKeyHash(t)}
			},
			wantChosen: 1,
			wantChecks: []session.PartitionCheck{session.PartCheckKernelGood},
			wantMarks:  map[int]kernelselect.Mark{1: kernelselect.MarkTried},
		}, {
			desc:       "developer boots a rolled back kernel",
			mode:       session.ModeDeveloper,
			floor:      7,
			parts:      func(t *testing.T) [][]byte { return [][]byte{kernel(t, testonly.KernelOpts{KernelVersion: 5})} },
			wantChosen: 1,
			wantFloor:  7,
			wantValid:  true,
			wantChecks: []session.PartitionCheck{session.PartCheckKernelGood},
			wantMarks:  map[int]kernelselect.Mark{1: kernelselect.MarkTried},
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			st := newState(t, test.mode, test.floor)
			st.Set(session.FlagNoFailBoot, test.noFailBoot)
			nv := nvstorage.New()
			nv.SetBool(nvstorage.DevBootSignedOnly, test.signedOnly)
			var fwmp *secdata.FWMP
			if test.fwmp != nil {
				fwmp = test.fwmp(t)
			}
			disk, tbl := testonly.NewDisk("disk0", test.parts(t)...)
			s := &kernelselect.Selector{}
			got, gotErr := s.Load(context.Background(), st, kernelselect.Params{
				Disk:        disk,
				RecoveryKey: recKey.Public(t, 1),
				NV:          nv,
				FWMP:        fwmp,
				BufferSize:  test.bufferSize,
			})
			if !errors.Is(gotErr, test.wantErr) {
				t.Fatalf("Load(): got err %v, want %v", gotErr, test.wantErr)
			}
			if gotErr == nil {
				if got.Partition != test.wantChosen {
					t.Errorf("Load(): got partition %d, want %d", got.Partition, test.wantChosen)
				}
				if got.KeyBlockValid != test.wantValid {
					t.Errorf("Load(): got KeyBlockValid %v, want %v", got.KeyBlockValid, test.wantValid)
				}
				if got.BootloaderAddress != testonly.BootloaderAddress || len(got.Body) == 0 {
					t.Errorf("Load(): got bootloader %#x and %d body bytes", got.BootloaderAddress, len(got.Body))
				}
			}
			if st.KernelFloor != test.wantFloor {
				t.Errorf("KernelFloor: got %#x, want %#x", st.KernelFloor, test.wantFloor)
			}
			if got := nv.Recovery(); got != test.wantRecovery {
				t.Errorf("NV recovery request: got %v, want %v", got, test.wantRecovery)
			}
			call := st.KernelCalls.Last()
			var gotChecks []session.PartitionCheck
			for _, p := range call.Partitions.Items() {
				gotChecks = append(gotChecks, p.Check)
			}
			if diff := cmp.Diff(gotChecks, test.wantChecks); diff != "" {
				t.Errorf("checks diff (-got +want):\n%s", diff)
			}
			gotMarks := tbl.Marks
			if gotMarks == nil {
				gotMarks = map[int]kernelselect.Mark{}
			}
			if diff := cmp.Diff(gotMarks, test.wantMarks); diff != "" {
				t.Errorf("marks diff (-got +want):\n%s", diff)
			}
			if tbl.Commits != 1 {
				t.Errorf("table committed %d times, want 1", tbl.Commits)
			}
		})
	}
}

func TestLoadIdempotent(t *testing.T) {
	disk, tbl := testonly.NewDisk("disk0",
		kernel(t, testonly.KernelOpts{KernelVersion: 9}),
		kernel(t, testonly.KernelOpts{KernelVersion: 8}))
	s := &kernelselect.Selector{}
	floor := uint32(7)
	var first kernelselect.Result
	for i := 0; i < 2; i++ {
		tbl.Rewind()
		st := newState(t, session.ModeNormal, floor)
		got, err := s.Load(context.Background(), st, kernelselect.Params{Disk: disk, NV: nvstorage.New()})
		if err != nil {
			t.Fatalf("Load() #%d: %v", i, err)
		}
		if i == 0 {
			first = got
		} else if diff := cmp.Diff(got, first); diff != "" {
			t.Errorf("second Load() diff (-got +want):\n%s", diff)
		}
		if st.KernelFloor != 8 {
			t.Errorf("Load() #%d: floor %d, want 8", i, st.KernelFloor)
		}
		floor = st.KernelFloor
	}
}

func TestLoadWithoutKey(t *testing.T) {
	st := session.New()
	disk, _ := testonly.NewDisk("disk0")
	s := &kernelselect.Selector{}
	if _, err := s.Load(context.Background(), st, kernelselect.Params{Disk: disk, NV: nvstorage.New()}); err == nil {
		t.Fatal("Load(): want error")
	}
	if got := st.KernelCalls.Last().Result; got != session.CallInvalidParams {
		t.Errorf("Result: got %v, want %v", got, session.CallInvalidParams)
	}
}

func TestPartitionPastEndOfDisk(t *testing.T) {
	disk, tbl := testonly.NewDisk("disk0", kernel(t, testonly.KernelOpts{}))
	tbl.Entries[0].SizeLBA = disk.LBACount
	st := newState(t, session.ModeNormal, 0)
	s := &kernelselect.Selector{}
	if _, err := s.Load(context.Background(), st, kernelselect.Params{Disk: disk, NV: nvstorage.New()}); !errors.Is(err, session.ErrInvalidKernelFound) {
		t.Fatalf("Load(): got %v, want ErrInvalidKernelFound", err)
	}
	if got := st.KernelCalls.Last().Partitions.Last().Check; got != session.PartCheckTooSmall {
		t.Errorf("Check: got %v, want %v", got, session.PartCheckTooSmall)
	}
}

func TestLoadFromDisks(t *testing.T) {
	good := func(name string, flags kernelselect.DiskFlags) *kernelselect.Disk {
		d, _ := testonly.NewDisk(name, kernel(t, testonly.KernelOpts{KernelVersion: 1}))
		d.Flags = flags
		return d
	}
	bigBlocks := good("4k", kernelselect.DiskRemovable)
	bigBlocks.BytesPerLBA = 4096
	tiny := good("tiny", kernelselect.DiskRemovable)
	tiny.LBACount = 31
	empty, _ := testonly.NewDisk("empty")
	empty.Flags = kernelselect.DiskRemovable

	for _, test := range []struct {
		desc         string
		disks        testonly.StaticLister
		wantDisk     string
		wantErr      error
		wantRecovery nvstorage.RecoveryReason
	}{
		{
			desc:     "skips unusable disks",
			disks:    testonly.StaticLister{bigBlocks, tiny, empty, good("usb", kernelselect.DiskRemovable)},
			wantDisk: "usb",
		}, {
			desc:         "none usable",
			disks:        testonly.StaticLister{bigBlocks, tiny, good("internal", kernelselect.DiskFixed)},
			wantErr:      session.ErrNoDiskFound,
			wantRecovery: nvstorage.RecoveryRWNoDisk,
		}, {
			desc:         "only an empty disk",
			disks:        testonly.StaticLister{empty},
			wantErr:      session.ErrNoKernelFound,
			wantRecovery: nvstorage.RecoveryRWNoOS,
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			for _, d := range test.disks {
				d.Table.(*testonly.MemTable).Rewind()
			}
			st := newState(t, session.ModeNormal, 0)
			nv := nvstorage.New()
			s := &kernelselect.Selector{}
			got, gotErr := s.LoadFromDisks(context.Background(), st, test.disks, kernelselect.DiskRemovable, kernelselect.Params{NV: nv})
			if !errors.Is(gotErr, test.wantErr) {
				t.Fatalf("LoadFromDisks(): got err %v, want %v", gotErr, test.wantErr)
			}
			if got.Disk != test.wantDisk {
				t.Errorf("LoadFromDisks(): got disk %q, want %q", got.Disk, test.wantDisk)
			}
			if got := nv.Recovery(); got != test.wantRecovery {
				t.Errorf("NV recovery request: got %v, want %v", got, test.wantRecovery)
			}
		})
	}
}
