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

package ecsync_test

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/ecsync"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/ecsync/mock_ecsync"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/gbb"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/nvstorage"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/session"
	"github.com/golang/mock/gomock"
)

func hash(s string) []byte {
	h := sha256.Sum256([]byte(s))
	return h[:]
}

var (
	ctx     = gomock.Any()
	rwHash  = hash("rw v2")
	oldHash = hash("rw v1")
	roHash  = hash("ro v2")
	errEC   = errors.New("ec says no")
)

// finish expects the calls made once the EC runs a matching RW image.
func finish(m *mock_ecsync.MockEC, jump bool) {
	var calls []*gomock.Call
	if jump {
		calls = append(calls, m.EXPECT().JumpToRW(ctx).Return(nil))
	}
	calls = append(calls,
		m.EXPECT().Protect(ctx, ecsync.ImageRO).Return(nil),
		m.EXPECT().Protect(ctx, ecsync.ImageRW).Return(nil),
		m.EXPECT().DisableJump(ctx).Return(nil))
	gomock.InOrder(calls...)
}

func located(m *mock_ecsync.MockEC, inRW bool) {
	m.EXPECT().RunningRW(ctx).Return(inRW, nil)
}

func hashes(m *mock_ecsync.MockEC, img ecsync.Image, got, want []byte) {
	m.EXPECT().HashImage(ctx, img).Return(got, nil)
	m.EXPECT().ExpectedHash(ctx, img).Return(want, nil)
}

func TestSync(t *testing.T) {
	for _, test := range []struct {
		desc         string
		mode         session.Mode
		flags        session.Flags
		gbbFlags     gbb.Flags
		tryRO        bool
		expect       func(m *mock_ecsync.MockEC)
		wantOutcome  ecsync.Outcome
		wantRecovery nvstorage.RecoveryReason
		wantTryRO    bool
	}{
		{
			desc:        "sync not supported",
			expect:      func(m *mock_ecsync.MockEC) {},
			wantOutcome: ecsync.OutcomeSkipped,
		}, {
			desc:        "disabled by GBB",
			flags:       session.FlagECSoftwareSync,
			gbbFlags:    gbb.FlagDisableECSoftwareSync,
			expect:      func(m *mock_ecsync.MockEC) {},
			wantOutcome: ecsync.OutcomeSkipped,
		}, {
			desc:  "location unknown",
			flags: session.FlagECSoftwareSync,
			expect: func(m *mock_ecsync.MockEC) {
				m.EXPECT().RunningRW(ctx).Return(false, errEC)
			},
			wantOutcome:  ecsync.OutcomeRebootToRO,
			wantRecovery: nvstorage.RecoveryECUnknownImage,
		}, {
			desc:        "recovery with EC in RO",
			mode:        session.ModeRecovery,
			flags:       session.FlagECSoftwareSync,
			expect:      func(m *mock_ecsync.MockEC) { located(m, false) },
			wantOutcome: ecsync.OutcomeStayedRO,
		}, {
			desc:        "recovery with EC in RW",
			mode:        session.ModeRecovery,
			flags:       session.FlagECSoftwareSync,
			expect:      func(m *mock_ecsync.MockEC) { located(m, true) },
			wantOutcome: ecsync.OutcomeRebootToRO,
		}, {
			desc:  "RO code path with EC in RO",
			flags: session.FlagECSoftwareSync | session.FlagUsedROCodePath,
			expect: func(m *mock_ecsync.MockEC) {
				located(m, false)
				gomock.InOrder(
					m.EXPECT().Protect(ctx, ecsync.ImageRO).Return(nil),
					m.EXPECT().DisableJump(ctx).Return(nil))
			},
			wantOutcome: ecsync.OutcomeSynced,
		}, {
			desc:        "RO code path with EC in RW",
			flags:       session.FlagECSoftwareSync | session.FlagUsedROCodePath,
			expect:      func(m *mock_ecsync.MockEC) { located(m, true) },
			wantOutcome: ecsync.OutcomeRebootToRO,
		}, {
			desc:  "EC in RO, up to date",
			flags: session.FlagECSoftwareSync,
			expect: func(m *mock_ecsync.MockEC) {
				located(m, false)
				hashes(m, ecsync.ImageRW, rwHash, rwHash)
				finish(m, true)
			},
			wantOutcome: ecsync.OutcomeSynced,
		}, {
			desc:  "EC in RW, up to date",
			flags: session.FlagECSoftwareSync,
			expect: func(m *mock_ecsync.MockEC) {
				located(m, true)
				hashes(m, ecsync.ImageRW, rwHash, rwHash)
				finish(m, false)
			},
			wantOutcome: ecsync.OutcomeSynced,
		}, {
			desc:  "EC in RW, out of date",
			flags: session.FlagECSoftwareSync,
			expect: func(m *mock_ecsync.MockEC) {
				located(m, true)
				hashes(m, ecsync.ImageRW, oldHash, rwHash)
			},
			wantOutcome: ecsync.OutcomeRebootToRO,
		}, {
			desc:  "expected hash computed from the image",
			flags: session.FlagECSoftwareSync,
			expect: func(m *mock_ecsync.MockEC) {
				located(m, false)
				m.EXPECT().HashImage(ctx, ecsync.ImageRW).Return(rwHash, nil)
				m.EXPECT().ExpectedHash(ctx, ecsync.ImageRW).Return(nil, nil)
				m.EXPECT().ExpectedImage(ctx, ecsync.ImageRW).Return([]byte("rw v2"), nil)
				finish(m, true)
			},
			wantOutcome: ecsync.OutcomeSynced,
		}, {
			desc:  "EC in RO, updated",
			flags: session.FlagECSoftwareSync,
			expect: func(m *mock_ecsync.MockEC) {
				located(m, false)
				gomock.InOrder(
					m.EXPECT().HashImage(ctx, ecsync.ImageRW).Return(oldHash, nil),
					m.EXPECT().ExpectedImage(ctx, ecsync.ImageRW).Return([]byte("rw v2"), nil),
					m.EXPECT().UpdateImage(ctx, ecsync.ImageRW, []byte("rw v2")).Return(nil),
					m.EXPECT().HashImage(ctx, ecsync.ImageRW).Return(rwHash, nil))
				m.EXPECT().ExpectedHash(ctx, ecsync.ImageRW).Return(rwHash, nil).Times(2)
				finish(m, true)
			},
			wantOutcome: ecsync.OutcomeSynced,
		}, {
			desc:  "update still wrong",
			flags: session.FlagECSoftwareSync,
			expect: func(m *mock_ecsync.MockEC) {
				located(m, false)
				m.EXPECT().HashImage(ctx, ecsync.ImageRW).Return(oldHash, nil).Times(2)
				m.EXPECT().ExpectedHash(ctx, ecsync.ImageRW).Return(rwHash, nil).Times(2)
				m.EXPECT().ExpectedImage(ctx, ecsync.ImageRW).Return([]byte("rw v2"), nil)
				m.EXPECT().UpdateImage(ctx, ecsync.ImageRW, gomock.Any()).Return(nil)
			},
			wantOutcome:  ecsync.OutcomeRebootToRO,
			wantRecovery: nvstorage.RecoveryECUpdate,
		}, {
			desc:  "update needs a reboot",
			flags: session.FlagECSoftwareSync,
			expect: func(m *mock_ecsync.MockEC) {
				located(m, false)
				hashes(m, ecsync.ImageRW, oldHash, rwHash)
				m.EXPECT().ExpectedImage(ctx, ecsync.ImageRW).Return([]byte("rw v2"), nil)
				m.EXPECT().UpdateImage(ctx, ecsync.ImageRW, gomock.Any()).Return(ecsync.ErrRebootRequired)
			},
			wantOutcome: ecsync.OutcomeRebootToRO,
		}, {
			desc:  "update fails",
			flags: session.FlagECSoftwareSync,
			expect: func(m *mock_ecsync.MockEC) {
				located(m, false)
				hashes(m, ecsync.ImageRW, oldHash, rwHash)
				m.EXPECT().ExpectedImage(ctx, ecsync.ImageRW).Return([]byte("rw v2"), nil)
				m.EXPECT().UpdateImage(ctx, ecsync.ImageRW, gomock.Any()).Return(errEC)
			},
			wantOutcome:  ecsync.OutcomeRebootToRO,
			wantRecovery: nvstorage.RecoveryECUpdate,
		}, {
			desc:  "hash fails",
			flags: session.FlagECSoftwareSync,
			expect: func(m *mock_ecsync.MockEC) {
				located(m, false)
				m.EXPECT().HashImage(ctx, ecsync.ImageRW).Return(nil, errEC)
			},
			wantOutcome:  ecsync.OutcomeRebootToRO,
			wantRecovery: nvstorage.RecoveryECHashFailed,
		}, {
			desc:  "expected hash unavailable",
			flags: session.FlagECSoftwareSync,
			expect: func(m *mock_ecsync.MockEC) {
				located(m, false)
				m.EXPECT().HashImage(ctx, ecsync.ImageRW).Return(rwHash, nil)
				m.EXPECT().ExpectedHash(ctx, ecsync.ImageRW).Return(nil, errEC)
			},
			wantOutcome:  ecsync.OutcomeRebootToRO,
			wantRecovery: nvstorage.RecoveryECExpectedHash,
		}, {
			desc:  "hash sizes differ",
			flags: session.FlagECSoftwareSync,
			expect: func(m *mock_ecsync.MockEC) {
				located(m, false)
				hashes(m, ecsync.ImageRW, rwHash[:20], rwHash)
			},
			wantOutcome:  ecsync.OutcomeRebootToRO,
			wantRecovery: nvstorage.RecoveryECHashSize,
		}, {
			desc:  "jump fails",
			flags: session.FlagECSoftwareSync,
			expect: func(m *mock_ecsync.MockEC) {
				located(m, false)
				hashes(m, ecsync.ImageRW, rwHash, rwHash)
				m.EXPECT().JumpToRW(ctx).Return(errEC)
			},
			wantOutcome:  ecsync.OutcomeRebootToRO,
			wantRecovery: nvstorage.RecoveryECJumpRW,
		}, {
			desc:  "jump needs a reboot",
			flags: session.FlagECSoftwareSync,
			expect: func(m *mock_ecsync.MockEC) {
				located(m, false)
				hashes(m, ecsync.ImageRW, rwHash, rwHash)
				m.EXPECT().JumpToRW(ctx).Return(ecsync.ErrRebootRequired)
			},
			wantOutcome: ecsync.OutcomeRebootToRO,
		}, {
			desc:  "protect fails",
			flags: session.FlagECSoftwareSync,
			expect: func(m *mock_ecsync.MockEC) {
				located(m, true)
				hashes(m, ecsync.ImageRW, rwHash, rwHash)
				m.EXPECT().Protect(ctx, ecsync.ImageRO).Return(nil)
				m.EXPECT().Protect(ctx, ecsync.ImageRW).Return(errEC)
			},
			wantOutcome:  ecsync.OutcomeRebootToRO,
			wantRecovery: nvstorage.RecoveryECProtect,
		}, {
			desc:  "disable jump fails",
			flags: session.FlagECSoftwareSync,
			expect: func(m *mock_ecsync.MockEC) {
				located(m, true)
				hashes(m, ecsync.ImageRW, rwHash, rwHash)
				m.EXPECT().Protect(ctx, gomock.Any()).Return(nil).Times(2)
				m.EXPECT().DisableJump(ctx).Return(errEC)
			},
			wantOutcome:  ecsync.OutcomeRebootToRO,
			wantRecovery: nvstorage.RecoveryECSoftwareSync,
		}, {
			desc:  "RO sync ignored under write protect",
			flags: session.FlagECSoftwareSync | session.FlagWriteProtect,
			tryRO: true,
			expect: func(m *mock_ecsync.MockEC) {
				located(m, true)
				hashes(m, ecsync.ImageRW, rwHash, rwHash)
				finish(m, false)
			},
			wantOutcome: ecsync.OutcomeSynced,
			wantTryRO:   true,
		}, {
			desc:  "RO sync succeeds on the second try",
			flags: session.FlagECSoftwareSync,
			tryRO: true,
			expect: func(m *mock_ecsync.MockEC) {
				located(m, true)
				hashes(m, ecsync.ImageRW, rwHash, rwHash)
				gomock.InOrder(
					m.EXPECT().HashImage(ctx, ecsync.ImageRO).Return(oldHash, nil),
					m.EXPECT().HashImage(ctx, ecsync.ImageRO).Return(roHash, nil))
				m.EXPECT().ExpectedHash(ctx, ecsync.ImageRO).Return(roHash, nil).Times(2)
				m.EXPECT().ExpectedImage(ctx, ecsync.ImageRO).Return([]byte("ro v2"), nil).Times(2)
				gomock.InOrder(
					m.EXPECT().UpdateImage(ctx, ecsync.ImageRO, gomock.Any()).Return(errEC),
					m.EXPECT().UpdateImage(ctx, ecsync.ImageRO, gomock.Any()).Return(nil))
				finish(m, false)
			},
			wantOutcome: ecsync.OutcomeSynced,
		}, {
			desc:  "RO sync runs out of tries",
			flags: session.FlagECSoftwareSync,
			tryRO: true,
			expect: func(m *mock_ecsync.MockEC) {
				located(m, true)
				hashes(m, ecsync.ImageRW, rwHash, rwHash)
				hashes(m, ecsync.ImageRO, oldHash, roHash)
				m.EXPECT().ExpectedImage(ctx, ecsync.ImageRO).Return([]byte("ro v2"), nil).Times(2)
				m.EXPECT().UpdateImage(ctx, ecsync.ImageRO, gomock.Any()).Return(errEC).Times(2)
			},
			wantOutcome:  ecsync.OutcomeRebootToRO,
			wantRecovery: nvstorage.RecoveryECUpdate,
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			m := mock_ecsync.NewMockEC(ctrl)
			test.expect(m)

			st := session.New()
			st.Mode = test.mode
			st.Flags = test.flags
			nv := nvstorage.New()
			nv.SetBool(nvstorage.TryROSync, test.tryRO)

			c := &ecsync.Coordinator{EC: m}
			got, err := c.Sync(context.Background(), st, nv, test.gbbFlags)
			if err != nil {
				t.Fatalf("Sync(): %v", err)
			}
			if got != test.wantOutcome {
				t.Errorf("Sync(): got %v, want %v", got, test.wantOutcome)
			}
			if got := nv.Recovery(); got != test.wantRecovery {
				t.Errorf("recovery request: got %v, want %v", got, test.wantRecovery)
			}
			if got := nv.GetBool(nvstorage.TryROSync); got != test.wantTryRO {
				t.Errorf("TryROSync: got %v, want %v", got, test.wantTryRO)
			}
		})
	}
}

func TestSlowUpdateWaits(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mock_ecsync.NewMockEC(ctrl)
	located(m, false)
	m.EXPECT().HashImage(ctx, ecsync.ImageRW).Return(oldHash, nil)
	m.EXPECT().HashImage(ctx, ecsync.ImageRW).Return(rwHash, nil)
	m.EXPECT().ExpectedHash(ctx, ecsync.ImageRW).Return(rwHash, nil).Times(2)
	m.EXPECT().ExpectedImage(ctx, ecsync.ImageRW).Return([]byte("rw v2"), nil)
	m.EXPECT().UpdateImage(ctx, ecsync.ImageRW, gomock.Any()).Return(nil)
	finish(m, true)

	st := session.New()
	st.Flags = session.FlagECSoftwareSync | session.FlagECSlowUpdate
	waits := 0
	c := &ecsync.Coordinator{EC: m, Wait: func(context.Context) { waits++ }}
	got, err := c.Sync(context.Background(), st, nvstorage.New(), 0)
	if err != nil || got != ecsync.OutcomeSynced {
		t.Fatalf("Sync(): got (%v, %v), want synced", got, err)
	}
	if waits != 1 {
		t.Errorf("Wait called %d times, want 1", waits)
	}
	if !c.SlowUpdate() {
		t.Error("SlowUpdate(): got false, want true")
	}
}

func TestFinish(t *testing.T) {
	for _, test := range []struct {
		desc    string
		mode    session.Mode
		cutoff  bool
		doneErr error
		wantErr error
	}{
		{
			desc: "normal",
		}, {
			desc: "recovery",
			mode: session.ModeRecovery,
		}, {
			desc:    "battery cut-off",
			cutoff:  true,
			wantErr: session.ErrShutdownRequested,
		}, {
			desc:    "EC refuses",
			doneErr: errEC,
			wantErr: errEC,
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			m := mock_ecsync.NewMockEC(ctrl)
			m.EXPECT().VbootDone(ctx, test.mode == session.ModeRecovery).Return(test.doneErr)
			if test.cutoff {
				m.EXPECT().BatteryCutoff(ctx).Return(nil)
			}
			st := session.New()
			st.Mode = test.mode
			nv := nvstorage.New()
			nv.SetBool(nvstorage.BatteryCutoffRequest, test.cutoff)

			c := &ecsync.Coordinator{EC: m}
			if gotErr := c.Finish(context.Background(), st, nv); !errors.Is(gotErr, test.wantErr) {
				t.Fatalf("Finish(): got %v, want %v", gotErr, test.wantErr)
			}
			if nv.GetBool(nvstorage.BatteryCutoffRequest) {
				t.Error("BatteryCutoffRequest still set")
			}
		})
	}
}
