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

package dummy

import (
	"context"
	"crypto/sha256"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/api"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/ecsync"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/gbb"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/nvstorage"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/session"
	"github.com/google/go-cmp/cmp"
)

func newEC(t *testing.T, s api.ECState) *EC {
	t.Helper()
	ec := NewEC(filepath.Join(t.TempDir(), "ec.json"))
	if err := ec.SetState(s); err != nil {
		t.Fatalf("SetState(): %v", err)
	}
	return ec
}

func TestECHashes(t *testing.T) {
	ctx := context.Background()
	ec := newEC(t, api.ECState{RW: []byte("rw"), ExpectedRW: []byte("rw2")})
	got, err := ec.HashImage(ctx, ecsync.ImageRW)
	if err != nil {
		t.Fatalf("HashImage(): %v", err)
	}
	if want := sha256.Sum256([]byte("rw")); !cmp.Equal(got, want[:]) {
		t.Errorf("HashImage(): got %x, want %x", got, want)
	}
	if h, err := ec.ExpectedHash(ctx, ecsync.ImageRW); h != nil || err != nil {
		t.Errorf("ExpectedHash(): got (%x, %v), want (nil, nil)", h, err)
	}
	if _, err := ec.ExpectedImage(ctx, ecsync.ImageRO); err == nil {
		t.Error("ExpectedImage(RO): want error for missing image")
	}
}

func TestECNeedsRebootWhenProtected(t *testing.T) {
	ctx := context.Background()
	ec := newEC(t, api.ECState{ROProtected: true, JumpDisabled: true})
	if err := ec.UpdateImage(ctx, ecsync.ImageRO, []byte("ro")); !errors.Is(err, ecsync.ErrRebootRequired) {
		t.Errorf("UpdateImage(RO): got %v, want ErrRebootRequired", err)
	}
	if err := ec.JumpToRW(ctx); !errors.Is(err, ecsync.ErrRebootRequired) {
		t.Errorf("JumpToRW(): got %v, want ErrRebootRequired", err)
	}
	if err := ec.RebootToRO(ctx); err != nil {
		t.Fatalf("RebootToRO(): %v", err)
	}
	if err := ec.UpdateImage(ctx, ecsync.ImageRO, []byte("ro")); err != nil {
		t.Errorf("UpdateImage(RO) after reboot: %v", err)
	}
	if err := ec.JumpToRW(ctx); err != nil {
		t.Errorf("JumpToRW() after reboot: %v", err)
	}
	if err := ec.UpdateImage(ctx, ecsync.ImageRW, []byte("rw")); err == nil {
		t.Error("UpdateImage(RW) while running RW: want error")
	}
}

// TestECSync runs the coordinator against the file backed EC.
func TestECSync(t *testing.T) {
	ctx := context.Background()
	ec := newEC(t, api.ECState{
		RO:         []byte("ro"),
		RW:         []byte("old rw"),
		ExpectedRO: []byte("ro"),
		ExpectedRW: []byte("new rw"),
	})
	st := session.New()
	st.Mode = session.ModeNormal
	st.Set(session.FlagECSoftwareSync, true)
	c := &ecsync.Coordinator{EC: ec}
	out, err := c.Sync(ctx, st, nvstorage.New(), gbb.Flags(0))
	if err != nil {
		t.Fatalf("Sync(): %v", err)
	}
	if out != ecsync.OutcomeSynced {
		t.Fatalf("Sync(): got %v, want %v", out, ecsync.OutcomeSynced)
	}
	s, err := ec.State()
	if err != nil {
		t.Fatalf("State(): %v", err)
	}
	want := api.ECState{
		RunningRW:    true,
		RO:           []byte("ro"),
		RW:           []byte("new rw"),
		ExpectedRO:   []byte("ro"),
		ExpectedRW:   []byte("new rw"),
		ROProtected:  true,
		RWProtected:  true,
		JumpDisabled: true,
	}
	if diff := cmp.Diff(s, want); diff != "" {
		t.Errorf("EC state diff (-got +want):\n%s", diff)
	}
}
