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

package kernelselect

import (
	"context"
	"errors"
	"fmt"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/nvstorage"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/session"
	"github.com/golang/glog"
)

// DiskFlags classify disks.
type DiskFlags uint32

const (
	// DiskFixed is an internal disk.
	DiskFixed DiskFlags = 1 << iota
	// DiskRemovable is a USB stick or SD card.
	DiskRemovable
)

func (f DiskFlags) String() string {
	switch f {
	case DiskFixed:
		return "fixed"
	case DiskRemovable:
		return "removable"
	}
	return fmt.Sprintf("DiskFlags(%#x)", uint32(f))
}

const (
	// RequiredLBASize is the only block size kernels are loaded from.
	RequiredLBASize = 512
	// MinLBACount is the smallest disk which can hold a partition table.
	MinLBACount = 32
)

// DiskLister enumerates the disks of one class.
type DiskLister interface {
	Disks(ctx context.Context, flags DiskFlags) ([]*Disk, error)
}

// LoadFromDisks tries each disk of the given class in turn and returns the
// first kernel found. Disks with the wrong geometry or flags are skipped; if
// none are left the result is session.ErrNoDiskFound.
func (s *Selector) LoadFromDisks(ctx context.Context, st *session.State, l DiskLister, flags DiskFlags, p Params) (Result, error) {
	disks, err := l.Disks(ctx, flags)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list %v disks: %w", flags, err)
	}
	lastErr := fmt.Errorf("%w: no usable %v disk", session.ErrNoDiskFound, flags)
	for _, d := range disks {
		if d.BytesPerLBA != RequiredLBASize || d.LBACount < MinLBACount || d.Flags != flags {
			glog.V(1).Infof("Skipping disk %s: %d byte blocks, %d blocks, flags %v", d.Name, d.BytesPerLBA, d.LBACount, d.Flags)
			continue
		}
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		dp := p
		dp.Disk = d
		r, err := s.Load(ctx, st, dp)
		if err == nil {
			return r, nil
		}
		glog.V(1).Infof("No kernel on %s: %v", d.Name, err)
		lastErr = err
	}
	if errors.Is(lastErr, session.ErrNoDiskFound) {
		st.Recovery = nvstorage.RecoveryRWNoDisk
		p.NV.RequestRecovery(st.Recovery)
	}
	return Result{}, lastErr
}
