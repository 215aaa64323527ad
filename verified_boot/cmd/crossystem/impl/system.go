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

package impl

import (
	"context"
	"fmt"
	"sync"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/api"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/devices"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/bootlog"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/nvstorage"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/secdata"
	"github.com/golang/glog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// System is the persisted boot state of one device.
type System struct {
	dev   devices.Device
	store *secdata.Store
	log   *bootlog.Log

	// mu serialises NV read-modify-write cycles.
	mu sync.Mutex
}

// NewSystem returns the state of dev, whose secure storage is store and
// whose boot records are in l.
func NewSystem(dev devices.Device, store *secdata.Store, l *bootlog.Log) *System {
	return &System{dev: dev, store: store, log: l}
}

// Status implements http.System.
func (s *System) Status(ctx context.Context) (api.Status, error) {
	s.mu.Lock()
	nv, err := nvstorage.Open(ctx, s.dev.NV())
	s.mu.Unlock()
	if err != nil {
		return api.Status{}, err
	}
	fw, err := s.store.Firmware()
	if err != nil {
		return api.Status{}, fmt.Errorf("failed to read firmware space: %w", err)
	}
	k, err := s.store.Kernel()
	if err != nil {
		return api.Status{}, fmt.Errorf("failed to read kernel space: %w", err)
	}
	rec, err := s.dev.LastRecord()
	if err != nil {
		return api.Status{}, fmt.Errorf("failed to read last boot record: %w", err)
	}
	cp, err := s.log.Checkpoint()
	if err != nil {
		return api.Status{}, err
	}
	return api.Status{
		NV:            nv.Snapshot(),
		FirmwareFloor: fw.Versions,
		KernelFloor:   k.Versions,
		FirmwareFlags: uint8(fw.Flags),
		LastBoot:      string(rec),
		BootLogSize:   cp.Size,
		BootLogRoot:   cp.Hash,
	}, nil
}

// SetNV implements http.System.
func (s *System) SetNV(ctx context.Context, name string, value uint32) error {
	f, ok := nvstorage.FieldByName(name)
	if !ok {
		return status.Errorf(codes.NotFound, "unknown NV field %q", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.dev.NV()
	nv, err := nvstorage.Open(ctx, b)
	if err != nil {
		return err
	}
	nv.Set(f, value)
	if got := nv.Get(f); got != value {
		glog.Warningf("NV field %s clamped from %d to %d", f, value, got)
	}
	return nv.Commit(ctx, b)
}

// LastBoot implements http.System.
func (s *System) LastBoot(_ context.Context) ([]byte, error) {
	rec, err := s.dev.LastRecord()
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, status.Error(codes.NotFound, "no boot has been recorded")
	}
	return rec, nil
}

// BootLogCheckpoint implements http.System.
func (s *System) BootLogCheckpoint(_ context.Context) ([]byte, error) {
	return s.log.SignedCheckpoint()
}

// BootLogEntry implements http.System.
func (s *System) BootLogEntry(_ context.Context, index, size uint64) (api.BootLogEntry, error) {
	if size == 0 {
		cp, err := s.log.Checkpoint()
		if err != nil {
			return api.BootLogEntry{}, err
		}
		size = cp.Size
	}
	proof, err := s.log.InclusionProof(index, size)
	if err != nil {
		return api.BootLogEntry{}, err
	}
	rec, err := s.log.Entry(index)
	if err != nil {
		return api.BootLogEntry{}, err
	}
	return api.BootLogEntry{Index: index, Size: size, Record: rec, Proof: proof}, nil
}
