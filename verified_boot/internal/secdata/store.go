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

package secdata

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/persistence"
	"github.com/golang/glog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrLocked is returned when writing a space which has been locked for the
// rest of the boot.
var ErrLocked = errors.New("secure storage space is locked")

// Store reads and updates the spaces held in a persistence layer.
type Store struct {
	p persistence.SpacePersistence

	mu     sync.Mutex
	locked map[string]bool
}

// NewStore returns a Store over p. p must already be initialised.
func NewStore(p persistence.SpacePersistence) *Store {
	return &Store{p: p, locked: make(map[string]bool)}
}

// Firmware returns the firmware space, creating it with zero floors if it
// has never been written.
func (s *Store) Firmware() (*Firmware, error) {
	b, err := s.readOrInit(persistence.SpaceFirmware, (&Firmware{}).Marshal())
	if err != nil {
		return nil, err
	}
	return ParseFirmware(b)
}

// Kernel returns the kernel space, creating it if it has never been written.
func (s *Store) Kernel() (*Kernel, error) {
	b, err := s.readOrInit(persistence.SpaceKernel, (&Kernel{}).Marshal())
	if err != nil {
		return nil, err
	}
	return ParseKernel(b)
}

// FWMP returns the management parameters, or nil if the owner never set any.
func (s *Store) FWMP() (*FWMP, error) {
	r, err := s.p.ReadOps(persistence.SpaceFWMP)
	if err != nil {
		return nil, err
	}
	b, err := r.Get()
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read fwmp: %w", err)
	}
	return ParseFWMP(b)
}

// SetFWMP stores the management parameters.
func (s *Store) SetFWMP(f *FWMP) error {
	return s.update(persistence.SpaceFWMP, func([]byte, bool) ([]byte, error) {
		return f.Marshal(), nil
	})
}

// SetFirmwareFlags replaces the flags of the firmware space.
func (s *Store) SetFirmwareFlags(flags FirmwareFlags) error {
	return s.update(persistence.SpaceFirmware, func(old []byte, found bool) ([]byte, error) {
		fw := &Firmware{}
		if found {
			var err error
			if fw, err = ParseFirmware(old); err != nil {
				return nil, err
			}
		}
		if found && fw.Flags == flags {
			return nil, nil
		}
		fw.Flags = flags
		return fw.Marshal(), nil
	})
}

// AdvanceFirmwareFloor raises the firmware floor to v. A lower v leaves the
// stored floor alone. It returns the floor now stored.
func (s *Store) AdvanceFirmwareFloor(v uint32) (uint32, error) {
	var floor uint32
	err := s.update(persistence.SpaceFirmware, func(old []byte, found bool) ([]byte, error) {
		fw := &Firmware{}
		if found {
			var err error
			if fw, err = ParseFirmware(old); err != nil {
				return nil, err
			}
		}
		floor = fw.Versions
		if found && v <= fw.Versions {
			return nil, nil
		}
		if v > floor {
			glog.Infof("Advancing firmware floor %#08x -> %#08x", floor, v)
			floor = v
		}
		fw.Versions = floor
		return fw.Marshal(), nil
	})
	return floor, err
}

// AdvanceKernelFloor raises the kernel floor to v. A lower v leaves the
// stored floor alone. It returns the floor now stored.
func (s *Store) AdvanceKernelFloor(v uint32) (uint32, error) {
	var floor uint32
	err := s.update(persistence.SpaceKernel, func(old []byte, found bool) ([]byte, error) {
		k := &Kernel{}
		if found {
			var err error
			if k, err = ParseKernel(old); err != nil {
				return nil, err
			}
		}
		floor = k.Versions
		if found && v <= k.Versions {
			return nil, nil
		}
		if v > floor {
			glog.Infof("Advancing kernel floor %#08x -> %#08x", floor, v)
			floor = v
		}
		k.Versions = floor
		return k.Marshal(), nil
	})
	return floor, err
}

// LockFirmware prevents further writes to the firmware space.
func (s *Store) LockFirmware() { s.lock(persistence.SpaceFirmware) }

// LockKernel prevents further writes to the kernel space.
func (s *Store) LockKernel() { s.lock(persistence.SpaceKernel) }

func (s *Store) lock(space string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.locked[space] {
		glog.V(1).Infof("Locking %s space", space)
	}
	s.locked[space] = true
}

// Locked reports whether the named space has been locked.
func (s *Store) Locked(space string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked[space]
}

func (s *Store) readOrInit(space string, init []byte) ([]byte, error) {
	r, err := s.p.ReadOps(space)
	if err != nil {
		return nil, err
	}
	b, err := r.Get()
	if err == nil {
		return b, nil
	}
	if status.Code(err) != codes.NotFound {
		return nil, fmt.Errorf("failed to read %s space: %w", space, err)
	}
	glog.Infof("Initializing %s space", space)
	var stored []byte
	if err := s.update(space, func(old []byte, found bool) ([]byte, error) {
		if found {
			// Created under our feet; keep what is there.
			stored = old
			return nil, nil
		}
		stored = init
		return init, nil
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize %s space: %w", space, err)
	}
	return stored, nil
}

// update runs f inside a write transaction on space. f receives the current
// contents and returns the new contents, or nil to leave the space alone.
func (s *Store) update(space string, f func(old []byte, found bool) ([]byte, error)) error {
	if s.Locked(space) {
		return fmt.Errorf("%w: %s", ErrLocked, space)
	}
	w, err := s.p.WriteOps(space)
	if err != nil {
		return fmt.Errorf("WriteOps(%s): %w", space, err)
	}
	defer w.Close()
	found := true
	old, err := w.Get()
	if status.Code(err) == codes.NotFound {
		found = false
	} else if err != nil {
		return fmt.Errorf("failed to read %s space: %w", space, err)
	}
	new, err := f(old, found)
	if err != nil {
		return err
	}
	if new == nil {
		return nil
	}
	return w.Set(new)
}
