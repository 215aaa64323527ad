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
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/api"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/ecsync"
	"github.com/golang/glog"
)

// EC is an embedded controller whose flash and status live in a JSON file.
// Writes to a protected image, or a jump once jumping is disabled, need the
// EC to reboot to RO first.
type EC struct {
	path string
}

var _ ecsync.EC = &EC{}

// NewEC returns an EC backed by the state file at path.
func NewEC(path string) *EC { return &EC{path: path} }

// State reads the stored state.
func (e *EC) State() (api.ECState, error) {
	var s api.ECState
	b, err := ioutil.ReadFile(e.path)
	if err != nil {
		return s, fmt.Errorf("failed to read EC state: %w", err)
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("failed to decode EC state %q: %w", e.path, err)
	}
	return s, nil
}

// SetState replaces the stored state.
func (e *EC) SetState(s api.ECState) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return ioutil.WriteFile(e.path, b, 0o644)
}

func (e *EC) update(f func(s *api.ECState) error) error {
	s, err := e.State()
	if err != nil {
		return err
	}
	if err := f(&s); err != nil {
		return err
	}
	return e.SetState(s)
}

func pick(s *api.ECState, img ecsync.Image) (flashed, expected *[]byte, protected *bool) {
	if img == ecsync.ImageRO {
		return &s.RO, &s.ExpectedRO, &s.ROProtected
	}
	return &s.RW, &s.ExpectedRW, &s.RWProtected
}

// RunningRW implements ecsync.EC.
func (e *EC) RunningRW(_ context.Context) (bool, error) {
	s, err := e.State()
	return s.RunningRW, err
}

// HashImage implements ecsync.EC.
func (e *EC) HashImage(_ context.Context, img ecsync.Image) ([]byte, error) {
	s, err := e.State()
	if err != nil {
		return nil, err
	}
	flashed, _, _ := pick(&s, img)
	sum := sha256.Sum256(*flashed)
	return sum[:], nil
}

// ExpectedHash implements ecsync.EC. The dummy firmware carries only images.
func (e *EC) ExpectedHash(context.Context, ecsync.Image) ([]byte, error) {
	return nil, nil
}

// ExpectedImage implements ecsync.EC.
func (e *EC) ExpectedImage(_ context.Context, img ecsync.Image) ([]byte, error) {
	s, err := e.State()
	if err != nil {
		return nil, err
	}
	_, expected, _ := pick(&s, img)
	if len(*expected) == 0 {
		return nil, fmt.Errorf("no expected EC %v image", img)
	}
	return *expected, nil
}

// UpdateImage implements ecsync.EC.
func (e *EC) UpdateImage(_ context.Context, img ecsync.Image, data []byte) error {
	return e.update(func(s *api.ECState) error {
		flashed, _, protected := pick(s, img)
		if *protected {
			return fmt.Errorf("EC %v is protected: %w", img, ecsync.ErrRebootRequired)
		}
		if img == ecsync.ImageRW && s.RunningRW {
			return errors.New("cannot update the running EC RW image")
		}
		*flashed = append([]byte(nil), data...)
		glog.Infof("EC %v updated (%d bytes)", img, len(data))
		return nil
	})
}

// JumpToRW implements ecsync.EC.
func (e *EC) JumpToRW(_ context.Context) error {
	return e.update(func(s *api.ECState) error {
		if s.JumpDisabled {
			return fmt.Errorf("EC jump disabled: %w", ecsync.ErrRebootRequired)
		}
		s.RunningRW = true
		return nil
	})
}

// Protect implements ecsync.EC.
func (e *EC) Protect(_ context.Context, img ecsync.Image) error {
	return e.update(func(s *api.ECState) error {
		_, _, protected := pick(s, img)
		*protected = true
		return nil
	})
}

// DisableJump implements ecsync.EC.
func (e *EC) DisableJump(_ context.Context) error {
	return e.update(func(s *api.ECState) error {
		s.JumpDisabled = true
		return nil
	})
}

// VbootDone implements ecsync.EC.
func (e *EC) VbootDone(_ context.Context, inRecovery bool) error {
	return e.update(func(s *api.ECState) error {
		glog.V(1).Infof("EC told verified boot is done (recovery %v)", inRecovery)
		s.VbootDone = true
		return nil
	})
}

// BatteryCutoff implements ecsync.EC.
func (e *EC) BatteryCutoff(_ context.Context) error {
	return e.update(func(s *api.ECState) error {
		s.BatteryCut = true
		return nil
	})
}

// RebootToRO restarts the EC in RO with its flash unprotected and jumping
// allowed.
func (e *EC) RebootToRO(_ context.Context) error {
	return e.update(func(s *api.ECState) error {
		s.RunningRW = false
		s.ROProtected, s.RWProtected = false, false
		s.JumpDisabled = false
		s.VbootDone = false
		return nil
	})
}
