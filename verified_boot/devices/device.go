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

// Package devices defines the boot target abstraction driven by the boot
// emulator.
package devices

import (
	"context"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/boot"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/ecsync"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/kernelselect"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/nvstorage"
)

// ErrNeedsInit is returned by a device which has never been set up.
type ErrNeedsInit = error

// Device is a boot target. It supplies the platform collaborators for one
// power-on of the boot orchestrator.
type Device interface {
	kernelselect.DiskLister

	// Image returns the full flash image.
	Image() ([]byte, error)
	// NV returns the store of the NV record.
	NV() nvstorage.Backend
	// EC returns the embedded controller, or nil if the device has none.
	EC() ecsync.EC
	// RebootEC restarts the embedded controller in its RO image.
	RebootEC(ctx context.Context) error
	Hardware() boot.Hardware
	Keyboard() boot.Keyboard
	Display() boot.Display
	// Screens returns what the display has shown since the device was
	// opened.
	Screens() []boot.Screen
	Switches() boot.Switches
	Clock() boot.Clock
	Legacy() boot.Legacy
	KernelBufferSize() uint64
	// SaveRecord stores the measurement of the latest boot.
	SaveRecord(rec []byte) error
	// LastRecord returns the stored measurement, or nil if there is none.
	LastRecord() ([]byte, error)
	Close() error
}
