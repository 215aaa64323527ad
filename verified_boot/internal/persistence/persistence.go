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

// Package persistence defines interfaces and tests for storing the named
// secure-storage spaces which outlive a boot attempt.
package persistence

// Well-known space names.
const (
	SpaceFirmware    = "firmware"
	SpaceKernel      = "kernel"
	SpaceFWMP        = "fwmp"
	SpaceNVRAM       = "nvram"
	SpaceNVRAMBackup = "nvram_backup"
)

// SpacePersistence is a handle on persistent storage for named spaces.
type SpacePersistence interface {
	// Init sets up the persistence layer. This should be idempotent,
	// and will be called once per process startup.
	Init() error

	// Spaces returns the names of all spaces which hold data.
	Spaces() ([]string, error)

	// ReadOps returns read-only operations for the named space.
	ReadOps(space string) (SpaceReadOps, error)

	// WriteOps shows intent to write the named space. The returned
	// operations must have Close() called when the intent is complete.
	// The space need not exist yet; a successful Set creates it.
	WriteOps(space string) (SpaceWriteOps, error)
}

// SpaceReadOps allows a single space to be read.
type SpaceReadOps interface {
	// Get returns the contents of the space.
	// If the space has never been written, it must return codes.NotFound.
	Get() ([]byte, error)
}

// SpaceWriteOps allows a single space to be read and written in an ACID
// transaction.
// Note that Close() must be called whenever these operations are no longer
// needed.
type SpaceWriteOps interface {
	SpaceReadOps

	// Set stores new contents for the space. This commits the state to
	// persistence. After this call, only Close() should be called on
	// this object.
	Set(data []byte) error

	// Terminates the write operation, freeing all resources.
	// This method MUST be called.
	Close()
}
