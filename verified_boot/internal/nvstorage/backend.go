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

package nvstorage

import (
	"context"
	"fmt"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/persistence"
	"github.com/golang/glog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Backend reads and writes the raw record.
// Read must return codes.NotFound if nothing has been stored yet.
type Backend interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, raw []byte) error
}

// Open reads the record from b. A missing or invalid record yields defaults,
// with Reset reporting true.
func Open(ctx context.Context, b Backend) (*Context, error) {
	raw, err := b.Read(ctx)
	if err != nil {
		if status.Code(err) != codes.NotFound {
			return nil, fmt.Errorf("failed to read NV record: %w", err)
		}
		glog.Infof("No NV record stored; using defaults")
		raw = nil
	}
	return Load(raw), nil
}

// Commit writes the record to b if it has changed since it was loaded.
func (c *Context) Commit(ctx context.Context, b Backend) error {
	if !c.changed {
		return nil
	}
	if err := b.Write(ctx, c.Bytes()); err != nil {
		return fmt.Errorf("failed to write NV record: %w", err)
	}
	c.changed = false
	c.reset = false
	glog.V(1).Infof("Committed NV record %x", c.raw)
	return nil
}

// SaveBackup writes the curated backup subset to b.
func (c *Context) SaveBackup(ctx context.Context, b Backend) error {
	if err := b.Write(ctx, c.Backup()); err != nil {
		return fmt.Errorf("failed to write NV backup: %w", err)
	}
	return nil
}

// RestoreBackup copies the curated subset out of the backup held by b.
// It returns false, with no error, when there is no backup.
func (c *Context) RestoreBackup(ctx context.Context, b Backend) (bool, error) {
	raw, err := b.Read(ctx)
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read NV backup: %w", err)
	}
	if err := c.RestoreFrom(raw); err != nil {
		return false, err
	}
	glog.Infof("Restored NV settings from backup")
	return true, nil
}

// SpaceBackend stores the record in a persistence space.
type SpaceBackend struct {
	p     persistence.SpacePersistence
	space string
}

// NewSpaceBackend returns a Backend over the named space of p.
func NewSpaceBackend(p persistence.SpacePersistence, space string) *SpaceBackend {
	return &SpaceBackend{p: p, space: space}
}

// Read implements Backend.
func (s *SpaceBackend) Read(_ context.Context) ([]byte, error) {
	r, err := s.p.ReadOps(s.space)
	if err != nil {
		return nil, err
	}
	return r.Get()
}

// Write implements Backend.
func (s *SpaceBackend) Write(_ context.Context, raw []byte) error {
	w, err := s.p.WriteOps(s.space)
	if err != nil {
		return err
	}
	defer w.Close()
	return w.Set(raw)
}
