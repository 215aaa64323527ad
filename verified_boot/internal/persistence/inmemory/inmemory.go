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

// Package inmemory provides space persistence held in process memory.
package inmemory

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/persistence"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewPersistence returns a persistence object that lives only in memory.
func NewPersistence() persistence.SpacePersistence {
	return &inMemoryPersistence{
		spaces: make(map[string][]byte),
	}
}

type inMemoryPersistence struct {
	mu     sync.RWMutex
	spaces map[string][]byte
}

func (p *inMemoryPersistence) Init() error {
	return nil
}

func (p *inMemoryPersistence) Spaces() ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	res := make([]string, 0, len(p.spaces))
	for k := range p.spaces {
		res = append(res, k)
	}
	sort.Strings(res)
	return res, nil
}

func (p *inMemoryPersistence) snapshot(space string) []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if got, ok := p.spaces[space]; ok {
		return append([]byte{}, got...)
	}
	return nil
}

func (p *inMemoryPersistence) ReadOps(space string) (persistence.SpaceReadOps, error) {
	return &readWriter{space: space, read: p.snapshot(space)}, nil
}

func (p *inMemoryPersistence) WriteOps(space string) (persistence.SpaceWriteOps, error) {
	old := p.snapshot(space)
	return &readWriter{
		space: space,
		read:  old,
		write: func(new []byte) error {
			return p.expectAndWrite(space, old, new)
		},
	}, nil
}

// expectAndWrite stores new only if the space still holds old.
func (p *inMemoryPersistence) expectAndWrite(space string, old, new []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	got, found := p.spaces[space]
	if old != nil {
		if !found {
			return fmt.Errorf("expected old state %x but no state found when updating space %q", old, space)
		}
		if !bytes.Equal(old, got) {
			return fmt.Errorf("expected old state %x but got %x when updating space %q", old, got, space)
		}
	} else if found {
		return fmt.Errorf("expected no state but found %x when updating space %q", got, space)
	}
	p.spaces[space] = append([]byte{}, new...)
	return nil
}

type readWriter struct {
	space string
	read  []byte
	write func([]byte) error
	done  bool
}

func (rw *readWriter) Get() ([]byte, error) {
	if rw.read == nil {
		return nil, status.Errorf(codes.NotFound, "no data in space %q", rw.space)
	}
	return append([]byte{}, rw.read...), nil
}

func (rw *readWriter) Set(data []byte) error {
	if rw.done {
		return fmt.Errorf("space %q already written in this transaction", rw.space)
	}
	rw.done = true
	return rw.write(data)
}

func (rw *readWriter) Close() {
}
