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

// Package testonly contains conformance tests shared by every
// persistence.SpacePersistence implementation.
package testonly

import (
	"bytes"
	"testing"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/persistence"
	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Factory returns a fresh persistence layer and a function to release it.
type Factory func() (persistence.SpacePersistence, func() error)

// TestSpaces checks that written spaces are listed.
func TestSpaces(t *testing.T, f Factory) {
	p, close := f()
	defer close()
	if err := p.Init(); err != nil {
		t.Fatalf("Init(): %v", err)
	}
	if spaces, err := p.Spaces(); err != nil {
		t.Errorf("Spaces(): %v", err)
	} else if got, want := len(spaces), 0; got != want {
		t.Errorf("got %d spaces, want %d", got, want)
	}

	for _, s := range []string{persistence.SpaceKernel, persistence.SpaceFirmware} {
		if err := write(p, s, []byte{1, 2, 3}); err != nil {
			t.Fatal(err)
		}
	}

	if spaces, err := p.Spaces(); err != nil {
		t.Errorf("Spaces(): %v", err)
	} else if diff := cmp.Diff(spaces, []string{persistence.SpaceFirmware, persistence.SpaceKernel}); diff != "" {
		t.Errorf("Spaces() diff (-got +want):\n%s", diff)
	}
}

// TestWriteOps checks NotFound semantics and read-after-write.
func TestWriteOps(t *testing.T, f Factory) {
	p, close := f()
	defer close()
	if err := p.Init(); err != nil {
		t.Fatalf("Init(): %v", err)
	}

	read, err := p.ReadOps(persistence.SpaceFirmware)
	if err != nil {
		t.Fatalf("ReadOps(): %v", err)
	}
	_, err = read.Get()
	if got, want := status.Code(err), codes.NotFound; got != want {
		t.Fatalf("error code got != want (%s, %s): %v", got, want, err)
	}

	if err := write(p, persistence.SpaceFirmware, []byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := write(p, persistence.SpaceFirmware, []byte("second")); err != nil {
		t.Fatal(err)
	}

	read, err = p.ReadOps(persistence.SpaceFirmware)
	if err != nil {
		t.Fatalf("ReadOps(): %v", err)
	}
	got, err := read.Get()
	if err != nil {
		t.Fatalf("Get(): %v", err)
	}
	if want := []byte("second"); !bytes.Equal(got, want) {
		t.Errorf("got != want (%q != %q)", got, want)
	}

	// An empty space exists, and is distinct from a missing one.
	if err := write(p, persistence.SpaceFWMP, []byte{}); err != nil {
		t.Fatal(err)
	}
	read, err = p.ReadOps(persistence.SpaceFWMP)
	if err != nil {
		t.Fatalf("ReadOps(): %v", err)
	}
	if got, err := read.Get(); err != nil || len(got) != 0 {
		t.Errorf("Get(empty): got (%x, %v), want ([], nil)", got, err)
	}
}

// TestSetOnce checks that a write transaction sees the state it started with.
func TestSetOnce(t *testing.T, f Factory) {
	p, close := f()
	defer close()
	if err := p.Init(); err != nil {
		t.Fatalf("Init(): %v", err)
	}
	if err := write(p, persistence.SpaceKernel, []byte{7}); err != nil {
		t.Fatal(err)
	}

	w, err := p.WriteOps(persistence.SpaceKernel)
	if err != nil {
		t.Fatalf("WriteOps(): %v", err)
	}
	got, err := w.Get()
	if err != nil {
		t.Fatalf("Get(): %v", err)
	}
	if want := []byte{7}; !bytes.Equal(got, want) {
		t.Errorf("Get() in transaction: got %x, want %x", got, want)
	}
	if err := w.Set([]byte{9}); err != nil {
		t.Fatalf("Set(): %v", err)
	}
	w.Close()

	r, err := p.ReadOps(persistence.SpaceKernel)
	if err != nil {
		t.Fatalf("ReadOps(): %v", err)
	}
	if got, err := r.Get(); err != nil || !bytes.Equal(got, []byte{9}) {
		t.Errorf("Get() after commit: got (%x, %v), want (09, nil)", got, err)
	}
}

func write(p persistence.SpacePersistence, space string, data []byte) error {
	w, err := p.WriteOps(space)
	if err != nil {
		return err
	}
	defer w.Close()
	return w.Set(data)
}
