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

package inmemory

import (
	"testing"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/persistence"
	ptest "github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/persistence/testonly"
)

var nopClose = func() error { return nil }

func TestSpaces(t *testing.T) {
	ptest.TestSpaces(t, func() (persistence.SpacePersistence, func() error) {
		return NewPersistence(), nopClose
	})
}

func TestWriteOps(t *testing.T) {
	ptest.TestWriteOps(t, func() (persistence.SpacePersistence, func() error) {
		return NewPersistence(), nopClose
	})
}

func TestSetOnce(t *testing.T) {
	ptest.TestSetOnce(t, func() (persistence.SpacePersistence, func() error) {
		return NewPersistence(), nopClose
	})
}

func TestFloorNeverRegresses(t *testing.T) {
	ptest.TestFloorNeverRegresses(t, func() (persistence.SpacePersistence, func() error) {
		return NewPersistence(), nopClose
	})
}

func TestLock(t *testing.T) {
	ptest.TestLock(t, func() (persistence.SpacePersistence, func() error) {
		return NewPersistence(), nopClose
	})
}

func TestFlagsAndFWMP(t *testing.T) {
	ptest.TestFlagsAndFWMP(t, func() (persistence.SpacePersistence, func() error) {
		return NewPersistence(), nopClose
	})
}

func TestWriteOpsConflict(t *testing.T) {
	p := NewPersistence()

	for i := 0; i < 10; i++ {
		w, err := p.WriteOps("foo")
		if err != nil {
			t.Fatal(err)
		}
		conflict, err := p.WriteOps("foo")
		if err != nil {
			t.Fatal(err)
		}

		if err := w.Set([]byte{byte(i), 1}); err != nil {
			t.Fatal(err)
		}
		if err := conflict.Set([]byte{byte(i), 2}); err == nil {
			t.Fatal("expected error on conflicting write")
		}
		w.Close()
		conflict.Close()
	}
}
