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

package fmap

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFindAndExtract(t *testing.T) {
	m := &FMap{
		VersionMajor: 1,
		VersionMinor: 1,
		Size:         0x1000,
		Name:         "FLASH",
		Areas: []Area{
			{Offset: 0x100, Size: 0x10, Name: AreaGBB},
			{Offset: 0x200, Size: 0x20, Name: AreaVBlockA},
		},
	}
	image := make([]byte, 0x1000)
	// A decoy signature with a bad version precedes the real map.
	copy(image[0x10:], Signature)
	copy(image[0x800:], m.Marshal())
	copy(image[0x200:], "vblock-a")

	off, got, err := Find(image)
	if err != nil {
		t.Fatalf("Find(): %v", err)
	}
	if off != 0x800 {
		t.Errorf("Find(): got offset %#x, want 0x800", off)
	}
	if diff := cmp.Diff(got, m); diff != "" {
		t.Errorf("Find() diff (-got +want):\n%s", diff)
	}
	b, err := got.Extract(image, AreaVBlockA)
	if err != nil {
		t.Fatalf("Extract(): %v", err)
	}
	if got, want := string(b[:8]), "vblock-a"; got != want {
		t.Errorf("Extract(): got %q, want %q", got, want)
	}
	if _, err := got.Extract(image, AreaFWMainB); err == nil {
		t.Error("Extract(missing): want error")
	}
}

func TestExtractOutOfBounds(t *testing.T) {
	m := &FMap{VersionMajor: 1, Areas: []Area{{Offset: 0xf00, Size: 0x200, Name: AreaGBB}}}
	if _, err := m.Extract(make([]byte, 0x1000), AreaGBB); err == nil {
		t.Error("Extract(): want error")
	}
}

func TestFindNone(t *testing.T) {
	if _, _, err := Find(make([]byte, 100)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Find(): got %v, want ErrNotFound", err)
	}
}

func TestParseTruncatedAreas(t *testing.T) {
	m := &FMap{VersionMajor: 1, Areas: []Area{{Name: "A"}, {Name: "B"}}}
	b := m.Marshal()
	if _, err := Parse(b[:len(b)-1]); err == nil {
		t.Error("Parse(truncated): want error")
	}
}
