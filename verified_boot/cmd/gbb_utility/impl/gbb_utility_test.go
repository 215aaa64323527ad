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
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/testonly"
	"github.com/google/go-cmp/cmp"
)

func TestCreateSetGet(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	blob := filepath.Join(dir, "gbb.blob")
	root := testonly.RootKey().Packed(t, 1)
	rootFile := filepath.Join(dir, "root.bin")
	if err := ioutil.WriteFile(rootFile, root, 0o644); err != nil {
		t.Fatalf("WriteFile(): %v", err)
	}

	var out bytes.Buffer
	if err := Main(ctx, GBBOpts{Mode: "create", Image: blob, Sizes: fmt.Sprintf("0x20,%d,0x10,0x10", len(root)), Out: &out}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := Main(ctx, GBBOpts{Mode: "set", Image: blob, HWID: "TEST 42", Flags: "0x9", RootKey: rootFile, Out: &out}); err != nil {
		t.Fatalf("set: %v", err)
	}

	exported := filepath.Join(dir, "exported.bin")
	out.Reset()
	if err := Main(ctx, GBBOpts{Image: blob, ShowFlags: true, ShowDigest: true, RootKey: exported, Out: &out}); err != nil {
		t.Fatalf("get: %v", err)
	}
	want := strings.Join([]string{
		"hardware_id: TEST 42",
		"flags: 0x00000009",
		fmt.Sprintf("digest: %x valid", sha256.Sum256([]byte("TEST 42"))),
		" - exported rootkey to file: " + exported,
		"",
	}, "\n")
	if diff := cmp.Diff(out.String(), want); diff != "" {
		t.Errorf("get output diff (-got +want):\n%s", diff)
	}
	got, err := ioutil.ReadFile(exported)
	if err != nil {
		t.Fatalf("ReadFile(): %v", err)
	}
	if diff := cmp.Diff(got, root); diff != "" {
		t.Errorf("exported root key diff (-got +want):\n%s", diff)
	}
}

func TestSetWithinImage(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	blob := filepath.Join(dir, "gbb.blob")
	if err := Main(ctx, GBBOpts{Mode: "create", Image: blob, Sizes: "0x20,0x40,0,0x40"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	gbbData, err := ioutil.ReadFile(blob)
	if err != nil {
		t.Fatalf("ReadFile(): %v", err)
	}
	// Embed the block at an aligned offset inside a larger image.
	image := make([]byte, 0x1000)
	copy(image[0x400:], gbbData)
	in, outFile := filepath.Join(dir, "bios.bin"), filepath.Join(dir, "new.bin")
	if err := ioutil.WriteFile(in, image, 0o644); err != nil {
		t.Fatalf("WriteFile(): %v", err)
	}
	if err := Main(ctx, GBBOpts{Mode: "set", Image: in, Output: outFile, HWID: "EMBEDDED"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	var out bytes.Buffer
	if err := Main(ctx, GBBOpts{Image: outFile, Out: &out}); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got, want := out.String(), "hardware_id: EMBEDDED\n"; got != want {
		t.Errorf("get: got %q, want %q", got, want)
	}
	// The input is left alone.
	out.Reset()
	if err := Main(ctx, GBBOpts{Image: in, Out: &out}); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got, want := out.String(), "hardware_id: \n"; got != want {
		t.Errorf("get(input): got %q, want %q", got, want)
	}
}

func TestErrors(t *testing.T) {
	dir := t.TempDir()
	blob := filepath.Join(dir, "gbb.blob")
	if err := Main(context.Background(), GBBOpts{Mode: "create", Image: blob, Sizes: "0x10,0x10,0,0x10"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, test := range []struct {
		desc string
		opts GBBOpts
	}{
		{desc: "no image", opts: GBBOpts{}},
		{desc: "bad mode", opts: GBBOpts{Mode: "frob", Image: blob}},
		{desc: "missing file", opts: GBBOpts{Image: filepath.Join(dir, "nope")}},
		{desc: "three sizes", opts: GBBOpts{Mode: "create", Image: blob, Sizes: "1,2,3"}},
		{desc: "bad size", opts: GBBOpts{Mode: "create", Image: blob, Sizes: "1,2,x,4"}},
		{desc: "bad flags", opts: GBBOpts{Mode: "set", Image: blob, Flags: "lots"}},
		{desc: "hwid too long", opts: GBBOpts{Mode: "set", Image: blob, HWID: "SIXTEEN CHARS OR MORE"}},
	} {
		t.Run(test.desc, func(t *testing.T) {
			if err := Main(context.Background(), test.opts); err == nil {
				t.Error("Main(): want error")
			}
		})
	}
}
