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

// Package impl is the implementation of gbb_utility.
package impl

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"strconv"
	"strings"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/gbb"
	"github.com/golang/glog"
)

// maxHWID bounds the hardware ID read back from an image.
const maxHWID = 256

// GBBOpts encapsulates gbb_utility parameters.
type GBBOpts struct {
	Mode   string
	Image  string
	Output string

	HWID        string
	Flags       string
	RootKey     string
	BitmapFV    string
	RecoveryKey string

	ShowFlags  bool
	ShowDigest bool

	Sizes string

	Out io.Writer
}

// Main runs gbb_utility.
func Main(_ context.Context, opts GBBOpts) error {
	if opts.Image == "" {
		return errors.New("--image is required")
	}
	if opts.Out == nil {
		opts.Out = ioutil.Discard
	}
	switch opts.Mode {
	case "get", "":
		return get(opts)
	case "set":
		return set(opts)
	case "create":
		return create(opts)
	}
	return fmt.Errorf("mode must be one of: 'get', 'set', 'create'; got %q", opts.Mode)
}

type region struct {
	id   gbb.RegionID
	file string
}

func regions(opts GBBOpts) []region {
	return []region{
		{gbb.RegionRootKey, opts.RootKey},
		{gbb.RegionBitmapFV, opts.BitmapFV},
		{gbb.RegionRecoveryKey, opts.RecoveryKey},
	}
}

func load(path string) ([]byte, []byte, *gbb.Header, error) {
	image, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to read image: %w", err)
	}
	off, h, err := gbb.Find(image)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	glog.V(1).Infof("Found GBB v%d.%d at %#x", h.MajorVersion, h.MinorVersion, off)
	return image, image[off:], h, nil
}

func get(opts GBBOpts) error {
	_, buf, h, err := load(opts.Image)
	if err != nil {
		return err
	}
	hwid, err := h.ReadHWID(buf, maxHWID)
	if err != nil {
		return err
	}
	fmt.Fprintf(opts.Out, "hardware_id: %s\n", hwid)
	if opts.ShowFlags {
		fmt.Fprintf(opts.Out, "flags: 0x%08x\n", uint32(h.Flags))
	}
	if opts.ShowDigest {
		if !h.HasDigest() {
			fmt.Fprintf(opts.Out, "digest: none (GBB v%d.%d)\n", h.MajorVersion, h.MinorVersion)
		} else {
			d := h.HWIDDigest()
			valid := "invalid"
			if d == sha256.Sum256([]byte(hwid)) {
				valid = "valid"
			}
			fmt.Fprintf(opts.Out, "digest: %x %s\n", d, valid)
		}
	}
	for _, r := range regions(opts) {
		if r.file == "" {
			continue
		}
		reg := h.Region(r.id)
		if err := ioutil.WriteFile(r.file, buf[reg.Offset:reg.Offset+reg.Size], 0o644); err != nil {
			return fmt.Errorf("failed to export %v: %w", r.id, err)
		}
		fmt.Fprintf(opts.Out, " - exported %v to file: %s\n", r.id, r.file)
	}
	return nil
}

func set(opts GBBOpts) error {
	image, buf, _, err := load(opts.Image)
	if err != nil {
		return err
	}
	if opts.HWID != "" {
		if err := gbb.SetHWID(buf, opts.HWID); err != nil {
			return err
		}
	}
	if opts.Flags != "" {
		f, err := strconv.ParseUint(opts.Flags, 0, 32)
		if err != nil {
			return fmt.Errorf("bad flags value %q: %w", opts.Flags, err)
		}
		if err := gbb.SetFlags(buf, gbb.Flags(f)); err != nil {
			return err
		}
	}
	for _, r := range regions(opts) {
		if r.file == "" {
			continue
		}
		data, err := ioutil.ReadFile(r.file)
		if err != nil {
			return fmt.Errorf("failed to read %v: %w", r.id, err)
		}
		if err := gbb.SetRegion(buf, r.id, data); err != nil {
			return err
		}
		fmt.Fprintf(opts.Out, " - import %v from %s: success\n", r.id, r.file)
	}
	return write(opts, image)
}

func create(opts GBBOpts) error {
	parts := strings.Split(opts.Sizes, ",")
	if len(parts) != 4 {
		return fmt.Errorf("--sizes needs 4 comma separated values, got %q", opts.Sizes)
	}
	var sizes [4]uint32
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 0, 32)
		if err != nil {
			return fmt.Errorf("bad size %q: %w", p, err)
		}
		sizes[i] = uint32(v)
	}
	return write(opts, gbb.Create(sizes))
}

func write(opts GBBOpts, data []byte) error {
	out := opts.Output
	if out == "" {
		out = opts.Image
	}
	if err := ioutil.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	fmt.Fprintf(opts.Out, "successfully saved new image to: %s\n", out)
	return nil
}
