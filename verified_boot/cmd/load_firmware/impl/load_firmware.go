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

// Package impl is the implementation of load_firmware.
package impl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/flashimage"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/fwselect"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/gbb"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/nvstorage"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/session"
	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"
)

// LoadFirmwareOpts encapsulates load_firmware parameters.
type LoadFirmwareOpts struct {
	Images           []string
	FirmwareFloor    uint32
	TryB             bool
	SupportsRONormal bool
	Out              io.Writer
}

// Report is the outcome of selection over one image.
type Report struct {
	Image   string
	Slot    session.Slot
	Version uint32
	// Floor is the floor selection would store.
	Floor    uint32
	Checks   [2]session.FirmwareCheck
	Recovery nvstorage.RecoveryReason
	Err      error
}

func (r Report) String() string {
	checks := fmt.Sprintf("A=%v B=%v", r.Checks[session.SlotA], r.Checks[session.SlotB])
	if r.Err != nil {
		return fmt.Sprintf("%s: no valid firmware (%s, recovery %#02x)", r.Image, checks, uint8(r.Recovery))
	}
	return fmt.Sprintf("%s: slot %v version %#08x floor %#08x (%s)", r.Image, r.Slot, r.Version, r.Floor, checks)
}

// Main runs load_firmware. Images are verified concurrently, each with its
// own session. It fails if any image cannot be read or holds no bootable
// slot.
func Main(ctx context.Context, opts LoadFirmwareOpts) error {
	if len(opts.Images) == 0 {
		return errors.New("at least one image is required")
	}
	if opts.Out == nil {
		opts.Out = ioutil.Discard
	}
	reports, err := Verify(ctx, opts)
	if err != nil {
		return err
	}
	bad := 0
	for _, r := range reports {
		fmt.Fprintln(opts.Out, r)
		if r.Err != nil {
			bad++
		}
	}
	if bad > 0 {
		return fmt.Errorf("%d of %d images have no valid firmware", bad, len(reports))
	}
	return nil
}

// Verify runs selection over every image and returns the reports in the
// order of opts.Images.
func Verify(ctx context.Context, opts LoadFirmwareOpts) ([]Report, error) {
	reports := make([]Report, len(opts.Images))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range opts.Images {
		i, path := i, path
		g.Go(func() error {
			data, err := ioutil.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}
			r, err := verifyImage(ctx, data, opts)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			r.Image = path
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func verifyImage(ctx context.Context, data []byte, opts LoadFirmwareOpts) (Report, error) {
	img, err := flashimage.Parse(data)
	if err != nil {
		return Report{}, err
	}
	h, err := gbb.Parse(img.GBB)
	if err != nil {
		return Report{}, err
	}
	root, err := h.RootKey(img.GBB)
	if err != nil {
		return Report{}, fmt.Errorf("root key: %w", err)
	}

	st := session.New()
	st.FirmwareFloor = opts.FirmwareFloor
	nv := nvstorage.New()
	if opts.TryB {
		nv.Set(nvstorage.TryBCount, 1)
	}
	var s fwselect.Selector
	res, err := s.Select(ctx, st, fwselect.Params{
		GBB:              h,
		RootKey:          root,
		NV:               nv,
		VBlocks:          img.VBlocks,
		Bodies:           img,
		SupportsRONormal: opts.SupportsRONormal,
	})
	r := Report{
		Slot:     res.Slot,
		Version:  res.CombinedVersion,
		Floor:    st.FirmwareFloor,
		Checks:   st.FirmwareChecks,
		Recovery: st.Recovery,
		Err:      err,
	}
	if err != nil && !errors.Is(err, session.ErrNoCandidate) {
		return Report{}, err
	}
	glog.V(1).Infof("Image verified: %v", r)
	return r, nil
}
