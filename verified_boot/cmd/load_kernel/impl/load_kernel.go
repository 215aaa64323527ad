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

// Package impl is the implementation of load_kernel.
package impl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/devices/dummy"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/crypto"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/kernelselect"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/nvstorage"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/session"
)

// LoadKernelOpts encapsulates load_kernel parameters.
type LoadKernelOpts struct {
	Disk        string
	Partitions  string
	Key         string
	Mode        string
	KernelFloor uint32
	SignedOnly  bool
	BufferSize  uint64
	// Commit writes the marks made during the scan to the partition map.
	Commit bool
	Out    io.Writer
}

var modes = map[string]session.Mode{
	"normal":    session.ModeNormal,
	"developer": session.ModeDeveloper,
	"recovery":  session.ModeRecovery,
}

// readOnly drops the marks made against a table.
type readOnly struct {
	*dummy.Table
}

func (readOnly) Commit() error { return nil }

// Main runs load_kernel.
func Main(ctx context.Context, opts LoadKernelOpts) error {
	if opts.Disk == "" || opts.Partitions == "" || opts.Key == "" {
		return errors.New("--disk, --partitions and --key are required")
	}
	if opts.Out == nil {
		opts.Out = ioutil.Discard
	}
	mode, ok := modes[opts.Mode]
	if !ok {
		return fmt.Errorf("mode must be one of: 'normal', 'developer', 'recovery'; got %q", opts.Mode)
	}
	rawKey, err := ioutil.ReadFile(opts.Key)
	if err != nil {
		return fmt.Errorf("failed to read key: %w", err)
	}
	key, err := crypto.ParsePackedKey(rawKey)
	if err != nil {
		return fmt.Errorf("failed to parse key: %w", err)
	}

	f, err := os.Open(opts.Disk)
	if err != nil {
		return fmt.Errorf("failed to open disk: %w", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat disk: %w", err)
	}
	tbl, err := dummy.LoadTable(opts.Partitions)
	if err != nil {
		return err
	}
	var pt kernelselect.PartitionTable = tbl
	if !opts.Commit {
		pt = readOnly{tbl}
	}
	disk := &kernelselect.Disk{
		Name:        opts.Disk,
		BytesPerLBA: kernelselect.RequiredLBASize,
		LBACount:    uint64(fi.Size()) / kernelselect.RequiredLBASize,
		Flags:       kernelselect.DiskFixed,
		Data:        f,
		Table:       pt,
	}

	st := session.New()
	st.Mode = mode
	st.KernelFloorStart, st.KernelFloor = opts.KernelFloor, opts.KernelFloor
	nv := nvstorage.New()
	nv.SetBool(nvstorage.DevBootSignedOnly, opts.SignedOnly)
	p := kernelselect.Params{
		Disk:       disk,
		NV:         nv,
		BufferSize: opts.BufferSize,
	}
	if mode == session.ModeRecovery {
		p.RecoveryKey = key
	} else {
		st.KernelSubkey = key
	}

	var s kernelselect.Selector
	res, err := s.Load(ctx, st, p)
	if call := st.KernelCalls.Last(); call != nil {
		for _, part := range call.Partitions.Items() {
			fmt.Fprintf(opts.Out, "partition %d: version %#08x %v\n", part.Index, part.CombinedVersion, part.Check)
		}
	}
	if err != nil {
		fmt.Fprintf(opts.Out, "no kernel: recovery %#02x\n", uint8(nv.Recovery()))
		return err
	}
	fmt.Fprintf(opts.Out, "chosen partition %d version %#08x, %d byte body, kernel floor %#08x\n",
		res.Partition, res.CombinedVersion, len(res.Body), st.KernelFloor)
	return nil
}
