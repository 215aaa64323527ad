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

// Package impl is the implementation of the boot emulator.
package impl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/api"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/cmd/internal/secdb"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/devices"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/devices/dummy"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/boot"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/bootlog"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/flashimage"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/nvstorage"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/persistence"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/secdata"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/session"
	"github.com/golang/glog"
	"golang.org/x/mod/sumdb/note"
)

// BootEmulatorOpts encapsulates boot emulator parameters.
type BootEmulatorOpts struct {
	DeviceDir string
	// Init is a JSON device description to install in DeviceDir before
	// the first power-on.
	Init     string
	DBDriver string
	DBDSN    string
	// PrivateKey signs boot records and boot log checkpoints. Without it
	// nothing is logged.
	PrivateKey string
	Origin     string
	// MaxBoots bounds the number of power-ons when attempts keep asking
	// for a reboot.
	MaxBoots int
	Out      io.Writer
}

// Main runs the boot emulator.
func Main(ctx context.Context, opts BootEmulatorOpts) error {
	if opts.DeviceDir == "" {
		return errors.New("--device_dir is required")
	}
	if opts.Out == nil {
		opts.Out = ioutil.Discard
	}
	if opts.MaxBoots <= 0 {
		opts.MaxBoots = 1
	}
	if opts.Init != "" {
		cfg, err := readConfig(opts.Init)
		if err != nil {
			return err
		}
		if err := dummy.Init(opts.DeviceDir, cfg); err != nil {
			return fmt.Errorf("failed to initialise device: %w", err)
		}
	}
	var signer note.Signer
	if opts.PrivateKey != "" {
		s, err := note.NewSigner(opts.PrivateKey)
		if err != nil {
			return fmt.Errorf("failed to instantiate signer: %w", err)
		}
		signer = s
	}
	p, closeDB, err := secdb.Open(opts.DBDriver, opts.DBDSN)
	if err != nil {
		return err
	}
	defer closeDB()
	l := bootlog.New(p, opts.Origin, signer)

	enc := json.NewEncoder(opts.Out)
	for i := 0; i < opts.MaxBoots; i++ {
		disp, sum, err := powerOn(ctx, opts.DeviceDir, p, signer, l)
		if err != nil {
			return err
		}
		if err := enc.Encode(sum); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
		if disp == boot.DispositionBoot || disp == boot.DispositionShutdown {
			return nil
		}
	}
	glog.Warningf("Device still rebooting after %d power-ons", opts.MaxBoots)
	return nil
}

func readConfig(path string) (api.DeviceConfig, error) {
	var cfg api.DeviceConfig
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open device config: %w", err)
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse device config %q: %w", path, err)
	}
	return cfg, nil
}

// powerOn opens the device afresh, as a reset would, and runs one attempt.
func powerOn(ctx context.Context, dir string, p persistence.SpacePersistence, signer note.Signer, l *bootlog.Log) (boot.Disposition, api.BootSummary, error) {
	glog.Info("----RESET----")
	dev, err := dummy.New(dir)
	if err != nil {
		return boot.DispositionFailed, api.BootSummary{}, fmt.Errorf("failed to open device (use --init to set one up): %w", err)
	}
	defer dev.Close()
	return Run(ctx, dev, p, signer, l)
}

// Run boots dev once against the secure storage in p, storing the signed
// record on the device and in l.
func Run(ctx context.Context, dev devices.Device, p persistence.SpacePersistence, signer note.Signer, l *bootlog.Log) (boot.Disposition, api.BootSummary, error) {
	raw, err := dev.Image()
	if err != nil {
		return boot.DispositionFailed, api.BootSummary{}, err
	}
	img, err := flashimage.Parse(raw)
	if err != nil {
		return boot.DispositionFailed, api.BootSummary{}, fmt.Errorf("failed to parse flash image: %w", err)
	}
	o := &boot.Orchestrator{
		GBB:              img.GBB,
		VBlocks:          img.VBlocks,
		Bodies:           img,
		Disks:            dev,
		NV:               dev.NV(),
		NVBackup:         nvstorage.NewSpaceBackend(p, persistence.SpaceNVRAMBackup),
		Secdata:          secdata.NewStore(p),
		EC:               dev.EC(),
		Keyboard:         dev.Keyboard(),
		Display:          dev.Display(),
		Switches:         dev.Switches(),
		Clock:            dev.Clock(),
		Legacy:           dev.Legacy(),
		Hardware:         dev.Hardware(),
		KernelBufferSize: dev.KernelBufferSize(),
		Signer:           signer,
	}
	res, bootErr := o.Boot(ctx)
	if bootErr != nil {
		glog.Warningf("Boot(): %v", bootErr)
	}
	sum := summarize(res, bootErr, dev.Screens())

	if res.Record != nil {
		if err := dev.SaveRecord(res.Record); err != nil {
			return res.Disposition, sum, err
		}
		cp, err := l.Append(res.Record)
		if err != nil {
			return res.Disposition, sum, fmt.Errorf("failed to log boot record: %w", err)
		}
		sum.BootLogSize = cp.Size
	}
	if res.Disposition == boot.DispositionRebootToRO {
		if err := dev.RebootEC(ctx); err != nil {
			return res.Disposition, sum, fmt.Errorf("failed to reboot EC: %w", err)
		}
	}
	return res.Disposition, sum, nil
}

func summarize(res boot.Result, err error, screens []boot.Screen) api.BootSummary {
	sum := api.BootSummary{
		Disposition: res.Disposition.String(),
		Mode:        res.Mode.String(),
		Legacy:      res.Legacy,
		ECOutcome:   res.ECOutcome.String(),
	}
	if res.FirmwareSlot != session.SlotNone {
		sum.Firmware = res.FirmwareSlot.String()
	}
	if k := res.Kernel; k != nil {
		sum.Disk, sum.Partition = k.Disk, k.Partition
	}
	if res.Recovery != nvstorage.RecoveryNotRequested {
		sum.Recovery = res.Recovery.String()
	}
	if err != nil {
		sum.Error = err.Error()
	}
	for _, s := range screens {
		sum.Screens = append(sum.Screens, s.String())
	}
	return sum
}
