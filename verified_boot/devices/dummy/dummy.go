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

// Package dummy provides a fake device which keeps its flash, disks, NV
// record and EC state in files.
package dummy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/api"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/devices"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/boot"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/ecsync"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/kernelselect"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/nvstorage"
	"github.com/golang/glog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	manifestPath = "device.json"
	nvPath       = "nvram.bin"
	recordPath   = "last_boot.txt"
)

// Device is a fake device using the local filesystem for storage.
type Device struct {
	storage string
	cfg     api.DeviceConfig

	clock    *Clock
	keyboard *Keyboard
	display  *Display
	switches *Switches
	ec       *EC
	open     []*os.File
}

var _ devices.Device = &Device{}

// New opens the device stored in the directory storage.
func New(storage string) (*Device, error) {
	dStat, err := os.Stat(storage)
	if err != nil {
		return nil, fmt.Errorf("unable to stat device storage dir %q: %w", storage, err)
	}
	if !dStat.Mode().IsDir() {
		return nil, fmt.Errorf("device storage %q is not a directory", storage)
	}

	fPath := filepath.Join(storage, manifestPath)
	f, err := os.Open(fPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, devices.ErrNeedsInit(fmt.Errorf("couldn't read manifest %q: %w", fPath, err))
		}
		return nil, fmt.Errorf("failed to read manifest %q: %w", fPath, err)
	}
	defer f.Close()
	d := &Device{storage: storage}
	if err := json.NewDecoder(f).Decode(&d.cfg); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %q: %w", fPath, err)
	}

	d.clock = &Clock{}
	if d.keyboard, err = NewKeyboard(d.clock, d.cfg.Keys); err != nil {
		return nil, err
	}
	d.display = &Display{}
	d.switches = &Switches{
		clock:     d.clock,
		shutdown:  millis(d.cfg.ShutdownAfterMillis),
		recButton: d.cfg.RecoveryButton,
	}
	if d.cfg.EC != "" {
		d.ec = NewEC(d.path(d.cfg.EC))
	}
	return d, nil
}

// Init writes a manifest into storage, creating the directory if needed.
func Init(storage string, cfg api.DeviceConfig) error {
	if err := os.MkdirAll(storage, 0o755); err != nil {
		return fmt.Errorf("failed to create device storage %q: %w", storage, err)
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fPath := filepath.Join(storage, manifestPath)
	if err := ioutil.WriteFile(fPath, b, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest %q: %w", fPath, err)
	}
	return nil
}

func (d *Device) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(d.storage, name)
}

// Config returns the manifest the device was opened with.
func (d *Device) Config() api.DeviceConfig { return d.cfg }

// Image implements devices.Device.
func (d *Device) Image() ([]byte, error) {
	if d.cfg.Image == "" {
		return nil, errors.New("device has no flash image")
	}
	return ioutil.ReadFile(d.path(d.cfg.Image))
}

// Disks implements kernelselect.DiskLister. Every call reopens the disks, so
// that a rescan sees media inserted since the last one.
func (d *Device) Disks(_ context.Context, flags kernelselect.DiskFlags) ([]*kernelselect.Disk, error) {
	var out []*kernelselect.Disk
	for _, dc := range d.cfg.Disks {
		df := kernelselect.DiskFixed
		if dc.Removable {
			df = kernelselect.DiskRemovable
		}
		if df&flags == 0 {
			continue
		}
		disk, f, err := d.openDisk(dc, df)
		if os.IsNotExist(err) {
			glog.V(1).Infof("Disk %s is not present", dc.Name)
			continue
		}
		if err != nil {
			return nil, err
		}
		d.open = append(d.open, f)
		out = append(out, disk)
	}
	return out, nil
}

func (d *Device) openDisk(dc api.DiskConfig, flags kernelselect.DiskFlags) (*kernelselect.Disk, *os.File, error) {
	f, err := os.Open(d.path(dc.Image))
	if err != nil {
		return nil, nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to stat disk %s: %w", dc.Name, err)
	}
	tbl, err := LoadTable(d.path(dc.Partitions))
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("disk %s: %w", dc.Name, err)
	}
	bpl := dc.BytesPerLBA
	if bpl == 0 {
		bpl = kernelselect.RequiredLBASize
	}
	return &kernelselect.Disk{
		Name:        dc.Name,
		BytesPerLBA: bpl,
		LBACount:    uint64(fi.Size()) / bpl,
		Flags:       flags,
		Data:        f,
		Table:       tbl,
	}, f, nil
}

// NV implements devices.Device.
func (d *Device) NV() nvstorage.Backend { return &FileBackend{Path: d.path(nvPath)} }

// EC implements devices.Device.
func (d *Device) EC() ecsync.EC {
	if d.ec == nil {
		return nil
	}
	return d.ec
}

// RebootEC implements devices.Device.
func (d *Device) RebootEC(ctx context.Context) error {
	if d.ec == nil {
		return nil
	}
	return d.ec.RebootToRO(ctx)
}

// Hardware implements devices.Device.
func (d *Device) Hardware() boot.Hardware {
	h := d.cfg.Hardware
	return boot.Hardware{
		DevSwitch:          h.DevSwitch,
		RecSwitch:          h.RecSwitch,
		RecSwitchVirtual:   h.RecSwitchVirtual,
		WriteProtect:       h.WriteProtect,
		HonorVirtDevSwitch: h.HonorVirtDevSwitch,
		ECSoftwareSync:     h.ECSoftwareSync,
		ECSlowUpdate:       h.ECSlowUpdate,
		SupportsRONormal:   h.SupportsRONormal,
		AllowUSBOnRecToDev: h.AllowUSBOnRecToDev,
		PreviousBootFailed: h.PreviousBootFailed,
	}
}

// Keyboard implements devices.Device.
func (d *Device) Keyboard() boot.Keyboard { return d.keyboard }

// Display implements devices.Device.
func (d *Device) Display() boot.Display { return d.display }

// Screens returns what the display has shown so far.
func (d *Device) Screens() []boot.Screen { return d.display.Screens }

// Switches implements devices.Device.
func (d *Device) Switches() boot.Switches { return d.switches }

// Clock implements devices.Device.
func (d *Device) Clock() boot.Clock { return d.clock }

// Legacy implements devices.Device.
func (d *Device) Legacy() boot.Legacy { return Legacy{installed: d.cfg.LegacyBootloader} }

// KernelBufferSize implements devices.Device.
func (d *Device) KernelBufferSize() uint64 { return d.cfg.KernelBufferSize }

// SaveRecord implements devices.Device.
func (d *Device) SaveRecord(rec []byte) error {
	fPath := d.path(recordPath)
	if err := ioutil.WriteFile(fPath, rec, 0o644); err != nil {
		return fmt.Errorf("failed to write boot record to %q: %w", fPath, err)
	}
	return nil
}

// LastRecord implements devices.Device.
func (d *Device) LastRecord() ([]byte, error) {
	b, err := ioutil.ReadFile(d.path(recordPath))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return b, err
}

// Close releases the disk images opened by Disks.
func (d *Device) Close() error {
	var firstErr error
	for _, f := range d.open {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.open = nil
	return firstErr
}

// FileBackend keeps the NV record in a file.
type FileBackend struct {
	Path string
}

// Read implements nvstorage.Backend.
func (b *FileBackend) Read(_ context.Context) ([]byte, error) {
	raw, err := ioutil.ReadFile(b.Path)
	if os.IsNotExist(err) {
		return nil, status.Errorf(codes.NotFound, "no NV record at %q", b.Path)
	}
	return raw, err
}

// Write implements nvstorage.Backend.
func (b *FileBackend) Write(_ context.Context, raw []byte) error {
	return ioutil.WriteFile(b.Path, raw, 0o644)
}
