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

// Package boot drives one boot attempt: it picks the mode, verifies the
// firmware, syncs the EC, runs the mode's kernel search or user interface
// and commits the results to secure storage.
package boot

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/crypto"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/ecsync"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/fwselect"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/gbb"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/kernelselect"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/measure"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/nvstorage"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/secdata"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/session"
	"github.com/golang/glog"
	"golang.org/x/mod/sumdb/note"
)

// Polling intervals.
const (
	KeyDelay             = 20 * time.Millisecond
	DiskDelay            = time.Second
	RemoveDelay          = 500 * time.Millisecond
	DevDelay             = 30 * time.Second
	DevDelayShort        = 2 * time.Second
	ToNormConfirmedDelay = 5 * time.Second
)

// Disposition is what the platform should do once Boot returns.
type Disposition int

const (
	// DispositionBoot hands over to the loaded kernel or legacy bootloader.
	DispositionBoot Disposition = iota
	DispositionRebootRequired
	// DispositionRebootToRO reboots with the EC in its RO image.
	DispositionRebootToRO
	DispositionShutdown
	// DispositionFailed reboots; a recovery request has usually been left
	// in NV storage.
	DispositionFailed
)

func (d Disposition) String() string {
	switch d {
	case DispositionBoot:
		return "boot"
	case DispositionRebootRequired:
		return "reboot_required"
	case DispositionRebootToRO:
		return "reboot_to_ro"
	case DispositionShutdown:
		return "shutdown"
	case DispositionFailed:
		return "failed"
	}
	return fmt.Sprintf("Disposition(%d)", int(d))
}

// Result describes how an attempt ended.
type Result struct {
	Disposition  Disposition
	Mode         session.Mode
	FirmwareSlot session.Slot
	// Kernel is set when a kernel was loaded.
	Kernel *kernelselect.Result
	// Legacy is set when the legacy bootloader was started.
	Legacy    bool
	Recovery  nvstorage.RecoveryReason
	ECOutcome ecsync.Outcome
	// ModeDigest is the boot mode measurement.
	ModeDigest [20]byte
	// Record is the signed measurement note, if a signer is configured.
	Record []byte
	State  *session.State
}

// Orchestrator holds the platform collaborators. It keeps no state between
// calls to Boot.
type Orchestrator struct {
	// GBB is the raw trust anchor block.
	GBB     []byte
	VBlocks [2][]byte
	Bodies  fwselect.BodySource
	Disks   kernelselect.DiskLister

	NV nvstorage.Backend
	// NVBackup may be nil, disabling backup and restore.
	NVBackup nvstorage.Backend
	Secdata  *secdata.Store

	// EC may be nil on platforms without one.
	EC       ecsync.EC
	Keyboard Keyboard
	Display  Display
	Switches Switches
	// Clock defaults to SystemClock.
	Clock Clock
	// Legacy may be nil.
	Legacy   Legacy
	Hardware Hardware

	KernelBufferSize uint64
	// Signer, if set, signs the measurement record.
	Signer note.Signer
}

// outcome is what a mode path decided.
type outcome struct {
	disp   Disposition
	kernel *kernelselect.Result
	legacy bool
	err    error
}

func failed(err error) outcome { return outcome{disp: DispositionFailed, err: err} }

func shutdown() outcome {
	return outcome{disp: DispositionShutdown, err: session.ErrShutdownRequested}
}

// attempt is the state of one call to Boot.
type attempt struct {
	o     *Orchestrator
	st    *session.State
	nv    *nvstorage.Context
	clock Clock

	gbb    *gbb.Header
	flags  gbb.Flags
	recKey *crypto.PublicKey
	fwmp   *secdata.FWMP
	ks     kernelselect.Selector

	ecOutcome ecsync.Outcome
	fwVersion uint32
}

// Boot runs one attempt. The error is nil for DispositionBoot and the two
// reboot dispositions; a shutdown returns session.ErrShutdownRequested.
func (o *Orchestrator) Boot(ctx context.Context) (Result, error) {
	nv, err := nvstorage.Open(ctx, o.NV)
	if err != nil {
		return Result{Disposition: DispositionFailed}, err
	}
	a := &attempt{o: o, st: session.New(), nv: nv, clock: o.Clock}
	if a.clock == nil {
		a.clock = SystemClock{}
	}
	out := a.run(ctx)
	return a.exit(ctx, out)
}

func (a *attempt) run(ctx context.Context) outcome {
	if a.nv.Reset() && a.o.NVBackup != nil {
		if _, err := a.nv.RestoreBackup(ctx, a.o.NVBackup); err != nil {
			glog.Warningf("Ignoring NV backup: %v", err)
		}
	}
	a.setup()
	if a.st.Mode != session.ModeRecovery {
		a.selectFirmware(ctx)
	}
	if a.o.EC != nil {
		if out, done := a.syncEC(ctx); done {
			return out
		}
	}
	glog.Infof("Booting in %v mode", a.st.Mode)
	switch a.st.Mode {
	case session.ModeRecovery:
		return a.recovery(ctx)
	case session.ModeDeveloper:
		return a.developer(ctx)
	default:
		return a.normal(ctx)
	}
}

// enterRecovery switches the attempt to recovery mode. The first reason
// given is kept.
func (a *attempt) enterRecovery(r nvstorage.RecoveryReason) {
	if a.st.Recovery == nvstorage.RecoveryNotRequested {
		a.st.Recovery = r
	}
	a.st.Mode = session.ModeRecovery
}

// setup parses the trust anchor, reads secure storage and selects the mode.
func (a *attempt) setup() {
	hw := a.o.Hardware
	st := a.st
	st.Set(session.FlagRecSwitchOn, hw.RecSwitch)
	st.Set(session.FlagRecSwitchVirtual, hw.RecSwitchVirtual)
	st.Set(session.FlagBootRecSwitchPhysical, hw.RecSwitch && !hw.RecSwitchVirtual)
	st.Set(session.FlagWriteProtect, hw.WriteProtect)
	st.Set(session.FlagHonorVirtDevSwitch, hw.HonorVirtDevSwitch)
	st.Set(session.FlagECSoftwareSync, hw.ECSoftwareSync)
	st.Set(session.FlagECSlowUpdate, hw.ECSlowUpdate)

	h, err := gbb.Parse(a.o.GBB)
	if err != nil {
		glog.Warningf("Trust anchor rejected: %v", err)
		a.enterRecovery(nvstorage.RecoveryGBBHeader)
	} else {
		a.gbb, a.flags = h, h.Flags
		if a.recKey, err = h.RecoveryKey(a.o.GBB); err != nil {
			glog.Warningf("No usable recovery key: %v", err)
		}
	}

	requested := a.nv.Recovery()
	switch {
	case hw.RecSwitch:
		requested = nvstorage.RecoveryROManual
	case requested == nvstorage.RecoveryNotRequested && hw.PreviousBootFailed:
		requested = nvstorage.RecoveryROFirmware
	}
	if requested != nvstorage.RecoveryNotRequested {
		a.enterRecovery(requested)
	}
	// A request is acted on once; the reason survives in the session.
	a.nv.ClearRecovery()

	fw, err := a.o.Secdata.Firmware()
	if err == nil {
		var k *secdata.Kernel
		if k, err = a.o.Secdata.Kernel(); err == nil {
			st.FirmwareFloorStart, st.FirmwareFloor = fw.Versions, fw.Versions
			st.KernelFloorStart, st.KernelFloor = k.Versions, k.Versions
			a.fwmp, err = a.o.Secdata.FWMP()
		}
	}
	if err != nil {
		if st.Mode != session.ModeRecovery {
			glog.Warningf("Secure storage unreadable: %v", err)
			a.enterRecovery(nvstorage.RecoveryRWTPMReadError)
		}
		fw = &secdata.Firmware{}
	}

	dev := a.selectDev(fw.Flags)
	st.Set(session.FlagDevSwitchOn, dev)
	if st.Mode != session.ModeRecovery && dev {
		st.Mode = session.ModeDeveloper
	}
	glog.V(1).Infof("Mode %v, dev %v, recovery %v", st.Mode, dev, st.Recovery)
}

// selectDev resolves the developer switch and records it in the firmware
// space.
func (a *attempt) selectDev(flags secdata.FirmwareFlags) bool {
	hw := a.o.Hardware
	old := flags
	dev := hw.DevSwitch
	if hw.HonorVirtDevSwitch {
		dev = flags&secdata.FlagVirtualDevMode != 0
	}
	forced := a.flags.Has(gbb.FlagForceDevSwitchOn)
	if forced {
		dev = true
	}
	if a.nv.GetBool(nvstorage.DisableDevRequest) {
		if !forced {
			glog.Info("Leaving developer mode on request")
			dev = false
			flags &^= secdata.FlagVirtualDevMode
		}
		a.nv.SetBool(nvstorage.DisableDevRequest, false)
	}
	if (flags&secdata.FlagLastBootDeveloper != 0) != dev {
		glog.Infof("Developer mode changed to %v; requesting owner clear", dev)
		a.nv.SetBool(nvstorage.ClearOwnerRequest, true)
	}
	if dev {
		flags |= secdata.FlagLastBootDeveloper
	} else {
		flags &^= secdata.FlagLastBootDeveloper
	}
	if flags != old {
		if err := a.o.Secdata.SetFirmwareFlags(flags); err != nil && a.st.Mode != session.ModeRecovery {
			glog.Warningf("SetFirmwareFlags(): %v", err)
			a.enterRecovery(nvstorage.RecoveryRWTPMWriteError)
		}
	}
	return dev
}

func (a *attempt) selectFirmware(ctx context.Context) {
	root, err := a.gbb.RootKey(a.o.GBB)
	if err != nil {
		glog.Warningf("No usable root key: %v", err)
		a.enterRecovery(nvstorage.RecoveryROInvalidRW)
		return
	}
	var s fwselect.Selector
	res, err := s.Select(ctx, a.st, fwselect.Params{
		GBB:              a.gbb,
		RootKey:          root,
		NV:               a.nv,
		VBlocks:          a.o.VBlocks,
		Bodies:           a.o.Bodies,
		SupportsRONormal: a.o.Hardware.SupportsRONormal,
		Floors:           a.o.Secdata,
	})
	switch {
	case errors.Is(err, session.ErrNoCandidate):
		glog.Warningf("Firmware selection failed: %v", err)
		a.enterRecovery(a.st.Recovery)
	case err != nil && a.st.FirmwareSlot == session.SlotNone:
		glog.Warningf("Firmware selection failed: %v", err)
		a.enterRecovery(nvstorage.RecoveryROInvalidRW)
	case err != nil:
		glog.Warningf("Firmware floor not stored: %v", err)
		a.enterRecovery(nvstorage.RecoveryROTPMWError)
	default:
		a.fwVersion = res.CombinedVersion
	}
}

// syncEC runs EC software sync. done is set if the attempt ends here.
func (a *attempt) syncEC(ctx context.Context) (out outcome, done bool) {
	c := &ecsync.Coordinator{
		EC:   a.o.EC,
		Wait: func(ctx context.Context) { a.o.Display.Show(ctx, ScreenWait) },
	}
	res, err := c.Sync(ctx, a.st, a.nv, a.flags)
	a.ecOutcome = res
	if err != nil {
		glog.Warningf("EC sync interrupted: %v", err)
		return shutdown(), true
	}
	if res == ecsync.OutcomeRebootToRO {
		return outcome{disp: DispositionRebootToRO}, true
	}
	if err := c.Finish(ctx, a.st, a.nv); err != nil {
		if errors.Is(err, session.ErrShutdownRequested) {
			return shutdown(), true
		}
		glog.Warningf("EC finish: %v", err)
		a.nv.RequestRecovery(nvstorage.RecoveryECSoftwareSync)
		return outcome{disp: DispositionRebootToRO}, true
	}
	return outcome{}, false
}

func (a *attempt) kernelParams() kernelselect.Params {
	return kernelselect.Params{
		RecoveryKey: a.recKey,
		NV:          a.nv,
		FWMP:        a.fwmp,
		BufferSize:  a.o.KernelBufferSize,
	}
}

func (a *attempt) loadKernel(ctx context.Context, flags kernelselect.DiskFlags) (*kernelselect.Result, error) {
	r, err := a.ks.LoadFromDisks(ctx, a.st, a.o.Disks, flags, a.kernelParams())
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (a *attempt) normal(ctx context.Context) outcome {
	k, err := a.loadKernel(ctx, kernelselect.DiskFixed)
	if err != nil {
		return failed(err)
	}
	return outcome{disp: DispositionBoot, kernel: k}
}

// wantShutdown reports whether a shutdown is pending, counting key as a
// possible power button press.
func (a *attempt) wantShutdown(ctx context.Context, key Key) bool {
	if ctx.Err() != nil {
		return true
	}
	req := a.o.Switches.ShutdownRequested(ctx)
	if a.flags.Has(gbb.FlagDisableLidShutdown) {
		req &^= ShutdownLidClosed
	}
	if key == KeyPowerShort {
		req |= ShutdownPowerButton
	}
	return req != 0
}

// exit applies the firmware B heuristic, commits floors, locks secure
// storage, measures the mode and commits NV storage.
func (a *attempt) exit(ctx context.Context, out outcome) (Result, error) {
	st, nv := a.st, a.nv
	advance := out.disp == DispositionBoot
	if st.Mode == session.ModeNormal && st.FirmwareSlot == session.SlotB && st.Has(session.FlagFWBTried) {
		if errors.Is(out.err, session.ErrInvalidKernelFound) {
			glog.Info("Trying firmware B found only invalid kernels; rebooting")
			nv.ClearRecovery()
			st.Recovery = nvstorage.RecoveryNotRequested
			out = outcome{disp: DispositionRebootRequired}
		}
		advance = false
	}

	if advance && st.Mode != session.ModeRecovery && st.KernelFloor > st.KernelFloorStart {
		if _, err := a.o.Secdata.AdvanceKernelFloor(st.KernelFloor); err != nil {
			glog.Warningf("AdvanceKernelFloor(%#x): %v", st.KernelFloor, err)
			st.Recovery = nvstorage.RecoveryRWTPMWriteError
			nv.RequestRecovery(st.Recovery)
			out = failed(fmt.Errorf("failed to store kernel floor: %w", err))
		}
	}
	a.o.Secdata.LockFirmware()
	a.o.Secdata.LockKernel()

	res := Result{
		Disposition:  out.disp,
		Mode:         st.Mode,
		FirmwareSlot: st.FirmwareSlot,
		Kernel:       out.kernel,
		Legacy:       out.legacy,
		Recovery:     st.Recovery,
		ECOutcome:    a.ecOutcome,
		State:        st,
	}
	res.ModeDigest = measure.ModeDigest(st.Has(session.FlagDevSwitchOn), st.Mode == session.ModeRecovery, st.FirmwareSlot != session.SlotNone)
	rec := measure.Record{
		Mode:            st.Mode.String(),
		FirmwareVersion: a.fwVersion,
		ModeDigest:      res.ModeDigest,
	}
	if st.FirmwareSlot != session.SlotNone {
		rec.FirmwareSlot = st.FirmwareSlot.String()
	}
	if k := out.kernel; k != nil {
		rec.KernelDisk, rec.KernelPartition, rec.KernelVersion = k.Disk, k.Partition, k.CombinedVersion
		rec.BodyDigest = sha256.Sum256(k.Body)
	}
	if a.o.Signer != nil {
		signed, err := measure.Sign(rec, a.o.Signer)
		if err != nil {
			glog.Warningf("Failed to sign measurement: %v", err)
		}
		res.Record = signed
	}

	if nv.GetBool(nvstorage.BackupRequest) && a.o.NVBackup != nil {
		if err := nv.SaveBackup(ctx, a.o.NVBackup); err != nil {
			glog.Warningf("NV backup: %v", err)
		} else {
			nv.SetBool(nvstorage.BackupRequest, false)
		}
	}
	if err := nv.Commit(ctx, a.o.NV); err != nil && out.err == nil {
		glog.Errorf("NV commit: %v", err)
		res.Disposition = DispositionFailed
		out.err = err
	}
	glog.Infof("Boot attempt ended: %v", res.Disposition)
	return res, out.err
}
