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

package boot

import (
	"context"
	"errors"
	"time"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/gbb"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/kernelselect"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/nvstorage"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/secdata"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/session"
	"github.com/golang/glog"
)

// confirmation is the answer to a yes/no question.
type confirmation int

const (
	confirmNo confirmation = iota
	confirmYes
	confirmShutdown
)

// confirm waits for the user to answer a question on screen. Enter means
// yes, but only from a trusted keyboard if mustTrust is set. Pressing and
// releasing a physical recovery button also means yes.
func (a *attempt) confirm(ctx context.Context, mustTrust, spaceMeansNo bool) confirmation {
	recPressed := false
	for {
		key, kf := a.o.Keyboard.ReadKey(ctx)
		switch key {
		case KeyEnter:
			if mustTrust && kf&KeyTrusted == 0 {
				glog.V(1).Info("Ignoring confirmation from untrusted keyboard")
				a.o.Display.Beep(ctx)
				break
			}
			return confirmYes
		case KeySpace:
			if spaceMeansNo {
				return confirmNo
			}
		case KeyEsc:
			return confirmNo
		default:
			if !a.st.Has(session.FlagRecSwitchVirtual) {
				if a.o.Switches.RecButtonPressed(ctx) {
					recPressed = true
				} else if recPressed {
					return confirmYes
				}
			}
		}
		if a.wantShutdown(ctx, key) {
			return confirmShutdown
		}
		a.clock.Sleep(ctx, KeyDelay)
	}
}

type devState int

const (
	devCountdown devState = iota
	// devDisabled offers only the way back to normal mode.
	devDisabled
	devDone
)

type devEvent int

const (
	devTimeout devEvent = iota
	devShutdown
	devCtrlD
	devCtrlU
	devCtrlL
	devToNorm
	devYes
	devNo
)

type devTransition struct {
	s  devState
	ev devEvent
}

// devTable is the developer screen state machine. Events with no entry are
// ignored.
var devTable = map[devTransition]func(*devUI, context.Context) devState{
	{devCountdown, devShutdown}: (*devUI).shutdown,
	{devCountdown, devTimeout}:  (*devUI).fallout,
	{devCountdown, devCtrlD}:    (*devUI).dismiss,
	{devCountdown, devCtrlU}:    (*devUI).ctrlU,
	{devCountdown, devCtrlL}:    (*devUI).ctrlL,
	{devCountdown, devToNorm}:   (*devUI).toNorm,

	{devDisabled, devShutdown}: (*devUI).shutdown,
	{devDisabled, devYes}:      (*devUI).leaveDev,
	{devDisabled, devNo}:       (*devUI).stayDisabled,
}

// devUI is the state of the developer screen.
type devUI struct {
	a *attempt

	allowUSB, allowLegacy bool
	useUSB, useLegacy     bool
	dismissed             bool
	deadline              time.Time

	out outcome
}

func (a *attempt) developer(ctx context.Context) outcome {
	nv, fwmp := a.nv, a.fwmp
	d := &devUI{
		a:           a,
		allowUSB:    nv.GetBool(nvstorage.DevBootUSB) || a.flags.Has(gbb.FlagForceDevBootUSB) || fwmp.Has(secdata.FWMPDevEnableUSB),
		allowLegacy: nv.GetBool(nvstorage.DevBootLegacy) || a.flags.Has(gbb.FlagForceDevBootLegacy) || fwmp.Has(secdata.FWMPDevEnableLegacy),
	}
	switch nv.Get(nvstorage.DevDefaultBoot) {
	case nvstorage.DefaultBootUSB:
		d.useUSB = true
	case nvstorage.DefaultBootLegacy:
		d.useLegacy = true
	}
	if a.flags.Has(gbb.FlagDefaultDevBootLegacy) {
		d.useLegacy, d.useUSB = true, false
	}

	s := devCountdown
	if fwmp.Has(secdata.FWMPDevDisableBoot) && !a.flags.Has(gbb.FlagForceDevSwitchOn) {
		glog.Info("Developer boot is disabled by the device owner")
		s = d.stayDisabled(ctx)
	} else {
		d.restart(ctx)
	}
	for s != devDone {
		ev := d.next(ctx, s)
		h, ok := devTable[devTransition{s, ev}]
		if !ok {
			glog.V(2).Infof("Developer screen: ignoring event %d in state %d", ev, s)
			continue
		}
		s = h(d, ctx)
	}
	return d.out
}

// restart shows the warning screen and starts a fresh countdown.
func (d *devUI) restart(ctx context.Context) {
	delay := DevDelay
	if d.a.flags.Has(gbb.FlagDevScreenShortDelay) {
		delay = DevDelayShort
	}
	d.deadline = d.a.clock.Now().Add(delay)
	d.a.o.Display.Show(ctx, ScreenDeveloperWarning)
}

// next blocks until something happens in state s.
func (d *devUI) next(ctx context.Context, s devState) devEvent {
	a := d.a
	if s == devDisabled {
		switch a.confirm(ctx, true, false) {
		case confirmYes:
			return devYes
		case confirmShutdown:
			return devShutdown
		}
		return devNo
	}
	for {
		key, _ := a.o.Keyboard.ReadKey(ctx)
		if a.wantShutdown(ctx, key) {
			return devShutdown
		}
		switch key {
		case KeyCtrlD:
			return devCtrlD
		case KeyCtrlU:
			return devCtrlU
		case KeyCtrlL:
			return devCtrlL
		case KeySpace:
			return devToNorm
		case KeyEnter:
			if a.flags.Has(gbb.FlagEnterTriggersToNorm) {
				return devToNorm
			}
		}
		if !a.clock.Now().Before(d.deadline) {
			return devTimeout
		}
		a.clock.Sleep(ctx, KeyDelay)
	}
}

func (d *devUI) finish(out outcome) devState {
	d.out = out
	return devDone
}

func (d *devUI) shutdown(context.Context) devState {
	glog.Info("Shutdown requested")
	return d.finish(shutdown())
}

func (d *devUI) dismiss(ctx context.Context) devState {
	glog.V(1).Info("Developer screen dismissed; booting from fixed disk")
	d.dismissed = true
	return d.fallout(ctx)
}

// fallout boots the default target, falling back to the fixed disk.
func (d *devUI) fallout(ctx context.Context) devState {
	if d.useLegacy && !d.dismissed && d.tryLegacy(ctx) {
		return devDone
	}
	if d.useUSB && !d.dismissed && d.allowUSB && d.tryUSB(ctx) {
		return devDone
	}
	k, err := d.a.loadKernel(ctx, kernelselect.DiskFixed)
	if err != nil {
		return d.finish(failed(err))
	}
	return d.finish(outcome{disp: DispositionBoot, kernel: k})
}

func (d *devUI) ctrlU(ctx context.Context) devState {
	if !d.allowUSB {
		glog.Info("USB boot is disabled")
		d.a.o.Display.Beep(ctx)
		return devCountdown
	}
	d.a.o.Display.Show(ctx, ScreenBlank)
	if d.tryUSB(ctx) {
		return devDone
	}
	d.a.o.Display.Show(ctx, ScreenDeveloperWarning)
	return devCountdown
}

// tryUSB loads a kernel from removable media. A failure is not a reason to
// enter recovery, so any request it left is withdrawn.
func (d *devUI) tryUSB(ctx context.Context) bool {
	a := d.a
	saved := a.st.Recovery
	k, err := a.loadKernel(ctx, kernelselect.DiskRemovable)
	if err == nil {
		d.out = outcome{disp: DispositionBoot, kernel: k}
		return true
	}
	glog.Infof("No USB kernel: %v", err)
	a.st.Recovery = saved
	a.nv.ClearRecovery()
	a.o.Display.Beep(ctx)
	return false
}

func (d *devUI) ctrlL(ctx context.Context) devState {
	if d.tryLegacy(ctx) {
		return devDone
	}
	return devCountdown
}

// tryLegacy starts the legacy bootloader with the kernel floor locked.
func (d *devUI) tryLegacy(ctx context.Context) bool {
	a := d.a
	if !d.allowLegacy || a.o.Legacy == nil {
		glog.Info("Legacy boot is disabled")
		a.o.Display.Beep(ctx)
		return false
	}
	a.o.Secdata.LockKernel()
	if err := a.o.Legacy.Boot(ctx); err != nil {
		glog.Warningf("Legacy boot failed: %v", err)
		a.o.Display.Beep(ctx)
		return false
	}
	d.out = outcome{disp: DispositionBoot, legacy: true}
	return true
}

// toNorm asks to leave developer mode.
func (d *devUI) toNorm(ctx context.Context) devState {
	a := d.a
	if !a.st.Has(session.FlagHonorVirtDevSwitch | session.FlagDevSwitchOn) {
		glog.Info("No virtual developer switch; going to recovery")
		a.st.Recovery = nvstorage.RecoveryRWDevScreen
		a.nv.RequestRecovery(a.st.Recovery)
		return d.finish(failed(errors.New("developer mode can only be left from recovery")))
	}
	if a.flags.Has(gbb.FlagForceDevSwitchOn) {
		glog.Info("Developer mode is forced on")
		a.o.Display.Beep(ctx)
		return devCountdown
	}
	a.o.Display.Show(ctx, ScreenDeveloperToNorm)
	switch a.confirm(ctx, true, false) {
	case confirmYes:
		return d.leaveDev(ctx)
	case confirmShutdown:
		return d.shutdown(ctx)
	}
	d.restart(ctx)
	return devCountdown
}

func (d *devUI) leaveDev(ctx context.Context) devState {
	a := d.a
	glog.Info("Leaving developer mode")
	a.nv.SetBool(nvstorage.DisableDevRequest, true)
	a.o.Display.Show(ctx, ScreenToNormConfirmed)
	a.clock.Sleep(ctx, ToNormConfirmedDelay)
	return d.finish(outcome{disp: DispositionRebootRequired})
}

// stayDisabled shows the only screen allowed while developer boot is
// disabled. Cancelling it is ignored.
func (d *devUI) stayDisabled(ctx context.Context) devState {
	d.a.o.Display.Show(ctx, ScreenDeveloperToNorm)
	return devDisabled
}

func (a *attempt) recovery(ctx context.Context) outcome {
	st := a.st
	if !st.Has(session.FlagBootRecSwitchPhysical) && !st.Has(session.FlagDevSwitchOn) {
		if !a.waitForRemoval(ctx) {
			return shutdown()
		}
	}
	for {
		saved := st.Recovery
		k, err := a.loadKernel(ctx, kernelselect.DiskRemovable)
		// Already in recovery: a bad disk must not leave a request behind.
		st.Recovery = saved
		a.nv.ClearRecovery()
		if err == nil {
			return outcome{disp: DispositionBoot, kernel: k}
		}
		glog.V(1).Infof("No recovery kernel yet: %v", err)
		if errors.Is(err, session.ErrNoDiskFound) {
			a.o.Display.Show(ctx, ScreenRecoveryInsert)
		} else {
			a.o.Display.Show(ctx, ScreenRecoveryNoGood)
		}

	poll:
		for waited := time.Duration(0); waited < DiskDelay; waited += KeyDelay {
			key, _ := a.o.Keyboard.ReadKey(ctx)
			if key == KeyCtrlD && st.Has(session.FlagHonorVirtDevSwitch|session.FlagRecSwitchOn) && !st.Has(session.FlagDevSwitchOn) {
				if !st.Has(session.FlagRecSwitchVirtual) && a.o.Switches.RecButtonPressed(ctx) {
					glog.Info("Recovery button held; ignoring developer mode request")
					a.o.Display.Beep(ctx)
				} else {
					out, done := a.recToDev(ctx)
					if done {
						return out
					}
					break poll
				}
			}
			if a.wantShutdown(ctx, key) {
				return shutdown()
			}
			a.clock.Sleep(ctx, KeyDelay)
		}
	}
}

// waitForRemoval blocks until no removable disk is present. It returns false
// on a shutdown request.
func (a *attempt) waitForRemoval(ctx context.Context) bool {
	glog.Infof("Recovery reason %v; waiting for removable media to be removed", a.st.Recovery)
	for {
		disks, err := a.o.Disks.Disks(ctx, kernelselect.DiskRemovable)
		if err != nil {
			glog.Warningf("Listing removable disks: %v", err)
			disks = nil
		}
		if len(disks) == 0 {
			a.o.Display.Show(ctx, ScreenBlank)
			return true
		}
		glog.V(1).Infof("Waiting for %d removable disks to be removed", len(disks))
		a.o.Display.Show(ctx, ScreenRecoveryRemove)
		for waited := time.Duration(0); waited < RemoveDelay; waited += KeyDelay {
			key, _ := a.o.Keyboard.ReadKey(ctx)
			if a.wantShutdown(ctx, key) {
				return false
			}
			a.clock.Sleep(ctx, KeyDelay)
		}
	}
}

// recToDev asks to turn developer mode on. done is unset if the user said
// no.
func (a *attempt) recToDev(ctx context.Context) (out outcome, done bool) {
	a.o.Display.Show(ctx, ScreenRecoveryToDev)
	switch a.confirm(ctx, true, true) {
	case confirmShutdown:
		return shutdown(), true
	case confirmNo:
		return outcome{}, false
	}
	glog.Info("Enabling developer mode")
	fw, err := a.o.Secdata.Firmware()
	if err == nil {
		err = a.o.Secdata.SetFirmwareFlags(fw.Flags | secdata.FlagVirtualDevMode)
	}
	if err != nil {
		return failed(err), true
	}
	if a.o.Hardware.AllowUSBOnRecToDev {
		a.nv.SetBool(nvstorage.DevBootUSB, true)
	}
	return outcome{disp: DispositionRebootRequired}, true
}
