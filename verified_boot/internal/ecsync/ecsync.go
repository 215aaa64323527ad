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

// Package ecsync makes sure the embedded controller runs the image the main
// firmware expects before the EC is trusted.
package ecsync

//go:generate mockgen -write_package_comment=false -package mock_ecsync -destination mock_ecsync/mock_ecsync.go github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/ecsync EC

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/gbb"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/nvstorage"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/session"
	"github.com/cenkalti/backoff/v4"
	"github.com/golang/glog"
)

// RORetries is how many times an RO update is attempted.
const RORetries = 2

// ErrRebootRequired is returned by an EC which can only carry out a request
// after rebooting to RO. It is not a failure of the EC.
var ErrRebootRequired = errors.New("EC reboot to RO required")

// Image selects one of the EC images.
type Image int

const (
	ImageRO Image = iota
	ImageRW
)

func (i Image) String() string {
	if i == ImageRO {
		return "RO"
	}
	return "RW"
}

// EC is the transport to the embedded controller.
type EC interface {
	// RunningRW reports whether the EC is running its RW image.
	RunningRW(ctx context.Context) (bool, error)
	// HashImage returns the EC's hash of the given image.
	HashImage(ctx context.Context, img Image) ([]byte, error)
	// ExpectedHash returns the hash the main firmware expects, or nil if it
	// carries only the image.
	ExpectedHash(ctx context.Context, img Image) ([]byte, error)
	ExpectedImage(ctx context.Context, img Image) ([]byte, error)
	UpdateImage(ctx context.Context, img Image, data []byte) error
	JumpToRW(ctx context.Context) error
	Protect(ctx context.Context, img Image) error
	DisableJump(ctx context.Context) error
	VbootDone(ctx context.Context, inRecovery bool) error
	BatteryCutoff(ctx context.Context) error
}

// Outcome is how a sync ended.
type Outcome int

const (
	// OutcomeSkipped means sync is disabled.
	OutcomeSkipped Outcome = iota
	// OutcomeSynced means the EC runs the expected image, its flash is
	// protected and it can no longer jump.
	OutcomeSynced
	// OutcomeStayedRO means a recovery boot found the EC in RO and left it
	// alone.
	OutcomeStayedRO
	// OutcomeRebootToRO means the system must reboot with the EC in RO.
	OutcomeRebootToRO
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeSynced:
		return "synced"
	case OutcomeStayedRO:
		return "stayed_ro"
	case OutcomeRebootToRO:
		return "reboot_to_ro"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

type state int

const (
	stateLocate state = iota
	stateRecovery
	stateROPath
	stateCheckRW
	stateCheckRO
	stateDecide
	stateUpdateRW
	stateJump
	stateUpdateRO
	stateProtectRO
	stateProtectRW
	stateDisableJump

	stateSynced
	stateStayedRO
	stateReboot
)

type event int

const (
	evOK event = iota
	evFail
	evInRW
	evRecovery
	evROPath
)

type transition struct {
	from state
	on   event
}

// transitions is the sync state machine. A missing entry is a bug.
var transitions = map[transition]state{
	{stateLocate, evOK}:       stateCheckRW,
	{stateLocate, evRecovery}: stateRecovery,
	{stateLocate, evROPath}:   stateROPath,
	{stateLocate, evFail}:     stateReboot,

	{stateRecovery, evOK}:   stateStayedRO,
	{stateRecovery, evInRW}: stateReboot,

	{stateROPath, evOK}:   stateDisableJump,
	{stateROPath, evInRW}: stateReboot,
	{stateROPath, evFail}: stateReboot,

	{stateCheckRW, evOK}:   stateCheckRO,
	{stateCheckRW, evFail}: stateReboot,
	{stateCheckRO, evOK}:   stateDecide,
	{stateCheckRO, evFail}: stateReboot,

	{stateDecide, evOK}:   stateUpdateRW,
	{stateDecide, evInRW}: stateReboot,

	{stateUpdateRW, evOK}:      stateJump,
	{stateUpdateRW, evFail}:    stateReboot,
	{stateJump, evOK}:          stateUpdateRO,
	{stateJump, evFail}:        stateReboot,
	{stateUpdateRO, evOK}:      stateProtectRO,
	{stateUpdateRO, evFail}:    stateReboot,
	{stateProtectRO, evOK}:     stateProtectRW,
	{stateProtectRO, evFail}:   stateReboot,
	{stateProtectRW, evOK}:     stateDisableJump,
	{stateProtectRW, evFail}:   stateReboot,
	{stateDisableJump, evOK}:   stateSynced,
	{stateDisableJump, evFail}: stateReboot,
}

var terminal = map[state]Outcome{
	stateSynced:   OutcomeSynced,
	stateStayedRO: OutcomeStayedRO,
	stateReboot:   OutcomeRebootToRO,
}

// Coordinator runs EC software sync.
type Coordinator struct {
	EC EC
	// Wait, if set, is called before an update which the platform reports
	// as slow, so that a wait screen can be shown.
	Wait func(ctx context.Context)

	slow bool
}

// run is the state of one Sync call.
type run struct {
	ec    EC
	st    *session.State
	nv    *nvstorage.Context
	wait  func(ctx context.Context)
	roTry bool

	inRW        bool
	needsUpdate map[Image]bool

	// stale is set once any image has been found out of date.
	stale  bool
	waited bool
}

// Sync brings the EC to the expected image. Recovery requests for failures
// are written to nv; the returned error is only for cancellation.
func (c *Coordinator) Sync(ctx context.Context, st *session.State, nv *nvstorage.Context, flags gbb.Flags) (Outcome, error) {
	c.slow = false
	if !st.Has(session.FlagECSoftwareSync) || flags.Has(gbb.FlagDisableECSoftwareSync) {
		glog.V(1).Info("EC software sync disabled")
		return OutcomeSkipped, nil
	}
	r := &run{
		ec:          c.EC,
		st:          st,
		nv:          nv,
		wait:        c.Wait,
		roTry:       nv.GetBool(nvstorage.TryROSync) && !st.Has(session.FlagWriteProtect),
		needsUpdate: map[Image]bool{},
	}
	actions := map[state]func(context.Context) event{
		stateLocate:      r.locate,
		stateRecovery:    r.recovery,
		stateROPath:      r.roPath,
		stateCheckRW:     func(ctx context.Context) event { return r.checkHash(ctx, ImageRW) },
		stateCheckRO:     r.checkRO,
		stateDecide:      r.decide,
		stateUpdateRW:    r.updateRW,
		stateJump:        r.jump,
		stateUpdateRO:    r.updateRO,
		stateProtectRO:   func(ctx context.Context) event { return r.protect(ctx, ImageRO) },
		stateProtectRW:   func(ctx context.Context) event { return r.protect(ctx, ImageRW) },
		stateDisableJump: r.disableJump,
	}

	s := stateLocate
	for {
		if out, ok := terminal[s]; ok {
			c.slow = r.slow()
			glog.Infof("EC software sync: %v", out)
			return out, nil
		}
		if err := ctx.Err(); err != nil {
			return OutcomeRebootToRO, err
		}
		ev := actions[s](ctx)
		next, ok := transitions[transition{s, ev}]
		if !ok {
			return OutcomeRebootToRO, fmt.Errorf("no EC sync transition from state %d on event %d", s, ev)
		}
		glog.V(2).Infof("EC sync: state %d, event %d -> %d", s, ev, next)
		s = next
	}
}

// SlowUpdate reports whether the last Sync found an update to make on a
// platform where updates are slow.
func (c *Coordinator) SlowUpdate() bool { return c.slow }

func (r *run) slow() bool {
	return r.st.Has(session.FlagECSlowUpdate) && r.stale
}

func (r *run) fail(reason nvstorage.RecoveryReason) event {
	r.nv.RequestRecovery(reason)
	return evFail
}

func (r *run) locate(ctx context.Context) event {
	inRW, err := r.ec.RunningRW(ctx)
	if err != nil {
		glog.Warningf("RunningRW(): %v", err)
		return r.fail(nvstorage.RecoveryECUnknownImage)
	}
	r.inRW = inRW
	switch {
	case r.st.Mode == session.ModeRecovery:
		return evRecovery
	case r.st.Has(session.FlagUsedROCodePath):
		return evROPath
	}
	return evOK
}

func (r *run) recovery(_ context.Context) event {
	if r.inRW {
		return evInRW
	}
	return evOK
}

// roPath handles main firmware which ran its RO code: the EC must be in RO,
// and only RO is protected.
func (r *run) roPath(ctx context.Context) event {
	if r.inRW {
		return evInRW
	}
	return r.protect(ctx, ImageRO)
}

func (r *run) expectedHash(ctx context.Context, img Image) ([]byte, error) {
	want, err := r.ec.ExpectedHash(ctx, img)
	if err != nil || want != nil {
		return want, err
	}
	data, err := r.ec.ExpectedImage(ctx, img)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	return sum[:], nil
}

func (r *run) checkHash(ctx context.Context, img Image) event {
	got, err := r.ec.HashImage(ctx, img)
	if err != nil {
		glog.Warningf("HashImage(%v): %v", img, err)
		return r.fail(nvstorage.RecoveryECHashFailed)
	}
	want, err := r.expectedHash(ctx, img)
	if err != nil {
		glog.Warningf("expected %v hash: %v", img, err)
		return r.fail(nvstorage.RecoveryECExpectedHash)
	}
	if len(got) != len(want) {
		glog.Warningf("EC uses a %d byte %v hash, expected %d bytes", len(got), img, len(want))
		return r.fail(nvstorage.RecoveryECHashSize)
	}
	r.needsUpdate[img] = subtle.ConstantTimeCompare(got, want) != 1
	r.stale = r.stale || r.needsUpdate[img]
	glog.V(1).Infof("EC %v hash %x, expected %x", img, got, want)
	return evOK
}

func (r *run) checkRO(ctx context.Context) event {
	if !r.roTry {
		return evOK
	}
	return r.checkHash(ctx, ImageRO)
}

// decide reboots an EC running an RW image which must be replaced.
func (r *run) decide(_ context.Context) event {
	if r.inRW && r.needsUpdate[ImageRW] {
		glog.Info("EC RW needs updating while running it")
		return evInRW
	}
	return evOK
}

// update pushes the expected image and checks that it took. A nil return is
// success.
func (r *run) update(ctx context.Context, img Image) error {
	if r.slow() && r.wait != nil && !r.waited {
		r.waited = true
		r.wait(ctx)
	}
	glog.Infof("Updating EC %v", img)
	data, err := r.ec.ExpectedImage(ctx, img)
	if err != nil {
		r.nv.RequestRecovery(nvstorage.RecoveryECExpectedImage)
		return fmt.Errorf("expected %v image: %w", img, err)
	}
	if err := r.ec.UpdateImage(ctx, img, data); err != nil {
		if !errors.Is(err, ErrRebootRequired) {
			r.nv.RequestRecovery(nvstorage.RecoveryECUpdate)
		}
		return fmt.Errorf("update %v: %w", img, err)
	}
	r.needsUpdate[img] = false
	if r.checkHash(ctx, img) != evOK {
		return fmt.Errorf("%v hash after update failed", img)
	}
	if r.needsUpdate[img] {
		r.nv.RequestRecovery(nvstorage.RecoveryECUpdate)
		return fmt.Errorf("%v hash still wrong after update", img)
	}
	return nil
}

func (r *run) updateRW(ctx context.Context) event {
	if !r.needsUpdate[ImageRW] {
		return evOK
	}
	if err := r.update(ctx, ImageRW); err != nil {
		glog.Warning(err)
		return evFail
	}
	return evOK
}

func (r *run) jump(ctx context.Context) event {
	if r.inRW {
		return evOK
	}
	if err := r.ec.JumpToRW(ctx); err != nil {
		glog.Warningf("JumpToRW(): %v", err)
		if !errors.Is(err, ErrRebootRequired) {
			r.nv.RequestRecovery(nvstorage.RecoveryECJumpRW)
		}
		return evFail
	}
	r.inRW = true
	return evOK
}

// updateRO is RO software sync. A failed try overwrites the recovery request,
// so a later successful try restores it.
func (r *run) updateRO(ctx context.Context) event {
	if !r.roTry {
		return evOK
	}
	r.nv.SetBool(nvstorage.TryROSync, false)
	if !r.needsUpdate[ImageRO] {
		return evOK
	}
	prev := r.nv.Recovery()
	tries := 0
	op := func() error {
		tries++
		err := r.update(ctx, ImageRO)
		if errors.Is(err, ErrRebootRequired) {
			return backoff.Permanent(err)
		}
		return err
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, RORetries-1), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		glog.Warningf("RO software sync failed after %d tries: %v", tries, err)
		return evFail
	}
	if tries > 1 {
		r.nv.RequestRecovery(prev)
	}
	return evOK
}

func (r *run) protect(ctx context.Context, img Image) event {
	if err := r.ec.Protect(ctx, img); err != nil {
		glog.Warningf("Protect(%v): %v", img, err)
		if !errors.Is(err, ErrRebootRequired) {
			r.nv.RequestRecovery(nvstorage.RecoveryECProtect)
		}
		return evFail
	}
	return evOK
}

func (r *run) disableJump(ctx context.Context) event {
	if err := r.ec.DisableJump(ctx); err != nil {
		glog.Warningf("DisableJump(): %v", err)
		return r.fail(nvstorage.RecoveryECSoftwareSync)
	}
	return evOK
}

// Finish tells the EC that verification is over and carries out a pending
// battery cut-off, which ends the boot with session.ErrShutdownRequested.
func (c *Coordinator) Finish(ctx context.Context, st *session.State, nv *nvstorage.Context) error {
	if err := c.EC.VbootDone(ctx, st.Mode == session.ModeRecovery); err != nil {
		return fmt.Errorf("VbootDone(): %w", err)
	}
	if nv.GetBool(nvstorage.BatteryCutoffRequest) {
		glog.Info("Cutting off battery")
		nv.SetBool(nvstorage.BatteryCutoffRequest, false)
		if err := c.EC.BatteryCutoff(ctx); err != nil {
			glog.Warningf("BatteryCutoff(): %v", err)
		}
		return session.ErrShutdownRequested
	}
	return nil
}
