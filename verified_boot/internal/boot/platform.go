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
	"fmt"
	"time"
)

// Key is a code read from the keyboard.
type Key uint32

const (
	KeyNone  Key = 0
	KeyCtrlD Key = 0x04
	KeyCtrlL Key = 0x0c
	KeyEnter Key = '\r'
	KeyCtrlU Key = 0x15
	KeyEsc   Key = 0x1b
	KeySpace Key = ' '
	// KeyPowerShort is a short press of the power button.
	KeyPowerShort Key = 0x90
)

// KeyFlags qualify a key press.
type KeyFlags uint32

// KeyTrusted marks a key from the built-in keyboard, which cannot be faked
// by a USB device.
const KeyTrusted KeyFlags = 1

// Keyboard is polled for input.
type Keyboard interface {
	// ReadKey returns the next pending key, or KeyNone.
	ReadKey(ctx context.Context) (Key, KeyFlags)
}

// Screen is a full-screen message.
type Screen int

const (
	ScreenBlank Screen = iota
	ScreenDeveloperWarning
	ScreenDeveloperToNorm
	ScreenToNormConfirmed
	// ScreenRecoveryRemove asks for removable media to be taken out.
	ScreenRecoveryRemove
	ScreenRecoveryInsert
	ScreenRecoveryNoGood
	ScreenRecoveryToDev
	ScreenWait
)

var screenNames = [...]string{
	"blank", "developer_warning", "developer_to_norm", "to_norm_confirmed",
	"recovery_remove", "recovery_insert", "recovery_no_good", "recovery_to_dev", "wait",
}

func (s Screen) String() string {
	if int(s) >= 0 && int(s) < len(screenNames) {
		return screenNames[s]
	}
	return fmt.Sprintf("Screen(%d)", int(s))
}

// Display shows screens and beeps.
type Display interface {
	Show(ctx context.Context, s Screen)
	Beep(ctx context.Context)
}

// ShutdownRequest is a set of reasons to power off.
type ShutdownRequest uint32

const (
	ShutdownLidClosed ShutdownRequest = 1 << iota
	ShutdownPowerButton
)

// Switches reports physical inputs other than the keyboard.
type Switches interface {
	// ShutdownRequested returns the pending shutdown requests.
	ShutdownRequested(ctx context.Context) ShutdownRequest
	// RecButtonPressed reports whether the physical recovery button is held
	// down right now.
	RecButtonPressed(ctx context.Context) bool
}

// Clock waits between polls.
type Clock interface {
	Now() time.Time
	// Sleep waits for d, returning early with an error if ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep implements Clock.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Legacy hands over to the legacy bootloader.
type Legacy interface {
	// Boot returns only if the handover failed.
	Boot(ctx context.Context) error
}

// Hardware is the platform's switch state and capabilities at power on.
type Hardware struct {
	DevSwitch bool
	RecSwitch bool
	// RecSwitchVirtual is set when the recovery switch is a keyboard combo
	// rather than a physical button.
	RecSwitchVirtual bool
	WriteProtect     bool
	// HonorVirtDevSwitch means developer mode is kept in secure storage
	// and the physical switch is ignored.
	HonorVirtDevSwitch bool
	ECSoftwareSync     bool
	ECSlowUpdate       bool
	SupportsRONormal   bool
	// AllowUSBOnRecToDev enables USB boot when developer mode is turned
	// on from the recovery screen.
	AllowUSBOnRecToDev bool
	// PreviousBootFailed is set when the last boot never reached the OS.
	PreviousBootFailed bool
}
