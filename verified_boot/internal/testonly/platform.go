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

package testonly

import (
	"context"
	"time"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/boot"
)

// FakeClock only moves when slept on.
type FakeClock struct {
	Start time.Time
	now   time.Duration
}

// Now implements boot.Clock.
func (c *FakeClock) Now() time.Time { return c.Start.Add(c.now) }

// Sleep implements boot.Clock.
func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.now += d
	return ctx.Err()
}

// Elapsed returns the total time slept.
func (c *FakeClock) Elapsed() time.Duration { return c.now }

// TimedKey is a key press which becomes available at a given time.
type TimedKey struct {
	At    time.Duration
	Key   boot.Key
	Flags boot.KeyFlags
}

// ScriptedKeyboard replays key presses against a FakeClock.
type ScriptedKeyboard struct {
	Clock *FakeClock
	Keys  []TimedKey
}

// ReadKey implements boot.Keyboard.
func (k *ScriptedKeyboard) ReadKey(_ context.Context) (boot.Key, boot.KeyFlags) {
	if len(k.Keys) == 0 || k.Keys[0].At > k.Clock.Elapsed() {
		return boot.KeyNone, 0
	}
	next := k.Keys[0]
	k.Keys = k.Keys[1:]
	return next.Key, next.Flags
}

// RecordingDisplay remembers what was shown.
type RecordingDisplay struct {
	Screens []boot.Screen
	Beeps   int
}

// Show implements boot.Display. Repeats of the current screen are dropped.
func (d *RecordingDisplay) Show(_ context.Context, s boot.Screen) {
	if n := len(d.Screens); n > 0 && d.Screens[n-1] == s {
		return
	}
	d.Screens = append(d.Screens, s)
}

// Beep implements boot.Display.
func (d *RecordingDisplay) Beep(context.Context) { d.Beeps++ }

// Switches reports a shutdown once the clock passes ShutdownAfter.
type Switches struct {
	Clock *FakeClock
	// ShutdownAfter of zero never shuts down.
	ShutdownAfter time.Duration
	Shutdown      boot.ShutdownRequest
	// RecButton is consumed one read at a time, then reads as released.
	RecButton []bool
}

// ShutdownRequested implements boot.Switches.
func (s *Switches) ShutdownRequested(context.Context) boot.ShutdownRequest {
	if s.ShutdownAfter == 0 || s.Clock.Elapsed() < s.ShutdownAfter {
		return 0
	}
	return s.Shutdown
}

// RecButtonPressed implements boot.Switches.
func (s *Switches) RecButtonPressed(context.Context) bool {
	if len(s.RecButton) == 0 {
		return false
	}
	p := s.RecButton[0]
	s.RecButton = s.RecButton[1:]
	return p
}

// Legacy counts handovers and fails them with Err.
type Legacy struct {
	Err   error
	Calls int
}

// Boot implements boot.Legacy.
func (l *Legacy) Boot(context.Context) error {
	l.Calls++
	return l.Err
}
