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

package dummy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/api"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/boot"
	"github.com/golang/glog"
)

func millis(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }

// Clock is a virtual clock. Sleep returns at once, moving Now forward, so
// that a device can be booted through its timeouts without waiting.
type Clock struct {
	elapsed time.Duration
}

var epoch = time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)

// Now implements boot.Clock.
func (c *Clock) Now() time.Time { return epoch.Add(c.elapsed) }

// Sleep implements boot.Clock.
func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.elapsed += d
	return nil
}

// Elapsed returns the virtual time since power on.
func (c *Clock) Elapsed() time.Duration { return c.elapsed }

var keyNames = map[string]boot.Key{
	"ctrl+d": boot.KeyCtrlD,
	"ctrl+l": boot.KeyCtrlL,
	"ctrl+u": boot.KeyCtrlU,
	"enter":  boot.KeyEnter,
	"esc":    boot.KeyEsc,
	"space":  boot.KeySpace,
	"power":  boot.KeyPowerShort,
}

type timedKey struct {
	at    time.Duration
	key   boot.Key
	flags boot.KeyFlags
}

// Keyboard replays the scripted key presses of a manifest.
type Keyboard struct {
	clock *Clock
	keys  []timedKey
}

// NewKeyboard parses a key script. Presses must be listed in time order.
func NewKeyboard(c *Clock, presses []api.KeyPress) (*Keyboard, error) {
	k := &Keyboard{clock: c}
	var last int64
	for i, p := range presses {
		key, ok := keyNames[p.Key]
		if !ok {
			return nil, fmt.Errorf("key %d: unknown key %q", i, p.Key)
		}
		if p.AtMillis < last {
			return nil, fmt.Errorf("key %d: pressed at %dms, before the previous key", i, p.AtMillis)
		}
		last = p.AtMillis
		tk := timedKey{at: millis(p.AtMillis), key: key}
		if !p.Untrusted {
			tk.flags = boot.KeyTrusted
		}
		k.keys = append(k.keys, tk)
	}
	return k, nil
}

// ReadKey implements boot.Keyboard.
func (k *Keyboard) ReadKey(_ context.Context) (boot.Key, boot.KeyFlags) {
	if len(k.keys) == 0 || k.keys[0].at > k.clock.Elapsed() {
		return boot.KeyNone, 0
	}
	next := k.keys[0]
	k.keys = k.keys[1:]
	glog.V(1).Infof("Key %#x at %v", next.key, k.clock.Elapsed())
	return next.key, next.flags
}

// Display logs the screens shown.
type Display struct {
	Screens []boot.Screen
	Beeps   int
}

// Show implements boot.Display.
func (d *Display) Show(_ context.Context, s boot.Screen) {
	if n := len(d.Screens); n > 0 && d.Screens[n-1] == s {
		return
	}
	glog.Infof("Screen: %v", s)
	d.Screens = append(d.Screens, s)
}

// Beep implements boot.Display.
func (d *Display) Beep(context.Context) {
	glog.Info("Beep")
	d.Beeps++
}

// Switches closes the lid at a scripted time and replays the recovery
// button.
type Switches struct {
	clock *Clock
	// shutdown of zero leaves the lid open.
	shutdown  time.Duration
	recButton []bool
}

// ShutdownRequested implements boot.Switches.
func (s *Switches) ShutdownRequested(context.Context) boot.ShutdownRequest {
	if s.shutdown == 0 || s.clock.Elapsed() < s.shutdown {
		return 0
	}
	return boot.ShutdownLidClosed
}

// RecButtonPressed implements boot.Switches. Once the script runs out the
// button reads as released.
func (s *Switches) RecButtonPressed(context.Context) bool {
	if len(s.recButton) == 0 {
		return false
	}
	p := s.recButton[0]
	s.recButton = s.recButton[1:]
	return p
}

// ErrNoLegacy is returned when asked to boot a bootloader which is not
// installed.
var ErrNoLegacy = errors.New("no legacy bootloader installed")

// Legacy stands in for an alternate bootloader.
type Legacy struct {
	installed bool
}

// Boot implements boot.Legacy.
func (l Legacy) Boot(context.Context) error {
	if !l.installed {
		return ErrNoLegacy
	}
	glog.Info("Handing over to legacy bootloader")
	return nil
}
