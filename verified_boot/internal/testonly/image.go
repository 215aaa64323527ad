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
	"testing"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/flashimage"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/gbb"
)

// BuildGBB returns a trust anchor block holding RootKey and RecoveryKey.
func BuildGBB(t testing.TB, flags gbb.Flags) []byte {
	t.Helper()
	root := RootKey().Packed(t, 1)
	rec := RecoveryKey().Packed(t, 1)
	buf := gbb.Create([4]uint32{0x20, uint32(len(root)), 0, uint32(len(rec))})
	for _, err := range []error{
		gbb.SetHWID(buf, "TEST 0001"),
		gbb.SetRegion(buf, gbb.RegionRootKey, root),
		gbb.SetRegion(buf, gbb.RegionRecoveryKey, rec),
		gbb.SetFlags(buf, flags),
	} {
		if err != nil {
			t.Fatalf("building GBB: %v", err)
		}
	}
	return buf
}

// BuildImage returns a full flash image with a block from BuildGBB and the
// two firmware slots described by a and b.
func BuildImage(t testing.TB, flags gbb.Flags, a, b FirmwareOpts) []byte {
	t.Helper()
	var vbs, bodies [2][]byte
	for i, o := range []FirmwareOpts{a, b} {
		vbs[i], bodies[i] = BuildFirmware(t, o)
	}
	return flashimage.Assemble(BuildGBB(t, flags), vbs, bodies)
}
