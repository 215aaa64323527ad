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

package crc8

import "testing"

func TestChecksum(t *testing.T) {
	for _, test := range []struct {
		desc string
		data []byte
		want byte
	}{
		{desc: "empty", data: nil, want: 0x00},
		{desc: "check string", data: []byte("123456789"), want: 0xf4},
		{desc: "single one", data: []byte{0x01}, want: 0x07},
	} {
		t.Run(test.desc, func(t *testing.T) {
			if got := Checksum(test.data); got != test.want {
				t.Errorf("Checksum(%q): got 0x%02x, want 0x%02x", test.data, got, test.want)
			}
		})
	}
}

func TestDetectsSingleBitFlip(t *testing.T) {
	data := []byte{0x40, 0x00, 0x13, 0x00, 0x01, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	orig := Checksum(data)
	for i := range data {
		for bit := 0; bit < 8; bit++ {
			data[i] ^= 1 << bit
			if Checksum(data) == orig {
				t.Errorf("flip of byte %d bit %d not detected", i, bit)
			}
			data[i] ^= 1 << bit
		}
	}
}
