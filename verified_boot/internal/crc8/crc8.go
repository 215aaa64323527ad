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

// Package crc8 computes the CRC-8 (polynomial x^8 + x^2 + x + 1, zero
// initial value, no reflection) used to protect NV and secure-storage records.
package crc8

const poly = 0x07

var table = func() [256]byte {
	var t [256]byte
	for i := range t {
		c := byte(i)
		for b := 0; b < 8; b++ {
			if c&0x80 != 0 {
				c = c<<1 ^ poly
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return t
}()

// Checksum returns the CRC-8 of data.
func Checksum(data []byte) byte {
	var c byte
	for _, b := range data {
		c = table[c^b]
	}
	return c
}
