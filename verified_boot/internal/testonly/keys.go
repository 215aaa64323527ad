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

// Package testonly contains builders for keys, signed blocks and images
// shared by tests across the verified boot packages.
package testonly

import (
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/crypto"
)

// Key is a test signing key with its algorithm.
type Key struct {
	Priv *rsa.PrivateKey
	Alg  crypto.Algorithm
}

// Packed returns the packed public key with the given key version.
func (k Key) Packed(t testing.TB, version uint64) []byte {
	t.Helper()
	b, err := crypto.MarshalPackedKey(k.Alg, version, &k.Priv.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPackedKey(): %v", err)
	}
	return b
}

// Public returns the parsed public key with the given key version.
func (k Key) Public(t testing.TB, version uint64) *crypto.PublicKey {
	t.Helper()
	p, err := crypto.ParsePackedKey(k.Packed(t, version))
	if err != nil {
		t.Fatalf("ParsePackedKey(): %v", err)
	}
	return p
}

// Named keys. Generated once per test binary.
const (
	RootKeyID = iota
	RecoveryKeyID
	FirmwareDataKeyID
	KernelSubkeyID
	KernelDataKeyID
	UntrustedKeyID
	numKeys
)

var (
	keysOnce sync.Once
	keys     [numKeys]Key
)

func genKeys() {
	for i := range keys {
		alg := crypto.RSA1024SHA256
		if i == RootKeyID || i == RecoveryKeyID {
			alg = crypto.RSA2048SHA256
		}
		priv, err := rsa.GenerateKey(rand.Reader, alg.KeyBits())
		if err != nil {
			panic(err)
		}
		keys[i] = Key{Priv: priv, Alg: alg}
	}
}

// GetKey returns one of the named test keys.
func GetKey(id int) Key {
	keysOnce.Do(genKeys)
	return keys[id]
}

// RootKey signs firmware key blocks.
func RootKey() Key { return GetKey(RootKeyID) }

// RecoveryKey signs recovery kernel key blocks.
func RecoveryKey() Key { return GetKey(RecoveryKeyID) }

// FirmwareDataKey signs firmware preambles and bodies.
func FirmwareDataKey() Key { return GetKey(FirmwareDataKeyID) }

// KernelSubkey is carried in firmware preambles and signs kernel key blocks.
func KernelSubkey() Key { return GetKey(KernelSubkeyID) }

// KernelDataKey signs kernel preambles and bodies.
func KernelDataKey() Key { return GetKey(KernelDataKeyID) }

// UntrustedKey is never published in any trust anchor.
func UntrustedKey() Key { return GetKey(UntrustedKeyID) }
