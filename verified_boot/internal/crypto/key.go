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

// Package crypto holds the signature algorithms and packed public key format
// used by verified boot structures.
package crypto

import (
	"crypto"
	"crypto/rsa"
	"errors"
	"fmt"
	"math/big"

	// Registered so that crypto.SHA1 et al. are available to rsa.
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/cursor"
)

// ErrBadKey is returned when a packed key cannot be decoded.
var ErrBadKey = errors.New("bad packed key")

// Algorithm identifies an RSA modulus size and digest pairing.
type Algorithm uint64

const (
	RSA1024SHA1 Algorithm = iota
	RSA1024SHA256
	RSA1024SHA512
	RSA2048SHA1
	RSA2048SHA256
	RSA2048SHA512
	RSA4096SHA1
	RSA4096SHA256
	RSA4096SHA512
	RSA8192SHA1
	RSA8192SHA256
	RSA8192SHA512

	// NumAlgorithms is the number of defined algorithms.
	NumAlgorithms = 12
)

var hashes = [...]crypto.Hash{crypto.SHA1, crypto.SHA256, crypto.SHA512}

// Valid reports whether a is a defined algorithm.
func (a Algorithm) Valid() bool { return a < NumAlgorithms }

// KeyBits returns the RSA modulus size in bits.
func (a Algorithm) KeyBits() int { return 1024 << (a / 3) }

// Hash returns the digest used with this algorithm.
func (a Algorithm) Hash() crypto.Hash { return hashes[a%3] }

// SignatureSize returns the size in bytes of a signature.
func (a Algorithm) SignatureSize() int { return a.KeyBits() / 8 }

// KeyDataSize returns the size of the processed key data: a word count,
// n0inv, the modulus and R^2 mod N.
func (a Algorithm) KeyDataSize() int { return 8 + 2*a.KeyBits()/8 }

func (a Algorithm) String() string {
	if !a.Valid() {
		return fmt.Sprintf("Algorithm(%d)", uint64(a))
	}
	return fmt.Sprintf("RSA%d/%v", a.KeyBits(), a.Hash())
}

// PackedKeyHeaderSize is the size of the fixed packed key header.
const PackedKeyHeaderSize = 32

// PublicKey is a decoded packed key.
type PublicKey struct {
	Algorithm Algorithm
	Version   uint64
	Key       *rsa.PublicKey
	// Data is the raw processed key data as it appeared on the wire.
	Data []byte
}

// PackedKeyHeader is the fixed header preceding packed key data.
type PackedKeyHeader struct {
	KeyOffset uint64
	KeySize   uint64
	Algorithm Algorithm
	Version   uint64
}

// ReadPackedKeyHeader decodes the header at the start of buf.
func ReadPackedKeyHeader(buf []byte) (PackedKeyHeader, error) {
	r := cursor.NewReader(buf)
	h := PackedKeyHeader{
		KeyOffset: r.U64(),
		KeySize:   r.U64(),
		Algorithm: Algorithm(r.U64()),
		Version:   r.U64(),
	}
	if err := r.Err(); err != nil {
		return PackedKeyHeader{}, fmt.Errorf("%w: header: %v", ErrBadKey, err)
	}
	return h, nil
}

// ParsePackedKey decodes a packed key whose header starts at buf[0].
// Key data must lie inside buf.
func ParsePackedKey(buf []byte) (*PublicKey, error) {
	h, err := ReadPackedKeyHeader(buf)
	if err != nil {
		return nil, err
	}
	if !h.Algorithm.Valid() {
		return nil, fmt.Errorf("%w: invalid algorithm %d", ErrBadKey, uint64(h.Algorithm))
	}
	data, err := cursor.Slice(buf, h.KeyOffset, h.KeySize)
	if err != nil {
		return nil, fmt.Errorf("%w: key data: %v", ErrBadKey, err)
	}
	if got, want := len(data), h.Algorithm.KeyDataSize(); got != want {
		return nil, fmt.Errorf("%w: key data is %d bytes, want %d for %v", ErrBadKey, got, want, h.Algorithm)
	}
	pub, err := parseKeyData(h.Algorithm, data)
	if err != nil {
		return nil, err
	}
	return &PublicKey{Algorithm: h.Algorithm, Version: h.Version, Key: pub, Data: data}, nil
}

func parseKeyData(alg Algorithm, data []byte) (*rsa.PublicKey, error) {
	r := cursor.NewReader(data)
	words := int(r.U32())
	r.U32() // n0inv is recomputed by the verifier.
	if want := alg.KeyBits() / 32; words != want {
		return nil, fmt.Errorf("%w: modulus is %d words, want %d", ErrBadKey, words, want)
	}
	n := r.Bytes(words * 4)
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadKey, err)
	}
	mod := new(big.Int).SetBytes(reverse(n))
	if mod.BitLen() != alg.KeyBits() {
		return nil, fmt.Errorf("%w: modulus is %d bits, want %d", ErrBadKey, mod.BitLen(), alg.KeyBits())
	}
	return &rsa.PublicKey{N: mod, E: 65537}, nil
}

// MarshalPackedKey encodes pub as a packed key with data immediately after
// the header.
func MarshalPackedKey(alg Algorithm, version uint64, pub *rsa.PublicKey) ([]byte, error) {
	if !alg.Valid() {
		return nil, fmt.Errorf("invalid algorithm %d", uint64(alg))
	}
	if got := pub.N.BitLen(); got != alg.KeyBits() {
		return nil, fmt.Errorf("key is %d bits, algorithm %v wants %d", got, alg, alg.KeyBits())
	}
	data := marshalKeyData(alg, pub)
	w := cursor.NewWriter(PackedKeyHeaderSize + len(data))
	w.U64(PackedKeyHeaderSize)
	w.U64(uint64(len(data)))
	w.U64(uint64(alg))
	w.U64(version)
	w.Bytes(data)
	return w.Buf(), nil
}

func marshalKeyData(alg Algorithm, pub *rsa.PublicKey) []byte {
	bits := alg.KeyBits()
	words := bits / 32

	two32 := new(big.Int).Lsh(big.NewInt(1), 32)
	n0 := new(big.Int).Mod(pub.N, two32)
	inv := new(big.Int).ModInverse(n0, two32)
	n0inv := new(big.Int).Sub(two32, inv)

	rr := new(big.Int).Lsh(big.NewInt(1), uint(2*bits))
	rr.Mod(rr, pub.N)

	w := cursor.NewWriter(alg.KeyDataSize())
	w.U32(uint32(words))
	w.U32(uint32(n0inv.Uint64()))
	w.Bytes(littleEndian(pub.N, bits/8))
	w.Bytes(littleEndian(rr, bits/8))
	return w.Buf()
}

func littleEndian(v *big.Int, size int) []byte {
	return reverse(v.FillBytes(make([]byte, size)))
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}
