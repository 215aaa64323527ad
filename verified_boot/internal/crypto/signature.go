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

package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"hash"
)

// ErrBadSignature is returned when a signature does not verify.
var ErrBadSignature = errors.New("signature verification failed")

// NewHash returns a streaming digest for alg.
func NewHash(alg Algorithm) hash.Hash {
	return alg.Hash().New()
}

// Digest returns the digest of data under alg.
func Digest(alg Algorithm, data []byte) []byte {
	h := NewHash(alg)
	h.Write(data)
	return h.Sum(nil)
}

// VerifyDigest checks a PKCS#1 v1.5 signature over a precomputed digest.
func VerifyDigest(key *PublicKey, digest, sig []byte) error {
	if got, want := len(sig), key.Algorithm.SignatureSize(); got != want {
		return fmt.Errorf("%w: signature is %d bytes, want %d", ErrBadSignature, got, want)
	}
	if got, want := len(digest), key.Algorithm.Hash().Size(); got != want {
		return fmt.Errorf("%w: digest is %d bytes, want %d", ErrBadSignature, got, want)
	}
	if err := rsa.VerifyPKCS1v15(key.Key, key.Algorithm.Hash(), digest, sig); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return nil
}

// VerifyData hashes data and checks sig against it.
func VerifyData(key *PublicKey, data, sig []byte) error {
	return VerifyDigest(key, Digest(key.Algorithm, data), sig)
}

// SignDigest produces a PKCS#1 v1.5 signature over digest.
func SignDigest(priv *rsa.PrivateKey, alg Algorithm, digest []byte) ([]byte, error) {
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, alg.Hash(), digest)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return sig, nil
}

// Sign hashes data under alg and signs the digest.
func Sign(priv *rsa.PrivateKey, alg Algorithm, data []byte) ([]byte, error) {
	return SignDigest(priv, alg, Digest(alg, data))
}
