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

// Package vblock decodes and verifies the signed envelopes which precede
// firmware and kernel bodies: a key block, followed by a preamble.
package vblock

import (
	"bytes"
	"crypto/rsa"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/crypto"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/cursor"
)

const (
	// KeyBlockMagic starts every key block.
	KeyBlockMagic = "CHROMEOS"
	// KeyBlockHeaderSize is the size of the fixed key block header.
	KeyBlockHeaderSize = 112

	keyBlockMajorVersion = 2
	keyBlockMinorVersion = 1

	offSignature     = 24
	offChecksum      = 48
	offDataKey       = 80
	checksumDigestSz = sha512.Size
)

// Key block flags. A block is usable only if the bit for the current
// developer state and the bit for the current recovery state are both set.
const (
	FlagDeveloper0 uint64 = 1 << iota
	FlagDeveloper1
	FlagRecovery0
	FlagRecovery1
)

// SignatureDesc locates a signature relative to the descriptor itself.
type SignatureDesc struct {
	Offset   uint64
	Size     uint64
	DataSize uint64
}

func readSigDesc(r *cursor.Reader) SignatureDesc {
	return SignatureDesc{Offset: r.U64(), Size: r.U64(), DataSize: r.U64()}
}

func (s SignatureDesc) write(w *cursor.Writer) {
	w.U64(s.Offset)
	w.U64(s.Size)
	w.U64(s.DataSize)
}

// bytesIn returns the signature bytes, where pos is the descriptor's offset
// inside parent.
func (s SignatureDesc) bytesIn(parent []byte, pos int) ([]byte, error) {
	b, err := cursor.Slice(parent[pos:], s.Offset, s.Size)
	if err != nil {
		return nil, fmt.Errorf("%w: signature outside parent: %v", ErrStructural, err)
	}
	return b, nil
}

// KeyBlock is a parsed key block.
type KeyBlock struct {
	MajorVersion uint32
	MinorVersion uint32
	Size         uint64
	Signature    SignatureDesc
	Checksum     SignatureDesc
	Flags        uint64
	DataKey      crypto.PackedKeyHeader

	raw      []byte
	sig      []byte
	checksum []byte
}

// ParseKeyBlock performs the structural checks on the key block at the start
// of buf. No signatures are checked.
func ParseKeyBlock(buf []byte) (*KeyBlock, error) {
	if len(buf) < KeyBlockHeaderSize {
		return nil, fmt.Errorf("%w: key block needs %d bytes, have %d", ErrStructural, KeyBlockHeaderSize, len(buf))
	}
	r := cursor.NewReader(buf)
	if magic := r.Bytes(len(KeyBlockMagic)); !bytes.Equal(magic, []byte(KeyBlockMagic)) {
		return nil, fmt.Errorf("%w: bad key block magic %q", ErrStructural, magic)
	}
	kb := &KeyBlock{
		MajorVersion: r.U32(),
		MinorVersion: r.U32(),
		Size:         r.U64(),
		Signature:    readSigDesc(r),
		Checksum:     readSigDesc(r),
		Flags:        r.U64(),
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStructural, err)
	}
	if kb.MajorVersion != keyBlockMajorVersion {
		return nil, fmt.Errorf("%w: key block major version %d, want %d", ErrStructural, kb.MajorVersion, keyBlockMajorVersion)
	}
	if kb.Size < KeyBlockHeaderSize || kb.Size > uint64(len(buf)) {
		return nil, fmt.Errorf("%w: key block size %d out of range [%d, %d]", ErrStructural, kb.Size, KeyBlockHeaderSize, len(buf))
	}
	kb.raw = buf[:kb.Size]

	var err error
	if kb.sig, err = kb.Signature.bytesIn(kb.raw, offSignature); err != nil {
		return nil, fmt.Errorf("key block signature: %w", err)
	}
	if kb.checksum, err = kb.Checksum.bytesIn(kb.raw, offChecksum); err != nil {
		return nil, fmt.Errorf("key block checksum: %w", err)
	}
	if kb.DataKey, err = crypto.ReadPackedKeyHeader(kb.raw[offDataKey:]); err != nil {
		return nil, fmt.Errorf("%w: data key: %v", ErrStructural, err)
	}
	keyEnd, err := cursor.Inside(kb.Size-offDataKey, kb.DataKey.KeyOffset, kb.DataKey.KeySize)
	if err != nil {
		return nil, fmt.Errorf("%w: data key outside key block: %v", ErrStructural, err)
	}
	keyEnd += offDataKey
	if kb.Signature.DataSize > kb.Size || kb.Checksum.DataSize > kb.Size {
		return nil, fmt.Errorf("%w: signed region exceeds key block", ErrStructural)
	}
	if kb.Signature.DataSize < keyEnd || kb.Checksum.DataSize < keyEnd {
		return nil, fmt.Errorf("%w: signed region does not cover the data key", ErrStructural)
	}
	return kb, nil
}

// Raw returns the bytes of the whole key block.
func (kb *KeyBlock) Raw() []byte { return kb.raw }

// VerifySignature checks the key block signature against key.
func (kb *KeyBlock) VerifySignature(key *crypto.PublicKey) error {
	if err := crypto.VerifyData(key, kb.raw[:kb.Signature.DataSize], kb.sig); err != nil {
		return fmt.Errorf("%w: key block: %v", ErrSignature, err)
	}
	return nil
}

// VerifyHash checks the key block's SHA-512 checksum. It is the fallback for
// self-signed blocks and proves integrity only, not authenticity.
func (kb *KeyBlock) VerifyHash() error {
	if len(kb.checksum) != checksumDigestSz {
		return fmt.Errorf("%w: checksum is %d bytes, want %d", ErrSignature, len(kb.checksum), checksumDigestSz)
	}
	got := sha512.Sum512(kb.raw[:kb.Checksum.DataSize])
	if subtle.ConstantTimeCompare(got[:], kb.checksum) != 1 {
		return fmt.Errorf("%w: key block checksum mismatch", ErrSignature)
	}
	return nil
}

// CheckFlags returns ErrPolicyMismatch if the block may not be used with the
// given developer and recovery states.
func (kb *KeyBlock) CheckFlags(dev, rec bool) error {
	devBit, recBit := FlagDeveloper0, FlagRecovery0
	if dev {
		devBit = FlagDeveloper1
	}
	if rec {
		recBit = FlagRecovery1
	}
	if kb.Flags&devBit == 0 {
		return fmt.Errorf("%w: key block flags %#x exclude developer=%t", ErrPolicyMismatch, kb.Flags, dev)
	}
	if kb.Flags&recBit == 0 {
		return fmt.Errorf("%w: key block flags %#x exclude recovery=%t", ErrPolicyMismatch, kb.Flags, rec)
	}
	return nil
}

// DevFlagOK reports whether the developer half of the flag pair allows dev.
func (kb *KeyBlock) DevFlagOK(dev bool) bool {
	if dev {
		return kb.Flags&FlagDeveloper1 != 0
	}
	return kb.Flags&FlagDeveloper0 != 0
}

// RecFlagOK reports whether the recovery half of the flag pair allows rec.
func (kb *KeyBlock) RecFlagOK(rec bool) bool {
	if rec {
		return kb.Flags&FlagRecovery1 != 0
	}
	return kb.Flags&FlagRecovery0 != 0
}

// ParseDataKey decodes the embedded data key.
func (kb *KeyBlock) ParseDataKey() (*crypto.PublicKey, error) {
	k, err := crypto.ParsePackedKey(kb.raw[offDataKey:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStructural, err)
	}
	return k, nil
}

// DataKeyData returns the processed key material of the data key.
func (kb *KeyBlock) DataKeyData() []byte {
	b, _ := cursor.Slice(kb.raw[offDataKey:], kb.DataKey.KeyOffset, kb.DataKey.KeySize)
	return b
}

// BuildKeyBlock assembles a key block around a packed data key and signs it.
// A nil signer produces a self-signed block: the signature area is zeroed and
// only the checksum is meaningful.
func BuildKeyBlock(packedDataKey []byte, flags uint64, signer *rsa.PrivateKey, alg crypto.Algorithm) ([]byte, error) {
	if _, err := crypto.ReadPackedKeyHeader(packedDataKey); err != nil {
		return nil, err
	}
	signedLen := uint64(offDataKey + len(packedDataKey))
	sigSize := uint64(alg.SignatureSize())
	total := signedLen + checksumDigestSz + sigSize

	w := cursor.NewWriter(int(total))
	w.Bytes([]byte(KeyBlockMagic))
	w.U32(keyBlockMajorVersion)
	w.U32(keyBlockMinorVersion)
	w.U64(total)
	SignatureDesc{Offset: signedLen + checksumDigestSz - offSignature, Size: sigSize, DataSize: signedLen}.write(w)
	SignatureDesc{Offset: signedLen - offChecksum, Size: checksumDigestSz, DataSize: signedLen}.write(w)
	w.U64(flags)
	w.Bytes(packedDataKey)

	sum := sha512.Sum512(w.Buf())
	sig := make([]byte, sigSize)
	if signer != nil {
		var err error
		if sig, err = crypto.Sign(signer, alg, w.Buf()); err != nil {
			return nil, fmt.Errorf("key block: %w", err)
		}
	}
	w.Bytes(sum[:])
	w.Bytes(sig)
	return w.Buf(), nil
}
