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

package vblock

import (
	"crypto/rsa"
	"fmt"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/crypto"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/cursor"
)

const (
	preambleMajorVersion = 2

	// FirmwarePreambleHeaderSize is the fixed part of a firmware preamble,
	// including the flags word added in minor version 1.
	FirmwarePreambleHeaderSize = 108
	firmwarePreambleMinor      = 1
	// Minor version 0 preambles end before the flags word.
	firmwarePreambleHeaderSizeV0 = 104

	// KernelPreambleHeaderSize is the fixed part of a kernel preamble.
	KernelPreambleHeaderSize = 96
	kernelPreambleMinor      = 0

	offPreambleSig   = 8
	offKernelSubkey  = 48
	offFirmwareBody  = 80
	offKernelBodySig = 72

	// MaxVersion is the largest key or body version that fits in half a
	// combined version.
	MaxVersion = 0xFFFF
)

// FirmwarePreambleUseRONormal marks a slot which defers to the read-only
// normal-mode code path instead of carrying its own body.
const FirmwarePreambleUseRONormal uint32 = 1

// CombinedVersion merges a key version and a body version.
func CombinedVersion(keyVersion, bodyVersion uint64) uint32 {
	return uint32(keyVersion&MaxVersion)<<16 | uint32(bodyVersion&MaxVersion)
}

// preambleCommon is the signed prefix shared by both preamble kinds.
type preambleCommon struct {
	Size         uint64
	Signature    SignatureDesc
	MajorVersion uint32
	MinorVersion uint32
}

func readPreambleCommon(r *cursor.Reader) preambleCommon {
	return preambleCommon{
		Size:         r.U64(),
		Signature:    readSigDesc(r),
		MajorVersion: r.U32(),
		MinorVersion: r.U32(),
	}
}

// verify checks the common fields and the preamble signature, and returns the
// signed bytes.
func (p preambleCommon) verify(buf []byte, minHeader int, key *crypto.PublicKey) ([]byte, error) {
	if p.MajorVersion != preambleMajorVersion {
		return nil, fmt.Errorf("%w: preamble major version %d, want %d", ErrStructural, p.MajorVersion, preambleMajorVersion)
	}
	if p.Size < uint64(minHeader) || p.Size > uint64(len(buf)) {
		return nil, fmt.Errorf("%w: preamble size %d out of range [%d, %d]", ErrStructural, p.Size, minHeader, len(buf))
	}
	raw := buf[:p.Size]
	sig, err := p.Signature.bytesIn(raw, offPreambleSig)
	if err != nil {
		return nil, fmt.Errorf("preamble signature: %w", err)
	}
	if p.Signature.DataSize < uint64(minHeader) || p.Signature.DataSize > p.Size {
		return nil, fmt.Errorf("%w: preamble signature covers %d bytes, want [%d, %d]", ErrStructural, p.Signature.DataSize, minHeader, p.Size)
	}
	signed := raw[:p.Signature.DataSize]
	if err := crypto.VerifyData(key, signed, sig); err != nil {
		return nil, fmt.Errorf("%w: preamble: %v", ErrSignature, err)
	}
	return signed, nil
}

// FirmwarePreamble describes a firmware body.
type FirmwarePreamble struct {
	Size            uint64
	MajorVersion    uint32
	MinorVersion    uint32
	FirmwareVersion uint64
	KernelSubkey    crypto.PackedKeyHeader
	BodySignature   SignatureDesc
	// Flags is zero for minor version 0 preambles.
	Flags uint32

	signed  []byte
	bodySig []byte
}

// ParseFirmwarePreamble decodes the firmware preamble at the start of buf and
// verifies its signature with the data key.
func ParseFirmwarePreamble(buf []byte, key *crypto.PublicKey) (*FirmwarePreamble, error) {
	if len(buf) < firmwarePreambleHeaderSizeV0 {
		return nil, fmt.Errorf("%w: firmware preamble needs %d bytes, have %d", ErrStructural, firmwarePreambleHeaderSizeV0, len(buf))
	}
	r := cursor.NewReader(buf)
	c := readPreambleCommon(r)
	p := &FirmwarePreamble{
		Size:            c.Size,
		MajorVersion:    c.MajorVersion,
		MinorVersion:    c.MinorVersion,
		FirmwareVersion: r.U64(),
	}
	p.KernelSubkey = crypto.PackedKeyHeader{KeyOffset: r.U64(), KeySize: r.U64(), Algorithm: crypto.Algorithm(r.U64()), Version: r.U64()}
	p.BodySignature = readSigDesc(r)
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStructural, err)
	}

	headerSize := firmwarePreambleHeaderSizeV0
	if c.MinorVersion >= firmwarePreambleMinor {
		headerSize = FirmwarePreambleHeaderSize
	}
	signed, err := c.verify(buf, headerSize, key)
	if err != nil {
		return nil, fmt.Errorf("firmware %w", err)
	}
	if headerSize == FirmwarePreambleHeaderSize {
		p.Flags = cursor.NewReader(signed[firmwarePreambleHeaderSizeV0:]).U32()
	}
	p.signed = signed

	if _, err := cursor.Inside(uint64(len(signed)-offKernelSubkey), p.KernelSubkey.KeyOffset, p.KernelSubkey.KeySize); err != nil {
		return nil, fmt.Errorf("%w: kernel subkey outside signed preamble: %v", ErrStructural, err)
	}
	if p.bodySig, err = p.BodySignature.bytesIn(signed, offFirmwareBody); err != nil {
		return nil, fmt.Errorf("firmware body signature: %w", err)
	}
	if p.FirmwareVersion > MaxVersion {
		return nil, fmt.Errorf("%w: firmware version %d exceeds %d", ErrStructural, p.FirmwareVersion, MaxVersion)
	}
	return p, nil
}

// BodySize returns the number of body bytes covered by the body signature.
func (p *FirmwarePreamble) BodySize() uint64 { return p.BodySignature.DataSize }

// UsesRONormal reports whether the slot defers to the read-only code path.
func (p *FirmwarePreamble) UsesRONormal() bool { return p.Flags&FirmwarePreambleUseRONormal != 0 }

// ParseKernelSubkey decodes the kernel subkey.
func (p *FirmwarePreamble) ParseKernelSubkey() (*crypto.PublicKey, error) {
	k, err := crypto.ParsePackedKey(p.signed[offKernelSubkey:])
	if err != nil {
		return nil, fmt.Errorf("%w: kernel subkey: %v", ErrStructural, err)
	}
	return k, nil
}

// VerifyBodyDigest checks the body signature against a digest the caller
// computed over BodySize bytes of body.
func (p *FirmwarePreamble) VerifyBodyDigest(key *crypto.PublicKey, digest []byte) error {
	if err := crypto.VerifyDigest(key, digest, p.bodySig); err != nil {
		return fmt.Errorf("%w: firmware body: %v", ErrSignature, err)
	}
	return nil
}

// KernelPreamble describes a kernel body.
type KernelPreamble struct {
	Size              uint64
	MajorVersion      uint32
	MinorVersion      uint32
	KernelVersion     uint64
	BodyLoadAddress   uint64
	BootloaderAddress uint64
	BootloaderSize    uint64
	BodySignature     SignatureDesc

	bodySig []byte
}

// ParseKernelPreamble decodes the kernel preamble at the start of buf and
// verifies its signature with the data key.
func ParseKernelPreamble(buf []byte, key *crypto.PublicKey) (*KernelPreamble, error) {
	if len(buf) < KernelPreambleHeaderSize {
		return nil, fmt.Errorf("%w: kernel preamble needs %d bytes, have %d", ErrStructural, KernelPreambleHeaderSize, len(buf))
	}
	r := cursor.NewReader(buf)
	c := readPreambleCommon(r)
	p := &KernelPreamble{
		Size:              c.Size,
		MajorVersion:      c.MajorVersion,
		MinorVersion:      c.MinorVersion,
		KernelVersion:     r.U64(),
		BodyLoadAddress:   r.U64(),
		BootloaderAddress: r.U64(),
		BootloaderSize:    r.U64(),
		BodySignature:     readSigDesc(r),
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStructural, err)
	}
	signed, err := c.verify(buf, KernelPreambleHeaderSize, key)
	if err != nil {
		return nil, fmt.Errorf("kernel %w", err)
	}
	if p.bodySig, err = p.BodySignature.bytesIn(signed, offKernelBodySig); err != nil {
		return nil, fmt.Errorf("kernel body signature: %w", err)
	}
	if p.KernelVersion > MaxVersion {
		return nil, fmt.Errorf("%w: kernel version %d exceeds %d", ErrStructural, p.KernelVersion, MaxVersion)
	}
	return p, nil
}

// BodySize returns the number of body bytes covered by the body signature.
func (p *KernelPreamble) BodySize() uint64 { return p.BodySignature.DataSize }

// VerifyBody checks the body signature over the first BodySize bytes of body.
func (p *KernelPreamble) VerifyBody(key *crypto.PublicKey, body []byte) error {
	if uint64(len(body)) < p.BodySize() {
		return fmt.Errorf("%w: kernel body is %d bytes, signature covers %d", ErrStructural, len(body), p.BodySize())
	}
	if err := crypto.VerifyData(key, body[:p.BodySize()], p.bodySig); err != nil {
		return fmt.Errorf("%w: kernel body: %v", ErrSignature, err)
	}
	return nil
}

// FirmwarePreambleParams are the inputs to BuildFirmwarePreamble.
type FirmwarePreambleParams struct {
	FirmwareVersion uint64
	// KernelSubkey is a packed key as produced by crypto.MarshalPackedKey.
	KernelSubkey  []byte
	BodySignature []byte
	BodySize      uint64
	Flags         uint32
	// MinorVersion 0 omits the flags word.
	MinorVersion uint32
}

// BuildFirmwarePreamble assembles and signs a firmware preamble.
func BuildFirmwarePreamble(p FirmwarePreambleParams, signer *rsa.PrivateKey, alg crypto.Algorithm) ([]byte, error) {
	sub, err := crypto.ReadPackedKeyHeader(p.KernelSubkey)
	if err != nil {
		return nil, err
	}
	subData, err := cursor.Slice(p.KernelSubkey, sub.KeyOffset, sub.KeySize)
	if err != nil {
		return nil, fmt.Errorf("kernel subkey: %w", err)
	}
	header := firmwarePreambleHeaderSizeV0
	if p.MinorVersion >= firmwarePreambleMinor {
		header = FirmwarePreambleHeaderSize
	}
	subOff := uint64(header)
	bodySigOff := subOff + uint64(len(subData))
	signedLen := bodySigOff + uint64(len(p.BodySignature))
	sigSize := uint64(alg.SignatureSize())

	w := cursor.NewWriter(int(signedLen + sigSize))
	w.U64(signedLen + sigSize)
	SignatureDesc{Offset: signedLen - offPreambleSig, Size: sigSize, DataSize: signedLen}.write(w)
	w.U32(preambleMajorVersion)
	w.U32(p.MinorVersion)
	w.U64(p.FirmwareVersion)
	w.U64(subOff - offKernelSubkey)
	w.U64(uint64(len(subData)))
	w.U64(uint64(sub.Algorithm))
	w.U64(sub.Version)
	SignatureDesc{Offset: bodySigOff - offFirmwareBody, Size: uint64(len(p.BodySignature)), DataSize: p.BodySize}.write(w)
	if header == FirmwarePreambleHeaderSize {
		w.U32(p.Flags)
	}
	w.Bytes(subData)
	w.Bytes(p.BodySignature)
	return appendSignature(w, signer, alg)
}

// KernelPreambleParams are the inputs to BuildKernelPreamble.
type KernelPreambleParams struct {
	KernelVersion     uint64
	BodyLoadAddress   uint64
	BootloaderAddress uint64
	BootloaderSize    uint64
	BodySignature     []byte
	BodySize          uint64
}

// BuildKernelPreamble assembles and signs a kernel preamble.
func BuildKernelPreamble(p KernelPreambleParams, signer *rsa.PrivateKey, alg crypto.Algorithm) ([]byte, error) {
	signedLen := uint64(KernelPreambleHeaderSize + len(p.BodySignature))
	sigSize := uint64(alg.SignatureSize())

	w := cursor.NewWriter(int(signedLen + sigSize))
	w.U64(signedLen + sigSize)
	SignatureDesc{Offset: signedLen - offPreambleSig, Size: sigSize, DataSize: signedLen}.write(w)
	w.U32(preambleMajorVersion)
	w.U32(kernelPreambleMinor)
	w.U64(p.KernelVersion)
	w.U64(p.BodyLoadAddress)
	w.U64(p.BootloaderAddress)
	w.U64(p.BootloaderSize)
	SignatureDesc{Offset: KernelPreambleHeaderSize - offKernelBodySig, Size: uint64(len(p.BodySignature)), DataSize: p.BodySize}.write(w)
	w.Bytes(p.BodySignature)
	return appendSignature(w, signer, alg)
}

func appendSignature(w *cursor.Writer, signer *rsa.PrivateKey, alg crypto.Algorithm) ([]byte, error) {
	sig, err := crypto.Sign(signer, alg, w.Buf())
	if err != nil {
		return nil, fmt.Errorf("preamble: %w", err)
	}
	w.Bytes(sig)
	return w.Buf(), nil
}
