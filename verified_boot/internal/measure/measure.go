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

// Package measure records what a boot attempt ran: the boot mode digest
// extended into the platform's boot mode register, and a signed text record
// of the chosen firmware and kernel.
package measure

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/sumdb/note"
)

// RecordHeader is the first line of every record.
const RecordHeader = "verified-boot/record/v1"

// ModeDigest returns the SHA-1 digest of the boot mode triple.
func ModeDigest(developer, recovery, keyBlockVerified bool) [sha1.Size]byte {
	b := func(v bool) byte {
		if v {
			return 1
		}
		return 0
	}
	return sha1.Sum([]byte{b(developer), b(recovery), b(keyBlockVerified)})
}

// Record is one boot's measurement.
type Record struct {
	Mode            string
	FirmwareSlot    string
	FirmwareVersion uint32
	KernelDisk      string
	KernelPartition int
	KernelVersion   uint32
	ModeDigest      [sha1.Size]byte
	// BodyDigest is the SHA-256 of the kernel body, all zero if none was
	// loaded.
	BodyDigest [sha256.Size]byte
}

// Marshal returns the record's text form.
func (r Record) Marshal() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s\n", RecordHeader)
	fmt.Fprintf(&b, "mode %s\n", r.Mode)
	fmt.Fprintf(&b, "firmware %s %d\n", orDash(r.FirmwareSlot), r.FirmwareVersion)
	fmt.Fprintf(&b, "kernel %s %d %d\n", orDash(r.KernelDisk), r.KernelPartition, r.KernelVersion)
	fmt.Fprintf(&b, "bootmode %s\n", base64.StdEncoding.EncodeToString(r.ModeDigest[:]))
	fmt.Fprintf(&b, "body %s\n", base64.StdEncoding.EncodeToString(r.BodyDigest[:]))
	return b.Bytes()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func fromDash(s string) string {
	if s == "-" {
		return ""
	}
	return s
}

// ParseRecord decodes the text form of a record.
func ParseRecord(text []byte) (*Record, error) {
	sc := bufio.NewScanner(bytes.NewReader(text))
	var lines [][]string
	for sc.Scan() {
		lines = append(lines, strings.Fields(sc.Text()))
	}
	if len(lines) != 6 || len(lines[0]) != 1 || lines[0][0] != RecordHeader {
		return nil, errors.New("not a boot record")
	}
	want := []struct {
		key    string
		fields int
	}{{"mode", 2}, {"firmware", 3}, {"kernel", 4}, {"bootmode", 2}, {"body", 2}}
	for i, w := range want {
		l := lines[i+1]
		if len(l) != w.fields || l[0] != w.key {
			return nil, fmt.Errorf("line %d: want %q with %d fields, got %q", i+2, w.key, w.fields, strings.Join(l, " "))
		}
	}
	r := &Record{
		Mode:         lines[1][1],
		FirmwareSlot: fromDash(lines[2][1]),
		KernelDisk:   fromDash(lines[3][1]),
	}
	fv, err := strconv.ParseUint(lines[2][2], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("firmware version: %w", err)
	}
	r.FirmwareVersion = uint32(fv)
	if r.KernelPartition, err = strconv.Atoi(lines[3][2]); err != nil {
		return nil, fmt.Errorf("kernel partition: %w", err)
	}
	kv, err := strconv.ParseUint(lines[3][3], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("kernel version: %w", err)
	}
	r.KernelVersion = uint32(kv)
	if err := decodeInto(r.ModeDigest[:], lines[4][1]); err != nil {
		return nil, fmt.Errorf("bootmode: %w", err)
	}
	if err := decodeInto(r.BodyDigest[:], lines[5][1]); err != nil {
		return nil, fmt.Errorf("body: %w", err)
	}
	return r, nil
}

func decodeInto(dst []byte, s string) error {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != len(dst) {
		return fmt.Errorf("got %d bytes, want %d", len(b), len(dst))
	}
	copy(dst, b)
	return nil
}

// Sign returns the record as a signed note.
func Sign(r Record, signers ...note.Signer) ([]byte, error) {
	n := note.Note{Text: string(r.Marshal())}
	msg, err := note.Sign(&n, signers...)
	if err != nil {
		return nil, fmt.Errorf("failed to sign boot record: %w", err)
	}
	return msg, nil
}

// Open verifies a signed record and decodes it.
func Open(msg []byte, v note.Verifier) (*Record, error) {
	n, err := note.Open(msg, note.VerifierList(v))
	if err != nil {
		return nil, fmt.Errorf("failed to verify boot record: %w", err)
	}
	return ParseRecord([]byte(n.Text))
}
