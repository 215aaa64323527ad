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

// Package kernelselect finds and authenticates a kernel among the kernel
// partitions of a disk, and tracks the kernel anti-rollback floor.
//
// The scan runs in two phases. The first evaluates candidates in partition
// table order, verifying the body of the first acceptable one and only the
// headers of any after it. The second picks the chosen kernel and the new
// floor from those evaluations.
package kernelselect

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/crypto"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/nvstorage"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/secdata"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/session"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/vblock"
	"github.com/golang/glog"
)

// DefaultPrefixSize is how much of each partition is read to find the key
// block and preamble.
const DefaultPrefixSize = 64 * 1024

// Mark is an outcome recorded against a partition table entry.
type Mark int

const (
	// MarkTried records that the entry is about to be booted.
	MarkTried Mark = iota
	// MarkBad records that the entry failed verification.
	MarkBad
)

func (m Mark) String() string {
	if m == MarkTried {
		return "tried"
	}
	return "bad"
}

// Entry locates a kernel partition, in logical blocks.
type Entry struct {
	// Index is the 1-based partition number.
	Index    int
	StartLBA uint64
	SizeLBA  uint64
}

// PartitionTable iterates the kernel entries of a disk in boot priority
// order.
type PartitionTable interface {
	// Next returns the next kernel entry, or false when there are no more.
	Next() (Entry, bool, error)
	// Mark records m against the entry last returned by Next.
	Mark(m Mark) error
	// Commit persists any marks.
	Commit() error
}

// Disk is one candidate boot device.
type Disk struct {
	Name        string
	BytesPerLBA uint64
	LBACount    uint64
	Flags       DiskFlags
	Data        io.ReaderAt
	Table       PartitionTable
}

// Params are the inputs to Load.
type Params struct {
	Disk *Disk
	// RecoveryKey verifies kernels in recovery mode.
	RecoveryKey *crypto.PublicKey
	NV          *nvstorage.Context
	// FWMP may be nil.
	FWMP *secdata.FWMP
	// BufferSize bounds the kernel body. Zero means unbounded.
	BufferSize uint64
}

// Result describes the chosen kernel.
type Result struct {
	Disk              string
	Partition         int
	CombinedVersion   uint32
	KeyBlockValid     bool
	BodyLoadAddress   uint64
	BootloaderAddress uint64
	BootloaderSize    uint64
	Body              []byte
}

// Candidate is the evaluation of one partition table entry.
type Candidate struct {
	Entry
	Check session.PartitionCheck
	// Accepted is set if the candidate passed every check it was put to.
	Accepted bool
	// KeyBlockValid is set if the key block was signed by the trusted key
	// and matched the mode and the floor.
	KeyBlockValid   bool
	CombinedVersion uint32
	// Good is set if the body was read and verified.
	Good bool

	preamble *vblock.KernelPreamble
	body     []byte
}

// Selector loads kernels.
type Selector struct {
	// PrefixSize overrides DefaultPrefixSize when non-zero.
	PrefixSize int
}

type scan struct {
	st     *session.State
	p      Params
	key    *crypto.PublicKey
	floor  uint32
	prefix int
	call   *session.KernelCall
}

// Load scans the kernel partitions of p.Disk. It returns
// session.ErrNoKernelFound if the disk has none, and
// session.ErrInvalidKernelFound if none of them is usable; both also leave a
// recovery request in st and p.NV.
func (s *Selector) Load(ctx context.Context, st *session.State, p Params) (Result, error) {
	call := st.NewKernelCall(p.Disk.Name, p.Disk.BytesPerLBA, p.Disk.LBACount)
	key := st.KernelSubkey
	if st.Mode == session.ModeRecovery {
		key = p.RecoveryKey
	}
	if key == nil {
		call.Result = session.CallInvalidParams
		return Result{}, fmt.Errorf("no key to verify kernels in %v mode", st.Mode)
	}
	sc := &scan{st: st, p: p, key: key, floor: st.KernelFloor, prefix: s.PrefixSize, call: call}
	if sc.prefix <= 0 {
		sc.prefix = DefaultPrefixSize
	}

	cands, err := sc.evaluate(ctx)
	if cerr := p.Disk.Table.Commit(); cerr != nil && err == nil {
		err = fmt.Errorf("failed to commit partition table: %w", cerr)
	}
	if err != nil {
		call.Result = session.CallTableError
		return Result{}, err
	}

	chosen, lowest := choose(cands)
	switch {
	case chosen != nil:
		call.Result = session.CallGoodPartition
		call.Chosen = chosen.Index
		if lowest != nil && lowest.CombinedVersion > st.KernelFloor {
			glog.V(1).Infof("Kernel floor %#08x -> %#08x", st.KernelFloor, lowest.CombinedVersion)
			st.KernelFloor = lowest.CombinedVersion
		}
		p.NV.ClearRecovery()
		glog.Infof("Kernel on %s partition %d is good, version %#08x", p.Disk.Name, chosen.Index, chosen.CombinedVersion)
		return Result{
			Disk:              p.Disk.Name,
			Partition:         chosen.Index,
			CombinedVersion:   chosen.CombinedVersion,
			KeyBlockValid:     chosen.KeyBlockValid,
			BodyLoadAddress:   chosen.preamble.BodyLoadAddress,
			BootloaderAddress: chosen.preamble.BootloaderAddress,
			BootloaderSize:    chosen.preamble.BootloaderSize,
			Body:              chosen.body,
		}, nil
	case len(cands) > 0:
		call.Result = session.CallInvalidPartitions
		st.Recovery = nvstorage.RecoveryRWInvalidOS
		p.NV.RequestRecovery(st.Recovery)
		return Result{}, fmt.Errorf("%w on %s: %d candidates", session.ErrInvalidKernelFound, p.Disk.Name, len(cands))
	default:
		call.Result = session.CallNoPartitions
		st.Recovery = nvstorage.RecoveryRWNoOS
		p.NV.RequestRecovery(st.Recovery)
		return Result{}, fmt.Errorf("%w on %s", session.ErrNoKernelFound, p.Disk.Name)
	}
}

// choose returns the first good candidate in encounter order, and the
// accepted candidate with a valid key block and the lowest version.
func choose(cands []*Candidate) (chosen, lowest *Candidate) {
	for _, c := range cands {
		if c.Good && chosen == nil {
			chosen = c
		}
		if c.Accepted && c.KeyBlockValid && (lowest == nil || c.CombinedVersion < lowest.CombinedVersion) {
			lowest = c
		}
	}
	return chosen, lowest
}

// evaluate is the first phase: walk the table, marking entries as it goes.
func (sc *scan) evaluate(ctx context.Context) ([]*Candidate, error) {
	var (
		cands    []*Candidate
		haveGood bool
	)
	for {
		e, ok, err := sc.p.Disk.Table.Next()
		if err != nil {
			return cands, fmt.Errorf("failed to read partition table: %w", err)
		}
		if !ok {
			return cands, nil
		}
		c := &Candidate{Entry: e}
		cands = append(cands, c)
		rec := sc.call.AddPartition(session.Partition{Index: e.Index, Start: e.StartLBA, Size: e.SizeLBA})

		sc.check(ctx, c, haveGood)
		rec.Check = c.Check
		rec.CombinedVersion = c.CombinedVersion
		if c.KeyBlockValid {
			rec.Flags |= session.PartKeyBlockValid
			sc.st.Set(session.FlagKernelKeyVerified, true)
		}

		if !c.Accepted {
			glog.V(1).Infof("%s partition %d rejected: %v", sc.p.Disk.Name, e.Index, c.Check)
			if err := sc.p.Disk.Table.Mark(MarkBad); err != nil {
				return cands, fmt.Errorf("failed to mark partition %d: %w", e.Index, err)
			}
			continue
		}
		if haveGood {
			// Headers only, for the floor.
			continue
		}
		haveGood = true
		if !sc.st.Has(session.FlagNoFailBoot) {
			if err := sc.p.Disk.Table.Mark(MarkTried); err != nil {
				return cands, fmt.Errorf("failed to mark partition %d: %w", e.Index, err)
			}
		}
		if sc.st.Mode == session.ModeRecovery || !c.KeyBlockValid {
			return cands, nil
		}
		if c.CombinedVersion == sc.floor {
			return cands, nil
		}
	}
}

func (sc *scan) requireOfficial() bool {
	return sc.st.Mode != session.ModeDeveloper ||
		sc.p.FWMP.Has(secdata.FWMPDevEnableOfficialOnly) ||
		sc.p.NV.GetBool(nvstorage.DevBootSignedOnly)
}

// check runs every check on c, stopping at the first which rejects it.
// With headerOnly set the body is left alone.
func (sc *scan) check(ctx context.Context, c *Candidate, headerOnly bool) {
	d := sc.p.Disk
	dev := sc.st.Mode == session.ModeDeveloper
	rec := sc.st.Mode == session.ModeRecovery

	partBytes := c.SizeLBA * d.BytesPerLBA
	if c.StartLBA > d.LBACount || c.SizeLBA > d.LBACount-c.StartLBA || partBytes == 0 {
		c.Check = session.PartCheckTooSmall
		return
	}
	part := io.NewSectionReader(d.Data, int64(c.StartLBA*d.BytesPerLBA), int64(partBytes))
	n := uint64(sc.prefix)
	if partBytes < n {
		n = partBytes
	}
	prefix := make([]byte, n)
	if _, err := io.ReadFull(part, prefix); err != nil {
		glog.V(2).Infof("partition %d: %v", c.Index, err)
		c.Check = session.PartCheckReadStart
		return
	}

	kb, err := vblock.ParseKeyBlock(prefix)
	if err != nil {
		glog.V(2).Infof("partition %d: %v", c.Index, err)
		c.Check = session.PartCheckKeyBlockSig
		return
	}
	valid := true
	if err := kb.VerifySignature(sc.key); err != nil {
		glog.V(2).Infof("partition %d: %v", c.Index, err)
		c.Check = session.PartCheckKeyBlockSig
		valid = false
		if sc.requireOfficial() {
			c.Check = session.PartCheckSelfSigned
			return
		}
		if err := kb.VerifyHash(); err != nil {
			c.Check = session.PartCheckKeyBlockHash
			return
		}
	}
	if !kb.DevFlagOK(dev) {
		c.Check = session.PartCheckDevMismatch
		valid = false
	}
	if !kb.RecFlagOK(rec) {
		c.Check = session.PartCheckRecMismatch
		valid = false
	}
	keyVersion := kb.DataKey.Version
	if !rec {
		if keyVersion < uint64(sc.floor>>16) || keyVersion > vblock.MaxVersion {
			c.Check = session.PartCheckKeyRollback
			valid = false
		}
	}
	if !dev && !valid {
		return
	}
	if dev {
		if want := sc.p.FWMP.KeyHash(); want != nil {
			got := sha256.Sum256(kb.DataKeyData())
			if subtle.ConstantTimeCompare(got[:], want) != 1 {
				c.Check = session.PartCheckDevKeyHash
				return
			}
		}
	}

	dataKey, err := kb.ParseDataKey()
	if err != nil {
		c.Check = session.PartCheckDataKeyParse
		return
	}
	pre, err := vblock.ParseKernelPreamble(prefix[kb.Size:], dataKey)
	if err != nil {
		glog.V(2).Infof("partition %d: %v", c.Index, err)
		c.Check = session.PartCheckVerifyPreamble
		return
	}
	c.CombinedVersion = vblock.CombinedVersion(keyVersion, pre.KernelVersion)
	if valid && !rec && c.CombinedVersion < sc.floor {
		c.Check = session.PartCheckKernelRollback
		if !dev {
			return
		}
	}
	c.Check = session.PartCheckPreambleValid
	c.KeyBlockValid = valid
	c.Accepted = true
	c.preamble = pre
	if headerOnly {
		return
	}

	bodyOff := kb.Size + pre.Size
	if bodyOff > uint64(len(prefix)) {
		c.Check = session.PartCheckBodyOffset
		c.Accepted = false
		return
	}
	bodySize := pre.BodySize()
	if sc.p.BufferSize > 0 && bodySize > sc.p.BufferSize {
		c.Check = session.PartCheckBodyExceedsMem
		c.Accepted = false
		return
	}
	if bodySize > partBytes-bodyOff {
		c.Check = session.PartCheckBodyExceedsPart
		c.Accepted = false
		return
	}
	body := make([]byte, bodySize)
	copied := copy(body, prefix[bodyOff:])
	if rest := body[copied:]; len(rest) > 0 {
		if _, err := part.ReadAt(rest, int64(len(prefix))); err != nil {
			glog.V(2).Infof("partition %d: %v", c.Index, err)
			c.Check = session.PartCheckReadData
			c.Accepted = false
			return
		}
	}
	if err := pre.VerifyBody(dataKey, body); err != nil {
		glog.V(2).Infof("partition %d: %v", c.Index, err)
		c.Check = session.PartCheckVerifyData
		c.Accepted = false
		return
	}
	c.Check = session.PartCheckKernelGood
	c.Good = true
	c.body = body
}
