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

// Package bootlog keeps an append-only Merkle log of signed boot records in
// secure storage, so that a verifier holding a checkpoint can check that a
// record it was shown is the one the device logged.
package bootlog

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/cursor"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/persistence"
	"github.com/golang/glog"
	"github.com/transparency-dev/formats/log"
	"github.com/transparency-dev/merkle/compact"
	"github.com/transparency-dev/merkle/proof"
	"github.com/transparency-dev/merkle/rfc6962"
	"golang.org/x/mod/sumdb/note"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Spaces used by the log.
const (
	// SpaceState holds the tree size and its compact range.
	SpaceState = "boot_log"
	// SpaceCheckpoint holds the latest signed checkpoint.
	SpaceCheckpoint = "boot_log_checkpoint"

	entryPrefix = "boot_log/"
)

// ErrConflict is returned when the log grew while an entry was being added.
var ErrConflict = errors.New("boot log changed during append")

var (
	hasher = rfc6962.DefaultHasher
	rf     = compact.RangeFactory{Hash: hasher.HashChildren}
)

// Log is a boot record log stored in p.
type Log struct {
	p      persistence.SpacePersistence
	origin string
	// signer may be nil, in which case no signed checkpoint is kept.
	signer note.Signer
}

// New returns a log stored in p whose checkpoints carry origin.
func New(p persistence.SpacePersistence, origin string, s note.Signer) *Log {
	return &Log{p: p, origin: origin, signer: s}
}

func entrySpace(i uint64) string { return fmt.Sprintf("%s%d", entryPrefix, i) }

func get(p persistence.SpacePersistence, space string) ([]byte, error) {
	r, err := p.ReadOps(space)
	if err != nil {
		return nil, err
	}
	return r.Get()
}

func set(p persistence.SpacePersistence, space string, data []byte) error {
	w, err := p.WriteOps(space)
	if err != nil {
		return fmt.Errorf("WriteOps(%s): %w", space, err)
	}
	defer w.Close()
	return w.Set(data)
}

func encodeState(r *compact.Range) []byte {
	w := cursor.NewWriter(8 + len(r.Hashes())*hasher.Size())
	w.U64(r.End())
	for _, h := range r.Hashes() {
		w.Bytes(h)
	}
	return w.Buf()
}

func decodeState(b []byte) (*compact.Range, error) {
	r := cursor.NewReader(b)
	size := r.U64()
	var hashes [][]byte
	for r.Remaining() >= hasher.Size() {
		hashes = append(hashes, r.Bytes(hasher.Size()))
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("boot log state: %w", err)
	}
	if n := r.Remaining(); n != 0 {
		return nil, fmt.Errorf("boot log state has %d trailing bytes", n)
	}
	return rf.NewRange(0, size, hashes)
}

// state returns the stored range and its raw form; an empty log has no raw
// form.
func (l *Log) state() (*compact.Range, []byte, error) {
	raw, err := get(l.p, SpaceState)
	if status.Code(err) == codes.NotFound {
		return rf.NewEmptyRange(0), nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read boot log state: %w", err)
	}
	r, err := decodeState(raw)
	if err != nil {
		return nil, nil, err
	}
	return r, raw, nil
}

func (l *Log) checkpoint(r *compact.Range) (*log.Checkpoint, error) {
	if r.End() == 0 {
		return &log.Checkpoint{Origin: l.origin, Hash: hasher.EmptyRoot()}, nil
	}
	root, err := r.GetRootHash(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to compute boot log root: %w", err)
	}
	return &log.Checkpoint{Origin: l.origin, Size: r.End(), Hash: root}, nil
}

// Checkpoint returns the current, unsigned, state of the log.
func (l *Log) Checkpoint() (*log.Checkpoint, error) {
	r, _, err := l.state()
	if err != nil {
		return nil, err
	}
	return l.checkpoint(r)
}

// SignedCheckpoint returns the checkpoint note written by the last Append.
// It returns a NotFound status if none has been written.
func (l *Log) SignedCheckpoint() ([]byte, error) {
	return get(l.p, SpaceCheckpoint)
}

// Append adds entry to the log and returns the new checkpoint. If the log
// has a signer, the signed checkpoint is stored as well.
func (l *Log) Append(entry []byte) (*log.Checkpoint, error) {
	r, raw, err := l.state()
	if err != nil {
		return nil, err
	}
	idx := r.End()
	if err := set(l.p, entrySpace(idx), entry); err != nil {
		return nil, fmt.Errorf("failed to store boot log entry %d: %w", idx, err)
	}
	if err := r.Append(hasher.HashLeaf(entry), nil); err != nil {
		return nil, fmt.Errorf("failed to extend boot log: %w", err)
	}

	w, err := l.p.WriteOps(SpaceState)
	if err != nil {
		return nil, fmt.Errorf("WriteOps(%s): %w", SpaceState, err)
	}
	defer w.Close()
	cur, err := w.Get()
	if err != nil && status.Code(err) != codes.NotFound {
		return nil, fmt.Errorf("failed to read boot log state: %w", err)
	}
	if !bytes.Equal(cur, raw) {
		return nil, ErrConflict
	}
	if err := w.Set(encodeState(r)); err != nil {
		return nil, fmt.Errorf("failed to store boot log state: %w", err)
	}

	cp, err := l.checkpoint(r)
	if err != nil {
		return nil, err
	}
	glog.Infof("Boot log entry %d appended, root %x", idx, cp.Hash)
	if l.signer == nil {
		return cp, nil
	}
	signed, err := note.Sign(&note.Note{Text: string(cp.Marshal())}, l.signer)
	if err != nil {
		return nil, fmt.Errorf("failed to sign boot log checkpoint: %w", err)
	}
	if err := set(l.p, SpaceCheckpoint, signed); err != nil {
		return nil, fmt.Errorf("failed to store boot log checkpoint: %w", err)
	}
	return cp, nil
}

// Entry returns the entry at index i.
func (l *Log) Entry(i uint64) ([]byte, error) {
	return get(l.p, entrySpace(i))
}

// leafHashes returns the hashes of the first n entries.
func (l *Log) leafHashes(n uint64) ([][]byte, error) {
	hs := make([][]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		e, err := l.Entry(i)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		hs = append(hs, hasher.HashLeaf(e))
	}
	return hs, nil
}

// InclusionProof proves that entry index is in the tree of the given size.
// Nodes are recomputed from the stored entries.
func (l *Log) InclusionProof(index, size uint64) ([][]byte, error) {
	cp, err := l.Checkpoint()
	if err != nil {
		return nil, err
	}
	if size > cp.Size {
		return nil, status.Errorf(codes.OutOfRange, "tree size %d is beyond the log size %d", size, cp.Size)
	}
	if index >= size {
		return nil, status.Errorf(codes.OutOfRange, "index %d is outside a tree of size %d", index, size)
	}
	nodes, err := proof.Inclusion(index, size)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate inclusion proof node list: %w", err)
	}
	leaves, err := l.leafHashes(size)
	if err != nil {
		return nil, err
	}
	hashes := make([][]byte, 0, len(nodes.IDs))
	for _, id := range nodes.IDs {
		h, err := nodeHash(leaves, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get node (%v): %w", id, err)
		}
		hashes = append(hashes, h)
	}
	return nodes.Rehash(hashes, hasher.HashChildren)
}

// nodeHash returns the hash of the perfect subtree id over leaves.
func nodeHash(leaves [][]byte, id compact.NodeID) ([]byte, error) {
	begin, end := id.Coverage()
	if end > uint64(len(leaves)) {
		return nil, fmt.Errorf("node covers [%d, %d) of %d leaves", begin, end, len(leaves))
	}
	if id.Level == 0 {
		return leaves[begin], nil
	}
	r := rf.NewEmptyRange(begin)
	for _, h := range leaves[begin:end] {
		if err := r.Append(h, nil); err != nil {
			return nil, err
		}
	}
	hs := r.Hashes()
	if len(hs) != 1 {
		return nil, fmt.Errorf("node (%v) is not a perfect subtree", id)
	}
	return hs[0], nil
}

// VerifyInclusion checks that entry is at index in the tree committed to by
// cp.
func VerifyInclusion(cp *log.Checkpoint, index uint64, entry []byte, p [][]byte) error {
	return proof.VerifyInclusion(hasher, index, cp.Size, hasher.HashLeaf(entry), p, cp.Hash)
}
