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

package testonly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/api"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/kernelselect"
)

// LBASize is the block size of every test disk.
const LBASize = 512

// firstLBA leaves room for a partition table at the front of the disk.
const firstLBA = 34

// MemTable is a partition table held in memory which records the marks made
// against it.
type MemTable struct {
	Entries []kernelselect.Entry
	Marks   map[int]kernelselect.Mark
	Commits int
	// NextErr, if set, is returned by Next once the entries run out.
	NextErr error

	pos int
}

// Next implements kernelselect.PartitionTable.
func (m *MemTable) Next() (kernelselect.Entry, bool, error) {
	if m.pos >= len(m.Entries) {
		return kernelselect.Entry{}, false, m.NextErr
	}
	m.pos++
	return m.Entries[m.pos-1], true, nil
}

// Mark implements kernelselect.PartitionTable.
func (m *MemTable) Mark(mk kernelselect.Mark) error {
	if m.pos == 0 {
		return fmt.Errorf("mark %v before any entry", mk)
	}
	if m.Marks == nil {
		m.Marks = make(map[int]kernelselect.Mark)
	}
	m.Marks[m.Entries[m.pos-1].Index] = mk
	return nil
}

// Commit implements kernelselect.PartitionTable.
func (m *MemTable) Commit() error {
	m.Commits++
	return nil
}

// Rewind lets the table be scanned again.
func (m *MemTable) Rewind() { m.pos = 0 }

// NewDisk lays the given partition contents out on a fixed disk, numbering
// them from 1 in the order given.
func NewDisk(name string, parts ...[]byte) (*kernelselect.Disk, *MemTable) {
	tbl := &MemTable{}
	lba := uint64(firstLBA)
	var image bytes.Buffer
	image.Write(make([]byte, firstLBA*LBASize))
	for i, p := range parts {
		size := (uint64(len(p)) + LBASize - 1) / LBASize
		tbl.Entries = append(tbl.Entries, kernelselect.Entry{Index: i + 1, StartLBA: lba, SizeLBA: size})
		image.Write(p)
		image.Write(make([]byte, size*LBASize-uint64(len(p))))
		lba += size
	}
	// Trailing space for a backup table.
	image.Write(make([]byte, firstLBA*LBASize))
	b := image.Bytes()
	return &kernelselect.Disk{
		Name:        name,
		BytesPerLBA: LBASize,
		LBACount:    uint64(len(b)) / LBASize,
		Flags:       kernelselect.DiskFixed,
		Data:        bytes.NewReader(b),
		Table:       tbl,
	}, tbl
}

// WriteDisk lays parts out as NewDisk does and writes the image to
// dir/name.img, with a partition map in dir/name.json. The first partition
// gets the highest priority; every entry has one try left.
func WriteDisk(t testing.TB, dir, name string, parts ...[]byte) (image, partitions string) {
	t.Helper()
	d, tbl := NewDisk(name, parts...)
	raw := make([]byte, d.LBACount*LBASize)
	if _, err := d.Data.ReadAt(raw, 0); err != nil {
		t.Fatalf("ReadAt(): %v", err)
	}
	var m api.PartitionMap
	for i, e := range tbl.Entries {
		m.Partitions = append(m.Partitions, api.Partition{
			Index:    e.Index,
			StartLBA: e.StartLBA,
			SizeLBA:  e.SizeLBA,
			Priority: len(tbl.Entries) - i,
			Tries:    1,
		})
	}
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal(): %v", err)
	}
	image, partitions = filepath.Join(dir, name+".img"), filepath.Join(dir, name+".json")
	if err := ioutil.WriteFile(image, raw, 0o644); err != nil {
		t.Fatalf("WriteFile(): %v", err)
	}
	if err := ioutil.WriteFile(partitions, b, 0o644); err != nil {
		t.Fatalf("WriteFile(): %v", err)
	}
	return image, partitions
}

// StaticLister lists a fixed set of disks.
type StaticLister []*kernelselect.Disk

// Disks implements kernelselect.DiskLister.
func (l StaticLister) Disks(_ context.Context, flags kernelselect.DiskFlags) ([]*kernelselect.Disk, error) {
	var out []*kernelselect.Disk
	for _, d := range l {
		if d.Flags&flags != 0 {
			out = append(out, d)
		}
	}
	return out, nil
}

// EjectingLister lists Inserted, dropping the removable ones once Clock has
// passed EjectAt.
type EjectingLister struct {
	Inserted StaticLister
	Clock    *FakeClock
	EjectAt  time.Duration
}

// Disks implements kernelselect.DiskLister.
func (l *EjectingLister) Disks(ctx context.Context, flags kernelselect.DiskFlags) ([]*kernelselect.Disk, error) {
	if l.Clock.Elapsed() >= l.EjectAt {
		flags &^= kernelselect.DiskRemovable
	}
	return l.Inserted.Disks(ctx, flags)
}
