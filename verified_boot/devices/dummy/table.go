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

package dummy

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"sort"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/api"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/kernelselect"
	"github.com/golang/glog"
)

// Table is a kernel partition table kept in a JSON partition map. Entries
// come out highest priority first, ties in partition order. An entry with
// zero priority, or with no tries left which has never booted, is skipped.
type Table struct {
	path  string
	parts []api.Partition

	returned map[int]bool
	cur      int
	dirty    bool
}

// LoadTable reads the partition map at path.
func LoadTable(path string) (*Table, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read partition map %q: %w", path, err)
	}
	var m api.PartitionMap
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to decode partition map %q: %w", path, err)
	}
	sort.SliceStable(m.Partitions, func(i, j int) bool { return m.Partitions[i].Index < m.Partitions[j].Index })
	return &Table{path: path, parts: m.Partitions, returned: map[int]bool{}, cur: -1}, nil
}

// Partitions returns the current state of every entry.
func (t *Table) Partitions() []api.Partition {
	return append([]api.Partition(nil), t.parts...)
}

func bootable(p api.Partition) bool {
	return p.Priority > 0 && (p.Tries > 0 || p.Successful)
}

// Next implements kernelselect.PartitionTable.
func (t *Table) Next() (kernelselect.Entry, bool, error) {
	best := -1
	for i, p := range t.parts {
		if t.returned[i] || !bootable(p) {
			continue
		}
		if best < 0 || p.Priority > t.parts[best].Priority {
			best = i
		}
	}
	if best < 0 {
		return kernelselect.Entry{}, false, nil
	}
	t.returned[best] = true
	t.cur = best
	p := t.parts[best]
	return kernelselect.Entry{Index: p.Index, StartLBA: p.StartLBA, SizeLBA: p.SizeLBA}, true, nil
}

// Mark implements kernelselect.PartitionTable. Trying an entry which has not
// yet booted successfully uses up one of its tries; a bad entry loses its
// priority and tries.
func (t *Table) Mark(m kernelselect.Mark) error {
	if t.cur < 0 {
		return fmt.Errorf("mark %v before any entry", m)
	}
	p := &t.parts[t.cur]
	switch m {
	case kernelselect.MarkTried:
		if !p.Successful && p.Tries > 0 {
			p.Tries--
			t.dirty = true
		}
	case kernelselect.MarkBad:
		p.Priority, p.Tries = 0, 0
		t.dirty = true
	default:
		return fmt.Errorf("unknown mark %v", m)
	}
	glog.V(1).Infof("Partition %d marked %v: priority %d, tries %d", p.Index, m, p.Priority, p.Tries)
	return nil
}

// Commit implements kernelselect.PartitionTable.
func (t *Table) Commit() error {
	if !t.dirty {
		return nil
	}
	b, err := json.MarshalIndent(api.PartitionMap{Partitions: t.parts}, "", "  ")
	if err != nil {
		return err
	}
	if err := ioutil.WriteFile(t.path, b, 0o644); err != nil {
		return fmt.Errorf("failed to write partition map %q: %w", t.path, err)
	}
	t.dirty = false
	return nil
}
