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
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/api"
	"github.com/Telecominfraproject/OpenCellular-sub010/verified_boot/internal/kernelselect"
	"github.com/google/go-cmp/cmp"
)

func writeTable(t *testing.T, parts ...api.Partition) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parts.json")
	b, err := json.Marshal(api.PartitionMap{Partitions: parts})
	if err != nil {
		t.Fatalf("Marshal(): %v", err)
	}
	if err := ioutil.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("WriteFile(): %v", err)
	}
	return path
}

func scan(t *testing.T, tbl *Table) []int {
	t.Helper()
	var got []int
	for {
		e, ok, err := tbl.Next()
		if err != nil {
			t.Fatalf("Next(): %v", err)
		}
		if !ok {
			return got
		}
		got = append(got, e.Index)
	}
}

func TestTableOrder(t *testing.T) {
	for _, test := range []struct {
		desc  string
		parts []api.Partition
		want  []int
	}{
		{
			desc: "priority then index",
			parts: []api.Partition{
				{Index: 4, Priority: 1, Tries: 1},
				{Index: 2, Priority: 2, Successful: true},
				{Index: 6, Priority: 2, Tries: 3},
			},
			want: []int{2, 6, 4},
		}, {
			desc: "zero priority skipped",
			parts: []api.Partition{
				{Index: 2, Priority: 0, Successful: true},
				{Index: 4, Priority: 1, Successful: true},
			},
			want: []int{4},
		}, {
			desc: "out of tries skipped",
			parts: []api.Partition{
				{Index: 2, Priority: 3, Tries: 0},
				{Index: 4, Priority: 1, Tries: 0, Successful: true},
			},
			want: []int{4},
		}, {
			desc: "empty",
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			tbl, err := LoadTable(writeTable(t, test.parts...))
			if err != nil {
				t.Fatalf("LoadTable(): %v", err)
			}
			if diff := cmp.Diff(scan(t, tbl), test.want); diff != "" {
				t.Errorf("scan diff (-got +want):\n%s", diff)
			}
		})
	}
}

func TestTableMarks(t *testing.T) {
	path := writeTable(t,
		api.Partition{Index: 2, StartLBA: 34, SizeLBA: 8, Priority: 2, Tries: 3},
		api.Partition{Index: 4, StartLBA: 42, SizeLBA: 8, Priority: 1, Successful: true},
	)
	tbl, err := LoadTable(path)
	if err != nil {
		t.Fatalf("LoadTable(): %v", err)
	}
	if err := tbl.Mark(kernelselect.MarkTried); err == nil {
		t.Error("Mark() before Next(): want error")
	}
	e, _, _ := tbl.Next()
	if got, want := e, (kernelselect.Entry{Index: 2, StartLBA: 34, SizeLBA: 8}); got != want {
		t.Errorf("Next(): got %+v, want %+v", got, want)
	}
	if err := tbl.Mark(kernelselect.MarkBad); err != nil {
		t.Fatalf("Mark(bad): %v", err)
	}
	if _, _, err := tbl.Next(); err != nil {
		t.Fatalf("Next(): %v", err)
	}
	if err := tbl.Mark(kernelselect.MarkTried); err != nil {
		t.Fatalf("Mark(tried): %v", err)
	}
	if err := tbl.Commit(); err != nil {
		t.Fatalf("Commit(): %v", err)
	}

	reloaded, err := LoadTable(path)
	if err != nil {
		t.Fatalf("LoadTable(): %v", err)
	}
	want := []api.Partition{
		{Index: 2, StartLBA: 34, SizeLBA: 8},
		{Index: 4, StartLBA: 42, SizeLBA: 8, Priority: 1, Successful: true},
	}
	if diff := cmp.Diff(reloaded.Partitions(), want); diff != "" {
		t.Errorf("committed table diff (-got +want):\n%s", diff)
	}
}

func TestTableTriedUsesTry(t *testing.T) {
	path := writeTable(t, api.Partition{Index: 2, Priority: 1, Tries: 1})
	tbl, err := LoadTable(path)
	if err != nil {
		t.Fatalf("LoadTable(): %v", err)
	}
	tbl.Next()
	if err := tbl.Mark(kernelselect.MarkTried); err != nil {
		t.Fatalf("Mark(): %v", err)
	}
	if err := tbl.Commit(); err != nil {
		t.Fatalf("Commit(): %v", err)
	}
	reloaded, err := LoadTable(path)
	if err != nil {
		t.Fatalf("LoadTable(): %v", err)
	}
	if got := scan(t, reloaded); len(got) != 0 {
		t.Errorf("after last try: got %v, want no entries", got)
	}
}
