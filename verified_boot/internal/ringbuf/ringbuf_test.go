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

package ringbuf

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBuffer(t *testing.T) {
	for _, test := range []struct {
		desc      string
		capacity  int
		push      []int
		wantItems []int
		wantLast  int
	}{
		{
			desc:      "partially filled",
			capacity:  4,
			push:      []int{1, 2},
			wantItems: []int{1, 2},
			wantLast:  2,
		}, {
			desc:      "exactly full",
			capacity:  3,
			push:      []int{1, 2, 3},
			wantItems: []int{1, 2, 3},
			wantLast:  3,
		}, {
			desc:      "wraps once",
			capacity:  3,
			push:      []int{1, 2, 3, 4},
			wantItems: []int{2, 3, 4},
			wantLast:  4,
		}, {
			desc:      "wraps many times",
			capacity:  4,
			push:      []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
			wantItems: []int{8, 9, 10, 11},
			wantLast:  11,
		}, {
			desc:      "capacity one",
			capacity:  1,
			push:      []int{5, 6, 7},
			wantItems: []int{7},
			wantLast:  7,
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			b := New[int](test.capacity)
			for _, v := range test.push {
				b.Push(v)
			}
			if diff := cmp.Diff(b.Items(), test.wantItems); diff != "" {
				t.Errorf("Items() diff (-got +want):\n%s", diff)
			}
			if got := *b.Last(); got != test.wantLast {
				t.Errorf("Last(): got %d, want %d", got, test.wantLast)
			}
			if got, want := b.Total(), uint64(len(test.push)); got != want {
				t.Errorf("Total(): got %d, want %d", got, want)
			}
			if got, want := b.Len(), len(test.wantItems); got != want {
				t.Errorf("Len(): got %d, want %d", got, want)
			}
		})
	}
}

func TestPushInPlace(t *testing.T) {
	type rec struct{ n int }
	b := New[rec](2)
	b.Push(rec{}).n = 1
	b.Push(rec{}).n = 2
	b.Push(rec{}).n = 3
	if diff := cmp.Diff(b.Items(), []rec{{2}, {3}}, cmp.AllowUnexported(rec{})); diff != "" {
		t.Errorf("Items() diff (-got +want):\n%s", diff)
	}
}

func TestEmpty(t *testing.T) {
	b := New[string](2)
	if b.Last() != nil {
		t.Error("Last() on empty buffer: want nil")
	}
	if got := b.Items(); len(got) != 0 {
		t.Errorf("Items() on empty buffer: got %v", got)
	}
}
