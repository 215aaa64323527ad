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

// Package ringbuf provides a fixed-capacity circular buffer which silently
// overwrites its oldest entry when full.
package ringbuf

// Buffer holds up to a fixed number of items.
// The zero value is not usable; construct with New.
type Buffer[T any] struct {
	items []T
	// next is the slot the next Push will write to.
	next int
	// total counts every Push ever made, including overwritten ones.
	total uint64
}

// New returns an empty buffer holding at most capacity items.
// It panics if capacity is not positive.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		panic("ringbuf: capacity must be positive")
	}
	return &Buffer[T]{items: make([]T, 0, capacity)}
}

// Cap returns the maximum number of items held.
func (b *Buffer[T]) Cap() int { return cap(b.items) }

// Len returns the number of items currently held.
func (b *Buffer[T]) Len() int { return len(b.items) }

// Total returns the number of items ever pushed.
func (b *Buffer[T]) Total() uint64 { return b.total }

// Push appends v, overwriting the oldest item if the buffer is full.
// It returns a pointer to the stored copy so callers can fill it in place.
func (b *Buffer[T]) Push(v T) *T {
	b.total++
	if len(b.items) < cap(b.items) {
		b.items = append(b.items, v)
		return &b.items[len(b.items)-1]
	}
	i := b.next
	b.items[i] = v
	b.next = (b.next + 1) % cap(b.items)
	return &b.items[i]
}

// Last returns a pointer to the most recently pushed item, or nil if empty.
func (b *Buffer[T]) Last() *T {
	if len(b.items) == 0 {
		return nil
	}
	if len(b.items) < cap(b.items) {
		return &b.items[len(b.items)-1]
	}
	return &b.items[(b.next+cap(b.items)-1)%cap(b.items)]
}

// Items returns a copy of the held items, oldest first.
func (b *Buffer[T]) Items() []T {
	out := make([]T, 0, len(b.items))
	if len(b.items) < cap(b.items) {
		return append(out, b.items...)
	}
	out = append(out, b.items[b.next:]...)
	return append(out, b.items[:b.next]...)
}
