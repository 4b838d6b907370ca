// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mallocator provides an arrow memory.Allocator backed by a
// mesh.Allocator, so arrow buffers live outside the Go heap.
package mallocator

import (
	"sync/atomic"
	"unsafe"

	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/OrionNebula/mesh-go"
)

// alignment matches the 64 byte alignment arrow expects of its buffers.
const alignment = 64

// Mallocator hands out zero-initialised, 64 byte aligned buffers. Buffers
// must be returned with Free; the garbage collector does not reclaim them.
//
// Mallocator is safe to use from multiple goroutines when the underlying
// allocator is.
type Mallocator struct {
	mem            mesh.Allocator
	allocatedBytes uint64
}

// NewMallocator returns a Mallocator over the default engine for this build:
// libmesh with the mesh tag, the C library under cgo, pure Go otherwise.
func NewMallocator() *Mallocator { return &Mallocator{mem: defaultAllocator} }

// NewMallocatorWith returns a Mallocator over mem.
func NewMallocatorWith(mem mesh.Allocator) *Mallocator {
	return &Mallocator{mem: mem}
}

func layoutOf(size int) mesh.Layout {
	return mesh.LayoutUnchecked(uintptr(size), alignment)
}

func getPtr(b []byte) unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(b))
}

func (alloc *Mallocator) Allocate(size int) []byte {
	if size < 0 {
		panic("mallocator: negative size")
	}
	if size == 0 {
		return []byte{}
	}

	// Go code may store pointers in the buffer, so it must not start out
	// holding garbage that looks like one.
	ptr := alloc.mem.AllocZeroed(layoutOf(size))
	if ptr == nil {
		panic("mallocator: out of memory")
	}
	atomic.AddUint64(&alloc.allocatedBytes, uint64(size))
	return unsafe.Slice((*byte)(ptr), size)
}

// Free releases b. Only the capacity matters, b may have been resliced to a
// shorter length.
func (alloc *Mallocator) Free(b []byte) {
	sz := cap(b)
	if sz == 0 {
		return
	}
	alloc.mem.Dealloc(getPtr(b), layoutOf(sz))
	atomic.AddUint64(&alloc.allocatedBytes, ^uint64(sz-1))
}

func (alloc *Mallocator) Reallocate(size int, b []byte) []byte {
	if size < 0 {
		panic("mallocator: negative size")
	}
	oldSize := cap(b)
	switch {
	case oldSize == 0:
		return alloc.Allocate(size)
	case size == 0:
		alloc.Free(b)
		return []byte{}
	}

	ptr := alloc.mem.Realloc(getPtr(b), layoutOf(oldSize), uintptr(size))
	if ptr == nil {
		panic("mallocator: out of memory")
	}
	if size > oldSize {
		clear(unsafe.Slice((*byte)(unsafe.Add(ptr, oldSize)), size-oldSize))
	}
	atomic.AddUint64(&alloc.allocatedBytes, uint64(size-oldSize))
	return unsafe.Slice((*byte)(ptr), size)
}

// AllocatedBytes returns the number of bytes handed out and not yet freed.
func (alloc *Mallocator) AllocatedBytes() int64 {
	return int64(atomic.LoadUint64(&alloc.allocatedBytes))
}

// AssertSize fails t if AllocatedBytes is not sz.
func (alloc *Mallocator) AssertSize(t memory.TestingT, sz int) {
	cur := alloc.AllocatedBytes()
	if int64(sz) != cur {
		t.Helper()
		t.Errorf("invalid memory size exp=%d, got=%d", sz, cur)
	}
}

var (
	_ memory.Allocator = (*Mallocator)(nil)
)
