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

//go:build unix

// Package pagemap implements a mesh.Engine that backs every allocation with
// its own anonymous memory mapping.
//
// Each block costs at least one page, which makes the engine a poor general
// purpose allocator but a useful one for large or very strictly aligned
// buffers, and for tests: a freed block is unmapped, so a use after free
// faults instead of silently reading stale memory.
package pagemap

import (
	"unsafe"

	"github.com/JohnCGriffin/overflow"
	"golang.org/x/sys/unix"

	"github.com/OrionNebula/mesh-go"
	"github.com/OrionNebula/mesh-go/internal/debug"
)

// header sits immediately before every address the engine returns.
type header struct {
	base unsafe.Pointer
	size uintptr
}

const (
	headerSize = unsafe.Sizeof(header{})
	minAlign   = 16
)

// Engine has no state; all bookkeeping lives in the mappings.
type Engine struct{}

// Global is an adapter over the page mapping engine.
var Global = mesh.New(Engine{})

var pageSize = uintptr(unix.Getpagesize())

func (Engine) Malloc(size uintptr) unsafe.Pointer {
	return mapAligned(minAlign, size)
}

// Calloc needs no clearing, fresh anonymous mappings are zero filled.
func (Engine) Calloc(count, size uintptr) unsafe.Pointer {
	if count > uintptr(maxInt) || size > uintptr(maxInt) {
		return nil
	}
	n, ok := overflow.Mul(int(count), int(size))
	if !ok {
		return nil
	}
	return mapAligned(minAlign, uintptr(n))
}

func (Engine) Memalign(alignment, size uintptr) unsafe.Pointer {
	return mapAligned(max(alignment, minAlign), size)
}

func (e Engine) Realloc(ptr unsafe.Pointer, newSize uintptr) unsafe.Pointer {
	if ptr == nil {
		return e.Malloc(newSize)
	}
	old := e.UsableSize(ptr)
	if newSize <= old {
		return ptr
	}

	p := mapAligned(minAlign, newSize)
	if p == nil {
		return nil
	}
	copy(unsafe.Slice((*byte)(p), old), unsafe.Slice((*byte)(ptr), old))
	e.Free(ptr)
	return p
}

func (Engine) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	h := headerOf(ptr)
	if err := unix.Munmap(unsafe.Slice((*byte)(h.base), h.size)); err != nil {
		debug.Log(func() string { return "pagemap: munmap failed: " + err.Error() })
	}
}

// SizedFree ignores size, the header records the mapping length.
func (e Engine) SizedFree(ptr unsafe.Pointer, _ uintptr) { e.Free(ptr) }

func (Engine) UsableSize(ptr unsafe.Pointer) uintptr {
	if ptr == nil {
		return 0
	}
	h := headerOf(ptr)
	return uintptr(h.base) + h.size - uintptr(ptr)
}

func headerOf(ptr unsafe.Pointer) *header {
	return (*header)(unsafe.Add(ptr, -int(headerSize)))
}

// mapAligned maps enough pages to hold a header and size bytes at an address
// that is a multiple of alignment. Mappings are page aligned, so the slack
// needed is at most alignment bytes for alignments above the page size and
// none otherwise.
func mapAligned(alignment, size uintptr) unsafe.Pointer {
	slack := headerSize
	if alignment > pageSize {
		slack += alignment
	} else {
		slack = roundUp(headerSize, alignment)
	}
	if size > ^uintptr(0)-slack-pageSize {
		return nil
	}
	length := roundUp(slack+size, pageSize)
	if length > uintptr(maxInt) {
		return nil
	}

	b, err := unix.Mmap(-1, 0, int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		debug.Log(func() string { return "pagemap: mmap failed: " + err.Error() })
		return nil
	}

	base := unsafe.Pointer(unsafe.SliceData(b))
	off := roundUp(uintptr(base)+headerSize, alignment) - uintptr(base)
	ptr := unsafe.Add(base, off)
	*headerOf(ptr) = header{base: base, size: length}
	return ptr
}

func roundUp(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}

const maxInt = int(^uint(0) >> 1)

var (
	_ mesh.Engine = Engine{}
)
