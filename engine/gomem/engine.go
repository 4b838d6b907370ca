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

// Package gomem implements a mesh.Engine in pure Go on top of
// modernc.org/memory. Memory comes from the operating system in mmapped pages
// and is never scanned by the Go garbage collector.
package gomem

import (
	"sync"
	"unsafe"

	"github.com/JohnCGriffin/overflow"
	"modernc.org/memory"

	"github.com/OrionNebula/mesh-go"
	"github.com/OrionNebula/mesh-go/internal/debug"
)

// baseAlign is the alignment modernc.org/memory gives every block.
const baseAlign = 2 * unsafe.Sizeof(uintptr(0))

// Engine serialises access to a memory.Allocator, which is not safe for
// concurrent use. The zero value is ready to use.
type Engine struct {
	mu    sync.Mutex
	alloc memory.Allocator

	// aligned maps addresses handed out by Memalign to the start of the
	// block they were carved from, for blocks where the two differ.
	aligned map[uintptr]unsafe.Pointer
}

// New returns an empty engine.
func New() *Engine { return &Engine{} }

// Default is a process wide engine.
var Default = New()

// Global is an adapter over Default.
var Global = mesh.New(Default)

func (e *Engine) Malloc(size uintptr) unsafe.Pointer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.malloc(size)
}

func (e *Engine) malloc(size uintptr) unsafe.Pointer {
	if size > uintptr(maxInt) {
		return nil
	}
	p, err := e.alloc.UnsafeMalloc(int(size))
	if err != nil {
		debug.Log(func() string { return "gomem: malloc failed: " + err.Error() })
		return nil
	}
	return p
}

func (e *Engine) Calloc(count, size uintptr) unsafe.Pointer {
	if count > uintptr(maxInt) || size > uintptr(maxInt) {
		return nil
	}
	n, ok := overflow.Mul(int(count), int(size))
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.alloc.UnsafeCalloc(n)
	if err != nil {
		debug.Log(func() string { return "gomem: calloc failed: " + err.Error() })
		return nil
	}
	return p
}

func (e *Engine) Memalign(alignment, size uintptr) unsafe.Pointer {
	if alignment <= baseAlign {
		return e.Malloc(size)
	}
	if size > uintptr(maxInt)-alignment {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	base := e.malloc(size + alignment - 1)
	if base == nil {
		return nil
	}
	addr := (uintptr(base) + alignment - 1) &^ (alignment - 1)
	if addr == uintptr(base) {
		return base
	}
	if e.aligned == nil {
		e.aligned = make(map[uintptr]unsafe.Pointer)
	}
	e.aligned[addr] = base
	return unsafe.Add(base, addr-uintptr(base))
}

func (e *Engine) Realloc(ptr unsafe.Pointer, newSize uintptr) unsafe.Pointer {
	if newSize > uintptr(maxInt) {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if ptr == nil {
		return e.malloc(newSize)
	}

	base, ok := e.aligned[uintptr(ptr)]
	if !ok {
		p, err := e.alloc.UnsafeRealloc(ptr, int(newSize))
		if err != nil {
			debug.Log(func() string { return "gomem: realloc failed: " + err.Error() })
			return nil
		}
		return p
	}

	// An over-allocated block can not be handed to UnsafeRealloc without
	// losing the offset, so move it.
	p := e.malloc(newSize)
	if p == nil {
		return nil
	}
	n := min(usable(ptr, base), newSize)
	copy(unsafe.Slice((*byte)(p), n), unsafe.Slice((*byte)(ptr), n))
	delete(e.aligned, uintptr(ptr))
	e.free(base)
	return p
}

func (e *Engine) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if base, ok := e.aligned[uintptr(ptr)]; ok {
		delete(e.aligned, uintptr(ptr))
		ptr = base
	}
	e.free(ptr)
}

func (e *Engine) free(ptr unsafe.Pointer) {
	if err := e.alloc.UnsafeFree(ptr); err != nil {
		debug.Log(func() string { return "gomem: free failed: " + err.Error() })
	}
}

// SizedFree ignores size, the block header already records it.
func (e *Engine) SizedFree(ptr unsafe.Pointer, _ uintptr) { e.Free(ptr) }

func (e *Engine) UsableSize(ptr unsafe.Pointer) uintptr {
	if ptr == nil {
		return 0
	}

	e.mu.Lock()
	base, ok := e.aligned[uintptr(ptr)]
	e.mu.Unlock()
	if !ok {
		base = ptr
	}
	return usable(ptr, base)
}

// Close returns all memory held by the engine to the operating system.
// Every block it handed out becomes invalid.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.aligned = nil
	return e.alloc.Close()
}

func usable(ptr, base unsafe.Pointer) uintptr {
	return uintptr(memory.UnsafeUsableSize(base)) - (uintptr(ptr) - uintptr(base))
}

const maxInt = int(^uint(0) >> 1)

var (
	_ mesh.Engine = (*Engine)(nil)
)
