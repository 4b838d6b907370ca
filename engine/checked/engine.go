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

// Package checked provides an engine decorator that keeps track of every live
// allocation, for finding leaks and mismatched frees in tests.
package checked

import (
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/OrionNebula/mesh-go"
)

// Engine wraps another mesh.Engine. Sizes are accounted as requested, not as
// the usable size the wrapped engine reports.
type Engine struct {
	mem mesh.Engine
	sz  int64

	allocs     sync.Map
	mismatches sync.Map
	unknown    int64
}

// NewEngine wraps mem with allocation tracking.
func NewEngine(mem mesh.Engine) *Engine {
	return &Engine{mem: mem}
}

// CurrentAlloc returns the number of bytes requested and not yet freed.
func (e *Engine) CurrentAlloc() int { return int(atomic.LoadInt64(&e.sz)) }

// Live returns the number of outstanding allocations.
func (e *Engine) Live() int {
	n := 0
	e.allocs.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

func (e *Engine) Malloc(size uintptr) unsafe.Pointer {
	return e.track(e.mem.Malloc(size), size, allocFrames)
}

func (e *Engine) Calloc(count, size uintptr) unsafe.Pointer {
	return e.track(e.mem.Calloc(count, size), count*size, allocFrames)
}

func (e *Engine) Memalign(alignment, size uintptr) unsafe.Pointer {
	return e.track(e.mem.Memalign(alignment, size), size, allocFrames)
}

func (e *Engine) Realloc(ptr unsafe.Pointer, newSize uintptr) unsafe.Pointer {
	out := e.mem.Realloc(ptr, newSize)
	if out == nil {
		return nil
	}
	if ptr != nil {
		e.untrack(ptr)
	}
	return e.track(out, newSize, reallocFrames)
}

func (e *Engine) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	defer e.mem.Free(ptr)
	e.untrack(ptr)
}

// SizedFree records a mismatch when size differs from the size the block was
// allocated with.
func (e *Engine) SizedFree(ptr unsafe.Pointer, size uintptr) {
	defer e.mem.SizedFree(ptr, size)

	info := e.untrack(ptr)
	if info != nil && uintptr(info.sz) != size {
		e.mismatches.Store(uintptr(ptr), &mismatch{dalloc: *info, freed: int(size)})
	}
}

func (e *Engine) UsableSize(ptr unsafe.Pointer) uintptr {
	return e.mem.UsableSize(ptr)
}

func (e *Engine) track(ptr unsafe.Pointer, size uintptr, frames int) unsafe.Pointer {
	if ptr == nil {
		return nil
	}
	atomic.AddInt64(&e.sz, int64(size))
	info := &dalloc{sz: int(size)}
	if pc, _, l, ok := runtime.Caller(frames); ok {
		info.pc, info.line = pc, l
	}
	e.allocs.Store(uintptr(ptr), info)
	return ptr
}

func (e *Engine) untrack(ptr unsafe.Pointer) *dalloc {
	v, ok := e.allocs.LoadAndDelete(uintptr(ptr))
	if !ok {
		atomic.AddInt64(&e.unknown, 1)
		return nil
	}
	info := v.(*dalloc)
	atomic.AddInt64(&e.sz, int64(-info.sz))
	return info
}

// Allocations made through a mesh.Adapter pass through the adapter method
// before reaching the engine, so the caller we want is three frames above
// track. Realloc falls back to Malloc or Memalign for aligned blocks, which
// adds frames; the defaults cover the common path.
const (
	defAllocFrames   = 3
	defReallocFrames = 3
)

// Use the environment variables MESH_CHECKED_ALLOC_FRAMES and
// MESH_CHECKED_REALLOC_FRAMES to control how many frames up the engine looks
// when recording the caller of an allocation.
var allocFrames, reallocFrames int = defAllocFrames, defReallocFrames

func init() {
	if val, ok := os.LookupEnv("MESH_CHECKED_ALLOC_FRAMES"); ok {
		if f, err := strconv.Atoi(val); err == nil {
			allocFrames = f
		}
	}

	if val, ok := os.LookupEnv("MESH_CHECKED_REALLOC_FRAMES"); ok {
		if f, err := strconv.Atoi(val); err == nil {
			reallocFrames = f
		}
	}
}

type dalloc struct {
	pc   uintptr
	line int
	sz   int
}

func (d *dalloc) caller() string {
	if f := runtime.FuncForPC(d.pc); f != nil {
		return f.Name()
	}
	return "unknown"
}

type mismatch struct {
	dalloc
	freed int
}

// TestingT is the subset of testing.TB used to report failures.
type TestingT interface {
	Errorf(format string, args ...interface{})
	Helper()
}

// AssertSize reports every outstanding allocation as a leak, every sized free
// whose size did not match the allocation, every free of an address the
// engine never handed out, and fails if the outstanding byte count is not sz.
func (e *Engine) AssertSize(t TestingT, sz int) {
	t.Helper()
	e.allocs.Range(func(_, value interface{}) bool {
		info := value.(*dalloc)
		t.Errorf("LEAK of %d bytes FROM %s line %d\n", info.sz, info.caller(), info.line)
		return true
	})

	e.mismatches.Range(func(_, value interface{}) bool {
		m := value.(*mismatch)
		t.Errorf("SIZE MISMATCH: %d bytes allocated FROM %s line %d, freed as %d\n", m.sz, m.caller(), m.line, m.freed)
		return true
	})

	if n := atomic.LoadInt64(&e.unknown); n != 0 {
		t.Errorf("%d frees of unknown pointers", n)
	}

	if got := int(atomic.LoadInt64(&e.sz)); got != sz {
		t.Errorf("invalid memory size exp=%d, got=%d", sz, got)
	}
}

// Scope remembers the outstanding byte count at the time it was created.
type Scope struct {
	mem *Engine
	sz  int
}

// NewScope records the bytes currently outstanding in mem.
func NewScope(mem *Engine) *Scope {
	return &Scope{mem: mem, sz: mem.CurrentAlloc()}
}

// CheckSize fails if the outstanding byte count changed since the scope was
// created.
func (c *Scope) CheckSize(t TestingT) {
	if sz := c.mem.CurrentAlloc(); c.sz != sz {
		t.Helper()
		t.Errorf("invalid memory size exp=%d, got=%d", c.sz, sz)
	}
}

var (
	_ mesh.Engine = (*Engine)(nil)
)
