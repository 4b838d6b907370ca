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

package mesh

import (
	"unsafe"

	"github.com/OrionNebula/mesh-go/internal/debug"
)

// Adapter implements Allocator on top of an Engine.
//
// It holds nothing but the engine. For engines with no state of their own the
// Adapter is a zero-size value and can be copied and shared freely; it is safe
// for concurrent use whenever the engine is.
type Adapter[E Engine] struct {
	engine E
}

// New returns an Adapter forwarding to engine.
func New[E Engine](engine E) Adapter[E] {
	return Adapter[E]{engine: engine}
}

// Engine returns the engine the adapter forwards to.
func (a Adapter[E]) Engine() E { return a.engine }

// Alloc returns a block of layout.Size() bytes aligned to layout.Align(), or
// nil if the engine is out of memory. The contents are unspecified.
func (a Adapter[E]) Alloc(layout Layout) unsafe.Pointer {
	debug.Assert(layout.size != 0, "mesh: zero-size allocation")

	if PlainEligible(layout) {
		return a.engine.Malloc(layout.size)
	}
	return a.engine.Memalign(layout.align, layout.size)
}

// AllocZeroed is like Alloc but the returned block is zeroed.
func (a Adapter[E]) AllocZeroed(layout Layout) unsafe.Pointer {
	debug.Assert(layout.size != 0, "mesh: zero-size allocation")

	if PlainEligible(layout) {
		return a.engine.Calloc(1, layout.size)
	}

	// Memalign makes no promise about the contents.
	ptr := a.engine.Memalign(layout.align, layout.size)
	if ptr != nil {
		clear(bytesAt(ptr, layout.size))
	}
	return ptr
}

// Realloc resizes the block at ptr, allocated with layout, to newSize bytes
// and returns its possibly new address. The first min(layout.Size(), newSize)
// bytes are preserved.
//
// On failure Realloc returns nil and the original block is left untouched and
// still owned by the caller.
func (a Adapter[E]) Realloc(ptr unsafe.Pointer, layout Layout, newSize uintptr) unsafe.Pointer {
	debug.Assert(ptr != nil, "mesh: realloc of nil pointer")
	debug.Assert(layout.size != 0, "mesh: realloc of zero-size layout")
	debug.Assert(newSize != 0, "mesh: realloc to zero size")

	if PlainEligible(layout) {
		return a.engine.Realloc(ptr, newSize)
	}

	// The engine's realloc knows nothing of the alignment, move by hand.
	newPtr := a.Alloc(layout.WithSize(newSize))
	if newPtr != nil {
		n := min(layout.size, newSize)
		copy(bytesAt(newPtr, n), bytesAt(ptr, n))
		a.Dealloc(ptr, layout)
	}
	return newPtr
}

// Dealloc releases the block at ptr, which was allocated with layout.
func (a Adapter[E]) Dealloc(ptr unsafe.Pointer, layout Layout) {
	debug.Assert(ptr != nil, "mesh: dealloc of nil pointer")
	debug.Assert(layout.size != 0, "mesh: dealloc of zero-size layout")

	a.engine.SizedFree(ptr, layout.size)
}

// UsableSize returns the capacity of the block at ptr, which may exceed the
// size it was allocated with.
func (a Adapter[E]) UsableSize(ptr unsafe.Pointer) uintptr {
	return a.engine.UsableSize(ptr)
}

var (
	_ Allocator = Adapter[Engine]{}
)
