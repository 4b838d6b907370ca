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

import "unsafe"

// Engine is the set of primitives an allocation engine exports. All methods
// must be safe for concurrent use and report failure by returning nil; the
// Adapter trusts them as given.
type Engine interface {
	// Malloc returns at least size bytes, aligned to the largest power of
	// two dividing size, capped at MaxAlign.
	Malloc(size uintptr) unsafe.Pointer

	// Calloc returns count*size zeroed bytes with the alignment Malloc
	// would give for the total.
	Calloc(count, size uintptr) unsafe.Pointer

	// Memalign returns at least size bytes at an address that is a multiple
	// of alignment. The contents are unspecified.
	Memalign(alignment, size uintptr) unsafe.Pointer

	// Realloc resizes the block at ptr to newSize bytes, possibly moving it,
	// and preserves the contents up to the smaller of the two sizes.
	//
	// The Adapter only calls Realloc for blocks that came from Malloc or
	// Calloc and relies on the engine keeping the block in the same
	// alignment class it would give a fresh Malloc(newSize). This is not
	// verified after the call.
	Realloc(ptr unsafe.Pointer, newSize uintptr) unsafe.Pointer

	// Free releases the block at ptr.
	Free(ptr unsafe.Pointer)

	// SizedFree releases the block at ptr, which the caller allocated with
	// size bytes.
	SizedFree(ptr unsafe.Pointer, size uintptr)

	// UsableSize returns the capacity of the block at ptr, which is at least
	// the size it was requested with.
	UsableSize(ptr unsafe.Pointer) uintptr
}

// Allocator is the allocation contract the Adapter provides.
type Allocator interface {
	Alloc(layout Layout) unsafe.Pointer
	AllocZeroed(layout Layout) unsafe.Pointer
	Realloc(ptr unsafe.Pointer, layout Layout, newSize uintptr) unsafe.Pointer
	Dealloc(ptr unsafe.Pointer, layout Layout)
	UsableSize(ptr unsafe.Pointer) uintptr
}
