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

//go:build cgo && (linux || darwin || freebsd)

// Package libc implements a mesh.Engine over the C library allocator.
package libc

/*
#include <stdlib.h>

#if defined(__APPLE__)
#include <malloc/malloc.h>
static size_t mesh_usable_size(void *p) { return malloc_size(p); }
#elif defined(__FreeBSD__)
#include <malloc_np.h>
static size_t mesh_usable_size(void *p) { return malloc_usable_size(p); }
#else
#include <malloc.h>
static size_t mesh_usable_size(void *p) { return malloc_usable_size(p); }
#endif

// C.malloc is rewritten by cgo to abort on failure, call it through a
// function of our own so a failed allocation comes back as NULL.
static void *mesh_malloc(size_t size) {
	return malloc(size);
}

// posix_memalign rejects alignments below sizeof(void *).
static void *mesh_memalign(size_t alignment, size_t size) {
	void *p = NULL;
	if (alignment < sizeof(void *)) {
		alignment = sizeof(void *);
	}
	if (posix_memalign(&p, alignment, size) != 0) {
		return NULL;
	}
	return p;
}
*/
import "C"

import (
	"unsafe"

	"github.com/OrionNebula/mesh-go"
)

// Engine forwards to malloc, calloc, posix_memalign, realloc and free.
type Engine struct{}

// Global is the adapter over the C library allocator.
var Global = mesh.New(Engine{})

func (Engine) Malloc(size uintptr) unsafe.Pointer {
	return C.mesh_malloc(C.size_t(size))
}

func (Engine) Calloc(count, size uintptr) unsafe.Pointer {
	return C.calloc(C.size_t(count), C.size_t(size))
}

func (Engine) Memalign(alignment, size uintptr) unsafe.Pointer {
	return C.mesh_memalign(C.size_t(alignment), C.size_t(size))
}

func (Engine) Realloc(ptr unsafe.Pointer, newSize uintptr) unsafe.Pointer {
	return C.realloc(ptr, C.size_t(newSize))
}

func (Engine) Free(ptr unsafe.Pointer) {
	C.free(ptr)
}

// SizedFree drops size, the C library has no sized free.
func (Engine) SizedFree(ptr unsafe.Pointer, _ uintptr) {
	C.free(ptr)
}

func (Engine) UsableSize(ptr unsafe.Pointer) uintptr {
	return uintptr(C.mesh_usable_size(ptr))
}

var (
	_ mesh.Engine = Engine{}
)
