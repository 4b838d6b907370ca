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

//go:build cgo && mesh

// Package meshsys binds the libmesh allocator.
//
// Building it requires libmesh to be installed where the linker can find it,
// and the mesh build tag:
//
//	go build -tags mesh ./...
package meshsys

/*
#cgo LDFLAGS: -lmesh
#include <stddef.h>

void *mesh_malloc(size_t sz);
void mesh_free(void *ptr);
void mesh_sized_free(void *ptr, size_t sz);
void *mesh_realloc(void *oldPtr, size_t newSize);
size_t mesh_malloc_usable_size(void *ptr);
void *mesh_memalign(size_t alignment, size_t size);
void *mesh_calloc(size_t count, size_t size);
*/
import "C"

import (
	"unsafe"

	"github.com/OrionNebula/mesh-go"
)

// Engine forwards every primitive to libmesh. It has no state; libmesh
// manages a single process wide heap.
type Engine struct{}

// Global is the process wide mesh allocator.
var Global = mesh.New(Engine{})

func (Engine) Malloc(size uintptr) unsafe.Pointer {
	return C.mesh_malloc(C.size_t(size))
}

func (Engine) Calloc(count, size uintptr) unsafe.Pointer {
	return C.mesh_calloc(C.size_t(count), C.size_t(size))
}

func (Engine) Memalign(alignment, size uintptr) unsafe.Pointer {
	return C.mesh_memalign(C.size_t(alignment), C.size_t(size))
}

func (Engine) Realloc(ptr unsafe.Pointer, newSize uintptr) unsafe.Pointer {
	return C.mesh_realloc(ptr, C.size_t(newSize))
}

func (Engine) Free(ptr unsafe.Pointer) {
	C.mesh_free(ptr)
}

func (Engine) SizedFree(ptr unsafe.Pointer, size uintptr) {
	C.mesh_sized_free(ptr, C.size_t(size))
}

func (Engine) UsableSize(ptr unsafe.Pointer) uintptr {
	return uintptr(C.mesh_malloc_usable_size(ptr))
}

var (
	_ mesh.Engine = Engine{}
)
