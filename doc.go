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

/*
Package mesh adapts a set of low level allocation primitives to a general
purpose allocator contract.

An allocation request is described by a Layout, a size and a power of two
alignment. The Adapter decides, per request, whether the engine's plain entry
points (malloc, calloc, realloc) can satisfy the alignment or whether the
explicitly aligned entry point must be used, and fills in what the aligned
primitive does not promise: zero initialisation and resizing.

# Engines

The primitives are supplied by an Engine. The following engines are provided:

	engine/meshsys  libmesh, built with the mesh tag
	engine/libc     the C library allocator, requires cgo
	engine/gomem    a pure Go allocator on top of modernc.org/memory
	engine/pagemap  one anonymous mapping per allocation
	engine/checked  wraps another engine and tracks live allocations

# Preconditions

The Adapter does not validate its inputs. A zero size, a nil pointer passed to
Dealloc or Realloc, or a layout that does not match the allocation is a bug in
the caller. Build with the assert tag to turn these into panics while testing.
*/
package mesh
