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

package mallocator_test

import (
	"fmt"
	"testing"
	"unsafe"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OrionNebula/mesh-go"
	"github.com/OrionNebula/mesh-go/engine/checked"
	"github.com/OrionNebula/mesh-go/engine/gomem"
	"github.com/OrionNebula/mesh-go/mallocator"
)

func assertZeroed(t *testing.T, buf []byte) {
	t.Helper()
	for idx, c := range buf {
		if !assert.Equal(t, uint8(0), c, fmt.Sprintf("Buf not zero-initialized at %d", idx)) {
			return
		}
	}
}

func TestMallocatorAllocate(t *testing.T) {
	sizes := []int{0, 1, 4, 33, 65, 4095, 4096, 8193}
	for _, size := range sizes {
		t.Run(fmt.Sprint(size), func(t *testing.T) {
			a := mallocator.NewMallocator()
			buf := a.Allocate(size)
			defer a.Free(buf)

			assert.Equal(t, size, len(buf))
			assert.LessOrEqual(t, size, cap(buf))
			if size > 0 {
				assert.Zero(t, uintptr(unsafe.Pointer(&buf[0]))%64)
			}
			assertZeroed(t, buf)
		})
	}
}

func TestMallocatorReallocate(t *testing.T) {
	sizes := []struct {
		before, after int
	}{
		{0, 1},
		{1, 0},
		{1, 2},
		{1, 33},
		{4, 4},
		{32, 16},
		{32, 1},
		{100, 5000},
	}
	for _, test := range sizes {
		t.Run(fmt.Sprintf("%dTo%d", test.before, test.after), func(t *testing.T) {
			a := mallocator.NewMallocator()
			buf := a.Allocate(test.before)

			assert.Equal(t, test.before, len(buf))
			assert.LessOrEqual(t, test.before, cap(buf))
			assertZeroed(t, buf)

			buf = a.Reallocate(test.after, buf)
			defer a.Free(buf)
			assert.Equal(t, test.after, len(buf))
			assert.LessOrEqual(t, test.after, cap(buf))
			assertZeroed(t, buf)
			a.AssertSize(t, test.after)
		})
	}
}

func TestMallocatorReallocatePreservesContents(t *testing.T) {
	a := mallocator.NewMallocator()
	buf := a.Allocate(100)
	for i := range buf {
		buf[i] = byte(i)
	}

	buf = a.Reallocate(300, buf)
	defer a.Free(buf)
	for i := 0; i < 100; i++ {
		require.Equal(t, byte(i), buf[i])
	}
	assertZeroed(t, buf[100:])
}

func TestMallocatorAssertSize(t *testing.T) {
	a := mallocator.NewMallocator()
	assert.Equal(t, int64(0), a.AllocatedBytes())

	buf1 := a.Allocate(64)
	a.AssertSize(t, 64)

	buf2 := a.Allocate(128)
	a.AssertSize(t, 192)
	assert.Equal(t, int64(192), a.AllocatedBytes())

	a.Free(buf1)
	a.AssertSize(t, 128)
	assert.Equal(t, int64(128), a.AllocatedBytes())

	buf2 = a.Reallocate(256, buf2)
	a.AssertSize(t, 256)
	assert.Equal(t, int64(256), a.AllocatedBytes())

	buf2 = a.Reallocate(64, buf2)
	a.AssertSize(t, 64)
	assert.Equal(t, int64(64), a.AllocatedBytes())

	a.Free(buf2)
	a.AssertSize(t, 0)
	assert.Equal(t, int64(0), a.AllocatedBytes())
}

func TestMallocatorAllocateNegative(t *testing.T) {
	a := mallocator.NewMallocator()
	assert.PanicsWithValue(t, "mallocator: negative size", func() {
		a.Allocate(-1)
	})
}

func TestMallocatorReallocateNegative(t *testing.T) {
	a := mallocator.NewMallocator()
	buf := a.Allocate(1)
	defer a.Free(buf)

	assert.PanicsWithValue(t, "mallocator: negative size", func() {
		a.Reallocate(-1, buf)
	})
}

type failing struct{ mesh.Allocator }

func (failing) AllocZeroed(mesh.Layout) unsafe.Pointer { return nil }

func TestMallocatorOutOfMemory(t *testing.T) {
	a := mallocator.NewMallocatorWith(failing{})
	assert.PanicsWithValue(t, "mallocator: out of memory", func() {
		a.Allocate(10)
	})
	assert.Zero(t, a.AllocatedBytes())
}

func TestMallocatorFreeShortened(t *testing.T) {
	inner := gomem.New()
	defer inner.Close()
	engine := checked.NewEngine(inner)
	a := mallocator.NewMallocatorWith(mesh.New(engine))

	buf := a.Allocate(256)
	a.Free(buf[:10])
	a.AssertSize(t, 0)
	engine.AssertSize(t, 0)
}

// Every buffer arrow allocates through the mallocator is released with the
// layout it was allocated with.
func TestMallocatorArrowBuffers(t *testing.T) {
	inner := gomem.New()
	defer inner.Close()
	engine := checked.NewEngine(inner)
	mem := memory.NewCheckedAllocator(mallocator.NewMallocatorWith(mesh.New(engine)))
	defer engine.AssertSize(t, 0)
	defer mem.AssertSize(t, 0)

	buf := memory.NewResizableBuffer(mem)
	buf.Resize(1024)
	assert.Equal(t, 1024, mem.CurrentAlloc())
	assert.Equal(t, 1024, engine.CurrentAlloc())
	assertZeroed(t, buf.Bytes())

	copy(buf.Bytes(), "arrow")
	buf.Resize(4096)
	assert.Equal(t, []byte("arrow"), buf.Bytes()[:5])
	assert.Equal(t, 4096, engine.CurrentAlloc())

	slice := memory.SliceBuffer(buf, 512, 256)
	buf.Release()
	assert.Equal(t, 4096, engine.CurrentAlloc())
	slice.Release()
}
