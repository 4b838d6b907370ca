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

package mesh_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/OrionNebula/mesh-go"
)

type mockEngine struct {
	mock.Mock
}

func pointerArg(args mock.Arguments, i int) unsafe.Pointer {
	if p, ok := args.Get(i).(unsafe.Pointer); ok {
		return p
	}
	return nil
}

func (m *mockEngine) Malloc(size uintptr) unsafe.Pointer {
	return pointerArg(m.Called(size), 0)
}

func (m *mockEngine) Calloc(count, size uintptr) unsafe.Pointer {
	return pointerArg(m.Called(count, size), 0)
}

func (m *mockEngine) Memalign(alignment, size uintptr) unsafe.Pointer {
	return pointerArg(m.Called(alignment, size), 0)
}

func (m *mockEngine) Realloc(ptr unsafe.Pointer, newSize uintptr) unsafe.Pointer {
	return pointerArg(m.Called(ptr, newSize), 0)
}

func (m *mockEngine) Free(ptr unsafe.Pointer) {
	m.Called(ptr)
}

func (m *mockEngine) SizedFree(ptr unsafe.Pointer, size uintptr) {
	m.Called(ptr, size)
}

func (m *mockEngine) UsableSize(ptr unsafe.Pointer) uintptr {
	return m.Called(ptr).Get(0).(uintptr)
}

// block returns Go memory of n bytes filled with c, standing in for engine
// memory.
func block(n int, c byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = c
	}
	return b
}

func addr(b []byte) unsafe.Pointer { return unsafe.Pointer(unsafe.SliceData(b)) }

func TestAllocRouting(t *testing.T) {
	tests := []struct {
		name        string
		size, align uintptr
		plain       bool
	}{
		{"align below size", 8, 4, true},
		{"align equals size", 16, 16, false},
		{"align equals size small", 8, 8, false},
		{"align above size", 4, 8, false},
		{"one byte", 1, 1, false},
		{"align at threshold", 64, mesh.MaxAlign, true},
		{"align above threshold", 256, 2 * mesh.MaxAlign, false},
		{"page aligned", 8192, 4096, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m := new(mockEngine)
			buf := block(int(test.size), 0)
			if test.plain {
				m.On("Malloc", test.size).Return(addr(buf)).Once()
			} else {
				m.On("Memalign", test.align, test.size).Return(addr(buf)).Once()
			}

			a := mesh.New(m)
			p := a.Alloc(mesh.LayoutUnchecked(test.size, test.align))
			assert.Equal(t, addr(buf), p)
			m.AssertExpectations(t)
		})
	}
}

func TestAllocPropagatesFailure(t *testing.T) {
	m := new(mockEngine)
	m.On("Malloc", uintptr(32)).Return(nil).Once()
	m.On("Memalign", uintptr(64), uintptr(32)).Return(nil).Once()

	a := mesh.New(m)
	assert.Nil(t, a.Alloc(mesh.LayoutUnchecked(32, 8)))
	assert.Nil(t, a.Alloc(mesh.LayoutUnchecked(32, 64)))
	m.AssertExpectations(t)
}

func TestAllocZeroedPlainUsesCalloc(t *testing.T) {
	m := new(mockEngine)
	buf := block(24, 0)
	m.On("Calloc", uintptr(1), uintptr(24)).Return(addr(buf)).Once()

	a := mesh.New(m)
	p := a.AllocZeroed(mesh.LayoutUnchecked(24, 8))
	assert.Equal(t, addr(buf), p)
	m.AssertExpectations(t)
	m.AssertNotCalled(t, "Memalign", mock.Anything, mock.Anything)
}

func TestAllocZeroedAlignedClears(t *testing.T) {
	m := new(mockEngine)
	buf := block(80, 0xff)
	m.On("Memalign", uintptr(64), uintptr(64)).Return(addr(buf)).Once()

	a := mesh.New(m)
	p := a.AllocZeroed(mesh.LayoutUnchecked(64, 64))
	require.Equal(t, addr(buf), p)

	// exactly the requested bytes are cleared
	assert.Equal(t, block(64, 0), buf[:64])
	assert.Equal(t, block(16, 0xff), buf[64:])
	m.AssertExpectations(t)
	m.AssertNotCalled(t, "Calloc", mock.Anything, mock.Anything)
}

func TestAllocZeroedAlignedFailure(t *testing.T) {
	m := new(mockEngine)
	m.On("Memalign", uintptr(32), uintptr(32)).Return(nil).Once()

	a := mesh.New(m)
	assert.Nil(t, a.AllocZeroed(mesh.LayoutUnchecked(32, 32)))
	m.AssertExpectations(t)
}

func TestReallocPlainForwardsNewSize(t *testing.T) {
	m := new(mockEngine)
	old := block(32, 1)
	grown := block(100, 0)
	m.On("Realloc", addr(old), uintptr(100)).Return(addr(grown)).Once()

	a := mesh.New(m)
	p := a.Realloc(addr(old), mesh.LayoutUnchecked(32, 8), 100)
	assert.Equal(t, addr(grown), p)
	m.AssertExpectations(t)
	m.AssertNotCalled(t, "SizedFree", mock.Anything, mock.Anything)
}

func TestReallocAlignedMoves(t *testing.T) {
	tests := []struct {
		name          string
		size, newSize uintptr
	}{
		{"grow", 64, 200},
		{"shrink", 64, 10},
		{"same", 64, 64},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m := new(mockEngine)
			old := block(int(test.size), 0x5a)
			moved := block(int(test.newSize)+8, 0)
			layout := mesh.LayoutUnchecked(test.size, 64)

			m.On("Memalign", uintptr(64), test.newSize).Return(addr(moved)).Once()
			m.On("SizedFree", addr(old), test.size).Once()

			a := mesh.New(m)
			p := a.Realloc(addr(old), layout, test.newSize)
			require.Equal(t, addr(moved), p)

			n := min(test.size, test.newSize)
			assert.Equal(t, block(int(n), 0x5a), moved[:n])
			// nothing past the smaller size is written
			assert.Equal(t, block(len(moved)-int(n), 0), moved[n:])
			m.AssertExpectations(t)
			m.AssertNotCalled(t, "Realloc", mock.Anything, mock.Anything)
		})
	}
}

func TestReallocAlignedFailureKeepsOriginal(t *testing.T) {
	m := new(mockEngine)
	old := block(64, 0x33)
	m.On("Memalign", uintptr(128), uintptr(4096)).Return(nil).Once()

	a := mesh.New(m)
	p := a.Realloc(addr(old), mesh.LayoutUnchecked(64, 128), 4096)
	assert.Nil(t, p)
	assert.Equal(t, block(64, 0x33), old)
	m.AssertExpectations(t)
	m.AssertNotCalled(t, "SizedFree", mock.Anything, mock.Anything)
	m.AssertNotCalled(t, "Free", mock.Anything)
}

func TestDeallocIsSized(t *testing.T) {
	for _, align := range []uintptr{1, 8, 64, 4096} {
		m := new(mockEngine)
		buf := block(48, 0)
		m.On("SizedFree", addr(buf), uintptr(48)).Once()

		a := mesh.New(m)
		a.Dealloc(addr(buf), mesh.LayoutUnchecked(48, align))
		m.AssertExpectations(t)
		m.AssertNotCalled(t, "Free", mock.Anything)
	}
}

func TestUsableSizeForwards(t *testing.T) {
	m := new(mockEngine)
	buf := block(48, 0)
	m.On("UsableSize", addr(buf)).Return(uintptr(64)).Once()

	a := mesh.New(m)
	assert.Equal(t, uintptr(64), a.UsableSize(addr(buf)))
	m.AssertExpectations(t)
}

func TestAdapterOverStatelessEngineIsZeroSize(t *testing.T) {
	var a mesh.Adapter[stateless]
	assert.Zero(t, unsafe.Sizeof(a))
}

type stateless struct{}

func (stateless) Malloc(uintptr) unsafe.Pointer                  { return nil }
func (stateless) Calloc(uintptr, uintptr) unsafe.Pointer         { return nil }
func (stateless) Memalign(uintptr, uintptr) unsafe.Pointer       { return nil }
func (stateless) Realloc(unsafe.Pointer, uintptr) unsafe.Pointer { return nil }
func (stateless) Free(unsafe.Pointer)                            {}
func (stateless) SizedFree(unsafe.Pointer, uintptr)              {}
func (stateless) UsableSize(unsafe.Pointer) uintptr              { return 0 }
