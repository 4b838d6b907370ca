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

// Package enginetest holds the conformance suite every mesh.Engine runs, and
// the properties of the adapter that must hold regardless of engine.
package enginetest

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/stretchr/testify/suite"

	"github.com/OrionNebula/mesh-go"
)

// Suite exercises an engine directly and through a mesh.Adapter.
type Suite struct {
	suite.Suite

	newEngine func() mesh.Engine
	engine    mesh.Engine
	alloc     mesh.Adapter[mesh.Engine]
}

// New returns a suite that calls newEngine before every test.
func New(newEngine func() mesh.Engine) *Suite {
	return &Suite{newEngine: newEngine}
}

func (s *Suite) SetupTest() {
	s.engine = s.newEngine()
	s.alloc = mesh.New(s.engine)
}

func (s *Suite) TearDownTest() {
	if c, ok := s.engine.(interface{ Close() error }); ok {
		s.NoError(c.Close())
	}
}

func bytesAt(ptr unsafe.Pointer, n uintptr) []byte {
	return unsafe.Slice((*byte)(ptr), n)
}

func fill(b []byte, seed byte) {
	for i := range b {
		b[i] = seed + byte(i*7)
	}
}

func pattern(n uintptr, seed byte) []byte {
	b := make([]byte, n)
	fill(b, seed)
	return b
}

// Layouts covers both routes through the adapter, including the boundary
// where the alignment equals the size.
var Layouts = []struct {
	Size, Align uintptr
}{
	{1, 1}, {3, 1}, {8, 4}, {8, 8}, {16, 8}, {16, 16}, {24, 8}, {33, 16},
	{64, 64}, {100, 32}, {4095, 8}, {4096, 4096}, {8193, 256}, {1 << 20, 16},
	{70000, 1 << 16},
}

func (s *Suite) TestEngineMalloc() {
	for _, n := range []uintptr{1, 7, 16, 250, 4096, 1 << 20} {
		p := s.engine.Malloc(n)
		s.Require().NotNil(p)
		s.GreaterOrEqual(s.engine.UsableSize(p), n)
		fill(bytesAt(p, n), 1)
		s.engine.Free(p)
	}
}

func (s *Suite) TestEngineCalloc() {
	p := s.engine.Calloc(10, 100)
	s.Require().NotNil(p)
	s.Equal(make([]byte, 1000), bytesAt(p, 1000))
	s.engine.SizedFree(p, 1000)
}

func (s *Suite) TestEngineCallocOverflow() {
	s.Nil(s.engine.Calloc(^uintptr(0)/2, 4))
}

func (s *Suite) TestEngineMemalign() {
	for _, a := range []uintptr{8, 16, 64, 4096, 1 << 16} {
		p := s.engine.Memalign(a, 100)
		s.Require().NotNil(p)
		s.Zero(uintptr(p)%a, "alignment %d", a)
		s.GreaterOrEqual(s.engine.UsableSize(p), uintptr(100))
		s.engine.Free(p)
	}
}

func (s *Suite) TestEngineRealloc() {
	p := s.engine.Malloc(64)
	s.Require().NotNil(p)
	fill(bytesAt(p, 64), 3)

	p = s.engine.Realloc(p, 10000)
	s.Require().NotNil(p)
	s.Equal(pattern(64, 3), bytesAt(p, 64))

	p = s.engine.Realloc(p, 16)
	s.Require().NotNil(p)
	s.Equal(pattern(16, 3), bytesAt(p, 16))
	s.engine.Free(p)
}

func (s *Suite) TestAlloc() {
	for _, l := range Layouts {
		s.Run(fmt.Sprintf("size=%d,align=%d", l.Size, l.Align), func() {
			layout := mesh.LayoutUnchecked(l.Size, l.Align)
			p := s.alloc.Alloc(layout)
			s.Require().NotNil(p)
			s.Zero(uintptr(p)%l.Align, "misaligned")
			s.GreaterOrEqual(s.alloc.UsableSize(p), l.Size)
			fill(bytesAt(p, l.Size), 5)
			s.alloc.Dealloc(p, layout)
		})
	}
}

func (s *Suite) TestAllocZeroed() {
	for _, l := range Layouts {
		s.Run(fmt.Sprintf("size=%d,align=%d", l.Size, l.Align), func() {
			layout := mesh.LayoutUnchecked(l.Size, l.Align)

			// dirty a block of the same shape first so a reused block is
			// not zero by accident
			dirty := s.alloc.Alloc(layout)
			s.Require().NotNil(dirty)
			fill(bytesAt(dirty, l.Size), 0xa5)
			s.alloc.Dealloc(dirty, layout)

			p := s.alloc.AllocZeroed(layout)
			s.Require().NotNil(p)
			s.Zero(uintptr(p)%l.Align, "misaligned")
			s.Equal(make([]byte, l.Size), bytesAt(p, l.Size))
			s.alloc.Dealloc(p, layout)
		})
	}
}

func (s *Suite) TestReallocGrowPreservesPrefix() {
	for _, l := range Layouts {
		s.Run(fmt.Sprintf("size=%d,align=%d", l.Size, l.Align), func() {
			layout := mesh.LayoutUnchecked(l.Size, l.Align)
			p := s.alloc.Alloc(layout)
			s.Require().NotNil(p)
			fill(bytesAt(p, l.Size), 9)

			newSize := 2*l.Size + 13
			p = s.alloc.Realloc(p, layout, newSize)
			s.Require().NotNil(p)
			s.Equal(pattern(l.Size, 9), bytesAt(p, l.Size))
			s.GreaterOrEqual(s.alloc.UsableSize(p), newSize)
			if !mesh.PlainEligible(layout) {
				s.Zero(uintptr(p)%l.Align, "misaligned after move")
			}
			s.alloc.Dealloc(p, layout.WithSize(newSize))
		})
	}
}

func (s *Suite) TestReallocShrinkPreservesPrefix() {
	for _, l := range Layouts {
		if l.Size < 2 {
			continue
		}
		s.Run(fmt.Sprintf("size=%d,align=%d", l.Size, l.Align), func() {
			layout := mesh.LayoutUnchecked(l.Size, l.Align)
			p := s.alloc.Alloc(layout)
			s.Require().NotNil(p)
			fill(bytesAt(p, l.Size), 11)

			newSize := l.Size / 2
			p = s.alloc.Realloc(p, layout, newSize)
			s.Require().NotNil(p)
			s.Equal(pattern(newSize, 11), bytesAt(p, newSize))
			s.alloc.Dealloc(p, layout.WithSize(newSize))
		})
	}
}

func (s *Suite) TestConcurrent() {
	const (
		workers = 8
		rounds  = 200
	)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				l := Layouts[(w+i)%len(Layouts)]
				if l.Size > 1<<16 {
					continue
				}
				layout := mesh.LayoutUnchecked(l.Size, l.Align)
				p := s.alloc.AllocZeroed(layout)
				if p == nil {
					errs <- fmt.Errorf("worker %d: allocation of %v failed", w, layout)
					return
				}
				b := bytesAt(p, l.Size)
				fill(b, byte(w))
				p = s.alloc.Realloc(p, layout, l.Size+1)
				if p == nil {
					errs <- fmt.Errorf("worker %d: realloc of %v failed", w, layout)
					return
				}
				if uintptr(p)%l.Align != 0 {
					errs <- fmt.Errorf("worker %d: %p not aligned to %d", w, p, l.Align)
					return
				}
				s.alloc.Dealloc(p, layout.WithSize(l.Size+1))
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}
}
