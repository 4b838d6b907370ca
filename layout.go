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
	"fmt"
	"math/bits"
	"unsafe"

	"golang.org/x/xerrors"
)

// ErrInvalidLayout is returned by NewLayout for sizes and alignments that
// cannot describe an allocation.
var ErrInvalidLayout = xerrors.New("mesh: invalid layout")

// Layout describes an allocation request: a size in bytes and the alignment
// the returned address must satisfy.
type Layout struct {
	size  uintptr
	align uintptr
}

// NewLayout returns the layout for size bytes aligned to align.
//
// align must be a non-zero power of two and size, rounded up to align, must
// not overflow a uintptr.
func NewLayout(size, align uintptr) (Layout, error) {
	if align == 0 || bits.OnesCount64(uint64(align)) != 1 {
		return Layout{}, xerrors.Errorf("alignment %d is not a power of two: %w", align, ErrInvalidLayout)
	}
	if size > ^uintptr(0)-(align-1) {
		return Layout{}, xerrors.Errorf("size %d overflows when aligned to %d: %w", size, align, ErrInvalidLayout)
	}
	return Layout{size: size, align: align}, nil
}

// LayoutUnchecked returns a layout without validating it. The caller
// guarantees what NewLayout would otherwise check.
func LayoutUnchecked(size, align uintptr) Layout {
	return Layout{size: size, align: align}
}

// LayoutOf returns the layout of a single value of type T.
func LayoutOf[T any]() Layout {
	var v T
	return Layout{size: unsafe.Sizeof(v), align: unsafe.Alignof(v)}
}

// Size returns the requested size in bytes.
func (l Layout) Size() uintptr { return l.size }

// Align returns the requested alignment, always a power of two.
func (l Layout) Align() uintptr { return l.align }

// WithSize returns a layout with the same alignment and a new size.
func (l Layout) WithSize(size uintptr) Layout {
	return Layout{size: size, align: l.align}
}

func (l Layout) String() string {
	return fmt.Sprintf("Layout{size=%d, align=%d}", l.size, l.align)
}

// PlainEligible reports whether a request for l can be served by the plain
// allocation primitives.
//
// A plain allocation of n bytes is aligned to the largest power of two
// dividing n, capped at MaxAlign. That is enough when the requested alignment
// is at most MaxAlign and strictly below the size. An alignment equal to the
// size is routed to the aligned primitive.
func PlainEligible(l Layout) bool {
	return l.align <= MaxAlign && l.align < l.size
}
