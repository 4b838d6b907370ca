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

//go:build unix

package pagemap_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sys/unix"

	"github.com/OrionNebula/mesh-go"
	"github.com/OrionNebula/mesh-go/engine/pagemap"
	"github.com/OrionNebula/mesh-go/internal/enginetest"
)

func TestEngine(t *testing.T) {
	suite.Run(t, enginetest.New(func() mesh.Engine { return pagemap.Engine{} }))
}

func TestUsableSizeFillsPage(t *testing.T) {
	var e pagemap.Engine
	page := uintptr(unix.Getpagesize())

	p := e.Malloc(10)
	require.NotNil(t, p)
	defer e.Free(p)

	// one page, less the header in front of the block
	assert.Equal(t, page-16, e.UsableSize(p))
}

func TestReallocInPlace(t *testing.T) {
	var e pagemap.Engine

	p := e.Malloc(10)
	require.NotNil(t, p)
	q := e.Realloc(p, e.UsableSize(p))
	assert.Equal(t, p, q)

	r := e.Realloc(q, e.UsableSize(q)+1)
	require.NotNil(t, r)
	assert.NotEqual(t, q, r)
	e.Free(r)
}

func TestMemalignAbovePage(t *testing.T) {
	var e pagemap.Engine
	align := uintptr(4 * unix.Getpagesize())

	p := e.Memalign(align, 3)
	require.NotNil(t, p)
	defer e.Free(p)
	assert.Zero(t, uintptr(p)%align)

	b := unsafe.Slice((*byte)(p), e.UsableSize(p))
	assert.Equal(t, make([]byte, len(b)), b)
}
