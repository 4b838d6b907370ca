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

//go:build assert

package debug_test

import (
	"testing"

	"github.com/OrionNebula/mesh-go/internal/debug"
	"github.com/stretchr/testify/assert"
)

type reason string

func (r reason) String() string { return "reason: " + string(r) }

func TestAssert(t *testing.T) {
	assert.True(t, debug.Enabled)
	assert.NotPanics(t, func() { debug.Assert(true, "never") })
	assert.PanicsWithValue(t, "size is zero", func() { debug.Assert(false, "size is zero") })
	assert.PanicsWithValue(t, "lazy", func() {
		debug.Assert(false, func() string { return "lazy" })
	})
	assert.PanicsWithValue(t, "reason: stringer", func() { debug.Assert(false, reason("stringer")) })
}
