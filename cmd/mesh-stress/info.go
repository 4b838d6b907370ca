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

package main

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"

	"github.com/OrionNebula/mesh-go"
	"github.com/OrionNebula/mesh-go/internal/debug"
)

func printInfo(w io.Writer) {
	fmt.Fprintf(w, "arch:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(w, "max align:  %d\n", mesh.MaxAlign)
	fmt.Fprintf(w, "assertions: %v\n", debug.Enabled)
	fmt.Fprintf(w, "engines:    %s\n", strings.Join(engineNames(), ", "))
	fmt.Fprintf(w, "cpu:        %s\n", cpuid.CPU.BrandName)
	fmt.Fprintf(w, "cores:      %d physical, %d logical\n", cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores)
	fmt.Fprintf(w, "cache line: %d\n", cpuid.CPU.CacheLine)
}
