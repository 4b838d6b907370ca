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
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
)

type report struct {
	RunID   string        `json:"run_id"`
	Engine  string        `json:"engine"`
	Workers int           `json:"workers"`
	Seed    uint64        `json:"seed"`
	Elapsed time.Duration `json:"elapsed_ns"`
	counts
}

func (r *report) ops() int64 {
	return r.Allocs + r.Zeroed + r.Reallocs + r.Frees
}

func (r *report) writeJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func (r *report) writeText(w io.Writer) {
	fmt.Fprintf(w, "run:       %s\n", r.RunID)
	fmt.Fprintf(w, "engine:    %s (%d workers, seed %d)\n", r.Engine, r.Workers, r.Seed)
	fmt.Fprintf(w, "ops:       %s in %v\n", humanize.Comma(r.ops()), r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "  alloc:   %s\n", humanize.Comma(r.Allocs))
	fmt.Fprintf(w, "  zeroed:  %s\n", humanize.Comma(r.Zeroed))
	fmt.Fprintf(w, "  realloc: %s\n", humanize.Comma(r.Reallocs))
	fmt.Fprintf(w, "  free:    %s\n", humanize.Comma(r.Frees))
	fmt.Fprintf(w, "routes:    %s plain, %s aligned\n", humanize.Comma(r.Plain), humanize.Comma(r.Aligned))
	fmt.Fprintf(w, "requested: %s\n", humanize.IBytes(r.Bytes))
}
