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

// Command mesh-stress drives concurrent allocation workloads through a
// mesh.Adapter and checks every result the allocator returns.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/docopt/docopt-go"
)

const usage = `Mesh allocator stress tester.

Usage:
  mesh-stress [options]
  mesh-stress info
  mesh-stress engines
  mesh-stress -h | --help

Options:
  -h --help            Show this screen.
  --engine=<name>      Engine to drive [default: gomem].
  --workers=<n>        Concurrent workers [default: 4].
  --ops=<n>            Operations per worker [default: 10000].
  --max-size=<bytes>   Largest request size [default: 65536].
  --max-align=<bytes>  Largest request alignment [default: 4096].
  --seed=<n>           Random seed [default: 1].
  --checked            Track every allocation and fail on leaks.
  --json               Print the report as JSON.`

func main() {
	log.SetPrefix("mesh-stress: ")
	log.SetFlags(0)

	opts, err := docopt.ParseDoc(usage)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Stdout, opts); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, w io.Writer, opts docopt.Opts) error {
	if info, _ := opts.Bool("info"); info {
		printInfo(w)
		return nil
	}
	if list, _ := opts.Bool("engines"); list {
		for _, name := range engineNames() {
			fmt.Fprintln(w, name)
		}
		return nil
	}

	cfg, err := parseConfig(opts)
	if err != nil {
		return err
	}
	rep, err := stress(ctx, cfg)
	if err != nil {
		return err
	}
	if cfg.JSON {
		return rep.writeJSON(w)
	}
	rep.writeText(w)
	return nil
}
