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
	"math/bits"
	"strconv"

	"github.com/docopt/docopt-go"
	"golang.org/x/xerrors"

	"github.com/OrionNebula/mesh-go"
)

type config struct {
	Engine   string
	Workers  int
	Ops      int
	MaxSize  uintptr
	MaxAlign uintptr
	Seed     uint64
	Checked  bool
	JSON     bool
}

func parseConfig(opts docopt.Opts) (config, error) {
	var (
		cfg config
		err error
	)
	if cfg.Engine, err = opts.String("--engine"); err != nil {
		return cfg, err
	}
	if _, ok := engines[cfg.Engine]; !ok {
		return cfg, xerrors.Errorf("unknown engine %q, have %v", cfg.Engine, engineNames())
	}
	if cfg.Workers, err = positive(opts, "--workers"); err != nil {
		return cfg, err
	}
	if cfg.Ops, err = positive(opts, "--ops"); err != nil {
		return cfg, err
	}
	size, err := positive(opts, "--max-size")
	if err != nil {
		return cfg, err
	}
	cfg.MaxSize = uintptr(size)
	align, err := positive(opts, "--max-align")
	if err != nil {
		return cfg, err
	}
	if _, err := mesh.NewLayout(cfg.MaxSize, uintptr(align)); err != nil {
		return cfg, xerrors.Errorf("--max-align: %w", err)
	}
	cfg.MaxAlign = uintptr(align)

	seed, err := opts.String("--seed")
	if err != nil {
		return cfg, err
	}
	if cfg.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
		return cfg, xerrors.Errorf("--seed: %w", err)
	}
	if cfg.Checked, err = opts.Bool("--checked"); err != nil {
		return cfg, err
	}
	if cfg.JSON, err = opts.Bool("--json"); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func positive(opts docopt.Opts, key string) (int, error) {
	n, err := opts.Int(key)
	if err != nil {
		return 0, xerrors.Errorf("%s: %w", key, err)
	}
	if n <= 0 {
		return 0, xerrors.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}

// alignShift is the largest k with 1<<k <= maxAlign.
func alignShift(maxAlign uintptr) int {
	return bits.Len64(uint64(maxAlign)) - 1
}
