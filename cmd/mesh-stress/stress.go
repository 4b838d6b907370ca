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
	"context"
	"fmt"
	"time"
	"unsafe"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/OrionNebula/mesh-go"
	"github.com/OrionNebula/mesh-go/engine/checked"
)

var (
	errOutOfMemory = xerrors.New("allocation failed")
	errMisaligned  = xerrors.New("misaligned block")
	errShortBlock  = xerrors.New("usable size below requested size")
	errNotZeroed   = xerrors.New("zeroed block has non-zero bytes")
	errCorrupted   = xerrors.New("block contents changed")
)

// maxLive bounds the blocks each worker keeps outstanding.
const maxLive = 64

type block struct {
	ptr    unsafe.Pointer
	layout mesh.Layout
	sum    uint64
}

func (b *block) bytes() []byte {
	return unsafe.Slice((*byte)(b.ptr), b.layout.Size())
}

type counts struct {
	Allocs   int64  `json:"allocs"`
	Zeroed   int64  `json:"zeroed"`
	Reallocs int64  `json:"reallocs"`
	Frees    int64  `json:"frees"`
	Plain    int64  `json:"plain"`
	Aligned  int64  `json:"aligned"`
	Bytes    uint64 `json:"bytes_requested"`
}

func (c *counts) add(o counts) {
	c.Allocs += o.Allocs
	c.Zeroed += o.Zeroed
	c.Reallocs += o.Reallocs
	c.Frees += o.Frees
	c.Plain += o.Plain
	c.Aligned += o.Aligned
	c.Bytes += o.Bytes
}

func (c *counts) route(l mesh.Layout) {
	if mesh.PlainEligible(l) {
		c.Plain++
	} else {
		c.Aligned++
	}
}

type worker struct {
	id    int
	alloc mesh.Allocator
	rnd   *rand.Rand
	cfg   config
	live  []block
	counts
}

func newWorker(id int, alloc mesh.Allocator, cfg config) *worker {
	return &worker{
		id:    id,
		alloc: alloc,
		rnd:   rand.New(rand.NewSource(cfg.Seed + uint64(id))),
		cfg:   cfg,
		live:  make([]block, 0, maxLive),
	}
}

func (w *worker) run(ctx context.Context) error {
	defer w.drain()

	for i := 0; i < w.cfg.Ops; i++ {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := w.step(); err != nil {
			return xerrors.Errorf("worker %d, op %d: %w", w.id, i, err)
		}
	}
	return nil
}

func (w *worker) step() error {
	switch op := w.rnd.Intn(4); {
	case len(w.live) == 0 || (op < 2 && len(w.live) < maxLive):
		return w.allocate(op == 1)
	case op == 2:
		return w.resize(w.rnd.Intn(len(w.live)))
	default:
		return w.free(w.rnd.Intn(len(w.live)))
	}
}

func (w *worker) layout(size uintptr) mesh.Layout {
	align := uintptr(1) << w.rnd.Intn(alignShift(w.cfg.MaxAlign)+1)
	return mesh.LayoutUnchecked(size, align)
}

func (w *worker) size() uintptr {
	return 1 + uintptr(w.rnd.Int63n(int64(w.cfg.MaxSize)))
}

func (w *worker) allocate(zeroed bool) error {
	l := w.layout(w.size())
	var p unsafe.Pointer
	if zeroed {
		p = w.alloc.AllocZeroed(l)
		w.Zeroed++
	} else {
		p = w.alloc.Alloc(l)
		w.Allocs++
	}
	w.route(l)
	if p == nil {
		return xerrors.Errorf("%v: %w", l, errOutOfMemory)
	}

	b := block{ptr: p, layout: l}
	w.live = append(w.live, b)
	if err := w.verify(b); err != nil {
		return err
	}
	if zeroed {
		for i, c := range b.bytes() {
			if c != 0 {
				return xerrors.Errorf("%v at offset %d: %w", l, i, errNotZeroed)
			}
		}
	}

	w.fill(b.bytes())
	w.live[len(w.live)-1].sum = xxh3.Hash(b.bytes())
	w.Bytes += uint64(l.Size())
	return nil
}

func (w *worker) resize(i int) error {
	b := w.live[i]
	if err := w.check(b); err != nil {
		return err
	}

	newSize := w.size()
	keep := min(b.layout.Size(), newSize)
	prefix := xxh3.Hash(b.bytes()[:keep])

	w.Reallocs++
	w.route(b.layout)
	p := w.alloc.Realloc(b.ptr, b.layout, newSize)
	if p == nil {
		// the old block is still ours
		return xerrors.Errorf("resize %v to %d: %w", b.layout, newSize, errOutOfMemory)
	}

	nb := block{ptr: p, layout: b.layout.WithSize(newSize)}
	w.live[i] = nb
	if err := w.verify(nb); err != nil {
		return err
	}
	if got := xxh3.Hash(nb.bytes()[:keep]); got != prefix {
		return xerrors.Errorf("resize %v to %d lost its first %d bytes: %w", b.layout, newSize, keep, errCorrupted)
	}

	w.fill(nb.bytes()[keep:])
	w.live[i].sum = xxh3.Hash(nb.bytes())
	w.Bytes += uint64(newSize)
	return nil
}

func (w *worker) free(i int) error {
	b := w.live[i]
	if err := w.check(b); err != nil {
		return err
	}
	w.alloc.Dealloc(b.ptr, b.layout)
	w.Frees++

	last := len(w.live) - 1
	w.live[i] = w.live[last]
	w.live = w.live[:last]
	return nil
}

func (w *worker) drain() {
	for _, b := range w.live {
		w.alloc.Dealloc(b.ptr, b.layout)
		w.Frees++
	}
	w.live = w.live[:0]
}

// verify checks the properties every block must have on arrival.
func (w *worker) verify(b block) error {
	if uintptr(b.ptr)%b.layout.Align() != 0 {
		return xerrors.Errorf("%v at %p: %w", b.layout, b.ptr, errMisaligned)
	}
	if usable := w.alloc.UsableSize(b.ptr); usable < b.layout.Size() {
		return xerrors.Errorf("%v has %d usable bytes: %w", b.layout, usable, errShortBlock)
	}
	return nil
}

// check makes sure nobody wrote to a block since its fingerprint was taken.
func (w *worker) check(b block) error {
	if xxh3.Hash(b.bytes()) != b.sum {
		return xerrors.Errorf("%v at %p: %w", b.layout, b.ptr, errCorrupted)
	}
	return nil
}

func (w *worker) fill(p []byte) {
	w.rnd.Read(p)
}

// leaks collects checked engine failures.
type leaks []string

func (l *leaks) Errorf(format string, args ...interface{}) {
	*l = append(*l, fmt.Sprintf(format, args...))
}

func (l *leaks) Helper() {}

func stress(ctx context.Context, cfg config) (*report, error) {
	engine := engines[cfg.Engine]()
	if c, ok := engine.(interface{ Close() error }); ok {
		defer c.Close()
	}
	var tracker *checked.Engine
	if cfg.Checked {
		tracker = checked.NewEngine(engine)
		engine = tracker
	}
	alloc := mesh.New(engine)

	workers := make([]*worker, cfg.Workers)
	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()
	for i := range workers {
		w := newWorker(i, alloc, cfg)
		workers[i] = w
		g.Go(func() error { return w.run(gctx) })
	}
	err := g.Wait()
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}

	rep := &report{
		RunID:   uuid.NewString(),
		Engine:  cfg.Engine,
		Workers: cfg.Workers,
		Seed:    cfg.Seed,
		Elapsed: elapsed,
	}
	for _, w := range workers {
		rep.add(w.counts)
	}

	if tracker != nil {
		var l leaks
		tracker.AssertSize(&l, 0)
		if len(l) > 0 {
			return rep, xerrors.Errorf("checked engine: %d problems, first: %s", len(l), l[0])
		}
	}
	return rep, nil
}
