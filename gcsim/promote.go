// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcsim

import "sync"

// A Forwarding table maps young objects to their promoted copies. It is
// shared by all promoters of a scavenge so that each young object is
// copied exactly once.
type Forwarding struct {
	mu sync.Mutex
	m  map[uintptr]uintptr
}

func NewForwarding() *Forwarding {
	return &Forwarding{m: make(map[uintptr]uintptr)}
}

type arraySpan struct {
	arr, l, r uintptr
}

// PromoterStats counts what a single promoter saw during a scavenge.
type PromoterStats struct {
	ObjectsPushed int
	SpansPushed   int
	Promoted      int
	PromotedWords uintptr
	SurvivedSlots int
}

// A Promoter consumes the object and element ranges found by one stripe
// walker. Young objects reachable from pushed slots are copied into a
// promotion lab and their slots updated; objects held back by the
// survivor policy stay in young gen and leave a youngergen mark on the
// referring slot's card.
type Promoter struct {
	heap *Heap
	fwd  *Forwarding
	lab  plab

	// Young objects of at least survivorMinWords words are not
	// promoted. Zero promotes everything. This stands in for the age
	// tracking a real collector would consult.
	survivorMinWords uintptr

	drainThreshold int
	objs           []uintptr
	spans          []arraySpan

	Stats PromoterStats
}

func NewPromoter(h *Heap, fwd *Forwarding, survivorMinWords uintptr) *Promoter {
	return &Promoter{
		heap:             h,
		fwd:              fwd,
		lab:              plab{heap: h},
		survivorMinWords: survivorMinWords,
		drainThreshold:   64,
	}
}

// PushContents enqueues all reference slots of the object at obj.
func (p *Promoter) PushContents(obj uintptr) {
	p.Stats.ObjectsPushed++
	p.objs = append(p.objs, obj)
}

// PushObjArrayContents enqueues the element slots of the array at arr
// that lie within [l, r). The range may overhang the array; it is
// clamped to the payload when drained.
func (p *Promoter) PushObjArrayContents(arr, l, r uintptr) {
	p.Stats.SpansPushed++
	p.spans = append(p.spans, arraySpan{arr, l, r})
}

// DrainStacksConditional flushes the work queues once they have grown
// past the drain threshold.
func (p *Promoter) DrainStacksConditional() {
	if len(p.objs)+len(p.spans) > p.drainThreshold {
		p.Drain()
	}
}

// Drain processes queued work until none remains.
func (p *Promoter) Drain() {
	for len(p.objs) > 0 || len(p.spans) > 0 {
		if n := len(p.objs); n > 0 {
			obj := p.objs[n-1]
			p.objs = p.objs[:n-1]
			p.heap.IterateRefs(obj, func(slot, _ uintptr) {
				p.processSlot(slot)
			})
			continue
		}
		n := len(p.spans)
		s := p.spans[n-1]
		p.spans = p.spans[:n-1]
		l := max(s.l, s.arr+headerWords)
		r := min(s.r, s.arr+p.heap.SizeOf(s.arr))
		for slot := l; slot < r; slot++ {
			p.processSlot(slot)
		}
	}
}

// Finish drains outstanding work and retires the promotion lab. Call
// once per promoter at the scavenge barrier.
func (p *Promoter) Finish() {
	p.Drain()
	p.lab.retire()
}

func (p *Promoter) processSlot(slot uintptr) {
	val := p.heap.mem[slot]
	if val == 0 || !p.heap.IsInYoung(val) {
		return
	}
	size := p.heap.SizeOf(val)
	if p.survivorMinWords != 0 && size >= p.survivorMinWords {
		// The object stays in young gen; remember the slot for the
		// next scavenge.
		p.heap.table.SetCardYoungergen(slot)
		p.Stats.SurvivedSlots++
		return
	}
	p.heap.mem[slot] = p.copyYoung(val, size)
}

func (p *Promoter) copyYoung(obj, size uintptr) uintptr {
	p.fwd.mu.Lock()
	if to, ok := p.fwd.m[obj]; ok {
		p.fwd.mu.Unlock()
		return to
	}
	to := p.lab.alloc(size)
	copy(p.heap.mem[to:to+size], p.heap.mem[obj:obj+size])
	p.fwd.m[obj] = to
	p.fwd.mu.Unlock()

	p.heap.starts.RecordLabStart(to)
	// The copy's own references still need processing.
	p.objs = append(p.objs, to)
	p.Stats.Promoted++
	p.Stats.PromotedWords += size
	return to
}
