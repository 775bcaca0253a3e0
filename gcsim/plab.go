// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcsim

// A plab is a promotion-local allocation buffer: a per-promoter bump
// allocator over chunks carved from the heap's scratch space. Retiring
// a chunk seals its unused tail with a filler object so the region
// stays parseable.
type plab struct {
	heap          *Heap
	cursor, limit uintptr
}

func (p *plab) alloc(words uintptr) uintptr {
	if p.cursor+words > p.limit {
		p.retire()
		p.cursor, p.limit = p.heap.takeLabChunk(words)
	}
	addr := p.cursor
	p.cursor += words
	return addr
}

func (p *plab) retire() {
	if p.cursor < p.limit {
		p.heap.mem[p.cursor] = p.heap.encodeHeader(p.heap.filler, p.limit-p.cursor)
		p.heap.starts.RecordLabStart(p.cursor)
	}
	p.cursor, p.limit = 0, 0
}
