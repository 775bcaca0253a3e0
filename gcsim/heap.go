// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gcsim models a small generational heap for exercising the
// card-table scavenge: a word-addressed old and young generation,
// bump-pointer allocation with one-word object headers, a card-marking
// write barrier, and a promotion manager with per-worker labs.
//
// Addresses are indices into the heap's word array. Index 0 lies in a
// guard region and doubles as the nil reference.
package gcsim

import (
	"fmt"
	"sync"

	"github.com/mknyszek/scavenge-eval/cardtable"
)

const (
	headerWords  = 1
	sizeShift    = 32
	typeMask     = (uintptr(1) << sizeShift) - 1
	maxSizeWords = uintptr(1) << 31
)

// Config sizes a Heap. All values are in words.
type Config struct {
	// OldWords is the mutator-allocatable part of the old generation.
	OldWords uintptr

	// LabWords reserves promotion scratch space above the old
	// generation's top. Objects promoted during a scavenge are copied
	// here.
	LabWords uintptr

	// YoungWords is the size of the young generation.
	YoungWords uintptr

	// PlabChunkWords is the chunk size promotion labs carve from the
	// scratch space. Defaults to 256.
	PlabChunkWords uintptr

	Table cardtable.Config
}

// A Heap is a simulated two-generation heap. The old generation
// occupies [Bottom, oldLimit): mutator allocation bumps top, and the
// region above top is promotion scratch. The young generation is a
// separate reserved range with no card table.
type Heap struct {
	mem   []uintptr
	types []*ObjType

	oldBottom, oldTop, oldLimit       uintptr
	youngBottom, youngTop, youngLimit uintptr

	// spaceTop is the old generation's top frozen at scavenge entry.
	// The walker never looks beyond it; labs fill in above it.
	spaceTop   uintptr
	scavenging bool

	mutatorLimit   uintptr
	plabChunkWords uintptr
	labMu          sync.Mutex
	labTop         uintptr

	starts *StartArray
	table  *cardtable.Table

	filler *ObjType
}

// NewHeap returns a heap laid out per cfg, with a clean card table
// covering the whole old generation reserve.
func NewHeap(cfg Config) *Heap {
	if cfg.PlabChunkWords == 0 {
		cfg.PlabChunkWords = 256
	}
	cardWords := cfg.Table.CardSizeInWords
	if cardWords == 0 {
		cardWords = cardtable.DefaultCardSizeInWords
	}
	h := &Heap{}

	// One guard card keeps address 0 out of every generation.
	h.oldBottom = cardWords
	h.oldTop = h.oldBottom
	h.oldLimit = h.oldBottom + cfg.OldWords + cfg.LabWords
	h.youngBottom = h.oldLimit
	h.youngTop = h.youngBottom
	h.youngLimit = h.youngBottom + cfg.YoungWords

	h.mem = make([]uintptr, h.youngLimit)
	// The table also covers the guard card, so limit computations may
	// step one word below the old generation's bottom.
	h.table = cardtable.New(0, h.oldLimit, cfg.Table)
	h.starts = newStartArray(h.oldBottom)
	h.filler = h.RegisterType(NewType("filler", nil))
	h.plabChunkWords = cfg.PlabChunkWords
	h.mutatorLimit = h.oldBottom + cfg.OldWords
	return h
}

func (h *Heap) Table() *cardtable.Table { return h.table }
func (h *Heap) Starts() *StartArray     { return h.starts }
func (h *Heap) Bottom() uintptr         { return h.oldBottom }
func (h *Heap) OldTop() uintptr         { return h.oldTop }
func (h *Heap) YoungBottom() uintptr    { return h.youngBottom }

// takeLabChunk carves a fresh chunk from the promotion scratch space.
func (h *Heap) takeLabChunk(minWords uintptr) (l, r uintptr) {
	n := max(h.plabChunkWords, minWords)
	h.labMu.Lock()
	defer h.labMu.Unlock()
	if h.labTop+n > h.oldLimit {
		panic("promotion scratch space exhausted")
	}
	l = h.labTop
	h.labTop += n
	return l, l + n
}

// RegisterType adds t to the heap's type table.
func (h *Heap) RegisterType(t *ObjType) *ObjType {
	h.types = append(h.types, t)
	return t
}

func (h *Heap) typeID(t *ObjType) uintptr {
	for i, ti := range h.types {
		if ti == t {
			return uintptr(i)
		}
	}
	panic("type not registered with this heap")
}

func (h *Heap) encodeHeader(t *ObjType, sizeWords uintptr) uintptr {
	if sizeWords < headerWords {
		panic("object smaller than its header")
	}
	if sizeWords >= maxSizeWords {
		panic("object too large for its header")
	}
	if !t.ObjArray && sizeWords-headerWords > t.maxPayloadWords() {
		panic("object larger than its pointer mask")
	}
	return h.typeID(t) | sizeWords<<sizeShift
}

// AllocOld bump-allocates an object of sizeWords total words (header
// included) in the old generation and records its start.
func (h *Heap) AllocOld(t *ObjType, sizeWords uintptr) uintptr {
	if h.scavenging {
		panic("mutator allocation during scavenge")
	}
	hdr := h.encodeHeader(t, sizeWords)
	addr := h.oldTop
	if addr+sizeWords > h.mutatorLimit {
		panic("old generation exhausted")
	}
	h.oldTop = addr + sizeWords
	h.mem[addr] = hdr
	h.starts.recordStart(addr)
	return addr
}

// AllocYoung bump-allocates an object in the young generation.
func (h *Heap) AllocYoung(t *ObjType, sizeWords uintptr) uintptr {
	hdr := h.encodeHeader(t, sizeWords)
	addr := h.youngTop
	if addr+sizeWords > h.youngLimit {
		panic("young generation exhausted")
	}
	h.youngTop = addr + sizeWords
	h.mem[addr] = hdr
	return addr
}

// TypeOf returns the type of the object at obj.
func (h *Heap) TypeOf(obj uintptr) *ObjType {
	return h.types[h.mem[obj]&typeMask]
}

// SizeOf returns the total size in words of the object at obj.
func (h *Heap) SizeOf(obj uintptr) uintptr {
	size := h.mem[obj] >> sizeShift
	if size == 0 {
		panic(fmt.Sprintf("no object header at %#x", obj))
	}
	return size
}

// IsObjArray reports whether the object at obj is an object array.
func (h *Heap) IsObjArray(obj uintptr) bool {
	return h.TypeOf(obj).ObjArray
}

// Ref reads the reference stored in slot.
func (h *Heap) Ref(slot uintptr) uintptr { return h.mem[slot] }

// SetRef stores val into slot through the write barrier: stores into
// the old generation dirty the slot's card.
func (h *Heap) SetRef(slot, val uintptr) {
	if h.scavenging {
		panic("mutator store during scavenge")
	}
	h.mem[slot] = val
	if slot >= h.oldBottom && slot < h.oldLimit {
		h.table.DirtyCard(slot)
	}
}

// SlotAddr returns the address of payload slot i of the object at obj.
func (h *Heap) SlotAddr(obj, i uintptr) uintptr {
	return obj + headerWords + i
}

// IterateRefs calls fn for every reference slot of the object at obj.
func (h *Heap) IterateRefs(obj uintptr, fn func(slot, val uintptr)) {
	t := h.TypeOf(obj)
	n := h.SizeOf(obj) - headerWords
	for i := uintptr(0); i < n; i++ {
		if t.isPtr(i) {
			slot := obj + headerWords + i
			fn(slot, h.mem[slot])
		}
	}
}

// IterateOldObjects walks the old generation's used region in
// allocation order.
func (h *Heap) IterateOldObjects(fn func(obj uintptr)) {
	for addr := h.oldBottom; addr < h.oldTop; addr += h.SizeOf(addr) {
		fn(addr)
	}
}

// IsInYoung reports whether addr lies in the young generation's
// reserved region.
func (h *Heap) IsInYoung(addr uintptr) bool {
	return addr >= h.youngBottom && addr < h.youngLimit
}

// OldUsedRegion returns the old generation's used region.
func (h *Heap) OldUsedRegion() (l, r uintptr) {
	return h.oldBottom, h.oldTop
}

// BeginScavenge freezes the old generation top as the walker's space
// top and opens the scratch space above it for promotion labs.
// Returns the frozen top.
func (h *Heap) BeginScavenge() uintptr {
	if h.scavenging {
		panic("scavenge already in progress")
	}
	h.scavenging = true
	h.spaceTop = h.oldTop
	h.labTop = h.oldTop
	return h.spaceTop
}

// EndScavenge absorbs filled promotion labs into the old generation
// and merges their object starts into the start array.
func (h *Heap) EndScavenge() {
	if !h.scavenging {
		panic("no scavenge in progress")
	}
	h.scavenging = false
	h.oldTop = h.labTop
	h.starts.mergeLabStarts()
}
