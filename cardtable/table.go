// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cardtable implements the remembered-set scanning core of a
// parallel stop-the-world young-generation collector. A card table is a
// byte array that coarsely tracks which regions of the old generation
// may contain references into the young generation, so that a scavenge
// can find all such references without walking every old object.
//
// Heap addresses throughout this package are word indices into the
// collector's word-addressed heap. Address 0 is never a valid object
// address; it is the nil reference.
package cardtable

import (
	"fmt"

	"github.com/mknyszek/scavenge-eval/bitmath"
)

const (
	// DefaultCardSizeInWords gives 512-byte cards with 8-byte words.
	DefaultCardSizeInWords = 64

	defaultNumCardsInStripe = 128
)

// Config carries the tunables of a Table. Zero fields take defaults.
type Config struct {
	// CardSizeInWords is the number of heap words covered by one card.
	// Must be a power of two.
	CardSizeInWords uintptr

	// NumCardsInStripe is the number of consecutive cards one GC thread
	// owns within a slice.
	NumCardsInStripe uintptr

	// LargeObjArrMinWords is the minimum size at which an object array
	// is scanned element-wise across threads rather than owned by the
	// stripe it starts in. Defaults to two stripes.
	LargeObjArrMinWords uintptr
}

// A Table is the card table for a contiguous old-generation region
// [base, base+words). One CardValue per CardSizeInWords heap words.
type Table struct {
	base                uintptr
	cards               []CardValue
	cardSizeInWords     uintptr
	numCardsInStripe    uintptr
	largeObjArrMinWords uintptr
}

// New returns a Table covering [base, base+words) with every card clean.
// base must be card-aligned.
func New(base, words uintptr, cfg Config) *Table {
	if cfg.CardSizeInWords == 0 {
		cfg.CardSizeInWords = DefaultCardSizeInWords
	}
	if cfg.NumCardsInStripe == 0 {
		cfg.NumCardsInStripe = defaultNumCardsInStripe
	}
	if cfg.LargeObjArrMinWords == 0 {
		cfg.LargeObjArrMinWords = 2 * cfg.NumCardsInStripe * cfg.CardSizeInWords
	}
	if !bitmath.IsPowerOfTwo(cfg.CardSizeInWords) {
		panic("card size must be a power of two")
	}
	if !bitmath.IsAligned(base, cfg.CardSizeInWords) {
		panic("table base must be card aligned")
	}
	n := bitmath.AlignUp(words, cfg.CardSizeInWords) / cfg.CardSizeInWords
	t := &Table{
		base:                base,
		cards:               make([]CardValue, n),
		cardSizeInWords:     cfg.CardSizeInWords,
		numCardsInStripe:    cfg.NumCardsInStripe,
		largeObjArrMinWords: cfg.LargeObjArrMinWords,
	}
	t.ClearCards(0, n)
	return t
}

// CardSizeInWords returns the number of heap words covered by one card.
func (t *Table) CardSizeInWords() uintptr { return t.cardSizeInWords }

// NumCards returns the number of cards in the table.
func (t *Table) NumCards() uintptr { return uintptr(len(t.cards)) }

// StripeSizeInWords returns the number of heap words in one stripe.
func (t *Table) StripeSizeInWords() uintptr {
	return t.numCardsInStripe * t.cardSizeInWords
}

// CardFor returns the index of the card covering addr.
func (t *Table) CardFor(addr uintptr) uintptr {
	if addr < t.base {
		panic(fmt.Sprintf("address %#x below card table base %#x", addr, t.base))
	}
	return (addr - t.base) / t.cardSizeInWords
}

// AddrFor returns the first heap word covered by card.
func (t *Table) AddrFor(card uintptr) uintptr {
	return t.base + card*t.cardSizeInWords
}

// Card returns the value of card i.
func (t *Table) Card(i uintptr) CardValue { return t.cards[i] }

func (t *Table) isCardAligned(addr uintptr) bool {
	return bitmath.IsAligned(addr-t.base, t.cardSizeInWords)
}

// DirtyCard is the write-barrier entry point: it marks the card covering
// slot dirty.
func (t *Table) DirtyCard(slot uintptr) {
	t.cards[t.CardFor(slot)] = dirtyCard
}

// SetCardYoungergen records that the card covering slot holds a
// reference that still points into the young generation. Called by the
// promotion manager during a scavenge, after the stripe walker has
// cleared and scanned the card.
func (t *Table) SetCardYoungergen(slot uintptr) {
	t.cards[t.CardFor(slot)] = youngergenCard
}

// ClearCards writes clean to every card in [l, r). Plain byte stores:
// stripes are disjoint, so concurrent walkers never clear the same card.
func (t *Table) ClearCards(l, r uintptr) {
	for i := l; i < r; i++ {
		t.cards[i] = cleanCard
	}
}

// AddrIsMarkedImprecise reports whether the card covering addr is dirty
// or youngergen.
func (t *Table) AddrIsMarkedImprecise(addr uintptr) bool {
	v := t.cards[t.CardFor(addr)]
	switch {
	case v.IsDirty(), v.IsYoungergen():
		return true
	case v.IsClean():
		return false
	}
	panic(fmt.Sprintf("unhandled card mark %#x for address %#x", byte(v), addr))
}

// AddrIsMarkedPrecise reports whether the card covering addr is
// youngergen or the verifier's transient verify state.
func (t *Table) AddrIsMarkedPrecise(addr uintptr) bool {
	v := t.cards[t.CardFor(addr)]
	switch {
	case v.IsYoungergen(), v.IsVerify():
		return true
	case v.IsClean(), v.IsDirty():
		return false
	}
	panic(fmt.Sprintf("unhandled card mark %#x for address %#x", byte(v), addr))
}

func (t *Table) isLargeObjArray(om ObjectModel, obj uintptr) bool {
	return om.IsObjArray(obj) && om.SizeOf(obj) >= t.largeObjArrMinWords
}
