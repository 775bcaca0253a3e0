// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cardtable

// findFirstDirtyCard returns the first non-clean card in [start, end),
// or end if every card is clean.
func (t *Table) findFirstDirtyCard(start, end uintptr) uintptr {
	for i := start; i < end; i++ {
		if !t.cards[i].IsClean() {
			return i
		}
	}
	return end
}

// findFirstCleanCard returns the first clean card in [start, end), or
// end if none is.
func (t *Table) findFirstCleanCard(start, end uintptr) uintptr {
	for i := start; i < end; i++ {
		if t.cards[i].IsClean() {
			return i
		}
	}
	return end
}

// findFirstCleanCardObjAware is findFirstCleanCard with the additional
// guarantee that the returned boundary does not split an object: if any
// part of an object lies on a dirty card, all cards the object resides
// on are treated as dirty. Precondition: start == end, or the card at
// start is non-clean. The returned card is clean, or end.
func (t *Table) findFirstCleanCardObjAware(om ObjectModel, sa StartArray, start, end uintptr) uintptr {
	if start != end && t.cards[start].IsClean() {
		panic("search must start on a non-clean card")
	}
	// Skip the first dirty card.
	i := start + 1
	for i < end {
		if !t.cards[i].IsClean() {
			i++
			continue
		}
		// Find the final object on the previous dirty card.
		objAddr := sa.ObjectStart(t.AddrFor(i) - 1)
		objEndAddr := objAddr + om.SizeOf(objAddr)
		finalCard := t.CardFor(objEndAddr - 1)
		if finalCard >= end {
			panic("object extends past the iteration limit")
		}
		if finalCard <= i {
			return i
		}
		// The object extends beyond i; stop there only if its last
		// card is clean.
		if t.cards[finalCard].IsClean() {
			return finalCard
		}
		i = finalCard + 1
	}
	return end
}
