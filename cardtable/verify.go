// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cardtable

import "fmt"

// RefModel is the view of the heap the verifier needs: the old
// generation's objects and reference slots, and the young-generation
// membership test.
type RefModel interface {
	ObjectModel

	// IterateOldObjects calls fn for the start address of every object
	// in the old generation's used region, in address order.
	IterateOldObjects(fn func(obj uintptr))

	// IterateRefs calls fn for every reference slot of the object at
	// obj with the slot's address and current value.
	IterateRefs(obj uintptr, fn func(slot, val uintptr))

	// IsInYoung reports whether addr lies in the young generation's
	// reserved region.
	IsInYoung(addr uintptr) bool

	// OldUsedRegion returns the old generation's used region [l, r).
	OldUsedRegion() (l, r uintptr)
}

// VerifyAllYoungRefsImprecise checks, object by object, that every old
// object holding a young-pointing reference is covered by an imprecise
// card mark. Card marks are not precise: a mark may cover only the
// object head even when the referring slot is deeper inside the object,
// so missing slot marks are tolerated as long as the head is marked.
// Call immediately before a scavenge.
func (t *Table) VerifyAllYoungRefsImprecise(h RefModel) {
	h.IterateOldObjects(func(obj uintptr) {
		unmarked := uintptr(0)
		h.IterateRefs(obj, func(slot, val uintptr) {
			if val != 0 && h.IsInYoung(val) && !t.AddrIsMarkedImprecise(slot) {
				// Keep the first missing slot mark.
				if unmarked == 0 {
					unmarked = slot
				}
			}
		})
		if unmarked != 0 && !t.AddrIsMarkedImprecise(obj) {
			panic(fmt.Sprintf("unmarked young ref in slot %#x of object %#x", unmarked, obj))
		}
	})
}

// VerifyAllYoungRefsPrecise checks that every young-pointing reference
// slot in the old generation sits on a precisely marked card, and
// leaves exactly those cards youngergen. Call immediately after a
// scavenge, before mutators resume.
func (t *Table) VerifyAllYoungRefsPrecise(h RefModel) {
	h.IterateOldObjects(func(obj uintptr) {
		h.IterateRefs(obj, func(slot, val uintptr) {
			if val == 0 || !h.IsInYoung(val) {
				return
			}
			if !t.AddrIsMarkedPrecise(slot) {
				panic(fmt.Sprintf("unmarked precise young ref in slot %#x of object %#x", slot, obj))
			}
			t.cards[t.CardFor(slot)] = verifyCard
		})
	})
	l, r := h.OldUsedRegion()
	t.verifyAllYoungRefsPreciseHelper(l, r)
}

// verifyAllYoungRefsPreciseHelper sweeps the cards covering [l, r):
// every card confirmed by the slot pass is downgraded from verify to
// youngergen, and any other card must be clean.
func (t *Table) verifyAllYoungRefsPreciseHelper(l, r uintptr) {
	if l >= r {
		return
	}
	for c := t.CardFor(l); c <= t.CardFor(r-1); c++ {
		v := t.cards[c]
		switch {
		case v.IsVerify():
			t.cards[c] = youngergenCard
		case v.IsClean():
		default:
			panic(fmt.Sprintf("unwanted or unknown mark %#x on card %d", byte(v), c))
		}
	}
}
