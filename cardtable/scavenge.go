// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cardtable

import (
	"fmt"

	"github.com/mknyszek/scavenge-eval/bitmath"
)

// StartArray is the object-start index maintained by allocation and
// promotion. The walker treats it as read-only during a scavenge.
type StartArray interface {
	// ObjectStart returns the start address of the object containing
	// addr. Total over the old generation's used region.
	ObjectStart(addr uintptr) uintptr

	// ObjectStartsInRange reports whether any object starts in [l, r).
	ObjectStartsInRange(l, r uintptr) bool
}

// ObjectModel exposes the two object-header queries the walker needs.
type ObjectModel interface {
	// SizeOf returns the size of the object at obj, in words,
	// including its header.
	SizeOf(obj uintptr) uintptr

	// IsObjArray reports whether the object at obj is an object array.
	IsObjArray(obj uintptr) bool
}

// PromotionManager receives the references found by the stripe walker.
// Each walker uses its own instance; the manager's internal work
// stealing is its own concern.
type PromotionManager interface {
	// PushContents hands over all reference slots of the object at obj.
	PushContents(obj uintptr)

	// PushObjArrayContents hands over the element slots of the object
	// array at arr that lie within [l, r).
	PushObjArrayContents(arr, l, r uintptr)

	// DrainStacksConditional permits the manager to flush its work
	// queues if they have grown large.
	DrainStacksConditional()
}

// startCache memoizes the last object-start query. Within one walker
// invocation the queried addresses never decrease, so a single entry
// suffices.
type startCache struct {
	objStart, objEnd uintptr
	prevQuery        uintptr
}

func (c *startCache) objectStart(addr uintptr, om ObjectModel, sa StartArray) uintptr {
	if c.prevQuery > addr {
		panic("object start queries must be monotone")
	}
	if addr >= c.objEnd {
		c.objStart = sa.ObjectStart(addr)
		c.objEnd = c.objStart + om.SizeOf(c.objStart)
	}
	c.prevQuery = addr
	return c.objStart
}

// scanObjectsInRange pushes every object starting in [start, end) to
// the promotion manager. start must be the beginning of an object; the
// final object may extend past end and is scanned in full.
func (t *Table) scanObjectsInRange(om ObjectModel, pm PromotionManager, start, end uintptr) {
	for addr := start; addr < end; addr += om.SizeOf(addr) {
		if t.isLargeObjArray(om, addr) {
			panic("large object array reached object-by-object scanning")
		}
		pm.PushContents(addr)
	}
	pm.DrainStacksConditional()
}

// The old generation is divided into slices, which are further
// subdivided into stripes, one stripe per GC thread. A thread works on
// its stripe within slice 0, then moves to its stripe in the next
// slice, until it has passed spaceTop.
//
//	+===============+        slice 0
//	|  stripe 0     |
//	+---------------+
//	|  stripe 1     |
//	+---------------+
//	|  stripe 2     |
//	+===============+        slice 1
//	|  stripe 0     |
//	+---------------+
//	...
//
// Objects starting in a stripe are scanned completely and exclusively
// by the stripe owner even if they extend beyond the stripe end. Large
// object arrays are the exception: each thread scans only the array
// elements on its own stripe.

// ScavengeContentsParallel walks the stripes owned by stripeIndex over
// [bottom, spaceTop), finds runs of dirty cards, clears them, and hands
// the objects they cover to pm. spaceTop bounds the walk; beyond it lies
// unparseable promotion scratch space. Safe to run concurrently for
// distinct stripe indices below nStripes.
func (t *Table) ScavengeContentsParallel(om ObjectModel, sa StartArray, bottom, spaceTop uintptr, pm PromotionManager, stripeIndex, nStripes uint) {
	stripeSize := t.StripeSizeInWords()
	sliceSize := stripeSize * uintptr(nStripes)

	// Cache object start information across stripes to avoid repeated
	// start array queries over a covering object.
	var cache startCache

	for curStripeAddr := bottom + uintptr(stripeIndex)*stripeSize; curStripeAddr < spaceTop; curStripeAddr += sliceSize {
		curStripeEnd := min(curStripeAddr+stripeSize, spaceTop)

		if !sa.ObjectStartsInRange(curStripeAddr, curStripeEnd) {
			// No object starts here, so a single earlier object covers
			// the whole stripe. Only a large object array needs work on
			// this stripe; anything else belongs to the stripe it
			// starts in.
			large := cache.objectStart(curStripeAddr, om, sa)
			if t.isLargeObjArray(om, large) {
				t.scavengeLargeArrayContents(om, pm, large, curStripeAddr, curStripeEnd, spaceTop, false)
			}
			continue
		}

		// Process objects starting in this stripe.
		//
		// Constraints:
		// 1. cards checked for being dirty or clean: [iterLimitL, iterLimitR)
		// 2. cards that may be cleared: [clearLimitL, clearLimitR)
		// 3. objects (by start) that may be scanned: [firstObjAddr, curStripeEnd)
		// 4. large array elements scanned: [curStripeAddr, curStripeEnd),
		//    limited to dirty cards.

		var iterLimitL, iterLimitR uintptr
		var clearLimitL, clearLimitR uintptr

		// Identify the left limits and the first object starting here.
		firstObjAddr := sa.ObjectStart(curStripeAddr)
		if firstObjAddr < curStripeAddr {
			// This object belongs to the previous stripe, unless it is
			// a large object array whose elements on this stripe are
			// ours to scan.
			if t.isLargeObjArray(om, firstObjAddr) {
				t.scavengeLargeArrayContents(om, pm, firstObjAddr, curStripeAddr, curStripeEnd, spaceTop, false)
			}
			// Continue with the first object that actually starts in
			// the stripe. Its first card is not cleared here if it is
			// shared with the preceding object: the owner of the
			// previous stripe may still need it.
			firstObjAddr += om.SizeOf(firstObjAddr)
			clearLimitL = t.CardFor(firstObjAddr-1) + 1
			iterLimitL = t.CardFor(firstObjAddr)
		} else {
			if firstObjAddr != curStripeAddr {
				panic(fmt.Sprintf("first object %#x past stripe start %#x", firstObjAddr, curStripeAddr))
			}
			iterLimitL = t.CardFor(curStripeAddr)
			clearLimitL = iterLimitL
		}
		if firstObjAddr > curStripeEnd {
			panic("first object start outside this stripe")
		}

		// Identify the right limits.
		largeArr := uintptr(0)
		largeArrClearedFirstCard := false
		{
			objAddr := sa.ObjectStart(curStripeEnd - 1)
			objEndAddr := objAddr + om.SizeOf(objAddr)
			if t.isLargeObjArray(om, objAddr) {
				if objAddr < curStripeAddr {
					// Scanned above already.
					continue
				}
				// Scan the array's elements after the objects before
				// it. Record whether its first card is shared with a
				// preceding object and still dirty; the large-array scan
				// then skips that card. The run below clears it when the
				// preceding object starts in this stripe; when that
				// object belongs to an earlier stripe the card lies
				// left of clearLimitL and stays dirty.
				largeArr = objAddr
				largeArrClearedFirstCard = !t.isCardAligned(objAddr) && !t.cards[t.CardFor(objAddr)].IsClean()
				iterLimitR = t.CardFor(objAddr-1) + 1
				clearLimitR = iterLimitR
			} else {
				if objEndAddr < curStripeEnd {
					panic("object at stripe end does not reach stripe end")
				}
				// The tail object may extend past the stripe; it is
				// ours, so iterate and clear through its end.
				clearLimitR = t.CardFor(objEndAddr)
				iterLimitR = t.CardFor(objEndAddr-1) + 1
			}
		}

		if iterLimitL > clearLimitL || clearLimitR > iterLimitR {
			panic("cards may be cleared only if they are iterated over")
		}

		// Process dirty chunks, i.e. consecutive non-clean cards
		// [dirtyL, dirtyR), chunk by chunk inside [iterLimitL, iterLimitR).
		for cur := iterLimitL; cur < iterLimitR; {
			dirtyL := t.findFirstDirtyCard(cur, iterLimitR)
			dirtyR := t.findFirstCleanCardObjAware(om, sa, dirtyL, iterLimitR)
			if dirtyL == dirtyR {
				if dirtyR != iterLimitR {
					panic("empty dirty chunk before the iteration limit")
				}
				break
			}

			// 1. Clear cards in [dirtyL, dirtyR) subject to
			//    [clearLimitL, clearLimitR).
			t.ClearCards(max(dirtyL, clearLimitL), min(dirtyR, clearLimitR))

			// 2. Scan objects in [dirtyL, dirtyR) subject to
			//    [firstObjAddr, curStripeEnd), excluding the large
			//    array if one begins in the stripe.
			objL := max(sa.ObjectStart(t.AddrFor(dirtyL)), firstObjAddr)
			objRBound := curStripeEnd
			if largeArr != 0 {
				objRBound = largeArr
			}
			objR := min(t.AddrFor(dirtyR), objRBound)
			t.scanObjectsInRange(om, pm, objL, objR)

			cur = dirtyR + 1
		}

		if largeArr != 0 {
			t.scavengeLargeArrayContents(om, pm, largeArr, curStripeAddr, curStripeEnd, spaceTop, largeArrClearedFirstCard)
		}
	}
}

// scavengeLargeArrayContents scans the elements of a large object array
// that lie on dirty cards within [stripeAddr, stripeEnd), clearing
// those cards. Sibling stripes run this on the same array concurrently,
// so the limits are recomputed relative to the stripe, never the array.
func (t *Table) scavengeLargeArrayContents(om ObjectModel, pm PromotionManager, arr, stripeAddr, stripeEnd, spaceTop uintptr, firstCardAlreadyCleared bool) {
	arrEndAddr := arr + om.SizeOf(arr)

	if !t.isCardAligned(stripeAddr) {
		panic("stripe start not card aligned")
	}
	if !t.isCardAligned(stripeEnd) && stripeEnd != spaceTop {
		panic("stripe end neither card aligned nor the space top")
	}

	iterLimitL := t.CardFor(stripeAddr)
	iterLimitR := t.CardFor(stripeEnd-1) + 1
	clearLimitL := iterLimitL
	clearLimitR := t.CardFor(stripeEnd)

	// Adjust the left limits if the array starts in this stripe. If the
	// shared first card was already consumed by the owner of the
	// preceding object, skip it and push the sub-card prefix directly.
	if stripeAddr <= arr {
		if firstCardAlreadyCleared {
			if t.isCardAligned(arr) {
				panic("first card is not shared with other objects")
			}
			iterLimitL = t.CardFor(arr) + 1
			clearLimitL = iterLimitL
			pm.PushObjArrayContents(arr, arr, bitmath.AlignUp(arr-t.base, t.cardSizeInWords)+t.base)
		} else {
			iterLimitL = t.CardFor(arr)
			clearLimitL = t.CardFor(arr-1) + 1
		}
	}

	// Adjust the right limits if the array ends in this stripe.
	if arrEndAddr <= stripeEnd {
		clearLimitR = t.CardFor(arrEndAddr)
		iterLimitR = t.CardFor(arrEndAddr-1) + 1
	}

	// Same dirty-chunk loop as the stripe walker, but element
	// granularity is word-level, so the plain clean-card search
	// suffices.
	for cur := iterLimitL; cur < iterLimitR; {
		dirtyL := t.findFirstDirtyCard(cur, iterLimitR)
		dirtyR := t.findFirstCleanCard(dirtyL, iterLimitR)
		if dirtyL == dirtyR {
			if dirtyR != iterLimitR {
				panic("empty dirty chunk before the iteration limit")
			}
			break
		}

		t.ClearCards(max(dirtyL, clearLimitL), min(dirtyR, clearLimitR))
		pm.PushObjArrayContents(arr, t.AddrFor(dirtyL), t.AddrFor(dirtyR))

		cur = dirtyR + 1
	}
}
