// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/Workiva/go-datastructures/bitarray"

	"github.com/mknyszek/scavenge-eval/cardtable"
	"github.com/mknyszek/scavenge-eval/gcsim"
)

// Result summarizes one scavenged scenario.
type Result struct {
	Objects    int
	DirtyCards int
	YoungRefs  int
	Pushed     int
	Spans      int
	Promoted   int
	Survived   int
}

const cardWords = cardtable.DefaultCardSizeInWords

// runScenario builds a randomized heap per s, scavenges it in parallel,
// and cross-checks the walker's coverage against a ground-truth sweep.
func runScenario(s Scenario, seed uint64, threadsOverride int) (Result, error) {
	var res Result
	threads := s.Threads
	if threadsOverride > 0 {
		threads = threadsOverride
	}
	r := rand.New(rand.NewPCG(seed, 0))

	h := gcsim.NewHeap(gcsim.Config{
		OldWords:   s.OldCards * cardWords,
		LabWords:   s.OldCards * cardWords,
		YoungWords: s.YoungCards * cardWords,
		// 16-card stripes so the scenario heaps span many slices and
		// the scenario large arrays clear the 2-stripe threshold.
		Table: cardtable.Config{NumCardsInStripe: 16},
	})
	node := h.RegisterType(gcsim.NewType("node", buildRefMask(s.ObjMaxWords)))
	scalar := h.RegisterType(gcsim.NewType("scalar", nil))
	arr := h.RegisterType(gcsim.NewArrayType("objarray"))

	// Fill the young generation with leaf objects, a quarter of them
	// big enough to trip the survivor policy.
	var young []uintptr
	for i := uintptr(0); i < s.YoungCards*cardWords/16; i++ {
		words := uintptr(7)
		if i%4 == 0 {
			words = 31
		}
		young = append(young, h.AllocYoung(scalar, words))
	}

	// Fill the old generation, sprinkling in the large arrays.
	var objs []uintptr
	largeEvery := 0
	if s.LargeArrays > 0 {
		largeEvery = int(s.OldCards) / (s.LargeArrays + 1)
	}
	used, budget := uintptr(0), s.OldCards*cardWords
	placed := 0
	for used < budget-s.ObjMaxWords-1 {
		var obj uintptr
		if largeEvery > 0 && placed < s.LargeArrays && used >= uintptr(placed+1)*uintptr(largeEvery)*cardWords {
			words := s.LargeArrayCards * cardWords
			if used+words >= budget {
				break
			}
			obj = h.AllocOld(arr, words)
			placed++
		} else if r.UintN(4) == 0 {
			obj = h.AllocOld(scalar, s.objWords(r))
		} else {
			obj = h.AllocOld(node, s.objWords(r))
		}
		objs = append(objs, obj)
		used = h.OldTop() - h.Bottom()
	}
	res.Objects = len(objs)

	// Point a fraction of the reference slots at young objects. The
	// write barrier dirties the slots' cards.
	for _, obj := range objs {
		h.IterateRefs(obj, func(slot, _ uintptr) {
			if r.Float64() < s.YoungRefFrac {
				h.SetRef(slot, young[r.IntN(len(young))])
			}
		})
	}

	// Ground truth: every young-pointing slot in old gen.
	t := h.Table()
	for c := uintptr(0); c < t.NumCards(); c++ {
		if !t.Card(c).IsClean() {
			res.DirtyCards++
		}
	}
	truth := []uintptr{}
	h.IterateOldObjects(func(obj uintptr) {
		h.IterateRefs(obj, func(slot, val uintptr) {
			if val != 0 && h.IsInYoung(val) {
				truth = append(truth, slot)
			}
		})
	})
	res.YoungRefs = len(truth)

	t.VerifyAllYoungRefsImprecise(h)

	// Scavenge in parallel, one goroutine per stripe index.
	spaceTop := h.BeginScavenge()
	fwd := gcsim.NewForwarding()
	pms := make([]*recordingPM, threads)
	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		pms[i] = &recordingPM{inner: gcsim.NewPromoter(h, fwd, s.SurvivorMinWords)}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			t.ScavengeContentsParallel(h, h.Starts(), h.Bottom(), spaceTop, pms[idx], uint(idx), uint(threads))
		}(i)
	}
	wg.Wait()
	for _, pm := range pms {
		pm.inner.Finish()
		res.Pushed += pm.inner.Stats.ObjectsPushed
		res.Spans += pm.inner.Stats.SpansPushed
		res.Promoted += pm.inner.Stats.Promoted
		res.Survived += pm.inner.Stats.SurvivedSlots
	}
	h.EndScavenge()

	// Cross-check coverage: every ground-truth slot must lie in a
	// pushed object or element range, objects must be pushed at most
	// once, and no element range may be pushed twice.
	covered := bitarray.NewBitArray(uint64(h.YoungBottom()))
	objCount := make(map[uintptr]int)
	for _, pm := range pms {
		for _, obj := range pm.objs {
			objCount[obj]++
			h.IterateRefs(obj, func(slot, _ uintptr) {
				mustSetBit(covered, slot)
			})
		}
	}
	for obj, n := range objCount {
		if n > 1 {
			return res, fmt.Errorf("object %#x pushed %d times", obj, n)
		}
	}
	for _, pm := range pms {
		for _, sp := range pm.spans {
			lo := max(sp[1], sp[0]+1)
			hi := min(sp[2], sp[0]+h.SizeOf(sp[0]))
			for slot := lo; slot < hi; slot++ {
				if mustGetBit(covered, slot) {
					return res, fmt.Errorf("array slot %#x pushed twice", slot)
				}
				mustSetBit(covered, slot)
			}
		}
	}
	for _, slot := range truth {
		if !mustGetBit(covered, slot) {
			return res, fmt.Errorf("young ref in slot %#x never pushed", slot)
		}
	}

	// Cards shared between an object tail and the next object's head
	// are left dirty by both owners and consumed on the next scavenge.
	// Sweep them before the precise pass, which tolerates only clean
	// and youngergen cards; a young ref hiding on a swept card still
	// trips the verifier.
	for c := uintptr(0); c < t.NumCards(); c++ {
		if t.Card(c).IsDirty() {
			t.ClearCards(c, c+1)
		}
	}
	t.VerifyAllYoungRefsPrecise(h)
	return res, nil
}

// recordingPM forwards to a real promoter while keeping the raw push
// arguments for the coverage cross-check.
type recordingPM struct {
	inner *gcsim.Promoter
	objs  []uintptr
	spans [][3]uintptr
}

func (p *recordingPM) PushContents(obj uintptr) {
	p.objs = append(p.objs, obj)
	p.inner.PushContents(obj)
}

func (p *recordingPM) PushObjArrayContents(arr, l, r uintptr) {
	p.spans = append(p.spans, [3]uintptr{arr, l, r})
	p.inner.PushObjArrayContents(arr, l, r)
}

func (p *recordingPM) DrainStacksConditional() {
	p.inner.DrainStacksConditional()
}

func mustSetBit(b bitarray.BitArray, i uintptr) {
	if err := b.SetBit(uint64(i)); err != nil {
		panic(err)
	}
}

func mustGetBit(b bitarray.BitArray, i uintptr) bool {
	ok, err := b.GetBit(uint64(i))
	if err != nil {
		panic(err)
	}
	return ok
}
