// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcsim_test

import (
	"fmt"
	"testing"

	"github.com/mknyszek/scavenge-eval/cardtable"
	"github.com/mknyszek/scavenge-eval/gcsim"
)

func newHeap() *gcsim.Heap {
	return gcsim.NewHeap(gcsim.Config{
		OldWords:   64 * 64,
		LabWords:   16 * 64,
		YoungWords: 16 * 64,
		Table:      cardtable.Config{CardSizeInWords: 64, NumCardsInStripe: 4},
	})
}

func TestAllocAndHeaders(t *testing.T) {
	h := newHeap()
	scalar := h.RegisterType(gcsim.NewType("scalar", nil))
	node := h.RegisterType(gcsim.NewType("node", []byte{0b101}))
	arr := h.RegisterType(gcsim.NewArrayType("objarray"))

	for _, tc := range []struct {
		typ  *gcsim.ObjType
		size uintptr
	}{
		{scalar, 1},
		{scalar, 17},
		{node, 4},
		{arr, 130},
	} {
		t.Run(fmt.Sprintf("%s/size=%d", tc.typ.Name, tc.size), func(t *testing.T) {
			obj := h.AllocOld(tc.typ, tc.size)
			if got := h.SizeOf(obj); got != tc.size {
				t.Errorf("SizeOf = %d, want %d", got, tc.size)
			}
			if got := h.TypeOf(obj); got != tc.typ {
				t.Errorf("TypeOf = %v, want %v", got, tc.typ)
			}
			if got := h.IsObjArray(obj); got != tc.typ.ObjArray {
				t.Errorf("IsObjArray = %t", got)
			}
		})
	}
}

func TestAllocOverMaskPanics(t *testing.T) {
	h := newHeap()
	node := h.RegisterType(gcsim.NewType("node", []byte{0x01})) // 8 payload words max
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for object larger than its pointer mask")
		}
	}()
	h.AllocOld(node, 32)
}

func TestStartArray(t *testing.T) {
	h := newHeap()
	scalar := h.RegisterType(gcsim.NewType("scalar", nil))
	a := h.AllocOld(scalar, 100)
	b := h.AllocOld(scalar, 3)
	c := h.AllocOld(scalar, 64)

	sa := h.Starts()
	for _, tc := range []struct {
		addr, want uintptr
	}{
		{a, a}, {a + 99, a},
		{b, b}, {b + 2, b},
		{c, c}, {c + 63, c},
	} {
		if got := sa.ObjectStart(tc.addr); got != tc.want {
			t.Errorf("ObjectStart(%#x) = %#x, want %#x", tc.addr, got, tc.want)
		}
	}
	if !sa.ObjectStartsInRange(a, c+1) {
		t.Error("ObjectStartsInRange over all objects = false")
	}
	if sa.ObjectStartsInRange(a+1, b) {
		t.Error("ObjectStartsInRange inside a single object = true")
	}
}

func TestWriteBarrier(t *testing.T) {
	h := newHeap()
	scalar := h.RegisterType(gcsim.NewType("scalar", nil))
	node := h.RegisterType(gcsim.NewType("node", []byte{0xff}))
	obj := h.AllocOld(node, 9)
	y := h.AllocYoung(scalar, 7)

	ct := h.Table()
	slot := h.SlotAddr(obj, 3)
	if !ct.Card(ct.CardFor(slot)).IsClean() {
		t.Fatal("card dirty before any store")
	}
	h.SetRef(slot, y)
	if got := h.Ref(slot); got != y {
		t.Fatalf("Ref = %#x, want %#x", got, y)
	}
	if !ct.Card(ct.CardFor(slot)).IsDirty() {
		t.Fatal("store into old gen did not dirty the slot card")
	}

	// Stores into young gen leave the card table alone.
	yn := h.AllocYoung(node, 9)
	h.SetRef(h.SlotAddr(yn, 0), y)
	for c := uintptr(0); c < ct.NumCards(); c++ {
		if c != ct.CardFor(slot) && !ct.Card(c).IsClean() {
			t.Fatalf("young-gen store touched card %d", c)
		}
	}
}

func TestIterateRefs(t *testing.T) {
	h := newHeap()
	node := h.RegisterType(gcsim.NewType("node", []byte{0b101})) // payload words 0 and 2
	arr := h.RegisterType(gcsim.NewArrayType("objarray"))

	obj := h.AllocOld(node, 4)
	var slots []uintptr
	h.IterateRefs(obj, func(slot, _ uintptr) { slots = append(slots, slot) })
	if len(slots) != 2 || slots[0] != obj+1 || slots[1] != obj+3 {
		t.Fatalf("node ref slots = %#v", slots)
	}

	a := h.AllocOld(arr, 5)
	slots = slots[:0]
	h.IterateRefs(a, func(slot, _ uintptr) { slots = append(slots, slot) })
	if len(slots) != 4 || slots[0] != a+1 || slots[3] != a+4 {
		t.Fatalf("array ref slots = %#v", slots)
	}
}

func TestIterateOldObjects(t *testing.T) {
	h := newHeap()
	scalar := h.RegisterType(gcsim.NewType("scalar", nil))
	want := []uintptr{
		h.AllocOld(scalar, 5),
		h.AllocOld(scalar, 77),
		h.AllocOld(scalar, 1),
		h.AllocOld(scalar, 640),
	}
	var got []uintptr
	h.IterateOldObjects(func(obj uintptr) { got = append(got, obj) })
	if len(got) != len(want) {
		t.Fatalf("walked %d objects, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("object %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestIsInYoung(t *testing.T) {
	h := newHeap()
	scalar := h.RegisterType(gcsim.NewType("scalar", nil))
	o := h.AllocOld(scalar, 8)
	y := h.AllocYoung(scalar, 8)
	if h.IsInYoung(o) {
		t.Error("old object reported young")
	}
	if !h.IsInYoung(y) {
		t.Error("young object reported old")
	}
	if h.IsInYoung(0) {
		t.Error("nil reported young")
	}
}
