// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cardtable

import "testing"

func TestPreciseHelperDowngradesVerify(t *testing.T) {
	ct := newTestTable(16)
	ct.cards[10] = verifyCard
	ct.verifyAllYoungRefsPreciseHelper(ct.AddrFor(8), ct.AddrFor(13))
	for c := uintptr(0); c < 16; c++ {
		want := cleanCard
		if c == 10 {
			want = youngergenCard
		}
		if got := ct.cards[c]; got != want {
			t.Errorf("card %d = %#x, want %#x", c, byte(got), byte(want))
		}
	}
}

func TestPreciseHelperRejectsDirty(t *testing.T) {
	ct := newTestTable(16)
	ct.cards[9] = dirtyCard
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on dirty card in swept region")
		}
	}()
	ct.verifyAllYoungRefsPreciseHelper(ct.AddrFor(8), ct.AddrFor(13))
}

func TestPreciseHelperIgnoresCardsOutsideRegion(t *testing.T) {
	ct := newTestTable(16)
	ct.cards[2] = dirtyCard // outside the swept region
	ct.verifyAllYoungRefsPreciseHelper(ct.AddrFor(8), ct.AddrFor(13))
	if !ct.cards[2].IsDirty() {
		t.Fatal("card outside region was touched")
	}
}

func TestCardPredicates(t *testing.T) {
	for _, tc := range []struct {
		v                                     CardValue
		clean, dirty, younger, verify, imprec bool
	}{
		{cleanCard, true, false, false, false, false},
		{dirtyCard, false, true, false, false, true},
		{youngergenCard, false, false, true, false, true},
		{verifyCard, false, false, false, true, false},
	} {
		if tc.v.IsClean() != tc.clean || tc.v.IsDirty() != tc.dirty ||
			tc.v.IsYoungergen() != tc.younger || tc.v.IsVerify() != tc.verify {
			t.Errorf("predicates disagree for card value %#x", byte(tc.v))
		}
		if tc.v.IsMarkedImprecise() != tc.imprec {
			t.Errorf("IsMarkedImprecise(%#x) = %t, want %t", byte(tc.v), tc.v.IsMarkedImprecise(), tc.imprec)
		}
	}
}

func TestAddrMarkedPanicsOnUnknownValue(t *testing.T) {
	ct := newTestTable(16)
	ct.cards[1] = CardValue(0x42)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on unknown card value")
		}
	}()
	ct.AddrIsMarkedImprecise(ct.AddrFor(1))
}
