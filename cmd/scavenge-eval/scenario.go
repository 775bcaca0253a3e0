// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import "math/rand/v2"

var Scenarios = []Scenario{
	{
		Name:         "SparseSmallObjects",
		Threads:      4,
		OldCards:     1024,
		YoungCards:   256,
		ObjMinWords:  3,
		ObjMaxWords:  24,
		YoungRefFrac: 0.02,
	},
	{
		Name:         "DenseRefs",
		Threads:      4,
		OldCards:     1024,
		YoungCards:   512,
		ObjMinWords:  3,
		ObjMaxWords:  48,
		YoungRefFrac: 0.30,
	},
	{
		Name:            "LargeArrays",
		Threads:         8,
		OldCards:        2048,
		YoungCards:      512,
		ObjMinWords:     3,
		ObjMaxWords:     32,
		LargeArrays:     6,
		LargeArrayCards: 48,
		YoungRefFrac:    0.10,
	},
	{
		Name:             "MixedPromotion",
		Threads:          4,
		OldCards:         1024,
		YoungCards:       512,
		ObjMinWords:      3,
		ObjMaxWords:      32,
		LargeArrays:      2,
		LargeArrayCards:  32,
		YoungRefFrac:     0.15,
		SurvivorMinWords: 16,
	},
	{
		Name:         "HugeObjects",
		Threads:      4,
		OldCards:     1024,
		YoungCards:   256,
		ObjMinWords:  64,
		ObjMaxWords:  512,
		YoungRefFrac: 0.05,
	},
}

// A Scenario describes one randomized heap shape to scavenge. Sizes are
// in cards (512 bytes) and words.
type Scenario struct {
	Name    string
	Threads int

	OldCards   uintptr // mutator-allocatable old gen
	YoungCards uintptr

	ObjMinWords, ObjMaxWords uintptr

	LargeArrays     int     // number of large object arrays mixed in
	LargeArrayCards uintptr // size of each, in cards

	// YoungRefFrac is the probability that a reference slot is set to
	// point at a young object, dirtying its card.
	YoungRefFrac float64

	// SurvivorMinWords holds back young objects of at least this size
	// from promotion. Zero promotes everything.
	SurvivorMinWords uintptr
}

// buildRefMask returns a pointer mask marking every other payload word,
// wide enough for maxWords-sized objects.
func buildRefMask(maxWords uintptr) []byte {
	mask := make([]byte, (maxWords+7)/8)
	for i := uintptr(0); i < maxWords; i += 2 {
		mask[i/8] |= 1 << (i % 8)
	}
	return mask
}

func (s Scenario) objWords(r *rand.Rand) uintptr {
	if s.ObjMaxWords <= s.ObjMinWords {
		return s.ObjMinWords
	}
	return s.ObjMinWords + uintptr(r.Uint64N(uint64(s.ObjMaxWords-s.ObjMinWords)))
}
