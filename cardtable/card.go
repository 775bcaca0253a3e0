// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cardtable

// A CardValue is one byte of the card table. It summarizes the
// generational state of the CardSizeInWords heap words the card covers.
type CardValue byte

const (
	// dirtyCard marks a card whose words may hold a young-pointing
	// reference recorded by the write barrier.
	dirtyCard CardValue = 0x00

	// youngergenCard marks a card holding a reference that still points
	// into the young generation after a scavenge.
	youngergenCard CardValue = 0x03

	// verifyCard only appears between the two passes of the precise
	// verifier. It must not be observable outside it.
	verifyCard CardValue = 0x07

	// cleanCard marks a card with no known young-pointing reference.
	cleanCard CardValue = 0xff
)

func (v CardValue) IsClean() bool      { return v == cleanCard }
func (v CardValue) IsDirty() bool      { return v == dirtyCard }
func (v CardValue) IsYoungergen() bool { return v == youngergenCard }
func (v CardValue) IsVerify() bool     { return v == verifyCard }

// IsMarkedImprecise reports whether the card records a possible
// young-pointing reference somewhere in its region.
func (v CardValue) IsMarkedImprecise() bool {
	return v.IsDirty() || v.IsYoungergen()
}
