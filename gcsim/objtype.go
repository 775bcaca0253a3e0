// Copyright 2025 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcsim

// An ObjType describes the reference layout of simulated objects.
// Ordinary types carry a pointer mask with one bit per payload word.
// Object array types have no mask: every payload word is a reference
// slot.
type ObjType struct {
	Name     string
	ObjArray bool
	PtrMask  []byte
}

// NewType returns an ordinary object type whose payload reference slots
// are given by ptrMask, one bit per payload word. A nil mask means the
// type holds no references.
func NewType(name string, ptrMask []byte) *ObjType {
	return &ObjType{Name: name, PtrMask: ptrMask}
}

// NewArrayType returns an object array type.
func NewArrayType(name string) *ObjType {
	return &ObjType{Name: name, ObjArray: true}
}

// maxPayloadWords returns the largest payload an instance of t may
// have, or ^uintptr(0) if unbounded.
func (t *ObjType) maxPayloadWords() uintptr {
	if t.ObjArray || t.PtrMask == nil {
		return ^uintptr(0)
	}
	return uintptr(len(t.PtrMask)) * 8
}

// isPtr reports whether payload word i of an instance of t is a
// reference slot.
func (t *ObjType) isPtr(i uintptr) bool {
	if t.ObjArray {
		return true
	}
	if t.PtrMask == nil || i >= uintptr(len(t.PtrMask))*8 {
		return false
	}
	return t.PtrMask[i/8]&(1<<(i%8)) != 0
}
