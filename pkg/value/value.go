// Package value implements the tagged value representation, the heap
// object model, and the open-addressing hash table shared by strings,
// globals, instance fields, and class method tables.
//
// Design note: the source this is ported from models heap objects via
// struct inheritance (an Obj header embedded as every object's first
// field) and reads/writes values through a raw tagged union. Go has
// neither inheritance nor untagged unions, so objects here are a sum type
// over the eight heap-object kinds (ObjString, ObjFunction, ObjNative,
// ObjClosure, ObjUpvalue, ObjClass, ObjInstance, ObjBoundMethod), each
// embedding a shared Header, and satisfying the Obj interface; a type
// switch stands in for the C code's tag-and-downcast dance.
package value

import (
	"math"
)

// Kind tags a Value's variant.
type Kind byte

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindObject
)

// Value is a tagged union of the four value variants in spec.md §3.1: Nil,
// Bool, Number, and Object (a non-nil heap reference). It is a small value
// type copied by assignment, the same way the source passes its Value
// struct by value.
type Value struct {
	kind Kind
	num  float64
	b    bool
	obj  Obj
}

// Nil is the singleton unit value.
var Nil = Value{kind: KindNil}

// Bool constructs a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number constructs a numeric Value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Object constructs a Value wrapping a heap object reference. obj must not
// be nil; there is no "null object" — nil-ness is represented by KindNil.
func Object(obj Obj) Value { return Value{kind: KindObject, obj: obj} }

func (v Value) IsNil() bool    { return v.kind == KindNil }
func (v Value) IsBool() bool   { return v.kind == KindBool }
func (v Value) IsNumber() bool { return v.kind == KindNumber }
func (v Value) IsObject() bool { return v.kind == KindObject }

func (v Value) AsBool() bool     { return v.b }
func (v Value) AsNumber() float64 { return v.num }
func (v Value) AsObject() Obj    { return v.obj }

// IsFalsey reports whether v is falsey: nil and false are falsey, every
// other value (including 0 and "") is truthy.
func (v Value) IsFalsey() bool {
	return v.kind == KindNil || (v.kind == KindBool && !v.b)
}

// Equal implements spec.md §3.1 value equality: same-tag comparison,
// numbers by IEEE bit-for-bit compare (so NaN != NaN), and objects
// (including strings, which are interned) by reference identity.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNil:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.num == b.num
	case KindObject:
		return a.obj == b.obj
	default:
		return false
	}
}

// IsNaN reports whether v is the numeric NaN, useful for callers that need
// to special-case it explicitly rather than relying on Equal's built-in
// IEEE semantics.
func (v Value) IsNaN() bool {
	return v.kind == KindNumber && math.IsNaN(v.num)
}
