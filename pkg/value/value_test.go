package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValue_Truthiness(t *testing.T) {
	assert.True(t, Nil.IsFalsey())
	assert.True(t, Bool(false).IsFalsey())
	assert.False(t, Bool(true).IsFalsey())
	assert.False(t, Number(0).IsFalsey())
	assert.False(t, Number(0).IsNil())
}

func TestValue_EqualityByTag(t *testing.T) {
	assert.True(t, Equal(Nil, Nil))
	assert.False(t, Equal(Nil, Bool(false)))
	assert.True(t, Equal(Number(1), Number(1)))
	assert.False(t, Equal(Number(1), Number(2)))
}

func TestValue_NaNNeverEqual(t *testing.T) {
	nan := Number(math.NaN())
	assert.False(t, Equal(nan, nan))
}

func TestValue_ObjectsCompareByIdentity(t *testing.T) {
	s1 := &ObjString{Chars: "hi", Hash: FNV1a32("hi")}
	s2 := &ObjString{Chars: "hi", Hash: FNV1a32("hi")}
	assert.False(t, Equal(Object(s1), Object(s2)), "distinct allocations must not compare equal even with identical bytes")
	assert.True(t, Equal(Object(s1), Object(s1)))
}

func TestHeap_InternStringDeduplicates(t *testing.T) {
	h := NewHeap()
	a := h.InternString("hello")
	b := h.InternString("hello")
	assert.Same(t, a, b, "two interns of the same bytes must yield the same object")

	c := h.InternString("world")
	assert.NotSame(t, a, c)
}

func TestHeap_CollectFreesUnreachableStrings(t *testing.T) {
	h := NewHeap()
	h.InternString("garbage")
	assert.Equal(t, 2, h.Strings.Count()) // "garbage" plus NewHeap's cached "init"

	h.Collect() // no roots registered, so nothing survives
	assert.Equal(t, 0, h.Strings.Count())
}

func TestHeap_CollectKeepsRootedObjects(t *testing.T) {
	h := NewHeap()
	kept := h.InternString("kept")
	h.InternString("garbage")

	h.RegisterRoots(func(mark func(Obj)) {
		mark(kept)
	})

	h.Collect()
	assert.Equal(t, 1, h.Strings.Count())
	found := h.Strings.FindString("kept", FNV1a32("kept"))
	assert.Same(t, kept, found)
}
