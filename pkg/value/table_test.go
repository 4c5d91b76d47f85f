package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_SetGetDelete(t *testing.T) {
	tbl := NewTable()
	a := &ObjString{Chars: "a", Hash: FNV1a32("a")}
	b := &ObjString{Chars: "b", Hash: FNV1a32("b")}

	isNew := tbl.Set(a, Number(1))
	assert.True(t, isNew)
	isNew = tbl.Set(a, Number(2))
	assert.False(t, isNew)

	v, ok := tbl.Get(a)
	require.True(t, ok)
	assert.Equal(t, 2.0, v.AsNumber())

	_, ok = tbl.Get(b)
	assert.False(t, ok)

	assert.True(t, tbl.Delete(a))
	_, ok = tbl.Get(a)
	assert.False(t, ok)
	assert.False(t, tbl.Delete(a))
}

func TestTable_TombstoneKeepsProbeChainIntact(t *testing.T) {
	tbl := NewTable()
	// Craft two keys whose hashes collide at the table's initial
	// capacity (8) so that deleting the first one and probing past it
	// for the second is actually exercised.
	k1 := &ObjString{Chars: "k1", Hash: 0}
	k2 := &ObjString{Chars: "k2", Hash: 8}

	tbl.Set(k1, Number(1))
	tbl.Set(k2, Number(2))
	assert.True(t, tbl.Delete(k1))

	v, ok := tbl.Get(k2)
	require.True(t, ok)
	assert.Equal(t, 2.0, v.AsNumber())
}

func TestTable_GrowDropsTombstones(t *testing.T) {
	tbl := NewTable()
	keys := make([]*ObjString, 0, 20)
	for i := 0; i < 20; i++ {
		s := string(rune('a' + i))
		k := &ObjString{Chars: s, Hash: FNV1a32(s)}
		keys = append(keys, k)
		tbl.Set(k, Number(float64(i)))
	}
	for i := 0; i < 10; i++ {
		tbl.Delete(keys[i])
	}
	assert.Equal(t, 10, tbl.Count())
	for i := 10; i < 20; i++ {
		v, ok := tbl.Get(keys[i])
		require.True(t, ok)
		assert.Equal(t, float64(i), v.AsNumber())
	}

	// Capacity is 32 (grow threshold 24 live entries), so the 15th insert
	// below grows the table; the rebuild must leave no tombstones behind.
	for i := 20; i < 35; i++ {
		s := string(rune('a' + i))
		tbl.Set(&ObjString{Chars: s, Hash: FNV1a32(s)}, Number(float64(i)))
	}
	assert.Equal(t, 25, tbl.Count())
	for _, e := range tbl.entries {
		assert.False(t, e.tombstone)
	}
}

func TestTable_FindString(t *testing.T) {
	tbl := NewTable()
	s := &ObjString{Chars: "hello", Hash: FNV1a32("hello")}
	tbl.Set(s, Bool(true))

	found := tbl.FindString("hello", FNV1a32("hello"))
	assert.Same(t, s, found)

	assert.Nil(t, tbl.FindString("nope", FNV1a32("nope")))
}
