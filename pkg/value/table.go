package value

// Table is the open-addressing hash table shared by every keyed
// structure in the VM: the string-interning set, the globals table,
// instance field storage, and class method tables (spec.md §3.4). Every
// key is an interned *ObjString, so two tables never need to compare key
// bytes to decide whether two keys are "the same" — pointer identity is
// enough, except in FindString, which exists precisely to establish that
// identity for a byte sequence that hasn't been interned yet.
//
// Growth is geometric (doubled capacity) once the load factor, counting
// live entries only, would exceed 0.75; tombstones do not count toward
// it. Deletion leaves a tombstone (key=nil, value=true) rather than a
// true empty slot, so that probe chains past a deleted entry stay
// intact; tombstones are reused by later inserts on the same probe path
// and are all dropped when the table grows. When live entries plus
// tombstones would exceed the load factor but live entries alone would
// not, the table is rebuilt at its current capacity instead, so a truly
// empty slot always remains to end every probe.
type Table struct {
	entries []entry
	count   int // live entries, NOT counting tombstones
	used    int // slots holding a live entry or a tombstone
}

type entry struct {
	key   *ObjString
	value Value
	// tombstone is true for a deleted slot (key == nil, value == true in
	// spec.md's terms); an empty never-used slot has key == nil and
	// tombstone == false.
	tombstone bool
}

const maxLoad = 0.75

// NewTable returns an empty table with no backing storage yet; the first
// insert allocates it.
func NewTable() *Table {
	return &Table{}
}

// Count returns the number of live (non-tombstone) entries.
func (t *Table) Count() int { return t.count }

// Get looks up key, returning its value and whether it was found. Probing
// stops at the first truly empty (non-tombstone) slot.
func (t *Table) Get(key *ObjString) (Value, bool) {
	if len(t.entries) == 0 {
		return Value{}, false
	}
	e := t.find(key)
	if e.key == nil {
		return Value{}, false
	}
	return e.value, true
}

// Set inserts or updates key's value, growing the backing array first if
// the load factor would otherwise exceed 0.75. Returns true if this
// created a brand new key (as opposed to overwriting an existing one).
func (t *Table) Set(key *ObjString, val Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*maxLoad {
		t.grow(growCapacity(len(t.entries)))
	} else if float64(t.used+1) > float64(len(t.entries))*maxLoad {
		t.grow(len(t.entries))
	}
	e := t.find(key)
	isNew := e.key == nil
	if isNew {
		t.count++
		if !e.tombstone {
			t.used++
		}
	}
	e.key = key
	e.value = val
	e.tombstone = false
	return isNew
}

// Delete tombstones key's slot if present, returning whether it was
// found. Tombstoning rather than clearing the slot keeps later probes
// able to walk past it to whatever collided with it originally.
func (t *Table) Delete(key *ObjString) bool {
	if len(t.entries) == 0 {
		return false
	}
	e := t.find(key)
	if e.key == nil {
		return false
	}
	e.key = nil
	e.value = Bool(true)
	e.tombstone = true
	t.count--
	return true
}

// AddAll copies every live entry of src into t, used by OP_INHERIT to
// copy a superclass's method table down into a subclass (spec.md §9 /
// SPEC_FULL.md §7's copy-down inheritance model).
func (t *Table) AddAll(src *Table) {
	for _, e := range src.entries {
		if e.key != nil {
			t.Set(e.key, e.value)
		}
	}
}

// find locates key's slot by linear probing from hash mod capacity,
// returning the first matching occupied slot or, failing that, the
// earliest tombstone seen so inserts reuse deleted slots instead of
// growing the probe chain further.
func (t *Table) find(key *ObjString) *entry {
	capacity := len(t.entries)
	idx := int(key.Hash) % capacity
	var tombstone *entry
	for {
		e := &t.entries[idx]
		switch {
		case e.key == nil:
			if !e.tombstone {
				if tombstone != nil {
					return tombstone
				}
				return e
			}
			if tombstone == nil {
				tombstone = e
			}
		case e.key == key:
			return e
		}
		idx = (idx + 1) % capacity
	}
}

// FindString is the interning probe: given raw byte content, it locates
// an already-interned ObjString with the same length, hash, and bytes,
// regardless of its address, so the caller can reuse it instead of
// allocating a duplicate (spec.md §3.4's "String interning lookup").
func (t *Table) FindString(chars string, hash uint32) *ObjString {
	if len(t.entries) == 0 {
		return nil
	}
	capacity := len(t.entries)
	idx := int(hash) % capacity
	for {
		e := &t.entries[idx]
		switch {
		case e.key == nil:
			if !e.tombstone {
				return nil
			}
		case e.key.Hash == hash && e.key.Chars == chars:
			return e.key
		}
		idx = (idx + 1) % capacity
	}
}

// RemoveWhiteStrings implements the GC's weak-table sweep over the
// string-interning table (spec.md §4.5 phase 3): any interned string
// whose mark bit is clear is unreachable from anywhere else and gets
// dropped from the table so it can actually be freed in the following
// sweep phase.
func (t *Table) RemoveWhiteStrings() {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil && !e.key.Marked {
			e.key = nil
			e.value = Bool(true)
			e.tombstone = true
			t.count--
		}
	}
}

// Keys returns every live key, used for root enumeration of class method
// tables and instance fields during GC tracing.
func (t *Table) Keys() []*ObjString {
	keys := make([]*ObjString, 0, t.count)
	for _, e := range t.entries {
		if e.key != nil {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Values returns every live value, used alongside Keys by GC tracing.
func (t *Table) Values() []Value {
	vals := make([]Value, 0, t.count)
	for _, e := range t.entries {
		if e.key != nil {
			vals = append(vals, e.value)
		}
	}
	return vals
}

func growCapacity(capacity int) int {
	if capacity < 8 {
		return 8
	}
	return capacity * 2
}

// grow rebuilds the table at newCapacity, dropping every tombstone in the
// process (spec.md §3.4: "on grow, rebuild (tombstones dropped)").
func (t *Table) grow(newCapacity int) {
	old := t.entries
	t.entries = make([]entry, newCapacity)
	t.count = 0
	for _, e := range old {
		if e.key == nil {
			continue
		}
		dst := t.find(e.key)
		dst.key = e.key
		dst.value = e.value
		t.count++
	}
	t.used = t.count
}
