package value

import "fmt"

// ObjKind tags the concrete heap object kind, mirroring spec.md §3.2's
// table of eight reference-typed kinds.
type ObjKind byte

const (
	ObjStringKind ObjKind = iota
	ObjFunctionKind
	ObjNativeKind
	ObjClosureKind
	ObjUpvalueKind
	ObjClassKind
	ObjInstanceKind
	ObjBoundMethodKind
)

// Obj is implemented by every heap object kind. Every implementation
// embeds Header so the GC can mark it and thread it onto the VM's
// all-objects list without a type switch at allocation time; Kind is
// still exposed for the tracing/sweep phases, which must behave
// differently per variant.
type Obj interface {
	Kind() ObjKind
	String() string
	header() *Header
}

// Header is the shared object prefix every heap object embeds: the mark
// bit used by the tracing collector, and the intrusive link to the next
// object in the VM's all-objects list (used by the sweep phase to walk
// every live allocation). This stands in for the source's embedded Obj
// struct used to fake inheritance in C.
type Header struct {
	Marked bool
	Next   Obj
}

func (h *Header) header() *Header { return h }

// Mark sets the object's mark bit; ObjString and ObjNative need no
// further tracing (they have no outgoing references), every other kind's
// Mark is driven externally by the GC tracer walking their fields.
func (h *Header) Mark() { h.Marked = true }

// Unmark clears the mark bit, done to every surviving object at the end
// of a sweep so the next cycle starts white again.
func (h *Header) Unmark() { h.Marked = false }

// ObjString is an interned, immutable byte string. At most one ObjString
// exists per distinct byte sequence, reachable through the VM's strings
// table (spec.md §3.2).
type ObjString struct {
	Header
	Chars string
	Hash  uint32
}

func (s *ObjString) Kind() ObjKind { return ObjStringKind }
func (s *ObjString) String() string { return s.Chars }

// FNV1a32 computes the 32-bit FNV-1a hash spec.md §3.2 requires for
// string identity.
func FNV1a32(s string) uint32 {
	const (
		offset = 2166136261
		prime  = 16777619
	)
	h := uint32(offset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}

// ObjFunction is a compiled function: its arity, how many upvalues its
// closures must capture, its owned chunk of bytecode, and an optional
// name (nil for the implicit top-level script function). Immutable once
// the compiler's endFunc has run.
type ObjFunction struct {
	Header
	Arity        int
	UpvalueCount int
	Chunk        Chunk
	Name         *ObjString
}

func (f *ObjFunction) Kind() ObjKind { return ObjFunctionKind }
func (f *ObjFunction) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", f.Name.Chars)
}

// NativeFn is a native (Go-implemented) callable: it takes a slice of the
// call's arguments (its length is the argument count), returning a value
// or an error message. Arity checking is left to the callee per spec.md §3.2.
type NativeFn func(args []Value) (Value, error)

// ObjNative wraps a native Go function as a callable L value.
type ObjNative struct {
	Header
	Name string
	Fn   NativeFn
}

func (n *ObjNative) Kind() ObjKind   { return ObjNativeKind }
func (n *ObjNative) String() string { return fmt.Sprintf("<native fn %s>", n.Name) }

// ObjUpvalue references a captured variable. While the upvalue is "open",
// Location points into a live VM stack slot; once closed, Location points
// at Closed, which the upvalue itself owns.
// Next threads the VM's open-upvalue list, kept sorted by descending
// stack-slot address (spec.md §4.4).
type ObjUpvalue struct {
	Header
	Location *Value
	Closed   Value
	Next     *ObjUpvalue
}

func (u *ObjUpvalue) Kind() ObjKind   { return ObjUpvalueKind }
func (u *ObjUpvalue) String() string { return "<upvalue>" }

// Close copies the referenced value into the upvalue's own cell and
// repoints Location at it, disconnecting the upvalue from the VM stack.
func (u *ObjUpvalue) Close() {
	u.Closed = *u.Location
	u.Location = &u.Closed
}

// ObjClosure wraps a function together with the upvalue array its body
// references. The array is allocated with exactly Function.UpvalueCount
// slots and filled in immediately after OP_CLOSURE allocates the
// closure, before any code can observe a partially-populated one.
type ObjClosure struct {
	Header
	Function *ObjFunction
	Upvalues []*ObjUpvalue
}

func (c *ObjClosure) Kind() ObjKind   { return ObjClosureKind }
func (c *ObjClosure) String() string { return c.Function.String() }

// ObjClass is a class: its name and its method table, keyed by interned
// method name. Single inheritance is modeled by copy-down: OP_INHERIT
// copies every entry of the superclass's Methods table into the
// subclass's at class-creation time (spec.md §9, supplemented per
// SPEC_FULL.md §7), so method lookup never needs to walk a superclass
// chain at call time.
type ObjClass struct {
	Header
	Name    *ObjString
	Methods *Table
}

func (c *ObjClass) Kind() ObjKind   { return ObjClassKind }
func (c *ObjClass) String() string { return c.Name.Chars }

// ObjInstance is an instance of a class. Fields are added dynamically on
// first assignment; there is no declared field list.
type ObjInstance struct {
	Header
	Class  *ObjClass
	Fields *Table
}

func (i *ObjInstance) Kind() ObjKind   { return ObjInstanceKind }
func (i *ObjInstance) String() string { return fmt.Sprintf("%s instance", i.Class.Name.Chars) }

// ObjBoundMethod pairs a receiver with the method closure looked up on
// it; binding happens at property-access time (spec.md §4.4), capturing
// "this" then rather than at call time.
type ObjBoundMethod struct {
	Header
	Receiver Value
	Method   *ObjClosure
}

func (m *ObjBoundMethod) Kind() ObjKind   { return ObjBoundMethodKind }
func (m *ObjBoundMethod) String() string { return m.Method.String() }
