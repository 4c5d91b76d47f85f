package value

// RootProvider is called during mark-roots with a mark callback; it
// should invoke mark on every Obj it considers a GC root. The VM
// registers one to mark its stack/frames/globals/open-upvalues, and the
// compiler registers one to mark the chain of ObjFunctions currently
// being compiled (spec.md §4.5 phase 1: "every function in the compiler
// chain"), since compiling can itself allocate (string and function
// constants) before the VM has ever started running.
type RootProvider func(mark func(Obj))

// HeapGrowFactor is the multiplier applied to bytesAllocated to compute
// the next collection threshold after a sweep (spec.md §4.5).
const HeapGrowFactor = 2

const initialNextGC = 1024 * 1024

// Heap is the memory manager: the precise tracing mark-sweep collector,
// the all-objects list the sweep phase walks, and the string-interning
// table every ObjString allocation consults. It is the third of the
// three "hard core" subsystems spec.md §1 calls out, factored into
// pkg/value (rather than pkg/vm) because both the VM and the compiler
// allocate objects and both must be able to trigger and survive a
// collection.
type Heap struct {
	Strings *Table

	// InitString is the interned "init" string, cached so the VM's
	// constructor-dispatch path (spec.md §4.4) never has to re-hash or
	// re-probe the interning table on every single call.
	InitString *ObjString

	objects        Obj
	bytesAllocated int
	nextGC         int

	gray []Obj

	roots []RootProvider

	// StressGC, when true, forces a collection before every single
	// allocation (spec.md §4.5's "stress" trigger), so that property
	// test #4 can compare a program's output with and without it.
	StressGC bool

	// LogCollect, when non-nil, is called once per collection cycle
	// with the bytes allocated before and after it and the new
	// threshold, driving the VM's
	// -trace-gc diagnostic output without the heap itself depending on
	// any particular logging package.
	LogCollect func(before, after, next int)
}

// NewHeap returns an empty heap with interning table ready to use.
func NewHeap() *Heap {
	h := &Heap{
		Strings: NewTable(),
		nextGC:  initialNextGC,
	}
	h.InitString = h.InternString("init")
	return h
}

// RegisterRoots adds a root provider consulted on every collection. It
// is never unregistered (the compiler's provider simply returns nothing
// once it is done compiling; see pkg/compiler).
func (h *Heap) RegisterRoots(p RootProvider) {
	h.roots = append(h.roots, p)
}

// BytesAllocated reports live heap usage, exposed for diagnostics.
func (h *Heap) BytesAllocated() int { return h.bytesAllocated }

// track links obj onto the all-objects list and charges its estimated
// size against bytesAllocated. Every allocator below calls this before
// the new object is reachable from anywhere else, satisfying spec.md
// §4.5's invariant that objects are linked before they can be captured
// by another allocation's safepoint.
func (h *Heap) track(obj Obj, size int) {
	obj.header().Next = h.objects
	h.objects = obj
	h.bytesAllocated += size
}

// collectIfNeeded runs a collection before the allocation that is about
// to happen if StressGC is set, or if the heap has grown past its
// threshold; matching spec.md §4.5's two trigger conditions.
func (h *Heap) collectIfNeeded() {
	if h.StressGC || h.bytesAllocated > h.nextGC {
		h.Collect()
	}
}

// InternString returns the canonical ObjString for chars, allocating and
// interning a new one only if an identical string isn't already known
// (spec.md §3.2's interning invariant, verified by FindString's
// content-based probe rather than address).
func (h *Heap) InternString(chars string) *ObjString {
	hash := FNV1a32(chars)
	if existing := h.Strings.FindString(chars, hash); existing != nil {
		return existing
	}
	h.collectIfNeeded()
	s := &ObjString{Chars: chars, Hash: hash}
	h.track(s, len(chars)+16)
	// The freshly allocated string must be reachable before the table
	// insert below can itself allocate (table growth), so push it as a
	// value the interning table holds directly rather than relying on
	// any stack — Table.Set never allocates an object, only a Go slice,
	// which the host collector (not this one) already tracks safely.
	h.Strings.Set(s, Bool(true))
	return s
}

// NewFunction allocates an empty, not-yet-populated ObjFunction; the
// compiler fills in Arity/UpvalueCount/Chunk/Name as it compiles the
// function body.
func (h *Heap) NewFunction() *ObjFunction {
	h.collectIfNeeded()
	fn := &ObjFunction{}
	h.track(fn, 64)
	return fn
}

// NewNative wraps a Go function as a native callable.
func (h *Heap) NewNative(name string, fn NativeFn) *ObjNative {
	h.collectIfNeeded()
	n := &ObjNative{Name: name, Fn: fn}
	h.track(n, 32)
	return n
}

// NewClosure allocates a closure over fn with an upvalue array sized to
// fn.UpvalueCount, left for OP_CLOSURE's execution to populate slot by
// slot immediately afterward (spec.md §3.2).
func (h *Heap) NewClosure(fn *ObjFunction) *ObjClosure {
	h.collectIfNeeded()
	c := &ObjClosure{Function: fn, Upvalues: make([]*ObjUpvalue, fn.UpvalueCount)}
	h.track(c, 32+8*fn.UpvalueCount)
	return c
}

// NewUpvalue allocates a fresh open upvalue pointing at location.
func (h *Heap) NewUpvalue(location *Value) *ObjUpvalue {
	h.collectIfNeeded()
	u := &ObjUpvalue{Location: location}
	h.track(u, 32)
	return u
}

// NewClass allocates an empty class with name and no methods.
func (h *Heap) NewClass(name *ObjString) *ObjClass {
	h.collectIfNeeded()
	c := &ObjClass{Name: name, Methods: NewTable()}
	h.track(c, 32)
	return c
}

// NewInstance allocates an instance of class with no fields set.
func (h *Heap) NewInstance(class *ObjClass) *ObjInstance {
	h.collectIfNeeded()
	i := &ObjInstance{Class: class, Fields: NewTable()}
	h.track(i, 32)
	return i
}

// NewBoundMethod allocates a bound method pairing receiver with method.
func (h *Heap) NewBoundMethod(receiver Value, method *ObjClosure) *ObjBoundMethod {
	h.collectIfNeeded()
	m := &ObjBoundMethod{Receiver: receiver, Method: method}
	h.track(m, 32)
	return m
}
