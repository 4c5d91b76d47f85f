package value

// Collect runs one full tracing mark-sweep cycle: mark every root, trace
// the gray worklist to black, sweep the string table of anything left
// unmarked, then sweep the all-objects list and free anything still
// unmarked, finally resetting the survivors' mark bits (spec.md §4.5).
func (h *Heap) Collect() {
	before := h.bytesAllocated

	h.markRoots()
	h.traceReferences()
	h.Strings.RemoveWhiteStrings()
	freed := h.sweep()

	h.bytesAllocated -= freed
	h.nextGC = h.bytesAllocated * HeapGrowFactor
	if h.nextGC < initialNextGC {
		h.nextGC = initialNextGC
	}

	if h.LogCollect != nil {
		h.LogCollect(before, h.bytesAllocated, h.nextGC)
	}
}

func (h *Heap) markRoots() {
	for _, provider := range h.roots {
		provider(h.markObject)
	}
}

// markObject darkens obj: if it was white, it is marked and pushed onto
// the gray worklist for traceReferences to expand later. Marking an
// already-marked object is a no-op, which is what keeps cyclic object
// graphs (a closure capturing an upvalue that points back at a local
// holding the same closure, for instance) from looping forever.
func (h *Heap) markObject(obj Obj) {
	if obj == nil {
		return
	}
	hdr := obj.header()
	if hdr.Marked {
		return
	}
	hdr.Marked = true
	h.gray = append(h.gray, obj)
}

// MarkValue marks v's object payload, if any; a no-op for non-object
// values. Exposed so callers outside this package (the VM's stack/frame
// root provider) can mark Values directly without reaching into Obj.
func (h *Heap) MarkValue(v Value) {
	if v.IsObject() {
		h.markObject(v.AsObject())
	}
}

// MarkTable marks every live key and value in t, used both as a root
// source (globals) and during tracing (class method tables, instance
// fields).
func (h *Heap) MarkTable(t *Table) {
	if t == nil {
		return
	}
	for _, k := range t.Keys() {
		h.markObject(k)
	}
	for _, v := range t.Values() {
		h.MarkValue(v)
	}
}

// traceReferences drains the gray worklist, blackening each object by
// marking everything it references (spec.md §4.5 phase 2).
func (h *Heap) traceReferences() {
	for len(h.gray) > 0 {
		obj := h.gray[len(h.gray)-1]
		h.gray = h.gray[:len(h.gray)-1]
		h.blacken(obj)
	}
}

func (h *Heap) blacken(obj Obj) {
	switch o := obj.(type) {
	case *ObjString:
		// no outgoing references
	case *ObjNative:
		// no outgoing references
	case *ObjUpvalue:
		h.MarkValue(o.Closed)
	case *ObjFunction:
		if o.Name != nil {
			h.markObject(o.Name)
		}
		for _, c := range o.Chunk.Constants {
			h.MarkValue(c)
		}
	case *ObjClosure:
		h.markObject(o.Function)
		for _, uv := range o.Upvalues {
			h.markObject(uv)
		}
	case *ObjClass:
		h.markObject(o.Name)
		h.MarkTable(o.Methods)
	case *ObjInstance:
		h.markObject(o.Class)
		h.MarkTable(o.Fields)
	case *ObjBoundMethod:
		h.MarkValue(o.Receiver)
		h.markObject(o.Method)
	}
}

// sweep walks the all-objects list, dropping anything left unmarked and
// clearing the mark bit on every survivor so the next cycle starts white
// again. Returns the estimated byte size of everything freed.
func (h *Heap) sweep() int {
	var prev Obj
	freed := 0
	obj := h.objects
	for obj != nil {
		hdr := obj.header()
		if hdr.Marked {
			hdr.Marked = false
			prev = obj
			obj = hdr.Next
			continue
		}
		unreached := obj
		obj = hdr.Next
		if prev != nil {
			prev.header().Next = obj
		} else {
			h.objects = obj
		}
		freed += sizeOf(unreached)
	}
	return freed
}

// sizeOf gives each object kind the same nominal size it was tracked
// with at allocation time; Go's own allocator (not this one) owns the
// real memory, so this only needs to be internally consistent for
// bytesAllocated bookkeeping to drive next_gc sensibly.
func sizeOf(obj Obj) int {
	switch o := obj.(type) {
	case *ObjString:
		return len(o.Chars) + 16
	case *ObjFunction:
		return 64
	case *ObjNative:
		return 32
	case *ObjClosure:
		return 32 + 8*len(o.Upvalues)
	case *ObjUpvalue:
		return 32
	case *ObjClass:
		return 32
	case *ObjInstance:
		return 32
	case *ObjBoundMethod:
		return 32
	default:
		return 16
	}
}
