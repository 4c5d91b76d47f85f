// Package vm implements lumen's bytecode virtual machine: a stack-based
// interpreter executing the Chunks produced by pkg/compiler (spec.md
// §4.4). It is the final stage of the pipeline:
//
//	source -> pkg/lexer -> pkg/compiler -> pkg/value.Chunk -> vm -> execution
//
// Dispatch is a tight switch-per-opcode loop inside the current
// CallFrame; the instruction pointer is always re-read from that frame
// after any op that pushes or pops one (OP_CALL, OP_RETURN).
package vm

import (
	"fmt"
	"io"
	"os"
	"unsafe"

	"github.com/kristofer/lumen/pkg/value"
)

const (
	framesMax = 64
	stackMax  = framesMax * 256
)

// CallFrame is one activation record: the closure being executed, its
// instruction pointer, and the base index into the VM's value stack
// where its locals begin (spec.md §3.5/§4.4).
type CallFrame struct {
	closure   *value.ObjClosure
	ip        int
	slotsBase int
}

// VM holds all state for one interpretation session: the value stack,
// the call-frame stack, globals, and the open-upvalue list. Exactly one
// VM and one compiler are ever active at a time (spec.md §5).
type VM struct {
	heap *value.Heap

	stack []value.Value

	frames     [framesMax]CallFrame
	frameCount int

	globals      *value.Table
	openUpvalues *value.ObjUpvalue

	Stdout io.Writer
	// Trace, when set, writes one disassembled line per executed
	// instruction — the execution-trace counterpart to the teacher's
	// interactive breakpoint debugger (see the trace step at the top of
	// run).
	Trace io.Writer
}

// New creates a VM bound to heap, registers its GC root provider, wires
// the baseline native functions, and readies an empty stack.
func New(heap *value.Heap) *VM {
	// stack is preallocated to its full capacity and never reallocated
	// for the lifetime of this VM: open upvalues hold raw pointers into
	// its backing array (captureUpvalue/closeUpvalues), which append
	// would silently invalidate if it ever had to grow. framesMax frames
	// of at most maxLocals compiler-enforced locals each bound the
	// worst case to exactly stackMax.
	vm := &VM{
		heap:    heap,
		stack:   make([]value.Value, 0, stackMax),
		globals: value.NewTable(),
		Stdout:  os.Stdout,
	}
	heap.RegisterRoots(vm.markRoots)
	vm.defineNatives()
	return vm
}

// markRoots is the VM's GC root provider (spec.md §4.5 phase 1): every
// stack value, every live frame's closure, the open-upvalue chain, and
// the globals table.
func (vm *VM) markRoots(mark func(value.Obj)) {
	for _, v := range vm.stack {
		vm.heap.MarkValue(v)
	}
	for i := 0; i < vm.frameCount; i++ {
		mark(vm.frames[i].closure)
	}
	for uv := vm.openUpvalues; uv != nil; uv = uv.Next {
		mark(uv)
	}
	vm.heap.MarkTable(vm.globals)
	if vm.heap.InitString != nil {
		mark(vm.heap.InitString)
	}
}

// Interpret runs fn (normally the top-level script ObjFunction returned
// by compiler.Compile) to completion, returning a *RuntimeError if
// execution aborted.
func (vm *VM) Interpret(fn *value.ObjFunction) error {
	vm.stack = vm.stack[:0]
	vm.frameCount = 0
	vm.openUpvalues = nil

	vm.push(value.Object(fn)) // keep fn rooted while the closure is allocated
	closure := vm.heap.NewClosure(fn)
	vm.pop()
	vm.push(value.Object(closure))
	if err := vm.call(closure, 0); err != nil {
		return err
	}
	return vm.run()
}

func (vm *VM) push(v value.Value) { vm.stack = append(vm.stack, v) }

func (vm *VM) pop() value.Value {
	n := len(vm.stack) - 1
	v := vm.stack[n]
	vm.stack = vm.stack[:n]
	return v
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[len(vm.stack)-1-distance]
}

func (vm *VM) frame() *CallFrame { return &vm.frames[vm.frameCount-1] }

func (f *CallFrame) readByte() byte {
	b := f.closure.Function.Chunk.Code[f.ip]
	f.ip++
	return b
}

func (f *CallFrame) readShort() int {
	hi := f.closure.Function.Chunk.Code[f.ip]
	lo := f.closure.Function.Chunk.Code[f.ip+1]
	f.ip += 2
	return int(hi)<<8 | int(lo)
}

func (f *CallFrame) readConstant() value.Value {
	return f.closure.Function.Chunk.Constants[f.readByte()]
}

// run is the main fetch-decode-execute loop.
func (vm *VM) run() error {
	frame := vm.frame()

	for {
		if vm.Trace != nil {
			_, line := frame.closure.Function.Chunk.DisassembleInstruction(frame.ip)
			fmt.Fprintln(vm.Trace, line)
		}

		op := value.OpCode(frame.readByte())
		switch op {
		case value.OpConstant:
			vm.push(frame.readConstant())

		case value.OpNil:
			vm.push(value.Nil)
		case value.OpTrue:
			vm.push(value.Bool(true))
		case value.OpFalse:
			vm.push(value.Bool(false))

		case value.OpPop:
			vm.pop()

		case value.OpGetLocal:
			slot := frame.readByte()
			vm.push(vm.stack[frame.slotsBase+int(slot)])
		case value.OpSetLocal:
			slot := frame.readByte()
			vm.stack[frame.slotsBase+int(slot)] = vm.peek(0)

		case value.OpGetGlobal:
			name := frame.readConstant().AsObject().(*value.ObjString)
			v, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.push(v)
		case value.OpDefineGlobal:
			name := frame.readConstant().AsObject().(*value.ObjString)
			vm.globals.Set(name, vm.peek(0))
			vm.pop()
		case value.OpSetGlobal:
			name := frame.readConstant().AsObject().(*value.ObjString)
			if vm.globals.Set(name, vm.peek(0)) {
				vm.globals.Delete(name)
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}

		case value.OpGetUpvalue:
			slot := frame.readByte()
			vm.push(*frame.closure.Upvalues[slot].Location)
		case value.OpSetUpvalue:
			slot := frame.readByte()
			*frame.closure.Upvalues[slot].Location = vm.peek(0)

		case value.OpGetProperty:
			if err := vm.execGetProperty(frame); err != nil {
				return err
			}
		case value.OpSetProperty:
			if err := vm.execSetProperty(frame); err != nil {
				return err
			}
		case value.OpGetSuper:
			if err := vm.execGetSuper(frame); err != nil {
				return err
			}

		case value.OpEqual:
			b, a := vm.pop(), vm.pop()
			vm.push(value.Bool(value.Equal(a, b)))
		case value.OpGreater:
			if err := vm.binaryCompare(frame, func(a, b float64) bool { return a > b }); err != nil {
				return err
			}
		case value.OpLess:
			if err := vm.binaryCompare(frame, func(a, b float64) bool { return a < b }); err != nil {
				return err
			}

		case value.OpAdd:
			if err := vm.execAdd(frame); err != nil {
				return err
			}
		case value.OpSubtract:
			if err := vm.binaryArith(frame, func(a, b float64) float64 { return a - b }); err != nil {
				return err
			}
		case value.OpMultiply:
			if err := vm.binaryArith(frame, func(a, b float64) float64 { return a * b }); err != nil {
				return err
			}
		case value.OpDivide:
			if err := vm.binaryArith(frame, func(a, b float64) float64 { return a / b }); err != nil {
				return err
			}

		case value.OpNot:
			vm.push(value.Bool(vm.pop().IsFalsey()))
		case value.OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.push(value.Number(-vm.pop().AsNumber()))

		case value.OpPrint:
			fmt.Fprintln(vm.Stdout, value.Format(vm.pop()))

		case value.OpJump:
			offset := frame.readShort()
			frame.ip += offset
		case value.OpJumpIfFalse:
			offset := frame.readShort()
			if vm.peek(0).IsFalsey() {
				frame.ip += offset
			}
		case value.OpLoop:
			offset := frame.readShort()
			frame.ip -= offset

		case value.OpCall:
			argCount := int(frame.readByte())
			if err := vm.callValue(vm.peek(argCount), argCount); err != nil {
				return err
			}
			frame = vm.frame()

		case value.OpClosure:
			fn := frame.readConstant().AsObject().(*value.ObjFunction)
			closure := vm.heap.NewClosure(fn)
			vm.push(value.Object(closure))
			for i := range closure.Upvalues {
				isLocal := frame.readByte()
				index := frame.readByte()
				if isLocal != 0 {
					closure.Upvalues[i] = vm.captureUpvalue(&vm.stack[frame.slotsBase+int(index)])
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}

		case value.OpCloseUpvalue:
			vm.closeUpvalues(&vm.stack[len(vm.stack)-1])
			vm.pop()

		case value.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(&vm.stack[frame.slotsBase])
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return nil
			}
			vm.stack = vm.stack[:frame.slotsBase]
			vm.push(result)
			frame = vm.frame()

		case value.OpClass:
			name := frame.readConstant().AsObject().(*value.ObjString)
			vm.push(value.Object(vm.heap.NewClass(name)))

		case value.OpInherit:
			superVal := vm.peek(1)
			superclass, ok := asClass(superVal)
			if !ok {
				return vm.runtimeError("Superclass must be a class.")
			}
			subclass, _ := asClass(vm.peek(0))
			subclass.Methods.AddAll(superclass.Methods)
			vm.pop()

		case value.OpMethod:
			name := frame.readConstant().AsObject().(*value.ObjString)
			vm.defineMethod(name)

		default:
			return vm.runtimeError("Unknown opcode %d.", byte(op))
		}
	}
}

func asClass(v value.Value) (*value.ObjClass, bool) {
	if !v.IsObject() {
		return nil, false
	}
	c, ok := v.AsObject().(*value.ObjClass)
	return c, ok
}

func (vm *VM) defineMethod(name *value.ObjString) {
	method := vm.peek(0)
	klass, _ := asClass(vm.peek(1))
	klass.Methods.Set(name, method)
	vm.pop()
}

// execAdd implements ADD's dual number/string behavior (spec.md §4.4):
// numbers add, two strings concatenate into a freshly interned string.
// Operands stay on the stack while the concatenation buffer is built so
// a GC triggered mid-allocation can still see them (spec.md §4.5
// invariant on intermediate allocations).
func (vm *VM) execAdd(frame *CallFrame) error {
	b, a := vm.peek(0), vm.peek(1)
	switch {
	case a.IsNumber() && b.IsNumber():
		vm.pop()
		vm.pop()
		vm.push(value.Number(a.AsNumber() + b.AsNumber()))
		return nil
	case isString(a) && isString(b):
		as := a.AsObject().(*value.ObjString)
		bs := b.AsObject().(*value.ObjString)
		result := vm.heap.InternString(as.Chars + bs.Chars)
		vm.pop()
		vm.pop()
		vm.push(value.Object(result))
		return nil
	default:
		return vm.runtimeError("Operands must be two numbers or two strings.")
	}
}

func isString(v value.Value) bool {
	if !v.IsObject() {
		return false
	}
	_, ok := v.AsObject().(*value.ObjString)
	return ok
}

func (vm *VM) binaryArith(frame *CallFrame, op func(a, b float64) float64) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError("Operands must be numbers.")
	}
	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()
	vm.push(value.Number(op(a, b)))
	return nil
}

func (vm *VM) binaryCompare(frame *CallFrame, op func(a, b float64) bool) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError("Operands must be numbers.")
	}
	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()
	vm.push(value.Bool(op(a, b)))
	return nil
}

// execGetProperty implements GET_PROPERTY: fields shadow methods, and a
// method hit binds a fresh ObjBoundMethod rather than leaving the raw
// closure on the stack, so `obj.method` used as a value later still
// carries its receiver (spec.md §4.4).
func (vm *VM) execGetProperty(frame *CallFrame) error {
	name := frame.readConstant().AsObject().(*value.ObjString)
	instVal := vm.peek(0)
	inst, ok := asInstance(instVal)
	if !ok {
		return vm.runtimeError("Only instances have properties.")
	}
	if v, ok := inst.Fields.Get(name); ok {
		vm.pop()
		vm.push(v)
		return nil
	}
	return vm.bindMethod(frame, inst.Class, name)
}

func (vm *VM) execSetProperty(frame *CallFrame) error {
	name := frame.readConstant().AsObject().(*value.ObjString)
	inst, ok := asInstance(vm.peek(1))
	if !ok {
		return vm.runtimeError("Only instances have fields.")
	}
	v := vm.pop()
	inst.Fields.Set(name, v)
	vm.pop()
	vm.push(v)
	return nil
}

func (vm *VM) execGetSuper(frame *CallFrame) error {
	name := frame.readConstant().AsObject().(*value.ObjString)
	superclass, _ := asClass(vm.pop())
	return vm.bindMethod(frame, superclass, name)
}

func (vm *VM) bindMethod(frame *CallFrame, klass *value.ObjClass, name *value.ObjString) error {
	method, ok := klass.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	receiver := vm.peek(0)
	bound := vm.heap.NewBoundMethod(receiver, method.AsObject().(*value.ObjClosure))
	vm.pop()
	vm.push(value.Object(bound))
	return nil
}

func asInstance(v value.Value) (*value.ObjInstance, bool) {
	if !v.IsObject() {
		return nil, false
	}
	i, ok := v.AsObject().(*value.ObjInstance)
	return i, ok
}

// callValue dispatches OP_CALL's callee (spec.md §4.4): a closure calls
// normally, a native invokes directly, a class allocates an instance
// and routes to init, a bound method swaps in its receiver first.
func (vm *VM) callValue(callee value.Value, argCount int) error {
	if callee.IsObject() {
		switch c := callee.AsObject().(type) {
		case *value.ObjClosure:
			return vm.call(c, argCount)
		case *value.ObjNative:
			return vm.callNative(c, argCount)
		case *value.ObjClass:
			instance := vm.heap.NewInstance(c)
			vm.stack[len(vm.stack)-argCount-1] = value.Object(instance)
			if init, ok := c.Methods.Get(vm.heap.InitString); ok {
				return vm.call(init.AsObject().(*value.ObjClosure), argCount)
			}
			if argCount != 0 {
				return vm.runtimeError("Expected 0 arguments but got %d.", argCount)
			}
			return nil
		case *value.ObjBoundMethod:
			vm.stack[len(vm.stack)-argCount-1] = c.Receiver
			return vm.call(c.Method, argCount)
		}
	}
	return vm.runtimeError("Can only call functions and classes.")
}

func (vm *VM) call(closure *value.ObjClosure, argCount int) error {
	if argCount != closure.Function.Arity {
		return vm.runtimeError("Expected %d arguments but got %d.", closure.Function.Arity, argCount)
	}
	if vm.frameCount == framesMax {
		return vm.runtimeError("Stack overflow.")
	}
	vm.frames[vm.frameCount] = CallFrame{
		closure:   closure,
		ip:        0,
		slotsBase: len(vm.stack) - argCount - 1,
	}
	vm.frameCount++
	return nil
}

func (vm *VM) callNative(native *value.ObjNative, argCount int) error {
	args := make([]value.Value, argCount)
	copy(args, vm.stack[len(vm.stack)-argCount:])
	result, err := native.Fn(args)
	if err != nil {
		return vm.runtimeError("%s", err.Error())
	}
	vm.stack = vm.stack[:len(vm.stack)-argCount-1]
	vm.push(result)
	return nil
}

// captureUpvalue finds or creates an open upvalue for local, keeping the
// open list sorted by strictly descending slot address (spec.md §8
// invariant 6) so closing a range is a simple prefix walk.
func (vm *VM) captureUpvalue(local *value.Value) *value.ObjUpvalue {
	var prev *value.ObjUpvalue
	uv := vm.openUpvalues
	for uv != nil && uv.Location != local && greaterLocation(uv.Location, local) {
		prev = uv
		uv = uv.Next
	}
	if uv != nil && uv.Location == local {
		return uv
	}

	created := vm.heap.NewUpvalue(local)
	created.Next = uv
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// greaterLocation compares two stack-slot pointers by the position they
// point at within vm.stack's backing array. Go forbids ordered pointer
// comparison across unrelated allocations, but slots here always alias
// the same backing array, so comparing addresses is safe and is the
// direct analogue of the source's raw pointer arithmetic.
func greaterLocation(a, b *value.Value) bool {
	return uintptrOf(a) > uintptrOf(b)
}

func (vm *VM) closeUpvalues(last *value.Value) {
	for vm.openUpvalues != nil && !lessLocation(vm.openUpvalues.Location, last) {
		uv := vm.openUpvalues
		uv.Close()
		vm.openUpvalues = uv.Next
	}
}

func lessLocation(a, b *value.Value) bool {
	return uintptrOf(a) < uintptrOf(b)
}

func uintptrOf(p *value.Value) uintptr {
	return uintptr(unsafe.Pointer(p))
}
