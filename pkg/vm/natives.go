package vm

import (
	"fmt"
	"time"

	"github.com/kristofer/lumen/pkg/value"
)

// processStart anchors clock()'s return value to process start rather
// than the Unix epoch, matching spec.md §6's "seconds-since-process-start"
// wording rather than wall-clock time.
var processStart = time.Now()

// defineNatives registers the baseline native functions into globals
// (spec.md §6). Every native is callable like any other global function;
// callNative enforces nothing about arity beyond what each native checks
// for itself.
func (vm *VM) defineNatives() {
	vm.defineNative("clock", nativeClock)
}

func (vm *VM) defineNative(name string, fn value.NativeFn) {
	// Both objects stay on the stack until the globals table holds them,
	// so a collection triggered by NewNative cannot drop the name.
	nameStr := vm.heap.InternString(name)
	vm.push(value.Object(nameStr))
	native := vm.heap.NewNative(name, fn)
	vm.push(value.Object(native))
	vm.globals.Set(nameStr, value.Object(native))
	vm.pop()
	vm.pop()
}

func nativeClock(args []value.Value) (value.Value, error) {
	if len(args) != 0 {
		return value.Nil, fmt.Errorf("Expected 0 arguments but got %d.", len(args))
	}
	return value.Number(time.Since(processStart).Seconds()), nil
}
