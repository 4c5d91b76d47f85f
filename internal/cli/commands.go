package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mna/mainer"

	"github.com/kristofer/lumen/internal/logio"
	"github.com/kristofer/lumen/pkg/compiler"
	"github.com/kristofer/lumen/pkg/value"
	"github.com/kristofer/lumen/pkg/vm"
)

// newMachine builds a heap and VM wired up per the -trace/-trace-gc/
// -stress-gc flags, writing diagnostics through a logio.Logger bound to
// stdio.Stderr so they never interleave with program output on Stdout
// (SPEC_FULL.md §5.1).
func (c *Cmd) newMachine(stdio mainer.Stdio) (*value.Heap, *vm.VM) {
	log := logio.New(stdio.Stderr)

	heap := value.NewHeap()
	heap.StressGC = c.StressGC
	if c.TraceGC {
		heap.LogCollect = func(before, after, next int) {
			log.Tracef("gc: collected %d bytes (%d -> %d, next at %d)", before-after, before, after, next)
		}
	}

	machine := vm.New(heap)
	machine.Stdout = stdio.Stdout
	if c.Trace {
		machine.Trace = log
	}
	return heap, machine
}

// runFile reads, compiles, and executes path, mapping the outcome onto
// spec.md's exit-code contract.
func (c *Cmd) runFile(stdio mainer.Stdio, path string) mainer.ExitCode {
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
		return exitIOError
	}

	heap, machine := c.newMachine(stdio)
	fn, errs := compiler.Compile(heap, src)
	if len(errs) > 0 {
		printCompileErrors(stdio, errs)
		return exitCompileError
	}

	if err := machine.Interpret(fn); err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return exitRuntimeError
	}
	return exitOK
}

// compileFile compiles path and reports success or every compile error,
// without ever constructing a VM.
func (c *Cmd) compileFile(stdio mainer.Stdio, path string) mainer.ExitCode {
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
		return exitIOError
	}

	heap := value.NewHeap()
	_, errs := compiler.Compile(heap, src)
	if len(errs) > 0 {
		printCompileErrors(stdio, errs)
		return exitCompileError
	}
	fmt.Fprintf(stdio.Stdout, "%s: ok\n", path)
	return exitOK
}

// disassembleFile compiles path and prints the resulting bytecode for
// the top-level script and every function nested in its constant pool,
// depth-first.
func (c *Cmd) disassembleFile(stdio mainer.Stdio, path string) mainer.ExitCode {
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
		return exitIOError
	}

	heap := value.NewHeap()
	fn, errs := compiler.Compile(heap, src)
	if len(errs) > 0 {
		printCompileErrors(stdio, errs)
		return exitCompileError
	}

	disassembleFunction(stdio.Stdout, fn)
	return exitOK
}

func disassembleFunction(out io.Writer, fn *value.ObjFunction) {
	name := "<script>"
	if fn.Name != nil {
		name = fn.Name.Chars
	}
	fmt.Fprint(out, fn.Chunk.Disassemble(name))
	for _, constant := range fn.Chunk.Constants {
		if !constant.IsObject() {
			continue
		}
		if nested, ok := constant.AsObject().(*value.ObjFunction); ok {
			disassembleFunction(out, nested)
		}
	}
}

// runREPL drives an interactive session over one persistent heap and VM,
// so globals and heap-allocated objects survive from one input line to
// the next. Each line is compiled and run as its own top-level script;
// errors are reported but never end the session.
func (c *Cmd) runREPL(stdio mainer.Stdio) mainer.ExitCode {
	fmt.Fprintf(stdio.Stdout, "%s\n", binName)
	fmt.Fprintln(stdio.Stdout, "Type an expression or statement, or :quit to exit.")

	heap, machine := c.newMachine(stdio)
	scanner := bufio.NewScanner(stdio.Stdin)

	for {
		fmt.Fprint(stdio.Stdout, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case ":quit", ":exit":
			return exitOK
		}

		fn, errs := compiler.Compile(heap, []byte(line))
		if len(errs) > 0 {
			printCompileErrors(stdio, errs)
			continue
		}
		if err := machine.Interpret(fn); err != nil {
			fmt.Fprintln(stdio.Stderr, err)
		}
	}
	return exitOK
}

func printCompileErrors(stdio mainer.Stdio, errs []compiler.CompileError) {
	for _, e := range errs {
		fmt.Fprintln(stdio.Stderr, e.Error())
	}
}
