// Package cli owns Lumen's command-line surface: flag parsing, subcommand
// dispatch, and the exit-code mapping spec.md §6-7 requires (0 ok / 65
// compile error / 70 runtime error / 74 I/O error). It mirrors the split
// the teacher pack's mna-nenuphar uses between a thin cmd/ main and an
// internal package that owns everything past os.Args, built on the same
// github.com/mna/mainer plumbing for Stdio and exit codes; the
// subcommand switch itself follows the teacher's own cmd/smog/main.go,
// which dispatches on a bare argument rather than reflection.
package cli

import (
	"fmt"

	"github.com/mna/mainer"
)

const binName = "lumen"

const (
	exitOK           = mainer.Success
	exitCompileError = mainer.ExitCode(65)
	exitRuntimeError = mainer.ExitCode(70)
	exitIOError      = mainer.ExitCode(74)
)

var shortUsage = fmt.Sprintf(`usage: %s [<option>...] [run|repl|compile|disassemble] [<path>]
Run '%[1]s --help' for details.
`, binName)

var longUsage = fmt.Sprintf(`usage: %s [<option>...] <command> [<path>]
       %[1]s <path>
       %[1]s -h|--help
       %[1]s -v|--version

A compiler and bytecode virtual machine for the L scripting language.

The <command> can be one of:
       run <path>          Compile and execute a source file (default if
                            <path> is given with no command).
       repl                Start an interactive read-eval-print loop.
       compile <path>      Compile a source file and report errors without
                            executing it.
       disassemble <path>  Compile a source file and print its bytecode.

With no arguments, %[1]s starts the REPL.

Valid flag options are:
       -h --help           Show this help and exit.
       -v --version        Print version and exit.
       --trace             Print each executed instruction to stderr.
       --trace-gc          Print a line per garbage-collection cycle.
       --stress-gc         Collect before every single allocation.
`, binName)

// Cmd holds parsed flags and drives subcommand dispatch, the same shape
// mna-nenuphar's maincmd.Cmd uses for mainer.Parser to populate via
// struct tags.
type Cmd struct {
	BuildVersion string

	Help     bool `flag:"h,help"`
	Version  bool `flag:"v,version"`
	Trace    bool `flag:"trace"`
	TraceGC  bool `flag:"trace-gc"`
	StressGC bool `flag:"stress-gc"`

	args []string
}

func (c *Cmd) SetArgs(args []string)          { c.args = args }
func (c *Cmd) SetFlags(flags map[string]bool) {}

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}
	if len(c.args) == 0 {
		return nil // bare invocation starts the REPL
	}
	switch c.args[0] {
	case "run", "compile", "disassemble":
		if len(c.args) < 2 {
			return fmt.Errorf("%s: a file path is required", c.args[0])
		}
	case "repl":
	default:
		// Not a known subcommand: treat args[0] itself as a file to run,
		// matching the teacher's default-case fallthrough.
	}
	return nil
}

// Main parses args and dispatches to the matching subcommand, returning
// the process exit code. Every code path that can fail prints its own
// diagnostic to stdio.Stderr before returning a non-zero code; Main
// itself never prints beyond usage/version text.
func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{EnvVars: false}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return exitOK
	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s\n", binName, c.BuildVersion)
		return exitOK
	}

	if len(c.args) == 0 {
		return c.runREPL(stdio)
	}

	switch c.args[0] {
	case "run":
		return c.runFile(stdio, c.args[1])
	case "repl":
		return c.runREPL(stdio)
	case "compile":
		return c.compileFile(stdio, c.args[1])
	case "disassemble":
		return c.disassembleFile(stdio, c.args[1])
	default:
		return c.runFile(stdio, c.args[0])
	}
}
