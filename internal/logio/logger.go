// Package logio provides a small leveled logging facility for Lumen's
// diagnostic output (GC activity, execution tracing), kept strictly apart
// from the VM's own stdout writer so redirecting logs never touches
// program output.
package logio

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// Logger writes leveled "LEVEL: message" lines to a wrapped writer,
// guarded by a mutex since the GC's LogCollect hook and the VM's trace
// hook can both fire it from the same call stack at different points.
// It also implements io.Writer directly (see Write), so vm.VM.Trace can
// point straight at a Logger instead of going through a separate
// adapter type with its own locking.
type Logger struct {
	mu     sync.Mutex
	output io.Writer
	buf    bytes.Buffer
}

// New returns a Logger writing to out.
func New(out io.Writer) *Logger {
	return &Logger{output: out}
}

// Printf writes "level: message\n" to the underlying writer.
func (log *Logger) Printf(level, mess string, args ...interface{}) {
	log.mu.Lock()
	defer log.mu.Unlock()
	log.writeLocked(level, fmt.Sprintf(mess, args...))
}

// Tracef logs at TRACE level, the execution-trace (-trace) and GC-trace
// (-trace-gc) diagnostic channel.
func (log *Logger) Tracef(mess string, args ...interface{}) {
	log.Printf("TRACE", mess, args...)
}

// Errorf logs at ERROR level. It never affects the CLI's exit code
// directly — that mapping is owned by internal/cli, which inspects the
// compiler/VM error values themselves (spec.md §6-7's 0/65/70/74
// contract), not anything logged here.
func (log *Logger) Errorf(mess string, args ...interface{}) {
	log.Printf("ERROR", mess, args...)
}

// ErrorIf logs err at ERROR level if it is non-nil.
func (log *Logger) ErrorIf(err error) {
	if err != nil {
		log.Errorf("%v", err)
	}
}

// Write buffers p and emits one TRACE line per complete line it
// contains, so a multi-write caller (the VM's per-instruction fetch
// loop writes one disassembled instruction at a time) still produces
// one log line per source line rather than one per Write call. A
// trailing partial line is held back until either a later Write
// completes it or Flush forces it out.
func (log *Logger) Write(p []byte) (int, error) {
	log.mu.Lock()
	defer log.mu.Unlock()
	log.buf.Write(p)
	log.drainBuffered(false)
	return len(p), nil
}

// Flush forces out any trace line left buffered without a trailing
// newline. Callers that finish tracing mid-line (a program that panics
// before printing a final newline) should call this once at exit.
func (log *Logger) Flush() {
	log.mu.Lock()
	defer log.mu.Unlock()
	log.drainBuffered(true)
}

func (log *Logger) drainBuffered(all bool) {
	for log.buf.Len() > 0 {
		i := bytes.IndexByte(log.buf.Bytes(), '\n')
		if i >= 0 {
			log.writeLocked("TRACE", string(log.buf.Next(i)))
			log.buf.Next(1)
		} else if all {
			log.writeLocked("TRACE", string(log.buf.Next(log.buf.Len())))
		} else {
			break
		}
	}
}

// writeLocked writes one "level: line\n" record; callers must hold mu.
func (log *Logger) writeLocked(level, line string) {
	if level != "" {
		fmt.Fprintf(log.output, "%s: ", level)
	}
	fmt.Fprintln(log.output, line)
}
