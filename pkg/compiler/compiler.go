// Package compiler implements lumen's single-pass Pratt compiler: a
// parser that emits bytecode directly from the token stream as it
// recognizes each construct, with no separate AST stage (spec.md §4.2).
// Assignment targets, locals, upvalues, and class/method bodies are all
// resolved in this one pass.
package compiler

import (
	"fmt"

	"github.com/kristofer/lumen/pkg/lexer"
	"github.com/kristofer/lumen/pkg/value"
)

// FunctionType distinguishes the four kinds of thing a Compiler can be
// compiling, since return-statement legality and the reserved slot-0
// local differ between them (spec.md §3.5).
type FunctionType int

const (
	TypeFunction FunctionType = iota
	TypeInitializer
	TypeMethod
	TypeScript
)

const (
	maxLocals   = 256
	maxUpvalues = 256
	maxArgs     = 255
	maxConstants = 256
)

// local is a declared-but-maybe-not-yet-initialized binding living in a
// stack slot relative to the enclosing call frame. Depth == -1 marks a
// local whose initializer is still being compiled, so that `var a = a;`
// inside the initializer can be rejected (spec.md §4.2).
type local struct {
	name       string
	depth      int
	isCaptured bool
}

// upvalueRef records how one upvalue slot of the function being compiled
// is populated at OP_CLOSURE time: either copied from the immediately
// enclosing function's local slots, or inherited from that function's
// own upvalue array.
type upvalueRef struct {
	index   byte
	isLocal bool
}

// funcState is the per-function compiler state spec.md §3.5 describes:
// one is pushed for the top-level script and one more for every nested
// function/method/initializer, linked to its lexically enclosing
// funcState so upvalue resolution can walk outward.
type funcState struct {
	enclosing *funcState
	function  *value.ObjFunction
	funcType  FunctionType

	locals     []local
	upvalues   []upvalueRef
	scopeDepth int
}

// classState forms the lexical stack of enclosing class compilations,
// used to validate `this` and `super` and to know whether the class
// currently being compiled has a superclass.
type classState struct {
	enclosing     *classState
	hasSuperclass bool
}

// CompileError is one diagnostic produced during compilation, formatted
// per spec.md §6: "[line L] Error at '<lexeme>': <msg>".
type CompileError struct {
	Line    int
	Where   string // the lexeme, "end", or "" for scanner-error tokens
	Message string
}

func (e CompileError) Error() string {
	switch e.Where {
	case "":
		return fmt.Sprintf("[line %d] Error: %s", e.Line, e.Message)
	case "end":
		return fmt.Sprintf("[line %d] Error at end: %s", e.Line, e.Message)
	default:
		return fmt.Sprintf("[line %d] Error at '%s': %s", e.Line, e.Where, e.Message)
	}
}

// compiler drives the whole single-pass compile: token stream, parser
// state (current/previous token, error flags), the chain of funcStates,
// and the chain of classStates.
type compiler struct {
	heap *value.Heap
	src  []byte
	lx   *lexer.Lexer

	current  lexer.Token
	previous lexer.Token

	hadError  bool
	panicMode bool
	errors    []CompileError

	fs    *funcState
	class *classState

	active bool // true while Compile is running; gates the GC root provider
}

// Compile compiles src into a top-level script function. On any compile
// error it returns (nil, errs); errors are never partial — either the
// whole program compiled or none of it executes, per spec.md §4.2's
// contract.
func Compile(heap *value.Heap, src []byte) (*value.ObjFunction, []CompileError) {
	c := &compiler{heap: heap, src: src, lx: lexer.New(src), active: true}
	heap.RegisterRoots(c.markRoots)

	c.pushFunc(TypeScript, "")
	c.advance()
	for !c.match(lexer.EOF) {
		c.declaration()
	}
	fn := c.endFunc()
	c.active = false

	if c.hadError {
		return nil, c.errors
	}
	return fn, nil
}

// markRoots marks every ObjFunction in the compiler chain (tracing then
// reaches the constants already pushed into each one's chunk) —
// spec.md §4.5 phase 1's "every function in the compiler chain"
// requirement — plus the heap's cached "init" string, which initializer
// method names are interned against. It is a no-op once Compile has
// returned, satisfying the RootProvider contract without ever needing
// to be unregistered.
func (c *compiler) markRoots(mark func(value.Obj)) {
	if !c.active {
		return
	}
	for fs := c.fs; fs != nil; fs = fs.enclosing {
		mark(fs.function)
	}
	if c.heap.InitString != nil {
		mark(c.heap.InitString)
	}
}

// --- token stream -----------------------------------------------------

func (c *compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.lx.Scan()
		if c.current.Kind != lexer.Error {
			break
		}
		c.errorAtCurrent(c.current.Text(c.src))
	}
}

func (c *compiler) check(k lexer.Kind) bool { return c.current.Kind == k }

func (c *compiler) match(k lexer.Kind) bool {
	if !c.check(k) {
		return false
	}
	c.advance()
	return true
}

func (c *compiler) consume(k lexer.Kind, msg string) {
	if c.current.Kind == k {
		c.advance()
		return
	}
	c.errorAtCurrent(msg)
}

func (c *compiler) errorAtCurrent(msg string) { c.errorAt(c.current, msg) }
func (c *compiler) error(msg string)          { c.errorAt(c.previous, msg) }

func (c *compiler) errorAt(tok lexer.Token, msg string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true

	where := tok.Text(c.src)
	if tok.Kind == lexer.EOF {
		where = "end"
	} else if tok.Kind == lexer.Error {
		where = ""
	}
	c.errors = append(c.errors, CompileError{Line: tok.Line, Where: where, Message: msg})
}

// sync recovers from a compile error by discarding tokens until a
// statement boundary: a consumed ';' or a token that starts a new
// declaration/statement (spec.md §4.2 panic-mode recovery).
func (c *compiler) sync() {
	c.panicMode = false
	for c.current.Kind != lexer.EOF {
		if c.previous.Kind == lexer.Semicolon {
			return
		}
		switch c.current.Kind {
		case lexer.Class, lexer.Fun, lexer.Var, lexer.For,
			lexer.If, lexer.While, lexer.Print, lexer.Return:
			return
		}
		c.advance()
	}
}

// --- bytecode emission -------------------------------------------------

func (c *compiler) chunk() *value.Chunk { return &c.fs.function.Chunk }

func (c *compiler) emitByte(b byte) {
	c.chunk().Write(b, c.previous.Line)
}

func (c *compiler) emitOp(op value.OpCode) {
	c.chunk().WriteOp(op, c.previous.Line)
}

func (c *compiler) emitOps(op1, op2 value.OpCode) {
	c.emitOp(op1)
	c.emitOp(op2)
}

func (c *compiler) emitOpByte(op value.OpCode, b byte) {
	c.emitOp(op)
	c.emitByte(b)
}

func (c *compiler) makeConstant(v value.Value) byte {
	idx := c.chunk().AddConstant(v)
	if idx > 255 {
		c.error("Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (c *compiler) emitConstant(v value.Value) {
	c.emitOpByte(value.OpConstant, c.makeConstant(v))
}

// emitJump emits op followed by a two-byte placeholder and returns the
// placeholder's offset for patchJump to back-fill later.
func (c *compiler) emitJump(op value.OpCode) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.chunk().Code) - 2
}

func (c *compiler) patchJump(offset int) {
	jump := len(c.chunk().Code) - offset - 2
	if jump > 0xffff {
		c.error("Too much code to jump over.")
	}
	c.chunk().Code[offset] = byte(jump >> 8)
	c.chunk().Code[offset+1] = byte(jump)
}

func (c *compiler) emitLoop(loopStart int) {
	c.emitOp(value.OpLoop)
	offset := len(c.chunk().Code) - loopStart + 2
	if offset > 0xffff {
		c.error("Loop body too large.")
	}
	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset))
}

func (c *compiler) emitReturn() {
	if c.fs.funcType == TypeInitializer {
		c.emitOpByte(value.OpGetLocal, 0)
	} else {
		c.emitOp(value.OpNil)
	}
	c.emitOp(value.OpReturn)
}

// --- function / class compiler scaffolding -----------------------------

// pushFunc begins compiling a nested function, allocating its
// ObjFunction and reserving local slot 0 for the implicit receiver the
// VM always places there (the closure itself for plain functions,
// `this` for methods/initializers).
func (c *compiler) pushFunc(t FunctionType, name string) {
	fn := c.heap.NewFunction()
	fs := &funcState{enclosing: c.fs, function: fn, funcType: t}

	slot0 := local{name: "", depth: 0}
	if t != TypeFunction {
		slot0.name = "this"
	}
	fs.locals = append(fs.locals, slot0)

	c.fs = fs
	// fn is on the chain now, so a collection triggered by interning its
	// name keeps it alive.
	if name != "" {
		fn.Name = c.heap.InternString(name)
	}
}

// endFunc finalizes the function currently being compiled (emitting the
// trailing implicit return) and pops back to the enclosing funcState.
func (c *compiler) endFunc() *value.ObjFunction {
	c.emitReturn()
	fn := c.fs.function
	c.fs = c.fs.enclosing
	return fn
}

func (c *compiler) beginScope() { c.fs.scopeDepth++ }

// endScope closes the current block scope, popping every local
// declared in it: OP_CLOSE_UPVALUE for ones captured by a nested
// closure (so they survive on the heap), OP_POP otherwise (spec.md
// §4.2).
func (c *compiler) endScope() {
	c.fs.scopeDepth--
	locals := c.fs.locals
	for len(locals) > 0 && locals[len(locals)-1].depth > c.fs.scopeDepth {
		if locals[len(locals)-1].isCaptured {
			c.emitOp(value.OpCloseUpvalue)
		} else {
			c.emitOp(value.OpPop)
		}
		locals = locals[:len(locals)-1]
	}
	c.fs.locals = locals
}

// --- variable resolution ------------------------------------------------

func identifiersEqual(a, b string) bool { return a == b }

// resolveLocal looks for name among fs's locals, scanning from the end
// (innermost declaration wins, and shadowing just works). Returns -1 if
// not found, and also -1 (via the uninitialized sentinel below) for a
// local still mid-initialization.
func resolveLocal(fs *funcState, name string) int {
	idx, _ := resolveLocalSlot(fs, name)
	return idx
}

// resolveLocalSlot is resolveLocal plus a flag telling the caller whether
// the match it declined to return was a local caught reading its own
// initializer (`var a = a;`), so namedVariable can report that
// specifically rather than silently falling back to treating `a` as a
// global.
func resolveLocalSlot(fs *funcState, name string) (slot int, uninitialized bool) {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if identifiersEqual(fs.locals[i].name, name) {
			if fs.locals[i].depth == -1 {
				return -1, true
			}
			return i, false
		}
	}
	return -1, false
}

// resolveUpvalue recursively resolves name as a variable captured from
// an enclosing function, marking the enclosing local as captured and
// appending (or reusing) an upvalueRef in every funcState along the way
// down to fs. Returns -1 if name is not found anywhere in the enclosing
// chain (so the caller should fall back to treating it as global).
func resolveUpvalue(fs *funcState, name string) int {
	if fs.enclosing == nil {
		return -1
	}
	if localIdx := resolveLocal(fs.enclosing, name); localIdx != -1 {
		fs.enclosing.locals[localIdx].isCaptured = true
		return addUpvalue(fs, byte(localIdx), true)
	}
	if upIdx := resolveUpvalue(fs.enclosing, name); upIdx != -1 {
		return addUpvalue(fs, byte(upIdx), false)
	}
	return -1
}

// addUpvalue appends a new upvalue slot to fs, deduplicating by
// (index, isLocal) so capturing the same enclosing local twice yields
// the same slot (spec.md §8 invariant 5).
func addUpvalue(fs *funcState, index byte, isLocal bool) int {
	for i, uv := range fs.upvalues {
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}
	if len(fs.upvalues) == maxUpvalues {
		return 0
	}
	fs.upvalues = append(fs.upvalues, upvalueRef{index: index, isLocal: isLocal})
	fs.function.UpvalueCount = len(fs.upvalues)
	return len(fs.upvalues) - 1
}

func (c *compiler) addLocal(name string) {
	if len(c.fs.locals) >= maxLocals {
		c.error("Too many local variables in function.")
		return
	}
	c.fs.locals = append(c.fs.locals, local{name: name, depth: -1})
}

// declareVariable registers the identifier just consumed (c.previous) as
// a local if we're inside a scope; globals need no compile-time
// declaration since they're resolved by name at runtime.
func (c *compiler) declareVariable() {
	if c.fs.scopeDepth == 0 {
		return
	}
	name := c.previous.Text(c.src)
	for i := len(c.fs.locals) - 1; i >= 0; i-- {
		l := c.fs.locals[i]
		if l.depth != -1 && l.depth < c.fs.scopeDepth {
			break
		}
		if identifiersEqual(l.name, name) {
			c.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

// parseVariable consumes an identifier, declares it if local, and
// returns the constant-pool index of its name for global access (0 if
// the variable ended up local, since that index is never used).
func (c *compiler) parseVariable(msg string) byte {
	c.consume(lexer.Identifier, msg)
	c.declareVariable()
	if c.fs.scopeDepth > 0 {
		return 0
	}
	return c.makeConstant(value.Object(c.heap.InternString(c.previous.Text(c.src))))
}

func (c *compiler) markInitialized() {
	if c.fs.scopeDepth == 0 {
		return
	}
	c.fs.locals[len(c.fs.locals)-1].depth = c.fs.scopeDepth
}

func (c *compiler) defineVariable(global byte) {
	if c.fs.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOpByte(value.OpDefineGlobal, global)
}

func (c *compiler) argumentList() byte {
	count := 0
	if !c.check(lexer.RightParen) {
		for {
			c.expression()
			if count == maxArgs {
				c.error("Can't have more than 255 arguments.")
			}
			count++
			if !c.match(lexer.Comma) {
				break
			}
		}
	}
	c.consume(lexer.RightParen, "Expect ')' after arguments.")
	return byte(count)
}
