package compiler

import (
	"github.com/kristofer/lumen/pkg/lexer"
	"github.com/kristofer/lumen/pkg/value"
)

// declaration is the top of the statement grammar: a var/fun/class
// declaration or a plain statement. panicMode recovery happens here so
// one malformed statement doesn't cascade into a wall of errors.
func (c *compiler) declaration() {
	switch {
	case c.match(lexer.Class):
		c.classDeclaration()
	case c.match(lexer.Fun):
		c.funDeclaration()
	case c.match(lexer.Var):
		c.varDeclaration()
	default:
		c.statement()
	}

	if c.panicMode {
		c.sync()
	}
}

func (c *compiler) classDeclaration() {
	c.consume(lexer.Identifier, "Expect class name.")
	nameTok := c.previous
	className := nameTok.Text(c.src)
	nameConstant := c.makeConstant(value.Object(c.heap.InternString(className)))
	c.declareVariable()

	c.emitOpByte(value.OpClass, nameConstant)
	c.defineVariable(nameConstant)

	cs := &classState{enclosing: c.class}
	c.class = cs

	if c.match(lexer.Less) {
		c.consume(lexer.Identifier, "Expect superclass name.")
		variable(c, false)
		if identifiersEqual(c.previous.Text(c.src), className) {
			c.error("A class can't inherit from itself.")
		}

		c.beginScope()
		c.addLocal("super")
		c.defineVariable(0)

		namedVariable(c, className, false)
		c.emitOp(value.OpInherit)
		cs.hasSuperclass = true
	}

	namedVariable(c, className, false)
	c.consume(lexer.LeftBrace, "Expect '{' before class body.")
	for !c.check(lexer.RightBrace) && !c.check(lexer.EOF) {
		c.method()
	}
	c.consume(lexer.RightBrace, "Expect '}' after class body.")
	c.emitOp(value.OpPop) // the class, pushed again above for method binding

	if cs.hasSuperclass {
		c.endScope()
	}
	c.class = cs.enclosing
}

func (c *compiler) method() {
	c.consume(lexer.Identifier, "Expect method name.")
	name := c.previous.Text(c.src)
	constant := c.makeConstant(value.Object(c.heap.InternString(name)))

	ftype := TypeMethod
	if name == "init" {
		ftype = TypeInitializer
	}
	c.function(ftype)
	c.emitOpByte(value.OpMethod, constant)
}

func (c *compiler) funDeclaration() {
	global := c.parseVariable("Expect function name.")
	c.markInitialized()
	c.function(TypeFunction)
	c.defineVariable(global)
}

// function compiles a function body as its own nested funcState: the
// parameter list becomes the first N locals, the block becomes the
// chunk, and once endFunc has finished it, an OP_CLOSURE with its
// upvalue capture list is emitted into the enclosing chunk (spec.md
// §4.4).
func (c *compiler) function(ftype FunctionType) {
	name := c.previous.Text(c.src)
	c.pushFunc(ftype, name)
	c.beginScope()

	c.consume(lexer.LeftParen, "Expect '(' after function name.")
	if !c.check(lexer.RightParen) {
		for {
			c.fs.function.Arity++
			if c.fs.function.Arity > maxArgs {
				c.errorAtCurrent("Can't have more than 255 parameters.")
			}
			paramConstant := c.parseVariable("Expect parameter name.")
			c.defineVariable(paramConstant)
			if !c.match(lexer.Comma) {
				break
			}
		}
	}
	c.consume(lexer.RightParen, "Expect ')' after parameters.")
	c.consume(lexer.LeftBrace, "Expect '{' before function body.")
	c.block()

	upvals := c.fs.upvalues
	fn := c.endFunc()

	idx := c.makeConstant(value.Object(fn))
	c.emitOpByte(value.OpClosure, idx)
	for _, uv := range upvals {
		isLocal := byte(0)
		if uv.isLocal {
			isLocal = 1
		}
		c.emitByte(isLocal)
		c.emitByte(uv.index)
	}
}

func (c *compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")

	if c.match(lexer.Equal) {
		c.expression()
	} else {
		c.emitOp(value.OpNil)
	}
	c.consume(lexer.Semicolon, "Expect ';' after variable declaration.")

	c.defineVariable(global)
}

func (c *compiler) statement() {
	switch {
	case c.match(lexer.Print):
		c.printStatement()
	case c.match(lexer.For):
		c.forStatement()
	case c.match(lexer.If):
		c.ifStatement()
	case c.match(lexer.Return):
		c.returnStatement()
	case c.match(lexer.While):
		c.whileStatement()
	case c.match(lexer.LeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *compiler) printStatement() {
	c.expression()
	c.consume(lexer.Semicolon, "Expect ';' after value.")
	c.emitOp(value.OpPrint)
}

func (c *compiler) expressionStatement() {
	c.expression()
	c.consume(lexer.Semicolon, "Expect ';' after expression.")
	c.emitOp(value.OpPop)
}

func (c *compiler) block() {
	for !c.check(lexer.RightBrace) && !c.check(lexer.EOF) {
		c.declaration()
	}
	c.consume(lexer.RightBrace, "Expect '}' after block.")
}

func (c *compiler) ifStatement() {
	c.consume(lexer.LeftParen, "Expect '(' after 'if'.")
	c.expression()
	c.consume(lexer.RightParen, "Expect ')' after condition.")

	thenJump := c.emitJump(value.OpJumpIfFalse)
	c.emitOp(value.OpPop)
	c.statement()

	elseJump := c.emitJump(value.OpJump)
	c.patchJump(thenJump)
	c.emitOp(value.OpPop)

	if c.match(lexer.Else) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *compiler) whileStatement() {
	loopStart := len(c.chunk().Code)
	c.consume(lexer.LeftParen, "Expect '(' after 'while'.")
	c.expression()
	c.consume(lexer.RightParen, "Expect ')' after condition.")

	exitJump := c.emitJump(value.OpJumpIfFalse)
	c.emitOp(value.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(value.OpPop)
}

// forStatement desugars entirely to while + block at compile time (no
// dedicated loop opcodes), exactly the source's approach: the
// initializer/condition/increment clauses are each optional and get
// stitched together with jumps the same way a hand-written while loop
// would be.
func (c *compiler) forStatement() {
	c.beginScope()
	c.consume(lexer.LeftParen, "Expect '(' after 'for'.")

	switch {
	case c.match(lexer.Semicolon):
		// no initializer
	case c.match(lexer.Var):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.chunk().Code)
	exitJump := -1
	if !c.match(lexer.Semicolon) {
		c.expression()
		c.consume(lexer.Semicolon, "Expect ';' after loop condition.")
		exitJump = c.emitJump(value.OpJumpIfFalse)
		c.emitOp(value.OpPop)
	}

	if !c.match(lexer.RightParen) {
		bodyJump := c.emitJump(value.OpJump)

		incrementStart := len(c.chunk().Code)
		c.expression()
		c.emitOp(value.OpPop)
		c.consume(lexer.RightParen, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(value.OpPop)
	}

	c.endScope()
}

func (c *compiler) returnStatement() {
	if c.fs.funcType == TypeScript {
		c.error("Can't return from top-level code.")
	}

	if c.match(lexer.Semicolon) {
		c.emitReturn()
		return
	}

	if c.fs.funcType == TypeInitializer {
		c.error("Can't return a value from an initializer.")
	}

	c.expression()
	c.consume(lexer.Semicolon, "Expect ';' after return value.")
	c.emitOp(value.OpReturn)
}
