package compiler

import (
	"strconv"

	"github.com/kristofer/lumen/pkg/lexer"
	"github.com/kristofer/lumen/pkg/value"
)

// precedence is the Pratt parser's binding-power ladder, ascending, per
// spec.md §4.2.
type precedence int

const (
	precNone precedence = iota
	precAssignment
	precOr
	precAnd
	precEquality
	precComparison
	precTerm
	precFactor
	precUnary
	precCall
	precPrimary
)

type parseFn func(c *compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

// ruleTable is the parse-rule table keyed by token kind: {prefix, infix,
// precedence}, expressed as a static lookup map, standing in for the
// source's array of C function pointers.
var ruleTable = map[lexer.Kind]parseRule{
	lexer.LeftParen:    {prefix: grouping, infix: call, precedence: precCall},
	lexer.Dot:          {infix: dot, precedence: precCall},
	lexer.Minus:        {prefix: unary, infix: binary, precedence: precTerm},
	lexer.Plus:         {infix: binary, precedence: precTerm},
	lexer.Slash:        {infix: binary, precedence: precFactor},
	lexer.Star:         {infix: binary, precedence: precFactor},
	lexer.Bang:         {prefix: unary},
	lexer.BangEqual:    {infix: binary, precedence: precEquality},
	lexer.EqualEqual:   {infix: binary, precedence: precEquality},
	lexer.Greater:      {infix: binary, precedence: precComparison},
	lexer.GreaterEqual: {infix: binary, precedence: precComparison},
	lexer.Less:         {infix: binary, precedence: precComparison},
	lexer.LessEqual:    {infix: binary, precedence: precComparison},
	lexer.Identifier:   {prefix: variable},
	lexer.String:       {prefix: str},
	lexer.Number:       {prefix: number},
	lexer.And:          {infix: and_, precedence: precAnd},
	lexer.False:        {prefix: literal},
	lexer.Nil:          {prefix: literal},
	lexer.Or:           {infix: or_, precedence: precOr},
	lexer.Super:        {prefix: super_},
	lexer.This:         {prefix: this_},
	lexer.True:         {prefix: literal},
}

// rules is what getRule reads. It is assigned from ruleTable in init
// because the parse functions in ruleTable reach getRule themselves, and
// a package-level initializer may not refer back to its own variable.
var rules map[lexer.Kind]parseRule

func init() { rules = ruleTable }

func getRule(k lexer.Kind) parseRule { return rules[k] }

// parsePrecedenceLevel is the heart of the Pratt algorithm: it advances one
// token, invokes that token's prefix parser (or errors if it has none),
// then keeps consuming infix operators whose precedence is at least p.
// can_assign — true only at precedence <= assignment — is threaded
// through so variable/dot are the only parsers ever allowed to consume
// a trailing '='; every other prefix/infix parser just ignores it.
// After the loop, a still-true canAssign paired with a dangling '='
// means nothing claimed it as an assignment target.
func (c *compiler) parsePrecedenceLevel(p precedence) {
	c.advance()
	prefixRule := getRule(c.previous.Kind).prefix
	if prefixRule == nil {
		c.error("Expect expression.")
		return
	}

	canAssign := p <= precAssignment
	prefixRule(c, canAssign)

	for p <= getRule(c.current.Kind).precedence {
		c.advance()
		infixRule := getRule(c.previous.Kind).infix
		infixRule(c, canAssign)
	}

	if canAssign && c.match(lexer.Equal) {
		c.error("Invalid assignment target.")
	}
}

func (c *compiler) expression() {
	c.parsePrecedenceLevel(precAssignment)
}

// --- prefix / infix parse functions -------------------------------------

func number(c *compiler, _ bool) {
	text := c.previous.Text(c.src)
	n, _ := strconv.ParseFloat(text, 64)
	c.emitConstant(value.Number(n))
}

func str(c *compiler, _ bool) {
	text := c.previous.Text(c.src)
	// strip the surrounding quotes
	contents := text[1 : len(text)-1]
	c.emitConstant(value.Object(c.heap.InternString(contents)))
}

func literal(c *compiler, _ bool) {
	switch c.previous.Kind {
	case lexer.False:
		c.emitOp(value.OpFalse)
	case lexer.Nil:
		c.emitOp(value.OpNil)
	case lexer.True:
		c.emitOp(value.OpTrue)
	}
}

func grouping(c *compiler, _ bool) {
	c.expression()
	c.consume(lexer.RightParen, "Expect ')' after expression.")
}

// unary parses its operand at assignment precedence. This is
// deliberately loose (spec.md §4.2 notes the source does the same): the
// operand cannot itself start with '=', so recursing at assignment
// precedence instead of unary precedence is safe, if more permissive
// than strictly necessary.
func unary(c *compiler, _ bool) {
	opKind := c.previous.Kind
	c.parsePrecedenceLevel(precAssignment)
	switch opKind {
	case lexer.Bang:
		c.emitOp(value.OpNot)
	case lexer.Minus:
		c.emitOp(value.OpNegate)
	}
}

func binary(c *compiler, _ bool) {
	opKind := c.previous.Kind
	rule := getRule(opKind)
	c.parsePrecedenceLevel(rule.precedence + 1)

	switch opKind {
	case lexer.BangEqual:
		c.emitOps(value.OpEqual, value.OpNot)
	case lexer.EqualEqual:
		c.emitOp(value.OpEqual)
	case lexer.Greater:
		c.emitOp(value.OpGreater)
	case lexer.GreaterEqual:
		c.emitOps(value.OpLess, value.OpNot)
	case lexer.Less:
		c.emitOp(value.OpLess)
	case lexer.LessEqual:
		c.emitOps(value.OpGreater, value.OpNot)
	case lexer.Plus:
		c.emitOp(value.OpAdd)
	case lexer.Minus:
		c.emitOp(value.OpSubtract)
	case lexer.Star:
		c.emitOp(value.OpMultiply)
	case lexer.Slash:
		c.emitOp(value.OpDivide)
	}
}

// and_ short-circuits: if the left operand is false, skip the right
// operand entirely (it's already on the stack as the result).
func and_(c *compiler, _ bool) {
	endJump := c.emitJump(value.OpJumpIfFalse)
	c.emitOp(value.OpPop)
	c.parsePrecedenceLevel(precAnd)
	c.patchJump(endJump)
}

// or_ short-circuits the other way: if the left operand is true, jump
// past evaluating the right operand.
func or_(c *compiler, _ bool) {
	elseJump := c.emitJump(value.OpJumpIfFalse)
	endJump := c.emitJump(value.OpJump)

	c.patchJump(elseJump)
	c.emitOp(value.OpPop)

	c.parsePrecedenceLevel(precOr)
	c.patchJump(endJump)
}

func call(c *compiler, _ bool) {
	argCount := c.argumentList()
	c.emitOpByte(value.OpCall, argCount)
}

func dot(c *compiler, canAssign bool) {
	c.consume(lexer.Identifier, "Expect property name after '.'.")
	name := c.makeConstant(value.Object(c.heap.InternString(c.previous.Text(c.src))))

	switch {
	case canAssign && c.match(lexer.Equal):
		c.expression()
		c.emitOpByte(value.OpSetProperty, name)
	default:
		c.emitOpByte(value.OpGetProperty, name)
	}
}

func variable(c *compiler, canAssign bool) {
	namedVariable(c, c.previous.Text(c.src), canAssign)
}

func namedVariable(c *compiler, name string, canAssign bool) {
	var getOp, setOp value.OpCode
	var arg int

	if slot, uninitialized := resolveLocalSlot(c.fs, name); uninitialized {
		c.error("Can't read local variable in its own initializer.")
		return
	} else if slot != -1 {
		getOp, setOp, arg = value.OpGetLocal, value.OpSetLocal, slot
	} else if slot := resolveUpvalue(c.fs, name); slot != -1 {
		getOp, setOp, arg = value.OpGetUpvalue, value.OpSetUpvalue, slot
	} else {
		arg = int(c.makeConstant(value.Object(c.heap.InternString(name))))
		getOp, setOp = value.OpGetGlobal, value.OpSetGlobal
	}

	if canAssign && c.match(lexer.Equal) {
		c.expression()
		c.emitOpByte(setOp, byte(arg))
	} else {
		c.emitOpByte(getOp, byte(arg))
	}
}

func this_(c *compiler, _ bool) {
	if c.class == nil {
		c.error("Can't use 'this' outside of a class.")
		return
	}
	namedVariable(c, "this", false)
}

// super_ compiles `super.method` or `super.method(args)`: it loads the
// enclosing instance (`this`, always local slot 0 in a method) and the
// resolved superclass, then emits OP_GET_SUPER. For a call, the argument
// list and OP_CALL follow through the ordinary call infix rule — there is
// no fused invoke opcode (spec.md §1 excludes an optimiser), so a super
// call compiles to exactly a property load followed by OP_CALL like any
// other call.
func super_(c *compiler, _ bool) {
	if c.class == nil {
		c.error("Can't use 'super' outside of a class.")
	} else if !c.class.hasSuperclass {
		c.error("Can't use 'super' in a class with no superclass.")
	}

	c.consume(lexer.Dot, "Expect '.' after 'super'.")
	c.consume(lexer.Identifier, "Expect superclass method name.")
	name := c.makeConstant(value.Object(c.heap.InternString(c.previous.Text(c.src))))

	namedVariable(c, "this", false)
	namedVariable(c, "super", false)
	c.emitOpByte(value.OpGetSuper, name)
}
