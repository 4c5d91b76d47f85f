package compiler

import (
	"testing"

	"github.com/kristofer/lumen/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, src string) *value.ObjFunction {
	t.Helper()
	heap := value.NewHeap()
	fn, errs := Compile(heap, []byte(src))
	require.Empty(t, errs)
	require.NotNil(t, fn)
	return fn
}

func compileErrors(t *testing.T, src string) []CompileError {
	t.Helper()
	heap := value.NewHeap()
	fn, errs := Compile(heap, []byte(src))
	assert.Nil(t, fn)
	return errs
}

func opsOf(fn *value.ObjFunction) []value.OpCode {
	var ops []value.OpCode
	code := fn.Chunk.Code
	for i := 0; i < len(code); {
		op := value.OpCode(code[i])
		ops = append(ops, op)
		switch op {
		case value.OpConstant, value.OpGetLocal, value.OpSetLocal, value.OpGetGlobal,
			value.OpDefineGlobal, value.OpSetGlobal, value.OpGetUpvalue, value.OpSetUpvalue,
			value.OpGetProperty, value.OpSetProperty, value.OpGetSuper, value.OpCall,
			value.OpClass, value.OpMethod:
			i += 2
		case value.OpJump, value.OpJumpIfFalse, value.OpLoop:
			i += 3
		case value.OpClosure:
			constIdx := code[i+1]
			fn := fn.Chunk.Constants[constIdx].AsObject().(*value.ObjFunction)
			i += 2 + 2*fn.UpvalueCount
		default:
			i++
		}
	}
	return ops
}

func TestCompile_NumberLiteral(t *testing.T) {
	fn := compile(t, "42;")
	ops := opsOf(fn)
	assert.Equal(t, []value.OpCode{value.OpConstant, value.OpPop, value.OpNil, value.OpReturn}, ops)
	assert.Equal(t, 42.0, fn.Chunk.Constants[0].AsNumber())
}

func TestCompile_StringLiteral(t *testing.T) {
	fn := compile(t, `"hi";`)
	assert.Equal(t, "hi", fn.Chunk.Constants[0].AsObject().(*value.ObjString).Chars)
}

func TestCompile_PrintStatement(t *testing.T) {
	fn := compile(t, `print 1;`)
	ops := opsOf(fn)
	assert.Equal(t, []value.OpCode{value.OpConstant, value.OpPrint, value.OpNil, value.OpReturn}, ops)
}

func TestCompile_GlobalVarDeclarationAndAssignment(t *testing.T) {
	fn := compile(t, `var x = 1; x = 2;`)
	ops := opsOf(fn)
	assert.Equal(t, []value.OpCode{
		value.OpConstant, value.OpDefineGlobal,
		value.OpConstant, value.OpSetGlobal, value.OpPop,
		value.OpNil, value.OpReturn,
	}, ops)
}

func TestCompile_LocalVarUsesGetSetLocal(t *testing.T) {
	fn := compile(t, `{ var x = 1; x = x + 1; }`)
	ops := opsOf(fn)
	assert.Contains(t, ops, value.OpGetLocal)
	assert.Contains(t, ops, value.OpSetLocal)
	assert.NotContains(t, ops, value.OpDefineGlobal)
}

func TestCompile_IfElseEmitsJumps(t *testing.T) {
	fn := compile(t, `if (true) { print 1; } else { print 2; }`)
	ops := opsOf(fn)
	assert.Contains(t, ops, value.OpJumpIfFalse)
	assert.Contains(t, ops, value.OpJump)
}

func TestCompile_WhileLoopEmitsLoop(t *testing.T) {
	fn := compile(t, `while (true) { print 1; }`)
	ops := opsOf(fn)
	assert.Contains(t, ops, value.OpLoop)
	assert.Contains(t, ops, value.OpJumpIfFalse)
}

func TestCompile_ForLoopDesugarsToLoop(t *testing.T) {
	fn := compile(t, `for (var i = 0; i < 10; i = i + 1) { print i; }`)
	ops := opsOf(fn)
	assert.Contains(t, ops, value.OpLoop)
}

func TestCompile_FunctionDeclarationEmitsClosure(t *testing.T) {
	fn := compile(t, `fun add(a, b) { return a + b; } add(1, 2);`)
	ops := opsOf(fn)
	assert.Contains(t, ops, value.OpClosure)
	assert.Contains(t, ops, value.OpCall)
}

func TestCompile_ClosureCapturesUpvalue(t *testing.T) {
	fn := compile(t, `
		fun outer() {
			var x = 1;
			fun inner() { return x; }
			return inner;
		}
	`)
	var closureFn *value.ObjFunction
	for _, c := range fn.Chunk.Constants {
		if c.IsObject() {
			if f, ok := c.AsObject().(*value.ObjFunction); ok && f.Name != nil && f.Name.Chars == "outer" {
				closureFn = f
			}
		}
	}
	require.NotNil(t, closureFn)

	var innerFn *value.ObjFunction
	for _, c := range closureFn.Chunk.Constants {
		if c.IsObject() {
			if f, ok := c.AsObject().(*value.ObjFunction); ok && f.Name != nil && f.Name.Chars == "inner" {
				innerFn = f
			}
		}
	}
	require.NotNil(t, innerFn)
	assert.Equal(t, 1, innerFn.UpvalueCount)
	assert.Contains(t, opsOf(innerFn), value.OpGetUpvalue)
}

func TestCompile_ClassDeclarationEmitsClassAndMethod(t *testing.T) {
	fn := compile(t, `
		class Greeter {
			greet() { print "hi"; }
		}
	`)
	ops := opsOf(fn)
	assert.Contains(t, ops, value.OpClass)
	assert.Contains(t, ops, value.OpMethod)
}

func TestCompile_SubclassEmitsInherit(t *testing.T) {
	fn := compile(t, `
		class Animal { speak() { print "..."; } }
		class Dog < Animal { speak() { super.speak(); } }
	`)
	ops := opsOf(fn)
	assert.Contains(t, ops, value.OpInherit)

	// super.speak() compiles into Dog's own speak method, the second
	// function named "speak" in the script's constant pool.
	var dogSpeak *value.ObjFunction
	for _, c := range fn.Chunk.Constants {
		if c.IsObject() {
			if f, ok := c.AsObject().(*value.ObjFunction); ok && f.Name != nil && f.Name.Chars == "speak" {
				dogSpeak = f
			}
		}
	}
	require.NotNil(t, dogSpeak)
	assert.Contains(t, opsOf(dogSpeak), value.OpGetSuper)
}

func TestCompile_SelfInheritanceIsAnError(t *testing.T) {
	errs := compileErrors(t, `class Oops < Oops {}`)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message, "inherit from itself")
}

func TestCompile_TopLevelReturnIsAnError(t *testing.T) {
	errs := compileErrors(t, `return 1;`)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message, "top-level code")
}

func TestCompile_SelfReferencingLocalInitializerIsAnError(t *testing.T) {
	errs := compileErrors(t, `{ var a = a; }`)
	require.NotEmpty(t, errs)
}

func TestCompile_ThisOutsideClassIsAnError(t *testing.T) {
	errs := compileErrors(t, `print this;`)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message, "'this'")
}

func TestCompile_PanicModeRecoversAtNextStatement(t *testing.T) {
	errs := compileErrors(t, `
		var = 1;
		var ok = 2;
	`)
	// The first malformed declaration should produce an error, but sync()
	// should resume cleanly at "var ok" rather than cascading into more.
	assert.Len(t, errs, 1)
}
