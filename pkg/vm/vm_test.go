package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kristofer/lumen/pkg/compiler"
	"github.com/kristofer/lumen/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run compiles src and interprets it, returning captured stdout and any
// runtime error. A nil heap means one is created fresh; tests that care
// about GC behavior pass their own so they can set StressGC first.
func run(t *testing.T, heap *value.Heap, src string) (string, error) {
	t.Helper()
	if heap == nil {
		heap = value.NewHeap()
	}
	fn, errs := compiler.Compile(heap, []byte(src))
	require.Empty(t, errs)
	require.NotNil(t, fn)

	var out bytes.Buffer
	machine := New(heap)
	machine.Stdout = &out
	err := machine.Interpret(fn)
	return out.String(), err
}

func TestInterpret_ArithmeticPrecedence(t *testing.T) {
	out, err := run(t, nil, `print 1 + 2 * 3;`)
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)
}

func TestInterpret_StringConcatenation(t *testing.T) {
	out, err := run(t, nil, `var a = "he"; var b = "llo"; print a + b;`)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)
}

func TestInterpret_RecursiveFibonacci(t *testing.T) {
	out, err := run(t, nil, `
		fun fib(n) {
			if (n < 2) return n;
			return fib(n - 1) + fib(n - 2);
		}
		print fib(10);
	`)
	require.NoError(t, err)
	assert.Equal(t, "55\n", out)
}

func TestInterpret_ClosureCounterKeepsPrivateState(t *testing.T) {
	out, err := run(t, nil, `
		fun makeCounter() {
			var i = 0;
			fun c() { i = i + 1; return i; }
			return c;
		}
		var c = makeCounter();
		print c();
		print c();
		print c();
	`)
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n3\n", out)
}

func TestInterpret_MethodCallOnInstance(t *testing.T) {
	out, err := run(t, nil, `
		class Greeter {
			greet(w) { print "hi " + w; }
		}
		var g = Greeter();
		g.greet("world");
	`)
	require.NoError(t, err)
	assert.Equal(t, "hi world\n", out)
}

func TestInterpret_ForLoopAccumulates(t *testing.T) {
	out, err := run(t, nil, `
		var s = 0;
		for (var i = 1; i <= 5; i = i + 1) s = s + i;
		print s;
	`)
	require.NoError(t, err)
	assert.Equal(t, "15\n", out)
}

func TestInterpret_AddingNumberAndStringIsARuntimeError(t *testing.T) {
	_, err := run(t, nil, `print 1 + "a";`)
	require.Error(t, err)
	rtErr, ok := err.(*RuntimeError)
	require.True(t, ok)
	assert.Equal(t, "Operands must be two numbers or two strings.", rtErr.Message)
}

func TestInterpret_RuntimeErrorReportsScriptFrame(t *testing.T) {
	_, err := run(t, nil, `print 1 + "a";`)
	require.Error(t, err)
	rtErr := err.(*RuntimeError)
	require.Len(t, rtErr.Frames, 1)
	assert.True(t, rtErr.Frames[0].IsScript)
	assert.Contains(t, rtErr.Error(), "in script")
}

func TestInterpret_RuntimeErrorReportsFramesInnermostFirst(t *testing.T) {
	_, err := run(t, nil, `
		fun bad() {
			return 1 + "a";
		}
		bad();
	`)
	require.Error(t, err)
	rtErr := err.(*RuntimeError)
	require.Len(t, rtErr.Frames, 2)

	lines := strings.Split(rtErr.Error(), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "in bad()")
	assert.Contains(t, lines[2], "in script")
}

func TestInterpret_StressGCProducesIdenticalOutput(t *testing.T) {
	src := `
		class Pair {
			init(a, b) { this.a = a; this.b = b; }
			sum() { return this.a + this.b; }
		}
		fun build(n) {
			var total = 0;
			for (var i = 0; i < n; i = i + 1) {
				var p = Pair(i, i + 1);
				total = total + p.sum();
			}
			return total;
		}
		print build(50);
	`
	outNormal, err := run(t, nil, src)
	require.NoError(t, err)

	stressHeap := value.NewHeap()
	stressHeap.StressGC = true
	outStress, err := run(t, stressHeap, src)
	require.NoError(t, err)

	assert.Equal(t, outNormal, outStress)
}

func TestInterpret_ClockNativeReturnsNumber(t *testing.T) {
	heap := value.NewHeap()
	fn, errs := compiler.Compile(heap, []byte(`print clock() >= 0;`))
	require.Empty(t, errs)

	var out bytes.Buffer
	machine := New(heap)
	machine.Stdout = &out
	require.NoError(t, machine.Interpret(fn))
	assert.Equal(t, "true\n", out.String())
}

func TestInterpret_SubclassInheritsAndOverridesMethods(t *testing.T) {
	out, err := run(t, nil, `
		class Animal {
			speak() { print "..."; }
		}
		class Dog < Animal {
			speak() { print "woof"; }
			parentSpeak() { super.speak(); }
		}
		var d = Dog();
		d.speak();
		d.parentSpeak();
	`)
	require.NoError(t, err)
	assert.Equal(t, "woof\n...\n", out)
}
