package value

// OpCode is a single bytecode instruction tag, one byte wide (spec.md
// §4.3). Operands, when present, are either a single inline byte (a
// constant-pool or slot index) or a 16-bit big-endian offset (jumps and
// loops), encoded directly in the following bytes of Chunk.Code rather
// than as a separate Instruction field — this keeps the wire format
// exactly as dense as spec.md's table specifies and is what makes the
// compiler's one-byte constant index (at most 256 constants per chunk)
// and the 65535 jump-offset limit real constraints rather than
// incidental ones.
type OpCode byte

const (
	OpConstant OpCode = iota
	OpNil
	OpTrue
	OpFalse
	OpPop
	OpGetLocal
	OpSetLocal
	OpGetGlobal
	OpDefineGlobal
	OpSetGlobal
	OpGetUpvalue
	OpSetUpvalue
	OpGetProperty
	OpSetProperty
	OpGetSuper
	OpEqual
	OpGreater
	OpLess
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpNot
	OpNegate
	OpPrint
	OpJump
	OpJumpIfFalse
	OpLoop
	OpCall
	OpClosure
	OpCloseUpvalue
	OpReturn
	OpClass
	OpInherit
	OpMethod
)

var opNames = map[OpCode]string{
	OpConstant:     "OP_CONSTANT",
	OpNil:          "OP_NIL",
	OpTrue:         "OP_TRUE",
	OpFalse:        "OP_FALSE",
	OpPop:          "OP_POP",
	OpGetLocal:     "OP_GET_LOCAL",
	OpSetLocal:     "OP_SET_LOCAL",
	OpGetGlobal:    "OP_GET_GLOBAL",
	OpDefineGlobal: "OP_DEFINE_GLOBAL",
	OpSetGlobal:    "OP_SET_GLOBAL",
	OpGetUpvalue:   "OP_GET_UPVALUE",
	OpSetUpvalue:   "OP_SET_UPVALUE",
	OpGetProperty:  "OP_GET_PROPERTY",
	OpSetProperty:  "OP_SET_PROPERTY",
	OpGetSuper:     "OP_GET_SUPER",
	OpEqual:        "OP_EQUAL",
	OpGreater:      "OP_GREATER",
	OpLess:         "OP_LESS",
	OpAdd:          "OP_ADD",
	OpSubtract:     "OP_SUBTRACT",
	OpMultiply:     "OP_MULTIPLY",
	OpDivide:       "OP_DIVIDE",
	OpNot:          "OP_NOT",
	OpNegate:       "OP_NEGATE",
	OpPrint:        "OP_PRINT",
	OpJump:         "OP_JUMP",
	OpJumpIfFalse:  "OP_JUMP_IF_FALSE",
	OpLoop:         "OP_LOOP",
	OpCall:         "OP_CALL",
	OpClosure:      "OP_CLOSURE",
	OpCloseUpvalue: "OP_CLOSE_UPVALUE",
	OpReturn:       "OP_RETURN",
	OpClass:        "OP_CLASS",
	OpInherit:      "OP_INHERIT",
	OpMethod:       "OP_METHOD",
}

func (op OpCode) String() string {
	if n, ok := opNames[op]; ok {
		return n
	}
	return "OP_UNKNOWN"
}

// lineRun is one run of the run-length-encoded line table: Line repeated
// Count times. SPEC_FULL.md §7 takes spec.md §9's offered RLE variant
// instead of the naive one-int-per-byte array, since the code within one
// source line compiles to many contiguous bytes in the common case.
type lineRun struct {
	Line  int
	Count int
}

// Chunk is an appendable sequence of bytecode plus the line-number table
// and constant pool that accompany it (spec.md §3.3). A Chunk is owned by
// exactly one ObjFunction.
type Chunk struct {
	Code      []byte
	lines     []lineRun
	Constants []Value
}

// Write appends one raw byte to the chunk's code, recording it as
// belonging to source line.
func (c *Chunk) Write(b byte, line int) {
	c.Code = append(c.Code, b)
	if n := len(c.lines); n > 0 && c.lines[n-1].Line == line {
		c.lines[n-1].Count++
	} else {
		c.lines = append(c.lines, lineRun{Line: line, Count: 1})
	}
}

// WriteOp appends an opcode byte.
func (c *Chunk) WriteOp(op OpCode, line int) {
	c.Write(byte(op), line)
}

// LineAt returns the source line the byte at offset belongs to, by
// walking the run-length table. O(runs), not O(1), which is the
// acknowledged tradeoff of run-length encoding spec.md §9 permits.
func (c *Chunk) LineAt(offset int) int {
	remaining := offset
	for _, run := range c.lines {
		if remaining < run.Count {
			return run.Line
		}
		remaining -= run.Count
	}
	if len(c.lines) == 0 {
		return 0
	}
	return c.lines[len(c.lines)-1].Line
}

// AddConstant appends value to the constant pool and returns its index.
// The caller (the compiler) is responsible for erroring out when the
// returned index would exceed what a 1-byte operand can address (255);
// Chunk itself has no ceiling so tests can exercise larger pools
// directly.
func (c *Chunk) AddConstant(v Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}
