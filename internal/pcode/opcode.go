// Package pcode decodes and optimizes the fixed-format p-code
// instruction stream the front end emits. It is the upper half of the
// lowering pipeline; the wasm package translates and serializes its
// output.
package pcode

// Opcode is a p-code operation.
type Opcode byte

const (
	// OpHalt is the stream sentinel; decoding stops when it is read.
	OpHalt Opcode = 0x00

	// Constant loads carry a 4-byte immediate.
	OpConstI Opcode = 0x01 // push integer constant
	OpConstF Opcode = 0x02 // push float constant (float32 bits)

	// Memory traffic. Store writes the stack top without popping it,
	// which is what makes the store/load peephole sound.
	OpLoad  Opcode = 0x10 // push word at operand address
	OpStore Opcode = 0x11 // write stack top to operand address
	OpDup   Opcode = 0x12 // duplicate stack top

	// Generic arithmetic; the optimizer rewrites these to the typed
	// forms when static inference proves both operands share one
	// primitive numeric type.
	OpAdd Opcode = 0x20
	OpSub Opcode = 0x21
	OpMul Opcode = 0x22
	OpDiv Opcode = 0x23

	// Typed arithmetic.
	OpAddI Opcode = 0x30
	OpSubI Opcode = 0x31
	OpMulI Opcode = 0x32
	OpDivI Opcode = 0x33
	OpAddF Opcode = 0x34
	OpSubF Opcode = 0x35
	OpMulF Opcode = 0x36
	OpDivF Opcode = 0x37

	// Control flow. Targets are instruction indexes in the decoded
	// stream.
	OpJump   Opcode = 0x40 // unconditional, one successor
	OpBranch Opcode = 0x41 // pops condition; target plus fallthrough
	OpReturn Opcode = 0x50 // no fallthrough successor
)

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "op?"
}

var opcodeNames = map[Opcode]string{
	OpHalt:   "halt",
	OpConstI: "const.i",
	OpConstF: "const.f",
	OpLoad:   "load",
	OpStore:  "store",
	OpDup:    "dup",
	OpAdd:    "add",
	OpSub:    "sub",
	OpMul:    "mul",
	OpDiv:    "div",
	OpAddI:   "add.i",
	OpSubI:   "sub.i",
	OpMulI:   "mul.i",
	OpDivI:   "div.i",
	OpAddF:   "add.f",
	OpSubF:   "sub.f",
	OpMulF:   "mul.f",
	OpDivF:   "div.f",
	OpJump:   "jump",
	OpBranch: "branch",
	OpReturn: "return",
}

// operandCounts maps each opcode to its fixed operand count; opcodes
// not listed take zero operands.
var operandCounts = map[Opcode]int{
	OpLoad:   1,
	OpStore:  1,
	OpJump:   1,
	OpBranch: 1,
}

// OperandCount returns the fixed operand count for an opcode.
func OperandCount(op Opcode) int {
	return operandCounts[op]
}

// loadsConstant reports whether the opcode carries a 4-byte immediate.
func loadsConstant(op Opcode) bool {
	return op == OpConstI || op == OpConstF
}

// IsGenericArith reports whether the opcode is untyped arithmetic.
func (op Opcode) IsGenericArith() bool {
	return op >= OpAdd && op <= OpDiv
}

// NumType is the conservative static type the optimizer infers for
// stack slots.
type NumType byte

const (
	NumUnknown NumType = iota
	NumInt
	NumFloat
)

// Metadata travels with each instruction through the pipeline.
type Metadata struct {
	SrcOffset int     // byte offset in the original buffer
	Inferred  NumType // result type per static inference
	Frequency uint64  // execution frequency if profile data is attached
	Hot       bool
}

// Instruction is one decoded p-code instruction.
type Instruction struct {
	Op        Opcode
	Operands  []uint32
	Immediate int32
	HasImm    bool
	Meta      Metadata
}

// Target returns the jump target for control-flow instructions.
func (in Instruction) Target() int {
	if len(in.Operands) == 0 {
		return -1
	}
	return int(in.Operands[0])
}
