// Package wasm lowers optimized p-code into a minimal WebAssembly
// module. Translation is table-driven: each p-code opcode maps to a
// generator producing the wasm instruction sequence, and opcodes with
// no registered generator are skipped with a diagnostic rather than
// failing the whole program.
package wasm

import (
	"log/slog"
	"math"

	"github.com/tern-lang/tern/internal/pcode"
)

// Wasm opcode bytes used by the translator.
const (
	opLocalGet = 0x20
	opLocalTee = 0x22
	opI32Load  = 0x28
	opI32Store = 0x36
	opI32Const = 0x41
	opF64Const = 0x44
	opI32Add   = 0x6A
	opI32Sub   = 0x6B
	opI32Mul   = 0x6C
	opI32DivS  = 0x6D
	opF64Add   = 0xA0
	opF64Sub   = 0xA1
	opF64Mul   = 0xA2
	opF64Div   = 0xA3
	opReturn   = 0x0F
	opEnd      = 0x0B
)

// Instruction is one wasm instruction: the opcode byte, its encoded
// immediates, and the net stack effect (pushes minus pops).
type Instruction struct {
	Opcode      byte
	Immediates  []byte
	StackEffect int
}

// Generator produces the wasm sequence for one p-code instruction.
type Generator func(pcode.Instruction) []Instruction

// generators maps each translatable p-code opcode to its generator.
// Jump and branch have no entry: arbitrary instruction-index jumps do
// not map onto wasm's structured control flow, so they are dropped at
// translation with a diagnostic.
var generators = map[pcode.Opcode]Generator{
	pcode.OpConstI: genConstI,
	pcode.OpConstF: genConstF,
	pcode.OpLoad:   genLoad,
	pcode.OpStore:  genStore,
	pcode.OpDup:    genDup,
	pcode.OpAdd:    binOp(opI32Add),
	pcode.OpSub:    binOp(opI32Sub),
	pcode.OpMul:    binOp(opI32Mul),
	pcode.OpDiv:    binOp(opI32DivS),
	pcode.OpAddI:   binOp(opI32Add),
	pcode.OpSubI:   binOp(opI32Sub),
	pcode.OpMulI:   binOp(opI32Mul),
	pcode.OpDivI:   binOp(opI32DivS),
	pcode.OpAddF:   binOp(opF64Add),
	pcode.OpSubF:   binOp(opF64Sub),
	pcode.OpMulF:   binOp(opF64Mul),
	pcode.OpDivF:   binOp(opF64Div),
	pcode.OpReturn: genReturn,
}

// Translate lowers a p-code program to a flat wasm instruction
// sequence. Instructions without a registered generator are skipped.
func Translate(instrs []pcode.Instruction, log *slog.Logger) []Instruction {
	if log == nil {
		log = slog.Default()
	}
	var out []Instruction
	for i, in := range instrs {
		gen, ok := generators[in.Op]
		if !ok {
			log.Warn("no wasm lowering for opcode, skipping",
				"opcode", in.Op.String(), "index", i)
			continue
		}
		out = append(out, gen(in)...)
	}
	return out
}

func genConstI(in pcode.Instruction) []Instruction {
	return []Instruction{{
		Opcode:      opI32Const,
		Immediates:  sleb128(int64(in.Immediate)),
		StackEffect: 1,
	}}
}

// genConstF widens the stored float32 bits to a full f64 constant.
func genConstF(in pcode.Instruction) []Instruction {
	f := float64(math.Float32frombits(uint32(in.Immediate)))
	bits := math.Float64bits(f)
	imm := make([]byte, 8)
	for i := 0; i < 8; i++ {
		imm[i] = byte(bits >> (8 * i))
	}
	return []Instruction{{
		Opcode:      opF64Const,
		Immediates:  imm,
		StackEffect: 1,
	}}
}

// memarg is the alignment/offset pair for load and store: 4-byte
// natural alignment, zero offset. The p-code address becomes the base.
func memarg() []byte { return []byte{0x02, 0x00} }

func genLoad(in pcode.Instruction) []Instruction {
	return []Instruction{
		{Opcode: opI32Const, Immediates: sleb128(int64(in.Operands[0])), StackEffect: 1},
		{Opcode: opI32Load, Immediates: memarg(), StackEffect: 0},
	}
}

// genStore writes the stack top to memory while leaving it on the
// stack, matching the non-popping store of the source machine. The
// value passes through scratch local 0.
func genStore(in pcode.Instruction) []Instruction {
	return []Instruction{
		{Opcode: opLocalTee, Immediates: uleb128(0), StackEffect: 0},
		{Opcode: opI32Const, Immediates: sleb128(int64(in.Operands[0])), StackEffect: 1},
		{Opcode: opLocalGet, Immediates: uleb128(0), StackEffect: 1},
		{Opcode: opI32Store, Immediates: memarg(), StackEffect: -2},
	}
}

func genDup(pcode.Instruction) []Instruction {
	return []Instruction{
		{Opcode: opLocalTee, Immediates: uleb128(0), StackEffect: 0},
		{Opcode: opLocalGet, Immediates: uleb128(0), StackEffect: 1},
	}
}

func binOp(opcode byte) Generator {
	return func(pcode.Instruction) []Instruction {
		return []Instruction{{Opcode: opcode, StackEffect: -1}}
	}
}

func genReturn(pcode.Instruction) []Instruction {
	return []Instruction{{Opcode: opReturn, StackEffect: 0}}
}
