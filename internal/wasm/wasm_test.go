package wasm

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tern-lang/tern/internal/pcode"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTranslateConstAndReturn(t *testing.T) {
	in := []pcode.Instruction{
		{Op: pcode.OpConstI, Immediate: 5, HasImm: true},
		{Op: pcode.OpReturn},
	}

	out := Translate(in, discard())

	require.Len(t, out, 2)
	assert.Equal(t, byte(opI32Const), out[0].Opcode)
	assert.Equal(t, []byte{0x05}, out[0].Immediates)
	assert.Equal(t, byte(opReturn), out[1].Opcode)
}

func TestTranslateSkipsUnregistered(t *testing.T) {
	in := []pcode.Instruction{
		{Op: pcode.OpConstI, Immediate: 1, HasImm: true},
		{Op: pcode.OpBranch, Operands: []uint32{0}},
		{Op: pcode.OpJump, Operands: []uint32{0}},
		{Op: pcode.OpReturn},
	}

	out := Translate(in, discard())

	// Branch and jump are dropped, the rest lowers.
	require.Len(t, out, 2)
	assert.Equal(t, byte(opI32Const), out[0].Opcode)
	assert.Equal(t, byte(opReturn), out[1].Opcode)
}

func TestTranslateStoreKeepsValue(t *testing.T) {
	in := []pcode.Instruction{{Op: pcode.OpStore, Operands: []uint32{8}}}

	out := Translate(in, discard())

	require.Len(t, out, 4)
	assert.Equal(t, byte(opLocalTee), out[0].Opcode)
	assert.Equal(t, byte(opI32Const), out[1].Opcode)
	assert.Equal(t, byte(opLocalGet), out[2].Opcode)
	assert.Equal(t, byte(opI32Store), out[3].Opcode)

	// The sequence leaves the stored value behind.
	net := 0
	for _, i := range out {
		net += i.StackEffect
	}
	assert.Equal(t, 0, net)
}

func TestTranslateFloatConstWidens(t *testing.T) {
	// float32 1.5 widens to the f64 1.5 bit pattern.
	in := []pcode.Instruction{{Op: pcode.OpConstF, Immediate: 0x3FC00000, HasImm: true}}

	out := Translate(in, discard())

	require.Len(t, out, 1)
	assert.Equal(t, byte(opF64Const), out[0].Opcode)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xF8, 0x3F}, out[0].Immediates)
}

func TestTranslateTypedArith(t *testing.T) {
	tests := []struct {
		op   pcode.Opcode
		want byte
	}{
		{pcode.OpAdd, opI32Add},
		{pcode.OpAddI, opI32Add},
		{pcode.OpDivI, opI32DivS},
		{pcode.OpAddF, opF64Add},
		{pcode.OpDivF, opF64Div},
	}
	for _, tc := range tests {
		out := Translate([]pcode.Instruction{{Op: tc.op}}, discard())
		require.Len(t, out, 1, "%s", tc.op)
		assert.Equal(t, tc.want, out[0].Opcode, "%s", tc.op)
		assert.Equal(t, -1, out[0].StackEffect, "%s", tc.op)
	}
}

func TestEmitModuleLayout(t *testing.T) {
	body := Translate([]pcode.Instruction{
		{Op: pcode.OpConstI, Immediate: 5, HasImm: true},
		{Op: pcode.OpReturn},
	}, discard())

	mod := EmitModule(body)

	want := []byte{
		0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00, // header
		0x01, 0x04, 0x01, 0x60, 0x00, 0x00, // type
		0x02, 0x01, 0x00, // import
		0x03, 0x02, 0x01, 0x00, // function
		0x05, 0x03, 0x01, 0x00, 0x01, // memory
		0x06, 0x01, 0x00, // global
		0x07, 0x08, 0x01, 0x04, 'm', 'a', 'i', 'n', 0x00, 0x00, // export
		0x0A, 0x09, 0x01, 0x07, 0x01, 0x01, 0x7F, 0x41, 0x05, 0x0F, 0x0B, // code
	}
	assert.Equal(t, want, mod)
}

func TestEmitModuleEmptyBody(t *testing.T) {
	mod := EmitModule(nil)

	// Header plus all seven sections, code holding just locals and end.
	assert.Equal(t, moduleHeader, mod[:8])
	assert.Equal(t, byte(secCode), mod[len(mod)-8])
	assert.Equal(t, byte(opEnd), mod[len(mod)-1])
}

func TestLEB128(t *testing.T) {
	assert.Equal(t, []byte{0x00}, uleb128(0))
	assert.Equal(t, []byte{0x7F}, uleb128(127))
	assert.Equal(t, []byte{0x80, 0x01}, uleb128(128))

	assert.Equal(t, []byte{0x05}, sleb128(5))
	assert.Equal(t, []byte{0x7F}, sleb128(-1))
	assert.Equal(t, []byte{0x40}, sleb128(-64))
	assert.Equal(t, []byte{0xC0, 0x00}, sleb128(64))
	assert.Equal(t, []byte{0xFF, 0x00}, sleb128(127))
}
