package pcode

import (
	"bytes"
	"encoding/binary"
	"log/slog"
)

// SectionMarker is the fixed 4-byte marker that opens the code section
// in a p-code buffer.
var SectionMarker = []byte{'T', 'E', 'R', 'N'}

// Decode locates the section marker and iteratively reads instructions
// until the sentinel opcode or the end of the buffer.
//
// Decoding is deliberately tolerant: a truncated operand or immediate
// stops the decoder at the failure point and returns the instructions
// decoded so far. Malformed input past the marker never produces an
// error, only a warning and a shorter program.
func Decode(buf []byte, log *slog.Logger) []Instruction {
	if log == nil {
		log = slog.Default()
	}

	start := bytes.Index(buf, SectionMarker)
	if start < 0 {
		log.Warn("p-code section marker not found", "len", len(buf))
		return nil
	}
	pos := start + len(SectionMarker)

	var out []Instruction
	for pos < len(buf) {
		op := Opcode(buf[pos])
		srcOffset := pos
		pos++
		if op == OpHalt {
			break
		}

		n := OperandCount(op)
		if pos+4*n > len(buf) {
			log.Warn("truncated operands, stopping decode",
				"opcode", op.String(), "offset", srcOffset)
			break
		}
		var operands []uint32
		if n > 0 {
			operands = make([]uint32, n)
			for i := 0; i < n; i++ {
				operands[i] = binary.LittleEndian.Uint32(buf[pos:])
				pos += 4
			}
		}

		in := Instruction{
			Op:       op,
			Operands: operands,
			Meta:     Metadata{SrcOffset: srcOffset},
		}
		if loadsConstant(op) {
			if pos+4 > len(buf) {
				log.Warn("truncated immediate, stopping decode",
					"opcode", op.String(), "offset", srcOffset)
				break
			}
			in.Immediate = int32(binary.LittleEndian.Uint32(buf[pos:]))
			in.HasImm = true
			pos += 4
		}
		out = append(out, in)
	}
	return out
}

// Encode serializes instructions back into marker-prefixed buffer
// form, terminated by the sentinel. Used by tests and by tooling that
// round-trips p-code files.
func Encode(instrs []Instruction) []byte {
	var b bytes.Buffer
	b.Write(SectionMarker)
	for _, in := range instrs {
		b.WriteByte(byte(in.Op))
		for _, op := range in.Operands {
			var w [4]byte
			binary.LittleEndian.PutUint32(w[:], op)
			b.Write(w[:])
		}
		if in.HasImm {
			var w [4]byte
			binary.LittleEndian.PutUint32(w[:], uint32(in.Immediate))
			b.Write(w[:])
		}
	}
	b.WriteByte(byte(OpHalt))
	return b.Bytes()
}
