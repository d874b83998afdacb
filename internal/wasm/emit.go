package wasm

import "bytes"

// Section ids in the order the module emits them.
const (
	secType     = 0x01
	secImport   = 0x02
	secFunction = 0x03
	secMemory   = 0x05
	secGlobal   = 0x06
	secExport   = 0x07
	secCode     = 0x0A
)

var moduleHeader = []byte{
	0x00, 0x61, 0x73, 0x6D, // magic "\0asm"
	0x01, 0x00, 0x00, 0x00, // version 1
}

// EmitModule wraps a translated instruction body in a complete wasm
// module: one nullary function type, no imports, one function, one
// memory page, no globals, the function exported as "main", and a code
// section with a single i32 scratch local. Every section length is
// ULEB128 encoded.
func EmitModule(body []Instruction) []byte {
	var b bytes.Buffer
	b.Write(moduleHeader)

	// type: 1 entry, func () -> ()
	section(&b, secType, []byte{0x01, 0x60, 0x00, 0x00})
	// import: empty vector
	section(&b, secImport, []byte{0x00})
	// function: 1 entry referencing type 0
	section(&b, secFunction, []byte{0x01, 0x00})
	// memory: 1 entry, limits min 1 page no max
	section(&b, secMemory, []byte{0x01, 0x00, 0x01})
	// global: empty vector
	section(&b, secGlobal, []byte{0x00})
	// export: "main" as func 0
	section(&b, secExport, []byte{0x01, 0x04, 'm', 'a', 'i', 'n', 0x00, 0x00})
	section(&b, secCode, codePayload(body))

	return b.Bytes()
}

func codePayload(body []Instruction) []byte {
	var fn bytes.Buffer
	// one local group: 1 x i32
	fn.Write([]byte{0x01, 0x01, 0x7F})
	for _, in := range body {
		fn.WriteByte(in.Opcode)
		fn.Write(in.Immediates)
	}
	fn.WriteByte(opEnd)

	var out bytes.Buffer
	out.WriteByte(0x01) // function count
	out.Write(uleb128(uint64(fn.Len())))
	out.Write(fn.Bytes())
	return out.Bytes()
}

func section(b *bytes.Buffer, id byte, payload []byte) {
	b.WriteByte(id)
	b.Write(uleb128(uint64(len(payload))))
	b.Write(payload)
}

func uleb128(v uint64) []byte {
	var out []byte
	for {
		c := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		out = append(out, c)
		if v == 0 {
			return out
		}
	}
}

func sleb128(v int64) []byte {
	var out []byte
	for {
		c := byte(v & 0x7F)
		v >>= 7
		done := (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0)
		if !done {
			c |= 0x80
		}
		out = append(out, c)
		if done {
			return out
		}
	}
}
