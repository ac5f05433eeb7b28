package vm

import "encoding/binary"

// Minimal instruction builders. Used by tests and provisioning tooling to
// assemble small programs without an external toolchain.

// Inst encodes one raw instruction.
func Inst(op, dst, src uint8, off int16, imm int32) []byte {
	b := make([]byte, InstSize)
	b[0] = op
	b[1] = src<<4 | dst&0x0f
	binary.LittleEndian.PutUint16(b[2:4], uint16(off))
	binary.LittleEndian.PutUint32(b[4:8], uint32(imm))
	return b
}

// Program concatenates instructions into a single bytecode image.
func Program(ins ...[]byte) []byte {
	var out []byte
	for _, i := range ins {
		out = append(out, i...)
	}
	return out
}

func MovImm(dst uint8, imm int32) []byte { return Inst(0xb7, dst, 0, 0, imm) }
func MovReg(dst, src uint8) []byte { return Inst(0xbf, dst, src, 0, 0) }
func AddImm(dst uint8, imm int32) []byte { return Inst(0x07, dst, 0, 0, imm) }
func AddReg(dst, src uint8) []byte { return Inst(0x0f, dst, src, 0, 0) }
func DivImm(dst uint8, imm int32) []byte { return Inst(0x37, dst, 0, 0, imm) }

// LdDW builds the two-slot 64-bit immediate load.
func LdDW(dst uint8, imm uint64) []byte {
	return Program(
		Inst(0x18, dst, 0, 0, int32(uint32(imm))),
		Inst(0x00, 0, 0, 0, int32(uint32(imm>>32))),
	)
}

func LdxB(dst, src uint8, off int16) []byte { return Inst(0x71, dst, src, off, 0) }
func LdxW(dst, src uint8, off int16) []byte { return Inst(0x61, dst, src, off, 0) }
func LdxDW(dst, src uint8, off int16) []byte { return Inst(0x79, dst, src, off, 0) }

func StB(dst uint8, off int16, imm int32) []byte { return Inst(0x72, dst, 0, off, imm) }
func StW(dst uint8, off int16, imm int32) []byte { return Inst(0x62, dst, 0, off, imm) }
func StxDW(dst, src uint8, off int16) []byte { return Inst(0x7b, dst, src, off, 0) }
func StxW(dst, src uint8, off int16) []byte { return Inst(0x63, dst, src, off, 0) }

func Ja(off int16) []byte { return Inst(0x05, 0, 0, off, 0) }
func JeqImm(dst uint8, off int16, imm int32) []byte { return Inst(0x15, dst, 0, off, imm) }
func JneImm(dst uint8, off int16, imm int32) []byte { return Inst(0x55, dst, 0, off, imm) }

func Call(helper int32) []byte { return Inst(opCALL, 0, 0, 0, helper) }
func Exit() []byte             { return Inst(opEXIT, 0, 0, 0, 0) }
