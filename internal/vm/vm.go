// Package vm implements a bounded eBPF-subset interpreter. Programs are
// 8-byte fixed-width instructions operating on registers r0–r10. All memory
// accesses are translated through an explicit RegionTable and every
// control-flow instruction consumes one unit of a branch budget; exhausting
// the budget is the sole abort path for a running program.
package vm

import (
	"encoding/binary"
	"fmt"
)

// InstSize is the fixed encoded size of one instruction.
const InstSize = 8

// NumRegisters is the register file size; r10 is the read-only frame pointer.
const NumRegisters = 11

// HelperFn is a host function callable from a program via the call
// instruction. Arguments arrive in r1–r5, the return value lands in r0.
type HelperFn func(r1, r2, r3, r4, r5 uint64) uint64

// Machine interprets one program against a fixed region table. It is not
// safe for concurrent use; callers serialize access (see the engine package).
type Machine struct {
	Table   *RegionTable
	Budget  int
	Helpers map[int32]HelperFn
}

// Run executes prog to completion, branch-budget exhaustion, or a fault.
// ctxAddr is placed in r1 and frameTop in r10 before the first instruction.
// prog length must be a non-zero multiple of InstSize; the caller validates
// this before dispatching here.
func (m *Machine) Run(prog []byte, ctxAddr, frameTop uint64) Outcome {
	ninst := len(prog) / InstSize
	budget := m.Budget

	var reg [NumRegisters]uint64
	reg[1] = ctxAddr
	reg[10] = frameTop

	for pc := 0; ; pc++ {
		if pc < 0 || pc >= ninst {
			return fault(fmt.Sprintf("execution reached instruction %d outside program of %d instructions", pc, ninst))
		}
		ins := prog[pc*InstSize : pc*InstSize+InstSize]
		op := ins[0]
		dst := ins[1] & 0x0f
		src := ins[1] >> 4
		off := int16(binary.LittleEndian.Uint16(ins[2:4]))
		imm := int32(binary.LittleEndian.Uint32(ins[4:8]))

		if dst >= NumRegisters || src >= NumRegisters {
			return fault(fmt.Sprintf("invalid register in instruction %d", pc))
		}

		switch op & 0x07 {
		case classALU64, classALU32:
			if dst == 10 {
				return fault("write to read-only frame pointer r10")
			}
			srcVal := uint64(imm)
			if op&0x08 != 0 { // register source form
				srcVal = reg[src]
			}
			out, err := aluOp(op, reg[dst], srcVal)
			if err != nil {
				return fault(fmt.Sprintf("instruction %d: %v", pc, err))
			}
			reg[dst] = out

		case classLD:
			// lddw is the only load-class instruction: a 64-bit immediate
			// spanning two instruction slots.
			if op != opLDDW {
				return fault(fmt.Sprintf("unknown opcode 0x%02x at instruction %d", op, pc))
			}
			if dst == 10 {
				return fault("write to read-only frame pointer r10")
			}
			if pc+1 >= ninst {
				return fault("truncated lddw at end of program")
			}
			next := prog[(pc+1)*InstSize : (pc+2)*InstSize]
			hi := binary.LittleEndian.Uint32(next[4:8])
			reg[dst] = uint64(uint32(imm)) | uint64(hi)<<32
			pc++

		case classLDX:
			size, ok := memSize(op)
			if !ok {
				return fault(fmt.Sprintf("unknown opcode 0x%02x at instruction %d", op, pc))
			}
			if dst == 10 {
				return fault("write to read-only frame pointer r10")
			}
			b, err := m.Table.translate(reg[src]+uint64(int64(off)), size, false)
			if err != nil {
				return fault(fmt.Sprintf("instruction %d: %v", pc, err))
			}
			reg[dst] = loadN(b, size)

		case classST, classSTX:
			size, ok := memSize(op)
			if !ok {
				return fault(fmt.Sprintf("unknown opcode 0x%02x at instruction %d", op, pc))
			}
			b, err := m.Table.translate(reg[dst]+uint64(int64(off)), size, true)
			if err != nil {
				return fault(fmt.Sprintf("instruction %d: %v", pc, err))
			}
			val := uint64(imm)
			if op&0x07 == classSTX {
				val = reg[src]
			}
			storeN(b, size, val)

		case classJMP:
			if op == opEXIT {
				return completed(int64(reg[0]))
			}
			// Every branch instruction, taken or not, consumes budget. This
			// is the sandbox's only execution bound.
			if budget == 0 {
				return budgetExhausted()
			}
			budget--

			if op == opCALL {
				fn, ok := m.Helpers[imm]
				if !ok {
					return fault(fmt.Sprintf("call to unknown helper %d at instruction %d", imm, pc))
				}
				reg[0] = fn(reg[1], reg[2], reg[3], reg[4], reg[5])
				continue
			}

			srcVal := uint64(imm)
			if op&0x08 != 0 {
				srcVal = reg[src]
			}
			taken, err := jumpTaken(op, reg[dst], srcVal)
			if err != nil {
				return fault(fmt.Sprintf("instruction %d: %v", pc, err))
			}
			if taken {
				target := pc + int(off)
				if target < -1 || target >= ninst {
					return fault(fmt.Sprintf("jump from instruction %d to %d outside program", pc, target+1))
				}
				pc = target
			}

		default:
			return fault(fmt.Sprintf("unknown instruction class 0x%02x at instruction %d", op, pc))
		}
	}
}

// Instruction classes (low 3 bits of the opcode).
const (
	classLD    = 0x00
	classLDX   = 0x01
	classST    = 0x02
	classSTX   = 0x03
	classALU32 = 0x04
	classJMP   = 0x05
	classALU64 = 0x07
)

const (
	opLDDW = 0x18
	opCALL = 0x85
	opEXIT = 0x95
)

// ALU operation codes (high 4 bits of the opcode).
const (
	aluADD  = 0x00
	aluSUB  = 0x10
	aluMUL  = 0x20
	aluDIV  = 0x30
	aluOR   = 0x40
	aluAND  = 0x50
	aluLSH  = 0x60
	aluRSH  = 0x70
	aluNEG  = 0x80
	aluMOD  = 0x90
	aluXOR  = 0xa0
	aluMOV  = 0xb0
	aluARSH = 0xc0
)

// Jump condition codes (high 4 bits of the opcode).
const (
	jmpJA   = 0x00
	jmpJEQ  = 0x10
	jmpJGT  = 0x20
	jmpJGE  = 0x30
	jmpJSET = 0x40
	jmpJNE  = 0x50
	jmpJSGT = 0x60
	jmpJSGE = 0x70
	jmpJLT  = 0xa0
	jmpJLE  = 0xb0
	jmpJSLT = 0xc0
	jmpJSLE = 0xd0
)

func aluOp(op uint8, dstVal, srcVal uint64) (uint64, error) {
	wide := op&0x07 == classALU64
	shiftMask := uint64(31)
	if wide {
		shiftMask = 63
	}

	var out uint64
	switch op & 0xf0 {
	case aluADD:
		out = dstVal + srcVal
	case aluSUB:
		out = dstVal - srcVal
	case aluMUL:
		out = dstVal * srcVal
	case aluDIV:
		if trunc(srcVal, wide) == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		out = trunc(dstVal, wide) / trunc(srcVal, wide)
	case aluOR:
		out = dstVal | srcVal
	case aluAND:
		out = dstVal & srcVal
	case aluLSH:
		out = dstVal << (srcVal & shiftMask)
	case aluRSH:
		out = trunc(dstVal, wide) >> (srcVal & shiftMask)
	case aluNEG:
		out = -dstVal
	case aluMOD:
		if trunc(srcVal, wide) == 0 {
			return 0, fmt.Errorf("modulo by zero")
		}
		out = trunc(dstVal, wide) % trunc(srcVal, wide)
	case aluXOR:
		out = dstVal ^ srcVal
	case aluMOV:
		out = srcVal
	case aluARSH:
		if wide {
			out = uint64(int64(dstVal) >> (srcVal & shiftMask))
		} else {
			out = uint64(uint32(int32(uint32(dstVal)) >> (srcVal & shiftMask)))
		}
	default:
		return 0, fmt.Errorf("unknown ALU opcode 0x%02x", op)
	}
	if !wide {
		out = uint64(uint32(out))
	}
	return out, nil
}

func trunc(v uint64, wide bool) uint64 {
	if wide {
		return v
	}
	return uint64(uint32(v))
}

func jumpTaken(op uint8, dstVal, srcVal uint64) (bool, error) {
	switch op & 0xf0 {
	case jmpJA:
		return true, nil
	case jmpJEQ:
		return dstVal == srcVal, nil
	case jmpJGT:
		return dstVal > srcVal, nil
	case jmpJGE:
		return dstVal >= srcVal, nil
	case jmpJLT:
		return dstVal < srcVal, nil
	case jmpJLE:
		return dstVal <= srcVal, nil
	case jmpJSET:
		return dstVal&srcVal != 0, nil
	case jmpJNE:
		return dstVal != srcVal, nil
	case jmpJSGT:
		return int64(dstVal) > int64(srcVal), nil
	case jmpJSGE:
		return int64(dstVal) >= int64(srcVal), nil
	case jmpJSLT:
		return int64(dstVal) < int64(srcVal), nil
	case jmpJSLE:
		return int64(dstVal) <= int64(srcVal), nil
	default:
		return false, fmt.Errorf("unknown jump opcode 0x%02x", op)
	}
}

// memSize decodes the access width (bits 3–4 of the opcode) for ld/st ops.
func memSize(op uint8) (int, bool) {
	switch op & 0x18 {
	case 0x00:
		return 4, true
	case 0x08:
		return 2, true
	case 0x10:
		return 1, true
	case 0x18:
		return 8, true
	}
	return 0, false
}

func loadN(b []byte, size int) uint64 {
	switch size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

func storeN(b []byte, size int, v uint64) {
	switch size {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}
}
