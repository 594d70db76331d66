// Package isa packs and unpacks the three instruction formats of the tiny
// MIPS32-like machine this system targets, and carries the opcode/function
// constants the compiler emits and the interpreter dispatches on.
package isa

import "selfsys/internal/arith"

// Word is a 32-bit signed machine word: the only scalar type this machine
// has, for registers, memory cells, and encoded instructions alike.
type Word = int32

// Opcodes recognized by the decoder. The numbering matches the real MIPS32
// encoding the emulated machine imitates.
const (
	OpSpecial int32 = 0
	OpJ       int32 = 2
	OpJAL     int32 = 3
	OpBEQ     int32 = 4
	OpBNE     int32 = 5
	OpADDIU   int32 = 9
	OpLW      int32 = 35
	OpSW      int32 = 43
)

// SPECIAL functions, dispatched when Opcode == OpSpecial.
const (
	FuncNOP     int32 = 0
	FuncJR      int32 = 8
	FuncSYSCALL int32 = 12
	FuncMFHI    int32 = 16
	FuncMFLO    int32 = 18
	FuncMULTU   int32 = 25
	FuncDIVU    int32 = 27
	FuncADDU    int32 = 33
	FuncSUBU    int32 = 35
	FuncSLT     int32 = 42
	FuncTEQ     int32 = 52
)

var opcodeNames = map[int32]string{
	OpSpecial: "SPECIAL",
	OpJ:       "J",
	OpJAL:     "JAL",
	OpBEQ:     "BEQ",
	OpBNE:     "BNE",
	OpADDIU:   "ADDIU",
	OpLW:      "LW",
	OpSW:      "SW",
}

var functionNames = map[int32]string{
	FuncNOP:     "NOP",
	FuncJR:      "JR",
	FuncSYSCALL: "SYSCALL",
	FuncMFHI:    "MFHI",
	FuncMFLO:    "MFLO",
	FuncMULTU:   "MULTU",
	FuncDIVU:    "DIVU",
	FuncADDU:    "ADDU",
	FuncSUBU:    "SUBU",
	FuncSLT:     "SLT",
	FuncTEQ:     "TEQ",
}

// Instruction holds every field a word could be decoded into; which fields
// are meaningful depends on Opcode (and, for SPECIAL, Function).
type Instruction struct {
	Opcode     int32
	Rs         int32
	Rt         int32
	Rd         int32
	Shamt      int32
	Function   int32
	Immediate  int32 // sign-extended 16-bit I-format immediate
	InstrIndex int32 // 26-bit J-format target index
}

// extractField reads a width-bit field beginning at bit offset pos (from the
// LSB) the same way arith.LoadCharacter pulls a 7-bit character out of a
// word: left-shift the field's top bit up to the sign position, then
// right-shift it back down, which clears everything above it for free
// without a native mask operation.
func extractField(word int32, pos, width int32) int32 {
	shift := 32 - pos - width
	return arith.RightShift(arith.LeftShift(word, shift), 32-width)
}

// SignExtend widens a 16-bit two's-complement immediate to a full word.
func SignExtend(imm int32) int32 {
	if imm < arith.TwoToThePowerOf(15) {
		return imm
	}
	return imm - arith.TwoToThePowerOf(16)
}

// Decode unpacks every field of word. Immediate is already sign-extended;
// InstrIndex is the raw unsigned 26-bit index.
func Decode(word int32) Instruction {
	return Instruction{
		Opcode:     extractField(word, 26, 6),
		Rs:         extractField(word, 21, 5),
		Rt:         extractField(word, 16, 5),
		Rd:         extractField(word, 11, 5),
		Shamt:      extractField(word, 6, 5),
		Function:   extractField(word, 0, 6),
		Immediate:  SignExtend(extractField(word, 0, 16)),
		InstrIndex: extractField(word, 0, 26),
	}
}

// EncodeR packs an R-format instruction: opcode|rs|rt|rd|shamt|function.
func EncodeR(opcode, rs, rt, rd, shamt, function int32) int32 {
	return arith.LeftShift(opcode, 26) +
		arith.LeftShift(rs, 21) +
		arith.LeftShift(rt, 16) +
		arith.LeftShift(rd, 11) +
		arith.LeftShift(shamt, 6) +
		function
}

// EncodeI packs an I-format instruction: opcode|rs|rt|immediate. A negative
// immediate is converted to its 16-bit two's-complement encoding here.
// immediate is not truncated: a value outside [-32768, 65535] spills into
// the rt field.
func EncodeI(opcode, rs, rt, immediate int32) int32 {
	imm16 := immediate
	if imm16 < 0 {
		imm16 += arith.TwoToThePowerOf(16)
	}
	return arith.LeftShift(opcode, 26) +
		arith.LeftShift(rs, 21) +
		arith.LeftShift(rt, 16) +
		imm16
}

// EncodeJ packs a J-format instruction: opcode|instr_index.
func EncodeJ(opcode, instrIndex int32) int32 {
	return arith.LeftShift(opcode, 26) + instrIndex
}

// OpcodeName returns the mnemonic for an opcode, or "UNKNOWN".
func OpcodeName(opcode int32) string {
	if name, ok := opcodeNames[opcode]; ok {
		return name
	}
	return "UNKNOWN"
}

// FunctionName returns the mnemonic for a SPECIAL function, or "UNKNOWN".
func FunctionName(function int32) string {
	if name, ok := functionNames[function]; ok {
		return name
	}
	return "UNKNOWN"
}

// String renders an instruction's mnemonic only (the SPECIAL function's
// name for SPECIAL instructions); register and immediate fields are not
// included.
func (in Instruction) String() string {
	if in.Opcode == OpSpecial {
		return FunctionName(in.Function)
	}
	switch in.Opcode {
	case OpJ, OpJAL:
		return OpcodeName(in.Opcode)
	default:
		return OpcodeName(in.Opcode)
	}
}
