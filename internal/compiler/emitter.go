package compiler

import (
	"errors"

	"selfsys/internal/isa"
)

var (
	errTempPoolExhausted = errors.New("compiler: temporary register pool exhausted")
)

// emitter owns the growing instruction array and the delay-slot invariant:
// every branch, jump, JR, MFHI, and MFLO is immediately followed by the NOP
// count its pipeline hazard requires, and that count is counted in every
// subsequent address computation because the NOPs are emitted as real words.
type emitter struct {
	instructions []int32
}

func newEmitter() *emitter {
	return &emitter{}
}

// here returns the address (word index) the next emitted instruction will
// occupy.
func (e *emitter) here() int32 {
	return int32(len(e.instructions))
}

func (e *emitter) emit(word int32) int32 {
	addr := e.here()
	e.instructions = append(e.instructions, word)
	return addr
}

func (e *emitter) emitNOP() int32 {
	return e.emit(isa.EncodeR(isa.OpSpecial, 0, 0, 0, 0, isa.FuncNOP))
}

func (e *emitter) emitR(opcode, rs, rt, rd, shamt, function int32) int32 {
	return e.emit(isa.EncodeR(opcode, rs, rt, rd, shamt, function))
}

func (e *emitter) emitI(opcode, rs, rt, immediate int32) int32 {
	return e.emit(isa.EncodeI(opcode, rs, rt, immediate))
}

// emitBranch emits BEQ/BNE with a placeholder immediate of 0 and a trailing
// NOP, returning the branch instruction's own address so the caller can
// patch it later with patchBranch once the target is known.
func (e *emitter) emitBranch(opcode, rs, rt int32) int32 {
	addr := e.emitI(opcode, rs, rt, 0)
	e.emitNOP()
	return addr
}

// patchBranch rewrites the I-format immediate of the branch at addr to the
// relative offset to target, both given as word indices (as here() returns
// them): (target*4 - addr*4 - 4)/4, since the machine adds the offset times
// four to the PC after it has already advanced past the branch.
func (e *emitter) patchBranch(addr, target int32) {
	d := isa.Decode(e.instructions[addr])
	rel := (target*4 - addr*4 - 4) / 4
	e.instructions[addr] = isa.EncodeI(d.Opcode, d.Rs, d.Rt, rel)
}

// emitJ emits a J or JAL to an already-known absolute word address, with a
// trailing NOP.
func (e *emitter) emitJ(opcode, target int32) int32 {
	addr := e.emit(isa.EncodeJ(opcode, target))
	e.emitNOP()
	return addr
}

// emitForwardJ emits a J or JAL threaded into a fixup chain (chainHead is
// the previous unresolved site, or 0), with a trailing NOP, and returns the
// new chain head (this instruction's own address).
func (e *emitter) emitForwardJ(opcode, chainHead int32) int32 {
	addr := e.emit(isa.EncodeJ(opcode, chainHead))
	e.emitNOP()
	return addr
}

// resolveFixups walks the chain starting at chainHead, patching every call
// site's instr_index to target, following the spec's "instr_index threads a
// linked list terminated by index 0" convention.
func (e *emitter) resolveFixups(chainHead, target int32) {
	addr := chainHead
	for addr != 0 {
		d := isa.Decode(e.instructions[addr])
		next := d.InstrIndex
		e.instructions[addr] = isa.EncodeJ(d.Opcode, target)
		addr = next
	}
}

// emitSyscall emits the SYSCALL instruction itself; the caller is
// responsible for loading v0 (and a0-a3) beforehand. No delay slot follows
// it, unlike JR/branches/jumps/MFHI/MFLO.
func (e *emitter) emitSyscall() int32 {
	return e.emitR(isa.OpSpecial, 0, 0, 0, 0, isa.FuncSYSCALL)
}

func (e *emitter) emitJR(rs int32) int32 {
	addr := e.emitR(isa.OpSpecial, rs, 0, 0, 0, isa.FuncJR)
	e.emitNOP()
	return addr
}

func (e *emitter) emitMFHI(rd int32) int32 {
	addr := e.emitR(isa.OpSpecial, 0, 0, rd, 0, isa.FuncMFHI)
	e.emitNOP()
	e.emitNOP()
	return addr
}

func (e *emitter) emitMFLO(rd int32) int32 {
	addr := e.emitR(isa.OpSpecial, 0, 0, rd, 0, isa.FuncMFLO)
	e.emitNOP()
	e.emitNOP()
	return addr
}

// loadConstant synthesizes an arbitrary 32-bit value into reg. Magnitudes
// that fit a signed 16-bit immediate load in one ADDIU; everything else
// (including IntMin) is built from the value's two's-complement bit pattern
// in three chunks, the top 4 bits and then two 14-bit chunks, accumulated
// via repeated "multiply the
// register by 2^14, then add the next chunk" — the only way to synthesize a
// wide constant on a machine whose only literal-loading instruction is
// ADDIU with a 16-bit immediate.
func (e *emitter) loadConstant(reg, value int32) {
	if value >= -32768 && value <= 32767 {
		e.emitI(isa.OpADDIU, RegZero, reg, value)
		return
	}

	u := uint32(value)
	chunk0 := int32((u >> 28) & 0xF)
	chunk1 := int32((u >> 14) & 0x3FFF)
	chunk2 := int32(u & 0x3FFF)

	e.emitI(isa.OpADDIU, RegZero, reg, chunk0)
	e.emitShiftLeft14(reg)
	e.emitI(isa.OpADDIU, reg, reg, chunk1)
	e.emitShiftLeft14(reg)
	e.emitI(isa.OpADDIU, reg, reg, chunk2)
}

// emitShiftLeft14 multiplies reg by 2^14 in place, using MULTU/MFLO since
// the ISA has no native shift instruction: load the constant 16384 into a
// scratch register, multiply, and move the (truncated-to-32-bit) low result
// back into reg.
func (e *emitter) emitShiftLeft14(reg int32) {
	scratch := RegAT
	e.emitI(isa.OpADDIU, RegZero, scratch, 16384)
	e.emitR(isa.OpSpecial, reg, scratch, 0, 0, isa.FuncMULTU)
	e.emitMFLO(reg)
}
