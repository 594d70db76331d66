package isa

import "testing"

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

func TestEncodeDecodeR(t *testing.T) {
	word := EncodeR(OpSpecial, 8, 9, 10, 0, FuncADDU)
	d := Decode(word)
	assert(t, d.Opcode == OpSpecial, "opcode = %d", d.Opcode)
	assert(t, d.Rs == 8, "rs = %d", d.Rs)
	assert(t, d.Rt == 9, "rt = %d", d.Rt)
	assert(t, d.Rd == 10, "rd = %d", d.Rd)
	assert(t, d.Function == FuncADDU, "function = %d", d.Function)
}

func TestEncodeDecodeI(t *testing.T) {
	word := EncodeI(OpADDIU, 8, 9, -5)
	d := Decode(word)
	assert(t, d.Opcode == OpADDIU, "opcode = %d", d.Opcode)
	assert(t, d.Rs == 8, "rs = %d", d.Rs)
	assert(t, d.Rt == 9, "rt = %d", d.Rt)
	assert(t, d.Immediate == -5, "immediate = %d, want -5", d.Immediate)
}

func TestEncodeDecodeJ(t *testing.T) {
	word := EncodeJ(OpJAL, 1024)
	d := Decode(word)
	assert(t, d.Opcode == OpJAL, "opcode = %d", d.Opcode)
	assert(t, d.InstrIndex == 1024, "instr_index = %d, want 1024", d.InstrIndex)
}

func TestSignExtend(t *testing.T) {
	assert(t, SignExtend(0) == 0, "SignExtend(0)")
	assert(t, SignExtend(32767) == 32767, "SignExtend(32767)")
	assert(t, SignExtend(32768) == -32768, "SignExtend(32768) = %d", SignExtend(32768))
	assert(t, SignExtend(65535) == -1, "SignExtend(65535) = %d", SignExtend(65535))
}

func TestImmediateRoundtripAllValues(t *testing.T) {
	for imm := int32(-32768); imm < 32768; imm += 137 {
		word := EncodeI(OpADDIU, 1, 2, imm)
		d := Decode(word)
		assert(t, d.Immediate == imm, "roundtrip(%d) = %d", imm, d.Immediate)
	}
}
