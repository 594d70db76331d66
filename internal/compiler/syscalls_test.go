package compiler

import (
	"os"
	"testing"

	"selfsys/internal/isa"
	"selfsys/internal/syscalls"
)

func TestCompileExitSyscallEmitsSequence(t *testing.T) {
	img, err := Compile("t.c", []byte("int main(void) { exit(0); return 0; }"))
	assert(t, err == nil, "Compile: %v", err)

	found := false
	for i, w := range img.Words {
		in := isa.Decode(w)
		if in.Opcode == isa.OpSpecial && in.Function == isa.FuncSYSCALL {
			assert(t, i > 0, "SYSCALL at word 0 has no preceding v0 load")
			v0load := isa.Decode(img.Words[i-1])
			assert(t, v0load.Opcode == isa.OpADDIU && v0load.Rs == RegZero && v0load.Rt == RegV0,
				"word before SYSCALL = %+v, want ADDIU loading v0", v0load)
			assert(t, v0load.Immediate == syscalls.Exit, "v0 loaded with %d, want Exit (%d)", v0load.Immediate, syscalls.Exit)
			found = true
		}
	}
	assert(t, found, "expected a SYSCALL instruction somewhere in the compiled image")
}

func TestCompileSyscallArgumentCountMismatchFails(t *testing.T) {
	_, err := Compile("t.c", []byte("int main(void) { exit(1, 2); return 0; }"))
	assert(t, err != nil, "expected an error calling exit with the wrong argument count")
}

func TestCompileSyscallMovesLiveArgumentIntoA0(t *testing.T) {
	img, err := Compile("t.c", []byte("int main(void) { int n; n = 7; exit(n); return 0; }"))
	assert(t, err == nil, "Compile: %v", err)

	sawMoveToA0 := false
	for _, w := range img.Words {
		in := isa.Decode(w)
		if in.Opcode == isa.OpSpecial && in.Function == isa.FuncADDU && in.Rd == RegA0 && in.Rs == RegZero {
			sawMoveToA0 = true
		}
	}
	assert(t, sawMoveToA0, "expected an ADDU moving the argument register into a0")
}

func TestCompileTestdataFixtures(t *testing.T) {
	for _, name := range []string{"count.src", "linkedlist.src"} {
		src, err := os.ReadFile("../../testdata/" + name)
		assert(t, err == nil, "reading testdata/%s: %v", name, err)

		img, err := Compile(name, src)
		assert(t, err == nil, "Compile(%s): %v", name, err)
		assert(t, len(img.Words) > 2, "expected a non-trivial image compiling %s", name)

		sawSyscall := false
		for _, w := range img.Words {
			in := isa.Decode(w)
			if in.Opcode == isa.OpSpecial && in.Function == isa.FuncSYSCALL {
				sawSyscall = true
				break
			}
		}
		assert(t, sawSyscall, "expected %s to compile at least one syscall (write/malloc)", name)
	}
}
