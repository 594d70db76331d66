package compiler

import (
	"strings"
	"testing"

	"selfsys/internal/isa"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

func TestCompileMinimalMain(t *testing.T) {
	img, err := Compile("t.c", []byte("int main(void) { return 0; }"))
	assert(t, err == nil, "Compile: %v", err)
	assert(t, len(img.Words) >= 2, "expected at least a NOP and a JAL, got %d words", len(img.Words))

	nop := isa.Decode(img.Words[0])
	assert(t, nop.Opcode == isa.OpSpecial && nop.Function == isa.FuncNOP, "word 0 = %+v, want NOP", nop)

	bootstrap := isa.Decode(img.Words[1])
	assert(t, bootstrap.Opcode == isa.OpJAL, "word 1 = %+v, want JAL", bootstrap)
	assert(t, bootstrap.InstrIndex == 3, "bootstrap JAL targets %d, want main's entry at 3 (after the bootstrap JAL's delay-slot NOP)", bootstrap.InstrIndex)
}

func TestCompileUndefinedMainFails(t *testing.T) {
	_, err := Compile("t.c", []byte("int x;"))
	assert(t, err != nil, "expected an error for a program with no main")
	assert(t, strings.Contains(err.Error(), "main"), "error %v does not mention main", err)
}

func TestCompileForwardReference(t *testing.T) {
	src := `
int main(void) {
  return helper(1, 2);
}
int helper(int a, int b) {
  return a + b;
}
`
	img, err := Compile("t.c", []byte(src))
	assert(t, err == nil, "Compile: %v", err)
	assert(t, len(img.Words) > 0, "expected a non-empty image")
}

func TestCompileUndefinedCalleeFails(t *testing.T) {
	src := `
int main(void) {
  return neverDefined();
}
`
	_, err := Compile("t.c", []byte(src))
	assert(t, err != nil, "expected an error for a call to an undefined function")
	assert(t, strings.Contains(err.Error(), "neverDefined"), "error %v does not name the undefined function", err)
}

func TestCompileGlobalAndStringData(t *testing.T) {
	src := `
int count;
int write(int fd, int buf, int n) {
  return n;
}
int main(void) {
  count = 1;
  write(1, "hi", 2);
  return 0;
}
`
	img, err := Compile("t.c", []byte(src))
	assert(t, err == nil, "Compile: %v", err)
	assert(t, int32(len(img.Words)) > img.CodeLength, "expected data words after code, got code=%d total=%d", img.CodeLength, len(img.Words))
}

func TestCompileArithmeticAndComparison(t *testing.T) {
	src := `
int main(void) {
  int a;
  int b;
  a = 3;
  b = 4;
  if (a < b) {
    return a + b * 2 - 1;
  }
  while (a != b) {
    a = a + 1;
  }
  return a % b;
}
`
	img, err := Compile("t.c", []byte(src))
	assert(t, err == nil, "Compile: %v", err)
	assert(t, len(img.Words) > 0, "expected a non-empty image")
}
