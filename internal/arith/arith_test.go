package arith

import "testing"

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

func TestShiftRoundtrip(t *testing.T) {
	values := []int32{0, 1, -1, 12345, -12345, IntMax, IntMin, IntMin + 1}
	for _, v := range values {
		for b := int32(0); b <= 30; b++ {
			shifted := RightShift(LeftShift(v, b), b)
			// LeftShift truncates high bits on overflow, so only check the
			// identity when no overflow can occur (v fits in the remaining
			// bits).
			if v >= -TwoToThePowerOf(30-b) && v < TwoToThePowerOf(30-b) {
				assert(t, shifted == v, "RightShift(LeftShift(%d,%d),%d) = %d, want %d", v, b, b, shifted, v)
			}
		}
	}
}

func TestRightShiftIsLogical(t *testing.T) {
	cases := []struct {
		n, b, want int32
	}{
		{7, 1, 3},
		{-7, 1, 2147483644},
		{-1, 1, 2147483647},
		{IntMin, 1, 1073741824},
		{IntMax, 1, 1073741823},
	}
	for _, c := range cases {
		got := RightShift(c.n, c.b)
		assert(t, got == c.want, "RightShift(%d,%d) = %d, want %d", c.n, c.b, got, c.want)
	}
}

func TestCharacterPackingRoundtrip(t *testing.T) {
	buf := make([]int32, 4)
	msg := "Hello, selfsys!!"
	for i := 0; i < len(msg); i++ {
		StoreCharacter(buf, int32(i), int32(msg[i]))
	}
	for i := 0; i < len(msg); i++ {
		got := LoadCharacter(buf, int32(i))
		assert(t, got == int32(msg[i]), "LoadCharacter(%d) = %d, want %d", i, got, msg[i])
	}
}

func TestAtoiRoundtrip(t *testing.T) {
	values := []int32{0, 1, -1, 42, -42, IntMax, IntMin}
	for _, v := range values {
		s := Itoa(v, Base10, 0)
		n := Atoi(string(s[:len(s)-1]))
		assert(t, n == v, "Atoi(Itoa(%d)) = %d, want %d", v, n, v)
	}
}

func TestAtoiRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "-", "12x", "x12", "--1"} {
		assert(t, Atoi(s) == -1, "Atoi(%q) should be -1", s)
	}
}

func TestItoaDecimal(t *testing.T) {
	cases := map[int32]string{
		0:       "0",
		1:       "1",
		-1:      "-1",
		12345:   "12345",
		-12345:  "-12345",
		IntMax:  "2147483647",
		IntMin:  "-2147483648",
	}
	for n, want := range cases {
		got := string(Itoa(n, Base10, 0)[:len(want)])
		assert(t, got == want, "Itoa(%d,10) = %q, want %q", n, got, want)
	}
}

func TestItoaHexTag(t *testing.T) {
	s := Itoa(255, Base16, 0)
	assert(t, string(s) == "0xFF\x00", "Itoa(255,16) = %q", string(s))
}
