package scanner

import "testing"

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

func scanAll(t *testing.T, src string) []Token {
	t.Helper()
	s := New("test.src", []byte(src))
	var toks []Token
	for {
		tok, err := s.Next()
		if err != nil {
			t.Fatalf("unexpected scan error: %v", err)
		}
		toks = append(toks, tok)
		if tok.Kind == EOF {
			break
		}
	}
	return toks
}

func TestKeywordsAndPunctuation(t *testing.T) {
	toks := scanAll(t, "int x; if (x == 1) return; else while (x) x;")
	assert(t, toks[0].Kind == KeywordInt, "expected int, got %v", toks[0].Kind)
	assert(t, toks[1].Kind == Identifier && toks[1].Ident == "x", "expected identifier x")
	assert(t, toks[2].Kind == Semicolon, "expected ;")
}

func TestIntegerLiteral(t *testing.T) {
	toks := scanAll(t, "42 2147483647")
	assert(t, toks[0].Kind == Integer && toks[0].IntValue == 42, "got %v", toks[0])
	assert(t, toks[1].Kind == Integer && toks[1].IntValue == 2147483647, "got %v", toks[1])
}

func TestIntMinRequiresFlag(t *testing.T) {
	s := New("t.src", []byte("2147483648"))
	_, err := s.Next()
	assert(t, err != nil, "expected out-of-range error without allowIntMin")

	s2 := New("t.src", []byte("2147483648"))
	s2.SetAllowIntMin(true)
	tok, err := s2.Next()
	assert(t, err == nil, "unexpected error: %v", err)
	assert(t, tok.IntValue == -2147483648, "got %d", tok.IntValue)
}

func TestCommentsAndLineTracking(t *testing.T) {
	toks := scanAll(t, "int x; // comment\nint y; # also a comment\nint z;")
	var ints int
	for _, tok := range toks {
		if tok.Kind == KeywordInt {
			ints++
		}
	}
	assert(t, ints == 3, "expected 3 int keywords, got %d", ints)
	assert(t, toks[len(toks)-1].Line == 3, "expected last token on line 3, got %d", toks[len(toks)-1].Line)
}

func TestStringAndCharacterLiterals(t *testing.T) {
	toks := scanAll(t, `"hello" 'a'`)
	assert(t, toks[0].Kind == String && toks[0].StrValue == "hello", "got %v", toks[0])
	assert(t, toks[1].Kind == Character && toks[1].CharValue == 'a', "got %v", toks[1])
}

func TestDivisionVsComment(t *testing.T) {
	toks := scanAll(t, "x / y")
	assert(t, toks[1].Kind == Slash, "expected division token, got %v", toks[1].Kind)
}

func TestUnterminatedStringIsFatal(t *testing.T) {
	s := New("t.src", []byte(`"unterminated`))
	_, err := s.Next()
	assert(t, err != nil, "expected fatal syntax error")
}
