// Package compiler implements the single-pass recursive-descent compiler
// for the Source language: scanner, symbol table, and a parser that emits
// machine words directly as it recognizes each construct, with no
// intermediate tree and no separate code generation pass.
package compiler

import (
	"fmt"

	"selfsys/internal/arith"
	"selfsys/internal/image"
	"selfsys/internal/isa"
	"selfsys/internal/scanner"
	"selfsys/internal/symtab"
)

// Compile translates src into a binary image. Word 0 is always a NOP; word
// 1 is a JAL threaded as a fixup and resolved to main's entry address once
// the whole program has been parsed, so execution can begin at word 0
// regardless of where main happens to land.
func Compile(filename string, src []byte) (*image.Image, error) {
	scan := scanner.New(filename, src)
	syms := symtab.New()
	em := newEmitter()
	p := newParser(scan, syms, em)

	em.emitNOP()
	bootstrapCall := em.emitForwardJ(isa.OpJAL, 0)

	if err := p.Program(); err != nil {
		return nil, err
	}

	mainEntry, ok := syms.Lookup("main", symtab.ClassFunction)
	if !ok || !mainEntry.Defined {
		return nil, fmt.Errorf("compiler: %s: undefined function \"main\"", filename)
	}
	for e := syms.Globals(); e != nil; e = e.Next {
		if e.Class == symtab.ClassFunction && !e.Defined {
			return nil, fmt.Errorf("compiler: %s: undefined function %q", filename, e.Name)
		}
	}
	em.resolveFixups(bootstrapCall, mainEntry.Address)

	codeLength := em.here()

	dataWords := -p.globalDataOffset / 4
	data := make([]int32, dataWords)
	for e := syms.Globals(); e != nil; e = e.Next {
		switch e.Class {
		case symtab.ClassVariable:
			if e.Register == symtab.GlobalPointer {
				data[dataWords+e.Address/4] = e.Value
			}
		case symtab.ClassString:
			packString(data, dataWords+e.Address/4, e.Name)
		}
	}

	words := make([]int32, 0, codeLength+dataWords)
	words = append(words, em.instructions...)
	words = append(words, data...)

	return &image.Image{Words: words, CodeLength: codeLength}, nil
}

// packString writes s's bytes as 7-bit characters into buf starting at
// word index start, null-terminated, four characters per word.
func packString(buf []int32, start int32, s string) {
	for i := 0; i < len(s); i++ {
		arith.StoreCharacter(buf[start:], int32(i), int32(s[i]))
	}
	arith.StoreCharacter(buf[start:], int32(len(s)), 0)
}
