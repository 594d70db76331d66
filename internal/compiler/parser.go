package compiler

import (
	"fmt"
	"os"

	"selfsys/internal/isa"
	"selfsys/internal/scanner"
	"selfsys/internal/symtab"
)

// Parser drives the recursive-descent grammar with one-token lookahead and
// no backtracking, consulting the symbol table and emitting directly
// through the emitter as it goes.
type Parser struct {
	scan *scanner.Scanner
	syms *symtab.Table
	em   *emitter

	tok scanner.Token

	globalDataOffset int32 // next negative offset to hand out to a global
	localOffset      int32 // next positive frame offset for a parameter
	nextLocalSlot    int32 // next positive magnitude for a local's negative frame offset
	allocator        allocator

	// returnFixups threads every J emitted by a return statement in the
	// current procedure, resolved once the epilogue address is known.
	returnFixups int32
	currentType  symtab.Type // declared return type of the procedure in progress
}

func newParser(scan *scanner.Scanner, syms *symtab.Table, em *emitter) *Parser {
	return &Parser{scan: scan, syms: syms, em: em}
}

func (p *Parser) next() error {
	tok, err := p.scan.Next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *Parser) errorf(format string, args ...any) error {
	return &scanner.SyntaxError{File: p.scan.File(), Line: p.tok.Line, Msg: fmt.Sprintf(format, args...)}
}

func (p *Parser) warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s:%d: warning: "+format+"\n", append([]any{p.scan.File(), p.tok.Line}, args...)...)
}

func (p *Parser) expect(k scanner.Kind, what string) error {
	if p.tok.Kind != k {
		return p.errorf("expected %s", what)
	}
	return p.next()
}

// Program parses {declaration}* until EOF.
func (p *Parser) Program() error {
	if err := p.next(); err != nil {
		return err
	}
	for p.tok.Kind != scanner.EOF {
		if err := p.declaration(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) parseType() (symtab.Type, error) {
	switch p.tok.Kind {
	case scanner.KeywordVoid:
		if err := p.next(); err != nil {
			return 0, err
		}
		return symtab.TypeVoid, nil
	case scanner.KeywordInt:
		if err := p.next(); err != nil {
			return 0, err
		}
		if p.tok.Kind == scanner.Star {
			if err := p.next(); err != nil {
				return 0, err
			}
			return symtab.TypeIntStar, nil
		}
		return symtab.TypeInt, nil
	default:
		return 0, p.errorf("expected a type")
	}
}

// declaration parses one top-level declaration: a procedure or a global
// variable definition/declaration.
func (p *Parser) declaration() error {
	ty, err := p.parseType()
	if err != nil {
		return err
	}
	if p.tok.Kind != scanner.Identifier {
		return p.errorf("expected an identifier")
	}
	name := p.tok.Ident
	if err := p.next(); err != nil {
		return err
	}

	if p.tok.Kind == scanner.LParen {
		return p.procedure(name, ty)
	}
	return p.globalVariable(name, ty)
}

func (p *Parser) globalVariable(name string, ty symtab.Type) error {
	entry := &symtab.Entry{Name: name, Class: symtab.ClassVariable, Type: ty, Register: symtab.GlobalPointer, Defined: true}

	if p.tok.Kind == scanner.Assign {
		if err := p.next(); err != nil {
			return err
		}
		if p.tok.Kind != scanner.Integer {
			return p.errorf("expected a constant initializer")
		}
		entry.Value = p.tok.IntValue
		if err := p.next(); err != nil {
			return err
		}
	}

	p.globalDataOffset -= 4
	entry.Address = p.globalDataOffset
	p.syms.InsertGlobal(entry)

	return p.expect(scanner.Semicolon, "';'")
}

// procedure parses the parameter list and, if a body follows, the body;
// `void identifier ( params ) ;` is a forward declaration.
func (p *Parser) procedure(name string, returnType symtab.Type) error {
	entry, existing := p.syms.Lookup(name, symtab.ClassFunction)
	if !existing {
		entry = &symtab.Entry{Name: name, Class: symtab.ClassFunction, Type: returnType}
		p.syms.InsertGlobal(entry)
	}

	if err := p.next(); err != nil { // consume '('
		return err
	}

	p.syms.ResetLocal()
	p.localOffset = 8 // [fp+0]=saved fp, [fp+4]=return address; params start at +8

	if p.tok.Kind == scanner.KeywordVoid {
		// A lone "void" names an empty parameter list, not a parameter.
		if err := p.next(); err != nil {
			return err
		}
		if err := p.expect(scanner.RParen, "')'"); err != nil {
			return err
		}
		return p.procedureBody(entry, returnType, 0)
	}

	var paramCount int32
	for p.tok.Kind != scanner.RParen {
		if paramCount > 0 {
			if err := p.expect(scanner.Comma, "','"); err != nil {
				return err
			}
		}
		pty, err := p.parseType()
		if err != nil {
			return err
		}
		if p.tok.Kind != scanner.Identifier {
			return p.errorf("expected a parameter name")
		}
		pname := p.tok.Ident
		if err := p.next(); err != nil {
			return err
		}
		p.syms.InsertLocal(&symtab.Entry{Name: pname, Class: symtab.ClassVariable, Type: pty, Register: symtab.FramePointer, Address: p.localOffset, Defined: true})
		p.localOffset += 4
		paramCount++
	}
	if err := p.next(); err != nil { // consume ')'
		return err
	}

	return p.procedureBody(entry, returnType, paramCount)
}

// procedureBody parses what follows a parameter list: either a trailing ';'
// (a forward declaration) or the '{' ... '}' body, emitting the
// prologue/epilogue and resolving this procedure's own forward-reference
// fixup chain once its entry address is known.
func (p *Parser) procedureBody(entry *symtab.Entry, returnType symtab.Type, paramCount int32) error {
	if p.tok.Kind == scanner.Semicolon {
		// forward declaration only.
		return p.next()
	}

	if p.tok.Kind != scanner.LBrace {
		return p.errorf("expected '{' or ';'")
	}

	entryAddr := p.em.here()
	if !entry.Defined {
		p.em.resolveFixups(entry.Address, entryAddr)
	}
	entry.Address = entryAddr
	entry.Defined = true

	p.currentType = returnType
	p.returnFixups = 0
	p.allocator = allocator{}
	p.nextLocalSlot = 4

	// prologue: push ra, push fp, fp <- sp.
	p.emitPush(RegRA)
	p.emitPush(RegFP)
	p.em.emitR(isa.OpSpecial, RegSP, RegZero, RegFP, 0, isa.FuncADDU)

	if err := p.block(); err != nil {
		return err
	}

	epilogue := p.em.here()
	p.em.resolveFixups(p.returnFixups, epilogue)

	// epilogue: sp <- fp, pop fp, pop ra, pop the paramCount argument words
	// the caller pushed (callee-pops convention), jr ra.
	p.em.emitR(isa.OpSpecial, RegFP, RegZero, RegSP, 0, isa.FuncADDU)
	p.emitPop(RegFP)
	p.emitPop(RegRA)
	if paramCount > 0 {
		p.em.emitI(isa.OpADDIU, RegSP, RegSP, paramCount*4)
	}
	p.em.emitJR(RegRA)

	return nil
}

func (p *Parser) emitPush(reg int32) {
	p.em.emitI(isa.OpADDIU, RegSP, RegSP, -4)
	p.em.emitI(isa.OpSW, RegSP, reg, 0)
}

func (p *Parser) emitPop(reg int32) {
	p.em.emitI(isa.OpLW, RegSP, reg, 0)
	p.em.emitI(isa.OpADDIU, RegSP, RegSP, 4)
}

// block parses '{' {localDecl} {statement} '}'.
func (p *Parser) block() error {
	if err := p.expect(scanner.LBrace, "'{'"); err != nil {
		return err
	}

	for p.tok.Kind == scanner.KeywordInt {
		if err := p.localDeclaration(); err != nil {
			return err
		}
	}

	for p.tok.Kind != scanner.RBrace {
		if err := p.statement(); err != nil {
			return err
		}
	}
	return p.next() // consume '}'
}

func (p *Parser) localDeclaration() error {
	ty, err := p.parseType()
	if err != nil {
		return err
	}
	if p.tok.Kind != scanner.Identifier {
		return p.errorf("expected a local variable name")
	}
	name := p.tok.Ident
	if err := p.next(); err != nil {
		return err
	}
	p.syms.InsertLocal(&symtab.Entry{Name: name, Class: symtab.ClassVariable, Type: ty, Register: symtab.FramePointer, Address: -p.nextLocalSlot, Defined: true})
	// Locals live below the frame pointer; offset grows negative with each
	// declaration, mirroring the allocate-on-entry discipline the prologue's
	// "allocate locals" step reserves stack space for.
	p.em.emitI(isa.OpADDIU, RegSP, RegSP, -4)
	p.nextLocalSlot += 4
	return p.expect(scanner.Semicolon, "';'")
}

func (p *Parser) statement() error {
	switch p.tok.Kind {
	case scanner.LBrace:
		return p.block()
	case scanner.KeywordIf:
		return p.ifStatement()
	case scanner.KeywordWhile:
		return p.whileStatement()
	case scanner.KeywordReturn:
		return p.returnStatement()
	default:
		return p.expressionStatement()
	}
}

func (p *Parser) ifStatement() error {
	if err := p.next(); err != nil {
		return err
	}
	if err := p.expect(scanner.LParen, "'('"); err != nil {
		return err
	}
	condReg, _, err := p.expression()
	if err != nil {
		return err
	}
	if err := p.expect(scanner.RParen, "')'"); err != nil {
		return err
	}

	falseBranch := p.em.emitBranch(isa.OpBEQ, condReg, RegZero)
	p.allocator.free(1)

	if err := p.statement(); err != nil {
		return err
	}

	if p.tok.Kind == scanner.KeywordElse {
		skipElse := p.em.emitJ(isa.OpJ, 0) // patched below
		p.em.patchBranch(falseBranch, p.em.here())
		if err := p.next(); err != nil {
			return err
		}
		if err := p.statement(); err != nil {
			return err
		}
		d := isa.Decode(p.em.instructions[skipElse])
		p.em.instructions[skipElse] = isa.EncodeJ(d.Opcode, p.em.here())
	} else {
		p.em.patchBranch(falseBranch, p.em.here())
	}
	return nil
}

func (p *Parser) whileStatement() error {
	loopTop := p.em.here()
	if err := p.next(); err != nil {
		return err
	}
	if err := p.expect(scanner.LParen, "'('"); err != nil {
		return err
	}
	condReg, _, err := p.expression()
	if err != nil {
		return err
	}
	if err := p.expect(scanner.RParen, "')'"); err != nil {
		return err
	}

	exitBranch := p.em.emitBranch(isa.OpBEQ, condReg, RegZero)
	p.allocator.free(1)

	if err := p.statement(); err != nil {
		return err
	}

	backJump := p.em.emitJ(isa.OpJ, loopTop)
	_ = backJump
	p.em.patchBranch(exitBranch, p.em.here())
	return nil
}

func (p *Parser) returnStatement() error {
	if err := p.next(); err != nil {
		return err
	}
	if p.tok.Kind != scanner.Semicolon {
		reg, ty, err := p.expression()
		if err != nil {
			return err
		}
		if ty != p.currentType {
			p.warnf("type mismatch: return type %s does not match declared %s", ty, p.currentType)
		}
		p.em.emitR(isa.OpSpecial, reg, RegZero, RegV0, 0, isa.FuncADDU)
		p.allocator.free(1)
	}
	if err := p.expect(scanner.Semicolon, "';'"); err != nil {
		return err
	}
	p.returnFixups = p.em.emitForwardJ(isa.OpJ, p.returnFixups)
	return nil
}

// expressionStatement handles `ident = expr ;`, `* factor = expr ;`, and a
// bare call expression used for its side effect.
func (p *Parser) expressionStatement() error {
	if p.tok.Kind == scanner.Star {
		if err := p.next(); err != nil {
			return err
		}
		addrReg, _, err := p.unary()
		if err != nil {
			return err
		}
		if err := p.expect(scanner.Assign, "'='"); err != nil {
			return err
		}
		valReg, _, err := p.expression()
		if err != nil {
			return err
		}
		p.em.emitI(isa.OpSW, addrReg, valReg, 0)
		p.allocator.free(2)
		return p.expect(scanner.Semicolon, "';'")
	}

	if p.tok.Kind == scanner.Identifier {
		name := p.tok.Ident
		if entry, ok := p.syms.Lookup(name, symtab.ClassVariable); ok {
			savedLine := p.tok.Line
			if err := p.next(); err != nil {
				return err
			}
			if p.tok.Kind == scanner.Assign {
				if err := p.next(); err != nil {
					return err
				}
				valReg, ty, err := p.expression()
				if err != nil {
					return err
				}
				if ty != entry.Type {
					p.warnf("type mismatch in assignment to %s", name)
				}
				p.storeVariable(entry, valReg)
				p.allocator.free(1)
				return p.expect(scanner.Semicolon, "';'")
			}
			// Not an assignment: reparse as a general expression starting
			// from this identifier by walking the factor chain manually.
			reg, _, err := p.continueExpressionFromVariable(entry)
			if err != nil {
				return err
			}
			p.allocator.free(1)
			_ = reg
			_ = savedLine
			return p.expect(scanner.Semicolon, "';'")
		}
	}

	_, _, err := p.expression()
	if err != nil {
		return err
	}
	p.allocator.free(1)
	return p.expect(scanner.Semicolon, "';'")
}

// continueExpressionFromVariable is used when expressionStatement has
// already consumed a bare identifier that turned out not to be an
// assignment target; it loads the variable and lets the usual precedence
// chain continue from there as the left operand.
func (p *Parser) continueExpressionFromVariable(entry *symtab.Entry) (int32, symtab.Type, error) {
	reg, err := p.allocator.allocate()
	if err != nil {
		return 0, 0, p.errorf("%v", err)
	}
	p.loadVariable(entry, reg)
	reg, ty, err := p.continueTermFrom(reg, entry.Type)
	if err != nil {
		return 0, 0, err
	}
	reg, ty, err = p.continueSimpleFrom(reg, ty)
	if err != nil {
		return 0, 0, err
	}
	return p.continueExpressionFrom(reg, ty)
}

// internString returns the symbol table entry for a string constant,
// reusing an existing entry for an identical literal or reserving a new
// data slot sized in whole words (including a null terminator word).
func (p *Parser) internString(s string) *symtab.Entry {
	if e, ok := p.syms.Lookup(s, symtab.ClassString); ok {
		return e
	}
	words := int32(len(s)/4) + 1
	p.globalDataOffset -= words * 4
	e := &symtab.Entry{Name: s, Class: symtab.ClassString, Type: symtab.TypeIntStar, Address: p.globalDataOffset, Defined: true}
	p.syms.InsertGlobal(e)
	return e
}

func (p *Parser) loadVariable(entry *symtab.Entry, reg int32) {
	base := RegGP
	if entry.Register == symtab.FramePointer {
		base = RegFP
	}
	p.em.emitI(isa.OpLW, base, reg, entry.Address)
}

func (p *Parser) storeVariable(entry *symtab.Entry, valueReg int32) {
	base := RegGP
	if entry.Register == symtab.FramePointer {
		base = RegFP
	}
	p.em.emitI(isa.OpSW, base, valueReg, entry.Address)
}
