package compiler

import (
	"math"

	"selfsys/internal/arith"
	"selfsys/internal/isa"
	"selfsys/internal/scanner"
	"selfsys/internal/symtab"
)

// expression parses the comparison level: a single (non-chaining) == != < >
// <= >= applied to two simpleExpressions, matching the grammar's lowest
// precedence tier.
func (p *Parser) expression() (int32, symtab.Type, error) {
	reg, ty, err := p.simpleExpression()
	if err != nil {
		return 0, 0, err
	}
	return p.continueExpressionFrom(reg, ty)
}

func (p *Parser) continueExpressionFrom(reg int32, ty symtab.Type) (int32, symtab.Type, error) {
	if !isComparator(p.tok.Kind) {
		return reg, ty, nil
	}
	op := p.tok.Kind
	if err := p.next(); err != nil {
		return 0, 0, err
	}
	_, rty, err := p.simpleExpression()
	if err != nil {
		return 0, 0, err
	}
	if ty != rty {
		p.warnf("type mismatch in comparison")
	}
	if err := p.combineComparison(op); err != nil {
		return 0, 0, err
	}
	return p.allocator.current(), symtab.TypeInt, nil
}

func isComparator(k scanner.Kind) bool {
	switch k {
	case scanner.Eq, scanner.Neq, scanner.Lt, scanner.Gt, scanner.Leq, scanner.Geq:
		return true
	}
	return false
}

// simpleExpression parses the additive level: an optional leading sign,
// then a chain of + and - against term()s.
func (p *Parser) simpleExpression() (int32, symtab.Type, error) {
	negateFirst := false
	if p.tok.Kind == scanner.Plus {
		if err := p.next(); err != nil {
			return 0, 0, err
		}
	} else if p.tok.Kind == scanner.Minus {
		negateFirst = true
		p.scan.SetAllowIntMin(true)
		if err := p.next(); err != nil {
			p.scan.SetAllowIntMin(false)
			return 0, 0, err
		}
		p.scan.SetAllowIntMin(false)
	}

	reg, ty, err := p.term()
	if err != nil {
		return 0, 0, err
	}
	if negateFirst {
		p.em.emitR(isa.OpSpecial, RegZero, reg, reg, 0, isa.FuncSUBU)
	}
	return p.continueSimpleFrom(reg, ty)
}

func (p *Parser) continueSimpleFrom(reg int32, ty symtab.Type) (int32, symtab.Type, error) {
	for p.tok.Kind == scanner.Plus || p.tok.Kind == scanner.Minus {
		op := p.tok.Kind
		if err := p.next(); err != nil {
			return 0, 0, err
		}
		_, rty, err := p.term()
		if err != nil {
			return 0, 0, err
		}

		if ty != rty {
			if ty == symtab.TypeIntStar && rty == symtab.TypeInt {
				p.scaleByWordSize(p.allocator.current())
			} else if ty == symtab.TypeInt && rty == symtab.TypeIntStar && op == scanner.Plus {
				p.scaleByWordSize(p.allocator.previous())
			} else {
				p.warnf("type mismatch in additive expression")
			}
		}

		resultType := ty
		if ty == symtab.TypeInt && rty == symtab.TypeIntStar {
			resultType = symtab.TypeIntStar
		}
		if ty == symtab.TypeIntStar && rty == symtab.TypeIntStar {
			resultType = symtab.TypeInt // pointer difference
		}

		if op == scanner.Plus {
			p.combine(isa.FuncADDU)
		} else {
			p.combine(isa.FuncSUBU)
		}
		ty = resultType
		reg = p.allocator.current()
	}
	return reg, ty, nil
}

// scaleByWordSize multiplies reg by 4 in place (two self-doublings), used to
// scale an int operand of pointer arithmetic up to byte granularity.
func (p *Parser) scaleByWordSize(reg int32) {
	p.em.emitR(isa.OpSpecial, reg, reg, reg, 0, isa.FuncADDU)
	p.em.emitR(isa.OpSpecial, reg, reg, reg, 0, isa.FuncADDU)
}

// term parses the multiplicative level: a chain of * / % against unary()s.
func (p *Parser) term() (int32, symtab.Type, error) {
	reg, ty, err := p.unary()
	if err != nil {
		return 0, 0, err
	}
	return p.continueTermFrom(reg, ty)
}

func (p *Parser) continueTermFrom(reg int32, ty symtab.Type) (int32, symtab.Type, error) {
	for p.tok.Kind == scanner.Star || p.tok.Kind == scanner.Slash || p.tok.Kind == scanner.Percent {
		op := p.tok.Kind
		if err := p.next(); err != nil {
			return 0, 0, err
		}
		_, rty, err := p.unary()
		if err != nil {
			return 0, 0, err
		}
		if ty != rty {
			p.warnf("type mismatch in multiplicative expression")
		}
		switch op {
		case scanner.Star:
			p.combineMul()
		case scanner.Slash:
			p.combineDiv(isa.FuncMFLO)
		case scanner.Percent:
			p.combineDiv(isa.FuncMFHI)
		}
		reg = p.allocator.current()
	}
	return reg, ty, nil
}

// unary parses an optional leading '-' or dereference '*' applied to a
// factor, and the INT_MIN special case immediately after a leading '-'.
func (p *Parser) unary() (int32, symtab.Type, error) {
	if p.tok.Kind == scanner.Minus {
		p.scan.SetAllowIntMin(true)
		if err := p.next(); err != nil {
			p.scan.SetAllowIntMin(false)
			return 0, 0, err
		}
		p.scan.SetAllowIntMin(false)

		if p.tok.Kind == scanner.Integer && p.tok.IntValue == math.MinInt32 {
			reg, err := p.allocator.allocate()
			if err != nil {
				return 0, 0, p.errorf("%v", err)
			}
			p.em.loadConstant(reg, arith.IntMin)
			if err := p.next(); err != nil {
				return 0, 0, err
			}
			return reg, symtab.TypeInt, nil
		}

		reg, ty, err := p.factor()
		if err != nil {
			return 0, 0, err
		}
		p.em.emitR(isa.OpSpecial, RegZero, reg, reg, 0, isa.FuncSUBU)
		return reg, ty, nil
	}

	if p.tok.Kind == scanner.Star {
		if err := p.next(); err != nil {
			return 0, 0, err
		}
		reg, ty, err := p.unary()
		if err != nil {
			return 0, 0, err
		}
		if ty != symtab.TypeIntStar {
			p.warnf("dereference of non-pointer type")
		}
		p.em.emitI(isa.OpLW, reg, reg, 0)
		return reg, symtab.TypeInt, nil
	}

	return p.factor()
}

// factor parses the highest-precedence atoms: identifiers (variable loads or
// calls), integer/character/string literals, parenthesized expressions, and
// casts.
func (p *Parser) factor() (int32, symtab.Type, error) {
	switch p.tok.Kind {
	case scanner.Integer:
		v := p.tok.IntValue
		if err := p.next(); err != nil {
			return 0, 0, err
		}
		reg, err := p.allocator.allocate()
		if err != nil {
			return 0, 0, p.errorf("%v", err)
		}
		p.em.loadConstant(reg, v)
		return reg, symtab.TypeInt, nil

	case scanner.Character:
		v := p.tok.CharValue
		if err := p.next(); err != nil {
			return 0, 0, err
		}
		reg, err := p.allocator.allocate()
		if err != nil {
			return 0, 0, p.errorf("%v", err)
		}
		p.em.loadConstant(reg, v)
		return reg, symtab.TypeInt, nil

	case scanner.String:
		s := p.tok.StrValue
		if err := p.next(); err != nil {
			return 0, 0, err
		}
		entry := p.internString(s)
		reg, err := p.allocator.allocate()
		if err != nil {
			return 0, 0, p.errorf("%v", err)
		}
		p.em.emitI(isa.OpADDIU, RegGP, reg, entry.Address)
		return reg, symtab.TypeIntStar, nil

	case scanner.LParen:
		if err := p.next(); err != nil {
			return 0, 0, err
		}
		if p.tok.Kind == scanner.KeywordInt || p.tok.Kind == scanner.KeywordVoid {
			castType, err := p.parseType()
			if err != nil {
				return 0, 0, err
			}
			if err := p.expect(scanner.RParen, "')'"); err != nil {
				return 0, 0, err
			}
			reg, _, err := p.unary()
			if err != nil {
				return 0, 0, err
			}
			return reg, castType, nil
		}
		reg, ty, err := p.expression()
		if err != nil {
			return 0, 0, err
		}
		if err := p.expect(scanner.RParen, "')'"); err != nil {
			return 0, 0, err
		}
		return reg, ty, nil

	case scanner.Identifier:
		name := p.tok.Ident
		if err := p.next(); err != nil {
			return 0, 0, err
		}
		if p.tok.Kind == scanner.LParen {
			return p.call(name)
		}
		entry, ok := p.syms.Lookup(name, symtab.ClassVariable)
		if !ok {
			return 0, 0, p.errorf("undeclared identifier %q", name)
		}
		reg, err := p.allocator.allocate()
		if err != nil {
			return 0, 0, p.errorf("%v", err)
		}
		p.loadVariable(entry, reg)
		return reg, entry.Type, nil

	default:
		return 0, 0, p.errorf("expected an expression")
	}
}

// call parses the argument list of name(...) (p.tok already past the
// identifier, sitting on '('), spills every live temporary across the
// call, pushes arguments, emits the JAL (direct or threaded into name's
// fixup chain), and returns a fresh register holding v0.
func (p *Parser) call(name string) (int32, symtab.Type, error) {
	if err := p.next(); err != nil { // consume '('
		return 0, 0, err
	}

	if proc, ok := syscallProcedures[name]; ok {
		return p.callSyscall(proc)
	}

	live := p.allocator.liveRegisters()
	for _, r := range live {
		p.emitPush(r)
	}

	var args []int32
	for p.tok.Kind != scanner.RParen {
		if len(args) > 0 {
			if err := p.expect(scanner.Comma, "','"); err != nil {
				return 0, 0, err
			}
		}
		reg, _, err := p.expression()
		if err != nil {
			return 0, 0, err
		}
		args = append(args, reg)
	}
	if err := p.next(); err != nil { // consume ')'
		return 0, 0, err
	}

	for i := len(args) - 1; i >= 0; i-- {
		p.emitPush(args[i])
	}
	p.allocator.free(len(args))

	entry, ok := p.syms.Lookup(name, symtab.ClassFunction)
	if !ok {
		entry = &symtab.Entry{Name: name, Class: symtab.ClassFunction, Type: symtab.TypeInt}
		p.syms.InsertGlobal(entry)
		entry.Address = p.em.emitForwardJ(isa.OpJAL, 0)
	} else if !entry.Defined {
		entry.Address = p.em.emitForwardJ(isa.OpJAL, entry.Address)
	} else {
		p.em.emitJ(isa.OpJAL, entry.Address)
	}

	for i := len(live) - 1; i >= 0; i-- {
		p.emitPop(live[i])
	}

	reg, err := p.allocator.allocate()
	if err != nil {
		return 0, 0, p.errorf("%v", err)
	}
	p.em.emitR(isa.OpSpecial, RegV0, RegZero, reg, 0, isa.FuncADDU)
	return reg, entry.Type, nil
}

// combine folds the current temporary into the previous one via an ADDU or
// SUBU-class R-format instruction and frees the current temporary.
func (p *Parser) combine(function int32) {
	left := p.allocator.previous()
	right := p.allocator.current()
	p.em.emitR(isa.OpSpecial, left, right, left, 0, function)
	p.allocator.free(1)
}

func (p *Parser) combineMul() {
	left := p.allocator.previous()
	right := p.allocator.current()
	p.em.emitR(isa.OpSpecial, left, right, 0, 0, isa.FuncMULTU)
	p.em.emitMFLO(left)
	p.allocator.free(1)
}

func (p *Parser) combineDiv(which int32) {
	left := p.allocator.previous()
	right := p.allocator.current()
	p.em.emitR(isa.OpSpecial, left, right, 0, 0, isa.FuncDIVU)
	if which == isa.FuncMFLO {
		p.em.emitMFLO(left)
	} else {
		p.em.emitMFHI(left)
	}
	p.allocator.free(1)
}

// combineComparison folds the current and previous temporaries into a 0/1
// boolean result in the previous temporary, using only SLT/ADDU/SUBU since
// those are the only arithmetic instructions the ISA provides.
func (p *Parser) combineComparison(op scanner.Kind) error {
	left := p.allocator.previous()
	right := p.allocator.current()

	switch op {
	case scanner.Lt:
		p.em.emitR(isa.OpSpecial, left, right, left, 0, isa.FuncSLT)
		p.allocator.free(1)
	case scanner.Gt:
		p.em.emitR(isa.OpSpecial, right, left, left, 0, isa.FuncSLT)
		p.allocator.free(1)
	case scanner.Leq, scanner.Geq:
		if op == scanner.Leq {
			p.em.emitR(isa.OpSpecial, right, left, left, 0, isa.FuncSLT) // left = a>b
		} else {
			p.em.emitR(isa.OpSpecial, left, right, left, 0, isa.FuncSLT) // left = a<b
		}
		one, err := p.allocator.allocate()
		if err != nil {
			return p.errorf("%v", err)
		}
		p.em.emitI(isa.OpADDIU, RegZero, one, 1)
		p.em.emitR(isa.OpSpecial, one, left, left, 0, isa.FuncSUBU)
		p.allocator.free(1) // one
		p.allocator.free(1) // right
	case scanner.Eq, scanner.Neq:
		t1, err := p.allocator.allocate()
		if err != nil {
			return p.errorf("%v", err)
		}
		p.em.emitR(isa.OpSpecial, left, right, t1, 0, isa.FuncSLT)
		t2, err := p.allocator.allocate()
		if err != nil {
			return p.errorf("%v", err)
		}
		p.em.emitR(isa.OpSpecial, right, left, t2, 0, isa.FuncSLT)
		p.em.emitR(isa.OpSpecial, t1, t2, left, 0, isa.FuncADDU) // left = "differs" flag
		p.allocator.free(2)

		if op == scanner.Eq {
			one, err := p.allocator.allocate()
			if err != nil {
				return p.errorf("%v", err)
			}
			p.em.emitI(isa.OpADDIU, RegZero, one, 1)
			p.em.emitR(isa.OpSpecial, one, left, left, 0, isa.FuncSUBU)
			p.allocator.free(1)
		}
		p.allocator.free(1) // right
	}
	return nil
}
