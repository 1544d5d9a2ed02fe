package solidity

func (p *parser) block() *Block {
	m := p.pos
	b := &Block{}
	p.expect("{")
	for !p.eof() && !p.at("}") {
		b.Stmts = append(b.Stmts, p.statement())
	}
	p.expect("}")
	b.Span = p.spanFrom(m)
	return b
}

func (p *parser) statement() Stmt {
	m := p.pos
	switch {
	case p.at("{"):
		return p.block()

	case p.at("unchecked") && p.peek(1).Is("{"):
		p.advance()
		b := p.block()
		b.Unchecked = true
		b.Span = p.spanFrom(m)
		return b

	case p.at("if"):
		p.advance()
		p.expect("(")
		s := &If{Cond: p.expr()}
		p.expect(")")
		s.Then = p.statement()
		if p.accept("else") {
			s.Else = p.statement()
		}
		s.Span = p.spanFrom(m)
		return s

	case p.at("for"):
		p.advance()
		p.expect("(")
		s := &For{}
		if !p.accept(";") {
			s.Init = p.simpleStatement()
		}
		if !p.at(";") {
			s.Cond = p.expr()
		}
		p.expect(";")
		if !p.at(")") {
			s.Post = p.expr()
		}
		p.expect(")")
		s.Body = p.statement()
		s.Span = p.spanFrom(m)
		return s

	case p.at("while"):
		p.advance()
		p.expect("(")
		s := &While{Cond: p.expr()}
		p.expect(")")
		s.Body = p.statement()
		s.Span = p.spanFrom(m)
		return s

	case p.at("do"):
		p.advance()
		s := &While{Do: true, Body: p.statement()}
		p.expect("while")
		p.expect("(")
		s.Cond = p.expr()
		p.expect(")")
		p.expect(";")
		s.Span = p.spanFrom(m)
		return s

	case p.at("return"):
		p.advance()
		s := &Return{}
		if !p.at(";") {
			s.Value = p.expr()
		}
		p.expect(";")
		s.Span = p.spanFrom(m)
		return s

	case p.at("emit"):
		p.advance()
		s := &Emit{Call: p.expr()}
		p.expect(";")
		s.Span = p.spanFrom(m)
		return s

	case p.at("revert") && (p.peek(1).Is("(") || p.peek(1).Type == Identifier):
		if p.peek(1).Type == Identifier {
			p.advance()
		}
		s := &Revert{Call: p.expr()}
		p.expect(";")
		s.Span = p.spanFrom(m)
		return s

	case p.at("try"):
		p.advance()
		s := &Try{Call: p.expr()}
		if p.accept("returns") {
			p.params()
		}
		s.Body = p.block()
		for p.accept("catch") {
			if p.tok().Type == Identifier {
				p.advance()
			}
			if p.at("(") {
				p.params()
			}
			s.Catches = append(s.Catches, p.block())
		}
		s.Span = p.spanFrom(m)
		return s

	case p.at("assembly"):
		p.advance()
		if p.tok().Type == StringLiteral {
			p.advance()
		}
		if p.at("(") {
			p.skipBalanced()
		}
		p.skipBalanced()
		return &Assembly{Span: p.spanFrom(m)}

	case p.at("break"), p.at("continue"), p.at("throw"),
		p.at("_") && p.peek(1).Is(";"):
		kw := p.advance().Text
		p.expect(";")
		return &Simple{Span: p.spanFrom(m), Keyword: kw}
	}
	return p.simpleStatement()
}

// simpleStatement parses a declaration or expression statement including its semicolon.
func (p *parser) simpleStatement() Stmt {
	m := p.pos
	if d := p.varDecl(); d != nil {
		d.Span = p.spanFrom(m)
		return d
	}
	s := &ExprStmt{X: p.expr()}
	p.expect(";")
	s.Span = p.spanFrom(m)
	return s
}

func (p *parser) varDecl() *VarDecl {
	d := &VarDecl{}

	// (uint a, , address b) = ...
	if p.at("(") {
		ok := p.try(func() bool {
			p.advance()
			for !p.at(")") {
				if p.at(",") {
					d.Types = append(d.Types, "")
					d.Names = append(d.Names, "")
					p.advance()
					continue
				}
				typ := p.typeName()
				for p.at("memory") || p.at("storage") || p.at("calldata") {
					p.advance()
				}
				d.Types = append(d.Types, typ)
				d.Names = append(d.Names, p.ident())
				if !p.accept(",") {
					break
				}
			}
			p.expect(")")
			if !p.accept("=") {
				return false
			}
			d.Value = p.expr()
			p.expect(";")
			return true
		})
		if ok {
			return d
		}
		d.Types, d.Names = nil, nil
		return nil
	}

	if p.at("var") {
		p.advance()
		d.Types = []string{"var"}
		d.Names = []string{p.ident()}
		if p.accept("=") {
			d.Value = p.expr()
		}
		p.expect(";")
		return d
	}

	if !p.isTypeStart() {
		return nil
	}
	ok := p.try(func() bool {
		typ := p.typeName()
		for p.at("memory") || p.at("storage") || p.at("calldata") {
			p.advance()
		}
		if p.tok().Type != Identifier {
			return false
		}
		next := p.peek(1)
		if !next.Is("=") && !next.Is(";") {
			return false
		}
		d.Types = []string{typ}
		d.Names = []string{p.ident()}
		if p.accept("=") {
			d.Value = p.expr()
		}
		p.expect(";")
		return true
	})
	if !ok {
		return nil
	}
	return d
}
