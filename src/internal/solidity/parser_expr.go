package solidity

var binaryPrec = map[string]int{
	"||": 1,
	"&&": 2,
	"==": 3, "!=": 3,
	"<": 4, ">": 4, "<=": 4, ">=": 4,
	"|":  5,
	"^":  6,
	"&":  7,
	"<<": 8, ">>": 8, ">>>": 8,
	"+": 9, "-": 9,
	"*": 10, "/": 10, "%": 10,
	"**": 11,
}

var assignOps = map[string]bool{
	"=": true, "|=": true, "^=": true, "&=": true, "<<=": true, ">>=": true, ">>>=": true,
	"+=": true, "-=": true, "*=": true, "/=": true, "%=": true, "**=": true,
}

var numberUnits = map[string]bool{
	"wei": true, "gwei": true, "ether": true, "szabo": true, "finney": true,
	"seconds": true, "minutes": true, "hours": true, "days": true, "weeks": true, "years": true,
}

func (p *parser) expr() Expr {
	m := p.pos
	lhs := p.ternary()
	if t := p.tok(); t.Type == Punct && assignOps[t.Text] {
		op := p.advance().Text
		rhs := p.expr()
		return &Assign{Span: p.spanFrom(m), Op: op, LHS: lhs, RHS: rhs}
	}
	return lhs
}

func (p *parser) ternary() Expr {
	m := p.pos
	cond := p.binary(1)
	if !p.accept("?") {
		return cond
	}
	then := p.expr()
	p.expect(":")
	els := p.expr()
	return &Ternary{Span: p.spanFrom(m), Cond: cond, Then: then, Else: els}
}

func (p *parser) binary(minPrec int) Expr {
	m := p.pos
	x := p.unary()
	for {
		t := p.tok()
		if t.Type != Punct {
			return x
		}
		prec := binaryPrec[t.Text]
		if prec == 0 || prec < minPrec {
			return x
		}
		p.advance()
		next := prec + 1
		if t.Text == "**" {
			next = prec
		}
		y := p.binary(next)
		x = &Binary{Span: p.spanFrom(m), Op: t.Text, X: x, Y: y}
	}
}

func (p *parser) unary() Expr {
	m := p.pos
	t := p.tok()
	if (t.Type == Punct && (t.Text == "!" || t.Text == "~" || t.Text == "-" || t.Text == "+" || t.Text == "++" || t.Text == "--")) ||
		(t.Type == Keyword && t.Text == "delete") {
		p.advance()
		x := p.unary()
		return &Unary{Span: p.spanFrom(m), Op: t.Text, X: x}
	}
	return p.postfix()
}

func (p *parser) postfix() Expr {
	m := p.pos
	x := p.primary()
	for {
		switch {
		case p.at("."):
			p.advance()
			name := p.advance().Text
			x = &Member{Span: p.spanFrom(m), X: x, Name: name}

		case p.at("["):
			p.advance()
			ix := &IndexExpr{X: x}
			if !p.at("]") && !p.at(":") {
				ix.Index = p.expr()
			}
			if p.accept(":") {
				ix.Slice = true
				if !p.at("]") {
					ix.End = p.expr()
				}
			}
			p.expect("]")
			ix.Span = p.spanFrom(m)
			x = ix

		case p.at("("):
			c := &Call{Fun: x}
			c.Args, c.Named = p.callArgs()
			c.Span = p.spanFrom(m)
			x = c

		case p.at("{") && p.peek(1).Type == Identifier && p.peek(2).Is(":"):
			// call options: f{value: v}(...)
			c := &Call{Fun: x, Options: p.namedArgs()}
			if p.at("(") {
				c.Args, c.Named = p.callArgs()
			}
			c.Span = p.spanFrom(m)
			x = c

		case p.at("++"), p.at("--"):
			op := p.advance().Text
			x = &Unary{Span: p.spanFrom(m), Op: op, X: x, Postfix: true}

		default:
			return x
		}
	}
}

func (p *parser) callArgs() ([]Expr, []NamedArg) {
	if p.peek(1).Is("{") {
		p.expect("(")
		named := p.namedArgs()
		p.expect(")")
		return nil, named
	}
	p.expect("(")
	var args []Expr
	for !p.eof() && !p.at(")") {
		args = append(args, p.expr())
		if !p.accept(",") {
			break
		}
	}
	p.expect(")")
	return args, nil
}

func (p *parser) namedArgs() []NamedArg {
	p.expect("{")
	var out []NamedArg
	for !p.eof() && !p.at("}") {
		name := p.advance().Text
		p.expect(":")
		out = append(out, NamedArg{Name: name, Value: p.expr()})
		if !p.accept(",") {
			break
		}
	}
	p.expect("}")
	return out
}

func (p *parser) primary() Expr {
	m := p.pos
	t := p.tok()

	switch {
	case p.at("("):
		p.advance()
		tup := &Tuple{}
		for !p.eof() && !p.at(")") {
			if p.at(",") {
				tup.Elems = append(tup.Elems, nil)
				p.advance()
				if p.at(")") {
					tup.Elems = append(tup.Elems, nil)
				}
				continue
			}
			tup.Elems = append(tup.Elems, p.expr())
			if !p.accept(",") {
				break
			}
			if p.at(")") {
				tup.Elems = append(tup.Elems, nil)
			}
		}
		p.expect(")")
		tup.Span = p.spanFrom(m)
		return tup

	case p.at("["):
		p.advance()
		arr := &ArrayLit{}
		for !p.eof() && !p.at("]") {
			arr.Elems = append(arr.Elems, p.expr())
			if !p.accept(",") {
				break
			}
		}
		p.expect("]")
		arr.Span = p.spanFrom(m)
		return arr

	case p.at("new"):
		p.advance()
		typ := p.typeName()
		return &New{Span: p.spanFrom(m), Type: typ}

	case p.at("mapping"), p.at("function"):
		name := p.typeName()
		return &TypeExpr{Span: p.spanFrom(m), Name: name}
	}

	switch t.Type {
	case Identifier:
		p.advance()
		return &Ident{Span: p.spanFrom(m), Name: t.Text}

	case Keyword:
		p.advance()
		if t.Text == "address" && p.at("payable") {
			p.advance()
		}
		return &ElementaryType{Span: p.spanFrom(m), Name: t.Text}

	case StringLiteral:
		for p.tok().Type == StringLiteral {
			p.advance()
		}
		return &Literal{Span: p.spanFrom(m), Kind: StringLiteral, Value: p.f.Compact(p.spanFrom(m))}

	case DecimalNumber, HexNumber:
		p.advance()
		if p.tok().Type == Keyword && numberUnits[p.tok().Text] {
			p.advance()
		}
		return &Literal{Span: p.spanFrom(m), Kind: t.Type, Value: t.Text}

	case BooleanLiteral:
		p.advance()
		return &Literal{Span: p.spanFrom(m), Kind: BooleanLiteral, Value: t.Text}
	}

	p.failf("unexpected %q in expression", t.Text)
	return nil
}
