package solidity

import (
	"fmt"
	"strings"
)

type parseError struct {
	line int
	msg  string
}

func (e parseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.line, e.msg)
}

type parser struct {
	f   *SourceFile
	sig []int // indices of default-channel tokens, EOF last
	pos int
}

// ParseSource tokenizes and parses a single Solidity source text.
func ParseSource(src string) (f *SourceFile, err error) {
	tokens, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	f = &SourceFile{Src: src, Tokens: tokens}
	p := &parser{f: f}
	for i, t := range tokens {
		if t.Channel == DefaultChannel {
			p.sig = append(p.sig, i)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			pe, ok := r.(parseError)
			if !ok {
				panic(r)
			}
			f, err = nil, pe
		}
	}()
	p.sourceUnit()
	return f, nil
}

func (p *parser) tok() Token {
	return p.f.Tokens[p.sig[p.pos]]
}

func (p *parser) peek(n int) Token {
	i := p.pos + n
	if i >= len(p.sig) {
		i = len(p.sig) - 1
	}
	return p.f.Tokens[p.sig[i]]
}

func (p *parser) eof() bool {
	return p.tok().Type == EOF
}

func (p *parser) at(text string) bool {
	return p.tok().Is(text)
}

func (p *parser) advance() Token {
	t := p.tok()
	if t.Type != EOF {
		p.pos++
	}
	return t
}

func (p *parser) accept(text string) bool {
	if p.at(text) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(text string) Token {
	if !p.at(text) {
		p.failf("expected %q, found %q", text, p.tok().Text)
	}
	return p.advance()
}

func (p *parser) ident() string {
	t := p.tok()
	if t.Type != Identifier {
		p.failf("expected identifier, found %q", t.Text)
	}
	p.pos++
	return t.Text
}

func (p *parser) failf(format string, args ...interface{}) {
	panic(parseError{line: p.tok().Line, msg: fmt.Sprintf(format, args...)})
}

func (p *parser) spanFrom(m int) Span {
	if p.pos <= m {
		return Span{From: p.sig[m], To: p.sig[m]}
	}
	return Span{From: p.sig[m], To: p.sig[p.pos-1] + 1}
}

// try runs fn and rewinds the cursor if it fails to parse.
func (p *parser) try(fn func() bool) (ok bool) {
	save := p.pos
	defer func() {
		if r := recover(); r != nil {
			if _, isParse := r.(parseError); !isParse {
				panic(r)
			}
			p.pos = save
			ok = false
		}
	}()
	if !fn() {
		p.pos = save
		return false
	}
	return true
}

// skipBalanced consumes a bracketed group starting at the current opener.
func (p *parser) skipBalanced() {
	open := p.tok().Text
	var close string
	switch open {
	case "(":
		close = ")"
	case "[":
		close = "]"
	case "{":
		close = "}"
	default:
		p.failf("expected bracket, found %q", open)
	}
	depth := 0
	for !p.eof() {
		t := p.advance()
		if t.Type != Punct {
			continue
		}
		switch t.Text {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return
			}
		}
	}
	p.failf("unbalanced %q", open)
}

// skipPast consumes tokens through the next top-level semicolon.
func (p *parser) skipPast() {
	for !p.eof() {
		switch {
		case p.at("(") || p.at("[") || p.at("{"):
			p.skipBalanced()
		case p.accept(";"):
			return
		default:
			p.advance()
		}
	}
}

func (p *parser) sourceUnit() {
	for !p.eof() {
		switch {
		case p.at("pragma"):
			p.pragma()
		case p.at("abstract"), p.at("contract"), p.at("interface"), p.at("library"):
			p.f.Contracts = append(p.f.Contracts, p.contract())
		case p.at("function"):
			p.f.Functions = append(p.f.Functions, p.function())
		case p.at("struct"), p.at("enum"):
			p.advance()
			p.advance()
			if p.at("{") {
				p.skipBalanced()
			}
		case p.at(";"):
			p.advance()
		default:
			// import / using / error / event / type / file-level constant
			p.skipPast()
		}
	}
}

func (p *parser) pragma() {
	p.expect("pragma")
	isSolidity := p.tok().Text == "solidity"
	p.advance()
	m := p.pos
	for !p.eof() && !p.at(";") {
		p.advance()
	}
	if isSolidity && p.f.Pragma == "" {
		p.f.Pragma = strings.TrimSpace(p.f.Text(p.spanFrom(m)))
	}
	p.accept(";")
}

func (p *parser) contract() *ContractDecl {
	m := p.pos
	c := &ContractDecl{}
	c.Abstract = p.accept("abstract")
	c.Kind = p.advance().Text
	c.Name = p.ident()

	if p.accept("is") {
		for !p.eof() && !p.at("{") {
			base := p.typePath()
			if p.at("(") {
				p.skipBalanced()
			}
			c.Bases = append(c.Bases, base)
			if !p.accept(",") {
				break
			}
		}
	}

	p.expect("{")
	for !p.eof() && !p.at("}") {
		switch {
		case p.at("function"), p.at("constructor"), p.at("modifier"),
			(p.at("fallback") || p.at("receive")) && p.peek(1).Is("("):
			c.Functions = append(c.Functions, p.function())
		case p.at("event"):
			p.advance()
			c.Events = append(c.Events, p.tok().Text)
			p.skipPast()
		case p.at("struct"), p.at("enum"):
			p.advance()
			p.advance()
			if p.at("{") {
				p.skipBalanced()
			}
		case p.at("using"), p.at("type"),
			p.at("error") && p.peek(1).Type == Identifier:
			p.skipPast()
		case p.at(";"):
			p.advance()
		default:
			if sv := p.stateVar(); sv != nil {
				c.StateVars = append(c.StateVars, sv)
			}
		}
	}
	p.expect("}")
	c.Span = p.spanFrom(m)
	return c
}

func (p *parser) stateVar() *StateVar {
	m := p.pos
	sv := &StateVar{}
	if !p.try(func() bool {
		sv.Type = p.typeName()
		for !p.eof() {
			switch {
			case p.at("public"), p.at("private"), p.at("internal"), p.at("immutable"), p.at("transient"):
				p.advance()
			case p.at("constant"):
				sv.Constant = true
				p.advance()
			case p.at("override"):
				p.advance()
				if p.at("(") {
					p.skipBalanced()
				}
			default:
				sv.Name = p.ident()
				if p.accept("=") {
					sv.Value = p.expr()
				}
				p.expect(";")
				return true
			}
		}
		return false
	}) {
		// not a declaration we understand, drop it
		p.pos = m
		p.skipPast()
		return nil
	}
	sv.Span = p.spanFrom(m)
	return sv
}

func (p *parser) function() *FunctionDecl {
	m := p.pos
	kw := p.advance().Text
	fd := &FunctionDecl{Kind: kw}
	switch kw {
	case "function":
		if !p.at("(") {
			fd.Name = p.advance().Text
		} else {
			fd.Kind = "fallback"
		}
	case "modifier":
		fd.Name = p.ident()
	default:
		fd.Name = kw
	}
	if fd.Kind == "function" && (fd.Name == "fallback" || fd.Name == "receive") {
		fd.Kind = fd.Name
	}

	if p.at("(") {
		fd.Params = p.params()
	}

	for !p.eof() && !p.at("{") && !p.at(";") {
		t := p.tok()
		switch t.Text {
		case "public", "private", "internal", "external":
			fd.Visibility = t.Text
			p.advance()
		case "pure", "view", "payable", "constant":
			fd.Mutability = t.Text
			p.advance()
		case "virtual":
			fd.Virtual = true
			p.advance()
		case "override":
			fd.Override = true
			p.advance()
			if p.at("(") {
				p.skipBalanced()
			}
		case "returns":
			p.advance()
			fd.Returns = p.params()
		default:
			if t.Type != Identifier {
				p.advance()
				continue
			}
			name := p.typePath()
			if p.at("(") {
				p.skipBalanced()
			}
			fd.Modifiers = append(fd.Modifiers, name)
		}
	}

	if p.at("{") {
		fd.Body = p.block()
	} else {
		p.expect(";")
	}
	fd.Span = p.spanFrom(m)
	return fd
}

func (p *parser) params() []Param {
	p.expect("(")
	var out []Param
	for !p.eof() && !p.at(")") {
		var prm Param
		prm.Type = p.typeName()
		for p.at("memory") || p.at("storage") || p.at("calldata") || p.at("indexed") {
			prm.Location = p.advance().Text
		}
		if p.tok().Type == Identifier {
			prm.Name = p.advance().Text
		}
		out = append(out, prm)
		if !p.accept(",") {
			break
		}
	}
	p.expect(")")
	return out
}

func (p *parser) typePath() string {
	var parts []string
	parts = append(parts, p.advance().Text)
	for p.at(".") {
		p.advance()
		parts = append(parts, p.advance().Text)
	}
	return strings.Join(parts, ".")
}

func (p *parser) isTypeStart() bool {
	t := p.tok()
	switch t.Type {
	case Identifier:
		return true
	case Keyword:
		return IsElementaryType(t.Text) || t.Text == "mapping" || t.Text == "function"
	}
	return false
}

// typeName consumes a type and returns its source text.
func (p *parser) typeName() string {
	m := p.pos
	switch {
	case p.at("mapping"):
		p.advance()
		p.skipBalanced()
	case p.at("function"):
		p.advance()
		p.skipBalanced()
		for p.at("internal") || p.at("external") || p.at("view") || p.at("pure") || p.at("payable") {
			p.advance()
		}
		if p.accept("returns") {
			p.skipBalanced()
		}
	default:
		if !p.isTypeStart() {
			p.failf("expected type name, found %q", p.tok().Text)
		}
		name := p.typePath()
		if name == "address" && p.at("payable") {
			p.advance()
		}
	}
	for p.at("[") {
		p.skipBalanced()
	}
	return p.f.Text(p.spanFrom(m))
}
