package flowgraph

import (
	"github.com/VectorBits/pocshift/src/internal/solidity"
)

// Members of these globals are plain values, not actions.
var contextObjects = map[string]bool{
	"msg":   true,
	"tx":    true,
	"block": true,
	"this":  true,
	"abi":   true,
}

type flow struct {
	first []*Node
	last  []*Node
}

type builder struct {
	f *solidity.SourceFile
	g *Graph
}

// BuildFunction builds the flow graph of a single function body.
func BuildFunction(f *solidity.SourceFile, fd *solidity.FunctionDecl) *Graph {
	b := &builder{f: f, g: New()}
	start := b.g.AddNode(string(START), START)
	for _, prm := range fd.Params {
		if prm.Name == "" {
			continue
		}
		b.g.AddEdge(start, b.g.AddNode(prm.Name, VAR), "")
	}
	b.g.Tick()
	if fd.Body != nil {
		b.seq(fd.Body.Stmts, []*Node{start}, "")
	}
	b.g.closeDangling()
	return b.g
}

// BuildContract builds every function graph of cd and then expands, one level
// deep, each ACT node that names another function of the same contract.
// The result is aligned with cd.Functions.
func BuildContract(f *solidity.SourceFile, cd *solidity.ContractDecl) []*Graph {
	base := make([]*Graph, len(cd.Functions))
	byName := make(map[string]int)
	for i, fd := range cd.Functions {
		base[i] = BuildFunction(f, fd)
		if _, seen := byName[fd.Name]; !seen && fd.Body != nil && fd.Kind != "modifier" {
			byName[fd.Name] = i
		}
	}

	out := make([]*Graph, len(base))
	for i, g := range base {
		inlined := g.Clone()
		for _, n := range g.Nodes() {
			if n.Type != ACT {
				continue
			}
			j, ok := byName[n.Name]
			if !ok || j == i {
				continue
			}
			inlined.Splice(inlined.Node(n.ID), base[j], cd.Functions[j].Name)
		}
		out[i] = inlined
	}
	return out
}

func (b *builder) text(n solidity.Node) string {
	switch x := n.(type) {
	case *solidity.Ident:
		return x.Name
	}
	return b.f.Compact(solidity.SpanOf(n))
}

func (b *builder) link(from, to []*Node, label string) {
	for _, s := range from {
		for _, d := range to {
			b.g.AddEdge(s, d, label)
		}
	}
}

func controlNodes(nodes []*Node) []*Node {
	var out []*Node
	for _, n := range nodes {
		if n.Type == CON || n.Type == LOOP {
			out = append(out, n)
		}
	}
	return out
}

// seq processes statements in order. The entry nodes feed every statement
// until a control statement takes over as the predecessor of what follows.
func (b *builder) seq(stmts []solidity.Stmt, entry []*Node, label string) flow {
	var out flow
	pending, lbl := entry, label
	replaced := false
	for _, s := range stmts {
		fl := b.stmt(s)
		b.link(pending, fl.first, lbl)
		if !replaced {
			out.first = append(out.first, fl.first...)
		}
		if len(fl.last) > 0 {
			out.last = fl.last
		}
		if ctl := controlNodes(fl.last); len(ctl) > 0 {
			pending, lbl, replaced = ctl, "", true
		}
		b.g.Tick()
	}
	return out
}

func (b *builder) branch(s solidity.Stmt, entry []*Node, label string) flow {
	if s == nil {
		return flow{}
	}
	if blk, ok := s.(*solidity.Block); ok {
		return b.seq(blk.Stmts, entry, label)
	}
	return b.seq([]solidity.Stmt{s}, entry, label)
}

func (b *builder) stmt(s solidity.Stmt) flow {
	switch st := s.(type) {
	case *solidity.Block:
		return b.seq(st.Stmts, nil, "")

	case *solidity.ExprStmt:
		return b.expr(st.X)

	case *solidity.VarDecl:
		var vars []*Node
		for _, name := range st.Names {
			if name != "" {
				vars = append(vars, b.g.AddNode(name, VAR))
			}
		}
		if st.Value == nil {
			return flow{first: vars, last: vars}
		}
		v := b.expr(st.Value)
		act := b.g.AddNode(b.text(st), ACT)
		b.link(v.last, []*Node{act}, "")
		b.link([]*Node{act}, vars, "")
		return flow{first: orSelf(v.first, act), last: vars}

	case *solidity.If:
		c := b.expr(st.Cond)
		con := b.g.AddNode("if:"+b.text(st.Cond), CON)
		b.link(c.last, []*Node{con}, "")
		then := b.branch(st.Then, []*Node{con}, "true")
		els := b.branch(st.Else, []*Node{con}, "false")
		last := append([]*Node{con}, then.last...)
		last = append(last, els.last...)
		return flow{first: orSelf(c.first, con), last: last}

	case *solidity.For:
		loop := b.g.AddNode(b.text(st), LOOP)
		var first []*Node
		if st.Init != nil {
			init := b.stmt(st.Init)
			b.link(init.last, []*Node{loop}, "")
			first = append(first, init.first...)
		}
		if st.Cond != nil {
			c := b.expr(st.Cond)
			b.link(c.last, []*Node{loop}, "")
			first = append(first, c.first...)
		}
		body := b.branch(st.Body, []*Node{loop}, "body")
		if st.Post != nil {
			post := b.expr(st.Post)
			b.link(body.last, post.first, "")
			b.link(post.last, []*Node{loop}, "loop")
		} else {
			b.link(body.last, []*Node{loop}, "loop")
		}
		return flow{first: orSelf(first, loop), last: []*Node{loop}}

	case *solidity.While:
		loop := b.g.AddNode(b.text(st), LOOP)
		c := b.expr(st.Cond)
		b.link(c.last, []*Node{loop}, "")
		body := b.branch(st.Body, []*Node{loop}, "body")
		b.link(body.last, []*Node{loop}, "loop")
		first := c.first
		if st.Do {
			first = body.first
		}
		return flow{first: orSelf(first, loop), last: []*Node{loop}}

	case *solidity.Return:
		end := b.g.AddNode(string(END), END)
		if st.Value == nil {
			return flow{first: []*Node{end}, last: []*Node{end}}
		}
		v := b.expr(st.Value)
		b.link(v.last, []*Node{end}, "")
		return flow{first: orSelf(v.first, end), last: []*Node{end}}

	case *solidity.Emit:
		return b.expr(st.Call)

	case *solidity.Revert:
		return b.expr(st.Call)

	case *solidity.Try:
		c := b.expr(st.Call)
		con := b.g.AddNode("try:"+b.text(st.Call), CON)
		b.link(c.last, []*Node{con}, "")
		body := b.branch(st.Body, []*Node{con}, "true")
		last := append([]*Node{con}, body.last...)
		for _, blk := range st.Catches {
			cf := b.branch(blk, []*Node{con}, "false")
			last = append(last, cf.last...)
		}
		return flow{first: orSelf(c.first, con), last: last}

	case *solidity.Assembly:
		n := b.g.AddNode(b.text(st), ASS)
		return flow{first: []*Node{n}, last: []*Node{n}}

	case *solidity.Simple:
		if st.Keyword == "_" {
			n := b.g.AddNode("_", ACT)
			return flow{first: []*Node{n}, last: []*Node{n}}
		}
	}
	return flow{}
}

func (b *builder) expr(e solidity.Expr) flow {
	switch x := e.(type) {
	case nil:
		return flow{}

	case *solidity.Ident, *solidity.Literal, *solidity.TypeExpr:
		n := b.g.AddNode(b.text(x), VAR)
		return single(n)

	case *solidity.ElementaryType, *solidity.New:
		n := b.g.AddNode(b.text(x), ACT)
		return single(n)

	case *solidity.Member:
		if id, ok := x.X.(*solidity.Ident); ok && contextObjects[id.Name] {
			return single(b.g.AddNode(b.text(x), VAR))
		}
		base := b.expr(x.X)
		n := b.g.AddNode(b.text(x), ACT)
		b.link(base.last, []*Node{n}, "")
		return flow{first: orSelf(base.first, n), last: []*Node{n}}

	case *solidity.IndexExpr:
		var first []*Node
		arr := b.g.AddNode(b.text(x.X), ARRAY)
		if _, isIdent := x.X.(*solidity.Ident); !isIdent {
			base := b.expr(x.X)
			b.link(base.last, []*Node{arr}, "")
			first = append(first, base.first...)
		} else {
			first = append(first, arr)
		}
		ai := b.g.AddNode(b.text(x), ARRAY_INDEX)
		b.g.AddEdge(arr, ai, "")
		for _, sub := range []solidity.Expr{x.Index, x.End} {
			if sub == nil {
				continue
			}
			idx := b.expr(sub)
			b.link(idx.last, []*Node{ai}, "")
			first = append(first, idx.first...)
		}
		return flow{first: first, last: []*Node{ai}}

	case *solidity.Call:
		callee := b.callee(x.Fun)
		call := b.g.AddNode(b.text(x), ACT)
		b.link(callee.last, []*Node{call}, "")
		first := append([]*Node(nil), callee.first...)
		var args []solidity.Expr
		for _, o := range x.Options {
			args = append(args, o.Value)
		}
		args = append(args, x.Args...)
		for _, n := range x.Named {
			args = append(args, n.Value)
		}
		for _, a := range args {
			af := b.expr(a)
			b.link(af.last, []*Node{call}, "")
			first = append(first, af.first...)
		}
		return flow{first: orSelf(first, call), last: []*Node{call}}

	case *solidity.Unary:
		v := b.expr(x.X)
		n := b.g.AddNode(b.text(x), ACT)
		b.link(v.last, []*Node{n}, "")
		if x.Op == "++" || x.Op == "--" || x.Op == "delete" {
			b.link([]*Node{n}, v.last, "")
		}
		return flow{first: orSelf(v.first, n), last: []*Node{n}}

	case *solidity.Binary:
		l := b.expr(x.X)
		r := b.expr(x.Y)
		n := b.g.AddNode(b.text(x), ACT)
		b.link(l.last, []*Node{n}, "")
		b.link(r.last, []*Node{n}, "")
		return flow{first: orSelf(append(l.first, r.first...), n), last: []*Node{n}}

	case *solidity.Assign:
		r := b.expr(x.RHS)
		l := b.expr(x.LHS)
		n := b.g.AddNode(b.text(x), ACT)
		b.link(r.last, []*Node{n}, "")
		first := r.first
		if x.Op != "=" {
			b.link(l.last, []*Node{n}, "")
			first = append(first, l.first...)
		}
		b.link([]*Node{n}, l.last, "")
		return flow{first: orSelf(first, n), last: l.last}

	case *solidity.Ternary:
		c := b.expr(x.Cond)
		con := b.g.AddNode("?:"+b.text(x.Cond), CON)
		b.link(c.last, []*Node{con}, "")
		t := b.expr(x.Then)
		f := b.expr(x.Else)
		b.link([]*Node{con}, t.first, "YES")
		b.link([]*Node{con}, f.first, "NO")
		return flow{first: orSelf(c.first, con), last: append(t.last, f.last...)}

	case *solidity.Tuple:
		var out flow
		for _, el := range x.Elems {
			if el == nil {
				continue
			}
			ef := b.expr(el)
			out.first = append(out.first, ef.first...)
			out.last = append(out.last, ef.last...)
		}
		return out

	case *solidity.ArrayLit:
		n := b.g.AddNode(b.text(x), ARRAY)
		var first []*Node
		for _, el := range x.Elems {
			ef := b.expr(el)
			b.link(ef.last, []*Node{n}, "")
			first = append(first, ef.first...)
		}
		return flow{first: orSelf(first, n), last: []*Node{n}}
	}
	return flow{}
}

// callee produces the node naming the invoked function, the anchor used for inlining.
func (b *builder) callee(fun solidity.Expr) flow {
	switch f := fun.(type) {
	case *solidity.Ident:
		return single(b.g.AddNode(f.Name, ACT))
	case *solidity.Member:
		if id, ok := f.X.(*solidity.Ident); ok && contextObjects[id.Name] {
			return single(b.g.AddNode(b.text(f), ACT))
		}
		base := b.expr(f.X)
		n := b.g.AddNode(b.text(f), ACT)
		b.link(base.last, []*Node{n}, "")
		return flow{first: orSelf(base.first, n), last: []*Node{n}}
	}
	return b.expr(fun)
}

func single(n *Node) flow {
	return flow{first: []*Node{n}, last: []*Node{n}}
}

func orSelf(first []*Node, self *Node) []*Node {
	if len(first) == 0 {
		return []*Node{self}
	}
	return first
}
