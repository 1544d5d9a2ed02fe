package solidity

import (
	"fmt"
	"sort"
	"strings"
)

type Options struct {
	// VulnerableFragments are source snippets whose matching statements get flagged.
	VulnerableFragments []string
}

type Statement struct {
	ID         string   `json:"id"`
	Hash       string   `json:"hash"`
	Kind       string   `json:"kind"`
	Normalized string   `json:"normalized"`
	Original   string   `json:"original"`
	Variables  []string `json:"variables"`
	Line       int      `json:"line"`
	Vulnerable bool     `json:"vulnerable,omitempty"`
	Node       Stmt     `json:"-"`
}

type Function struct {
	Name       string       `json:"name"`
	Kind       string       `json:"kind"`
	Visibility string       `json:"visibility,omitempty"`
	Mutability string       `json:"mutability,omitempty"`
	Virtual    bool         `json:"virtual,omitempty"`
	Override   bool         `json:"override,omitempty"`
	HasBody    bool         `json:"has_body"`
	Inputs     []Param      `json:"inputs"`
	Outputs    []Param      `json:"outputs"`
	Calls      []string     `json:"calls"`
	Statements []*Statement `json:"statements"`
	ID         string       `json:"id"`
	Hash       string       `json:"hash"`
	Normalized string       `json:"normalized"`
	Original   string       `json:"original"`
	Vulnerable bool         `json:"vulnerable,omitempty"`
	Decl       *FunctionDecl `json:"-"`
}

type Contract struct {
	Name       string        `json:"name"`
	Kind       string        `json:"kind"`
	Abstract   bool          `json:"abstract,omitempty"`
	Bases      []string      `json:"bases"`
	Functions  []*Function   `json:"functions"`
	StateVars  []string      `json:"state_vars"`
	Events     []string      `json:"events"`
	ID         string        `json:"id"`
	Hash       string        `json:"hash"`
	Normalized string        `json:"normalized"`
	Original   string        `json:"original"`
	Decl       *ContractDecl `json:"-"`
}

// Unit is everything extracted from one source text.
type Unit struct {
	File      *SourceFile  `json:"-"`
	Pragma    string       `json:"pragma"`
	Contracts []*Contract  `json:"contracts"`
	Functions []*Function  `json:"functions"`
	Flagged   []*Statement `json:"flagged"`

	// FlaggedFunctions 整个函数与某个片段一致
	FlaggedFunctions []*Function `json:"flagged_functions"`
}

// Parse parses src and extracts normalized, hashed units from it.
func Parse(src string, opts Options) (*Unit, error) {
	f, err := ParseSource(src)
	if err != nil {
		return nil, err
	}
	return Analyze(f, opts), nil
}

func Analyze(f *SourceFile, opts Options) *Unit {
	a := &analyzer{f: f, vuln: fragmentSet(opts.VulnerableFragments)}
	u := &Unit{File: f, Pragma: f.Pragma}
	for _, cd := range f.Contracts {
		u.Contracts = append(u.Contracts, a.contract(cd))
	}
	for _, fd := range f.Functions {
		u.Functions = append(u.Functions, a.function(fd))
	}
	u.Flagged = a.flagged
	u.FlaggedFunctions = a.flaggedFns
	return u
}

// Contract looks up a contract by name.
func (u *Unit) Contract(name string) *Contract {
	for _, c := range u.Contracts {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// AllFunctions returns contract functions followed by free functions.
func (u *Unit) AllFunctions() []*Function {
	var out []*Function
	for _, c := range u.Contracts {
		out = append(out, c.Functions...)
	}
	return append(out, u.Functions...)
}

type analyzer struct {
	f       *SourceFile
	vuln    map[string]bool
	flagged []*Statement

	flaggedFns []*Function
}

func (a *analyzer) matches(sp Span) bool {
	if len(a.vuln) == 0 {
		return false
	}
	key := a.f.Compact(sp)
	return a.vuln[key] || a.vuln[strings.TrimSuffix(key, ";")]
}

func (a *analyzer) contract(cd *ContractDecl) *Contract {
	c := &Contract{
		Name:     cd.Name,
		Kind:     cd.Kind,
		Abstract: cd.Abstract,
		Bases:    cd.Bases,
		Events:   cd.Events,
		Decl:     cd,
	}
	for _, sv := range cd.StateVars {
		c.StateVars = append(c.StateVars, sv.Name)
	}
	for _, fd := range cd.Functions {
		c.Functions = append(c.Functions, a.function(fd))
	}
	c.Normalized = a.f.Normalize(cd.Span)
	c.Original = a.f.Text(cd.Span)
	c.Hash = HashString(c.Normalized)
	c.ID = ShortID(c.Hash)
	return c
}

func (a *analyzer) function(fd *FunctionDecl) *Function {
	fn := &Function{
		Name:       fd.Name,
		Kind:       fd.Kind,
		Visibility: fd.Visibility,
		Mutability: fd.Mutability,
		Virtual:    fd.Virtual,
		Override:   fd.Override,
		HasBody:    fd.Body != nil,
		Inputs:     fd.Params,
		Outputs:    fd.Returns,
		Decl:       fd,
	}
	fn.Normalized = a.f.Normalize(fd.Span)
	fn.Original = a.f.Text(fd.Span)
	fn.Hash = HashString(fn.Normalized)
	fn.ID = ShortID(fn.Hash)
	if a.matches(fd.Span) {
		fn.Vulnerable = true
		a.flaggedFns = append(a.flaggedFns, fn)
	}

	if fd.Body != nil {
		fn.Calls = CallNames(fd.Body)
		for _, s := range fd.Body.Stmts {
			WalkStmt(s, func(st Stmt) {
				fn.Statements = append(fn.Statements, a.statement(st))
			})
		}
	}
	return fn
}

func (a *analyzer) statement(st Stmt) *Statement {
	sp := st.span()
	s := &Statement{
		Kind:       StatementKind(st),
		Normalized: a.f.Normalize(sp),
		Original:   a.f.Text(sp),
		Variables:  Variables(st),
		Node:       st,
	}
	if sp.From < len(a.f.Tokens) {
		s.Line = a.f.Tokens[sp.From].Line
	}
	s.Hash = HashString(s.Normalized)
	s.ID = ShortID(s.Hash)
	if a.matches(sp) {
		s.Vulnerable = true
		a.flagged = append(a.flagged, s)
	}
	return s
}

func StatementKind(st Stmt) string {
	switch s := st.(type) {
	case *VarDecl:
		return "variable_declaration"
	case *ExprStmt:
		return "expression_statement"
	case *If:
		return "if"
	case *For:
		return "for"
	case *While:
		if s.Do {
			return "do_while"
		}
		return "while"
	case *Return:
		return "return"
	case *Emit:
		return "emit"
	case *Revert:
		return "revert"
	case *Assembly:
		return "assembly_block"
	case *Block:
		if s.Unchecked {
			return "unchecked"
		}
		return "block"
	case *Try:
		return "try"
	}
	return "statement"
}

// WalkStmt visits st and every statement nested in it, pre-order.
// Plain blocks are descended into without being visited.
func WalkStmt(st Stmt, fn func(Stmt)) {
	if st == nil {
		return
	}
	switch s := st.(type) {
	case *Block:
		if s.Unchecked {
			fn(s)
		}
		for _, c := range s.Stmts {
			WalkStmt(c, fn)
		}
		return
	case *If:
		fn(s)
		WalkStmt(s.Then, fn)
		WalkStmt(s.Else, fn)
		return
	case *For:
		fn(s)
		WalkStmt(s.Init, fn)
		WalkStmt(s.Body, fn)
		return
	case *While:
		fn(s)
		WalkStmt(s.Body, fn)
		return
	case *Try:
		fn(s)
		WalkStmt(s.Body, fn)
		for _, c := range s.Catches {
			WalkStmt(c, fn)
		}
		return
	}
	fn(st)
}

// WalkExpr visits e and its sub-expressions, pre-order.
func WalkExpr(e Expr, fn func(Expr)) {
	if e == nil {
		return
	}
	fn(e)
	switch x := e.(type) {
	case *Member:
		WalkExpr(x.X, fn)
	case *IndexExpr:
		WalkExpr(x.X, fn)
		WalkExpr(x.Index, fn)
		WalkExpr(x.End, fn)
	case *Call:
		WalkExpr(x.Fun, fn)
		for _, o := range x.Options {
			WalkExpr(o.Value, fn)
		}
		for _, arg := range x.Args {
			WalkExpr(arg, fn)
		}
		for _, n := range x.Named {
			WalkExpr(n.Value, fn)
		}
	case *Unary:
		WalkExpr(x.X, fn)
	case *Binary:
		WalkExpr(x.X, fn)
		WalkExpr(x.Y, fn)
	case *Assign:
		WalkExpr(x.LHS, fn)
		WalkExpr(x.RHS, fn)
	case *Ternary:
		WalkExpr(x.Cond, fn)
		WalkExpr(x.Then, fn)
		WalkExpr(x.Else, fn)
	case *Tuple:
		for _, el := range x.Elems {
			WalkExpr(el, fn)
		}
	case *ArrayLit:
		for _, el := range x.Elems {
			WalkExpr(el, fn)
		}
	}
}

// StmtExprs lists the expressions owned directly by st.
func StmtExprs(st Stmt) []Expr {
	switch s := st.(type) {
	case *VarDecl:
		return []Expr{s.Value}
	case *ExprStmt:
		return []Expr{s.X}
	case *If:
		return []Expr{s.Cond}
	case *For:
		return []Expr{s.Cond, s.Post}
	case *While:
		return []Expr{s.Cond}
	case *Return:
		return []Expr{s.Value}
	case *Emit:
		return []Expr{s.Call}
	case *Revert:
		return []Expr{s.Call}
	case *Try:
		return []Expr{s.Call}
	}
	return nil
}

// Variables returns identifiers referenced or declared by st in first-seen order.
func Variables(st Stmt) []string {
	seen := map[string]bool{}
	var out []string
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	WalkStmt(st, func(s Stmt) {
		if d, ok := s.(*VarDecl); ok {
			for _, n := range d.Names {
				add(n)
			}
		}
		for _, e := range StmtExprs(s) {
			WalkExpr(e, func(x Expr) {
				if id, ok := x.(*Ident); ok {
					add(id.Name)
				}
			})
		}
	})
	return out
}

// CallNames returns the distinct callee names invoked anywhere in body, sorted.
func CallNames(body *Block) []string {
	set := map[string]bool{}
	WalkStmt(body, func(st Stmt) {
		for _, e := range StmtExprs(st) {
			WalkExpr(e, func(x Expr) {
				c, ok := x.(*Call)
				if !ok {
					return
				}
				if name := CalleeName(c.Fun); name != "" {
					set[name] = true
				}
			})
		}
	})
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CalleeName returns the bare function name of a call target.
func CalleeName(fun Expr) string {
	switch f := fun.(type) {
	case *Ident:
		return f.Name
	case *Member:
		return f.Name
	case *Call:
		// f{value: v}(...)
		return CalleeName(f.Fun)
	case *ElementaryType:
		return f.Name
	}
	return ""
}

type SourceInput struct {
	Name string
	Text string
}

type BatchResult struct {
	Units  map[string]*Unit
	Errors map[string]error
}

// ParseBatch parses every input; a failing source is recorded and skipped.
func ParseBatch(inputs []SourceInput, opts Options) *BatchResult {
	res := &BatchResult{
		Units:  make(map[string]*Unit),
		Errors: make(map[string]error),
	}
	for _, in := range inputs {
		u, err := Parse(in.Text, opts)
		if err != nil {
			res.Errors[in.Name] = fmt.Errorf("parse %s: %w", in.Name, err)
			continue
		}
		res.Units[in.Name] = u
	}
	return res
}

// FragmentHashes parses a loose fragment (a function, several functions or a
// bare statement list) and returns the hashes it contributes, functions first.
func FragmentHashes(fragment string) ([]string, error) {
	trimmed := strings.TrimSpace(fragment)
	if u, err := Parse(trimmed, Options{}); err == nil && len(u.AllFunctions()) > 0 {
		var out []string
		for _, fn := range u.AllFunctions() {
			out = append(out, fn.Hash)
		}
		return out, nil
	}
	// statements only: wrap them so the parser sees a body
	wrapped := "function __fragment() {\n" + trimmed + "\n}"
	u, err := Parse(wrapped, Options{})
	if err != nil {
		return nil, err
	}
	var out []string
	for _, fn := range u.Functions {
		for _, st := range fn.Statements {
			out = append(out, st.Hash)
		}
	}
	return out, nil
}
