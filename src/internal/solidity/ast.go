package solidity

// Span is a half-open range of token indices into SourceFile.Tokens.
type Span struct {
	From int
	To   int
}

func (s Span) span() Span { return s }

type Node interface {
	span() Span
}

func SpanOf(n Node) Span { return n.span() }

// Expressions

type Expr interface {
	Node
	exprNode()
}

type Ident struct {
	Span
	Name string
}

type Literal struct {
	Span
	Kind  TokenType
	Value string
}

// ElementaryType covers keyword primaries such as address(x), payable(x), type(T).
type ElementaryType struct {
	Span
	Name string
}

type Member struct {
	Span
	X    Expr
	Name string
}

type IndexExpr struct {
	Span
	X     Expr
	Index Expr
	End   Expr // slice upper bound
	Slice bool
}

type NamedArg struct {
	Name  string
	Value Expr
}

type Call struct {
	Span
	Fun     Expr
	Options []NamedArg // {value: v, gas: g}
	Args    []Expr
	Named   []NamedArg
}

type Unary struct {
	Span
	Op      string
	X       Expr
	Postfix bool
}

type Binary struct {
	Span
	Op string
	X  Expr
	Y  Expr
}

type Assign struct {
	Span
	Op  string
	LHS Expr
	RHS Expr
}

type Ternary struct {
	Span
	Cond Expr
	Then Expr
	Else Expr
}

type Tuple struct {
	Span
	Elems []Expr // nil entries for omitted components
}

type ArrayLit struct {
	Span
	Elems []Expr
}

type New struct {
	Span
	Type string
}

// TypeExpr is a type name used in expression position, e.g. uint256[] or mapping(...).
type TypeExpr struct {
	Span
	Name string
}

func (*Ident) exprNode()          {}
func (*Literal) exprNode()        {}
func (*ElementaryType) exprNode() {}
func (*Member) exprNode()         {}
func (*IndexExpr) exprNode()      {}
func (*Call) exprNode()           {}
func (*Unary) exprNode()          {}
func (*Binary) exprNode()         {}
func (*Assign) exprNode()         {}
func (*Ternary) exprNode()        {}
func (*Tuple) exprNode()          {}
func (*ArrayLit) exprNode()       {}
func (*New) exprNode()            {}
func (*TypeExpr) exprNode()       {}

// Statements

type Stmt interface {
	Node
	stmtNode()
}

type Block struct {
	Span
	Stmts     []Stmt
	Unchecked bool
}

type VarDecl struct {
	Span
	Types []string
	Names []string // "" for skipped tuple components
	Value Expr
}

type ExprStmt struct {
	Span
	X Expr
}

type If struct {
	Span
	Cond Expr
	Then Stmt
	Else Stmt
}

type For struct {
	Span
	Init Stmt
	Cond Expr
	Post Expr
	Body Stmt
}

type While struct {
	Span
	Cond Expr
	Body Stmt
	Do   bool
}

type Return struct {
	Span
	Value Expr
}

type Emit struct {
	Span
	Call Expr
}

type Revert struct {
	Span
	Call Expr
}

type Try struct {
	Span
	Call    Expr
	Body    *Block
	Catches []*Block
}

type Assembly struct {
	Span
}

// Simple covers break, continue, throw and the modifier placeholder.
type Simple struct {
	Span
	Keyword string
}

func (*Block) stmtNode()    {}
func (*VarDecl) stmtNode()  {}
func (*ExprStmt) stmtNode() {}
func (*If) stmtNode()       {}
func (*For) stmtNode()      {}
func (*While) stmtNode()    {}
func (*Return) stmtNode()   {}
func (*Emit) stmtNode()     {}
func (*Revert) stmtNode()   {}
func (*Try) stmtNode()      {}
func (*Assembly) stmtNode() {}
func (*Simple) stmtNode()   {}

// Declarations

type Param struct {
	Type     string
	Location string
	Name     string
}

type FunctionDecl struct {
	Span
	Name       string
	Kind       string // function | constructor | fallback | receive | modifier
	Params     []Param
	Returns    []Param
	Visibility string
	Mutability string
	Virtual    bool
	Override   bool
	Modifiers  []string
	Body       *Block
}

type StateVar struct {
	Span
	Type     string
	Name     string
	Constant bool
	Value    Expr
}

type ContractDecl struct {
	Span
	Name      string
	Kind      string // contract | interface | library
	Abstract  bool
	Bases     []string
	Functions []*FunctionDecl
	StateVars []*StateVar
	Events    []string
}

type SourceFile struct {
	Src       string
	Tokens    []Token
	Pragma    string
	Contracts []*ContractDecl
	Functions []*FunctionDecl
}

// Text returns the original source covered by sp, hidden tokens included.
func (f *SourceFile) Text(sp Span) string {
	if sp.From >= sp.To || sp.From < 0 || sp.To > len(f.Tokens) {
		return ""
	}
	return f.Src[f.Tokens[sp.From].Start:f.Tokens[sp.To-1].End]
}

// Compact returns the default-channel text of sp with no separators.
func (f *SourceFile) Compact(sp Span) string {
	var b []byte
	for i := sp.From; i < sp.To && i < len(f.Tokens); i++ {
		if f.Tokens[i].Channel == DefaultChannel {
			b = append(b, f.Tokens[i].Text...)
		}
	}
	return string(b)
}
