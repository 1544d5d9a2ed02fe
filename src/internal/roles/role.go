package roles

import (
	"fmt"
	"strconv"
	"strings"
)

type Kind string

const (
	KindTarget Kind = "target"
	KindCommon Kind = "common"
	KindRead   Kind = "read"
	KindPair   Kind = "pair"
	KindTemp   Kind = "temp"
	KindLeft   Kind = "left"
)

// Kinds lists the role kinds in precedence order.
var Kinds = []Kind{KindTarget, KindCommon, KindRead, KindPair, KindTemp, KindLeft}

// Role is the structural purpose of an address. The set of implementations
// is closed: Target, Common, Read, Pair, Temp and Left.
type Role interface {
	Kind() Kind
	// Relation is the evidence recorded in the signature document.
	Relation() []string
	isRole()
}

type Target struct{}

// Common is an entry of the per-chain infrastructure table. Index 0 is the
// router, the rest are main tokens.
type Common struct {
	Index int
}

// Read was returned by a zero-argument getter on the target.
type Read struct {
	Function string
}

// Pair is the pool the factory returns for two known tokens.
type Pair struct {
	Token0 string
	Token1 string
}

// Temp was constructed by the PoC itself.
type Temp struct {
	Contracts []string
}

type Left struct{}

func (Target) Kind() Kind { return KindTarget }
func (Common) Kind() Kind { return KindCommon }
func (Read) Kind() Kind   { return KindRead }
func (Pair) Kind() Kind   { return KindPair }
func (Temp) Kind() Kind   { return KindTemp }
func (Left) Kind() Kind   { return KindLeft }

func (Target) Relation() []string   { return []string{} }
func (c Common) Relation() []string { return []string{strconv.Itoa(c.Index)} }
func (r Read) Relation() []string   { return []string{r.Function} }
func (p Pair) Relation() []string   { return []string{p.Token0, p.Token1} }
func (t Temp) Relation() []string   { return append([]string{}, t.Contracts...) }
func (Left) Relation() []string     { return []string{} }

func (Target) isRole() {}
func (Common) isRole() {}
func (Read) isRole()   {}
func (Pair) isRole()   {}
func (Temp) isRole()   {}
func (Left) isRole()   {}

// Router reports whether the entry is the table's router.
func (c Common) Router() bool { return c.Index == 0 }

// Contract is the type name the PoC instantiated.
func (t Temp) Contract() string {
	if len(t.Contracts) == 0 {
		return ""
	}
	return t.Contracts[0]
}

func (k Kind) varPrefix() string {
	return strings.ToUpper(string(k)) + "ADDRESS"
}

// VarName returns the role variable for the n-th address of kind k.
func VarName(k Kind, n int) string {
	if k == KindTarget {
		return "TARGETADDRESS"
	}
	return fmt.Sprintf("%s%d", k.varPrefix(), n)
}

// Assignment binds an address to its role and variable.
type Assignment struct {
	Address string `json:"address"`
	Role    Role   `json:"-"`
	Var     string `json:"var"`
}

func (a Assignment) Kind() Kind { return a.Role.Kind() }
