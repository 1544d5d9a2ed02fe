package roles

import (
	"context"
	"strings"

	"github.com/VectorBits/pocshift/src/internal/explorer"
	"github.com/VectorBits/pocshift/src/internal/logger"
	"github.com/VectorBits/pocshift/src/internal/trace"
	"github.com/ethereum/go-ethereum/common"
)

// Prober issues read-only calls against a chain snapshot.
type Prober interface {
	// ReadFunctions calls every zero-argument address getter of target and
	// maps each returned address to the shortest function name yielding it.
	ReadFunctions(ctx context.Context, target string, abi []explorer.Entry, chain string, block uint64) (map[string]string, error)
	// PairOf asks factory for the pool of two tokens; "" when there is none.
	PairOf(ctx context.Context, factory, token0, token1, chain string, block uint64) (string, error)
}

type Classifier struct {
	prober Prober
	tables map[string]Table
}

// NewClassifier builds a classifier. prober may be nil, in which case no
// read or pair address is discovered.
func NewClassifier(prober Prober, tables map[string]Table) *Classifier {
	norm := make(map[string]Table, len(tables))
	for chain, t := range tables {
		norm[strings.ToLower(chain)] = t
	}
	return &Classifier{prober: prober, tables: norm}
}

func (c *Classifier) Table(chain string) Table {
	return c.tables[strings.ToLower(chain)]
}

// Classification is the total role assignment of one PoC.
type Classification struct {
	Target      string       `json:"target"`
	Assignments []Assignment `json:"assignments"`
	// ReadCalls are the getters invoked on the target to initialize read
	// addresses, in assignment order.
	ReadCalls []string `json:"read_calls"`
	Table     Table    `json:"table"`
	index     map[string]int
}

func newClassification(target string, table Table) *Classification {
	return &Classification{Target: target, Table: table, index: make(map[string]int)}
}

func (c *Classification) add(addr string, role Role) {
	c.index[strings.ToLower(addr)] = len(c.Assignments)
	c.Assignments = append(c.Assignments, Assignment{Address: addr, Role: role})
}

func (c *Classification) Lookup(addr string) (Assignment, bool) {
	i, ok := c.index[strings.ToLower(strings.TrimSpace(addr))]
	if !ok {
		return Assignment{}, false
	}
	return c.Assignments[i], true
}

// Var returns the role variable of addr; the test contract is "this".
func (c *Classification) Var(addr string) (string, bool) {
	if SameAddress(addr, trace.TestContract) {
		return "this", true
	}
	a, ok := c.Lookup(addr)
	return a.Var, ok
}

// Expr returns addr as an address-typed expression.
func (c *Classification) Expr(addr string) (string, bool) {
	if SameAddress(addr, trace.TestContract) {
		return "address(this)", true
	}
	a, ok := c.Lookup(addr)
	if !ok {
		return "", false
	}
	return "address(" + a.Var + ")", true
}

func (c *Classification) ByKind(k Kind) []Assignment {
	var out []Assignment
	for _, a := range c.Assignments {
		if a.Kind() == k {
			out = append(out, a)
		}
	}
	return out
}

// Partition groups the addresses by role kind.
func (c *Classification) Partition() map[Kind][]string {
	out := make(map[Kind][]string)
	for _, a := range c.Assignments {
		out[a.Kind()] = append(out[a.Kind()], a.Address)
	}
	return out
}

func (c *Classification) Addresses() []string {
	out := make([]string, len(c.Assignments))
	for i, a := range c.Assignments {
		out[i] = a.Address
	}
	return out
}

// Classify assigns exactly one role to every collected address, in
// precedence order target, common, read, pair, temp, left.
func (c *Classifier) Classify(ctx context.Context, in Input) (*Classification, error) {
	table := c.Table(in.Chain)
	col := Collect(in, table)
	roles := make(map[string]Role)
	order := append([]string{}, col.Addresses...)

	target := in.target()
	switch {
	case contains(order, target):
	case contains(order, Canonical(in.EntryPoint.Address)):
		target = Canonical(in.EntryPoint.Address)
	default:
		order = append(order, target)
	}
	roles[target] = Target{}

	pending := func() bool {
		for _, a := range order {
			if _, ok := roles[a]; !ok {
				return true
			}
		}
		return false
	}

	for _, a := range order {
		if _, ok := roles[a]; ok {
			continue
		}
		if idx := table.Index(a); idx >= 0 {
			roles[a] = Common{Index: idx}
		}
	}

	var readCalls []string
	if pending() && c.prober != nil {
		found, err := c.prober.ReadFunctions(ctx, target, in.TargetABI, in.Chain, in.Block)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("read probe on %s failed: %v", target, err)
		}
		for _, a := range order {
			if _, ok := roles[a]; ok {
				continue
			}
			if fn, ok := lookupFold(found, a); ok {
				roles[a] = Read{Function: fn}
				readCalls = append(readCalls, fn)
			}
		}
	}

	if pending() && c.prober != nil && table.Factory != "" {
		var err error
		order, err = c.discoverPairs(ctx, in, table, order, roles)
		if err != nil {
			return nil, err
		}
	}

	for _, a := range col.TempOrder {
		if _, ok := roles[a]; ok {
			continue
		}
		roles[a] = Temp{Contracts: col.Temps[a]}
		if !contains(order, a) {
			order = append(order, a)
		}
	}

	out := newClassification(target, table)
	out.ReadCalls = readCalls
	counters := make(map[Kind]int)
	for _, a := range order {
		role, ok := roles[a]
		if !ok {
			role = Left{}
		}
		out.add(a, role)
		k := role.Kind()
		out.Assignments[len(out.Assignments)-1].Var = VarName(k, counters[k])
		counters[k]++
	}
	return out, nil
}

// discoverPairs probes every unordered pair of known tokens. A pool that is
// an unclassified address becomes a pair; a table token taking part in it
// joins the set as common.
func (c *Classifier) discoverPairs(ctx context.Context, in Input, table Table, order []string, roles map[string]Role) ([]string, error) {
	var tokens []string
	for _, a := range order {
		switch r := roles[a].(type) {
		case Target, Read:
			tokens = appendUnique(tokens, a)
		case Common:
			if !r.Router() {
				tokens = appendUnique(tokens, a)
			}
		}
	}
	for _, tok := range table.MainTokens {
		tokens = appendUnique(tokens, Canonical(tok))
	}

	for i := 0; i < len(tokens); i++ {
		for j := i + 1; j < len(tokens); j++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			pool, err := c.prober.PairOf(ctx, table.Factory, tokens[i], tokens[j], in.Chain, in.Block)
			if err != nil {
				logger.Warn("getPair(%s, %s) failed: %v", tokens[i], tokens[j], err)
				continue
			}
			if pool == "" || common.HexToAddress(pool) == (common.Address{}) {
				continue
			}
			pool = Canonical(pool)
			if !contains(order, pool) {
				continue
			}
			if _, ok := roles[pool]; ok {
				continue
			}
			roles[pool] = Pair{Token0: tokens[i], Token1: tokens[j]}
			for _, tok := range []string{tokens[i], tokens[j]} {
				if _, ok := roles[tok]; ok {
					continue
				}
				if idx := table.Index(tok); idx >= 0 {
					roles[tok] = Common{Index: idx}
					order = append(order, tok)
				}
			}
		}
	}
	return order, nil
}

func lookupFold(m map[string]string, addr string) (string, bool) {
	if v, ok := m[addr]; ok {
		return v, true
	}
	for k, v := range m {
		if SameAddress(k, addr) {
			return v, true
		}
	}
	return "", false
}
