package synth

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/VectorBits/pocshift/src/internal/roles"
	"github.com/VectorBits/pocshift/src/internal/trace"
)

// flatItem is a trace item together with the call that contains it.
type flatItem struct {
	*trace.Item
	parent *trace.Item
}

func flatten(items []*trace.Item) []flatItem {
	var out []flatItem
	var walk func(list []*trace.Item, parent *trace.Item)
	walk = func(list []*trace.Item, parent *trace.Item) {
		for _, it := range list {
			out = append(out, flatItem{Item: it, parent: parent})
			walk(it.Children, it)
		}
	}
	walk(items, nil)
	return out
}

// values returns the argument values of n with any "name: " prefix removed.
func values(n *trace.Node) []string {
	args := n.Args()
	for i, a := range args {
		_, args[i] = trace.NamedParam(a)
	}
	return args
}

func parseAmount(s string) (*big.Int, bool) {
	s = strings.TrimSpace(trace.StripAnnotation(strings.TrimSpace(s)))
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return new(big.Int).SetString(s[2:], 16)
	}
	return new(big.Int).SetString(s, 10)
}

func unlabel(s string) string {
	if addrs := trace.AddressesIn(s); len(addrs) == 1 {
		return addrs[0]
	}
	return strings.TrimSpace(s)
}

const (
	actionDeal    = "deal"
	actionApprove = "approve"
)

type opKey struct {
	action string
	token  string
	owner  string
	other  string
}

type setupOp struct {
	opKey
	amount *big.Int
}

// setupPlan accumulates setup operations. Deals with the same key are
// summed, approvals are kept once.
type setupPlan struct {
	order []opKey
	ops   map[opKey]*setupOp
}

func newSetupPlan() *setupPlan {
	return &setupPlan{ops: make(map[opKey]*setupOp)}
}

func (p *setupPlan) deal(token, to string, amount *big.Int) {
	k := opKey{action: actionDeal, token: lower(token), owner: lower(to)}
	if op, ok := p.ops[k]; ok {
		op.amount.Add(op.amount, amount)
		return
	}
	p.order = append(p.order, k)
	p.ops[k] = &setupOp{opKey: opKey{actionDeal, token, to, ""}, amount: new(big.Int).Set(amount)}
}

func (p *setupPlan) approve(token, owner, spender string) {
	k := opKey{action: actionApprove, token: lower(token), owner: lower(owner), other: lower(spender)}
	if _, ok := p.ops[k]; ok {
		return
	}
	p.order = append(p.order, k)
	p.ops[k] = &setupOp{opKey: opKey{actionApprove, token, owner, spender}}
}

func lower(s string) string { return strings.ToLower(s) }

// add maps one trace entry to setup operations. Precondition entries and
// attack entries map differently: transfers and deposits seed balances only
// before the attack, withdrawals and burns only during it.
func (p *setupPlan) add(f flatItem, precondition bool) {
	switch f.Kind {
	case trace.KindEvent:
		if f.parent == nil || !f.parent.IsCall() {
			return
		}
		token := f.parent.Address
		args := values(&f.Node)
		switch {
		case f.Event == "Transfer" && precondition && len(args) == 3:
			if amt, ok := parseAmount(args[2]); ok {
				p.deal(token, unlabel(args[1]), amt)
			}
		case f.Event == "Approval" && len(args) == 3:
			p.approve(token, unlabel(args[0]), unlabel(args[1]))
		case f.Event == "Deposit" && precondition && len(args) == 2:
			if amt, ok := parseAmount(args[1]); ok {
				p.deal(token, unlabel(args[0]), amt)
			}
		case (f.Event == "Withdrawal" || f.Event == "Burn") && !precondition && len(args) >= 2:
			if amt, ok := parseAmount(args[len(args)-1]); ok {
				p.deal(token, unlabel(args[0]), amt)
			}
		}
	case trace.KindVM:
		// startPrank, stopPrank, warp 不生成代码
		if f.Keyword != "deal" {
			return
		}
		args := values(&f.Node)
		if len(args) != 2 {
			return
		}
		if amt, ok := parseAmount(args[1]); ok {
			p.deal("", unlabel(args[0]), amt)
		}
	}
}

// render emits Solidity for the operations whose addresses all have roles.
// Balances are only seeded on the test contract.
func (p *setupPlan) render(cls *roles.Classification) []string {
	var out []string
	for _, k := range p.order {
		op := p.ops[k]
		switch op.action {
		case actionDeal:
			if !roles.SameAddress(op.owner, trace.TestContract) {
				continue
			}
			if op.token == "" {
				out = append(out, fmt.Sprintf("vm.deal(address(this), %s);", op.amount))
				continue
			}
			tok, ok := cls.Expr(op.token)
			if !ok {
				continue
			}
			out = append(out, fmt.Sprintf("deal(%s, address(this), %s);", tok, op.amount))
		case actionApprove:
			tok, ok1 := cls.Expr(op.token)
			owner, ok2 := cls.Expr(op.owner)
			spender, ok3 := cls.Expr(op.other)
			if !ok1 || !ok2 || !ok3 {
				continue
			}
			out = append(out,
				fmt.Sprintf("vm.prank(%s);", owner),
				fmt.Sprintf("IERC20(%s).approve(%s, type(uint256).max);", tok, spender))
		}
	}
	return out
}

// Preconditions translates the flattened precondition and attack logic
// into setup statements.
func Preconditions(pre, attack []*trace.Item, cls *roles.Classification) []string {
	plan := newSetupPlan()
	for _, f := range flatten(pre) {
		plan.add(f, true)
	}
	for _, f := range flatten(attack) {
		plan.add(f, false)
	}
	return plan.render(cls)
}

type oracleKind int

const (
	oracleBalance oracleKind = iota
	oracleNative
	oracleFlashLoan
)

type oracle struct {
	kind    oracleKind
	address string
	fn      string
	params  []string
}

func (o oracle) key() string {
	return fmt.Sprintf("%d|%s|%s|%s", o.kind, lower(o.address), o.fn, lower(strings.Join(o.params, ",")))
}

func oracleFor(it *trace.Item) (oracle, bool) {
	if !it.IsCall() {
		return oracle{}, false
	}
	fn := it.Function
	switch {
	case it.Kind == trace.KindStaticCall:
		if strings.Contains(strings.ToLower(fn), "decimal") {
			return oracle{}, false
		}
		return oracle{kind: oracleBalance, address: it.Address, fn: fn, params: values(&it.Node)}, true
	case fn == "receive":
		return oracle{kind: oracleNative, address: it.Address, fn: fn}, true
	case strings.Contains(strings.ToLower(fn), "receive"):
		return oracle{kind: oracleFlashLoan, address: it.Address, fn: fn, params: trace.AddressesIn(it.Params)}, true
	}
	return oracle{}, false
}

func selectOracles(post, attack []*trace.Item, cls *roles.Classification) []oracle {
	var found []oracle
	for _, f := range flatten(post) {
		if o, ok := oracleFor(f.Item); ok {
			found = append(found, o)
		}
	}
	if len(found) == 0 {
		flat := flatten(attack)
		for i := len(flat) - 1; i >= 0; i-- {
			if !flat[i].IsCall() {
				continue
			}
			o, ok := oracleFor(flat[i].Item)
			if ok {
				found = append(found, o)
			} else if len(found) > 0 {
				break
			}
		}
	}

	seen := make(map[string]bool)
	var out []oracle
	for _, o := range found {
		if seen[o.key()] {
			continue
		}
		seen[o.key()] = true
		if _, ok := cls.Expr(o.address); !ok {
			continue
		}
		known := true
		for _, p := range o.params {
			if addrs := trace.AddressesIn(p); len(addrs) > 0 {
				if _, ok := cls.Expr(addrs[0]); !ok {
					known = false
					break
				}
			}
		}
		if known {
			out = append(out, o)
		}
	}
	return out
}

// Checks holds the oracle statements placed around the attack.
type Checks struct {
	Pre  []string
	Post []string
}

func (c *Checks) add(n int, subject string) {
	c.Pre = append(c.Pre, fmt.Sprintf("uint preCheck%d = %s;", n, subject))
	c.Post = append(c.Post,
		fmt.Sprintf("uint postCheck%d = %s;", n, subject),
		fmt.Sprintf(`require(postCheck%d > preCheck%d, "Postcondition failed");`, n, n))
}

// Postconditions turns balance reads, native receipts and flash-loan
// callbacks observed after the attack into pre/post comparisons.
func Postconditions(post, attack []*trace.Item, cls *roles.Classification) Checks {
	var c Checks
	n := 0
	for _, o := range selectOracles(post, attack, cls) {
		holder, _ := cls.Expr(o.address)
		switch o.kind {
		case oracleBalance:
			if o.fn != "balanceOf" || len(o.params) == 0 {
				continue
			}
			who, ok := cls.Expr(unlabel(o.params[0]))
			if !ok {
				continue
			}
			c.add(n, fmt.Sprintf("IERC20(%s).balanceOf(%s)", holder, who))
			n++
		case oracleNative:
			c.add(n, holder+".balance")
			n++
		case oracleFlashLoan:
			for _, p := range o.params {
				tok, ok := cls.Expr(p)
				if !ok {
					continue
				}
				c.add(n, fmt.Sprintf("IERC20(%s).balanceOf(%s)", tok, holder))
				n++
			}
		}
	}
	return c
}
