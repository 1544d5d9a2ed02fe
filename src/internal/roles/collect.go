package roles

import (
	"strings"

	"github.com/VectorBits/pocshift/src/internal/explorer"
	"github.com/VectorBits/pocshift/src/internal/trace"
	"github.com/ethereum/go-ethereum/common"
)

// Table is the per-chain well-known infrastructure.
type Table struct {
	Router     string   `yaml:"router" json:"router"`
	Factory    string   `yaml:"factory" json:"factory"`
	MainTokens []string `yaml:"main_tokens" json:"main_tokens"`
}

// Addresses lists the table in index order: router first, then main tokens.
func (t Table) Addresses() []string {
	var out []string
	if t.Router != "" {
		out = append(out, Canonical(t.Router))
	}
	for _, tok := range t.MainTokens {
		out = append(out, Canonical(tok))
	}
	return out
}

// Index returns the table position of addr or -1.
func (t Table) Index(addr string) int {
	if t.Router != "" && SameAddress(t.Router, addr) {
		return 0
	}
	for i, tok := range t.MainTokens {
		if SameAddress(tok, addr) {
			return i + 1
		}
	}
	return -1
}

// Canonical returns the EIP-55 form of a hex address.
func Canonical(addr string) string {
	if !common.IsHexAddress(addr) {
		return addr
	}
	return common.HexToAddress(addr).Hex()
}

func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Input is everything the classifier needs about one PoC.
type Input struct {
	// Attack is the simplified attack logic.
	Attack []*trace.Item
	// Precondition is the top level of the precondition phase.
	Precondition      []*trace.Item
	VulnerableAddress string
	EntryPoint        trace.EntryPoint
	VulnFunction      string
	// SourceAddresses are the address literals of the PoC source.
	SourceAddresses []string
	Chain           string
	Block           uint64
	TargetABI       []explorer.Entry
}

func (in Input) target() string {
	if in.VulnerableAddress != "" {
		return Canonical(in.VulnerableAddress)
	}
	return Canonical(in.EntryPoint.Address)
}

// Degree records how an address takes part in calls: In holds "fn[call]"
// for calls made on it, Out for calls that received it as an argument.
type Degree struct {
	In  []string `json:"in_degree"`
	Out []string `json:"out_degree"`
}

// Collection is the address set of a PoC before classification.
type Collection struct {
	Addresses []string
	Degrees   map[string]*Degree
	// Temps maps constructed addresses to their contract names.
	Temps     map[string][]string
	TempOrder []string
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// Collect gathers the addresses referenced by the attack logic and the
// precondition and filters them down to the ones worth a role.
func Collect(in Input, table Table) *Collection {
	c := &Collection{Degrees: make(map[string]*Degree), Temps: make(map[string][]string)}
	var seen []string
	degree := func(addr string) *Degree {
		d, ok := c.Degrees[addr]
		if !ok {
			d = &Degree{}
			c.Degrees[addr] = d
			seen = append(seen, addr)
		}
		return d
	}

	entries := append(append([]*trace.Item{}, in.Attack...), in.Precondition...)
	for _, it := range entries {
		switch {
		case it.Kind == trace.KindNew:
			addr := Canonical(it.Address)
			if _, ok := c.Temps[addr]; !ok {
				c.TempOrder = append(c.TempOrder, addr)
			}
			c.Temps[addr] = appendUnique(c.Temps[addr], it.ContractName)
		case it.IsCall() && it.Address != "":
			value := it.Function + "[call]"
			callee := degree(Canonical(it.Address))
			callee.In = appendUnique(callee.In, value)
			for _, p := range trace.AddressesIn(it.Params) {
				d := degree(Canonical(p))
				d.Out = appendUnique(d.Out, value)
			}
		}
	}

	target := in.target()
	entry := Canonical(in.EntryPoint.Address)
	wanted := []string{in.EntryPoint.Function + "[call]", in.VulnFunction + "[call]"}
	var filtered []string
	for _, addr := range seen {
		switch {
		case addr == target || addr == entry:
			filtered = append(filtered, addr)
		case c.Temps[addr] != nil || SameAddress(addr, trace.TestContract):
		case len(c.Degrees[addr].In) == 0:
			for _, w := range wanted {
				if contains(c.Degrees[addr].Out, w) {
					filtered = append(filtered, addr)
					break
				}
			}
		default:
			filtered = append(filtered, addr)
		}
	}

	source := make(map[string]bool, len(in.SourceAddresses))
	for _, a := range in.SourceAddresses {
		source[Canonical(a)] = true
	}
	var inSource []string
	for _, addr := range filtered {
		if source[addr] {
			inSource = append(inSource, addr)
		}
	}
	if len(inSource) > 0 {
		filtered = inSource
	}

	for _, addr := range table.Addresses() {
		if source[addr] && !contains(filtered, addr) {
			filtered = append(filtered, addr)
			degree(addr)
		}
	}
	c.Addresses = filtered
	return c
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
