package trace

import (
	"regexp"
	"strings"
)

type Kind string

const (
	KindCall         Kind = "call"
	KindStaticCall   Kind = "staticcall"
	KindDelegateCall Kind = "delegatecall"
	KindEvent        Kind = "event"
	KindVM           Kind = "vm"
	KindNew          Kind = "new_contract"
)

// TestContract is the address forge deploys the test contract at.
const TestContract = "0x7FA9385bE102ac3EAc297483Dd6233D62b3e1496"

// Node is one classified trace line.
type Node struct {
	Kind         Kind   `json:"kind"`
	Address      string `json:"address,omitempty"`
	Function     string `json:"function,omitempty"`
	Event        string `json:"event,omitempty"`
	Keyword      string `json:"keyword,omitempty"`
	ContractName string `json:"contract_name,omitempty"`
	Params       string `json:"params,omitempty"`
	Value        string `json:"value,omitempty"`
	Depth        int    `json:"depth"`
	Line         int    `json:"line"`
}

func (n *Node) IsCall() bool {
	return n.Kind == KindCall || n.Kind == KindStaticCall || n.Kind == KindDelegateCall
}

// Name is the key used when comparing call sequences.
func (n *Node) Name() string {
	switch n.Kind {
	case KindEvent:
		return n.Event
	case KindVM:
		return "vm." + n.Keyword
	case KindNew:
		return "new " + n.ContractName
	}
	return n.Function
}

// Args splits Params on top-level commas.
func (n *Node) Args() []string { return SplitParams(n.Params) }

var (
	addressRe    = regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`)
	annotationRe = regexp.MustCompile(`(?i)^(\d+)\s+\[\d+(?:\.\d+)?e[+-]?\d+\]$`)
)

// AddressesIn returns the address literals in s in order of appearance.
func AddressesIn(s string) []string {
	return addressRe.FindAllString(s, -1)
}

// SplitParams splits a parameter list on commas outside brackets and quotes.
func SplitParams(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var out []string
	depth := 0
	inQuote := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
		case c == ',' && depth == 0:
			out = append(out, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}

// NamedParam splits "name: value" into its parts; a bare value has no name.
func NamedParam(p string) (name, value string) {
	if i := strings.Index(p, ": "); i > 0 && !strings.ContainsAny(p[:i], "([\" ") {
		return p[:i], strings.TrimSpace(p[i+2:])
	}
	return "", p
}

// StripAnnotation drops forge's scientific-notation suffix, "100 [1e2]" -> "100".
func StripAnnotation(p string) string {
	if m := annotationRe.FindStringSubmatch(strings.TrimSpace(p)); m != nil {
		return m[1]
	}
	return p
}
