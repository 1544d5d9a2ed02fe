package synth

import (
	_ "embed"
	"strings"
	"text/template"

	"github.com/VectorBits/pocshift/src/internal/roles"
)

const (
	TargetPlaceholder     = "$TARGETADDRESS_PLACEHOLDER$"
	ChainBlockPlaceholder = "$CHAIN_BLOCK_PLACEHOLDER$"
	DefaultPragma         = "^0.8.10"
)

//go:embed skeleton.sol.tmpl
var skeletonText string

var skeleton = template.Must(template.New("poc").Parse(skeletonText))

// Interface is a generated Solidity interface.
type Interface struct {
	Name      string
	Functions []string
}

// CommonTable is the chain infrastructure as Solidity literals.
type CommonTable struct {
	Router     string
	Factory    string
	MainTokens []string
}

func commonTable(t roles.Table) CommonTable {
	lit := func(a string) string {
		if a == "" {
			return "address(0)"
		}
		return roles.Canonical(a)
	}
	ct := CommonTable{Router: lit(t.Router), Factory: lit(t.Factory)}
	for _, tok := range t.MainTokens {
		ct.MainTokens = append(ct.MainTokens, lit(tok))
	}
	return ct
}

// Program is the structured form of a migrated PoC. Render is its only
// serializer.
type Program struct {
	Pragma       string
	Interfaces   []Interface
	Contracts    []string
	Table        CommonTable
	Declarations []string
	Setup        []string
	Body         []string
	Helpers      []string
	ChainBlock   string
}

func Render(p *Program) (string, error) {
	data := *p
	if data.Pragma == "" {
		data.Pragma = DefaultPragma
	}
	if data.ChainBlock == "" {
		data.ChainBlock = ChainBlockPlaceholder
	}
	var b strings.Builder
	if err := skeleton.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
