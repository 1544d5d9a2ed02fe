package synth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/VectorBits/pocshift/src/internal/explorer"
	"github.com/VectorBits/pocshift/src/internal/roles"
	"github.com/VectorBits/pocshift/src/internal/trace"
)

// Input is one decomposed and classified PoC.
type Input struct {
	Decomposition  *trace.Decomposition
	Simplified     []*trace.Item
	Classification *roles.Classification
	// ABIs holds resolved interfaces keyed by address.
	ABIs   map[string][]explorer.Entry
	Pragma string
	// Helpers are the PoC's own helper functions, Contracts its auxiliary
	// contracts; both are carried into the template.
	Helpers   []string
	Contracts []string
	// Variables maps PoC variable names to the addresses they hold.
	Variables map[string]string
}

type Result struct {
	Template  string    `json:"migratable_template"`
	Signature Signature `json:"signature"`
	Program   *Program  `json:"-"`
}

// Synthesize builds the migratable template and its signature.
func Synthesize(in Input) (*Result, error) {
	if in.Classification == nil {
		return nil, errors.New("synthesize: missing classification")
	}
	if in.Decomposition == nil {
		return nil, errors.New("synthesize: missing decomposition")
	}
	cls := in.Classification
	sig := BuildSignature(cls, in.Simplified)

	decls, inits := Declarations(cls)
	checks := Postconditions(in.Decomposition.Postcondition, in.Simplified, cls)

	p := &Program{
		Pragma:       in.Pragma,
		Interfaces:   interfaces(cls, sig, in.ABIs),
		Contracts:    in.Contracts,
		Table:        commonTable(cls.Table),
		Declarations: decls,
		Setup:        append(inits, Preconditions(in.Decomposition.Precondition, in.Simplified, cls)...),
		Helpers:      RenameHelpers(in.Helpers, in.Variables, cls),
	}
	p.Body = append(p.Body, checks.Pre...)
	p.Body = append(p.Body, AttackLogic(in.Simplified, cls)...)
	p.Body = append(p.Body, checks.Post...)

	text, err := Render(p)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	return &Result{Template: text, Signature: sig, Program: p}, nil
}

// interfaces generates one interface per target, read and left address
// holding only the functions invoked on it.
func interfaces(cls *roles.Classification, sig Signature, abis map[string][]explorer.Entry) []Interface {
	var out []Interface
	for _, a := range cls.Assignments {
		switch a.Kind() {
		case roles.KindTarget, roles.KindRead, roles.KindLeft:
		default:
			continue
		}
		out = append(out, BuildInterface(InterfaceName(a.Var), abiFor(abis, a.Address), sig.Calls(a.Kind(), a.Address)))
	}
	return out
}

func abiFor(abis map[string][]explorer.Entry, address string) []explorer.Entry {
	if e, ok := abis[address]; ok {
		return e
	}
	for k, e := range abis {
		if roles.SameAddress(k, address) {
			return e
		}
	}
	return nil
}

// Instantiate fills the template placeholders for one candidate.
func Instantiate(template, address, chain string, block uint64) string {
	chainBlock := fmt.Sprintf("%q", chain)
	if block > 0 {
		chainBlock = fmt.Sprintf("%q, %d", chain, block)
	}
	out := strings.ReplaceAll(template, TargetPlaceholder, roles.Canonical(address))
	return strings.ReplaceAll(out, ChainBlockPlaceholder, chainBlock)
}
