package synth

import (
	"fmt"
	"strings"

	"github.com/VectorBits/pocshift/src/internal/explorer"
	"github.com/ethereum/go-ethereum/accounts/abi"
)

// paramType renders an ABI argument as a Solidity parameter type. Struct
// arguments cannot be expressed without their declarations.
func paramType(a abi.ArgumentMarshaling) (string, bool) {
	t := a.InternalType
	if t == "" {
		t = a.Type
	}
	if strings.HasPrefix(t, "struct ") || strings.HasPrefix(a.Type, "tuple") {
		return "", false
	}
	suffix := ""
	if i := strings.Index(t, "["); i >= 0 {
		suffix = t[i:]
		t = t[:i]
	}
	switch {
	case strings.HasPrefix(t, "contract "), strings.HasPrefix(t, "interface "):
		t = "address"
	case strings.HasPrefix(t, "enum "):
		t = "uint8"
	}
	t += suffix
	if suffix != "" || t == "string" || t == "bytes" {
		t += " memory"
	}
	return t, true
}

func argList(args []abi.ArgumentMarshaling, named bool) (string, bool) {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		t, ok := paramType(a)
		if !ok {
			return "", false
		}
		if named && a.Name != "" {
			t += " " + a.Name
		}
		parts = append(parts, t)
	}
	return strings.Join(parts, ", "), true
}

// FunctionDecl renders e as an external interface function.
func FunctionDecl(e explorer.Entry) (string, bool) {
	if !e.IsFunction() {
		return "", false
	}
	inputs, ok := argList(e.Inputs, true)
	if !ok {
		return "", false
	}
	outputs, ok := argList(e.Outputs, false)
	if !ok {
		return "", false
	}
	mut := ""
	if e.StateMutability != "" && e.StateMutability != "nonpayable" {
		mut = " " + e.StateMutability
	}
	decl := fmt.Sprintf("function %s(%s) external%s", e.Name, inputs, mut)
	if outputs != "" {
		decl += " returns (" + outputs + ")"
	}
	return decl + ";", true
}

// BuildInterface keeps only the functions in calls, in ABI order.
func BuildInterface(name string, entries []explorer.Entry, calls []string) Interface {
	want := make(map[string]bool, len(calls))
	for _, c := range calls {
		want[c] = true
	}
	out := Interface{Name: name}
	seen := make(map[string]bool)
	for _, e := range entries {
		if !e.IsFunction() || !want[e.Name] {
			continue
		}
		decl, ok := FunctionDecl(e)
		if !ok || seen[decl] {
			continue
		}
		seen[decl] = true
		out.Functions = append(out.Functions, decl)
	}
	return out
}
