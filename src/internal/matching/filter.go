package matching

import (
	"sort"
	"strings"

	"github.com/VectorBits/pocshift/src/internal/explorer"
	"github.com/VectorBits/pocshift/src/internal/roles"
	"github.com/VectorBits/pocshift/src/internal/synth"
)

// Rationale records, per role, the evidence that made a candidate pass.
type Rationale map[string][]string

const structuralKey = "structural"

// fallback and receive are reachable without an ABI entry
var implicitFunctions = map[string]bool{
	"receive":  true,
	"fallback": true,
}

// Required lists the function names a candidate must expose: every call
// made on the target plus every getter used to reach a read address.
func Required(sig synth.Signature) Rationale {
	req := Rationale{}
	add := func(role roles.Kind, names []string) {
		for _, n := range names {
			n = strings.TrimSpace(n)
			if n == "" || implicitFunctions[n] || strings.HasPrefix(n, "0x") {
				continue
			}
			if !containsString(req[string(role)], n) {
				req[string(role)] = append(req[string(role)], n)
			}
		}
	}
	for _, addr := range sortedKeys(sig[roles.KindTarget]) {
		add(roles.KindTarget, sig[roles.KindTarget][addr].FunctionCall)
	}
	for _, addr := range sortedKeys(sig[roles.KindRead]) {
		add(roles.KindRead, sig[roles.KindRead][addr].Relation)
	}
	return req
}

// FeatureFilter checks that iface exposes every required function. An
// empty interface never passes.
func FeatureFilter(sig synth.Signature, iface []explorer.Entry) (Rationale, bool) {
	if len(iface) == 0 {
		return nil, false
	}
	names := make(map[string]bool, len(iface))
	for _, e := range iface {
		if e.Name != "" {
			names[e.Name] = true
		}
	}
	req := Required(sig)
	for _, list := range req {
		for _, n := range list {
			if !names[n] {
				return nil, false
			}
		}
	}
	return req, true
}

func sortedKeys(m map[string]synth.SignatureEntry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func containsString(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
