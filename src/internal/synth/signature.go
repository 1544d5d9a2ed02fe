package synth

import (
	"github.com/VectorBits/pocshift/src/internal/roles"
	"github.com/VectorBits/pocshift/src/internal/trace"
)

// SignatureEntry is the evidence kept for one address.
type SignatureEntry struct {
	Relation     []string `json:"relation"`
	FunctionCall []string `json:"function_call"`
}

// Signature maps role -> address -> evidence. Every role key is present.
type Signature map[roles.Kind]map[string]SignatureEntry

// BuildSignature records, per classified address, its role evidence and the
// functions the simplified attack logic invokes on it. The target also lists
// the getters used to initialize read addresses.
func BuildSignature(cls *roles.Classification, simplified []*trace.Item) Signature {
	sig := make(Signature, len(roles.Kinds))
	for _, k := range roles.Kinds {
		sig[k] = make(map[string]SignatureEntry)
	}
	for _, a := range cls.Assignments {
		calls := []string{}
		for _, it := range simplified {
			if it.IsCall() && roles.SameAddress(it.Address, a.Address) {
				calls = appendUnique(calls, it.Function)
			}
		}
		if a.Kind() == roles.KindTarget {
			for _, fn := range cls.ReadCalls {
				calls = appendUnique(calls, fn)
			}
		}
		sig[a.Kind()][a.Address] = SignatureEntry{Relation: a.Role.Relation(), FunctionCall: calls}
	}
	return sig
}

// Calls returns the function set recorded for address under kind.
func (s Signature) Calls(kind roles.Kind, address string) []string {
	for addr, e := range s[kind] {
		if roles.SameAddress(addr, address) {
			return e.FunctionCall
		}
	}
	return nil
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
