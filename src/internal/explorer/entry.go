package explorer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Entry is one item of a contract ABI.
type Entry struct {
	Type            string                    `json:"type"`
	Name            string                    `json:"name,omitempty"`
	Inputs          []abi.ArgumentMarshaling `json:"inputs,omitempty"`
	Outputs         []abi.ArgumentMarshaling `json:"outputs,omitempty"`
	StateMutability string                    `json:"stateMutability,omitempty"`
	Anonymous       bool                      `json:"anonymous,omitempty"`
}

// ParseEntries validates raw with the go-ethereum ABI parser and returns its
// entries in declaration order. An empty document yields no entries.
func ParseEntries(raw []byte) ([]Entry, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}
	// 部分浏览器把 ABI 作为字符串再包一层
	if trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil, err
		}
		trimmed = []byte(inner)
	}
	if _, err := abi.JSON(bytes.NewReader(trimmed)); err != nil {
		return nil, fmt.Errorf("invalid abi: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].Type == "" {
			entries[i].Type = "function"
		}
	}
	return entries, nil
}

func (e Entry) IsFunction() bool { return e.Type == "function" }

// View reports a function that cannot modify state.
func (e Entry) View() bool {
	return e.IsFunction() && (e.StateMutability == "view" || e.StateMutability == "pure")
}

// HasStructs reports whether any argument is tuple typed.
func (e Entry) HasStructs() bool {
	for _, a := range append(append([]abi.ArgumentMarshaling{}, e.Inputs...), e.Outputs...) {
		if strings.HasPrefix(a.Type, "tuple") {
			return true
		}
	}
	return false
}

func arguments(in []abi.ArgumentMarshaling) (abi.Arguments, error) {
	args := make(abi.Arguments, 0, len(in))
	for _, a := range in {
		t, err := abi.NewType(a.Type, a.InternalType, a.Components)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", a.Name, err)
		}
		args = append(args, abi.Argument{Name: a.Name, Type: t, Indexed: a.Indexed})
	}
	return args, nil
}

// Method converts a function entry to a go-ethereum method.
func (e Entry) Method() (abi.Method, error) {
	if !e.IsFunction() {
		return abi.Method{}, fmt.Errorf("%s entry %q is not a function", e.Type, e.Name)
	}
	inputs, err := arguments(e.Inputs)
	if err != nil {
		return abi.Method{}, err
	}
	outputs, err := arguments(e.Outputs)
	if err != nil {
		return abi.Method{}, err
	}
	return abi.NewMethod(e.Name, e.Name, abi.Function, e.StateMutability,
		e.View(), e.StateMutability == "payable", inputs, outputs), nil
}

// FunctionNames returns the set of function names plus receive/fallback markers.
func FunctionNames(entries []Entry) map[string]bool {
	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		switch e.Type {
		case "function":
			names[e.Name] = true
		case "receive", "fallback":
			names[e.Type] = true
		}
	}
	return names
}

// Find returns the first function entry with name.
func Find(entries []Entry, name string) (Entry, bool) {
	for _, e := range entries {
		if e.IsFunction() && e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// AddressGetters returns zero-argument view functions with a single address output.
func AddressGetters(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.View() && len(e.Inputs) == 0 && len(e.Outputs) == 1 && e.Outputs[0].Type == "address" {
			out = append(out, e)
		}
	}
	return out
}
