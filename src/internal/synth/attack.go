package synth

import (
	"fmt"
	"strings"

	"github.com/VectorBits/pocshift/src/internal/roles"
	"github.com/VectorBits/pocshift/src/internal/trace"
)

type attackWriter struct {
	cls    *roles.Classification
	paths  int
	arrays int
}

// AttackLogic rewrites the simplified attack calls against role variables.
// A call whose receiver or any address argument has no role is dropped.
func AttackLogic(simplified []*trace.Item, cls *roles.Classification) []string {
	w := &attackWriter{cls: cls}
	var out []string
	for _, it := range simplified {
		out = append(out, w.call(it)...)
	}
	return out
}

func (w *attackWriter) call(it *trace.Item) []string {
	if !it.IsCall() || it.Address == "" {
		return nil
	}
	recv, ok := w.cls.Lookup(it.Address)
	if !ok {
		return nil
	}
	paths, arrays := w.paths, w.arrays
	var hoisted, args []string
	for _, raw := range it.Args() {
		expr, decl, ok := w.param(raw)
		if !ok {
			w.paths, w.arrays = paths, arrays
			return nil
		}
		hoisted = append(hoisted, decl...)
		args = append(args, expr)
	}
	value := ""
	if it.Value != "" {
		value = fmt.Sprintf("{value: %s}", it.Value)
	}
	stmt := fmt.Sprintf("%s.%s%s(%s);", recv.Var, it.Function, value, strings.Join(args, ", "))
	return append(hoisted, stmt)
}

func (w *attackWriter) param(raw string) (string, []string, bool) {
	_, v := trace.NamedParam(strings.TrimSpace(raw))
	v = trace.StripAnnotation(v)
	if strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]") {
		return w.array(v[1 : len(v)-1])
	}
	expr, ok := w.scalar(v)
	return expr, nil, ok
}

func (w *attackWriter) scalar(v string) (string, bool) {
	addrs := trace.AddressesIn(v)
	for _, a := range addrs {
		expr, ok := w.cls.Expr(a)
		if !ok {
			return "", false
		}
		v = strings.Replace(v, a, expr, 1)
	}
	return v, true
}

// array hoists an inline array argument into a named local. The element
// type follows the literals; address arrays become PATHn.
func (w *attackWriter) array(body string) (string, []string, bool) {
	elems := trace.SplitParams(body)
	typ := ""
	conv := make([]string, len(elems))
	for i, e := range elems {
		e = strings.TrimSpace(trace.StripAnnotation(e))
		typ = mergeElemType(typ, elemType(e))
		expr, ok := w.scalar(e)
		if !ok {
			return "", nil, false
		}
		conv[i] = expr
	}
	if typ == "" {
		typ = "uint256"
	}
	var name string
	if typ == "address" {
		name = fmt.Sprintf("PATH%d", w.paths)
		w.paths++
	} else {
		name = fmt.Sprintf("ARRAY%d", w.arrays)
		w.arrays++
	}
	decl := []string{fmt.Sprintf("%s[] memory %s = new %s[](%d);", typ, name, typ, len(conv))}
	for i, e := range conv {
		if typ == "bytes" {
			e = `hex"` + strings.TrimPrefix(e, "0x") + `"`
		}
		decl = append(decl, fmt.Sprintf("%s[%d] = %s;", name, i, e))
	}
	return name, decl, true
}

// elemType 由 trace 中的字面量推断 Solidity 元素类型
func elemType(e string) string {
	switch {
	case e == "true" || e == "false":
		return "bool"
	case strings.HasPrefix(e, `"`):
		return "string"
	case len(trace.AddressesIn(e)) == 1 && trace.AddressesIn(e)[0] == e:
		return "address"
	case strings.HasPrefix(e, "0x") && len(e) == 66:
		return "bytes32"
	case strings.HasPrefix(e, "0x"):
		return "bytes"
	case strings.HasPrefix(e, "-"):
		return "int256"
	}
	return "uint256"
}

func mergeElemType(a, b string) string {
	switch {
	case a == "" || a == b:
		return b
	case (a == "uint256" && b == "int256") || (a == "int256" && b == "uint256"):
		return "int256"
	}
	return a
}
