package synth

import (
	"regexp"
	"sort"

	"github.com/VectorBits/pocshift/src/internal/roles"
	"github.com/VectorBits/pocshift/src/internal/trace"
)

// RenameHelpers rewrites PoC helper functions against role variables.
// variables maps a PoC variable name to the address it holds; address
// literals with a role become address expressions.
func RenameHelpers(helpers []string, variables map[string]string, cls *roles.Classification) []string {
	names := make([]string, 0, len(variables))
	for name := range variables {
		names = append(names, name)
	}
	// 长名字先替换，避免前缀冲突
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})

	out := make([]string, 0, len(helpers))
	for _, h := range helpers {
		for _, name := range names {
			v, ok := cls.Var(variables[name])
			if !ok || v == "this" {
				continue
			}
			re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
			h = re.ReplaceAllString(h, v)
		}
		for _, lit := range trace.AddressesIn(h) {
			if expr, ok := cls.Expr(lit); ok {
				h = regexp.MustCompile(`\b`+lit+`\b`).ReplaceAllString(h, expr)
			}
		}
		out = append(out, h)
	}
	return out
}
