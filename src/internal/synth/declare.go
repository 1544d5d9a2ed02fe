package synth

import (
	"fmt"

	"github.com/VectorBits/pocshift/src/internal/roles"
)

// InterfaceName is the generated interface type of a role variable.
func InterfaceName(v string) string { return "I" + v }

// Declarations returns the role variable declarations and their
// initializations, grouped target, common, read, temp, pair, left.
func Declarations(cls *roles.Classification) (decls, inits []string) {
	groups := make(map[roles.Kind][]string)
	for _, a := range cls.Assignments {
		var decl, init string
		switch r := a.Role.(type) {
		case roles.Target:
			decl = fmt.Sprintf("%s %s;", InterfaceName(a.Var), a.Var)
			init = fmt.Sprintf("%s = %s(%s);", a.Var, InterfaceName(a.Var), TargetPlaceholder)
		case roles.Common:
			if r.Router() {
				decl = fmt.Sprintf("Uni_Router_V2 %s;", a.Var)
				init = fmt.Sprintf("%s = Uni_Router_V2(_commonrouterS);", a.Var)
			} else {
				decl = fmt.Sprintf("IERC20 %s;", a.Var)
				init = fmt.Sprintf("%s = IERC20(_commonmainTokenS[%d]);", a.Var, r.Index-1)
			}
		case roles.Read:
			target, _ := cls.Lookup(cls.Target)
			decl = fmt.Sprintf("%s %s;", InterfaceName(a.Var), a.Var)
			init = fmt.Sprintf("%s = %s(%s.%s());", a.Var, InterfaceName(a.Var), target.Var, r.Function)
		case roles.Temp:
			decl = fmt.Sprintf("%s %s;", r.Contract(), a.Var)
			init = fmt.Sprintf("%s = new %s();", a.Var, r.Contract())
		case roles.Pair:
			t0, ok0 := cls.Expr(r.Token0)
			t1, ok1 := cls.Expr(r.Token1)
			if !ok0 {
				t0 = roles.Canonical(r.Token0)
			}
			if !ok1 {
				t1 = roles.Canonical(r.Token1)
			}
			decl = fmt.Sprintf("Uni_Pair_V2 %s;", a.Var)
			init = fmt.Sprintf("%s = Uni_Pair_V2(IUniswapV2Factory(_commonfactoryS).getPair(%s, %s));", a.Var, t0, t1)
		case roles.Left:
			decl = fmt.Sprintf("%s %s;", InterfaceName(a.Var), a.Var)
			init = fmt.Sprintf("%s = %s(%s);", a.Var, InterfaceName(a.Var), roles.Canonical(a.Address))
		}
		decls = append(decls, decl)
		groups[a.Kind()] = append(groups[a.Kind()], init)
	}
	for _, k := range []roles.Kind{roles.KindTarget, roles.KindCommon, roles.KindRead, roles.KindTemp, roles.KindPair, roles.KindLeft} {
		inits = append(inits, groups[k]...)
	}
	return decls, inits
}
