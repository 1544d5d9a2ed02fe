package trace

var skippedCalls = map[string]bool{"balanceOf": true, "decimals": true}

// Simplify flattens the top level of the attack logic and collapses call
// patterns repeated three or more times in a row to their first and last
// occurrence. Read-only balance queries and VM directives are dropped; runs
// made only of approvals stay intact. The result is a fixpoint, so applying
// Simplify again changes nothing.
func Simplify(items []*Item) []*Item {
	var seq []*Item
	for _, it := range items {
		switch {
		case it.Kind == KindVM:
		case it.IsCall() && skippedCalls[it.Function]:
		default:
			seq = append(seq, it)
		}
	}
	for {
		next, changed := collapse(seq)
		if !changed {
			return seq
		}
		seq = next
	}
}

func collapse(seq []*Item) ([]*Item, bool) {
	out := make([]*Item, 0, len(seq))
	changed := false
	for i := 0; i < len(seq); {
		p, count := repeatAt(seq, i)
		if count < 3 {
			out = append(out, seq[i])
			i++
			continue
		}
		out = append(out, seq[i:i+p]...)
		out = append(out, seq[i+(count-1)*p:i+count*p]...)
		i += count * p
		changed = true
	}
	return out, changed
}

// repeatAt finds the shortest period starting at i that repeats at least
// three times back to back.
func repeatAt(seq []*Item, i int) (period, count int) {
	for p := 1; i+3*p <= len(seq); p++ {
		if onlyApprovals(seq[i : i+p]) {
			continue
		}
		n := 1
		for i+(n+1)*p <= len(seq) && samePattern(seq[i:i+p], seq[i+n*p:i+(n+1)*p]) {
			n++
		}
		if n >= 3 {
			return p, n
		}
	}
	return 0, 0
}

func samePattern(a, b []*Item) bool {
	for k := range a {
		if a[k].Name() != b[k].Name() {
			return false
		}
	}
	return true
}

func onlyApprovals(pattern []*Item) bool {
	for _, it := range pattern {
		if it.Name() != "approve" {
			return false
		}
	}
	return true
}

// Names returns the comparison key of each item.
func Names(items []*Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Name()
	}
	return out
}
