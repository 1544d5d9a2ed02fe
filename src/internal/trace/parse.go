package trace

import (
	"errors"
	"regexp"
	"sort"
	"strings"
)

var (
	ErrNotPassed = errors.New("trace has no passing test")
	ErrNoTrace   = errors.New("trace region not found")
)

var (
	testHeaderRe = regexp.MustCompile(`^\s*\[\s*\d+\s*\]\s*\w+::(\w+)\s*\(\s*\)\s*$`)
	bannerRe     = regexp.MustCompile(`(\w+):\s*\[(0x[a-fA-F0-9]{40})\]`)
	callRe       = regexp.MustCompile(`(0x[a-fA-F0-9]{40})::(\w+)(?:\{value:\s*(\d+)\})?\(`)
	vmRe         = regexp.MustCompile(`\bVM::(\w+)\(`)
	emitRe       = regexp.MustCompile(`\bemit (\w+)\(`)
	newRe        = regexp.MustCompile(`new\s*(\w+)@(0x[0-9a-fA-F]{40})`)
	kindRe       = regexp.MustCompile(`^\s*\[(staticcall|delegatecall|call)\]`)
)

// Extract returns the trace lines of the first test function. The region runs
// from the line after the "[gas] Contract::testX()" header to the last line
// that closes a frame.
func Extract(raw string) ([]string, error) {
	if !strings.Contains(raw, "[PASS]") {
		return nil, ErrNotPassed
	}
	lines := strings.Split(raw, "\n")
	start := -1
	for i, l := range lines {
		if m := testHeaderRe.FindStringSubmatch(l); m != nil && strings.HasPrefix(m[1], "test") {
			start = i + 1
			break
		}
	}
	end := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.Contains(lines[i], "└─") {
			end = i + 1
			break
		}
	}
	if start < 0 || end <= start {
		return nil, ErrNoTrace
	}
	return lines[start:end], nil
}

// Tree is an arena of trace nodes.
type Tree struct {
	Nodes    []Node
	Roots    []int
	children [][]int
	parent   []int
}

func (t *Tree) Children(i int) []int { return t.children[i] }

// Parent returns -1 for roots.
func (t *Tree) Parent(i int) int { return t.parent[i] }

// Level returns the child list at path; the empty path is the root list.
func (t *Tree) Level(path []int) []int {
	level := t.Roots
	for _, idx := range path {
		if idx < 0 || idx >= len(level) {
			return nil
		}
		level = t.children[level[idx]]
	}
	return level
}

// At returns the node index at path.
func (t *Tree) At(path []int) int {
	if len(path) == 0 {
		return -1
	}
	level := t.Level(path[:len(path)-1])
	last := path[len(path)-1]
	if last < 0 || last >= len(level) {
		return -1
	}
	return level[last]
}

func (t *Tree) add(n Node, parent int) int {
	idx := len(t.Nodes)
	t.Nodes = append(t.Nodes, n)
	t.children = append(t.children, nil)
	t.parent = append(t.parent, parent)
	if parent < 0 {
		t.Roots = append(t.Roots, idx)
	} else {
		t.children[parent] = append(t.children[parent], idx)
	}
	return idx
}

// ParseRaw extracts and parses a forge -vvvvv output.
func ParseRaw(raw string) (*Tree, error) {
	lines, err := Extract(raw)
	if err != nil {
		return nil, err
	}
	return Parse(lines), nil
}

// Parse rebuilds the call tree from trace lines. Each node's parent is the
// nearest preceding node with a smaller depth.
func Parse(lines []string) *Tree {
	aliases := newAliases(lines)
	t := &Tree{}
	var stack []int
	for i, raw := range lines {
		line := aliases.apply(raw)
		n, ok := classify(line)
		if !ok {
			continue
		}
		n.Depth = depthOf(line)
		n.Line = i
		for len(stack) > 0 && t.Nodes[stack[len(stack)-1]].Depth >= n.Depth {
			stack = stack[:len(stack)-1]
		}
		parent := -1
		if len(stack) > 0 {
			parent = stack[len(stack)-1]
		}
		stack = append(stack, t.add(n, parent))
		if n.Kind == KindNew {
			aliases.learn(n.ContractName, n.Address)
		}
	}
	return t
}

func depthOf(line string) int {
	return strings.Count(line, "│") + strings.Count(line, "├─") + strings.Count(line, "└─")
}

type aliases struct {
	names []string
	addr  map[string]string
	refs  map[string]*regexp.Regexp
}

// newAliases collects "Name: [0x...]" labels from every line.
func newAliases(lines []string) *aliases {
	a := &aliases{addr: make(map[string]string), refs: make(map[string]*regexp.Regexp)}
	for _, l := range lines {
		for _, m := range bannerRe.FindAllStringSubmatch(l, -1) {
			a.learn(m[1], m[2])
		}
	}
	return a
}

func (a *aliases) learn(name, address string) {
	if _, ok := a.addr[name]; ok {
		return
	}
	a.addr[name] = address
	a.refs[name] = regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `::`)
	a.names = append(a.names, name)
	// 长名字优先替换
	sort.SliceStable(a.names, func(i, j int) bool { return len(a.names[i]) > len(a.names[j]) })
}

func (a *aliases) apply(line string) string {
	line = bannerRe.ReplaceAllString(line, "$2")
	if strings.Contains(line, "→ new ") {
		return line
	}
	for _, name := range a.names {
		if !strings.Contains(line, name+"::") {
			continue
		}
		line = a.refs[name].ReplaceAllString(line, a.addr[name]+"::")
	}
	return line
}

// balanced returns the text between the '(' at open and its matching ')'
// and the index just past it.
func balanced(s string, open int) (string, int) {
	depth := 0
	inQuote := false
	for i := open; i < len(s); i++ {
		switch c := s[i]; {
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return s[open+1 : i], i + 1
			}
		}
	}
	return s[open+1:], len(s)
}

func classify(line string) (Node, bool) {
	if strings.Contains(line, "console::log") {
		return Node{}, false
	}
	if loc := vmRe.FindStringSubmatchIndex(line); loc != nil {
		params, _ := balanced(line, loc[1]-1)
		return Node{Kind: KindVM, Keyword: line[loc[2]:loc[3]], Params: params}, true
	}
	if loc := callRe.FindStringSubmatchIndex(line); loc != nil {
		n := Node{
			Kind:     KindCall,
			Address:  line[loc[2]:loc[3]],
			Function: line[loc[4]:loc[5]],
		}
		if loc[6] >= 0 {
			n.Value = line[loc[6]:loc[7]]
		}
		var rest int
		n.Params, rest = balanced(line, loc[1]-1)
		if m := kindRe.FindStringSubmatch(line[rest:]); m != nil {
			n.Kind = Kind(m[1])
		}
		return n, true
	}
	if loc := emitRe.FindStringSubmatchIndex(line); loc != nil {
		params, _ := balanced(line, loc[1]-1)
		return Node{Kind: KindEvent, Event: line[loc[2]:loc[3]], Params: params}, true
	}
	if m := newRe.FindStringSubmatch(line); m != nil {
		return Node{Kind: KindNew, ContractName: m[1], Address: m[2]}, true
	}
	return Node{}, false
}
