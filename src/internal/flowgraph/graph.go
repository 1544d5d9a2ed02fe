package flowgraph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type NodeType string

const (
	VAR         NodeType = "VAR"
	ACT         NodeType = "ACT"
	CON         NodeType = "CON"
	LOOP        NodeType = "LOOP"
	ASS         NodeType = "ASS"
	ARRAY       NodeType = "ARRAY"
	ARRAY_INDEX NodeType = "ARRAY_INDEX"
	START       NodeType = "START"
	END         NodeType = "END"
)

// DefaultIterations is the refinement depth used for stored graph hashes.
const DefaultIterations = 3

type Node struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Type NodeType `json:"type"`
}

type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Order  int    `json:"order"`
	Label  string `json:"label,omitempty"`
}

// Graph is a directed flow graph. Nodes are memoized by name: the first type
// seen for a name wins and later references reuse that node.
type Graph struct {
	nodes    []*Node
	byID     map[string]*Node
	byName   map[string]*Node
	edges    []*Edge
	edgeSet  map[[2]string]bool
	out      map[string][]*Edge
	in       map[string][]*Edge
	counters map[NodeType]int
	order    int
}

func New() *Graph {
	return &Graph{
		byID:     make(map[string]*Node),
		byName:   make(map[string]*Node),
		edgeSet:  make(map[[2]string]bool),
		out:      make(map[string][]*Edge),
		in:       make(map[string][]*Edge),
		counters: make(map[NodeType]int),
	}
}

func (g *Graph) AddNode(name string, typ NodeType) *Node {
	if typ == START || typ == END {
		name = string(typ)
	}
	if n, ok := g.byName[name]; ok {
		return n
	}
	id := string(typ)
	if typ != START && typ != END {
		g.counters[typ]++
		id = fmt.Sprintf("%s%d", typ, g.counters[typ])
	}
	n := &Node{ID: id, Name: name, Type: typ}
	g.nodes = append(g.nodes, n)
	g.byID[id] = n
	g.byName[name] = n
	return n
}

// AddEdge links src to dst once; a repeated pair keeps its first order and label.
func (g *Graph) AddEdge(src, dst *Node, label string) {
	if src == nil || dst == nil || src == dst {
		return
	}
	key := [2]string{src.ID, dst.ID}
	if g.edgeSet[key] {
		return
	}
	g.edgeSet[key] = true
	e := &Edge{Source: src.ID, Target: dst.ID, Order: g.order, Label: label}
	g.edges = append(g.edges, e)
	g.out[src.ID] = append(g.out[src.ID], e)
	g.in[dst.ID] = append(g.in[dst.ID], e)
}

// Tick advances the edge order counter.
func (g *Graph) Tick() { g.order++ }

func (g *Graph) Nodes() []*Node { return g.nodes }

func (g *Graph) Edges() []*Edge { return g.edges }

func (g *Graph) Node(id string) *Node { return g.byID[id] }

func (g *Graph) Lookup(name string) *Node { return g.byName[name] }

func (g *Graph) Successors(id string) []string {
	var out []string
	for _, e := range g.out[id] {
		out = append(out, e.Target)
	}
	return out
}

func (g *Graph) Predecessors(id string) []string {
	var out []string
	for _, e := range g.in[id] {
		out = append(out, e.Source)
	}
	return out
}

func (g *Graph) HasEdge(src, dst string) bool {
	return g.edgeSet[[2]string{src, dst}]
}

func (g *Graph) Clone() *Graph {
	c := New()
	for _, n := range g.nodes {
		cp := *n
		c.nodes = append(c.nodes, &cp)
		c.byID[cp.ID] = &cp
		c.byName[cp.Name] = &cp
	}
	for _, e := range g.edges {
		cp := *e
		c.edges = append(c.edges, &cp)
		c.edgeSet[[2]string{cp.Source, cp.Target}] = true
		c.out[cp.Source] = append(c.out[cp.Source], &cp)
		c.in[cp.Target] = append(c.in[cp.Target], &cp)
	}
	for k, v := range g.counters {
		c.counters[k] = v
	}
	c.order = g.order
	return c
}

// closeDangling links every sink other than the sentinels to END.
func (g *Graph) closeDangling() {
	var sinks []*Node
	for _, n := range g.nodes {
		if n.Type == START || n.Type == END {
			continue
		}
		if len(g.out[n.ID]) == 0 {
			sinks = append(sinks, n)
		}
	}
	if len(sinks) == 0 && g.byID[string(END)] != nil {
		return
	}
	end := g.AddNode(string(END), END)
	for _, n := range sinks {
		g.AddEdge(n, end, "")
	}
	g.Tick()
}

// Splice expands the callee graph sub at node at. Callee nodes are namespaced
// with ns, the predecessors of at feed the callee entry nodes and the callee
// exit nodes return to at.
func (g *Graph) Splice(at *Node, sub *Graph, ns string) {
	if at == nil || sub == nil {
		return
	}
	mapping := make(map[string]*Node)
	for _, sn := range sub.nodes {
		if sn.Type == START || sn.Type == END {
			continue
		}
		mapping[sn.ID] = g.AddNode(ns+"::"+sn.Name, sn.Type)
	}
	for _, e := range sub.edges {
		src, okS := mapping[e.Source]
		dst, okD := mapping[e.Target]
		if okS && okD {
			g.AddEdge(src, dst, e.Label)
		}
	}

	callers := []*Node{at}
	if preds := g.Predecessors(at.ID); len(preds) > 0 {
		callers = callers[:0]
		for _, id := range preds {
			callers = append(callers, g.byID[id])
		}
	}
	for _, id := range sub.Successors(string(START)) {
		entry := mapping[id]
		for _, c := range callers {
			g.AddEdge(c, entry, "call")
		}
	}
	for _, id := range sub.Predecessors(string(END)) {
		g.AddEdge(mapping[id], at, "return")
	}
	g.Tick()
}

// Hash is a Weisfeiler-Lehman digest over node types. Names never reach the
// digest, edge labels and direction do.
func (g *Graph) Hash(iterations int) string {
	labels := make(map[string]string, len(g.nodes))
	hist := make(map[string]int)
	for _, n := range g.nodes {
		labels[n.ID] = string(n.Type)
		hist[labels[n.ID]]++
	}

	for it := 0; it < iterations; it++ {
		next := make(map[string]string, len(g.nodes))
		for _, n := range g.nodes {
			var nb []string
			for _, e := range g.out[n.ID] {
				nb = append(nb, ">"+e.Label+":"+labels[e.Target])
			}
			for _, e := range g.in[n.ID] {
				nb = append(nb, "<"+e.Label+":"+labels[e.Source])
			}
			sort.Strings(nb)
			next[n.ID] = digest(labels[n.ID] + "|" + strings.Join(nb, ","))
		}
		labels = next
		for _, l := range labels {
			hist[l]++
		}
	}

	keys := make([]string, 0, len(hist))
	for k := range hist {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%d;", k, hist[k])
	}
	return digest(b.String())
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}

type nodeLink struct {
	Directed bool    `json:"directed"`
	Nodes    []*Node `json:"nodes"`
	Links    []*Edge `json:"links"`
}

func (g *Graph) MarshalJSON() ([]byte, error) {
	nodes := g.nodes
	if nodes == nil {
		nodes = []*Node{}
	}
	edges := g.edges
	if edges == nil {
		edges = []*Edge{}
	}
	return json.Marshal(nodeLink{Directed: true, Nodes: nodes, Links: edges})
}

func (g *Graph) UnmarshalJSON(data []byte) error {
	var nl nodeLink
	if err := json.Unmarshal(data, &nl); err != nil {
		return err
	}
	*g = *New()
	for _, n := range nl.Nodes {
		g.nodes = append(g.nodes, n)
		g.byID[n.ID] = n
		g.byName[n.Name] = n
		g.counters[n.Type]++
	}
	for _, e := range nl.Links {
		if g.byID[e.Source] == nil || g.byID[e.Target] == nil {
			return fmt.Errorf("edge %s->%s references unknown node", e.Source, e.Target)
		}
		g.edges = append(g.edges, e)
		g.edgeSet[[2]string{e.Source, e.Target}] = true
		g.out[e.Source] = append(g.out[e.Source], e)
		g.in[e.Target] = append(g.in[e.Target], e)
		if e.Order >= g.order {
			g.order = e.Order + 1
		}
	}
	return nil
}
