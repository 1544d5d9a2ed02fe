package flowgraph

import (
	"encoding/json"
	"testing"

	"github.com/VectorBits/pocshift/src/internal/solidity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func functionGraph(t *testing.T, src string) *Graph {
	t.Helper()
	f, err := solidity.ParseSource(src)
	require.NoError(t, err)
	require.NotEmpty(t, f.Functions)
	return BuildFunction(f, f.Functions[0])
}

func TestAddNodeMemoizesByName(t *testing.T) {
	g := New()
	a := g.AddNode("amount", VAR)
	b := g.AddNode("amount", ACT)
	c := g.AddNode("total", VAR)

	assert.Same(t, a, b)
	assert.Equal(t, VAR, b.Type)
	assert.Equal(t, "VAR1", a.ID)
	assert.Equal(t, "VAR2", c.ID)
	assert.Equal(t, "START", g.AddNode("ignored", START).ID)
}

func TestAddEdgeKeepsFirstOrder(t *testing.T) {
	g := New()
	a := g.AddNode("a", VAR)
	b := g.AddNode("b", VAR)
	g.AddEdge(a, b, "true")
	g.Tick()
	g.AddEdge(a, b, "false")
	g.AddEdge(a, a, "")

	require.Len(t, g.Edges(), 1)
	assert.Equal(t, 0, g.Edges()[0].Order)
	assert.Equal(t, "true", g.Edges()[0].Label)
}

// 变量重命名不改变图哈希
func TestHashInvariantUnderRenaming(t *testing.T) {
	a := functionGraph(t, `function f(uint amount) {
		uint fee = amount / 100;
		if (fee > limit) { total += fee; } else { revert(); }
	}`)
	b := functionGraph(t, `function g(uint value) {
		uint cut = value / 100;
		if (cut > cap) { sum += cut; } else { revert(); }
	}`)
	assert.Equal(t, a.Hash(DefaultIterations), b.Hash(DefaultIterations))
}

func TestHashInvariantUnderIndependentReordering(t *testing.T) {
	a := functionGraph(t, `function f(uint p) { x = p; y = p; }`)
	b := functionGraph(t, `function f(uint p) { y = p; x = p; }`)
	assert.Equal(t, a.Hash(DefaultIterations), b.Hash(DefaultIterations))
}

func TestHashSensitiveToBranchTopology(t *testing.T) {
	a := functionGraph(t, `function f() { if (c) { x = 1; } y = 2; }`)
	b := functionGraph(t, `function f() { if (c) { x = 1; y = 2; } }`)
	assert.NotEqual(t, a.Hash(DefaultIterations), b.Hash(DefaultIterations))
}

func TestBranchEdgesAreLabelled(t *testing.T) {
	g := functionGraph(t, `function f(uint a) { if (a > 1) { x = 1; } else { x = 2; } }`)
	con := g.Lookup("if:a>1")
	require.NotNil(t, con)
	assert.Equal(t, CON, con.Type)

	labels := map[string]bool{}
	for _, e := range g.Edges() {
		if e.Source == con.ID {
			labels[e.Label] = true
		}
	}
	assert.True(t, labels["true"])
	assert.True(t, labels["false"])
}

func TestLoopHasBackEdge(t *testing.T) {
	g := functionGraph(t, `function f(uint n) { for (uint i = 0; i < n; i++) { s += i; } }`)

	var loop *Node
	for _, n := range g.Nodes() {
		if n.Type == LOOP {
			loop = n
		}
	}
	require.NotNil(t, loop)

	back := false
	for _, e := range g.Edges() {
		if e.Target == loop.ID && e.Label == "loop" {
			back = true
		}
	}
	assert.True(t, back)
}

func TestDanglingSinksReachEnd(t *testing.T) {
	g := functionGraph(t, `function f(uint a) { b = a; }`)
	end := g.Node("END")
	require.NotNil(t, end)
	assert.True(t, g.HasEdge(g.Lookup("b").ID, end.ID))
}

func TestIndexAccessNodes(t *testing.T) {
	g := functionGraph(t, `function f(address u) { balances[u] = 0; }`)
	arr := g.Lookup("balances")
	ai := g.Lookup("balances[u]")
	require.NotNil(t, arr)
	require.NotNil(t, ai)
	assert.Equal(t, ARRAY, arr.Type)
	assert.Equal(t, ARRAY_INDEX, ai.Type)
	assert.True(t, g.HasEdge(arr.ID, ai.ID))
	assert.True(t, g.HasEdge(g.Lookup("u").ID, ai.ID))
}

func TestBuildContractInlinesInternalCalls(t *testing.T) {
	f, err := solidity.ParseSource(`contract C {
		uint total;
		function f(uint a) public { _g(a); }
		function _g(uint b) internal { total += b; }
	}`)
	require.NoError(t, err)

	graphs := BuildContract(f, f.Contracts[0])
	require.Len(t, graphs, 2)

	outer := graphs[0]
	assert.NotNil(t, outer.Lookup("_g::total"))
	hasCall := false
	for _, e := range outer.Edges() {
		if e.Label == "call" {
			hasCall = true
		}
	}
	assert.True(t, hasCall)

	plain := BuildFunction(f, f.Contracts[0].Functions[0])
	assert.NotEqual(t, plain.Hash(DefaultIterations), outer.Hash(DefaultIterations))
	assert.Nil(t, graphs[1].Lookup("_g::total"))
}

func TestJSONPreservesHash(t *testing.T) {
	g := functionGraph(t, `function f(uint a) { if (a > 0) { x = a; } }`)
	data, err := json.Marshal(g)
	require.NoError(t, err)

	var back Graph
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, g.Hash(DefaultIterations), back.Hash(DefaultIterations))
	assert.Len(t, back.Nodes(), len(g.Nodes()))
}
