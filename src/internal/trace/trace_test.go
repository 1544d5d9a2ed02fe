package trace

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	wbnb   = "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"
	usdt   = "0x55d398326f99059fF775485246999027B3197955"
	pool   = "0x1111111111111111111111111111111111111111"
	helper = "0x5615dEB798BB3E4dFa0139dFa1b3D433Cc23b72f"
)

const exploitOutput = `Compiling 1 files with Solc 0.8.20
Ran 1 test for test/Exploit.t.sol:ContractTest
[PASS] testExploit() (gas: 254113)
Traces:
  [254113] ContractTest::testExploit()
    ├─ [2534] WBNB::balanceOf(ContractTest: [0x7FA9385bE102ac3EAc297483Dd6233D62b3e1496]) [staticcall]
    │   └─ ← [Return] 0
    ├─ [0] VM::deal(ContractTest: [0x7FA9385bE102ac3EAc297483Dd6233D62b3e1496], 1000000000000000000 [1e18])
    │   └─ ← [Return]
    ├─ [23974] WBNB::deposit{value: 1000}()
    │   ├─ emit Deposit(dst: ContractTest: [0x7FA9385bE102ac3EAc297483Dd6233D62b3e1496], wad: 1000)
    │   └─ ← [Stop]
    ├─ [120000] → new Helper@0x5615dEB798BB3E4dFa0139dFa1b3D433Cc23b72f
    │   └─ ← [Return] 600 bytes of code
    ├─ [90000] Helper::run()
    │   ├─ emit Started()
    │   ├─ [24420] WBNB::approve(Pool: [0x1111111111111111111111111111111111111111], 1000)
    │   │   ├─ emit Approval(owner: Helper: [0x5615dEB798BB3E4dFa0139dFa1b3D433Cc23b72f], spender: Pool: [0x1111111111111111111111111111111111111111], value: 1000)
    │   │   └─ ← [Return] true
    │   ├─ [50000] Pool::swap(WBNB: [0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c], USDT: [0x55d398326f99059fF775485246999027B3197955], 1000, [0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c, 0x55d398326f99059fF775485246999027B3197955])
    │   │   ├─ [3000] WBNB::transferFrom(Helper: [0x5615dEB798BB3E4dFa0139dFa1b3D433Cc23b72f], Pool: [0x1111111111111111111111111111111111111111], 1000)
    │   │   │   └─ ← [Return] true
    │   │   ├─ emit Swap(amountIn: 1000, amountOut: 500)
    │   │   └─ ← [Stop]
    │   ├─ [3000] USDT::transfer(ContractTest: [0x7FA9385bE102ac3EAc297483Dd6233D62b3e1496], 500)
    │   │   ├─ console::log("sent") [staticcall]
    │   │   └─ ← [Return] true
    │   └─ ← [Stop]
    ├─ [2534] USDT::balanceOf(ContractTest: [0x7FA9385bE102ac3EAc297483Dd6233D62b3e1496]) [staticcall]
    │   └─ ← [Return] 500
    └─ ← [Stop]

Suite result: ok. 1 passed; 0 failed; 0 skipped; finished in 1.20s
`

func parseFixture(t *testing.T) *Tree {
	t.Helper()
	tree, err := ParseRaw(exploitOutput)
	require.NoError(t, err)
	return tree
}


func calls(names ...string) []*Item {
	out := make([]*Item, len(names))
	for i, n := range names {
		out[i] = &Item{Node: Node{Kind: KindCall, Function: n}}
	}
	return out
}

func TestExtract(t *testing.T) {
	lines, err := Extract(exploitOutput)
	require.NoError(t, err)
	assert.Contains(t, lines[0], "WBNB::balanceOf")
	assert.Equal(t, "    └─ ← [Stop]", lines[len(lines)-1])

	_, err = Extract(strings.Replace(exploitOutput, "[PASS]", "[FAIL. Reason: revert]", 1))
	assert.ErrorIs(t, err, ErrNotPassed)

	_, err = Extract("[PASS] testExploit() (gas: 1)\nno traces here")
	assert.ErrorIs(t, err, ErrNoTrace)
}

func TestParseClassifiesLines(t *testing.T) {
	tree := parseFixture(t)
	require.Len(t, tree.Nodes, 14)

	first := tree.Nodes[0]
	assert.Equal(t, KindStaticCall, first.Kind)
	assert.Equal(t, wbnb, first.Address)
	assert.Equal(t, "balanceOf", first.Function)
	assert.Equal(t, TestContract, first.Params)

	vm := tree.Nodes[1]
	assert.Equal(t, KindVM, vm.Kind)
	assert.Equal(t, "deal", vm.Keyword)
	assert.Equal(t, []string{TestContract, "1000000000000000000 [1e18]"}, vm.Args())

	deposit := tree.Nodes[2]
	assert.Equal(t, KindCall, deposit.Kind)
	assert.Equal(t, "1000", deposit.Value)
	assert.Equal(t, "", deposit.Params)

	created := tree.Nodes[4]
	assert.Equal(t, KindNew, created.Kind)
	assert.Equal(t, "Helper", created.ContractName)
	assert.Equal(t, helper, created.Address)

	run := tree.Nodes[5]
	assert.Equal(t, helper, run.Address)
	assert.Equal(t, "run", run.Function)

	swap := tree.Nodes[9]
	assert.Equal(t, pool, swap.Address)
	args := swap.Args()
	require.Len(t, args, 4)
	assert.Equal(t, "["+wbnb+", "+usdt+"]", args[3])

	ev := tree.Nodes[11]
	assert.Equal(t, KindEvent, ev.Kind)
	assert.Equal(t, "Swap", ev.Event)
}

func TestParseRebuildsNesting(t *testing.T) {
	tree := parseFixture(t)

	assert.Equal(t, []int{0, 1, 2, 4, 5, 13}, tree.Roots)
	assert.Equal(t, []int{6, 7, 9, 12}, tree.Children(5))
	assert.Equal(t, 9, tree.Parent(10))
	assert.Equal(t, 7, tree.Parent(8))
	assert.Equal(t, -1, tree.Parent(13))
	// console::log 行被忽略
	assert.Empty(t, tree.Children(12))
	assert.Equal(t, 9, tree.At([]int{4, 2}))
}

func TestNewContractAliasAppliesAfterCreation(t *testing.T) {
	tree := Parse([]string{
		"    ├─ [100] → new Probe@0x2e234DAe75C793f67A35089C9d99245E1C58470b",
		"    │   └─ ← [Return] 100 bytes of code",
		"    ├─ [10] Probe::ping()",
		"    │   └─ ← [Stop]",
	})
	require.Len(t, tree.Nodes, 2)
	assert.Equal(t, "0x2e234DAe75C793f67A35089C9d99245E1C58470b", tree.Nodes[1].Address)
	assert.Equal(t, "ping", tree.Nodes[1].Function)
}

func TestDecomposeUniqueEntry(t *testing.T) {
	tree := parseFixture(t)
	d, err := Decompose(tree, EntryPoint{Address: strings.ToLower(pool), Function: "swap"})
	require.NoError(t, err)

	assert.Equal(t, []int{4}, d.SplitPoint)
	// 跳过开头的 emit
	assert.Equal(t, []string{"approve", "swap", "transfer"}, Names(d.AttackLogic))
	require.Len(t, d.AttackLogic[1].Children, 2)

	assert.Equal(t, []string{"balanceOf", "vm.deal", "deposit", "new Helper", "run"}, Names(d.Precondition))
	assert.Len(t, d.Precondition[2].Children, 1)
	assert.Empty(t, d.Precondition[4].Children)

	assert.Equal(t, []string{"run", "balanceOf"}, Names(d.Postcondition))
	assert.Empty(t, d.Postcondition[0].Children)

	assert.Equal(t,
		[]string{"balanceOf", "vm.deal", "deposit", "Deposit", "new Helper", "run"},
		Names(Flatten(d.Precondition)))
}

func nested() []string {
	return []string{
		"    ├─ [1] 0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB::g()",
		"    │   ├─ [1] 0xaAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa::f()",
		"    │   ├─ [1] 0xcCCccccCCCCcCCcCCCcCcCCcCcCcCcCCCCcccCcC::h()",
		"    │   │   ├─ [1] 0xaAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa::f()",
		"    │   │   └─ ← [Stop]",
		"    │   └─ ← [Stop]",
		"    ├─ [1] 0xcCCccccCCCCcCCcCCCcCcCCcCcCcCcCCCCcccCcC::k()",
		"    └─ ← [Stop]",
	}
}

func TestDecomposeCommonPrefix(t *testing.T) {
	tree := Parse(nested())
	entry := EntryPoint{Address: "0xaAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa", Function: "f"}
	assert.Equal(t, [][]int{{0, 0}, {0, 1, 0}}, tree.Find(entry))

	d, err := Decompose(tree, entry)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, d.SplitPoint)
	assert.Equal(t, []string{"f", "h"}, Names(d.AttackLogic))
	assert.Equal(t, []string{"f"}, Names(d.AttackLogic[1].Children))
	assert.Equal(t, []string{"g"}, Names(d.Precondition))
	assert.Equal(t, []string{"g", "k"}, Names(d.Postcondition))
}

func TestDecomposeRootEntry(t *testing.T) {
	tree := Parse(nested())
	d, err := Decompose(tree, EntryPoint{Address: "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB", Function: "g"})
	require.NoError(t, err)
	assert.Empty(t, d.SplitPoint)
	assert.Equal(t, []string{"g", "k"}, Names(d.AttackLogic))
	assert.Empty(t, d.Precondition)
	assert.Empty(t, d.Postcondition)
}

func TestDecomposeFailures(t *testing.T) {
	tree := Parse(nested())

	_, err := Decompose(tree, EntryPoint{Address: pool, Function: "f"})
	assert.ErrorIs(t, err, ErrEntryPointNotFound)

	// h 出现在不同的顶层分支
	_, err = Decompose(tree, EntryPoint{Address: "0xcCCccccCCCCcCCcCCCcCcCCcCcCcCcCCCCcccCcC", Function: "h"})
	require.NoError(t, err)

	lines := append(nested(), "    ├─ [1] 0xaAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa::f()")
	_, err = Decompose(Parse(lines), EntryPoint{Address: "0xaAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa", Function: "f"})
	assert.ErrorIs(t, err, ErrAmbiguousEntryPoint)
}

func TestSimplify(t *testing.T) {
	cases := []struct {
		name string
		in   []string
		want []string
	}{
		{"five transfers", []string{"transfer", "transfer", "transfer", "transfer", "transfer"}, []string{"transfer", "transfer"}},
		{"two repeats kept", []string{"swap", "swap", "sync"}, []string{"swap", "swap", "sync"}},
		{"period two", []string{"a", "b", "a", "b", "a", "b", "c"}, []string{"a", "b", "a", "b", "c"}},
		{"approvals stay", []string{"approve", "approve", "approve", "approve"}, []string{"approve", "approve", "approve", "approve"}},
		{"reads dropped", []string{"balanceOf", "swap", "decimals", "skim"}, []string{"swap", "skim"}},
		{"nested runs", []string{"x", "x", "x", "y", "x", "x", "x", "y", "x", "x", "x", "y"}, []string{"x", "x", "y", "x", "x", "y"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			once := Simplify(calls(tc.in...))
			assert.Equal(t, tc.want, Names(once))
			assert.Equal(t, Names(once), Names(Simplify(once)))
		})
	}
}

func TestSimplifyDropsVMAndKeepsEvents(t *testing.T) {
	items := calls("swap")
	items = append(items,
		&Item{Node: Node{Kind: KindVM, Keyword: "startPrank"}},
		&Item{Node: Node{Kind: KindEvent, Event: "Transfer"}},
		&Item{Node: Node{Kind: KindNew, ContractName: "Helper"}},
	)
	assert.Equal(t, []string{"swap", "Transfer", "new Helper"}, Names(Simplify(items)))
}

func TestParamHelpers(t *testing.T) {
	assert.Equal(t, []string{"a", `"x, y"`, "[1, 2]", "f(3, 4)"}, SplitParams(`a, "x, y", [1, 2], f(3, 4)`))
	assert.Nil(t, SplitParams("  "))

	name, value := NamedParam("to: 0x1111111111111111111111111111111111111111")
	assert.Equal(t, "to", name)
	assert.Equal(t, pool, value)
	name, value = NamedParam("1000")
	assert.Equal(t, "", name)
	assert.Equal(t, "1000", value)

	assert.Equal(t, "1000000000000000000", StripAnnotation("1000000000000000000 [1e18]"))
	assert.Equal(t, "12345", StripAnnotation("12345 [1.234e4]"))
	assert.Equal(t, "7", StripAnnotation("7"))

	assert.Equal(t, []string{wbnb, usdt}, AddressesIn("["+wbnb+", "+usdt+"]"))
}
