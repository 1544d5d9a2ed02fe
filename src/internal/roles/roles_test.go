package roles

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/VectorBits/pocshift/src/internal/explorer"
	"github.com/VectorBits/pocshift/src/internal/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addr(n int) string { return fmt.Sprintf("0x%040d", n) }

var (
	target  = addr(1)
	wbnb    = addr(2)
	usdt    = addr(3)
	router  = addr(4)
	factory = addr(5)
	pool    = addr(6)
	token   = addr(7)
	stray   = addr(8)
	helper  = addr(9)
	busd    = addr(10)
)

var bsc = Table{Router: router, Factory: factory, MainTokens: []string{wbnb, usdt}}

type fakeProber struct {
	reads     map[string]string
	pairs     map[string]string
	readErr   error
	pairCalls int
}

func pairKey(a, b string) string {
	k := []string{strings.ToLower(a), strings.ToLower(b)}
	sort.Strings(k)
	return k[0] + "/" + k[1]
}

func (f *fakeProber) ReadFunctions(context.Context, string, []explorer.Entry, string, uint64) (map[string]string, error) {
	return f.reads, f.readErr
}

func (f *fakeProber) PairOf(_ context.Context, _, a, b, _ string, _ uint64) (string, error) {
	f.pairCalls++
	return f.pairs[pairKey(a, b)], nil
}

func call(address, fn string, params ...string) *trace.Item {
	return &trace.Item{Node: trace.Node{Kind: trace.KindCall, Address: address, Function: fn, Params: strings.Join(params, ", ")}}
}

func exploitInput() Input {
	return Input{
		Attack: []*trace.Item{
			call(target, "swap", wbnb, pool, "100"),
			call(pool, "sync"),
			call(token, "transfer", trace.TestContract, "5"),
			{Node: trace.Node{Kind: trace.KindNew, ContractName: "Helper", Address: helper}},
			call(helper, "run"),
			call(stray, "foo"),
			call(router, "swapExactTokensForTokens", "100", "0", "["+wbnb+", "+usdt+"]", trace.TestContract, "1"),
		},
		Precondition:      []*trace.Item{call(wbnb, "deposit")},
		VulnerableAddress: target,
		EntryPoint:        trace.EntryPoint{Address: target, Function: "swap"},
		VulnFunction:      "swap",
		SourceAddresses:   []string{target, wbnb, usdt, router, pool, token, stray},
		Chain:             "BSC",
	}
}

func TestCollectFiltersAddresses(t *testing.T) {
	col := Collect(exploitInput(), bsc)

	// usdt 只作为参数出现，之后因在源码中且属于公共表被加回
	assert.Equal(t, []string{target, wbnb, pool, token, stray, router, usdt}, col.Addresses)
	assert.Equal(t, []string{"Helper"}, col.Temps[helper])
	assert.Equal(t, []string{"swap[call]", "swapExactTokensForTokens[call]"}, col.Degrees[wbnb].Out)
	assert.Equal(t, []string{"deposit[call]"}, col.Degrees[wbnb].In)
	assert.NotContains(t, col.Addresses, trace.TestContract)
}

func TestCollectParameterOnlyAddresses(t *testing.T) {
	in := Input{
		Attack: []*trace.Item{
			call(target, "exploit", addr(20)),
			call(stray, "other", addr(21)),
		},
		VulnerableAddress: target,
		EntryPoint:        trace.EntryPoint{Address: target, Function: "exploit"},
	}
	col := Collect(in, Table{})
	assert.Equal(t, []string{target, addr(20), stray}, col.Addresses)

	// 与源码字面量求交集
	in.SourceAddresses = []string{target}
	col = Collect(in, Table{})
	assert.Equal(t, []string{target}, col.Addresses)
}

func TestClassifyPrecedence(t *testing.T) {
	prober := &fakeProber{
		reads: map[string]string{token: "token", addr(99): "owner"},
		pairs: map[string]string{pairKey(wbnb, token): pool},
	}
	c := NewClassifier(prober, map[string]Table{"bsc": bsc})
	res, err := c.Classify(context.Background(), exploitInput())
	require.NoError(t, err)

	want := []struct {
		address string
		kind    Kind
		v       string
	}{
		{target, KindTarget, "TARGETADDRESS"},
		{wbnb, KindCommon, "COMMONADDRESS0"},
		{pool, KindPair, "PAIRADDRESS0"},
		{token, KindRead, "READADDRESS0"},
		{stray, KindLeft, "LEFTADDRESS0"},
		{router, KindCommon, "COMMONADDRESS1"},
		{usdt, KindCommon, "COMMONADDRESS2"},
		{helper, KindTemp, "TEMPADDRESS0"},
	}
	require.Len(t, res.Assignments, len(want))
	for i, w := range want {
		a := res.Assignments[i]
		assert.Equal(t, w.address, a.Address)
		assert.Equal(t, w.kind, a.Kind(), w.address)
		assert.Equal(t, w.v, a.Var)
	}

	p, ok := res.Lookup(pool)
	require.True(t, ok)
	assert.Equal(t, Pair{Token0: wbnb, Token1: token}, p.Role)
	r, _ := res.Lookup(router)
	assert.True(t, r.Role.(Common).Router())
	assert.Equal(t, []string{"Helper"}, res.Assignments[7].Role.Relation())
	assert.Equal(t, []string{"token"}, res.ReadCalls)

	v, ok := res.Var(trace.TestContract)
	assert.True(t, ok)
	assert.Equal(t, "this", v)
	e, _ := res.Expr(token)
	assert.Equal(t, "address(READADDRESS0)", e)
}

func TestClassifyIsTotalAndExclusive(t *testing.T) {
	prober := &fakeProber{pairs: map[string]string{pairKey(wbnb, token): pool}}
	c := NewClassifier(prober, map[string]Table{"bsc": bsc})
	res, err := c.Classify(context.Background(), exploitInput())
	require.NoError(t, err)

	seen := map[string]Kind{}
	total := 0
	for kind, list := range res.Partition() {
		for _, a := range list {
			_, dup := seen[a]
			assert.False(t, dup, "%s has two roles", a)
			seen[a] = kind
			total++
		}
	}
	assert.Equal(t, len(res.Addresses()), total)
	for _, a := range res.Addresses() {
		assert.Contains(t, seen, a)
	}
	// token 没有 read 结果，也不能作为 pair 端点被发现
	tk, _ := res.Lookup(token)
	assert.Equal(t, KindLeft, tk.Kind())
}

func TestClassifyAddsPairTokenAsCommon(t *testing.T) {
	table := Table{Router: router, Factory: factory, MainTokens: []string{wbnb, busd}}
	in := Input{
		Attack:            []*trace.Item{call(target, "swap", pool), call(pool, "skim", trace.TestContract)},
		VulnerableAddress: target,
		EntryPoint:        trace.EntryPoint{Address: target, Function: "swap"},
		Chain:             "bsc",
	}
	prober := &fakeProber{pairs: map[string]string{pairKey(target, busd): pool}}
	res, err := NewClassifier(prober, map[string]Table{"bsc": table}).Classify(context.Background(), in)
	require.NoError(t, err)

	p, ok := res.Lookup(pool)
	require.True(t, ok)
	assert.Equal(t, Pair{Token0: target, Token1: busd}, p.Role)
	b, ok := res.Lookup(busd)
	require.True(t, ok)
	assert.Equal(t, Common{Index: 2}, b.Role)
	assert.Equal(t, "COMMONADDRESS0", b.Var)
}

func TestClassifyWithoutProber(t *testing.T) {
	res, err := NewClassifier(nil, map[string]Table{"bsc": bsc}).Classify(context.Background(), exploitInput())
	require.NoError(t, err)
	for _, a := range []string{pool, token, stray} {
		got, ok := res.Lookup(a)
		require.True(t, ok)
		assert.Equal(t, KindLeft, got.Kind(), a)
	}
}

func TestClassifyProbeFailureIsNotFatal(t *testing.T) {
	prober := &fakeProber{readErr: errors.New("rpc down")}
	res, err := NewClassifier(prober, map[string]Table{"bsc": bsc}).Classify(context.Background(), exploitInput())
	require.NoError(t, err)
	assert.Empty(t, res.ByKind(KindRead))
	assert.Positive(t, prober.pairCalls)
}

func TestClassifyTargetMissingFromTrace(t *testing.T) {
	in := Input{
		Attack:            []*trace.Item{call(stray, "flash"), call(token, "approve", stray)},
		VulnerableAddress: target,
		EntryPoint:        trace.EntryPoint{Address: stray, Function: "flash"},
	}
	res, err := NewClassifier(nil, nil).Classify(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, stray, res.Target)
	a, _ := res.Lookup(stray)
	assert.Equal(t, "TARGETADDRESS", a.Var)

	in.EntryPoint.Address = addr(50)
	res, err = NewClassifier(nil, nil).Classify(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, target, res.Target)
	assert.Equal(t, target, res.Assignments[len(res.Assignments)-1].Address)
}

func TestTableIndex(t *testing.T) {
	assert.Equal(t, 0, bsc.Index(router))
	assert.Equal(t, 2, bsc.Index(usdt))
	assert.Equal(t, 1, bsc.Index(wbnb))
	assert.Equal(t, -1, bsc.Index(stray))
	assert.Equal(t, []string{router, wbnb, usdt}, bsc.Addresses())
	assert.Equal(t, "TEMPADDRESS3", VarName(KindTemp, 3))
}
