package matching

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/VectorBits/pocshift/src/internal/corpus"
	"github.com/VectorBits/pocshift/src/internal/explorer"
	"github.com/VectorBits/pocshift/src/internal/roles"
	"github.com/VectorBits/pocshift/src/internal/solidity"
	"github.com/VectorBits/pocshift/src/internal/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const poolSource = `pragma solidity ^0.8.0;

contract Pool {
    mapping(address => uint256) public shares;
    address public token;

    function deposit(uint256 amount) external {
        shares[msg.sender] += amount;
        _sync();
    }

    function _sync() internal {
        total = address(this).balance;
    }
}
`

const forkSource = `pragma solidity ^0.8.0;

contract Fork {
    mapping(address => uint256) public stakes;

    function deposit(uint256 value) external {
        stakes[msg.sender] += value;
        _sync();
    }

    function _sync() internal {
        total = address(this).balance;
    }

    function extra() external view returns (uint256) {
        return 1;
    }
}
`

const poolABI = `[
 {"type":"function","name":"deposit","inputs":[{"name":"amount","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
 {"type":"function","name":"token","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"}
]`

const narrowABI = `[
 {"type":"function","name":"extra","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"}
]`

type fixture struct {
	repo        *corpus.MemoryRepository
	engine      *Engine
	depositHash string
	stmtHash    string
	depositText string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	repo := corpus.NewMemoryRepository()

	stored := corpus.NewIngester(repo, explorer.Static{
		"0xaaaa_bsc": json.RawMessage(poolABI),
		"0xbbbb_bsc": json.RawMessage(narrowABI),
	})
	bare := corpus.NewIngester(repo, nil)
	for _, step := range []struct {
		in   *corpus.Ingester
		src  string
		addr string
		net  string
	}{
		{stored, poolSource, "0xaaaa", "bsc"},
		{stored, forkSource, "0xbbbb", "bsc"},
		{bare, poolSource, "0xcccc", "eth"},
		{bare, forkSource, "0xdddd", "eth"},
	} {
		_, err := step.in.IngestSource(ctx, step.src, corpus.Identity{Address: step.addr, Chain: step.net})
		require.NoError(t, err)
	}

	unit, err := solidity.Parse(poolSource, solidity.Options{})
	require.NoError(t, err)
	deposit := unit.Contract("Pool").Functions[0]

	resolver := explorer.Static{"0xdddd_eth": json.RawMessage(poolABI)}
	tracker := corpus.NewTracker(repo, 10*time.Millisecond)
	return fixture{
		repo:        repo,
		engine:      NewEngine(repo, resolver, tracker),
		depositHash: deposit.Hash,
		stmtHash:    deposit.Statements[0].Hash,
		depositText: deposit.Original,
	}
}

func signature() synth.Signature {
	sig := synth.Signature{}
	for _, k := range roles.Kinds {
		sig[k] = map[string]synth.SignatureEntry{}
	}
	sig[roles.KindTarget]["0xaaaa"] = synth.SignatureEntry{Relation: []string{}, FunctionCall: []string{"deposit", "receive"}}
	sig[roles.KindRead]["0x0001"] = synth.SignatureEntry{Relation: []string{"token"}, FunctionCall: []string{"transfer"}}
	return sig
}

func storePoC(t *testing.T, repo corpus.Repository, p *PoC) {
	t.Helper()
	rec, err := corpus.NewRecord(corpus.KindPoC, p.Hash, p)
	require.NoError(t, err)
	rec.Lookup = p.VulnCodeHash
	_, _, err = corpus.Create(context.Background(), repo, rec)
	require.NoError(t, err)
}

func addresses(cands []*Candidate) []string {
	var out []string
	for _, c := range cands {
		out = append(out, c.Address+"_"+c.Chain)
	}
	return out
}

func TestFeatureFilter(t *testing.T) {
	full, err := explorer.ParseEntries([]byte(poolABI))
	require.NoError(t, err)
	narrow, err := explorer.ParseEntries([]byte(narrowABI))
	require.NoError(t, err)

	rationale, ok := FeatureFilter(signature(), full)
	assert.True(t, ok)
	assert.Equal(t, Rationale{"target": {"deposit"}, "read": {"token"}}, rationale)

	_, ok = FeatureFilter(signature(), narrow)
	assert.False(t, ok)

	// 接口为空时即使没有要求的函数也拒绝
	_, ok = FeatureFilter(synth.Signature{}, nil)
	assert.False(t, ok)

	sig := signature()
	sig[roles.KindTarget]["0xaaaa"] = synth.SignatureEntry{FunctionCall: []string{"fallback", "0x12345678"}}
	delete(sig[roles.KindRead], "0x0001")
	rationale, ok = FeatureFilter(sig, narrow)
	assert.True(t, ok)
	assert.Empty(t, rationale)
}

func TestMatchPoCSelfConsistency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	poc := &PoC{Hash: "poc1", FileName: "Pool_exp.sol", BlockNumber: 100, Vulnerability: "reentrancy", VulnCodeHash: f.depositHash, Signature: signature()}
	storePoC(t, f.repo, poc)

	found, err := f.engine.MatchPoC(ctx, poc)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"0xaaaa_bsc", "0xdddd_eth"}, addresses(found))
	for _, c := range found {
		assert.Equal(t, uint64(100), c.BlockNumber)
		assert.Equal(t, "Pool_exp.sol", c.PoCFile)
		assert.Equal(t, corpus.StatusPending, c.Status)
	}

	again, err := f.engine.MatchPoC(ctx, poc)
	require.NoError(t, err)
	assert.Empty(t, again)

	stored, err := f.engine.Candidates(ctx, "poc1")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestMatchPoCByStatementHash(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	poc := &PoC{Hash: "poc2", FileName: "Stmt_exp.sol", VulnCodeHash: f.stmtHash, Signature: signature()}

	found, err := f.engine.MatchPoC(ctx, poc)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"0xaaaa_bsc", "0xdddd_eth"}, addresses(found))
}

func TestMatchPoCStatusFilter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	poc := &PoC{Hash: "poc3", VulnCodeHash: f.depositHash, Signature: signature()}

	found, err := f.engine.MatchPoC(ctx, poc, corpus.StatusDone)
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = f.engine.MatchPoC(ctx, &PoC{Hash: "poc4", VulnCodeHash: "unknown", Signature: signature()})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestFindCandidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// 没有对应的 PoC 时只有结构匹配
	found, err := f.engine.FindCandidates(ctx, Query{Fragment: f.depositText})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"0xaaaa_bsc", "0xbbbb_bsc", "0xcccc_eth", "0xdddd_eth"}, addresses(found))
	for _, c := range found {
		assert.Equal(t, Rationale{"structural": {f.depositHash}}, c.Rationale)
	}

	// 多语句片段：每个合约只出现一次，结构依据合并
	fragment := "shares[msg.sender] += amount;\n_sync();"
	hashes, err := solidity.FragmentHashes(fragment)
	require.NoError(t, err)
	require.Len(t, hashes, 2)
	found, err = f.engine.FindCandidates(ctx, Query{Fragment: fragment})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"0xaaaa_bsc", "0xbbbb_bsc", "0xcccc_eth", "0xdddd_eth"}, addresses(found))
	for _, c := range found {
		assert.Equal(t, hashes, c.Rationale["structural"])
	}

	storePoC(t, f.repo, &PoC{Hash: "poc5", FileName: "Pool_exp.sol", VulnCodeHash: f.depositHash, Signature: signature()})
	found, err = f.engine.FindCandidates(ctx, Query{Fragment: f.depositText})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"0xaaaa_bsc", "0xdddd_eth"}, addresses(found))
	assert.Equal(t, []string{"deposit"}, found[0].Rationale["target"])
	assert.Equal(t, "poc5", found[0].PoCHash)

	found, err = f.engine.FindCandidates(ctx, Query{PoCHash: "poc5"})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	stored, err := f.repo.List(ctx, corpus.KindCandidate, "")
	require.NoError(t, err)
	assert.Empty(t, stored)

	_, err = f.engine.FindCandidates(ctx, Query{})
	assert.Error(t, err)
	_, err = f.engine.FindCandidates(ctx, Query{PoCHash: "missing"})
	assert.True(t, errors.Is(err, corpus.ErrNotFound))
}

func TestTemplatesForCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	storePoC(t, f.repo, &PoC{Hash: "poc6", FileName: "Pool_exp.sol", VulnCodeHash: f.depositHash, Signature: signature()})

	full, err := explorer.ParseEntries([]byte(poolABI))
	require.NoError(t, err)
	narrow, err := explorer.ParseEntries([]byte(narrowABI))
	require.NoError(t, err)

	pocs, err := f.engine.TemplatesForCode(ctx, forkSource, full)
	require.NoError(t, err)
	require.Len(t, pocs, 1)
	assert.Equal(t, "poc6", pocs[0].Hash)

	pocs, err = f.engine.TemplatesForCode(ctx, forkSource, narrow)
	require.NoError(t, err)
	assert.Empty(t, pocs)
}

func TestSweeps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	storePoC(t, f.repo, &PoC{Hash: "poc7", FileName: "A_exp.sol", VulnCodeHash: f.depositHash, Signature: signature()})

	res, err := f.engine.SweepContracts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Contracts)
	assert.Len(t, res.Candidates, 2)

	contracts, err := f.repo.List(ctx, corpus.KindContract, corpus.StatusDone)
	require.NoError(t, err)
	assert.Len(t, contracts, 4)

	res, err = f.engine.SweepContracts(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Contracts)
	assert.Empty(t, res.Candidates)

	storePoC(t, f.repo, &PoC{Hash: "poc8", FileName: "B_exp.sol", VulnCodeHash: f.stmtHash, Signature: signature()})
	res, err = f.engine.SweepPoCs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.PoCs)
	assert.ElementsMatch(t, []string{"0xaaaa_bsc", "0xdddd_eth"}, addresses(res.Candidates))

	pending, err := f.repo.List(ctx, corpus.KindPoC, corpus.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	running, err := f.engine.tracker.Running(ctx)
	require.NoError(t, err)
	assert.False(t, running)
}

func TestSweepResumesQueuedContracts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	storePoC(t, f.repo, &PoC{Hash: "poc9", VulnCodeHash: f.depositHash, Signature: signature()})
	// 上次扫描中断，合约停留在 queued
	require.NoError(t, f.repo.SetStatus(ctx, corpus.KindContract, "0xaaaa_bsc", corpus.StatusQueued))

	res, err := f.engine.SweepContracts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Contracts)
	assert.Len(t, res.Candidates, 2)
}

func TestSweepWaitsForRunningFlag(t *testing.T) {
	f := newFixture(t)
	ok, err := f.repo.CompareAndSetFlag(context.Background(), corpus.FlagMatchingRunning, 0, int(time.Now().Unix()))
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = f.engine.SweepContracts(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	cleared, err := f.engine.Unlock(context.Background())
	require.NoError(t, err)
	assert.True(t, cleared)
	_, err = f.engine.SweepContracts(context.Background())
	assert.NoError(t, err)
}
