package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const poolSource = `pragma solidity ^0.8.0;

contract Pool {
    mapping(address => uint256) public shares;

    function deposit(uint256 amount) external {
        shares[msg.sender] += amount;
        _sync();
    }

    function _sync() internal {
        total = address(this).balance;
    }
}
`

// 与 Pool 的 deposit 结构一致，只是改了变量名
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

type staticABI struct {
	abi json.RawMessage
	err error
}

func (s staticABI) RawABI(context.Context, string, string) (json.RawMessage, error) {
	return s.abi, s.err
}

func TestIngestSourceStoresHierarchy(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	in := NewIngester(repo, staticABI{abi: json.RawMessage(`[{"type":"function","name":"deposit"}]`)})

	res, err := in.IngestSource(ctx, poolSource, Identity{Address: "0xAAAA", Chain: "eth"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "0xaaaa_eth", res.Key)
	require.Len(t, res.Functions, 2)
	require.NotEmpty(t, res.Statements)
	require.Len(t, res.Graphs, 2)

	rec, err := repo.Get(ctx, KindContract, "0xaaaa_eth")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
	var doc ContractDoc
	require.NoError(t, rec.Decode(&doc))
	assert.Equal(t, "Pool", doc.Name)
	assert.JSONEq(t, `[{"type":"function","name":"deposit"}]`, string(doc.ABI))
	assert.Len(t, doc.Subcontracts, 1)

	refs, err := ParentRefs(ctx, repo, KindSubcontract, doc.Subcontracts[0])
	require.NoError(t, err)
	assert.Equal(t, []Ref{{Kind: KindContract, Key: "0xaaaa_eth"}}, refs)

	stRefs, err := ParentRefs(ctx, repo, KindStatement, res.Statements[0])
	require.NoError(t, err)
	assert.Equal(t, []Ref{{Kind: KindFunction, Key: res.Functions[0]}}, stRefs)
}

func TestIngestSharesClonedFunctions(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	in := NewIngester(repo, nil)

	a, err := in.IngestSource(ctx, poolSource, Identity{Address: "0x01", Chain: "eth"})
	require.NoError(t, err)
	b, err := in.IngestSource(ctx, forkSource, Identity{Address: "0x02", Chain: "bsc"})
	require.NoError(t, err)

	assert.Equal(t, a.Functions[0], b.Functions[0])
	refs, err := ParentRefs(ctx, repo, KindFunction, a.Functions[0])
	require.NoError(t, err)
	assert.ElementsMatch(t, []Ref{
		{Kind: KindSubcontract, Key: a.Contracts[0]},
		{Kind: KindSubcontract, Key: b.Contracts[0]},
	}, refs)

	functions, err := repo.List(ctx, KindFunction, "")
	require.NoError(t, err)
	assert.Len(t, functions, 3)
}

func TestIngestExistingContractOnlyGainsAddress(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	in := NewIngester(repo, staticABI{err: errors.New("rate limited")})

	_, err := in.IngestSource(ctx, poolSource, Identity{Address: "0x01", Chain: "eth"})
	require.NoError(t, err)
	again, err := in.IngestSource(ctx, "not even solidity {", Identity{Address: "0x01", Chain: "eth"})
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Empty(t, again.Functions)

	contracts, err := repo.List(ctx, KindContract, "")
	require.NoError(t, err)
	assert.Len(t, contracts, 1)
}

func TestIngestRejectsBrokenSource(t *testing.T) {
	in := NewIngester(NewMemoryRepository(), nil)
	_, err := in.IngestSource(context.Background(), "contract Broken { function f( { }", Identity{Address: "0x01", Chain: "eth"})
	assert.Error(t, err)
}

func TestIngestDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "0xBEEF_polygon")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "contracts", "lib"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "contracts", "Pool.sol"), []byte(poolSource), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "contracts", "lib", "Math.sol"), []byte("library Math { function one() internal pure returns (uint) { return 1; } }"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("ignored"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "contracts", "mocks"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "contracts", "mocks", "MockPool.sol"), []byte("contract MockPool { function f() public {} }"), 0644))

	repo := NewMemoryRepository()
	res, err := NewIngester(repo, nil).IngestDirectory(context.Background(), root, Identity{})
	require.NoError(t, err)
	assert.Equal(t, "0xbeef_polygon", res.Key)
	assert.Len(t, res.Contracts, 2)
}

func TestIdentityFromPath(t *testing.T) {
	id, err := IdentityFromPath("/data/0xAbC_bsc.sol")
	require.NoError(t, err)
	assert.Equal(t, Identity{Address: "0xAbC", Chain: "bsc"}, id)

	_, err = IdentityFromPath("/data/project")
	assert.Error(t, err)
}

type failingRepo struct {
	*MemoryRepository
	failKind Kind
}

func (r *failingRepo) Put(ctx context.Context, rec *Record) (bool, error) {
	if rec.Kind == r.failKind {
		return false, errors.New("disk full")
	}
	return r.MemoryRepository.Put(ctx, rec)
}

// 写函数失败后重试，子合约的函数必须补齐
func TestIngestRetryAfterPartialFailure(t *testing.T) {
	ctx := context.Background()
	repo := &failingRepo{MemoryRepository: NewMemoryRepository(), failKind: KindFunction}
	id := Identity{Address: "0xaaaa", Chain: "bsc"}

	_, err := NewIngester(repo, nil).IngestSource(ctx, poolSource, id)
	require.Error(t, err)
	subs, err := repo.List(ctx, KindSubcontract, "")
	require.NoError(t, err)
	assert.Empty(t, subs)

	repo.failKind = ""
	res, err := NewIngester(repo, nil).IngestSource(ctx, poolSource, id)
	require.NoError(t, err)
	assert.Len(t, res.Functions, 2)

	fns, err := repo.List(ctx, KindFunction, "")
	require.NoError(t, err)
	assert.Len(t, fns, 2)
	subs, err = repo.List(ctx, KindSubcontract, "")
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	for _, fn := range fns {
		refs, err := ParentRefs(ctx, repo, KindFunction, fn.Key)
		require.NoError(t, err)
		assert.Contains(t, refs, Ref{Kind: KindSubcontract, Key: subs[0].Key})
	}
}
