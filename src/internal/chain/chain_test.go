package chain

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/VectorBits/pocshift/src/internal/explorer"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vaultABI = `[
 {"type":"function","name":"token","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
 {"type":"function","name":"underlyingToken","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
 {"type":"function","name":"owner","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
 {"type":"function","name":"pool","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
 {"type":"function","name":"totalSupply","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
 {"type":"function","name":"setToken","inputs":[{"name":"t","type":"address"}],"outputs":[],"stateMutability":"nonpayable"}
]`

var (
	vault   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	token   = common.HexToAddress("0x2000000000000000000000000000000000000002")
	weth    = common.HexToAddress("0x3000000000000000000000000000000000000003")
	factory = common.HexToAddress("0x4000000000000000000000000000000000000004")
	pair    = common.HexToAddress("0x5000000000000000000000000000000000000005")
)

type fakeCaller struct {
	results map[string][]byte
	calls   int
	blocks  []*big.Int
}

func callKey(to common.Address, data []byte) string {
	return to.Hex() + "/" + hex.EncodeToString(data)
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.calls++
	f.blocks = append(f.blocks, block)
	out, ok := f.results[callKey(*msg.To, msg.Data)]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return out, nil
}

type fakeBackend struct{ caller *fakeCaller }

func (b fakeBackend) Caller(string) (Caller, error) { return b.caller, nil }

func packAddress(t *testing.T, a common.Address) []byte {
	t.Helper()
	typ, err := abi.NewType("address", "", nil)
	require.NoError(t, err)
	out, err := abi.Arguments{{Type: typ}}.Pack(a)
	require.NoError(t, err)
	return out
}

func selector(sig string) []byte { return crypto.Keccak256([]byte(sig))[:4] }

func newProber(t *testing.T, caller *fakeCaller) *Prober {
	t.Helper()
	p, err := NewProber(fakeBackend{caller: caller}, 16, 0)
	require.NoError(t, err)
	return p
}

func TestReadFunctions(t *testing.T) {
	caller := &fakeCaller{results: map[string][]byte{
		callKey(vault, selector("token()")):           packAddress(t, token),
		callKey(vault, selector("underlyingToken()")): packAddress(t, token),
		callKey(vault, selector("owner()")):           packAddress(t, common.Address{}),
	}}
	entries, err := explorer.ParseEntries([]byte(vaultABI))
	require.NoError(t, err)

	p := newProber(t, caller)
	found, err := p.ReadFunctions(context.Background(), vault.Hex(), entries, "bsc", 30_000_000)
	require.NoError(t, err)
	// owner 返回零地址, pool 调用失败
	assert.Equal(t, map[string]string{token.Hex(): "token"}, found)
	assert.Equal(t, 4, caller.calls)
	assert.Equal(t, big.NewInt(30_000_000), caller.blocks[0])

	_, err = p.ReadFunctions(context.Background(), vault.Hex(), entries, "bsc", 30_000_000)
	require.NoError(t, err)
	// pinned block 的成功结果来自缓存，失败的调用会重试
	assert.Equal(t, 5, caller.calls)

	_, err = p.ReadFunctions(context.Background(), "not-an-address", entries, "bsc", 1)
	assert.Error(t, err)
}

func TestPairOf(t *testing.T) {
	data, err := factoryABI.Pack("getPair", token, weth)
	require.NoError(t, err)
	caller := &fakeCaller{results: map[string][]byte{
		callKey(factory, data): packAddress(t, pair),
	}}
	p := newProber(t, caller)

	got, err := p.PairOf(context.Background(), factory.Hex(), token.Hex(), weth.Hex(), "bsc", 0)
	require.NoError(t, err)
	assert.Equal(t, pair.Hex(), got)
	assert.Nil(t, caller.blocks[0])

	missing, err := factoryABI.Pack("getPair", token, vault)
	require.NoError(t, err)
	caller.results[callKey(factory, missing)] = packAddress(t, common.Address{})
	got, err = p.PairOf(context.Background(), factory.Hex(), token.Hex(), vault.Hex(), "bsc", 0)
	require.NoError(t, err)
	assert.Equal(t, "", got)

	_, err = p.PairOf(context.Background(), factory.Hex(), weth.Hex(), vault.Hex(), "bsc", 0)
	assert.Error(t, err)
}

func TestManagersUnknownChain(t *testing.T) {
	_, err := Managers{}.Caller("eth")
	assert.Error(t, err)
}
