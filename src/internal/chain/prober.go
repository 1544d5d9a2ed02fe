package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/VectorBits/pocshift/src/internal/explorer"
	"github.com/VectorBits/pocshift/src/internal/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Caller executes eth_call; *ethclient.Client implements it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Backend hands out a Caller per chain.
type Backend interface {
	Caller(chain string) (Caller, error)
}

const factoryJSON = `[{"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"}],"name":"getPair","outputs":[{"name":"pair","type":"address"}],"stateMutability":"view","type":"function"}]`

var factoryABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(factoryJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

const DefaultCallTimeout = 30 * time.Second

// Prober answers role probes with read-only calls at a pinned block.
// Results for a pinned block are cached by (chain, block, address, calldata).
type Prober struct {
	backend Backend
	cache   *lru.Cache[string, []byte]
	timeout time.Duration
}

func NewProber(backend Backend, cacheSize int, timeout time.Duration) (*Prober, error) {
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	cache, err := lru.New[string, []byte](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Prober{backend: backend, cache: cache, timeout: timeout}, nil
}

func blockArg(block uint64) *big.Int {
	if block == 0 {
		return nil
	}
	return new(big.Int).SetUint64(block)
}

func (p *Prober) call(ctx context.Context, chain string, block uint64, to common.Address, data []byte) ([]byte, error) {
	key := fmt.Sprintf("%s/%d/%s/%x", strings.ToLower(chain), block, to.Hex(), data)
	if block != 0 {
		if out, ok := p.cache.Get(key); ok {
			return out, nil
		}
	}
	caller, err := p.backend.Caller(chain)
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	out, err := caller.CallContract(cctx, ethereum.CallMsg{To: &to, Data: data}, blockArg(block))
	if err != nil {
		return nil, err
	}
	if block != 0 {
		p.cache.Add(key, out)
	}
	return out, nil
}

// ReadFunctions calls every zero-argument address getter in entries on
// target. When several getters return the same address the shortest name wins.
func (p *Prober) ReadFunctions(ctx context.Context, target string, entries []explorer.Entry, chain string, block uint64) (map[string]string, error) {
	if !common.IsHexAddress(target) {
		return nil, fmt.Errorf("invalid target address %q", target)
	}
	to := common.HexToAddress(target)
	found := make(map[string]string)
	for _, e := range explorer.AddressGetters(entries) {
		m, err := e.Method()
		if err != nil {
			logger.Debug("skip getter %s: %v", e.Name, err)
			continue
		}
		out, err := p.call(ctx, chain, block, to, m.ID)
		if err != nil {
			if ctx.Err() != nil {
				return found, ctx.Err()
			}
			logger.Debug("probe %s.%s() failed: %v", target, e.Name, err)
			continue
		}
		vals, err := m.Outputs.Unpack(out)
		if err != nil || len(vals) == 0 {
			continue
		}
		addr, ok := vals[0].(common.Address)
		if !ok || addr == (common.Address{}) {
			continue
		}
		if prev, ok := found[addr.Hex()]; !ok || len(e.Name) < len(prev) {
			found[addr.Hex()] = e.Name
		}
	}
	return found, nil
}

// PairOf returns factory.getPair(token0, token1), or "" when no pool exists.
func (p *Prober) PairOf(ctx context.Context, factory, token0, token1, chain string, block uint64) (string, error) {
	for _, a := range []string{factory, token0, token1} {
		if !common.IsHexAddress(a) {
			return "", fmt.Errorf("invalid address %q", a)
		}
	}
	data, err := factoryABI.Pack("getPair", common.HexToAddress(token0), common.HexToAddress(token1))
	if err != nil {
		return "", err
	}
	out, err := p.call(ctx, chain, block, common.HexToAddress(factory), data)
	if err != nil {
		return "", err
	}
	vals, err := factoryABI.Unpack("getPair", out)
	if err != nil {
		return "", fmt.Errorf("decode getPair: %w", err)
	}
	addr, ok := vals[0].(common.Address)
	if !ok || addr == (common.Address{}) {
		return "", nil
	}
	return addr.Hex(), nil
}
