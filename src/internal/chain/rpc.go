package chain

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/VectorBits/pocshift/src/internal"
	"github.com/VectorBits/pocshift/src/internal/logger"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

var ErrNoRPC = errors.New("all RPC nodes are unavailable")

// RPCManager keeps one client per configured URL and fails over between them.
type RPCManager struct {
	chainName         string
	urls              []string
	clients           []*ethclient.Client
	current           int
	mutex             sync.RWMutex
	timeout           time.Duration
	healthCacheWindow time.Duration
	lastHealthyAt     []time.Time
}

func dialEthClient(rawURL string, timeout time.Duration, proxy string) (*ethclient.Client, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("empty rpc url")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		httpClient, err := internal.CreateProxyHTTPClient(proxy, timeout)
		if err != nil {
			return nil, err
		}
		rpcClient, err := rpc.DialHTTPWithClient(rawURL, httpClient)
		if err != nil {
			return nil, err
		}
		return ethclient.NewClient(rpcClient), nil
	default:
		return ethclient.Dial(rawURL)
	}
}

func NewRPCManager(chainName string, urls []string, timeout time.Duration, proxy string) (*RPCManager, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("chain %s: at least one RPC URL is required", chainName)
	}

	manager := &RPCManager{
		chainName:         chainName,
		urls:              urls,
		timeout:           timeout,
		clients:           make([]*ethclient.Client, len(urls)),
		healthCacheWindow: 5 * time.Second,
		lastHealthyAt:     make([]time.Time, len(urls)),
	}

	for i, u := range urls {
		client, err := dialEthClient(u, timeout, proxy)
		if err != nil {
			// 单个节点失败不影响其它节点
			logger.Warn("⚠️  Failed to connect to RPC [%s]: %v", u, err)
			continue
		}
		manager.clients[i] = client
	}

	manager.current = rand.Intn(len(manager.clients))
	return manager, nil
}

// GetClient returns a healthy client, switching nodes when the current one
// stops answering.
func (r *RPCManager) GetClient() (*ethclient.Client, error) {
	r.mutex.RLock()
	current := r.current
	var client *ethclient.Client
	var lastHealthy time.Time
	if current >= 0 && current < len(r.clients) {
		client = r.clients[current]
		lastHealthy = r.lastHealthyAt[current]
	}
	r.mutex.RUnlock()

	if client != nil {
		if !lastHealthy.IsZero() && time.Since(lastHealthy) < r.healthCacheWindow {
			return client, nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if _, err := client.BlockNumber(ctx); err == nil {
			r.mutex.Lock()
			r.lastHealthyAt[current] = time.Now()
			r.mutex.Unlock()
			return client, nil
		}
	}
	return r.switchToNextClient()
}

func (r *RPCManager) switchToNextClient() (*ethclient.Client, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i := 0; i < len(r.clients); i++ {
		next := (r.current + 1 + i) % len(r.clients)
		if r.clients[next] == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		_, err := r.clients[next].BlockNumber(ctx)
		cancel()
		if err == nil {
			r.current = next
			r.lastHealthyAt[next] = time.Now()
			logger.Info("🔄 Switched to RPC: %s", r.urls[next])
			return r.clients[next], nil
		}
	}
	return nil, fmt.Errorf("chain %s: %w", r.chainName, ErrNoRPC)
}

func (r *RPCManager) GetCurrentURL() string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if r.current < len(r.urls) {
		return r.urls[r.current]
	}
	return ""
}

func (r *RPCManager) GetChainName() string { return r.chainName }

// Caller satisfies Backend for the manager's own chain.
func (r *RPCManager) Caller(chain string) (Caller, error) {
	if !strings.EqualFold(chain, r.chainName) {
		return nil, fmt.Errorf("rpc manager serves %s, not %s", r.chainName, chain)
	}
	client, err := r.GetClient()
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (r *RPCManager) Close() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, client := range r.clients {
		if client != nil {
			client.Close()
		}
	}
}

// Managers routes calls to the RPC manager of each chain.
type Managers map[string]*RPCManager

func (m Managers) Caller(chain string) (Caller, error) {
	mgr, ok := m[strings.ToLower(chain)]
	if !ok {
		return nil, fmt.Errorf("no rpc configured for chain %s", chain)
	}
	return mgr.Caller(mgr.chainName)
}

func (m Managers) Close() {
	for _, mgr := range m {
		mgr.Close()
	}
}
