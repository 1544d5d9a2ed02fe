package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/VectorBits/pocshift/src/internal"
	"github.com/VectorBits/pocshift/src/internal/chain"
	"github.com/VectorBits/pocshift/src/internal/explorer"
	"github.com/VectorBits/pocshift/src/internal/harness"
	"github.com/VectorBits/pocshift/src/internal/logger"
)

// Explorers registers one explorer client per chain that has a base url and
// wraps them in the shared ABI cache.
func (c *AppConfig) Explorers() (*explorer.CachedResolver, *explorer.Registry, error) {
	reg := explorer.NewRegistry()
	for name, ch := range c.Chains {
		if ch.Explorer.BaseURL == "" {
			continue
		}
		hc, err := internal.CreateProxyHTTPClient(c.Proxy, 30*time.Second)
		if err != nil {
			return nil, nil, err
		}
		keys := KeysFor(ch.Explorer)
		if !keys.HasKeys() {
			logger.Warn("no explorer api key for %s, requests may be throttled", name)
		}
		cfg := explorer.ClientConfig{
			BaseURL:           ch.Explorer.BaseURL,
			ChainID:           ch.ChainID,
			RequestsPerSecond: ch.Explorer.RequestsPerSecond,
			HTTPClient:        hc,
		}
		if keys != nil {
			cfg.Keys = keys
		}
		reg.Register(name, explorer.NewClient(cfg))
	}
	cached, err := explorer.NewCachedResolver(reg, 0)
	if err != nil {
		return nil, nil, err
	}
	return cached, reg, nil
}

// RPCManagers dials every chain with rpc urls. Chains that fail to dial are
// skipped with a warning.
func (c *AppConfig) RPCManagers() (chain.Managers, error) {
	out := chain.Managers{}
	for name, ch := range c.Chains {
		if len(ch.RPCURLs) == 0 {
			continue
		}
		mgr, err := chain.NewRPCManager(name, ch.RPCURLs, 10*time.Second, c.Proxy)
		if err != nil {
			logger.Warn("rpc for %s unavailable: %v", name, err)
			continue
		}
		out[name] = mgr
	}
	if len(out) == 0 && len(c.Chains) > 0 {
		return out, errors.New("no chain has a reachable rpc")
	}
	return out, nil
}

// HarnessRunner returns the forge runner, replaying recorded traces when a trace
// directory is configured.
func (c *AppConfig) HarnessRunner() (harness.Harness, error) {
	forge, err := harness.NewForge(harness.Config{
		ForgePath:  c.Harness.ForgePath,
		ProjectDir: c.Harness.ProjectDir,
		Timeout:    c.ForgeTimeout(),
	})
	if err != nil {
		if c.Harness.TraceDir == "" {
			return nil, err
		}
		logger.Warn("%v, replaying traces from %s only", err, c.Harness.TraceDir)
		return harness.NewCached(c.Harness.TraceDir, nil), nil
	}
	if c.Harness.TraceDir != "" {
		return harness.NewCached(c.Harness.TraceDir, forge), nil
	}
	return forge, nil
}

// Prober builds the chain prober over the configured RPC managers.
func (c *AppConfig) Prober() (*chain.Prober, chain.Managers, error) {
	managers, err := c.RPCManagers()
	if err != nil {
		return nil, managers, fmt.Errorf("prober: %w", err)
	}
	p, err := chain.NewProber(managers, 0, 0)
	if err != nil {
		return nil, managers, err
	}
	return p, managers, nil
}
