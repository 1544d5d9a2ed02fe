package explorer

import (
	"context"
	"encoding/json"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// ABIFetcher is the raw side of a resolver.
type ABIFetcher interface {
	RawABI(ctx context.Context, address, chain string) (json.RawMessage, error)
}

// CachedResolver memoizes ABIs per (address, chain). Concurrent misses for the
// same key share one request; failures are not cached.
type CachedResolver struct {
	next  ABIFetcher
	cache *lru.Cache[string, json.RawMessage]
	group singleflight.Group
}

func NewCachedResolver(next ABIFetcher, size int) (*CachedResolver, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, json.RawMessage](size)
	if err != nil {
		return nil, err
	}
	return &CachedResolver{next: next, cache: cache}, nil
}

func (c *CachedResolver) RawABI(ctx context.Context, address, chain string) (json.RawMessage, error) {
	key := strings.ToLower(address) + "_" + chain
	if raw, ok := c.cache.Get(key); ok {
		return raw, nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		raw, err := c.next.RawABI(ctx, address, chain)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, raw)
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

func (c *CachedResolver) Resolve(ctx context.Context, address, chain string) ([]Entry, error) {
	raw, err := c.RawABI(ctx, address, chain)
	if err != nil {
		return nil, err
	}
	return ParseEntries(raw)
}

// Static resolves from a fixed table; used for offline runs and tests.
type Static map[string]json.RawMessage

func (s Static) RawABI(_ context.Context, address, chain string) (json.RawMessage, error) {
	raw, ok := s[strings.ToLower(address)+"_"+chain]
	if !ok {
		return nil, ErrNotVerified
	}
	return raw, nil
}

func (s Static) Resolve(ctx context.Context, address, chain string) ([]Entry, error) {
	raw, err := s.RawABI(ctx, address, chain)
	if err != nil {
		return nil, err
	}
	return ParseEntries(raw)
}
