package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var ErrNotVerified = errors.New("contract source not verified")

// Resolver maps a deployed contract to its ABI entries.
type Resolver interface {
	Resolve(ctx context.Context, address, chain string) ([]Entry, error)
}

// KeySource hands out explorer API keys.
type KeySource interface {
	GetRandomKey() string
	HasKeys() bool
}

type EtherscanResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type ContractSource struct {
	SourceCode      string `json:"SourceCode"`
	ABI             string `json:"ABI"`
	ContractName    string `json:"ContractName"`
	CompilerVersion string `json:"CompilerVersion"`
	Proxy           string `json:"Proxy"`
	Implementation  string `json:"Implementation"`
}

type ClientConfig struct {
	BaseURL           string
	ChainID           int
	APIKey            string
	Keys              KeySource
	RequestsPerSecond int
	HTTPClient        *http.Client
}

// Client talks to one Etherscan-compatible explorer API.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	limiter *RateLimiter
}

func NewClient(cfg ClientConfig) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{cfg: cfg, http: hc, limiter: NewRateLimiter(cfg.RequestsPerSecond)}
}

func (c *Client) apiKey() string {
	if c.cfg.Keys != nil && c.cfg.Keys.HasKeys() {
		return c.cfg.Keys.GetRandomKey()
	}
	return c.cfg.APIKey
}

func (c *Client) call(ctx context.Context, params url.Values) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if key := c.apiKey(); key != "" {
		params.Set("apikey", key)
	}
	if c.cfg.ChainID != 0 {
		params.Set("chainid", strconv.Itoa(c.cfg.ChainID))
	}

	sep := "?"
	if strings.Contains(c.cfg.BaseURL, "?") {
		sep = "&"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+sep+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("explorer request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer returned %s", resp.Status)
	}

	var apiResp EtherscanResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("decode explorer response: %w", err)
	}
	if apiResp.Status != "1" {
		var detail string
		_ = json.Unmarshal(apiResp.Result, &detail)
		return nil, fmt.Errorf("explorer API error: %s %s", apiResp.Message, detail)
	}
	return apiResp.Result, nil
}

// RawABI returns the ABI JSON document of address.
func (c *Client) RawABI(ctx context.Context, address, _ string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("module", "contract")
	params.Set("action", "getabi")
	params.Set("address", address)

	result, err := c.call(ctx, params)
	if err != nil {
		return nil, err
	}
	// result 是一个 JSON 字符串
	var text string
	if err := json.Unmarshal(result, &text); err != nil {
		return result, nil
	}
	return json.RawMessage(text), nil
}

func (c *Client) Resolve(ctx context.Context, address, chain string) ([]Entry, error) {
	raw, err := c.RawABI(ctx, address, chain)
	if err != nil {
		return nil, err
	}
	return ParseEntries(raw)
}

// SourceCode fetches verified source; multi-file sources come back as the
// standard-input JSON text.
func (c *Client) SourceCode(ctx context.Context, address string) (*ContractSource, error) {
	params := url.Values{}
	params.Set("module", "contract")
	params.Set("action", "getsourcecode")
	params.Set("address", address)

	result, err := c.call(ctx, params)
	if err != nil {
		return nil, err
	}
	var sources []ContractSource
	if err := json.Unmarshal(result, &sources); err != nil {
		return nil, err
	}
	if len(sources) == 0 || strings.TrimSpace(sources[0].SourceCode) == "" {
		return nil, fmt.Errorf("%s: %w", address, ErrNotVerified)
	}
	return &sources[0], nil
}

func (c *Client) Close() { c.limiter.Stop() }

// Registry dispatches to the explorer configured for each chain.
type Registry struct {
	clients map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

func (r *Registry) Register(chain string, c *Client) {
	r.clients[strings.ToLower(chain)] = c
}

func (r *Registry) Client(chain string) (*Client, error) {
	c, ok := r.clients[strings.ToLower(chain)]
	if !ok {
		return nil, fmt.Errorf("no explorer configured for chain %s", chain)
	}
	return c, nil
}

func (r *Registry) RawABI(ctx context.Context, address, chain string) (json.RawMessage, error) {
	c, err := r.Client(chain)
	if err != nil {
		return nil, err
	}
	return c.RawABI(ctx, address, chain)
}

func (r *Registry) Resolve(ctx context.Context, address, chain string) ([]Entry, error) {
	raw, err := r.RawABI(ctx, address, chain)
	if err != nil {
		return nil, err
	}
	return ParseEntries(raw)
}
