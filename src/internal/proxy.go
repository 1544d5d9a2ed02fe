package internal

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

var (
	httpClientCacheMu sync.Mutex
	httpClientCache   = map[string]*http.Client{}
)

func ValidateProxyURL(proxyURL string) error {
	if strings.TrimSpace(proxyURL) == "" {
		return nil // 空字符串表示不使用代理
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "socks5" {
		return fmt.Errorf("unsupported proxy scheme: %s (supported: http, https, socks5)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("proxy host cannot be empty")
	}
	return nil
}

func newTransport(proxyURL string) (*http.Transport, error) {
	transport := &http.Transport{
		TLSHandshakeTimeout: 10 * time.Second,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
	}
	if proxyURL = strings.TrimSpace(proxyURL); proxyURL != "" {
		if err := ValidateProxyURL(proxyURL); err != nil {
			return nil, err
		}
		u, _ := url.Parse(proxyURL)
		transport.Proxy = http.ProxyURL(u)
	}
	return transport, nil
}

// CreateProxyHTTPClient returns a shared client per (proxy, timeout). RPC
// and explorer clients on the same proxy reuse one connection pool.
func CreateProxyHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	key := strings.TrimSpace(proxyURL) + "|" + timeout.String()
	httpClientCacheMu.Lock()
	defer httpClientCacheMu.Unlock()
	if cached := httpClientCache[key]; cached != nil {
		return cached, nil
	}

	transport, err := newTransport(proxyURL)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: timeout, Transport: transport}
	if len(httpClientCache) >= 32 {
		httpClientCache = map[string]*http.Client{}
	}
	httpClientCache[key] = client
	return client, nil
}
