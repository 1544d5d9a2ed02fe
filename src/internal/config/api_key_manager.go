package config

import (
	"math/rand"
	"sync"
	"time"
)

// APIKeyManager spreads explorer requests over several API keys.
type APIKeyManager struct {
	apiKeys []string
	current int
	mutex   sync.Mutex
	rng     *rand.Rand
}

func NewAPIKeyManager(apiKeys []string, fallbackKey string) *APIKeyManager {
	seen := make(map[string]bool)
	validKeys := make([]string, 0, len(apiKeys)+1)
	for _, key := range append(apiKeys, fallbackKey) {
		if key != "" && !seen[key] {
			seen[key] = true
			validKeys = append(validKeys, key)
		}
	}
	if len(validKeys) == 0 {
		return nil
	}

	m := &APIKeyManager{
		apiKeys: validKeys,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	m.current = m.rng.Intn(len(validKeys))
	return m
}

// KeysFor builds the key manager of one explorer section.
func KeysFor(e Explorer) *APIKeyManager {
	return NewAPIKeyManager(e.APIKeys, e.APIKey)
}

// GetNextKey rotates round-robin.
func (m *APIKeyManager) GetNextKey() string {
	if !m.HasKeys() {
		return ""
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.current = (m.current + 1) % len(m.apiKeys)
	return m.apiKeys[m.current]
}

func (m *APIKeyManager) GetRandomKey() string {
	if !m.HasKeys() {
		return ""
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.apiKeys[m.rng.Intn(len(m.apiKeys))]
}

func (m *APIKeyManager) GetKeyCount() int {
	if m == nil {
		return 0
	}
	return len(m.apiKeys)
}

func (m *APIKeyManager) HasKeys() bool {
	return m != nil && len(m.apiKeys) > 0
}
