package corpus

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type recordKey struct {
	kind Kind
	key  string
}

// MemoryRepository keeps everything in process memory.
type MemoryRepository struct {
	mu        sync.RWMutex
	records   map[recordKey]*Record
	members   map[recordKey]map[string][]string
	sequences map[string]int64
	flags     map[string]int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records:   make(map[recordKey]*Record),
		members:   make(map[recordKey]map[string][]string),
		sequences: make(map[string]int64),
		flags:     make(map[string]int),
	}
}

func copyRecord(r *Record) *Record {
	cp := *r
	cp.Body = append([]byte(nil), r.Body...)
	return &cp
}

func (m *MemoryRepository) Get(_ context.Context, kind Kind, key string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[recordKey{kind, key}]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(r), nil
}

func (m *MemoryRepository) Put(_ context.Context, rec *Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := recordKey{rec.Kind, rec.Key}
	if _, ok := m.records[k]; ok {
		return false, nil
	}
	m.records[k] = copyRecord(rec)
	return true, nil
}

func (m *MemoryRepository) Replace(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[recordKey{rec.Kind, rec.Key}]
	if !ok {
		return fmt.Errorf("replace %s/%s: %w", rec.Kind, rec.Key, ErrNotFound)
	}
	r.Body = append([]byte(nil), rec.Body...)
	return nil
}

func (m *MemoryRepository) update(kind Kind, key string, fn func(*Record)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[recordKey{kind, key}]
	if !ok {
		return fmt.Errorf("%s/%s: %w", kind, key, ErrNotFound)
	}
	fn(r)
	return nil
}

func (m *MemoryRepository) SetStatus(_ context.Context, kind Kind, key string, status Status) error {
	return m.update(kind, key, func(r *Record) { r.Status = status })
}

func (m *MemoryRepository) SetLookup(_ context.Context, kind Kind, key, lookup string) error {
	return m.update(kind, key, func(r *Record) { r.Lookup = lookup })
}

func (m *MemoryRepository) filter(kind Kind, keep func(*Record) bool) []*Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Record
	for k, r := range m.records {
		if k.kind == kind && keep(r) {
			out = append(out, copyRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func (m *MemoryRepository) List(_ context.Context, kind Kind, status Status) ([]*Record, error) {
	return m.filter(kind, func(r *Record) bool { return status == "" || r.Status == status }), nil
}

func (m *MemoryRepository) FindByLookup(_ context.Context, kind Kind, lookup string) ([]*Record, error) {
	return m.filter(kind, func(r *Record) bool { return r.Lookup == lookup }), nil
}

func (m *MemoryRepository) UnionInsert(_ context.Context, kind Kind, key, set string, values ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := recordKey{kind, key}
	sets := m.members[k]
	if sets == nil {
		sets = make(map[string][]string)
		m.members[k] = sets
	}
	for _, v := range values {
		if !contains(sets[set], v) {
			sets[set] = append(sets[set], v)
		}
	}
	return nil
}

func (m *MemoryRepository) Members(_ context.Context, kind Kind, key, set string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.members[recordKey{kind, key}][set]...), nil
}

func (m *MemoryRepository) NextSequence(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequences[name]++
	return m.sequences[name], nil
}

func (m *MemoryRepository) CompareAndSetFlag(_ context.Context, name string, prev, next int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flags[name] != prev {
		return false, nil
	}
	m.flags[name] = next
	return true, nil
}

func (m *MemoryRepository) Flag(_ context.Context, name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flags[name], nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
