package kv

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRow struct {
	value     []byte
	group     string
	dueAt     time.Time
	expiresAt time.Time
}

// MemoryStore is an in-process Store for tests, since the example pack
// carries no DynamoDB local-container test-double library (SPEC_FULL.md
// §8). It reproduces DynamoDBStore's expiry and due-listing semantics
// without a real table.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]memoryRow
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]memoryRow)}
}

func (m *MemoryStore) Put(ctx context.Context, key, groupPrefix string, dueAt time.Time, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.rows[key] = memoryRow{value: cp, group: groupPrefix, dueAt: dueAt, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[key]
	if !ok || time.Now().After(row.expiresAt) {
		return nil, false, nil
	}
	cp := make([]byte, len(row.value))
	copy(cp, row.value)
	return cp, true, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, key)
	return nil
}

func (m *MemoryStore) ListDue(ctx context.Context, groupPrefix string, before time.Time, pageSize, maxPages int) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var matched []Item
	for key, row := range m.rows {
		if row.group != groupPrefix || now.After(row.expiresAt) {
			continue
		}
		if row.dueAt.After(before) {
			continue
		}
		matched = append(matched, Item{Key: key, DueAt: row.dueAt})
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].DueAt.Before(matched[j].DueAt) })

	limit := pageSize * maxPages
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}
