package storage

import (
	"context"
	"sync"
	"sync/atomic"
)

// MemoryStore is the default Store: process-local, lost on restart. Used
// whenever Redis persistence is not configured.
type MemoryStore struct {
	counter int64 // atomic

	mu  sync.Mutex
	log []TransactionRecord
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) NextTransactionID(ctx context.Context) (int, error) {
	return int(atomic.AddInt64(&m.counter, 1)), nil
}

func (m *MemoryStore) AppendCompletedTransaction(ctx context.Context, rec TransactionRecord) error {
	m.mu.Lock()
	m.log = append(m.log, rec)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) RecentCompletedTransactions(ctx context.Context, limit int) ([]TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.log)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]TransactionRecord, limit)
	for i := 0; i < limit; i++ {
		out[i] = m.log[n-1-i]
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
