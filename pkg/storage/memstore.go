package storage

import (
	"sync"
)

var (
	_ DB  = (*MemStore)(nil)
	_ Txn = (*memTxn)(nil)
)

// MemStore is an in memory DB, mostly for tests.
type MemStore struct {
	mu sync.RWMutex

	objects map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{
		objects: make(map[string][]byte),
	}
}

func (m *MemStore) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.objects[string(key)]
	if !ok {
		return nil, ErrNotFound
	}

	return append([]byte(nil), d...), nil
}

func (m *MemStore) Txn() Txn {
	return &memTxn{store: m, writes: make(map[string][]byte)}
}

func (m *MemStore) Close() error {
	return nil
}

// memTxn buffers writes. A nil value in writes is a delete.
type memTxn struct {
	store  *MemStore
	writes map[string][]byte
	done   bool
}

func (t *memTxn) Get(key []byte) ([]byte, error) {
	if d, ok := t.writes[string(key)]; ok {
		if d == nil {
			return nil, ErrNotFound
		}
		return append([]byte(nil), d...), nil
	}

	return t.store.Get(key)
}

func (t *memTxn) Set(key, value []byte) error {
	if t.done {
		return ErrTxnDone
	}

	t.writes[string(key)] = append(make([]byte, 0, len(value)), value...)
	return nil
}

func (t *memTxn) Delete(key []byte) error {
	if t.done {
		return ErrTxnDone
	}

	t.writes[string(key)] = nil
	return nil
}

func (t *memTxn) Commit() error {
	if t.done {
		return ErrTxnDone
	}
	t.done = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for k, v := range t.writes {
		if v == nil {
			delete(t.store.objects, k)
		} else {
			t.store.objects[k] = v
		}
	}

	return nil
}

func (t *memTxn) Discard() {
	t.done = true
	t.writes = nil
}
