package gateway

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is a process-local Gateway. Subscribers are notified
// synchronously, after the data lock is released, by the writing goroutine.
type Memory struct {
	mu     sync.RWMutex
	data   map[string]map[string]Record
	fanout Fanout
}

// NewMemory creates an empty in-memory gateway
func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string]Record)}
}

// Put stores a copy of rec
func (m *Memory) Put(ctx context.Context, accountID, collection, id string, rec Record) error {
	if err := checkAccount(accountID); err != nil {
		return err
	}
	clean, err := Clean(rec)
	if err != nil {
		return err
	}

	key := Key(accountID, collection)
	m.mu.Lock()
	docs, ok := m.data[key]
	if !ok {
		docs = make(map[string]Record)
		m.data[key] = docs
	}
	docs[id] = clean
	m.mu.Unlock()

	m.notify(key)
	return nil
}

// Get returns a copy of the stored document
func (m *Memory) Get(ctx context.Context, accountID, collection, id string) (Record, error) {
	if err := checkAccount(accountID); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.data[Key(accountID, collection)][id]
	if !ok {
		return nil, ErrNotFound
	}
	return append(Record(nil), rec...), nil
}

// List returns every document in the collection sorted by id
func (m *Memory) List(ctx context.Context, accountID, collection string) ([]Record, error) {
	if err := checkAccount(accountID); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked(Key(accountID, collection)), nil
}

// Remove deletes a document. Removing a missing id is not an error.
func (m *Memory) Remove(ctx context.Context, accountID, collection, id string) error {
	if err := checkAccount(accountID); err != nil {
		return err
	}
	key := Key(accountID, collection)
	m.mu.Lock()
	_, existed := m.data[key][id]
	delete(m.data[key], id)
	m.mu.Unlock()

	if existed {
		m.notify(key)
	}
	return nil
}

// Subscribe registers fn and calls it with the current snapshot
func (m *Memory) Subscribe(ctx context.Context, accountID, collection string, fn SnapshotFunc) (Unsubscribe, error) {
	if err := checkAccount(accountID); err != nil {
		return nil, err
	}
	key := Key(accountID, collection)
	unsub := m.fanout.Add(key, fn)
	_ = m.fanout.Replay(key, fn, m.loader(key))
	return unsub, nil
}

// Accounts returns every account id holding at least one document
func (m *Memory) Accounts(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for key, docs := range m.data {
		account := key[:strings.LastIndex(key, "/")]
		if len(docs) > 0 && !seen[account] {
			seen[account] = true
			out = append(out, account)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) notify(key string) {
	_ = m.fanout.Notify(key, m.loader(key))
}

func (m *Memory) loader(key string) LoadFunc {
	return func() ([]Record, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.snapshotLocked(key), nil
	}
}

func (m *Memory) snapshotLocked(key string) []Record {
	docs := make([]Document, 0, len(m.data[key]))
	for id, rec := range m.data[key] {
		docs = append(docs, Document{ID: id, Body: append(Record(nil), rec...)})
	}
	return Sorted(docs)
}
