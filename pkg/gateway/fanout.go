package gateway

import (
	"sort"
	"sync"
)

// Fanout tracks in-process subscribers by account/collection key.
// Deliveries for one key are serialized from snapshot load to the last
// subscriber call, so no subscriber sees an older snapshot after a newer one.
type Fanout struct {
	mu       sync.Mutex
	next     int
	subs     map[string]map[int]SnapshotFunc
	delivery map[string]*sync.Mutex
}

// LoadFunc reads the current snapshot of a collection
type LoadFunc func() ([]Record, error)

// Key builds the fanout key for an account collection
func Key(accountID, collection string) string {
	return accountID + "/" + collection
}

// Add registers fn under key and returns a function that removes it
func (f *Fanout) Add(key string, fn SnapshotFunc) Unsubscribe {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[string]map[int]SnapshotFunc)
	}
	if f.subs[key] == nil {
		f.subs[key] = make(map[int]SnapshotFunc)
	}
	f.next++
	id := f.next
	f.subs[key][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs[key], id)
			if len(f.subs[key]) == 0 {
				delete(f.subs, key)
			}
		})
	}
}

// Subscribers returns the functions registered under key in registration order
func (f *Fanout) Subscribers(key string) []SnapshotFunc {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int, 0, len(f.subs[key]))
	for id := range f.subs[key] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]SnapshotFunc, len(ids))
	for i, id := range ids {
		out[i] = f.subs[key][id]
	}
	return out
}

// Notify loads the snapshot for key and passes it to every subscriber.
// Nothing is loaded when key has no subscribers.
func (f *Fanout) Notify(key string, load LoadFunc) error {
	l := f.deliveryLock(key)
	l.Lock()
	defer l.Unlock()

	subs := f.Subscribers(key)
	if len(subs) == 0 {
		return nil
	}
	snapshot, err := load()
	if err != nil {
		return err
	}
	for _, fn := range subs {
		fn(snapshot)
	}
	return nil
}

// Replay passes the current snapshot for key to fn alone, in order with
// Notify.
func (f *Fanout) Replay(key string, fn SnapshotFunc, load LoadFunc) error {
	l := f.deliveryLock(key)
	l.Lock()
	defer l.Unlock()

	snapshot, err := load()
	if err != nil {
		return err
	}
	fn(snapshot)
	return nil
}

func (f *Fanout) deliveryLock(key string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delivery == nil {
		f.delivery = make(map[string]*sync.Mutex)
	}
	l, ok := f.delivery[key]
	if !ok {
		l = &sync.Mutex{}
		f.delivery[key] = l
	}
	return l
}

// Keys returns every key with at least one subscriber
func (f *Fanout) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.subs))
	for key := range f.subs {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
