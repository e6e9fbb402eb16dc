package redisstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/orgadmin/pkg/gateway"
)

// setupStore creates a miniredis instance and returns the store and cleanup function
func setupStore(t *testing.T) (*Store, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	store, err := New(context.Background(), Config{URL: "redis://" + mr.Addr(), PoolSize: 5}, nil)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create store: %v", err)
	}

	return store, mr, func() {
		store.Close()
		mr.Close()
	}
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(context.Background(), Config{URL: "not-a-url"}, nil)
	assert.Error(t, err)
}

func TestStore_PutGetListRemove(t *testing.T) {
	store, mr, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "acct", gateway.CollectionEntities, "b", gateway.Record(`{"id":"b"}`)))
	require.NoError(t, store.Put(ctx, "acct", gateway.CollectionEntities, "a", gateway.Record(`{"id":"a"}`)))

	assert.True(t, mr.Exists("orgadmin:doc:acct:entities"))

	rec, err := store.Get(ctx, "acct", gateway.CollectionEntities, "a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a"}`, string(rec))

	recs, err := store.List(ctx, "acct", gateway.CollectionEntities)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.JSONEq(t, `{"id":"a"}`, string(recs[0]))

	require.NoError(t, store.Remove(ctx, "acct", gateway.CollectionEntities, "a"))
	_, err = store.Get(ctx, "acct", gateway.CollectionEntities, "a")
	assert.ErrorIs(t, err, gateway.ErrNotFound)

	accounts, err := store.Accounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"acct"}, accounts)
}

func TestStore_RequiresAccount(t *testing.T) {
	store, _, cleanup := setupStore(t)
	defer cleanup()

	err := store.Put(context.Background(), "", gateway.CollectionEntities, "a", gateway.Record(`{}`))
	assert.ErrorIs(t, err, gateway.ErrNoAccount)
}

func TestStore_RedisDown(t *testing.T) {
	store, mr, cleanup := setupStore(t)
	defer cleanup()

	mr.Close()
	err := store.Put(context.Background(), "acct", gateway.CollectionEntities, "a", gateway.Record(`{}`))
	assert.Error(t, err)
}

func TestStore_Subscribe(t *testing.T) {
	store, _, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "acct", gateway.CollectionEntities, "a", gateway.Record(`{"id":"a"}`)))

	var mu sync.Mutex
	var sizes []int
	unsub, err := store.Subscribe(ctx, "acct", gateway.CollectionEntities, func(recs []gateway.Record) {
		mu.Lock()
		defer mu.Unlock()
		sizes = append(sizes, len(recs))
	})
	require.NoError(t, err)
	defer unsub()

	mu.Lock()
	assert.Equal(t, []int{1}, sizes)
	mu.Unlock()

	require.NoError(t, store.Put(ctx, "acct", gateway.CollectionEntities, "b", gateway.Record(`{"id":"b"}`)))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sizes) >= 2 && sizes[len(sizes)-1] == 2
	}, 2*time.Second, 10*time.Millisecond)
}
