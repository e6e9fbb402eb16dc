package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/orgadmin/pkg/gateway"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_CRUD(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "acct", gateway.CollectionPermissions, "perm_2", gateway.Record(`{"id":"perm_2"}`)))
	require.NoError(t, store.Put(ctx, "acct", gateway.CollectionPermissions, "perm_1", gateway.Record(`{"id":"perm_1"}`)))
	require.NoError(t, store.Put(ctx, "acct", gateway.CollectionPermissions, "perm_1", gateway.Record(`{"id":"perm_1","name":"x"}`)))

	rec, err := store.Get(ctx, "acct", gateway.CollectionPermissions, "perm_1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"perm_1","name":"x"}`, string(rec))

	recs, err := store.List(ctx, "acct", gateway.CollectionPermissions)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.JSONEq(t, `{"id":"perm_1","name":"x"}`, string(recs[0]))

	require.NoError(t, store.Remove(ctx, "acct", gateway.CollectionPermissions, "perm_1"))
	_, err = store.Get(ctx, "acct", gateway.CollectionPermissions, "perm_1")
	assert.ErrorIs(t, err, gateway.ErrNotFound)
}

func TestStore_SubscribeInProcess(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	var sizes []int
	unsub, err := store.Subscribe(ctx, "acct", gateway.CollectionEntities, func(recs []gateway.Record) {
		sizes = append(sizes, len(recs))
	})
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "acct", gateway.CollectionEntities, "a", gateway.Record(`{}`)))
	require.NoError(t, store.Remove(ctx, "acct", gateway.CollectionEntities, "missing"))
	require.NoError(t, store.Remove(ctx, "acct", gateway.CollectionEntities, "a"))
	unsub()
	require.NoError(t, store.Put(ctx, "acct", gateway.CollectionEntities, "b", gateway.Record(`{}`)))

	assert.Equal(t, []int{0, 1, 0}, sizes)
}

func TestStore_PersistsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.db")
	ctx := context.Background()

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "acct", gateway.CollectionSettings, "appSettings", gateway.Record(`{"autoSave":true}`)))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	rec, err := reopened.Get(ctx, "acct", gateway.CollectionSettings, "appSettings")
	require.NoError(t, err)
	assert.JSONEq(t, `{"autoSave":true}`, string(rec))

	accounts, err := reopened.Accounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"acct"}, accounts)
}

func TestStore_SnapshotFailureAfterCommit(t *testing.T) {
	log, hook := test.NewNullLogger()
	store, err := Open(":memory:", WithLogger(log))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	var calls int
	_, err = store.Subscribe(ctx, "acct", gateway.CollectionEntities, func([]gateway.Record) { calls++ })
	require.NoError(t, err)

	// a row that cannot be scanned makes every snapshot load fail
	_, err = store.DB().Exec(`DROP TABLE documents`)
	require.NoError(t, err)
	_, err = store.DB().Exec(`CREATE TABLE documents (
		account_id TEXT NOT NULL,
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		body       TEXT,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (account_id, collection, id)
	)`)
	require.NoError(t, err)
	_, err = store.DB().Exec(`INSERT INTO documents (account_id, collection, id, body) VALUES ('acct', ?, 'bad', NULL)`, gateway.CollectionEntities)
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "acct", gateway.CollectionEntities, "a", gateway.Record(`{"id":"a"}`)))
	rec, err := store.Get(ctx, "acct", gateway.CollectionEntities, "a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a"}`, string(rec))

	require.NoError(t, store.Remove(ctx, "acct", gateway.CollectionEntities, "a"))

	assert.Equal(t, 1, calls)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "failed to load snapshot after write", hook.LastEntry().Message)
	assert.Len(t, hook.AllEntries(), 2)
}
