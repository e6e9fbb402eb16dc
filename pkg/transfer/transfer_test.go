package transfer

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/orgadmin/pkg/catalog"
	"github.com/platinummonkey/orgadmin/pkg/gateway"
	"github.com/platinummonkey/orgadmin/pkg/gateway/sqlitestore"
	"github.com/platinummonkey/orgadmin/pkg/hierarchy"
	"github.com/platinummonkey/orgadmin/pkg/settings"
)

const acct = "acct-1"

type harness struct {
	svc   *Service
	gw    *gateway.Memory
	store *hierarchy.Store
}

func newHarness(t *testing.T, local gateway.Gateway) harness {
	t.Helper()
	gw := gateway.NewMemory()
	store := hierarchy.NewStore(gw)
	t.Cleanup(store.Close)

	svc := NewService(Config{
		Remote:   gw,
		Local:    local,
		Store:    store,
		Catalog:  catalog.New(gw, nil),
		Settings: settings.NewStore(gw, nil, nil),
	})
	return harness{svc: svc, gw: gw, store: store}
}

func sampleBundle() Bundle {
	return Bundle{
		Entities: []hierarchy.Entity{
			{ID: "c1", Name: "Corp", Type: hierarchy.TypeCompany},
			{ID: "d1", Name: "IT", Type: hierarchy.TypeDepartment, ParentID: "c1"},
			{ID: "e1", Name: "Eve", Type: hierarchy.TypeEmployee, ParentID: "d1", Role: "Admin",
				Permissions: []string{"perm_1"}, Metadata: hierarchy.Metadata{"floor": hierarchy.Number(3)}},
		},
		Settings:    settings.Settings{AutoSave: false, DarkModeDefault: true, ShowPermissionBadges: true},
		Permissions: catalog.InitialDefaults(),
	}
}

func TestService_ExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newHarness(t, nil)
	require.NoError(t, src.svc.Import(ctx, acct, sampleBundle()))

	var buf bytes.Buffer
	require.NoError(t, src.svc.WriteTo(ctx, acct, &buf))

	decoded, err := Decode(&buf)
	require.NoError(t, err)

	dst := newHarness(t, nil)
	require.NoError(t, dst.svc.Import(ctx, acct, decoded))

	want, err := src.svc.Export(ctx, acct)
	require.NoError(t, err)
	got, err := dst.svc.Export(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Len(t, got.Entities, 3)
	assert.True(t, got.Settings.DarkModeDefault)
}

func TestService_ImportReplacesAndResyncsStore(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	require.NoError(t, h.store.Initialize(ctx, acct))
	require.NoError(t, h.store.AddEntity(ctx, acct, hierarchy.Entity{ID: "old", Name: "Old", Type: hierarchy.TypeCompany}))

	require.NoError(t, h.svc.Import(ctx, acct, sampleBundle()))

	ids := []string{}
	for _, e := range h.store.Entities(acct) {
		ids = append(ids, e.ID)
	}
	assert.ElementsMatch(t, []string{"c1", "d1", "e1"}, ids)
}

func TestBundle_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Bundle)
	}{
		{"duplicate id", func(b *Bundle) { b.Entities = append(b.Entities, b.Entities[0]) }},
		{"cycle", func(b *Bundle) { b.Entities[0].ParentID = "e1" }},
		{"invalid entity", func(b *Bundle) { b.Entities[1].Name = "" }},
		{"permission without id", func(b *Bundle) { b.Permissions[0].ID = "" }},
		{"invalid permission", func(b *Bundle) { b.Permissions[0].Category = "misc" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := sampleBundle()
			tt.mutate(&b)
			assert.ErrorIs(t, b.Validate(), ErrInvalidBundle)
		})
	}
	assert.NoError(t, sampleBundle().Validate())

	_, err := Decode(bytes.NewBufferString("{"))
	assert.ErrorIs(t, err, ErrInvalidBundle)
}

func TestService_InitializeDefaultsOnlyWhenEmpty(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	seeded, err := h.svc.InitializeDefaults(ctx, acct)
	require.NoError(t, err)
	assert.True(t, seeded)

	perms, err := h.gw.List(ctx, acct, gateway.CollectionPermissions)
	require.NoError(t, err)
	assert.Len(t, perms, len(catalog.InitialDefaults()))

	require.NoError(t, h.store.AddEntity(ctx, acct, hierarchy.Entity{ID: "c1", Name: "Corp", Type: hierarchy.TypeCompany}))
	seeded, err = h.svc.InitializeDefaults(ctx, acct)
	require.NoError(t, err)
	assert.False(t, seeded)
}

func TestService_MigrateLocal(t *testing.T) {
	ctx := context.Background()

	local, err := sqlitestore.Open(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })

	localSvc := newHarness(t, nil)
	require.NoError(t, localSvc.svc.Import(ctx, acct, sampleBundle()))
	b, err := localSvc.svc.Export(ctx, acct)
	require.NoError(t, err)
	for _, e := range b.Entities {
		rec, err := gateway.Encode(e)
		require.NoError(t, err)
		require.NoError(t, local.Put(ctx, acct, gateway.CollectionEntities, e.ID, rec))
	}
	rec, err := gateway.Encode(b.Settings)
	require.NoError(t, err)
	require.NoError(t, local.Put(ctx, acct, gateway.CollectionSettings, settings.DocumentID, rec))

	h := newHarness(t, local)
	require.NoError(t, h.svc.Bootstrap(ctx, acct))

	assert.Len(t, h.store.Entities(acct), 3)
	assert.False(t, h.store.Loading(acct))
	got, err := h.svc.Export(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, b.Settings, got.Settings)
	assert.Empty(t, got.Permissions)

	_, err = newHarness(t, nil).svc.MigrateLocal(ctx, acct)
	assert.ErrorIs(t, err, ErrNoLocalStore)
}

func TestService_ResetAll(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	require.NoError(t, h.svc.Import(ctx, acct, sampleBundle()))

	require.NoError(t, h.svc.ResetAll(ctx, acct))

	b, err := h.svc.Export(ctx, acct)
	require.NoError(t, err)
	assert.Empty(t, b.Entities)
	assert.Len(t, b.Permissions, len(catalog.Defaults()))
	assert.Equal(t, settings.Defaults(), b.Settings)
}
