package templates

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/orgadmin/pkg/gateway"
	"github.com/platinummonkey/orgadmin/pkg/hierarchy"
)

const acct = "acct-1"

func setup(t *testing.T) (*Store, *hierarchy.Store) {
	t.Helper()
	ctx := context.Background()
	gw := gateway.NewMemory()

	h := hierarchy.NewStore(gw)
	require.NoError(t, h.Initialize(ctx, acct))
	t.Cleanup(h.Close)

	require.NoError(t, h.AddEntity(ctx, acct, hierarchy.Entity{ID: "t1", Name: "Team", Type: hierarchy.TypeTeam}))
	require.NoError(t, h.AddEntity(ctx, acct, hierarchy.Entity{ID: "e1", Name: "Eve", Type: hierarchy.TypeEmployee, ParentID: "t1", Permissions: []string{"perm_1"}}))
	require.NoError(t, h.AddEntity(ctx, acct, hierarchy.Entity{ID: "e2", Name: "Bob", Type: hierarchy.TypeEmployee, ParentID: "t1"}))

	s := NewStore(gw, h, nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, h
}

func TestStore_CreateValidation(t *testing.T) {
	s, _ := setup(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   Template
	}{
		{"missing name", Template{Name: "  ", Permissions: []string{"perm_1"}}},
		{"no permissions", Template{Name: "Admin"}},
		{"only empty permissions", Template{Name: "Admin", Permissions: []string{""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(ctx, acct, tt.in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestStore_CRUD(t *testing.T) {
	s, _ := setup(t)
	ctx := context.Background()

	created, err := s.Create(ctx, acct, Template{Name: " Admin ", Permissions: []string{"perm_1", "perm_2", "perm_1"}})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Admin", created.Name)
	assert.Equal(t, []string{"perm_1", "perm_2"}, created.Permissions)
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	later := created.CreatedAt.Add(time.Hour)
	s.now = func() time.Time { return later }

	created.Name = "Administrators"
	updated, err := s.Update(ctx, acct, created)
	require.NoError(t, err)
	assert.Equal(t, later, updated.UpdatedAt)
	assert.True(t, updated.CreatedAt.Before(updated.UpdatedAt))

	_, err = s.Create(ctx, acct, Template{Name: "Readers", Permissions: []string{"perm_5"}})
	require.NoError(t, err)

	list, err := s.List(ctx, acct)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Administrators", list[0].Name)

	require.NoError(t, s.Delete(ctx, acct, created.ID))
	_, err = s.Get(ctx, acct, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, acct, created.ID), ErrNotFound)

	_, err = s.Update(ctx, acct, Template{ID: "missing", Name: "x", Permissions: []string{"p"}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ApplyAddsOnlyMissing(t *testing.T) {
	s, h := setup(t)
	ctx := context.Background()

	tpl, err := s.Create(ctx, acct, Template{Name: "Files", Permissions: []string{"perm_1", "perm_5"}})
	require.NoError(t, err)

	results, err := s.Apply(ctx, acct, tpl.ID, []string{"e1", "e2"})
	require.NoError(t, err)
	assert.Equal(t, []ApplyResult{
		{UserID: "e1", Added: []string{"perm_5"}},
		{UserID: "e2", Added: []string{"perm_1", "perm_5"}},
	}, results)

	assert.ElementsMatch(t, []string{"perm_1", "perm_5"}, h.Permissions(acct, "e1"))
	assert.ElementsMatch(t, []string{"perm_1", "perm_5"}, h.Permissions(acct, "e2"))

	results, err = s.Apply(ctx, acct, tpl.ID, []string{"e1"})
	require.NoError(t, err)
	assert.Empty(t, results[0].Added)
}

func TestStore_ApplyRejectsNonEmployees(t *testing.T) {
	s, _ := setup(t)
	ctx := context.Background()

	tpl, err := s.Create(ctx, acct, Template{Name: "Files", Permissions: []string{"perm_5"}})
	require.NoError(t, err)

	_, err = s.Apply(ctx, acct, tpl.ID, []string{"t1"})
	assert.ErrorIs(t, err, hierarchy.ErrValidation)

	results, err := s.Apply(ctx, acct, tpl.ID, []string{"e1", "ghost"})
	assert.ErrorIs(t, err, hierarchy.ErrNotFound)
	assert.Len(t, results, 1)

	_, err = s.Apply(ctx, acct, "missing", []string{"e1"})
	assert.ErrorIs(t, err, ErrNotFound)
}
