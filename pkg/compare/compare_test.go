package compare

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/orgadmin/pkg/catalog"
	"github.com/platinummonkey/orgadmin/pkg/gateway"
	"github.com/platinummonkey/orgadmin/pkg/hierarchy"
)

const acct = "acct-1"

func setup(t *testing.T) (*Comparer, *hierarchy.Store) {
	t.Helper()
	ctx := context.Background()
	gw := gateway.NewMemory()

	perms := catalog.New(gw, nil)
	require.NoError(t, perms.ResetToDefaults(ctx, acct))

	h := hierarchy.NewStore(gw)
	require.NoError(t, h.Initialize(ctx, acct))
	t.Cleanup(h.Close)

	require.NoError(t, h.AddEntity(ctx, acct, hierarchy.Entity{ID: "t1", Name: "Team", Type: hierarchy.TypeTeam}))
	require.NoError(t, h.AddEntity(ctx, acct, hierarchy.Entity{ID: "a", Name: "Anna", Type: hierarchy.TypeEmployee, ParentID: "t1", Permissions: []string{"perm_1", "perm_5", "perm_gone"}}))
	require.NoError(t, h.AddEntity(ctx, acct, hierarchy.Entity{ID: "b", Name: "Ben", Type: hierarchy.TypeEmployee, ParentID: "t1", Permissions: []string{"perm_5", "perm_7"}}))

	return New(h, perms), h
}

func TestComparer_Diff(t *testing.T) {
	c, _ := setup(t)

	diff, err := c.Diff(context.Background(), acct, "a", "b")
	require.NoError(t, err)
	require.Len(t, diff.Groups, len(catalog.Categories))
	assert.Equal(t, []string{"perm_gone"}, diff.Unknown)

	flags := map[string][2]bool{}
	for _, g := range diff.Groups {
		for _, r := range g.Rows {
			assert.Equal(t, g.Category, r.Permission.Category)
			flags[r.Permission.ID] = [2]bool{r.InA, r.InB}
		}
	}
	assert.Equal(t, map[string][2]bool{
		"perm_1": {true, false},
		"perm_5": {true, true},
		"perm_7": {false, true},
	}, flags)
}

func TestComparer_DiffRequiresEmployees(t *testing.T) {
	c, _ := setup(t)

	_, err := c.Diff(context.Background(), acct, "a", "t1")
	assert.ErrorIs(t, err, hierarchy.ErrValidation)

	_, err = c.Diff(context.Background(), acct, "a", "ghost")
	assert.ErrorIs(t, err, hierarchy.ErrNotFound)
}

func TestComparer_CopyAndSync(t *testing.T) {
	c, h := setup(t)
	ctx := context.Background()

	added, err := c.Copy(ctx, acct, "a", "b", []string{"perm_1", "perm_5"})
	require.NoError(t, err)
	assert.Equal(t, []string{"perm_1"}, added)
	assert.ElementsMatch(t, []string{"perm_1", "perm_5", "perm_7"}, h.Permissions(acct, "b"))

	added, err = c.SyncAll(ctx, acct, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"perm_7"}, added)
	assert.ElementsMatch(t, []string{"perm_1", "perm_5", "perm_7", "perm_gone"}, h.Permissions(acct, "a"))

	added, err = c.SyncAll(ctx, acct, "b", "a")
	require.NoError(t, err)
	assert.Empty(t, added)
}

func TestComparer_CopySkipsPermissionsSourceLacks(t *testing.T) {
	c, h := setup(t)
	ctx := context.Background()

	added, err := c.Copy(ctx, acct, "a", "b", []string{"perm_3", "perm_invented", "perm_1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"perm_1"}, added)
	assert.ElementsMatch(t, []string{"perm_1", "perm_5", "perm_7"}, h.Permissions(acct, "b"))

	added, err = c.Copy(ctx, acct, "a", "b", []string{"perm_7"})
	require.NoError(t, err)
	assert.Empty(t, added)
}
