package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/orgadmin/pkg/gateway"
)

const acct = "acct-1"

// failingGateway fails removes and puts for the listed ids
type failingGateway struct {
	*gateway.Memory
	failRemove map[string]bool
	failPut    map[string]bool
	removed    []string
}

var errBoom = errors.New("boom")

func (f *failingGateway) Put(ctx context.Context, accountID, collection, id string, rec gateway.Record) error {
	if f.failPut[id] {
		return errBoom
	}
	return f.Memory.Put(ctx, accountID, collection, id, rec)
}

func (f *failingGateway) Remove(ctx context.Context, accountID, collection, id string) error {
	if f.failRemove[id] {
		return errBoom
	}
	f.removed = append(f.removed, id)
	return f.Memory.Remove(ctx, accountID, collection, id)
}

type recordingRecorder struct {
	mu      sync.Mutex
	changes []PermissionChange
}

func (r *recordingRecorder) RecordPermissionChange(_ context.Context, _ string, change PermissionChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
}

func newTestStore(t *testing.T, gw gateway.Gateway, opts ...Option) *Store {
	t.Helper()
	s := NewStore(gw, opts...)
	require.NoError(t, s.Initialize(context.Background(), acct))
	t.Cleanup(s.Close)
	return s
}

func mustAdd(t *testing.T, s *Store, e Entity) {
	t.Helper()
	require.NoError(t, s.AddEntity(context.Background(), acct, e))
}

func ids(entities []Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.ID
	}
	sort.Strings(out)
	return out
}

func TestStore_Scenario(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, gateway.NewMemory())

	mustAdd(t, s, Entity{ID: "c1", Name: "C1", Type: TypeCompany})
	mustAdd(t, s, Entity{ID: "d1", Name: "D1", Type: TypeDepartment, ParentID: "c1"})
	mustAdd(t, s, Entity{ID: "e1", Name: "E1", Type: TypeEmployee, ParentID: "d1", Permissions: []string{}})

	require.NoError(t, s.AddPermission(ctx, acct, "e1", "perm_1"))
	assert.Equal(t, []string{"perm_1"}, s.Permissions(acct, "e1"))

	err := s.MoveEntity(ctx, acct, "c1", "d1")
	assert.ErrorIs(t, err, ErrCycle)
	c1, err := s.Entity(acct, "c1")
	require.NoError(t, err)
	assert.Equal(t, "", c1.ParentID)

	removed, err := s.DeleteEntity(ctx, acct, "d1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"d1", "e1"}, removed)
	assert.Empty(t, s.ChildrenOf(acct, "c1"))
	assert.Equal(t, []string{"c1"}, ids(s.Entities(acct)))
}

func TestStore_RequiresAccount(t *testing.T) {
	ctx := context.Background()
	s := NewStore(gateway.NewMemory())

	assert.ErrorIs(t, s.Initialize(ctx, ""), ErrNoActiveAccount)
	assert.ErrorIs(t, s.AddEntity(ctx, "", Entity{ID: "x", Name: "X", Type: TypeCompany}), ErrNoActiveAccount)
	assert.ErrorIs(t, s.UpdateEntity(ctx, "", Entity{ID: "x", Name: "X", Type: TypeCompany}), ErrNoActiveAccount)
	assert.ErrorIs(t, s.MoveEntity(ctx, "", "x", ""), ErrNoActiveAccount)
	assert.ErrorIs(t, s.AddPermission(ctx, "", "x", "p"), ErrNoActiveAccount)
	_, err := s.DeleteEntity(ctx, "", "x")
	assert.ErrorIs(t, err, ErrNoActiveAccount)
	_, err = s.CopyUser(ctx, "", "x", CopyRequest{Name: "Y"})
	assert.ErrorIs(t, err, ErrNoActiveAccount)
	assert.Empty(t, s.Permissions("", "x"))
}

func TestStore_AddEntityWaitsForSnapshot(t *testing.T) {
	ctx := context.Background()
	gw := gateway.NewMemory()
	s := newTestStore(t, gw)

	// a write from outside the store shows up through the subscription
	rec, err := gateway.Encode(Entity{ID: "c9", Name: "Remote", Type: TypeCompany})
	require.NoError(t, err)
	require.NoError(t, gw.Put(ctx, acct, gateway.CollectionEntities, "c9", rec))

	e, err := s.Entity(acct, "c9")
	require.NoError(t, err)
	assert.Equal(t, "Remote", e.Name)
}

func TestStore_AddEntityFailureLeavesMemoryUntouched(t *testing.T) {
	gw := &failingGateway{Memory: gateway.NewMemory(), failPut: map[string]bool{"c1": true}}
	s := newTestStore(t, gw)

	err := s.AddEntity(context.Background(), acct, Entity{ID: "c1", Name: "C1", Type: TypeCompany})
	assert.ErrorIs(t, err, ErrRemoteWrite)
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, s.Entities(acct))
}

func TestStore_AddEntityValidation(t *testing.T) {
	s := newTestStore(t, gateway.NewMemory())
	ctx := context.Background()

	tests := []struct {
		name   string
		entity Entity
		want   error
	}{
		{"blank name", Entity{ID: "x", Name: "   ", Type: TypeCompany}, ErrValidation},
		{"missing id", Entity{Name: "X", Type: TypeCompany}, ErrValidation},
		{"unknown type", Entity{ID: "x", Name: "X", Type: "division"}, ErrValidation},
		{"own parent", Entity{ID: "x", Name: "X", Type: TypeTeam, ParentID: "x"}, ErrCycle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, s.AddEntity(ctx, acct, tt.entity), tt.want)
		})
	}

	mustAdd(t, s, Entity{ID: "c1", Name: "C1", Type: TypeCompany})
	assert.ErrorIs(t, s.AddEntity(ctx, acct, Entity{ID: "c1", Name: "Again", Type: TypeCompany}), ErrValidation)
}

func TestStore_UpdateEntity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, gateway.NewMemory())
	mustAdd(t, s, Entity{ID: "c1", Name: "C1", Type: TypeCompany})
	mustAdd(t, s, Entity{ID: "e1", Name: "E1", Type: TypeEmployee, ParentID: "c1"})

	require.NoError(t, s.UpdateEntity(ctx, acct, Entity{ID: "e1", Name: "Renamed", Type: TypeEmployee, ParentID: "c1", Role: "Admin"}))
	e, err := s.Entity(acct, "e1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", e.Name)
	assert.Equal(t, "Admin", e.Role)

	assert.ErrorIs(t, s.UpdateEntity(ctx, acct, Entity{ID: "nope", Name: "N", Type: TypeTeam}), ErrNotFound)
	assert.ErrorIs(t, s.UpdateEntity(ctx, acct, Entity{ID: "e1", Name: "E1", Type: TypeTeam, ParentID: "c1"}), ErrValidation)
	assert.ErrorIs(t, s.UpdateEntity(ctx, acct, Entity{ID: "c1", Name: "C1", Type: TypeCompany, ParentID: "e1"}), ErrCycle)
}

func TestStore_UpdateFailureDoesNotAdvanceMemory(t *testing.T) {
	ctx := context.Background()
	gw := &failingGateway{Memory: gateway.NewMemory(), failPut: map[string]bool{}}
	s := newTestStore(t, gw)
	mustAdd(t, s, Entity{ID: "c1", Name: "C1", Type: TypeCompany})

	gw.failPut["c1"] = true
	err := s.UpdateEntity(ctx, acct, Entity{ID: "c1", Name: "Changed", Type: TypeCompany})
	assert.ErrorIs(t, err, ErrRemoteWrite)

	e, err := s.Entity(acct, "c1")
	require.NoError(t, err)
	assert.Equal(t, "C1", e.Name)
}

func TestStore_MoveEntity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, gateway.NewMemory())
	mustAdd(t, s, Entity{ID: "a", Name: "A", Type: TypeCompany})
	mustAdd(t, s, Entity{ID: "b", Name: "B", Type: TypeSubcompany, ParentID: "a"})
	mustAdd(t, s, Entity{ID: "c", Name: "C", Type: TypeDepartment, ParentID: "b"})
	mustAdd(t, s, Entity{ID: "d", Name: "D", Type: TypeTeam, ParentID: "c"})
	mustAdd(t, s, Entity{ID: "x", Name: "X", Type: TypeCompany})

	tests := []struct {
		name      string
		id        string
		newParent string
		want      error
	}{
		{"onto itself", "b", "b", ErrCycle},
		{"under child", "b", "c", ErrCycle},
		{"under grandchild", "a", "d", ErrCycle},
		{"unknown entity", "zz", "a", ErrNotFound},
		{"unknown parent", "d", "zz", ErrNotFound},
		{"to other company", "c", "x", nil},
		{"to top level", "d", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.MoveEntity(ctx, acct, tt.id, tt.newParent)
			if tt.want == nil {
				require.NoError(t, err)
				e, err := s.Entity(acct, tt.id)
				require.NoError(t, err)
				assert.Equal(t, tt.newParent, e.ParentID)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, []string{"c"}, ids(s.ChildrenOf(acct, "x")))
	assert.Equal(t, []string{"a", "d", "x"}, ids(s.ChildrenOf(acct, "")))
}

func TestStore_NoCycleAfterManyMoves(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, gateway.NewMemory())
	all := []string{"n0", "n1", "n2", "n3", "n4", "n5"}
	for i, id := range all {
		parent := ""
		if i > 0 {
			parent = all[i-1]
		}
		mustAdd(t, s, Entity{ID: id, Name: id, Type: TypeTeam, ParentID: parent})
	}

	for _, id := range all {
		for _, parent := range append([]string{""}, all...) {
			_ = s.MoveEntity(ctx, acct, id, parent)
		}
	}

	entities := s.Entities(acct)
	index := make(map[string]Entity, len(entities))
	for _, e := range entities {
		index[e.ID] = e
	}
	for _, e := range entities {
		steps := 0
		for p := e.ParentID; p != ""; p = index[p].ParentID {
			steps++
			require.LessOrEqual(t, steps, len(entities), "cycle through %s", e.ID)
		}
	}
}

func TestStore_AddEntityRejectsParentLoop(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, gateway.NewMemory())

	// z points at a parent that does not exist yet
	mustAdd(t, s, Entity{ID: "z", Name: "Z", Type: TypeTeam, ParentID: "x"})

	err := s.AddEntity(ctx, acct, Entity{ID: "x", Name: "X", Type: TypeDepartment, ParentID: "z"})
	assert.ErrorIs(t, err, ErrCycle)
	assert.Equal(t, []string{"z"}, ids(s.Entities(acct)))

	// x can still be added at the top level
	mustAdd(t, s, Entity{ID: "x", Name: "X", Type: TypeDepartment})
	assert.Equal(t, []string{"x"}, ids(s.ChildrenOf(acct, "")))
	assert.Equal(t, []string{"z"}, ids(s.ChildrenOf(acct, "x")))
}

func TestStore_NoCycleAfterAddsAndMoves(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, gateway.NewMemory())
	rng := rand.New(rand.NewSource(7))

	const n = 12
	pick := func() string {
		if rng.Intn(4) == 0 {
			return ""
		}
		return fmt.Sprintf("n%d", rng.Intn(n))
	}
	for step := 0; step < 200; step++ {
		id := fmt.Sprintf("n%d", rng.Intn(n))
		if _, err := s.Entity(acct, id); err != nil {
			_ = s.AddEntity(ctx, acct, Entity{ID: id, Name: id, Type: TypeTeam, ParentID: pick()})
			continue
		}
		_ = s.MoveEntity(ctx, acct, id, pick())
	}

	entities := s.Entities(acct)
	require.NotEmpty(t, entities)
	index := make(map[string]Entity, len(entities))
	for _, e := range entities {
		index[e.ID] = e
	}
	for _, e := range entities {
		steps := 0
		for p := e.ParentID; p != ""; p = index[p].ParentID {
			steps++
			require.LessOrEqual(t, steps, len(entities), "cycle through %s", e.ID)
		}
	}
}

func TestStore_ConcurrentAddsConverge(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, gateway.NewMemory())

	const writers = 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("e%02d", i)
			assert.NoError(t, s.AddEntity(ctx, acct, Entity{ID: id, Name: id, Type: TypeCompany}))
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.Entities(acct), writers)
}

func TestStore_DeleteCascade(t *testing.T) {
	ctx := context.Background()
	gw := &failingGateway{Memory: gateway.NewMemory()}
	s := newTestStore(t, gw)
	mustAdd(t, s, Entity{ID: "A", Name: "A", Type: TypeCompany})
	mustAdd(t, s, Entity{ID: "B", Name: "B", Type: TypeDepartment, ParentID: "A"})
	mustAdd(t, s, Entity{ID: "C", Name: "C", Type: TypeTeam, ParentID: "B"})
	mustAdd(t, s, Entity{ID: "D", Name: "D", Type: TypeEmployee, ParentID: "C"})
	mustAdd(t, s, Entity{ID: "Z", Name: "Z", Type: TypeCompany})

	removed, err := s.DeleteEntity(ctx, acct, "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"D", "C", "B", "A"}, removed)
	assert.Equal(t, []string{"D", "C", "B", "A"}, gw.removed)
	assert.Equal(t, []string{"Z"}, ids(s.Entities(acct)))

	_, err = s.DeleteEntity(ctx, acct, "A")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DeletePartialFailure(t *testing.T) {
	ctx := context.Background()
	gw := &failingGateway{Memory: gateway.NewMemory(), failRemove: map[string]bool{}}
	s := newTestStore(t, gw)
	mustAdd(t, s, Entity{ID: "A", Name: "A", Type: TypeCompany})
	mustAdd(t, s, Entity{ID: "B", Name: "B", Type: TypeDepartment, ParentID: "A"})
	mustAdd(t, s, Entity{ID: "C", Name: "C", Type: TypeTeam, ParentID: "B"})

	gw.failRemove["B"] = true
	removed, err := s.DeleteEntity(ctx, acct, "A")
	assert.ErrorIs(t, err, ErrRemoteWrite)
	assert.Equal(t, []string{"C"}, removed)
	assert.Equal(t, []string{"A", "B"}, ids(s.Entities(acct)))
}

func TestStore_PermissionToggleIdempotent(t *testing.T) {
	ctx := context.Background()
	rec := &recordingRecorder{}
	s := newTestStore(t, gateway.NewMemory(), WithRecorder(rec))
	mustAdd(t, s, Entity{ID: "e1", Name: "E1", Type: TypeEmployee})

	require.NoError(t, s.AddPermission(ctx, acct, "e1", "perm_1"))
	require.NoError(t, s.AddPermission(ctx, acct, "e1", "perm_1"))
	assert.Equal(t, []string{"perm_1"}, s.Permissions(acct, "e1"))

	require.NoError(t, s.RemovePermission(ctx, acct, "e1", "perm_2"))
	assert.Equal(t, []string{"perm_1"}, s.Permissions(acct, "e1"))

	require.NoError(t, s.RemovePermission(ctx, acct, "e1", "perm_1"))
	require.NoError(t, s.RemovePermission(ctx, acct, "e1", "perm_1"))
	assert.Empty(t, s.Permissions(acct, "e1"))

	require.Len(t, rec.changes, 2)
	assert.Equal(t, PermissionAdded, rec.changes[0].Action)
	assert.Equal(t, PermissionRemoved, rec.changes[1].Action)
	assert.Equal(t, "E1", rec.changes[1].Entity.Name)

	assert.ErrorIs(t, s.AddPermission(ctx, acct, "nope", "perm_1"), ErrNotFound)
	assert.Empty(t, s.Permissions(acct, "nope"))
}

func TestStore_PermissionWriteFailure(t *testing.T) {
	ctx := context.Background()
	gw := &failingGateway{Memory: gateway.NewMemory(), failPut: map[string]bool{}}
	rec := &recordingRecorder{}
	s := newTestStore(t, gw, WithRecorder(rec))
	mustAdd(t, s, Entity{ID: "e1", Name: "E1", Type: TypeEmployee})

	gw.failPut["e1"] = true
	assert.ErrorIs(t, s.AddPermission(ctx, acct, "e1", "perm_1"), ErrRemoteWrite)
	assert.Empty(t, s.Permissions(acct, "e1"))
	assert.Empty(t, rec.changes)
}

func TestStore_CopyUserIndependence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, gateway.NewMemory())
	mustAdd(t, s, Entity{ID: "t1", Name: "Team", Type: TypeTeam})
	mustAdd(t, s, Entity{
		ID: "a", Name: "A", Type: TypeEmployee, ParentID: "t1", Role: "Dev",
		Permissions: []string{"perm_1", "perm_2"},
		Metadata:    Metadata{"email": String("a@example.com")},
	})

	newID, err := s.CopyUser(ctx, acct, "a", CopyRequest{Name: "B"})
	require.NoError(t, err)
	require.NotEmpty(t, newID)

	b, err := s.Entity(acct, newID)
	require.NoError(t, err)
	assert.Equal(t, "B", b.Name)
	assert.Equal(t, "Dev", b.Role)
	assert.Equal(t, "t1", b.ParentID)
	assert.Equal(t, TypeEmployee, b.Type)
	assert.Equal(t, []string{"perm_1", "perm_2"}, b.Permissions)
	email, _ := b.Metadata["email"].Str()
	assert.Equal(t, "a@example.com", email)

	require.NoError(t, s.AddPermission(ctx, acct, newID, "perm_3"))
	require.NoError(t, s.RemovePermission(ctx, acct, newID, "perm_1"))
	assert.Equal(t, []string{"perm_1", "perm_2"}, s.Permissions(acct, "a"))

	require.NoError(t, s.RemovePermission(ctx, acct, "a", "perm_2"))
	assert.Equal(t, []string{"perm_2", "perm_3"}, s.Permissions(acct, newID))

	_, err = s.CopyUser(ctx, acct, "t1", CopyRequest{Name: "X"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = s.CopyUser(ctx, acct, "missing", CopyRequest{Name: "X"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.CopyUser(ctx, acct, "a", CopyRequest{Name: " "})
	assert.ErrorIs(t, err, ErrValidation)

	other, err := s.CopyUser(ctx, acct, "a", CopyRequest{Name: "C", Role: "Lead"})
	require.NoError(t, err)
	c, err := s.Entity(acct, other)
	require.NoError(t, err)
	assert.Equal(t, "Lead", c.Role)
}

func TestStore_ReturnedValuesAreCopies(t *testing.T) {
	s := newTestStore(t, gateway.NewMemory())
	mustAdd(t, s, Entity{ID: "e1", Name: "E1", Type: TypeEmployee, Permissions: []string{"perm_1"}})

	e, err := s.Entity(acct, "e1")
	require.NoError(t, err)
	e.Permissions[0] = "mutated"

	perms := s.Permissions(acct, "e1")
	perms[0] = "mutated"

	assert.Equal(t, []string{"perm_1"}, s.Permissions(acct, "e1"))
}

func TestStore_ChildrenOfTopLevel(t *testing.T) {
	s := newTestStore(t, gateway.NewMemory())
	mustAdd(t, s, Entity{ID: "c1", Name: "C1", Type: TypeCompany})
	mustAdd(t, s, Entity{ID: "c2", Name: "C2", Type: TypeCompany})
	mustAdd(t, s, Entity{ID: "d1", Name: "D1", Type: TypeDepartment, ParentID: "c1"})
	// orphan: its parent does not exist
	mustAdd(t, s, Entity{ID: "o1", Name: "O1", Type: TypeTeam, ParentID: "gone"})

	assert.Equal(t, []string{"c1", "c2"}, ids(s.ChildrenOf(acct, "")))
	assert.Equal(t, []string{"d1"}, ids(s.ChildrenOf(acct, "c1")))
	assert.Empty(t, s.ChildrenOf(acct, "c2"))
	assert.Equal(t, []string{"o1"}, ids(s.ChildrenOf(acct, "gone")))
}

func TestStore_Loading(t *testing.T) {
	s := NewStore(gateway.NewMemory())
	defer s.Close()

	assert.True(t, s.Loading(acct))
	require.NoError(t, s.Initialize(context.Background(), acct))
	assert.False(t, s.Loading(acct))
	require.NoError(t, s.Initialize(context.Background(), acct))
	assert.Equal(t, []string{acct}, s.Accounts())
}

func TestStore_AccountsAreIsolated(t *testing.T) {
	ctx := context.Background()
	gw := gateway.NewMemory()
	s := newTestStore(t, gw)
	require.NoError(t, s.Initialize(ctx, "acct-2"))

	mustAdd(t, s, Entity{ID: "c1", Name: "C1", Type: TypeCompany})
	require.NoError(t, s.AddEntity(ctx, "acct-2", Entity{ID: "c2", Name: "C2", Type: TypeCompany}))

	assert.Equal(t, []string{"c1"}, ids(s.Entities(acct)))
	assert.Equal(t, []string{"c2"}, ids(s.Entities("acct-2")))
}
