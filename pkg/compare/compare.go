// Package compare diffs and copies permissions between two employees.
package compare

import (
	"context"
	"fmt"
	"sort"

	"github.com/platinummonkey/orgadmin/pkg/catalog"
	"github.com/platinummonkey/orgadmin/pkg/hierarchy"
)

// Entities is the part of the hierarchy store the comparer reads and writes
type Entities interface {
	Entity(accountID, id string) (hierarchy.Entity, error)
	AddPermission(ctx context.Context, accountID, entityID, permissionID string) error
}

// Permissions resolves permission definitions
type Permissions interface {
	Index(ctx context.Context, accountID string) (map[string]catalog.Permission, error)
}

// Row is one permission held by at least one of the two users
type Row struct {
	Permission catalog.Permission `json:"permission"`
	InA        bool               `json:"inA"`
	InB        bool               `json:"inB"`
}

// Group holds the rows of one category
type Group struct {
	Category catalog.Category `json:"category"`
	Rows     []Row            `json:"rows"`
}

// Diff is the comparison of two users' permissions
type Diff struct {
	A      string  `json:"a"`
	B      string  `json:"b"`
	Groups []Group `json:"groups"`
	// Unknown lists held ids that have no catalog definition
	Unknown []string `json:"unknown"`
}

// Comparer compares and copies permissions between employees
type Comparer struct {
	entities    Entities
	permissions Permissions
}

// New creates a comparer
func New(entities Entities, permissions Permissions) *Comparer {
	return &Comparer{entities: entities, permissions: permissions}
}

// Diff returns the union of both users' permissions grouped by category,
// every category present and in catalog order.
func (c *Comparer) Diff(ctx context.Context, accountID, a, b string) (Diff, error) {
	userA, err := c.employee(accountID, a)
	if err != nil {
		return Diff{}, err
	}
	userB, err := c.employee(accountID, b)
	if err != nil {
		return Diff{}, err
	}
	index, err := c.permissions.Index(ctx, accountID)
	if err != nil {
		return Diff{}, err
	}

	inA := toSet(userA.Permissions)
	inB := toSet(userB.Permissions)
	union := make([]string, 0, len(inA)+len(inB))
	for id := range inA {
		union = append(union, id)
	}
	for id := range inB {
		if !inA[id] {
			union = append(union, id)
		}
	}
	sort.Strings(union)

	byCategory := map[catalog.Category][]Row{}
	diff := Diff{A: a, B: b, Unknown: []string{}}
	for _, id := range union {
		p, ok := index[id]
		if !ok {
			diff.Unknown = append(diff.Unknown, id)
			continue
		}
		byCategory[p.Category] = append(byCategory[p.Category], Row{Permission: p, InA: inA[id], InB: inB[id]})
	}
	for _, category := range catalog.Categories {
		rows := byCategory[category]
		if rows == nil {
			rows = []Row{}
		}
		diff.Groups = append(diff.Groups, Group{Category: category, Rows: rows})
	}
	return diff, nil
}

// Copy adds to the target user those of permissionIDs the source user
// holds, and returns the ids that were not already held. Ids the source
// does not hold are skipped.
func (c *Comparer) Copy(ctx context.Context, accountID, from, to string, permissionIDs []string) ([]string, error) {
	source, err := c.employee(accountID, from)
	if err != nil {
		return nil, err
	}
	target, err := c.employee(accountID, to)
	if err != nil {
		return nil, err
	}
	held := make([]string, 0, len(permissionIDs))
	for _, id := range permissionIDs {
		if source.HasPermission(id) {
			held = append(held, id)
		}
	}
	return c.add(ctx, accountID, target, held)
}

// SyncAll adds every permission of from that to lacks
func (c *Comparer) SyncAll(ctx context.Context, accountID, from, to string) ([]string, error) {
	source, err := c.employee(accountID, from)
	if err != nil {
		return nil, err
	}
	target, err := c.employee(accountID, to)
	if err != nil {
		return nil, err
	}
	return c.add(ctx, accountID, target, source.Permissions)
}

func (c *Comparer) add(ctx context.Context, accountID string, target hierarchy.Entity, ids []string) ([]string, error) {
	added := []string{}
	for _, id := range ids {
		if target.HasPermission(id) {
			continue
		}
		if err := c.entities.AddPermission(ctx, accountID, target.ID, id); err != nil {
			return added, err
		}
		target.Permissions = append(target.Permissions, id)
		added = append(added, id)
	}
	return added, nil
}

func (c *Comparer) employee(accountID, id string) (hierarchy.Entity, error) {
	e, err := c.entities.Entity(accountID, id)
	if err != nil {
		return hierarchy.Entity{}, err
	}
	if e.Type != hierarchy.TypeEmployee {
		return hierarchy.Entity{}, fmt.Errorf("%w: %s is not an employee", hierarchy.ErrValidation, id)
	}
	return e, nil
}

func toSet(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}
