// Package stats aggregates permission usage over an account's hierarchy.
// Ids held by entities that have no catalog definition are ignored by the
// permission views and still counted in per-user totals.
package stats

import (
	"context"
	"math"
	"sort"

	"github.com/platinummonkey/orgadmin/pkg/catalog"
	"github.com/platinummonkey/orgadmin/pkg/hierarchy"
)

const (
	// NoRole labels employees without a role
	NoRole = "Keine Rolle"
	// NoDepartment labels employees without a parent
	NoDepartment = "Keine Abteilung"
)

// PermissionUsage is how many employees hold one permission
type PermissionUsage struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Category   catalog.Category `json:"category"`
	Count      int              `json:"count"`
	Percentage int              `json:"percentage"`
}

// CategoryTotal sums the usage of every permission in a category
type CategoryTotal struct {
	Category catalog.Category `json:"category"`
	Total    int              `json:"total"`
}

// UserStats summarizes one employee
type UserStats struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Role            string `json:"role"`
	Department      string `json:"department"`
	PermissionCount int    `json:"permissionCount"`
}

// DepartmentStats summarizes the employees of a department's teams
type DepartmentStats struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	EmployeeCount    int     `json:"employeeCount"`
	TotalPermissions int     `json:"totalPermissions"`
	AvgPermissions   float64 `json:"avgPermissions"`
}

func employees(entities []hierarchy.Entity) []hierarchy.Entity {
	out := []hierarchy.Entity{}
	for _, e := range entities {
		if e.Type == hierarchy.TypeEmployee {
			out = append(out, e)
		}
	}
	return out
}

func byID(entities []hierarchy.Entity) map[string]hierarchy.Entity {
	out := make(map[string]hierarchy.Entity, len(entities))
	for _, e := range entities {
		out[e.ID] = e
	}
	return out
}

// Usage counts the employees holding each permission, optionally
// restricted to one category, sorted by count descending.
func Usage(entities []hierarchy.Entity, perms []catalog.Permission, category catalog.Category) []PermissionUsage {
	staff := employees(entities)
	out := []PermissionUsage{}
	for _, p := range perms {
		if category != "" && p.Category != category {
			continue
		}
		count := 0
		for _, e := range staff {
			if e.HasPermission(p.ID) {
				count++
			}
		}
		pct := 0
		if len(staff) > 0 {
			pct = int(math.Round(float64(count) / float64(len(staff)) * 100))
		}
		out = append(out, PermissionUsage{ID: p.ID, Name: p.Name, Category: p.Category, Count: count, Percentage: pct})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// Categories sums usage per category in catalog order
func Categories(entities []hierarchy.Entity, perms []catalog.Permission) []CategoryTotal {
	totals := map[catalog.Category]int{}
	for _, u := range Usage(entities, perms, "") {
		totals[u.Category] += u.Count
	}
	out := make([]CategoryTotal, 0, len(catalog.Categories))
	for _, c := range catalog.Categories {
		out = append(out, CategoryTotal{Category: c, Total: totals[c]})
	}
	return out
}

// Users summarizes every employee, sorted by permission count descending.
// A non-empty departmentID keeps only employees whose team belongs to it.
func Users(entities []hierarchy.Entity, departmentID string) []UserStats {
	index := byID(entities)
	out := []UserStats{}
	for _, e := range employees(entities) {
		parent, hasParent := index[e.ParentID]
		if departmentID != "" && (!hasParent || parent.ParentID != departmentID) {
			continue
		}

		role := e.Role
		if role == "" {
			role = NoRole
		}
		department := NoDepartment
		if hasParent {
			department = parent.Name
		}
		out = append(out, UserStats{
			ID:              e.ID,
			Name:            e.Name,
			Role:            role,
			Department:      department,
			PermissionCount: len(e.Permissions),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PermissionCount > out[j].PermissionCount })
	return out
}

// Departments summarizes each department over the employees of its teams,
// sorted by average descending.
func Departments(entities []hierarchy.Entity) []DepartmentStats {
	index := byID(entities)
	stats := map[string]*DepartmentStats{}
	out := []*DepartmentStats{}
	for _, e := range entities {
		if e.Type == hierarchy.TypeDepartment {
			d := &DepartmentStats{ID: e.ID, Name: e.Name}
			stats[e.ID] = d
			out = append(out, d)
		}
	}

	for _, e := range employees(entities) {
		team, ok := index[e.ParentID]
		if !ok {
			continue
		}
		if d, ok := stats[team.ParentID]; ok {
			d.EmployeeCount++
			d.TotalPermissions += len(e.Permissions)
		}
	}

	result := make([]DepartmentStats, 0, len(out))
	for _, d := range out {
		if d.EmployeeCount > 0 {
			d.AvgPermissions = math.Round(float64(d.TotalPermissions)/float64(d.EmployeeCount)*10) / 10
		}
		result = append(result, *d)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].AvgPermissions > result[j].AvgPermissions })
	return result
}

// EntitySource lists an account's entities
type EntitySource interface {
	Entities(accountID string) []hierarchy.Entity
}

// PermissionSource lists an account's permissions
type PermissionSource interface {
	List(ctx context.Context, accountID string) ([]catalog.Permission, error)
}

// Service computes statistics from live account state
type Service struct {
	entities    EntitySource
	permissions PermissionSource
}

// NewService creates a statistics service
func NewService(entities EntitySource, permissions PermissionSource) *Service {
	return &Service{entities: entities, permissions: permissions}
}

// Usage returns permission usage for the account
func (s *Service) Usage(ctx context.Context, accountID string, category catalog.Category) ([]PermissionUsage, error) {
	perms, err := s.permissions.List(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return Usage(s.entities.Entities(accountID), perms, category), nil
}

// Categories returns category totals for the account
func (s *Service) Categories(ctx context.Context, accountID string) ([]CategoryTotal, error) {
	perms, err := s.permissions.List(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return Categories(s.entities.Entities(accountID), perms), nil
}

// Users returns per-employee stats for the account
func (s *Service) Users(accountID, departmentID string) []UserStats {
	return Users(s.entities.Entities(accountID), departmentID)
}

// Departments returns per-department stats for the account
func (s *Service) Departments(accountID string) []DepartmentStats {
	return Departments(s.entities.Entities(accountID))
}
