package hierarchy

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EntityType is the kind of a hierarchy node
type EntityType string

const (
	TypeCompany    EntityType = "company"
	TypeSubcompany EntityType = "subcompany"
	TypeDepartment EntityType = "department"
	TypeTeam       EntityType = "team"
	TypeEmployee   EntityType = "employee"
)

// EntityTypes lists every entity type from the top of the hierarchy down
var EntityTypes = []EntityType{TypeCompany, TypeSubcompany, TypeDepartment, TypeTeam, TypeEmployee}

// Valid reports whether t is a known entity type
func (t EntityType) Valid() bool {
	return t.Rank() >= 0
}

// Rank is the position of t in EntityTypes, or -1 if unknown
func (t EntityType) Rank() int {
	for i, et := range EntityTypes {
		if et == t {
			return i
		}
	}
	return -1
}

// ParseEntityType parses a type name case-insensitively
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown entity type %q", ErrValidation, s)
	}
	return t, nil
}

// Entity is a node in the organization hierarchy.
//
// ParentID and Role are empty when absent and are written as JSON null.
type Entity struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Type        EntityType `json:"type"`
	ParentID    string     `json:"-"`
	Role        string     `json:"-"`
	Permissions []string   `json:"permissions"`
	Metadata    Metadata   `json:"metadata,omitempty"`
}

type entityAlias Entity

type entityJSON struct {
	entityAlias
	ParentID *string `json:"parentId"`
	Role     *string `json:"role"`
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// MarshalJSON writes absent parentId and role as null and permissions as []
func (e Entity) MarshalJSON() ([]byte, error) {
	out := entityJSON{
		entityAlias: entityAlias(e),
		ParentID:    nullable(e.ParentID),
		Role:        nullable(e.Role),
	}
	if out.Permissions == nil {
		out.Permissions = []string{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the nullable fields back into plain strings
func (e *Entity) UnmarshalJSON(data []byte) error {
	var in entityJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*e = Entity(in.entityAlias)
	if in.ParentID != nil {
		e.ParentID = *in.ParentID
	}
	if in.Role != nil {
		e.Role = *in.Role
	}
	return nil
}

// Clone returns a deep copy of e
func (e Entity) Clone() Entity {
	out := e
	if e.Permissions != nil {
		out.Permissions = append([]string(nil), e.Permissions...)
	}
	out.Metadata = e.Metadata.Clone()
	return out
}

// HasPermission reports whether permissionID is assigned to e
func (e Entity) HasPermission(permissionID string) bool {
	for _, p := range e.Permissions {
		if p == permissionID {
			return true
		}
	}
	return false
}

// Validate checks the fields every stored entity must have
func (e Entity) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: unknown entity type %q", ErrValidation, e.Type)
	}
	if e.ParentID == e.ID {
		return fmt.Errorf("%w: entity %s cannot be its own parent", ErrCycle, e.ID)
	}
	return nil
}

// CopyRequest describes the user created by CopyUser
type CopyRequest struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}
