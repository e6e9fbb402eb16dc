package audit

import "time"

// Action is the kind of permission change
type Action string

const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
	ActionModify Action = "modify"
)

// Valid reports whether a is a known action
func (a Action) Valid() bool {
	switch a {
	case ActionAdd, ActionRemove, ActionModify:
		return true
	}
	return false
}

// Entry is one permission change on an employee
type Entry struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	UserID         string    `json:"userId"`
	UserName       string    `json:"userName"`
	Action         Action    `json:"action"`
	EntityID       string    `json:"entityId"`
	EntityName     string    `json:"entityName"`
	PermissionID   string    `json:"permissionId"`
	PermissionName string    `json:"permissionName"`
	ActorID        string    `json:"actorId,omitempty"`
	ActorName      string    `json:"actorName,omitempty"`
}

// SearchFilter narrows Search results. Zero values match everything.
type SearchFilter struct {
	// Term matches user, entity and permission names case-insensitively
	Term   string
	Action Action
	UserID string
	Since  *time.Time
	Limit  int
}

// ExportFormat selects the Export encoding
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatNDJSON ExportFormat = "ndjson"
)

// RetentionPolicy bounds how long entries are kept
type RetentionPolicy struct {
	MaxAge time.Duration
}
