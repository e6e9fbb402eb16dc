package audit

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/orgadmin/pkg/catalog"
	"github.com/platinummonkey/orgadmin/pkg/hierarchy"
	"github.com/platinummonkey/orgadmin/pkg/session"
)

// PermissionLookup resolves permission names for entries
type PermissionLookup interface {
	Get(ctx context.Context, accountID, id string) (catalog.Permission, error)
}

// Recorder turns hierarchy permission changes into audit entries
type Recorder struct {
	store       *Store
	permissions PermissionLookup
	log         logrus.FieldLogger
}

// NewRecorder creates a recorder. permissions may be nil, in which case
// entries carry the permission id as its name.
func NewRecorder(store *Store, permissions PermissionLookup, log logrus.FieldLogger) *Recorder {
	if log == nil {
		log = logrus.New()
	}
	return &Recorder{store: store, permissions: permissions, log: log.WithField("component", "audit")}
}

// RecordPermissionChange implements hierarchy.Recorder. Failures are
// logged; the permission change itself has already been written.
func (r *Recorder) RecordPermissionChange(ctx context.Context, accountID string, change hierarchy.PermissionChange) {
	entry := Entry{
		UserID:         change.Entity.ID,
		UserName:       change.Entity.Name,
		Action:         actionFor(change.Action),
		EntityID:       change.Entity.ID,
		EntityName:     change.Entity.Name,
		PermissionID:   change.PermissionID,
		PermissionName: change.PermissionID,
	}

	if r.permissions != nil {
		if p, err := r.permissions.Get(ctx, accountID, change.PermissionID); err == nil {
			entry.PermissionName = p.Name
		}
	}
	if s, ok := session.FromContext(ctx); ok {
		entry.ActorID = s.AccountID
		entry.ActorName = s.DisplayName
	}

	if _, err := r.store.Record(ctx, accountID, entry); err != nil {
		r.log.WithError(err).
			WithField("account_id", accountID).
			WithField("entity_id", change.Entity.ID).
			Error("failed to record permission change")
	}
}

func actionFor(a hierarchy.PermissionAction) Action {
	switch a {
	case hierarchy.PermissionAdded:
		return ActionAdd
	case hierarchy.PermissionRemoved:
		return ActionRemove
	}
	return ActionModify
}
