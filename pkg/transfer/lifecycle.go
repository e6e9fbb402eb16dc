package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/orgadmin/pkg/gateway"
	"github.com/platinummonkey/orgadmin/pkg/settings"
)

// ErrNoLocalStore is returned by MigrateLocal when no local store is configured
var ErrNoLocalStore = errors.New("no local store configured")

// migrated lists the collections copied from the local store
var migrated = []string{
	gateway.CollectionEntities,
	gateway.CollectionPermissions,
	gateway.CollectionTemplates,
}

// MigrateLocal copies the local store's entities, permissions, templates
// and settings into the remote gateway and returns the number of documents
// written. Remote documents with the same id are overwritten.
func (s *Service) MigrateLocal(ctx context.Context, accountID string) (int, error) {
	if s.local == nil {
		return 0, ErrNoLocalStore
	}

	written := 0
	for _, collection := range migrated {
		recs, err := s.local.List(ctx, accountID, collection)
		if err != nil {
			return written, fmt.Errorf("failed to read local %s: %w", collection, err)
		}
		for _, rec := range recs {
			var head struct {
				ID string `json:"id"`
			}
			if err := gateway.Decode(rec, &head); err != nil || head.ID == "" {
				s.log.WithField("collection", collection).Warn("skipping local document without id")
				continue
			}
			if err := s.remote.Put(ctx, accountID, collection, head.ID, rec); err != nil {
				return written, fmt.Errorf("failed to migrate %s/%s: %w", collection, head.ID, err)
			}
			written++
		}
	}

	rec, err := s.local.Get(ctx, accountID, gateway.CollectionSettings, settings.DocumentID)
	switch {
	case errors.Is(err, gateway.ErrNotFound):
	case err != nil:
		return written, fmt.Errorf("failed to read local settings: %w", err)
	default:
		if err := s.remote.Put(ctx, accountID, gateway.CollectionSettings, settings.DocumentID, rec); err != nil {
			return written, fmt.Errorf("failed to migrate settings: %w", err)
		}
		written++
	}

	s.log.WithField("account_id", accountID).WithField("documents", written).Info("local data migrated")
	return written, nil
}

// InitializeDefaults seeds the initial permissions and default settings
// when the account has no entities. It reports whether it seeded.
func (s *Service) InitializeDefaults(ctx context.Context, accountID string) (bool, error) {
	recs, err := s.remote.List(ctx, accountID, gateway.CollectionEntities)
	if err != nil {
		return false, fmt.Errorf("failed to list entities: %w", err)
	}
	if len(recs) > 0 {
		return false, nil
	}

	if err := s.catalog.SeedInitial(ctx, accountID); err != nil {
		return false, err
	}
	if err := s.settings.Reset(ctx, accountID); err != nil {
		return false, err
	}
	s.log.WithField("account_id", accountID).Info("default data initialized")
	return true, nil
}

// Bootstrap prepares an account on first use: local data is migrated when
// the local store holds entities, otherwise defaults are seeded. The
// hierarchy store is then subscribed.
func (s *Service) Bootstrap(ctx context.Context, accountID string) error {
	migrateLocal := false
	if s.local != nil {
		recs, err := s.local.List(ctx, accountID, gateway.CollectionEntities)
		if err != nil {
			s.log.WithError(err).WithField("account_id", accountID).Warn("local store unreadable, skipping migration")
		}
		migrateLocal = len(recs) > 0
	}

	if migrateLocal {
		if _, err := s.MigrateLocal(ctx, accountID); err != nil {
			return err
		}
	} else if _, err := s.InitializeDefaults(ctx, accountID); err != nil {
		return err
	}
	return s.store.Initialize(ctx, accountID)
}

// ResetAll removes every entity, restores the default catalog and resets
// the settings.
func (s *Service) ResetAll(ctx context.Context, accountID string) error {
	if err := replaceCollection(ctx, s.remote, accountID, gateway.CollectionEntities, nil); err != nil {
		return err
	}
	if err := s.catalog.ResetToDefaults(ctx, accountID); err != nil {
		return err
	}
	if err := s.settings.Reset(ctx, accountID); err != nil {
		return err
	}
	s.log.WithField("account_id", accountID).Warn("account reset")
	return nil
}
