// Package transfer moves whole accounts in and out of the gateway: bundle
// export and import, local to remote migration, first-run seeding and
// reset.
package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/orgadmin/pkg/catalog"
	"github.com/platinummonkey/orgadmin/pkg/gateway"
	"github.com/platinummonkey/orgadmin/pkg/hierarchy"
	"github.com/platinummonkey/orgadmin/pkg/settings"
)

// ErrInvalidBundle is returned when a bundle fails validation
var ErrInvalidBundle = errors.New("invalid bundle")

// Bundle is the portable form of an account
type Bundle struct {
	Entities    []hierarchy.Entity   `json:"entities"`
	Settings    settings.Settings    `json:"settings"`
	Permissions []catalog.Permission `json:"permissions"`
}

// Service wires the account components together for whole-account operations
type Service struct {
	remote   gateway.Gateway
	local    gateway.Gateway
	store    *hierarchy.Store
	catalog  *catalog.Catalog
	settings *settings.Store
	log      logrus.FieldLogger
}

// Config holds the Service dependencies. Local may be nil when no local
// fallback store is configured.
type Config struct {
	Remote   gateway.Gateway
	Local    gateway.Gateway
	Store    *hierarchy.Store
	Catalog  *catalog.Catalog
	Settings *settings.Store
	Logger   logrus.FieldLogger
}

// NewService creates a transfer service
func NewService(config Config) *Service {
	log := config.Logger
	if log == nil {
		log = logrus.New()
	}
	return &Service{
		remote:   config.Remote,
		local:    config.Local,
		store:    config.Store,
		catalog:  config.Catalog,
		settings: config.Settings,
		log:      log.WithField("component", "transfer"),
	}
}

// Export collects the account's entities, settings and permissions
func (s *Service) Export(ctx context.Context, accountID string) (Bundle, error) {
	if err := s.store.Initialize(ctx, accountID); err != nil {
		return Bundle{}, err
	}

	perms, err := s.catalog.List(ctx, accountID)
	if err != nil {
		return Bundle{}, err
	}
	set, err := s.settings.Load(ctx, accountID)
	if err != nil {
		return Bundle{}, err
	}

	entities := s.store.Entities(accountID)
	if entities == nil {
		entities = []hierarchy.Entity{}
	}
	return Bundle{Entities: entities, Settings: set, Permissions: perms}, nil
}

// WriteTo exports the account as indented JSON
func (s *Service) WriteTo(ctx context.Context, accountID string, w io.Writer) error {
	b, err := s.Export(ctx, accountID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(b)
}

// Decode reads a bundle from r
func Decode(r io.Reader) (Bundle, error) {
	var b Bundle
	dec := json.NewDecoder(r)
	if err := dec.Decode(&b); err != nil {
		return Bundle{}, fmt.Errorf("%w: %w", ErrInvalidBundle, err)
	}
	return b, nil
}

// Validate checks that the bundle's entities form a forest of valid nodes
// and that every permission is complete.
func (b Bundle) Validate() error {
	parents := make(map[string]string, len(b.Entities))
	for _, e := range b.Entities {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("%w: entity %q: %w", ErrInvalidBundle, e.ID, err)
		}
		if _, dup := parents[e.ID]; dup {
			return fmt.Errorf("%w: duplicate entity id %q", ErrInvalidBundle, e.ID)
		}
		parents[e.ID] = e.ParentID
	}

	for id := range parents {
		seen := map[string]bool{}
		for cur := id; cur != ""; cur = parents[cur] {
			if seen[cur] {
				return fmt.Errorf("%w: entity %q is part of a cycle", ErrInvalidBundle, id)
			}
			seen[cur] = true
		}
	}

	for _, p := range b.Permissions {
		if p.ID == "" {
			return fmt.Errorf("%w: permission without id", ErrInvalidBundle)
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%w: permission %q: %w", ErrInvalidBundle, p.ID, err)
		}
	}
	return nil
}

// Import replaces the account's entities, permissions and settings with
// the bundle. Subscribed stores resync from the resulting notifications.
func (s *Service) Import(ctx context.Context, accountID string, b Bundle) error {
	if accountID == "" {
		return hierarchy.ErrNoActiveAccount
	}
	if err := b.Validate(); err != nil {
		return err
	}

	docs := make([]gateway.Document, 0, len(b.Entities))
	for _, e := range b.Entities {
		rec, err := gateway.Encode(e)
		if err != nil {
			return err
		}
		docs = append(docs, gateway.Document{ID: e.ID, Body: rec})
	}
	if err := replaceCollection(ctx, s.remote, accountID, gateway.CollectionEntities, docs); err != nil {
		return err
	}
	if err := s.catalog.Replace(ctx, accountID, b.Permissions); err != nil {
		return err
	}
	if err := s.settings.Save(ctx, accountID, b.Settings); err != nil {
		return err
	}

	s.log.WithField("account_id", accountID).
		WithField("entities", len(b.Entities)).
		WithField("permissions", len(b.Permissions)).
		Info("bundle imported")
	return nil
}

// replaceCollection makes collection contain exactly docs
func replaceCollection(ctx context.Context, gw gateway.Gateway, accountID, collection string, docs []gateway.Document) error {
	current, err := gw.List(ctx, accountID, collection)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", collection, err)
	}

	keep := make(map[string]bool, len(docs))
	for _, d := range docs {
		keep[d.ID] = true
	}
	for _, rec := range current {
		var head struct {
			ID string `json:"id"`
		}
		if err := gateway.Decode(rec, &head); err != nil || keep[head.ID] {
			continue
		}
		if err := gw.Remove(ctx, accountID, collection, head.ID); err != nil {
			return fmt.Errorf("failed to remove %s/%s: %w", collection, head.ID, err)
		}
	}
	for _, d := range docs {
		if err := gw.Put(ctx, accountID, collection, d.ID, d.Body); err != nil {
			return fmt.Errorf("failed to write %s/%s: %w", collection, d.ID, err)
		}
	}
	return nil
}
