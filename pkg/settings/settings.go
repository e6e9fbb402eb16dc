// Package settings stores the per-account application settings document.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/orgadmin/pkg/gateway"
)

// DocumentID is the id of the single settings document of an account
const DocumentID = "appSettings"

// Settings are the user-facing application preferences
type Settings struct {
	AutoSave             bool `json:"autoSave"`
	DarkModeDefault      bool `json:"darkModeDefault"`
	ShowPermissionBadges bool `json:"showPermissionBadges"`
	ExpandAllByDefault   bool `json:"expandAllByDefault"`
}

// Defaults returns the settings of a new account
func Defaults() Settings {
	return Settings{
		AutoSave:             true,
		DarkModeDefault:      false,
		ShowPermissionBadges: true,
		ExpandAllByDefault:   false,
	}
}

// UnmarshalJSON starts from Defaults so missing fields keep their default
func (s *Settings) UnmarshalJSON(data []byte) error {
	type plain Settings
	out := plain(Defaults())
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*s = Settings(out)
	return nil
}

// Store loads and saves settings. When a fallback gateway is set, failed
// remote reads are served from it and successful saves are mirrored to it.
type Store struct {
	gw       gateway.Gateway
	fallback gateway.Gateway
	log      logrus.FieldLogger
}

// NewStore creates a settings store. fallback may be nil.
func NewStore(gw, fallback gateway.Gateway, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.New()
	}
	return &Store{gw: gw, fallback: fallback, log: log.WithField("component", "settings")}
}

// Load returns the account settings, or Defaults when none are stored
func (s *Store) Load(ctx context.Context, accountID string) (Settings, error) {
	if accountID == "" {
		return Settings{}, gateway.ErrNoAccount
	}

	out, err := load(ctx, s.gw, accountID)
	if err == nil {
		return out, nil
	}
	if s.fallback == nil {
		return Settings{}, err
	}

	s.log.WithError(err).WithField("account_id", accountID).Warn("remote settings unavailable, using local copy")
	return load(ctx, s.fallback, accountID)
}

// Save writes the account settings
func (s *Store) Save(ctx context.Context, accountID string, settings Settings) error {
	rec, err := gateway.Encode(settings)
	if err != nil {
		return err
	}
	if err := s.gw.Put(ctx, accountID, gateway.CollectionSettings, DocumentID, rec); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	if s.fallback != nil {
		if err := s.fallback.Put(ctx, accountID, gateway.CollectionSettings, DocumentID, rec); err != nil {
			s.log.WithError(err).WithField("account_id", accountID).Warn("failed to mirror settings locally")
		}
	}
	return nil
}

// Reset restores Defaults
func (s *Store) Reset(ctx context.Context, accountID string) error {
	return s.Save(ctx, accountID, Defaults())
}

func load(ctx context.Context, gw gateway.Gateway, accountID string) (Settings, error) {
	rec, err := gw.Get(ctx, accountID, gateway.CollectionSettings, DocumentID)
	if errors.Is(err, gateway.ErrNotFound) {
		return Defaults(), nil
	} else if err != nil {
		return Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}

	var out Settings
	if err := gateway.Decode(rec, &out); err != nil {
		return Settings{}, err
	}
	return out, nil
}
