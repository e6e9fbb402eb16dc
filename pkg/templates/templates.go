// Package templates stores named permission bundles and applies them to
// employees.
package templates

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/orgadmin/pkg/gateway"
	"github.com/platinummonkey/orgadmin/pkg/hierarchy"
)

var (
	// ErrNotFound is returned for unknown template ids
	ErrNotFound = errors.New("template not found")
	// ErrValidation is returned for malformed templates
	ErrValidation = errors.New("invalid template")
)

// Template is a named set of permission ids
type Template struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Validate checks the required fields
func (t Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if len(t.Permissions) == 0 {
		return fmt.Errorf("%w: at least one permission is required", ErrValidation)
	}
	return nil
}

// Assigner is the part of the hierarchy store templates need
type Assigner interface {
	Entity(accountID, id string) (hierarchy.Entity, error)
	AddPermission(ctx context.Context, accountID, entityID, permissionID string) error
}

// ApplyResult lists the permissions actually added to one employee
type ApplyResult struct {
	UserID string   `json:"userId"`
	Added  []string `json:"added"`
}

// Store keeps templates in the gateway's templates collection
type Store struct {
	gw       gateway.Gateway
	assigner Assigner
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewStore creates a template store
func NewStore(gw gateway.Gateway, assigner Assigner, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.New()
	}
	return &Store{
		gw:       gw,
		assigner: assigner,
		log:      log.WithField("component", "templates"),
		now:      time.Now,
	}
}

// List returns every template ordered by name
func (s *Store) List(ctx context.Context, accountID string) ([]Template, error) {
	recs, err := s.gw.List(ctx, accountID, gateway.CollectionTemplates)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	out, err := gateway.DecodeAll[Template](recs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Get returns one template
func (s *Store) Get(ctx context.Context, accountID, id string) (Template, error) {
	rec, err := s.gw.Get(ctx, accountID, gateway.CollectionTemplates, id)
	if errors.Is(err, gateway.ErrNotFound) {
		return Template{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Template{}, fmt.Errorf("failed to get template: %w", err)
	}
	var t Template
	if err := gateway.Decode(rec, &t); err != nil {
		return Template{}, err
	}
	return t, nil
}

// Create stores a new template with a fresh id and timestamps
func (s *Store) Create(ctx context.Context, accountID string, t Template) (Template, error) {
	t.Name = strings.TrimSpace(t.Name)
	t.Description = strings.TrimSpace(t.Description)
	t.Permissions = dedupe(t.Permissions)
	if err := t.Validate(); err != nil {
		return Template{}, err
	}

	now := s.now().UTC()
	t.ID = uuid.NewString()
	t.CreatedAt = now
	t.UpdatedAt = now
	if err := s.put(ctx, accountID, t); err != nil {
		return Template{}, err
	}
	return t, nil
}

// Update replaces the name, description and permissions of a template
func (s *Store) Update(ctx context.Context, accountID string, t Template) (Template, error) {
	existing, err := s.Get(ctx, accountID, t.ID)
	if err != nil {
		return Template{}, err
	}

	existing.Name = strings.TrimSpace(t.Name)
	existing.Description = strings.TrimSpace(t.Description)
	existing.Permissions = dedupe(t.Permissions)
	if err := existing.Validate(); err != nil {
		return Template{}, err
	}
	existing.UpdatedAt = s.now().UTC()
	if err := s.put(ctx, accountID, existing); err != nil {
		return Template{}, err
	}
	return existing, nil
}

// Delete removes a template
func (s *Store) Delete(ctx context.Context, accountID, id string) error {
	if _, err := s.Get(ctx, accountID, id); err != nil {
		return err
	}
	if err := s.gw.Remove(ctx, accountID, gateway.CollectionTemplates, id); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return nil
}

// Apply adds the template's permissions that each employee lacks. It
// stops at the first failure and returns the results so far.
func (s *Store) Apply(ctx context.Context, accountID, templateID string, userIDs []string) ([]ApplyResult, error) {
	t, err := s.Get(ctx, accountID, templateID)
	if err != nil {
		return nil, err
	}

	results := make([]ApplyResult, 0, len(userIDs))
	for _, userID := range userIDs {
		user, err := s.assigner.Entity(accountID, userID)
		if err != nil {
			return results, err
		}
		if user.Type != hierarchy.TypeEmployee {
			return results, fmt.Errorf("%w: %s is not an employee", hierarchy.ErrValidation, userID)
		}

		res := ApplyResult{UserID: userID, Added: []string{}}
		for _, permissionID := range t.Permissions {
			if user.HasPermission(permissionID) {
				continue
			}
			if err := s.assigner.AddPermission(ctx, accountID, userID, permissionID); err != nil {
				return results, err
			}
			res.Added = append(res.Added, permissionID)
		}
		results = append(results, res)
	}

	s.log.WithField("account_id", accountID).
		WithField("template_id", templateID).
		WithField("users", len(userIDs)).
		Info("template applied")
	return results, nil
}

func (s *Store) put(ctx context.Context, accountID string, t Template) error {
	rec, err := gateway.Encode(t)
	if err != nil {
		return err
	}
	if err := s.gw.Put(ctx, accountID, gateway.CollectionTemplates, t.ID, rec); err != nil {
		return fmt.Errorf("failed to write template %s: %w", t.ID, err)
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
