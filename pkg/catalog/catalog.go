// Package catalog manages the per-account set of permission definitions.
// Definitions are independent of the hierarchy; deleting one leaves any
// entity references to it in place (see Dangling).
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/orgadmin/pkg/gateway"
)

// Category groups permissions
type Category string

const (
	CategorySystem      Category = "system"
	CategoryFile        Category = "file"
	CategoryUser        Category = "user"
	CategoryNetwork     Category = "network"
	CategoryApplication Category = "application"
)

// Categories lists every category
var Categories = []Category{CategorySystem, CategoryFile, CategoryUser, CategoryNetwork, CategoryApplication}

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

var (
	// ErrNotFound is returned when a permission id is unknown
	ErrNotFound = errors.New("permission not found")
	// ErrValidation is returned for malformed permissions
	ErrValidation = errors.New("invalid permission")
	// ErrNoActiveAccount is returned when no account id is given
	ErrNoActiveAccount = errors.New("no active account")
)

// Permission is a named, categorized capability
type Permission struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
}

// Validate checks the required fields
func (p Permission) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !p.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrValidation, p.Category)
	}
	return nil
}

// NewPermission is the input to Add
type NewPermission struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
}

// Catalog stores permission definitions in the gateway's permissions collection
type Catalog struct {
	gw  gateway.Gateway
	log logrus.FieldLogger
	now func() time.Time

	mu     sync.Mutex
	lastID int64
}

// New creates a catalog on gw
func New(gw gateway.Gateway, log logrus.FieldLogger) *Catalog {
	if log == nil {
		log = logrus.New()
	}
	return &Catalog{
		gw:  gw,
		log: log.WithField("component", "catalog"),
		now: time.Now,
	}
}

// nextID returns perm_<unix millis>, bumped so ids issued by this process never repeat
func (c *Catalog) nextID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ms := c.now().UnixMilli()
	if ms <= c.lastID {
		ms = c.lastID + 1
	}
	c.lastID = ms
	return "perm_" + strconv.FormatInt(ms, 10)
}

// List returns every permission of the account ordered by id
func (c *Catalog) List(ctx context.Context, accountID string) ([]Permission, error) {
	if accountID == "" {
		return nil, ErrNoActiveAccount
	}
	recs, err := c.gw.List(ctx, accountID, gateway.CollectionPermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	return gateway.DecodeAll[Permission](recs)
}

// ListByCategory returns the permissions in category
func (c *Catalog) ListByCategory(ctx context.Context, accountID string, category Category) ([]Permission, error) {
	all, err := c.List(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out := []Permission{}
	for _, p := range all {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out, nil
}

// Get returns one permission
func (c *Catalog) Get(ctx context.Context, accountID, id string) (Permission, error) {
	if accountID == "" {
		return Permission{}, ErrNoActiveAccount
	}
	rec, err := c.gw.Get(ctx, accountID, gateway.CollectionPermissions, id)
	if errors.Is(err, gateway.ErrNotFound) {
		return Permission{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	} else if err != nil {
		return Permission{}, fmt.Errorf("failed to get permission %s: %w", id, err)
	}
	var p Permission
	if err := gateway.Decode(rec, &p); err != nil {
		return Permission{}, err
	}
	return p, nil
}

// Index returns the account's permissions keyed by id
func (c *Catalog) Index(ctx context.Context, accountID string) (map[string]Permission, error) {
	all, err := c.List(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Permission, len(all))
	for _, p := range all {
		out[p.ID] = p
	}
	return out, nil
}

// Add creates a permission with a fresh id
func (c *Catalog) Add(ctx context.Context, accountID string, in NewPermission) (Permission, error) {
	if accountID == "" {
		return Permission{}, ErrNoActiveAccount
	}
	p := Permission{
		ID:          c.nextID(),
		Name:        in.Name,
		Description: in.Description,
		Category:    in.Category,
	}
	if err := p.Validate(); err != nil {
		return Permission{}, err
	}
	if err := c.put(ctx, accountID, p); err != nil {
		return Permission{}, err
	}
	c.log.WithField("account_id", accountID).WithField("permission_id", p.ID).Info("permission added")
	return p, nil
}

// Update replaces an existing permission
func (c *Catalog) Update(ctx context.Context, accountID string, p Permission) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if _, err := c.Get(ctx, accountID, p.ID); err != nil {
		return err
	}
	return c.put(ctx, accountID, p)
}

// Delete removes a permission. Entities that reference it keep the id.
func (c *Catalog) Delete(ctx context.Context, accountID, id string) error {
	if accountID == "" {
		return ErrNoActiveAccount
	}
	if err := c.gw.Remove(ctx, accountID, gateway.CollectionPermissions, id); err != nil {
		return fmt.Errorf("failed to delete permission %s: %w", id, err)
	}
	return nil
}

// ResetToDefaults replaces the whole catalog with Defaults
func (c *Catalog) ResetToDefaults(ctx context.Context, accountID string) error {
	return c.replace(ctx, accountID, Defaults())
}

// SeedInitial writes the first-run subset of Defaults
func (c *Catalog) SeedInitial(ctx context.Context, accountID string) error {
	if accountID == "" {
		return ErrNoActiveAccount
	}
	for _, p := range InitialDefaults() {
		if err := c.put(ctx, accountID, p); err != nil {
			return err
		}
	}
	return nil
}

// Replace makes the catalog contain exactly perms
func (c *Catalog) Replace(ctx context.Context, accountID string, perms []Permission) error {
	for _, p := range perms {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("%w: id is required", ErrValidation)
		}
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return c.replace(ctx, accountID, perms)
}

func (c *Catalog) replace(ctx context.Context, accountID string, perms []Permission) error {
	current, err := c.List(ctx, accountID)
	if err != nil {
		return err
	}

	keep := make(map[string]bool, len(perms))
	for _, p := range perms {
		keep[p.ID] = true
	}
	for _, p := range current {
		if keep[p.ID] {
			continue
		}
		if err := c.Delete(ctx, accountID, p.ID); err != nil {
			return err
		}
	}
	for _, p := range perms {
		if err := c.put(ctx, accountID, p); err != nil {
			return err
		}
	}
	return nil
}

// Dangling returns the ids in ids that are not in the account's catalog
func (c *Catalog) Dangling(ctx context.Context, accountID string, ids []string) ([]string, error) {
	index, err := c.Index(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, id := range ids {
		if _, ok := index[id]; !ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (c *Catalog) put(ctx context.Context, accountID string, p Permission) error {
	rec, err := gateway.Encode(p)
	if err != nil {
		return err
	}
	if err := c.gw.Put(ctx, accountID, gateway.CollectionPermissions, p.ID, rec); err != nil {
		return fmt.Errorf("failed to write permission %s: %w", p.ID, err)
	}
	return nil
}
