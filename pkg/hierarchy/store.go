package hierarchy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/orgadmin/pkg/gateway"
)

// PermissionAction is the kind of permission change reported to a Recorder
type PermissionAction string

const (
	PermissionAdded   PermissionAction = "add"
	PermissionRemoved PermissionAction = "remove"
)

// PermissionChange describes one effective change to an entity's permission set
type PermissionChange struct {
	Action       PermissionAction
	Entity       Entity
	PermissionID string
}

// Recorder receives every permission change that was written successfully
type Recorder interface {
	RecordPermissionChange(ctx context.Context, accountID string, change PermissionChange)
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the store logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Store) { s.log = log }
}

// WithRecorder reports permission changes to r
func WithRecorder(r Recorder) Option {
	return func(s *Store) { s.recorder = r }
}

// tree is the in-memory state of one account
type tree struct {
	// writeMu serializes read-modify-write operations for the account
	writeMu sync.Mutex

	entities []Entity
	index    map[string]int
	loaded   bool
	unsub    gateway.Unsubscribe
}

func (t *tree) lookup(id string) (Entity, bool) {
	i, ok := t.index[id]
	if !ok {
		return Entity{}, false
	}
	return t.entities[i], true
}

func (t *tree) replace(e Entity) {
	if i, ok := t.index[e.ID]; ok {
		t.entities[i] = e
	}
}

func (t *tree) drop(ids map[string]bool) {
	kept := t.entities[:0]
	for _, e := range t.entities {
		if !ids[e.ID] {
			kept = append(kept, e)
		}
	}
	t.entities = kept
	t.reindex()
}

func (t *tree) reindex() {
	t.index = make(map[string]int, len(t.entities))
	for i, e := range t.entities {
		t.index[e.ID] = i
	}
}

// Store keeps the entity hierarchy of each account in memory, synchronized
// with the gateway's entities collection. Every subscription snapshot
// replaces the account's list wholesale.
type Store struct {
	gw       gateway.Gateway
	log      logrus.FieldLogger
	recorder Recorder

	mu       sync.RWMutex
	accounts map[string]*tree
}

// NewStore creates a store backed by gw
func NewStore(gw gateway.Gateway, opts ...Option) *Store {
	s := &Store{
		gw:       gw,
		accounts: make(map[string]*tree),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logrus.New()
	}
	s.log = s.log.WithField("component", "hierarchy")
	return s
}

// Initialize subscribes to the account's entities. It is a no-op when the
// account is already subscribed. The subscription outlives ctx and ends
// on Close.
func (s *Store) Initialize(ctx context.Context, accountID string) error {
	if accountID == "" {
		return ErrNoActiveAccount
	}

	s.mu.Lock()
	if _, ok := s.accounts[accountID]; ok {
		s.mu.Unlock()
		return nil
	}
	t := &tree{index: map[string]int{}}
	s.accounts[accountID] = t
	s.mu.Unlock()

	unsub, err := s.gw.Subscribe(context.WithoutCancel(ctx), accountID, gateway.CollectionEntities, func(recs []gateway.Record) {
		s.applySnapshot(accountID, t, recs)
	})
	if err != nil {
		s.mu.Lock()
		delete(s.accounts, accountID)
		s.mu.Unlock()
		return fmt.Errorf("failed to subscribe to entities: %w", err)
	}

	s.mu.Lock()
	t.unsub = unsub
	s.mu.Unlock()

	s.log.WithField("account_id", accountID).Debug("subscribed to entities")
	return nil
}

func (s *Store) applySnapshot(accountID string, t *tree, recs []gateway.Record) {
	entities := make([]Entity, 0, len(recs))
	for _, rec := range recs {
		var e Entity
		if err := gateway.Decode(rec, &e); err != nil {
			s.log.WithError(err).WithField("account_id", accountID).Warn("skipping undecodable entity")
			continue
		}
		entities = append(entities, e)
	}

	s.mu.Lock()
	t.entities = entities
	t.reindex()
	t.loaded = true
	s.mu.Unlock()
}

// Subscribed reports whether Initialize has been called for the account
func (s *Store) Subscribed(accountID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[accountID]
	return ok
}

// Loading reports whether the account has not yet received its first snapshot
func (s *Store) Loading(accountID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.accounts[accountID]
	return !ok || !t.loaded
}

// Accounts returns the ids of every initialized account
func (s *Store) Accounts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close ends every subscription and forgets all in-memory state
func (s *Store) Close() {
	s.mu.Lock()
	accounts := s.accounts
	s.accounts = make(map[string]*tree)
	s.mu.Unlock()

	for _, t := range accounts {
		if t.unsub != nil {
			t.unsub()
		}
	}
}

// account returns the tree for accountID, or nil if it was never initialized
func (s *Store) account(accountID string) (*tree, error) {
	if accountID == "" {
		return nil, ErrNoActiveAccount
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[accountID], nil
}

func (s *Store) get(t *tree, id string) (Entity, bool) {
	if t == nil {
		return Entity{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := t.lookup(id)
	if !ok {
		return Entity{}, false
	}
	return e.Clone(), true
}

func (s *Store) put(ctx context.Context, accountID string, e Entity) error {
	rec, err := gateway.Encode(e)
	if err != nil {
		return err
	}
	if err := s.gw.Put(ctx, accountID, gateway.CollectionEntities, e.ID, rec); err != nil {
		s.log.WithError(err).
			WithField("account_id", accountID).
			WithField("entity_id", e.ID).
			Error("failed to write entity")
		return fmt.Errorf("%w: entity %s: %w", ErrRemoteWrite, e.ID, err)
	}
	return nil
}

// commit replaces e in memory after a successful write
func (s *Store) commit(t *tree, e Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.replace(e.Clone())
}

// Entities returns a copy of every entity of the account
func (s *Store) Entities(accountID string) []Entity {
	t, err := s.account(accountID)
	if err != nil || t == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entity, len(t.entities))
	for i, e := range t.entities {
		out[i] = e.Clone()
	}
	return out
}

// Entity returns a copy of one entity
func (s *Store) Entity(accountID, id string) (Entity, error) {
	t, err := s.account(accountID)
	if err != nil {
		return Entity{}, err
	}
	e, ok := s.get(t, id)
	if !ok {
		return Entity{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// ChildrenOf returns the entities whose parent is parentID. An empty
// parentID selects the top-level entities.
func (s *Store) ChildrenOf(accountID, parentID string) []Entity {
	t, err := s.account(accountID)
	if err != nil || t == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Entity{}
	for _, e := range t.entities {
		if e.ParentID == parentID {
			out = append(out, e.Clone())
		}
	}
	return out
}

// AddEntity writes a new entity. It becomes visible in memory once the
// subscription delivers it.
func (s *Store) AddEntity(ctx context.Context, accountID string, e Entity) error {
	t, err := s.account(accountID)
	if err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return err
	}
	if _, exists := s.get(t, e.ID); exists {
		return fmt.Errorf("%w: entity %s already exists", ErrValidation, e.ID)
	}
	if err := s.checkAdd(t, e); err != nil {
		return err
	}
	return s.put(ctx, accountID, e)
}

// checkAdd rejects a parent whose chain already leads back to e. The
// parent itself may not be in memory yet.
func (s *Store) checkAdd(t *tree, e Entity) error {
	if t == nil || e.ParentID == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if isAncestorOrSelf(t, e.ID, e.ParentID) {
		return fmt.Errorf("%w: %s is an ancestor of %s", ErrCycle, e.ID, e.ParentID)
	}
	return nil
}

// UpdateEntity replaces the mutable fields of an existing entity. The
// type cannot change; a parent change goes through the cycle guard.
func (s *Store) UpdateEntity(ctx context.Context, accountID string, e Entity) error {
	t, err := s.account(accountID)
	if err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, e.ID)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	current, ok := s.get(t, e.ID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, e.ID)
	}
	if current.Type != e.Type {
		return fmt.Errorf("%w: type of %s cannot change from %s to %s", ErrValidation, e.ID, current.Type, e.Type)
	}
	if e.ParentID != current.ParentID {
		if err := s.checkMove(t, e.ID, e.ParentID); err != nil {
			return err
		}
	}

	if err := s.put(ctx, accountID, e); err != nil {
		return err
	}
	s.commit(t, e)
	return nil
}

// DeleteEntity removes the entity and all of its transitive descendants,
// children before parents. A failed remove stops the cascade: the ids
// already removed leave memory, the rest stay, and the error is returned
// with the ids that were removed.
func (s *Store) DeleteEntity(ctx context.Context, accountID, id string) ([]string, error) {
	t, err := s.account(accountID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	s.mu.RLock()
	_, ok := t.lookup(id)
	var order []string
	if ok {
		order = cascadeOrder(t.entities, id)
	}
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	removed := make([]string, 0, len(order))
	var writeErr error
	for _, target := range order {
		if err := s.gw.Remove(ctx, accountID, gateway.CollectionEntities, target); err != nil {
			s.log.WithError(err).
				WithField("account_id", accountID).
				WithField("entity_id", target).
				Error("cascade delete stopped")
			writeErr = fmt.Errorf("%w: delete %s: %w", ErrRemoteWrite, target, err)
			break
		}
		removed = append(removed, target)
	}

	gone := make(map[string]bool, len(removed))
	for _, r := range removed {
		gone[r] = true
	}
	s.mu.Lock()
	t.drop(gone)
	s.mu.Unlock()

	return removed, writeErr
}

// MoveEntity reparents an entity. An empty newParentID moves it to the
// top level. ErrCycle is returned when the entity is newParentID or one
// of its ancestors.
func (s *Store) MoveEntity(ctx context.Context, accountID, id, newParentID string) error {
	t, err := s.account(accountID)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	e, ok := s.get(t, id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := s.checkMove(t, id, newParentID); err != nil {
		s.log.WithField("account_id", accountID).
			WithField("entity_id", id).
			WithField("parent_id", newParentID).
			Info("move rejected")
		return err
	}
	if e.ParentID == newParentID {
		return nil
	}

	e.ParentID = newParentID
	if err := s.put(ctx, accountID, e); err != nil {
		return err
	}
	s.commit(t, e)
	return nil
}

func (s *Store) checkMove(t *tree, id, newParentID string) error {
	if newParentID == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := t.lookup(newParentID); !ok {
		return fmt.Errorf("%w: parent %s", ErrNotFound, newParentID)
	}
	if isAncestorOrSelf(t, id, newParentID) {
		return fmt.Errorf("%w: %s is an ancestor of %s", ErrCycle, id, newParentID)
	}
	return nil
}

// AddPermission assigns permissionID to the entity. Assigning a permission
// the entity already holds is a no-op.
func (s *Store) AddPermission(ctx context.Context, accountID, entityID, permissionID string) error {
	return s.togglePermission(ctx, accountID, entityID, permissionID, PermissionAdded)
}

// RemovePermission unassigns permissionID. Removing a permission the
// entity does not hold is a no-op.
func (s *Store) RemovePermission(ctx context.Context, accountID, entityID, permissionID string) error {
	return s.togglePermission(ctx, accountID, entityID, permissionID, PermissionRemoved)
}

func (s *Store) togglePermission(ctx context.Context, accountID, entityID, permissionID string, action PermissionAction) error {
	t, err := s.account(accountID)
	if err != nil {
		return err
	}
	if permissionID == "" {
		return fmt.Errorf("%w: permission id is required", ErrValidation)
	}
	if t == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, entityID)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	e, ok := s.get(t, entityID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, entityID)
	}

	has := e.HasPermission(permissionID)
	switch {
	case action == PermissionAdded && has, action == PermissionRemoved && !has:
		return nil
	case action == PermissionAdded:
		e.Permissions = append(e.Permissions, permissionID)
	default:
		kept := make([]string, 0, len(e.Permissions))
		for _, p := range e.Permissions {
			if p != permissionID {
				kept = append(kept, p)
			}
		}
		e.Permissions = kept
	}

	if err := s.put(ctx, accountID, e); err != nil {
		return err
	}
	s.commit(t, e)

	if s.recorder != nil {
		s.recorder.RecordPermissionChange(ctx, accountID, PermissionChange{
			Action:       action,
			Entity:       e.Clone(),
			PermissionID: permissionID,
		})
	}
	return nil
}

// Permissions returns the permission ids of the entity, empty if unknown
func (s *Store) Permissions(accountID, entityID string) []string {
	t, err := s.account(accountID)
	if err != nil {
		return []string{}
	}
	e, ok := s.get(t, entityID)
	if !ok {
		return []string{}
	}
	return append([]string{}, e.Permissions...)
}

// CopyUser creates a new employee under the same parent as sourceID with
// independent copies of its permissions and metadata. The role falls back
// to the source role. It returns the new entity id; the entity becomes
// visible in memory once the subscription delivers it.
func (s *Store) CopyUser(ctx context.Context, accountID, sourceID string, req CopyRequest) (string, error) {
	t, err := s.account(accountID)
	if err != nil {
		return "", err
	}
	src, ok := s.get(t, sourceID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, sourceID)
	}
	if src.Type != TypeEmployee {
		return "", fmt.Errorf("%w: %s is a %s, only employees can be copied", ErrValidation, sourceID, src.Type)
	}

	role := req.Role
	if role == "" {
		role = src.Role
	}
	copied := Entity{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Type:        TypeEmployee,
		ParentID:    src.ParentID,
		Role:        role,
		Permissions: append([]string{}, src.Permissions...),
		Metadata:    src.Metadata.Clone(),
	}
	if err := copied.Validate(); err != nil {
		return "", err
	}
	if err := s.put(ctx, accountID, copied); err != nil {
		return "", err
	}
	return copied.ID, nil
}
