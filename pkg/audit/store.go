package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/orgadmin/pkg/gateway"
)

// Store persists entries in the gateway's audit collection
type Store struct {
	gw  gateway.Gateway
	log logrus.FieldLogger
	now func() time.Time
}

// NewStore creates an audit store on gw
func NewStore(gw gateway.Gateway, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.New()
	}
	return &Store{gw: gw, log: log.WithField("component", "audit"), now: time.Now}
}

// Record stores entry, filling in its id and timestamp when unset
func (s *Store) Record(ctx context.Context, accountID string, entry Entry) (Entry, error) {
	if !entry.Action.Valid() {
		return Entry{}, fmt.Errorf("unknown audit action %q", entry.Action)
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now().UTC()
	}

	rec, err := gateway.Encode(entry)
	if err != nil {
		return Entry{}, err
	}
	if err := s.gw.Put(ctx, accountID, gateway.CollectionAudit, entry.ID, rec); err != nil {
		return Entry{}, fmt.Errorf("failed to record audit entry: %w", err)
	}
	return entry, nil
}

// All returns every entry, newest first
func (s *Store) All(ctx context.Context, accountID string) ([]Entry, error) {
	recs, err := s.gw.List(ctx, accountID, gateway.CollectionAudit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	entries, err := gateway.DecodeAll[Entry](recs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}

// Search returns the entries matching filter, newest first
func (s *Store) Search(ctx context.Context, accountID string, filter SearchFilter) ([]Entry, error) {
	entries, err := s.All(ctx, accountID)
	if err != nil {
		return nil, err
	}

	term := strings.ToLower(strings.TrimSpace(filter.Term))
	out := []Entry{}
	for _, e := range entries {
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.UserID != "" && e.UserID != filter.UserID {
			continue
		}
		if filter.Since != nil && e.Timestamp.Before(*filter.Since) {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(e.UserName), term) &&
			!strings.Contains(strings.ToLower(e.EntityName), term) &&
			!strings.Contains(strings.ToLower(e.PermissionName), term) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Clear removes every entry of the account and returns how many were removed
func (s *Store) Clear(ctx context.Context, accountID string) (int, error) {
	return s.removeWhere(ctx, accountID, func(Entry) bool { return true })
}

// Cleanup removes entries older than policy.MaxAge
func (s *Store) Cleanup(ctx context.Context, accountID string, policy RetentionPolicy) (int, error) {
	if policy.MaxAge <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-policy.MaxAge)
	return s.removeWhere(ctx, accountID, func(e Entry) bool { return e.Timestamp.Before(cutoff) })
}

func (s *Store) removeWhere(ctx context.Context, accountID string, match func(Entry) bool) (int, error) {
	entries, err := s.All(ctx, accountID)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if !match(e) {
			continue
		}
		if err := s.gw.Remove(ctx, accountID, gateway.CollectionAudit, e.ID); err != nil {
			return removed, fmt.Errorf("failed to remove audit entry %s: %w", e.ID, err)
		}
		removed++
	}
	if removed > 0 {
		s.log.WithField("account_id", accountID).WithField("removed", removed).Info("audit entries removed")
	}
	return removed, nil
}

// Export encodes the entries matching filter
func (s *Store) Export(ctx context.Context, accountID string, filter SearchFilter, format ExportFormat) ([]byte, error) {
	entries, err := s.Search(ctx, accountID, filter)
	if err != nil {
		return nil, err
	}

	switch format {
	case ExportFormatJSON, "":
		return exportJSON(entries)
	case ExportFormatNDJSON:
		return exportNDJSON(entries)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}
