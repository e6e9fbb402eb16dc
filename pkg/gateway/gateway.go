package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Collection names used under every account.
const (
	CollectionEntities    = "entities"
	CollectionPermissions = "permissions"
	CollectionSettings    = "settings"
	CollectionTemplates   = "templates"
	CollectionAudit       = "audit"
)

var (
	// ErrNotFound is returned by Get when no document exists under the id
	ErrNotFound = errors.New("document not found")
	// ErrNoAccount is returned when an operation is called without an account id
	ErrNoAccount = errors.New("account id is required")
	// ErrAccountsUnsupported is returned when the backend cannot enumerate accounts
	ErrAccountsUnsupported = errors.New("gateway cannot list accounts")
)

// Record is a single JSON document stored in a collection
type Record = json.RawMessage

// Unsubscribe stops a subscription. It is safe to call more than once.
type Unsubscribe func()

// SnapshotFunc receives the full contents of a collection, sorted by id
type SnapshotFunc func([]Record)

// Gateway is the per-account document store the domain packages persist to.
//
// Every collection lives under an account id. Subscribe delivers the
// current snapshot before returning and a full snapshot after each change;
// there is no partial diff.
type Gateway interface {
	Put(ctx context.Context, accountID, collection, id string, rec Record) error
	Get(ctx context.Context, accountID, collection, id string) (Record, error)
	List(ctx context.Context, accountID, collection string) ([]Record, error)
	Remove(ctx context.Context, accountID, collection, id string) error
	Subscribe(ctx context.Context, accountID, collection string, fn SnapshotFunc) (Unsubscribe, error)
}

// Document pairs a record with its id
type Document struct {
	ID   string
	Body Record
}

// Sorted returns the bodies of docs ordered by id
func Sorted(docs []Document) []Record {
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	out := make([]Record, len(docs))
	for i, d := range docs {
		out[i] = d.Body
	}
	return out
}

// Encode marshals v and strips undefined values from the result
func Encode(v interface{}) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return Clean(data)
}

// Decode unmarshals a record into v
func Decode(rec Record, v interface{}) error {
	if err := json.Unmarshal(rec, v); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	return nil
}

// DecodeAll unmarshals every record into a new T
func DecodeAll[T any](recs []Record) ([]T, error) {
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		var v T
		if err := Decode(rec, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Clean normalizes a JSON document for storage. Object members are
// re-encoded in key order; explicit nulls are kept since they are how
// absent optional fields are written.
func Clean(rec Record) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(rec))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid record: %w", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("invalid record: %w", err)
	}
	return out, nil
}

func checkAccount(accountID string) error {
	if accountID == "" {
		return ErrNoAccount
	}
	return nil
}

// AccountLister is implemented by gateways that can enumerate the
// accounts they hold data for
type AccountLister interface {
	Accounts(ctx context.Context) ([]string, error)
}

// ListAccounts returns the accounts held by g, or ErrAccountsUnsupported
// when g cannot enumerate them
func ListAccounts(ctx context.Context, g Gateway) ([]string, error) {
	lister, ok := g.(AccountLister)
	if !ok {
		return nil, ErrAccountsUnsupported
	}
	return lister.Accounts(ctx)
}
