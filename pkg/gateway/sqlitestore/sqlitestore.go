// Package sqlitestore is the local fallback gateway: a single-file SQLite
// database used when no remote store is reachable, and the source for
// local-to-remote migration.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/orgadmin/pkg/gateway"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	account_id TEXT NOT NULL,
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	body       TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (account_id, collection, id)
);
`

// Store implements gateway.Gateway on SQLite. Change notifications are
// in-process only.
type Store struct {
	db     *sql.DB
	log    *logrus.Logger
	fanout gateway.Fanout
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger used for notification failures
func WithLogger(log *logrus.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// Open opens (or creates) the database at path. Use ":memory:" for tests.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logrus.New()
	}
	return s, nil
}

// DB returns the underlying database
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Put(ctx context.Context, accountID, collection, id string, rec gateway.Record) error {
	if accountID == "" {
		return gateway.ErrNoAccount
	}
	clean, err := gateway.Clean(rec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO documents (account_id, collection, id, body, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (account_id, collection, id)
		DO UPDATE SET body = excluded.body, updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query, accountID, collection, id, string(clean)); err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", collection, id, err)
	}
	s.notify(ctx, accountID, collection)
	return nil
}

func (s *Store) Get(ctx context.Context, accountID, collection, id string) (gateway.Record, error) {
	if accountID == "" {
		return nil, gateway.ErrNoAccount
	}

	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE account_id = ? AND collection = ? AND id = ?`,
		accountID, collection, id,
	).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, gateway.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	return gateway.Record(body), nil
}

func (s *Store) List(ctx context.Context, accountID, collection string) ([]gateway.Record, error) {
	if accountID == "" {
		return nil, gateway.ErrNoAccount
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, body FROM documents WHERE account_id = ? AND collection = ? ORDER BY id`,
		accountID, collection,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []gateway.Document
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", collection, err)
		}
		docs = append(docs, gateway.Document{ID: id, Body: gateway.Record(body)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return gateway.Sorted(docs), nil
}

func (s *Store) Remove(ctx context.Context, accountID, collection, id string) error {
	if accountID == "" {
		return gateway.ErrNoAccount
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE account_id = ? AND collection = ? AND id = ?`,
		accountID, collection, id,
	)
	if err != nil {
		return fmt.Errorf("failed to remove %s/%s: %w", collection, id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.notify(ctx, accountID, collection)
	}
	return nil
}

func (s *Store) Subscribe(ctx context.Context, accountID, collection string, fn gateway.SnapshotFunc) (gateway.Unsubscribe, error) {
	if accountID == "" {
		return nil, gateway.ErrNoAccount
	}
	key := gateway.Key(accountID, collection)
	unsub := s.fanout.Add(key, fn)
	if err := s.fanout.Replay(key, fn, s.loader(ctx, accountID, collection)); err != nil {
		unsub()
		return nil, err
	}
	return unsub, nil
}

// Accounts returns every account id that owns at least one document
func (s *Store) Accounts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT account_id FROM documents ORDER BY account_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		accounts = append(accounts, id)
	}
	return accounts, rows.Err()
}

// notify runs after a committed write, so a failed snapshot is logged and
// subscribers catch up on the next change.
func (s *Store) notify(ctx context.Context, accountID, collection string) {
	err := s.fanout.Notify(gateway.Key(accountID, collection), s.loader(ctx, accountID, collection))
	if err != nil {
		s.log.WithError(err).
			WithField("account_id", accountID).
			WithField("collection", collection).
			Warn("failed to load snapshot after write")
	}
}

func (s *Store) loader(ctx context.Context, accountID, collection string) gateway.LoadFunc {
	return func() ([]gateway.Record, error) {
		return s.List(ctx, accountID, collection)
	}
}
