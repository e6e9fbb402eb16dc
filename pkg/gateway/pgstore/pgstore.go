// Package pgstore is a gateway.Gateway backed by a single PostgreSQL
// documents table. A trigger issues pg_notify on every change and
// subscriptions reload their collection when notified.
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/orgadmin/pkg/gateway"
)

// NotifyChannel is the channel the documents trigger notifies on
const NotifyChannel = "orgadmin_documents"

//go:embed migrations/*.sql
var migrations embed.FS

// Config configures the PostgreSQL connection
type Config struct {
	URL             string        `yaml:"url"`
	MaxConns        int           `yaml:"max_conns"`
	MinConns        int           `yaml:"min_conns"`
	Timeout         time.Duration `yaml:"timeout"`
	ListenerMinWait time.Duration `yaml:"listener_min_wait"`
	ListenerMaxWait time.Duration `yaml:"listener_max_wait"`
}

// Notifier delivers LISTEN notifications. *pq.Listener satisfies it.
type Notifier interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Close() error
}

type subscription struct {
	key    string
	signal chan struct{}
}

// Store implements gateway.Gateway on PostgreSQL
type Store struct {
	db       *sql.DB
	notifier Notifier
	log      *logrus.Logger

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	listen sync.Once
	err    error
	stop   chan struct{}
}

// Open connects to PostgreSQL and prepares a LISTEN connection
func Open(ctx context.Context, config Config, log *logrus.Logger) (*Store, error) {
	if log == nil {
		log = logrus.New()
	}

	db, err := sql.Open("postgres", config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if config.MaxConns > 0 {
		db.SetMaxOpenConns(config.MaxConns)
	}
	if config.MinConns > 0 {
		db.SetMaxIdleConns(config.MinConns)
	}
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	minWait, maxWait := config.ListenerMinWait, config.ListenerMaxWait
	if minWait <= 0 {
		minWait = 10 * time.Second
	}
	if maxWait <= 0 {
		maxWait = time.Minute
	}
	listener := pq.NewListener(config.URL, minWait, maxWait, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.WithError(err).WithField("event", int(ev)).Warn("postgres listener event")
		}
	})

	return New(db, listener, log), nil
}

// New wraps an open database and notifier
func New(db *sql.DB, notifier Notifier, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.New()
	}
	return &Store{
		db:       db,
		notifier: notifier,
		log:      log,
		subs:     make(map[*subscription]struct{}),
		stop:     make(chan struct{}),
	}
}

// DB returns the underlying database, used by health checks
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate applies the embedded schema migrations in name order
func (s *Store) Migrate(ctx context.Context) error {
	files, err := fs.Glob(migrations, "migrations/*.up.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, name := range files {
		body, err := migrations.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
		s.log.WithField("migration", name).Debug("applied migration")
	}
	return nil
}

// Close stops every subscription and closes both connections
func (s *Store) Close() error {
	s.mu.Lock()
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	s.mu.Unlock()

	if s.notifier != nil {
		s.notifier.Close()
	}
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
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (account_id, collection, id)
		DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()
	`
	if _, err := s.db.ExecContext(ctx, query, accountID, collection, id, []byte(clean)); err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, accountID, collection, id string) (gateway.Record, error) {
	if accountID == "" {
		return nil, gateway.ErrNoAccount
	}

	query := `SELECT body FROM documents WHERE account_id = $1 AND collection = $2 AND id = $3`
	var body []byte
	err := s.db.QueryRowContext(ctx, query, accountID, collection, id).Scan(&body)
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

	query := `SELECT id, body FROM documents WHERE account_id = $1 AND collection = $2 ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, accountID, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []gateway.Document
	for rows.Next() {
		var id string
		var body []byte
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", collection, err)
		}
		docs = append(docs, gateway.Document{ID: id, Body: gateway.Record(body)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	return gateway.Sorted(docs), nil
}

func (s *Store) Remove(ctx context.Context, accountID, collection, id string) error {
	if accountID == "" {
		return gateway.ErrNoAccount
	}

	query := `DELETE FROM documents WHERE account_id = $1 AND collection = $2 AND id = $3`
	if _, err := s.db.ExecContext(ctx, query, accountID, collection, id); err != nil {
		return fmt.Errorf("failed to remove %s/%s: %w", collection, id, err)
	}
	return nil
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

// Subscribe reloads the collection whenever the documents trigger fires
// for it. The subscription ends when ctx is cancelled, the returned
// function is called, or the store is closed.
func (s *Store) Subscribe(ctx context.Context, accountID, collection string, fn gateway.SnapshotFunc) (gateway.Unsubscribe, error) {
	if accountID == "" {
		return nil, gateway.ErrNoAccount
	}
	if err := s.startListening(); err != nil {
		return nil, err
	}

	sub := &subscription{
		key:    gateway.Key(accountID, collection),
		signal: make(chan struct{}, 1),
	}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	remove := func() {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
	}

	snapshot, err := s.List(ctx, accountID, collection)
	if err != nil {
		remove()
		return nil, err
	}
	fn(snapshot)

	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-subCtx.Done():
				return
			case <-s.stop:
				return
			case <-sub.signal:
				snapshot, err := s.List(subCtx, accountID, collection)
				if err != nil {
					if subCtx.Err() == nil {
						s.log.WithError(err).
							WithField("account_id", accountID).
							WithField("collection", collection).
							Warn("failed to reload collection after notification")
					}
					continue
				}
				fn(snapshot)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			remove()
			cancel()
			<-done
		})
	}, nil
}

func (s *Store) startListening() error {
	s.listen.Do(func() {
		if s.notifier == nil {
			s.err = fmt.Errorf("postgres store has no notifier")
			return
		}
		if err := s.notifier.Listen(NotifyChannel); err != nil {
			s.err = fmt.Errorf("failed to listen on %s: %w", NotifyChannel, err)
			return
		}
		go s.dispatch()
	})
	return s.err
}

func (s *Store) dispatch() {
	notifications := s.notifier.NotificationChannel()
	for {
		select {
		case <-s.stop:
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			// a nil notification follows a reconnect; anything may have changed
			if n == nil {
				s.signal(func(string) bool { return true })
				continue
			}
			if _, _, ok := splitKey(n.Extra); !ok {
				s.log.WithField("payload", n.Extra).Warn("ignoring malformed document notification")
				continue
			}
			key := n.Extra
			s.signal(func(k string) bool { return k == key })
		}
	}
}

func (s *Store) signal(match func(key string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		if !match(sub.key) {
			continue
		}
		select {
		case sub.signal <- struct{}{}:
		default:
		}
	}
}

// splitKey splits a notification payload into account id and collection
func splitKey(payload string) (accountID, collection string, ok bool) {
	i := strings.LastIndex(payload, "/")
	if i <= 0 || i == len(payload)-1 {
		return "", "", false
	}
	return payload[:i], payload[i+1:], true
}
