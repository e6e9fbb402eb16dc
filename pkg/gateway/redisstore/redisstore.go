// Package redisstore is a gateway.Gateway backed by Redis.
//
// Each account collection is a hash keyed by document id. Writes publish
// on a per-collection channel and subscribers reload the hash when a
// message arrives.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/orgadmin/pkg/gateway"
)

const defaultPrefix = "orgadmin"

// Config configures the Redis connection
type Config struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	MaxRetries int    `yaml:"max_retries"`
	PoolSize   int    `yaml:"pool_size"`
	Prefix     string `yaml:"prefix"`
}

// Store implements gateway.Gateway on Redis hashes and pub/sub
type Store struct {
	client *redis.Client
	prefix string
	log    *logrus.Logger
}

// New connects to Redis and verifies the connection
func New(ctx context.Context, config Config, log *logrus.Logger) (*Store, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.Password != "" {
		opts.Password = config.Password
	}
	if config.DB > 0 {
		opts.DB = config.DB
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client, config.Prefix, log), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, prefix string, log *logrus.Logger) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if log == nil {
		log = logrus.New()
	}
	return &Store{client: client, prefix: prefix, log: log}
}

// Client returns the underlying client, used by health checks
func (s *Store) Client() *redis.Client {
	return s.client
}

// Close closes the client
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) hashKey(accountID, collection string) string {
	return fmt.Sprintf("%s:doc:%s:%s", s.prefix, accountID, collection)
}

func (s *Store) channel(accountID, collection string) string {
	return fmt.Sprintf("%s:changes:%s:%s", s.prefix, accountID, collection)
}

func (s *Store) accountsKey() string {
	return s.prefix + ":accounts"
}

func (s *Store) Put(ctx context.Context, accountID, collection, id string, rec gateway.Record) error {
	if accountID == "" {
		return gateway.ErrNoAccount
	}
	clean, err := gateway.Clean(rec)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.hashKey(accountID, collection), id, string(clean))
		pipe.SAdd(ctx, s.accountsKey(), accountID)
		pipe.Publish(ctx, s.channel(accountID, collection), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put %s/%s failed: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, accountID, collection, id string) (gateway.Record, error) {
	if accountID == "" {
		return nil, gateway.ErrNoAccount
	}
	data, err := s.client.HGet(ctx, s.hashKey(accountID, collection), id).Result()
	if err == redis.Nil {
		return nil, gateway.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("redis get %s/%s failed: %w", collection, id, err)
	}
	return gateway.Record(data), nil
}

func (s *Store) List(ctx context.Context, accountID, collection string) ([]gateway.Record, error) {
	if accountID == "" {
		return nil, gateway.ErrNoAccount
	}
	all, err := s.client.HGetAll(ctx, s.hashKey(accountID, collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list %s failed: %w", collection, err)
	}

	docs := make([]gateway.Document, 0, len(all))
	for id, body := range all {
		docs = append(docs, gateway.Document{ID: id, Body: gateway.Record(body)})
	}
	return gateway.Sorted(docs), nil
}

func (s *Store) Remove(ctx context.Context, accountID, collection, id string) error {
	if accountID == "" {
		return gateway.ErrNoAccount
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.hashKey(accountID, collection), id)
		pipe.Publish(ctx, s.channel(accountID, collection), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis remove %s/%s failed: %w", collection, id, err)
	}
	return nil
}

// Subscribe listens on the collection's change channel. The subscription
// ends when ctx is cancelled or the returned function is called.
func (s *Store) Subscribe(ctx context.Context, accountID, collection string, fn gateway.SnapshotFunc) (gateway.Unsubscribe, error) {
	if accountID == "" {
		return nil, gateway.ErrNoAccount
	}

	pubsub := s.client.Subscribe(ctx, s.channel(accountID, collection))
	// wait for the subscription to be confirmed so no change is missed
	// between the initial snapshot and the first message
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("redis subscribe %s failed: %w", collection, err)
	}

	snapshot, err := s.List(ctx, accountID, collection)
	if err != nil {
		pubsub.Close()
		return nil, err
	}
	fn(snapshot)

	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		messages := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				snapshot, err := s.List(subCtx, accountID, collection)
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						s.log.WithError(err).
							WithField("account_id", accountID).
							WithField("collection", collection).
							Warn("failed to reload collection after change")
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
			cancel()
			pubsub.Close()
			<-done
		})
	}, nil
}

// Accounts returns every account that has written a document
func (s *Store) Accounts(ctx context.Context) ([]string, error) {
	accounts, err := s.client.SMembers(ctx, s.accountsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis accounts failed: %w", err)
	}
	sort.Strings(accounts)
	return accounts, nil
}
