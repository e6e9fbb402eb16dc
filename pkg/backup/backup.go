// Package backup periodically exports every account bundle to a Sink and
// prunes old audit entries.
package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/orgadmin/pkg/audit"
)

// Exporter writes one account bundle
type Exporter interface {
	WriteTo(ctx context.Context, accountID string, w io.Writer) error
}

// AccountsFunc lists the accounts to back up
type AccountsFunc func(ctx context.Context) ([]string, error)

// AuditCleaner prunes expired audit entries
type AuditCleaner interface {
	Cleanup(ctx context.Context, accountID string, policy audit.RetentionPolicy) (int, error)
}

// Config configures a Runner
type Config struct {
	Schedule        string        `yaml:"schedule"`
	Concurrency     int           `yaml:"concurrency"`
	AuditRetention  time.Duration `yaml:"audit_retention"`
	TimestampFormat string        `yaml:"-"`
}

// DefaultConfig runs nightly with four workers and keeps 90 days of audit entries
func DefaultConfig() Config {
	return Config{
		Schedule:       "0 2 * * *",
		Concurrency:    4,
		AuditRetention: 90 * 24 * time.Hour,
	}
}

// Result summarizes one run
type Result struct {
	Keys         []string
	AuditRemoved int
}

// Runner exports accounts to a sink
type Runner struct {
	config   Config
	exporter Exporter
	accounts AccountsFunc
	sink     Sink
	cleaner  AuditCleaner
	log      logrus.FieldLogger
	now      func() time.Time

	cron *cron.Cron
}

// NewRunner creates a runner. cleaner may be nil.
func NewRunner(config Config, exporter Exporter, accounts AccountsFunc, sink Sink, cleaner AuditCleaner, log logrus.FieldLogger) *Runner {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.TimestampFormat == "" {
		config.TimestampFormat = "20060102T150405Z"
	}
	if log == nil {
		log = logrus.New()
	}
	return &Runner{
		config:   config,
		exporter: exporter,
		accounts: accounts,
		sink:     sink,
		cleaner:  cleaner,
		log:      log.WithField("component", "backup"),
		now:      time.Now,
	}
}

// RunOnce backs up every account in parallel. Accounts that fail are
// logged; the first error is returned after all accounts were attempted.
func (r *Runner) RunOnce(ctx context.Context) (Result, error) {
	accountIDs, err := r.accounts(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list accounts: %w", err)
	}

	stamp := r.now().UTC().Format(r.config.TimestampFormat)
	var (
		mu     sync.Mutex
		result Result
	)

	var eg errgroup.Group
	eg.SetLimit(r.config.Concurrency)
	for _, accountID := range accountIDs {
		accountID := accountID
		eg.Go(func() error {
			key, removed, err := r.backupAccount(ctx, accountID, stamp)
			if err != nil {
				r.log.WithError(err).WithField("account_id", accountID).Error("backup failed")
				return err
			}
			mu.Lock()
			result.Keys = append(result.Keys, key)
			result.AuditRemoved += removed
			mu.Unlock()
			return nil
		})
	}
	err = eg.Wait()

	r.log.WithField("accounts", len(accountIDs)).
		WithField("written", len(result.Keys)).
		WithField("audit_removed", result.AuditRemoved).
		Info("backup run finished")
	return result, err
}

func (r *Runner) backupAccount(ctx context.Context, accountID, stamp string) (string, int, error) {
	var buf bytes.Buffer
	if err := r.exporter.WriteTo(ctx, accountID, &buf); err != nil {
		return "", 0, err
	}
	key := fmt.Sprintf("%s/%s.json", accountID, stamp)
	if err := r.sink.Write(ctx, key, buf.Bytes()); err != nil {
		return "", 0, err
	}

	removed := 0
	if r.cleaner != nil && r.config.AuditRetention > 0 {
		n, err := r.cleaner.Cleanup(ctx, accountID, audit.RetentionPolicy{MaxAge: r.config.AuditRetention})
		if err != nil {
			r.log.WithError(err).WithField("account_id", accountID).Warn("audit cleanup failed")
		}
		removed = n
	}
	return key, removed, nil
}

// Start schedules RunOnce on the configured cron schedule
func (r *Runner) Start() error {
	c := cron.New()
	_, err := c.AddFunc(r.config.Schedule, func() {
		if _, err := r.RunOnce(context.Background()); err != nil {
			r.log.WithError(err).Error("scheduled backup failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid backup schedule %q: %w", r.config.Schedule, err)
	}
	r.cron = c
	c.Start()
	r.log.WithField("schedule", r.config.Schedule).Info("backup scheduler started")
	return nil
}

// Stop halts the scheduler and waits for a running backup to finish or ctx to end
func (r *Runner) Stop(ctx context.Context) {
	if r.cron == nil {
		return
	}
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
