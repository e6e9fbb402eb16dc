package gateway

import (
	"context"
	"errors"
	"math"
	"time"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	InitialDelay      time.Duration `yaml:"initial_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          2 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryPolicy implements bounded exponential backoff
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a new retry policy, filling unset fields with defaults
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	def := DefaultRetryConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = def.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = def.MaxDelay
	}
	if config.BackoffMultiplier <= 1.0 {
		config.BackoffMultiplier = def.BackoffMultiplier
	}
	return &RetryPolicy{config: config}
}

// ShouldRetry reports whether another attempt should follow a failed one
func (p *RetryPolicy) ShouldRetry(attempts int, err error) bool {
	if err == nil || attempts >= p.config.MaxAttempts {
		return false
	}
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrNoAccount),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// NextRetryDelay calculates the delay after the given number of attempts
func (p *RetryPolicy) NextRetryDelay(attempts int) time.Duration {
	if attempts <= 0 {
		return p.config.InitialDelay
	}

	// delay = initialDelay * (multiplier ^ (attempts - 1))
	delay := float64(p.config.InitialDelay) * math.Pow(p.config.BackoffMultiplier, float64(attempts-1))
	if delay > float64(p.config.MaxDelay) {
		return p.config.MaxDelay
	}
	return time.Duration(delay)
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempts run out. The last error is returned.
func (p *RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); !p.ShouldRetry(attempt, err) {
			return err
		}

		timer := time.NewTimer(p.NextRetryDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

// Retrying wraps a Gateway with a RetryPolicy
type Retrying struct {
	next   Gateway
	policy *RetryPolicy
}

// NewRetrying wraps next. A nil policy uses DefaultRetryConfig.
func NewRetrying(next Gateway, policy *RetryPolicy) *Retrying {
	if policy == nil {
		policy = NewRetryPolicy(DefaultRetryConfig())
	}
	return &Retrying{next: next, policy: policy}
}

func (r *Retrying) Put(ctx context.Context, accountID, collection, id string, rec Record) error {
	return r.policy.Do(ctx, func(ctx context.Context) error {
		return r.next.Put(ctx, accountID, collection, id, rec)
	})
}

func (r *Retrying) Get(ctx context.Context, accountID, collection, id string) (Record, error) {
	var out Record
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.next.Get(ctx, accountID, collection, id)
		return err
	})
	return out, err
}

func (r *Retrying) List(ctx context.Context, accountID, collection string) ([]Record, error) {
	var out []Record
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.next.List(ctx, accountID, collection)
		return err
	})
	return out, err
}

func (r *Retrying) Remove(ctx context.Context, accountID, collection, id string) error {
	return r.policy.Do(ctx, func(ctx context.Context) error {
		return r.next.Remove(ctx, accountID, collection, id)
	})
}

func (r *Retrying) Subscribe(ctx context.Context, accountID, collection string, fn SnapshotFunc) (Unsubscribe, error) {
	var unsub Unsubscribe
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		unsub, err = r.next.Subscribe(ctx, accountID, collection, fn)
		return err
	})
	return unsub, err
}

// Accounts forwards to the wrapped gateway when it can list accounts
func (r *Retrying) Accounts(ctx context.Context) ([]string, error) {
	return ListAccounts(ctx, r.next)
}
