package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flaky fails the first n calls of every operation
type flaky struct {
	*Memory
	failures int
	calls    int
}

var errTransient = errors.New("transient")

func (f *flaky) Put(ctx context.Context, accountID, collection, id string, rec Record) error {
	f.calls++
	if f.calls <= f.failures {
		return errTransient
	}
	return f.Memory.Put(ctx, accountID, collection, id, rec)
}

func fastPolicy() *RetryPolicy {
	return NewRetryPolicy(RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
	})
}

func TestNewRetryPolicy_Defaults(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{})
	assert.Equal(t, DefaultRetryConfig(), p.config)
}

func TestRetryPolicy_NextRetryDelay(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          300 * time.Millisecond,
		BackoffMultiplier: 2,
	})

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 300 * time.Millisecond},
		{6, 300 * time.Millisecond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.NextRetryDelay(tt.attempts), "attempts=%d", tt.attempts)
	}
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	p := NewRetryPolicy(DefaultRetryConfig())

	assert.False(t, p.ShouldRetry(1, nil))
	assert.True(t, p.ShouldRetry(1, errTransient))
	assert.True(t, p.ShouldRetry(2, errTransient))
	assert.False(t, p.ShouldRetry(3, errTransient))
	assert.False(t, p.ShouldRetry(1, ErrNotFound))
	assert.False(t, p.ShouldRetry(1, context.Canceled))
}

func TestRetrying_RecoversFromTransientFailures(t *testing.T) {
	inner := &flaky{Memory: NewMemory(), failures: 2}
	g := NewRetrying(inner, fastPolicy())

	require.NoError(t, g.Put(context.Background(), "acct", CollectionEntities, "e1", Record(`{}`)))
	assert.Equal(t, 3, inner.calls)

	_, err := inner.Get(context.Background(), "acct", CollectionEntities, "e1")
	assert.NoError(t, err)
}

func TestRetrying_GivesUpAfterMaxAttempts(t *testing.T) {
	inner := &flaky{Memory: NewMemory(), failures: 10}
	g := NewRetrying(inner, fastPolicy())

	err := g.Put(context.Background(), "acct", CollectionEntities, "e1", Record(`{}`))
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, inner.calls)
}

func TestRetrying_DoesNotRetryNotFound(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func(context.Context) error {
		calls++
		return ErrNotFound
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewRetryPolicy(RetryConfig{MaxAttempts: 3, InitialDelay: time.Hour, MaxDelay: time.Hour})

	calls := 0
	err := p.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errTransient
	})
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)
}
