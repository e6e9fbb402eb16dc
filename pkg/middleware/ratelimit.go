package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/orgadmin/pkg/httputil"
	"github.com/platinummonkey/orgadmin/pkg/observability"
	"github.com/platinummonkey/orgadmin/pkg/session"
)

// RateLimitConfig defines a fixed window limit per account
type RateLimitConfig struct {
	RequestsPerWindow int           `yaml:"requests_per_window"`
	WindowDuration    time.Duration `yaml:"window"`
}

// DefaultRateLimitConfig allows 600 requests per minute per account
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 600,
		WindowDuration:    time.Minute,
	}
}

// Limiter counts requests per key. Allow reports whether the request is
// within the window and how many remain.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, remaining int, err error)
	Window() time.Duration
	Limit() int
}

// MemoryLimiter is a single-process fixed window limiter
type MemoryLimiter struct {
	config  RateLimitConfig
	now     func() time.Time
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	start time.Time
	count int
}

// NewMemoryLimiter creates an in-process limiter
func NewMemoryLimiter(config RateLimitConfig) *MemoryLimiter {
	return &MemoryLimiter{
		config:  config,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	win, ok := l.windows[key]
	if !ok || now.Sub(win.start) >= l.config.WindowDuration {
		win = &window{start: now}
		l.windows[key] = win
	}
	win.count++
	return win.count <= l.config.RequestsPerWindow, remaining(l.config.RequestsPerWindow, win.count), nil
}

func (l *MemoryLimiter) Window() time.Duration { return l.config.WindowDuration }
func (l *MemoryLimiter) Limit() int            { return l.config.RequestsPerWindow }

// Cleanup drops expired windows
func (l *MemoryLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, win := range l.windows {
		if now.Sub(win.start) >= l.config.WindowDuration {
			delete(l.windows, key)
		}
	}
}

// StartCleanup runs Cleanup once per window until ctx is done
func (l *MemoryLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(l.config.WindowDuration)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RedisLimiter shares the window across instances with INCR and EXPIRE
type RedisLimiter struct {
	client *redis.Client
	config RateLimitConfig
	prefix string
}

// NewRedisLimiter creates a Redis backed limiter
func NewRedisLimiter(client *redis.Client, config RateLimitConfig, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "orgadmin:ratelimit"
	}
	return &RedisLimiter{client: client, config: config, prefix: prefix}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)

	n, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return true, l.config.RequestsPerWindow, fmt.Errorf("redis error: %w", err)
	}
	// The first hit of a window starts its expiry
	if n == 1 {
		if err := l.client.Expire(ctx, redisKey, l.config.WindowDuration).Err(); err != nil {
			return true, l.config.RequestsPerWindow, fmt.Errorf("redis error: %w", err)
		}
	}

	count := int(n)
	return count <= l.config.RequestsPerWindow, remaining(l.config.RequestsPerWindow, count), nil
}

func (l *RedisLimiter) Window() time.Duration { return l.config.WindowDuration }
func (l *RedisLimiter) Limit() int            { return l.config.RequestsPerWindow }

func remaining(limit, count int) int {
	if count >= limit {
		return 0
	}
	return limit - count
}

// RateLimitMiddleware applies a Limiter keyed by account id, falling back
// to the client address when there is no session
type RateLimitMiddleware struct {
	limiter Limiter
	logger  *observability.Logger
}

// NewRateLimitMiddleware creates the middleware
func NewRateLimitMiddleware(limiter Limiter, logger *observability.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, logger: logger}
}

// Handler wraps next with the limit. Limiter errors fail open.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "ip:" + clientIP(r)
		if accountID := session.AccountID(r.Context()); accountID != "" {
			key = "account:" + accountID
		}

		allowed, left, err := m.limiter.Allow(r.Context(), key)
		if err != nil {
			m.logger.WithError(err).WithField("key", key).Warn("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limiter.Limit()))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(left))
		if !allowed {
			httputil.WriteTooManyRequests(w, m.limiter.Window())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
