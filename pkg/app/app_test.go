package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/orgadmin/pkg/config"
	"github.com/platinummonkey/orgadmin/pkg/middleware"
	"github.com/platinummonkey/orgadmin/pkg/observability"
	"github.com/platinummonkey/orgadmin/pkg/session"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, observability.JSONFormat, &bytes.Buffer{})
}

func newApp(t *testing.T, mutate func(*config.Config)) *App {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	a, err := New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNew_Memory(t *testing.T) {
	a := newApp(t, nil)
	assert.NotNil(t, a.Store)
	assert.NotNil(t, a.Catalog)
	assert.Nil(t, a.Local)
	assert.Nil(t, a.Limiter(context.Background()))
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Gateway.Backend = "etcd"
	_, err := New(context.Background(), cfg, testLogger())
	assert.Error(t, err)
}

func TestNew_SQLiteWithLocal(t *testing.T) {
	dir := t.TempDir()
	a := newApp(t, func(c *config.Config) {
		c.Gateway.Backend = config.BackendSQLite
		c.Gateway.SQLitePath = filepath.Join(dir, "remote.db")
		c.Gateway.LocalPath = filepath.Join(dir, "local.db")
		c.Gateway.CacheOn = true
	})
	require.NotNil(t, a.Local)

	status := a.Health.Check(context.Background())
	assert.Equal(t, observability.StatusHealthy, status.Status)
	assert.Contains(t, status.Dependencies, "sqlite")

	seeded, err := a.Transfer.InitializeDefaults(context.Background(), "acct-1")
	require.NoError(t, err)
	assert.True(t, seeded)

	accounts, err := a.Accounts(context.Background())
	require.NoError(t, err)
	assert.Contains(t, accounts, "acct-1")
}

func TestNew_RedisSharesLimiterClient(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newApp(t, func(c *config.Config) {
		c.Gateway.Backend = config.BackendRedis
		c.Gateway.Redis.URL = "redis://" + mr.Addr()
		c.Server.RateLimitEnabled = true
	})

	limiter := a.Limiter(context.Background())
	require.IsType(t, &middleware.RedisLimiter{}, limiter)

	allowed, _, err := limiter.Allow(context.Background(), "account:acct-1")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.True(t, mr.Exists("orgadmin:ratelimit:account:acct-1"))
}

func TestLimiter_Memory(t *testing.T) {
	a := newApp(t, func(c *config.Config) { c.Server.RateLimitEnabled = true })
	assert.IsType(t, &middleware.MemoryLimiter{}, a.Limiter(context.Background()))
}

func TestHandler(t *testing.T) {
	a := newApp(t, nil)
	h, err := a.Handler(context.Background())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	req.Header.Set(session.DefaultAccountHeader, "acct-1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "acct-1")
}

func TestBackupRunner_Filesystem(t *testing.T) {
	dir := t.TempDir()
	a := newApp(t, func(c *config.Config) { c.Backup.Dir = dir })

	_, err := a.Transfer.InitializeDefaults(context.Background(), "acct-1")
	require.NoError(t, err)

	runner, err := a.BackupRunner(context.Background())
	require.NoError(t, err)
	result, err := runner.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Keys, 1)

	_, err = os.Stat(filepath.Join(dir, filepath.FromSlash(result.Keys[0])))
	assert.NoError(t, err)
}

func TestImportWatcher(t *testing.T) {
	dir := t.TempDir()
	a := newApp(t, func(c *config.Config) { c.ImportWatch.Dir = dir })
	w, err := a.ImportWatcher()
	require.NoError(t, err)
	assert.NotNil(t, w)
}
