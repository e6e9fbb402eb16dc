package backup

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/orgadmin/pkg/audit"
)

type fakeExporter struct {
	fail map[string]bool
}

func (f fakeExporter) WriteTo(_ context.Context, accountID string, w io.Writer) error {
	if f.fail[accountID] {
		return errors.New("export failed")
	}
	_, err := io.WriteString(w, `{"account":"`+accountID+`"}`)
	return err
}

type memorySink struct {
	mu      sync.Mutex
	objects map[string]string
}

func (m *memorySink) Write(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string]string{}
	}
	m.objects[key] = string(data)
	return nil
}

type countingCleaner struct {
	mu       sync.Mutex
	accounts []string
}

func (c *countingCleaner) Cleanup(_ context.Context, accountID string, policy audit.RetentionPolicy) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts = append(c.accounts, accountID)
	return 2, nil
}

func accounts(ids ...string) AccountsFunc {
	return func(context.Context) ([]string, error) { return ids, nil }
}

func TestRunner_RunOnce(t *testing.T) {
	sink := &memorySink{}
	cleaner := &countingCleaner{}
	r := NewRunner(DefaultConfig(), fakeExporter{}, accounts("a1", "a2", "a3"), sink, cleaner, nil)
	r.now = func() time.Time { return time.Date(2024, 5, 1, 2, 0, 0, 0, time.UTC) }

	res, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	sort.Strings(res.Keys)
	assert.Equal(t, []string{"a1/20240501T020000Z.json", "a2/20240501T020000Z.json", "a3/20240501T020000Z.json"}, res.Keys)
	assert.Equal(t, `{"account":"a2"}`, sink.objects["a2/20240501T020000Z.json"])
	assert.Equal(t, 6, res.AuditRemoved)
	assert.ElementsMatch(t, []string{"a1", "a2", "a3"}, cleaner.accounts)
}

func TestRunner_RunOnceContinuesPastFailures(t *testing.T) {
	sink := &memorySink{}
	r := NewRunner(Config{Concurrency: 1}, fakeExporter{fail: map[string]bool{"a1": true}}, accounts("a1", "a2"), sink, nil, nil)

	res, err := r.RunOnce(context.Background())
	assert.Error(t, err)
	require.Len(t, res.Keys, 1)
	assert.True(t, strings.HasPrefix(res.Keys[0], "a2/"))
}

func TestRunner_StartRejectsBadSchedule(t *testing.T) {
	r := NewRunner(Config{Schedule: "not a schedule"}, fakeExporter{}, accounts(), &memorySink{}, nil, nil)
	assert.Error(t, r.Start())

	r = NewRunner(DefaultConfig(), fakeExporter{}, accounts(), &memorySink{}, nil, nil)
	require.NoError(t, r.Start())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Stop(ctx)
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(filepath.Join(dir, "backups"))
	require.NoError(t, err)

	require.NoError(t, sink.Write(context.Background(), "a1/x.json", []byte("{}")))

	data, err := os.ReadFile(filepath.Join(dir, "backups", "a1", "x.json"))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestS3Sink_Write(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink, err := NewS3Sink(context.Background(), S3Config{
		Bucket:       "orgadmin",
		Region:       "us-east-1",
		Endpoint:     server.URL,
		AccessKey:    "test",
		SecretKey:    "test",
		UsePathStyle: true,
		Prefix:       "backups",
	})
	require.NoError(t, err)

	require.NoError(t, sink.Write(context.Background(), "a1/x.json", []byte("{}")))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"PUT /orgadmin/backups/a1/x.json"}, paths)

	_, err = NewS3Sink(context.Background(), S3Config{})
	assert.Error(t, err)
}
