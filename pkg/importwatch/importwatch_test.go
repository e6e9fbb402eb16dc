package importwatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/orgadmin/pkg/transfer"
)

type recordingImporter struct {
	mu       sync.Mutex
	accounts []string
	err      error
}

func (r *recordingImporter) Import(_ context.Context, accountID string, _ transfer.Bundle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts = append(r.accounts, accountID)
	return r.err
}

func (r *recordingImporter) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.accounts...)
}

const bundle = `{"entities":[],"settings":{},"permissions":[]}`

func TestWatcher_Process(t *testing.T) {
	dir := t.TempDir()
	imp := &recordingImporter{}
	w, err := New(dir, 10*time.Millisecond, imp, nil)
	require.NoError(t, err)

	path := filepath.Join(dir, "acct-1.json")
	require.NoError(t, os.WriteFile(path, []byte(bundle), 0o644))

	require.NoError(t, w.Process(context.Background(), path))
	assert.Equal(t, []string{"acct-1"}, imp.seen())
	assert.FileExists(t, filepath.Join(dir, "processed", "acct-1.json"))
	assert.NoFileExists(t, path)
}

func TestWatcher_ProcessFailuresMoveToFailed(t *testing.T) {
	dir := t.TempDir()
	imp := &recordingImporter{err: errors.New("boom")}
	w, err := New(dir, 10*time.Millisecond, imp, nil)
	require.NoError(t, err)

	good := filepath.Join(dir, "acct-1.json")
	require.NoError(t, os.WriteFile(good, []byte(bundle), 0o644))
	assert.Error(t, w.Process(context.Background(), good))
	assert.FileExists(t, filepath.Join(dir, "failed", "acct-1.json"))

	bad := filepath.Join(dir, "acct-2.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	assert.ErrorIs(t, w.Process(context.Background(), bad), transfer.ErrInvalidBundle)
	assert.FileExists(t, filepath.Join(dir, "failed", "acct-2.json"))
}

func TestWatcher_RunPicksUpExistingAndNewFiles(t *testing.T) {
	dir := t.TempDir()
	imp := &recordingImporter{}
	w, err := New(dir, 20*time.Millisecond, imp, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "early.json"), []byte(bundle), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "processed", "early.json"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	tmp := filepath.Join(t.TempDir(), "late.json")
	require.NoError(t, os.WriteFile(tmp, []byte(bundle), 0o644))
	require.NoError(t, os.Rename(tmp, filepath.Join(dir, "late.json")))

	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "processed", "late.json"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.ElementsMatch(t, []string{"early", "late"}, imp.seen())
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}
