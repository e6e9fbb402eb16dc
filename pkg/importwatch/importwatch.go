// Package importwatch imports bundles dropped into a directory. A file
// named <accountID>.json is imported into that account and then moved to
// processed/, or to failed/ when the import fails.
package importwatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/orgadmin/pkg/async"
	"github.com/platinummonkey/orgadmin/pkg/transfer"
)

const (
	processedDir   = "processed"
	failedDir      = "failed"
	processTimeout = 2 * time.Minute
)

// Importer applies a bundle to an account
type Importer interface {
	Import(ctx context.Context, accountID string, b transfer.Bundle) error
}

// Watcher imports bundles from a drop folder
type Watcher struct {
	dir      string
	delay    time.Duration
	importer Importer
	log      logrus.FieldLogger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a watcher on dir. Files are processed once no event has
// been seen for them during delay.
func New(dir string, delay time.Duration, importer Importer, log logrus.FieldLogger) (*Watcher, error) {
	for _, sub := range []string{processedDir, failedDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", sub, err)
		}
	}
	if log == nil {
		log = logrus.New()
	}
	return &Watcher{
		dir:      dir,
		delay:    delay,
		importer: importer,
		log:      log.WithField("component", "importwatch"),
		pending:  map[string]*time.Timer{},
	}, nil
}

// Run processes files already present, then watches for new ones until ctx ends
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.scanExisting(ctx)
	w.log.WithField("dir", w.dir).Info("watching for bundles")

	for {
		select {
		case <-ctx.Done():
			w.stopPending()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 && isBundle(event.Name) {
				w.schedule(ctx, event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("watcher error")
		}
	}
}

func (w *Watcher) scanExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.WithError(err).Warn("failed to scan drop folder")
		return
	}
	for _, entry := range entries {
		path := filepath.Join(w.dir, entry.Name())
		if !entry.IsDir() && isBundle(path) {
			w.schedule(ctx, path)
		}
	}
}

// schedule (re)arms the timer for path
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.delay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		async.SafeGo(ctx, processTimeout, "import "+filepath.Base(path), w.log, func(ctx context.Context) error {
			return w.Process(ctx, path)
		})
	})
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

// Process imports one bundle file and moves it out of the drop folder
func (w *Watcher) Process(ctx context.Context, path string) error {
	accountID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	err := w.importFile(ctx, accountID, path)
	dest := processedDir
	if err != nil {
		dest = failedDir
	}
	if mvErr := os.Rename(path, filepath.Join(w.dir, dest, filepath.Base(path))); mvErr != nil && err == nil {
		err = fmt.Errorf("failed to move bundle: %w", mvErr)
	}
	if err == nil {
		w.log.WithField("account_id", accountID).Info("bundle imported from drop folder")
	}
	return err
}

func (w *Watcher) importFile(ctx context.Context, accountID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := transfer.Decode(f)
	if err != nil {
		return err
	}
	return w.importer.Import(ctx, accountID, b)
}

func isBundle(path string) bool {
	name := filepath.Base(path)
	return filepath.Ext(name) == ".json" && !strings.HasPrefix(name, ".") && name != ".json"
}
