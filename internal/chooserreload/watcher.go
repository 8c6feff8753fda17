// Package chooserreload watches the chooser configuration file for
// changes and hands the reloaded config to a caller-supplied callback,
// which makes the fresh chooser.Compose call. Adapted from the
// teacher's pkg/hotreload.ConfigReloader: same fsnotify-plus-debounce
// watch loop and content-hash change detection, trimmed of the
// webhook/backup/failsafe machinery a chooser config file has no use
// for. Per spec.md §9 ("the composer returns a fresh stack per task"),
// a reload never mutates a live selector stack in place — it only
// notifies the caller of the old and new chooser.Config so the caller
// can build ("re-compose") and swap in a new stack itself.
package chooserreload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/streamrt/chooser/internal/chooserconfig"
	"github.com/streamrt/chooser/pkg/chooser"
	apperrors "github.com/streamrt/chooser/pkg/errors"
)

// OnChange is invoked with the previous and newly-loaded configuration
// whenever the watched file's content hash changes. It never receives
// a partially-applied config: Load already validates before Watcher
// calls back.
type OnChange func(old, new chooser.Config)

// Watcher watches one chooser configuration file and reloads it on
// change, debounced the same way the teacher's ConfigReloader is.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *logrus.Logger
	onChange OnChange

	fsWatcher *fsnotify.Watcher

	mu          sync.Mutex
	currentHash string
	current     chooser.Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Watcher over path, performing an initial Load so
// Current() is populated before the caller ever calls Start.
func New(path string, debounce time.Duration, logger *logrus.Logger, onChange OnChange) (*Watcher, error) {
	cfg, err := chooserconfig.Load(path)
	if err != nil {
		return nil, err
	}

	hash, err := hashFile(path)
	if err != nil {
		return nil, apperrors.ConfigurationError("watch", "hashing initial configuration file").Wrap(err)
	}

	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}

	return &Watcher{
		path:        path,
		debounce:    debounce,
		logger:      logger,
		onChange:    onChange,
		currentHash: hash,
		current:     cfg,
	}, nil
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() chooser.Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Start begins watching the configuration file's directory (fsnotify
// watches directories more reliably than individual files across
// editors that replace-on-save) in a background goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return apperrors.ConfigurationError("watch", "creating file watcher").Wrap(err)
	}
	w.fsWatcher = fsw

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return apperrors.ConfigurationError("watch", "watching configuration directory").
			WithMetadata("dir", dir).Wrap(err)
	}

	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.loop()

	return nil
}

// Stop stops the watch goroutine and releases the underlying fsnotify
// watcher.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	if w.fsWatcher != nil {
		w.fsWatcher.Close()
	}
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var debounceTimer *time.Timer
	pending := false

	for {
		select {
		case <-w.ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending = true
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(w.debounce)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("chooser config watcher error")

		case <-timerChan(debounceTimer):
			if pending {
				pending = false
				w.reload()
			}
		}
	}
}

func timerChan(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func (w *Watcher) reload() {
	hash, err := hashFile(w.path)
	if err != nil {
		w.logger.WithError(err).Warn("failed to hash chooser config after change")
		return
	}

	w.mu.Lock()
	if hash == w.currentHash {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	cfg, err := chooserconfig.Load(w.path)
	if err != nil {
		w.logger.WithError(err).Error("chooser config reload failed validation, keeping previous config")
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = cfg
	w.currentHash = hash
	w.mu.Unlock()

	w.logger.WithField("path", w.path).Info("chooser config reloaded")

	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
