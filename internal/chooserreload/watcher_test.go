package chooserreload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/streamrt/chooser/pkg/chooser"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func writeConfig(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "chooser.yaml")
	writeConfig(t, path, "task.chooser.batch.size: \"1\"\n")

	changes := make(chan chooser.Config, 1)
	w, err := New(path, 20*time.Millisecond, testLogger(), func(old, new chooser.Config) {
		changes <- new
	})
	require.NoError(t, err)
	require.Equal(t, 1, w.Current().BatchSize, "expected initial BatchSize 1")

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))

	// Give fsnotify's watch registration time to settle before the
	// write, otherwise the event can race the watch setup.
	time.Sleep(20 * time.Millisecond)
	writeConfig(t, path, "task.chooser.batch.size: \"2\"\n")

	select {
	case cfg := <-changes:
		assert.Equal(t, 2, cfg.BatchSize, "expected reloaded BatchSize 2")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the reload callback")
	}

	assert.Equal(t, 2, w.Current().BatchSize, "expected Current() to reflect the reload")

	cancel()
	w.Stop()
}

func TestWatcher_NoCallbackWhenContentUnchanged(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "chooser.yaml")
	writeConfig(t, path, "task.chooser.batch.size: \"1\"\n")

	changes := make(chan chooser.Config, 1)
	w, err := New(path, 10*time.Millisecond, testLogger(), func(old, new chooser.Config) {
		changes <- new
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	defer func() {
		cancel()
		w.Stop()
	}()

	time.Sleep(20 * time.Millisecond)
	writeConfig(t, path, "task.chooser.batch.size: \"1\"\n") // identical content

	select {
	case cfg := <-changes:
		t.Fatalf("expected no reload callback for unchanged content, got %+v", cfg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNew_InvalidConfigErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chooser.yaml")
	writeConfig(t, path, "task.chooser.batch.size: \"-1\"\n")

	_, err := New(path, 0, testLogger(), nil)
	assert.Error(t, err, "expected an error constructing a Watcher over an invalid config")
}
