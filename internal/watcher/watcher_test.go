package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T) (*Watcher, string) {
	t.Helper()
	w, err := New(100 * time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w, t.TempDir()
}

// waitEvent blocks for one event or fails the test.
func waitEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case ev, ok := <-w.Events():
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for watcher event")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, w *Watcher, d time.Duration) {
	t.Helper()
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event for %s", ev.Path)
	case <-time.After(d):
	}
}

func TestExternalWriteEmitsEvent(t *testing.T) {
	w, dir := newTestWatcher(t)
	path := filepath.Join(dir, "landing-page.css")
	require.NoError(t, w.Allow(path))

	require.NoError(t, os.WriteFile(path, []byte(".a { color: red; }"), 0o644))

	ev := waitEvent(t, w)
	abs, _ := filepath.Abs(path)
	assert.Equal(t, abs, ev.Path)
}

func TestDebounceCoalescesBursts(t *testing.T) {
	w, dir := newTestWatcher(t)
	path := filepath.Join(dir, "landing-page.css")
	require.NoError(t, w.Allow(path))

	// An editor autosave burst: several writes inside the settle window.
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte{byte('a' + i)}, 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	waitEvent(t, w)
	assertNoEvent(t, w, 400*time.Millisecond)
}

func TestSelfWriteSuppressed(t *testing.T) {
	w, dir := newTestWatcher(t)
	path := filepath.Join(dir, "landing-page.css")
	require.NoError(t, w.Allow(path))

	content := []byte(".vss-r1 { left: 1px; }")
	w.Stamp(path, content)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	assertNoEvent(t, w, 600*time.Millisecond)
}

func TestStampOnlySuppressesMatchingContent(t *testing.T) {
	w, dir := newTestWatcher(t)
	path := filepath.Join(dir, "landing-page.css")
	require.NoError(t, w.Allow(path))

	// The stamp says one thing, the file ends up saying another: that is a
	// real external change and must come through.
	w.Stamp(path, []byte("expected"))
	require.NoError(t, os.WriteFile(path, []byte("surprise"), 0o644))

	waitEvent(t, w)
}

func TestDisallowedPathsAreIgnored(t *testing.T) {
	w, dir := newTestWatcher(t)
	allowed := filepath.Join(dir, "landing-page.css")
	other := filepath.Join(dir, "unrelated.css")
	require.NoError(t, w.Allow(allowed))

	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))
	assertNoEvent(t, w, 500*time.Millisecond)

	w.Disallow(allowed)
	require.NoError(t, os.WriteFile(allowed, []byte("y"), 0o644))
	assertNoEvent(t, w, 500*time.Millisecond)
}
