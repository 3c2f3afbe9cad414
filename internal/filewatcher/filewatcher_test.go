package filewatcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

type recordingInvalidator struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingInvalidator) InvalidateResolverPath(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}
func (r *recordingInvalidator) InvalidatePackageJSON(path string) {}
func (r *recordingInvalidator) InvalidateBuildPath(path string)   {}

// waitFor polls cond until it's true or the deadline passes, matching the
// teacher's globwatcher_test.go eventual-consistency waits for filesystem
// notification delivery without pulling in a second assertion library's
// Eventually helper.
func waitFor(t *testing.T, deadline time.Duration, cond func() bool) bool {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestWatcherDetectsFileModification(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.ts")
	assert.NilError(t, os.WriteFile(target, []byte("x"), 0o644), "WriteFile")

	inv := &recordingInvalidator{}
	w := New(nil, dir, inv)
	assert.NilError(t, w.Start(), "Start")
	defer w.Stop()

	assert.NilError(t, os.WriteFile(target, []byte("changed"), 0o644), "WriteFile")

	assert.Check(t, waitFor(t, 2*time.Second, func() bool {
		inv.mu.Lock()
		defer inv.mu.Unlock()
		return len(inv.paths) > 0
	}), "expected at least one invalidated path")
}

func TestStartTwiceReturnsAlreadyRunning(t *testing.T) {
	dir := t.TempDir()
	w := New(nil, dir, nil)
	assert.NilError(t, w.Start(), "Start")
	defer w.Stop()

	err := w.Start()
	assert.Equal(t, ErrAlreadyRunning{}, err)
}

func TestStopWhenNotRunning(t *testing.T) {
	w := New(nil, t.TempDir(), nil)
	err := w.Stop()
	assert.Equal(t, ErrNotRunning{}, err)
}

func TestSubscriberFiresOnceForWave(t *testing.T) {
	dir := t.TempDir()
	assert.NilError(t, os.WriteFile(filepath.Join(dir, "a.ts"), []byte("x"), 0o644), "WriteFile")

	w := New(nil, dir, &recordingInvalidator{})
	assert.NilError(t, w.Start(), "Start")
	defer w.Stop()

	notify := make(chan time.Time, 4)
	sub := &Subscriber{Root: dir, Notify: notify}
	w.Subscribe(sub)

	assert.NilError(t, os.WriteFile(filepath.Join(dir, "a.ts"), []byte("y"), 0o644), "WriteFile")
	assert.NilError(t, os.WriteFile(filepath.Join(dir, "b.ts"), []byte("z"), 0o644), "WriteFile")

	assert.Check(t, waitFor(t, 2*time.Second, func() bool { return len(notify) >= 1 }), "expected at least one rebuild-wave notification")
	time.Sleep(4 * debounceWindow)
	assert.Equal(t, len(notify), 1, "expected both writes to coalesce into one notification")

	w.Unsubscribe(sub)
}
