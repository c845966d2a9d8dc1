package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSettle = 20 * time.Millisecond

// mockFsWatcher implements FsWatcher with injectable channels for testing.
type mockFsWatcher struct {
	events chan fsnotify.Event
	errs   chan error
	added  []string
	closed bool
}

func newMockFsWatcher() *mockFsWatcher {
	return &mockFsWatcher{
		events: make(chan fsnotify.Event, 10),
		errs:   make(chan error, 10),
	}
}

func (m *mockFsWatcher) Add(name string) error         { m.added = append(m.added, name); return nil }
func (m *mockFsWatcher) Close() error                  { m.closed = true; return nil }
func (m *mockFsWatcher) Events() <-chan fsnotify.Event { return m.events }
func (m *mockFsWatcher) Errors() <-chan error          { return m.errs }

// uploadRecorder collects uploaded paths.
type uploadRecorder struct {
	mu    sync.Mutex
	paths []string
	fail  map[string]error
}

func (u *uploadRecorder) upload(_ context.Context, path string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.paths = append(u.paths, filepath.Base(path))

	return u.fail[filepath.Base(path)]
}

func (u *uploadRecorder) uploaded() []string {
	u.mu.Lock()
	defer u.mu.Unlock()

	return append([]string(nil), u.paths...)
}

func writeFile(t *testing.T, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o600))

	return path
}

// startDropDir runs a DropDir in the background and returns a stop function
// that waits for Run to return. Stop is idempotent; the test cleanup calls it
// again.
func startDropDir(t *testing.T, d *DropDir) func() error {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() { errCh <- d.Run(ctx) }()

	stop := sync.OnceValue(func() error {
		cancel()

		select {
		case err := <-errCh:
			return err
		case <-time.After(5 * time.Second):
			t.Error("Run did not return after cancel")

			return nil
		}
	})

	t.Cleanup(func() { _ = stop() })

	return stop
}

func TestDropDir_UploadsCreatedFileAfterSettle(t *testing.T) {
	dir := t.TempDir()
	w := newMockFsWatcher()
	rec := &uploadRecorder{}
	d := New(dir, w, rec.upload, Options{Settle: testSettle}, nil)
	stop := startDropDir(t, d)

	path := writeFile(t, dir, "report.pdf")
	w.events <- fsnotify.Event{Name: path, Op: fsnotify.Create}
	w.events <- fsnotify.Event{Name: path, Op: fsnotify.Write}

	require.Eventually(t, func() bool { return len(rec.uploaded()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"report.pdf"}, rec.uploaded())

	require.NoError(t, stop())
	assert.Equal(t, []string{dir}, w.added)
	assert.True(t, w.closed)
}

func TestStartDropDir_StopTwice(t *testing.T) {
	d := New(t.TempDir(), newMockFsWatcher(), (&uploadRecorder{}).upload, Options{Settle: testSettle}, nil)
	stop := startDropDir(t, d)

	first := stop()
	assert.Equal(t, first, stop())
}

func TestDropDir_SkipsExcludedAndNestedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o700))

	w := newMockFsWatcher()
	rec := &uploadRecorder{}
	d := New(dir, w, rec.upload, Options{Settle: testSettle}, nil)
	stop := startDropDir(t, d)

	for _, name := range []string{".hidden", "movie.crdownload", "notes.swp", filepath.Join("sub", "deep.txt")} {
		w.events <- fsnotify.Event{Name: writeFile(t, dir, name), Op: fsnotify.Create}
	}

	keep := writeFile(t, dir, "keep.txt")
	w.events <- fsnotify.Event{Name: keep, Op: fsnotify.Create}

	require.Eventually(t, func() bool { return len(rec.uploaded()) == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(3 * testSettle)

	require.NoError(t, stop())
	assert.Equal(t, []string{"keep.txt"}, rec.uploaded())
}

func TestDropDir_RemovedBeforeSettleIsDropped(t *testing.T) {
	dir := t.TempDir()
	w := newMockFsWatcher()
	rec := &uploadRecorder{}
	d := New(dir, w, rec.upload, Options{Settle: time.Hour}, nil)

	path := filepath.Join(dir, "gone.txt")
	d.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Create})
	require.Contains(t, d.pending, path)

	d.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Remove})
	assert.NotContains(t, d.pending, path)
}

func TestDropDir_FlushWaitsForQuietPeriod(t *testing.T) {
	dir := t.TempDir()
	rec := &uploadRecorder{}
	d := New(dir, newMockFsWatcher(), rec.upload, Options{Settle: time.Minute}, nil)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	older := writeFile(t, dir, "a.txt")
	newer := writeFile(t, dir, "b.txt")
	d.pending[newer] = now.Add(-2 * time.Minute)
	d.pending[older] = now.Add(-3 * time.Minute)
	d.pending[writeFile(t, dir, "busy.txt")] = now.Add(-10 * time.Second)

	d.flush(context.Background())

	assert.Equal(t, []string{"a.txt", "b.txt"}, rec.uploaded(), "oldest first, busy file held back")
	assert.Len(t, d.pending, 1)
}

func TestDropDir_FlushSkipsVanishedFiles(t *testing.T) {
	dir := t.TempDir()
	rec := &uploadRecorder{}
	d := New(dir, newMockFsWatcher(), rec.upload, Options{Settle: time.Millisecond}, nil)

	d.pending[filepath.Join(dir, "vanished.txt")] = time.Time{}
	d.flush(context.Background())

	assert.Empty(t, rec.uploaded())
	assert.Empty(t, d.pending)
}

func TestDropDir_UploadFailureDoesNotStopWatch(t *testing.T) {
	dir := t.TempDir()
	w := newMockFsWatcher()
	rec := &uploadRecorder{fail: map[string]error{"bad.txt": errors.New("rejected")}}
	d := New(dir, w, rec.upload, Options{Settle: testSettle}, nil)
	stop := startDropDir(t, d)

	w.events <- fsnotify.Event{Name: writeFile(t, dir, "bad.txt"), Op: fsnotify.Create}
	require.Eventually(t, func() bool { return len(rec.uploaded()) == 1 }, 2*time.Second, 5*time.Millisecond)

	w.events <- fsnotify.Event{Name: writeFile(t, dir, "good.txt"), Op: fsnotify.Create}
	require.Eventually(t, func() bool { return len(rec.uploaded()) == 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, stop())
	assert.Equal(t, []string{"bad.txt", "good.txt"}, rec.uploaded())
}

func TestDropDir_ExistingFilesUploaded(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "one.txt")
	writeFile(t, dir, ".dotfile")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "folder"), 0o700))

	rec := &uploadRecorder{}
	d := New(dir, newMockFsWatcher(), rec.upload, Options{Settle: testSettle, Existing: true}, nil)
	stop := startDropDir(t, d)

	require.Eventually(t, func() bool { return len(rec.uploaded()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, stop())
	assert.Equal(t, []string{"one.txt"}, rec.uploaded())
}

func TestDropDir_WatcherErrorBacksOff(t *testing.T) {
	dir := t.TempDir()
	w := newMockFsWatcher()
	d := New(dir, w, (&uploadRecorder{}).upload, Options{Settle: time.Hour}, nil)

	var (
		mu    sync.Mutex
		calls []time.Duration
	)

	d.sleep = func(_ context.Context, dur time.Duration) error {
		mu.Lock()
		defer mu.Unlock()

		calls = append(calls, dur)

		return nil
	}

	stop := startDropDir(t, d)

	w.errs <- errors.New("queue overflow")
	w.errs <- errors.New("queue overflow")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(calls) == 2
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, stop())
	assert.Equal(t, []time.Duration{errInitBackoff, errInitBackoff * errBackoffMult}, calls)
}

func TestDropDir_NotADirectory(t *testing.T) {
	file := writeFile(t, t.TempDir(), "plain.txt")
	w := newMockFsWatcher()

	err := New(file, w, nil, Options{}, nil).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
	assert.True(t, w.closed)
}

func TestDropDir_MissingDirectory(t *testing.T) {
	err := New(filepath.Join(t.TempDir(), "nope"), newMockFsWatcher(), nil, Options{}, nil).Run(context.Background())
	require.Error(t, err)
}

func TestDropDir_ClosedEventsEndsRun(t *testing.T) {
	w := newMockFsWatcher()
	close(w.events)

	err := New(t.TempDir(), w, nil, Options{Settle: time.Hour}, nil).Run(context.Background())
	assert.NoError(t, err)
}

func TestNew_DefaultSettle(t *testing.T) {
	d := New(t.TempDir(), newMockFsWatcher(), nil, Options{}, nil)
	assert.Equal(t, DefaultSettle, d.opts.Settle)
}

func TestIsExcluded(t *testing.T) {
	tests := []struct {
		name     string
		excluded bool
	}{
		{"photo.jpg", false},
		{"README", false},
		{".DS_Store", true},
		{"~lock.docx", true},
		{"video.MP4.PART", true},
		{"download.crdownload", true},
		{"scratch.tmp", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.excluded, isExcluded(tt.name))
		})
	}
}
