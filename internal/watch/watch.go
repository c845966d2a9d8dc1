// Package watch turns a local drop directory into a stream of uploads: files
// created or rewritten in the directory are handed to an upload function once
// they have stopped changing.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/text/unicode/norm"
)

// Watcher error backoff: a sustained error stream (e.g. kernel queue
// overflow) must not spin the loop.
const (
	errInitBackoff = 1 * time.Second
	errBackoffMult = 2
	errMaxBackoff  = 30 * time.Second
)

// DefaultSettle is how long a file must go without filesystem events before
// it is considered complete.
const DefaultSettle = 2 * time.Second

// FsWatcher is the subset of *fsnotify.Watcher the drop directory needs.
// Tests inject channels directly.
type FsWatcher interface {
	Add(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWatcher struct {
	w *fsnotify.Watcher
}

// NewFsWatcher returns an FsWatcher backed by fsnotify.
func NewFsWatcher() (FsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: creating watcher: %w", err)
	}

	return &fsnotifyWatcher{w: w}, nil
}

func (f *fsnotifyWatcher) Add(name string) error         { return f.w.Add(name) }
func (f *fsnotifyWatcher) Close() error                  { return f.w.Close() }
func (f *fsnotifyWatcher) Events() <-chan fsnotify.Event { return f.w.Events }
func (f *fsnotifyWatcher) Errors() <-chan error          { return f.w.Errors }

// UploadFunc sends one settled file. Its error is logged and the watch goes
// on; the file is not retried until it changes again.
type UploadFunc func(ctx context.Context, path string) error

// Options tune a DropDir.
type Options struct {
	Settle   time.Duration // quiet period before upload; 0 = DefaultSettle
	Existing bool          // also upload regular files present at start
}

// DropDir uploads files that appear in one directory. Uploads run one at a
// time on the Run goroutine.
type DropDir struct {
	dir     string
	watcher FsWatcher
	upload  UploadFunc
	opts    Options
	logger  *slog.Logger

	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
	pending map[string]time.Time // path -> last event
}

// New creates a DropDir over dir. The watcher is owned by the DropDir and
// closed when Run returns.
func New(dir string, watcher FsWatcher, upload UploadFunc, opts Options, logger *slog.Logger) *DropDir {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}

	return &DropDir{
		dir:     dir,
		watcher: watcher,
		upload:  upload,
		opts:    opts,
		logger:  logger,
		sleep:   timeSleep,
		now:     time.Now,
		pending: make(map[string]time.Time),
	}
}

// Run watches until ctx is cancelled. It returns nil on cancellation and an
// error only when the directory cannot be watched at all.
func (d *DropDir) Run(ctx context.Context) error {
	defer d.watcher.Close()

	info, err := os.Stat(d.dir)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("watch: %s is not a directory", d.dir)
	}

	if err := d.watcher.Add(d.dir); err != nil {
		return fmt.Errorf("watch: adding %s: %w", d.dir, err)
	}

	if d.opts.Existing {
		if err := d.queueExisting(); err != nil {
			return err
		}
	}

	d.logger.Info("watching drop directory",
		slog.String("dir", d.dir),
		slog.Duration("settle", d.opts.Settle),
	)

	ticker := time.NewTicker(d.opts.Settle / 2)
	defer ticker.Stop()

	errBackoff := errInitBackoff

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-d.watcher.Events():
			if !ok {
				return nil
			}

			d.handleEvent(ev)

			errBackoff = errInitBackoff

		case watchErr, ok := <-d.watcher.Errors():
			if !ok {
				return nil
			}

			d.logger.Warn("filesystem watcher error",
				slog.String("error", watchErr.Error()),
				slog.Duration("backoff", errBackoff),
			)

			if d.sleep(ctx, errBackoff) != nil {
				return nil
			}

			errBackoff = min(errBackoff*errBackoffMult, errMaxBackoff)

		case <-ticker.C:
			d.flush(ctx)
		}
	}
}

// handleEvent records activity on a candidate file. Removing or renaming a
// pending file drops it.
func (d *DropDir) handleEvent(ev fsnotify.Event) {
	if filepath.Dir(ev.Name) != filepath.Clean(d.dir) {
		return
	}

	name := norm.NFC.String(filepath.Base(ev.Name))
	if isExcluded(name) {
		d.logger.Debug("watch: skipping excluded file", slog.String("name", name))

		return
	}

	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		d.pending[ev.Name] = d.now()
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		delete(d.pending, ev.Name)
	}
}

// flush uploads every pending file that has been quiet for the settle
// period, oldest first.
func (d *DropDir) flush(ctx context.Context) {
	cutoff := d.now().Add(-d.opts.Settle)

	var ready []string

	for path, last := range d.pending {
		if !last.After(cutoff) {
			ready = append(ready, path)
		}
	}

	slices.SortFunc(ready, func(a, b string) int {
		return d.pending[a].Compare(d.pending[b])
	})

	for _, path := range ready {
		if ctx.Err() != nil {
			return
		}

		delete(d.pending, path)

		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		if err := d.upload(ctx, path); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}

			d.logger.Warn("watch: upload failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}
}

// queueExisting marks files already in the directory as settled.
func (d *DropDir) queueExisting() error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return fmt.Errorf("watch: reading %s: %w", d.dir, err)
	}

	settled := d.now().Add(-d.opts.Settle)

	for _, e := range entries {
		if !e.Type().IsRegular() || isExcluded(e.Name()) {
			continue
		}

		d.pending[filepath.Join(d.dir, e.Name())] = settled
	}

	return nil
}

// isExcluded reports names that are never uploaded: hidden files, partial
// downloads and editor temporaries.
func isExcluded(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~") {
		return true
	}

	lower := strings.ToLower(name)

	for _, ext := range excludedSuffixes {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}

	return false
}

var excludedSuffixes = []string{".partial", ".part", ".tmp", ".swp", ".crdownload"}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
