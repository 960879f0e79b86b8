// Package store implements the append engine for the spreadsheet store file.
//
// The xlsx format has no in-place append in streaming mode, so every Append
// rebuilds the file: existing rows are read back, re-encoded into a fresh
// temporary workbook next to the target together with the new row, and the
// temporary file is renamed over the target. A reader therefore sees either
// the previous file or the new one, never a partial table. Any failure before
// the rename leaves the previous file untouched.
//
// Engine does not serialize callers itself; it must be driven by a single
// writer (see package queue). An optional advisory file lock guards against a
// second process writing the same path.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/danjacques/gofslock/fslock"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-waitlist-backend/internal/domain"
	"github.com/tbourn/go-waitlist-backend/internal/sheet"
)

// ErrNotFound is returned by Stat when the store file does not exist or is
// empty.
var ErrNotFound = errors.New("store: file not found")

// lockRetryDelay is the pause between attempts to take a held file lock.
const lockRetryDelay = 50 * time.Millisecond

// ---- TEST SEAMS ----
var (
	// renameFn installs the finished temporary file over the target.
	renameFn = os.Rename

	// afterRenameFn runs once the new file is installed.
	afterRenameFn = func(path string) error { return nil }
)

// Options configures an Engine.
type Options struct {
	// Path of the store file.
	Path string
	// Schema of the table; zero value means sheet.DefaultSchema().
	Schema sheet.Schema
	// Lock enables an advisory lock file at Path+".lock" held for the duration
	// of each Append.
	Lock bool
}

// Engine owns write access to one store file.
type Engine struct {
	path     string
	lockPath string
	schema   sheet.Schema
}

// Info describes the committed store file.
type Info struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// New validates opts and returns an Engine. The store file itself is not
// touched until the first Append.
func New(opts Options) (*Engine, error) {
	if opts.Path == "" {
		return nil, errors.New("store: empty path")
	}
	s := opts.Schema
	if s.SheetName == "" && len(s.Columns) == 0 {
		s = sheet.DefaultSchema()
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{path: opts.Path, schema: s}
	if opts.Lock {
		e.lockPath = opts.Path + ".lock"
	}
	return e, nil
}

// Path returns the store file path.
func (e *Engine) Path() string { return e.path }

// Append adds rec as the last row of the store file.
//
// When the file is absent or zero-length a new file is created holding the
// header and rec. Otherwise every stored row is copied, in order, into a new
// temporary file followed by rec, and the temporary file atomically replaces
// the original. On error the original file is left as it was and rec is not
// stored; no retry is attempted.
func (e *Engine) Append(ctx context.Context, rec domain.Record) error {
	start := time.Now()
	err := e.withLock(ctx, func() error { return e.appendLocked(ctx, rec) })
	observeAppend(start, err)
	if err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

func (e *Engine) appendLocked(ctx context.Context, rec domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w, err := sheet.NewWriter(e.schema)
	if err != nil {
		return err
	}
	defer w.Close()

	exists, err := e.exists()
	if err != nil {
		return err
	}
	if exists {
		if err := e.copyRows(w); err != nil {
			return err
		}
	}
	if err := w.WriteRow(rec.Values()); err != nil {
		return err
	}
	rows := w.Rows()

	if err := e.install(w); err != nil {
		return err
	}
	storeRows.Set(float64(rows))

	log.Debug().
		Str("path", e.path).
		Int("rows", rows).
		Bool("created", !exists).
		Msg("store append committed")
	return nil
}

// copyRows streams the current file's data rows into w.
func (e *Engine) copyRows(w *sheet.Writer) error {
	f, err := os.Open(e.path)
	if err != nil {
		return err
	}
	defer f.Close()

	return sheet.Each(f, e.schema, w.WriteRow)
}

// install writes the workbook to a temporary file in the target directory,
// syncs it and renames it over the target.
func (e *Engine) install(w *sheet.Writer) (err error) {
	dir, base := filepath.Split(e.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, base+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	renamed := false
	defer func() {
		if !renamed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := w.Commit(tmp); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return err
	}
	if err := renameFn(tmpPath, e.path); err != nil {
		return err
	}
	renamed = true

	syncDir(dir)
	return afterRenameFn(e.path)
}

// Rows returns every stored record in file order. An absent store yields an
// empty slice.
func (e *Engine) Rows(ctx context.Context) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	exists, err := e.exists()
	if err != nil || !exists {
		return []domain.Record{}, err
	}

	f, err := os.Open(e.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := []domain.Record{}
	err = sheet.Each(f, e.schema, func(vals []string) error {
		out = append(out, domain.RecordFromValues(vals))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: read: %w", err)
	}
	return out, nil
}

// Stat reports the committed file, or ErrNotFound when it is absent or
// zero-length.
func (e *Engine) Stat() (Info, error) {
	fi, err := os.Stat(e.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Info{}, ErrNotFound
	}
	if err != nil {
		return Info{}, err
	}
	if fi.Size() == 0 {
		return Info{}, ErrNotFound
	}
	return Info{Path: e.path, Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

// exists reports whether the store file exists with non-zero length.
func (e *Engine) exists() (bool, error) {
	_, err := e.Stat()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// withLock runs fn while holding the advisory lock file, if enabled.
func (e *Engine) withLock(ctx context.Context, fn func() error) error {
	if e.lockPath == "" {
		return fn()
	}
	return fslock.WithBlocking(e.lockPath, blocker(ctx, e.lockPath), fn)
}

// blocker is an fslock.Blocker that waits lockRetryDelay between attempts and
// gives up when ctx is done.
func blocker(ctx context.Context, path string) fslock.Blocker {
	return func() error {
		log.Debug().Str("lock", path).Msg("store lock held, retrying")
		t := time.NewTimer(lockRetryDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
}

// syncDir flushes the directory entry after a rename. Best effort: some
// platforms cannot fsync directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
