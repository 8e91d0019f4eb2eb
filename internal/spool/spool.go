// Package spool writes uploaded bytes to uniquely named transient files so
// that path-based clients can address them.
package spool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Spool creates transient files under a single directory.
type Spool struct {
	fs  afero.Fs
	dir string
}

// File is one spooled copy. It is owned by whoever created it and must be
// removed before that owner returns.
type File struct {
	Path string
	Size int64

	fs afero.Fs
}

// New creates a Spool rooted at dir, creating the directory if needed.
func New(fs afero.Fs, dir string) (*Spool, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating spool directory: %w", err)
	}

	return &Spool{
		fs:  fs,
		dir: dir,
	}, nil
}

// Dir returns the spool directory.
func (s *Spool) Dir() string {
	return s.dir
}

// Fs returns the filesystem spool files live on.
func (s *Spool) Fs() afero.Fs {
	return s.fs
}

// Write copies r into a new file named <uuid><ext>, where ext is taken from
// originalName so downstream clients can infer the format from the path.
func (s *Spool) Write(originalName string, r io.Reader) (*File, error) {
	path := filepath.Join(s.dir, uuid.New().String()+Ext(originalName))

	f, err := s.fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("creating spool file: %w", err)
	}

	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.fs.Remove(path)
		return nil, fmt.Errorf("writing spool file: %w", err)
	}

	return &File{Path: path, Size: size, fs: s.fs}, nil
}

// With spools r, calls fn with the spool path and removes the file before
// returning, whatever fn does.
func (s *Spool) With(originalName string, r io.Reader, fn func(path string) error) (err error) {
	f, err := s.Write(originalName, r)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := f.Remove(); rerr != nil && err == nil {
			err = rerr
		}
	}()

	return fn(f.Path)
}

// Remove deletes the file. Removing an already removed file is not an error.
func (f *File) Remove() error {
	if err := f.fs.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing spool file: %w", err)
	}
	return nil
}

// Sweep removes files in the spool directory last modified before
// now-maxAge. It returns the number of files removed.
func (s *Spool) Sweep(maxAge time.Duration) (int, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return 0, fmt.Errorf("reading spool directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !entry.ModTime().Before(cutoff) {
			continue
		}
		if err := s.fs.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	return removed, errors.Join(errs...)
}

// Ext returns the lowercased extension of name, or "" when it has none or
// the extension contains path-unsafe characters.
func Ext(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) > 16 || strings.ContainsAny(ext, `/\:`) {
		return ""
	}
	return ext
}

// RunSweeper sweeps the spool once immediately and then every interval
// until ctx is cancelled.
func (s *Spool) RunSweeper(ctx context.Context, maxAge, interval time.Duration, logger *log.Logger) {
	sweep := func() {
		removed, err := s.Sweep(maxAge)
		if err != nil {
			logger.Warn("spool sweep failed", "dir", s.dir, "err", err)
		}
		if removed > 0 {
			logger.Info("swept stale spool files", "dir", s.dir, "removed", removed)
		}
	}

	sweep()
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
