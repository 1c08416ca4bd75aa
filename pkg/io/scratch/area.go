// Package scratch manages the temporary audio files a conversation cycle
// produces. Every file is an Artifact that must be released by its creator.
package scratch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

var ErrInvalidPrefix = errors.New("scratch: prefix must be a plain name")

// Area is a directory of short-lived artifacts on an afero filesystem.
type Area struct {
	fs  afero.Fs
	dir string
	now func() time.Time
}

// New prepares dir on fs, creating it when missing.
func New(fs afero.Fs, dir string) (*Area, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if dir == "" {
		dir = "temp_audio"
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir %s: %w", dir, err)
	}
	return &Area{fs: fs, dir: dir, now: time.Now}, nil
}

func (a *Area) Dir() string {
	return a.dir
}

func (a *Area) Fs() afero.Fs {
	return a.fs
}

// Create writes data to "<prefix>_<uuid>.<ext>" and returns the artifact.
func (a *Area) Create(prefix, ext string, data []byte) (*Artifact, error) {
	if prefix == "" || strings.ContainsAny(prefix, `/\`) {
		return nil, ErrInvalidPrefix
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "bin"
	}
	name := fmt.Sprintf("%s_%s.%s", prefix, uuid.NewString(), ext)
	path := filepath.Join(a.dir, name)

	if err := afero.WriteFile(a.fs, path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", name, err)
	}
	return &Artifact{fs: a.fs, path: path, size: len(data)}, nil
}

// Sweep removes regular files in the area last modified before now-olderThan.
// A zero olderThan removes everything. Returns the number of files removed.
func (a *Area) Sweep(olderThan time.Duration) (int, error) {
	entries, err := afero.ReadDir(a.fs, a.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("list %s: %w", a.dir, err)
	}

	cutoff := a.now().Add(-olderThan)
	var (
		removed int
		errs    []error
	)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if olderThan > 0 && !e.ModTime().Before(cutoff) {
			continue
		}
		if err := a.fs.Remove(filepath.Join(a.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// Count reports the files currently in the area.
func (a *Area) Count() (int, error) {
	entries, err := afero.ReadDir(a.fs, a.dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n, nil
}

// Artifact is one scratch file. Release is safe to call more than once.
type Artifact struct {
	fs   afero.Fs
	path string
	size int
	once sync.Once
	err  error
}

func (f *Artifact) Path() string {
	return f.path
}

func (f *Artifact) Name() string {
	return filepath.Base(f.path)
}

func (f *Artifact) Size() int {
	return f.size
}

// Read returns the file contents.
func (f *Artifact) Read() ([]byte, error) {
	return afero.ReadFile(f.fs, f.path)
}

// Release deletes the file. A file already gone is not an error.
func (f *Artifact) Release() error {
	f.once.Do(func() {
		if err := f.fs.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			f.err = fmt.Errorf("remove %s: %w", f.path, err)
		}
	})
	return f.err
}
