// SPDX-License-Identifier: MPL-2.0

package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// fileSuffix is appended to every key to form the entry file name.
const fileSuffix = ".cache"

// File is a Store keeping one file per entry in a directory. Entries are
// written to a temporary file first and renamed into place.
type File struct {
	fs  afero.Fs
	dir string
}

// NewFile creates a File store in dir. The directory is created on the first
// write.
func NewFile(fsys afero.Fs, dir string) *File {
	return &File{fs: fsys, dir: dir}
}

// Dir returns the directory entries are stored in.
func (f *File) Dir() string { return f.dir }

func (f *File) path(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(f.dir, key+fileSuffix), nil
}

// Get implements Store.
func (f *File) Get(key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(f.fs, p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read cache entry %q: %w", key, err)
	}
	return data, nil
}

// Set implements Store.
func (f *File) Set(key string, value []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := f.fs.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := afero.TempFile(f.fs, f.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("write cache entry %q: %w", key, err)
	}
	_, writeErr := tmp.Write(value)
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = f.fs.Remove(tmp.Name())
		return fmt.Errorf("write cache entry %q: %w", key, err)
	}
	if err := f.fs.Rename(tmp.Name(), p); err != nil {
		_ = f.fs.Remove(tmp.Name())
		return fmt.Errorf("write cache entry %q: %w", key, err)
	}
	return nil
}

// Has implements Store.
func (f *File) Has(key string) (bool, error) {
	p, err := f.path(key)
	if err != nil {
		return false, err
	}
	return afero.Exists(f.fs, p)
}

// Delete implements Store.
func (f *File) Delete(key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := f.fs.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete cache entry %q: %w", key, err)
	}
	return nil
}

// Clear implements Store. Only entry files are removed; the directory and
// unrelated files stay.
func (f *File) Clear() error {
	entries, err := afero.ReadDir(f.fs, f.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("list cache dir: %w", err)
	}

	var errs []error
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		if err := f.fs.Remove(filepath.Join(f.dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("clear cache dir: %w", errors.Join(errs...))
	}
	return nil
}
