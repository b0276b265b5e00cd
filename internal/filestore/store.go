package filestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

var (
	ErrNotFound    = errors.New("file not found")
	ErrInvalidName = errors.New("invalid file name")
	ErrNotDir      = errors.New("not a directory")
)

// Store is a flat namespace of files under one directory. Names never
// contain a path separator, so nothing outside the directory is reachable.
// Reads run concurrently; writes to the same name are serialized and
// replace the file atomically.
type Store struct {
	dir    string
	locks  *keyedMutex
	logger zerolog.Logger
}

// New returns a Store rooted at dir, creating it if needed.
func New(dir string, logger zerolog.Logger) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create %q: %w", abs, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%q: %w", abs, ErrNotDir)
	}

	return &Store{
		dir:    abs,
		locks:  newKeyedMutex(),
		logger: logger.With().Str("component", "filestore").Str("dir", abs).Logger(),
	}, nil
}

// Dir returns the absolute base directory.
func (s *Store) Dir() string {
	return s.dir
}

// resolve maps name to a path inside the base directory.
func (s *Store) resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%q: %w", name, ErrInvalidName)
	}

	path := filepath.Join(s.dir, name)
	rel, err := filepath.Rel(s.dir, path)
	if err != nil || rel != name {
		return "", fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return path, nil
}

// Open opens name for reading and returns it with its size. Invalid names,
// missing files and directories are all ErrNotFound.
func (s *Store) Open(name string) (io.ReadCloser, int64, error) {
	path, err := s.resolve(name)
	if err != nil {
		s.logger.Warn().Str("name", name).Msg("rejected read of invalid name")
		return nil, 0, fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, fmt.Errorf("%q: %w", name, ErrNotFound)
		}
		return nil, 0, fmt.Errorf("open %q: %w", name, err)
	}

	// The size comes from the open handle; a later rename over the path
	// does not change what this handle reads.
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %q: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, 0, fmt.Errorf("%q is not a regular file: %w", name, ErrNotFound)
	}

	return f, info.Size(), nil
}

// Read returns the full contents of name.
func (s *Store) Read(name string) ([]byte, error) {
	rc, size, err := s.Open(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data := make([]byte, size)
	if _, err := io.ReadFull(rc, data); err != nil {
		return nil, fmt.Errorf("read %q: %w", name, err)
	}
	return data, nil
}

// Write replaces the contents of name with data. Concurrent writes to the
// same name are serialized; readers see the old or the new contents, never
// a mix.
func (s *Store) Write(name string, data []byte) error {
	path, err := s.resolve(name)
	if err != nil {
		s.logger.Warn().Str("name", name).Msg("rejected write of invalid name")
		return err
	}

	unlock := s.locks.Lock(name)
	defer unlock()

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp for %q: %w", name, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %q: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %q: %w", name, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %q: %w", name, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %q: %w", name, err)
	}
	committed = true

	s.logger.Debug().Str("name", name).Int("bytes", len(data)).Msg("file written")
	return nil
}
