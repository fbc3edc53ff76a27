package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/goliatone/go-errors"
)

// FileStore persists one logical store as a JSON file with owner-only
// permissions. Writes are atomic (temp file + rename) and serialized, so
// concurrent read-modify-write cycles cannot lose updates.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store rooted at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load unmarshals the file into v. A missing file leaves v untouched.
func (s *FileStore) Load(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, errors.CategoryInternal, "unable to read store file").
			WithMetadata(map[string]any{"path": s.path})
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "unable to parse store file").
			WithMetadata(map[string]any{"path": s.path})
	}

	return nil
}

// Save marshals v and atomically replaces the file contents.
func (s *FileStore) Save(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "unable to marshal store file").
			WithMetadata(map[string]any{"path": s.path})
	}

	if err := writeFileAtomic(s.path, raw, 0o600); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "unable to write store file").
			WithMetadata(map[string]any{"path": s.path})
	}

	return nil
}

// writeFileAtomic writes data to a sibling temp file and renames it into
// place so readers never observe a partial write.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
