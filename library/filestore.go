package library

import (
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FileStore is the flat-file Store variant: one JSON snapshot holding the
// whole lending state. Saves write a sibling temp file and rename it into
// place, so a crash mid-save leaves the previous snapshot intact.
type FileStore struct {
	path string
}

// NewFileStore prepares a store backed by the snapshot file at path. The
// file does not have to exist yet; an absent file loads as empty state.
func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create store dir")
		}
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) LoadCatalog() ([]*Book, error) {
	snap, err := s.read()
	if err != nil {
		return nil, err
	}
	return snap.Books, nil
}

func (s *FileStore) LoadRoster() ([]*User, error) {
	snap, err := s.read()
	if err != nil {
		return nil, err
	}
	return snap.Users, nil
}

// SaveAll replaces the snapshot atomically.
func (s *FileStore) SaveAll(books []*Book, users []*User) error {
	data, err := json.MarshalIndent(&Snapshot{Books: books, Users: users}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "write snapshot")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "replace snapshot")
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) read() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &Snapshot{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read snapshot")
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrap(err, "decode snapshot")
	}
	return &snap, nil
}
