package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/banshee-data/arthylene/internal/anchor"
	"github.com/banshee-data/arthylene/internal/fsutil"
)

// maxListBytes bounds the size of a stored list document.
const maxListBytes = 1 << 20

// listDocument is the on-disk form of one anchor list.
type listDocument struct {
	Version int             `json:"version"`
	Anchors []anchor.Record `json:"anchors"`
}

const listDocumentVersion = 1

// FileStore keeps one JSON document per key under Dir.
type FileStore struct {
	fs  fsutil.FileSystem
	dir string
}

// NewFileStore returns a FileStore rooted at dir, creating it if needed.
func NewFileStore(fsys fsutil.FileSystem, dir string) (*FileStore, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir %s: %w", dir, err)
	}
	return &FileStore{fs: fsys, dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// LoadAnchors reads the list saved under key.
func (s *FileStore) LoadAnchors(key string) ([]anchor.Record, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	info, err := s.fs.Stat(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("stat anchor list %s: %w", key, err)
	}
	if info.Size() > maxListBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes, max %d", ErrCorrupt, key, info.Size(), maxListBytes)
	}

	data, err := s.fs.ReadFile(s.path(key))
	if err != nil {
		return nil, fmt.Errorf("read anchor list %s: %w", key, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var doc listDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	if doc.Version != listDocumentVersion {
		return nil, fmt.Errorf("%w: %s: unsupported version %d", ErrCorrupt, key, doc.Version)
	}
	if err := validateRecords(doc.Anchors); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	if doc.Anchors == nil {
		doc.Anchors = []anchor.Record{}
	}
	return doc.Anchors, nil
}

// SaveAnchors writes the list to a temporary file and renames it over
// the previous one, so a crash never leaves a partial list behind.
func (s *FileStore) SaveAnchors(key string, records []anchor.Record) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := validateRecords(records); err != nil {
		return err
	}
	if records == nil {
		records = []anchor.Record{}
	}
	data, err := json.MarshalIndent(listDocument{Version: listDocumentVersion, Anchors: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode anchor list %s: %w", key, err)
	}

	tmp := s.path(key) + ".tmp"
	if err := s.fs.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write anchor list %s: %w", key, err)
	}
	if err := s.fs.Rename(tmp, s.path(key)); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("commit anchor list %s: %w", key, err)
	}
	return nil
}

// DeleteAnchors removes the list saved under key.
func (s *FileStore) DeleteAnchors(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	err := s.fs.Remove(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("delete anchor list %s: %w", key, err)
	}
	return nil
}

// Keys returns the keys of every saved list.
func (s *FileStore) Keys() ([]string, error) {
	names, err := s.fs.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list anchor lists: %w", err)
	}
	keys := make([]string, 0, len(names))
	for _, n := range names {
		keys = append(keys, strings.TrimSuffix(filepath.Base(n), ".json"))
	}
	return keys, nil
}
