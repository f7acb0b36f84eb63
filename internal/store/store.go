// Package store persists anchor lists keyed by map id.
//
// Two backends implement AnchorStore: FileStore writes one JSON document
// per map, SQLiteStore keeps lists in the application database.
package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/banshee-data/arthylene/internal/anchor"
)

var (
	// ErrNotFound is returned when no list has been saved for a key.
	ErrNotFound = errors.New("anchor list not found")
	// ErrCorrupt is returned when a stored list cannot be decoded.
	ErrCorrupt = errors.New("anchor list corrupt")
	// ErrInvalidKey is returned for keys that cannot name a list.
	ErrInvalidKey = errors.New("invalid anchor list key")
)

// AnchorStore loads and saves anchor lists.
type AnchorStore interface {
	// LoadAnchors returns the list saved under key, in placement order.
	LoadAnchors(key string) ([]anchor.Record, error)
	// SaveAnchors replaces the list saved under key.
	SaveAnchors(key string, records []anchor.Record) error
	// DeleteAnchors removes the list saved under key.
	DeleteAnchors(key string) error
}

// KeyLister is implemented by stores that can enumerate saved lists.
type KeyLister interface {
	Keys() ([]string, error)
}

func validateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	case key == "." || key == "..":
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	case strings.ContainsAny(key, `/\`+"\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidKey, key)
	}
	return nil
}

func validateRecords(records []anchor.Record) error {
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}
