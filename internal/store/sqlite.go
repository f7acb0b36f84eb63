package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/arthylene/internal/anchor"
)

// SQLiteStore keeps anchor lists in the anchor_lists and anchors tables.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a SQLiteStore on a migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// LoadAnchors returns the list saved under key.
func (s *SQLiteStore) LoadAnchors(key string) ([]anchor.Record, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	var exists int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM anchor_lists WHERE list_key = ?`, key).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("query anchor list %s: %w", key, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	rows, err := s.db.Query(`
		SELECT produce_type, pos_x, pos_y, pos_z, rot_x, rot_y, rot_z, rot_w
		FROM anchors
		WHERE list_key = ?
		ORDER BY seq`, key)
	if err != nil {
		return nil, fmt.Errorf("query anchors %s: %w", key, err)
	}
	defer rows.Close()

	records := []anchor.Record{}
	for rows.Next() {
		var r anchor.Record
		if err := rows.Scan(
			&r.Type,
			&r.Position[0], &r.Position[1], &r.Position[2],
			&r.Orientation[0], &r.Orientation[1], &r.Orientation[2], &r.Orientation[3],
		); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate anchors %s: %w", key, err)
	}
	if err := validateRecords(records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return records, nil
}

// SaveAnchors replaces the list saved under key in one transaction.
func (s *SQLiteStore) SaveAnchors(key string, records []anchor.Record) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := validateRecords(records); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save %s: %w", key, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO anchor_lists (list_key, updated_at) VALUES (?, ?)
		ON CONFLICT (list_key) DO UPDATE SET updated_at = excluded.updated_at`,
		key, s.now().UnixNano()); err != nil {
		return fmt.Errorf("upsert anchor list %s: %w", key, err)
	}
	if _, err := tx.Exec(`DELETE FROM anchors WHERE list_key = ?`, key); err != nil {
		return fmt.Errorf("clear anchors %s: %w", key, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO anchors (list_key, seq, produce_type, pos_x, pos_y, pos_z, rot_x, rot_y, rot_z, rot_w)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare anchor insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		if _, err := stmt.Exec(key, i, r.Type,
			r.Position[0], r.Position[1], r.Position[2],
			r.Orientation[0], r.Orientation[1], r.Orientation[2], r.Orientation[3],
		); err != nil {
			return fmt.Errorf("insert anchor %d of %s: %w", i, key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit anchor list %s: %w", key, err)
	}
	return nil
}

// DeleteAnchors removes the list saved under key. Its anchors go with it.
func (s *SQLiteStore) DeleteAnchors(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	res, err := s.db.Exec(`DELETE FROM anchor_lists WHERE list_key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete anchor list %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete anchor list %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return nil
}

// Keys returns the keys of every saved list, most recently saved first.
func (s *SQLiteStore) Keys() ([]string, error) {
	rows, err := s.db.Query(`SELECT list_key FROM anchor_lists ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query anchor lists: %w", err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan anchor list key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
