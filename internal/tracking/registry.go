package tracking

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry stores map metadata.
type Registry interface {
	Create(m MapSession) error
	Get(id string) (MapSession, error)
	Rename(id, name string) error
	Delete(id string) error
	// List returns all maps, oldest first.
	List() ([]MapSession, error)
}

// MemoryRegistry is an in-process Registry.
type MemoryRegistry struct {
	mu   sync.Mutex
	maps map[string]MapSession
}

// NewMemoryRegistry returns an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{maps: make(map[string]MapSession)}
}

func (r *MemoryRegistry) Create(m MapSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.maps[m.ID]; ok {
		return fmt.Errorf("map %s already exists", m.ID)
	}
	r.maps[m.ID] = m
	return nil
}

func (r *MemoryRegistry) Get(id string) (MapSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.maps[id]
	if !ok {
		return MapSession{}, fmt.Errorf("%w: %s", ErrMapNotFound, id)
	}
	return m, nil
}

func (r *MemoryRegistry) Rename(id, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.maps[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMapNotFound, id)
	}
	m.Name = name
	r.maps[id] = m
	return nil
}

func (r *MemoryRegistry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.maps[id]; !ok {
		return fmt.Errorf("%w: %s", ErrMapNotFound, id)
	}
	delete(r.maps, id)
	return nil
}

func (r *MemoryRegistry) List() ([]MapSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]MapSession, 0, len(r.maps))
	for _, m := range r.maps {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// SQLiteRegistry keeps map metadata in the map_sessions table.
type SQLiteRegistry struct {
	db *sql.DB
}

// NewSQLiteRegistry creates a SQLiteRegistry on a migrated database.
func NewSQLiteRegistry(db *sql.DB) *SQLiteRegistry {
	return &SQLiteRegistry{db: db}
}

func (r *SQLiteRegistry) Create(m MapSession) error {
	_, err := r.db.Exec(`INSERT INTO map_sessions (map_id, name, created_at, learning) VALUES (?, ?, ?, ?)`,
		m.ID, m.Name, m.CreatedAt.UnixNano(), boolToInt(m.Learning))
	if err != nil {
		return fmt.Errorf("insert map %s: %w", m.ID, err)
	}
	return nil
}

func (r *SQLiteRegistry) Get(id string) (MapSession, error) {
	var m MapSession
	var created int64
	var learning int
	err := r.db.QueryRow(`SELECT map_id, name, created_at, learning FROM map_sessions WHERE map_id = ?`, id).
		Scan(&m.ID, &m.Name, &created, &learning)
	if errors.Is(err, sql.ErrNoRows) {
		return MapSession{}, fmt.Errorf("%w: %s", ErrMapNotFound, id)
	}
	if err != nil {
		return MapSession{}, fmt.Errorf("query map %s: %w", id, err)
	}
	m.CreatedAt = time.Unix(0, created).UTC()
	m.Learning = learning != 0
	return m, nil
}

func (r *SQLiteRegistry) Rename(id, name string) error {
	return r.execOne(id, `UPDATE map_sessions SET name = ? WHERE map_id = ?`, name, id)
}

func (r *SQLiteRegistry) Delete(id string) error {
	return r.execOne(id, `DELETE FROM map_sessions WHERE map_id = ?`, id)
}

func (r *SQLiteRegistry) execOne(id, query string, args ...any) error {
	res, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("update map %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update map %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrMapNotFound, id)
	}
	return nil
}

func (r *SQLiteRegistry) List() ([]MapSession, error) {
	rows, err := r.db.Query(`SELECT map_id, name, created_at, learning FROM map_sessions ORDER BY created_at, map_id`)
	if err != nil {
		return nil, fmt.Errorf("query maps: %w", err)
	}
	defer rows.Close()

	var out []MapSession
	for rows.Next() {
		var m MapSession
		var created int64
		var learning int
		if err := rows.Scan(&m.ID, &m.Name, &created, &learning); err != nil {
			return nil, fmt.Errorf("scan map: %w", err)
		}
		m.CreatedAt = time.Unix(0, created).UTC()
		m.Learning = learning != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
