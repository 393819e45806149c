package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store persists panel state that must survive restarts: boolean settings
// and the installed mod registry.
type Store struct {
	DB *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// GetSetting returns the stored value for key, or def when key is unset.
func (s *Store) GetSetting(key string, def bool) (bool, error) {
	row := s.DB.QueryRow(`SELECT value FROM settings WHERE key = ?`, key)
	var v int
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return def, nil
		}
		return def, err
	}
	return v != 0, nil
}

// SetSetting stores value for key and reports whether the stored value changed.
func (s *Store) SetSetting(key string, value bool) (changed bool, err error) {
	prev, err := s.GetSetting(key, !value)
	if err != nil {
		return false, err
	}

	v := 0
	if value {
		v = 1
	}
	_, err = s.DB.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, v, time.Now().Unix(),
	)
	if err != nil {
		return false, err
	}
	return prev != value, nil
}

type Mod struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Version     string    `json:"version,omitempty"`
	Enabled     bool      `json:"enabled"`
	InstalledAt time.Time `json:"installedAt"`
}

func (s *Store) AddMod(name, version string) (*Mod, error) {
	m := &Mod{
		ID:          uuid.NewString(),
		Name:        name,
		Version:     version,
		Enabled:     true,
		InstalledAt: time.Now(),
	}
	_, err := s.DB.Exec(
		`INSERT INTO mods (id, name, version, enabled, installed_at) VALUES (?, ?, ?, 1, ?)`,
		m.ID, m.Name, m.Version, m.InstalledAt.Unix(),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) ListMods() ([]Mod, error) {
	rows, err := s.DB.Query(
		`SELECT id, name, version, enabled, installed_at FROM mods ORDER BY installed_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mods []Mod
	for rows.Next() {
		var m Mod
		var enabled int
		var installed int64
		if err := rows.Scan(&m.ID, &m.Name, &m.Version, &enabled, &installed); err != nil {
			return nil, err
		}
		m.Enabled = enabled != 0
		m.InstalledAt = time.Unix(installed, 0)
		mods = append(mods, m)
	}
	return mods, rows.Err()
}

func (s *Store) GetMod(id string) (*Mod, error) {
	row := s.DB.QueryRow(
		`SELECT id, name, version, enabled, installed_at FROM mods WHERE id = ?`, id)
	var m Mod
	var enabled int
	var installed int64
	if err := row.Scan(&m.ID, &m.Name, &m.Version, &enabled, &installed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	m.Enabled = enabled != 0
	m.InstalledAt = time.Unix(installed, 0)
	return &m, nil
}

func (s *Store) SetModEnabled(id string, enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	res, err := s.DB.Exec(`UPDATE mods SET enabled = ? WHERE id = ?`, v, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) RemoveMod(id string) error {
	res, err := s.DB.Exec(`DELETE FROM mods WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
