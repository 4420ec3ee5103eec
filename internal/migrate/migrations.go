// Package migrate brings the workspace database schema up to date from the
// SQL files embedded under sql/.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed sql/*.sql
var schemaFS embed.FS

type migration struct {
	version int
	name    string
	up      string
}

// Migrate applies any embedded migrations newer than the recorded schema
// version, all inside one transaction. Filenames must start with a numeric
// version followed by an underscore.
func Migrate(db *sql.DB) error {
	pending, err := readMigrations()
	if err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	current, err := schemaVersion(tx)
	if err != nil {
		return err
	}
	for _, m := range pending {
		if m.version <= current {
			continue
		}
		if _, err := tx.Exec(m.up); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version=?`, m.version); err != nil {
			return fmt.Errorf("record version %d: %w", m.version, err)
		}
		current = m.version
	}
	return tx.Commit()
}

func readMigrations() ([]migration, error) {
	files, err := fs.ReadDir(schemaFS, "sql")
	if err != nil {
		return nil, err
	}
	var out []migration
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		data, err := schemaFS.ReadFile("sql/" + f.Name())
		if err != nil {
			return nil, err
		}
		var v int
		if _, err := fmt.Sscanf(f.Name(), "%d_", &v); err != nil {
			return nil, fmt.Errorf("migration filename %s lacks a version prefix: %w", f.Name(), err)
		}
		out = append(out, migration{version: v, name: f.Name(), up: string(data)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func schemaVersion(tx *sql.Tx) (int, error) {
	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL);`); err != nil {
		return 0, fmt.Errorf("create schema_version: %w", err)
	}
	var v int
	err := tx.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&v)
	if err == sql.ErrNoRows {
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return 0, fmt.Errorf("init schema_version: %w", err)
		}
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema_version: %w", err)
	}
	return v, nil
}
