package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/glebarez/go-sqlite"
	"github.com/rahul/loom/internal/engine"
)

// Library is the shared, persistent home of compiled functions, keyed by
// their unique names. Saving never overwrites an existing name.
type Library struct {
	DB *sql.DB
}

func NewLibrary(dbPath string) (*Library, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	query := `CREATE TABLE IF NOT EXISTS functions (
		name TEXT PRIMARY KEY,
		spec TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.Exec(query); err != nil {
		return nil, err
	}

	return &Library{DB: db}, nil
}

func (l *Library) Close() error {
	return l.DB.Close()
}

// Save inserts a compiled function. An existing name is an error, not an
// overwrite: callers must pick a unique name first.
func (l *Library) Save(fn *engine.CompiledFunction) error {
	spec, err := json.Marshal(fn)
	if err != nil {
		return fmt.Errorf("encode function %s: %w", fn.Name, err)
	}

	var exists int
	err = l.DB.QueryRow(`SELECT COUNT(1) FROM functions WHERE name = ?`, fn.Name).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return fmt.Errorf("function %q already exists", fn.Name)
	}

	_, err = l.DB.Exec(`INSERT INTO functions (name, spec) VALUES (?, ?)`, fn.Name, string(spec))
	return err
}

// Get loads one compiled function by name.
func (l *Library) Get(name string) (*engine.CompiledFunction, error) {
	var spec string
	err := l.DB.QueryRow(`SELECT spec FROM functions WHERE name = ?`, name).Scan(&spec)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("function %q not found", name)
	}
	if err != nil {
		return nil, err
	}
	var fn engine.CompiledFunction
	if err := json.Unmarshal([]byte(spec), &fn); err != nil {
		return nil, fmt.Errorf("decode function %s: %w", name, err)
	}
	return &fn, nil
}

// GetAll loads the whole library.
func (l *Library) GetAll() (map[string]*engine.CompiledFunction, error) {
	rows, err := l.DB.Query(`SELECT name, spec FROM functions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*engine.CompiledFunction)
	for rows.Next() {
		var name, spec string
		if err := rows.Scan(&name, &spec); err != nil {
			return nil, err
		}
		var fn engine.CompiledFunction
		if err := json.Unmarshal([]byte(spec), &fn); err != nil {
			return nil, fmt.Errorf("decode function %s: %w", name, err)
		}
		out[name] = &fn
	}
	return out, rows.Err()
}

// SetAll replaces the library contents, e.g. when importing an exported
// set. Existing entries are cleared first.
func (l *Library) SetAll(fns map[string]*engine.CompiledFunction) error {
	tx, err := l.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM functions`); err != nil {
		return err
	}
	for name, fn := range fns {
		spec, err := json.Marshal(fn)
		if err != nil {
			return fmt.Errorf("encode function %s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO functions (name, spec) VALUES (?, ?)`, name, string(spec)); err != nil {
			return err
		}
	}
	return tx.Commit()
}
