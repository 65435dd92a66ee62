package kvstore

import (
	"database/sql"
	"errors"
	"fmt"

	// Register the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"
)

const (
	createTable = `CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY NOT NULL,
	value BLOB NOT NULL
);`
	selectValue = `SELECT value FROM kv WHERE key = ?;`
	upsertValue = `INSERT INTO kv (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value;`
)

// SQLite is a key-value store backed by a single table of a SQLite database.
type SQLite struct {
	db *sql.DB
}

var _ KeyValueStore = &SQLite{}

// NewSQLite opens (creating it if needed) the SQLite database at path.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

// Get returns the value of key. A missing row is reported with an error
// matching ErrNoSuchKey; database errors, such as a locked database, are
// returned as is.
func (kvs *SQLite) Get(key string) ([]byte, error) {
	var value []byte
	err := kvs.db.QueryRow(selectValue, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchKey, key)
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set sets the value of a specific key.
func (kvs *SQLite) Set(key string, value []byte) error {
	_, err := kvs.db.Exec(upsertValue, key, value)
	return err
}

// Close closes the underlying database.
func (kvs *SQLite) Close() error {
	return kvs.db.Close()
}
