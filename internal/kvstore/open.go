package kvstore

import "fmt"

// Backend names accepted by Open.
const (
	BackendFS     = "fs"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open returns the store for backend. path is the base directory for fs and
// the database file for sqlite; it is ignored for memory. Stores that hold
// resources implement io.Closer.
func Open(backend, path string) (KeyValueStore, error) {
	switch backend {
	case BackendFS:
		kvs, err := NewFS(path)
		if err != nil {
			return nil, err
		}
		return kvs, nil
	case BackendSQLite:
		kvs, err := NewSQLite(path)
		if err != nil {
			return nil, err
		}
		return kvs, nil
	case BackendMemory:
		return &Memory{}, nil
	default:
		return nil, fmt.Errorf("unknown kvstore backend: %q", backend)
	}
}
