// Package kvstore contains key-value stores used to persist small blobs,
// such as the results history, across process restarts.
package kvstore

import "errors"

// ErrNoSuchKey indicates that there's no value for the given key.
var ErrNoSuchKey = errors.New("no such key")

// KeyValueStore is a generic key-value store.
type KeyValueStore interface {
	// Get returns the specified key's value. Only a missing key yields an
	// error matching ErrNoSuchKey; read failures are returned unchanged.
	Get(key string) ([]byte, error)

	// Set sets the value of a specific key.
	Set(key string, value []byte) error
}
