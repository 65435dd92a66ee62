package kvstore

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rogpeppe/go-internal/lockedfile"
)

// FS stores each key in its own file under a base directory. Files are
// read and written under a file lock, so processes sharing the directory
// never observe a partially written value.
type FS struct {
	basedir string
}

var _ KeyValueStore = &FS{}

// NewFS returns an FS rooted at basedir, creating it with mode 0700.
func NewFS(basedir string) (*FS, error) {
	return newFS(basedir, os.MkdirAll)
}

// mkdirAllFunc has the signature of os.MkdirAll.
type mkdirAllFunc func(path string, perm fs.FileMode) error

func newFS(basedir string, mkdirAll mkdirAllFunc) (*FS, error) {
	if err := mkdirAll(basedir, 0700); err != nil {
		return nil, err
	}
	return &FS{basedir: basedir}, nil
}

func (kvs *FS) path(key string) string {
	return filepath.Join(kvs.basedir, key)
}

// Get returns the value of key. A key without a file is reported with an
// error matching ErrNoSuchKey; any other failure is returned as is.
func (kvs *FS) Get(key string) ([]byte, error) {
	data, err := lockedfile.Read(kvs.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchKey, key)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Set replaces the value of key.
func (kvs *FS) Set(key string, value []byte) error {
	return lockedfile.Write(kvs.path(key), bytes.NewReader(value), 0600)
}
