// Package history implements the results history store: the most recent
// test results, newest first, saved as a single JSON blob in a key-value
// store.
package history

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/m-lab/httpspeed/internal/kvstore"
	"github.com/m-lab/httpspeed/pkg/speedtest/model"
	"github.com/m-lab/httpspeed/pkg/speedtest/spec"
)

// ErrCorrupt is returned by Load when the stored value cannot be decoded.
var ErrCorrupt = errors.New("corrupt history")

// Store loads and saves the history.
type Store struct {
	kvs kvstore.KeyValueStore
	key string
}

// New returns a Store saving the history under spec.HistoryKey in kvs.
func New(kvs kvstore.KeyValueStore) *Store {
	return &Store{
		kvs: kvs,
		key: spec.HistoryKey,
	}
}

// Load returns the stored history. A missing key is an empty history. If
// the stored value cannot be decoded, Load returns an empty history and an
// error wrapping ErrCorrupt. Read failures of the underlying store are
// returned with an empty history.
func (s *Store) Load() (model.History, error) {
	data, err := s.kvs.Get(s.key)
	if errors.Is(err, kvstore.ErrNoSuchKey) {
		data = []byte("[]")
	} else if err != nil {
		return model.History{}, err
	}
	var h model.History
	if err := json.Unmarshal(data, &h); err != nil {
		return model.History{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if h == nil {
		h = model.History{}
	}
	return h.Truncate(), nil
}

// Save replaces the stored history with h, truncated to spec.MaxHistory
// entries.
func (s *Store) Save(h model.History) error {
	if h == nil {
		h = model.History{}
	}
	data, err := json.Marshal(h.Truncate())
	if err != nil {
		return err
	}
	return s.kvs.Set(s.key, data)
}

// Append adds r in front of the stored history and saves it. A corrupt
// stored history is replaced. It returns the saved history.
func (s *Store) Append(r model.TestResult) (model.History, error) {
	h, err := s.Load()
	if err != nil && !errors.Is(err, ErrCorrupt) {
		return nil, err
	}
	h = h.Push(r)
	if err := s.Save(h); err != nil {
		return nil, err
	}
	return h, nil
}
