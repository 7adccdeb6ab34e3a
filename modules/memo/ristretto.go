// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package memo

import (
	"context"

	"github.com/dgraph-io/ristretto/v2"
)

type ristrettoValue struct {
	id    string
	empty bool
}

// RistrettoStore is the in-process L1 memoization cache, backed by the same
// high-throughput cache library the teacher uses for its object-database
// blob cache, repurposed here to hold memo entries instead of decompressed
// object bytes.
type RistrettoStore struct {
	cache *ristretto.Cache[string, ristrettoValue]
}

// NewRistrettoStore creates an L1 store sized for maxEntries resident keys.
func NewRistrettoStore(maxEntries int64) (*RistrettoStore, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, ristrettoValue]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoStore{cache: cache}, nil
}

func (s *RistrettoStore) Get(ctx context.Context, key Key) (string, bool, bool, error) {
	v, ok := s.cache.Get(key.String())
	if !ok {
		return "", false, false, nil
	}
	return v.id, v.empty, true, nil
}

func (s *RistrettoStore) Put(ctx context.Context, key Key, id string, empty bool) error {
	if old, ok := s.cache.Get(key.String()); ok && (old.id != id || old.empty != empty) {
		return &ErrValueMismatch{Key: key, Old: old.id, New: id, OldE: old.empty, NewE: empty}
	}
	s.cache.Set(key.String(), ristrettoValue{id: id, empty: empty}, 1)
	return nil
}

// Close releases the cache's background goroutines.
func (s *RistrettoStore) Close() {
	s.cache.Close()
}
