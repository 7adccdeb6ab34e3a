// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package memo implements the josh-filter memoization store: a persistent
// key-value index mapping (filter-id, object-id, kind) to a target
// object-id or the EMPTY sentinel, per spec.md §4.5.
package memo

import (
	"context"
	"fmt"
)

// Kind distinguishes which transform produced a memoized entry.
type Kind uint8

const (
	KindTree Kind = iota
	KindCommit
)

// Key is the memoization key: a content-addressed filter-id paired with the
// input object-id and the kind of transform. Defined as a dedicated
// comparable struct (rather than a generic container key) so it can be used
// directly as a Go map key and as a ristretto cache key.
type Key struct {
	FilterID [32]byte
	ObjectID string
	Kind     Kind
}

func (k Key) String() string {
	return fmt.Sprintf("%x:%s:%d", k.FilterID, k.ObjectID, k.Kind)
}

// Store is the memoization collaborator transforms read through before
// doing work, and write through after. Implementations must be safe for
// concurrent reads; per I1, two writers computing the same key always agree
// on the value, so a Put racing another Put for the same key is never a
// correctness problem, only a wasted recomputation.
type Store interface {
	// Get returns ok=false if the key is absent. When ok is true, empty
	// indicates the memoized result is the EMPTY sentinel (e.g. a dropped
	// commit or an empty tree) rather than a concrete object id.
	Get(ctx context.Context, key Key) (id string, empty bool, ok bool, err error)
	// Put records the result for key. Per I1, calling Put twice for the same
	// key must always supply the same (id, empty) pair; implementations may
	// panic if they detect a mismatch, since that can only happen if a
	// supposedly-pure filter was not.
	Put(ctx context.Context, key Key, id string, empty bool) error
}

// ErrValueMismatch is returned (or may be turned into a panic, depending on
// the backend) when a Put supplies a different value than what is already
// stored for key, which indicates the calling transform violated I1.
type ErrValueMismatch struct {
	Key        Key
	Old, New   string
	OldE, NewE bool
}

func (e *ErrValueMismatch) Error() string {
	return fmt.Sprintf("memo: non-deterministic write for %s: had (%s,%v), got (%s,%v)",
		e.Key, e.Old, e.OldE, e.New, e.NewE)
}
