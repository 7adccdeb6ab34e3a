// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package transform implements the tree, history, and inverse ("unapply")
// transforms of the josh-filter engine: applying a filter to a tree or
// commit, and lifting an edit made on a filtered view back onto the source.
package transform

import "fmt"

// MissingObjectError wraps a lookup into the object database that found
// nothing for id — spec.md §7 MISSING_OBJECT(id). It is never fabricated: a
// transform that hits one propagates it unchanged rather than substituting
// an empty object.
type MissingObjectError struct {
	ID string
}

func (e *MissingObjectError) Error() string {
	return fmt.Sprintf("transform: missing object %s", e.ID)
}

// UnappliableError reports that a filtered-side edit touched a path the
// filter could not have produced, so it cannot be lifted back onto the
// source tree — spec.md §7 UNAPPLIABLE(path).
type UnappliableError struct {
	Path string
}

func (e *UnappliableError) Error() string {
	return fmt.Sprintf("transform: unappliable edit at %q", e.Path)
}

// RefRaceError reports that update_ref's compare-and-set lost a race against
// a concurrent writer of the same ref — spec.md §7 REF_RACE(ref).
type RefRaceError struct {
	Ref string
}

func (e *RefRaceError) Error() string {
	return fmt.Sprintf("transform: ref race on %s", e.Ref)
}

// IOError wraps an object-database or memo-store I/O failure that is not
// itself a missing-object or ref-race condition — spec.md §7 IO_ERROR(cause).
type IOError struct {
	Cause error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("transform: io error: %v", e.Cause)
}

func (e *IOError) Unwrap() error { return e.Cause }

// errInvalidFilterNode reports a filter.Node whose Kind apply/unapply does
// not recognize. Normalize and Parse together should make this unreachable
// for any node that originated from filter.Parse, so hitting it indicates a
// node built by hand with a bad Kind value.
func errInvalidFilterNode(n any) error {
	return fmt.Errorf("transform: invalid filter node: %v", n)
}
