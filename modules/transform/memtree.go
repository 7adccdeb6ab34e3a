// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package transform

import (
	"context"
	"sort"
	"strings"

	"github.com/josh-project/josh-filter/modules/odb"
)

// memTree is an in-memory git tree: path component -> entry. Filter
// operations build and tear down these freely before a single WriteTree
// call serializes the final shape back to the object database, so the tree
// and history transforms never touch git plumbing mid-computation.
type memTree map[string]*memEntry

type memEntry struct {
	// Blob/gitlink/symlink entry.
	Hash string
	Mode odb.FileMode
	// Subtree entry; nil for non-directory entries.
	Dir memTree
}

func (e *memEntry) isDir() bool { return e.Dir != nil }

func emptyMemTree() memTree { return memTree{} }

// loadTree recursively materializes treeID into an in-memory tree. Empty or
// zero ids load as an empty tree rather than erroring, so composing filters
// over "nothing selected yet" stays simple.
func loadTree(ctx context.Context, db *odb.ODB, treeID string) (memTree, error) {
	if treeID == "" || odb.IsHashZero(treeID) {
		return emptyMemTree(), nil
	}
	t, err := db.ReadTree(ctx, treeID)
	if err != nil {
		return nil, &MissingObjectError{ID: treeID}
	}
	out := emptyMemTree()
	for _, e := range t.Entries {
		if e.Type() == "tree" {
			sub, err := loadTree(ctx, db, e.Hash)
			if err != nil {
				return nil, err
			}
			out[e.Name] = &memEntry{Dir: sub, Mode: e.Filemode}
			continue
		}
		out[e.Name] = &memEntry{Hash: e.Hash, Mode: e.Filemode}
	}
	return out, nil
}

// writeTree serializes t back to the object database bottom-up, omitting
// any subtree that is empty after filtering — git trees have no concept of
// an empty directory, so an empty memTree simply contributes no entry to
// its parent (the "reconstruct minimal enclosing trees" rule of spec.md
// §4.2's :glob= case, applied uniformly).
func writeTree(ctx context.Context, db *odb.ODB, t memTree) (string, error) {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]*odb.TreeEntry, 0, len(names))
	for _, name := range names {
		e := t[name]
		if e.isDir() {
			if len(e.Dir) == 0 {
				continue
			}
			id, err := writeTree(ctx, db, e.Dir)
			if err != nil {
				return "", err
			}
			mode := e.Mode
			if mode == 0 {
				mode = odb.ModeDir
			}
			entries = append(entries, &odb.TreeEntry{Name: name, Hash: id, Filemode: mode})
			continue
		}
		entries = append(entries, &odb.TreeEntry{Name: name, Hash: e.Hash, Filemode: e.Mode})
	}
	if len(entries) == 0 {
		return emptyTreeID(db), nil
	}
	return db.WriteTree(ctx, entries)
}

func emptyTreeID(db *odb.ODB) string {
	return db.HashAlgo().EmptyTreeID()
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// navigate descends t along path's components, returning the subtree found
// there (or an empty tree if no such path exists — navigating a path that
// isn't present is not an error, it just selects nothing).
func navigate(t memTree, path string) memTree {
	cur := t
	for _, comp := range splitPath(path) {
		e, ok := cur[comp]
		if !ok || !e.isDir() {
			return emptyMemTree()
		}
		cur = e.Dir
	}
	return cloneTree(cur)
}

// mountAt returns a fresh tree containing sub at the nested location path.
func mountAt(path string, sub memTree) memTree {
	comps := splitPath(path)
	if len(comps) == 0 {
		return sub
	}
	out := emptyMemTree()
	cur := out
	for i, comp := range comps {
		if i == len(comps)-1 {
			cur[comp] = &memEntry{Dir: sub, Mode: odb.ModeDir}
			break
		}
		next := emptyMemTree()
		cur[comp] = &memEntry{Dir: next, Mode: odb.ModeDir}
		cur = next
	}
	return out
}

func cloneTree(t memTree) memTree {
	out := make(memTree, len(t))
	for k, v := range t {
		if v.isDir() {
			out[k] = &memEntry{Dir: cloneTree(v.Dir), Mode: v.Mode}
		} else {
			out[k] = &memEntry{Hash: v.Hash, Mode: v.Mode}
		}
	}
	return out
}

// mergeUnion unions b into a, b's entries winning on path collision —
// the last-writer-wins rule spec.md §4.2 mandates for :FOLD.
func mergeUnion(a, b memTree) memTree {
	out := cloneTree(a)
	for name, be := range b {
		ae, exists := out[name]
		switch {
		case !exists:
			out[name] = cloneEntry(be)
		case ae.isDir() && be.isDir():
			out[name] = &memEntry{Dir: mergeUnion(ae.Dir, be.Dir), Mode: be.Mode}
		default:
			out[name] = cloneEntry(be)
		}
	}
	return out
}

func cloneEntry(e *memEntry) *memEntry {
	if e.isDir() {
		return &memEntry{Dir: cloneTree(e.Dir), Mode: e.Mode}
	}
	return &memEntry{Hash: e.Hash, Mode: e.Mode}
}

// subtract returns entries present in a but not (at the same path, with the
// same content) in b — a deep, per-path set difference.
func subtract(a, b memTree) memTree {
	out := emptyMemTree()
	for name, ae := range a {
		be, exists := b[name]
		switch {
		case !exists:
			out[name] = cloneEntry(ae)
		case ae.isDir() && be.isDir():
			sub := subtract(ae.Dir, be.Dir)
			if len(sub) > 0 {
				out[name] = &memEntry{Dir: sub, Mode: ae.Mode}
			}
		case ae.isDir() != be.isDir() || ae.Hash != be.Hash:
			out[name] = cloneEntry(ae)
		}
	}
	return out
}

// walkPaths collects every blob/symlink/gitlink path in t (directories are
// not listed themselves), in sorted order.
func walkPaths(t memTree, prefix string, out *[]string) {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		e := t[name]
		full := name
		if prefix != "" {
			full = prefix + "/" + name
		}
		if e.isDir() {
			walkPaths(e.Dir, full, out)
			continue
		}
		*out = append(*out, full)
	}
}

// entryAt fetches the leaf entry at path, if any.
func entryAt(t memTree, path string) (*memEntry, bool) {
	comps := splitPath(path)
	if len(comps) == 0 {
		return nil, false
	}
	cur := t
	for i, comp := range comps {
		e, ok := cur[comp]
		if !ok {
			return nil, false
		}
		if i == len(comps)-1 {
			return e, true
		}
		if !e.isDir() {
			return nil, false
		}
		cur = e.Dir
	}
	return nil, false
}

// setEntryAt sets the leaf entry at path, creating intermediate directories
// as needed (t is mutated in place).
func setEntryAt(t memTree, path string, entry *memEntry) {
	comps := splitPath(path)
	cur := t
	for i, comp := range comps {
		if i == len(comps)-1 {
			cur[comp] = entry
			return
		}
		next, ok := cur[comp]
		if !ok || !next.isDir() {
			next = &memEntry{Dir: emptyMemTree(), Mode: odb.ModeDir}
			cur[comp] = next
		}
		cur = next.Dir
	}
}

// deleteEntryAt removes the leaf entry at path, if present (t is mutated in
// place). Intermediate directories left empty by the removal are not pruned
// here; writeTree already omits empty subtrees when serializing.
func deleteEntryAt(t memTree, path string) {
	comps := splitPath(path)
	if len(comps) == 0 {
		return
	}
	cur := t
	for i, comp := range comps {
		if i == len(comps)-1 {
			delete(cur, comp)
			return
		}
		next, ok := cur[comp]
		if !ok || !next.isDir() {
			return
		}
		cur = next.Dir
	}
}

// navigateStrict is navigate but reports whether path actually resolved to a
// directory in t, rather than silently returning an empty tree — callers
// that must distinguish "selects nothing" from "path doesn't exist" (e.g.
// :prefix= on unapply) use this instead.
func navigateStrict(t memTree, path string) (memTree, bool) {
	cur := t
	for _, comp := range splitPath(path) {
		e, ok := cur[comp]
		if !ok || !e.isDir() {
			return nil, false
		}
		cur = e.Dir
	}
	return cloneTree(cur), true
}

// setSubtreeAt returns a copy of t with the directory at path replaced
// wholesale by sub (not merged with whatever was there).
func setSubtreeAt(t memTree, path string, sub memTree) memTree {
	out := cloneTree(t)
	comps := splitPath(path)
	if len(comps) == 0 {
		return sub
	}
	cur := out
	for i, comp := range comps {
		if i == len(comps)-1 {
			cur[comp] = &memEntry{Dir: sub, Mode: odb.ModeDir}
			return out
		}
		next, ok := cur[comp]
		if !ok || !next.isDir() {
			next = &memEntry{Dir: emptyMemTree(), Mode: odb.ModeDir}
			cur[comp] = next
		}
		cur = next.Dir
	}
	return out
}

// replaceRegion returns source with every path present in image either set
// to image's corresponding entry in edited, or removed if edited no longer
// has it — the shared "only the reachable portion is invertible, everything
// else passes through unchanged" rule spec.md §4.4 states for :glob, :FOLD,
// and :workspace=.
func replaceRegion(source, image, edited memTree) memTree {
	out := cloneTree(source)
	var paths []string
	walkPaths(image, "", &paths)
	for _, p := range paths {
		if e, ok := entryAt(edited, p); ok {
			setEntryAt(out, p, cloneEntry(e))
		} else {
			deleteEntryAt(out, p)
		}
	}
	return out
}
