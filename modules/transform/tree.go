// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package transform implements the tree and history transforms that give
// filter expressions their meaning: rewriting a single tree (ApplyTree),
// rewriting an entire commit graph (ApplyCommit), and their inverses
// (UnapplyTree/UnapplyCommit).
package transform

import (
	"context"
	"net/url"
	"sort"

	"github.com/josh-project/josh-filter/modules/filter"
	"github.com/josh-project/josh-filter/modules/memo"
	"github.com/josh-project/josh-filter/modules/odb"
	"github.com/josh-project/josh-filter/modules/wildmatch"
	"github.com/josh-project/josh-filter/modules/workspace"
)

// ApplyTree rewrites the tree named by treeID according to f, returning the
// id of the resulting tree and whether that tree is empty. Results are
// memoized in store keyed by (f's normalized filter-id, treeID, KindTree),
// so repeated application of the same filter over shared history costs one
// object-database round trip per distinct tree, not per commit.
func ApplyTree(ctx context.Context, db *odb.ODB, store memo.Store, f *filter.Node, treeID string) (string, bool, error) {
	nf := filter.Normalize(f)
	id := nf.ID()
	key := memo.Key{FilterID: id, ObjectID: treeID, Kind: memo.KindTree}

	if cached, empty, ok, err := store.Get(ctx, key); err != nil {
		return "", false, err
	} else if ok {
		return cached, empty, nil
	}

	root, err := loadTree(ctx, db, treeID)
	if err != nil {
		return "", false, err
	}
	result, err := apply(ctx, db, nf, root, root)
	if err != nil {
		return "", false, err
	}
	resultID, err := writeTree(ctx, db, result)
	if err != nil {
		return "", false, &IOError{Cause: err}
	}
	empty := len(result) == 0

	if err := store.Put(ctx, key, resultID, empty); err != nil {
		return "", false, err
	}
	return resultID, empty, nil
}

// apply evaluates node n over t, the tree visible to this point in the
// composition. root is the tree the whole filter expression started from —
// :workspace= mounts resolve their referenced filters against root rather
// than t, since a workspace manifest describes how to carve up the whole
// repository, not whatever a prior composition step already narrowed t to.
func apply(ctx context.Context, db *odb.ODB, n *filter.Node, t, root memTree) (memTree, error) {
	switch n.Kind {
	case filter.KindNop:
		return t, nil

	case filter.KindSubdir:
		return navigate(t, n.Path), nil

	case filter.KindPrefix:
		return mountAt(n.Path, t), nil

	case filter.KindCompose:
		mid, err := apply(ctx, db, n.A, t, root)
		if err != nil {
			return nil, err
		}
		return apply(ctx, db, n.B, mid, root)

	case filter.KindExclude:
		removed, err := apply(ctx, db, n.Inner, t, root)
		if err != nil {
			return nil, err
		}
		return subtract(t, removed), nil

	case filter.KindSubtract:
		a, err := apply(ctx, db, n.A, t, root)
		if err != nil {
			return nil, err
		}
		b, err := apply(ctx, db, n.B, t, root)
		if err != nil {
			return nil, err
		}
		return subtract(a, b), nil

	case filter.KindGlob:
		return applyGlob(t, n.Path), nil

	case filter.KindDirs:
		return dirsSkeletonChildren(ctx, db, t, "")

	case filter.KindFold:
		acc := emptyMemTree()
		for _, op := range n.Operands {
			r, err := apply(ctx, db, op, t, root)
			if err != nil {
				return nil, err
			}
			acc = mergeUnion(acc, r)
		}
		return acc, nil

	case filter.KindWorkspace:
		return applyWorkspace(ctx, db, n, t, root)

	case filter.KindUnsign, filter.KindAuthor:
		// Commit-metadata-only filters leave the tree untouched.
		return t, nil

	default:
		return nil, &IOError{Cause: errInvalidFilterNode(n)}
	}
}

func applyGlob(t memTree, pattern string) memTree {
	wm := wildmatch.NewWildmatch(pattern)
	var paths []string
	walkPaths(t, "", &paths)
	out := emptyMemTree()
	for _, p := range paths {
		if !wm.Match(p) {
			continue
		}
		if e, ok := entryAt(t, p); ok {
			setEntryAt(out, p, cloneEntry(e))
		}
	}
	return out
}

// workspaceManifestName is the one blob :DIRS keeps verbatim inside an
// otherwise-skeletonized directory, since a workspace mount needs a real
// manifest to read.
const workspaceManifestName = "workspace.josh"

// dirsSkeleton replaces directory at path with a single empty marker blob
// named JOSH_ORIG_PATH_<url-encoded-original-path> alongside its own
// skeletonized children, so the shape of the original tree survives as an
// inspectable skeleton without any of its content.
func dirsSkeleton(ctx context.Context, db *odb.ODB, t memTree, path string) (memTree, error) {
	out, err := dirsSkeletonChildren(ctx, db, t, path)
	if err != nil {
		return nil, err
	}
	markerID, err := db.WriteBlob(ctx, nil)
	if err != nil {
		return nil, &IOError{Cause: err}
	}
	out["JOSH_ORIG_PATH_"+url.QueryEscape(path)] = &memEntry{Hash: markerID, Mode: odb.ModeRegular}
	return out, nil
}

// dirsSkeletonChildren builds path's skeletonized contents without adding
// path's own self-marker — the top-level :DIRS entry point calls this
// directly so the root is marked only via its subdirectories, never itself.
// Blob entries are dropped, except for workspace.josh, which is kept
// verbatim.
func dirsSkeletonChildren(ctx context.Context, db *odb.ODB, t memTree, path string) (memTree, error) {
	out := emptyMemTree()

	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		e := t[name]
		if !e.isDir() {
			if name == workspaceManifestName {
				out[name] = cloneEntry(e)
			}
			continue
		}
		childPath := name
		if path != "" {
			childPath = path + "/" + name
		}
		sub, err := dirsSkeleton(ctx, db, e.Dir, childPath)
		if err != nil {
			return nil, err
		}
		out[name] = &memEntry{Dir: sub, Mode: odb.ModeDir}
	}
	return out, nil
}

func applyWorkspace(ctx context.Context, db *odb.ODB, n *filter.Node, t, root memTree) (memTree, error) {
	e, ok := entryAt(t, n.Path)
	if !ok || e.isDir() {
		return emptyMemTree(), nil
	}
	content, err := db.ReadBlob(ctx, e.Hash)
	if err != nil {
		return nil, &MissingObjectError{ID: e.Hash}
	}
	mounts, err := workspace.Parse(string(content))
	if err != nil {
		return nil, &IOError{Cause: err}
	}
	out := emptyMemTree()
	for _, m := range mounts {
		sub, err := apply(ctx, db, filter.Normalize(m.Filter), root, root)
		if err != nil {
			return nil, err
		}
		out = mergeUnion(out, mountAt(m.Name, sub))
	}
	return out, nil
}
