// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package transform

import (
	"context"

	"github.com/josh-project/josh-filter/modules/filter"
	"github.com/josh-project/josh-filter/modules/memo"
	"github.com/josh-project/josh-filter/modules/odb"
)

// UnapplyTree lifts a modification made on a filtered view back onto its
// source: given the pre-edit source tree sourceID and a filtered tree
// newID (assumed to be a modification of ApplyTree(f, sourceID)), it
// produces the id of a new source tree that equals sourceID outside f's
// selected region and equals newID, restricted to that region — the I5
// round-trip property.
func UnapplyTree(ctx context.Context, db *odb.ODB, store memo.Store, f *filter.Node, sourceID, newID string) (string, error) {
	nf := filter.Normalize(f)
	source, err := loadTree(ctx, db, sourceID)
	if err != nil {
		return "", err
	}
	edited, err := loadTree(ctx, db, newID)
	if err != nil {
		return "", err
	}
	result, err := unapply(ctx, db, store, nf, source, edited, "")
	if err != nil {
		return "", err
	}
	id, err := writeTree(ctx, db, result)
	if err != nil {
		return "", &IOError{Cause: err}
	}
	return id, nil
}

// unapply is the structural inverse of apply (tree.go). pathSoFar tracks
// where in the original tree we are, purely to report accurate
// UnappliableError paths.
func unapply(ctx context.Context, db *odb.ODB, store memo.Store, n *filter.Node, source, edited memTree, pathSoFar string) (memTree, error) {
	switch n.Kind {
	case filter.KindNop:
		return edited, nil

	case filter.KindSubdir:
		return setSubtreeAt(source, n.Path, edited), nil

	case filter.KindPrefix:
		sub, ok := navigateStrict(edited, n.Path)
		if !ok {
			return nil, &UnappliableError{Path: joinPath(pathSoFar, n.Path)}
		}
		return sub, nil

	case filter.KindCompose:
		mid, err := apply(ctx, db, n.A, source, source)
		if err != nil {
			return nil, err
		}
		u2, err := unapply(ctx, db, store, n.B, mid, edited, pathSoFar)
		if err != nil {
			return nil, err
		}
		return unapply(ctx, db, store, n.A, source, u2, pathSoFar)

	case filter.KindSubtract:
		aImage, err := apply(ctx, db, n.A, source, source)
		if err != nil {
			return nil, err
		}
		bImage, err := apply(ctx, db, n.B, source, source)
		if err != nil {
			return nil, err
		}
		visible := subtract(aImage, bImage)
		invisible := subtract(aImage, visible)
		u := mergeUnion(invisible, edited)
		return unapply(ctx, db, store, n.A, source, u, pathSoFar)

	case filter.KindExclude:
		return unapply(ctx, db, store, &filter.Node{Kind: filter.KindSubtract, A: filter.Nop, B: n.Inner}, source, edited, pathSoFar)

	case filter.KindGlob:
		image := applyGlob(source, n.Path)
		return replaceRegion(source, image, edited), nil

	case filter.KindFold:
		image, err := apply(ctx, db, n, source, source)
		if err != nil {
			return nil, err
		}
		return replaceRegion(source, image, edited), nil

	case filter.KindWorkspace:
		image, err := applyWorkspace(ctx, db, n, source, source)
		if err != nil {
			return nil, err
		}
		return replaceRegion(source, image, edited), nil

	case filter.KindDirs:
		// The skeleton isn't meaningfully editable; source is unaffected.
		return source, nil

	case filter.KindUnsign, filter.KindAuthor:
		return edited, nil

	default:
		return nil, &IOError{Cause: errInvalidFilterNode(n)}
	}
}

func joinPath(prefix, path string) string {
	if prefix == "" {
		return path
	}
	if path == "" {
		return prefix
	}
	return prefix + "/" + path
}

// UnapplyCommit lifts a filtered-side commit newID back onto baseSourceID,
// the source commit the filtered chain was built from — spec.md §4.4's
// unapply_commit. Author, committer, and message come from newID; only the
// tree is inverted.
func UnapplyCommit(ctx context.Context, db *odb.ODB, store memo.Store, f *filter.Node, newID, baseSourceID string) (string, error) {
	newCommit, err := db.ReadCommit(ctx, newID)
	if err != nil {
		return "", &MissingObjectError{ID: newID}
	}
	baseCommit, err := db.ReadCommit(ctx, baseSourceID)
	if err != nil {
		return "", &MissingObjectError{ID: baseSourceID}
	}

	sourceTreeID, err := UnapplyTree(ctx, db, store, f, baseCommit.Tree, newCommit.Tree)
	if err != nil {
		return "", err
	}

	out := &odb.Commit{
		Tree:         sourceTreeID,
		Parents:      []string{baseSourceID},
		Author:       newCommit.Author,
		Committer:    newCommit.Committer,
		Message:      newCommit.Message,
		ExtraHeaders: newCommit.ExtraHeaders,
	}
	id, err := db.WriteCommit(ctx, out)
	if err != nil {
		return "", &IOError{Cause: err}
	}
	return id, nil
}
