// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package transform

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-project/josh-filter/modules/filter"
)

// propertyDirNames is the small directory vocabulary randomTreeFiles draws
// from, so randomly generated subdir/prefix filters have good odds of
// actually selecting something rather than always hitting empty trees.
var propertyDirNames = []string{"lib", "docs", "src", "vendor"}

func randomTreeFiles(r *rand.Rand) map[string]string {
	files := map[string]string{}
	n := 2 + r.Intn(4)
	for i := 0; i < n; i++ {
		dir := propertyDirNames[r.Intn(len(propertyDirNames))]
		files[fmt.Sprintf("%s/f%d.txt", dir, i)] = fmt.Sprintf("content-%d-%d", i, r.Intn(1000))
	}
	return files
}

func randomSubdirFilter(r *rand.Rand) *filter.Node {
	return &filter.Node{Kind: filter.KindSubdir, Path: propertyDirNames[r.Intn(len(propertyDirNames))]}
}

func randomPrefixFilter(r *rand.Rand) *filter.Node {
	return &filter.Node{Kind: filter.KindPrefix, Path: propertyDirNames[r.Intn(len(propertyDirNames))]}
}

// TestPropertyIdentityFilterIsNoOp exercises I2 (apply(:/, x) = x) over
// randomly generated trees.
func TestPropertyIdentityFilterIsNoOp(t *testing.T) {
	ctx := context.Background()
	db := newTestODB(t)
	store := newTestStore(t)
	r := rand.New(rand.NewSource(1))

	for i := 0; i < 20; i++ {
		files := randomTreeFiles(r)
		treeID := mustWriteTree(t, ctx, db, files)
		resultID, _, err := ApplyTree(ctx, db, store, filter.Nop, treeID)
		require.NoError(t, err)
		assert.Equal(t, treeID, resultID)
	}
}

// TestPropertyReferentialTransparency exercises I1: apply(F, x) depends only
// on F's filter-id and x's object-id, not on any other state — in
// particular not on which (fresh) memo store is asked.
func TestPropertyReferentialTransparency(t *testing.T) {
	ctx := context.Background()
	db := newTestODB(t)
	r := rand.New(rand.NewSource(2))

	for i := 0; i < 15; i++ {
		files := randomTreeFiles(r)
		treeID := mustWriteTree(t, ctx, db, files)
		f := randomSubdirFilter(r)

		id1, empty1, err := ApplyTree(ctx, db, newTestStore(t), f, treeID)
		require.NoError(t, err)
		id2, empty2, err := ApplyTree(ctx, db, newTestStore(t), f, treeID)
		require.NoError(t, err)

		assert.Equal(t, id1, id2, "apply(F,x) must depend only on F's filter-id and x's object-id")
		assert.Equal(t, empty1, empty2)
	}
}

// TestPropertyComposeSequencesApplication exercises P1:
// apply(F1:F2, x) = apply(F2, apply(F1, x)).
func TestPropertyComposeSequencesApplication(t *testing.T) {
	ctx := context.Background()
	db := newTestODB(t)
	store := newTestStore(t)
	r := rand.New(rand.NewSource(3))

	for i := 0; i < 15; i++ {
		files := randomTreeFiles(r)
		treeID := mustWriteTree(t, ctx, db, files)
		f1 := randomSubdirFilter(r)
		f2 := randomPrefixFilter(r)
		composed := &filter.Node{Kind: filter.KindCompose, A: f1, B: f2}

		composedID, _, err := ApplyTree(ctx, db, store, composed, treeID)
		require.NoError(t, err)

		midID, _, err := ApplyTree(ctx, db, store, f1, treeID)
		require.NoError(t, err)
		sequentialID, _, err := ApplyTree(ctx, db, store, f2, midID)
		require.NoError(t, err)

		assert.Equal(t, sequentialID, composedID)
	}
}

// TestPropertySubdirPrefixRoundTripIsSubset exercises P2:
// apply(:/p:prefix=p, x) is a subset of x, and equals x when every file of
// x lies under p.
func TestPropertySubdirPrefixRoundTripIsSubset(t *testing.T) {
	ctx := context.Background()
	db := newTestODB(t)
	store := newTestStore(t)
	r := rand.New(rand.NewSource(4))

	for i := 0; i < 15; i++ {
		files := randomTreeFiles(r)
		treeID := mustWriteTree(t, ctx, db, files)
		dir := propertyDirNames[r.Intn(len(propertyDirNames))]

		roundTrip := &filter.Node{
			Kind: filter.KindCompose,
			A:    &filter.Node{Kind: filter.KindSubdir, Path: dir},
			B:    &filter.Node{Kind: filter.KindPrefix, Path: dir},
		}
		resultID, _, err := ApplyTree(ctx, db, store, roundTrip, treeID)
		require.NoError(t, err)

		original := treeFiles(t, ctx, db, treeID)
		got := treeFiles(t, ctx, db, resultID)
		for path, content := range got {
			assert.Equal(t, original[path], content, "every surviving path must match the source unchanged")
		}

		onlyDir := len(original) > 0
		for path := range original {
			if !strings.HasPrefix(path, dir+"/") {
				onlyDir = false
				break
			}
		}
		if onlyDir {
			assert.Equal(t, original, got, "when %s exists wholly in x, :/%[1]s:prefix=%[1]s must reproduce x exactly", dir)
		}
	}
}

// TestPropertyUnapplyAppliesEditBack exercises P4: unapply(F, T,
// apply(F, T')) where T' differs from T only inside F's image equals T'.
func TestPropertyUnapplyAppliesEditBack(t *testing.T) {
	ctx := context.Background()
	db := newTestODB(t)
	store := newTestStore(t)
	r := rand.New(rand.NewSource(5))

	for i := 0; i < 15; i++ {
		files := randomTreeFiles(r)
		files["lib/seed.txt"] = "seed"
		treeID := mustWriteTree(t, ctx, db, files)
		nf := filter.Normalize(&filter.Node{Kind: filter.KindSubdir, Path: "lib"})

		appliedID, _, err := ApplyTree(ctx, db, store, nf, treeID)
		require.NoError(t, err)

		editedFiles := treeFiles(t, ctx, db, appliedID)
		editedFiles[fmt.Sprintf("extra%d.txt", i)] = "new content"
		editedID := mustWriteTree(t, ctx, db, editedFiles)

		newSourceID, err := UnapplyTree(ctx, db, store, nf, treeID, editedID)
		require.NoError(t, err)

		reapplied, _, err := ApplyTree(ctx, db, store, nf, newSourceID)
		require.NoError(t, err)
		assert.Equal(t, editedID, reapplied, "unapplying then reapplying must reproduce the edited image exactly")

		orig := treeFiles(t, ctx, db, treeID)
		newFiles := treeFiles(t, ctx, db, newSourceID)
		for path, content := range orig {
			if strings.HasPrefix(path, "lib/") {
				continue
			}
			assert.Equal(t, content, newFiles[path], "content outside the filter's image must be untouched")
		}
	}
}

// TestPropertyCommitIDDeterminism exercises P5: two runs of the same
// (filter, source-ref) produce identical filtered commit-ids.
func TestPropertyCommitIDDeterminism(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(6))

	for i := 0; i < 10; i++ {
		db := newTestODB(t)
		files := randomTreeFiles(r)
		treeID := mustWriteTree(t, ctx, db, files)
		commitID := mustWriteCommit(t, ctx, db, treeID, nil, "seed")
		nf := randomSubdirFilter(r)

		id1, _, err := ApplyCommit(ctx, db, newTestStore(t), nf, commitID)
		require.NoError(t, err)
		id2, _, err := ApplyCommit(ctx, db, newTestStore(t), nf, commitID)
		require.NoError(t, err)

		assert.Equal(t, id1, id2, "two runs of the same (filter, source-ref) must produce identical filtered commit-ids")
	}
}

// TestPropertyParentOrderPreserved exercises I3: a merge commit's surviving
// filtered parents keep their original relative order.
func TestPropertyParentOrderPreserved(t *testing.T) {
	ctx := context.Background()
	db := newTestODB(t)
	store := newTestStore(t)
	r := rand.New(rand.NewSource(7))
	nf := parseNorm(t, ":/lib")

	for i := 0; i < 10; i++ {
		nParents := 2 + r.Intn(3)
		var parents []string
		var survivingOrder []string
		for p := 0; p < nParents; p++ {
			keep := r.Intn(2) == 0
			tree := map[string]string{"docs/f.txt": fmt.Sprintf("p%d", p)}
			if keep {
				tree = map[string]string{"lib/f.txt": fmt.Sprintf("p%d", p)}
			}
			treeID := mustWriteTree(t, ctx, db, tree)
			parentCommit := mustWriteCommit(t, ctx, db, treeID, nil, fmt.Sprintf("parent %d", p))
			parents = append(parents, parentCommit)
			if keep {
				filtered, _, err := ApplyCommit(ctx, db, store, nf, parentCommit)
				require.NoError(t, err)
				survivingOrder = append(survivingOrder, filtered)
			}
		}
		if len(survivingOrder) < 2 {
			continue
		}

		mergeTree := mustWriteTree(t, ctx, db, map[string]string{"lib/merge.txt": "merge"})
		mergeCommit := mustWriteCommit(t, ctx, db, mergeTree, parents, "merge")

		resultID, dropped, err := ApplyCommit(ctx, db, store, nf, mergeCommit)
		require.NoError(t, err)
		require.False(t, dropped)

		c, err := db.ReadCommit(ctx, resultID)
		require.NoError(t, err)
		assert.Equal(t, survivingOrder, c.Parents, "surviving parents must keep their original relative order")
	}
}

// TestPropertyExcludeFilterIsIdempotent exercises I4 for :exclude: having
// already removed a subtree, applying the same exclude filter again to the
// result removes nothing further.
func TestPropertyExcludeFilterIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestODB(t)
	store := newTestStore(t)
	r := rand.New(rand.NewSource(8))
	nf := parseNorm(t, ":exclude[:/docs]")

	for i := 0; i < 15; i++ {
		files := randomTreeFiles(r)
		treeID := mustWriteTree(t, ctx, db, files)

		firstID, _, err := ApplyTree(ctx, db, store, nf, treeID)
		require.NoError(t, err)
		secondID, _, err := ApplyTree(ctx, db, store, nf, firstID)
		require.NoError(t, err)

		assert.Equal(t, firstID, secondID, "re-applying the same exclude filter to its own output must be a no-op")
	}
}
