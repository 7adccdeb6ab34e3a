// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package transform

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-project/josh-filter/modules/filter"
	"github.com/josh-project/josh-filter/modules/memo"
	"github.com/josh-project/josh-filter/modules/odb"
)

func newTestODB(t *testing.T) *odb.ODB {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, odb.NewRepo(context.Background(), dir, "main", true, odb.HashSHA1))
	db, err := odb.NewODB(dir, odb.HashUNKNOWN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestStore(t *testing.T) memo.Store {
	t.Helper()
	s, err := memo.NewRistrettoStore(1024)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

type treeNode struct {
	children map[string]*treeNode
	content  *string
}

func mustWriteTree(t *testing.T, ctx context.Context, db *odb.ODB, files map[string]string) string {
	t.Helper()
	root := &treeNode{children: map[string]*treeNode{}}
	for path, content := range files {
		content := content
		parts := strings.Split(path, "/")
		cur := root
		for i, p := range parts {
			if i == len(parts)-1 {
				cur.children[p] = &treeNode{content: &content}
				continue
			}
			next, ok := cur.children[p]
			if !ok {
				next = &treeNode{children: map[string]*treeNode{}}
				cur.children[p] = next
			}
			cur = next
		}
	}
	var write func(n *treeNode) string
	write = func(n *treeNode) string {
		names := make([]string, 0, len(n.children))
		for name := range n.children {
			names = append(names, name)
		}
		sort.Strings(names)
		var entries []*odb.TreeEntry
		for _, name := range names {
			child := n.children[name]
			if child.content != nil {
				id, err := db.WriteBlob(ctx, []byte(*child.content))
				require.NoError(t, err)
				entries = append(entries, &odb.TreeEntry{Name: name, Hash: id, Filemode: odb.ModeRegular})
				continue
			}
			id := write(child)
			entries = append(entries, &odb.TreeEntry{Name: name, Hash: id, Filemode: odb.ModeDir})
		}
		id, err := db.WriteTree(ctx, entries)
		require.NoError(t, err)
		return id
	}
	return write(root)
}

func treeFiles(t *testing.T, ctx context.Context, db *odb.ODB, treeID string) map[string]string {
	t.Helper()
	out := map[string]string{}
	if treeID == "" || odb.IsHashZero(treeID) {
		return out
	}
	tr, err := db.ReadTree(ctx, treeID)
	require.NoError(t, err)
	for _, e := range tr.Entries {
		if e.Type() == "tree" {
			for k, v := range treeFiles(t, ctx, db, e.Hash) {
				out[e.Name+"/"+k] = v
			}
			continue
		}
		content, err := db.ReadBlob(ctx, e.Hash)
		require.NoError(t, err)
		out[e.Name] = string(content)
	}
	return out
}

func parseNorm(t *testing.T, expr string) *filter.Node {
	t.Helper()
	n, err := filter.Parse(expr)
	require.NoError(t, err)
	return filter.Normalize(n)
}

func mustWriteCommit(t *testing.T, ctx context.Context, db *odb.ODB, treeID string, parents []string, message string) string {
	t.Helper()
	sig := odb.Signature{Name: "Ada Lovelace", Email: "ada@example.com"}
	id, err := db.WriteCommit(ctx, &odb.Commit{
		Tree: treeID, Parents: parents, Author: sig, Committer: sig, Message: message,
	})
	require.NoError(t, err)
	return id
}

// TestApplyTreeSubdirSelectsSubtree exercises spec.md §8's subtree-selection
// scenario: :/lib isolates the lib/ subtree and drops everything else.
func TestApplyTreeSubdirSelectsSubtree(t *testing.T) {
	ctx := context.Background()
	db := newTestODB(t)
	store := newTestStore(t)

	treeID := mustWriteTree(t, ctx, db, map[string]string{
		"lib/a.go":  "package lib",
		"docs/x.md": "# docs",
	})

	resultID, empty, err := ApplyTree(ctx, db, store, parseNorm(t, ":/lib"), treeID)
	require.NoError(t, err)
	assert.False(t, empty)
	assert.Equal(t, map[string]string{"a.go": "package lib"}, treeFiles(t, ctx, db, resultID))
}

// TestApplyTreePrefixMountsAtPath exercises the prefix-mount scenario:
// :prefix=sub relocates the whole tree under sub/.
func TestApplyTreePrefixMountsAtPath(t *testing.T) {
	ctx := context.Background()
	db := newTestODB(t)
	store := newTestStore(t)

	treeID := mustWriteTree(t, ctx, db, map[string]string{"a.txt": "hi"})

	resultID, empty, err := ApplyTree(ctx, db, store, parseNorm(t, ":prefix=vendor"), treeID)
	require.NoError(t, err)
	assert.False(t, empty)
	assert.Equal(t, map[string]string{"vendor/a.txt": "hi"}, treeFiles(t, ctx, db, resultID))
}

// TestApplyTreeDirsProducesSkeleton exercises :DIRS: every directory becomes
// a single JOSH_ORIG_PATH_ marker blob and no original file content survives.
func TestApplyTreeDirsProducesSkeleton(t *testing.T) {
	ctx := context.Background()
	db := newTestODB(t)
	store := newTestStore(t)

	treeID := mustWriteTree(t, ctx, db, map[string]string{
		"lib/a.go":           "package lib",
		"lib/sub/b.go":       "package sub",
		"top.txt":            "hi",
		"lib/workspace.josh": "out = :/\n",
	})

	resultID, empty, err := ApplyTree(ctx, db, store, parseNorm(t, ":DIRS"), treeID)
	require.NoError(t, err)
	assert.False(t, empty)
	files := treeFiles(t, ctx, db, resultID)

	assert.NotContains(t, files, "JOSH_ORIG_PATH_", "the root itself must not get a self-marker")
	assert.NotContains(t, files, "top.txt", "non-workspace blobs at any level are dropped")
	assert.Contains(t, files, "lib/JOSH_ORIG_PATH_lib")
	assert.Contains(t, files, "lib/sub/JOSH_ORIG_PATH_lib%2Fsub")
	assert.Equal(t, "out = :/\n", files["lib/workspace.josh"], "workspace.josh survives verbatim")

	for path, content := range files {
		if path == "lib/workspace.josh" {
			continue
		}
		assert.Contains(t, path, "JOSH_ORIG_PATH_")
		assert.Equal(t, "", content)
	}
}

// TestApplyTreeExcludeMatchesSubtractNormalForm exercises spec.md §8's
// normalization scenario at the tree-transform level, not just string form:
// :exclude[F] and :SUBTRACT[:/ ~ F] must produce byte-identical trees.
func TestApplyTreeExcludeMatchesSubtractNormalForm(t *testing.T) {
	ctx := context.Background()
	db := newTestODB(t)
	store := newTestStore(t)

	treeID := mustWriteTree(t, ctx, db, map[string]string{
		"lib/a.go":      "package lib",
		"vendor/dep.go": "package dep",
	})

	excludeID, _, err := ApplyTree(ctx, db, store, parseNorm(t, ":exclude[:/vendor]"), treeID)
	require.NoError(t, err)
	subtractID, _, err := ApplyTree(ctx, db, store, parseNorm(t, ":SUBTRACT[:/ ~ :/vendor]"), treeID)
	require.NoError(t, err)

	assert.Equal(t, excludeID, subtractID)
	assert.Equal(t, map[string]string{"lib/a.go": "package lib"}, treeFiles(t, ctx, db, excludeID))
}

// TestApplyCommitPrunesEmptyRoot exercises empty-commit pruning: a root
// commit whose entire tree lies outside the filter evaporates (DROPPED).
func TestApplyCommitPrunesEmptyRoot(t *testing.T) {
	ctx := context.Background()
	db := newTestODB(t)
	store := newTestStore(t)

	treeID := mustWriteTree(t, ctx, db, map[string]string{"docs/x.md": "# docs"})
	commitID := mustWriteCommit(t, ctx, db, treeID, nil, "docs only")

	resultID, dropped, err := ApplyCommit(ctx, db, store, parseNorm(t, ":/lib"), commitID)
	require.NoError(t, err)
	assert.True(t, dropped)
	assert.Equal(t, "", resultID)
}

// TestApplyCommitPreservesNonEmptyChange exercises the ordinary case: a
// filter that does select content produces a real filtered commit whose
// tree matches ApplyTree's result for that same commit.
func TestApplyCommitPreservesNonEmptyChange(t *testing.T) {
	ctx := context.Background()
	db := newTestODB(t)
	store := newTestStore(t)

	treeID := mustWriteTree(t, ctx, db, map[string]string{
		"lib/a.go":  "package lib",
		"docs/x.md": "# docs",
	})
	commitID := mustWriteCommit(t, ctx, db, treeID, nil, "add lib and docs")

	nf := parseNorm(t, ":/lib")
	resultID, dropped, err := ApplyCommit(ctx, db, store, nf, commitID)
	require.NoError(t, err)
	require.False(t, dropped)

	filtered, err := db.ReadCommit(ctx, resultID)
	require.NoError(t, err)
	wantTree, _, err := ApplyTree(ctx, db, store, nf, treeID)
	require.NoError(t, err)
	assert.Equal(t, wantTree, filtered.Tree)
	assert.Empty(t, filtered.Parents)
}

// TestApplyCommitPrunesNoOpChild exercises empty-commit pruning on a non-root
// commit: a child commit that touches only content outside the filter
// collapses onto its filtered parent instead of producing a no-op commit.
func TestApplyCommitPrunesNoOpChild(t *testing.T) {
	ctx := context.Background()
	db := newTestODB(t)
	store := newTestStore(t)

	baseTree := mustWriteTree(t, ctx, db, map[string]string{
		"lib/a.go":  "package lib",
		"docs/x.md": "# docs v1",
	})
	baseCommit := mustWriteCommit(t, ctx, db, baseTree, nil, "base")

	childTree := mustWriteTree(t, ctx, db, map[string]string{
		"lib/a.go":  "package lib",
		"docs/x.md": "# docs v2",
	})
	childCommit := mustWriteCommit(t, ctx, db, childTree, []string{baseCommit}, "docs only change")

	nf := parseNorm(t, ":/lib")
	baseFiltered, _, err := ApplyCommit(ctx, db, store, nf, baseCommit)
	require.NoError(t, err)
	childFiltered, dropped, err := ApplyCommit(ctx, db, store, nf, childCommit)
	require.NoError(t, err)
	assert.False(t, dropped)
	assert.Equal(t, baseFiltered, childFiltered)
}

// TestApplyCommitPrunesChildOfPrunedRoot exercises the gap left by pruning on
// original parent count: a root commit R that only touches content outside
// the filter evaporates, and its child C — which also only touches content
// outside the filter — must evaporate too rather than surviving as a
// phantom empty-tree, zero-parent commit.
func TestApplyCommitPrunesChildOfPrunedRoot(t *testing.T) {
	ctx := context.Background()
	db := newTestODB(t)
	store := newTestStore(t)

	rootTree := mustWriteTree(t, ctx, db, map[string]string{"docs/x.md": "# docs v1"})
	rootCommit := mustWriteCommit(t, ctx, db, rootTree, nil, "docs only root")

	childTree := mustWriteTree(t, ctx, db, map[string]string{"docs/x.md": "# docs v2"})
	childCommit := mustWriteCommit(t, ctx, db, childTree, []string{rootCommit}, "docs only child")

	nf := parseNorm(t, ":/lib")
	resultID, dropped, err := ApplyCommit(ctx, db, store, nf, childCommit)
	require.NoError(t, err)
	assert.True(t, dropped, "a commit whose sole parent was pruned and whose own tree is empty must also be pruned")
	assert.Equal(t, "", resultID)
}

// TestApplyCommitPreserveEmptyCommitsOption exercises Options.PreserveEmptyCommits:
// with it set, a commit that would otherwise be pruned gets a real filtered
// commit instead.
func TestApplyCommitPreserveEmptyCommitsOption(t *testing.T) {
	ctx := context.Background()
	db := newTestODB(t)
	store := newTestStore(t)

	treeID := mustWriteTree(t, ctx, db, map[string]string{"docs/x.md": "# docs"})
	commitID := mustWriteCommit(t, ctx, db, treeID, nil, "docs only")

	nf := parseNorm(t, ":/lib")
	resultID, dropped, err := ApplyCommitWithOptions(ctx, db, store, nf, commitID, Options{PreserveEmptyCommits: true})
	require.NoError(t, err)
	assert.False(t, dropped)
	require.NotEmpty(t, resultID)

	c, err := db.ReadCommit(ctx, resultID)
	require.NoError(t, err)
	assert.Empty(t, c.Parents)
	assert.Empty(t, treeFiles(t, ctx, db, c.Tree))
}

// TestUnapplyTreeRoundTrip exercises I5: unapply(F, T, apply(F, T)) == T when
// the filtered view is passed back unmodified.
func TestUnapplyTreeRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTestODB(t)
	store := newTestStore(t)

	treeID := mustWriteTree(t, ctx, db, map[string]string{
		"lib/a.go":  "package lib",
		"docs/x.md": "# docs",
	})
	nf := parseNorm(t, ":/lib")

	appliedID, _, err := ApplyTree(ctx, db, store, nf, treeID)
	require.NoError(t, err)

	roundTripID, err := UnapplyTree(ctx, db, store, nf, treeID, appliedID)
	require.NoError(t, err)
	assert.Equal(t, treeID, roundTripID)
}

// TestUnapplyTreeAppliesEdit exercises unapply carrying an actual edit made
// on the filtered side back onto the source, leaving everything outside the
// filter's selected region untouched.
func TestUnapplyTreeAppliesEdit(t *testing.T) {
	ctx := context.Background()
	db := newTestODB(t)
	store := newTestStore(t)

	treeID := mustWriteTree(t, ctx, db, map[string]string{
		"lib/a.go":  "package lib",
		"docs/x.md": "# docs",
	})
	nf := parseNorm(t, ":/lib")

	editedID := mustWriteTree(t, ctx, db, map[string]string{"a.go": "package lib // edited"})

	newSourceID, err := UnapplyTree(ctx, db, store, nf, treeID, editedID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"lib/a.go":  "package lib // edited",
		"docs/x.md": "# docs",
	}, treeFiles(t, ctx, db, newSourceID))
}

// TestUnapplyTreePrefixUnappliable exercises UNAPPLIABLE: a :prefix= filter
// can only invert an edited tree that actually has content at that prefix.
func TestUnapplyTreePrefixUnappliable(t *testing.T) {
	ctx := context.Background()
	db := newTestODB(t)
	store := newTestStore(t)

	treeID := mustWriteTree(t, ctx, db, map[string]string{"a.txt": "hi"})
	nf := parseNorm(t, ":prefix=vendor")

	editedID := mustWriteTree(t, ctx, db, map[string]string{"somewhere-else/a.txt": "hi"})

	_, err := UnapplyTree(ctx, db, store, nf, treeID, editedID)
	require.Error(t, err)
	var uerr *UnappliableError
	require.ErrorAs(t, err, &uerr)
}

// TestApplyTreeFoldUnionsLastWriterWins exercises :FOLD: every operand
// applies independently to the same input tree, and the results union
// together with the canonically-later operand winning on path collision.
// Built directly as a Node rather than parsed, since the grammar has no way
// to write a chained (subdir-then-prefix) operand inside a single :FOLD
// expression without it being flattened into separate top-level operands.
func TestApplyTreeFoldUnionsLastWriterWins(t *testing.T) {
	ctx := context.Background()
	db := newTestODB(t)
	store := newTestStore(t)

	treeID := mustWriteTree(t, ctx, db, map[string]string{
		"a.txt":     "from-root",
		"sub/a.txt": "from-sub",
	})

	foldNode := &filter.Node{
		Kind: filter.KindFold,
		Operands: []*filter.Node{
			{Kind: filter.KindNop},
			{Kind: filter.KindCompose,
				A: &filter.Node{Kind: filter.KindSubdir, Path: "sub"},
				B: &filter.Node{Kind: filter.KindPrefix, Path: ""},
			},
		},
	}
	nf := filter.Normalize(foldNode)

	resultID, _, err := ApplyTree(ctx, db, store, nf, treeID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"a.txt":     "from-sub", // op2 (the later-sorted operand) wins the collision
		"sub/a.txt": "from-sub", // untouched by op2, carried through from op1
	}, treeFiles(t, ctx, db, resultID))
}

// TestApplyTreeWorkspaceMountsNamedFilters exercises :workspace=: a manifest
// blob read from the tree being filtered describes how to mount other
// filters' outputs (evaluated against the whole root, not the manifest's own
// directory) at named paths.
func TestApplyTreeWorkspaceMountsNamedFilters(t *testing.T) {
	ctx := context.Background()
	db := newTestODB(t)
	store := newTestStore(t)

	treeID := mustWriteTree(t, ctx, db, map[string]string{
		"workspace.josh": "libout = :/lib\ndocsout = :/docs\n",
		"lib/a.go":       "package lib",
		"docs/x.md":      "# docs",
	})

	resultID, _, err := ApplyTree(ctx, db, store, parseNorm(t, ":workspace=workspace.josh"), treeID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"libout/a.go":  "package lib",
		"docsout/x.md": "# docs",
	}, treeFiles(t, ctx, db, resultID))
}

// TestUnapplyCommitRoundTrip exercises unapply_commit: lifting an unmodified
// filtered commit back onto its source reproduces the source tree, parented
// on the base source commit.
func TestUnapplyCommitRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTestODB(t)
	store := newTestStore(t)

	treeID := mustWriteTree(t, ctx, db, map[string]string{
		"lib/a.go":  "package lib",
		"docs/x.md": "# docs",
	})
	sourceCommit := mustWriteCommit(t, ctx, db, treeID, nil, "base")

	nf := parseNorm(t, ":/lib")
	filteredCommit, dropped, err := ApplyCommit(ctx, db, store, nf, sourceCommit)
	require.NoError(t, err)
	require.False(t, dropped)

	reconstructed, err := UnapplyCommit(ctx, db, store, nf, filteredCommit, sourceCommit)
	require.NoError(t, err)

	rc, err := db.ReadCommit(ctx, reconstructed)
	require.NoError(t, err)
	assert.Equal(t, []string{sourceCommit}, rc.Parents)
	assert.Equal(t, treeID, rc.Tree)
}
