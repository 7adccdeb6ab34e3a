// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package transform

import (
	"context"

	"github.com/emirpasic/gods/stacks/arraystack"

	"github.com/josh-project/josh-filter/modules/filter"
	"github.com/josh-project/josh-filter/modules/memo"
	"github.com/josh-project/josh-filter/modules/odb"
)

// commitResult is what a source commit resolves to on the filtered side.
// An empty ID means the commit evaporated entirely — either it was an empty
// root (spec.md §4.3 empty-commit pruning applied to a commit with no
// parents) or every ancestor leading to it evaporated too.
type commitResult struct {
	id    string
	empty bool
}

type workItem struct {
	id            string
	parentsPushed bool
}

// ApplyCommit rewrites the commit graph reachable from commitID according to
// f: every commit's tree is filtered with ApplyTree, commits whose filtered
// tree exactly matches their sole filtered parent's are pruned (empty-commit
// pruning), and redundant parent edges produced by two original parents
// collapsing to the same filtered commit are deduplicated (merge
// simplification). commitID itself may evaporate — see commitResult.
//
// History is walked with an explicit work stack rather than native
// recursion: repository histories can be tens of thousands of commits deep,
// which would overflow the goroutine stack under straightforward recursion.
func ApplyCommit(ctx context.Context, db *odb.ODB, store memo.Store, f *filter.Node, commitID string) (string, bool, error) {
	return ApplyCommitWithOptions(ctx, db, store, f, commitID, Options{})
}

// Options configures history-transform behavior that isn't expressible in
// the filter expression itself.
type Options struct {
	// PreserveEmptyCommits disables empty-commit pruning: every source
	// commit gets a corresponding filtered commit, even one whose tree
	// exactly matches its filtered parent's (or an empty root).
	PreserveEmptyCommits bool
}

// ApplyCommitWithOptions is ApplyCommit with explicit Options; ApplyCommit
// is the common case (default options, i.e. empty-commit pruning on).
func ApplyCommitWithOptions(ctx context.Context, db *odb.ODB, store memo.Store, f *filter.Node, commitID string, opts Options) (string, bool, error) {
	nf := filter.Normalize(f)
	meta := collectMeta(nf)

	resolved := make(map[string]commitResult)
	stack := arraystack.New()
	stack.Push(workItem{id: commitID})

	for !stack.Empty() {
		top, _ := stack.Pop()
		item := top.(workItem)
		if _, done := resolved[item.id]; done {
			continue
		}

		key := memo.Key{FilterID: nf.ID(), ObjectID: item.id, Kind: memo.KindCommit}
		if cached, empty, ok, err := store.Get(ctx, key); err != nil {
			return "", false, err
		} else if ok {
			resolved[item.id] = commitResult{id: cached, empty: empty}
			continue
		}

		c, err := db.ReadCommit(ctx, item.id)
		if err != nil {
			return "", false, &MissingObjectError{ID: item.id}
		}

		if !item.parentsPushed {
			for _, p := range c.Parents {
				if _, done := resolved[p]; !done {
					stack.Push(workItem{id: p})
				}
			}
			stack.Push(workItem{id: item.id, parentsPushed: true})
			continue
		}

		res, err := buildFilteredCommit(ctx, db, store, nf, meta, c, resolved, opts)
		if err != nil {
			return "", false, err
		}
		resolved[item.id] = res
		if err := store.Put(ctx, key, res.id, res.empty); err != nil {
			return "", false, err
		}
	}

	final := resolved[commitID]
	return final.id, final.id == "", nil
}

// buildFilteredCommit computes the filtered form of a single source commit
// c. By the time this runs every entry in c.Parents has already been
// resolved into the resolved map by the caller's traversal order.
func buildFilteredCommit(ctx context.Context, db *odb.ODB, store memo.Store, nf *filter.Node, meta commitMeta, c *odb.Commit, resolved map[string]commitResult, opts Options) (commitResult, error) {
	treeID, treeEmpty, err := ApplyTree(ctx, db, store, nf, c.Tree)
	if err != nil {
		return commitResult{}, err
	}

	var effectiveParents []string
	for _, p := range c.Parents {
		if pr, ok := resolved[p]; ok && pr.id != "" {
			effectiveParents = appendUnique(effectiveParents, pr.id)
		}
	}

	if !opts.PreserveEmptyCommits && len(effectiveParents) == 0 && treeEmpty {
		// A root with nothing left, or a commit whose every filtered parent
		// evaporated and whose own filtered tree is also empty, contributes
		// nothing to the filtered history.
		return commitResult{id: "", empty: true}, nil
	}

	if !opts.PreserveEmptyCommits && len(effectiveParents) == 1 {
		if parentCommit, err := db.ReadCommit(ctx, effectiveParents[0]); err == nil && parentCommit.Tree == treeID {
			// Empty-commit pruning: this commit changed nothing its sole
			// filtered parent didn't already have, so it disappears and its
			// parent stands in for it.
			return commitResult{id: effectiveParents[0]}, nil
		}
	}

	newCommit := &odb.Commit{
		Tree:      treeID,
		Parents:   effectiveParents,
		Author:    c.Author,
		Committer: c.Committer,
		Message:   c.Message,
	}
	if meta.hasAuthor {
		newCommit.Author.Name = meta.authorName
		newCommit.Author.Email = meta.authorEmail
	}
	for _, h := range c.ExtraHeaders {
		if meta.unsign && h.K == "gpgsig" {
			continue
		}
		newCommit.ExtraHeaders = append(newCommit.ExtraHeaders, h)
	}

	id, err := db.WriteCommit(ctx, newCommit)
	if err != nil {
		return commitResult{}, &IOError{Cause: err}
	}
	return commitResult{id: id}, nil
}

func appendUnique(ss []string, s string) []string {
	for _, x := range ss {
		if x == s {
			return ss
		}
	}
	return append(ss, s)
}

// commitMeta captures the commit-level effects (:author=, :unsign) a filter
// carries — these don't touch the tree transform at all, so they're
// collected once per filter rather than re-walked per commit.
type commitMeta struct {
	hasAuthor               bool
	authorName, authorEmail string
	unsign                  bool
}

func collectMeta(n *filter.Node) commitMeta {
	var m commitMeta
	var walk func(*filter.Node)
	walk = func(cur *filter.Node) {
		if cur == nil {
			return
		}
		switch cur.Kind {
		case filter.KindAuthor:
			m.hasAuthor = true
			m.authorName = cur.AuthorName
			m.authorEmail = cur.AuthorEmail
		case filter.KindUnsign:
			m.unsign = true
		case filter.KindCompose:
			walk(cur.A)
			walk(cur.B)
		case filter.KindFold:
			for _, o := range cur.Operands {
				walk(o)
			}
		case filter.KindSubtract:
			walk(cur.A)
		case filter.KindExclude:
			walk(cur.Inner)
		}
	}
	walk(n)
	return m
}
