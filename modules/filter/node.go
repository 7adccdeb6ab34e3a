// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package filter implements the josh-filter grammar: parsing filter
// expressions into a tagged-variant AST, normalizing that AST into a
// canonical form, and deriving a content-addressed filter-id from it.
package filter

import (
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// Kind discriminates the closed set of filter AST node shapes. A tagged
// variant with an exhaustive switch is preferred here over per-node
// interface methods with independent implementations, so normalization and
// hashing stay centralized and mechanically checkable.
type Kind int

const (
	KindNop Kind = iota
	KindSubdir
	KindPrefix
	KindCompose
	KindExclude
	KindGlob
	KindDirs
	KindFold
	KindWorkspace
	KindSubtract
	KindUnsign
	KindAuthor
)

// Node is a single filter AST node. Only the fields relevant to Kind are
// populated; this mirrors a sum type via a single struct, which keeps
// Normalize and String as flat, exhaustive switches instead of a web of
// per-type methods.
type Node struct {
	Kind Kind

	// KindSubdir, KindPrefix, KindGlob, KindWorkspace
	Path string

	// KindCompose, KindSubtract: A is the left/minuend, B is the right/subtrahend
	A *Node
	B *Node

	// KindExclude: the inner filter to subtract
	Inner *Node

	// KindFold: composed operands, in parse order (pre-normalization)
	Operands []*Node

	// KindAuthor
	AuthorName  string
	AuthorEmail string
}

// Nop is the identity filter, `:/`.
var Nop = &Node{Kind: KindNop}

func isNop(n *Node) bool {
	return n != nil && n.Kind == KindNop
}

// String renders the canonical textual form of the (already normalized)
// node. Calling String on a non-normalized node is well-defined but is not
// guaranteed to be the form two independently-parsed-but-equal filters
// agree on — call Normalize first if you need that property.
func (n *Node) String() string {
	if n == nil {
		return ""
	}
	switch n.Kind {
	case KindNop:
		return ":/"
	case KindSubdir:
		return ":/" + n.Path
	case KindPrefix:
		return ":prefix=" + n.Path
	case KindCompose:
		// Every atom's form already begins with its own ':'.
		return n.A.String() + n.B.String()
	case KindExclude:
		return ":exclude[" + n.Inner.String() + "]"
	case KindGlob:
		return ":glob=" + n.Path
	case KindDirs:
		return ":DIRS"
	case KindFold:
		parts := make([]string, len(n.Operands))
		for i, o := range n.Operands {
			parts[i] = o.String()
		}
		return strings.Join(parts, "") + ":FOLD"
	case KindWorkspace:
		return ":workspace=" + n.Path
	case KindSubtract:
		return ":SUBTRACT[" + n.A.String() + "~" + n.B.String() + "]"
	case KindUnsign:
		return ":unsign"
	case KindAuthor:
		return ":author=" + n.AuthorName + ":" + n.AuthorEmail
	default:
		return "<invalid-filter-node>"
	}
}

// ID returns the filter-id: the blake3 hash of the node's canonical string.
// Two filters that normalize to the same AST always have the same ID,
// regardless of how they were originally written (I1, P3).
func (n *Node) ID() [32]byte {
	return blake3.Sum256([]byte(n.String()))
}

// Compose builds a left-to-right composition `a:b`, applying a then b.
func Compose(a, b *Node) *Node {
	return &Node{Kind: KindCompose, A: a, B: b}
}

// sortOperands orders Fold operands by canonical string, byte order. This is
// the one place the :FOLD collision/ordering question (spec.md §9 Open
// Question) is decided — keep any future reinterpretation here, nowhere
// else.
func sortOperands(ops []*Node) []*Node {
	sorted := make([]*Node, len(ops))
	copy(sorted, ops)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})
	return sorted
}
