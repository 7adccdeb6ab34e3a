// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package filter

import (
	"fmt"
	"strings"
)

// ParseError reports a parse failure with the byte offset into the source
// text and a human description of what token class was expected there —
// spec.md §7's PARSE_ERROR(offset, expected).
type ParseError struct {
	Offset   int
	Expected string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("filter: parse error at offset %d: expected %s", e.Offset, e.Expected)
}

type parser struct {
	src string
	pos int
}

// Parse parses a filter expression into its (non-normalized) AST. Callers
// that need the canonical, content-addressable form should follow with
// Normalize. Unknown atoms are always a parse error, never silently
// ignored (spec.md §4.1).
func Parse(src string) (*Node, error) {
	p := &parser{src: src}
	n, err := p.parseComposition()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, &ParseError{Offset: p.pos, Expected: "end of filter or ':'"}
	}
	return n, nil
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

// parseComposition parses `atom (':' atom)*`, left-associative.
func (p *parser) parseComposition() (*Node, error) {
	first, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	result := first
	for {
		p.skipSpace()
		if p.peek() != ':' {
			break
		}
		save := p.pos
		p.pos++ // tentatively consume ':' to test for a trailing ':FOLD'
		if p.matchKeyword("FOLD") {
			// `a:b:FOLD` folds everything composed so far.
			result = foldify(result)
			continue
		}
		// Not FOLD: this ':' is the next atom's own leading ':', not a
		// separate separator token — rewind so parseAtom consumes it.
		p.pos = save
		next, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		result = Compose(result, next)
	}
	return result, nil
}

// foldify wraps the already-built composition chain into a single KindFold
// node whose operands are the flattened composition steps.
func foldify(n *Node) *Node {
	var ops []*Node
	var walk func(*Node)
	walk = func(m *Node) {
		if m.Kind == KindCompose {
			walk(m.A)
			walk(m.B)
			return
		}
		ops = append(ops, m)
	}
	walk(n)
	return &Node{Kind: KindFold, Operands: ops}
}

func (p *parser) matchKeyword(kw string) bool {
	if strings.HasPrefix(p.src[p.pos:], kw) {
		end := p.pos + len(kw)
		if end == len(p.src) || !isIdentByte(p.src[end]) {
			p.pos = end
			return true
		}
	}
	return false
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func (p *parser) parseAtom() (*Node, error) {
	p.skipSpace()
	if p.eof() {
		return nil, &ParseError{Offset: p.pos, Expected: "a filter atom"}
	}
	if p.peek() != ':' {
		return nil, &ParseError{Offset: p.pos, Expected: "':'"}
	}
	p.pos++ // consume leading ':'

	switch {
	case p.matchKeyword("DIRS"):
		return &Node{Kind: KindDirs}, nil
	case p.matchKeyword("FOLD"):
		return &Node{Kind: KindFold}, nil
	case p.matchKeyword("unsign"):
		return &Node{Kind: KindUnsign}, nil
	case strings.HasPrefix(p.src[p.pos:], "prefix="):
		p.pos += len("prefix=")
		return &Node{Kind: KindPrefix, Path: p.parsePath()}, nil
	case strings.HasPrefix(p.src[p.pos:], "glob="):
		p.pos += len("glob=")
		return &Node{Kind: KindGlob, Path: p.parsePath()}, nil
	case strings.HasPrefix(p.src[p.pos:], "workspace="):
		p.pos += len("workspace=")
		return &Node{Kind: KindWorkspace, Path: p.parsePath()}, nil
	case strings.HasPrefix(p.src[p.pos:], "author="):
		p.pos += len("author=")
		return p.parseAuthor()
	case strings.HasPrefix(p.src[p.pos:], "exclude["):
		p.pos += len("exclude[")
		inner, err := p.parseComposition()
		if err != nil {
			return nil, err
		}
		if p.peek() != ']' {
			return nil, &ParseError{Offset: p.pos, Expected: "']'"}
		}
		p.pos++
		return &Node{Kind: KindExclude, Inner: inner}, nil
	case strings.HasPrefix(p.src[p.pos:], "SUBTRACT["):
		p.pos += len("SUBTRACT[")
		a, err := p.parseComposition()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != '~' {
			return nil, &ParseError{Offset: p.pos, Expected: "'~'"}
		}
		p.pos++
		b, err := p.parseComposition()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ']' {
			return nil, &ParseError{Offset: p.pos, Expected: "']'"}
		}
		p.pos++
		return &Node{Kind: KindSubtract, A: a, B: b}, nil
	case p.peek() == '/':
		path := p.parsePath()
		if path == "" {
			return &Node{Kind: KindNop}, nil
		}
		return &Node{Kind: KindSubdir, Path: path}, nil
	default:
		// `:<path>` with no leading '/' is shorthand for `:/<path>` (spec.md
		// §4.1's path-navigation row) — anything that isn't one of the
		// reserved keyword/bracket forms above is read as a bare path.
		path := p.parsePath()
		if path == "" {
			return nil, &ParseError{Offset: p.pos, Expected: "a known filter atom"}
		}
		return &Node{Kind: KindSubdir, Path: path}, nil
	}
}

// parsePath consumes a path until the next ':', ']', '~', whitespace, or end
// of input — the full set of characters that can follow a path inside a
// bracketed binary operator or at top level. Paths use forward slashes; a
// leading '/' (if present) is stripped.
func (p *parser) parsePath() string {
	start := p.pos
	for p.pos < len(p.src) && !isPathStop(p.src[p.pos]) {
		p.pos++
	}
	return strings.TrimPrefix(p.src[start:p.pos], "/")
}

func isPathStop(c byte) bool {
	switch c {
	case ':', ']', '~', ' ', '\t':
		return true
	default:
		return false
	}
}

// parseAuthor parses `<name>:<email>` following `:author=`. The form uses
// ':' both as the name/email separator and, in general, as the filter
// composition separator; here exactly one ':' belongs to the atom itself
// (the one separating name from email) — the name and email never contain
// ':' themselves, so the first ':' encountered is always that separator.
func (p *parser) parseAuthor() (*Node, error) {
	nameStart := p.pos
	for p.pos < len(p.src) && p.src[p.pos] != ':' {
		p.pos++
	}
	if p.eof() {
		return nil, &ParseError{Offset: p.pos, Expected: "':<email>' after author name"}
	}
	name := p.src[nameStart:p.pos]
	p.pos++ // consume separating ':'
	emailStart := p.pos
	for p.pos < len(p.src) && p.src[p.pos] != ':' {
		p.pos++
	}
	email := p.src[emailStart:p.pos]
	return &Node{Kind: KindAuthor, AuthorName: name, AuthorEmail: email}, nil
}
