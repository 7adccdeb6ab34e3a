// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package workspace parses workspace.josh manifests: the `:workspace=`
// filter atom reads one of these out of the tree it is filtering and mounts
// each named filter's output at the given path, letting a repository
// compose several independently-filtered views into one tree.
package workspace

import (
	"fmt"
	"strings"

	"github.com/josh-project/josh-filter/modules/filter"
)

// Mount is one `<name> = <filter-expression>` line of a workspace manifest.
type Mount struct {
	Name   string
	Filter *filter.Node
}

// ParseError reports a malformed workspace manifest line.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("workspace: line %d: %s", e.Line, e.Msg)
}

// Parse reads a workspace.josh manifest: one mount per non-blank,
// non-comment line, in the form `<name> = <filter-expression>`. Lines
// starting with # are comments; blank lines are ignored. Mounts are
// returned in file order, which callers fold last-write-wins (same as
// :FOLD) so a later line can override an earlier one's path.
func Parse(content string) ([]Mount, error) {
	var mounts []Mount
	for i, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq < 0 {
			return nil, &ParseError{Line: i + 1, Msg: "expected '<name> = <filter>'"}
		}
		name := strings.TrimSpace(line[:eq])
		expr := strings.TrimSpace(line[eq+1:])
		if name == "" {
			return nil, &ParseError{Line: i + 1, Msg: "empty mount name"}
		}
		node, err := filter.Parse(expr)
		if err != nil {
			return nil, &ParseError{Line: i + 1, Msg: err.Error()}
		}
		mounts = append(mounts, Mount{Name: name, Filter: node})
	}
	return mounts, nil
}
