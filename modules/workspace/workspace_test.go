// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMounts(t *testing.T) {
	mounts, err := Parse("# comment\n\nlib = :/lib\nvendor = :/third_party\n")
	require.NoError(t, err)
	require.Len(t, mounts, 2)
	assert.Equal(t, "lib", mounts[0].Name)
	assert.Equal(t, "vendor", mounts[1].Name)
}

func TestParseSkipsBlankAndCommentLines(t *testing.T) {
	mounts, err := Parse("\n# nothing here\n   \nlib = :/lib\n")
	require.NoError(t, err)
	require.Len(t, mounts, 1)
}

func TestParseRejectsMissingEquals(t *testing.T) {
	_, err := Parse("lib :/lib")
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestParseRejectsEmptyName(t *testing.T) {
	_, err := Parse(" = :/lib")
	require.Error(t, err)
}

func TestParseRejectsBadFilterExpression(t *testing.T) {
	_, err := Parse("lib = :SUBTRACT[:/a ~ :/b")
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}
